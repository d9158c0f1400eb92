// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package ipa

import (
	"errors"
	"fmt"

	"github.com/platinasystems/ipa/internal/endpoint"
	"github.com/platinasystems/ipa/internal/gsi"
	"github.com/platinasystems/ipa/internal/reg"
	"github.com/platinasystems/log"
)

var (
	ErrNoDeaggr      = errors.New("pipe does not deaggregate")
	ErrInvalidHandle = errors.New("pipe not set up")
)

// AddClient takes a reference on the engine. On return the engine is
// clocked and its AP consumer pipes are resumed.
func (e *Engine) AddClient() { e.gate.Add() }

// AddClientIfActive takes a reference only if the engine is already on.
// It never blocks.
func (e *Engine) AddClientIfActive() bool { return e.gate.AddIfActive() }

// RemoveClient drops a reference without blocking; switching the
// engine off after the last one happens later.
func (e *Engine) RemoveClient() { e.gate.Remove() }

// RemoveClientWait drops a reference and, if it was the last, returns
// once the engine is off.
func (e *Engine) RemoveClientWait() { e.gate.RemoveWait() }

// PipeForClient returns the physical pipe of c. c must have an entry
// in the endpoint table.
func (e *Engine) PipeForClient(c endpoint.Client) uint32 {
	return e.registry.PipeForClient(c)
}

// ClientForPipe returns the client of a set up pipe.
func (e *Engine) ClientForPipe(pipe uint32) (endpoint.Client, bool) {
	return e.eps.Lookup(pipe)
}

// Endpoint returns the live state of pipe.
func (e *Engine) Endpoint(pipe uint32) *endpoint.Endpoint { return e.eps.Get(pipe) }

// ConfigureEndpoint programs a set up pipe and records cfg as its
// configuration. The caller holds a client reference.
func (e *Engine) ConfigureEndpoint(pipe uint32, cfg endpoint.Cfg) error {
	c, valid := e.eps.Lookup(pipe)
	if !valid {
		panic(fmt.Errorf("%v: configure of invalid pipe %d", e, pipe))
	}
	if cfg.Aggr.En == reg.AggrDeaggr && !endpoint.SupportsDeaggr(pipe) {
		return fmt.Errorf("pipe %d: %w", pipe, ErrNoDeaggr)
	}
	producer := c.IsProducer()
	var dst uint32
	if producer {
		if cfg.Mode.Mode == reg.ModeDma && !cfg.Mode.Dst.IsConsumer() {
			panic(fmt.Errorf("%v: pipe %d: DMA to producer %v", e, pipe,
				cfg.Mode.Dst))
		}
		if cfg.Mode.Dst.IsConsumer() {
			dst = e.registry.PipeForClient(cfg.Mode.Dst)
		} else {
			dst = e.registry.PipeForClient(endpoint.AppsLanCons)
		}
	} else if cfg.Mode != (endpoint.ModeCfg{}) {
		panic(fmt.Errorf("%v: mode set on consumer pipe %d", e, pipe))
	}

	log.Printf("debug", "%v: pipe %d hdr len %d aggr %d mode %d",
		e, pipe, cfg.Hdr.Len, cfg.Aggr.En, cfg.Mode.Mode)
	var seq endpoint.Sequencer
	e.eps.Update(pipe, func(ep *endpoint.Endpoint) {
		ep.Cfg = cfg
		if producer {
			ep.DstPipe = dst
		}
		seq = ep.Sequencer
	})
	e.regs.WriteFieldsN(reg.EndpInitHdr, pipe, &cfg.Hdr)
	e.regs.WriteFieldsN(reg.EndpInitHdrExt, pipe, &cfg.HdrExt)
	e.regs.WriteFieldsN(reg.EndpInitAggr, pipe, &cfg.Aggr)
	e.regs.WriteFieldsN(reg.EndpInitCfg, pipe, &cfg.Cfg)
	if producer {
		e.regs.WriteFieldsN(reg.EndpInitMode, pipe, &reg.ModeFields{
			Mode:    cfg.Mode.Mode,
			DstPipe: dst,
		})
		e.regs.WriteFieldsN(reg.EndpInitSeq, pipe, &reg.Seq{
			Type: uint32(seq),
		})
		e.regs.WriteFieldsN(reg.EndpInitDeaggr, pipe, &reg.Deaggr{})
	} else {
		e.regs.WriteFieldsN(reg.EndpInitHdrMetadataMask, pipe,
			&cfg.MetadataMask)
	}
	return nil
}

// ConfigureStatus programs the status reporting of a set up pipe.
func (e *Engine) ConfigureStatus(pipe uint32, status reg.Status) {
	log.Printf("debug", "%v: pipe %d status %v to pipe %d", e, pipe,
		status.Enable, status.Endp)
	e.eps.Update(pipe, func(ep *endpoint.Endpoint) { ep.Status = status })
	e.regs.WriteFieldsN(reg.EndpStatus, pipe, &status)
}

// ConnectParams describe a pipe to set up.
type ConnectParams struct {
	Client endpoint.Client
	Cfg    endpoint.Cfg
	// RingCount is the channel ring size in elements.
	RingCount int
	Notify    endpoint.Notify
}

// SetupPipe binds the client's pipe, allocates and starts its channel
// and programs the pipe with p.Cfg.
func (e *Engine) SetupPipe(p ConnectParams) (Handle, error) {
	cfg, ok := e.registry.Config(p.Client)
	if !ok {
		panic(fmt.Errorf("%v: no endpoint for %v", e, p.Client))
	}
	e.gate.Add()
	defer e.gate.Remove()

	if _, err := e.eps.Bind(p.Client, cfg, p.Notify); err != nil {
		return 0, err
	}
	fail := func(err error) (Handle, error) {
		if ch, ok := e.eps.Handle(cfg.Pipe); ok {
			e.hw.Channels.Free(ch)
		}
		e.eps.Unbind(cfg.Pipe)
		log.Print("err", e, ": ", p.Client, " setup: ", err)
		return 0, fmt.Errorf("%v setup: %w", p.Client, err)
	}

	dir := gsi.ToEngine
	if p.Client.IsConsumer() {
		dir = gsi.FromEngine
	}
	ch, err := e.hw.Channels.Alloc(gsi.Props{
		Pipe:    cfg.Pipe,
		Channel: cfg.Channel,
		EE:      uint32(cfg.EE),
		Dir:     dir,
		Ring:    p.RingCount,
	})
	if err != nil {
		return fail(err)
	}
	e.eps.SetHandle(cfg.Pipe, ch)

	if err = e.ConfigureEndpoint(cfg.Pipe, p.Cfg); err != nil {
		return fail(err)
	}
	e.ConfigureStatus(cfg.Pipe, reg.Status{})
	// Interface fifo depths.
	e.regs.WriteN(reg.EndpGsiCfg1, cfg.Pipe, cfg.TLV)
	e.regs.WriteN(reg.EndpGsiCfg2, cfg.Pipe, cfg.AOS)

	if err = e.hw.Channels.Start(ch); err != nil {
		return fail(err)
	}
	e.pipes.Reset(cfg.Pipe)
	log.Printf("debug", "%v: %v on pipe %d channel %d", e, p.Client,
		cfg.Pipe, ch)
	return Handle(cfg.Pipe), nil
}

// TeardownPipe stops and releases the channel of a set up pipe. A pipe
// whose channel does not stop stays set up.
func (e *Engine) TeardownPipe(h Handle) error {
	pipe := uint32(h)
	c, valid := e.eps.Lookup(pipe)
	if !valid {
		return fmt.Errorf("pipe %d: %w", pipe, ErrInvalidHandle)
	}
	e.gate.Add()
	defer e.gate.Remove()

	ch, _ := e.eps.Handle(pipe)
	if c == endpoint.AppsCmdProd {
		e.cmds.Detach()
	}
	if err := e.pipes.StopChannel(pipe); err != nil {
		log.Print("err", e, ": ", c, " teardown: ", err)
		return err
	}
	if err := e.hw.Channels.Reset(ch); err != nil {
		log.Print("err", e, ": ", c, " channel reset: ", err)
	}
	if err := e.hw.Channels.Free(ch); err != nil {
		log.Print("err", e, ": ", c, " channel free: ", err)
	}
	e.eps.Unbind(pipe)
	e.pipes.ReleasePoll()
	log.Printf("debug", "%v: %v torn down", e, c)
	return nil
}

// ExitPoll returns a consumer pipe the suspend interrupt put in poll
// mode to interrupt mode.
func (e *Engine) ExitPoll(h Handle) { e.pipes.ExitPoll(uint32(h)) }

// SuspendCheck refuses system suspend while any pipe polls.
func (e *Engine) SuspendCheck() error { return e.pipes.SuspendCheck() }

// WakeLock keeps the host awake until the matching WakeUnlock.
func (e *Engine) WakeLock()   { e.wake.Inc() }
func (e *Engine) WakeUnlock() { e.wake.Dec() }

// FreezeClockVote tells the modem, once, whether the engine is on and
// keeps it so.
func (e *Engine) FreezeClockVote() error {
	err := e.handshake.Freeze()
	if err == nil {
		_, on := e.handshake.Sent()
		log.Printf("debug", "%v: clock vote frozen, clock on %v", e, on)
	}
	return err
}

// ResetClockVote undoes FreezeClockVote.
func (e *Engine) ResetClockVote() error { return e.handshake.Reset() }

// ProxyVote holds the engine on for the modem.
func (e *Engine) ProxyVote() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.proxy {
		e.gate.Add()
		e.proxy = true
	}
}

// ProxyUnvote drops the modem's reference.
func (e *Engine) ProxyUnvote() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proxy {
		e.gate.Remove()
		e.proxy = false
	}
}

// InitModemMemory clears the modem's shared memory regions.
func (e *Engine) InitModemMemory() error {
	e.gate.Add()
	defer e.gate.Remove()
	l := &e.cfg.Layout
	for _, r := range []struct {
		what string
		off  uint32
		size uint32
	}{
		{"modem RAM", l.Modem.Offset, l.Modem.Size},
		{"modem header RAM", l.ModemHdr.Offset, l.ModemHdr.Size},
		{"modem proc ctx RAM", l.ModemHdrProcCtx.Offset,
			l.ModemHdrProcCtx.Size},
	} {
		if r.size == 0 {
			continue
		}
		if err := e.cmds.ZeroSharedMem(r.off, r.size); err != nil {
			log.Print("err", e, ": initialize ", r.what, ": ", err)
			return fmt.Errorf("%s: %w", r.what, err)
		}
	}
	return nil
}
