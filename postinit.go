// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package ipa

import (
	"fmt"

	"github.com/platinasystems/ipa/internal/endpoint"
	"github.com/platinasystems/ipa/internal/gsi"
	"github.com/platinasystems/ipa/internal/reg"
	"github.com/platinasystems/log"
)

// Bit of IRQ_EN_EE_n for the pipe suspend interrupt.
const irqTxSuspend = 14

// PostInit finishes bring-up over the command channel: resource
// limits, the command and LAN consumer pipes, shared memory, empty
// routing and filter tables and the default route. It runs once; on
// success the probe reference becomes the modem's proxy vote.
func (e *Engine) PostInit() error {
	e.mu.Lock()
	if e.up {
		e.mu.Unlock()
		return ErrUp
	}
	e.up = true
	e.mu.Unlock()

	e.gate.Add()
	defer e.gate.Remove()
	if err := e.postInit(); err != nil {
		log.Print("err", e, ": post-init: ", err)
		e.mu.Lock()
		e.up = false
		e.mu.Unlock()
		return fmt.Errorf("%v: post-init: %w", e, err)
	}

	e.mu.Lock()
	if e.probe {
		e.probe = false
		e.proxy = true
	}
	e.mu.Unlock()
	log.Printf("info", "%v: up", e)
	return nil
}

func (e *Engine) postInit() error {
	e.cfg.Limits.Apply(e.regs)
	e.enableSuspendIrq()

	cmd, err := e.SetupPipe(ConnectParams{
		Client:    endpoint.AppsCmdProd,
		RingCount: CmdProdRingCount,
		Cfg: endpoint.Cfg{
			Mode: endpoint.ModeCfg{
				Mode: reg.ModeDma,
				Dst:  endpoint.AppsLanCons,
			},
		},
	})
	if err != nil {
		return err
	}
	e.cmds.Attach(gsi.Transport{
		Controller: e.hw.Channels,
		Channel:    e.eps.Get(uint32(cmd)).Handle,
	})
	log.Printf("debug", "%v: command pipe %d connected", e, cmd)

	if err = e.initTables(); err != nil {
		return e.rollback(err, cmd)
	}
	e.setupHashTuples()

	lan, err := e.SetupPipe(ConnectParams{
		Client:    endpoint.AppsLanCons,
		RingCount: LanConsRingCount,
		Cfg: endpoint.Cfg{
			Hdr: reg.Hdr{Len: LanRxHeaderLen},
			HdrExt: reg.HdrExt{
				TotalLenOrPadValid: true,
				TotalLenOrPad:      reg.HdrPad,
				PadToAlignment:     2,
			},
			Cfg: reg.Cfg{CsOffload: reg.CsOffloadDL},
		},
	})
	if err != nil {
		return e.rollback(err, cmd)
	}
	e.setDefaultRoute(endpoint.AppsLanCons)

	e.mu.Lock()
	e.cmdPipe, e.lanPipe = &cmd, &lan
	e.mu.Unlock()
	return nil
}

// rollback tears down the pipes set up by a failed post-init.
func (e *Engine) rollback(err error, pipes ...Handle) error {
	for _, h := range pipes {
		if terr := e.TeardownPipe(h); terr != nil {
			log.Print("err", e, ": post-init rollback: ", terr)
			err = fmt.Errorf("%w (rollback: %v)", err, terr)
		}
	}
	return err
}

// enableSuspendIrq unmasks the suspend interrupt for every pipe in the
// endpoint table.
func (e *Engine) enableSuspendIrq() {
	var pipes uint32
	for _, c := range e.registry.Clients() {
		if pipe := e.registry.PipeForClient(c); pipe < e.numPipes {
			pipes |= 1 << pipe
		}
	}
	e.regs.WriteN(reg.SuspendIrqEnEE, reg.EEAp, pipes)
	e.regs.OrN(reg.IrqEnEE, reg.EEAp, 1<<irqTxSuspend)
}

// initTables writes the SRAM canaries, clears header memory and
// installs empty routing and filter tables.
func (e *Engine) initTables() error {
	l := &e.cfg.Layout
	l.SetCanaries(e.regs, e.smemBase)
	log.Printf("debug", "%v: SRAM initialized", e)

	for _, r := range []struct {
		what string
		off  uint32
		size uint32
		hdr  bool
	}{
		{"modem header", l.ModemHdr.Offset, l.ModemHdr.Size, true},
		{"apps header", l.AppsHdr.Offset, l.AppsHdr.Size, true},
		{"modem proc ctx", l.ModemHdrProcCtx.Offset,
			l.ModemHdrProcCtx.Size, false},
		{"apps proc ctx", l.AppsHdrProcCtx.Offset,
			l.AppsHdrProcCtx.Size, false},
	} {
		if r.size == 0 {
			continue
		}
		var err error
		if r.hdr {
			err = e.cmds.HdrInitLocal(r.off, r.size)
		} else {
			err = e.cmds.ZeroSharedMem(r.off, r.size)
		}
		if err != nil {
			return fmt.Errorf("%s init: %w", r.what, err)
		}
	}
	e.regs.Write(reg.LocalPktProcCntxtBase, 0)
	log.Printf("debug", "%v: headers initialized", e)

	if err := e.cmds.RoutingInit(false, int(l.V4RtNumIndex),
		l.V4RtHash.Offset, l.V4RtNhash.Offset); err != nil {
		return fmt.Errorf("v4 routing init: %w", err)
	}
	if err := e.cmds.RoutingInit(true, int(l.V6RtNumIndex),
		l.V6RtHash.Offset, l.V6RtNhash.Offset); err != nil {
		return fmt.Errorf("v6 routing init: %w", err)
	}
	bitmap := e.registry.FilterBitmap()
	if err := e.cmds.FilterInit(false, bitmap, l.V4FltHash.Offset,
		l.V4FltNhash.Offset); err != nil {
		return fmt.Errorf("v4 filter init: %w", err)
	}
	if err := e.cmds.FilterInit(true, bitmap, l.V6FltHash.Offset,
		l.V6FltNhash.Offset); err != nil {
		return fmt.Errorf("v6 filter init: %w", err)
	}
	log.Printf("debug", "%v: routing and filter tables initialized", e)
	return nil
}

// setupHashTuples clears the hash tuples of the AP's filtering pipes
// and routing tables, leaving the modem's untouched.
func (e *Engine) setupHashTuples() {
	bitmap := e.registry.FilterBitmap()
	for pipe := uint32(0); pipe < e.numPipes; pipe++ {
		if e.registry.IsModemPipe(pipe) || bitmap&(1<<pipe) == 0 {
			continue
		}
		var t reg.HashTuple
		e.regs.ReadFieldsN(reg.EndpFilterRouterHshCfg, pipe, &t)
		t.Filter = reg.Tuple{}
		e.regs.WriteFieldsN(reg.EndpFilterRouterHshCfg, pipe, &t)
	}

	l := &e.cfg.Layout
	n := l.V4RtNumIndex
	if l.V6RtNumIndex > n {
		n = l.V6RtNumIndex
	}
	for i := uint32(0); i < n; i++ {
		if l.V4ModemRt.Contains(i) || l.V6ModemRt.Contains(i) {
			continue
		}
		var t reg.HashTuple
		e.regs.ReadFieldsN(reg.EndpFilterRouterHshCfg, i, &t)
		t.Router = reg.Tuple{}
		e.regs.WriteFieldsN(reg.EndpFilterRouterHshCfg, i, &t)
	}
	log.Printf("debug", "%v: hash tuples configured", e)
}

// setDefaultRoute sends unrouted packets and exceptions to c.
func (e *Engine) setDefaultRoute(c endpoint.Client) {
	pipe := e.registry.PipeForClient(c)
	e.gate.Add()
	e.regs.WriteFields(reg.Route, &reg.RouteFields{
		DefPipe:      pipe,
		DefHdrTable:  true,
		FragDefPipe:  pipe,
		DefRetainHdr: true,
	})
	e.gate.Remove()
	log.Printf("debug", "%v: default route to pipe %d", e, pipe)
}
