// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package ipa is the control plane of an IPA v3.5.1 packet offload
// engine. An Engine brings the engine's clocks and pipes up, programs
// its lookup tables and pipe registers, and keeps it powered while it
// has active clients.
package ipa

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/platinasystems/ipa/internal/endpoint"
	"github.com/platinasystems/ipa/internal/gsi"
	"github.com/platinasystems/ipa/internal/imm"
	"github.com/platinasystems/ipa/internal/metrics"
	"github.com/platinasystems/ipa/internal/pipe"
	"github.com/platinasystems/ipa/internal/power"
	"github.com/platinasystems/ipa/internal/reg"
	"github.com/platinasystems/ipa/internal/task"
	"github.com/platinasystems/log"
	uuid "github.com/satori/go.uuid"
)

var (
	ErrNoFilterPipes = errors.New("no filtering pipes")
	ErrTooManyPipes  = errors.New("more pipes than supported")
	ErrUp            = errors.New("post-init already run")
)

// Hardware is what an engine drives. internal/sim provides all of it
// in software.
type Hardware struct {
	Regs     reg.Space
	DMA      imm.Allocator
	Channels gsi.Controller
	Clock    power.Clock
	// Interconnect paths to system memory, IMEM and the config bus.
	Memory, Imem, Config power.Bus
	// State lines to the modem.
	PeerValid, PeerEnabled power.StateBit
	Wake                   power.WakeSource
}

// Handle names a set up pipe.
type Handle uint32

// Engine is one offload engine instance.
type Engine struct {
	id   uuid.UUID
	name string
	cfg  Config
	hw   Hardware

	regs      *reg.Regs
	registry  *endpoint.Registry
	eps       *endpoint.Table
	metrics   *metrics.Metrics
	exec      *task.Executor
	gate      *power.Gate
	cmds      *imm.Pipeline
	pipes     *pipe.Manager
	wake      *power.WakeLock
	handshake *power.Handshake

	numPipes uint32
	// Host accessible shared memory: its byte offset in SRAM and size.
	smemBase, smemSize uint32

	mu sync.Mutex
	up bool
	// probe is the reference taken at probe; post-init hands it to the
	// modem as its proxy vote.
	probe, proxy     bool
	cmdPipe, lanPipe *Handle
}

// New probes the engine and runs the part of its initialization that
// needs no command channel. On error nothing is left enabled.
func New(hw Hardware, cfg Config) (*Engine, error) {
	cfg.defaults()
	e := &Engine{
		id:   uuid.NewV4(),
		cfg:  cfg,
		hw:   hw,
		regs: reg.New(hw.Regs),
		eps:  endpoint.NewTable(),
	}
	e.name = cfg.Name
	if e.name == "" {
		e.name = "ipa-" + e.id.String()[:8]
	}

	var err error
	if e.registry, err = endpoint.New(cfg.Endpoints); err != nil {
		return nil, fmt.Errorf("%v: %w", e, err)
	}
	if e.registry.FilterCount() == 0 {
		return nil, fmt.Errorf("%v: %w", e, ErrNoFilterPipes)
	}
	if err = cfg.Layout.Validate(e.registry.FilterCount()); err != nil {
		log.Print("err", e, ": ", err)
		return nil, fmt.Errorf("%v: %w", e, err)
	}

	e.metrics = metrics.New(e.name)
	e.exec = task.New(e.name, cfg.Workers)
	e.gate = power.NewGate(power.GateConfig{
		Name:         e.name,
		Clock:        hw.Clock,
		Interconnect: power.NewPaths(hw.Memory, hw.Imem, hw.Config),
		Executor:     e.exec,
		Metrics:      e.metrics,
	})
	e.metrics.ActiveClients(func() float64 { return float64(e.gate.Count()) })

	e.gate.Start()
	e.probe = true
	if err = e.preInit(); err != nil {
		e.gate.RemoveWait()
		e.exec.Close(context.Background())
		log.Print("err", e, ": ", err)
		return nil, fmt.Errorf("%v: %w", e, err)
	}

	e.pipes = pipe.New(pipe.Config{
		Name:         e.name,
		Regs:         e.regs,
		Registry:     e.registry,
		Endpoints:    e.eps,
		Gate:         e.gate,
		Channels:     hw.Channels,
		Flusher:      e.cmds,
		Metrics:      e.metrics,
		StopRetries:  cfg.StopRetries,
		StopDelayMin: cfg.StopDelayMin,
		StopDelayMax: cfg.StopDelayMax,
	})
	e.gate.Attach(e.pipes)
	e.wake = power.NewWakeLock(hw.Wake)
	e.handshake = power.NewHandshake(e.gate, hw.PeerValid, hw.PeerEnabled)

	if cfg.Registerer != nil {
		if err = e.metrics.Register(cfg.Registerer); err != nil {
			log.Print("err", e, ": metrics: ", err)
		}
	}
	log.Printf("info", "%v: v%s engine, %d pipes, %#x bytes shared memory at %#x",
		e, Version, e.numPipes, e.smemSize, e.smemBase)
	return e, nil
}

func (e *Engine) preInit() error {
	e.regs.Write(reg.Bcr, BcrValue)
	e.regs.WriteFields(reg.QsbMaxWrites, &reg.QsbMaxWritesFields{
		Qmb0: QsbMaxWritesQmb0,
		Qmb1: QsbMaxWritesQmb1,
	})
	e.regs.WriteFields(reg.QsbMaxReads, &reg.QsbMaxReadsFields{
		Qmb0: QsbMaxReadsQmb0,
		Qmb1: QsbMaxReadsQmb1,
	})

	e.numPipes = e.regs.Read(reg.EnabledPipes)
	if e.numPipes > endpoint.MaxPipes {
		return fmt.Errorf("%w: %d > %d", ErrTooManyPipes, e.numPipes,
			endpoint.MaxPipes)
	}

	var smem reg.SharedMem
	e.regs.ReadFields(reg.SharedMemSize, &smem)
	e.smemSize, e.smemBase = smem.Size*8, smem.BaseAddr*8
	if err := e.cfg.Layout.Fits(e.smemSize); err != nil {
		return err
	}

	var err error
	e.cmds, err = imm.New(imm.Config{
		DMA:          e.hw.DMA,
		SmemBase:     e.smemBase,
		Timeout:      e.cfg.CommandTimeout,
		FlushTimeout: e.cfg.FlushTimeout,
		Metrics:      e.metrics,
	})
	if err != nil {
		return err
	}

	e.regs.WriteFields(reg.IdleIndicationCfg, &reg.IdleIndication{
		EnterIdleDebounceThresh: IdleDebounceThresh,
	})
	return nil
}

func (e *Engine) String() string { return e.name }

// ID uniquely identifies this engine instance.
func (e *Engine) ID() uuid.UUID { return e.id }

// Metrics returns the engine's counters.
func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

// ActiveClients returns the number of references holding the engine on.
func (e *Engine) ActiveClients() int32 { return e.gate.Count() }

// SharedMem returns the byte offset in SRAM and the size of the host
// accessible shared memory.
func (e *Engine) SharedMem() (base, size uint32) { return e.smemBase, e.smemSize }

// Close tears down the pipes set up at post-init, drops the engine's
// own references and waits for the clocks to be switched off.
func (e *Engine) Close() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	e.mu.Lock()
	lan, cmd := e.lanPipe, e.cmdPipe
	e.lanPipe, e.cmdPipe = nil, nil
	probe := e.probe
	e.probe = false
	e.mu.Unlock()

	if lan != nil {
		keep(e.TeardownPipe(*lan))
	}
	if cmd != nil {
		keep(e.TeardownPipe(*cmd))
	}
	keep(e.ResetClockVote())
	e.ProxyUnvote()
	if probe {
		e.gate.RemoveWait()
	}
	e.cmds.Close()

	ctx, cancel := context.WithTimeout(context.Background(),
		e.cfg.CommandTimeout)
	defer cancel()
	keep(e.pipes.Close(ctx))
	keep(e.exec.Close(ctx))
	if e.cfg.Registerer != nil {
		e.metrics.Unregister(e.cfg.Registerer)
	}
	log.Printf("info", "%v: closed", e)
	return first
}
