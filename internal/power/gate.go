// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package power keeps the engine clocked while it has active clients.
package power

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/platinasystems/ipa/internal/metrics"
	"github.com/platinasystems/ipa/internal/task"
	"github.com/platinasystems/log"
)

// Pipes are the AP consumer pipes the gate resumes on the first
// reference and suspends after the last.
type Pipes interface {
	ResumeApps()
	SuspendApps()
}

type GateConfig struct {
	Name         string
	Clock        Clock
	Interconnect Interconnect
	// Executor runs the deferred final Remove.
	Executor *task.Executor
	Metrics  *metrics.Metrics
}

// Gate counts active clients. The count moves between zero and
// non-zero only under mu; other changes are lock free.
type Gate struct {
	count int32
	mu    sync.Mutex
	cfg   GateConfig
	pipes Pipes
}

func NewGate(cfg GateConfig) *Gate {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(cfg.Name)
	}
	if cfg.Executor == nil {
		cfg.Executor = task.New(cfg.Name, 1)
	}
	return &Gate{cfg: cfg}
}

// Attach sets the pipes to resume and suspend. Until then only the
// clocks are switched.
func (g *Gate) Attach(p Pipes) {
	g.mu.Lock()
	g.pipes = p
	g.mu.Unlock()
}

func (g *Gate) String() string { return g.cfg.Name }

// Count returns the number of active clients.
func (g *Gate) Count() int32 { return atomic.LoadInt32(&g.count) }

// incNotZero adds a reference unless the count is zero.
func (g *Gate) incNotZero() bool {
	for {
		n := atomic.LoadInt32(&g.count)
		if n == 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(&g.count, n, n+1) {
			return true
		}
	}
}

// decNotOne drops a reference unless it is the last.
func (g *Gate) decNotOne() bool {
	for {
		n := atomic.LoadInt32(&g.count)
		if n <= 1 {
			if n <= 0 {
				panic(fmt.Errorf("%v: remove without add", g))
			}
			return false
		}
		if atomic.CompareAndSwapInt32(&g.count, n, n-1) {
			return true
		}
	}
}

// Start takes the reference held from probe until post-init. It
// enables the clocks without resuming pipes since none are set up.
func (g *Gate) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if atomic.LoadInt32(&g.count) != 0 {
		panic(fmt.Errorf("%v: start with active clients", g))
	}
	g.clocksOn()
	atomic.StoreInt32(&g.count, 1)
}

// AddIfActive takes a reference only if the engine is already active.
// It never blocks.
func (g *Gate) AddIfActive() bool {
	return g.incNotZero()
}

// Add takes a reference, enabling the engine if it is the first. On
// return the engine is clocked and its AP consumer pipes are resumed.
func (g *Gate) Add() {
	if g.incNotZero() {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.incNotZero() {
		return
	}
	g.clocksOn()
	if g.pipes != nil {
		g.pipes.ResumeApps()
	}
	atomic.StoreInt32(&g.count, 1)
}

func (g *Gate) clocksOn() {
	if err := g.cfg.Clock.Enable(); err != nil {
		log.Print("err", g, ": clock enable: ", err)
		panic(fmt.Errorf("%v: clock enable: %w", g, err))
	}
	if err := g.cfg.Interconnect.Enable(); err != nil {
		g.cfg.Clock.Disable()
		log.Print("err", g, ": ", err)
		panic(fmt.Errorf("%v: %w", g, err))
	}
	g.cfg.Metrics.ClockEnables.Inc()
	log.Printf("debug", "%v: clocks on", g)
}

// Remove drops a reference. Dropping the last one is deferred to the
// executor so Remove never blocks.
func (g *Gate) Remove() {
	if g.decNotOne() {
		return
	}
	if err := g.cfg.Executor.Go(g.removeFinal); err != nil {
		log.Print("err", g, ": deferred remove: ", err)
		g.removeFinal()
	}
}

// RemoveWait is Remove with the engine disabled before it returns
// when this was the last reference.
func (g *Gate) RemoveWait() {
	if g.decNotOne() {
		return
	}
	g.removeFinal()
}

func (g *Gate) removeFinal() {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := atomic.AddInt32(&g.count, -1)
	if n < 0 {
		panic(fmt.Errorf("%v: remove without add", g))
	}
	if n > 0 {
		return
	}
	if g.pipes != nil {
		g.pipes.SuspendApps()
	}
	if err := g.cfg.Interconnect.Disable(); err != nil {
		log.Print("err", g, ": ", err)
	}
	if err := g.cfg.Clock.Disable(); err != nil {
		log.Print("err", g, ": clock disable: ", err)
	}
	g.cfg.Metrics.ClockDisables.Inc()
	log.Printf("debug", "%v: clocks off", g)
}
