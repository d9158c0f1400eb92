// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package pipe suspends, resumes and stops engine pipes.
package pipe

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/platinasystems/ipa/internal/endpoint"
	"github.com/platinasystems/ipa/internal/gsi"
	"github.com/platinasystems/ipa/internal/metrics"
	"github.com/platinasystems/ipa/internal/power"
	"github.com/platinasystems/ipa/internal/reg"
	"github.com/platinasystems/ipa/internal/task"
	"github.com/platinasystems/log"
)

var (
	ErrStopRetries = errors.New("channel stop retries exhausted")
	ErrBusy        = errors.New("endpoint polling")
)

type State int32

const (
	Active State = iota
	SuspendRequested
	Suspended
	StopRequested
	Stopped
)

var stateNames = [...]string{
	Active:           "active",
	SuspendRequested: "suspend-requested",
	Suspended:        "suspended",
	StopRequested:    "stop-requested",
	Stopped:          "stopped",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Flusher drains the engine pipeline without allocating.
type Flusher interface {
	InjectFlush() error
}

const (
	DefaultStopRetries  = 10
	DefaultStopDelayMin = time.Millisecond
	DefaultStopDelayMax = 2 * time.Millisecond
)

type Config struct {
	Name      string
	Regs      *reg.Regs
	Registry  *endpoint.Registry
	Endpoints *endpoint.Table
	Gate      *power.Gate
	Channels  gsi.Controller
	Flusher   Flusher
	Metrics   *metrics.Metrics

	StopRetries  int
	StopDelayMin time.Duration
	StopDelayMax time.Duration
}

// Manager tracks the suspend and stop state of every pipe.
type Manager struct {
	cfg Config

	mu    sync.Mutex
	state [endpoint.MaxPipes]State

	// pollMu guards pollRef, the gate reference held while any AP
	// consumer is polling after a suspend interrupt.
	pollMu  sync.Mutex
	pollRef bool
	// refs takes and drops pollRef in order when that can't be done
	// without blocking.
	refs *task.Executor
}

func New(cfg Config) *Manager {
	if cfg.StopRetries == 0 {
		cfg.StopRetries = DefaultStopRetries
	}
	if cfg.StopDelayMin == 0 {
		cfg.StopDelayMin = DefaultStopDelayMin
	}
	if cfg.StopDelayMax == 0 {
		cfg.StopDelayMax = DefaultStopDelayMax
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(cfg.Name)
	}
	return &Manager{cfg: cfg, refs: task.New(cfg.Name+"-poll", 1)}
}

// Wait returns once every queued poll reference change has run.
func (m *Manager) Wait(ctx context.Context) error { return m.refs.Wait(ctx) }

// Close waits for queued poll reference changes and refuses new ones.
func (m *Manager) Close(ctx context.Context) error { return m.refs.Close(ctx) }

func (m *Manager) String() string { return m.cfg.Name }

// State returns the state of pipe.
func (m *Manager) State(pipe uint32) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state[pipe]
}

func (m *Manager) setState(pipe uint32, s State) {
	m.mu.Lock()
	m.state[pipe] = s
	m.mu.Unlock()
}

// setPower moves pipe between the suspend states; a pipe being
// stopped stays so.
func (m *Manager) setPower(pipe uint32, s State) {
	m.mu.Lock()
	if m.state[pipe] < StopRequested {
		m.state[pipe] = s
	}
	m.mu.Unlock()
}

// Reset returns a newly set up pipe to Active.
func (m *Manager) Reset(pipe uint32) {
	m.setState(pipe, Active)
}

// SuspendConsumer suspends pipe and masks its channel interrupt.
func (m *Manager) SuspendConsumer(pipe uint32) {
	log.Printf("debug", "%v: suspend pipe %d", m, pipe)
	m.setPower(pipe, SuspendRequested)

	var ctrl reg.Ctrl
	m.cfg.Regs.ReadFieldsN(reg.EndpInitCtrl, pipe, &ctrl)
	ctrl.Suspend = true
	m.cfg.Regs.WriteFieldsN(reg.EndpInitCtrl, pipe, &ctrl)

	// A pipe suspended with an open aggregation frame raises no
	// suspend interrupt; close the frame and raise it here.
	mask := uint32(1) << pipe
	if m.cfg.Regs.Read(reg.StateAggrActive)&mask != 0 {
		m.cfg.Regs.Write(reg.AggrForceClose, mask)
		m.cfg.Metrics.AggrForceCloses.Inc()
		m.HandleSuspend(mask)
	}

	// Traffic for the suspended pipe now raises the suspend interrupt.
	if ch, ok := m.cfg.Endpoints.Handle(pipe); ok {
		if err := m.cfg.Channels.IntrDisable(ch); err != nil {
			log.Print("err", m, ": pipe ", pipe, " interrupt mask: ", err)
		}
	}
	m.setPower(pipe, Suspended)
}

// ResumeConsumer clears the suspend of pipe. Its channel interrupt is
// re-enabled unless the pipe is still polling.
func (m *Manager) ResumeConsumer(pipe uint32) {
	log.Printf("debug", "%v: resume pipe %d", m, pipe)
	var ctrl reg.Ctrl
	m.cfg.Regs.ReadFieldsN(reg.EndpInitCtrl, pipe, &ctrl)
	ctrl.Suspend = false
	m.cfg.Regs.WriteFieldsN(reg.EndpInitCtrl, pipe, &ctrl)

	ch, ok := m.cfg.Endpoints.Handle(pipe)
	if ok && !m.cfg.Endpoints.Get(pipe).Polling() {
		if err := m.cfg.Channels.IntrEnable(ch); err != nil {
			log.Print("err", m, ": pipe ", pipe, " interrupt: ", err)
		}
	}
	m.setPower(pipe, Active)
}

// SuspendApps suspends the AP consumers, WAN then LAN.
func (m *Manager) SuspendApps() {
	m.SuspendConsumer(m.cfg.Registry.PipeForClient(endpoint.AppsWanCons))
	m.SuspendConsumer(m.cfg.Registry.PipeForClient(endpoint.AppsLanCons))
}

// ResumeApps resumes the AP consumers, LAN then WAN.
func (m *Manager) ResumeApps() {
	m.ResumeConsumer(m.cfg.Registry.PipeForClient(endpoint.AppsLanCons))
	m.ResumeConsumer(m.cfg.Registry.PipeForClient(endpoint.AppsWanCons))
}

// HandleSuspend handles a suspend interrupt for the pipes in bitmap.
// It never blocks: the engine is kept on for the polling AP consumers
// with a reference taken now if the engine is active, or queued
// otherwise.
func (m *Manager) HandleSuspend(bitmap uint32) {
	m.cfg.Metrics.SuspendIrqs.Inc()
	log.Printf("debug", "%v: suspend interrupt %#08x", m, bitmap)
	for bitmap != 0 {
		pipe := uint32(bits.TrailingZeros32(bitmap))
		bitmap &^= 1 << pipe
		if pipe >= endpoint.MaxPipes {
			continue
		}
		c, valid := m.cfg.Endpoints.Lookup(pipe)
		if !valid || !c.IsApConsumer() {
			continue
		}
		m.pollMu.Lock()
		if !m.cfg.Endpoints.SetPolling(pipe, c, true) {
			// Torn down since the lookup.
			m.pollMu.Unlock()
			continue
		}
		if !m.pollRef {
			if !m.cfg.Gate.AddIfActive() {
				if err := m.refs.Go(m.cfg.Gate.Add); err != nil {
					log.Print("err", m, ": poll reference: ", err)
					m.cfg.Endpoints.SetPolling(pipe, c, false)
					m.pollMu.Unlock()
					continue
				}
			}
			m.pollRef = true
		}
		m.pollMu.Unlock()
	}
}

// ExitPoll returns pipe to interrupt mode. The poll reference is
// dropped once no endpoint polls.
func (m *Manager) ExitPoll(pipe uint32) {
	m.cfg.Endpoints.Get(pipe).SetPolling(false)
	if ch, ok := m.cfg.Endpoints.Handle(pipe); ok {
		if err := m.cfg.Channels.IntrEnable(ch); err != nil {
			log.Print("err", m, ": pipe ", pipe, " interrupt: ", err)
		}
	}
	m.ReleasePoll()
}

// ReleasePoll drops the poll reference once no endpoint polls.
func (m *Manager) ReleasePoll() {
	m.pollMu.Lock()
	if !m.pollRef || m.polling() {
		m.pollMu.Unlock()
		return
	}
	m.pollRef = false
	// Queued behind a reference HandleSuspend may have deferred.
	err := m.refs.Go(m.cfg.Gate.Remove)
	m.pollMu.Unlock()
	if err != nil {
		m.cfg.Gate.Remove()
	}
}

func (m *Manager) polling() (on bool) {
	m.cfg.Endpoints.Range(func(ep *endpoint.Endpoint) {
		on = on || ep.Polling()
	})
	return
}

// SuspendCheck refuses system suspend while any endpoint polls.
func (m *Manager) SuspendCheck() error {
	var err error
	m.cfg.Endpoints.Range(func(ep *endpoint.Endpoint) {
		if err == nil && ep.Polling() {
			log.Print("err", m, ": pipe ", ep.Pipe,
				" polling, refuse suspend")
			err = fmt.Errorf("pipe %d: %w", ep.Pipe, ErrBusy)
		}
	})
	return err
}

// StopChannel stops the channel of a set up pipe. A consumer channel
// busy with transfers is retried a bounded number of times, draining
// the engine with the reserved flush before each retry.
func (m *Manager) StopChannel(pipe uint32) error {
	c, _ := m.cfg.Endpoints.Lookup(pipe)
	ch, ok := m.cfg.Endpoints.Handle(pipe)
	if !ok {
		return fmt.Errorf("pipe %d: %w", pipe, gsi.ErrNoChannel)
	}
	m.cfg.Gate.Add()
	defer m.cfg.Gate.Remove()

	prev := m.State(pipe)
	m.setState(pipe, StopRequested)
	stopped := func(err error) error {
		if err != nil {
			m.setState(pipe, prev)
			return fmt.Errorf("pipe %d stop: %w", pipe, err)
		}
		m.setState(pipe, Stopped)
		return nil
	}

	if c.IsProducer() {
		return stopped(m.cfg.Channels.Stop(ch))
	}

	for i := 0; i < m.cfg.StopRetries; i++ {
		err := m.cfg.Channels.Stop(ch)
		if !errors.Is(err, gsi.ErrBusy) && !errors.Is(err, gsi.ErrTimeout) {
			return stopped(err)
		}
		m.cfg.Metrics.StopRetries.Inc()
		log.Printf("debug", "%v: pipe %d stop: %v, flush", m, pipe, err)
		if err = m.cfg.Flusher.InjectFlush(); err != nil {
			log.Print("err", m, ": pipe ", pipe, " flush: ", err)
			return stopped(fmt.Errorf("flush: %w", err))
		}
		time.Sleep(m.stopDelay())
	}
	m.cfg.Metrics.StopFailures.Inc()
	log.Print("err", m, ": pipe ", pipe, ": ", ErrStopRetries)
	return stopped(ErrStopRetries)
}

// stopDelay returns a random delay within [StopDelayMin, StopDelayMax].
// The second attempt of a backoff growing from min to max in one step
// is jittered over exactly that window.
func (m *Manager) stopDelay() time.Duration {
	lo, hi := m.cfg.StopDelayMin, m.cfg.StopDelayMax
	if lo >= hi {
		return hi
	}
	b := &backoff.Backoff{
		Min:    lo,
		Max:    hi,
		Factor: float64(hi) / float64(lo),
		Jitter: true,
	}
	return b.ForAttempt(1)
}
