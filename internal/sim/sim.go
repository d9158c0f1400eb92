// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package sim provides the engine hardware in software for bring-up
// and tests.
package sim

import (
	"errors"
	"sync"

	"github.com/platinasystems/ipa/internal/imm"
	"github.com/platinasystems/ipa/internal/reg"
)

var ErrInjected = errors.New("sim: injected failure")

const (
	DefaultPipes    = 20
	DefaultSmemSize = 0x2000
	DefaultDMA      = 64 << 10
)

// Hardware is a complete simulated engine.
type Hardware struct {
	Regs              reg.Mem
	DMA               *imm.Pool
	GSI               *GSI
	Clock             *Clock
	Memory, Imem, Cfg *Bus
	PeerValid, PeerOn *Bit
	Wake              *WakeSource
}

// New returns an engine with pipes pipes and smemSize bytes of shared
// memory starting restricted bytes into SRAM.
func New(pipes, smemSize, restricted uint32) *Hardware {
	mem := reg.NewMem(reg.Size)
	r := reg.New(mem)
	r.Write(reg.EnabledPipes, pipes)
	r.WriteFields(reg.SharedMemSize, &reg.SharedMem{
		Size:     smemSize / 8,
		BaseAddr: restricted / 8,
	})
	dma := imm.NewPool(DefaultDMA)
	return &Hardware{
		Regs:      mem,
		DMA:       dma,
		GSI:       NewGSI(mem, dma),
		Clock:     &Clock{},
		Memory:    &Bus{},
		Imem:      &Bus{},
		Cfg:       &Bus{},
		PeerValid: &Bit{},
		PeerOn:    &Bit{},
		Wake:      &WakeSource{},
	}
}

// Default is a v3.5.1 engine as found on the board.
func Default() *Hardware {
	return New(DefaultPipes, DefaultSmemSize, 0)
}

// SRAM returns the word of shared memory at byte offset.
func (hw *Hardware) SRAM(offset uint32) uint32 {
	return hw.Regs.Read32(reg.Offset(reg.SramDirectAccess, offset/4))
}

// SetAggrActive marks an aggregation frame open on pipe.
func (hw *Hardware) SetAggrActive(pipe uint32, open bool) {
	r := reg.New(hw.Regs)
	if open {
		r.OrN(reg.StateAggrActive, 0, 1<<pipe)
	} else {
		r.AndNotN(reg.StateAggrActive, 0, 1<<pipe)
	}
}

// Clock counts enables and disables.
type Clock struct {
	mu       sync.Mutex
	on       bool
	enables  int
	disables int
	Fail     bool
}

func (c *Clock) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Fail {
		return ErrInjected
	}
	c.on = true
	c.enables++
	return nil
}

func (c *Clock) Disable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.on = false
	c.disables++
	return nil
}

func (c *Clock) On() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.on
}

// Counts returns the number of enables and disables.
func (c *Clock) Counts() (enables, disables int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enables, c.disables
}

// Bus holds a bandwidth vote.
type Bus struct {
	mu        sync.Mutex
	avg, peak uint32
	Fail      bool
}

func (b *Bus) SetBandwidth(avg, peak uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail && avg != 0 {
		return ErrInjected
	}
	b.avg, b.peak = avg, peak
	return nil
}

func (b *Bus) Bandwidth() (avg, peak uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.avg, b.peak
}

// Bit is one state line to the peer.
type Bit struct {
	mu sync.Mutex
	on bool
}

func (b *Bit) Set(on bool) error {
	b.mu.Lock()
	b.on = on
	b.mu.Unlock()
	return nil
}

func (b *Bit) On() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.on
}

// WakeSource records whether the host is held awake.
type WakeSource struct {
	mu   sync.Mutex
	held bool
}

func (w *WakeSource) Stay()  { w.set(true) }
func (w *WakeSource) Relax() { w.set(false) }

func (w *WakeSource) set(held bool) {
	w.mu.Lock()
	w.held = held
	w.mu.Unlock()
}

func (w *WakeSource) Held() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.held
}
