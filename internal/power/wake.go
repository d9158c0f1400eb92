// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package power

import (
	"fmt"
	"sync"
)

// WakeSource keeps the host out of system suspend while held.
type WakeSource interface {
	Stay()
	Relax()
}

// WakeLock counts holders of the wake source, independent of the
// gate.
type WakeLock struct {
	mu  sync.Mutex
	n   int
	src WakeSource
}

func NewWakeLock(src WakeSource) *WakeLock {
	return &WakeLock{src: src}
}

func (w *WakeLock) Inc() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.n++
	if w.n == 1 {
		w.src.Stay()
	}
}

func (w *WakeLock) Dec() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.n == 0 {
		panic(fmt.Errorf("wake lock released without hold"))
	}
	w.n--
	if w.n == 0 {
		w.src.Relax()
	}
}

func (w *WakeLock) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// StateBit is one outbound state line to the peer processor.
type StateBit interface {
	Set(on bool) error
}

// Handshake tells the peer processor, once, whether the engine clock
// is on; the peer may then access engine memory during a crash dump.
type Handshake struct {
	gate           *Gate
	valid, enabled StateBit

	mu      sync.Mutex
	sent    bool
	clockOn bool
}

func NewHandshake(g *Gate, valid, enabled StateBit) *Handshake {
	return &Handshake{gate: g, valid: valid, enabled: enabled}
}

// Freeze holds the clock if it is on and publishes that to the peer.
// Later calls do nothing until Reset.
func (h *Handshake) Freeze() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sent {
		return nil
	}
	h.clockOn = h.gate.AddIfActive()
	if err := h.enabled.Set(h.clockOn); err != nil {
		return h.undo(fmt.Errorf("clock enabled bit: %w", err))
	}
	if err := h.valid.Set(true); err != nil {
		return h.undo(fmt.Errorf("clock valid bit: %w", err))
	}
	h.sent = true
	return nil
}

func (h *Handshake) undo(err error) error {
	if h.clockOn {
		h.gate.Remove()
		h.clockOn = false
	}
	return err
}

// Reset drops the held reference and clears both bits.
func (h *Handshake) Reset() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.sent {
		return nil
	}
	if h.clockOn {
		h.gate.Remove()
	}
	h.sent, h.clockOn = false, false
	if err := h.valid.Set(false); err != nil {
		return fmt.Errorf("clock valid bit: %w", err)
	}
	if err := h.enabled.Set(false); err != nil {
		return fmt.Errorf("clock enabled bit: %w", err)
	}
	return nil
}

// Sent reports whether Freeze has published the clock state.
func (h *Handshake) Sent() (sent, clockOn bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sent, h.clockOn
}
