// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package sim

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/platinasystems/ipa/internal/gsi"
	"github.com/platinasystems/ipa/internal/imm"
	"github.com/platinasystems/ipa/internal/reg"
)

// MaxChannels is the number of channels GSI may allocate.
const MaxChannels = 23

type channel struct {
	props   gsi.Props
	started bool
	intr    bool
	// busy is the number of Stop calls still to fail; negative fails
	// forever.
	busy  int
	stops int
}

// GSI is a channel controller that executes immediate commands against
// a register window and DMA pool as soon as they are queued.
type GSI struct {
	regs *reg.Regs
	dma  *imm.Pool

	mu    sync.Mutex
	chans [MaxChannels]*channel
	hang  bool
	cmds  []imm.Desc
	fail  error
}

func NewGSI(regs reg.Space, dma *imm.Pool) *GSI {
	return &GSI{regs: reg.New(regs), dma: dma}
}

func (g *GSI) get(ch gsi.Channel) (*channel, error) {
	if ch < 0 || int(ch) >= MaxChannels || g.chans[ch] == nil {
		return nil, fmt.Errorf("sim: invalid channel %d", ch)
	}
	return g.chans[ch], nil
}

func (g *GSI) Alloc(p gsi.Props) (gsi.Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	free := gsi.NoChannel
	for i, c := range g.chans {
		if c == nil {
			if free == gsi.NoChannel {
				free = gsi.Channel(i)
			}
		} else if c.props.Pipe == p.Pipe {
			return gsi.NoChannel, fmt.Errorf("sim: pipe %d has channel %d",
				p.Pipe, i)
		}
	}
	if free == gsi.NoChannel {
		return free, gsi.ErrNoChannel
	}
	g.chans[free] = &channel{props: p, intr: true}
	return free, nil
}

func (g *GSI) Start(ch gsi.Channel) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, err := g.get(ch)
	if err == nil {
		c.started = true
	}
	return err
}

func (g *GSI) Stop(ch gsi.Channel) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, err := g.get(ch)
	if err != nil {
		return err
	}
	c.stops++
	if c.busy != 0 {
		if c.busy > 0 {
			c.busy--
		}
		return gsi.ErrBusy
	}
	c.started = false
	return nil
}

func (g *GSI) Reset(ch gsi.Channel) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, err := g.get(ch)
	if err != nil {
		return err
	}
	if c.started {
		return fmt.Errorf("sim: reset of running channel %d", ch)
	}
	return nil
}

func (g *GSI) Free(ch gsi.Channel) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.get(ch); err != nil {
		return err
	}
	g.chans[ch] = nil
	return nil
}

func (g *GSI) IntrEnable(ch gsi.Channel) error  { return g.setIntr(ch, true) }
func (g *GSI) IntrDisable(ch gsi.Channel) error { return g.setIntr(ch, false) }

func (g *GSI) setIntr(ch gsi.Channel, on bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, err := g.get(ch)
	if err == nil {
		c.intr = on
	}
	return err
}

// SetBusy makes the next n Stop calls on ch fail with gsi.ErrBusy; n < 0
// fails every call.
func (g *GSI) SetBusy(ch gsi.Channel, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, err := g.get(ch); err == nil {
		c.busy = n
	}
}

// Stops returns the number of Stop calls on ch.
func (g *GSI) Stops(ch gsi.Channel) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, err := g.get(ch); err == nil {
		return c.stops
	}
	return 0
}

// Intr reports whether the channel interrupt of ch is enabled.
func (g *GSI) Intr(ch gsi.Channel) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, err := g.get(ch); err == nil {
		return c.intr
	}
	return false
}

// Started reports whether ch is running.
func (g *GSI) Started(ch gsi.Channel) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, err := g.get(ch); err == nil {
		return c.started
	}
	return false
}

// Hang stops completing queued commands.
func (g *GSI) Hang(on bool) {
	g.mu.Lock()
	g.hang = on
	g.mu.Unlock()
}

// Fail completes every following command with err.
func (g *GSI) Fail(err error) {
	g.mu.Lock()
	g.fail = err
	g.mu.Unlock()
}

// Commands returns every command queued so far.
func (g *GSI) Commands() []imm.Desc {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]imm.Desc(nil), g.cmds...)
}

// Count returns the number of queued commands with opcode op.
func (g *GSI) Count(op imm.Opcode) (n int) {
	for _, d := range g.Commands() {
		if d.Opcode == op {
			n++
		}
	}
	return
}

func (g *GSI) Queue(ch gsi.Channel, descs []imm.Desc, done func(error)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, err := g.get(ch)
	if err != nil {
		return err
	}
	if !c.started {
		return fmt.Errorf("sim: queue on stopped channel %d", ch)
	}
	g.cmds = append(g.cmds, descs...)
	if g.hang {
		return nil
	}
	err = g.fail
	for _, d := range descs {
		if err != nil {
			break
		}
		err = g.exec(d)
	}
	go done(err)
	return nil
}

func (g *GSI) exec(d imm.Desc) error {
	p, err := imm.Decode(d)
	if err != nil {
		return err
	}
	switch p := p.(type) {
	case *imm.DmaSharedMem:
		if p.FromSram {
			return nil
		}
		return g.copy(p.LocalAddr, p.SystemAddr, p.Size)
	case *imm.HdrInitLocal:
		return g.copy(p.HdrAddr, p.TableAddr, p.Size)
	case *imm.TableInit:
		if err = g.copy(p.HashLocal, p.HashAddr, p.HashSize); err != nil {
			return err
		}
		return g.copy(p.NhashLocal, p.NhashAddr, p.NhashSize)
	case *imm.RegisterWrite:
		v := g.regs.Read32(p.Offset)
		g.regs.Write32(p.Offset, v&^p.Mask|p.Value&p.Mask)
	case *imm.DmaTask32bAddr:
		if _, ok := g.dma.Lookup(uint64(p.Addr)); !ok {
			return fmt.Errorf("sim: dma task from unmapped %#x", p.Addr)
		}
	}
	return nil
}

// copy moves size bytes of DMA memory at addr to SRAM at local.
func (g *GSI) copy(local uint16, addr uint64, size uint16) error {
	if size == 0 {
		return nil
	}
	b, ok := g.dma.Lookup(addr)
	if !ok || len(b) < int(size) {
		return fmt.Errorf("sim: dma of %d bytes from unmapped %#x", size,
			addr)
	}
	if local%4 != 0 {
		return fmt.Errorf("sim: unaligned SRAM address %#x", local)
	}
	var w [4]byte
	for i := 0; i < int(size); i += 4 {
		copy(w[:], b[i:size])
		if int(size)-i < 4 {
			for j := int(size) - i; j < 4; j++ {
				w[j] = 0
			}
		}
		g.regs.WriteN(reg.SramDirectAccess, uint32(local)/4+uint32(i/4),
			binary.LittleEndian.Uint32(w[:]))
	}
	return nil
}
