// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package imm builds immediate commands and submits them, in order, to
// the engine's command producer pipe.
package imm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/platinasystems/ipa/internal/metrics"
	"github.com/platinasystems/log"
)

var (
	ErrTimeout     = errors.New("immediate command timeout")
	ErrNoTransport = errors.New("command pipe not set up")
)

// Desc is one immediate command descriptor.
type Desc struct {
	Opcode  Opcode
	Payload []byte
}

func NewDesc(p Payload) Desc {
	return Desc{Opcode: p.Opcode(), Payload: p.Encode()}
}

func (d Desc) String() string {
	return fmt.Sprintf("%v[%d]", d.Opcode, len(d.Payload))
}

// Transport queues descriptors on the command channel. It must keep
// queue order and call done exactly once, after the last descriptor
// completes or fails.
type Transport interface {
	Queue(descs []Desc, done func(error)) error
}

type Config struct {
	DMA Allocator
	// SmemBase is the byte offset of the host accessible shared memory
	// within engine SRAM; region offsets are relative to it.
	SmemBase     uint32
	Timeout      time.Duration
	FlushTimeout time.Duration
	Metrics      *metrics.Metrics
}

const (
	DefaultTimeout      = 5 * time.Second
	DefaultFlushTimeout = 15 * time.Millisecond
)

// Pipeline is the engine's immediate command path.
type Pipeline struct {
	cfg Config

	// mu orders submissions.
	mu sync.Mutex
	tr Transport

	flushBuf *Buffer
	flush    Desc
}

// New reserves the 1 byte flush command so that InjectFlush never
// allocates.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.FlushTimeout == 0 {
		cfg.FlushTimeout = DefaultFlushTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New("")
	}
	buf, err := cfg.DMA.Alloc(1)
	if err != nil {
		return nil, fmt.Errorf("flush reserve: %w", err)
	}
	if buf.Addr>>32 != 0 {
		cfg.DMA.Free(buf)
		return nil, fmt.Errorf("flush reserve %#x: not 32 bit addressable",
			buf.Addr)
	}
	return &Pipeline{
		cfg:      cfg,
		flushBuf: buf,
		flush: NewDesc(&DmaTask32bAddr{
			Size:     1,
			PktSize:  1,
			Flush:    true,
			Complete: true,
			Addr:     uint32(buf.Addr),
		}),
	}, nil
}

// Attach sets the command channel.
func (p *Pipeline) Attach(tr Transport) {
	p.mu.Lock()
	p.tr = tr
	p.mu.Unlock()
}

func (p *Pipeline) Detach() {
	p.Attach(nil)
}

// Close releases the flush reserve.
func (p *Pipeline) Close() {
	p.Detach()
	p.cfg.DMA.Free(p.flushBuf)
	p.flushBuf = nil
}

// Send submits descs and waits for their completion with the default
// timeout.
func (p *Pipeline) Send(descs ...Desc) error {
	return p.SendTimeout(p.cfg.Timeout, descs...)
}

// SendTimeout submits descs and waits at most timeout for completion.
// A completion after the timeout is discarded.
func (p *Pipeline) SendTimeout(timeout time.Duration, descs ...Desc) error {
	if len(descs) == 0 {
		return nil
	}
	done := make(chan error, 1)
	p.mu.Lock()
	if p.tr == nil {
		p.mu.Unlock()
		return ErrNoTransport
	}
	err := p.tr.Queue(descs, func(err error) {
		select {
		case done <- err:
		default:
		}
	})
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("queue %v: %w", descs[0], err)
	}
	p.cfg.Metrics.Commands.Inc()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case err = <-done:
		if err != nil {
			return fmt.Errorf("%v: %w", descs[0], err)
		}
		return nil
	case <-t.C:
		p.cfg.Metrics.CommandTimeouts.Inc()
		log.Print("err", descs[0], ": no completion after ", timeout)
		return ErrTimeout
	}
}

// InjectFlush sends the reserved 1 byte DMA task to drain the pipeline.
func (p *Pipeline) InjectFlush() error {
	p.cfg.Metrics.Flushes.Inc()
	return p.SendTimeout(p.cfg.FlushTimeout, p.flush)
}

func (p *Pipeline) local(offset uint32) uint16 {
	return uint16(p.cfg.SmemBase + offset)
}

// withBuffer allocates a size byte DMA buffer, lets fill populate it
// and build the command, sends it and frees the buffer.
func (p *Pipeline) withBuffer(size int, fill func(*Buffer) Payload) error {
	buf, err := p.cfg.DMA.Alloc(size)
	if err != nil {
		return err
	}
	defer p.cfg.DMA.Free(buf)
	return p.Send(NewDesc(fill(buf)))
}

// ZeroSharedMem clears size bytes of shared memory at offset.
func (p *Pipeline) ZeroSharedMem(offset, size uint32) error {
	if size == 0 {
		panic(fmt.Errorf("imm: zero length shared memory clear at %#x",
			offset))
	}
	return p.withBuffer(int(size), func(buf *Buffer) Payload {
		return &DmaSharedMem{
			Size:       uint16(size),
			LocalAddr:  p.local(offset),
			SystemAddr: buf.Addr,
		}
	})
}

// HdrInitLocal initializes size bytes of local header memory at
// offset to zero.
func (p *Pipeline) HdrInitLocal(offset, size uint32) error {
	return p.withBuffer(int(size), func(buf *Buffer) Payload {
		return &HdrInitLocal{
			TableAddr: buf.Addr,
			Size:      uint16(size),
			HdrAddr:   p.local(offset),
		}
	})
}

// Table entries are 8 bytes, each the system address of a rule.
const EntrySize = 8

// RoutingInit installs an image of n empty routes in both the hashed
// and non-hashed tables at the given offsets.
func (p *Pipeline) RoutingInit(v6 bool, n int, hash, nhash uint32) error {
	op := OpIPv4RoutingInit
	if v6 {
		op = OpIPv6RoutingInit
	}
	return p.tableInit(op, nil, n, hash, nhash)
}

// FilterInit installs an empty filter image for the pipes in bitmap:
// a header entry holding the bitmap followed by one empty entry per
// pipe.
func (p *Pipeline) FilterInit(v6 bool, bitmap uint32, hash, nhash uint32) error {
	op := OpIPv4FilterInit
	if v6 {
		op = OpIPv6FilterInit
	}
	hdr := uint64(bitmap) << 1
	n := 0
	for b := bitmap; b != 0; b &= b - 1 {
		n++
	}
	return p.tableInit(op, &hdr, n, hash, nhash)
}

func (p *Pipeline) tableInit(op Opcode, hdr *uint64, n int, hash, nhash uint32) error {
	entries := n
	if hdr != nil {
		entries++
	}
	size := entries * EntrySize
	// The image is followed by the zero rule its entries point at.
	return p.withBuffer(size+EntrySize, func(buf *Buffer) Payload {
		rule := buf.Addr + uint64(size)
		b := buf.Data
		if hdr != nil {
			binary.LittleEndian.PutUint64(b, *hdr)
			b = b[EntrySize:]
		}
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint64(b[i*EntrySize:], rule)
		}
		return &TableInit{
			Op:         op,
			HashAddr:   buf.Addr,
			HashSize:   uint16(size),
			HashLocal:  p.local(hash),
			NhashAddr:  buf.Addr,
			NhashSize:  uint16(size),
			NhashLocal: p.local(nhash),
		}
	})
}

// PacketInit directs the next packet on the command pipe to dst.
func (p *Pipeline) PacketInit(dst uint8) error {
	return p.Send(NewDesc(&IPPacketInit{DstPipe: dst}))
}

// RegisterWrite updates the mask bits of the register at offset in
// order with the other commands.
func (p *Pipeline) RegisterWrite(offset, value, mask uint32) error {
	return p.Send(NewDesc(&RegisterWrite{
		Offset: offset,
		Value:  value,
		Mask:   mask,
	}))
}
