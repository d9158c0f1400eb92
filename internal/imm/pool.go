// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package imm

import (
	"errors"
	"sync"
)

var ErrNoMem = errors.New("out of DMA memory")

// Buffer is DMA capable memory; Addr is the address the engine uses.
type Buffer struct {
	Addr uint64
	Data []byte
}

// Allocator provides the transient command buffers.
type Allocator interface {
	Alloc(size int) (*Buffer, error)
	Free(b *Buffer)
}

// Pool is an Allocator over ordinary memory with a fixed byte limit.
// The engine side resolves addresses with Lookup.
type Pool struct {
	mu     sync.Mutex
	limit  int
	used   int
	next   uint64
	byAddr map[uint64]*Buffer
}

// Buffers are 8 byte aligned in the engine's address space.
const poolBase = 0x1000_0000

func NewPool(limit int) *Pool {
	return &Pool{
		limit:  limit,
		next:   poolBase,
		byAddr: make(map[uint64]*Buffer),
	}
}

func (p *Pool) Alloc(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, errors.New("invalid DMA buffer size")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.used+size > p.limit {
		return nil, ErrNoMem
	}
	b := &Buffer{Addr: p.next, Data: make([]byte, size)}
	p.next += uint64(size+7) &^ 7
	p.used += size
	p.byAddr[b.Addr] = b
	return b, nil
}

func (p *Pool) Free(b *Buffer) {
	if b == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byAddr[b.Addr]; !ok {
		panic(errors.New("imm: free of unknown DMA buffer"))
	}
	delete(p.byAddr, b.Addr)
	p.used -= len(b.Data)
}

// Lookup returns the live buffer containing addr from addr on.
func (p *Pool) Lookup(addr uint64) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for base, b := range p.byAddr {
		if addr >= base && addr < base+uint64(len(b.Data)) {
			return b.Data[addr-base:], true
		}
	}
	return nil, false
}

// InUse returns the number of live buffers.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byAddr)
}

// SetLimit changes the byte limit.
func (p *Pool) SetLimit(limit int) {
	p.mu.Lock()
	p.limit = limit
	p.mu.Unlock()
}
