// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package imm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// queue completes descriptors from a goroutine in queue order unless
// hang is set.
type queue struct {
	pool *Pool
	hang bool

	mu   sync.Mutex
	got  []Desc
	imgs [][]byte
}

func (q *queue) Queue(descs []Desc, done func(error)) error {
	q.mu.Lock()
	q.got = append(q.got, descs...)
	for _, d := range descs {
		p, err := Decode(d)
		if err != nil {
			q.mu.Unlock()
			return err
		}
		if t, ok := p.(*TableInit); ok {
			b, _ := q.pool.Lookup(t.HashAddr)
			q.imgs = append(q.imgs, append([]byte(nil), b...))
		}
	}
	q.mu.Unlock()
	if !q.hang {
		go done(nil)
	}
	return nil
}

func newPipeline(t *testing.T, limit int) (*Pipeline, *Pool, *queue) {
	pool := NewPool(limit)
	p, err := New(Config{DMA: pool, SmemBase: 0x100})
	if err != nil {
		t.Fatal(err)
	}
	q := &queue{pool: pool}
	p.Attach(q)
	return p, pool, q
}

func TestOrder(t *testing.T) {
	p, pool, q := newPipeline(t, 1<<16)
	if err := p.ZeroSharedMem(0xbd8, 0x1024); err != nil {
		t.Fatal(err)
	}
	if err := p.HdrInitLocal(0x688, 0x140); err != nil {
		t.Fatal(err)
	}
	if err := p.RoutingInit(false, 15, 0x288, 0x308); err != nil {
		t.Fatal(err)
	}
	if err := p.FilterInit(true, 0x8d, 0x388, 0x408); err != nil {
		t.Fatal(err)
	}
	if err := p.InjectFlush(); err != nil {
		t.Fatal(err)
	}
	var got []Opcode
	for _, d := range q.got {
		got = append(got, d.Opcode)
	}
	want := []Opcode{OpDmaSharedMem, OpHdrInitLocal, OpIPv4RoutingInit,
		OpIPv6FilterInit, OpDmaTask32bAddr}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("got %v want %v", got, want)
	}
	if n := pool.InUse(); n != 1 {
		t.Errorf("got %d live buffers want 1 (flush)", n)
	}

	d, err := Decode(q.got[0])
	if err != nil {
		t.Fatal(err)
	}
	if dm := d.(*DmaSharedMem); dm.LocalAddr != 0x100+0xbd8 ||
		dm.Size != 0x1024 {
		t.Errorf("got local %#x size %#x", dm.LocalAddr, dm.Size)
	}
}

func TestTableImages(t *testing.T) {
	p, _, q := newPipeline(t, 1<<16)
	if err := p.RoutingInit(false, 15, 0x288, 0x308); err != nil {
		t.Fatal(err)
	}
	if err := p.FilterInit(false, 0x8d, 0x388, 0x408); err != nil {
		t.Fatal(err)
	}
	d, _ := Decode(q.got[0])
	rt := d.(*TableInit)
	if rt.HashSize != 15*EntrySize || rt.NhashSize != rt.HashSize {
		t.Errorf("routing image size: got %d/%d", rt.HashSize,
			rt.NhashSize)
	}
	img := q.imgs[0]
	zero := rt.HashAddr + uint64(rt.HashSize)
	for i := 0; i < 15; i++ {
		if e := binary.LittleEndian.Uint64(img[i*8:]); e != zero {
			t.Fatalf("route %d: got %#x want %#x", i, e, zero)
		}
	}

	d, _ = Decode(q.got[1])
	flt := d.(*TableInit)
	if want := uint16(5 * EntrySize); flt.HashSize != want {
		t.Errorf("filter image size: got %d want %d", flt.HashSize, want)
	}
	if hdr := binary.LittleEndian.Uint64(q.imgs[1]); hdr != 0x8d<<1 {
		t.Errorf("filter header: got %#x want %#x", hdr, 0x8d<<1)
	}
	if flt.HashLocal != 0x100+0x388 || flt.NhashLocal != 0x100+0x408 {
		t.Errorf("filter local: got %#x/%#x", flt.HashLocal,
			flt.NhashLocal)
	}
}

func TestTimeoutFreesBuffer(t *testing.T) {
	pool := NewPool(1 << 16)
	p, err := New(Config{
		DMA:     pool,
		Timeout: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	p.Attach(&queue{pool: pool, hang: true})
	if err = p.ZeroSharedMem(0, 64); !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v want %v", err, ErrTimeout)
	}
	if n := pool.InUse(); n != 1 {
		t.Errorf("got %d live buffers want 1", n)
	}
	if err = p.InjectFlush(); !errors.Is(err, ErrTimeout) {
		t.Errorf("flush: got %v want %v", err, ErrTimeout)
	}
}

func TestNoMem(t *testing.T) {
	p, pool, q := newPipeline(t, 64)
	if err := p.ZeroSharedMem(0, 0x1024); !errors.Is(err, ErrNoMem) {
		t.Fatalf("got %v want %v", err, ErrNoMem)
	}
	if len(q.got) != 0 {
		t.Errorf("got %d submitted commands want 0", len(q.got))
	}
	// The flush is reserved and still goes out.
	pool.SetLimit(0)
	if err := p.InjectFlush(); err != nil {
		t.Error("flush:", err)
	}
}

func TestNoTransport(t *testing.T) {
	p, pool, _ := newPipeline(t, 1<<10)
	p.Detach()
	if err := p.ZeroSharedMem(0, 8); !errors.Is(err, ErrNoTransport) {
		t.Errorf("got %v want %v", err, ErrNoTransport)
	}
	p.Close()
	if n := pool.InUse(); n != 0 {
		t.Errorf("got %d live buffers want 0", n)
	}
}

func TestZeroSizePanics(t *testing.T) {
	p, _, _ := newPipeline(t, 1<<10)
	defer func() {
		if recover() == nil {
			t.Error("zero length clear did not panic")
		}
	}()
	p.ZeroSharedMem(0x10, 0)
}

func ExampleDecode() {
	d := NewDesc(&IPPacketInit{DstPipe: 9})
	p, err := Decode(d)
	fmt.Println(d, p.(*IPPacketInit).DstPipe, err)
	// Output: ip_packet_init[8] 9 <nil>
}
