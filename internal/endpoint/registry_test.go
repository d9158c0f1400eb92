// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package endpoint

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestPipeForClient(t *testing.T) {
	for name, src := range map[string]Source{
		"v3.5.1":      V3_5_1,
		"v3.5.1-test": V3_5_1Test,
	} {
		r, err := New(src)
		if err != nil {
			t.Fatal(name, err)
		}
		seen := make(map[uint32]Client)
		for _, c := range r.Clients() {
			pipe := r.PipeForClient(c)
			if pipe != src[c].Pipe {
				t.Errorf("%s %v: got pipe %d want %d", name, c, pipe,
					src[c].Pipe)
			}
			if other, dup := seen[pipe]; dup {
				t.Errorf("%s: %v and %v share pipe %d", name, c,
					other, pipe)
			}
			seen[pipe] = c
		}
		if len(seen) != len(src) {
			t.Errorf("%s: got %d pipes want %d", name, len(seen),
				len(src))
		}
	}
}

func TestPipeForInvalidClient(t *testing.T) {
	r, err := New(V3_5_1)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []Client{Hsic1Prod, MhiCons, TestProd, NClient, 1000} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%v: expected panic", c)
				}
			}()
			r.PipeForClient(c)
		}()
	}
}

func TestDuplicatePipe(t *testing.T) {
	src := Source{
		TestProd:  V3_5_1Test[TestProd],
		Test1Prod: V3_5_1Test[TestProd],
	}
	if _, err := New(src); !errors.Is(err, ErrConfig) {
		t.Errorf("got %v want %v", err, ErrConfig)
	}
}

func TestFilterBitmap(t *testing.T) {
	r, err := New(V3_5_1)
	if err != nil {
		t.Fatal(err)
	}
	want := uint32(1<<7 | 1<<0 | 1<<2 | 1<<3 | 1<<6)
	if got := r.FilterBitmap(); got != want {
		t.Errorf("got %#x want %#x", got, want)
	}
	if got := r.FilterCount(); got != 5 {
		t.Errorf("got %d want 5", got)
	}
	for pipe, want := range map[uint32]bool{3: true, 4: true, 13: true,
		12: true, 9: false, 5: false, 30: false} {
		if got := r.IsModemPipe(pipe); got != want {
			t.Errorf("pipe %d modem: got %v want %v", pipe, got, want)
		}
	}
}

func TestTable(t *testing.T) {
	r, _ := New(V3_5_1)
	tbl := NewTable()
	cfg, _ := r.Config(AppsLanCons)
	ep, err := tbl.Bind(AppsLanCons, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = tbl.Bind(AppsLanCons, cfg, nil); err == nil {
		t.Error("expected second bind to fail")
	}
	if got := tbl.ClientForPipe(ep.Pipe); got != AppsLanCons {
		t.Errorf("got %v want %v", got, AppsLanCons)
	}
	if _, ok := tbl.Handle(ep.Pipe); ok {
		t.Error("handle before a channel is set")
	}
	tbl.SetHandle(ep.Pipe, 3)
	if ch, ok := tbl.Handle(ep.Pipe); !ok || ch != 3 {
		t.Errorf("handle: got %v %v want 3 true", ch, ok)
	}
	if !tbl.SetPolling(ep.Pipe, AppsLanCons, true) || !ep.Polling() {
		t.Error("bound pipe not polling")
	}
	if tbl.SetPolling(ep.Pipe, AppsWanCons, false) || !ep.Polling() {
		t.Error("polling changed for another client")
	}
	tbl.Unbind(ep.Pipe)
	if _, valid := tbl.Lookup(ep.Pipe); valid {
		t.Error("pipe still valid after unbind")
	}
	if _, ok := tbl.Handle(ep.Pipe); ok {
		t.Error("handle left after unbind")
	}
	if ep.Polling() {
		t.Error("polling left after unbind")
	}
	if tbl.SetPolling(ep.Pipe, AppsLanCons, true) {
		t.Error("unbound pipe set polling")
	}
	n := 0
	tbl.Range(func(*Endpoint) { n++ })
	if n != 0 {
		t.Errorf("got %d valid endpoints want 0", n)
	}
}

func TestTableConcurrent(t *testing.T) {
	r, _ := New(V3_5_1)
	tbl := NewTable()
	cfg, _ := r.Config(AppsWanCons)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if _, err := tbl.Bind(AppsWanCons, cfg, nil); err != nil {
				t.Error(err)
				return
			}
			tbl.SetHandle(cfg.Pipe, 1)
			tbl.Unbind(cfg.Pipe)
		}
	}()
	for i := 0; i < 1000; i++ {
		tbl.SetPolling(cfg.Pipe, AppsWanCons, true)
		tbl.Handle(cfg.Pipe)
		tbl.Range(func(ep *Endpoint) {
			if ep.Polling() && ep.Pipe != cfg.Pipe {
				t.Errorf("pipe %d polling", ep.Pipe)
			}
		})
	}
	wg.Wait()
	if tbl.Get(cfg.Pipe).Polling() {
		t.Error("polling left after unbind")
	}
}

func TestClassification(t *testing.T) {
	for _, x := range []struct {
		c                Client
		producer, apCons bool
	}{
		{AppsCmdProd, true, false},
		{AppsLanCons, false, true},
		{AppsWanCons, false, true},
		{Q6WanCons, false, false},
		{DummyCons, false, false},
	} {
		if got := x.c.IsProducer(); got != x.producer {
			t.Errorf("%v producer: got %v want %v", x.c, got, x.producer)
		}
		if got := x.c.IsApConsumer(); got != x.apCons {
			t.Errorf("%v ap consumer: got %v want %v", x.c, got, x.apCons)
		}
	}
}

func ExampleRegistry_PipeForClient() {
	r, _ := New(V3_5_1)
	for _, c := range []Client{AppsCmdProd, AppsLanCons, AppsWanCons} {
		fmt.Println(c, r.PipeForClient(c))
	}
	// Output:
	// APPS_CMD_PROD 5
	// APPS_LAN_CONS 9
	// APPS_WAN_CONS 10
}
