// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package ipa

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/platinasystems/ipa/internal/endpoint"
	"github.com/platinasystems/ipa/internal/imm"
	"github.com/platinasystems/ipa/internal/pipe"
	"github.com/platinasystems/ipa/internal/reg"
	"github.com/platinasystems/ipa/internal/rsrc"
	"github.com/platinasystems/ipa/internal/sim"
)

const lanCons, wanCons = 9, 10

func newEngine(t *testing.T, s *sim.Hardware, up bool) *Engine {
	e, err := New(Simulated(s), Config{Name: "test"})
	if err != nil {
		t.Fatal(err)
	}
	if up {
		if err = e.PostInit(); err != nil {
			t.Fatal(err)
		}
	}
	return e
}

func (e *Engine) wait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.pipes.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if err := e.exec.Wait(ctx); err != nil {
		t.Fatal(err)
	}
}

// idle drops the proxy vote and waits for the engine to switch off.
func (e *Engine) idle(t *testing.T) {
	e.ProxyUnvote()
	e.wait(t)
	if n := e.ActiveClients(); n != 0 {
		t.Fatalf("got %d clients want 0", n)
	}
}

func TestProbe(t *testing.T) {
	s := sim.Default()
	e := newEngine(t, s, false)
	r := reg.New(s.Regs)

	if v := r.Read(reg.Bcr); v != BcrValue {
		t.Errorf("BCR: got %#x want %#x", v, BcrValue)
	}
	var w reg.QsbMaxWritesFields
	r.ReadFields(reg.QsbMaxWrites, &w)
	if w.Qmb0 != 8 || w.Qmb1 != 4 {
		t.Errorf("QSB writes: got %+v", w)
	}
	var rd reg.QsbMaxReadsFields
	r.ReadFields(reg.QsbMaxReads, &rd)
	if rd.Qmb0 != 8 || rd.Qmb1 != 12 {
		t.Errorf("QSB reads: got %+v", rd)
	}
	var idle reg.IdleIndication
	r.ReadFields(reg.IdleIndicationCfg, &idle)
	if idle.EnterIdleDebounceThresh != 256 || idle.ConstNonIdleEnable {
		t.Errorf("idle indication: got %+v", idle)
	}
	if !s.Clock.On() {
		t.Error("clock off after probe")
	}
	for _, b := range []*sim.Bus{s.Memory, s.Imem, s.Cfg} {
		if avg, _ := b.Bandwidth(); avg == 0 {
			t.Error("interconnect path not voted")
		}
	}
	if n := e.ActiveClients(); n != 1 {
		t.Errorf("got %d clients want 1", n)
	}
	if base, size := e.SharedMem(); base != 0 || size != sim.DefaultSmemSize {
		t.Errorf("shared memory: got %#x at %#x", size, base)
	}

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if s.Clock.On() {
		t.Error("clock on after close")
	}
	if n := s.DMA.InUse(); n != 0 {
		t.Errorf("got %d DMA buffers in use after close", n)
	}
}

func TestProbeErrors(t *testing.T) {
	for _, x := range []struct {
		name string
		hw   *sim.Hardware
		cfg  Config
		want error
	}{
		{
			name: "no filter pipes",
			hw:   sim.Default(),
			cfg: Config{Endpoints: endpoint.Source{
				endpoint.AppsCmdProd: endpoint.V3_5_1[endpoint.AppsCmdProd],
				endpoint.AppsLanCons: endpoint.V3_5_1[endpoint.AppsLanCons],
				endpoint.AppsWanCons: endpoint.V3_5_1[endpoint.AppsWanCons],
			}},
			want: ErrNoFilterPipes,
		},
		{
			name: "too many pipes",
			hw:   sim.New(33, sim.DefaultSmemSize, 0),
			want: ErrTooManyPipes,
		},
		{
			name: "small shared memory",
			hw:   sim.New(sim.DefaultPipes, 0x1000, 0),
			want: rsrc.ErrLayout,
		},
		{
			name: "no DMA memory",
			hw: func() *sim.Hardware {
				s := sim.Default()
				s.DMA.SetLimit(0)
				return s
			}(),
			want: imm.ErrNoMem,
		},
	} {
		_, err := New(Simulated(x.hw), x.cfg)
		if !errors.Is(err, x.want) {
			t.Errorf("%s: got %v want %v", x.name, err, x.want)
		}
		if x.hw.Clock.On() {
			t.Errorf("%s: clock left on", x.name)
		}
		if on, off := x.hw.Clock.Counts(); on != off {
			t.Errorf("%s: %d enables %d disables", x.name, on, off)
		}
	}
}

func TestPostInit(t *testing.T) {
	s := sim.Default()
	r := reg.New(s.Regs)
	for _, n := range []uint32{3, 7, lanCons} {
		r.WriteN(reg.EndpFilterRouterHshCfg, n, 0x007f007f)
	}
	e := newEngine(t, s, true)
	l := &rsrc.LayoutV3_5_1

	if err := l.CheckCanaries(r, 0); err != nil {
		t.Error(err)
	}
	for _, op := range []imm.Opcode{
		imm.OpIPv4RoutingInit,
		imm.OpIPv6RoutingInit,
		imm.OpIPv4FilterInit,
		imm.OpIPv6FilterInit,
		imm.OpHdrInitLocal,
		imm.OpDmaSharedMem,
	} {
		if n := s.GSI.Count(op); n != 1 {
			t.Errorf("%v: got %d commands want 1", op, n)
		}
	}
	if v := s.SRAM(l.V4FltHash.Offset); v != 0xcd<<1 {
		t.Errorf("v4 filter header: got %#x want %#x", v, 0xcd<<1)
	}
	if v := s.SRAM(l.V6RtNhash.Offset); v == 0 {
		t.Error("v6 routing table empty")
	}

	for n, want := range map[uint32]uint32{
		// Modem filter pipe, modem route index.
		3: 0x007f007f,
		// AP filter pipe, modem route index.
		7: 0x007f0000,
		// Not filtering, AP route index.
		lanCons: 0x0000007f,
	} {
		if v := r.ReadN(reg.EndpFilterRouterHshCfg, n); v != want {
			t.Errorf("hash tuple %d: got %#x want %#x", n, v, want)
		}
	}

	var route reg.RouteFields
	r.ReadFields(reg.Route, &route)
	if route.DefPipe != lanCons || route.FragDefPipe != lanCons ||
		!route.DefHdrTable || !route.DefRetainHdr {
		t.Errorf("route: got %+v", route)
	}
	var hdr reg.Hdr
	r.ReadFieldsN(reg.EndpInitHdr, lanCons, &hdr)
	if hdr.Len != LanRxHeaderLen {
		t.Errorf("LAN header length: got %d want %d", hdr.Len,
			LanRxHeaderLen)
	}
	var mode reg.ModeFields
	r.ReadFieldsN(reg.EndpInitMode, 5, &mode)
	if mode.Mode != reg.ModeDma || mode.DstPipe != lanCons {
		t.Errorf("command pipe mode: got %+v", mode)
	}
	if v := r.ReadN(reg.EndpInitSeq, 5); v != uint32(endpoint.SeqDmaOnly) {
		t.Errorf("command pipe sequencer: got %#x", v)
	}
	if v := r.ReadN(reg.SuspendIrqEnEE, reg.EEAp); v&(1<<lanCons) == 0 {
		t.Errorf("suspend interrupt mask %#x lacks LAN consumer", v)
	}

	if c, ok := e.ClientForPipe(lanCons); !ok || c != endpoint.AppsLanCons {
		t.Errorf("pipe %d: got %v %v", lanCons, c, ok)
	}
	if !s.GSI.Started(e.Endpoint(5).Handle) {
		t.Error("command channel not started")
	}
	e.wait(t)
	if n := e.ActiveClients(); n != 1 {
		t.Errorf("got %d clients want the proxy vote", n)
	}
	if err := e.PostInit(); err != ErrUp {
		t.Errorf("got %v want %v", err, ErrUp)
	}

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if s.Clock.On() {
		t.Error("clock on after close")
	}
	if _, ok := e.ClientForPipe(lanCons); ok {
		t.Error("LAN consumer set up after close")
	}
}

func TestPostInitRollback(t *testing.T) {
	s := sim.Default()
	e := newEngine(t, s, false)
	defer e.Close()
	s.GSI.Fail(sim.ErrInjected)
	err := e.PostInit()
	if !errors.Is(err, sim.ErrInjected) {
		t.Fatalf("got %v want %v", err, sim.ErrInjected)
	}
	if _, ok := e.ClientForPipe(e.PipeForClient(endpoint.AppsCmdProd)); ok {
		t.Error("command pipe left set up")
	}

	err = e.rollback(sim.ErrInjected, Handle(lanCons))
	if !errors.Is(err, sim.ErrInjected) ||
		!strings.Contains(err.Error(), "rollback") {
		t.Errorf("got %v want rollback failure reported", err)
	}

	s.GSI.Fail(nil)
	if err = e.PostInit(); err != nil {
		t.Fatal(err)
	}
}

func TestClients(t *testing.T) {
	s := sim.Default()
	e := newEngine(t, s, true)
	defer e.Close()
	r := reg.New(s.Regs)
	suspended := func() bool {
		var ctrl reg.Ctrl
		r.ReadFieldsN(reg.EndpInitCtrl, lanCons, &ctrl)
		return ctrl.Suspend
	}

	e.idle(t)
	if s.Clock.On() || !suspended() {
		t.Fatal("idle engine still on")
	}
	if s.GSI.Intr(e.Endpoint(lanCons).Handle) {
		t.Error("idle LAN consumer interrupt enabled")
	}
	if e.AddClientIfActive() {
		t.Fatal("AddClientIfActive enabled the engine")
	}

	e.AddClient()
	if !s.Clock.On() || suspended() {
		t.Fatal("engine not on after AddClient")
	}
	if !s.GSI.Intr(e.Endpoint(lanCons).Handle) {
		t.Error("LAN consumer interrupt masked")
	}
	if !e.AddClientIfActive() {
		t.Fatal("AddClientIfActive failed on active engine")
	}
	e.RemoveClient()
	if !s.Clock.On() {
		t.Error("clock off with a client left")
	}
	e.RemoveClientWait()
	if s.Clock.On() || !suspended() {
		t.Error("engine on after the last RemoveClientWait")
	}

	e.ProxyVote()
	e.ProxyVote()
	if n := e.ActiveClients(); n != 1 {
		t.Errorf("got %d clients want 1", n)
	}
}

func TestSuspendInterrupt(t *testing.T) {
	s := sim.Default()
	e := newEngine(t, s, true)
	defer e.Close()
	r := reg.New(s.Regs)
	e.idle(t)

	r.WriteN(reg.IrqSuspendInfoEE, reg.EEAp, 1<<lanCons|1<<12)
	e.HandleInterrupt(TxSuspend)
	if v := r.ReadN(reg.SuspendIrqClrEE, reg.EEAp); v != 1<<lanCons|1<<12 {
		t.Errorf("suspend clear: got %#x", v)
	}
	e.wait(t)
	if n := e.ActiveClients(); n != 1 {
		t.Fatalf("got %d clients want 1", n)
	}
	if !s.Clock.On() {
		t.Error("clock off while polling")
	}
	if err := e.SuspendCheck(); !errors.Is(err, pipe.ErrBusy) {
		t.Errorf("got %v want %v", err, pipe.ErrBusy)
	}

	e.ExitPoll(lanCons)
	e.wait(t)
	if n := e.ActiveClients(); n != 0 {
		t.Errorf("got %d clients want 0", n)
	}
	if err := e.SuspendCheck(); err != nil {
		t.Error(err)
	}
}

func TestSuspendInterruptWorkers(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := sim.Default()
		e, err := New(Simulated(s), Config{Name: "test", Workers: 4})
		if err != nil {
			t.Fatal(err)
		}
		if err = e.PostInit(); err != nil {
			t.Fatal(err)
		}
		e.idle(t)

		reg.New(s.Regs).WriteN(reg.IrqSuspendInfoEE, reg.EEAp, 1<<lanCons)
		e.HandleInterrupt(TxSuspend)
		e.ExitPoll(lanCons)
		e.wait(t)
		if n := e.ActiveClients(); n != 0 {
			t.Fatalf("%d: got %d clients want 0", i, n)
		}
		if s.Clock.On() {
			t.Fatalf("%d: clock on after poll exit", i)
		}
		if err = e.Close(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestTeardownPolling(t *testing.T) {
	s := sim.Default()
	e := newEngine(t, s, true)
	defer e.Close()

	wan, err := e.SetupPipe(ConnectParams{Client: endpoint.AppsWanCons})
	if err != nil {
		t.Fatal(err)
	}
	e.idle(t)
	reg.New(s.Regs).WriteN(reg.IrqSuspendInfoEE, reg.EEAp, 1<<uint32(wan))
	e.HandleInterrupt(TxSuspend)
	e.wait(t)
	if err = e.SuspendCheck(); !errors.Is(err, pipe.ErrBusy) {
		t.Fatalf("got %v want %v", err, pipe.ErrBusy)
	}

	if err = e.TeardownPipe(wan); err != nil {
		t.Fatal(err)
	}
	e.wait(t)
	if err = e.SuspendCheck(); err != nil {
		t.Error(err)
	}
	if n := e.ActiveClients(); n != 0 {
		t.Errorf("got %d clients want 0", n)
	}
	if s.Clock.On() {
		t.Error("clock on after polling pipe torn down")
	}
}

func TestSetupSuspendConcurrent(t *testing.T) {
	s := sim.Default()
	e := newEngine(t, s, true)
	defer e.Close()
	r := reg.New(s.Regs)
	wanPipe := e.PipeForClient(endpoint.AppsWanCons)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			wan, err := e.SetupPipe(ConnectParams{
				Client: endpoint.AppsWanCons,
			})
			if err != nil {
				t.Error(err)
				return
			}
			if err = e.TeardownPipe(wan); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	for i := 0; i < 100; i++ {
		r.WriteN(reg.IrqSuspendInfoEE, reg.EEAp, 1<<wanPipe)
		e.HandleInterrupt(TxSuspend)
		e.SuspendCheck()
		e.ExitPoll(Handle(wanPipe))
	}
	<-done
	e.ExitPoll(Handle(wanPipe))
	e.wait(t)
	if err := e.SuspendCheck(); err != nil {
		t.Error(err)
	}
}

func TestConfigureEndpoint(t *testing.T) {
	s := sim.Default()
	e := newEngine(t, s, true)
	defer e.Close()
	r := reg.New(s.Regs)

	wanProd, err := e.SetupPipe(ConnectParams{
		Client: endpoint.AppsWanProd,
		Cfg: endpoint.Cfg{
			Aggr: reg.Aggr{En: reg.AggrDeaggr},
			Mode: endpoint.ModeCfg{
				Mode: reg.ModeDma,
				Dst:  endpoint.AppsWanCons,
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	var mode reg.ModeFields
	r.ReadFieldsN(reg.EndpInitMode, uint32(wanProd), &mode)
	if mode.Mode != reg.ModeDma || mode.DstPipe != wanCons {
		t.Errorf("mode: got %+v", mode)
	}
	if v := r.ReadN(reg.EndpInitSeq, uint32(wanProd)); v !=
		uint32(endpoint.Seq2ndPktProcessPassNoDecUcp) {
		t.Errorf("sequencer: got %#x", v)
	}
	if ep := e.Endpoint(uint32(wanProd)); ep.DstPipe != wanCons ||
		ep.Cfg.Aggr.En != reg.AggrDeaggr {
		t.Errorf("snapshot: got dst %d %+v", ep.DstPipe, ep.Cfg)
	}

	wan, err := e.SetupPipe(ConnectParams{
		Client: endpoint.AppsWanCons,
		Cfg: endpoint.Cfg{
			MetadataMask: reg.MetadataMask{Mask: 0xff000000},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if v := r.ReadN(reg.EndpInitHdrMetadataMask, wanCons); v != 0xff000000 {
		t.Errorf("metadata mask: got %#x", v)
	}
	err = e.ConfigureEndpoint(uint32(wan), endpoint.Cfg{
		Aggr: reg.Aggr{En: reg.AggrDeaggr},
	})
	if !errors.Is(err, ErrNoDeaggr) {
		t.Errorf("got %v want %v", err, ErrNoDeaggr)
	}

	for name, x := range map[string]struct {
		pipe uint32
		cfg  endpoint.Cfg
	}{
		"consumer mode": {uint32(wan), endpoint.Cfg{
			Mode: endpoint.ModeCfg{Mode: reg.ModeBasic,
				Dst: endpoint.AppsLanCons},
		}},
		"dma to producer": {uint32(wanProd), endpoint.Cfg{
			Mode: endpoint.ModeCfg{Mode: reg.ModeDma,
				Dst: endpoint.AppsLanProd},
		}},
		"invalid pipe": {30, endpoint.Cfg{}},
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%s: expected panic", name)
				}
			}()
			e.ConfigureEndpoint(x.pipe, x.cfg)
		}()
	}

	for _, h := range []Handle{wanProd, wan} {
		if err = e.TeardownPipe(h); err != nil {
			t.Fatal(err)
		}
		if _, ok := e.ClientForPipe(uint32(h)); ok {
			t.Errorf("pipe %d set up after teardown", h)
		}
	}
	if err = e.TeardownPipe(wan); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("got %v want %v", err, ErrInvalidHandle)
	}
}

func TestTeardownBusy(t *testing.T) {
	s := sim.Default()
	e := newEngine(t, s, true)
	defer e.Close()

	wan, err := e.SetupPipe(ConnectParams{Client: endpoint.AppsWanCons})
	if err != nil {
		t.Fatal(err)
	}
	ch := e.Endpoint(uint32(wan)).Handle
	s.GSI.SetBusy(ch, -1)
	if err = e.TeardownPipe(wan); !errors.Is(err, pipe.ErrStopRetries) {
		t.Fatalf("got %v want %v", err, pipe.ErrStopRetries)
	}
	if _, ok := e.ClientForPipe(uint32(wan)); !ok {
		t.Error("pipe released after failed stop")
	}
	if n := s.GSI.Count(imm.OpDmaTask32bAddr); n != DefaultConfig().StopRetries {
		t.Errorf("got %d flushes want %d", n, DefaultConfig().StopRetries)
	}

	s.GSI.SetBusy(ch, 2)
	if err = e.TeardownPipe(wan); err != nil {
		t.Fatal(err)
	}
}

func TestModemMemory(t *testing.T) {
	s := sim.Default()
	e := newEngine(t, s, true)
	defer e.Close()
	r := reg.New(s.Regs)
	l := &rsrc.LayoutV3_5_1

	last := l.Modem.End() - 4
	r.WriteN(reg.SramDirectAccess, last/4, 0x12345678)
	if err := e.InitModemMemory(); err != nil {
		t.Fatal(err)
	}
	if v := s.SRAM(last); v != 0 {
		t.Errorf("modem memory: got %#x want 0", v)
	}
	if err := l.CheckCanaries(r, 0); err != nil {
		t.Error(err)
	}
}

func TestClockVote(t *testing.T) {
	s := sim.Default()
	e := newEngine(t, s, true)
	defer e.Close()

	e.HandleInterrupt(ClockQuery)
	if !s.PeerValid.On() || !s.PeerOn.On() {
		t.Error("clock vote not published")
	}
	if n := e.ActiveClients(); n != 2 {
		t.Errorf("got %d clients want 2", n)
	}
	if err := e.FreezeClockVote(); err != nil {
		t.Fatal(err)
	}
	if n := e.ActiveClients(); n != 2 {
		t.Errorf("second freeze: got %d clients want 2", n)
	}
	if err := e.ResetClockVote(); err != nil {
		t.Fatal(err)
	}
	if s.PeerValid.On() || s.PeerOn.On() {
		t.Error("clock vote not reset")
	}

	e.idle(t)
	if err := e.FreezeClockVote(); err != nil {
		t.Fatal(err)
	}
	if !s.PeerValid.On() || s.PeerOn.On() {
		t.Error("idle engine published as on")
	}
	if n := e.ActiveClients(); n != 0 {
		t.Errorf("got %d clients want 0", n)
	}
}

func TestPeerPostInit(t *testing.T) {
	s := sim.Default()
	e := newEngine(t, s, false)
	defer e.Close()

	e.HandleInterrupt(PeerPostInit)
	e.wait(t)
	if _, ok := e.ClientForPipe(lanCons); !ok {
		t.Error("LAN consumer not set up")
	}
	e.HandleInterrupt(PeerPostInit)
	e.wait(t)
	if n := s.GSI.Count(imm.OpIPv4RoutingInit); n != 1 {
		t.Errorf("got %d routing inits want 1", n)
	}
}

func TestWakeLock(t *testing.T) {
	s := sim.Default()
	e := newEngine(t, s, false)
	defer e.Close()

	e.WakeLock()
	e.WakeLock()
	e.WakeUnlock()
	if !s.Wake.Held() {
		t.Error("wake source released with a holder")
	}
	e.WakeUnlock()
	if s.Wake.Held() {
		t.Error("wake source held after last unlock")
	}
}
