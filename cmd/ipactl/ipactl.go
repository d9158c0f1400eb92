// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package ipactl brings up a simulated engine and reports its state.
package ipactl

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/ipa"
	"github.com/platinasystems/ipa/cmd"
	"github.com/platinasystems/ipa/internal/endpoint"
	"github.com/platinasystems/ipa/internal/imm"
	"github.com/platinasystems/ipa/internal/lang"
	"github.com/platinasystems/ipa/internal/sim"
	"github.com/platinasystems/parms"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const Name = "ipactl"

var _ cmd.Cmd = (*Command)(nil)

type Command struct {
	// Stdout receives the report; os.Stdout if nil.
	Stdout io.Writer
	// Hardware is brought up instead of a default simulated engine.
	Hardware *sim.Hardware
}

func (*Command) String() string { return Name }

func (*Command) Usage() string {
	return Name + " [-v] [-test-clients] [-clients N] [-busy N] [-timeout DURATION]"
}

func (*Command) Apropos() lang.Alt {
	return lang.Alt{
		lang.EnUS: "bring up a simulated offload engine",
	}
}

func (*Command) Man() lang.Alt {
	return lang.Alt{
		lang.EnUS: `
DESCRIPTION
	Probe and post-initialize a simulated IPA v3.5.1 engine, then
	report its state, the immediate commands it executed and its
	counters.

OPTIONS
	-v	also list every immediate command
	-test-clients
		load the loopback test endpoint table
	-clients N
		add and remove N concurrent clients
	-busy N
		set up the WAN consumer, fail its next N channel stops
		and tear it down; -1 fails every stop
	-timeout DURATION
		immediate command timeout

	The report is aligned on a terminal and NAME=VALUE otherwise.`,
	}
}

type row struct{ name, value string }

func (c *Command) Main(args ...string) error {
	flag, args := flags.New(args, "-v", "-test-clients")
	parm, args := parms.New(args, "-clients", "-busy", "-timeout")
	if len(args) > 0 {
		return fmt.Errorf("%v: unexpected", args)
	}
	nclients, err := atoi(parm.ByName["-clients"], 0)
	if err != nil {
		return fmt.Errorf("-clients: %w", err)
	}
	busy, err := atoi(parm.ByName["-busy"], 0)
	if err != nil {
		return fmt.Errorf("-busy: %w", err)
	}

	hw := c.Hardware
	if hw == nil {
		hw = sim.Default()
	}
	cfg := ipa.DefaultConfig()
	cfg.Name = Name
	if flag.ByName["-test-clients"] {
		cfg.Endpoints = endpoint.V3_5_1Test
	}
	if s := parm.ByName["-timeout"]; len(s) > 0 {
		if cfg.CommandTimeout, err = time.ParseDuration(s); err != nil {
			return fmt.Errorf("-timeout: %w", err)
		}
	}
	registry := prometheus.NewRegistry()
	cfg.Registerer = registry

	e, err := ipa.New(ipa.Simulated(hw), cfg)
	if err != nil {
		return err
	}
	rows, err := c.run(e, hw, nclients, busy, parm.ByName["-busy"] != "")
	if err == nil {
		var mrows []row
		if mrows, err = gather(registry); err == nil {
			rows = append(rows, mrows...)
		}
	}
	if err == nil && flag.ByName["-v"] {
		for i, d := range hw.GSI.Commands() {
			rows = append(rows, row{fmt.Sprint("cmd.", i), d.String()})
		}
	}
	if cerr := e.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	rows = append(rows, row{"clock", onOff(hw.Clock.On())})
	return c.write(rows)
}

func (c *Command) run(e *ipa.Engine, hw *sim.Hardware, nclients, busy int,
	teardown bool) ([]row, error) {
	if err := e.PostInit(); err != nil {
		return nil, err
	}

	var g errgroup.Group
	for i := 0; i < nclients; i++ {
		i := i
		g.Go(func() error {
			e.AddClient()
			defer e.RemoveClient()
			if !e.AddClientIfActive() {
				return fmt.Errorf("client %d: engine off while held", i)
			}
			e.RemoveClient()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	base, size := e.SharedMem()
	rows := []row{
		{"engine", e.String()},
		{"id", e.ID().String()},
		{"version", ipa.Version},
		{"shared_mem", fmt.Sprintf("%#x@%#x", size, base)},
	}
	if teardown {
		rows = append(rows, row{"teardown", stopBusy(e, hw, busy)})
	}
	rows = append(rows, row{"active_clients",
		fmt.Sprint(e.ActiveClients())})
	for _, op := range []imm.Opcode{
		imm.OpIPv4FilterInit,
		imm.OpIPv6FilterInit,
		imm.OpIPv4RoutingInit,
		imm.OpIPv6RoutingInit,
		imm.OpHdrInitLocal,
		imm.OpDmaTask32bAddr,
		imm.OpDmaSharedMem,
	} {
		rows = append(rows, row{"command." + op.String(),
			fmt.Sprint(hw.GSI.Count(op))})
	}
	return rows, nil
}

// stopBusy sets up the WAN consumer and tears it down with its channel
// refusing busy stops.
func stopBusy(e *ipa.Engine, hw *sim.Hardware, busy int) string {
	h, err := e.SetupPipe(ipa.ConnectParams{Client: endpoint.AppsWanCons})
	if err != nil {
		return err.Error()
	}
	ch := e.Endpoint(uint32(h)).Handle
	hw.GSI.SetBusy(ch, busy)
	if err = e.TeardownPipe(h); err == nil {
		return "ok"
	}
	hw.GSI.SetBusy(ch, 0)
	if rerr := e.TeardownPipe(h); rerr != nil {
		return rerr.Error()
	}
	return err.Error()
}

func gather(g prometheus.Gatherer) ([]row, error) {
	mfs, err := g.Gather()
	if err != nil {
		return nil, err
	}
	var rows []row
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			var v float64
			switch {
			case m.Counter != nil:
				v = m.GetCounter().GetValue()
			case m.Gauge != nil:
				v = m.GetGauge().GetValue()
			default:
				continue
			}
			rows = append(rows, row{mf.GetName(),
				strconv.FormatFloat(v, 'f', -1, 64)})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })
	return rows, nil
}

func (c *Command) write(rows []row) error {
	w := c.Stdout
	if w == nil {
		w = os.Stdout
	}
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		tw := tabwriter.NewWriter(f, 0, 8, 1, ' ', 0)
		for _, r := range rows {
			fmt.Fprintf(tw, "%s:\t%s\n", r.name, r.value)
		}
		return tw.Flush()
	}
	var sb strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&sb, "%s=%s\n", r.name, r.value)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func atoi(s string, def int) (int, error) {
	if len(s) == 0 {
		return def, nil
	}
	return strconv.Atoi(s)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
