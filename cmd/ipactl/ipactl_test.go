// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package ipactl

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/platinasystems/ipa/cmd"
	"github.com/platinasystems/ipa/internal/sim"
)

func run(t *testing.T, hw *sim.Hardware, args ...string) map[string]string {
	var buf bytes.Buffer
	c := &Command{Stdout: &buf, Hardware: hw}
	if err := c.Main(args...); err != nil {
		t.Fatal(err)
	}
	report := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			t.Fatalf("%q: not NAME=VALUE", line)
		}
		report[kv[0]] = kv[1]
	}
	return report
}

func TestReport(t *testing.T) {
	report := run(t, nil, "-clients", "8", "-busy", "3")
	for name, want := range map[string]string{
		"engine":                          Name,
		"version":                         "3.5.1",
		"shared_mem":                      "0x2000@0x0",
		"teardown":                        "ok",
		"active_clients":                  "1",
		"command.ip_v4_routing_init":      "1",
		"command.ip_v6_filter_init":       "1",
		"command.dma_task_32b_addr":       "3",
		"ipa_channel_stop_retries_total":  "3",
		"ipa_channel_stop_failures_total": "0",
		"ipa_clock_enables_total":         "1",
		"clock":                           "off",
	} {
		if got := report[name]; got != want {
			t.Errorf("%s: got %q want %q", name, got, want)
		}
	}
	if _, found := report["cmd.0"]; found {
		t.Error("commands listed without -v")
	}
}

func TestStopFails(t *testing.T) {
	report := run(t, nil, "-busy", "-1", "-timeout", "1s")
	if s := report["teardown"]; !strings.Contains(s, "retries exhausted") {
		t.Errorf("teardown: got %q", s)
	}
	if s := report["ipa_channel_stop_failures_total"]; s != "1" {
		t.Errorf("stop failures: got %q want %q", s, "1")
	}
}

func TestVerbose(t *testing.T) {
	hw := sim.Default()
	report := run(t, hw, "-v", "-test-clients")
	n := len(hw.GSI.Commands())
	if n == 0 {
		t.Fatal("no commands")
	}
	for i := 0; i < n; i++ {
		if _, found := report["cmd."+strconv.Itoa(i)]; !found {
			t.Errorf("command %d missing", i)
		}
	}
}

func TestArgs(t *testing.T) {
	for _, args := range [][]string{
		{"extra"},
		{"-clients", "many"},
		{"-timeout", "soon"},
	} {
		c := &Command{Stdout: &bytes.Buffer{}}
		if err := c.Main(args...); err == nil {
			t.Errorf("%q: expected error", args)
		}
	}
}

func TestProbeFails(t *testing.T) {
	c := &Command{
		Stdout:   &bytes.Buffer{},
		Hardware: sim.New(sim.DefaultPipes, 0x1000, 0),
	}
	if err := c.Main(); err == nil {
		t.Error("expected error from small shared memory")
	}
}

func TestHelp(t *testing.T) {
	c := new(Command)
	if s := cmd.Help(c, "usage"); !strings.Contains(s, "-clients N") {
		t.Errorf("usage: %q", s)
	}
	if s := cmd.Help(c, "man"); !strings.Contains(s, "DESCRIPTION") {
		t.Errorf("man: %q", s)
	}
	args := []string{Name, "-man"}
	cmd.Swap(args)
	if args[0] != "man" || args[1] != Name {
		t.Errorf("swap: got %q", args)
	}
}
