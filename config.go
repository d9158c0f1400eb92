// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package ipa

import (
	"time"

	"github.com/platinasystems/ipa/internal/endpoint"
	"github.com/platinasystems/ipa/internal/imm"
	"github.com/platinasystems/ipa/internal/pipe"
	"github.com/platinasystems/ipa/internal/rsrc"
	"github.com/prometheus/client_golang/prometheus"
)

const Version = "3.5.1"

// Values written at probe.
const (
	BcrValue           = 0x3b
	QsbMaxWritesQmb0   = 8
	QsbMaxWritesQmb1   = 4
	QsbMaxReadsQmb0    = 8
	QsbMaxReadsQmb1    = 12
	IdleDebounceThresh = 256
)

// Ring sizes of the pipes set up at post-init.
const (
	CmdProdRingCount = 256
	LanConsRingCount = 256
	LanRxHeaderLen   = 8
)

type Config struct {
	// Name prefixes log lines and labels metrics; an engine without one
	// is named after its id.
	Name string

	Endpoints endpoint.Source
	Layout    rsrc.Layout
	Limits    rsrc.Limits

	CommandTimeout time.Duration
	FlushTimeout   time.Duration

	StopRetries  int
	StopDelayMin time.Duration
	StopDelayMax time.Duration

	// Workers run deferred gate releases and post-init.
	Workers int

	// Registerer, if set, receives the engine's metrics.
	Registerer prometheus.Registerer
}

// DefaultConfig returns the configuration of a v3.5.1 engine.
func DefaultConfig() Config {
	return Config{
		Endpoints:      endpoint.V3_5_1,
		Layout:         rsrc.LayoutV3_5_1,
		Limits:         rsrc.LimitsV3_5_1,
		CommandTimeout: imm.DefaultTimeout,
		FlushTimeout:   imm.DefaultFlushTimeout,
		StopRetries:    pipe.DefaultStopRetries,
		StopDelayMin:   pipe.DefaultStopDelayMin,
		StopDelayMax:   pipe.DefaultStopDelayMax,
		Workers:        1,
	}
}

// defaults fills the zero fields of c from DefaultConfig.
func (c *Config) defaults() {
	def := DefaultConfig()
	if c.Endpoints == nil {
		c.Endpoints = def.Endpoints
	}
	if c.Layout == (rsrc.Layout{}) {
		c.Layout = def.Layout
	}
	if c.Limits == (rsrc.Limits{}) {
		c.Limits = def.Limits
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = def.CommandTimeout
	}
	if c.FlushTimeout == 0 {
		c.FlushTimeout = def.FlushTimeout
	}
	if c.StopRetries == 0 {
		c.StopRetries = def.StopRetries
	}
	if c.StopDelayMin == 0 {
		c.StopDelayMin = def.StopDelayMin
	}
	if c.StopDelayMax == 0 {
		c.StopDelayMax = def.StopDelayMax
	}
	if c.Workers == 0 {
		c.Workers = def.Workers
	}
}
