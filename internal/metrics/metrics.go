// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package metrics counts engine power and command events.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are per engine; every series carries the engine's id.
type Metrics struct {
	ClockEnables    prometheus.Counter
	ClockDisables   prometheus.Counter
	Commands        prometheus.Counter
	CommandTimeouts prometheus.Counter
	Flushes         prometheus.Counter
	StopRetries     prometheus.Counter
	StopFailures    prometheus.Counter
	SuspendIrqs     prometheus.Counter
	AggrForceCloses prometheus.Counter

	labels     prometheus.Labels
	collectors []prometheus.Collector
}

func New(engine string) *Metrics {
	m := &Metrics{labels: prometheus.Labels{"engine": engine}}
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ipa",
			Name:        name,
			Help:        help,
			ConstLabels: m.labels,
		})
		m.collectors = append(m.collectors, c)
		return c
	}
	m.ClockEnables = counter("clock_enables_total",
		"Number of times the first active client enabled the clocks")
	m.ClockDisables = counter("clock_disables_total",
		"Number of times the last active client disabled the clocks")
	m.Commands = counter("immediate_commands_total",
		"Number of immediate command submissions")
	m.CommandTimeouts = counter("immediate_command_timeouts_total",
		"Number of immediate command submissions that timed out")
	m.Flushes = counter("flush_injections_total",
		"Number of 1-byte DMA tasks injected to drain a stopping channel")
	m.StopRetries = counter("channel_stop_retries_total",
		"Number of busy channel stop attempts that were retried")
	m.StopFailures = counter("channel_stop_failures_total",
		"Number of channel stops that exhausted their retries")
	m.SuspendIrqs = counter("suspend_interrupts_total",
		"Number of pipe suspend interrupts handled")
	m.AggrForceCloses = counter("aggr_force_closes_total",
		"Number of open aggregation frames closed to suspend a pipe")
	return m
}

// ActiveClients exports the live active client count.
func (m *Metrics) ActiveClients(f func() float64) {
	m.collectors = append(m.collectors, prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   "ipa",
			Name:        "active_clients",
			Help:        "Number of references holding the engine clocked",
			ConstLabels: m.labels,
		}, f))
}

// Register adds all series to r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range m.collectors {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Unregister removes all series from r.
func (m *Metrics) Unregister(r prometheus.Registerer) {
	for _, c := range m.collectors {
		r.Unregister(c)
	}
}
