// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package power

import (
	"fmt"

	"github.com/platinasystems/log"
)

// Clock is the engine core clock.
type Clock interface {
	Enable() error
	Disable() error
}

// Bus votes bandwidth on one interconnect path, in KBps.
type Bus interface {
	SetBandwidth(avg, peak uint32) error
}

type Path struct {
	Name      string
	Avg, Peak uint32
	Bus       Bus
}

func (p *Path) String() string { return p.Name }

// Bandwidth of the memory, imem and config paths.
var PathBandwidth = [...]struct {
	Name      string
	Avg, Peak uint32
}{
	{"memory", 80000, 600000},
	{"imem", 80000, 350000},
	{"config", 40000, 40000},
}

// NewPaths returns the three engine paths over the given buses.
func NewPaths(memory, imem, config Bus) Interconnect {
	ic := make(Interconnect, len(PathBandwidth))
	for i, bus := range []Bus{memory, imem, config} {
		ic[i] = Path{
			Name: PathBandwidth[i].Name,
			Avg:  PathBandwidth[i].Avg,
			Peak: PathBandwidth[i].Peak,
			Bus:  bus,
		}
	}
	return ic
}

type Interconnect []Path

// Enable votes every path's bandwidth, undoing earlier votes if one
// fails.
func (ic Interconnect) Enable() error {
	for i := range ic {
		p := &ic[i]
		if err := p.Bus.SetBandwidth(p.Avg, p.Peak); err != nil {
			for i--; i >= 0; i-- {
				ic[i].Bus.SetBandwidth(0, 0)
			}
			return fmt.Errorf("%v path enable: %w", p, err)
		}
	}
	return nil
}

// Disable removes every vote, restoring earlier paths if one fails.
func (ic Interconnect) Disable() error {
	for i := range ic {
		p := &ic[i]
		if err := p.Bus.SetBandwidth(0, 0); err != nil {
			for i--; i >= 0; i-- {
				q := &ic[i]
				if err := q.Bus.SetBandwidth(q.Avg, q.Peak); err != nil {
					log.Print("err", q, " path restore: ", err)
				}
			}
			return fmt.Errorf("%v path disable: %w", p, err)
		}
	}
	return nil
}
