// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package rsrc programs resource group limits and describes the layout
// of engine shared memory.
package rsrc

import (
	"github.com/platinasystems/ipa/internal/reg"
	"github.com/platinasystems/log"
)

// Group partitions engine buffering among pipes.
type Group int

const (
	LwaDl Group = iota
	UlDl
	MhiDma
	UcRxQ
	NSrcGroups
)

const NDstGroups = 3

// Source resource types, the register index of their limits.
const (
	PktContexts = iota
	DescLists
	DescBuff
	HpsDmars
	AckEntries
	NSrcTypes
)

// Destination resource types.
const (
	DataSectors = iota
	DpsDmars
	NDstTypes
)

type Limit struct {
	Min, Max uint32
}

// Limits of the v3.5.1 engine by type then group.
type Limits struct {
	Src [NSrcTypes][NSrcGroups]Limit
	Dst [NDstTypes][NDstGroups]Limit
}

var LimitsV3_5_1 = Limits{
	Src: [NSrcTypes][NSrcGroups]Limit{
		PktContexts: {{1, 63}, {1, 63}, {0, 0}, {1, 63}},
		DescLists:   {{10, 10}, {10, 10}, {0, 0}, {8, 8}},
		DescBuff:    {{12, 12}, {14, 14}, {0, 0}, {8, 8}},
		HpsDmars:    {{0, 63}, {0, 63}, {0, 255}, {0, 255}},
		AckEntries:  {{14, 14}, {20, 20}, {0, 0}, {14, 14}},
	},
	Dst: [NDstTypes][NDstGroups]Limit{
		DataSectors: {{4, 4}, {4, 4}, {3, 3}},
		DpsDmars:    {{2, 63}, {1, 63}, {1, 2}},
	},
}

func pair(x, y Limit) *reg.RsrcGrp {
	return &reg.RsrcGrp{XMin: x.Min, XMax: x.Max, YMin: y.Min, YMax: y.Max}
}

// Apply writes the limits two groups per register. Only the LWA/DL and
// UL/DL pair is the AP's to program; the rest belong to other
// execution environments.
func (l *Limits) Apply(r *reg.Regs) {
	for n := range l.Src {
		r.WriteFieldsN(reg.SrcRsrcGrp01RsrcType, uint32(n),
			pair(l.Src[n][LwaDl], l.Src[n][UlDl]))
	}
	for n := range l.Dst {
		r.WriteFieldsN(reg.DstRsrcGrp01RsrcType, uint32(n),
			pair(l.Dst[n][LwaDl], l.Dst[n][UlDl]))
	}
	log.Printf("debug", "resource group limits set")
}
