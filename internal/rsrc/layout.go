// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package rsrc

import (
	"errors"
	"fmt"

	"github.com/platinasystems/ipa/internal/reg"
)

// Canary precedes regions of shared memory to detect overruns.
const Canary = 0xdeadbeef

// TblHdrWidth is the size of one routing or filter table entry.
const TblHdrWidth = 8

var ErrLayout = errors.New("shared memory layout")

// LayoutError reports a region too small or misplaced.
type LayoutError struct {
	Region string
	Size   uint32
	Need   uint32
	Reason string
}

func (e *LayoutError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%v: %s: %s", ErrLayout, e.Region, e.Reason)
	}
	return fmt.Sprintf("%v: %s too small (%d < %d)", ErrLayout, e.Region,
		e.Size, e.Need)
}

func (e *LayoutError) Unwrap() error { return ErrLayout }

// Region is a byte range of shared memory.
type Region struct {
	Offset, Size uint32
}

func (r Region) End() uint32 { return r.Offset + r.Size }

// IndexRange is an inclusive range of routing table indexes.
type IndexRange struct {
	Lo, Hi uint32
}

func (r IndexRange) Count() uint32 { return r.Hi - r.Lo + 1 }

func (r IndexRange) Contains(i uint32) bool { return i >= r.Lo && i <= r.Hi }

// Layout places the engine tables in shared memory. Offsets are
// relative to the host accessible start of shared memory.
type Layout struct {
	V4FltHash, V4FltNhash Region
	V6FltHash, V6FltNhash Region
	V4RtHash, V4RtNhash   Region
	V6RtHash, V6RtNhash   Region

	ModemHdr        Region
	AppsHdr         Region
	ModemHdrProcCtx Region
	AppsHdrProcCtx  Region
	Modem           Region
	UcEventRing     uint32
	End             uint32

	V4RtNumIndex, V6RtNumIndex uint32
	V4ModemRt, V6ModemRt       IndexRange
	V4AppsRt, V6AppsRt         IndexRange
}

var LayoutV3_5_1 = Layout{
	V4FltHash:  Region{0x288, 0x78},
	V4FltNhash: Region{0x308, 0x78},
	V6FltHash:  Region{0x388, 0x78},
	V6FltNhash: Region{0x408, 0x78},
	V4RtHash:   Region{0x488, 0x78},
	V4RtNhash:  Region{0x508, 0x78},
	V6RtHash:   Region{0x588, 0x78},
	V6RtNhash:  Region{0x608, 0x78},

	ModemHdr:        Region{0x688, 0x140},
	AppsHdr:         Region{0x7c8, 0},
	ModemHdrProcCtx: Region{0x7d0, 0x200},
	AppsHdrProcCtx:  Region{0x9d0, 0},
	Modem:           Region{0xbd8, 0x1024},
	UcEventRing:     0x1c00,
	End:             0x2000,

	V4RtNumIndex: 15,
	V6RtNumIndex: 15,
	V4ModemRt:    IndexRange{0, 7},
	V6ModemRt:    IndexRange{0, 7},
	V4AppsRt:     IndexRange{8, 14},
	V6AppsRt:     IndexRange{8, 14},
}

type named struct {
	name string
	Region
}

func (l *Layout) rt() []named {
	return []named{
		{"V4_RT_HASH", l.V4RtHash},
		{"V4_RT_NHASH", l.V4RtNhash},
		{"V6_RT_HASH", l.V6RtHash},
		{"V6_RT_NHASH", l.V6RtNhash},
	}
}

func (l *Layout) flt() []named {
	return []named{
		{"V4_FLT_HASH", l.V4FltHash},
		{"V4_FLT_NHASH", l.V4FltNhash},
		{"V6_FLT_HASH", l.V6FltHash},
		{"V6_FLT_NHASH", l.V6FltNhash},
	}
}

// canaried are the regions preceded by two canaries.
func (l *Layout) canaried() []named {
	return append(append(l.flt(), l.rt()...),
		named{"MODEM_HDR", l.ModemHdr},
		named{"MODEM_HDR_PROC_CTX", l.ModemHdrProcCtx},
		named{"MODEM", l.Modem})
}

// Validate checks that every table holds its entries, including the
// peer's reserved routes and, for filters, the pipe bitmap entry for
// filterCount pipes.
func (l *Layout) Validate(filterCount int) error {
	rtNeed := func(n uint32) uint32 { return n * TblHdrWidth }
	for i, r := range l.rt() {
		num, modem := l.V4RtNumIndex, l.V4ModemRt
		if i >= 2 {
			num, modem = l.V6RtNumIndex, l.V6ModemRt
		}
		if num == 0 {
			return &LayoutError{Region: r.name, Reason: "no indexes"}
		}
		if modem.Lo > modem.Hi {
			return &LayoutError{Region: r.name,
				Reason: "empty modem index range"}
		}
		if need := rtNeed(num); r.Size < need {
			return &LayoutError{Region: r.name, Size: r.Size, Need: need}
		}
		if need := rtNeed(modem.Count()); r.Size < need {
			return &LayoutError{Region: r.name + " modem", Size: r.Size,
				Need: need}
		}
	}
	need := uint32(filterCount+1) * TblHdrWidth
	for _, r := range l.flt() {
		if r.Size < need {
			return &LayoutError{Region: r.name, Size: r.Size, Need: need}
		}
	}
	for _, r := range l.canaried() {
		if r.Offset < 8 || r.Offset%8 != 0 {
			return &LayoutError{Region: r.name,
				Reason: fmt.Sprintf("offset %#x not 8 byte aligned",
					r.Offset)}
		}
	}
	for _, r := range []named{
		{"APPS_HDR", l.AppsHdr},
		{"APPS_HDR_PROC_CTX", l.AppsHdrProcCtx},
	} {
		if r.Size != 0 && r.Offset%8 != 0 {
			return &LayoutError{Region: r.name,
				Reason: fmt.Sprintf("offset %#x not 8 byte aligned",
					r.Offset)}
		}
	}
	if l.UcEventRing < 4 || l.UcEventRing%1024 != 0 {
		return &LayoutError{Region: "UC_EVENT_RING",
			Reason: fmt.Sprintf("offset %#x not 1KB aligned",
				l.UcEventRing)}
	}
	if l.Modem.End() > l.UcEventRing || l.UcEventRing >= l.End {
		return &LayoutError{Region: "UC_EVENT_RING",
			Reason: "overlaps its neighbors"}
	}
	return nil
}

// Fits checks the layout against the shared memory size.
func (l *Layout) Fits(smemSize uint32) error {
	if smemSize < l.End {
		return &LayoutError{Region: "shared memory", Size: smemSize,
			Need: l.End}
	}
	return nil
}

// Canaries returns the SRAM_DIRECT_ACCESS_n word indexes of every
// canary given the restricted byte offset of shared memory.
func (l *Layout) Canaries(base uint32) []uint32 {
	var words []uint32
	for _, r := range l.canaried() {
		w := (base + r.Offset) / 4
		words = append(words, w-1, w-2)
	}
	return append(words, (base+l.UcEventRing)/4-1)
}

// SetCanaries writes every canary.
func (l *Layout) SetCanaries(r *reg.Regs, base uint32) {
	for _, w := range l.Canaries(base) {
		r.WriteN(reg.SramDirectAccess, w, Canary)
	}
}

// CheckCanaries returns an error naming the first overwritten canary.
func (l *Layout) CheckCanaries(r *reg.Regs, base uint32) error {
	for _, w := range l.Canaries(base) {
		if v := r.ReadN(reg.SramDirectAccess, w); v != Canary {
			return fmt.Errorf("canary at %#x: got %#x want %#x",
				w*4-base, v, uint32(Canary))
		}
	}
	return nil
}
