// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package reg provides access to the IPA v3.5.1 register space.
//
// Registers are named by Reg; those with an _N suffix in the hardware
// documentation take an index (pipe, execution environment or resource
// type) and are addressed with the N variants of the accessors.
package reg

import (
	"fmt"
	"sync/atomic"
)

type Reg int

const (
	Route Reg = iota
	IrqSttsEE
	IrqEnEE
	IrqClrEE
	IrqSuspendInfoEE
	SuspendIrqEnEE
	SuspendIrqClrEE
	Bcr
	EnabledPipes
	TagTimer
	StateAggrActive
	EndpInitHdr
	EndpInitHdrExt
	EndpInitAggr
	AggrForceClose
	EndpInitMode
	EndpInitCtrl
	EndpInitDeaggr
	EndpInitSeq
	EndpInitCfg
	IrqEEUc
	EndpInitHdrMetadataMask
	SharedMemSize
	SramDirectAccess
	LocalPktProcCntxtBase
	EndpStatus
	EndpFilterRouterHshCfg
	SrcRsrcGrp01RsrcType
	SrcRsrcGrp23RsrcType
	DstRsrcGrp01RsrcType
	DstRsrcGrp23RsrcType
	QsbMaxWrites
	QsbMaxReads
	IdleIndicationCfg
	EndpGsiCfg1
	EndpGsiCfg2
	nReg
)

// Execution environment owned by the application processor.
const EEAp = 0

type layout struct {
	name   string
	base   uint32
	stride uint32
}

var layouts = [nReg]layout{
	Route:                   {"ROUTE", 0x48, 0},
	IrqSttsEE:               {"IRQ_STTS_EE_n", 0x3008, 0x1000},
	IrqEnEE:                 {"IRQ_EN_EE_n", 0x300c, 0x1000},
	IrqClrEE:                {"IRQ_CLR_EE_n", 0x3010, 0x1000},
	IrqSuspendInfoEE:        {"IRQ_SUSPEND_INFO_EE_n", 0x3030, 0x1000},
	SuspendIrqEnEE:          {"SUSPEND_IRQ_EN_EE_n", 0x3034, 0x1000},
	SuspendIrqClrEE:         {"SUSPEND_IRQ_CLR_EE_n", 0x3038, 0x1000},
	Bcr:                     {"BCR", 0x1d0, 0},
	EnabledPipes:            {"ENABLED_PIPES", 0x38, 0},
	TagTimer:                {"TAG_TIMER", 0x60, 0},
	StateAggrActive:         {"STATE_AGGR_ACTIVE", 0x10c, 0},
	EndpInitHdr:             {"ENDP_INIT_HDR_n", 0x810, 0x70},
	EndpInitHdrExt:          {"ENDP_INIT_HDR_EXT_n", 0x814, 0x70},
	EndpInitAggr:            {"ENDP_INIT_AGGR_n", 0x824, 0x70},
	AggrForceClose:          {"AGGR_FORCE_CLOSE", 0x1ec, 0},
	EndpInitMode:            {"ENDP_INIT_MODE_n", 0x820, 0x70},
	EndpInitCtrl:            {"ENDP_INIT_CTRL_n", 0x800, 0x70},
	EndpInitDeaggr:          {"ENDP_INIT_DEAGGR_n", 0x834, 0x70},
	EndpInitSeq:             {"ENDP_INIT_SEQ_n", 0x83c, 0x70},
	EndpInitCfg:             {"ENDP_INIT_CFG_n", 0x808, 0x70},
	IrqEEUc:                 {"IRQ_EE_UC_n", 0x301c, 0x1000},
	EndpInitHdrMetadataMask: {"ENDP_INIT_HDR_METADATA_MASK_n", 0x818, 0x70},
	SharedMemSize:           {"SHARED_MEM_SIZE", 0x54, 0},
	SramDirectAccess:        {"SRAM_DIRECT_ACCESS_n", 0x7000, 4},
	LocalPktProcCntxtBase:   {"LOCAL_PKT_PROC_CNTXT_BASE", 0x1e8, 0},
	EndpStatus:              {"ENDP_STATUS_n", 0x840, 0x70},
	EndpFilterRouterHshCfg:  {"ENDP_FILTER_ROUTER_HSH_CFG_n", 0x85c, 0x70},
	SrcRsrcGrp01RsrcType:    {"SRC_RSRC_GRP_01_RSRC_TYPE_n", 0x400, 0x20},
	SrcRsrcGrp23RsrcType:    {"SRC_RSRC_GRP_23_RSRC_TYPE_n", 0x404, 0x20},
	DstRsrcGrp01RsrcType:    {"DST_RSRC_GRP_01_RSRC_TYPE_n", 0x500, 0x20},
	DstRsrcGrp23RsrcType:    {"DST_RSRC_GRP_23_RSRC_TYPE_n", 0x504, 0x20},
	QsbMaxWrites:            {"QSB_MAX_WRITES", 0x74, 0},
	QsbMaxReads:             {"QSB_MAX_READS", 0x78, 0},
	IdleIndicationCfg:       {"IDLE_INDICATION_CFG", 0x220, 0},
	EndpGsiCfg1:             {"ENDP_GSI_CFG1_n", 0x2794, 4},
	EndpGsiCfg2:             {"ENDP_GSI_CFG2_n", 0x2494, 4},
}

// Size of the register window in bytes; SRAM is reached through
// SRAM_DIRECT_ACCESS_n at its end.
const Size = 0x10000

func (r Reg) valid() bool { return r >= 0 && r < nReg }

func (r Reg) String() string {
	if !r.valid() {
		return fmt.Sprintf("reg(%d)", int(r))
	}
	return layouts[r].name
}

// Indexed reports whether r takes an index.
func (r Reg) Indexed() bool { return r.valid() && layouts[r].stride != 0 }

// Offset returns the byte offset of the n'th instance of r.
func Offset(r Reg, n uint32) uint32 {
	if !r.valid() {
		panic(fmt.Errorf("reg: invalid register %d", int(r)))
	}
	l := &layouts[r]
	if n != 0 && l.stride == 0 {
		panic(fmt.Errorf("reg: %s is not indexed", l.name))
	}
	return l.base + n*l.stride
}

// Space is a 32-bit register window.
type Space interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, v uint32)
}

// Mem is a Space backed by memory; loads and stores are atomic so that
// concurrent readers see whole words.
type Mem []uint32

func NewMem(size uint32) Mem { return make(Mem, size/4) }

func (m Mem) word(offset uint32) *uint32 {
	if offset&3 != 0 || int(offset/4) >= len(m) {
		panic(fmt.Errorf("reg: offset %#x out of range", offset))
	}
	return &m[offset/4]
}

func (m Mem) Read32(offset uint32) uint32     { return atomic.LoadUint32(m.word(offset)) }
func (m Mem) Write32(offset uint32, v uint32) { atomic.StoreUint32(m.word(offset), v) }

// Fields is a structured view of a register value.
type Fields interface {
	Encode() uint32
	Decode(v uint32)
}

// Regs translates named register accesses to a Space.
type Regs struct {
	Space
}

func New(s Space) *Regs { return &Regs{Space: s} }

func (r *Regs) Read(x Reg) uint32                { return r.ReadN(x, 0) }
func (r *Regs) ReadN(x Reg, n uint32) uint32      { return r.Read32(Offset(x, n)) }
func (r *Regs) Write(x Reg, v uint32)            { r.WriteN(x, 0, v) }
func (r *Regs) WriteN(x Reg, n uint32, v uint32) { r.Write32(Offset(x, n), v) }

func (r *Regs) ReadFields(x Reg, f Fields)            { r.ReadFieldsN(x, 0, f) }
func (r *Regs) ReadFieldsN(x Reg, n uint32, f Fields) { f.Decode(r.ReadN(x, n)) }
func (r *Regs) WriteFields(x Reg, f Fields)           { r.WriteFieldsN(x, 0, f) }
func (r *Regs) WriteFieldsN(x Reg, n uint32, f Fields) {
	r.WriteN(x, n, f.Encode())
}

// OrN sets bits and returns the new value.
func (r *Regs) OrN(x Reg, n uint32, v uint32) uint32 {
	v |= r.ReadN(x, n)
	r.WriteN(x, n, v)
	return v
}

// AndNotN clears bits and returns the new value.
func (r *Regs) AndNotN(x Reg, n uint32, v uint32) uint32 {
	v = r.ReadN(x, n) &^ v
	r.WriteN(x, n, v)
	return v
}
