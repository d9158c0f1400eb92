// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package reg

// [shift+width-1:shift]
type bits struct{ shift, width uint }

func (b bits) mask() uint32           { return (1<<b.width - 1) << b.shift }
func (b bits) get(v uint32) uint32    { return (v & b.mask()) >> b.shift }
func (b bits) put(v, x uint32) uint32 { return v&^b.mask() | (x<<b.shift)&b.mask() }

func bit(v uint32, shift uint) bool { return v&(1<<shift) != 0 }

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

type Mode uint32

const (
	ModeBasic Mode = iota
	ModeHdlcFraming
	ModeHdlcDeframing
	ModeDma
)

type AggrEn uint32

const (
	AggrBypass AggrEn = iota
	AggrEnable
	AggrDeaggr
)

type AggrType uint32

const (
	AggrMbim16 AggrType = iota
	AggrHdlc
	AggrTlp
	AggrRndis
	AggrGeneric
	_
	AggrQcmap
)

type CsOffload uint32

const (
	CsOffloadNone CsOffload = iota
	CsOffloadUL
	CsOffloadDL
)

// Header length-or-pad selection.
const (
	HdrPad      = 0
	HdrTotalLen = 1
)

// RouteFields is the default routing register.
type RouteFields struct {
	Disable      bool
	DefPipe      uint32
	DefHdrTable  bool
	DefHdrOfst   uint32
	FragDefPipe  uint32
	DefRetainHdr bool
}

var (
	routeDefPipe     = bits{1, 5}
	routeDefHdrOfst  = bits{7, 10}
	routeFragDefPipe = bits{17, 5}
)

func (f *RouteFields) Encode() (v uint32) {
	v = b2u(f.Disable)
	v = routeDefPipe.put(v, f.DefPipe)
	v |= b2u(f.DefHdrTable) << 6
	v = routeDefHdrOfst.put(v, f.DefHdrOfst)
	v = routeFragDefPipe.put(v, f.FragDefPipe)
	v |= b2u(f.DefRetainHdr) << 24
	return
}

func (f *RouteFields) Decode(v uint32) {
	f.Disable = bit(v, 0)
	f.DefPipe = routeDefPipe.get(v)
	f.DefHdrTable = bit(v, 6)
	f.DefHdrOfst = routeDefHdrOfst.get(v)
	f.FragDefPipe = routeFragDefPipe.get(v)
	f.DefRetainHdr = bit(v, 24)
}

// Hdr is ENDP_INIT_HDR_n.
type Hdr struct {
	Len                uint32
	OfstMetadataValid  bool
	OfstMetadata       uint32
	AdditionalConstLen uint32
	OfstPktSizeValid   bool
	OfstPktSize        uint32
	A5Mux              bool
	LenIncDeaggHdr     bool
	MetadataRegValid   bool
}

var (
	hdrLen         = bits{0, 6}
	hdrOfstMeta    = bits{7, 6}
	hdrConstLen    = bits{13, 6}
	hdrOfstPktSize = bits{20, 6}
)

func (f *Hdr) Encode() (v uint32) {
	v = hdrLen.put(v, f.Len)
	v |= b2u(f.OfstMetadataValid) << 6
	v = hdrOfstMeta.put(v, f.OfstMetadata)
	v = hdrConstLen.put(v, f.AdditionalConstLen)
	v |= b2u(f.OfstPktSizeValid) << 19
	v = hdrOfstPktSize.put(v, f.OfstPktSize)
	v |= b2u(f.A5Mux) << 26
	v |= b2u(f.LenIncDeaggHdr) << 27
	v |= b2u(f.MetadataRegValid) << 28
	return
}

func (f *Hdr) Decode(v uint32) {
	f.Len = hdrLen.get(v)
	f.OfstMetadataValid = bit(v, 6)
	f.OfstMetadata = hdrOfstMeta.get(v)
	f.AdditionalConstLen = hdrConstLen.get(v)
	f.OfstPktSizeValid = bit(v, 19)
	f.OfstPktSize = hdrOfstPktSize.get(v)
	f.A5Mux = bit(v, 26)
	f.LenIncDeaggHdr = bit(v, 27)
	f.MetadataRegValid = bit(v, 28)
}

// HdrExt is ENDP_INIT_HDR_EXT_n.
type HdrExt struct {
	LittleEndian         bool
	TotalLenOrPadValid   bool
	TotalLenOrPad        uint32
	PayloadLenIncPadding bool
	TotalLenOrPadOffset  uint32
	PadToAlignment       uint32
}

var (
	hdrExtPadOffset = bits{4, 6}
	hdrExtPadAlign  = bits{10, 4}
)

func (f *HdrExt) Encode() (v uint32) {
	v = b2u(!f.LittleEndian)
	v |= b2u(f.TotalLenOrPadValid) << 1
	v |= (f.TotalLenOrPad & 1) << 2
	v |= b2u(f.PayloadLenIncPadding) << 3
	v = hdrExtPadOffset.put(v, f.TotalLenOrPadOffset)
	v = hdrExtPadAlign.put(v, f.PadToAlignment)
	return
}

func (f *HdrExt) Decode(v uint32) {
	f.LittleEndian = !bit(v, 0)
	f.TotalLenOrPadValid = bit(v, 1)
	f.TotalLenOrPad = (v >> 2) & 1
	f.PayloadLenIncPadding = bit(v, 3)
	f.TotalLenOrPadOffset = hdrExtPadOffset.get(v)
	f.PadToAlignment = hdrExtPadAlign.get(v)
}

// Aggr is ENDP_INIT_AGGR_n.
type Aggr struct {
	En            AggrEn
	Type          AggrType
	ByteLimit     uint32
	TimeLimit     uint32
	PktLimit      uint32
	SwEofActive   bool
	ForceClose    bool
	HardByteLimit bool
}

var (
	aggrEn        = bits{0, 2}
	aggrType      = bits{2, 3}
	aggrByteLimit = bits{5, 5}
	aggrTimeLimit = bits{10, 5}
	aggrPktLimit  = bits{15, 6}
)

func (f *Aggr) Encode() (v uint32) {
	v = aggrEn.put(v, uint32(f.En))
	v = aggrType.put(v, uint32(f.Type))
	v = aggrByteLimit.put(v, f.ByteLimit)
	v = aggrTimeLimit.put(v, f.TimeLimit)
	v = aggrPktLimit.put(v, f.PktLimit)
	v |= b2u(f.SwEofActive) << 21
	v |= b2u(f.ForceClose) << 22
	v |= b2u(f.HardByteLimit) << 24
	return
}

func (f *Aggr) Decode(v uint32) {
	f.En = AggrEn(aggrEn.get(v))
	f.Type = AggrType(aggrType.get(v))
	f.ByteLimit = aggrByteLimit.get(v)
	f.TimeLimit = aggrTimeLimit.get(v)
	f.PktLimit = aggrPktLimit.get(v)
	f.SwEofActive = bit(v, 21)
	f.ForceClose = bit(v, 22)
	f.HardByteLimit = bit(v, 24)
}

// ModeFields is ENDP_INIT_MODE_n.
type ModeFields struct {
	Mode    Mode
	DstPipe uint32
}

var (
	modeMode    = bits{0, 3}
	modeDstPipe = bits{4, 5}
)

func (f *ModeFields) Encode() (v uint32) {
	v = modeMode.put(v, uint32(f.Mode))
	v = modeDstPipe.put(v, f.DstPipe)
	return
}

func (f *ModeFields) Decode(v uint32) {
	f.Mode = Mode(modeMode.get(v))
	f.DstPipe = modeDstPipe.get(v)
}

// Ctrl is ENDP_INIT_CTRL_n.
type Ctrl struct {
	Suspend bool
	Delay   bool
}

func (f *Ctrl) Encode() uint32  { return b2u(f.Suspend) | b2u(f.Delay)<<1 }
func (f *Ctrl) Decode(v uint32) { f.Suspend, f.Delay = bit(v, 0), bit(v, 1) }

// Cfg is ENDP_INIT_CFG_n.
type Cfg struct {
	FragOffload         bool
	CsOffload           CsOffload
	CsMetadataHdrOffset uint32
	GenQmbMasterSel     uint32
}

var (
	cfgCsOffload = bits{1, 2}
	cfgCsMetaOfs = bits{3, 4}
)

func (f *Cfg) Encode() (v uint32) {
	v = b2u(f.FragOffload)
	v = cfgCsOffload.put(v, uint32(f.CsOffload))
	v = cfgCsMetaOfs.put(v, f.CsMetadataHdrOffset)
	v |= (f.GenQmbMasterSel & 1) << 8
	return
}

func (f *Cfg) Decode(v uint32) {
	f.FragOffload = bit(v, 0)
	f.CsOffload = CsOffload(cfgCsOffload.get(v))
	f.CsMetadataHdrOffset = cfgCsMetaOfs.get(v)
	f.GenQmbMasterSel = (v >> 8) & 1
}

// MetadataMask is ENDP_INIT_HDR_METADATA_MASK_n.
type MetadataMask struct {
	Mask uint32
}

func (f *MetadataMask) Encode() uint32  { return f.Mask }
func (f *MetadataMask) Decode(v uint32) { f.Mask = v }

// Seq is ENDP_INIT_SEQ_n.
type Seq struct {
	Type uint32
}

func (f *Seq) Encode() uint32  { return f.Type & 0xff }
func (f *Seq) Decode(v uint32) { f.Type = v & 0xff }

// Deaggr is ENDP_INIT_DEAGGR_n; all fields are left at reset values.
type Deaggr struct{}

func (f *Deaggr) Encode() uint32  { return 0 }
func (f *Deaggr) Decode(v uint32) {}

// Status is ENDP_STATUS_n.
type Status struct {
	Enable      bool
	Endp        uint32
	Location    bool
	PktSuppress bool
}

var statusEndp = bits{1, 5}

func (f *Status) Encode() (v uint32) {
	v = b2u(f.Enable)
	v = statusEndp.put(v, f.Endp)
	v |= b2u(f.Location) << 8
	v |= b2u(f.PktSuppress) << 9
	return
}

func (f *Status) Decode(v uint32) {
	f.Enable = bit(v, 0)
	f.Endp = statusEndp.get(v)
	f.Location = bit(v, 8)
	f.PktSuppress = bit(v, 9)
}

// Tuple selects the packet fields hashed by a filter or route lookup.
type Tuple struct {
	SrcID, SrcIP, DstIP, SrcPort, DstPort, Protocol, Metadata bool
}

func (t Tuple) encode() (v uint32) {
	for i, b := range []bool{t.SrcID, t.SrcIP, t.DstIP, t.SrcPort,
		t.DstPort, t.Protocol, t.Metadata} {
		v |= b2u(b) << uint(i)
	}
	return
}

func (t *Tuple) decode(v uint32) {
	for i, p := range []*bool{&t.SrcID, &t.SrcIP, &t.DstIP, &t.SrcPort,
		&t.DstPort, &t.Protocol, &t.Metadata} {
		*p = bit(v, uint(i))
	}
}

// HashTuple is ENDP_FILTER_ROUTER_HSH_CFG_n.
type HashTuple struct {
	Filter Tuple
	Router Tuple
}

func (f *HashTuple) Encode() uint32 { return f.Filter.encode() | f.Router.encode()<<16 }
func (f *HashTuple) Decode(v uint32) {
	f.Filter.decode(v)
	f.Router.decode(v >> 16)
}

// RsrcGrp packs the limits of a pair of resource groups, x then y.
type RsrcGrp struct {
	XMin, XMax, YMin, YMax uint32
}

var (
	rsrcXMin = bits{0, 6}
	rsrcXMax = bits{8, 6}
	rsrcYMin = bits{16, 6}
	rsrcYMax = bits{24, 6}
)

func (f *RsrcGrp) Encode() (v uint32) {
	v = rsrcXMin.put(v, f.XMin)
	v = rsrcXMax.put(v, f.XMax)
	v = rsrcYMin.put(v, f.YMin)
	v = rsrcYMax.put(v, f.YMax)
	return
}

func (f *RsrcGrp) Decode(v uint32) {
	f.XMin = rsrcXMin.get(v)
	f.XMax = rsrcXMax.get(v)
	f.YMin = rsrcYMin.get(v)
	f.YMax = rsrcYMax.get(v)
}

var (
	qsbQmb0 = bits{0, 4}
	qsbQmb1 = bits{4, 4}
)

type QsbMaxWritesFields struct {
	Qmb0, Qmb1 uint32
}

func (f *QsbMaxWritesFields) Encode() uint32 {
	return qsbQmb1.put(qsbQmb0.put(0, f.Qmb0), f.Qmb1)
}

func (f *QsbMaxWritesFields) Decode(v uint32) {
	f.Qmb0, f.Qmb1 = qsbQmb0.get(v), qsbQmb1.get(v)
}

type QsbMaxReadsFields struct {
	Qmb0, Qmb1 uint32
}

func (f *QsbMaxReadsFields) Encode() uint32 {
	return qsbQmb1.put(qsbQmb0.put(0, f.Qmb0), f.Qmb1)
}

func (f *QsbMaxReadsFields) Decode(v uint32) {
	f.Qmb0, f.Qmb1 = qsbQmb0.get(v), qsbQmb1.get(v)
}

// IdleIndication is IDLE_INDICATION_CFG.
type IdleIndication struct {
	EnterIdleDebounceThresh uint32
	ConstNonIdleEnable      bool
}

var idleDebounce = bits{0, 16}

func (f *IdleIndication) Encode() uint32 {
	return idleDebounce.put(0, f.EnterIdleDebounceThresh) |
		b2u(f.ConstNonIdleEnable)<<16
}

func (f *IdleIndication) Decode(v uint32) {
	f.EnterIdleDebounceThresh = idleDebounce.get(v)
	f.ConstNonIdleEnable = bit(v, 16)
}

// SharedMem is SHARED_MEM_SIZE; both fields are in 8 byte units.
type SharedMem struct {
	Size, BaseAddr uint32
}

var (
	smemSize = bits{0, 16}
	smemBase = bits{16, 16}
)

func (f *SharedMem) Encode() uint32 {
	return smemBase.put(smemSize.put(0, f.Size), f.BaseAddr)
}

func (f *SharedMem) Decode(v uint32) {
	f.Size, f.BaseAddr = smemSize.get(v), smemBase.get(v)
}
