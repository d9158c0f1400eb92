// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package imm

import (
	"encoding/binary"
	"fmt"
)

type Opcode uint16

const (
	OpIPv4FilterInit  Opcode = 3
	OpIPv6FilterInit  Opcode = 4
	OpIPv4RoutingInit Opcode = 7
	OpIPv6RoutingInit Opcode = 8
	OpHdrInitLocal    Opcode = 9
	OpRegisterWrite   Opcode = 12
	OpIPPacketInit    Opcode = 16
	OpDmaTask32bAddr  Opcode = 17
	OpDmaSharedMem    Opcode = 19
)

var opcodeNames = map[Opcode]string{
	OpIPv4FilterInit:  "ip_v4_filter_init",
	OpIPv6FilterInit:  "ip_v6_filter_init",
	OpIPv4RoutingInit: "ip_v4_routing_init",
	OpIPv6RoutingInit: "ip_v6_routing_init",
	OpHdrInitLocal:    "hdr_init_local",
	OpRegisterWrite:   "register_write",
	OpIPPacketInit:    "ip_packet_init",
	OpDmaTask32bAddr:  "dma_task_32b_addr",
	OpDmaSharedMem:    "dma_shared_mem",
}

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return fmt.Sprintf("opcode(%d)", uint16(op))
}

// Payload is the opcode specific body of an immediate command.
type Payload interface {
	Opcode() Opcode
	Encode() []byte
	Decode(b []byte) error
}

var le = binary.LittleEndian

type shortError struct {
	op       Opcode
	got, min int
}

func (e *shortError) Error() string {
	return fmt.Sprintf("%v payload: %d bytes, need %d", e.op, e.got, e.min)
}

func need(op Opcode, b []byte, n int) error {
	if len(b) < n {
		return &shortError{op, len(b), n}
	}
	return nil
}

// DmaSharedMem copies between system memory and engine SRAM.
type DmaSharedMem struct {
	Size              uint16
	LocalAddr         uint16
	FromSram          bool
	SkipPipelineClear bool
	ClearOptions      uint8
	SystemAddr        uint64
}

func (*DmaSharedMem) Opcode() Opcode { return OpDmaSharedMem }

func (p *DmaSharedMem) Encode() []byte {
	b := make([]byte, 16)
	le.PutUint16(b[0:], p.Size)
	le.PutUint16(b[2:], p.LocalAddr)
	b[4] = bool8(p.FromSram)
	b[5] = bool8(p.SkipPipelineClear)
	b[6] = p.ClearOptions
	le.PutUint64(b[8:], p.SystemAddr)
	return b
}

func (p *DmaSharedMem) Decode(b []byte) error {
	if err := need(p.Opcode(), b, 16); err != nil {
		return err
	}
	p.Size = le.Uint16(b[0:])
	p.LocalAddr = le.Uint16(b[2:])
	p.FromSram = b[4] != 0
	p.SkipPipelineClear = b[5] != 0
	p.ClearOptions = b[6]
	p.SystemAddr = le.Uint64(b[8:])
	return nil
}

// HdrInitLocal copies a header table into engine SRAM.
type HdrInitLocal struct {
	TableAddr uint64
	Size      uint16
	HdrAddr   uint16
}

func (*HdrInitLocal) Opcode() Opcode { return OpHdrInitLocal }

func (p *HdrInitLocal) Encode() []byte {
	b := make([]byte, 16)
	le.PutUint64(b[0:], p.TableAddr)
	le.PutUint16(b[8:], p.Size)
	le.PutUint16(b[10:], p.HdrAddr)
	return b
}

func (p *HdrInitLocal) Decode(b []byte) error {
	if err := need(p.Opcode(), b, 16); err != nil {
		return err
	}
	p.TableAddr = le.Uint64(b[0:])
	p.Size = le.Uint16(b[8:])
	p.HdrAddr = le.Uint16(b[10:])
	return nil
}

// TableInit installs a routing or filter image into both the hashed
// and non-hashed SRAM regions.
type TableInit struct {
	Op         Opcode
	HashAddr   uint64
	HashSize   uint16
	HashLocal  uint16
	NhashAddr  uint64
	NhashSize  uint16
	NhashLocal uint16
}

func (p *TableInit) Opcode() Opcode { return p.Op }

func (p *TableInit) Encode() []byte {
	b := make([]byte, 24)
	le.PutUint64(b[0:], p.HashAddr)
	le.PutUint16(b[8:], p.HashSize)
	le.PutUint16(b[10:], p.HashLocal)
	le.PutUint16(b[12:], p.NhashSize)
	le.PutUint16(b[14:], p.NhashLocal)
	le.PutUint64(b[16:], p.NhashAddr)
	return b
}

func (p *TableInit) Decode(b []byte) error {
	if err := need(p.Opcode(), b, 24); err != nil {
		return err
	}
	p.HashAddr = le.Uint64(b[0:])
	p.HashSize = le.Uint16(b[8:])
	p.HashLocal = le.Uint16(b[10:])
	p.NhashSize = le.Uint16(b[12:])
	p.NhashLocal = le.Uint16(b[14:])
	p.NhashAddr = le.Uint64(b[16:])
	return nil
}

// DmaTask32bAddr transfers Size bytes from Addr through the engine;
// used with a 1 byte buffer to flush the pipeline.
type DmaTask32bAddr struct {
	Size     uint16
	PktSize  uint16
	Flush    bool
	Complete bool
	Addr     uint32
}

func (*DmaTask32bAddr) Opcode() Opcode { return OpDmaTask32bAddr }

func (p *DmaTask32bAddr) Encode() []byte {
	b := make([]byte, 12)
	le.PutUint16(b[0:], p.Size)
	le.PutUint16(b[2:], p.PktSize)
	b[4] = bool8(p.Flush)
	b[7] = bool8(p.Complete)
	le.PutUint32(b[8:], p.Addr)
	return b
}

func (p *DmaTask32bAddr) Decode(b []byte) error {
	if err := need(p.Opcode(), b, 12); err != nil {
		return err
	}
	p.Size = le.Uint16(b[0:])
	p.PktSize = le.Uint16(b[2:])
	p.Flush = b[4] != 0
	p.Complete = b[7] != 0
	p.Addr = le.Uint32(b[8:])
	return nil
}

// IPPacketInit directs the next packet to DstPipe.
type IPPacketInit struct {
	DstPipe uint8
}

func (*IPPacketInit) Opcode() Opcode { return OpIPPacketInit }

func (p *IPPacketInit) Encode() []byte {
	b := make([]byte, 8)
	b[0] = p.DstPipe & 0x1f
	return b
}

func (p *IPPacketInit) Decode(b []byte) error {
	if err := need(p.Opcode(), b, 8); err != nil {
		return err
	}
	p.DstPipe = b[0] & 0x1f
	return nil
}

// RegisterWrite updates Mask bits of the register at Offset in order
// with other commands.
type RegisterWrite struct {
	Offset uint32
	Value  uint32
	Mask   uint32
}

func (*RegisterWrite) Opcode() Opcode { return OpRegisterWrite }

func (p *RegisterWrite) Encode() []byte {
	b := make([]byte, 12)
	le.PutUint32(b[0:], p.Offset)
	le.PutUint32(b[4:], p.Value)
	le.PutUint32(b[8:], p.Mask)
	return b
}

func (p *RegisterWrite) Decode(b []byte) error {
	if err := need(p.Opcode(), b, 12); err != nil {
		return err
	}
	p.Offset = le.Uint32(b[0:])
	p.Value = le.Uint32(b[4:])
	p.Mask = le.Uint32(b[8:])
	return nil
}

// Decode returns the payload of a descriptor.
func Decode(d Desc) (Payload, error) {
	var p Payload
	switch d.Opcode {
	case OpDmaSharedMem:
		p = &DmaSharedMem{}
	case OpHdrInitLocal:
		p = &HdrInitLocal{}
	case OpIPv4RoutingInit, OpIPv6RoutingInit,
		OpIPv4FilterInit, OpIPv6FilterInit:
		p = &TableInit{Op: d.Opcode}
	case OpDmaTask32bAddr:
		p = &DmaTask32bAddr{}
	case OpIPPacketInit:
		p = &IPPacketInit{}
	case OpRegisterWrite:
		p = &RegisterWrite{}
	default:
		return nil, fmt.Errorf("unknown immediate command %v", d.Opcode)
	}
	return p, p.Decode(d.Payload)
}

func bool8(b bool) byte {
	if b {
		return 1
	}
	return 0
}
