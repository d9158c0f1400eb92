// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package endpoint

// Sequencer is the HPS/DPS sequencer program run for a producer pipe.
type Sequencer uint32

const (
	SeqDmaOnly                   Sequencer = 0x00
	SeqPktProcessNoDecUcp        Sequencer = 0x02
	Seq2ndPktProcessPassNoDecUcp Sequencer = 0x04
	SeqDmaDec                    Sequencer = 0x11
	SeqDmaCompDecomp             Sequencer = 0x20
	SeqInvalid                   Sequencer = 0xffffffff
)

// Execution environment that owns a channel.
type EE uint8

const (
	EEAp EE = 0
	EEQ6 EE = 1
	EEUc EE = 3
)

func (ee EE) String() string {
	switch ee {
	case EEAp:
		return "ap"
	case EEQ6:
		return "q6"
	case EEUc:
		return "uc"
	}
	return "ee?"
}

// Config is one entry of a version specific endpoint table.
type Config struct {
	Valid         bool
	SupportFilter bool
	Sequencer     Sequencer
	// Physical pipe and GSI channel.
	Pipe    uint32
	Channel uint32
	// Interface TLV and AOS fifo depths.
	TLV uint32
	AOS uint32
	EE  EE
}

// Source is a version specific endpoint table.
type Source map[Client]Config

func entry(flt bool, seq Sequencer, pipe, ch, tlv, aos uint32, ee EE) Config {
	return Config{
		Valid:         true,
		SupportFilter: flt,
		Sequencer:     seq,
		Pipe:          pipe,
		Channel:       ch,
		TLV:           tlv,
		AOS:           aos,
		EE:            ee,
	}
}

func cons(pipe, ch, tlv, aos uint32, ee EE) Config {
	return Config{
		Valid:     true,
		Sequencer: SeqInvalid,
		Pipe:      pipe,
		Channel:   ch,
		TLV:       tlv,
		AOS:       aos,
		EE:        ee,
	}
}

// V3_5_1 is the production endpoint table of IPA v3.5.1 (SDM845).
var V3_5_1 = Source{
	Wlan1Prod:   entry(true, Seq2ndPktProcessPassNoDecUcp, 7, 1, 8, 16, EEUc),
	UsbProd:     entry(true, Seq2ndPktProcessPassNoDecUcp, 0, 0, 8, 16, EEAp),
	AppsLanProd: entry(false, SeqPktProcessNoDecUcp, 8, 7, 8, 16, EEAp),
	AppsWanProd: entry(true, Seq2ndPktProcessPassNoDecUcp, 2, 3, 16, 32, EEAp),
	AppsCmdProd: entry(false, SeqDmaOnly, 5, 4, 20, 23, EEAp),
	Q6LanProd:   entry(true, SeqPktProcessNoDecUcp, 3, 0, 16, 32, EEQ6),
	Q6WanProd:   entry(true, SeqPktProcessNoDecUcp, 6, 4, 12, 30, EEQ6),
	Q6CmdProd:   entry(false, SeqPktProcessNoDecUcp, 4, 1, 20, 23, EEQ6),

	Wlan1Cons:   cons(16, 3, 8, 8, EEUc),
	Wlan2Cons:   cons(18, 9, 8, 8, EEAp),
	Wlan3Cons:   cons(19, 10, 8, 8, EEAp),
	UsbCons:     cons(17, 8, 8, 8, EEAp),
	UsbDplCons:  cons(11, 2, 4, 6, EEAp),
	AppsLanCons: cons(9, 5, 8, 12, EEAp),
	AppsWanCons: cons(10, 6, 8, 12, EEAp),
	Q6LanCons:   cons(13, 3, 8, 12, EEQ6),
	Q6WanCons:   cons(12, 2, 8, 12, EEQ6),
	DummyCons:   cons(31, 31, 8, 8, EEAp),
}

// V3_5_1Test is the loopback test table. Test clients reuse the
// physical pipes of production clients so the two tables are never
// loaded together; the command and AP consumer pipes are shared so the
// engine can still be brought up. TEST1_PROD is left out since it
// shares pipe 0 with TEST_PROD.
var V3_5_1Test = Source{
	AppsCmdProd: V3_5_1[AppsCmdProd],
	AppsLanCons: V3_5_1[AppsLanCons],
	AppsWanCons: V3_5_1[AppsWanCons],

	TestProd:  entry(true, Seq2ndPktProcessPassNoDecUcp, 0, 0, 8, 16, EEAp),
	Test2Prod: entry(true, Seq2ndPktProcessPassNoDecUcp, 2, 3, 16, 32, EEAp),
	Test3Prod: entry(true, Seq2ndPktProcessPassNoDecUcp, 4, 1, 20, 23, EEQ6),
	Test4Prod: entry(true, Seq2ndPktProcessPassNoDecUcp, 1, 0, 8, 16, EEUc),

	// These two consumers loop back into the filter block.
	TestCons:  entry(true, Seq2ndPktProcessPassNoDecUcp, 14, 5, 8, 8, EEQ6),
	Test1Cons: entry(true, Seq2ndPktProcessPassNoDecUcp, 15, 2, 8, 8, EEUc),
	Test2Cons: cons(18, 9, 8, 8, EEAp),
	Test3Cons: cons(19, 10, 8, 8, EEAp),
	Test4Cons: cons(11, 2, 4, 6, EEAp),
}
