// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package ipa

import (
	"fmt"

	"github.com/platinasystems/ipa/internal/reg"
	"github.com/platinasystems/log"
)

// Interrupt is an interrupt delivered to the engine.
type Interrupt int

const (
	// TxSuspend is raised for traffic to a suspended pipe.
	TxSuspend Interrupt = iota
	// ClockQuery is the modem asking whether the engine is on.
	ClockQuery
	// PeerPostInit is the modem ready for the engine's post-init.
	PeerPostInit
)

var interruptNames = [...]string{
	TxSuspend:    "tx-suspend",
	ClockQuery:   "clock-query",
	PeerPostInit: "peer-post-init",
}

func (irq Interrupt) String() string {
	if int(irq) < len(interruptNames) {
		return interruptNames[irq]
	}
	return fmt.Sprintf("interrupt(%d)", int(irq))
}

// HandleInterrupt services irq. It never blocks; post-init runs on the
// engine's executor.
func (e *Engine) HandleInterrupt(irq Interrupt) {
	switch irq {
	case TxSuspend:
		pipes := e.regs.ReadN(reg.IrqSuspendInfoEE, reg.EEAp)
		e.regs.WriteN(reg.SuspendIrqClrEE, reg.EEAp, pipes)
		e.pipes.HandleSuspend(pipes)
	case ClockQuery:
		if err := e.FreezeClockVote(); err != nil {
			log.Print("err", e, ": ", irq, ": ", err)
		}
	case PeerPostInit:
		err := e.exec.Go(func() {
			if err := e.PostInit(); err != nil && err != ErrUp {
				log.Print("err", e, ": ", err)
			}
		})
		if err != nil {
			log.Print("err", e, ": ", irq, ": ", err)
		}
	default:
		log.Print("err", e, ": unexpected ", irq)
	}
}
