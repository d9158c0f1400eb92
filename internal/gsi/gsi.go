// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package gsi is the engine's view of the generic software interface
// that moves descriptors over data channels.
package gsi

import (
	"errors"
	"fmt"

	"github.com/platinasystems/ipa/internal/imm"
)

var (
	ErrBusy      = errors.New("channel busy")
	ErrTimeout   = errors.New("channel timeout")
	ErrNoChannel = errors.New("no free channel")
)

// Channel is a handle returned by Alloc.
type Channel int32

const NoChannel Channel = -1

type Dir int

const (
	ToEngine Dir = iota
	FromEngine
)

func (d Dir) String() string {
	if d == ToEngine {
		return "to-engine"
	}
	return "from-engine"
}

// Props describe a channel to allocate.
type Props struct {
	Pipe    uint32
	Channel uint32
	EE      uint32
	Dir     Dir
	Ring    int
}

func (p Props) String() string {
	return fmt.Sprintf("pipe %d ch %d ee %d %v", p.Pipe, p.Channel, p.EE,
		p.Dir)
}

// Controller operates channels. Stop returns ErrBusy or ErrTimeout when
// the channel has transfers in flight.
type Controller interface {
	Alloc(p Props) (Channel, error)
	Start(ch Channel) error
	Stop(ch Channel) error
	Reset(ch Channel) error
	Free(ch Channel) error
	IntrEnable(ch Channel) error
	IntrDisable(ch Channel) error
	Queue(ch Channel, descs []imm.Desc, done func(error)) error
}

// Transport sends immediate commands on one channel.
type Transport struct {
	Controller
	Channel
}

func (t Transport) Queue(descs []imm.Desc, done func(error)) error {
	return t.Controller.Queue(t.Channel, descs, done)
}
