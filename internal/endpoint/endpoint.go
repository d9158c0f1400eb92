// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package endpoint

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/platinasystems/ipa/internal/gsi"
	"github.com/platinasystems/ipa/internal/reg"
)

// Event is passed to a pipe's notify callback.
type Event int

const (
	Receive Event = iota
	WriteDone
)

func (e Event) String() string {
	switch e {
	case Receive:
		return "receive"
	case WriteDone:
		return "write-done"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Notify is supplied by the network glue for each pipe it sets up.
type Notify func(ev Event, data interface{})

// ModeCfg selects the producer mode; Dst is only meaningful for
// ModeDma.
type ModeCfg struct {
	Mode reg.Mode
	Dst  Client
}

// Cfg is the configuration snapshot of a pipe.
type Cfg struct {
	Hdr          reg.Hdr
	HdrExt       reg.HdrExt
	Aggr         reg.Aggr
	Cfg          reg.Cfg
	Mode         ModeCfg
	MetadataMask reg.MetadataMask
}

// Endpoint is the live state of one physical pipe.
type Endpoint struct {
	Client        Client
	Pipe          uint32
	Valid         bool
	SupportFilter bool
	Sequencer     Sequencer
	Cfg           Cfg
	Status        reg.Status
	Channel       uint32
	// Handle is the allocated GSI channel.
	Handle gsi.Channel
	// Destination pipe of a DMA mode producer.
	DstPipe uint32
	Notify  Notify

	polling int32
}

func (ep *Endpoint) Polling() bool { return atomic.LoadInt32(&ep.polling) != 0 }

func (ep *Endpoint) SetPolling(on bool) {
	var v int32
	if on {
		v = 1
	}
	atomic.StoreInt32(&ep.polling, v)
}

// Table holds every pipe's endpoint. Client, Valid and Handle change
// only under the table lock so interrupt handlers may look them up
// while pipes are set up and torn down.
type Table struct {
	mu  sync.RWMutex
	eps [MaxPipes]Endpoint
}

func NewTable() *Table {
	t := &Table{}
	for i := range t.eps {
		t.eps[i].Pipe = uint32(i)
		t.eps[i].Handle = gsi.NoChannel
	}
	return t
}

// Get returns the endpoint of pipe; out of range is a programming error.
// Fields other than Pipe are read through the table or by the pipe's
// owner.
func (t *Table) Get(pipe uint32) *Endpoint {
	if pipe >= MaxPipes {
		panic(fmt.Errorf("endpoint: pipe %d out of range", pipe))
	}
	return &t.eps[pipe]
}

// Lookup returns the client bound to a valid pipe.
func (t *Table) Lookup(pipe uint32) (Client, bool) {
	if pipe >= MaxPipes {
		return 0, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	ep := &t.eps[pipe]
	return ep.Client, ep.Valid
}

// ClientForPipe is the inverse of Registry.PipeForClient over live
// endpoints.
func (t *Table) ClientForPipe(pipe uint32) Client {
	c, _ := t.Lookup(pipe)
	return c
}

// Handle returns the channel of a valid pipe that has one.
func (t *Table) Handle(pipe uint32) (gsi.Channel, bool) {
	if pipe >= MaxPipes {
		return gsi.NoChannel, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	ep := &t.eps[pipe]
	if !ep.Valid || ep.Handle == gsi.NoChannel {
		return gsi.NoChannel, false
	}
	return ep.Handle, true
}

// SetHandle records the channel allocated for a valid pipe.
func (t *Table) SetHandle(pipe uint32, ch gsi.Channel) {
	t.Update(pipe, func(ep *Endpoint) { ep.Handle = ch })
}

// Update calls f with the endpoint of pipe under the table lock.
func (t *Table) Update(pipe uint32, f func(ep *Endpoint)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f(t.Get(pipe))
}

// SetPolling moves pipe in or out of poll mode if it is still bound to
// c.
func (t *Table) SetPolling(pipe uint32, c Client, on bool) bool {
	if pipe >= MaxPipes {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	ep := &t.eps[pipe]
	if !ep.Valid || ep.Client != c {
		return false
	}
	ep.SetPolling(on)
	return true
}

// Bind marks pipe valid for the client described by cfg.
func (t *Table) Bind(c Client, cfg Config, notify Notify) (*Endpoint, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ep := t.Get(cfg.Pipe)
	if ep.Valid {
		return nil, fmt.Errorf("pipe %d already bound to %v", cfg.Pipe,
			ep.Client)
	}
	ep.Client = c
	ep.Valid = true
	ep.SupportFilter = cfg.SupportFilter
	ep.Sequencer = cfg.Sequencer
	ep.Cfg = Cfg{}
	ep.Status = reg.Status{}
	ep.Channel = cfg.Channel
	ep.Handle = gsi.NoChannel
	ep.DstPipe = 0
	ep.Notify = notify
	ep.SetPolling(false)
	return ep, nil
}

// Unbind invalidates pipe.
func (t *Table) Unbind(pipe uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ep := t.Get(pipe)
	ep.Client = 0
	ep.Valid = false
	ep.SupportFilter = false
	ep.Sequencer = 0
	ep.Cfg = Cfg{}
	ep.Status = reg.Status{}
	ep.Channel = 0
	ep.Handle = gsi.NoChannel
	ep.DstPipe = 0
	ep.Notify = nil
	ep.SetPolling(false)
}

// Range calls f for each valid endpoint with the table read locked; f
// must not call back into the table.
func (t *Table) Range(f func(ep *Endpoint)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := range t.eps {
		if t.eps[i].Valid {
			f(&t.eps[i])
		}
	}
}
