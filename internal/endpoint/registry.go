// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package endpoint maps logical clients to the engine's physical pipes
// and holds the live per-pipe endpoint state.
package endpoint

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"
)

// MaxPipes bounds the physical pipe index.
const MaxPipes = 32

var ErrConfig = errors.New("invalid endpoint table")

// Registry is the immutable client to pipe mapping of one engine.
type Registry struct {
	byClient [NClient]Config
	byPipe   [MaxPipes]Client
	pipes    uint32
	filter   uint32
}

// New validates src and builds its registry. Each valid entry must name
// a distinct pipe below MaxPipes.
func New(src Source) (*Registry, error) {
	r := &Registry{}
	for c, cfg := range src {
		if c >= NClient {
			return nil, fmt.Errorf("%w: client %d", ErrConfig, c)
		}
		if !cfg.Valid {
			continue
		}
		if cfg.Pipe >= MaxPipes {
			return nil, fmt.Errorf("%w: %v pipe %d out of range",
				ErrConfig, c, cfg.Pipe)
		}
		if r.pipes&(1<<cfg.Pipe) != 0 {
			return nil, fmt.Errorf("%w: %v and %v share pipe %d",
				ErrConfig, c, r.byPipe[cfg.Pipe], cfg.Pipe)
		}
		r.pipes |= 1 << cfg.Pipe
		r.byPipe[cfg.Pipe] = c
		r.byClient[c] = cfg
		if cfg.SupportFilter {
			r.filter |= 1 << cfg.Pipe
		}
	}
	return r, nil
}

// Config returns the table entry of c.
func (r *Registry) Config(c Client) (Config, bool) {
	if c >= NClient || !r.byClient[c].Valid {
		return Config{}, false
	}
	return r.byClient[c], true
}

// PipeForClient returns the physical pipe of c. The table is fixed, so
// asking for a client without an entry is a programming error.
func (r *Registry) PipeForClient(c Client) uint32 {
	cfg, ok := r.Config(c)
	if !ok {
		panic(fmt.Errorf("endpoint: no pipe for %v", c))
	}
	return cfg.Pipe
}

// FilterBitmap has a bit set for each pipe able to filter.
func (r *Registry) FilterBitmap() uint32 { return r.filter }

// FilterCount is the number of filtering pipes.
func (r *Registry) FilterCount() int { return bits.OnesCount32(r.filter) }

// IsModemPipe reports whether pipe belongs to a modem client.
func (r *Registry) IsModemPipe(pipe uint32) bool {
	if pipe >= MaxPipes || r.pipes&(1<<pipe) == 0 {
		return false
	}
	return r.byPipe[pipe].IsModem()
}

// Clients returns the valid clients in ascending order.
func (r *Registry) Clients() []Client {
	var cs []Client
	for c := range r.byClient {
		if r.byClient[c].Valid {
			cs = append(cs, Client(c))
		}
	}
	sort.Slice(cs, func(i, j int) bool { return cs[i] < cs[j] })
	return cs
}
