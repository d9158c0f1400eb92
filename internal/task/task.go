// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package task runs deferred work on a bounded number of goroutines.
// Submitting never blocks the caller; with a single worker, tasks run
// in submission order.
package task

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

var ErrClosed = errors.New("executor closed")

type Executor struct {
	name string
	sem  *semaphore.Weighted
	wg   sync.WaitGroup

	mu     sync.Mutex
	queue  []func()
	closed bool
}

// New returns an executor running at most workers tasks at once.
func New(name string, workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{
		name: name,
		sem:  semaphore.NewWeighted(int64(workers)),
	}
}

func (e *Executor) String() string { return e.name }

// Go queues f and returns immediately.
func (e *Executor) Go(f func()) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.wg.Add(1)
	e.queue = append(e.queue, f)
	e.mu.Unlock()
	if e.sem.TryAcquire(1) {
		go e.drain()
	}
	return nil
}

func (e *Executor) next() func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return nil
	}
	f := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	return f
}

func (e *Executor) pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue) > 0
}

func (e *Executor) drain() {
	for {
		for f := e.next(); f != nil; f = e.next() {
			f()
			e.wg.Done()
		}
		e.sem.Release(1)
		// A task queued between the last next and Release found no
		// free worker; pick it up.
		if !e.pending() || !e.sem.TryAcquire(1) {
			return
		}
	}
}

// Wait blocks until every queued task has run or ctx is done.
func (e *Executor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close refuses new tasks and waits for queued ones.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return e.Wait(ctx)
}
