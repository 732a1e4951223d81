// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package channel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultAsyncBatch is the default rate-limited pool size for async
// message classes (PACKET_IN, FLOW_REMOVED, PORT_STATUS), used when a
// Channel isn't configured with a specific value (spec §4.9).
const DefaultAsyncBatch = 16

// parallelizer dispatches handler invocations on worker goroutines
// (spec §4.9). Async message classes share a bounded pool of size N
// with FIFO overflow queueing; every other message spawns an
// unbounded goroutine per message.
type parallelizer struct {
	ch *Channel

	mu      sync.Mutex
	sem     int // free slots in the async pool
	cap     int
	queue   []func()
	closing bool
}

func newParallelizer(ch *Channel, asyncBatch int) *parallelizer {
	if asyncBatch <= 0 {
		asyncBatch = DefaultAsyncBatch
	}
	return &parallelizer{ch: ch, sem: asyncBatch, cap: asyncBatch}
}

// dispatchAsync runs fn on the bounded pool, queueing it FIFO if every
// slot is in use.
func (p *parallelizer) dispatchAsync(fn func()) {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return
	}
	if p.sem > 0 {
		p.sem--
		p.mu.Unlock()
		go p.runAsync(fn)
		return
	}
	p.queue = append(p.queue, fn)
	p.mu.Unlock()
}

func (p *parallelizer) runAsync(fn func()) {
	p.runGuarded(fn)

	p.mu.Lock()
	if len(p.queue) == 0 {
		p.sem++
		p.mu.Unlock()
		return
	}
	next := p.queue[0]
	p.queue = p.queue[1:]
	p.mu.Unlock()
	p.runAsync(next)
}

// dispatch runs fn on its own unbounded goroutine (every message class
// other than PACKET_IN/FLOW_REMOVED/PORT_STATUS).
func (p *parallelizer) dispatch(fn func()) {
	p.mu.Lock()
	closing := p.closing
	p.mu.Unlock()
	if closing {
		return
	}
	go p.runGuarded(fn)
}

// runGuarded invokes fn, catching both ErrHandlerClose and any other
// panic/error: ErrHandlerClose closes the channel normally (spec
// §4.9), anything else is logged and also closes the channel — a
// handler is never allowed to take down the process it runs in.
func (p *parallelizer) runGuarded(fn func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if err, ok := r.(error); ok && errors.Is(err, ErrHandlerClose) {
			p.ch.closeWithCause(ErrHandlerClose)
			return
		}
		logrus.Errorf("channel: handler panic: %v", r)
		p.ch.closeWithCause(fmt.Errorf("handler panic: %v", r))
	}()
	fn()
}

func (p *parallelizer) stop() {
	p.mu.Lock()
	p.closing = true
	p.queue = nil
	p.mu.Unlock()
}
