// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package channel

import "sync"

// Callback receives a reply payload previously correlated by the
// barrier sequencer (§4.4) or delivered as an async message.
type Callback func(reply []byte, ch *Channel)

// HandlerID identifies a registered Callback. The zero value means
// "the channel's default callback" wherever a HandlerID parameter is
// accepted.
//
// The original implementation holds callbacks by weak reference so a
// reclaimed handler object silently drops its pending replies (spec
// §9, "Weak callbacks"). Go has no ambient weak references on
// arbitrary closures, so this module re-architects the same contract
// the spec's own notes suggest: callbacks are registered explicitly
// and looked up by id; once a caller releases an id (or never
// registers one), delivery finds nothing and is treated exactly like
// a reclaimed weak reference — the reply is dropped. The Chunk is not
// removed at that point; it stays until the next matching Barrier
// reply clears it.
type HandlerID uint64

type handlerRegistry struct {
	mu   sync.Mutex
	m    map[HandlerID]Callback
	next HandlerID
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{m: make(map[HandlerID]Callback)}
}

// register installs cb under a fresh, never-zero id.
func (r *handlerRegistry) register(cb Callback) HandlerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	r.m[id] = cb
	return id
}

// release removes id. Any reply arriving for it afterwards is dead.
func (r *handlerRegistry) release(id HandlerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
}

func (r *handlerRegistry) lookup(id HandlerID) (Callback, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.m[id]
	return cb, ok
}

// releaseAll drops every registered handler — called on channel close
// so no further reply delivery can occur (spec §7, ChannelClose).
func (r *handlerRegistry) releaseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m = make(map[HandlerID]Callback)
}
