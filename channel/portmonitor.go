// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package channel

import (
	"context"
	"sync"

	"code.hybscloud.com/ofchannel/ofp"
	"code.hybscloud.com/ofchannel/xid"
)

// Port status reasons (spec §4.6); stable across every OpenFlow
// version this module negotiates.
const (
	portReasonAdd    = 0
	portReasonDelete = 1
	portReasonModify = 2
)

// portWaiter is a one-shot signal for wait_attach/wait_detach (spec
// §3, "Sequence waiters"). The original holds these as weak mappings;
// a waiter here is removed from its map the moment it fires or its
// caller times out, which gives the same one-shot, no-leak behavior
// without needing weak references.
type portWaiter struct {
	attach chan ofp.PortEntry // non-nil for an attach waiter
	detach chan struct{}      // non-nil for a detach waiter
}

// portMonitor is the live port table (spec §4.6, PortMonitorChannel).
// ports, the waiter maps, and the lazy-init state are all guarded by
// mu, a dedicated per-channel lock never held across a transport
// operation (spec §5).
type portMonitor struct {
	mu       sync.Mutex
	ports    []ofp.PortEntry
	initDone bool

	attachWaiters map[any][]*portWaiter
	detachWaiters map[any][]*portWaiter
}

func newPortMonitor() *portMonitor {
	return &portMonitor{
		attachWaiters: make(map[any][]*portWaiter),
		detachWaiters: make(map[any][]*portWaiter),
	}
}

func portMatchesKey(e ofp.PortEntry, key any) bool {
	switch k := key.(type) {
	case uint32:
		return e.PortNo == k
	case string:
		return e.Name == k
	default:
		return false
	}
}

func findPortIndex(ports []ofp.PortEntry, key any) int {
	for i, e := range ports {
		if portMatchesKey(e, key) {
			return i
		}
	}
	return -1
}

// snapshot returns the current port table. Two calls with no
// intervening PORT_STATUS return equal lists (spec §8).
func (pm *portMonitor) snapshot() []ofp.PortEntry {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]ofp.PortEntry, len(pm.ports))
	copy(out, pm.ports)
	return out
}

// applyStatus applies a live PORT_STATUS update (spec §4.6): ADD
// appends and wakes attach waiters, DELETE removes and wakes detach
// waiters, MODIFY replaces in place with no waiter signalling. ADD on
// an already-present port_no, or DELETE/MODIFY on an absent one, is a
// protocol violation from the peer and reported as such rather than
// panicking (the original asserts; this module degrades to an error).
func (pm *portMonitor) applyStatus(reason uint8, port ofp.PortEntry) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	switch reason {
	case portReasonAdd:
		if findPortIndex(pm.ports, port.PortNo) >= 0 {
			return ErrProtocolFraming
		}
		pm.ports = append(pm.ports, port)
		pm.fireAttachLocked(port)
	case portReasonDelete:
		i := findPortIndex(pm.ports, port.PortNo)
		if i < 0 {
			return ErrProtocolFraming
		}
		pm.ports = append(pm.ports[:i:i], pm.ports[i+1:]...)
		pm.fireDetachLocked(port)
	case portReasonModify:
		i := findPortIndex(pm.ports, port.PortNo)
		if i < 0 {
			return ErrProtocolFraming
		}
		pm.ports[i] = port
	}
	return nil
}

// replaceAll installs a freshly fetched port table (the initial sweep,
// or any later explicit refresh), diffing against the previous table
// by port_no and by name to fire attach/detach waiters for whatever
// changed (spec §4.6: "diff old vs new sets ... fire attach/detach
// waiters for the differences").
func (pm *portMonitor) replaceAll(newPorts []ofp.PortEntry) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	old := pm.ports
	pm.ports = newPorts
	pm.initDone = true

	for _, e := range newPorts {
		if findPortIndex(old, e.PortNo) < 0 || findPortIndex(old, e.Name) < 0 {
			pm.fireAttachLocked(e)
		}
	}
	for _, e := range old {
		for _, key := range [2]any{e.PortNo, e.Name} {
			if findPortIndex(newPorts, key) < 0 {
				for _, w := range pm.detachWaiters[key] {
					close(w.detach)
				}
				delete(pm.detachWaiters, key)
			}
		}
	}
}

func (pm *portMonitor) fireAttachLocked(port ofp.PortEntry) {
	for _, key := range [2]any{port.PortNo, port.Name} {
		for _, w := range pm.attachWaiters[key] {
			select {
			case w.attach <- port:
			default:
			}
		}
		delete(pm.attachWaiters, key)
	}
}

func (pm *portMonitor) fireDetachLocked(port ofp.PortEntry) {
	for _, key := range [2]any{port.PortNo, port.Name} {
		for _, w := range pm.detachWaiters[key] {
			close(w.detach)
		}
		delete(pm.detachWaiters, key)
	}
}

// closeAll fires every outstanding waiter with a zero value so no
// caller of WaitAttach/WaitDetach blocks forever past channel close.
func (pm *portMonitor) closeAll() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, ws := range pm.attachWaiters {
		for _, w := range ws {
			close(w.attach)
		}
	}
	for _, ws := range pm.detachWaiters {
		for _, w := range ws {
			close(w.detach)
		}
	}
	pm.attachWaiters = make(map[any][]*portWaiter)
	pm.detachWaiters = make(map[any][]*portWaiter)
}

func removeWaiter(m map[any][]*portWaiter, key any, target *portWaiter) {
	ws := m[key]
	for i, w := range ws {
		if w == target {
			m[key] = append(ws[:i:i], ws[i+1:]...)
			return
		}
	}
}

// WaitAttach blocks until a port matching key (a uint32 port_no or a
// string name) appears, or ctx is done. It returns immediately if the
// port is already present (spec §4.6: "install a one-shot waiter if
// the key is not already in the desired state").
func (ch *Channel) WaitAttach(ctx context.Context, key any) (ofp.PortEntry, error) {
	pm := ch.ports
	pm.mu.Lock()
	if i := findPortIndex(pm.ports, key); i >= 0 {
		e := pm.ports[i]
		pm.mu.Unlock()
		return e, nil
	}
	w := &portWaiter{attach: make(chan ofp.PortEntry, 1)}
	pm.attachWaiters[key] = append(pm.attachWaiters[key], w)
	pm.mu.Unlock()

	select {
	case e, ok := <-w.attach:
		if !ok {
			return ofp.PortEntry{}, ErrClosed
		}
		return e, nil
	case <-ctx.Done():
		pm.mu.Lock()
		removeWaiter(pm.attachWaiters, key, w)
		pm.mu.Unlock()
		return ofp.PortEntry{}, ErrTimeout
	}
}

// WaitDetach blocks until the port matching key disappears, or ctx is
// done.
func (ch *Channel) WaitDetach(ctx context.Context, key any) error {
	pm := ch.ports
	pm.mu.Lock()
	if findPortIndex(pm.ports, key) < 0 {
		pm.mu.Unlock()
		return nil
	}
	w := &portWaiter{detach: make(chan struct{})}
	pm.detachWaiters[key] = append(pm.detachWaiters[key], w)
	pm.mu.Unlock()

	select {
	case <-w.detach:
		return nil
	case <-ctx.Done():
		pm.mu.Lock()
		removeWaiter(pm.detachWaiters, key, w)
		pm.mu.Unlock()
		return ErrTimeout
	}
}

// Ports returns the live port table, lazily fetching it from the
// switch on first call (spec §4.6, scenario 5). Versions 1.3+ use
// MULTIPART PORT_DESC; earlier versions embed the port list directly
// in FEATURES_REPLY.
func (ch *Channel) Ports(ctx context.Context) ([]ofp.PortEntry, error) {
	ch.ports.mu.Lock()
	done := ch.ports.initDone
	ch.ports.mu.Unlock()
	if done {
		return ch.ports.snapshot(), nil
	}

	version := ch.Version()
	var fetched []ofp.PortEntry
	if version >= 4 {
		ports, err := ch.fetchPortDesc(ctx, version)
		if err != nil {
			return nil, err
		}
		fetched = ports
	} else {
		reply, err := ch.Feature(ctx)
		if err != nil {
			return nil, err
		}
		decoded, err := ofp.Default.Decode(version, ofp.TypeFeaturesReply, reply)
		if err != nil {
			return nil, err
		}
		fetched = decoded.(ofp.FeaturesReply).Ports
	}

	ch.ports.replaceAll(fetched)
	return ch.ports.snapshot(), nil
}

// fetchPortDesc runs a MULTIPART_REQUEST(PORT_DESC) and reassembles
// however many reply fragments arrive before the "more" flag clears
// into one port list (spec §4.6, scenario 5: two fragments of 3 and 2
// ports yield a 5-entry table).
func (ch *Channel) fetchPortDesc(ctx context.Context, version uint8) ([]ofp.PortEntry, error) {
	req := ofp.BuildMultipartRequest(version, ofp.MultipartPortDesc, xid.Next())
	data, err := ch.Single(ctx, req)
	if err != nil {
		return nil, err
	}

	var ports []ofp.PortEntry
	for len(data) > 0 {
		h, err := ofp.ParseHeader(data)
		if err != nil {
			return nil, err
		}
		total := int(h.Length)
		if len(data) < total {
			return nil, ErrProtocolFraming
		}
		_, body, _, err := ofp.MultipartReplyBody(data[:total])
		if err != nil {
			return nil, err
		}
		pl, err := ofp.ParsePortList(version, body)
		if err != nil {
			return nil, err
		}
		ports = append(ports, pl...)
		data = data[total:]
	}
	return ports, nil
}
