// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package channel

import (
	"context"
	"sync"
	"time"

	"code.hybscloud.com/ofchannel/ofp"
	"code.hybscloud.com/ofchannel/xid"
)

// DefaultSyncTimeout is the timeout a Sync call uses when the caller
// doesn't supply a context deadline (spec §4.5, §5).
const DefaultSyncTimeout = 10 * time.Second

// syncTracker is the per-xid state described in spec §3 ("Sync
// tracker"): a completion signal plus whatever reply bytes have
// accumulated so far. Present in the map iff a caller is waiting on
// its xid; removed by the caller after the signal fires.
type syncTracker struct {
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	data    []byte
	isError bool
}

func newSyncTracker() *syncTracker {
	return &syncTracker{done: make(chan struct{})}
}

func (t *syncTracker) append(msg []byte, isError bool) {
	t.mu.Lock()
	t.data = append(t.data, msg...)
	if isError {
		t.isError = true
	}
	t.mu.Unlock()
}

func (t *syncTracker) complete() {
	t.closeOnce.Do(func() { close(t.done) })
}

func (t *syncTracker) snapshot() (data []byte, isError bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data, t.isError
}

func (t *syncTracker) reset() {
	t.mu.Lock()
	t.data = nil
	t.isError = false
	t.mu.Unlock()
}

// syncState is the channel-wide map of outstanding trackers, guarded
// by its own lock (spec §5: "the sync map... protected by a dedicated
// per-channel lock").
type syncState struct {
	mu       sync.Mutex
	trackers map[uint32]*syncTracker
}

func newSyncState() *syncState {
	return &syncState{trackers: make(map[uint32]*syncTracker)}
}

func (s *syncState) register(xid uint32) *syncTracker {
	t := newSyncTracker()
	s.mu.Lock()
	s.trackers[xid] = t
	s.mu.Unlock()
	return t
}

func (s *syncState) remove(xid uint32) {
	s.mu.Lock()
	delete(s.trackers, xid)
	s.mu.Unlock()
}

func (s *syncState) lookup(xid uint32) (*syncTracker, bool) {
	s.mu.Lock()
	t, ok := s.trackers[xid]
	s.mu.Unlock()
	return t, ok
}

// deliver routes an incoming message to the tracker registered for
// its xid, if any, applying multipart/stats accumulation (spec §4.5).
// It reports whether a tracker consumed the message — sequencer.route
// must never see a message a sync tracker already claimed.
func (s *syncState) deliver(version uint8, h ofp.Header, msg []byte) bool {
	t, ok := s.lookup(h.Xid)
	if !ok {
		return false
	}
	switch {
	case h.Type == ofp.TypeError:
		t.append(msg, true)
		t.complete()
	case ofp.IsMultipartReply(version, h.Type):
		more := ofp.MultipartMore(msg)
		t.append(msg, false)
		if !more {
			t.complete()
		}
	default:
		t.append(msg, false)
		t.complete()
	}
	return true
}

// closeAll resolves every outstanding tracker with empty data (spec
// §4.5 failure modes: "channel close sets every outstanding tracker's
// data to empty and signals completion").
func (s *syncState) closeAll() {
	s.mu.Lock()
	trackers := s.trackers
	s.trackers = make(map[uint32]*syncTracker)
	s.mu.Unlock()

	for _, t := range trackers {
		t.reset()
		t.complete()
	}
}

// wait blocks until t completes or ctx is done, then removes t from
// the map and returns its accumulated data. A ctx timeout returns
// whatever partial data had accumulated (possibly nil) and
// ErrTimeout; channel close or a received ERROR is reported via the
// returned error.
func (ch *Channel) wait(ctx context.Context, xid uint32, t *syncTracker) ([]byte, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		ch.sync.remove(xid)
		data, _ := t.snapshot()
		return data, ErrTimeout
	case <-ch.closed:
		ch.sync.remove(xid)
		data, _ := t.snapshot()
		return data, ErrClosed
	}
	ch.sync.remove(xid)
	data, isError := t.snapshot()
	if len(data) == 0 {
		// close completes every tracker with no data
		select {
		case <-ch.closed:
			return data, ErrClosed
		default:
		}
	}
	if isError {
		oe, err := parseOpenflowError(data)
		if err != nil {
			return data, err
		}
		return data, oe
	}
	return data, nil
}

func (ch *Channel) syncCall(ctx context.Context, msg []byte) ([]byte, error) {
	h, err := ofp.ParseHeader(msg)
	if err != nil {
		return nil, err
	}
	t := ch.sync.register(h.Xid)
	if err := ch.writeFrame(msg); err != nil {
		ch.sync.remove(h.Xid)
		return nil, err
	}
	return ch.wait(ctx, h.Xid, t)
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultSyncTimeout)
}

// Echo sends ECHO_REQUEST and blocks for ECHO_REPLY.
func (ch *Channel) Echo(ctx context.Context, payload []byte) ([]byte, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()
	version := ch.Version()
	x := xid.Next()
	msg := make([]byte, ofp.HeaderLen+len(payload))
	ofp.PutHeader(msg, ofp.Header{Version: version, Type: ofp.TypeEchoRequest, Length: uint16(len(msg)), Xid: x})
	copy(msg[ofp.HeaderLen:], payload)
	return ch.syncCall(ctx, msg)
}

// Feature sends FEATURES_REQUEST and blocks for FEATURES_REPLY.
func (ch *Channel) Feature(ctx context.Context) ([]byte, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()
	version := ch.Version()
	msg := ofp.HeaderOnly(version, ofp.TypeFeaturesReq, xid.Next())
	return ch.syncCall(ctx, msg)
}

// GetConfig sends GET_CONFIG_REQUEST and blocks for the reply.
func (ch *Channel) GetConfig(ctx context.Context) ([]byte, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()
	version := ch.Version()
	msg := ofp.HeaderOnly(version, ofp.TypeGetConfigReq, xid.Next())
	return ch.syncCall(ctx, msg)
}

// Barrier sends a single BARRIER_REQUEST and blocks for its reply.
func (ch *Channel) Barrier(ctx context.Context) ([]byte, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()
	version := ch.Version()
	msg := ofp.BuildBarrierRequest(version, xid.Next())
	return ch.syncCall(ctx, msg)
}

// Single sends msg (with a fresh xid stamped in) and blocks for its
// reply, accumulating multipart/stats fragments until the "more" flag
// clears (spec §4.5, scenario 4).
func (ch *Channel) Single(ctx context.Context, msg []byte) ([]byte, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()
	h, err := ofp.ParseHeader(msg)
	if err != nil {
		return nil, err
	}
	h.Xid = xid.Next()
	stamped := make([]byte, len(msg))
	copy(stamped, msg)
	ofp.PutHeader(stamped, h)
	return ch.syncCall(ctx, stamped)
}

// Multi sends every message in msgs, then a single trailing BARRIER,
// then harvests each xid's accumulated data after the barrier reply
// (spec §4.5: "multi sends all messages then a single BARRIER; ...
// harvests each xid's accumulated data (missing → nil)"). A message
// whose reply never arrived before the barrier reply yields a nil
// slot rather than an error.
func (ch *Channel) Multi(ctx context.Context, msgs [][]byte) ([][]byte, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	xids := make([]uint32, len(msgs))
	trackers := make([]*syncTracker, len(msgs))
	for i, msg := range msgs {
		h, err := ofp.ParseHeader(msg)
		if err != nil {
			return nil, err
		}
		xids[i] = h.Xid
		trackers[i] = ch.sync.register(h.Xid)
		if err := ch.writeFrame(msg); err != nil {
			for j := 0; j <= i; j++ {
				ch.sync.remove(xids[j])
			}
			return nil, err
		}
	}

	if _, err := ch.Barrier(ctx); err != nil {
		for _, x := range xids {
			ch.sync.remove(x)
		}
		return nil, err
	}

	out := make([][]byte, len(msgs))
	for i, t := range trackers {
		select {
		case <-t.done:
			data, _ := t.snapshot()
			out[i] = data
		default:
			// Reply never arrived before the barrier reply: missing.
		}
		ch.sync.remove(xids[i])
	}
	return out, nil
}
