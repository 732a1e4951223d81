// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package channel

import (
	"sync"

	"code.hybscloud.com/ofchannel/ofp"
	"code.hybscloud.com/ofchannel/xid"
)

type seqKind uint8

const (
	seqChunk seqKind = iota
	seqBarrier
)

type seqEntry struct {
	kind seqKind
	xid  uint32 // only meaningful for seqBarrier
	cb   HandlerID
}

// sequencer implements the barrier/callback sequencer (spec §4.4,
// ControllerChannel in the original): it attributes each reply to the
// send that caused it, even though OpenFlow allows replies to be
// reordered or interleaved, by fencing callback transitions with an
// inserted BARRIER_REQUEST.
//
// Invariant: entries alternates Chunk/Barrier, never two Chunks
// adjacent; a Barrier's reply removes every element up to and
// including it.
type sequencer struct {
	mu        sync.Mutex
	entries   []seqEntry
	defaultCB HandlerID
}

func newSequencer(defaultCB HandlerID) *sequencer {
	return &sequencer{defaultCB: defaultCB}
}

// beforeSend runs under the sequencer's lock before msg is written to
// the wire. If non-nil, the returned barrier message must be written
// to the transport before msg itself — the wire order is always
// "any inserted barrier, then the user message" (spec §4.4 rule 3).
func (s *sequencer) beforeSend(version uint8, msg []byte, cb HandlerID) (barrier []byte, err error) {
	h, err := ofp.ParseHeader(msg)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if h.Type == ofp.BarrierRequestType(version) {
		s.entries = append(s.entries, seqEntry{kind: seqBarrier, xid: h.Xid, cb: cb})
		return nil, nil
	}

	if n := len(s.entries); n > 0 {
		tail := s.entries[n-1]
		switch tail.kind {
		case seqChunk:
			if tail.cb == cb {
				return nil, nil // message joins the existing chunk
			}
			bxid := xid.Next()
			barrier = ofp.BuildBarrierRequest(version, bxid)
			s.entries = append(s.entries,
				seqEntry{kind: seqBarrier, xid: bxid, cb: s.defaultCB},
				seqEntry{kind: seqChunk, cb: cb})
			return barrier, nil
		default: // seqBarrier
			s.entries = append(s.entries, seqEntry{kind: seqChunk, cb: cb})
			return nil, nil
		}
	}

	if cb != s.defaultCB {
		// Flush any outstanding default-callback traffic before this
		// chunk starts, so default-callback replies already in flight
		// aren't misattributed to the new chunk.
		bxid := xid.Next()
		barrier = ofp.BuildBarrierRequest(version, bxid)
		s.entries = append(s.entries,
			seqEntry{kind: seqBarrier, xid: bxid, cb: s.defaultCB},
			seqEntry{kind: seqChunk, cb: cb})
		return barrier, nil
	}
	s.entries = append(s.entries, seqEntry{kind: seqChunk, cb: cb})
	return nil, nil
}

// route implements the receive-side attribution rules of spec §4.4
// for a reply not claimed by the sync tracker. ok is false only for a
// BARRIER_REPLY whose xid doesn't match the expected barrier — a
// protocol violation the caller should treat as fatal framing trouble
// from an uncooperative peer; the sequencer discards state up to the
// unexpected barrier defensively so it doesn't wedge forever.
func (s *sequencer) route(version uint8, h ofp.Header) (cb HandlerID, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return s.defaultCB, true
	}

	if ofp.IsBarrierReply(version, h.Type) {
		for i, e := range s.entries {
			if e.kind != seqBarrier {
				// At most one Chunk may precede the matching Barrier
				// (it was superseded before its reply arrived);
				// continue scanning.
				continue
			}
			if e.xid != h.Xid {
				s.entries = s.entries[i+1:]
				return 0, false
			}
			cb = e.cb
			s.entries = s.entries[i+1:]
			return cb, true
		}
		return 0, false
	}

	if s.entries[0].kind == seqChunk {
		return s.entries[0].cb, true
	}
	return s.defaultCB, true
}
