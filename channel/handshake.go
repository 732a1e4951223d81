// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package channel

import (
	"sync/atomic"

	"code.hybscloud.com/ofchannel/ofp"
	"code.hybscloud.com/ofchannel/xid"
)

// handshakeState tracks negotiation: a channel MUST NOT send any
// non-HELLO message before it completes, and the negotiated version is
// immutable once set (spec §4.2, §7). version/done are set exactly
// once, by the receive loop, then read from arbitrary goroutines —
// atomics avoid needing a lock for what is otherwise write-once state.
type handshakeState struct {
	sentHello bool
	version   atomic.Uint32
	done      atomic.Bool
}

// startHandshake sends this channel's own HELLO, advertising accepted.
func (ch *Channel) startHandshake() error {
	hello := ofp.BuildHello(ch.accepted, xid.Next())
	ch.hs.sentHello = true
	return ch.writeFrame(hello)
}

// handleHello processes a peer HELLO, negotiating the common version.
// On an empty intersection it writes ERROR(HELLO_FAILED,INCOMPATIBLE)
// and returns ErrVersionMismatch, which the caller treats as fatal.
func (ch *Channel) handleHello(msg []byte) error {
	decoded, err := ofp.Default.Decode(0, ofp.TypeHello, msg)
	if err != nil {
		return err
	}
	peer := decoded.(map[uint8]bool)
	common := ofp.IntersectVersions(peer, ch.accepted)
	version, ok := ofp.MaxVersion(common)
	if !ok {
		fail := ofp.BuildErrorHelloFailed(maxAccepted(ch.accepted), xid.Next(), "no common openflow version")
		_ = ch.writeFrame(fail)
		return ErrVersionMismatch
	}
	ch.hs.version.Store(uint32(version))
	ch.hs.done.Store(true)
	return nil
}

func maxAccepted(accepted []uint8) uint8 {
	v, _ := ofp.MaxVersion(accepted)
	return v
}

// Version returns the negotiated OpenFlow version (1=1.0 ... 6=1.5),
// or 0 before the handshake completes.
func (ch *Channel) Version() uint8 {
	return uint8(ch.hs.version.Load())
}

// HandshakeDone reports whether version negotiation has completed.
func (ch *Channel) HandshakeDone() bool {
	return ch.hs.done.Load()
}
