// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package framer

import "io"

// Forwarder relays framed messages from a source to a destination while
// preserving message boundaries.
//
// Semantics (Stream):
//   - One call to ForwardOnce processes at most one whole message.
//   - Two-phase state machine per message:
//     1) Read one whole message (header included) from src into an internal
//     buffer (non-blocking; may return early with partial progress and
//     ErrWouldBlock or ErrMore).
//     2) Write that same message, byte for byte, to dst (non-blocking; may
//     return early with partial progress and ErrWouldBlock or ErrMore).
//   - Returns (n, nil) when a whole message has been forwarded to dst.
//   - Returns (n>0, ErrWouldBlock|ErrMore) when progress happened in the current
//     phase (read or write) but the forwarding of this message is incomplete.
//   - Because Write never rewrites a header, the destination sees exactly the
//     bytes the source produced.
//
// Semantics (Datagram):
//   - Treats one packet as one message unit per call. Reads one packet from src
//     and writes one packet to dst.
//
// Limits and buffer sizing:
//   - The internal buffer is allocated during construction based on the
//     read-side limit (WithReadLimit). If ReadLimit is zero, a conservative
//     default (64KiB) is used. There are no heap allocations in the steady-state
//     forwarding path.
//   - If the current message's Length exceeds the read-side limit, ForwardOnce
//     returns ErrTooLong. Callers can construct a new Forwarder with a
//     larger ReadLimit to accommodate larger messages.
//
// Retry rule:
//   - On ErrWouldBlock or ErrMore, the caller must retry ForwardOnce on the SAME
//     Forwarder instance to complete the in-flight message. Do not reuse a
//     different instance because the in-flight state (read/write progress) is
//     maintained internally.
type Forwarder struct {
	rr *framer // read-side state machine (uses rr.rd, rr.rpr)
	ww *framer // write-side state machine (uses ww.wr, ww.wpr)

	// Internal message buffer reused across messages to ensure zero-alloc steady state.
	buf []byte

	// Per-message state.
	need  int   // whole-message length for current message
	state uint8 // 0: read phase, 1: write phase

	// EOF handling for packet-preserving protocols: some io.Reader
	// implementations may return (n>0, io.EOF) on the final read.
	// ForwardOnce forwards that final message and then returns io.EOF on
	// the next call.
	eofAfterThis bool
	eofPending   bool
}

// NewForwarder constructs a Forwarder that relays messages from src to dst.
// Options apply per direction (read/write) following the same rules as Reader/Writer.
func NewForwarder(dst io.Writer, src io.Reader, opts ...Option) *Forwarder {
	rr := newFramer(src, nil, opts...)
	ww := newFramer(nil, dst, opts...)
	capHint := rr.readLimit
	if capHint <= 0 {
		capHint = 64 * 1024
	}
	return &Forwarder{rr: rr, ww: ww, buf: make([]byte, capHint)}
}

// ForwardOnce forwards at most one message. See Forwarder docs for semantics.
//
// Return value n reflects progress in the current phase: during the read
// phase, bytes read into the internal buffer this call; during the write
// phase, bytes written to dst this call.
func (f *Forwarder) ForwardOnce() (n int, err error) {
	if f.state == 0 && f.eofPending {
		return 0, io.EOF
	}

	if f.state == 0 {
		rn, re := f.rr.read(f.buf)
		if re != nil {
			switch re {
			case ErrWouldBlock, ErrMore, ErrTooLong:
				return rn, re
			case io.ErrShortBuffer:
				return 0, io.ErrShortBuffer
			case io.EOF:
				if rn == 0 {
					return 0, io.EOF
				}
				// Final message delivered alongside EOF: forward it now,
				// report EOF on the next call.
				f.eofAfterThis = true
			default:
				return rn, re
			}
		}
		f.need = rn
		f.state = 1
	}

	wn, we := f.ww.write(f.buf[:f.need])
	if we != nil {
		if we == ErrWouldBlock || we == ErrMore {
			return wn, we
		}
		return wn, we
	}

	if f.eofAfterThis {
		f.eofAfterThis = false
		f.eofPending = true
	}
	f.state = 0
	f.need = 0
	return wn, nil
}
