// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package framer provides a portable message framing layer exposed via io.Reader
// and io.Writer for self-describing, length-prefixed binary protocols.
//
// Semantics and design:
//   - Protocol adaptation: on stream transports (e.g., TCP), framer accumulates
//     a fixed 8-byte header, reads the header's own big-endian Length field, and
//     returns one whole message (header included) per Read, or accepts one whole
//     pre-built message per Write. On boundary-preserving transports (Datagram:
//     e.g., UDP), framer is pass-through, since one underlying Read/Write already
//     carries exactly one message.
//   - Non-blocking first: iox.ErrWouldBlock and iox.ErrMore are surfaced as control-flow
//     signals (and re-exposed as framer.ErrWouldBlock / framer.ErrMore). Hot paths avoid
//     allocations and return promptly.
//   - io compatibility: Reader, Writer, and ReadWriter implement standard io interfaces
//     and honor io.Writer short-write contracts and io.Reader buffer semantics.
//
// Wire format (stream mode): every message is self-describing. Bytes 2-3 of
// the fixed 8-byte header carry the whole message's length, header included,
// as a big-endian uint16 (so 8 <= Length <= 65535). Reader.Read returns the
// complete message — header and body — so callers that need fields from the
// header (e.g. a protocol's message type or transaction id) don't need a
// second parse pass over a separately-framed payload. Writer.Write never
// synthesizes or rewrites a header: callers hand it a complete message whose
// own Length field already matches its length; framer only validates that
// invariant and relays the bytes. A header whose Length is shorter than the
// header itself is ErrBadFrame.

package framer

import (
	"io"

	"code.hybscloud.com/iox"
)

// NewReader returns an io.Reader that reads framed messages from r.
func NewReader(r io.Reader, opts ...Option) io.Reader {
	return &Reader{fr: newFramer(r, nil, opts...)}
}

// NewWriter returns an io.Writer that writes framed messages to w.
func NewWriter(w io.Writer, opts ...Option) io.Writer {
	return &Writer{fr: newFramer(nil, w, opts...)}
}

// NewReadWriter returns an io.ReadWriter that reads and writes framed messages.
func NewReadWriter(r io.Reader, w io.Writer, opts ...Option) io.ReadWriter {
	fr := newFramer(r, w, opts...)
	return &ReadWriter{Reader: &Reader{fr: fr}, Writer: &Writer{fr: fr}}
}

// NewPipe returns a synchronous in-memory framing pipe.
func NewPipe(opts ...Option) (reader io.Reader, writer io.Writer) {
	r, w := io.Pipe()
	pipe := NewReadWriter(r, w, opts...)
	return pipe, pipe
}

// Reader reads framed messages. Each successful Read returns exactly one
// whole message, header included.
type Reader struct{ fr *framer }

func (r *Reader) Read(p []byte) (int, error) { return r.fr.read(p) }

// WriteTo implements io.WriterTo.
//
// Semantics:
//   - Stream: relays one whole message (header included) at a time from the
//     underlying reader to dst, using an internal reusable scratch buffer
//     sized by the Reader's ReadLimit (or a 64KiB default cap when ReadLimit
//     is zero; messages that would exceed the cap result in ErrTooLong).
//   - Datagram: pass-through, reads packets and writes them to dst.
//
// Non-blocking semantics: if the underlying reader or writer returns iox.ErrWouldBlock
// or iox.ErrMore, WriteTo returns immediately with the progress count (bytes written) and
// the same semantic error. Short writes on dst are handled per io.Writer contract.
func (r *Reader) WriteTo(dst io.Writer) (int64, error) {
	fr := r.fr
	var total int64

	// Packet-preserving protocols: pass-through copy using a stack buffer.
	if fr.rpr.preserveBoundary() {
		var buf [32 * 1024]byte
		for {
			n, err := fr.read(buf[:])
			if n > 0 {
				off := 0
				for off < n {
					wn, we := dst.Write(buf[off:n])
					if wn > 0 {
						total += int64(wn)
						off += wn
					}
					if we != nil {
						return total, we
					}
					if wn == 0 {
						return total, io.ErrShortWrite
					}
				}
			}
			if err != nil {
				if err == io.EOF {
					return total, nil
				}
				return total, err
			}
		}
	}

	// Stream protocol: copy one whole message (header included) at a time.
	if fr.rbuf == nil {
		capHint := fr.readLimit
		if capHint <= 0 {
			capHint = 64 * 1024
		}
		fr.rbuf = make([]byte, capHint)
	}

	for {
		n, err := fr.read(fr.rbuf)
		if err != nil {
			if err == io.ErrShortBuffer {
				return total, ErrTooLong
			}
			if err == io.EOF {
				return total, nil
			}
			return total, err
		}

		off := 0
		for off < n {
			wn, we := dst.Write(fr.rbuf[off:n])
			if wn > 0 {
				total += int64(wn)
				off += wn
			}
			if we != nil {
				return total, we
			}
			if wn == 0 {
				return total, io.ErrShortWrite
			}
		}
	}
}

// Writer writes framed messages. Each call to Write must be given one whole,
// already-complete message (header included, Length field matching len(p)).
type Writer struct{ fr *framer }

func (w *Writer) Write(p []byte) (int, error) { return w.fr.write(p) }

// ReadWriter groups Reader and Writer.
type ReadWriter struct {
	*Reader
	*Writer
}

// These are provided as package-level aliases so callers can reference the
// semantic control-flow errors without importing iox directly.
var (
	// ErrWouldBlock means “no further progress without waiting”.
	//
	// It is an expected, non-failure control-flow signal for non-blocking I/O.
	// Any returned byte count (n) still represents real progress.
	//
	// Caller action: stop the current attempt and retry later (after readiness/event),
	// or configure RetryDelay to emulate cooperative blocking on top of a non-blocking transport.
	ErrWouldBlock = iox.ErrWouldBlock

	// ErrMore means “this completion is usable and more completions will follow”.
	//
	// It is not io.EOF and not “try later”. The operation remains active and additional
	// data/results are expected from the same ongoing operation.
	//
	// Caller action: process the returned bytes/result, then call again to obtain the next chunk.
	ErrMore = iox.ErrMore
)
