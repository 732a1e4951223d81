// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package framer

import (
	"encoding/binary"
	"io"
	"runtime"
	"time"
)

const (
	headerLen = 8
	lengthOff = 2 // offset of the big-endian uint16 Length field within the header
)

type framer struct {
	rd  io.Reader
	rpr Protocol
	wr  io.Writer
	wpr Protocol

	readLimit int64

	retryDelay time.Duration

	// stream read state
	header [headerLen]byte
	length int64 // whole-message length (header included) for the message in flight
	offset int64 // bytes of the whole message processed so far

	// reusable scratch buffer for Reader.WriteTo fast path
	rbuf []byte
}

func newFramer(r io.Reader, w io.Writer, opts ...Option) *framer {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}

	return &framer{
		rd:        r,
		wr:        w,
		rpr:       o.ReadProto,
		wpr:       o.WriteProto,
		readLimit: int64(o.ReadLimit),

		retryDelay: o.RetryDelay,
	}
}

func (fr *framer) reset() {
	fr.offset = 0
	fr.length = 0
}

func (fr *framer) read(p []byte) (n int, err error) {
	if fr.rd == nil {
		return 0, ErrInvalidArgument
	}
	if fr.rpr.preserveBoundary() {
		return fr.readPacket(p)
	}
	return fr.readStream(p)
}

func (fr *framer) write(p []byte) (n int, err error) {
	if fr.wr == nil {
		return 0, ErrInvalidArgument
	}
	if fr.wpr.preserveBoundary() {
		return fr.writePacket(p)
	}
	return fr.writeStream(p)
}

func (fr *framer) waitOnceOnWouldBlock() bool {
	// returns whether the caller should retry
	if fr.retryDelay < 0 {
		return false
	}
	if fr.retryDelay == 0 {
		runtime.Gosched()
		return true
	}
	time.Sleep(fr.retryDelay)
	return true
}

func (fr *framer) readOnce(p []byte) (n int, err error) {
	for {
		n, err = fr.rd.Read(p)
		// Guard against broken Readers that violate the io.Reader contract by
		// returning (0, nil) on a non-empty buffer. Without this, the stream
		// state machine can spin indefinitely.
		if len(p) != 0 && n == 0 && err == nil {
			return 0, io.ErrNoProgress
		}
		if n > 0 {
			return n, err
		}
		if err != ErrWouldBlock {
			return n, err
		}
		if !fr.waitOnceOnWouldBlock() {
			return n, err
		}
	}
}

func (fr *framer) writeOnce(p []byte) (n int, err error) {
	for {
		n, err = fr.wr.Write(p)
		if len(p) != 0 && n == 0 && err == nil {
			return 0, io.ErrShortWrite
		}
		if n > 0 {
			return n, err
		}
		if err != ErrWouldBlock {
			return n, err
		}
		if !fr.waitOnceOnWouldBlock() {
			return n, err
		}
	}
}

func (fr *framer) readPacket(p []byte) (n int, err error) {
	n, err = fr.readOnce(p)
	if fr.readLimit > 0 && int64(n) > fr.readLimit {
		return n, ErrTooLong
	}
	return n, err
}

func (fr *framer) writePacket(p []byte) (n int, err error) {
	n, err = fr.writeOnce(p)
	if err != nil {
		return n, err
	}
	if n != len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// readStream accumulates one whole OpenFlow message (8-byte header plus the
// trailing Length-8 body bytes, as declared by the header's own Length
// field) and returns it in p, header included. p must be large enough to
// hold the whole message; if it isn't once the header is known, readStream
// returns io.ErrShortBuffer and the caller may retry with a bigger buffer
// (the in-flight header bytes are preserved, so no bytes are lost).
func (fr *framer) readStream(p []byte) (n int, err error) {
	// 1) Accumulate the fixed-size header.
	for fr.offset < headerLen {
		rn, re := fr.readOnce(fr.header[fr.offset:headerLen])
		fr.offset += int64(rn)
		if re != nil {
			if re == io.EOF {
				if fr.offset == 0 {
					return 0, io.EOF
				}
				return 0, io.ErrUnexpectedEOF
			}
			return 0, re
		}
	}

	// 2) Parse the self-described whole-message length.
	if fr.length == 0 {
		l := int64(binary.BigEndian.Uint16(fr.header[lengthOff : lengthOff+2]))
		if l < headerLen {
			return 0, ErrBadFrame
		}
		if fr.readLimit > 0 && l > fr.readLimit {
			return 0, ErrTooLong
		}
		fr.length = l
	}

	if int64(len(p)) < fr.length {
		return 0, io.ErrShortBuffer
	}

	copy(p, fr.header[:])
	n = headerLen

	// 3) Read the remaining body bytes directly into p.
	for fr.offset < fr.length {
		rn, re := fr.readOnce(p[fr.offset:fr.length])
		fr.offset += int64(rn)
		n += rn
		if re != nil {
			if re == io.EOF {
				if fr.offset < fr.length {
					return n, io.ErrUnexpectedEOF
				}
				break
			}
			return n, re
		}
	}

	fr.reset()
	return n, nil
}

// writeStream writes p, which must already be a complete, self-describing
// OpenFlow message (header included, Length field matching len(p) exactly).
// Unlike a from-scratch framer, this layer never synthesizes a header: the
// ofp package and its callers already produced one.
//
// On ErrWouldBlock/ErrMore the caller must retry with the exact same p (not
// p[n:]) so the framer's own offset bookkeeping can resume correctly; this
// matches the retry contract the rest of the package already follows for
// Forwarder and the non-blocking Reader.
func (fr *framer) writeStream(p []byte) (n int, err error) {
	if len(p) < headerLen {
		return 0, ErrBadFrame
	}
	if int(binary.BigEndian.Uint16(p[lengthOff:lengthOff+2])) != len(p) {
		return 0, ErrBadFrame
	}

	for fr.offset < int64(len(p)) {
		wn, we := fr.writeOnce(p[fr.offset:])
		fr.offset += int64(wn)
		n += wn
		if we != nil {
			return n, we
		}
	}
	fr.reset()
	return n, nil
}
