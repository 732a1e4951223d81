// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package framer

import "time"

// Protocol describes the expected message-boundary behavior of the underlying transport.
//
// The framer logic adapts its algorithm based on this setting:
//   - Stream: boundaries are not preserved (TCP, Unix stream sockets). Framer
//     accumulates the fixed 8-byte header, reads the self-described Length,
//     and returns one whole message (header included) per Read/Write.
//   - Datagram: boundaries are preserved (UDP, Unix datagram sockets). One
//     underlying Read/Write already carries exactly one complete message;
//     framer is pass-through.
type Protocol uint8

const (
	Stream Protocol = 1
	Datagram Protocol = 2
)

func (p Protocol) preserveBoundary() bool {
	return p == Datagram
}

// Options configures framing behavior.
type Options struct {
	ReadProto  Protocol
	WriteProto Protocol

	// ReadLimit caps the maximum allowed whole-message size (bytes), header
	// included. Zero means no limit beyond the wire format's own uint16
	// Length field (65535 bytes).
	ReadLimit int

	// RetryDelay controls how the framer handles iox.ErrWouldBlock from the underlying transport:
	//   - negative: nonblock, return ErrWouldBlock immediately
	//   - zero: yield (runtime.Gosched) and retry
	//   - positive: sleep for the duration and retry
	RetryDelay time.Duration
}

var defaultOptions = Options{
	ReadProto:  Stream,
	WriteProto: Stream,
	ReadLimit:  0,
	RetryDelay: -1, // default: nonblock
}

type Option func(*Options)

func WithProtocol(proto Protocol) Option {
	return func(o *Options) {
		o.ReadProto = proto
		o.WriteProto = proto
	}
}

func WithReadProtocol(proto Protocol) Option {
	return func(o *Options) { o.ReadProto = proto }
}

func WithWriteProtocol(proto Protocol) Option {
	return func(o *Options) { o.WriteProto = proto }
}

func WithReadLimit(limit int) Option {
	return func(o *Options) { o.ReadLimit = limit }
}

// WithRetryDelay sets the retry/wait policy used when the underlying transport returns iox.ErrWouldBlock.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) { o.RetryDelay = d }
}

// WithBlock enables cooperative blocking (yield-and-retry) on iox.ErrWouldBlock.
func WithBlock() Option {
	return func(o *Options) { o.RetryDelay = 0 }
}

// WithNonblock forces non-blocking behavior (return iox.ErrWouldBlock immediately).
func WithNonblock() Option {
	return func(o *Options) { o.RetryDelay = -1 }
}
