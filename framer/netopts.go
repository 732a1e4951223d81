// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package framer

// Network option helpers and mapping.
//
// Single source of truth — transport → Protocol:
//   - TCP         → Stream   (boundaries not preserved; accumulate header+Length)
//   - Unix (stream)     → Stream
//   - UDP         → Datagram (boundaries preserved; pass-through)
//   - UnixPacket  → Datagram
//
// The wire format itself is always network byte order (big-endian), per the
// framing spec in framer.go, so there is no per-transport byte-order knob.

type netKind uint8

const (
	netTCP netKind = iota
	netUDP
	netUnixStream
	netUnixPacket
)

func defaultsFor(kind netKind) Protocol {
	switch kind {
	case netTCP:
		return Stream
	case netUDP:
		return Datagram
	case netUnixStream:
		return Stream
	case netUnixPacket:
		return Datagram
	default:
		return Stream
	}
}

// WithReadTCP configures the reader side for TCP: Stream framing.
func WithReadTCP() Option {
	return func(o *Options) { o.ReadProto = defaultsFor(netTCP) }
}

// WithWriteTCP configures the writer side for TCP: Stream framing.
func WithWriteTCP() Option {
	return func(o *Options) { o.WriteProto = defaultsFor(netTCP) }
}

// WithReadUDP configures the reader side for UDP: Datagram (pass-through).
func WithReadUDP() Option {
	return func(o *Options) { o.ReadProto = defaultsFor(netUDP) }
}

// WithWriteUDP configures the writer side for UDP: Datagram (pass-through).
func WithWriteUDP() Option {
	return func(o *Options) { o.WriteProto = defaultsFor(netUDP) }
}

// WithReadUnix configures the reader side for Unix stream sockets: Stream framing.
func WithReadUnix() Option {
	return func(o *Options) { o.ReadProto = defaultsFor(netUnixStream) }
}

// WithWriteUnix configures the writer side for Unix stream sockets: Stream framing.
func WithWriteUnix() Option {
	return func(o *Options) { o.WriteProto = defaultsFor(netUnixStream) }
}

// WithReadUnixPacket configures the reader side for Unix datagram sockets: Datagram (pass-through).
func WithReadUnixPacket() Option {
	return func(o *Options) { o.ReadProto = defaultsFor(netUnixPacket) }
}

// WithWriteUnixPacket configures the writer side for Unix datagram sockets: Datagram (pass-through).
func WithWriteUnixPacket() Option {
	return func(o *Options) { o.WriteProto = defaultsFor(netUnixPacket) }
}
