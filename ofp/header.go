// Package ofp provides the minimal OpenFlow wire-format support this
// module's channel behaviors depend on directly: header parsing, HELLO
// negotiation, the per-version BARRIER/MULTIPART type-number table,
// FEATURES_REPLY decoding, and the port-entry struct layouts used by
// the port monitor.
//
// The exhaustive encoders/decoders for every OpenFlow message body are
// out of scope (see spec §1): this package only implements the
// messages the core behaviors in the channel package must understand
// by type number. Everything else is an opaque payload the caller
// constructs and the codec registry lets callers plug in their own
// decoders for.
package ofp

import (
	"encoding/binary"
	"errors"
)

// HeaderLen is the fixed size of an OpenFlow message header.
const HeaderLen = 8

// ErrShortHeader reports a buffer too small to hold a full header.
var ErrShortHeader = errors.New("ofp: message shorter than header")

// ErrBadLength reports a header length field smaller than HeaderLen.
var ErrBadLength = errors.New("ofp: header length field below minimum")

// Header is the fixed 8-byte prefix of every OpenFlow message:
// version, type, total message length, and transaction id.
type Header struct {
	Version uint8
	Type    uint8
	Length  uint16
	Xid     uint32
}

// ParseHeader reads the header from the first 8 bytes of msg.
func ParseHeader(msg []byte) (Header, error) {
	if len(msg) < HeaderLen {
		return Header{}, ErrShortHeader
	}
	h := Header{
		Version: msg[0],
		Type:    msg[1],
		Length:  binary.BigEndian.Uint16(msg[2:4]),
		Xid:     binary.BigEndian.Uint32(msg[4:8]),
	}
	if h.Length < HeaderLen {
		return h, ErrBadLength
	}
	return h, nil
}

// PutHeader writes h into the first 8 bytes of buf.
func PutHeader(buf []byte, h Header) {
	buf[0] = h.Version
	buf[1] = h.Type
	binary.BigEndian.PutUint16(buf[2:4], h.Length)
	binary.BigEndian.PutUint32(buf[4:8], h.Xid)
}

// HeaderOnly builds a message consisting of nothing but a header —
// used for FEATURES_REQUEST, GET_CONFIG_REQUEST, BARRIER_REQUEST, and
// similar zero-body messages.
func HeaderOnly(version, typ uint8, xid uint32) []byte {
	buf := make([]byte, HeaderLen)
	PutHeader(buf, Header{Version: version, Type: typ, Length: HeaderLen, Xid: xid})
	return buf
}
