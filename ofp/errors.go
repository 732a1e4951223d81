package ofp

import "encoding/binary"

// Error type/code numbers stable across 1.0-1.5 (spec §7). Only the
// subset this module's own components need to construct are named
// here; OFPET_HELLO_FAILED lives in types.go alongside the other
// handshake constants it's paired with.
const (
	ErrorTypeBadRequest  = 1
	ErrorCodeBadRequestEPerm = 5 // OFPBRC_EPERM
)

// BuildError builds a generic ERROR message: errType/errCode followed
// by text as the opaque data tail (spec §4.7: branch rejects a
// monitor child's attempted send with an ERROR before closing it).
func BuildError(version uint8, errType, errCode uint16, xid uint32, text string) []byte {
	payload := []byte(text)
	length := HeaderLen + 4 + len(payload)
	buf := make([]byte, length)
	PutHeader(buf, Header{Version: version, Type: TypeError, Length: uint16(length), Xid: xid})
	binary.BigEndian.PutUint16(buf[8:10], errType)
	binary.BigEndian.PutUint16(buf[10:12], errCode)
	copy(buf[12:], payload)
	return buf
}
