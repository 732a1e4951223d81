package ofp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const helloElemVersionBitmap = 1

// ErrUnsupportedHelloElement reports a HELLO element type this package
// does not understand. Only VERSIONBITMAP (subtype 1) is decoded;
// other elements are defined by later OpenFlow revisions and are out
// of scope (spec §1).
var ErrUnsupportedHelloElement = errors.New("ofp: unsupported HELLO element")

// ErrNotHello reports that ParseHello was called on a non-HELLO message.
var ErrNotHello = errors.New("ofp: not a HELLO message")

// BuildHello encodes a HELLO carrying accepted, following spec §4.2:
// for max(accepted) < 4, a bare 8-byte header whose Version field is
// the single accepted value; otherwise a VERSIONBITMAP element with
// one 32-bit word per 32 versions (LSB = version 0 of that word),
// padded to 8-byte alignment.
func BuildHello(accepted []uint8, xid uint32) []byte {
	if len(accepted) == 0 {
		accepted = []uint8{1}
	}
	var maxVersion uint8
	for _, v := range accepted {
		if v > maxVersion {
			maxVersion = v
		}
	}
	if maxVersion < 4 {
		return HeaderOnly(maxVersion, TypeHello, xid)
	}

	numWords := 1 + int(maxVersion)/32
	units := make([]uint32, numWords)
	for _, v := range accepted {
		units[int(v)/32] |= 1 << (uint(v) % 32)
	}

	elemLen := 4 + 4*numWords
	pad := (8 - elemLen%8) % 8
	total := HeaderLen + elemLen + pad

	buf := make([]byte, total)
	PutHeader(buf, Header{Version: maxVersion, Type: TypeHello, Length: uint16(total), Xid: xid})
	binary.BigEndian.PutUint16(buf[8:10], helloElemVersionBitmap)
	binary.BigEndian.PutUint16(buf[10:12], uint16(elemLen))
	off := 12
	for _, u := range units {
		binary.BigEndian.PutUint32(buf[off:off+4], u)
		off += 4
	}
	return buf
}

// ParseHello decodes the version set a peer's HELLO advertises.
func ParseHello(msg []byte) (map[uint8]bool, error) {
	h, err := ParseHeader(msg)
	if err != nil {
		return nil, err
	}
	if h.Type != TypeHello {
		return nil, ErrNotHello
	}

	versions := make(map[uint8]bool)
	if h.Length == HeaderLen {
		versions[h.Version] = true
		return versions, nil
	}
	if len(msg) < 12 {
		return nil, ErrShortHeader
	}
	subtype := binary.BigEndian.Uint16(msg[8:10])
	sublength := binary.BigEndian.Uint16(msg[10:12])
	if subtype != helloElemVersionBitmap {
		return nil, fmt.Errorf("%w: subtype=%d", ErrUnsupportedHelloElement, subtype)
	}
	if sublength < 4 || len(msg) < 8+int(sublength) {
		return nil, ErrShortHeader
	}
	numWords := (int(sublength) - 4) / 4
	off := 12
	for i := 0; i < numWords; i++ {
		unit := binary.BigEndian.Uint32(msg[off : off+4])
		off += 4
		for s := 0; s < 32; s++ {
			if unit&(1<<uint(s)) != 0 {
				versions[uint8(i*32+s)] = true
			}
		}
	}
	return versions, nil
}

// BuildErrorHelloFailed builds an ERROR message with
// type=OFPET_HELLO_FAILED, code=OFPHFC_INCOMPATIBLE, carrying text as
// the ASCII description of accepted versions (spec §4.2).
func BuildErrorHelloFailed(version uint8, xid uint32, text string) []byte {
	payload := []byte(text)
	length := HeaderLen + 4 + len(payload)
	buf := make([]byte, length)
	PutHeader(buf, Header{Version: version, Type: TypeError, Length: uint16(length), Xid: xid})
	binary.BigEndian.PutUint16(buf[8:10], ErrorHelloFailed)
	binary.BigEndian.PutUint16(buf[10:12], ErrorHelloFailedIncompatible)
	copy(buf[12:], payload)
	return buf
}

// IntersectVersions returns the intersection of peer and accepted.
func IntersectVersions(peer map[uint8]bool, accepted []uint8) []uint8 {
	var out []uint8
	for _, v := range accepted {
		if peer[v] {
			out = append(out, v)
		}
	}
	return out
}

// MaxVersion returns the largest element of versions, and false if empty.
func MaxVersion(versions []uint8) (uint8, bool) {
	if len(versions) == 0 {
		return 0, false
	}
	var m uint8
	for _, v := range versions {
		if v > m {
			m = v
		}
	}
	return m, true
}
