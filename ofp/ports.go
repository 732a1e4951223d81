package ofp

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// ErrShortPortRecord reports a port list too short for the version's
// fixed-size port record (or, for v1.5, shorter than its declared
// per-port length).
var ErrShortPortRecord = errors.New("ofp: truncated port record")

// PortEntry is a version-normalized view of ofp_port (spec §4.6,
// §3 Port entry). Fields the negotiated version's wire layout does not
// carry are left zero.
type PortEntry struct {
	PortNo     uint32
	HWAddr     [6]byte
	Name       string
	Config     uint32
	State      uint32
	Curr       uint32
	Advertised uint32
	Supported  uint32
	Peer       uint32
	CurrSpeed  uint32
	MaxSpeed   uint32
}

func trimName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// The per-version record lengths are local constants inside
// parsePortRecord, which returns the record length consumed so callers
// can advance an offset.

// parsePortRecord decodes a single ofp_port at the front of data using
// the layout for version (spec §4.6 table). It returns the entry and
// the number of bytes consumed.
func parsePortRecord(version uint8, data []byte) (PortEntry, int, error) {
	switch {
	case version == 1: // OpenFlow 1.0: !H6s16sIIIIII = 48 bytes
		const n = 48
		if len(data) < n {
			return PortEntry{}, 0, ErrShortPortRecord
		}
		var e PortEntry
		e.PortNo = uint32(binary.BigEndian.Uint16(data[0:2]))
		copy(e.HWAddr[:], data[2:8])
		e.Name = trimName(data[8:24])
		e.Config = binary.BigEndian.Uint32(data[24:28])
		e.State = binary.BigEndian.Uint32(data[28:32])
		e.Curr = binary.BigEndian.Uint32(data[32:36])
		e.Advertised = binary.BigEndian.Uint32(data[36:40])
		e.Supported = binary.BigEndian.Uint32(data[40:44])
		e.Peer = binary.BigEndian.Uint32(data[44:48])
		return e, n, nil

	case version >= 2 && version <= 5: // OpenFlow 1.1-1.4: !I4x6s2x16sIIIIIIII = 64 bytes
		const n = 64
		if len(data) < n {
			return PortEntry{}, 0, ErrShortPortRecord
		}
		var e PortEntry
		e.PortNo = binary.BigEndian.Uint32(data[0:4])
		copy(e.HWAddr[:], data[8:14])
		e.Name = trimName(data[16:32])
		e.Config = binary.BigEndian.Uint32(data[32:36])
		e.State = binary.BigEndian.Uint32(data[36:40])
		e.Curr = binary.BigEndian.Uint32(data[40:44])
		e.Advertised = binary.BigEndian.Uint32(data[44:48])
		e.Supported = binary.BigEndian.Uint32(data[48:52])
		e.Peer = binary.BigEndian.Uint32(data[52:56])
		e.CurrSpeed = binary.BigEndian.Uint32(data[56:60])
		e.MaxSpeed = binary.BigEndian.Uint32(data[60:64])
		return e, n, nil

	default: // OpenFlow 1.5: !IH2x6s2x6sII, variable length via the
		// record's own Length field; trailing property TLVs
		// (including the PORT_DESC_PROP_NAME that would carry the
		// human-readable name) are not decoded — out of scope, as
		// with every other property-TLV-based structure this module
		// does not interpret (spec §1).
		const fixedLen = 30
		if len(data) < fixedLen {
			return PortEntry{}, 0, ErrShortPortRecord
		}
		var e PortEntry
		e.PortNo = binary.BigEndian.Uint32(data[0:4])
		recLen := int(binary.BigEndian.Uint16(data[4:6]))
		copy(e.HWAddr[:], data[8:14])
		e.Config = binary.BigEndian.Uint32(data[22:26])
		e.State = binary.BigEndian.Uint32(data[26:30])
		if recLen < fixedLen {
			recLen = fixedLen
		}
		if len(data) < recLen {
			return PortEntry{}, 0, ErrShortPortRecord
		}
		return e, recLen, nil
	}
}

// ParsePortList decodes a contiguous run of ofp_port records (the body
// of a MULTIPART PORT_DESC reply, or the tail of a pre-1.3
// FEATURES_REPLY) for the negotiated version.
func ParsePortList(version uint8, data []byte) ([]PortEntry, error) {
	var ports []PortEntry
	for len(data) > 0 {
		e, n, err := parsePortRecord(version, data)
		if err != nil {
			return nil, err
		}
		ports = append(ports, e)
		data = data[n:]
	}
	return ports, nil
}

// ParsePortStatus decodes a PORT_STATUS message body (reason + one
// port record) for version. msg includes the 8-byte header.
func ParsePortStatus(version uint8, msg []byte) (reason uint8, port PortEntry, err error) {
	const bodyOff = HeaderLen
	if len(msg) < bodyOff+8 {
		return 0, PortEntry{}, ErrShortPortRecord
	}
	reason = msg[bodyOff]
	// 7 bytes of pad follow reason before the port record.
	port, _, err = parsePortRecord(version, msg[bodyOff+8:])
	return reason, port, err
}

// featuresReplyPortsOffset is the byte offset of the first ofp_port
// entry within a pre-1.3 FEATURES_REPLY body: header(8) + datapath_id(8)
// + n_buffers(4) + n_tables(1) + pad(3) + capabilities(4) + actions(4).
const featuresReplyPortsOffset = HeaderLen + 8 + 4 + 1 + 3 + 4 + 4

// FeaturesReply is the decoded subset of OFPT_FEATURES_REPLY this
// module's channel behaviors need.
type FeaturesReply struct {
	DatapathID  uint64
	NBuffers    uint32
	NTables     uint8
	AuxiliaryID uint8 // only meaningful for version >= 4 (OpenFlow 1.3+)
	Ports       []PortEntry
}

// ParseFeaturesReply decodes OFPT_FEATURES_REPLY for version. For
// version < 4 (OpenFlow 1.0-1.2) the switch's port list is embedded
// directly in the reply and is decoded here; for version >= 4
// (OpenFlow 1.3+) ports are learned instead via MULTIPART PORT_DESC
// and FeaturesReply.Ports is left nil.
func ParseFeaturesReply(version uint8, msg []byte) (FeaturesReply, error) {
	if len(msg) < HeaderLen+24 {
		return FeaturesReply{}, ErrShortHeader
	}
	var fr FeaturesReply
	fr.DatapathID = binary.BigEndian.Uint64(msg[8:16])
	fr.NBuffers = binary.BigEndian.Uint32(msg[16:20])
	fr.NTables = msg[20]
	if version >= 4 {
		fr.AuxiliaryID = msg[21]
		return fr, nil
	}
	if len(msg) > featuresReplyPortsOffset {
		ports, err := ParsePortList(version, msg[featuresReplyPortsOffset:])
		if err != nil {
			return fr, err
		}
		fr.Ports = ports
	}
	return fr, nil
}
