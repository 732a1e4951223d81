package ofp

// Message type numbers the core channel behaviors dispatch on. The
// spec's minimum type-number table (§6) is version-sensitive only for
// BARRIER and MULTIPART/STATS; every other type number here is stable
// across 1.0-1.5.
const (
	TypeHello         = 0
	TypeError         = 1
	TypeEchoRequest   = 2
	TypeEchoReply     = 3
	TypeFeaturesReq   = 5
	TypeFeaturesReply = 6
	TypeGetConfigReq  = 7
	TypeGetConfigRep  = 8
	TypePacketIn      = 10
	TypeFlowRemoved   = 11
	TypePortStatus    = 12

	// v1.0-only numbering for stats/barrier.
	typeStatsRequestV1   = 16
	typeStatsReplyV1     = 17
	typeBarrierRequestV1 = 18
	typeBarrierReplyV1   = 19

	// v1.1+ numbering for multipart/barrier.
	typeMultipartRequestV2 = 18
	typeMultipartReplyV2   = 19
	typeBarrierRequestV2   = 20
	typeBarrierReplyV2     = 21
)

// MultipartPortDesc is the OFPMP_PORT_DESC multipart request type, used
// from OpenFlow 1.3 onward.
const MultipartPortDesc = 13

// ErrorHelloFailed / ErrorHelloFailedIncompatible mirror
// OFPET_HELLO_FAILED / OFPHFC_INCOMPATIBLE.
const (
	ErrorHelloFailed             = 0
	ErrorHelloFailedIncompatible = 0
)

// MultipartMoreFlag is OFPMPF_REPLY_MORE / OFPSF_REPLY_MORE: set while
// additional fragments of a multipart/stats reply follow.
const MultipartMoreFlag = 0x0001

// BarrierRequestType returns the BARRIER_REQUEST type number for the
// negotiated wire version (1 = OpenFlow 1.0).
func BarrierRequestType(version uint8) uint8 {
	if version == 1 {
		return typeBarrierRequestV1
	}
	return typeBarrierRequestV2
}

// BarrierReplyType returns the BARRIER_REPLY type number for version.
func BarrierReplyType(version uint8) uint8 {
	if version == 1 {
		return typeBarrierReplyV1
	}
	return typeBarrierReplyV2
}

// MultipartRequestType returns the MULTIPART_REQUEST (or STATS_REQUEST
// on 1.0) type number for version.
func MultipartRequestType(version uint8) uint8 {
	if version == 1 {
		return typeStatsRequestV1
	}
	return typeMultipartRequestV2
}

// MultipartReplyType returns the MULTIPART_REPLY (or STATS_REPLY on
// 1.0) type number for version.
func MultipartReplyType(version uint8) uint8 {
	if version == 1 {
		return typeStatsReplyV1
	}
	return typeMultipartReplyV2
}

// IsBarrierReply reports whether typ is the BARRIER_REPLY type number
// for version.
func IsBarrierReply(version, typ uint8) bool {
	return typ == BarrierReplyType(version)
}

// IsMultipartReply reports whether typ is the MULTIPART_REPLY (or
// STATS_REPLY) type number for version.
func IsMultipartReply(version, typ uint8) bool {
	return typ == MultipartReplyType(version)
}

// IsAsync reports whether typ is one of the unsolicited asynchronous
// message classes (PACKET_IN, FLOW_REMOVED, PORT_STATUS) that bypass
// the barrier sequencer entirely (spec §4.4).
func IsAsync(typ uint8) bool {
	switch typ {
	case TypePacketIn, TypeFlowRemoved, TypePortStatus:
		return true
	default:
		return false
	}
}
