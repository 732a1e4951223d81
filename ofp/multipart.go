package ofp

import "encoding/binary"

// multipartHeaderLen is the size of the common multipart/stats header
// that follows the OpenFlow message header: mp_type(2) + flags(2) +
// pad(4).
const multipartHeaderLen = 8

// BuildMultipartRequest builds a MULTIPART_REQUEST (or STATS_REQUEST on
// OpenFlow 1.0) with the given multipart type and an empty body — all
// this module needs is OFPMP_PORT_DESC (spec §4.6).
func BuildMultipartRequest(version uint8, mpType uint16, xid uint32) []byte {
	length := HeaderLen + multipartHeaderLen
	buf := make([]byte, length)
	PutHeader(buf, Header{Version: version, Type: MultipartRequestType(version), Length: uint16(length), Xid: xid})
	binary.BigEndian.PutUint16(buf[8:10], mpType)
	// flags and pad stay zero: no REQ_MORE on a single-shot request.
	return buf
}

// MultipartReplyBody reports the multipart type, body bytes (after the
// 8-byte multipart header), and whether more fragments follow.
func MultipartReplyBody(msg []byte) (mpType uint16, body []byte, more bool, err error) {
	if len(msg) < HeaderLen+multipartHeaderLen {
		return 0, nil, false, ErrShortHeader
	}
	mpType = binary.BigEndian.Uint16(msg[8:10])
	flags := binary.BigEndian.Uint16(msg[10:12])
	more = flags&MultipartMoreFlag != 0
	body = msg[HeaderLen+multipartHeaderLen:]
	return mpType, body, more, nil
}

// MultipartMore reports whether a STATS_REPLY/MULTIPART_REPLY message
// has its continuation flag set, i.e. whether the sync tracker should
// keep accumulating fragments (spec §4.5).
func MultipartMore(msg []byte) bool {
	if len(msg) < 12 {
		return false
	}
	flags := binary.BigEndian.Uint16(msg[10:12])
	return flags&MultipartMoreFlag != 0
}
