package ofp

import (
	"encoding/binary"
	"testing"
)

func TestBuildMultipartRequest(t *testing.T) {
	msg := BuildMultipartRequest(4, MultipartPortDesc, 55)
	h, err := ParseHeader(msg)
	if err != nil {
		t.Fatal(err)
	}
	if h.Type != MultipartRequestType(4) {
		t.Fatalf("type=%d want %d", h.Type, MultipartRequestType(4))
	}
	mpType := binary.BigEndian.Uint16(msg[8:10])
	if mpType != MultipartPortDesc {
		t.Fatalf("mpType=%d want %d", mpType, MultipartPortDesc)
	}
}

func TestMultipartReplyBodyAndMore(t *testing.T) {
	body := []byte("payload")
	msg := make([]byte, HeaderLen+8+len(body))
	PutHeader(msg, Header{Version: 4, Type: MultipartReplyType(4), Length: uint16(len(msg)), Xid: 1})
	binary.BigEndian.PutUint16(msg[8:10], MultipartPortDesc)
	binary.BigEndian.PutUint16(msg[10:12], MultipartMoreFlag)
	copy(msg[16:], body)

	mpType, gotBody, more, err := MultipartReplyBody(msg)
	if err != nil {
		t.Fatal(err)
	}
	if mpType != MultipartPortDesc || string(gotBody) != "payload" || !more {
		t.Fatalf("mpType=%d body=%q more=%v", mpType, gotBody, more)
	}
	if !MultipartMore(msg) {
		t.Fatal("MultipartMore should be true")
	}

	binary.BigEndian.PutUint16(msg[10:12], 0)
	if MultipartMore(msg) {
		t.Fatal("MultipartMore should be false once flags cleared")
	}
}
