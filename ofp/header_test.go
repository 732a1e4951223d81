package ofp

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{Version: 4, Type: TypeHello, Length: 8, Xid: 1},
		{Version: 1, Type: TypeEchoRequest, Length: 12, Xid: 0xdeadbeef},
		{Version: 6, Type: TypePortStatus, Length: 80, Xid: 0},
	}
	for _, want := range cases {
		buf := make([]byte, want.Length)
		PutHeader(buf, want)
		got, err := ParseHeader(buf)
		if err != nil {
			t.Fatalf("ParseHeader: %v", err)
		}
		if got != want {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
		}
	}
}

func TestParseHeaderShort(t *testing.T) {
	_, err := ParseHeader([]byte{0, 0, 0})
	if err != ErrShortHeader {
		t.Fatalf("got %v want ErrShortHeader", err)
	}
}

func TestParseHeaderBadLength(t *testing.T) {
	buf := make([]byte, 8)
	PutHeader(buf, Header{Version: 4, Type: TypeHello, Length: 3, Xid: 0})
	_, err := ParseHeader(buf)
	if err != ErrBadLength {
		t.Fatalf("got %v want ErrBadLength", err)
	}
}

func TestHeaderOnly(t *testing.T) {
	buf := HeaderOnly(4, TypeFeaturesReq, 42)
	if len(buf) != HeaderLen {
		t.Fatalf("len=%d want %d", len(buf), HeaderLen)
	}
	h, err := ParseHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if h != (Header{Version: 4, Type: TypeFeaturesReq, Length: 8, Xid: 42}) {
		t.Fatalf("got %+v", h)
	}
}

func TestBarrierAndMultipartTypeNumbers(t *testing.T) {
	if got := BarrierRequestType(1); got != 18 {
		t.Fatalf("v1.0 barrier request = %d, want 18", got)
	}
	if got := BarrierReplyType(1); got != 19 {
		t.Fatalf("v1.0 barrier reply = %d, want 19", got)
	}
	if got := BarrierRequestType(4); got != 20 {
		t.Fatalf("v1.3 barrier request = %d, want 20", got)
	}
	if got := BarrierReplyType(4); got != 21 {
		t.Fatalf("v1.3 barrier reply = %d, want 21", got)
	}
	if got := MultipartRequestType(1); got != 16 {
		t.Fatalf("v1.0 stats request = %d, want 16", got)
	}
	if got := MultipartReplyType(1); got != 17 {
		t.Fatalf("v1.0 stats reply = %d, want 17", got)
	}
	if got := MultipartRequestType(4); got != 18 {
		t.Fatalf("v1.3 multipart request = %d, want 18", got)
	}
	if got := MultipartReplyType(4); got != 19 {
		t.Fatalf("v1.3 multipart reply = %d, want 19", got)
	}
}

func TestIsAsync(t *testing.T) {
	for _, typ := range []uint8{TypePacketIn, TypeFlowRemoved, TypePortStatus} {
		if !IsAsync(typ) {
			t.Fatalf("type %d should be async", typ)
		}
	}
	if IsAsync(TypeEchoRequest) {
		t.Fatal("ECHO_REQUEST should not be async")
	}
}
