package ofp

import "testing"

func TestBuildHelloBareVersion(t *testing.T) {
	// max accepted < 4: bare 8-byte header, no versionbitmap element.
	msg := BuildHello([]uint8{1, 2, 3}, 7)
	if len(msg) != HeaderLen {
		t.Fatalf("len=%d want %d", len(msg), HeaderLen)
	}
	h, err := ParseHeader(msg)
	if err != nil {
		t.Fatal(err)
	}
	if h.Version != 3 {
		t.Fatalf("version=%d want 3", h.Version)
	}

	versions, err := ParseHello(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !versions[3] || len(versions) != 1 {
		t.Fatalf("got %v want {3}", versions)
	}
}

func TestBuildHelloVersionBitmap(t *testing.T) {
	msg := BuildHello([]uint8{1, 4}, 99)
	h, err := ParseHeader(msg)
	if err != nil {
		t.Fatal(err)
	}
	if h.Version != 4 {
		t.Fatalf("version=%d want 4", h.Version)
	}
	if int(h.Length) != len(msg) {
		t.Fatalf("length field %d != actual %d", h.Length, len(msg))
	}

	versions, err := ParseHello(msg)
	if err != nil {
		t.Fatal(err)
	}
	want := map[uint8]bool{1: true, 4: true}
	if len(versions) != len(want) {
		t.Fatalf("got %v want %v", versions, want)
	}
	for v := range want {
		if !versions[v] {
			t.Fatalf("missing version %d in %v", v, versions)
		}
	}
}

func TestIntersectVersions(t *testing.T) {
	peer := map[uint8]bool{1: true, 2: true}
	got := IntersectVersions(peer, []uint8{4})
	if len(got) != 0 {
		t.Fatalf("got %v want empty", got)
	}
	got = IntersectVersions(peer, []uint8{2, 5})
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("got %v want [2]", got)
	}
}

func TestMaxVersion(t *testing.T) {
	if _, ok := MaxVersion(nil); ok {
		t.Fatal("expected ok=false for empty slice")
	}
	v, ok := MaxVersion([]uint8{1, 5, 3})
	if !ok || v != 5 {
		t.Fatalf("got v=%d ok=%v want 5,true", v, ok)
	}
}

func TestBuildErrorHelloFailed(t *testing.T) {
	msg := BuildErrorHelloFailed(4, 1, "accept versions: 1.3")
	h, err := ParseHeader(msg)
	if err != nil {
		t.Fatal(err)
	}
	if h.Type != TypeError {
		t.Fatalf("type=%d want %d", h.Type, TypeError)
	}
	if string(msg[12:]) != "accept versions: 1.3" {
		t.Fatalf("payload=%q", msg[12:])
	}
}
