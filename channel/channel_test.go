// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package channel

import (
	"net"
	"testing"
	"time"

	"code.hybscloud.com/ofchannel/framer"
	"code.hybscloud.com/ofchannel/ofp"
)

func TestChannelHandshakeAutoEchoAndClose(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ch := New(a, Config{Accepted: []uint8{4}})
	done := make(chan error, 1)
	go func() {
		if err := ch.Start(); err != nil {
			done <- err
			return
		}
		done <- ch.Run()
	}()

	swR := framer.NewReader(b)
	swW := framer.NewWriter(b)
	buf := make([]byte, 2048)

	n, err := swR.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	h, err := ofp.ParseHeader(buf[:n])
	if err != nil || h.Type != ofp.TypeHello {
		t.Fatalf("expected HELLO, got type=%d err=%v", h.Type, err)
	}

	if _, err := swW.Write(ofp.BuildHello([]uint8{4}, 1)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for ch.Version() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if ch.Version() != 4 {
		t.Fatalf("version=%d, want 4", ch.Version())
	}

	if _, err := swW.Write(ofp.HeaderOnly(4, ofp.TypeEchoRequest, 42)); err != nil {
		t.Fatal(err)
	}
	n, err = swR.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	rh, err := ofp.ParseHeader(buf[:n])
	if err != nil || rh.Type != ofp.TypeEchoReply || rh.Xid != 42 {
		t.Fatalf("echo reply h=%v err=%v", rh, err)
	}

	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run never returned after transport close")
	}
	select {
	case <-ch.Done():
	default:
		t.Fatal("channel should be closed")
	}
}

func TestChannelDefaultCallbackReceivesReply(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	received := make(chan []byte, 1)
	ch := New(a, Config{
		Accepted:  []uint8{4},
		DefaultCB: func(reply []byte, c *Channel) { received <- reply },
	})
	go func() {
		_ = ch.Start()
		_ = ch.Run()
	}()

	swR := framer.NewReader(b)
	swW := framer.NewWriter(b)
	buf := make([]byte, 2048)

	if _, err := swR.Read(buf); err != nil { // HELLO
		t.Fatal(err)
	}
	if _, err := swW.Write(ofp.BuildHello([]uint8{4}, 1)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for ch.Version() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	go func() {
		flow := ofp.HeaderOnly(4, 14, 777) // OFPT_FLOW_MOD, opaque
		if err := ch.Send(flow, 0); err != nil {
			t.Errorf("send: %v", err)
		}
	}()

	n, err := swR.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	h, _ := ofp.ParseHeader(buf[:n])
	if h.Type != 14 || h.Xid != 777 {
		t.Fatalf("unexpected message from controller: %v", h)
	}

	reply := ofp.HeaderOnly(4, 99, 777)
	if _, err := swW.Write(reply); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-received:
		gh, _ := ofp.ParseHeader(got)
		if gh.Xid != 777 {
			t.Fatalf("xid=%d", gh.Xid)
		}
	case <-time.After(time.Second):
		t.Fatal("default callback never fired")
	}
}
