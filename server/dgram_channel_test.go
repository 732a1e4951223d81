// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package server

import (
	"net"
	"testing"
	"time"
)

// echoDgramChannel is a Channel test double that echoes every
// datagram it reads back to the same remote until its Transport
// closes.
type echoDgramChannel struct {
	conn    net.Conn
	started chan struct{}
	closed  chan struct{}
}

func newEchoDgramChannel(conn net.Conn) *echoDgramChannel {
	return &echoDgramChannel{conn: conn, started: make(chan struct{}, 1), closed: make(chan struct{})}
}

func (e *echoDgramChannel) Start() error {
	e.started <- struct{}{}
	return nil
}

func (e *echoDgramChannel) Run() error {
	buf := make([]byte, 1<<16)
	for {
		n, err := e.conn.Read(buf)
		if err != nil {
			return err
		}
		if _, err := e.conn.Write(buf[:n]); err != nil {
			return err
		}
	}
}

func (e *echoDgramChannel) Close() error {
	select {
	case <-e.closed:
	default:
		close(e.closed)
	}
	return e.conn.Close()
}

func TestDgramChannelServerEchoesThroughPerRemoteChannel(t *testing.T) {
	srv, err := ListenDgramChannels("udp", "127.0.0.1:0", func(conn net.Conn) (Channel, error) {
		return newEchoDgramChannel(conn), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	defer srv.Stop()

	conn, err := net.Dial("udp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestDgramChannelServerReusesChannelForSameRemote(t *testing.T) {
	built := make(chan *echoDgramChannel, 4)
	srv, err := ListenDgramChannels("udp", "127.0.0.1:0", func(conn net.Conn) (Channel, error) {
		fc := newEchoDgramChannel(conn)
		built <- fc
		return fc, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	defer srv.Stop()

	conn, err := net.Dial("udp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	buf := make([]byte, 16)
	for i := 0; i < 2; i++ {
		if _, err := conn.Write([]byte("ping")); err != nil {
			t.Fatal(err)
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		if _, err := conn.Read(buf); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-built:
	case <-time.After(time.Second):
		t.Fatal("expected a channel to be built")
	}
	select {
	case fc := <-built:
		t.Fatalf("expected exactly one channel for the remote, got a second: %+v", fc)
	default:
	}
}

func TestDgramChannelServerStopClosesTrackedChannels(t *testing.T) {
	built := make(chan *echoDgramChannel, 1)
	srv, err := ListenDgramChannels("udp", "127.0.0.1:0", func(conn net.Conn) (Channel, error) {
		fc := newEchoDgramChannel(conn)
		built <- fc
		return fc, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()

	conn, err := net.Dial("udp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}

	fc := <-built
	select {
	case <-fc.started:
	case <-time.After(time.Second):
		t.Fatal("Start was never called")
	}

	if err := srv.Stop(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-fc.closed:
	default:
		t.Fatal("Stop should have closed the tracked channel")
	}
}
