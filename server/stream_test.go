// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package server

import (
	"errors"
	"net"
	"testing"
	"time"
)

type fakeChannel struct {
	startErr error
	started  chan struct{}
	closed   chan struct{}
	conn     net.Conn
}

func newFakeChannel(conn net.Conn) *fakeChannel {
	return &fakeChannel{started: make(chan struct{}, 1), closed: make(chan struct{}), conn: conn}
}

func (f *fakeChannel) Start() error {
	f.started <- struct{}{}
	return f.startErr
}

func (f *fakeChannel) Run() error {
	buf := make([]byte, 16)
	_, err := f.conn.Read(buf)
	return err
}

func (f *fakeChannel) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return f.conn.Close()
}

func TestStreamServerAcceptsAndTracksChannels(t *testing.T) {
	var built []*fakeChannel
	srv, err := ListenStream("tcp", "127.0.0.1:0", func(conn net.Conn) (Channel, error) {
		fc := newFakeChannel(conn)
		built = append(built, fc)
		return fc, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	defer srv.Stop()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for len(built) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(built) != 1 {
		t.Fatalf("expected one channel built, got %d", len(built))
	}
	select {
	case <-built[0].started:
	case <-time.After(time.Second):
		t.Fatal("Start was never called")
	}
}

func TestStreamServerStopClosesTrackedChannels(t *testing.T) {
	built := make(chan *fakeChannel, 1)
	srv, err := ListenStream("tcp", "127.0.0.1:0", func(conn net.Conn) (Channel, error) {
		fc := newFakeChannel(conn)
		built <- fc
		return fc, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	fc := <-built
	if err := srv.Stop(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-fc.closed:
	default:
		t.Fatal("Stop should have closed the tracked channel")
	}
}

func TestStreamServerFactoryErrorClosesConnAndKeepsServing(t *testing.T) {
	srv, err := ListenStream("tcp", "127.0.0.1:0", func(conn net.Conn) (Channel, error) {
		return nil, errors.New("setup failed")
	})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	defer srv.Stop()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected the connection to be closed after a factory error")
	}

	// the server itself must still be accepting afterwards
	conn2, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn2.Close()
}
