// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package server

import (
	"net"
	"sync/atomic"
	"testing"
	"time"
)

func TestDgramServerEchoesToSender(t *testing.T) {
	srv, err := ListenDgram("udp", "127.0.0.1:0", func(remote net.Addr, data []byte, reply func([]byte) error) {
		echoed := append([]byte(nil), data...)
		_ = reply(echoed)
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

func TestDgramServerSerializesPerRemoteNotAcrossRemotes(t *testing.T) {
	var concurrent, maxConcurrent int32
	srv, err := ListenDgram("udp", "127.0.0.1:0", func(remote net.Addr, data []byte, reply func([]byte) error) {
		n := atomic.AddInt32(&concurrent, 1)
		for {
			m := atomic.LoadInt32(&maxConcurrent)
			if n <= m || atomic.CompareAndSwapInt32(&maxConcurrent, m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
		_ = reply(data)
	})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	defer srv.Stop()

	const clients = 4
	conns := make([]net.Conn, clients)
	for i := range conns {
		c, err := net.Dial("udp", srv.Addr().String())
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()
		conns[i] = c
		if _, err := c.Write([]byte("x")); err != nil {
			t.Fatal(err)
		}
	}

	buf := make([]byte, 8)
	for _, c := range conns {
		c.SetReadDeadline(time.Now().Add(time.Second))
		if _, err := c.Read(buf); err != nil {
			t.Fatal(err)
		}
	}

	if atomic.LoadInt32(&maxConcurrent) < 2 {
		t.Fatalf("expected datagrams from distinct remotes to run concurrently, max=%d", maxConcurrent)
	}
}
