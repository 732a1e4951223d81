// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package server

import (
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// DgramHandler processes one datagram from remote. reply sends a
// datagram back to the same remote address. Successive datagrams from
// the same remote address are serialized against each other (not
// against datagrams from other remotes) — matching
// original_source's DgramServer.locked_loop per-remote lock.
type DgramHandler func(remote net.Addr, data []byte, reply func([]byte) error)

// DgramServer reads datagrams from one bound UDP socket and dispatches
// them to a DgramHandler, one goroutine per datagram, serialized per
// remote address.
type DgramServer struct {
	conn    *net.UDPConn
	handler DgramHandler

	mu        sync.Mutex
	accepting bool
	remotes   map[string]*sync.Mutex

	wg sync.WaitGroup
}

// ListenDgram binds network/address (e.g. "udp"/"0.0.0.0:6653") and
// returns an unstarted server.
func ListenDgram(network, address string, handler DgramHandler) (*DgramServer, error) {
	addr, err := net.ResolveUDPAddr(network, address)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP(network, addr)
	if err != nil {
		return nil, err
	}
	return &DgramServer{conn: conn, handler: handler, remotes: make(map[string]*sync.Mutex)}, nil
}

// Addr returns the bound local address.
func (s *DgramServer) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Start begins reading datagrams in the background.
func (s *DgramServer) Start() {
	s.mu.Lock()
	s.accepting = true
	s.mu.Unlock()
	go s.run()
}

func (s *DgramServer) run() {
	buf := make([]byte, 1<<16)
	for {
		n, remote, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if !s.isAccepting() {
				return
			}
			logrus.Errorf("server: dgram read: %v", err)
			return
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		lock := s.lockFor(remote)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			lock.Lock()
			defer lock.Unlock()
			s.handler(remote, data, func(reply []byte) error {
				_, err := s.conn.WriteToUDP(reply, remote)
				return err
			})
		}()
	}
}

func (s *DgramServer) lockFor(remote *net.UDPAddr) *sync.Mutex {
	key := remote.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.remotes[key]
	if !ok {
		lock = &sync.Mutex{}
		s.remotes[key] = lock
	}
	return lock
}

func (s *DgramServer) isAccepting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepting
}

// Stop closes the socket and waits for every in-flight handler call
// to return.
func (s *DgramServer) Stop() error {
	s.mu.Lock()
	s.accepting = false
	s.mu.Unlock()
	err := s.conn.Close()
	s.wg.Wait()
	return err
}
