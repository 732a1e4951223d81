// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package server

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DgramChannelServer reads datagrams from one bound UDP socket and
// maintains a remote-address-to-Channel map (original_source's
// DgramServer, adapted per spec §4.8 to run a real application-level
// Channel per remote instead of a stateless per-datagram handler): the
// first datagram from a new remote address spawns a Channel via
// Factory; every later datagram from that remote is delivered to the
// same Channel's Transport.
type DgramChannelServer struct {
	conn    *net.UDPConn
	factory Factory

	mu        sync.Mutex
	accepting bool
	remotes   map[string]*dgramConn
	channels  map[Channel]struct{}

	wg sync.WaitGroup
}

// ListenDgramChannels binds network/address (e.g. "udp"/"0.0.0.0:6653")
// and returns an unstarted server.
func ListenDgramChannels(network, address string, factory Factory) (*DgramChannelServer, error) {
	addr, err := net.ResolveUDPAddr(network, address)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP(network, addr)
	if err != nil {
		return nil, err
	}
	return &DgramChannelServer{
		conn:     conn,
		factory:  factory,
		remotes:  make(map[string]*dgramConn),
		channels: make(map[Channel]struct{}),
	}, nil
}

// Addr returns the bound local address.
func (s *DgramChannelServer) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Start begins reading datagrams in the background.
func (s *DgramChannelServer) Start() {
	s.mu.Lock()
	s.accepting = true
	s.mu.Unlock()
	go s.run()
}

func (s *DgramChannelServer) run() {
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
		s.deliver(remote, data)
	}
}

func (s *DgramChannelServer) deliver(remote *net.UDPAddr, data []byte) {
	key := remote.String()

	s.mu.Lock()
	dc, ok := s.remotes[key]
	if !ok {
		dc = newDgramConn(s.conn.LocalAddr(), remote, s.conn)
		s.remotes[key] = dc
	}
	s.mu.Unlock()

	if !ok {
		s.spawnChannel(dc)
	}
	dc.deliver(data)
}

func (s *DgramChannelServer) spawnChannel(dc *dgramConn) {
	ch, err := s.factory(dc)
	if err != nil {
		logrus.Errorf("server: dgram channel setup for %s: %v", dc.RemoteAddr(), err)
		_ = dc.Close()
		s.forgetRemote(dc)
		return
	}

	s.mu.Lock()
	s.channels[ch] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.forgetRemote(dc)
		defer s.forgetChannel(ch)
		if err := ch.Start(); err != nil {
			logrus.Errorf("server: dgram channel start for %s: %v", dc.RemoteAddr(), err)
			_ = ch.Close()
			return
		}
		if err := ch.Run(); err != nil && err != io.EOF {
			logrus.Debugf("server: dgram channel %s closed: %v", dc.RemoteAddr(), err)
		}
	}()
}

func (s *DgramChannelServer) forgetRemote(dc *dgramConn) {
	s.mu.Lock()
	delete(s.remotes, dc.RemoteAddr().String())
	s.mu.Unlock()
}

func (s *DgramChannelServer) forgetChannel(ch Channel) {
	s.mu.Lock()
	delete(s.channels, ch)
	s.mu.Unlock()
}

func (s *DgramChannelServer) isAccepting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepting
}

// Stop closes the socket and every live per-remote Channel, then waits
// for their goroutines to return.
func (s *DgramChannelServer) Stop() error {
	s.mu.Lock()
	s.accepting = false
	channels := make([]Channel, 0, len(s.channels))
	for ch := range s.channels {
		channels = append(channels, ch)
	}
	s.mu.Unlock()

	err := s.conn.Close()
	for _, ch := range channels {
		_ = ch.Close()
	}
	s.wg.Wait()
	return err
}

// dgramConn adapts one remote address on a shared *net.UDPConn into a
// net.Conn a Channel's framer can read/write as a boundary-preserving
// (Datagram) transport: each inbound datagram is queued and handed
// back whole by Read, and Write sends straight to remote.
type dgramConn struct {
	local  net.Addr
	remote net.Addr
	sock   *net.UDPConn

	inbox     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newDgramConn(local, remote net.Addr, sock *net.UDPConn) *dgramConn {
	return &dgramConn{
		local:  local,
		remote: remote,
		sock:   sock,
		inbox:  make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *dgramConn) deliver(data []byte) {
	select {
	case c.inbox <- data:
	case <-c.closed:
	}
}

func (c *dgramConn) Read(p []byte) (int, error) {
	select {
	case data, ok := <-c.inbox:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, data), nil
	case <-c.closed:
		return 0, io.EOF
	}
}

func (c *dgramConn) Write(p []byte) (int, error) {
	udpAddr, ok := c.remote.(*net.UDPAddr)
	if !ok {
		return 0, net.InvalidAddrError("remote is not a *net.UDPAddr")
	}
	return c.sock.WriteToUDP(p, udpAddr)
}

func (c *dgramConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *dgramConn) LocalAddr() net.Addr  { return c.local }
func (c *dgramConn) RemoteAddr() net.Addr { return c.remote }

func (c *dgramConn) SetDeadline(time.Time) error      { return nil }
func (c *dgramConn) SetReadDeadline(time.Time) error  { return nil }
func (c *dgramConn) SetWriteDeadline(time.Time) error { return nil }
