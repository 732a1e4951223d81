// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package server implements the accept-loop/per-channel-goroutine
// server shape spec §4.8 describes (twink.StreamServer/DgramServer):
// bind once, spawn a goroutine per accepted connection, and track
// every live channel so Stop can tear them all down together.
package server

import (
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// Channel is whatever a Factory hands back for a freshly accepted
// connection — a *channel.Channel or a *branch.ParentChannel both
// satisfy it.
type Channel interface {
	Start() error
	Run() error
	Close() error
}

// Factory builds the application-level channel for a newly accepted
// connection. Returning a non-nil error closes conn and logs the
// failure without taking the server down (original_source's
// StreamServer.run: "Channel setup failed ... continue").
type Factory func(conn net.Conn) (Channel, error)

// StreamServer accepts stream connections (TCP or Unix) and runs one
// Factory-built channel per connection on its own goroutine.
type StreamServer struct {
	listener net.Listener
	factory  Factory

	mu        sync.Mutex
	accepting bool
	channels  map[Channel]struct{}

	wg sync.WaitGroup
}

// ListenStream binds network/address (e.g. "tcp"/"0.0.0.0:6653" or
// "unix"/"/var/run/ofchanneld.sock") and returns an unstarted server.
func ListenStream(network, address string, factory Factory) (*StreamServer, error) {
	l, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("server: listen %s %s: %w", network, address, err)
	}
	return NewStreamServer(l, factory), nil
}

// NewStreamServer wraps an already-bound listener.
func NewStreamServer(l net.Listener, factory Factory) *StreamServer {
	return &StreamServer{listener: l, factory: factory, channels: make(map[Channel]struct{})}
}

// Addr returns the listener's bound address.
func (s *StreamServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Start begins accepting connections in the background.
func (s *StreamServer) Start() {
	s.mu.Lock()
	s.accepting = true
	s.mu.Unlock()
	go s.run()
}

func (s *StreamServer) run() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.isAccepting() {
				return
			}
			logrus.Errorf("server: accept: %v", err)
			return
		}

		ch, err := s.factory(conn)
		if err != nil {
			logrus.Errorf("server: channel setup failed for %s: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
			continue
		}

		s.mu.Lock()
		s.channels[ch] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.runChannel(ch)
	}
}

func (s *StreamServer) runChannel(ch Channel) {
	defer s.wg.Done()
	defer s.forget(ch)
	if err := ch.Start(); err != nil {
		logrus.Errorf("server: handshake failed: %v", err)
		_ = ch.Close()
		return
	}
	_ = ch.Run()
}

func (s *StreamServer) forget(ch Channel) {
	s.mu.Lock()
	delete(s.channels, ch)
	s.mu.Unlock()
}

func (s *StreamServer) isAccepting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepting
}

// Stop closes the listener and every channel this server has tracked,
// then waits for every per-channel goroutine to return.
func (s *StreamServer) Stop() error {
	s.mu.Lock()
	s.accepting = false
	channels := make([]Channel, 0, len(s.channels))
	for ch := range s.channels {
		channels = append(channels, ch)
	}
	s.mu.Unlock()

	err := s.listener.Close()
	for _, ch := range channels {
		_ = ch.Close()
	}
	s.wg.Wait()
	return err
}
