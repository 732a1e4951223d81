// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package branch implements the jackin/monitor branching subsystem
// (spec §4.7): a live parent connection to a switch can expose Unix
// sockets that let second controllers ("jack in") multiplex onto the
// same session, or passive monitors observe every message the parent
// receives.
package branch

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"code.hybscloud.com/ofchannel/channel"
)

// Config configures a ParentChannel's branching behavior.
type Config struct {
	// Jackin enables the jackin listener.
	Jackin bool
	// Monitor enables the monitor listener.
	Monitor bool
	// SocketDir is the directory both Unix listeners are created in.
	SocketDir string
}

// ParentChannel wraps a live channel.Channel to a switch with the
// jackin/monitor listeners spec §4.7 describes (twink.ParentChannel).
type ParentChannel struct {
	*channel.Channel

	cfg Config
	pid int

	mu              sync.Mutex
	jackinListener  net.Listener
	jackinPath      string
	monitorListener net.Listener
	monitorPath     string
	children        []*JackinChildChannel
	monitors        []*MonitorChildChannel
}

// NewParent constructs a ParentChannel over t. chCfg's own
// OnHandshakeDone/OnFeaturesReply/OnMessage hooks, if set, are
// preserved and run after this package's own.
func NewParent(t channel.Transport, cfg Config, chCfg channel.Config) *ParentChannel {
	pc := &ParentChannel{cfg: cfg, pid: os.Getpid()}

	userDone, userFeatures, userMsg := chCfg.OnHandshakeDone, chCfg.OnFeaturesReply, chCfg.OnMessage
	chCfg.OnHandshakeDone = func(ch *channel.Channel) {
		pc.onHandshakeDone()
		if userDone != nil {
			userDone(ch)
		}
	}
	chCfg.OnFeaturesReply = func(ch *channel.Channel) {
		pc.onFeaturesReply()
		if userFeatures != nil {
			userFeatures(ch)
		}
	}
	chCfg.OnMessage = func(msg []byte) {
		pc.broadcast(msg)
		if userMsg != nil {
			userMsg(msg)
		}
	}

	pc.Channel = channel.New(t, chCfg)
	return pc
}

// helperPath computes the listener socket path for kind ("jackin" or
// "monitor"): "unknown-<pid>.<kind>" before the datapath id is known,
// "<datapath>-<pid>.<kind>" after (spec §4.7).
func (pc *ParentChannel) helperPath(kind string) string {
	id := "unknown"
	if dp, ok := pc.DatapathID(); ok {
		id = fmt.Sprintf("%016x", dp)
	}
	return filepath.Join(pc.cfg.SocketDir, fmt.Sprintf("%s-%d.%s", id, pc.pid, kind))
}

func (pc *ParentChannel) onHandshakeDone() {
	if pc.cfg.Jackin {
		pc.startListener("jackin")
	}
	if pc.cfg.Monitor {
		pc.startListener("monitor")
	}
}

func (pc *ParentChannel) startListener(kind string) {
	path := pc.helperPath(kind)
	l, err := net.Listen("unix", path)
	if err != nil {
		logrus.Errorf("branch: listen %s: %v", path, err)
		return
	}
	pc.mu.Lock()
	if kind == "jackin" {
		pc.jackinListener, pc.jackinPath = l, path
	} else {
		pc.monitorListener, pc.monitorPath = l, path
	}
	pc.mu.Unlock()
	go pc.acceptLoop(kind, l)
}

// onFeaturesReply renames the listener socket paths from the
// "unknown-<pid>" placeholder to "<datapath>-<pid>" now that the
// datapath id is known. The already-bound listener stays reachable
// under its new name — renaming a Unix socket's directory entry
// doesn't require rebinding.
func (pc *ParentChannel) onFeaturesReply() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.jackinListener != nil {
		if newPath := pc.helperPath("jackin"); newPath != pc.jackinPath {
			if err := os.Rename(pc.jackinPath, newPath); err == nil {
				pc.jackinPath = newPath
			}
		}
	}
	if pc.monitorListener != nil {
		if newPath := pc.helperPath("monitor"); newPath != pc.monitorPath {
			if err := os.Rename(pc.monitorPath, newPath); err == nil {
				pc.monitorPath = newPath
			}
		}
	}
}

func (pc *ParentChannel) acceptLoop(kind string, l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		if kind == "jackin" {
			pc.spawnJackinChild(conn)
		} else {
			pc.spawnMonitorChild(conn)
		}
	}
}

func (pc *ParentChannel) spawnJackinChild(conn net.Conn) {
	jc := newJackinChild(pc.Channel, conn)
	pc.mu.Lock()
	pc.children = append(pc.children, jc)
	pc.mu.Unlock()
	go func() {
		if err := jc.child.Start(); err == nil {
			_ = jc.child.Run()
		}
		pc.removeChild(jc)
	}()
}

func (pc *ParentChannel) spawnMonitorChild(conn net.Conn) {
	mc := newMonitorChild(pc.Channel, conn)
	pc.mu.Lock()
	pc.monitors = append(pc.monitors, mc)
	pc.mu.Unlock()
	go func() {
		if err := mc.child.Start(); err == nil {
			_ = mc.child.Run()
		}
		pc.removeMonitor(mc)
	}()
}

func (pc *ParentChannel) removeChild(jc *JackinChildChannel) {
	jc.Close()
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for i, c := range pc.children {
		if c == jc {
			pc.children = append(pc.children[:i], pc.children[i+1:]...)
			return
		}
	}
}

func (pc *ParentChannel) removeMonitor(mc *MonitorChildChannel) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for i, m := range pc.monitors {
		if m == mc {
			pc.monitors = append(pc.monitors[:i], pc.monitors[i+1:]...)
			return
		}
	}
}

// broadcast sends msg, verbatim and unparsed, to every attached
// monitor child, preserving the parent's receive order across all of
// them (spec §5).
func (pc *ParentChannel) broadcast(msg []byte) {
	pc.mu.Lock()
	monitors := append([]*MonitorChildChannel(nil), pc.monitors...)
	pc.mu.Unlock()
	for _, m := range monitors {
		_ = m.child.WriteRaw(msg)
	}
}

// TempServer starts an ephemeral TCP jackin listener on 127.0.0.1:0
// (spec §4.7, supplemented from original_source's ParentChannel.temp_server):
// a private, automatically-allocated jackin endpoint with no Unix
// socket path, for callers that want one jack-in child without
// configuring a socket directory.
func (pc *ParentChannel) TempServer() (addr net.Addr, stop func() error, err error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, nil, err
	}
	go pc.acceptLoop("jackin", l)
	return l.Addr(), l.Close, nil
}

// Close stops both listeners, removes their Unix socket paths, and
// closes every child and monitor channel (spec §4.7).
func (pc *ParentChannel) Close() error {
	pc.mu.Lock()
	if pc.jackinListener != nil {
		_ = pc.jackinListener.Close()
		_ = os.Remove(pc.jackinPath)
	}
	if pc.monitorListener != nil {
		_ = pc.monitorListener.Close()
		_ = os.Remove(pc.monitorPath)
	}
	children := pc.children
	monitors := pc.monitors
	pc.children, pc.monitors = nil, nil
	pc.mu.Unlock()

	for _, c := range children {
		c.Close()
	}
	for _, m := range monitors {
		_ = m.child.Close()
	}
	return pc.Channel.Close()
}
