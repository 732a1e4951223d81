// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package channel implements a live OpenFlow switch connection: the
// version handshake, auto-echo, barrier-ordered callback dispatch,
// synchronous request/reply calls over the async wire protocol, and a
// live port table, all multiplexed over one framed transport.
package channel

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"code.hybscloud.com/ofchannel/framer"
	"code.hybscloud.com/ofchannel/ofp"
)

// DefaultReadLimit is the largest whole message this module will
// accept, matching OpenFlow's own 16-bit Length field ceiling.
const DefaultReadLimit = 1<<16 - 1

// Transport is the live connection a Channel multiplexes over. A
// *net.TCPConn, *net.UnixConn, or *net.UDPConn all satisfy it.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
	RemoteAddr() net.Addr
}

// Channel is one live OpenFlow connection (spec §3). Its transport,
// sequencer state, sync map, and port table are each exclusively
// owned; concurrent access to each is serialized by its own lock
// (spec §5) rather than one channel-wide lock, so a Sync wait or a
// port lookup never blocks the receive loop.
type Channel struct {
	transport Transport
	fr        io.ReadWriter
	accepted  []uint8

	hs handshakeState

	seqMu sync.Mutex
	seq   *sequencer

	sync     *syncState
	ports    *portMonitor
	handlers *handlerRegistry
	par      *parallelizer

	writeMu sync.Mutex

	defaultCB Callback
	asyncCB   Callback

	datapathID  atomic.Uint64
	auxiliaryID atomic.Uint32
	hasFeatures atomic.Bool

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error

	buf []byte

	onHandshakeDone func(ch *Channel)
	onFeaturesReply func(ch *Channel)
	onMessage       func(msg []byte)
}

// Config supplies New's construction-time options.
type Config struct {
	// Accepted lists the OpenFlow versions this endpoint advertises in
	// its HELLO (1=1.0 ... 6=1.5). Defaults to all six.
	Accepted []uint8

	// DefaultCB handles every reply not routed to an explicitly
	// registered HandlerID, and (absent AsyncCB) every async message.
	DefaultCB Callback

	// AsyncCB, if set, handles PACKET_IN/FLOW_REMOVED/PORT_STATUS
	// instead of DefaultCB.
	AsyncCB Callback

	// AsyncBatch bounds concurrent async handler invocations (spec
	// §4.9). Zero uses DefaultAsyncBatch.
	AsyncBatch int

	// ReadLimit caps the largest accepted whole message. Zero uses
	// DefaultReadLimit.
	ReadLimit int

	// Datagram selects pass-through framing for a boundary-preserving
	// transport (UDP, Unix datagram sockets): each Read already returns
	// one complete OpenFlow message, so the framer does not accumulate
	// a header before reading the rest (spec §4.1). Stream transports
	// (TCP, Unix stream sockets) leave this false.
	Datagram bool

	// OnHandshakeDone, if set, runs once negotiation completes
	// successfully — the branch subsystem uses it to start its jackin
	// and monitor listeners (spec §4.7: listeners start once the
	// parent's own HELLO exchange with the switch finishes).
	OnHandshakeDone func(ch *Channel)

	// OnFeaturesReply, if set, runs the first time this channel
	// observes a FEATURES_REPLY — the branch subsystem uses it to
	// learn the datapath id and rename its listener socket paths.
	OnFeaturesReply func(ch *Channel)

	// OnMessage, if set, runs for every message received after the
	// handshake completes (HELLO itself excluded), regardless of how
	// it is otherwise routed — the branch subsystem uses it to
	// broadcast every parent message to attached monitor children.
	OnMessage func(msg []byte)
}

// New constructs a Channel over t. Call Start to begin the handshake
// and Run to drive its receive loop.
func New(t Transport, cfg Config) *Channel {
	accepted := cfg.Accepted
	if len(accepted) == 0 {
		accepted = []uint8{1, 2, 3, 4, 5, 6}
	}
	readLimit := cfg.ReadLimit
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}

	ch := &Channel{
		transport:       t,
		accepted:        accepted,
		defaultCB:       cfg.DefaultCB,
		asyncCB:         cfg.AsyncCB,
		sync:            newSyncState(),
		ports:           newPortMonitor(),
		handlers:        newHandlerRegistry(),
		closed:          make(chan struct{}),
		buf:             make([]byte, readLimit),
		onHandshakeDone: cfg.OnHandshakeDone,
		onFeaturesReply: cfg.OnFeaturesReply,
		onMessage:       cfg.OnMessage,
	}
	ch.seq = newSequencer(0)
	ch.par = newParallelizer(ch, cfg.AsyncBatch)
	frOpts := []framer.Option{framer.WithReadLimit(readLimit)}
	if cfg.Datagram {
		frOpts = append(frOpts, framer.WithReadUDP(), framer.WithWriteUDP())
	}
	ch.fr = framer.NewReadWriter(t, t, frOpts...)
	return ch
}

// Start sends this channel's own HELLO. Run must not be called before
// Start returns successfully.
func (ch *Channel) Start() error {
	return ch.startHandshake()
}

// Run drives the receive loop until the transport closes, a protocol
// error occurs, or the channel is closed some other way. It returns
// the reason the loop stopped (io.EOF on a clean peer close).
func (ch *Channel) Run() error {
	for {
		n, err := ch.fr.Read(ch.buf)
		if err != nil {
			if errors.Is(err, framer.ErrBadFrame) || errors.Is(err, io.ErrUnexpectedEOF) {
				err = ErrProtocolFraming
			}
			ch.closeWithCause(err)
			return err
		}
		msg := make([]byte, n)
		copy(msg, ch.buf[:n])

		if err := ch.handleMessage(msg); err != nil {
			ch.closeWithCause(err)
			return err
		}

		select {
		case <-ch.closed:
			return ch.closeErr
		default:
		}
	}
}

// handleMessage implements the receive-side dispatch order from spec
// §4.4: handshake gate, auto-echo, FEATURES_REPLY interception,
// live port-table update, sync-tracker claim, async bypass, then
// sequencer routing.
func (ch *Channel) handleMessage(msg []byte) error {
	h, err := ofp.ParseHeader(msg)
	if err != nil {
		return ErrProtocolFraming
	}

	if !ch.hs.done.Load() {
		if h.Type != ofp.TypeHello {
			return ErrProtocolFraming
		}
		if err := ch.handleHello(msg); err != nil {
			return err
		}
		if ch.hs.done.Load() && ch.onHandshakeDone != nil {
			ch.onHandshakeDone(ch)
		}
		return nil
	}

	version := ch.Version()

	if ch.onMessage != nil {
		ch.onMessage(msg)
	}

	if handled, err := ch.maybeAutoEcho(h, msg); handled {
		return err
	}

	if h.Type == ofp.TypeFeaturesReply {
		hadFeatures := ch.hasFeatures.Load()
		ch.interceptFeaturesReply(version, msg)
		if !hadFeatures && ch.hasFeatures.Load() && ch.onFeaturesReply != nil {
			ch.onFeaturesReply(ch)
		}
	}
	if h.Type == ofp.TypePortStatus {
		if decoded, perr := ofp.Default.Decode(version, ofp.TypePortStatus, msg); perr == nil {
			ev := decoded.(ofp.PortStatusEvent)
			_ = ch.ports.applyStatus(ev.Reason, ev.Port)
		}
	}

	if ch.sync.deliver(version, h, msg) {
		return nil
	}

	if ofp.IsAsync(h.Type) {
		cb := ch.asyncCB
		if cb == nil {
			cb = ch.defaultCB
		}
		if cb != nil {
			ch.par.dispatchAsync(func() { cb(msg, ch) })
		}
		return nil
	}

	id, ok := ch.seq.route(version, h)
	if !ok {
		return ErrProtocolFraming
	}
	cb := ch.resolveCallback(id)
	if cb == nil {
		return nil // callback released (or never registered): reply dropped
	}
	ch.par.dispatch(func() { cb(msg, ch) })
	return nil
}

func (ch *Channel) resolveCallback(id HandlerID) Callback {
	if id == 0 {
		return ch.defaultCB
	}
	cb, ok := ch.handlers.lookup(id)
	if !ok {
		return nil
	}
	return cb
}

func (ch *Channel) interceptFeaturesReply(version uint8, msg []byte) {
	decoded, err := ofp.Default.Decode(version, ofp.TypeFeaturesReply, msg)
	if err != nil {
		return
	}
	fr := decoded.(ofp.FeaturesReply)
	ch.datapathID.Store(fr.DatapathID)
	ch.auxiliaryID.Store(uint32(fr.AuxiliaryID))
	ch.hasFeatures.Store(true)
}

// DatapathID returns the switch's datapath id learned from the first
// observed FEATURES_REPLY, and whether one has been observed yet.
func (ch *Channel) DatapathID() (uint64, bool) {
	return ch.datapathID.Load(), ch.hasFeatures.Load()
}

// AuxiliaryID returns the auxiliary connection id from the first
// observed FEATURES_REPLY (meaningful for OpenFlow 1.3+ only).
func (ch *Channel) AuxiliaryID() uint8 {
	return uint8(ch.auxiliaryID.Load())
}

// Send writes msg, attributing whatever reply it provokes to cb (0
// for the channel's default callback). If the sequencer determines a
// fencing BARRIER_REQUEST is needed first, Send writes it immediately
// before msg, atomically with respect to every other Send on this
// channel (spec §4.4 rule 3, §5 ordering guarantees).
func (ch *Channel) Send(msg []byte, cb HandlerID) error {
	select {
	case <-ch.closed:
		return ErrClosed
	default:
	}

	ch.seqMu.Lock()
	defer ch.seqMu.Unlock()

	barrier, err := ch.seq.beforeSend(ch.Version(), msg, cb)
	if err != nil {
		return err
	}
	if barrier != nil {
		if err := ch.writeFrame(barrier); err != nil {
			return err
		}
	}
	return ch.writeFrame(msg)
}

// WriteRaw writes msg directly to the transport, bypassing both the
// sequencer and the sync tracker. The branch subsystem uses this to
// relay a parent reply verbatim to a jackin child, and to broadcast a
// parent message verbatim to a monitor child (spec §4.7: "sent, not
// interpreted").
func (ch *Channel) WriteRaw(msg []byte) error {
	return ch.writeFrame(msg)
}

func (ch *Channel) writeFrame(msg []byte) error {
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	_, err := ch.fr.Write(msg)
	return err
}

// RegisterHandler installs cb under a fresh id a caller can pass to
// Send so later-routed replies reach it (spec §9, weak callbacks).
func (ch *Channel) RegisterHandler(cb Callback) HandlerID {
	return ch.handlers.register(cb)
}

// ReleaseHandler drops id; any reply later routed to it is dropped.
func (ch *Channel) ReleaseHandler(id HandlerID) {
	ch.handlers.release(id)
}

// RemoteAddr returns the transport's peer address.
func (ch *Channel) RemoteAddr() net.Addr {
	return ch.transport.RemoteAddr()
}

// Done returns a channel closed once this Channel has closed.
func (ch *Channel) Done() <-chan struct{} {
	return ch.closed
}

// Err returns the reason Run (or Close) stopped the channel, valid
// only after Done is closed.
func (ch *Channel) Err() error {
	return ch.closeErr
}

// Close closes the channel cooperatively, as if a handler had raised
// ErrHandlerClose.
func (ch *Channel) Close() error {
	ch.closeWithCause(ErrHandlerClose)
	return nil
}

// closeWithCause is the single teardown path: it fires every
// outstanding Sync tracker and port waiter, releases every registered
// handler, and stops the parallelizer, exactly once.
func (ch *Channel) closeWithCause(cause error) {
	ch.closeOnce.Do(func() {
		ch.closeErr = cause
		close(ch.closed)
		ch.sync.closeAll()
		ch.ports.closeAll()
		ch.handlers.releaseAll()
		ch.par.stop()
		_ = ch.transport.Close()
	})
}
