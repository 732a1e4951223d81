// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package branch

import (
	"net"

	"code.hybscloud.com/ofchannel/channel"
	"code.hybscloud.com/ofchannel/ofp"
)

// childAccepted pins a child's own HELLO to the parent's already
// negotiated version, if known, so a jackin/monitor client can't
// negotiate something the parent connection itself doesn't speak.
func childAccepted(parent *channel.Channel) []uint8 {
	if v := parent.Version(); v != 0 {
		return []uint8{v}
	}
	return nil
}

// JackinChildChannel lets a second controller multiplex onto an
// already-live parent connection (spec §4.7, twink.JackinChildChannel):
// every non-HELLO message it sends is forwarded to the parent, and
// whatever reply that provokes is relayed back verbatim.
type JackinChildChannel struct {
	parent *channel.Channel
	child  *channel.Channel
	cbID   channel.HandlerID
}

func newJackinChild(parent *channel.Channel, conn net.Conn) *JackinChildChannel {
	jc := &JackinChildChannel{parent: parent}
	jc.cbID = parent.RegisterHandler(jc.sendToChild)
	jc.child = channel.New(conn, channel.Config{
		Accepted:  childAccepted(parent),
		DefaultCB: jc.onChildMessage,
	})
	return jc
}

// sendToChild is the parent-side callback registered for this child's
// whole lifetime: every reply the parent routes to it is relayed to
// the child verbatim.
func (jc *JackinChildChannel) sendToChild(reply []byte, _ *channel.Channel) {
	_ = jc.child.WriteRaw(reply)
}

// onChildMessage forwards a message received from the child straight
// to the parent, attributing the parent's reply to this child's
// standing callback.
func (jc *JackinChildChannel) onChildMessage(msg []byte, _ *channel.Channel) {
	_ = jc.parent.Send(msg, jc.cbID)
}

// Close releases this child's parent-side callback and closes its own
// transport. Safe to call more than once.
func (jc *JackinChildChannel) Close() {
	jc.parent.ReleaseHandler(jc.cbID)
	_ = jc.child.Close()
}

// MonitorChildChannel observes a parent connection read-only (spec
// §4.7, twink.MonitorChildChannel): it never forwards anything it
// receives, and any non-HELLO message it sends itself is rejected
// with an ERROR and the connection closed.
type MonitorChildChannel struct {
	child *channel.Channel
}

func newMonitorChild(parent *channel.Channel, conn net.Conn) *MonitorChildChannel {
	mc := &MonitorChildChannel{}
	mc.child = channel.New(conn, channel.Config{
		Accepted:  childAccepted(parent),
		DefaultCB: mc.rejectSend,
	})
	return mc
}

func (mc *MonitorChildChannel) rejectSend(msg []byte, ch *channel.Channel) {
	if h, err := ofp.ParseHeader(msg); err == nil {
		errMsg := ofp.BuildError(ch.Version(), ofp.ErrorTypeBadRequest, ofp.ErrorCodeBadRequestEPerm,
			h.Xid, "monitor connections are receive-only")
		_ = ch.WriteRaw(errMsg)
	}
	_ = ch.Close()
}
