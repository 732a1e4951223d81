// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package channel

import "code.hybscloud.com/ofchannel/ofp"

// maybeAutoEcho intercepts ECHO_REQUEST, replying with ECHO_REPLY
// carrying the same xid and payload, without ever invoking a user
// handler (spec §4.3). It reports whether msg was an ECHO_REQUEST it
// handled.
func (ch *Channel) maybeAutoEcho(h ofp.Header, msg []byte) (bool, error) {
	if h.Type != ofp.TypeEchoRequest {
		return false, nil
	}
	reply := make([]byte, len(msg))
	copy(reply, msg)
	reply[1] = ofp.TypeEchoReply
	if err := ch.writeFrame(reply); err != nil {
		return true, err
	}
	return true, nil
}
