// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package channel

import (
	"encoding/binary"
	"errors"
	"fmt"

	"code.hybscloud.com/ofchannel/ofp"
)

// Error taxonomy (spec §7). Each is a distinct sentinel or typed error,
// following the teacher's convention of package-level var Err... for
// simple sentinels plus one typed struct where the error must carry
// data (OpenflowError, mirroring twink.OpenflowError).
var (
	// ErrProtocolFraming: header length < 8, or a truncated message.
	// Fatal; closes the channel.
	ErrProtocolFraming = errors.New("channel: protocol framing error")

	// ErrVersionMismatch: handshake intersection was empty. The
	// channel sends ERROR(HELLO_FAILED, INCOMPATIBLE) then closes.
	ErrVersionMismatch = errors.New("channel: no common openflow version")

	// ErrClosed: the channel is closed; any further Send/Sync call
	// fails with this.
	ErrClosed = errors.New("channel: closed")

	// ErrCallbackDead: a registered callback was released (or never
	// registered) by the time a reply for it arrived. The receive loop
	// drops such a reply without returning this error; the Chunk stays
	// in the sequence until the next matching Barrier reply clears it.
	ErrCallbackDead = errors.New("channel: callback released")

	// ErrTimeout: a Sync wait expired before a reply arrived.
	ErrTimeout = errors.New("channel: sync wait timed out")

	// ErrHandlerClose: cooperative request from a user handler to
	// close this channel; caught by the parallelizer and receive loop.
	ErrHandlerClose = errors.New("channel: handler requested close")
)

// OpenflowError wraps a peer-sent ERROR message surfaced to a Sync
// caller or callback (spec §7). It is not fatal by itself — the
// channel that received it keeps running.
type OpenflowError struct {
	Header  ofp.Header
	ErrType uint16
	ErrCode uint16
	Data    []byte
}

func (e *OpenflowError) Error() string {
	return fmt.Sprintf("channel: openflow error type=%d code=%d xid=%d", e.ErrType, e.ErrCode, e.Header.Xid)
}

// parseOpenflowError decodes an ERROR message body: two big-endian
// uint16 fields (type, code) followed by an opaque data tail.
func parseOpenflowError(msg []byte) (*OpenflowError, error) {
	h, err := ofp.ParseHeader(msg)
	if err != nil {
		return nil, err
	}
	if len(msg) < ofp.HeaderLen+4 {
		return nil, ErrProtocolFraming
	}
	return &OpenflowError{
		Header:  h,
		ErrType: binary.BigEndian.Uint16(msg[8:10]),
		ErrCode: binary.BigEndian.Uint16(msg[10:12]),
		Data:    msg[12:],
	}, nil
}
