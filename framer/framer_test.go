// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package framer

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

// buildMsg returns a minimal well-formed message: an 8-byte header whose
// Length field covers header+body, followed by body.
func buildMsg(version, typ byte, xid uint32, body []byte) []byte {
	msg := make([]byte, headerLen+len(body))
	msg[0] = version
	msg[1] = typ
	binary.BigEndian.PutUint16(msg[2:4], uint16(len(msg)))
	binary.BigEndian.PutUint32(msg[4:8], xid)
	copy(msg[8:], body)
	return msg
}

// scriptedReader replays a sequence of (chunk, error) steps, one per Read
// call, regardless of the caller-supplied buffer size (it copies as much of
// the current chunk as fits).
type scriptedReader struct {
	chunks [][]byte
	errs   []error
	i      int
	off    int
}

func (s *scriptedReader) Read(p []byte) (int, error) {
	if s.i >= len(s.chunks) {
		return 0, io.EOF
	}
	chunk := s.chunks[s.i]
	n := copy(p, chunk[s.off:])
	s.off += n
	var err error
	if s.off >= len(chunk) {
		err = s.errs[s.i]
		s.i++
		s.off = 0
	}
	return n, err
}

func TestReaderReadsWholeFrame(t *testing.T) {
	msg := buildMsg(4, 10, 42, []byte("hello"))
	r := NewReader(bytes.NewReader(msg))
	buf := make([]byte, 64)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf[:n], msg) {
		t.Fatalf("got %x want %x", buf[:n], msg)
	}
}

func TestReaderSplitAcrossReads(t *testing.T) {
	msg := buildMsg(4, 10, 1, []byte("payload-bytes"))
	sr := &scriptedReader{
		chunks: [][]byte{msg[:3], msg[3:8], msg[8:]},
		errs:   []error{nil, nil, nil},
	}
	r := NewReader(sr)
	buf := make([]byte, 64)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf[:n], msg) {
		t.Fatalf("got %x want %x", buf[:n], msg)
	}
}

func TestReaderWouldBlockMidHeader(t *testing.T) {
	msg := buildMsg(4, 10, 1, []byte("x"))
	sr := &scriptedReader{
		chunks: [][]byte{msg[:4], msg[4:]},
		errs:   []error{ErrWouldBlock, nil},
	}
	r := NewReader(sr, WithNonblock())
	buf := make([]byte, 64)
	_, err := r.Read(buf)
	if err != ErrWouldBlock {
		t.Fatalf("got %v want ErrWouldBlock", err)
	}
	n, err := r.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf[:n], msg) {
		t.Fatalf("got %x want %x", buf[:n], msg)
	}
}

func TestReaderShortBufferThenRetry(t *testing.T) {
	msg := buildMsg(4, 10, 1, []byte("0123456789"))
	r := NewReader(bytes.NewReader(msg))
	small := make([]byte, headerLen)
	if _, err := r.Read(small); err != io.ErrShortBuffer {
		t.Fatalf("got %v want io.ErrShortBuffer", err)
	}
	big := make([]byte, 64)
	n, err := r.Read(big)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(big[:n], msg) {
		t.Fatalf("got %x want %x", big[:n], msg)
	}
}

func TestReaderBadLength(t *testing.T) {
	msg := buildMsg(4, 10, 1, nil)
	binary.BigEndian.PutUint16(msg[2:4], 4) // shorter than the header itself
	r := NewReader(bytes.NewReader(msg))
	buf := make([]byte, 64)
	if _, err := r.Read(buf); err != ErrBadFrame {
		t.Fatalf("got %v want ErrBadFrame", err)
	}
}

func TestReaderCleanEOFAtBoundary(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	buf := make([]byte, 64)
	if _, err := r.Read(buf); err != io.EOF {
		t.Fatalf("got %v want io.EOF", err)
	}
}

func TestReaderTruncatedMidBody(t *testing.T) {
	msg := buildMsg(4, 10, 1, []byte("0123456789"))
	r := NewReader(bytes.NewReader(msg[:10]))
	buf := make([]byte, 64)
	if _, err := r.Read(buf); err != io.ErrUnexpectedEOF {
		t.Fatalf("got %v want io.ErrUnexpectedEOF", err)
	}
}

func TestWriterRejectsBadLength(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out)
	msg := buildMsg(4, 10, 1, []byte("abc"))
	binary.BigEndian.PutUint16(msg[2:4], uint16(len(msg)+1))
	if _, err := w.Write(msg); err != ErrBadFrame {
		t.Fatalf("got %v want ErrBadFrame", err)
	}
}

func TestWriterPassesThroughCompleteMessage(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out)
	msg := buildMsg(4, 10, 7, []byte("forward me"))
	n, err := w.Write(msg)
	if err != nil || n != len(msg) {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if !bytes.Equal(out.Bytes(), msg) {
		t.Fatalf("got %x want %x", out.Bytes(), msg)
	}
}

type wouldBlockWriter struct {
	buf       bytes.Buffer
	blockOnce bool
}

func (w *wouldBlockWriter) Write(p []byte) (int, error) {
	if w.blockOnce {
		w.blockOnce = false
		n, _ := w.buf.Write(p[:1])
		return n, ErrWouldBlock
	}
	return w.buf.Write(p)
}

func TestWriterResumesAfterWouldBlock(t *testing.T) {
	ww := &wouldBlockWriter{blockOnce: true}
	w := NewWriter(ww, WithNonblock())
	msg := buildMsg(4, 10, 9, []byte("0123456789"))
	n, err := w.Write(msg)
	if err != ErrWouldBlock || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	n, err = w.Write(msg)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(msg)-1 {
		t.Fatalf("n=%d want %d", n, len(msg)-1)
	}
	if !bytes.Equal(ww.buf.Bytes(), msg) {
		t.Fatalf("got %x want %x", ww.buf.Bytes(), msg)
	}
}

func TestDatagramPassThrough(t *testing.T) {
	msg := buildMsg(4, 10, 1, []byte("udp"))
	r := NewReader(bytes.NewReader(msg), WithReadProtocol(Datagram))
	buf := make([]byte, 64)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf[:n], msg) {
		t.Fatalf("got %x want %x", buf[:n], msg)
	}
}

func TestNewPipeRoundTrip(t *testing.T) {
	r, w := NewPipe()
	msg := buildMsg(4, 10, 1, []byte("pipe"))
	done := make(chan error, 1)
	go func() {
		_, err := w.Write(msg)
		done <- err
	}()
	buf := make([]byte, 64)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if werr := <-done; werr != nil {
		t.Fatal(werr)
	}
	if !bytes.Equal(buf[:n], msg) {
		t.Fatalf("got %x want %x", buf[:n], msg)
	}
}
