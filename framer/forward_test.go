// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package framer

import (
	"bytes"
	"io"
	"testing"
)

func TestForwarderRelaysWholeMessage(t *testing.T) {
	msg := buildMsg(4, 10, 1, []byte("relay me"))
	var dst bytes.Buffer
	f := NewForwarder(&dst, bytes.NewReader(msg))
	n, err := f.ForwardOnce()
	if err != nil {
		t.Fatal(err)
	}
	if n != len(msg) {
		t.Fatalf("n=%d want %d", n, len(msg))
	}
	if !bytes.Equal(dst.Bytes(), msg) {
		t.Fatalf("got %x want %x", dst.Bytes(), msg)
	}
}

func TestForwarderMultipleMessages(t *testing.T) {
	a := buildMsg(4, 10, 1, []byte("first"))
	b := buildMsg(4, 11, 2, []byte("second"))
	var dst bytes.Buffer
	f := NewForwarder(&dst, bytes.NewReader(append(append([]byte{}, a...), b...)))

	if _, err := f.ForwardOnce(); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ForwardOnce(); err != nil {
		t.Fatal(err)
	}
	want := append(append([]byte{}, a...), b...)
	if !bytes.Equal(dst.Bytes(), want) {
		t.Fatalf("got %x want %x", dst.Bytes(), want)
	}
	if _, err := f.ForwardOnce(); err != io.EOF {
		t.Fatalf("got %v want io.EOF once the source is exhausted", err)
	}
}

func TestForwarderResumesAfterWriteWouldBlock(t *testing.T) {
	msg := buildMsg(4, 10, 1, []byte("0123456789"))
	ww := &wouldBlockWriter{blockOnce: true}
	f := NewForwarder(ww, bytes.NewReader(msg), WithNonblock())

	n, err := f.ForwardOnce()
	if err != ErrWouldBlock || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	n, err = f.ForwardOnce()
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

func TestForwarderTooSmallBuffer(t *testing.T) {
	msg := buildMsg(4, 10, 1, make([]byte, 200))
	var dst bytes.Buffer
	f := NewForwarder(&dst, bytes.NewReader(msg), WithReadLimit(16))
	if _, err := f.ForwardOnce(); err != ErrTooLong {
		t.Fatalf("got %v want ErrTooLong", err)
	}
}

