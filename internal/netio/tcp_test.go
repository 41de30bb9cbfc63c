package netio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"
)

// pipeConn is a minimal in-memory TCPConn for exercising FramedSocket
// without opening a real socket, mirroring the teacher's MockUDPSocket
// approach in internal/lidar/network.
type pipeConn struct {
	readBuf  *bytes.Buffer
	writeBuf *bytes.Buffer
	closed   bool
	timeout  bool
}

func newPipeConn(in []byte) *pipeConn {
	return &pipeConn{readBuf: bytes.NewBuffer(in), writeBuf: &bytes.Buffer{}}
}

func (p *pipeConn) Read(b []byte) (int, error) {
	if p.closed {
		return 0, errors.New("closed")
	}
	if p.readBuf.Len() == 0 {
		if p.timeout {
			return 0, timeoutErr{}
		}
		return 0, io.EOF
	}
	return p.readBuf.Read(b)
}

func (p *pipeConn) Write(b []byte) (int, error) {
	if p.closed {
		return 0, errors.New("closed")
	}
	return p.writeBuf.Write(b)
}

func (p *pipeConn) SetReadDeadline(t time.Time) error { return nil }
func (p *pipeConn) Close() error                      { p.closed = true; return nil }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestFramedSocketReadDecodesLengthPrefix(t *testing.T) {
	payload := []byte("hello scan head")
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(payload)))
	conn := newPipeConn(append(header, payload...))

	s := NewFramedSocket(conn)
	buf := make([]byte, 64)
	n, err := s.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != string(payload) {
		t.Fatalf("got %q, want %q", buf[:n], payload)
	}
}

func TestFramedSocketSendWritesLengthPrefix(t *testing.T) {
	conn := newPipeConn(nil)
	s := NewFramedSocket(conn)
	if err := s.Send([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	want := make([]byte, 4)
	binary.LittleEndian.PutUint32(want, 3)
	want = append(want, 'a', 'b', 'c')
	if !bytes.Equal(conn.writeBuf.Bytes(), want) {
		t.Fatalf("got %v, want %v", conn.writeBuf.Bytes(), want)
	}
}

func TestFramedSocketReadRejectsOversizedFrame(t *testing.T) {
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, 10)
	conn := newPipeConn(append(header, []byte("0123456789")...))
	s := NewFramedSocket(conn)

	buf := make([]byte, 4) // smaller than the incoming frame
	_, err := s.Read(buf)
	if err == nil {
		t.Fatal("expected Internal error for oversized frame")
	}
}

func TestFramedSocketReadReturnsZeroOnCancellation(t *testing.T) {
	conn := newPipeConn(nil)
	conn.timeout = true
	s := NewFramedSocket(conn)
	var active int32 = 0
	s.SetCancellationFlag(&active)

	n, err := s.Read(make([]byte, 16))
	if err != nil || n != 0 {
		t.Fatalf("expected (0, nil) on cleared cancellation flag, got (%d, %v)", n, err)
	}
}

func TestFramedSocketReadReturnsZeroOnTimeoutThenCancelled(t *testing.T) {
	conn := newPipeConn(nil)
	conn.timeout = true
	s := NewFramedSocket(conn)
	var active int32 = 1
	s.SetCancellationFlag(&active)

	done := make(chan struct{})
	go func() {
		s.Read(make([]byte, 16))
		close(done)
	}()
	atomic.StoreInt32(&active, 0)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not return after cancellation flag cleared")
	}
}
