package netio

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/scanhead/internal/scanerr"
)

// maxFramedMessage bounds a single length-framed message, guarding
// against a corrupt or hostile length prefix driving an unbounded
// allocation.
const maxFramedMessage = 64 << 20

// TCPConn abstracts the subset of *net.TCPConn the framed socket
// needs, mirroring the teacher's UDPSocket seam so tests can inject a
// fake connection instead of opening a real one.
type TCPConn interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// FramedSocket is the length-framed TCP stream socket of spec.md
// §4.1: "Send is length-framed: a little-endian 32-bit length prefix
// followed by payload ... Read performs the same framing on input."
type FramedSocket struct {
	mu       sync.Mutex
	conn     TCPConn
	cancel   *int32 // optional; see SetCancellationFlag
}

// Dial opens a framed TCP socket to addr, bound to the given local
// interface address (empty means system-chosen).
func Dial(localAddr, addr string) (*FramedSocket, error) {
	var d net.Dialer
	if localAddr != "" {
		laddr, err := net.ResolveTCPAddr("tcp", localAddr+":0")
		if err != nil {
			return nil, scanerr.Wrap(scanerr.Network, err, "resolve local addr %s", localAddr)
		}
		d.LocalAddr = laddr
	}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, scanerr.Wrap(scanerr.Network, err, "dial %s", addr)
	}
	return NewFramedSocket(conn.(*net.TCPConn)), nil
}

// NewFramedSocket wraps an existing TCPConn.
func NewFramedSocket(conn TCPConn) *FramedSocket {
	return &FramedSocket{conn: conn}
}

// SetCancellationFlag installs a pointer this socket's Read will
// consult: if the flag is cleared (set to 0) while Read is blocked on
// I/O, the read loop returns (0, nil) at its next timeout tick rather
// than erroring, allowing orderly task shutdown (spec.md §4.1).
func (s *FramedSocket) SetCancellationFlag(flag *int32) {
	s.cancel = flag
}

func (s *FramedSocket) cancelled() bool {
	return s.cancel != nil && atomic.LoadInt32(s.cancel) == 0
}

// Send writes buf as one length-framed message: a 4-byte
// little-endian length prefix followed by the payload, written as one
// logical send under the socket's mutex.
func (s *FramedSocket) Send(buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(buf)))
	if _, err := s.conn.Write(header); err != nil {
		s.conn.Close()
		return scanerr.Wrap(scanerr.Network, err, "write frame header")
	}
	if _, err := s.conn.Write(buf); err != nil {
		s.conn.Close()
		return scanerr.Wrap(scanerr.Network, err, "write frame payload")
	}
	return nil
}

// Read blocks (with a 1-second poll granularity, per spec.md §5) for
// one length-framed message and returns its payload. If the caller's
// buffer is smaller than the incoming message, Read fails with
// Internal (caller bug, per spec.md §4.1). A soft read timeout
// returns (0, nil); a cleared cancellation flag also returns (0,
// nil); any other I/O failure closes the socket and returns a
// Network error.
func (s *FramedSocket) Read(buf []byte) (int, error) {
	for {
		if s.cancelled() {
			return 0, nil
		}
		s.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		header := make([]byte, 4)
		if _, err := io.ReadFull(s.conn, header); err != nil {
			if isTimeout(err) {
				return 0, nil
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				s.conn.Close()
				return 0, scanerr.New(scanerr.Network, "connection closed")
			}
			s.conn.Close()
			return 0, scanerr.Wrap(scanerr.Network, err, "read frame header")
		}
		length := binary.LittleEndian.Uint32(header)
		if length > maxFramedMessage {
			s.conn.Close()
			return 0, scanerr.New(scanerr.Network, "frame length %d exceeds max %d", length, maxFramedMessage)
		}
		if int(length) > len(buf) {
			return 0, scanerr.New(scanerr.Internal, "frame length %d exceeds caller buffer %d", length, len(buf))
		}
		s.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		if _, err := io.ReadFull(s.conn, buf[:length]); err != nil {
			s.conn.Close()
			return 0, scanerr.Wrap(scanerr.Network, err, "read frame payload")
		}
		return int(length), nil
	}
}

// Close closes the underlying connection. Safe to call more than
// once.
func (s *FramedSocket) Close() error {
	return s.conn.Close()
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	t, ok := err.(timeout)
	if ok {
		return t.Timeout()
	}
	if ne, ok := err.(*net.OpError); ok {
		return ne.Timeout()
	}
	return false
}
