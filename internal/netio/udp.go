package netio

import (
	"net"
	"time"

	"github.com/banshee-data/scanhead/internal/scanerr"
)

// UDPSocket abstracts the subset of *net.UDPConn the ScanSync monitor
// and discovery need, the same seam the teacher's
// internal/lidar/network package cuts so tests inject a
// MockUDPSocket instead of opening a real port.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// realUDPSocket wraps *net.UDPConn to implement UDPSocket.
type realUDPSocket struct {
	conn *net.UDPConn
}

func (r *realUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) { return r.conn.ReadFromUDP(b) }
func (r *realUDPSocket) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	return r.conn.WriteToUDP(b, addr)
}
func (r *realUDPSocket) SetReadDeadline(t time.Time) error { return r.conn.SetReadDeadline(t) }
func (r *realUDPSocket) Close() error                      { return r.conn.Close() }
func (r *realUDPSocket) LocalAddr() net.Addr               { return r.conn.LocalAddr() }

// UDP is a unicast UDP socket bound to a specific interface:port
// (spec.md §4.1: "Bind to chosen interface:port (port 0 = ephemeral)").
type UDP struct {
	sock UDPSocket
}

// ListenUDP opens a UDP socket bound to ip:port on the given
// interface (port 0 = ephemeral port).
func ListenUDP(ip net.IP, port int) (*UDP, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: ip, Port: port})
	if err != nil {
		return nil, scanerr.Wrap(scanerr.Network, err, "listen udp %s:%d", ip, port)
	}
	return &UDP{sock: &realUDPSocket{conn: conn}}, nil
}

// NewUDPFromSocket wraps an existing UDPSocket, used by tests to
// inject a mock.
func NewUDPFromSocket(sock UDPSocket) *UDP {
	return &UDP{sock: sock}
}

// Send transmits bytes to ip:port.
func (u *UDP) Send(ip net.IP, port int, buf []byte) error {
	_, err := u.sock.WriteToUDP(buf, &net.UDPAddr{IP: ip, Port: port})
	if err != nil {
		return scanerr.Wrap(scanerr.Network, err, "udp send to %s:%d", ip, port)
	}
	return nil
}

// Read blocks with an internal 1-second poll (spec.md §4.1) for one
// datagram, returning its sender address. A timeout returns (0, nil,
// nil); other errors are wrapped as Network.
func (u *UDP) Read(buf []byte) (int, *net.UDPAddr, error) {
	u.sock.SetReadDeadline(time.Now().Add(1 * time.Second))
	n, addr, err := u.sock.ReadFromUDP(buf)
	if err != nil {
		if isTimeout(err) {
			return 0, nil, nil
		}
		return 0, nil, scanerr.Wrap(scanerr.Network, err, "udp read")
	}
	return n, addr, nil
}

// Close closes the socket.
func (u *UDP) Close() error {
	return u.sock.Close()
}

// LocalAddr returns the socket's bound local address.
func (u *UDP) LocalAddr() net.Addr {
	return u.sock.LocalAddr()
}
