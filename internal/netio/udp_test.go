package netio

import (
	"net"
	"time"
)

// mockUDPSocket implements UDPSocket for testing, grounded on the
// teacher's internal/lidar/network.MockUDPSocket.
type mockUDPSocket struct {
	packets   [][]byte
	addrs     []*net.UDPAddr
	readIndex int
	closed    bool
	sent      [][]byte
	localAddr *net.UDPAddr
}

func newMockUDPSocket(packets [][]byte, addrs []*net.UDPAddr) *mockUDPSocket {
	return &mockUDPSocket{
		packets:   packets,
		addrs:     addrs,
		localAddr: &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 12347},
	}
}

func (m *mockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	if m.readIndex >= len(m.packets) {
		return 0, nil, timeoutErr{}
	}
	n := copy(b, m.packets[m.readIndex])
	addr := m.addrs[m.readIndex]
	m.readIndex++
	return n, addr, nil
}

func (m *mockUDPSocket) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	m.sent = append(m.sent, append([]byte(nil), b...))
	return len(b), nil
}

func (m *mockUDPSocket) SetReadDeadline(t time.Time) error { return nil }
func (m *mockUDPSocket) Close() error                      { m.closed = true; return nil }
func (m *mockUDPSocket) LocalAddr() net.Addr               { return m.localAddr }
