package netio

import (
	"net"
	"testing"
)

func TestUDPReadReturnsPacketAndSender(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 9999}
	mock := newMockUDPSocket([][]byte{[]byte("probe")}, []*net.UDPAddr{addr})
	u := NewUDPFromSocket(mock)

	buf := make([]byte, 64)
	n, got, err := u.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "probe" {
		t.Fatalf("got %q, want %q", buf[:n], "probe")
	}
	if got.String() != addr.String() {
		t.Fatalf("sender = %v, want %v", got, addr)
	}
}

func TestUDPReadTimesOutWithoutError(t *testing.T) {
	mock := newMockUDPSocket(nil, nil)
	u := NewUDPFromSocket(mock)
	n, addr, err := u.Read(make([]byte, 16))
	if err != nil || n != 0 || addr != nil {
		t.Fatalf("expected (0, nil, nil) on timeout, got (%d, %v, %v)", n, addr, err)
	}
}

func TestUDPSendDeliversToTarget(t *testing.T) {
	mock := newMockUDPSocket(nil, nil)
	u := NewUDPFromSocket(mock)
	if err := u.Send(net.ParseIP("192.168.1.1"), 11234, []byte("hi")); err != nil {
		t.Fatal(err)
	}
	if len(mock.sent) != 1 || string(mock.sent[0]) != "hi" {
		t.Fatalf("expected one sent packet 'hi', got %v", mock.sent)
	}
}

func TestDeriveBroadcastAddress(t *testing.T) {
	ip := net.ParseIP("192.168.1.50").To4()
	mask := net.CIDRMask(24, 32)
	got := deriveBroadcast(ip, mask)
	want := net.ParseIP("192.168.1.255").To4()
	if !got.Equal(want) {
		t.Fatalf("deriveBroadcast = %v, want %v", got, want)
	}
}
