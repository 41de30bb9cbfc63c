package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/banshee-data/scanhead/internal/fwver"
	"github.com/banshee-data/scanhead/internal/netio"
	"github.com/banshee-data/scanhead/internal/timeutil"
	"github.com/banshee-data/scanhead/internal/wire"
)

type fakeSocket struct {
	broadcastCalls int
	replies        [][]byte
	idx            int
	closed         bool
}

func (f *fakeSocket) Broadcast(port int, buf []byte) error {
	f.broadcastCalls++
	return nil
}

func (f *fakeSocket) Read(buf []byte) (int, *net.UDPAddr, error) {
	if f.idx >= len(f.replies) {
		return 0, nil, nil
	}
	n := copy(buf, f.replies[f.idx])
	f.idx++
	return n, &net.UDPAddr{}, nil
}

func (f *fakeSocket) Close() error { f.closed = true; return nil }

// TestDiscoverMatchesScenarioS1 exercises scenario S1 of spec.md §8: a
// simulated device responder replies with serial=12345, type=WX,
// fw=16.3.1, ip=192.168.1.50, state=STANDBY.
func TestDiscoverMatchesScenarioS1(t *testing.T) {
	reply := wire.ServerDiscover{
		Serial:   12345,
		TypeCode: 1,
		Firmware: fwver.Version{Major: 16, Minor: 3, Patch: 1},
		IP:       [4]byte{192, 168, 1, 50},
		State:    0, // STANDBY
		TypeStr:  "WX",
	}
	fake := &fakeSocket{replies: [][]byte{reply.Encode()}}

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	opener := func(iface netio.Interface, port int) (socket, error) {
		return fake, nil
	}
	listIfaces := func() ([]netio.Interface, error) {
		return []netio.Interface{{Name: "eth0", IPv4: net.ParseIP("10.0.0.5"), Netmask: net.CIDRMask(24, 32)}}, nil
	}

	results, err := discover(fwver.APIVersion, listIfaces, opener, clock)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 discovered device, got %d", len(results))
	}
	got := results[0]
	if got.Serial != 12345 || got.TypeStr != "WX" || got.FirmwareVersion != (fwver.Version{Major: 16, Minor: 3, Patch: 1}) {
		t.Fatalf("unexpected discovered record: %+v", got)
	}
	if got.IPAddr != "192.168.1.50" {
		t.Fatalf("IPAddr = %q, want 192.168.1.50", got.IPAddr)
	}
	if fake.broadcastCalls == 0 {
		t.Fatal("expected at least one broadcast call")
	}
	if !fake.closed {
		t.Fatal("expected socket to be closed after discovery round")
	}
}

func TestMDNSNameFormat(t *testing.T) {
	if got := MDNSName(50); got != "JS-50-50.local" {
		t.Fatalf("MDNSName(50) = %q, want JS-50-50.local", got)
	}
}
