// Package discovery implements the caller-driven UDP broadcast probe
// of spec.md §4.3 (C3): enumerate interfaces, broadcast a discovery
// message, wait, and collect typed replies. Grounded on the teacher's
// UDP socket abstractions in internal/lidar/network, reused here via
// internal/netio, and on the timeutil.Clock seam used throughout this
// module for deterministic tests of fixed wait windows.
package discovery

import (
	"net"
	"sort"
	"time"

	"github.com/banshee-data/scanhead/internal/fwver"
	"github.com/banshee-data/scanhead/internal/netio"
	"github.com/banshee-data/scanhead/internal/obslog"
	"github.com/banshee-data/scanhead/internal/timeutil"
	"github.com/banshee-data/scanhead/internal/wire"
)

// Port is the fixed discovery broadcast port (spec.md §6).
const Port = 12347

// waitWindow is the fixed delay between broadcasting the probe and
// draining replies (spec.md §4.3: "sleep ~200 ms").
const waitWindow = 200 * time.Millisecond

// parseWindow bounds how long each socket is drained for replies
// after the wait window elapses.
const parseWindow = 100 * time.Millisecond

// Discovered is one discovery reply (spec.md §4.3).
type Discovered struct {
	Serial          uint32
	Type            uint16
	FirmwareVersion fwver.Version
	IPAddr          string
	ClientIPAddr    string
	ClientNetmask   string
	ClientName      string
	TypeStr         string
	LinkSpeedMbps   uint32
	State           uint8
}

// socket is the subset of netio.BroadcastUDP discovery needs,
// abstracted so tests can inject fakes without opening real sockets.
type socket interface {
	Broadcast(port int, buf []byte) error
	Read(buf []byte) (int, *net.UDPAddr, error)
	Close() error
}

// opener produces one socket per interface it is willing to bind;
// the real implementation is netio.ListenBroadcast.
type opener func(iface netio.Interface, port int) (socket, error)

func realOpener(iface netio.Interface, port int) (socket, error) {
	return netio.ListenBroadcast(iface, port)
}

// Discover runs one discovery round using real sockets, real
// interface enumeration, and the system clock.
func Discover(apiVersion fwver.Version) ([]Discovered, error) {
	return discover(apiVersion, netio.EnumerateInterfaces, realOpener, timeutil.RealClock{})
}

type ifaceLister func() ([]netio.Interface, error)

func discover(apiVersion fwver.Version, listIfaces ifaceLister, open opener, clock timeutil.Clock) ([]Discovered, error) {
	ifaces, err := listIfaces()
	if err != nil {
		return nil, err
	}

	type opened struct {
		iface netio.Interface
		sock  socket
	}
	var sockets []opened
	for _, iface := range ifaces {
		sock, err := open(iface, 0)
		if err != nil {
			obslog.Logf("discovery: skipping interface %s: %v", iface.Name, err)
			continue
		}
		sockets = append(sockets, opened{iface: iface, sock: sock})
	}
	defer func() {
		for _, o := range sockets {
			o.sock.Close()
		}
	}()

	probe := wire.ClientDiscover{APIVersion: apiVersion}.Encode()
	for _, o := range sockets {
		if err := o.sock.Broadcast(Port, probe); err != nil {
			obslog.Logf("discovery: broadcast on %s failed: %v", o.iface.Name, err)
		}
	}

	clock.Sleep(waitWindow)

	var results []Discovered
	deadline := clock.Now().Add(parseWindow)
	buf := make([]byte, 512)
	for _, o := range sockets {
		for clock.Now().Before(deadline) {
			n, _, err := o.sock.Read(buf)
			if err != nil || n == 0 {
				break
			}
			reply, err := wire.DecodeServerDiscover(buf[:n])
			if err != nil {
				continue
			}
			results = append(results, Discovered{
				Serial:          reply.Serial,
				Type:            reply.TypeCode,
				FirmwareVersion: reply.Firmware,
				IPAddr:          net.IP(reply.IP[:]).String(),
				ClientIPAddr:    o.iface.IPv4.String(),
				ClientNetmask:   net.IP(o.iface.Netmask).String(),
				ClientName:      o.iface.Name,
				TypeStr:         reply.TypeStr,
				LinkSpeedMbps:   reply.LinkSpeedMbps,
				State:           reply.State,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Serial < results[j].Serial })
	return results, nil
}

// MDNSName returns the power-cycle fallback name for a device serial
// (spec.md §4.3: "JS-50-<serial>.local").
func MDNSName(serial uint32) string {
	return "JS-50-" + uintToDecimal(serial) + ".local"
}

func uintToDecimal(v uint32) string {
	if v == 0 {
		return "0"
	}
	var digits [10]byte
	i := len(digits)
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	return string(digits[i:])
}
