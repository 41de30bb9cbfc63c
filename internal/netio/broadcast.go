package netio

import (
	"net"

	"github.com/banshee-data/scanhead/internal/scanerr"
)

// BroadcastUDP is a UDP socket bound to one interface, sending to
// that interface's all-ones broadcast address (spec.md §4.1: "As
// above with SO_BROADCAST and non-blocking, sending to the all-ones
// address"). Go's net package enables broadcast sends on a UDP socket
// without an explicit setsockopt call, so binding plus address
// derivation is all that's needed here.
type BroadcastUDP struct {
	*UDP
	broadcastAddr net.IP
}

// ListenBroadcast opens a broadcast-capable UDP socket on iface,
// deriving the all-ones broadcast address from the interface's IPv4
// address and netmask.
func ListenBroadcast(iface Interface, port int) (*BroadcastUDP, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: iface.IPv4, Port: 0})
	if err != nil {
		return nil, scanerr.Wrap(scanerr.Network, err, "listen broadcast socket on %s", iface.Name)
	}
	broadcast := deriveBroadcast(iface.IPv4, iface.Netmask)
	return &BroadcastUDP{
		UDP:           &UDP{sock: &realUDPSocket{conn: conn}},
		broadcastAddr: broadcast,
	}, nil
}

// deriveBroadcast computes ip | ^mask, the all-ones broadcast address
// for the given interface IP and netmask.
func deriveBroadcast(ip net.IP, mask net.IPMask) net.IP {
	ip4 := ip.To4()
	if ip4 == nil || len(mask) != net.IPv4len {
		return net.IPv4bcast
	}
	out := make(net.IP, net.IPv4len)
	for i := range out {
		out[i] = ip4[i] | ^mask[i]
	}
	return out
}

// Broadcast sends buf to the interface's broadcast address on port.
func (b *BroadcastUDP) Broadcast(port int, buf []byte) error {
	return b.Send(b.broadcastAddr, port, buf)
}
