// Package netio implements the net primitives of spec.md §4.1 (C1):
// interface enumeration, a length-framed TCP stream socket, a UDP
// socket, and a UDP broadcast socket, all bound to a specific local
// interface so multi-homed hosts route deterministically. Grounded on
// the teacher's internal/lidar/network package, which wraps *net.UDPConn
// behind a small interface (UDPSocket/UDPSocketFactory) precisely so
// that higher layers — here, scansync and discovery — can be unit
// tested without a real socket.
package netio

import (
	"net"

	"github.com/banshee-data/scanhead/internal/scanerr"
)

// Interface is one enumerable local network interface (spec.md §4.1:
// "(name, ip_v4, netmask) excluding loopback and zero-address entries").
type Interface struct {
	Name    string
	IPv4    net.IP
	Netmask net.IPMask
}

// EnumerateInterfaces lists local interfaces with a usable IPv4
// address, skipping loopback and the zero address.
func EnumerateInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, scanerr.Wrap(scanerr.Network, err, "enumerate interfaces")
	}
	var out []Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil || ip4.IsUnspecified() {
				continue
			}
			out = append(out, Interface{Name: iface.Name, IPv4: ip4, Netmask: ipnet.Mask})
			break
		}
	}
	return out, nil
}
