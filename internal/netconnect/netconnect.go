// Package netconnect is the real, socket-dialing implementation of the
// orchestrator's connector seam (spec.md §6: "TCP control port ...
// device-advertised, fixed per device family"; "TCP data port:
// separate, same framing"). The orchestrator itself only depends on
// an unexported interface so its tests can inject fakes; cmd binaries
// wire this concrete type in instead.
//
// Grounded on internal/netio.Dial, the teacher-derived framed-socket
// dialer C1 already implements.
package netconnect

import (
	"fmt"

	"github.com/banshee-data/scanhead/internal/discovery"
	"github.com/banshee-data/scanhead/internal/netio"
	"github.com/banshee-data/scanhead/internal/session"
)

// ControlPort and DataPort are the scan head's fixed TCP ports. Real
// device families advertise these in their model descriptor; this
// client pins the single pair every supported variant in specdata
// uses.
const (
	ControlPort = 10940
	DataPort    = 10941
)

// Connector dials a discovered scan head's control and data channels
// over plain TCP, binding to the interface address the device was
// discovered on.
type Connector struct{}

// DialControl opens a framed control-channel socket to d.
func (Connector) DialControl(d discovery.Discovered) (session.ControlSocket, error) {
	return netio.Dial(d.ClientIPAddr, fmt.Sprintf("%s:%d", d.IPAddr, ControlPort))
}

// DialData opens a framed data-channel socket to d.
func (Connector) DialData(d discovery.Discovered) (session.DataSocket, error) {
	return netio.Dial(d.ClientIPAddr, fmt.Sprintf("%s:%d", d.IPAddr, DataPort))
}
