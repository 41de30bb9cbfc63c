// Command power_cycle reboots a single scan head over its dedicated
// update channel.
//
// Grounded on the debug-power-cycle reference program and the power
// cycle procedure it calls: discover, resolve the serial's address
// (falling back to mDNS if the device did not answer a discovery
// broadcast), dial the update port, send REBOOT_REQUEST, and hold the
// connection open briefly so the device has time to see it before the
// reboot drops the socket.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/banshee-data/scanhead/internal/discovery"
	"github.com/banshee-data/scanhead/internal/fwver"
	"github.com/banshee-data/scanhead/internal/netio"
	"github.com/banshee-data/scanhead/internal/wire"
)

// updatePort is the scan head's dedicated update-channel TCP port.
const updatePort = 21232

// rebootLinger is how long the socket is held open after sending
// REBOOT_REQUEST before the caller closes it, giving the device time
// to act on the request before the connection drops out from under it.
const rebootLinger = 500 * time.Millisecond

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s SERIAL\n", os.Args[0])
		os.Exit(1)
	}
	serial, err := strconv.ParseUint(os.Args[1], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid serial %q: %v\n", os.Args[1], err)
		os.Exit(1)
	}

	fmt.Printf("API version %s\n", fwver.APIVersion)

	if err := powerCycle(uint32(serial), discovery.Discover); err != nil {
		log.Printf("power_cycle: %v", err)
		os.Exit(1)
	}
}

func powerCycle(serial uint32, discover func(fwver.Version) ([]discovery.Discovered, error)) error {
	addr, err := resolveAddr(serial, discover)
	if err != nil {
		return err
	}

	conn, err := netio.Dial("", fmt.Sprintf("%s:%d", addr, updatePort))
	if err != nil {
		return fmt.Errorf("dial update port: %w", err)
	}
	defer conn.Close()

	env := wire.Envelope{Type: wire.MsgRebootRequest, Body: wire.RebootRequest{}.Encode()}
	if err := conn.Send(env.Encode()); err != nil {
		return fmt.Errorf("send reboot request: %w", err)
	}

	time.Sleep(rebootLinger)
	return nil
}

// resolveAddr finds serial's IP address via discover, falling back to
// the device's well-known mDNS hostname if it does not answer a
// discovery broadcast (spec.md §4.3's discovery path is best-effort;
// the update channel has no broadcast fallback of its own). discover
// is a seam so tests can inject canned results instead of opening
// real sockets.
func resolveAddr(serial uint32, discover func(fwver.Version) ([]discovery.Discovered, error)) (string, error) {
	discovered, err := discover(fwver.APIVersion)
	if err != nil {
		return "", fmt.Errorf("discover: %w", err)
	}
	for _, d := range discovered {
		if d.Serial == serial {
			return d.IPAddr, nil
		}
	}
	return discovery.MDNSName(serial), nil
}
