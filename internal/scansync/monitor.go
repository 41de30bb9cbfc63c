// Package scansync implements the ScanSync monitor (C2, spec.md
// §4.2): a long-running UDP listener that decodes variable-version
// timing/encoder broadcast packets and maintains a liveness map of
// ScanSync devices by serial. Grounded on the teacher's UDP listener
// goroutine shape (test_udp_listener.go / internal/lidar/network) and
// the timeutil.Clock abstraction for the ~1-second eviction sweep.
package scansync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/scanhead/internal/netio"
	"github.com/banshee-data/scanhead/internal/obslog"
	"github.com/banshee-data/scanhead/internal/timeutil"
	"github.com/banshee-data/scanhead/internal/wire"
)

// Port is the fixed well-known ScanSync broadcast port (spec.md §6).
const Port = 11234

// evictAfter is the liveness window past which an un-refreshed entry
// is evicted (spec.md §4.2: "evicts entries not seen for more than 1
// second").
const evictAfter = 1 * time.Second

// maxPacketSize bounds the UDP read buffer (spec.md §4.2: "UDP
// packets of size <= 76 bytes").
const maxPacketSize = 256

// Device is one ScanSync's liveness record.
type Device struct {
	Serial       uint32
	Discovered   wire.ScanSyncPacket
	LatestStatus wire.ScanSyncPacket
	LastSeen     time.Time
}

// Monitor is the single process-wide ScanSync listener (spec.md §9:
// "the shared ScanSync monitor (one listener for the whole process)").
type Monitor struct {
	clock timeutil.Clock
	udp   *netio.UDP

	mu      sync.Mutex
	devices map[uint32]*Device
}

// New constructs a Monitor bound to an already-open UDP socket on
// Port. Callers are expected to open that socket via netio and pass
// it in so the monitor itself stays free of interface-selection
// policy.
func New(udp *netio.UDP, clock timeutil.Clock) *Monitor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Monitor{clock: clock, udp: udp, devices: make(map[uint32]*Device)}
}

// Run is the monitor's long-lived task: it reads packets until ctx is
// cancelled, updating the liveness map, and runs an eviction sweep
// roughly once a second (spec.md §4.2).
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(evictAfter)
	defer ticker.Stop()

	buf := make([]byte, maxPacketSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			m.evict()
		default:
		}

		n, _, err := m.udp.Read(buf)
		if err != nil {
			obslog.Logf("scansync: read error: %v", err)
			continue
		}
		if n == 0 {
			continue
		}
		pkt, err := wire.DecodeScanSyncPacket(buf[:n])
		if err != nil {
			continue
		}
		m.observe(pkt)
	}
}

func (m *Monitor) observe(pkt wire.ScanSyncPacket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[pkt.Serial]
	if !ok {
		d = &Device{Serial: pkt.Serial, Discovered: pkt}
		m.devices[pkt.Serial] = d
	}
	d.LatestStatus = pkt
	d.LastSeen = m.clock.Now()
}

func (m *Monitor) evict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	for serial, d := range m.devices {
		if now.Sub(d.LastSeen) > evictAfter {
			delete(m.devices, serial)
		}
	}
}

// Discovered returns a sorted-by-serial snapshot of currently live
// devices (spec.md §4.2: "Readers obtain a sorted-by-serial vector of
// discovered devices").
func (m *Monitor) Discovered() []Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

// Status returns the latest packet seen for serial, and whether it is
// currently live.
func (m *Monitor) Status(serial uint32) (wire.ScanSyncPacket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[serial]
	if !ok {
		return wire.ScanSyncPacket{}, false
	}
	return d.LatestStatus, true
}
