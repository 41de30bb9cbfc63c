// Package system implements the scan system orchestrator of spec.md
// §4.7 (C7): a set of scan head sessions keyed by serial and by
// user-assigned id, lifecycle operations spanning them (Connect,
// Configure, StartScanning, StopScanning, Disconnect), ScanSync
// encoder assignment, and the keep-alive background task.
//
// Grounded on the teacher's fan-out-then-join pattern for multi-device
// operations, reimplemented here with golang.org/x/sync/errgroup (the
// teacher's own parallel-connect dependency) in place of a hand-rolled
// WaitGroup + error-channel: Wait returns the first error once every
// goroutine has finished, and the orchestrator changes state only when
// none failed (spec.md §4.7's "on full success"). No goroutine watches
// a group context, so one failure does not stop the others.
package system

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/scanhead/internal/discovery"
	"github.com/banshee-data/scanhead/internal/frame"
	"github.com/banshee-data/scanhead/internal/fwver"
	"github.com/banshee-data/scanhead/internal/headcfg"
	"github.com/banshee-data/scanhead/internal/obslog"
	"github.com/banshee-data/scanhead/internal/phase"
	"github.com/banshee-data/scanhead/internal/pool"
	"github.com/banshee-data/scanhead/internal/scanerr"
	"github.com/banshee-data/scanhead/internal/scansync"
	"github.com/banshee-data/scanhead/internal/session"
	"github.com/banshee-data/scanhead/internal/specdata"
	"github.com/banshee-data/scanhead/internal/wire"
	"golang.org/x/sync/errgroup"
)

// State is the orchestrator's own lifecycle state, distinct from any
// one session's (spec.md §5: "Orchestrator holds a state ∈ {...,
// Closing}").
type State int

const (
	Disconnected State = iota
	Connected
	Scanning
	Closing
)

// discoverer abstracts C3 so tests can inject canned discovery
// results instead of opening real sockets.
type discoverer interface {
	Discover(apiVersion fwver.Version) ([]discovery.Discovered, error)
}

type realDiscoverer struct{}

func (realDiscoverer) Discover(apiVersion fwver.Version) ([]discovery.Discovered, error) {
	return discovery.Discover(apiVersion)
}

// connector opens a session's control and data channels given its
// discovery record. The real implementation dials the device's
// advertised TCP ports; tests inject fakes.
type connector interface {
	DialControl(d discovery.Discovered) (session.ControlSocket, error)
	DialData(d discovery.Discovered) (session.DataSocket, error)
}

// head is one tracked scan head: its session plus the bookkeeping the
// orchestrator needs to compile its phase contribution.
type head struct {
	sess    *session.Session
	serial  uint32
	id      uint32
	variant *specdata.Variant
}

// System is the orchestrator (C7).
type System struct {
	discover   discoverer
	connect    connector
	apiVersion fwver.Version
	poolSize   int

	mu           sync.Mutex
	state        State
	bySerial     map[uint32]*head
	byID         map[uint32]*head
	discovered   map[uint32]discovery.Discovered
	firmwareLow  fwver.Version
	firmwareHigh fwver.Version
	haveFirmware bool

	phaseTable *phase.Table
	phaseDirty bool
	compiled   *phase.CompiledTable
	configured bool

	scansync *scansync.Monitor

	encoderAssignment     wire.EncoderAssignment
	haveEncoderAssignment bool

	keepAliveCancel context.CancelFunc
}

// New constructs an orchestrator. poolSize is the per-session buffer
// pool capacity (spec.md §4.4); apiVersion is advertised during
// Connect and checked at CreateScanHead time.
func New(apiVersion fwver.Version, poolSize int, connect connector, scanSync *scansync.Monitor) *System {
	return &System{
		discover:   realDiscoverer{},
		connect:    connect,
		apiVersion: apiVersion,
		poolSize:   poolSize,
		bySerial:   make(map[uint32]*head),
		byID:       make(map[uint32]*head),
		discovered: make(map[uint32]discovery.Discovered),
		scansync:   scanSync,
	}
}

// Discover runs one discovery round and records the results for
// CreateScanHead to consult (spec.md §4.7: "Discover / ScanHeadsDiscovered.
// Delegates to C3.").
func (s *System) Discover() error {
	results, err := s.discover.Discover(s.apiVersion)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range results {
		s.discovered[d.Serial] = d
	}
	return nil
}

// ScanHeadsDiscovered returns a sorted-by-serial snapshot of the last
// discovery round's results.
func (s *System) ScanHeadsDiscovered() []discovery.Discovered {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]discovery.Discovered, 0, len(s.discovered))
	for _, d := range s.discovered {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

// CreateScanHead constructs a session for serial, assigning it id
// (spec.md §4.7). Rejects while Scanning, on duplicate serial or id,
// if the device was never discovered (retrying discovery once), and
// on firmware major-version mismatch.
func (s *System) CreateScanHead(serial, id uint32, variant *specdata.Variant) error {
	s.mu.Lock()
	if s.state == Scanning {
		s.mu.Unlock()
		return scanerr.New(scanerr.Scanning, "cannot create scan heads while scanning")
	}
	if _, ok := s.bySerial[serial]; ok {
		s.mu.Unlock()
		return scanerr.New(scanerr.AlreadyExists, "serial %d already registered", serial)
	}
	if _, ok := s.byID[id]; ok {
		s.mu.Unlock()
		return scanerr.New(scanerr.AlreadyExists, "id %d already registered", id)
	}
	d, ok := s.discovered[serial]
	s.mu.Unlock()

	if !ok {
		if err := s.Discover(); err != nil {
			return err
		}
		s.mu.Lock()
		d, ok = s.discovered[serial]
		s.mu.Unlock()
		if !ok {
			return scanerr.New(scanerr.NotDiscovered, "serial %d not found on any interface", serial)
		}
	}

	if !d.FirmwareVersion.SameMajor(s.apiVersion) {
		return scanerr.New(scanerr.VersionCompatibility, "serial %d firmware %s incompatible with API %s", serial, d.FirmwareVersion, s.apiVersion)
	}

	sess := session.New(session.Config{Serial: serial, ID: id, Variant: variant}, pool.New(s.poolSize))
	if err := sess.SetFirmware(d.FirmwareVersion, s.apiVersion); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	h := &head{sess: sess, serial: serial, id: id, variant: variant}
	s.bySerial[serial] = h
	s.byID[id] = h
	s.phaseDirty = true

	if !s.haveFirmware {
		s.firmwareLow, s.firmwareHigh = d.FirmwareVersion, d.FirmwareVersion
		s.haveFirmware = true
	} else {
		if d.FirmwareVersion.Compare(s.firmwareLow) < 0 {
			s.firmwareLow = d.FirmwareVersion
		}
		if d.FirmwareVersion.Compare(s.firmwareHigh) > 0 {
			s.firmwareHigh = d.FirmwareVersion
		}
	}
	return nil
}

// HeadSnapshot is a read-only view of one registered head, used by the
// admin dashboard.
type HeadSnapshot struct {
	Serial uint32
	ID     uint32
	State  session.State
	Type   specdata.Type
}

// Snapshot returns a sorted-by-id view of every registered head's
// identity and session state, for the admin dashboard's /debug/sessions
// route.
func (s *System) Snapshot() []HeadSnapshot {
	heads := s.sortedHeads()
	out := make([]HeadSnapshot, len(heads))
	for i, h := range heads {
		out[i] = HeadSnapshot{
			Serial: h.serial,
			ID:     h.id,
			State:  h.sess.State(),
			Type:   h.variant.Type,
		}
	}
	return out
}

// CompiledPhaseTable returns the orchestrator's last compiled phase
// table, for the admin dashboard's /debug/phasetable route.
func (s *System) CompiledPhaseTable() (*phase.CompiledTable, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compiled, s.compiled != nil
}

// ScanSyncMonitor exposes the attached ScanSync monitor, if any, for
// the admin dashboard's /debug/scansync route.
func (s *System) ScanSyncMonitor() *scansync.Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scansync
}

// FirmwareWatermarks returns the lowest and highest firmware versions
// seen across all registered heads (spec.md §4.7 CreateScanHead:
// "records firmware high/low watermarks across the set").
func (s *System) FirmwareWatermarks() (low, high fwver.Version, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firmwareLow, s.firmwareHigh, s.haveFirmware
}

func (s *System) sortedHeads() []*head {
	s.mu.Lock()
	heads := make([]*head, 0, len(s.byID))
	for _, h := range s.byID {
		heads = append(heads, h)
	}
	s.mu.Unlock()
	sort.Slice(heads, func(i, j int) bool { return heads[i].id < heads[j].id })
	return heads
}

// Connect dials and connects every registered session in parallel
// (spec.md §4.7: "Parallel across sessions; requires at least one
// head; on full success transitions to Connected and issues
// Configure. Also launches the orchestrator's keep-alive task.").
func (s *System) Connect(ctx context.Context, timeout time.Duration) error {
	heads := s.sortedHeads()
	if len(heads) == 0 {
		return scanerr.New(scanerr.InvalidArgument, "connect requires at least one scan head")
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, _ := errgroup.WithContext(connectCtx)
	for _, h := range heads {
		h := h
		g.Go(func() error {
			d, ok := s.lookupDiscovered(h.serial)
			if !ok {
				return scanerr.New(scanerr.NotDiscovered, "serial %d not discovered", h.serial)
			}
			ctrl, err := s.connect.DialControl(d)
			if err != nil {
				return err
			}
			return h.sess.Connect(ctrl, s.apiVersion)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = Connected
	s.mu.Unlock()

	if err := s.Configure(); err != nil {
		return err
	}

	s.startKeepAlive(ctx)
	return nil
}

func (s *System) lookupDiscovered(serial uint32) (discovery.Discovered, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.discovered[serial]
	return d, ok
}

// Configure fetches a fresh status from every session and recompiles
// the phase table when it is dirty or the system has never been
// configured. It sends nothing else to the heads: no encoder
// assignment, window, brightness correction, exclusion mask or
// per-pair alignment.
func (s *System) Configure() error {
	s.mu.Lock()
	dirty := s.phaseDirty || !s.configured
	s.mu.Unlock()
	if !dirty {
		return nil
	}

	heads := s.sortedHeads()

	g := new(errgroup.Group)
	for _, h := range heads {
		h := h
		g.Go(func() error {
			if _, err := h.sess.Status(); err != nil {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	table := phase.NewTable(&headInfoAdapter{sys: s})
	for _, h := range heads {
		table.CreatePhase()
		for _, cg := range h.variant.ConfigGroups {
			if err := table.AddToLast(phase.HeadID(h.id), cg.CameraPort, cg.LaserPort, nil); err != nil {
				return err
			}
		}
	}

	compiled, err := table.CalculatePhaseTable()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.phaseTable = table
	s.compiled = compiled
	s.phaseDirty = false
	s.configured = true
	s.mu.Unlock()
	return nil
}

// headInfoAdapter answers phase.HeadInfo from the orchestrator's
// tracked heads, pulling the live min_scan_period_us from the
// session's cached status (falling back to the variant's advertised
// floor before the first status round trip) and the per-pair default
// laser-on ceiling from headcfg's factory-default configuration.
type headInfoAdapter struct {
	sys *System
}

func (a *headInfoAdapter) lookup(id phase.HeadID) (*head, bool) {
	a.sys.mu.Lock()
	defer a.sys.mu.Unlock()
	h, ok := a.sys.byID[uint32(id)]
	return h, ok
}

func (a *headInfoAdapter) MinScanPeriodUS(id phase.HeadID) (uint32, error) {
	h, ok := a.lookup(id)
	if !ok {
		return 0, scanerr.New(scanerr.InvalidScanHead, "head id %d not registered", id)
	}
	if status, ok := h.sess.CachedStatus(); ok && status.MinScanPeriodUS > 0 {
		return status.MinScanPeriodUS, nil
	}
	return h.variant.MinScanPeriodUS, nil
}

func (a *headInfoAdapter) MaxElements(id phase.HeadID) (int, error) {
	h, ok := a.lookup(id)
	if !ok {
		return 0, scanerr.New(scanerr.InvalidScanHead, "head id %d not registered", id)
	}
	return h.variant.MaxScanPairs, nil
}

func (a *headInfoAdapter) DefaultLaserOnTimeMaxUS(id phase.HeadID, camera, laser specdata.Port) (uint32, error) {
	h, ok := a.lookup(id)
	if !ok {
		return 0, scanerr.New(scanerr.InvalidScanHead, "head id %d not registered", id)
	}
	return headcfg.Default(h.variant).LaserOnTimeMaxUS, nil
}

// StartScanning validates preconditions, forces a fresh Configure, and
// starts every session scanning in phase order (spec.md §4.7
// StartScanning).
func (s *System) StartScanning(ctx context.Context, periodUS uint32, format uint16, isFrame bool) error {
	s.mu.Lock()
	if s.state == Scanning {
		s.mu.Unlock()
		return scanerr.New(scanerr.Scanning, "already scanning")
	}
	if len(s.byID) == 0 {
		s.mu.Unlock()
		return scanerr.New(scanerr.InvalidArgument, "no scan heads registered")
	}
	s.mu.Unlock()

	if err := s.Configure(); err != nil {
		return err
	}

	s.mu.Lock()
	compiled := s.compiled
	dupes := s.phaseTable.HasDuplicateElements
	s.mu.Unlock()

	if compiled == nil || len(compiled.Phases) == 0 {
		return scanerr.New(scanerr.PhaseTableEmpty, "phase table empty")
	}
	if isFrame && dupes {
		return scanerr.New(scanerr.FrameScanningInvalidPhaseTable, "frame scanning forbids duplicate phase table elements")
	}

	minPeriod := compiled.TotalDurationUS + compiled.CameraEarlyOffsetUS
	if periodUS < minPeriod {
		return scanerr.New(scanerr.InvalidArgument, "period_us %d below min_scan_period_us %d", periodUS, minPeriod)
	}

	startTimeNS := s.computeStartTime()

	heads := s.sortedHeads()
	mode := pool.ModeSingle
	if isFrame {
		mode = pool.ModeMulti
	}
	var pairs []pool.Pair
	for _, h := range heads {
		for _, cg := range h.variant.ConfigGroups {
			pairs = append(pairs, pool.Pair{Camera: cg.CameraPort, Laser: cg.LaserPort})
		}
	}

	g := new(errgroup.Group)
	for _, h := range heads {
		h := h
		g.Go(func() error {
			cfg := scanConfigurationFor(h, periodUS, format)
			if err := h.sess.SendScanConfiguration(cfg); err != nil {
				return err
			}
			data, err := s.connect.DialData(mustDiscovered(s, h.serial))
			if err != nil {
				return err
			}
			return h.sess.ScanStart(ctx, data, startTimeNS, mode, pairs, session.MinEncoderTravel{})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = Scanning
	s.mu.Unlock()
	return nil
}

// Sessions returns every registered head's session keyed by id, for
// callers (single-mode CLI consumers) that need direct pool access
// the read-only Snapshot does not carry.
func (s *System) Sessions() map[uint32]*session.Session {
	heads := s.sortedHeads()
	out := make(map[uint32]*session.Session, len(heads))
	for _, h := range heads {
		out[h.id] = h.sess
	}
	return out
}

// FrameHeads returns the frame assembler's input for every registered
// head: its session and its scan pairs in emission order, reversed
// for a head whose cable orientation is downstream (spec.md §4.8).
// Callers build a frame.Assembler from this once scanning has
// started in frame mode.
func (s *System) FrameHeads() []frame.Head {
	heads := s.sortedHeads()
	out := make([]frame.Head, 0, len(heads))
	for _, h := range heads {
		pairs := make([]pool.Pair, 0, len(h.variant.ConfigGroups))
		for _, cg := range h.variant.ConfigGroups {
			pairs = append(pairs, pool.Pair{Camera: cg.CameraPort, Laser: cg.LaserPort})
		}
		if h.sess.Downstream() {
			for i, j := 0, len(pairs)-1; i < j; i, j = i+1, j-1 {
				pairs[i], pairs[j] = pairs[j], pairs[i]
			}
		}
		out = append(out, frame.Head{Session: h.sess, Pairs: pairs})
	}
	return out
}

func mustDiscovered(s *System, serial uint32) discovery.Discovered {
	d, _ := s.lookupDiscovered(serial)
	return d
}

func scanConfigurationFor(h *head, periodUS uint32, format uint16) wire.ScanConfiguration {
	stride := uint16(1)
	cfg := headcfg.Default(h.variant)
	pairs := make([]wire.ScanPairConfig, 0, len(h.variant.ConfigGroups))
	var endOffset uint32
	for _, cg := range h.variant.ConfigGroups {
		pairs = append(pairs, wire.ScanPairConfig{
			CameraPort:       uint8(cg.CameraPort),
			LaserPort:        uint8(cg.LaserPort),
			LaserOnTimeMinNS: cfg.LaserOnTimeMinUS * 1000,
			LaserOnTimeDefNS: cfg.LaserOnTimeDefUS * 1000,
			LaserOnTimeMaxNS: cfg.LaserOnTimeMaxUS * 1000,
			EndOffsetNS:      endOffset,
			CameraFlipped:    h.sess.Downstream(),
		})
		endOffset += uint32(cfg.LaserOnTimeMaxUS) * 1000
	}
	return wire.ScanConfiguration{
		DataType:     format,
		Stride:       stride,
		ScanPeriodNS: uint64(periodUS) * 1000,
		Pairs:        pairs,
	}
}

// computeStartTime reads the main ScanSync's current status if one is
// assigned, scheduling 20ms out as a common epoch (spec.md §4.7:
// "start_time_ns = scansync.timestamp_ns + 20_000_000 ... if no
// ScanSync, passes 0").
func (s *System) computeStartTime() uint64 {
	s.mu.Lock()
	main := s.encoderAssignment.MainSerial
	haveAssignment := s.haveEncoderAssignment
	mon := s.scansync
	s.mu.Unlock()

	if !haveAssignment || mon == nil {
		return 0
	}
	status, ok := mon.Status(main)
	if !ok {
		return 0
	}
	return status.TimestampNS + 20_000_000
}

// StopScanning sends stop to every session and returns to Connected.
func (s *System) StopScanning() error {
	s.mu.Lock()
	if s.state != Scanning {
		s.mu.Unlock()
		return scanerr.New(scanerr.NotScanning, "not scanning")
	}
	s.mu.Unlock()

	heads := s.sortedHeads()
	g := new(errgroup.Group)
	for _, h := range heads {
		h := h
		g.Go(h.sess.ScanStop)
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = Connected
	s.mu.Unlock()
	return nil
}

// Disconnect stops scanning if necessary, then closes every session
// in parallel (spec.md §4.7 Disconnect).
func (s *System) Disconnect() error {
	s.mu.Lock()
	scanning := s.state == Scanning
	s.mu.Unlock()

	if scanning {
		if err := s.StopScanning(); err != nil {
			obslog.Logf("system: stop-scanning during disconnect failed: %v", err)
		}
	}

	s.mu.Lock()
	s.state = Closing
	s.mu.Unlock()

	s.stopKeepAlive()

	heads := s.sortedHeads()
	g := new(errgroup.Group)
	for _, h := range heads {
		h := h
		g.Go(h.sess.Disconnect)
	}
	err := g.Wait()

	s.mu.Lock()
	s.state = Disconnected
	s.mu.Unlock()
	return err
}

// SetScanSyncEncoder assigns up to three ScanSync serials to the
// device's main/aux1/aux2 slots (spec.md §4.7, scenario S7).
func (s *System) SetScanSyncEncoder(main, aux1, aux2 uint32) error {
	heads := s.sortedHeads()
	for _, h := range heads {
		if !h.sess.Firmware().AtLeast(fwver.MinEncoderAssignmentVersion) {
			return scanerr.New(scanerr.VersionCompatibility, "head %d firmware %s below encoder-assignment floor %s", h.id, h.sess.Firmware(), fwver.MinEncoderAssignmentVersion)
		}
	}

	serials := []uint32{main, aux1, aux2}
	for i := 0; i < len(serials); i++ {
		for j := i + 1; j < len(serials); j++ {
			if serials[i] != 0 && serials[i] == serials[j] {
				return scanerr.New(scanerr.InvalidArgument, "duplicate ScanSync serial %d across encoder slots", serials[i])
			}
		}
	}

	s.mu.Lock()
	mon := s.scansync
	s.mu.Unlock()
	if mon != nil {
		for _, serial := range serials {
			if serial == 0 {
				continue
			}
			if _, ok := mon.Status(serial); !ok {
				return scanerr.New(scanerr.NotDiscovered, "ScanSync serial %d not visible to any head", serial)
			}
		}
	}

	assignment := wire.EncoderAssignment{MainSerial: main, Aux1Serial: aux1, Aux2Serial: aux2}
	g := new(errgroup.Group)
	for _, h := range heads {
		h := h
		g.Go(func() error {
			return h.sess.SendEnvelope(wire.MsgEncoderAssignment, assignment.Encode())
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	s.encoderAssignment = assignment
	s.haveEncoderAssignment = true
	s.mu.Unlock()
	return nil
}

// SetDefaultScanSyncEncoder assigns the ScanSync devices visible to
// the orchestrator's monitor to main/aux1/aux2 in ascending serial
// order (spec.md §4.7).
func (s *System) SetDefaultScanSyncEncoder() error {
	s.mu.Lock()
	mon := s.scansync
	s.mu.Unlock()
	if mon == nil {
		return scanerr.New(scanerr.NotDiscovered, "no ScanSync monitor attached")
	}
	devices := mon.Discovered()
	var main, aux1, aux2 uint32
	if len(devices) > 0 {
		main = devices[0].Serial
	}
	if len(devices) > 1 {
		aux1 = devices[1].Serial
	}
	if len(devices) > 2 {
		aux2 = devices[2].Serial
	}
	return s.SetScanSyncEncoder(main, aux1, aux2)
}

// startKeepAlive launches the ~1s keep-alive task (spec.md §4.7: "Every
// ~1 s while Scanning, send keep-alive to each session. Exits on
// state transition to Closing.").
func (s *System) startKeepAlive(ctx context.Context) {
	keepAliveCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.keepAliveCancel = cancel
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-keepAliveCtx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				state := s.state
				s.mu.Unlock()
				if state == Closing {
					return
				}
				if state != Scanning {
					continue
				}
				for _, h := range s.sortedHeads() {
					if err := h.sess.KeepAlive(); err != nil {
						obslog.Logf("system: keep-alive to head %d failed: %v", h.id, err)
					}
				}
			}
		}
	}()
}

func (s *System) stopKeepAlive() {
	s.mu.Lock()
	cancel := s.keepAliveCancel
	s.keepAliveCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
