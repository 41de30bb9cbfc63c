// Package session implements the scan head session of spec.md §4.6
// (C6): the per-head state machine, control-channel request/response
// pairs, and the data-channel receive task that drains profile
// datagrams into the buffer pool.
//
// Grounded on the teacher's connection-lifecycle state machine
// (internal/lidar's connect/disconnect handling) generalized to the
// spec's four-state machine, and on its background-reader-goroutine
// shape for the receive task.
package session

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/scanhead/internal/align"
	"github.com/banshee-data/scanhead/internal/fwver"
	"github.com/banshee-data/scanhead/internal/obslog"
	"github.com/banshee-data/scanhead/internal/pool"
	"github.com/banshee-data/scanhead/internal/scanerr"
	"github.com/banshee-data/scanhead/internal/specdata"
	"github.com/banshee-data/scanhead/internal/wire"
	"github.com/google/uuid"
)

// State is one of the four session lifecycle states (spec.md §4.6).
type State int

const (
	Disconnected State = iota
	Connected
	Scanning
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Scanning:
		return "scanning"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// controlSocket is the subset of *netio.FramedSocket the session
// needs on its control channel, narrowed so tests can inject a fake
// instead of dialing a real TCP connection.
type controlSocket interface {
	Send(buf []byte) error
	Read(buf []byte) (int, error)
	SetCancellationFlag(flag *int32)
	Close() error
}

// dataSocket is the data-channel analogue of controlSocket.
type dataSocket interface {
	Read(buf []byte) (int, error)
	SetCancellationFlag(flag *int32)
	Close() error
}

// ControlSocket and DataSocket are the exported names other packages
// (the orchestrator's connector) implement to hand a session its two
// channels without this package depending on netio's concrete types.
type ControlSocket = controlSocket
type DataSocket = dataSocket

// Config is construction-time identity for one session: the device's
// static spec, its discovered address, and the serial/id pair the
// orchestrator assigned it.
type Config struct {
	Serial uint32
	ID     uint32
	Variant *specdata.Variant

	// Downstream is the cable-orientation flag for this head. It is
	// fixed when the session is constructed; StoreAlignment does not
	// change it.
	Downstream bool
}

// PairAlignment is the per-(camera,laser) alignment transform a
// session applies to incoming profile points.
type PairAlignment struct {
	Camera, Laser specdata.Port
	Transform     *align.Transform
}

// MinEncoderTravel gates single-mode profile emission (spec.md §4.6:
// "Optional minimum encoder travel gate").
type MinEncoderTravel struct {
	Enabled          bool
	MinTravel        int64
	IdleScanPeriodNS uint64
}

// Session is one scan head's control/data channel state machine.
type Session struct {
	cfg Config

	mu    sync.Mutex
	state State

	control controlSocket
	data    dataSocket

	correlationID uuid.UUID

	statusCache    wire.StatusResponse
	haveStatus     bool
	firmware       fwver.Version
	minScanPeriod  uint32

	alignments map[pairKey]*align.Transform

	pool *pool.Pool

	lastSequence   uint32
	lastEncoder    int64
	lastTimestamp  uint64
	travel         MinEncoderTravel

	receiveActive int32 // atomic; cleared by Disconnect to stop the receive task
}

type pairKey struct {
	camera, laser specdata.Port
}

// New constructs a Disconnected session bound to cfg. pool is shared
// storage the session publishes profiles into once scanning starts;
// callers (the orchestrator) own its lifetime.
func New(cfg Config, p *pool.Pool) *Session {
	return &Session{
		cfg:        cfg,
		state:      Disconnected,
		alignments: make(map[pairKey]*align.Transform),
		pool:       p,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect opens the control channel and performs the Connect
// handshake, caching the resulting status (spec.md §4.6 Connect).
func (s *Session) Connect(ctrl controlSocket, apiVersion fwver.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Disconnected {
		return scanerr.New(scanerr.Connected, "session %d already connected", s.cfg.Serial)
	}

	req := wire.ConnectRequest{
		Serial:   s.cfg.Serial,
		ID:       s.cfg.ID,
		APIMajor: apiVersion.Major,
		APIMinor: apiVersion.Minor,
		APIPatch: apiVersion.Patch,
	}
	env := wire.Envelope{Type: wire.MsgConnect, Body: req.Encode()}
	if err := ctrl.Send(env.Encode()); err != nil {
		return err
	}

	buf := make([]byte, 4096)
	n, err := ctrl.Read(buf)
	if err != nil {
		return err
	}
	if n == 0 {
		return scanerr.New(scanerr.Network, "connect: no response from session %d", s.cfg.Serial)
	}
	respEnv, err := wire.DecodeEnvelope(buf[:n])
	if err != nil {
		return err
	}
	status, err := wire.DecodeStatusResponse(respEnv.Body)
	if err != nil {
		return err
	}

	s.control = ctrl
	s.correlationID = uuid.New()
	s.statusCache = status
	s.haveStatus = true
	s.minScanPeriod = status.MinScanPeriodUS
	s.state = Connected
	return nil
}

// checkFirmwareCompatible enforces spec.md §4.6's "version_compatibility
// if device major version != API major" at Connect time, given the
// device's reported firmware (carried separately from StatusResponse
// per the spec's discovery-time firmware reporting).
func (s *Session) checkFirmwareCompatible(device, api fwver.Version) error {
	if !device.SameMajor(api) {
		return scanerr.New(scanerr.VersionCompatibility, "device firmware %s incompatible with API %s", device, api)
	}
	return nil
}

// SetFirmware records the device firmware reported at discovery time
// and validates it against apiVersion (spec.md §4.6).
func (s *Session) SetFirmware(device, api fwver.Version) error {
	if err := s.checkFirmwareCompatible(device, api); err != nil {
		return err
	}
	s.mu.Lock()
	s.firmware = device
	s.mu.Unlock()
	return nil
}

// Firmware returns the session's recorded device firmware version.
func (s *Session) Firmware() fwver.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firmware
}

// Status issues a Status request/response round trip, refreshing the
// cached status (spec.md §4.6: "Latest response is cached"). Forbidden
// while the data channel is busy (Scanning).
func (s *Session) Status() (wire.StatusResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Disconnected {
		return wire.StatusResponse{}, scanerr.New(scanerr.NotConnected, "session %d not connected", s.cfg.Serial)
	}
	if s.state == Scanning {
		return wire.StatusResponse{}, scanerr.New(scanerr.Scanning, "status forbidden while scanning")
	}

	env := wire.Envelope{Type: wire.MsgStatusRequest}
	if err := s.control.Send(env.Encode()); err != nil {
		return wire.StatusResponse{}, err
	}
	buf := make([]byte, 4096)
	n, err := s.control.Read(buf)
	if err != nil {
		return wire.StatusResponse{}, err
	}
	respEnv, err := wire.DecodeEnvelope(buf[:n])
	if err != nil {
		return wire.StatusResponse{}, err
	}
	status, err := wire.DecodeStatusResponse(respEnv.Body)
	if err != nil {
		return wire.StatusResponse{}, err
	}
	s.statusCache = status
	s.haveStatus = true
	return status, nil
}

// CachedStatus returns the last status received, without issuing a
// new request.
func (s *Session) CachedStatus() (wire.StatusResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusCache, s.haveStatus
}

// KeepAlive sends the keep-alive message the orchestrator issues
// roughly once a second while scanning.
func (s *Session) KeepAlive() error {
	s.mu.Lock()
	ctrl := s.control
	s.mu.Unlock()
	if ctrl == nil {
		return scanerr.New(scanerr.NotConnected, "session %d has no control channel", s.cfg.Serial)
	}
	env := wire.Envelope{Type: wire.MsgKeepAlive}
	return ctrl.Send(env.Encode())
}

// SendScanConfiguration transmits the scan-configuration message.
func (s *Session) SendScanConfiguration(cfg wire.ScanConfiguration) error {
	return s.sendControl(wire.MsgScanConfiguration, cfg.Encode())
}

// SendEnvelope transmits an arbitrary control-channel message, for
// message kinds (encoder assignment, window configuration, exclusion
// mask, brightness correction) that the orchestrator composes without
// a dedicated per-kind Session method.
func (s *Session) SendEnvelope(t wire.MsgType, body []byte) error {
	return s.sendControl(t, body)
}

// StoreAlignment transmits one pair's alignment record and caches its
// Transform for the receive task to apply to incoming points
// (spec.md §4.6: "one message per scan pair whose alignment is
// non-identity").
func (s *Session) StoreAlignment(camera, laser specdata.Port, a align.Alignment, rec wire.AlignmentRecord) error {
	if err := s.sendControl(wire.MsgStoreAlignment, rec.Encode()); err != nil {
		return err
	}
	s.mu.Lock()
	s.alignments[pairKey{camera, laser}] = align.NewTransform(a)
	s.mu.Unlock()
	return nil
}

// transformFor returns the pair's cached alignment transform, or an
// identity transform if none was ever stored.
func (s *Session) transformFor(camera, laser specdata.Port) *align.Transform {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.alignments[pairKey{camera, laser}]; ok {
		return t
	}
	return align.NewTransform(align.Identity)
}

// ScanStart transmits the scan-start message and transitions the
// session to Scanning, resetting the pool in the given mode and
// starting the receive task.
func (s *Session) ScanStart(ctx context.Context, data dataSocket, startTimeNS uint64, mode pool.Mode, pairs []pool.Pair, travel MinEncoderTravel) error {
	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		return scanerr.New(scanerr.Connected, "session %d must be connected before scanning", s.cfg.Serial)
	}
	s.mu.Unlock()

	if err := s.sendControl(wire.MsgScanStart, wire.ScanStart{StartTimeNS: startTimeNS}.Encode()); err != nil {
		return err
	}

	if err := s.pool.Reset(mode, pairs); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = data
	s.travel = travel
	s.state = Scanning
	s.mu.Unlock()

	atomic.StoreInt32(&s.receiveActive, 1)
	data.SetCancellationFlag(&s.receiveActive)
	go s.receiveLoop(ctx)
	return nil
}

// ScanStop sends the scan-stop message and returns the session to
// Connected, signaling the receive task to exit.
func (s *Session) ScanStop() error {
	s.mu.Lock()
	if s.state != Scanning {
		s.mu.Unlock()
		return scanerr.New(scanerr.NotScanning, "session %d not scanning", s.cfg.Serial)
	}
	s.mu.Unlock()

	if err := s.sendControl(wire.MsgScanStop, nil); err != nil {
		return err
	}

	atomic.StoreInt32(&s.receiveActive, 0)
	s.mu.Lock()
	if s.data != nil {
		s.data.Close()
	}
	s.data = nil
	s.state = Connected
	s.mu.Unlock()
	return nil
}

// Disconnect closes the control (and, if open, data) channel and
// returns the session to Disconnected.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return nil
	}
	atomic.StoreInt32(&s.receiveActive, 0)
	ctrl := s.control
	data := s.data
	s.control = nil
	s.data = nil
	s.state = Disconnected
	s.haveStatus = false
	s.mu.Unlock()

	if data != nil {
		data.Close()
	}
	if ctrl != nil {
		return ctrl.Close()
	}
	return nil
}

func (s *Session) sendControl(t wire.MsgType, body []byte) error {
	s.mu.Lock()
	ctrl := s.control
	s.mu.Unlock()
	if ctrl == nil {
		return scanerr.New(scanerr.NotConnected, "session %d has no control channel", s.cfg.Serial)
	}
	env := wire.Envelope{Type: t, Body: body}
	return ctrl.Send(env.Encode())
}

// onDisconnected transitions the session to Disconnected after a
// control or data channel I/O failure (spec.md §4.6: "Connection
// check: when a control socket read returns EOF or network failure,
// the session transitions to Disconnected and the receive task
// exits.").
func (s *Session) onDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Disconnected
	s.control = nil
	s.data = nil
}

const maxDatagramSize = 65536

// receiveLoop is the per-session profile-receive task (spec.md §4.6
// "Processing each datagram"); it runs until the receiveActive flag
// is cleared or ctx is cancelled.
func (s *Session) receiveLoop(ctx context.Context) {
	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if atomic.LoadInt32(&s.receiveActive) == 0 {
			return
		}

		s.mu.Lock()
		data := s.data
		s.mu.Unlock()
		if data == nil {
			return
		}

		n, err := data.Read(buf)
		if err != nil {
			obslog.Logf("session %d: data channel error: %v", s.cfg.Serial, err)
			s.onDisconnected()
			return
		}
		if n == 0 {
			continue
		}

		decoded, err := wire.DecodeProfile(buf[:n])
		if err != nil {
			continue
		}
		s.processProfile(decoded)
	}
}

func (s *Session) processProfile(d wire.DecodedProfile) {
	pair := pool.Pair{Camera: specdata.Port(d.Header.CameraPort), Laser: specdata.Port(d.Header.LaserPort)}

	if ok, _ := s.checkEncoderTravel(d); !ok {
		return
	}

	q, err := s.pool.Queue(pair)
	if err != nil {
		return
	}
	slot, ok := q.Free.TryDequeue()
	if !ok {
		return // backpressure drop, spec.md §4.6 step 3
	}

	slot.ScanHeadID = uint8(d.Header.ScanHeadID)
	slot.Camera = pair.Camera
	slot.Laser = pair.Laser
	slot.SequenceNumber = d.Header.SequenceNumber
	slot.TimestampNS = d.Header.TimestampNS
	slot.Flags = d.Header.Flags
	slot.LaserOnTimeUS = d.Header.LaserOnTimeUS
	slot.Format = d.Header.DataType
	slot.DataValidXY = d.DataValidXY
	slot.DataValidBright = d.DataValidBrightness
	slot.NumEncoderValues = len(d.Encoders)
	for i, e := range d.Encoders {
		if i < len(slot.Encoders) {
			slot.Encoders[i] = e
		}
	}

	transform := s.transformFor(pair.Camera, pair.Laser)
	if cap(slot.Data) < len(d.Data) {
		slot.Data = make([]pool.Point, len(d.Data))
	}
	slot.Data = slot.Data[:len(d.Data)]
	for i, pt := range d.Data {
		if pt.X == wire.InvalidXY || pt.Y == wire.InvalidXY {
			slot.Data[i] = pool.Point{X: wire.InvalidXY, Y: wire.InvalidXY, Brightness: wire.InvalidBrightness}
			continue
		}
		mx, my := transform.CameraToMill(pt.X, pt.Y)
		slot.Data[i] = pool.Point{X: mx, Y: my, Brightness: pt.Brightness}
	}
	slot.DataLen = len(d.Data)

	q.Ready.TryEnqueue(slot)

	s.mu.Lock()
	s.lastSequence = d.Header.SequenceNumber
	s.mu.Unlock()
}

// checkEncoderTravel implements the optional minimum-encoder-travel
// gate (spec.md §4.6, single-mode only).
func (s *Session) checkEncoderTravel(d wire.DecodedProfile) (keep bool, forcedIdleEmit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.travel.Enabled {
		return true, false
	}
	var encoder int64
	if len(d.Encoders) > 0 {
		encoder = d.Encoders[0]
	}
	delta := encoder - s.lastEncoder
	if delta < 0 {
		delta = -delta
	}
	if delta >= s.travel.MinTravel {
		s.lastEncoder = encoder
		s.lastTimestamp = d.Header.TimestampNS
		return true, false
	}
	if s.travel.IdleScanPeriodNS > 0 && d.Header.TimestampNS-s.lastTimestamp >= s.travel.IdleScanPeriodNS {
		s.lastEncoder = encoder
		s.lastTimestamp = d.Header.TimestampNS
		return true, true
	}
	return false, false
}

// LastSequence returns the most recent sequence number this session's
// receive task has observed.
func (s *Session) LastSequence() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSequence
}

// Serial returns the session's device serial number.
func (s *Session) Serial() uint32 { return s.cfg.Serial }

// ID returns the session's user-assigned id.
func (s *Session) ID() uint32 { return s.cfg.ID }

// ScanHeadID returns the protocol scan_head_id this session's profiles
// carry in their header — the same value assigned at CreateScanHead
// time, narrowed to the wire's uint8 (spec.md §4.8's placeholder slots
// populate this field the same as real profiles, so two heads sharing
// a scheduled (camera,laser) pair stay distinguishable in a bundle).
func (s *Session) ScanHeadID() uint8 { return uint8(s.cfg.ID) }

// Variant returns the session's static device specification.
func (s *Session) Variant() *specdata.Variant { return s.cfg.Variant }

// Downstream reports the cable orientation the session was
// constructed with.
func (s *Session) Downstream() bool { return s.cfg.Downstream }

// Pool exposes the session's buffer pool so the frame assembler can
// peek and drain per-pair ready queues directly.
func (s *Session) Pool() *pool.Pool { return s.pool }

// CorrelationID returns the UUID minted for this session at Connect
// time. The session's own log lines do not include it.
func (s *Session) CorrelationID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.correlationID
}

// SortByID orders a session slice by user-assigned id (spec.md §4.8:
// "for each session in id order"), used by the orchestrator's parallel
// fan-outs and by the frame assembler's emission order.
func SortByID(sessions []*Session) {
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].cfg.ID < sessions[j].cfg.ID })
}
