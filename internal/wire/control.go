package wire

import (
	"encoding/binary"

	"github.com/banshee-data/scanhead/internal/scanerr"
)

// MsgType tags each control-channel message (spec.md §4.6 "schema-
// based binary encoding (opaque to this spec)" — this file is that
// schema).
type MsgType uint8

const (
	MsgConnect MsgType = iota + 1
	MsgConnectResponse
	MsgStatusRequest
	MsgStatusResponse
	MsgKeepAlive
	MsgScanConfiguration
	MsgStoreAlignment
	MsgScanStart
	MsgScanStop
	MsgWindowConfiguration
	MsgExclusionMask
	MsgBrightnessCorrection
	MsgEncoderAssignment
	MsgImageRequest
	MsgProfileRequest
	MsgAck
	MsgNack

	// MsgRebootRequest is the update port's sole message type (spec.md
	// §6 "Update port ... one schema message REBOOT_REQUEST"), tagged
	// here for consistency even though it never shares a wire with the
	// control-port message types above.
	MsgRebootRequest
)

// Envelope is the common framing every control message shares: a
// one-byte type tag followed by a type-specific body. The TCP framed
// socket (internal/netio) handles the outer 4-byte length prefix;
// Envelope is what rides inside it.
type Envelope struct {
	Type MsgType
	Body []byte
}

// Encode serializes e as type-byte + body.
func (e Envelope) Encode() []byte {
	out := make([]byte, 1+len(e.Body))
	out[0] = byte(e.Type)
	copy(out[1:], e.Body)
	return out
}

// DecodeEnvelope parses buf into an Envelope.
func DecodeEnvelope(buf []byte) (Envelope, error) {
	if len(buf) < 1 {
		return Envelope{}, scanerr.New(scanerr.Network, "empty control message")
	}
	return Envelope{Type: MsgType(buf[0]), Body: buf[1:]}, nil
}

// ConnectRequest is the Connect message body (spec.md §4.6: "Carries
// serial, id, and API version notes").
type ConnectRequest struct {
	Serial    uint32
	ID        uint32
	APIMajor  uint16
	APIMinor  uint16
	APIPatch  uint16
}

// Encode serializes a ConnectRequest.
func (r ConnectRequest) Encode() []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], r.Serial)
	binary.BigEndian.PutUint32(buf[4:8], r.ID)
	binary.BigEndian.PutUint16(buf[8:10], r.APIMajor)
	binary.BigEndian.PutUint16(buf[10:12], r.APIMinor)
	binary.BigEndian.PutUint16(buf[12:14], r.APIPatch)
	return buf
}

// DecodeConnectRequest parses a ConnectRequest body.
func DecodeConnectRequest(buf []byte) (ConnectRequest, error) {
	if len(buf) < 14 {
		return ConnectRequest{}, scanerr.New(scanerr.Network, "connect request short: %d bytes", len(buf))
	}
	return ConnectRequest{
		Serial:   binary.BigEndian.Uint32(buf[0:4]),
		ID:       binary.BigEndian.Uint32(buf[4:8]),
		APIMajor: binary.BigEndian.Uint16(buf[8:10]),
		APIMinor: binary.BigEndian.Uint16(buf[10:12]),
		APIPatch: binary.BigEndian.Uint16(buf[12:14]),
	}, nil
}

// CameraSnapshot is one camera's status within a StatusResponse
// (spec.md §4.6: "per-camera snapshot (temperature, pixels-in-window)").
type CameraSnapshot struct {
	TemperatureC    int16
	PixelsInWindow  uint32
}

// StatusResponse is the Connect/Status response body (spec.md §4.6).
type StatusResponse struct {
	MinScanPeriodUS uint32
	Cameras         []CameraSnapshot
	Encoders        []int64
	State           uint8
}

// Encode serializes a StatusResponse.
func (s StatusResponse) Encode() []byte {
	buf := make([]byte, 4+1+1+1+len(s.Cameras)*6+len(s.Encoders)*8)
	binary.BigEndian.PutUint32(buf[0:4], s.MinScanPeriodUS)
	buf[4] = byte(len(s.Cameras))
	buf[5] = byte(len(s.Encoders))
	buf[6] = s.State
	off := 7
	for _, c := range s.Cameras {
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(c.TemperatureC))
		binary.BigEndian.PutUint32(buf[off+2:off+6], c.PixelsInWindow)
		off += 6
	}
	for _, e := range s.Encoders {
		binary.BigEndian.PutUint64(buf[off:off+8], uint64(e))
		off += 8
	}
	return buf
}

// DecodeStatusResponse parses a StatusResponse body.
func DecodeStatusResponse(buf []byte) (StatusResponse, error) {
	if len(buf) < 7 {
		return StatusResponse{}, scanerr.New(scanerr.Network, "status response short: %d bytes", len(buf))
	}
	numCameras := int(buf[4])
	numEncoders := int(buf[5])
	want := 7 + numCameras*6 + numEncoders*8
	if len(buf) < want {
		return StatusResponse{}, scanerr.New(scanerr.Network, "status response truncated: have %d want %d", len(buf), want)
	}
	s := StatusResponse{
		MinScanPeriodUS: binary.BigEndian.Uint32(buf[0:4]),
		State:           buf[6],
		Cameras:         make([]CameraSnapshot, numCameras),
		Encoders:        make([]int64, numEncoders),
	}
	off := 7
	for i := 0; i < numCameras; i++ {
		s.Cameras[i] = CameraSnapshot{
			TemperatureC:   int16(binary.BigEndian.Uint16(buf[off : off+2])),
			PixelsInWindow: binary.BigEndian.Uint32(buf[off+2 : off+6]),
		}
		off += 6
	}
	for i := 0; i < numEncoders; i++ {
		s.Encoders[i] = int64(binary.BigEndian.Uint64(buf[off : off+8]))
		off += 8
	}
	return s, nil
}

// ScanPairConfig is one scan pair's entry within a ScanConfiguration
// message (spec.md §4.6: "for each scan pair the camera/laser ports,
// the three laser-on times in ns, scan-end offset in ns, and camera
// orientation").
type ScanPairConfig struct {
	CameraPort      uint8
	LaserPort       uint8
	LaserOnTimeMinNS uint32
	LaserOnTimeDefNS uint32
	LaserOnTimeMaxNS uint32
	EndOffsetNS     uint32
	CameraFlipped   bool
}

// ScanConfiguration is the scan-configuration message body.
type ScanConfiguration struct {
	DataType      uint16
	Stride        uint16
	ScanPeriodNS  uint64
	Pairs         []ScanPairConfig
}

const scanPairConfigSize = 19

// Encode serializes a ScanConfiguration.
func (s ScanConfiguration) Encode() []byte {
	buf := make([]byte, 2+2+8+2+len(s.Pairs)*scanPairConfigSize)
	binary.BigEndian.PutUint16(buf[0:2], s.DataType)
	binary.BigEndian.PutUint16(buf[2:4], s.Stride)
	binary.BigEndian.PutUint64(buf[4:12], s.ScanPeriodNS)
	binary.BigEndian.PutUint16(buf[12:14], uint16(len(s.Pairs)))
	off := 14
	for _, p := range s.Pairs {
		buf[off] = p.CameraPort
		buf[off+1] = p.LaserPort
		binary.BigEndian.PutUint32(buf[off+2:off+6], p.LaserOnTimeMinNS)
		binary.BigEndian.PutUint32(buf[off+6:off+10], p.LaserOnTimeDefNS)
		binary.BigEndian.PutUint32(buf[off+10:off+14], p.LaserOnTimeMaxNS)
		binary.BigEndian.PutUint32(buf[off+14:off+18], p.EndOffsetNS)
		if p.CameraFlipped {
			buf[off+18] = 1
		}
		off += scanPairConfigSize
	}
	return buf
}

// DecodeScanConfiguration parses a ScanConfiguration body.
func DecodeScanConfiguration(buf []byte) (ScanConfiguration, error) {
	if len(buf) < 14 {
		return ScanConfiguration{}, scanerr.New(scanerr.Network, "scan configuration short: %d bytes", len(buf))
	}
	n := int(binary.BigEndian.Uint16(buf[12:14]))
	want := 14 + n*scanPairConfigSize
	if len(buf) < want {
		return ScanConfiguration{}, scanerr.New(scanerr.Network, "scan configuration truncated: have %d want %d", len(buf), want)
	}
	s := ScanConfiguration{
		DataType:     binary.BigEndian.Uint16(buf[0:2]),
		Stride:       binary.BigEndian.Uint16(buf[2:4]),
		ScanPeriodNS: binary.BigEndian.Uint64(buf[4:12]),
		Pairs:        make([]ScanPairConfig, n),
	}
	off := 14
	for i := 0; i < n; i++ {
		s.Pairs[i] = ScanPairConfig{
			CameraPort:       buf[off],
			LaserPort:        buf[off+1],
			LaserOnTimeMinNS: binary.BigEndian.Uint32(buf[off+2 : off+6]),
			LaserOnTimeDefNS: binary.BigEndian.Uint32(buf[off+6 : off+10]),
			LaserOnTimeMaxNS: binary.BigEndian.Uint32(buf[off+10 : off+14]),
			EndOffsetNS:      binary.BigEndian.Uint32(buf[off+14 : off+18]),
			CameraFlipped:    buf[off+18] != 0,
		}
		off += scanPairConfigSize
	}
	return s, nil
}

// AlignmentRecord is one scan pair's StoreAlignment entry (spec.md §4.6).
type AlignmentRecord struct {
	CameraPort  uint8
	LaserPort   uint8
	ShiftXMilli int32
	ShiftYMilli int32
	RollMilliDeg int32
	TimestampNS uint64
}

// Encode serializes an AlignmentRecord.
func (a AlignmentRecord) Encode() []byte {
	buf := make([]byte, 2+4+4+4+8)
	buf[0] = a.CameraPort
	buf[1] = a.LaserPort
	binary.BigEndian.PutUint32(buf[2:6], uint32(a.ShiftXMilli))
	binary.BigEndian.PutUint32(buf[6:10], uint32(a.ShiftYMilli))
	binary.BigEndian.PutUint32(buf[10:14], uint32(a.RollMilliDeg))
	binary.BigEndian.PutUint64(buf[14:22], a.TimestampNS)
	return buf
}

// DecodeAlignmentRecord parses an AlignmentRecord.
func DecodeAlignmentRecord(buf []byte) (AlignmentRecord, error) {
	if len(buf) < 22 {
		return AlignmentRecord{}, scanerr.New(scanerr.Network, "alignment record short: %d bytes", len(buf))
	}
	return AlignmentRecord{
		CameraPort:   buf[0],
		LaserPort:    buf[1],
		ShiftXMilli:  int32(binary.BigEndian.Uint32(buf[2:6])),
		ShiftYMilli:  int32(binary.BigEndian.Uint32(buf[6:10])),
		RollMilliDeg: int32(binary.BigEndian.Uint32(buf[10:14])),
		TimestampNS:  binary.BigEndian.Uint64(buf[14:22]),
	}, nil
}

// ScanStart is the scan-start message body (spec.md §4.6: "Optional
// start_time_ns; zero = device picks").
type ScanStart struct {
	StartTimeNS uint64
}

// Encode serializes a ScanStart.
func (s ScanStart) Encode() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, s.StartTimeNS)
	return buf
}

// DecodeScanStart parses a ScanStart body.
func DecodeScanStart(buf []byte) (ScanStart, error) {
	if len(buf) < 8 {
		return ScanStart{}, scanerr.New(scanerr.Network, "scan start short: %d bytes", len(buf))
	}
	return ScanStart{StartTimeNS: binary.BigEndian.Uint64(buf[0:8])}, nil
}

// EncoderAssignment maps up to three ScanSync serials to the device's
// main/aux1/aux2 slots (spec.md §4.6, §4.7).
type EncoderAssignment struct {
	MainSerial uint32
	Aux1Serial uint32
	Aux2Serial uint32
}

// Encode serializes an EncoderAssignment.
func (e EncoderAssignment) Encode() []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], e.MainSerial)
	binary.BigEndian.PutUint32(buf[4:8], e.Aux1Serial)
	binary.BigEndian.PutUint32(buf[8:12], e.Aux2Serial)
	return buf
}

// DecodeEncoderAssignment parses an EncoderAssignment.
func DecodeEncoderAssignment(buf []byte) (EncoderAssignment, error) {
	if len(buf) < 12 {
		return EncoderAssignment{}, scanerr.New(scanerr.Network, "encoder assignment short: %d bytes", len(buf))
	}
	return EncoderAssignment{
		MainSerial: binary.BigEndian.Uint32(buf[0:4]),
		Aux1Serial: binary.BigEndian.Uint32(buf[4:8]),
		Aux2Serial: binary.BigEndian.Uint32(buf[8:12]),
	}, nil
}

// RebootRequest is the single message the update port accepts
// (spec.md §6: "one schema message REBOOT_REQUEST").
type RebootRequest struct{}

// Encode serializes a RebootRequest (an empty body; the type byte
// carries all the information the device needs).
func (RebootRequest) Encode() []byte { return nil }
