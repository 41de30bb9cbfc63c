// Package wire implements the binary codecs spec.md §4.6/§6 leave as
// external collaborators: the profile-datagram header, the
// schema-driven control-channel messages, and the ScanSync broadcast
// packet. Grounded on the teacher's own big-endian field extraction in
// internal/lidar/parse/extract.go, adapted here from little-endian
// LiDAR block fields to the big-endian wire format this spec names in
// §4.6 and §6.
package wire

import (
	"encoding/binary"

	"github.com/banshee-data/scanhead/internal/scanerr"
)

// ProfileMagic is the two-byte magic every profile datagram's header
// begins with (spec.md §6: "magic 0xFACE in the first two bytes").
const ProfileMagic uint16 = 0xFACE

// HeaderSize is the fixed profile datagram header length (spec.md §4.6).
const HeaderSize = 40

// Data-type bitmask values (spec.md §4.6 "data_type ... bitmask: brightness, xy, subpixel").
const (
	DataTypeBrightness uint16 = 1 << 0
	DataTypeXY         uint16 = 1 << 1
	DataTypeSubpixel   uint16 = 1 << 2
)

// InvalidXY and InvalidBrightness are the per-point sentinels
// (spec.md §3 "Raw profile").
const (
	InvalidXY         int32  = -32768
	InvalidBrightness uint16 = 0xFFFF
)

// Header is the 40-byte profile datagram header (spec.md §4.6 table).
type Header struct {
	Magic             uint16
	ExposureTimeUS    uint16
	ScanHeadID        uint8
	CameraPort        uint8
	LaserPort         uint8
	Flags             uint8
	TimestampNS       uint64
	LaserOnTimeUS     uint16
	DataType          uint16
	DataLength        uint16
	NumberEncoders    uint8
	DatagramPosition  uint32
	NumberDatagrams   uint32
	StartColumn       uint16
	EndColumn         uint16
	SequenceNumber    uint32
}

// DecodeHeader parses the fixed 40-byte header from the front of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, scanerr.New(scanerr.Network, "profile header short read: %d bytes < %d", len(buf), HeaderSize)
	}
	h := Header{
		Magic:            binary.BigEndian.Uint16(buf[0:2]),
		ExposureTimeUS:   binary.BigEndian.Uint16(buf[2:4]),
		ScanHeadID:       buf[4],
		CameraPort:       buf[5],
		LaserPort:        buf[6],
		Flags:            buf[7],
		TimestampNS:      binary.BigEndian.Uint64(buf[8:16]),
		LaserOnTimeUS:    binary.BigEndian.Uint16(buf[16:18]),
		DataType:         binary.BigEndian.Uint16(buf[18:20]),
		DataLength:       binary.BigEndian.Uint16(buf[20:22]),
		NumberEncoders:   buf[22],
		DatagramPosition: binary.BigEndian.Uint32(buf[24:28]),
		NumberDatagrams:  binary.BigEndian.Uint32(buf[28:32]),
		StartColumn:      binary.BigEndian.Uint16(buf[32:34]),
		EndColumn:        binary.BigEndian.Uint16(buf[34:36]),
		SequenceNumber:   binary.BigEndian.Uint32(buf[36:40]),
	}
	if h.Magic != ProfileMagic {
		return Header{}, scanerr.New(scanerr.Internal, "profile header bad magic: %#x", h.Magic)
	}
	return h, nil
}

// EncodeHeader writes h's 40-byte wire form into buf, which must be at
// least HeaderSize long. Used by test fixtures and the simulated
// device responders exercised in session tests.
func EncodeHeader(h Header, buf []byte) {
	_ = buf[HeaderSize-1]
	binary.BigEndian.PutUint16(buf[0:2], h.Magic)
	binary.BigEndian.PutUint16(buf[2:4], h.ExposureTimeUS)
	buf[4] = h.ScanHeadID
	buf[5] = h.CameraPort
	buf[6] = h.LaserPort
	buf[7] = h.Flags
	binary.BigEndian.PutUint64(buf[8:16], h.TimestampNS)
	binary.BigEndian.PutUint16(buf[16:18], h.LaserOnTimeUS)
	binary.BigEndian.PutUint16(buf[18:20], h.DataType)
	binary.BigEndian.PutUint16(buf[20:22], h.DataLength)
	buf[22] = h.NumberEncoders
	buf[23] = 0
	binary.BigEndian.PutUint32(buf[24:28], h.DatagramPosition)
	binary.BigEndian.PutUint32(buf[28:32], h.NumberDatagrams)
	binary.BigEndian.PutUint16(buf[32:34], h.StartColumn)
	binary.BigEndian.PutUint16(buf[34:36], h.EndColumn)
	binary.BigEndian.PutUint32(buf[36:40], h.SequenceNumber)
}

// PointCount returns the number of points a datagram carries given its
// column range and per-data-type stride (spec.md §4.6: "Point count =
// (end_column - start_column + 1) / stride").
func (h Header) PointCount(stride uint16) int {
	if stride == 0 {
		return 0
	}
	return int(h.EndColumn-h.StartColumn+1) / int(stride)
}

// Point is one decoded profile sample.
type Point struct {
	X, Y       int32
	Brightness uint16
}

// DecodedProfile is a fully decoded profile datagram payload.
type DecodedProfile struct {
	Header             Header
	Encoders           []int64
	Data               []Point
	DataValidXY         bool
	DataValidBrightness bool
}

// DecodeProfile decodes the full payload (header + strides + encoders
// + brightness/xy data) following the field order spec.md §4.6 fixes:
// "a per-data-type stride field ... then number_encoders big-endian
// i64 encoder values, then ... brightness bytes ... XY pairs ... and
// subpixel data if present (unused by this spec)".
func DecodeProfile(buf []byte) (DecodedProfile, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return DecodedProfile{}, err
	}
	off := HeaderSize

	hasBrightness := h.DataType&DataTypeBrightness != 0
	hasXY := h.DataType&DataTypeXY != 0
	hasSubpixel := h.DataType&DataTypeSubpixel != 0

	var stride uint16
	for _, bit := range []uint16{DataTypeBrightness, DataTypeXY, DataTypeSubpixel} {
		if h.DataType&bit == 0 {
			continue
		}
		if off+2 > len(buf) {
			return DecodedProfile{}, scanerr.New(scanerr.Network, "profile stride field truncated")
		}
		stride = binary.BigEndian.Uint16(buf[off : off+2])
		off += 2
	}
	if stride == 0 {
		stride = 1
	}

	numPoints := h.PointCount(stride)

	encoders := make([]int64, h.NumberEncoders)
	for i := range encoders {
		if off+8 > len(buf) {
			return DecodedProfile{}, scanerr.New(scanerr.Network, "profile encoder field truncated")
		}
		encoders[i] = int64(binary.BigEndian.Uint64(buf[off : off+8]))
		off += 8
	}

	brightness := make([]uint16, numPoints)
	if hasBrightness {
		if off+numPoints > len(buf) {
			return DecodedProfile{}, scanerr.New(scanerr.Network, "profile brightness data truncated")
		}
		for i := 0; i < numPoints; i++ {
			brightness[i] = uint16(buf[off+i])
		}
		off += numPoints
	}

	points := make([]Point, numPoints)
	for i := range points {
		points[i].Brightness = InvalidBrightness
		points[i].X, points[i].Y = InvalidXY, InvalidXY
	}
	if hasXY {
		need := numPoints * 4
		if off+need > len(buf) {
			return DecodedProfile{}, scanerr.New(scanerr.Network, "profile xy data truncated")
		}
		for i := 0; i < numPoints; i++ {
			xRaw := int16(binary.BigEndian.Uint16(buf[off : off+2]))
			yRaw := int16(binary.BigEndian.Uint16(buf[off+2 : off+4]))
			off += 4
			points[i].X = int32(xRaw)
			points[i].Y = int32(yRaw)
		}
	}
	if hasBrightness {
		for i := range points {
			points[i].Brightness = brightness[i]
		}
	}
	if hasSubpixel {
		// Parsed for offset bookkeeping only; spec.md §9(c) says this
		// data is never consumed.
		off += numPoints * 2
	}

	return DecodedProfile{
		Header:              h,
		Encoders:            encoders,
		Data:                points,
		DataValidXY:         hasXY,
		DataValidBrightness: hasBrightness,
	}, nil
}
