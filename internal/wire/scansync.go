package wire

import (
	"encoding/binary"

	"github.com/banshee-data/scanhead/internal/fwver"
	"github.com/banshee-data/scanhead/internal/scanerr"
)

// ScanSync packet size thresholds used to recover version when no
// explicit version field is present (spec.md §4.2). These match the
// real device's scansync_udp_packet layout: a v1 sender only ever
// writes the first 32 bytes (serial through encoder); v2/v3/v4 share
// the full 76-byte struct and are told apart by the sentinel/version
// rules below.
const (
	ScanSyncSizeV1 = 32
	ScanSyncSizeV3 = 76
)

// ScanSync flag bits (spec.md §4.2 v2: "flags (fault A/B/Y/Z, overrun,
// termination-enable, index-Z, sync, aux-Y)").
const (
	FlagFaultA ScanSyncFlags = 1 << iota
	FlagFaultB
	FlagFaultY
	FlagFaultZ
	FlagOverrun
	FlagTerminationEnable
	FlagIndexZ
	FlagSync
	FlagAuxY
)

// ScanSyncFlags is the v2 fault/status bitmask.
type ScanSyncFlags uint32

// scanSyncReservedMagic is the four-word sentinel pattern that marks
// an un-versioned (v1/v2) packet (spec.md §4.2).
var scanSyncReservedMagic = [4]uint32{0xAAAAAAAA, 0xBBBBBBBB, 0xCCCCCCCC, 0xDDDDDDDD}

// ScanSyncPacket is the union of all fields across ScanSync packet
// versions 1..4. Fields not populated at the packet's detected version
// are left zero (spec.md invariant 9).
type ScanSyncPacket struct {
	Version uint16

	Serial      uint32
	Sequence    uint32
	TimestampNS uint64
	Encoder     int64

	Flags             ScanSyncFlags
	AuxYTimestampNS   uint64
	IndexZTimestampNS uint64
	SyncTimestampNS   uint64

	Firmware fwver.Version

	LaserDisabled    bool
	LaserDisableTSNS uint64
}

// DecodeScanSyncPacket applies the version-recovery rules of
// spec.md §4.2 and decodes all fields defined at or below the
// recovered version. Byte offsets below 60 mirror the device's own
// scansync_udp_packet struct (serial/sequence/encoder-timestamp/
// last-timestamp/encoder, then flags and the three edge timestamps);
// offset 60 onward (packet version, firmware triple, laser-disable)
// is the v3/v4 reuse of what v2 left reserved.
func DecodeScanSyncPacket(buf []byte) (ScanSyncPacket, error) {
	if len(buf) < ScanSyncSizeV1 {
		return ScanSyncPacket{}, scanerr.New(scanerr.Network, "scansync packet too short: %d bytes", len(buf))
	}

	var version uint16
	switch {
	case len(buf) == ScanSyncSizeV1:
		version = 1
	case len(buf) < ScanSyncSizeV3:
		version = binary.BigEndian.Uint16(buf[60:62])
	default:
		reserved0 := binary.BigEndian.Uint32(buf[0:4])
		if reserved0 == scanSyncReservedMagic[0] {
			version = 2
		} else {
			version = binary.BigEndian.Uint16(buf[60:62])
		}
	}

	p := ScanSyncPacket{Version: version}

	// v1 base fields: serial, sequence, the encoder's own timestamp,
	// encoder. last_timestamp_s/ns (bytes 16-23) duplicate arrival
	// time the device also stamps and is not part of spec.md's v1
	// field set, so it is read but not surfaced.
	p.Serial = binary.BigEndian.Uint32(buf[0:4])
	p.Sequence = binary.BigEndian.Uint32(buf[4:8])
	seconds := binary.BigEndian.Uint32(buf[8:12])
	nanos := binary.BigEndian.Uint32(buf[12:16])
	p.TimestampNS = uint64(seconds)*1_000_000_000 + uint64(nanos)
	p.Encoder = int64(binary.BigEndian.Uint64(buf[24:32]))

	if version >= 2 && len(buf) >= 60 {
		p.Flags = ScanSyncFlags(binary.BigEndian.Uint32(buf[32:36]))
		p.AuxYTimestampNS = edgeTimestampNS(buf[36:44])
		p.IndexZTimestampNS = edgeTimestampNS(buf[44:52])
		p.SyncTimestampNS = edgeTimestampNS(buf[52:60])
	}

	if version >= 3 && len(buf) >= 68 {
		p.Firmware = fwver.Version{
			Major: binary.BigEndian.Uint16(buf[62:64]),
			Minor: binary.BigEndian.Uint16(buf[64:66]),
			Patch: binary.BigEndian.Uint16(buf[66:68]),
		}
	}

	if version >= 4 && len(buf) >= ScanSyncSizeV3 {
		p.LaserDisabled = binary.BigEndian.Uint32(buf[68:72]) != 0
		p.LaserDisableTSNS = uint64(binary.BigEndian.Uint32(buf[72:76])) * 1_000_000_000
	}

	return p, nil
}

// edgeTimestampNS combines an 8-byte seconds+nanoseconds pair (as the
// device encodes aux-Y/index-Z/sync edges) into a single nanosecond
// count.
func edgeTimestampNS(buf []byte) uint64 {
	seconds := binary.BigEndian.Uint32(buf[0:4])
	nanos := binary.BigEndian.Uint32(buf[4:8])
	return uint64(seconds)*1_000_000_000 + uint64(nanos)
}

// EncodeScanSyncPacketForTest builds a raw ScanSync packet of the
// given wire version, sized to exercise DecodeScanSyncPacket's
// version-recovery rules (spec.md §4.2/S6). Only meant for test
// fixtures and the simulated-device responders used in session and
// monitor tests; real devices produce these bytes, not this module.
func EncodeScanSyncPacketForTest(version uint16, p ScanSyncPacket) []byte {
	size := ScanSyncSizeV1
	if version >= 2 {
		size = ScanSyncSizeV3
	}
	buf := make([]byte, size)

	if version == 2 {
		binary.BigEndian.PutUint32(buf[0:4], scanSyncReservedMagic[0])
	} else {
		binary.BigEndian.PutUint32(buf[0:4], p.Serial)
	}
	binary.BigEndian.PutUint32(buf[4:8], p.Sequence)
	binary.BigEndian.PutUint32(buf[8:12], uint32(p.TimestampNS/1_000_000_000))
	binary.BigEndian.PutUint32(buf[12:16], uint32(p.TimestampNS%1_000_000_000))
	binary.BigEndian.PutUint64(buf[24:32], uint64(p.Encoder))

	if size >= ScanSyncSizeV3 {
		if version >= 2 {
			binary.BigEndian.PutUint32(buf[32:36], uint32(p.Flags))
			putEdgeTimestampNS(buf[36:44], p.AuxYTimestampNS)
			putEdgeTimestampNS(buf[44:52], p.IndexZTimestampNS)
			putEdgeTimestampNS(buf[52:60], p.SyncTimestampNS)
		}
		if version >= 3 {
			binary.BigEndian.PutUint16(buf[60:62], version)
			binary.BigEndian.PutUint16(buf[62:64], p.Firmware.Major)
			binary.BigEndian.PutUint16(buf[64:66], p.Firmware.Minor)
			binary.BigEndian.PutUint16(buf[66:68], p.Firmware.Patch)
		}
		if version >= 4 {
			if p.LaserDisabled {
				binary.BigEndian.PutUint32(buf[68:72], 1)
			}
			binary.BigEndian.PutUint32(buf[72:76], uint32(p.LaserDisableTSNS/1_000_000_000))
		}
	}
	return buf
}

func putEdgeTimestampNS(buf []byte, ns uint64) {
	binary.BigEndian.PutUint32(buf[0:4], uint32(ns/1_000_000_000))
	binary.BigEndian.PutUint32(buf[4:8], uint32(ns%1_000_000_000))
}
