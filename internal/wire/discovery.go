package wire

import (
	"encoding/binary"

	"github.com/banshee-data/scanhead/internal/fwver"
	"github.com/banshee-data/scanhead/internal/scanerr"
)

// ClientDiscover is the UDP broadcast probe payload sent on the
// discovery port (spec.md §6: "a schema-encoded client-discover
// message carrying {api_major, api_minor, api_patch}").
type ClientDiscover struct {
	APIVersion fwver.Version
}

// Encode serializes a ClientDiscover probe.
func (c ClientDiscover) Encode() []byte {
	buf := make([]byte, 6)
	binary.BigEndian.PutUint16(buf[0:2], c.APIVersion.Major)
	binary.BigEndian.PutUint16(buf[2:4], c.APIVersion.Minor)
	binary.BigEndian.PutUint16(buf[4:6], c.APIVersion.Patch)
	return buf
}

// DecodeClientDiscover parses a ClientDiscover probe.
func DecodeClientDiscover(buf []byte) (ClientDiscover, error) {
	if len(buf) < 6 {
		return ClientDiscover{}, scanerr.New(scanerr.Network, "client discover short: %d bytes", len(buf))
	}
	return ClientDiscover{APIVersion: fwver.Version{
		Major: binary.BigEndian.Uint16(buf[0:2]),
		Minor: binary.BigEndian.Uint16(buf[2:4]),
		Patch: binary.BigEndian.Uint16(buf[4:6]),
	}}, nil
}

// ServerDiscover is the discovery reply payload (spec.md §6:
// "schema-encoded server-discover carrying serial, type code, fw
// version, IP, link speed, state, type string").
type ServerDiscover struct {
	Serial        uint32
	TypeCode      uint16
	Firmware      fwver.Version
	IP            [4]byte
	LinkSpeedMbps uint32
	State         uint8
	TypeStr       string
}

// Encode serializes a ServerDiscover reply.
func (s ServerDiscover) Encode() []byte {
	typeBytes := []byte(s.TypeStr)
	buf := make([]byte, 4+2+6+4+4+1+2+len(typeBytes))
	binary.BigEndian.PutUint32(buf[0:4], s.Serial)
	binary.BigEndian.PutUint16(buf[4:6], s.TypeCode)
	binary.BigEndian.PutUint16(buf[6:8], s.Firmware.Major)
	binary.BigEndian.PutUint16(buf[8:10], s.Firmware.Minor)
	binary.BigEndian.PutUint16(buf[10:12], s.Firmware.Patch)
	copy(buf[12:16], s.IP[:])
	binary.BigEndian.PutUint32(buf[16:20], s.LinkSpeedMbps)
	buf[20] = s.State
	binary.BigEndian.PutUint16(buf[21:23], uint16(len(typeBytes)))
	copy(buf[23:], typeBytes)
	return buf
}

// DecodeServerDiscover parses a ServerDiscover reply.
func DecodeServerDiscover(buf []byte) (ServerDiscover, error) {
	if len(buf) < 23 {
		return ServerDiscover{}, scanerr.New(scanerr.Network, "server discover short: %d bytes", len(buf))
	}
	strLen := int(binary.BigEndian.Uint16(buf[21:23]))
	if len(buf) < 23+strLen {
		return ServerDiscover{}, scanerr.New(scanerr.Network, "server discover truncated type string")
	}
	s := ServerDiscover{
		Serial:   binary.BigEndian.Uint32(buf[0:4]),
		TypeCode: binary.BigEndian.Uint16(buf[4:6]),
		Firmware: fwver.Version{
			Major: binary.BigEndian.Uint16(buf[6:8]),
			Minor: binary.BigEndian.Uint16(buf[8:10]),
			Patch: binary.BigEndian.Uint16(buf[10:12]),
		},
		LinkSpeedMbps: binary.BigEndian.Uint32(buf[16:20]),
		State:         buf[20],
		TypeStr:       string(buf[23 : 23+strLen]),
	}
	copy(s.IP[:], buf[12:16])
	return s, nil
}
