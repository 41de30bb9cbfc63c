// Package specdata holds the static, table-driven device-variant
// specifications spec.md §3/§9 describes as "opaque typed records":
// per-variant camera/laser counts, timing bounds, and the id↔port
// lookup tables a real client would receive from a model-descriptor
// file shipped alongside the device firmware. No runtime subtype
// hierarchy is needed (spec.md §9 "Dynamic dispatch over device
// variants") — callers look up a Variant by Type and read its fields.
package specdata

import "fmt"

// Type enumerates the device variant families named in spec.md's
// scenarios.
type Type int

const (
	TypeUnknown Type = iota
	TypeWSC        // one camera, one laser, camera is the primary axis
	TypeX6B20      // two cameras / eight lasers, laser is the primary axis
)

func (t Type) String() string {
	switch t {
	case TypeWSC:
		return "WSC"
	case TypeX6B20:
		return "X6B20"
	default:
		return "UNKNOWN"
	}
}

// CameraID and LaserID are the user-facing addressing the spec calls
// out in §3: CAMERA_A/B and LASER_1..8. Port is the device-internal
// index these ids translate to, which varies per variant.
type CameraID int
type LaserID int
type Port int

const Invalid Port = -1
const InvalidID = -1

const (
	CameraA CameraID = iota
	CameraB
)

const (
	Laser1 LaserID = iota
	Laser2
	Laser3
	Laser4
	Laser5
	Laser6
	Laser7
	Laser8
)

// ConfigGroup is a fixed (camera_port, laser_port) pairing the variant
// spec advertises as a legal scan pair.
type ConfigGroup struct {
	CameraPort Port
	LaserPort  Port
}

// Variant is the static specification of one device family: spec.md
// §3's "number of cameras, number of lasers, max cameras' columns and
// rows, min/max scan period, min/max laser-on time, a fixed list of
// configuration groups ... and a primary flag".
type Variant struct {
	Type Type

	NumCameras int
	NumLasers  int

	MaxColumns int
	MaxRows    int

	MinScanPeriodUS uint32
	MaxScanPeriodUS uint32

	MinLaserOnTimeUS uint32
	MaxLaserOnTimeUS uint32

	MaxScanPairs int

	// CameraIsPrimary is true when the camera, not the laser, is the
	// addressing axis for this variant (spec.md §3).
	CameraIsPrimary bool

	// UpstreamCameraPort names the camera port the static spec
	// designates "upstream" for deriving orientation from cable
	// orientation (spec.md §4.6 scan configuration).
	UpstreamCameraPort Port

	ConfigGroups []ConfigGroup

	cameraIDToPort map[CameraID]Port
	cameraPortToID map[Port]CameraID
	laserIDToPort  map[LaserID]Port
	laserPortToID  map[Port]LaserID
}

// CameraIDToPort converts a user-facing camera id to its device port,
// or Invalid if id is not valid for this variant.
func (v *Variant) CameraIDToPort(id CameraID) Port {
	if p, ok := v.cameraIDToPort[id]; ok {
		return p
	}
	return Invalid
}

// CameraPortToID is the inverse of CameraIDToPort.
func (v *Variant) CameraPortToID(p Port) CameraID {
	if id, ok := v.cameraPortToID[p]; ok {
		return id
	}
	return InvalidID
}

// LaserIDToPort converts a user-facing laser id to its device port.
func (v *Variant) LaserIDToPort(id LaserID) Port {
	if p, ok := v.laserIDToPort[id]; ok {
		return p
	}
	return Invalid
}

// LaserPortToID is the inverse of LaserIDToPort.
func (v *Variant) LaserPortToID(p Port) LaserID {
	if id, ok := v.laserPortToID[p]; ok {
		return id
	}
	return InvalidID
}

func newVariant(v Variant, cameraIDs []CameraID, laserIDs []LaserID) *Variant {
	v.cameraIDToPort = make(map[CameraID]Port, len(cameraIDs))
	v.cameraPortToID = make(map[Port]CameraID, len(cameraIDs))
	for i, id := range cameraIDs {
		v.cameraIDToPort[id] = Port(i)
		v.cameraPortToID[Port(i)] = id
	}
	v.laserIDToPort = make(map[LaserID]Port, len(laserIDs))
	v.laserPortToID = make(map[Port]LaserID, len(laserIDs))
	for i, id := range laserIDs {
		v.laserIDToPort[id] = Port(i)
		v.laserPortToID[Port(i)] = id
	}
	return &v
}

var registry = map[Type]*Variant{
	TypeWSC: newVariant(Variant{
		Type:               TypeWSC,
		NumCameras:         1,
		NumLasers:          1,
		MaxColumns:         1456,
		MaxRows:            1088,
		MinScanPeriodUS:    200,
		MaxScanPeriodUS:    100_000,
		MinLaserOnTimeUS:   15,
		MaxLaserOnTimeUS:   650,
		MaxScanPairs:       4,
		CameraIsPrimary:    true,
		UpstreamCameraPort: 0,
		ConfigGroups:       []ConfigGroup{{CameraPort: 0, LaserPort: 0}},
	}, []CameraID{CameraA}, []LaserID{Laser1}),

	TypeX6B20: newVariant(Variant{
		Type:               TypeX6B20,
		NumCameras:         2,
		NumLasers:          8,
		MaxColumns:         1456,
		MaxRows:            1088,
		MinScanPeriodUS:    200,
		MaxScanPeriodUS:    100_000,
		MinLaserOnTimeUS:   15,
		MaxLaserOnTimeUS:   650,
		MaxScanPairs:       16,
		CameraIsPrimary:    false,
		UpstreamCameraPort: 1,
		ConfigGroups: []ConfigGroup{
			{CameraPort: 1, LaserPort: 0}, {CameraPort: 0, LaserPort: 3},
			{CameraPort: 1, LaserPort: 1}, {CameraPort: 0, LaserPort: 4},
			{CameraPort: 1, LaserPort: 2}, {CameraPort: 0, LaserPort: 5},
		},
	}, []CameraID{CameraA, CameraB}, []LaserID{Laser1, Laser2, Laser3, Laser4, Laser5, Laser6, Laser7, Laser8}),
}

// Lookup returns the static Variant for t, or an error if t is unknown.
func Lookup(t Type) (*Variant, error) {
	v, ok := registry[t]
	if !ok {
		return nil, fmt.Errorf("specdata: unknown device type %v", t)
	}
	return v, nil
}
