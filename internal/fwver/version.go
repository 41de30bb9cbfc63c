// Package fwver represents the scan head firmware version triple and
// the comparisons the rest of the runtime gates behavior on (Connect's
// major-version check, encoder assignment's 16.3.0 floor, and so on).
//
// Adapted from the teacher's internal/version package, which only
// tracked the client build's own version string; here the same
// {major, minor, patch} shape instead describes the remote device's
// advertised firmware, which every scan head reports during Connect.
package fwver

import "fmt"

// Version is a firmware version triple.
type Version struct {
	Major uint16
	Minor uint16
	Patch uint16
}

// String renders "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater
// than other, ordering lexicographically by (major, minor, patch).
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return cmp(v.Major, other.Major)
	case v.Minor != other.Minor:
		return cmp(v.Minor, other.Minor)
	default:
		return cmp(v.Patch, other.Patch)
	}
}

// AtLeast reports whether v >= other.
func (v Version) AtLeast(other Version) bool {
	return v.Compare(other) >= 0
}

// SameMajor reports whether v and other share a major version, the
// check spec.md §4.6 Connect performs against the API version.
func (v Version) SameMajor(other Version) bool {
	return v.Major == other.Major
}

func cmp(a, b uint16) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// MinEncoderAssignmentVersion is the firmware floor spec.md §4.6/§4.7
// requires before SetScanSyncEncoder messages are honored rather than
// silently skipped.
var MinEncoderAssignmentVersion = Version{Major: 16, Minor: 3, Patch: 0}

// APIVersion is the client API version triple this runtime advertises
// during discovery probes and the Connect handshake.
var APIVersion = Version{Major: 16, Minor: 3, Patch: 1}
