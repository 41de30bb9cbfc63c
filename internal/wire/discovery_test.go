package wire

import (
	"testing"

	"github.com/banshee-data/scanhead/internal/fwver"
)

func TestClientDiscoverRoundTrip(t *testing.T) {
	c := ClientDiscover{APIVersion: fwver.APIVersion}
	got, err := DecodeClientDiscover(c.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got != c {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, c)
	}
}

// TestServerDiscoverRoundTrip exercises scenario S1 of spec.md §8.
func TestServerDiscoverRoundTrip(t *testing.T) {
	s := ServerDiscover{
		Serial:        12345,
		TypeCode:      1,
		Firmware:      fwver.Version{Major: 16, Minor: 3, Patch: 1},
		IP:            [4]byte{192, 168, 1, 50},
		LinkSpeedMbps: 1000,
		State:         0,
		TypeStr:       "WX",
	}
	got, err := DecodeServerDiscover(s.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got != s {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, s)
	}
}

func TestDecodeServerDiscoverShort(t *testing.T) {
	if _, err := DecodeServerDiscover(make([]byte, 4)); err == nil {
		t.Fatal("expected error for short buffer")
	}
}
