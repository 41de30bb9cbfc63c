package main

import (
	"testing"

	"github.com/banshee-data/scanhead/internal/discovery"
	"github.com/banshee-data/scanhead/internal/scanerr"
	"github.com/banshee-data/scanhead/internal/specdata"
	"github.com/banshee-data/scanhead/internal/system"
)

func TestLookupVariantFound(t *testing.T) {
	discovered := []discovery.Discovered{{Serial: 7, Type: uint16(specdata.TypeWSC)}}
	v, err := lookupVariant(7, discovered)
	if err != nil {
		t.Fatalf("lookupVariant: %v", err)
	}
	if v.Type != specdata.TypeWSC {
		t.Fatalf("got %v, want %v", v.Type, specdata.TypeWSC)
	}
}

func TestLookupVariantNotDiscovered(t *testing.T) {
	_, err := lookupVariant(7, nil)
	if scanerr.CodeOf(err) != scanerr.NotDiscovered {
		t.Fatalf("expected NotDiscovered, got %v", err)
	}
}

func TestValidFormats(t *testing.T) {
	for _, f := range []string{"full", "half", "quarter"} {
		if !validFormats[f] {
			t.Errorf("expected %q to be a valid format", f)
		}
	}
	if validFormats["bogus"] {
		t.Error("expected bogus format to be rejected")
	}
}

func TestCountersPrintDoesNotPanicOnEmpty(t *testing.T) {
	c := newCounters(nil)
	c.print()
}

func TestNewCountersFromSnapshot(t *testing.T) {
	snap := []system.HeadSnapshot{{ID: 1, Serial: 100}, {ID: 2, Serial: 200}}
	c := newCounters(snap)
	if len(c.heads) != 2 {
		t.Fatalf("got %d head counters, want 2", len(c.heads))
	}
	if c.heads[0].serial != 100 || c.heads[1].serial != 200 {
		t.Fatalf("head counters not seeded from snapshot: %+v", c.heads)
	}
}
