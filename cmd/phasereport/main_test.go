package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/scanhead/internal/discovery"
	"github.com/banshee-data/scanhead/internal/phase"
	"github.com/banshee-data/scanhead/internal/scanerr"
	"github.com/banshee-data/scanhead/internal/specdata"
)

func TestLookupVariantFound(t *testing.T) {
	discovered := []discovery.Discovered{{Serial: 5, Type: uint16(specdata.TypeX6B20)}}
	v, err := lookupVariant(5, discovered)
	if err != nil {
		t.Fatalf("lookupVariant: %v", err)
	}
	if v.Type != specdata.TypeX6B20 {
		t.Fatalf("got %v, want %v", v.Type, specdata.TypeX6B20)
	}
}

func TestLookupVariantNotDiscovered(t *testing.T) {
	_, err := lookupVariant(5, nil)
	if scanerr.CodeOf(err) != scanerr.NotDiscovered {
		t.Fatalf("expected NotDiscovered, got %v", err)
	}
}

func TestRenderGanttWritesFile(t *testing.T) {
	compiled := &phase.CompiledTable{
		Phases: []phase.CompiledPhase{
			{Elements: []phase.Element{{Head: 1, Camera: 0, Laser: 0}}, DurationUS: 500},
			{Elements: []phase.Element{{Head: 2, Camera: 0, Laser: 0}}, DurationUS: 750},
		},
		TotalDurationUS:     1250,
		CameraEarlyOffsetUS: 100,
	}

	out := filepath.Join(t.TempDir(), "phasetable.png")
	if err := renderGantt(compiled, out); err != nil {
		t.Fatalf("renderGantt: %v", err)
	}
	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("expected non-empty PNG output")
	}
}
