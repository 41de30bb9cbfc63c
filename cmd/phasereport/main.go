// Command phasereport connects to one or more scan heads, compiles
// their phase table, and renders it as a static Gantt-style PNG: one
// row per head, one horizontal bar per phase spanning its slice of
// the scan period.
//
// Grounded on the teacher's internal/lidar/monitor/gridplotter.go
// plot.New/plotter.NewLine/Legend/Save idiom, reused here for
// horizontal segments instead of time series.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"strconv"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/scanhead/internal/discovery"
	"github.com/banshee-data/scanhead/internal/fwver"
	"github.com/banshee-data/scanhead/internal/netconnect"
	"github.com/banshee-data/scanhead/internal/phase"
	"github.com/banshee-data/scanhead/internal/scanerr"
	"github.com/banshee-data/scanhead/internal/specdata"
	"github.com/banshee-data/scanhead/internal/system"
)

const defaultPoolSize = 64

func main() {
	out := flag.String("o", "phasetable.png", "output PNG path")
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: %s [-o out.png] SERIAL [SERIAL...]\n", os.Args[0])
		os.Exit(1)
	}

	if err := run(flag.Args(), *out); err != nil {
		log.Printf("phasereport: %v", err)
		os.Exit(1)
	}
}

func run(args []string, outPath string) error {
	sys := system.New(fwver.APIVersion, defaultPoolSize, netconnect.Connector{}, nil)

	if err := sys.Discover(); err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	discovered := sys.ScanHeadsDiscovered()

	for i, arg := range args {
		serial, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid serial %q: %w", arg, err)
		}
		variant, err := lookupVariant(uint32(serial), discovered)
		if err != nil {
			return err
		}
		if err := sys.CreateScanHead(uint32(serial), uint32(i+1), variant); err != nil {
			return fmt.Errorf("create scan head %d: %w", serial, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sys.Connect(ctx, 10*time.Second); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sys.Disconnect()

	compiled, ok := sys.CompiledPhaseTable()
	if !ok {
		return scanerr.New(scanerr.Internal, "phase table never compiled")
	}

	return renderGantt(compiled, outPath)
}

func lookupVariant(serial uint32, discovered []discovery.Discovered) (*specdata.Variant, error) {
	for _, d := range discovered {
		if d.Serial == serial {
			return specdata.Lookup(specdata.Type(d.Type))
		}
	}
	return nil, scanerr.New(scanerr.NotDiscovered, "serial %d not found on any interface", serial)
}

// renderGantt plots one horizontal bar per (phase, head) occupancy:
// the phase's time slice on the X axis, the head's id on the Y axis.
// Distinct heads get distinct colors; a phase with elements from more
// than one head draws one overlapping segment per head.
func renderGantt(compiled *phase.CompiledTable, outPath string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("phase table (total=%d us, camera_early_offset=%d us)",
		compiled.TotalDurationUS, compiled.CameraEarlyOffsetUS)
	p.X.Label.Text = "time (us)"
	p.Y.Label.Text = "head id"

	colors := palette()
	legended := make(map[phase.HeadID]bool)

	var offset uint32
	for _, ph := range compiled.Phases {
		heads := make(map[phase.HeadID]bool)
		for _, el := range ph.Elements {
			heads[el.Head] = true
		}
		for head := range heads {
			y := float64(head)
			seg := plotter.XYs{
				{X: float64(offset), Y: y},
				{X: float64(offset + ph.DurationUS), Y: y},
			}
			line, err := plotter.NewLine(seg)
			if err != nil {
				return fmt.Errorf("build phase segment: %w", err)
			}
			line.Color = colors[int(head)%len(colors)]
			line.Width = vg.Points(8)
			p.Add(line)
			if !legended[head] {
				p.Legend.Add(fmt.Sprintf("head %d", head), line)
				legended[head] = true
			}
		}
		offset += ph.DurationUS
	}

	p.Legend.Top = true
	if err := p.Save(14*vg.Inch, 6*vg.Inch, outPath); err != nil {
		return fmt.Errorf("save phase table plot: %w", err)
	}
	return nil
}

func palette() []color.Color {
	return []color.Color{
		color.RGBA{R: 0xd6, G: 0x2d, B: 0x20, A: 0xff},
		color.RGBA{R: 0x20, G: 0x6d, B: 0xd6, A: 0xff},
		color.RGBA{R: 0x2d, G: 0xa0, B: 0x4a, A: 0xff},
		color.RGBA{R: 0xd6, G: 0xa0, B: 0x20, A: 0xff},
		color.RGBA{R: 0x8e, G: 0x2d, B: 0xd6, A: 0xff},
	}
}
