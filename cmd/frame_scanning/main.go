// Command frame_scanning connects to one or more scan heads, starts
// frame-mode scanning at the fastest period the set supports, and
// counts frames and profiles for a fixed scan window.
//
// Grounded on the 04-frame-scanning reference program: create heads,
// connect, compute the group's minimum scan period, start frame
// scanning, drain frames in the main loop for ten seconds, stop,
// report totals.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/banshee-data/scanhead/internal/discovery"
	"github.com/banshee-data/scanhead/internal/frame"
	"github.com/banshee-data/scanhead/internal/fwver"
	"github.com/banshee-data/scanhead/internal/netconnect"
	"github.com/banshee-data/scanhead/internal/pool"
	"github.com/banshee-data/scanhead/internal/scanerr"
	"github.com/banshee-data/scanhead/internal/specdata"
	"github.com/banshee-data/scanhead/internal/system"
	"github.com/banshee-data/scanhead/internal/timeutil"
	"github.com/banshee-data/scanhead/internal/wire"
)

const (
	defaultPoolSize = 64
	connectTimeout  = 10 * time.Second
	scanDuration    = 10 * time.Second
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s SERIAL [SERIAL...]\n", os.Args[0])
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(flag.Args()); err != nil {
		log.Printf("frame_scanning: %v", err)
		os.Exit(1)
	}
}

func run(args []string) error {
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

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := sys.Connect(ctx, connectTimeout); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sys.Disconnect()

	compiled, ok := sys.CompiledPhaseTable()
	if !ok {
		return scanerr.New(scanerr.Internal, "phase table never compiled")
	}
	minPeriodUS := compiled.TotalDurationUS + compiled.CameraEarlyOffsetUS
	log.Printf("frame_scanning: min scan period %d us across %d head(s)", minPeriodUS, len(args))

	if err := sys.StartScanning(ctx, minPeriodUS, wire.DataTypeXY|wire.DataTypeBrightness, true); err != nil {
		return fmt.Errorf("start scanning: %w", err)
	}

	assembler := frame.New(sys.FrameHeads(), timeutil.RealClock{})
	dst := make([]pool.Profile, assembler.ProfilesPerFrame())

	var frames, profiles, invalid int
	deadline := time.Now().Add(scanDuration)
	for time.Now().Before(deadline) {
		if !assembler.WaitUntilFrameAvailable(int64(minPeriodUS), 1_000_000) {
			continue
		}
		n := assembler.GetFrame(dst)
		frames++
		profiles += n
		invalid += len(dst) - n
	}

	if err := sys.StopScanning(); err != nil {
		return fmt.Errorf("stop scanning: %w", err)
	}

	fmt.Printf("frames received:   %d\n", frames)
	fmt.Printf("profiles received: %d\n", profiles)
	fmt.Printf("invalid profiles:  %d\n", invalid)
	return nil
}

// lookupVariant finds serial's advertised type among discovered and
// resolves it to the device family's static spec.
func lookupVariant(serial uint32, discovered []discovery.Discovered) (*specdata.Variant, error) {
	for _, d := range discovered {
		if d.Serial == serial {
			return specdata.Lookup(specdata.Type(d.Type))
		}
	}
	return nil, scanerr.New(scanerr.NotDiscovered, "serial %d not found on any interface", serial)
}
