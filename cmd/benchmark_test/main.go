// Command benchmark_test connects to one or more scan heads in
// single-profile mode, runs them at a configurable period for a fixed
// duration, and reports each head's received and missing profile
// counts.
//
// Grounded on the debug-benchmark-test reference program. Its flags
// here are -t, -f, -p, -s and --status; there is no laser-on-time
// (-l) or scan-window (-w) flag. Missing sequence numbers are counted
// per head, not per (camera, laser) pair.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/scanhead/internal/discovery"
	"github.com/banshee-data/scanhead/internal/fwver"
	"github.com/banshee-data/scanhead/internal/netconnect"
	"github.com/banshee-data/scanhead/internal/pool"
	"github.com/banshee-data/scanhead/internal/scanerr"
	"github.com/banshee-data/scanhead/internal/session"
	"github.com/banshee-data/scanhead/internal/specdata"
	"github.com/banshee-data/scanhead/internal/system"
	"github.com/banshee-data/scanhead/internal/wire"
)

const defaultPoolSize = 64

// validFormats are the resolution names the reference tool accepts.
// Every accepted name scans at full resolution: system.StartScanning
// always sends stride 1 in the scan configuration, so half and
// quarter pass validation but change nothing. Other names are
// rejected.
var validFormats = map[string]bool{"full": true, "half": true, "quarter": true}

func main() {
	var (
		timeSec  = flag.Int("t", 10, "scan time in seconds")
		format   = flag.String("f", "full", "scan format: full, half, or quarter")
		periodUS = flag.Uint("p", 0, "scan period in microseconds (0: use the group minimum)")
		serials  = flag.String("s", "", "comma-separated scan head serial numbers (required)")
		status   = flag.Bool("status", false, "print per-second status while scanning")
	)
	flag.Parse()

	if *serials == "" {
		fmt.Fprintln(os.Stderr, "usage: benchmark_test -s SERIAL[,SERIAL...] [-t seconds] [-f full|half|quarter] [-p period_us] [--status]")
		os.Exit(1)
	}
	if !validFormats[*format] {
		fmt.Fprintf(os.Stderr, "unknown format %q: want full, half, or quarter\n", *format)
		os.Exit(1)
	}

	if err := run(strings.Split(*serials, ","), time.Duration(*timeSec)*time.Second, uint32(*periodUS), *status); err != nil {
		log.Printf("benchmark_test: %v", err)
		os.Exit(1)
	}
}

func run(serialArgs []string, duration time.Duration, periodUS uint32, status bool) error {
	sys := system.New(fwver.APIVersion, defaultPoolSize, netconnect.Connector{}, nil)

	if err := sys.Discover(); err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	discovered := sys.ScanHeadsDiscovered()

	for i, arg := range serialArgs {
		serial, err := strconv.ParseUint(strings.TrimSpace(arg), 10, 32)
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
	if periodUS == 0 {
		periodUS = compiled.TotalDurationUS + compiled.CameraEarlyOffsetUS
	}

	format := wire.DataTypeXY | wire.DataTypeBrightness
	if err := sys.StartScanning(ctx, periodUS, format, false); err != nil {
		return fmt.Errorf("start scanning: %w", err)
	}

	counters := newCounters(sys.Snapshot())
	done := make(chan struct{})
	go drain(sys, counters, done)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		<-ticker.C
		if status {
			counters.print()
		}
	}
	close(done)

	if err := sys.StopScanning(); err != nil {
		return fmt.Errorf("stop scanning: %w", err)
	}

	counters.print()
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

// headCounters tracks one head's received and missing profile counts
// in single mode, where there is exactly one shared pair queue.
type headCounters struct {
	id       uint32
	serial   uint32
	received int
	lastSeq  uint32
	haveSeq  bool
	missing  int
}

type counters struct {
	mu    sync.Mutex
	heads []*headCounters
}

func newCounters(snap []system.HeadSnapshot) *counters {
	c := &counters{}
	for _, h := range snap {
		c.heads = append(c.heads, &headCounters{id: h.ID, serial: h.Serial})
	}
	return c
}

func (c *counters) print() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.heads {
		fmt.Printf("head %d (serial %d): received=%d missing=%d\n", h.id, h.serial, h.received, h.missing)
	}
}

// drain polls each head's single-mode ready queue until done is
// closed, counting received profiles and sequence gaps.
func drain(sys *system.System, c *counters, done <-chan struct{}) {
	sessions := sessionsByID(sys)
	for {
		select {
		case <-done:
			return
		default:
		}
		c.mu.Lock()
		for _, hc := range c.heads {
			sess, ok := sessions[hc.id]
			if !ok {
				continue
			}
			q, err := sess.Pool().Queue(pool.Pair{})
			if err != nil {
				continue
			}
			for {
				p, ok := q.Ready.TryDequeue()
				if !ok {
					break
				}
				hc.received++
				if hc.haveSeq && p.SequenceNumber > hc.lastSeq+1 {
					hc.missing += int(p.SequenceNumber - hc.lastSeq - 1)
				}
				hc.lastSeq = p.SequenceNumber
				hc.haveSeq = true
				q.Free.TryEnqueue(p)
			}
		}
		c.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
}

// sessionsByID exposes the orchestrator's tracked sessions keyed by
// id, since the benchmark's drain loop needs direct pool access that
// the orchestrator's read-only Snapshot does not carry.
func sessionsByID(sys *system.System) map[uint32]*session.Session {
	return sys.Sessions()
}
