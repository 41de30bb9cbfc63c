// Package phase implements the phase table scheduler of spec.md §4.5
// (C5): incremental construction of an ordered list of phases, each
// an ordered list of (head,camera,laser) elements, compiled into
// per-phase durations that respect per-camera readout constraints and
// a global minimum element duration.
//
// Grounded on the teacher's two-pass accumulator style used to close
// cyclic scheduling constraints (internal/lidar's frame-rate
// reconciliation loop), generalized here to an arbitrary head/camera
// topology. Duration arithmetic over phase slices uses
// gonum.org/v1/gonum/floats in place of hand-rolled reduction loops,
// matching the teacher's use of gonum elsewhere in this module for
// numeric aggregation.
package phase

import (
	"math"

	"github.com/banshee-data/scanhead/internal/scanerr"
	"github.com/banshee-data/scanhead/internal/specdata"
	"gonum.org/v1/gonum/floats"
)

// HeadID identifies a scan head within a phase table. Callers use
// whatever stable identifier their session layer assigns (serial or
// session id); the phase package only uses it as a map key.
type HeadID uint32

// HeadInfo answers the per-head static questions the compiler needs:
// its advertised minimum scan period, its maximum element (scan pair)
// count, and the factory-default laser-on-time ceiling for a
// (camera,laser) pair when an element did not override it at
// insertion time.
type HeadInfo interface {
	MinScanPeriodUS(head HeadID) (uint32, error)
	MaxElements(head HeadID) (int, error)
	DefaultLaserOnTimeMaxUS(head HeadID, camera, laser specdata.Port) (uint32, error)
}

// ElementConfig overrides the default laser-on-time ceiling for one
// element at insertion time (spec.md §4.5: "cfg?").
type ElementConfig struct {
	LaserOnTimeMaxUS uint32
}

// Element is one (head, camera, laser) scan pair within a phase.
type Element struct {
	Head   HeadID
	Camera specdata.Port
	Laser  specdata.Port

	// Cfg is nil when the element did not override the head's
	// default laser-on-time ceiling at insertion time.
	Cfg *ElementConfig
}

// Phase is an ordered list of elements that fire together.
type Phase struct {
	Elements []Element
}

// Table is the incrementally constructed phase table (spec.md §4.5:
// "Construction is incremental: CreatePhase, then AddToLast").
type Table struct {
	heads HeadInfo

	Phases               []Phase
	HasDuplicateElements bool

	headTotalCount map[HeadID]int
	seenTuple      map[tuple]bool
}

type tuple struct {
	head   HeadID
	camera specdata.Port
	laser  specdata.Port
}

// NewTable constructs an empty table that consults heads for
// per-head limits and defaults during construction and compilation.
func NewTable(heads HeadInfo) *Table {
	return &Table{
		heads:          heads,
		headTotalCount: make(map[HeadID]int),
		seenTuple:      make(map[tuple]bool),
	}
}

// CreatePhase appends a new empty phase, which becomes the target of
// subsequent AddToLast calls.
func (t *Table) CreatePhase() {
	t.Phases = append(t.Phases, Phase{})
}

// AddToLast adds one element to the most recently created phase
// (spec.md §4.5). It rejects adding a (camera,laser) pair already
// present in the same phase, and enforces the head's maximum element
// count. Adding the same (head,camera,laser) tuple across two
// different phases is allowed but sets HasDuplicateElements, which
// frame scanning later refuses.
func (t *Table) AddToLast(head HeadID, camera, laser specdata.Port, cfg *ElementConfig) error {
	if len(t.Phases) == 0 {
		return scanerr.New(scanerr.InvalidArgument, "AddToLast called before CreatePhase")
	}
	last := &t.Phases[len(t.Phases)-1]

	for _, el := range last.Elements {
		if el.Head == head && el.Camera == camera && el.Laser == laser {
			return scanerr.New(scanerr.AlreadyExists, "pair (head=%d camera=%d laser=%d) already present in this phase", head, camera, laser)
		}
	}

	maxElements, err := t.heads.MaxElements(head)
	if err != nil {
		return err
	}
	if t.headTotalCount[head] >= maxElements {
		return scanerr.New(scanerr.NoMoreRoom, "head %d already has its maximum %d scan pairs", head, maxElements)
	}

	key := tuple{head, camera, laser}
	if t.seenTuple[key] {
		t.HasDuplicateElements = true
	}
	t.seenTuple[key] = true

	last.Elements = append(last.Elements, Element{Head: head, Camera: camera, Laser: laser, Cfg: cfg})
	t.headTotalCount[head]++
	return nil
}

// frameOverheadTimeUS is the fixed per-use camera readout overhead
// (spec.md §4.5: "⌈3.210 µs × (4 + 42 + 3)⌉ = 158 µs").
var frameOverheadTimeUS = uint32(math.Ceil(3.210 * (4 + 42 + 3)))

// cameraEarlyOffsetUS is the fixed lead time cameras begin exposing
// before their laser fires (spec.md §4.5: "⌈9.5 µs⌉ = 10 µs").
var cameraEarlyOffsetUS = uint32(math.Ceil(9.5))

// minElementDurationUS is the per-element floor enforced in step 4 of
// compilation (spec.md §4.5, §8 invariant 4: "250 µs").
const minElementDurationUS = 250

// CompiledPhase is one phase annotated with its compiled duration.
type CompiledPhase struct {
	Elements   []Element
	DurationUS uint32
}

// CompiledTable is the output of CalculatePhaseTable.
type CompiledTable struct {
	Phases              []CompiledPhase
	TotalDurationUS     uint32
	CameraEarlyOffsetUS uint32
}

type headCamera struct {
	head   HeadID
	camera specdata.Port
}

// CalculatePhaseTable compiles the table per spec.md §4.5's
// four-step algorithm.
func (t *Table) CalculatePhaseTable() (*CompiledTable, error) {
	if len(t.Phases) == 0 {
		return nil, scanerr.New(scanerr.PhaseTableEmpty, "phase table has no phases")
	}

	compiled := make([]CompiledPhase, len(t.Phases))
	for i, p := range t.Phases {
		dur, err := t.initialDuration(p)
		if err != nil {
			return nil, err
		}
		compiled[i] = CompiledPhase{Elements: p.Elements, DurationUS: dur}
	}

	acc := make(map[headCamera]uint32)
	seen := make(map[headCamera]bool)

	for pass := 0; pass < 2; pass++ {
		for i := range compiled {
			ph := &compiled[i]

			for k := range acc {
				acc[k] += ph.DurationUS
			}

			var extension uint32
			for _, el := range ph.Elements {
				key := headCamera{el.Head, el.Camera}
				if !seen[key] {
					continue
				}
				required, err := t.requiredGap(el)
				if err != nil {
					return nil, err
				}
				if acc[key] < required {
					if short := required - acc[key]; short > extension {
						extension = short
					}
				}
			}

			if extension > 0 {
				ph.DurationUS += extension
				for k := range acc {
					acc[k] += extension
				}
			}

			for _, el := range ph.Elements {
				key := headCamera{el.Head, el.Camera}
				acc[key] = 0
				seen[key] = true
			}
		}
	}

	durations := make([]float64, len(compiled))
	for i, ph := range compiled {
		durations[i] = float64(ph.DurationUS)
	}
	total := uint32(math.Round(floats.Sum(durations)))

	maxElements := 0
	for _, n := range t.headTotalCount {
		if n > maxElements {
			maxElements = n
		}
	}
	floor := uint32(maxElements) * minElementDurationUS
	if total+cameraEarlyOffsetUS < floor {
		deficit := floor - (total + cameraEarlyOffsetUS)
		perPhase := uint32(math.Ceil(float64(deficit) / float64(len(compiled))))
		for i := range compiled {
			compiled[i].DurationUS += perPhase
		}
		durations = durations[:0]
		for _, ph := range compiled {
			durations = append(durations, float64(ph.DurationUS))
		}
		total = uint32(math.Round(floats.Sum(durations)))
	}

	return &CompiledTable{
		Phases:              compiled,
		TotalDurationUS:     total,
		CameraEarlyOffsetUS: cameraEarlyOffsetUS,
	}, nil
}

// initialDuration is step 1: the max over a phase's elements of the
// effective laser_on_time_max_us, pulling a fresh head default for
// elements that did not override it at insertion time.
func (t *Table) initialDuration(p Phase) (uint32, error) {
	if len(p.Elements) == 0 {
		return 0, scanerr.New(scanerr.InvalidArgument, "phase has no elements")
	}
	vals := make([]float64, len(p.Elements))
	for i, el := range p.Elements {
		ms, err := t.effectiveLaserOnMax(el)
		if err != nil {
			return 0, err
		}
		vals[i] = float64(ms)
	}
	return uint32(floats.Max(vals)), nil
}

func (t *Table) effectiveLaserOnMax(el Element) (uint32, error) {
	if el.Cfg != nil {
		return el.Cfg.LaserOnTimeMaxUS, nil
	}
	return t.heads.DefaultLaserOnTimeMaxUS(el.Head, el.Camera, el.Laser)
}

// requiredGap is the minimum permissible time_since_seen for reusing
// a (head,camera) pair (spec.md §4.5 step 2).
func (t *Table) requiredGap(el Element) (uint32, error) {
	minPeriod, err := t.heads.MinScanPeriodUS(el.Head)
	if err != nil {
		return 0, err
	}
	laserOnMax, err := t.effectiveLaserOnMax(el)
	if err != nil {
		return 0, err
	}
	gap := frameOverheadTimeUS + laserOnMax
	if minPeriod > gap {
		return minPeriod, nil
	}
	return gap, nil
}
