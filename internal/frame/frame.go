// Package frame implements the frame assembler of spec.md §4.8 (C8): it
// polls every session's buffer pool for readiness, then emits one
// sequence-aligned bundle per scheduled (head, camera, laser) pair,
// substituting invalid placeholders for pairs that missed the current
// frame sequence.
//
// Grounded on the teacher's polling-with-timeout helper (used by its
// own connection-readiness wait loop) generalized here to a multi-queue
// readiness check, since spec.md §5 rules out a condition variable
// across queues owned by independent producer goroutines.
package frame

import (
	"time"

	"github.com/banshee-data/scanhead/internal/pool"
	"github.com/banshee-data/scanhead/internal/timeutil"
)

// Session is the subset of *session.Session the assembler needs:
// its pool (to peek/drain per-pair ready queues) and the highest
// sequence number it has ever observed (for ClearFrames).
type Session interface {
	ID() uint32
	ScanHeadID() uint8
	Pool() *pool.Pool
	LastSequence() uint32
}

// Head is one scheduled session plus its scan pairs in emission order
// (spec.md §4.8: "iterated from the camera/laser-pair order specified
// by the head's static spec — reversed when the head's cable
// orientation is downstream"). Callers build Pairs in that order,
// reversing it themselves for a downstream head.
type Head struct {
	Session Session
	Pairs   []pool.Pair
}

// partialFrameThreshold is the ready-size at which the assembler
// declares a frame ready even though not every session has reached
// the current sequence (spec.md §4.8: "bound latency when some stream
// fell behind").
const partialFrameThreshold = 50

// Assembler is the frame assembler (C8). Not safe for concurrent
// GetFrame/WaitUntilFrameAvailable calls from more than one goroutine;
// spec.md §5 assigns it a single foreground consumer.
type Assembler struct {
	clock timeutil.Clock
	heads []Head

	currentFrameSequence uint32
	frameReady           bool
}

// New constructs an assembler over heads, sorted by session id
// (spec.md §4.8: "for each session in id order").
func New(heads []Head, clock timeutil.Clock) *Assembler {
	sorted := append([]Head(nil), heads...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Session.ID() < sorted[j-1].Session.ID(); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return &Assembler{clock: clock, heads: sorted, currentFrameSequence: 1}
}

// ProfilesPerFrame is the number of scheduled pairs across all heads,
// i.e. the slot count of a fully populated frame.
func (a *Assembler) ProfilesPerFrame() int {
	n := 0
	for _, h := range a.heads {
		n += len(h.Pairs)
	}
	return n
}

// ready reports whether the current frame sequence is emittable under
// either of spec.md §4.8's two readiness conditions.
func (a *Assembler) ready() bool {
	if len(a.heads) == 0 {
		return false
	}
	minSeqMax := uint32(0)
	maxSizeMax := 0
	first := true
	for _, h := range a.heads {
		report := h.Session.Pool().ReportReady()
		if first {
			minSeqMax = report.SequenceMax
			maxSizeMax = report.SizeMax
			first = false
			continue
		}
		if report.SequenceMax < minSeqMax {
			minSeqMax = report.SequenceMax
		}
		if report.SizeMax > maxSizeMax {
			maxSizeMax = report.SizeMax
		}
	}
	if minSeqMax >= a.currentFrameSequence {
		return true
	}
	return maxSizeMax >= partialFrameThreshold
}

// WaitUntilFrameAvailable polls every scan_period_us/4 for readiness,
// returning true once ready or false on timeout (spec.md §4.8). Sets
// the internal "frame ready" flag on success. GetFrame only clears
// that flag; it does not check readiness itself, so it assembles a
// frame whether or not one is ready.
func (a *Assembler) WaitUntilFrameAvailable(scanPeriodUS, timeoutUS int64) bool {
	if a.ready() {
		a.frameReady = true
		return true
	}

	pollInterval := time.Duration(scanPeriodUS/4) * time.Microsecond
	if pollInterval <= 0 {
		pollInterval = 250 * time.Microsecond
	}
	deadline := a.clock.Now().Add(time.Duration(timeoutUS) * time.Microsecond)
	for a.clock.Now().Before(deadline) {
		a.clock.Sleep(pollInterval)
		if a.ready() {
			a.frameReady = true
			return true
		}
	}
	return false
}

// GetFrame fills dst (sized ProfilesPerFrame) with the current frame's
// slots in head-id × pair-iteration order, returning the count of
// non-placeholder slots filled (spec.md §4.8).
func (a *Assembler) GetFrame(dst []pool.Profile) int {
	a.frameReady = false

	count := 0
	idx := 0
	seq := a.currentFrameSequence
	for _, h := range a.heads {
		p := h.Session.Pool()
		headID := h.Session.ScanHeadID()
		for _, pair := range h.Pairs {
			if idx >= len(dst) {
				break
			}
			slot := a.fillSlot(p, pair, seq, headID)
			dst[idx] = slot
			if slot.Format != pool.InvalidFormat {
				count++
			}
			idx++
		}
	}
	a.currentFrameSequence++
	return count
}

// fillSlot applies spec.md §4.8's peek/drop/emit rule for one pair.
func (a *Assembler) fillSlot(p *pool.Pool, pair pool.Pair, seq uint32, headID uint8) pool.Profile {
	q, err := p.Queue(pair)
	if err != nil {
		return placeholder(pair, seq, headID)
	}
	for {
		head, ok := q.Ready.Peek()
		if !ok || head.SequenceNumber > seq {
			return placeholder(pair, seq, headID)
		}
		if head.SequenceNumber < seq {
			dropped, _ := q.Ready.TryDequeue()
			q.Free.TryEnqueue(dropped)
			continue
		}
		emitted, _ := q.Ready.TryDequeue()
		result := *emitted
		q.Free.TryEnqueue(emitted)
		return result
	}
}

// placeholder builds the invalid slot spec.md §4.8 substitutes for a
// pair that missed the current frame sequence. scan_head_id is set the
// same as a real profile so two heads scheduled on the same
// (camera,laser) pair stay distinguishable in the bundle.
func placeholder(pair pool.Pair, seq uint32, headID uint8) pool.Profile {
	return pool.Profile{
		ScanHeadID:     headID,
		Camera:         pair.Camera,
		Laser:          pair.Laser,
		SequenceNumber: seq,
		DataLen:        0,
		Format:         pool.InvalidFormat,
	}
}

// ClearFrames snaps the current frame sequence past every session's
// highest observed sequence and drains every per-pair queue back to
// free (spec.md §4.8: "used when the caller falls far behind").
func (a *Assembler) ClearFrames() {
	var maxSeq uint32
	for i, h := range a.heads {
		last := h.Session.LastSequence()
		if i == 0 || last > maxSeq {
			maxSeq = last
		}
		h.Session.Pool().DrainReadyToFree()
	}
	a.currentFrameSequence = maxSeq + 1
	a.frameReady = false
}
