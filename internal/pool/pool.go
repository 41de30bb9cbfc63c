// Package pool implements the per-head buffer pool and per-pair SPSC
// ring queues of spec.md §4.4 (C4): a fixed-size preallocated array
// of raw profile records, partitioned across (camera,laser) pairs in
// multi mode or shared whole in single mode, with non-blocking
// try-enqueue/dequeue rings for the free and ready halves.
//
// Grounded on the teacher's buffer-reuse discipline in its extractor
// pipeline (preallocated point slices, consumer returns them to a free
// list) generalized here to an explicit SPSC ring rather than a
// slice-capacity trick, since spec.md §5 calls for exactly one
// producer and one consumer per queue with no mutex on the hot path.
package pool

import (
	"github.com/banshee-data/scanhead/internal/scanerr"
	"github.com/banshee-data/scanhead/internal/specdata"
)

// Profile is the raw profile record spec.md §3 defines, shared
// between the receive task (producer) and foreground/frame consumers.
type Profile struct {
	ScanHeadID       uint8
	Camera           specdata.Port
	Laser            specdata.Port
	SequenceNumber   uint32
	TimestampNS      uint64
	Flags            uint8
	LaserOnTimeUS    uint16
	Format           uint16
	PacketsExpected  uint32
	PacketsReceived  uint32
	Encoders         [3]int64
	NumEncoderValues int
	Data             []Point
	DataLen          int
	DataValidXY      bool
	DataValidBright  bool
}

// Point mirrors wire.Point to keep the pool package free of a wire
// import; the receive task converts between the two.
type Point struct {
	X, Y       int32
	Brightness uint16
}

// InvalidFormat marks a placeholder profile slot (spec.md §4.8).
const InvalidFormat uint16 = 0

// Ring is a fixed-capacity single-producer single-consumer circular
// buffer of *Profile slots, used for both the free and ready halves
// of a pair's queue pair.
type Ring struct {
	slots []*Profile
	head  int // consumer reads here
	tail  int // producer writes here
	size  int

	maxSeenSequence uint32
}

// NewRing allocates a ring of the given capacity.
func NewRing(capacity int) *Ring {
	return &Ring{slots: make([]*Profile, capacity)}
}

// TryEnqueue attempts a non-blocking push; returns false if full
// (spec.md §4.4: "the producer ... drops profiles when free is
// empty").
func (r *Ring) TryEnqueue(p *Profile) bool {
	if r.size == len(r.slots) {
		return false
	}
	r.slots[r.tail] = p
	r.tail = (r.tail + 1) % len(r.slots)
	r.size++
	if p != nil && p.SequenceNumber > r.maxSeenSequence {
		r.maxSeenSequence = p.SequenceNumber
	}
	return true
}

// TryDequeue attempts a non-blocking pop; returns (nil, false) if
// empty.
func (r *Ring) TryDequeue() (*Profile, bool) {
	if r.size == 0 {
		return nil, false
	}
	p := r.slots[r.head]
	r.slots[r.head] = nil
	r.head = (r.head + 1) % len(r.slots)
	r.size--
	return p, true
}

// Peek returns the head slot without removing it.
func (r *Ring) Peek() (*Profile, bool) {
	if r.size == 0 {
		return nil, false
	}
	return r.slots[r.head], true
}

// Len reports the number of queued slots.
func (r *Ring) Len() int { return r.size }

// Cap reports the ring's fixed capacity.
func (r *Ring) Cap() int { return len(r.slots) }

// MaxSequence returns the highest sequence number enqueued on this
// ring's ready side so far (spec.md §4.4: "tracks the highest
// sequence number seen on its ready side").
func (r *Ring) MaxSequence() uint32 { return r.maxSeenSequence }

// Mode selects single-head direct consumption vs per-pair frame
// scanning (spec.md §4.4).
type Mode int

const (
	ModeSingle Mode = iota
	ModeMulti
)

// Pair identifies one scheduled (camera, laser) pair within a pool.
type Pair struct {
	Camera specdata.Port
	Laser  specdata.Port
}

// Queues is one pair's (free, ready) ring pair.
type Queues struct {
	Free  *Ring
	Ready *Ring
}

// Pool is the per-head preallocated profile record array plus its
// queue set, which is reshaped by Reset between single and multi mode.
type Pool struct {
	size    int
	storage []Profile

	mode   Mode
	single Queues
	multi  map[Pair]*Queues
	pairs  []Pair
}

// New allocates a Pool of size preallocated profile records. The pool
// starts unconfigured; call Reset to select a mode before use.
func New(size int) *Pool {
	return &Pool{size: size, storage: make([]Profile, size)}
}

// Reset drains every existing queue and republishes all pool slots
// into the appropriate free queue(s) for the given mode (spec.md
// §4.4). In multi mode, slots are partitioned evenly across pairs
// (pool_size / #pairs each); any remainder is distributed to the
// first pairs.
func (p *Pool) Reset(mode Mode, pairs []Pair) error {
	if mode == ModeMulti && len(pairs) == 0 {
		return scanerr.New(scanerr.InvalidArgument, "multi-mode reset requires at least one pair")
	}

	p.mode = mode
	p.pairs = append([]Pair(nil), pairs...)

	for i := range p.storage {
		p.storage[i] = Profile{}
	}

	switch mode {
	case ModeSingle:
		p.single = Queues{Free: NewRing(p.size), Ready: NewRing(p.size)}
		p.multi = nil
		for i := range p.storage {
			p.single.Free.TryEnqueue(&p.storage[i])
		}
	case ModeMulti:
		p.multi = make(map[Pair]*Queues, len(pairs))
		perPair := p.size / len(pairs)
		extra := p.size % len(pairs)
		if perPair == 0 {
			perPair, extra = 1, 0
		}
		idx := 0
		for i, pair := range pairs {
			n := perPair
			if i < extra {
				n++
			}
			q := &Queues{Free: NewRing(n), Ready: NewRing(n)}
			for j := 0; j < n && idx < len(p.storage); j++ {
				q.Free.TryEnqueue(&p.storage[idx])
				idx++
			}
			p.multi[pair] = q
		}
	default:
		return scanerr.New(scanerr.InvalidArgument, "unknown pool mode %v", mode)
	}
	return nil
}

// Queue returns the (free, ready) pair for the given scan pair in
// multi mode, or the single shared pair when pair is the zero value
// and the pool is in single mode.
func (p *Pool) Queue(pair Pair) (*Queues, error) {
	switch p.mode {
	case ModeSingle:
		return &p.single, nil
	case ModeMulti:
		q, ok := p.multi[pair]
		if !ok {
			return nil, scanerr.New(scanerr.InvalidArgument, "pair %+v not in scheduled set", pair)
		}
		return q, nil
	default:
		return nil, scanerr.New(scanerr.Internal, "pool not reset before use")
	}
}

// Report summarizes queue depth and sequence range across the
// configured valid pair set (spec.md §4.4: "returns (size_min,
// size_max, sequence_min, sequence_max)").
type Report struct {
	SizeMin, SizeMax         int
	SequenceMin, SequenceMax uint32
}

// ReportReady computes a Report over all ready queues currently
// configured, used by the frame assembler's readiness check.
func (p *Pool) ReportReady() Report {
	var r Report
	first := true
	queues := p.readyQueues()
	for _, q := range queues {
		size := q.Len()
		seq := q.maxSeenSequence
		if first {
			r.SizeMin, r.SizeMax = size, size
			r.SequenceMin, r.SequenceMax = seq, seq
			first = false
			continue
		}
		if size < r.SizeMin {
			r.SizeMin = size
		}
		if size > r.SizeMax {
			r.SizeMax = size
		}
		if seq < r.SequenceMin {
			r.SequenceMin = seq
		}
		if seq > r.SequenceMax {
			r.SequenceMax = seq
		}
	}
	return r
}

func (p *Pool) readyQueues() []*Ring {
	out := make([]*Ring, 0, len(p.allQueues()))
	for _, q := range p.allQueues() {
		out = append(out, q.Ready)
	}
	return out
}

func (p *Pool) allQueues() []*Queues {
	switch p.mode {
	case ModeSingle:
		return []*Queues{&p.single}
	case ModeMulti:
		out := make([]*Queues, 0, len(p.pairs))
		for _, pair := range p.pairs {
			out = append(out, p.multi[pair])
		}
		return out
	default:
		return nil
	}
}

// DrainReadyToFree empties every ready queue back into its matching
// free queue (spec.md §4.8 ClearFrames: "resets all per-pair queues").
func (p *Pool) DrainReadyToFree() {
	for _, q := range p.allQueues() {
		for {
			v, ok := q.Ready.TryDequeue()
			if !ok {
				break
			}
			if !q.Free.TryEnqueue(v) {
				break
			}
		}
	}
}

// Conservation returns free+ready+in-flight counts for a conservation
// check (spec.md invariant 10: "#free + #ready + #in-flight ==
// pool_size"). In-flight is whatever is neither free nor ready —
// slots currently borrowed by a consumer that has not yet returned
// them.
func (p *Pool) Conservation() (free, ready, inFlight int) {
	switch p.mode {
	case ModeSingle:
		free = p.single.Free.Len()
		ready = p.single.Ready.Len()
	case ModeMulti:
		for _, pair := range p.pairs {
			q := p.multi[pair]
			free += q.Free.Len()
			ready += q.Ready.Len()
		}
	}
	inFlight = p.size - free - ready
	return
}
