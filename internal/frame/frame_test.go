package frame

import (
	"testing"

	"github.com/banshee-data/scanhead/internal/pool"
	"github.com/banshee-data/scanhead/internal/specdata"
	"github.com/banshee-data/scanhead/internal/timeutil"
)

var onePair = pool.Pair{Camera: specdata.Port(0), Laser: specdata.Port(0)}

// fakeSession is a frame.Session test double backed by a single-mode
// pool, fed directly via feed().
type fakeSession struct {
	id   uint32
	pool *pool.Pool
	last uint32
}

func (f *fakeSession) ID() uint32           { return f.id }
func (f *fakeSession) ScanHeadID() uint8    { return uint8(f.id) }
func (f *fakeSession) Pool() *pool.Pool     { return f.pool }
func (f *fakeSession) LastSequence() uint32 { return f.last }

func newFakeSession(t *testing.T, id uint32, capacity int) *fakeSession {
	t.Helper()
	p := pool.New(capacity)
	if err := p.Reset(pool.ModeSingle, nil); err != nil {
		t.Fatal(err)
	}
	return &fakeSession{id: id, pool: p}
}

// feed enqueues a profile with the given sequence number directly into
// the session's single-mode ready queue, bypassing the network path.
func (f *fakeSession) feed(t *testing.T, seq uint32) {
	t.Helper()
	q, err := f.pool.Queue(pool.Pair{})
	if err != nil {
		t.Fatal(err)
	}
	raw, ok := q.Free.TryDequeue()
	if !ok {
		t.Fatal("free queue exhausted in test fixture")
	}
	raw.SequenceNumber = seq
	raw.Format = 1
	if !q.Ready.TryEnqueue(raw) {
		t.Fatal("ready queue full in test fixture")
	}
	if seq > f.last {
		f.last = seq
	}
}

func headFor(s *fakeSession) Head {
	return Head{Session: s, Pairs: []pool.Pair{{}}}
}

// TestFrameAssemblyScenarioS4 exercises spec.md §8 scenario S4: three
// heads, one pair each; head B drops sequence 2.
func TestFrameAssemblyScenarioS4(t *testing.T) {
	a := newFakeSession(t, 1, 8)
	b := newFakeSession(t, 2, 8)
	c := newFakeSession(t, 3, 8)
	for _, seq := range []uint32{1, 2, 3} {
		a.feed(t, seq)
	}
	b.feed(t, 1)
	b.feed(t, 3)
	for _, seq := range []uint32{1, 2, 3} {
		c.feed(t, seq)
	}

	asm := New([]Head{headFor(a), headFor(b), headFor(c)}, timeutil.RealClock{})
	dst := make([]pool.Profile, asm.ProfilesPerFrame())

	if count := asm.GetFrame(dst); count != 3 {
		t.Fatalf("frame 1: count = %d, want 3", count)
	}

	count := asm.GetFrame(dst)
	if count != 2 {
		t.Fatalf("frame 2: count = %d, want 2", count)
	}
	if dst[1].Format != pool.InvalidFormat {
		t.Fatalf("frame 2: head B slot should be invalid placeholder, got %+v", dst[1])
	}

	if count := asm.GetFrame(dst); count != 3 {
		t.Fatalf("frame 3: count = %d, want 3", count)
	}
}

// TestLateProfileDropScenarioS5 exercises spec.md §8 scenario S5: a
// single pair receiving sequences 1,3,2 in that arrival order.
func TestLateProfileDropScenarioS5(t *testing.T) {
	a := newFakeSession(t, 1, 8)
	a.feed(t, 1)
	a.feed(t, 3)
	a.feed(t, 2)

	asm := New([]Head{headFor(a)}, timeutil.RealClock{})
	dst := make([]pool.Profile, asm.ProfilesPerFrame())

	if count := asm.GetFrame(dst); count != 1 || dst[0].SequenceNumber != 1 {
		t.Fatalf("frame 1 = count %d seq %d, want count 1 seq 1", count, dst[0].SequenceNumber)
	}

	count := asm.GetFrame(dst)
	if count != 0 || dst[0].Format != pool.InvalidFormat {
		t.Fatalf("frame 2: expected invalid placeholder, got count=%d %+v", count, dst[0])
	}

	if count := asm.GetFrame(dst); count != 1 || dst[0].SequenceNumber != 3 {
		t.Fatalf("frame 3 = count %d seq %d, want count 1 seq 3", count, dst[0].SequenceNumber)
	}
}

// TestFrameCompletenessInvariant exercises spec.md §8 invariant 5: with
// no loss, every emitted frame's count equals profiles_per_frame.
func TestFrameCompletenessInvariant(t *testing.T) {
	heads := make([]Head, 3)
	sessions := make([]*fakeSession, 3)
	for i := range sessions {
		sessions[i] = newFakeSession(t, uint32(i+1), 16)
		heads[i] = headFor(sessions[i])
	}
	for seq := uint32(1); seq <= 5; seq++ {
		for _, s := range sessions {
			s.feed(t, seq)
		}
	}

	asm := New(heads, timeutil.RealClock{})
	dst := make([]pool.Profile, asm.ProfilesPerFrame())
	for n := 0; n < 5; n++ {
		if count := asm.GetFrame(dst); count != asm.ProfilesPerFrame() {
			t.Fatalf("frame %d: count = %d, want %d", n+1, count, asm.ProfilesPerFrame())
		}
	}
}

// TestClearFramesIdempotentReset exercises spec.md §8 invariant 6:
// ClearFrames twice in a row leaves every ready queue empty both times.
func TestClearFramesIdempotentReset(t *testing.T) {
	a := newFakeSession(t, 1, 8)
	a.feed(t, 1)
	a.feed(t, 2)

	asm := New([]Head{headFor(a)}, timeutil.RealClock{})
	asm.ClearFrames()

	q, err := a.pool.Queue(pool.Pair{})
	if err != nil {
		t.Fatal(err)
	}
	if q.Ready.Len() != 0 {
		t.Fatalf("ready queue len after first ClearFrames = %d, want 0", q.Ready.Len())
	}

	asm.ClearFrames()
	if q.Ready.Len() != 0 {
		t.Fatalf("ready queue len after second ClearFrames = %d, want 0", q.Ready.Len())
	}
}

// TestPlaceholderCarriesScanHeadID exercises spec.md §4.8's placeholder
// field list: a pair that misses the current frame sequence still gets
// a scan_head_id, matching what a real profile would carry, so two
// heads scheduled on the same (camera,laser) pair stay distinguishable
// in the bundle.
func TestPlaceholderCarriesScanHeadID(t *testing.T) {
	a := newFakeSession(t, 1, 8)
	b := newFakeSession(t, 2, 8)
	a.feed(t, 1)
	// b has nothing queued for sequence 1: its slot must come back as
	// a placeholder stamped with b's own scan head id, not a's.

	asm := New([]Head{headFor(a), headFor(b)}, timeutil.RealClock{})
	dst := make([]pool.Profile, asm.ProfilesPerFrame())
	asm.GetFrame(dst)

	if dst[1].Format != pool.InvalidFormat {
		t.Fatalf("head B slot should be invalid placeholder, got %+v", dst[1])
	}
	if dst[1].ScanHeadID != b.ScanHeadID() {
		t.Fatalf("placeholder ScanHeadID = %d, want %d", dst[1].ScanHeadID, b.ScanHeadID())
	}
}

func TestWaitUntilFrameAvailableReturnsImmediatelyWhenReady(t *testing.T) {
	a := newFakeSession(t, 1, 8)
	a.feed(t, 1)

	asm := New([]Head{headFor(a)}, timeutil.RealClock{})
	if !asm.WaitUntilFrameAvailable(2000, 1_000_000) {
		t.Fatal("expected WaitUntilFrameAvailable to report ready")
	}
}

func TestWaitUntilFrameAvailableTimesOutWhenEmpty(t *testing.T) {
	a := newFakeSession(t, 1, 8)
	asm := New([]Head{headFor(a)}, timeutil.RealClock{})
	if asm.WaitUntilFrameAvailable(2000, 1000) {
		t.Fatal("expected WaitUntilFrameAvailable to time out on an empty queue")
	}
}
