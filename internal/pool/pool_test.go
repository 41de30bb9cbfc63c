package pool

import "testing"

func TestRingEnqueueDequeueFIFO(t *testing.T) {
	r := NewRing(2)
	a, b, c := &Profile{SequenceNumber: 1}, &Profile{SequenceNumber: 2}, &Profile{SequenceNumber: 3}

	if !r.TryEnqueue(a) || !r.TryEnqueue(b) {
		t.Fatal("expected both enqueues to succeed within capacity")
	}
	if r.TryEnqueue(c) {
		t.Fatal("expected enqueue to fail when ring is full")
	}

	got, ok := r.TryDequeue()
	if !ok || got != a {
		t.Fatalf("expected FIFO order, got %+v", got)
	}
	if !r.TryEnqueue(c) {
		t.Fatal("expected enqueue to succeed after a slot freed")
	}

	got, _ = r.TryDequeue()
	if got != b {
		t.Fatalf("expected b next, got %+v", got)
	}
	got, _ = r.TryDequeue()
	if got != c {
		t.Fatalf("expected c next, got %+v", got)
	}
	if _, ok := r.TryDequeue(); ok {
		t.Fatal("expected dequeue on empty ring to fail")
	}
}

func TestRingTracksMaxSequence(t *testing.T) {
	r := NewRing(4)
	r.TryEnqueue(&Profile{SequenceNumber: 5})
	r.TryEnqueue(&Profile{SequenceNumber: 3})
	r.TryEnqueue(&Profile{SequenceNumber: 9})
	if r.MaxSequence() != 9 {
		t.Fatalf("MaxSequence() = %d, want 9", r.MaxSequence())
	}
}

func TestPoolResetSingleModePopulatesFreeQueue(t *testing.T) {
	p := New(8)
	if err := p.Reset(ModeSingle, nil); err != nil {
		t.Fatal(err)
	}
	q, err := p.Queue(Pair{})
	if err != nil {
		t.Fatal(err)
	}
	if q.Free.Len() != 8 {
		t.Fatalf("free queue len = %d, want 8", q.Free.Len())
	}
	if q.Ready.Len() != 0 {
		t.Fatalf("ready queue len = %d, want 0", q.Ready.Len())
	}
}

func TestPoolResetMultiModeRequiresPairs(t *testing.T) {
	p := New(8)
	if err := p.Reset(ModeMulti, nil); err == nil {
		t.Fatal("expected error resetting to multi mode with no pairs")
	}
}

func TestPoolResetMultiModePartitionsEvenly(t *testing.T) {
	p := New(9)
	pairs := []Pair{
		{Camera: 0, Laser: 0},
		{Camera: 1, Laser: 1},
		{Camera: 2, Laser: 2},
	}
	if err := p.Reset(ModeMulti, pairs); err != nil {
		t.Fatal(err)
	}

	total := 0
	for _, pair := range pairs {
		q, err := p.Queue(pair)
		if err != nil {
			t.Fatal(err)
		}
		total += q.Free.Len()
	}
	if total != 9 {
		t.Fatalf("total free slots across pairs = %d, want 9", total)
	}
}

func TestPoolQueueRejectsUnknownPairInMultiMode(t *testing.T) {
	p := New(4)
	pairs := []Pair{{Camera: 0, Laser: 0}}
	if err := p.Reset(ModeMulti, pairs); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Queue(Pair{Camera: 9, Laser: 9}); err == nil {
		t.Fatal("expected error for an unscheduled pair")
	}
}

func TestPoolReportReadyAcrossPairs(t *testing.T) {
	p := New(4)
	pairs := []Pair{{Camera: 0, Laser: 0}, {Camera: 1, Laser: 1}}
	if err := p.Reset(ModeMulti, pairs); err != nil {
		t.Fatal(err)
	}

	q0, _ := p.Queue(pairs[0])
	q1, _ := p.Queue(pairs[1])
	slot0, _ := q0.Free.TryDequeue()
	slot0.SequenceNumber = 10
	q0.Ready.TryEnqueue(slot0)

	slot1, _ := q1.Free.TryDequeue()
	slot1.SequenceNumber = 4
	q1.Ready.TryEnqueue(slot1)

	r := p.ReportReady()
	if r.SizeMin != 1 || r.SizeMax != 1 {
		t.Fatalf("unexpected size range: %+v", r)
	}
	if r.SequenceMin != 4 || r.SequenceMax != 10 {
		t.Fatalf("unexpected sequence range: %+v", r)
	}
}

func TestPoolConservationHoldsAcrossBorrowAndReturn(t *testing.T) {
	p := New(4)
	if err := p.Reset(ModeSingle, nil); err != nil {
		t.Fatal(err)
	}
	q, _ := p.Queue(Pair{})

	free, ready, inFlight := p.Conservation()
	if free != 4 || ready != 0 || inFlight != 0 {
		t.Fatalf("unexpected initial conservation: free=%d ready=%d inFlight=%d", free, ready, inFlight)
	}

	slot, ok := q.Free.TryDequeue()
	if !ok {
		t.Fatal("expected a free slot")
	}
	free, ready, inFlight = p.Conservation()
	if free != 3 || ready != 0 || inFlight != 1 {
		t.Fatalf("unexpected in-flight conservation: free=%d ready=%d inFlight=%d", free, ready, inFlight)
	}

	q.Ready.TryEnqueue(slot)
	free, ready, inFlight = p.Conservation()
	if free != 3 || ready != 1 || inFlight != 0 {
		t.Fatalf("unexpected post-publish conservation: free=%d ready=%d inFlight=%d", free, ready, inFlight)
	}
}
