package netio

import "testing"

func TestRefCountInitTeardownSymmetry(t *testing.T) {
	start := RefCount()
	Init()
	Init()
	if got := RefCount(); got != start+2 {
		t.Fatalf("RefCount after two Init = %d, want %d", got, start+2)
	}
	Teardown()
	Teardown()
	if got := RefCount(); got != start {
		t.Fatalf("RefCount after matching Teardown = %d, want %d", got, start)
	}
}

func TestTeardownWithoutInitDoesNotGoNegative(t *testing.T) {
	for RefCount() > 0 {
		Teardown()
	}
	Teardown()
	if RefCount() != 0 {
		t.Fatalf("RefCount = %d, want 0", RefCount())
	}
}
