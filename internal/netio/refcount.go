package netio

import "sync"

var (
	refMu    sync.Mutex
	refCount int
)

// Init bumps the process-wide networking-subsystem reference count,
// performing one-time setup on the first call (spec.md §4.1: "A
// process-wide reference count initializes and tears down the
// networking subsystem on first-open/last-close"). Go's net package
// needs no explicit init on the platforms this module targets, so
// init/teardown are no-ops beyond the count itself — the hook exists
// so callers that mirror the original lifecycle contract compile
// unchanged.
func Init() {
	refMu.Lock()
	defer refMu.Unlock()
	refCount++
}

// Teardown decrements the reference count, running one-time teardown
// when it reaches zero.
func Teardown() {
	refMu.Lock()
	defer refMu.Unlock()
	if refCount > 0 {
		refCount--
	}
}

// RefCount reports the current reference count, for tests.
func RefCount() int {
	refMu.Lock()
	defer refMu.Unlock()
	return refCount
}
