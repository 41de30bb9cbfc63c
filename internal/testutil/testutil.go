// Package testutil provides shared test helpers used across the
// scanhead packages, trimmed from the teacher's internal/testutil
// (which also carried net/http/httptest helpers for its web API;
// no test in this module uses them, so only the generic
// error-assertion helpers survive, plus one addition for the
// scanerr taxonomy).
package testutil

import (
	"testing"

	"github.com/banshee-data/scanhead/internal/scanerr"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertCode fails the test unless err carries the given scanerr.Code.
func AssertCode(t *testing.T, err error, want scanerr.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", want)
	}
	if got := scanerr.CodeOf(err); got != want {
		t.Fatalf("error code = %s, want %s (err: %v)", got, want, err)
	}
}
