// Package scanerr implements the closed error taxonomy surfaced across
// the scanhead public API (spec.md §7). Every public entry point
// returns a *Error (or wraps a lower error in one) instead of an
// arbitrary error, so callers can switch on Code without string
// matching.
package scanerr

import (
	"fmt"
	"runtime"
	"sync"
)

// Code is one member of the closed error taxonomy.
type Code int

const (
	Unknown Code = iota
	Internal
	NullArgument
	InvalidArgument
	NotConnected
	Connected
	NotScanning
	Scanning
	VersionCompatibility
	AlreadyExists
	NoMoreRoom
	Network
	NotDiscovered
	UseCameraFunction
	UseLaserFunction
	FrameScanning
	NotFrameScanning
	FrameScanningInvalidPhaseTable
	PhaseTableEmpty
	Deprecated
	InvalidScanSystem
	InvalidScanHead
)

var names = map[Code]string{
	Unknown:                        "unknown",
	Internal:                       "internal",
	NullArgument:                   "null_argument",
	InvalidArgument:                "invalid_argument",
	NotConnected:                   "not_connected",
	Connected:                      "connected",
	NotScanning:                    "not_scanning",
	Scanning:                       "scanning",
	VersionCompatibility:           "version_compatibility",
	AlreadyExists:                  "already_exists",
	NoMoreRoom:                     "no_more_room",
	Network:                        "network",
	NotDiscovered:                  "not_discovered",
	UseCameraFunction:              "use_camera_function",
	UseLaserFunction:               "use_laser_function",
	FrameScanning:                  "frame_scanning",
	NotFrameScanning:               "not_frame_scanning",
	FrameScanningInvalidPhaseTable: "frame_scanning_invalid_phase_table",
	PhaseTableEmpty:                "phase_table_empty",
	Deprecated:                     "deprecated",
	InvalidScanSystem:              "invalid_scan_system",
	InvalidScanHead:                "invalid_scan_head",
}

// String returns the canonical lower_snake_case name of the code.
func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return names[Unknown]
}

// ReturnCode maps a Code onto the integer propagation convention of
// spec.md §7: zero or positive on success is the caller's concern;
// every Code here maps to a distinct negative value, with Unknown as
// the catch-all fallback (-1).
func (c Code) ReturnCode() int {
	return -(int(c) + 1)
}

// Error is the error type returned from every public scanhead entry
// point. It carries the taxonomy code, a human-readable message, and
// the file:line it was constructed at, mirroring the "last extended
// error" string the spec requires each handle-bearing type to expose.
type Error struct {
	Code    Code
	Message string
	Trace   string
	Err     error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Trace != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Trace)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error with a caller-site trace.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Trace:   trace(2),
	}
}

// Wrap constructs an *Error that carries cause as its wrapped error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Trace:   trace(2),
		Err:     cause,
	}
}

// As reports whether err is (or wraps) a *Error and returns it.
func As(err error) (*Error, bool) {
	se, ok := err.(*Error)
	if ok {
		return se, true
	}
	type unwrapper interface{ Unwrap() error }
	for u, ok := err.(unwrapper); ok; u, ok = err.(unwrapper) {
		err = u.Unwrap()
		if se, ok := err.(*Error); ok {
			return se, true
		}
	}
	return nil, false
}

// CodeOf extracts the Code of err, or Unknown if err is not a *Error.
func CodeOf(err error) Code {
	if err == nil {
		return Unknown
	}
	if se, ok := As(err); ok {
		return se.Code
	}
	return Unknown
}

func trace(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// Recover converts a panic recovered at a public API boundary into an
// *Error with code Internal, per spec.md §7's propagation policy:
// "every public entry wraps its body in a catch-all that maps any
// unexpected exception to internal". Call as:
//
//	defer func() { err = scanerr.Recover(recover(), err) }()
func Recover(r any, prior error) error {
	if r == nil {
		return prior
	}
	if err, ok := r.(error); ok {
		return Wrap(Internal, err, "recovered panic")
	}
	return New(Internal, "recovered panic: %v", r)
}

// LastError holds the most recently produced extended error message
// for a handle, guarded by a mutex as spec.md §9 requires for the
// two process-wide "last extended error" slots (scan system, scan
// head) as well as any per-session equivalent.
type LastError struct {
	mu  sync.Mutex
	err *Error
}

// Set records err as the last extended error, overwriting any prior
// value. A nil err clears the slot.
func (l *LastError) Set(err *Error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// String returns the human-readable extended message, or "" if none
// has been recorded.
func (l *LastError) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil {
		return ""
	}
	return l.err.Error()
}

// Get returns the last recorded *Error, or nil.
func (l *LastError) Get() *Error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}
