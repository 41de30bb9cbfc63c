// Package obslog provides the package-level diagnostic logging
// indirection used across the scanhead runtime: every component logs
// recoverable conditions through Logf rather than fmt.Println or its
// own logger, so integrators and tests can redirect or mute output in
// one place.
package obslog

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
