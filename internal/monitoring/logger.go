// Package monitoring holds the diagnostic logger shared by the planning
// packages. The pure computations never log; callers that resolve device
// values or persist plans do.
package monitoring

import (
	"fmt"
	"log"
)

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

// Capture replaces the logger with one that appends formatted lines to
// lines, and returns a function restoring the previous logger.
func Capture(lines *[]string) (restore func()) {
	prev := Logf
	Logf = func(format string, v ...interface{}) {
		*lines = append(*lines, fmt.Sprintf(format, v...))
	}
	return func() { Logf = prev }
}
