// Package monitoring holds the process-wide diagnostic logger.
//
// The sensing path logs sparingly (calibration progress, listener
// stats, LBT events when enabled); routing everything through Logf lets
// tests mute it and embedders redirect it.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf
// but may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
