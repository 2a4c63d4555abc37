// Package monitoring holds the diagnostic logging hook shared by the sizing
// engine packages.
package monitoring

import (
	"log"
	"sync/atomic"
)

type logFunc func(format string, v ...interface{})

var current atomic.Value

func init() {
	current.Store(logFunc(log.Printf))
}

// Logf writes a diagnostic line through the installed logger. It defaults to
// log.Printf and may be replaced by SetLogger.
func Logf(format string, v ...interface{}) {
	current.Load().(logFunc)(format, v...)
}

// SetLogger replaces the logger. Passing nil installs a no-op logger, which
// is what tests use to keep batch runs quiet.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		current.Store(logFunc(func(string, ...interface{}) {}))
		return
	}
	current.Store(logFunc(f))
}

// Component returns a logger that prefixes every line with "[name] ".
// The prefix is resolved at call time so SetLogger still applies.
func Component(name string) func(format string, v ...interface{}) {
	prefix := "[" + name + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
