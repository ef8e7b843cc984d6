// Package monitoring holds the service's observability seams: a swappable
// diagnostic logger and summary statistics over tile-render timings.
package monitoring

import (
	"log"

	"github.com/sirupsen/logrus"
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

// UseLogrus routes the package logger through a logrus logger at debug level.
func UseLogrus(l *logrus.Logger) {
	if l == nil {
		SetLogger(nil)
		return
	}
	Logf = l.Debugf
}
