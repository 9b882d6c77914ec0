// Package monitoring provides the shared diagnostic logger for the launch
// monitor core. Components log through Logf so that tests and embedders can
// redirect or mute output without touching package internals.
package monitoring

import (
	"fmt"
	"log"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced with SetLogger. Tests typically mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Eventf logs a structured key=value event line. Keys and values are emitted
// in pairs; an odd trailing key is logged with an empty value. This is the
// plain-text observational output consumed by session logging collaborators.
func Eventf(event string, kv ...interface{}) {
	line := "event=" + event
	for i := 0; i < len(kv); i += 2 {
		if i+1 < len(kv) {
			line += " " + format(kv[i]) + "=" + format(kv[i+1])
		} else {
			line += " " + format(kv[i]) + "="
		}
	}
	Logf("%s", line)
}

func format(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	default:
		return fmt.Sprint(v)
	}
}
