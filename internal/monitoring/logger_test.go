package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLoggerNilInstallsNoop(t *testing.T) {
	defer SetLogger(nil)

	SetLogger(nil)
	// Must not panic.
	Logf("discarded %d", 42)
}

func TestEventfFormatsKeyValuePairs(t *testing.T) {
	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	defer SetLogger(nil)

	Eventf("lock_transition", "from", "searching", "to", "acquiring", "frames", 3)
	assert.Equal(t, "event=lock_transition from=searching to=acquiring frames=3", got)
}

func TestEventfOddTrailingKey(t *testing.T) {
	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	defer SetLogger(nil)

	Eventf("refusal", "reason")
	assert.Equal(t, "event=refusal reason=", got)
}
