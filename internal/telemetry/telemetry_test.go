package telemetry

import (
	"bytes"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVWriterFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, err := NewCSVWriter(&buf)
	require.NoError(t, err)

	w.Emit(Event{
		Code:      CodeRSMetric,
		Timestamp: time.Unix(12, 500000000),
		ValueA:    1.5,
		ValueB:    -3,
	})
	w.Emit(Event{
		Code:      CodeWindowPass,
		Timestamp: time.Unix(13, 0),
		ValueA:    42,
	})
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,code,valueA,valueB", lines[0])
	assert.Equal(t, "12.500000,32,1.5,-3", lines[1])
	assert.Equal(t, "13.000000,144,42,0", lines[2])
}

// The offline analysis scripts filter rows by comparing the code column
// against integer constants, so every emitted code must parse as a plain
// decimal integer.
func TestCSVWriterCodesParseAsIntegers(t *testing.T) {
	t.Parallel()

	codes := []Code{
		CodeFrameStats, CodeRSMetric, CodeLocality, CodeStructure,
		CodeWindowSummary, CodeWindowSpan, CodeWindowOutcome,
		CodeWindowPass, CodeWindowFail,
	}

	var buf bytes.Buffer
	w, err := NewCSVWriter(&buf)
	require.NoError(t, err)
	for _, c := range codes {
		w.Emit(Event{Code: c, Timestamp: time.Unix(10, 0), ValueA: 1, ValueB: 2})
	}
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(codes)+1)
	for i, c := range codes {
		fields := strings.Split(lines[i+1], ",")
		require.Len(t, fields, 4)
		got, err := strconv.Atoi(fields[1])
		require.NoError(t, err, "code column %q must be a decimal integer", fields[1])
		assert.Equal(t, int(c), got)
	}
}

func TestCodeNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "frame_stats", CodeFrameStats.String())
	assert.Equal(t, "window_fail", CodeWindowFail.String())
	assert.Equal(t, "code_0xff", Code(0xff).String())
}

type captureSink struct {
	events []Event
}

func (c *captureSink) Emit(e Event) { c.events = append(c.events, e) }

func TestMultiSinkFansOut(t *testing.T) {
	t.Parallel()

	a := &captureSink{}
	b := &captureSink{}
	m := MultiSink{a, b}

	m.Emit(Event{Code: CodeLocality, ValueA: 7})

	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	assert.Equal(t, CodeLocality, a.events[0].Code)
}
