// Package telemetry emits observational events in the numeric code schema
// consumed by the offline analysis tooling. Events describe; they carry no
// authority over shot outcomes.
package telemetry

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/launchlab-data/launchlab/internal/monitoring"
)

// Code identifies an event in the analysis schema.
type Code uint8

const (
	CodeFrameStats    Code = 0x41 // corner detector frame statistics
	CodeRSMetric      Code = 0x20 // rolling-shutter shear metric
	CodeLocality      Code = 0x21 // cluster locality metric
	CodeStructure     Code = 0x22 // cluster structure metric
	CodeWindowSummary Code = 0x80 // locked-window summary
	CodeWindowSpan    Code = 0x81 // locked-window frame span
	CodeWindowOutcome Code = 0x82 // locked-window outcome
	CodeWindowPass    Code = 0x90 // window accepted
	CodeWindowFail    Code = 0x91 // window rejected
)

// String returns the code's analysis-schema name.
func (c Code) String() string {
	switch c {
	case CodeFrameStats:
		return "frame_stats"
	case CodeRSMetric:
		return "rs_metric"
	case CodeLocality:
		return "locality"
	case CodeStructure:
		return "structure"
	case CodeWindowSummary:
		return "window_summary"
	case CodeWindowSpan:
		return "window_span"
	case CodeWindowOutcome:
		return "window_outcome"
	case CodeWindowPass:
		return "window_pass"
	case CodeWindowFail:
		return "window_fail"
	}
	return fmt.Sprintf("code_0x%02x", uint8(c))
}

// Event is one observational record. ValueA and ValueB meanings depend on
// the code.
type Event struct {
	Code      Code
	Timestamp time.Time
	ValueA    float64
	ValueB    float64
}

// Sink consumes events. Implementations must tolerate high frame rates.
type Sink interface {
	Emit(Event)
}

// CSVWriter writes events as `timestamp,code,valueA,valueB` rows compatible
// with the analysis scripts. Safe for a single writer; Flush before reading
// the underlying writer.
type CSVWriter struct {
	mu sync.Mutex
	w  *csv.Writer
}

// NewCSVWriter writes the header row and returns the writer.
func NewCSVWriter(w io.Writer) (*CSVWriter, error) {
	cw := &CSVWriter{w: csv.NewWriter(w)}
	if err := cw.w.Write([]string{"timestamp", "code", "valueA", "valueB"}); err != nil {
		return nil, fmt.Errorf("telemetry: write header: %w", err)
	}
	return cw, nil
}

// Emit appends one row. Write errors surface on Flush.
func (cw *CSVWriter) Emit(e Event) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	_ = cw.w.Write([]string{
		strconv.FormatFloat(float64(e.Timestamp.UnixNano())/1e9, 'f', 6, 64),
		// The analysis scripts compare this column against integer codes,
		// so it must parse as a plain decimal.
		strconv.Itoa(int(e.Code)),
		strconv.FormatFloat(e.ValueA, 'g', -1, 64),
		strconv.FormatFloat(e.ValueB, 'g', -1, 64),
	})
}

// Flush drains buffered rows and reports any write error.
func (cw *CSVWriter) Flush() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.w.Flush()
	return cw.w.Error()
}

// LogSink mirrors events into the structured text log.
type LogSink struct{}

// Emit writes the event as key=value text.
func (LogSink) Emit(e Event) {
	monitoring.Eventf("telemetry", "code", e.Code.String(), "a", e.ValueA, "b", e.ValueB)
}

// MultiSink fans events out to every child sink in order.
type MultiSink []Sink

// Emit forwards the event to each child.
func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}
