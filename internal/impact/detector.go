// Package impact maintains rolling statistics over independent per-frame
// motion signals and flags statistically notable events as non-authoritative
// impact candidates. It observes and describes; it never authorizes anything.
package impact

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Metric identifies one of the independent per-frame signals.
type Metric int

// The tracked signals. Each is optional per frame.
const (
	MetricMotionEnergy Metric = iota
	MetricAccelMag
	MetricFeatureDisplacement
	MetricDensityChange
	MetricRSShear
	MetricTemporalAsymmetry

	metricCount
)

// String returns the metric's telemetry name.
func (m Metric) String() string {
	switch m {
	case MetricMotionEnergy:
		return "motion_energy"
	case MetricAccelMag:
		return "accel_mag"
	case MetricFeatureDisplacement:
		return "feature_displacement"
	case MetricDensityChange:
		return "density_change"
	case MetricRSShear:
		return "rs_shear"
	case MetricTemporalAsymmetry:
		return "temporal_asymmetry"
	}
	return "unknown"
}

// Sample is one frame's worth of observation signals. Nil fields mean the
// signal was unavailable this frame.
type Sample struct {
	FrameID   uint64
	Timestamp time.Time

	MotionEnergy        *float64
	AccelMag            *float64
	FeatureDisplacement *float64
	DensityChange       *float64
	RSShear             *float64
	TemporalAsymmetry   *float64
}

func (s *Sample) value(m Metric) *float64 {
	switch m {
	case MetricMotionEnergy:
		return s.MotionEnergy
	case MetricAccelMag:
		return s.AccelMag
	case MetricFeatureDisplacement:
		return s.FeatureDisplacement
	case MetricDensityChange:
		return s.DensityChange
	case MetricRSShear:
		return s.RSShear
	case MetricTemporalAsymmetry:
		return s.TemporalAsymmetry
	}
	return nil
}

// Config holds detection thresholds.
type Config struct {
	HistoryCapacity int // bounded rolling history length (frames)
	BaselineWindow  int // trailing frames the robust baseline is drawn from
	MinBaseline     int // metrics with fewer baseline values are skipped

	CooldownFrames         int     // minimum spacing between candidates
	MinContributingMetrics int     // independent metrics required at the peak
	MinMetricZ             float64 // z a metric must reach to count as contributing
	PercentileGate         float64 // required percentile rank of the peak score

	PostFrames int // frames after the peak before the report is emitted
}

// DefaultConfig returns production detection thresholds for 240 Hz capture.
func DefaultConfig() Config {
	return Config{
		HistoryCapacity:        512,
		BaselineWindow:         120,
		MinBaseline:            30,
		CooldownFrames:         24,
		MinContributingMetrics: 2,
		MinMetricZ:             2.0,
		PercentileGate:         0.95,
		PostFrames:             12,
	}
}

// Candidate is an accepted anomaly peak. Ephemeral: it exists only until its
// post-event report is emitted or its supporting history is evicted.
type Candidate struct {
	PeakFrameID        uint64
	PeakTimestamp      time.Time
	Score              float64
	BaselinePercentile float64
	TriggeringSignals  []string
}

// WindowStats summarises the populated signals over a frame window.
type WindowStats struct {
	Mean   [metricCount]float64
	Counts [metricCount]int
	Frames int
}

// MetricMean returns the mean of a metric over the window and whether any
// values were populated.
func (w *WindowStats) MetricMean(m Metric) (float64, bool) {
	if w.Counts[m] == 0 {
		return 0, false
	}
	return w.Mean[m], true
}

// Report is the descriptive pre/during/post comparison emitted once enough
// post-peak frames exist. Purely observational.
type Report struct {
	Candidate Candidate

	Pre    WindowStats
	During WindowStats
	Post   WindowStats
}

type entry struct {
	sample Sample
	score  float64
}

// Detector owns the rolling history and candidate state. It is mutated once
// per frame by Observe; the pipeline owns it.
type Detector struct {
	cfg Config

	// Ring buffer. base is the absolute index of the oldest entry.
	ring  []entry
	base  int
	count int

	lastPeakAbs int  // absolute index of the last accepted peak
	hasPeak     bool // whether lastPeakAbs is meaningful

	pending    *Candidate
	pendingAbs int // absolute index of the pending candidate's peak
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(cfg Config) *Detector {
	if cfg.HistoryCapacity < cfg.BaselineWindow+cfg.PostFrames+3 {
		cfg.HistoryCapacity = cfg.BaselineWindow + cfg.PostFrames + 3
	}
	return &Detector{
		cfg:  cfg,
		ring: make([]entry, cfg.HistoryCapacity),
	}
}

// Observe ingests one frame's sample. It returns the candidate created this
// frame (if a peak was accepted) and the report emitted this frame (if a
// previously accepted candidate completed its post-event window). Either or
// both are usually nil.
func (d *Detector) Observe(s Sample) (*Candidate, *Report) {
	score := d.combinedScore(&s)
	d.push(entry{sample: s, score: score})

	candidate := d.detectPeak()
	report := d.maybeEmitReport()
	return candidate, report
}

// combinedScore sums per-metric robust z-scores against the trailing
// baseline, using only metrics with sufficient baseline population.
func (d *Detector) combinedScore(s *Sample) float64 {
	score := 0.0
	for m := Metric(0); m < metricCount; m++ {
		v := s.value(m)
		if v == nil {
			continue
		}

		baseline := d.baselineValues(m)
		if len(baseline) < d.cfg.MinBaseline {
			continue
		}

		score += robustZ(*v, baseline)
	}
	return score
}

// baselineValues collects a metric's populated values over the trailing
// baseline window (not including the sample being scored).
func (d *Detector) baselineValues(m Metric) []float64 {
	start := d.count - d.cfg.BaselineWindow
	if start < 0 {
		start = 0
	}
	out := make([]float64, 0, d.count-start)
	for i := start; i < d.count; i++ {
		if v := d.at(d.base + i).sample.value(m); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// robustZ computes |value − median| / (1.4826·MAD). A vanishing MAD (a flat
// baseline) is floored so a genuinely new deviation still scores high without
// dividing by zero.
func robustZ(value float64, baseline []float64) float64 {
	sorted := append([]float64(nil), baseline...)
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)

	dev := make([]float64, len(sorted))
	for i, v := range sorted {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad := stat.Quantile(0.5, stat.Empirical, dev, nil)

	scale := 1.4826 * mad
	const madFloor = 1e-9
	if scale < madFloor {
		scale = madFloor
	}
	z := math.Abs(value-median) / scale
	// Cap so a flat baseline cannot produce an unbounded single-metric
	// score that swamps the multi-metric requirement.
	const zCap = 50.0
	if z > zCap {
		z = zCap
	}
	return z
}

// detectPeak checks whether the previous sample is a strict local maximum of
// the score series, outside the cooldown, and gates it into a candidate.
func (d *Detector) detectPeak() *Candidate {
	if d.count < 3 {
		return nil
	}

	newestAbs := d.base + d.count - 1
	peakAbs := newestAbs - 1

	prev := d.at(peakAbs - 1).score
	mid := d.at(peakAbs).score
	next := d.at(newestAbs).score
	if !(mid > prev && mid > next) {
		return nil
	}

	if d.hasPeak && peakAbs-d.lastPeakAbs < d.cfg.CooldownFrames {
		return nil
	}
	if d.pending != nil {
		return nil // one candidate at a time
	}

	// The contributing-metric count belongs to the peak sample, not the
	// newest one: recompute against the peak.
	peakEntry := d.at(peakAbs)
	peakScore := peakEntry.score
	peakContrib, peakSignals := d.contributionAt(peakAbs)

	if peakContrib < d.cfg.MinContributingMetrics {
		return nil
	}

	rank := d.percentileRank(peakAbs, peakScore)
	if rank < d.cfg.PercentileGate {
		return nil
	}

	d.hasPeak = true
	d.lastPeakAbs = peakAbs
	c := &Candidate{
		PeakFrameID:        peakEntry.sample.FrameID,
		PeakTimestamp:      peakEntry.sample.Timestamp,
		Score:              peakScore,
		BaselinePercentile: rank,
		TriggeringSignals:  peakSignals,
	}
	d.pending = c
	d.pendingAbs = peakAbs
	return c
}

// contributionAt recomputes per-metric z-scores for an historical sample
// against the baseline trailing that sample.
func (d *Detector) contributionAt(abs int) (int, []string) {
	idx := abs - d.base
	s := &d.at(abs).sample

	contributing := 0
	var signals []string
	for m := Metric(0); m < metricCount; m++ {
		v := s.value(m)
		if v == nil {
			continue
		}
		start := idx - d.cfg.BaselineWindow
		if start < 0 {
			start = 0
		}
		baseline := make([]float64, 0, idx-start)
		for i := start; i < idx; i++ {
			if bv := d.at(d.base + i).sample.value(m); bv != nil {
				baseline = append(baseline, *bv)
			}
		}
		if len(baseline) < d.cfg.MinBaseline {
			continue
		}
		if robustZ(*v, baseline) >= d.cfg.MinMetricZ {
			contributing++
			signals = append(signals, m.String())
		}
	}
	return contributing, signals
}

// percentileRank returns the fraction of trailing baseline scores at or
// below the peak score.
func (d *Detector) percentileRank(peakAbs int, peakScore float64) float64 {
	idx := peakAbs - d.base
	start := idx - d.cfg.BaselineWindow
	if start < 0 {
		start = 0
	}
	if idx <= start {
		return 0
	}
	below := 0
	total := 0
	for i := start; i < idx; i++ {
		total++
		if d.at(d.base+i).score <= peakScore {
			below++
		}
	}
	return float64(below) / float64(total)
}

// maybeEmitReport emits the pending candidate's pre/during/post comparison
// once enough post-peak frames exist. If eviction has invalidated the
// candidate's supporting history it is discarded, never fabricated.
func (d *Detector) maybeEmitReport() *Report {
	if d.pending == nil {
		return nil
	}

	// Discard if the peak or its pre-window has been evicted.
	preStart := d.pendingAbs - d.cfg.PostFrames
	if preStart < 0 {
		preStart = 0
	}
	if preStart < d.base {
		d.pending = nil
		return nil
	}

	newestAbs := d.base + d.count - 1
	if newestAbs-d.pendingAbs < d.cfg.PostFrames {
		return nil // post-event window still filling
	}

	report := &Report{
		Candidate: *d.pending,
		Pre:       d.windowStats(preStart, d.pendingAbs-1),
		During:    d.windowStats(d.pendingAbs-1, d.pendingAbs+1),
		Post:      d.windowStats(d.pendingAbs+1, d.pendingAbs+d.cfg.PostFrames),
	}
	d.pending = nil
	return report
}

// windowStats averages the populated signals over [fromAbs, toAbs].
func (d *Detector) windowStats(fromAbs, toAbs int) WindowStats {
	var w WindowStats
	if fromAbs < d.base {
		fromAbs = d.base
	}
	newestAbs := d.base + d.count - 1
	if toAbs > newestAbs {
		toAbs = newestAbs
	}
	for abs := fromAbs; abs <= toAbs; abs++ {
		s := &d.at(abs).sample
		w.Frames++
		for m := Metric(0); m < metricCount; m++ {
			if v := s.value(m); v != nil {
				w.Mean[m] += *v
				w.Counts[m]++
			}
		}
	}
	for m := range w.Mean {
		if w.Counts[m] > 0 {
			w.Mean[m] /= float64(w.Counts[m])
		}
	}
	return w
}

// push appends an entry to the ring, evicting the oldest when full.
func (d *Detector) push(e entry) {
	if d.count < len(d.ring) {
		d.ring[(d.base+d.count)%len(d.ring)] = e
		d.count++
		return
	}
	// Full: overwrite the oldest and advance the base.
	d.ring[d.base%len(d.ring)] = e
	d.base++
}

// at returns the entry at an absolute index. Callers guarantee the index is
// within [base, base+count).
func (d *Detector) at(abs int) *entry {
	return &d.ring[abs%len(d.ring)]
}
