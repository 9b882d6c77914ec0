// Package pipeline wires the measurement stages into the per-frame
// processing chain: tracking, ball lock, the gated rolling-shutter solver,
// impact detection, and the refusal-first authority gates. It is the only
// package that owns cross-stage state.
package pipeline

import (
	"math"
	"sync/atomic"

	"github.com/launchlab-data/launchlab/internal/cluster"
	"github.com/launchlab-data/launchlab/internal/flight"
	"github.com/launchlab-data/launchlab/internal/gates"
	"github.com/launchlab-data/launchlab/internal/impact"
	"github.com/launchlab-data/launchlab/internal/lock"
	"github.com/launchlab-data/launchlab/internal/rspnp"
	"github.com/launchlab-data/launchlab/internal/telemetry"
	"github.com/launchlab-data/launchlab/internal/timeutil"
	"github.com/launchlab-data/launchlab/internal/vision"
)

// RecordSink persists completed lifecycles and impact candidates. The
// sqlite store implements it; tests use in-memory fakes.
type RecordSink interface {
	RecordShot(rec *gates.ShotLifecycleRecord, fl *flight.Result) error
	RecordImpactCandidate(c *impact.Candidate) error
}

// Matcher associates tracked 2D points with the ball's 3D dot model. The
// dot-pattern matcher is an external collaborator; without one the solver
// never runs.
type Matcher interface {
	Match(points []*vision.TrackedPoint, frame *vision.Frame) []rspnp.Correspondence
}

// SpinEstimate is the external spin collaborator's latest reading.
type SpinEstimate struct {
	Axis       [3]float64
	RPM        float64
	Confidence float64
}

// SpinSource supplies spin estimates. Optional; without one spin is derived
// from the solver's angular velocity.
type SpinSource interface {
	Latest() (SpinEstimate, bool)
}

// Config assembles the stages. Zero-value stage configs are replaced with
// the package defaults.
type Config struct {
	Intrinsics vision.Intrinsics

	Tracker     vision.TrackerConfig
	Cluster     cluster.Params
	Lock        lock.Config
	Solver      rspnp.Config
	Flight      flight.Config
	Impact      impact.Config
	Eligibility gates.EligibilityConfig
	Separation  gates.SeparationConfig
	Lifecycle   gates.LifecycleConfig

	Bootstrap rspnp.Bootstrap
	Matcher   Matcher
	Spin      SpinSource
	Clock     timeutil.Clock

	Records RecordSink
	Events  telemetry.Sink

	// MinLockedFrames is the locked-window length required before the
	// solver is trusted with a frame.
	MinLockedFrames int

	// Quiet-scene thresholds feeding the eligibility and lifecycle gates.
	QuietMaxPoints    int
	QuietMaxSpeed     float64 // px/s
	MinSpinConfidence float64
}

// DefaultConfig returns the production stage wiring minus the injected
// collaborators (bootstrap, matcher, sinks).
func DefaultConfig() Config {
	return Config{
		Tracker:           vision.DefaultTrackerConfig(),
		Cluster:           cluster.DefaultParams(),
		Lock:              lock.DefaultConfig(),
		Solver:            rspnp.DefaultConfig(),
		Flight:            flight.DefaultConfig(),
		Impact:            impact.DefaultConfig(),
		Eligibility:       gates.DefaultEligibilityConfig(),
		Separation:        gates.DefaultSeparationConfig(),
		Lifecycle:         gates.DefaultLifecycleConfig(),
		Clock:             timeutil.RealClock{},
		MinLockedFrames:   3,
		QuietMaxPoints:    4,
		QuietMaxSpeed:     120,
		MinSpinConfidence: 0.3,
	}
}

// Pipeline owns all per-shot mutable state. Exactly one goroutine may run
// the frame callback at a time; concurrent frames are dropped, not queued.
type Pipeline struct {
	cfg Config

	tracker     *vision.PointTracker
	lockMachine *lock.Machine
	solver      *rspnp.Solver
	detector    *impact.Detector
	eligibility *gates.EligibilityGate
	separation  *gates.SeparationGate
	lifecycle   *gates.LifecycleController

	busy    atomic.Bool
	dropped atomic.Uint64

	lastSnapshot  lock.Snapshot
	lastEstimate  rspnp.Estimate
	hasEstimate   bool
	forcedRefusal atomic.Bool

	// Previous-frame signals for the impact sample derivatives.
	prevMeanSpeed float64
	prevCount     int
	hasPrev       bool
}

// New assembles a pipeline from the config.
func New(cfg Config) *Pipeline {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	p := &Pipeline{
		cfg:         cfg,
		tracker:     vision.NewPointTracker(cfg.Tracker),
		lockMachine: lock.NewMachine(cfg.Lock),
		solver:      rspnp.NewSolver(cfg.Solver, cfg.Bootstrap),
		detector:    impact.NewDetector(cfg.Impact),
		eligibility: gates.NewEligibilityGate(cfg.Eligibility),
		separation:  gates.NewSeparationGate(cfg.Separation),
		lifecycle:   gates.NewLifecycleController(cfg.Lifecycle, cfg.Clock),
	}
	p.lastSnapshot = lock.Snapshot{
		State:      lock.StateSearching,
		ROICenterX: cfg.Lock.SearchCenterX,
		ROICenterY: cfg.Lock.SearchCenterY,
		ROIRadius:  cfg.Lock.SearchRadius,
	}
	return p
}

// DroppedFrames reports how many frames were discarded because processing
// of a previous frame had not finished.
func (p *Pipeline) DroppedFrames() uint64 { return p.dropped.Load() }

// LockState returns the lock machine's current state.
func (p *Pipeline) LockState() lock.State { return p.lastSnapshot.State }

// LifecycleState returns the lifecycle controller's current state.
func (p *Pipeline) LifecycleState() gates.LifecycleState { return p.lifecycle.State() }

// LastEstimate returns the most recent solver output and whether one exists.
func (p *Pipeline) LastEstimate() (rspnp.Estimate, bool) {
	return p.lastEstimate, p.hasEstimate
}

// ForceRefusal marks the in-progress shot attempt for refusal on the next
// frame. Operator override; takes priority over everything downstream.
func (p *Pipeline) ForceRefusal() { p.forcedRefusal.Store(true) }

// FrameCallback returns the function the capture source invokes per frame.
// A frame arriving while the previous one is still processing is dropped;
// bounded latency is preferred over throughput.
func (p *Pipeline) FrameCallback() func(*vision.Frame) {
	return func(f *vision.Frame) {
		if !p.busy.CompareAndSwap(false, true) {
			p.dropped.Add(1)
			tracef("frame %d dropped (busy)", f.FrameID)
			return
		}
		defer p.busy.Store(false)
		p.processFrame(f)
	}
}

func (p *Pipeline) processFrame(f *vision.Frame) {
	tracked := p.tracker.Update(f.Corners, f.Timestamp)
	p.emit(telemetry.Event{
		Code: telemetry.CodeFrameStats, Timestamp: f.Timestamp,
		ValueA: float64(len(f.Corners)), ValueB: float64(len(tracked)),
	})

	roi := p.lastSnapshot
	regionPoints := p.tracker.PointsInRegion(roi.ROICenterX, roi.ROICenterY, roi.ROIRadius)

	cl, haveCluster := cluster.Classify(regionPoints, roi.ROICenterX, roi.ROICenterY, roi.ROIRadius, p.cfg.Cluster)
	var clPtr *cluster.BallCluster
	if haveCluster {
		clPtr = &cl
		p.emit(telemetry.Event{
			Code: telemetry.CodeLocality, Timestamp: f.Timestamp,
			ValueA: cl.QualityScore, ValueB: cl.RadiusPx,
		})
		p.emit(telemetry.Event{
			Code: telemetry.CodeStructure, Timestamp: f.Timestamp,
			ValueA: cl.SymmetryScore, ValueB: cl.Eccentricity,
		})
	}

	prevLockState := p.lastSnapshot.State
	snap := p.lockMachine.Update(clPtr)
	if prevLockState == lock.StateLocked && snap.State != lock.StateLocked {
		p.emit(telemetry.Event{
			Code: telemetry.CodeWindowSpan, Timestamp: f.Timestamp,
			ValueA: float64(p.lastSnapshot.LockedFrames),
		})
	}
	p.lastSnapshot = snap

	meanSpeed, meanConf := trackStats(tracked)
	sample := p.impactSample(f, tracked, regionPoints, clPtr, meanSpeed)
	candidate, report := p.detector.Observe(sample)
	if candidate != nil {
		diagf("impact candidate frame=%d score=%.2f pct=%.3f", candidate.PeakFrameID, candidate.Score, candidate.BaselinePercentile)
		if p.cfg.Records != nil {
			if err := p.cfg.Records.RecordImpactCandidate(candidate); err != nil {
				opsf("record impact candidate: %v", err)
			}
		}
	}
	if report != nil {
		diagf("impact report frame=%d pre=%d post=%d", report.Candidate.PeakFrameID, report.Pre.Frames, report.Post.Frames)
	}

	p.maybeSolve(f, regionPoints, snap)

	quiet := len(tracked) <= p.cfg.QuietMaxPoints && meanSpeed < p.cfg.QuietMaxSpeed && !haveCluster

	decision := p.eligibility.Update(gates.EligibilitySignals{
		PresenceConfidence: presence(meanConf, clPtr),
		Motion:             meanSpeed,
		Quiet:              quiet,
	})

	separated := false
	if p.lifecycle.State() == gates.LifecycleImpactObserved && len(regionPoints) > 0 {
		vx, vy := meanVelocity(regionPoints)
		cx, cy := roi.ROICenterX, roi.ROICenterY
		if clPtr != nil {
			cx, cy = clPtr.CentroidX, clPtr.CentroidY
		}
		separated = p.separation.Observe(cx, cy, vx, vy)
	}

	in := gates.LifecycleInputs{
		Eligible:            decision.Eligible,
		ImpactObserved:      candidate != nil,
		SeparationConfirmed: separated,
		CaptureValid:        captureValid(f),
		RSObservable:        rsObservable(f),
		Quiet:               quiet,
	}
	if p.forcedRefusal.CompareAndSwap(true, false) {
		reason := gates.RefusalForcedOverride
		in.ExplicitRefusal = &reason
	}

	prevLifecycle := p.lifecycle.State()
	rec := p.lifecycle.Update(in)
	if rec != nil {
		p.finishShot(rec)
	}
	if prevLifecycle != gates.LifecycleIdle && p.lifecycle.State() == gates.LifecycleIdle {
		p.separation.Reset()
		p.hasEstimate = false
	}
}

// maybeSolve runs the rolling-shutter solver only inside a trusted locked
// window. Everything else is refused work, not deferred work.
func (p *Pipeline) maybeSolve(f *vision.Frame, regionPoints []*vision.TrackedPoint, snap lock.Snapshot) {
	if p.cfg.Matcher == nil || p.cfg.Bootstrap == nil {
		return
	}
	if snap.State != lock.StateLocked || snap.LockedFrames < p.cfg.MinLockedFrames {
		return
	}
	if snap.Quality < p.cfg.Lock.QualityStay {
		return
	}

	corrs := p.cfg.Matcher.Match(regionPoints, f)
	if len(corrs) < rspnp.MinCorrespondences {
		return
	}

	est := p.solver.Solve(corrs, p.cfg.Intrinsics)
	p.emit(telemetry.Event{
		Code: telemetry.CodeWindowSummary, Timestamp: f.Timestamp,
		ValueA: est.Residual, ValueB: float64(est.Iterations),
	})
	if est.Valid {
		p.lastEstimate = est
		p.hasEstimate = true
		p.emit(telemetry.Event{
			Code: telemetry.CodeWindowPass, Timestamp: f.Timestamp,
			ValueA: norm3(est.V),
		})
		tracef("solve frame=%d residual=%.3fpx iters=%d", f.FrameID, est.Residual, est.Iterations)
	} else {
		p.emit(telemetry.Event{
			Code: telemetry.CodeWindowFail, Timestamp: f.Timestamp,
			ValueA: est.Residual,
		})
	}
}

// finishShot persists a completed lifecycle, integrating flight for
// finalized shots.
func (p *Pipeline) finishShot(rec *gates.ShotLifecycleRecord) {
	var fl *flight.Result
	if !rec.Refused {
		result := flight.Integrate(p.launchConditions(), p.cfg.Flight)
		fl = &result
	}
	if rec.Refused {
		opsf("shot %d refused: %s", rec.ShotID, rec.RefusalReason)
	} else {
		opsf("shot %d finalized", rec.ShotID)
	}
	if p.cfg.Records != nil {
		if err := p.cfg.Records.RecordShot(rec, fl); err != nil {
			opsf("record shot %d: %v", rec.ShotID, err)
		}
	}
	p.separation.Reset()
}

// launchConditions builds integrator inputs from the last estimate and the
// spin collaborator, falling back to solver angular velocity.
func (p *Pipeline) launchConditions() flight.LaunchConditions {
	lc := flight.LaunchConditions{PoseValid: p.hasEstimate && p.lastEstimate.Valid}
	if !lc.PoseValid {
		return lc
	}
	lc.Velocity = p.lastEstimate.V

	if p.cfg.Spin != nil {
		if spin, ok := p.cfg.Spin.Latest(); ok && spin.Confidence >= p.cfg.MinSpinConfidence {
			lc.SpinAxis = spin.Axis
			lc.SpinRPM = spin.RPM
			lc.SpinConfidence = spin.Confidence
			return lc
		}
	}

	// Solver angular velocity as the fallback spin source. Confidence
	// degrades with reprojection residual.
	w := p.lastEstimate.W
	wNorm := norm3(w)
	if wNorm > 0 {
		lc.SpinAxis = [3]float64{w[0] / wNorm, w[1] / wNorm, w[2] / wNorm}
		lc.SpinRPM = wNorm * 60 / (2 * math.Pi)
	}
	lc.SpinConfidence = residualConfidence(p.lastEstimate.Residual, p.cfg.Solver.MaxResidualPx)
	return lc
}

// impactSample derives the per-frame observation signals. Signals without
// enough evidence this frame are left nil rather than zeroed.
func (p *Pipeline) impactSample(f *vision.Frame, tracked, regionPoints []*vision.TrackedPoint, cl *cluster.BallCluster, meanSpeed float64) impact.Sample {
	s := impact.Sample{FrameID: f.FrameID, Timestamp: f.Timestamp}

	if len(tracked) > 0 {
		energy := 0.0
		for _, tp := range tracked {
			sp := tp.Speed()
			energy += sp * sp
		}
		energy /= float64(len(tracked))
		s.MotionEnergy = &energy

		disp := meanSpeed
		s.FeatureDisplacement = &disp
	}

	if p.hasPrev {
		accel := math.Abs(meanSpeed - p.prevMeanSpeed)
		s.AccelMag = &accel

		density := math.Abs(float64(len(tracked) - p.prevCount))
		s.DensityChange = &density
	}
	p.prevMeanSpeed = meanSpeed
	p.prevCount = len(tracked)
	p.hasPrev = true

	if cl != nil && len(regionPoints) >= 4 {
		if shear, asym, ok := rowSplitStats(regionPoints, cl.CentroidY); ok {
			s.RSShear = &shear
			s.TemporalAsymmetry = &asym
			p.emit(telemetry.Event{
				Code: telemetry.CodeRSMetric, Timestamp: f.Timestamp,
				ValueA: shear, ValueB: asym,
			})
		}
	}
	return s
}

func (p *Pipeline) emit(e telemetry.Event) {
	if p.cfg.Events != nil {
		p.cfg.Events.Emit(e)
	}
}

// rowSplitStats compares motion above and below the cluster centroid row.
// Rolling-shutter shear shows up as a horizontal velocity gradient across
// rows; temporal asymmetry as a normalised speed imbalance.
func rowSplitStats(points []*vision.TrackedPoint, splitY float64) (shear, asym float64, ok bool) {
	var topVX, botVX, topSpeed, botSpeed float64
	var topN, botN int
	for _, tp := range points {
		if tp.Y < splitY {
			topVX += tp.VX
			topSpeed += tp.Speed()
			topN++
		} else {
			botVX += tp.VX
			botSpeed += tp.Speed()
			botN++
		}
	}
	if topN == 0 || botN == 0 {
		return 0, 0, false
	}
	shear = math.Abs(topVX/float64(topN) - botVX/float64(botN))
	top := topSpeed / float64(topN)
	bot := botSpeed / float64(botN)
	if top+bot > 0 {
		asym = math.Abs(top-bot) / (top + bot)
	}
	return shear, asym, true
}

func trackStats(points []*vision.TrackedPoint) (meanSpeed, meanConf float64) {
	if len(points) == 0 {
		return 0, 0
	}
	for _, tp := range points {
		meanSpeed += tp.Speed()
		meanConf += tp.Confidence
	}
	n := float64(len(points))
	return meanSpeed / n, meanConf / n
}

func meanVelocity(points []*vision.TrackedPoint) (vx, vy float64) {
	if len(points) == 0 {
		return 0, 0
	}
	for _, tp := range points {
		vx += tp.VX
		vy += tp.VY
	}
	n := float64(len(points))
	return vx / n, vy / n
}

// presence blends point confidence with cluster quality; the cluster is the
// stronger witness when present.
func presence(meanConf float64, cl *cluster.BallCluster) float64 {
	if cl == nil {
		return meanConf * 0.5
	}
	return 0.4*meanConf + 0.6*cl.QualityScore
}

func captureValid(f *vision.Frame) bool {
	return f != nil && f.SensorRows > 0 && !f.Timestamp.IsZero()
}

func rsObservable(f *vision.Frame) bool {
	return f != nil && f.SensorRows > 1 && f.ReadoutDuration > 0
}

func residualConfidence(residual, maxResidual float64) float64 {
	if maxResidual <= 0 || math.IsInf(residual, 0) {
		return 0
	}
	c := 1 - residual/maxResidual
	if c < 0 {
		return 0
	}
	return c
}

func norm3(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}
