package gates

import (
	"time"

	"github.com/launchlab-data/launchlab/internal/monitoring"
	"github.com/launchlab-data/launchlab/internal/timeutil"
)

// LifecycleState is the lifecycle controller's FSM state.
type LifecycleState string

const (
	LifecycleIdle           LifecycleState = "idle"
	LifecyclePreImpact      LifecycleState = "pre_impact"
	LifecycleImpactObserved LifecycleState = "impact_observed"
	LifecyclePostImpact     LifecycleState = "post_impact"
	LifecycleShotFinalized  LifecycleState = "shot_finalized"
	LifecycleRefused        LifecycleState = "refused"
)

// RefusalReason is the closed set of reasons a shot attempt can be refused.
type RefusalReason string

const (
	RefusalInsufficientConfidence RefusalReason = "insufficient_confidence"
	RefusalLifecycleTimeout       RefusalReason = "lifecycle_timeout"
	RefusalCaptureInvalid         RefusalReason = "capture_invalid"
	RefusalRSNotObservable        RefusalReason = "rs_not_observable"
	RefusalForcedOverride         RefusalReason = "forced_override"
)

// LifecycleConfig holds the controller's time-based safety limit.
type LifecycleConfig struct {
	// DeadmanTimeout is the maximum a non-idle, non-terminal state may
	// persist without a transition before the attempt is refused. It is
	// the only wall-clock cancellation in the pipeline.
	DeadmanTimeout time.Duration
}

// DefaultLifecycleConfig returns the production deadman timeout.
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{DeadmanTimeout: 2 * time.Second}
}

// LifecycleInputs is one frame's worth of upstream evidence.
type LifecycleInputs struct {
	Eligible            bool // eligibility gate fired this frame
	ImpactObserved      bool // impact detector accepted a candidate
	SeparationConfirmed bool // separation gate confirmed this frame

	// Hard observability gates. Checked every update while an attempt is
	// in progress; failing either forces refusal.
	CaptureValid bool
	RSObservable bool

	// ExplicitRefusal short-circuits any in-progress attempt to refused.
	ExplicitRefusal *RefusalReason

	// UpstreamConfirmed permits finalization from post_impact. The base
	// pipeline never sets it; no shot is auto-accepted without a
	// deliberately separate confirmation mechanism.
	UpstreamConfirmed bool

	// Quiet releases a terminal state back to idle for the next attempt.
	Quiet bool
}

// ShotLifecycleRecord is emitted exactly once per completed lifecycle,
// finalized or refused.
type ShotLifecycleRecord struct {
	ShotID          uint64
	StartTimestamp  time.Time
	ImpactTimestamp *time.Time
	EndTimestamp    time.Time
	Refused         bool
	RefusalReason   RefusalReason
	FinalState      LifecycleState
}

// LifecycleController is the sole authority over shot outcomes. It is
// single-writer; the pipeline mutates it once per frame.
type LifecycleController struct {
	cfg   LifecycleConfig
	clock timeutil.Clock

	state          LifecycleState
	lastTransition time.Time

	shotID    uint64
	startedAt time.Time
	impactAt  time.Time
	hasImpact bool
}

// NewLifecycleController creates a controller in the idle state.
func NewLifecycleController(cfg LifecycleConfig, clock timeutil.Clock) *LifecycleController {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &LifecycleController{
		cfg:            cfg,
		clock:          clock,
		state:          LifecycleIdle,
		lastTransition: clock.Now(),
	}
}

// State returns the current FSM state.
func (c *LifecycleController) State() LifecycleState { return c.state }

// ShotID returns the id of the current or most recent attempt.
func (c *LifecycleController) ShotID() uint64 { return c.shotID }

func (c *LifecycleController) terminal() bool {
	return c.state == LifecycleShotFinalized || c.state == LifecycleRefused
}

// Update advances the FSM by one frame. It returns a record only on the
// frame a lifecycle completes; most frames return nil.
func (c *LifecycleController) Update(in LifecycleInputs) *ShotLifecycleRecord {
	if c.terminal() {
		if in.Quiet {
			c.transition(LifecycleIdle)
			c.hasImpact = false
		}
		return nil
	}

	if c.state == LifecycleIdle {
		// Nothing in progress to refuse. Failing observability gates
		// only prevent an attempt from starting.
		if in.Eligible && in.CaptureValid && in.RSObservable && in.ExplicitRefusal == nil {
			c.shotID++
			c.startedAt = c.clock.Now()
			c.hasImpact = false
			c.transition(LifecyclePreImpact)
		}
		return nil
	}

	// Refusal checks run before any normal transition, in fixed order.
	if in.ExplicitRefusal != nil {
		return c.refuse(*in.ExplicitRefusal)
	}
	if !in.CaptureValid {
		return c.refuse(RefusalCaptureInvalid)
	}
	if !in.RSObservable {
		return c.refuse(RefusalRSNotObservable)
	}
	if c.clock.Since(c.lastTransition) > c.cfg.DeadmanTimeout {
		return c.refuse(RefusalLifecycleTimeout)
	}

	switch c.state {
	case LifecyclePreImpact:
		if in.ImpactObserved {
			c.impactAt = c.clock.Now()
			c.hasImpact = true
			c.transition(LifecycleImpactObserved)
		}
	case LifecycleImpactObserved:
		if in.SeparationConfirmed {
			c.transition(LifecyclePostImpact)
		}
	case LifecyclePostImpact:
		if in.UpstreamConfirmed {
			return c.finalize()
		}
	}
	return nil
}

func (c *LifecycleController) refuse(reason RefusalReason) *ShotLifecycleRecord {
	c.transition(LifecycleRefused)
	monitoring.Eventf("shot_refused", "shot_id", c.shotID, "reason", string(reason))
	return c.record(true, reason)
}

func (c *LifecycleController) finalize() *ShotLifecycleRecord {
	c.transition(LifecycleShotFinalized)
	monitoring.Eventf("shot_finalized", "shot_id", c.shotID)
	return c.record(false, "")
}

func (c *LifecycleController) record(refused bool, reason RefusalReason) *ShotLifecycleRecord {
	rec := &ShotLifecycleRecord{
		ShotID:         c.shotID,
		StartTimestamp: c.startedAt,
		EndTimestamp:   c.clock.Now(),
		Refused:        refused,
		RefusalReason:  reason,
		FinalState:     c.state,
	}
	if c.hasImpact {
		t := c.impactAt
		rec.ImpactTimestamp = &t
	}
	return rec
}

func (c *LifecycleController) transition(next LifecycleState) {
	if next == c.state {
		return
	}
	monitoring.Eventf("lifecycle_transition", "shot_id", c.shotID, "from", string(c.state), "to", string(next))
	c.state = next
	c.lastTransition = c.clock.Now()
}
