// Package gates implements the refusal-first authority chain that decides
// whether a shot attempt may proceed. Each stage is strictly more
// conservative than the last; only the lifecycle controller may emit a
// finalized or refused shot record.
package gates

import (
	"github.com/launchlab-data/launchlab/internal/monitoring"
)

// EligibilityState is the arming state of the eligibility gate.
type EligibilityState string

const (
	EligibilityIdle  EligibilityState = "idle"
	EligibilityArmed EligibilityState = "armed"
)

// EligibilityConfig holds the arming and firing thresholds.
type EligibilityConfig struct {
	MinQuietFrames  int     // quiet run required before the gate arms
	PresenceMin     float64 // minimum presence confidence while armed
	MotionMin       float64 // minimum instantaneous motion while armed
	MinActiveFrames int     // consecutive qualifying frames required to fire
	CooldownFrames  int     // frames after firing before quiet counting resumes
}

// DefaultEligibilityConfig returns production thresholds for 240 Hz capture.
func DefaultEligibilityConfig() EligibilityConfig {
	return EligibilityConfig{
		MinQuietFrames:  30,
		PresenceMin:     0.6,
		MotionMin:       1.5,
		MinActiveFrames: 4,
		CooldownFrames:  120,
	}
}

// EligibilitySignals is the per-frame evidence the gate evaluates.
type EligibilitySignals struct {
	PresenceConfidence float64
	Motion             float64
	Quiet              bool // scene-level idle phase flag
}

// EligibilityDecision is the gate's per-frame verdict. Eligible is a
// one-shot: it is true for exactly one frame per arming cycle.
type EligibilityDecision struct {
	Eligible bool
	Reason   string
}

// Ineligibility reasons, reported in frame order of evaluation.
const (
	ReasonCoolingDown        = "cooling_down"
	ReasonNotArmed           = "not_armed"
	ReasonScenePhaseIdle     = "scene_phase_idle"
	ReasonPresenceBelowMin   = "presence_below_min"
	ReasonMotionBelowMin     = "motion_below_min"
	ReasonActivityUnsustained = "activity_unsustained"
)

// EligibilityGate arms after a quiet run and fires a one-shot eligible
// decision when presence, motion, and phase stay qualified long enough.
// Single-writer; the pipeline owns it.
type EligibilityGate struct {
	cfg EligibilityConfig

	state     EligibilityState
	quietRun  int
	activeRun int
	cooldown  int
}

// NewEligibilityGate creates a gate in the idle state.
func NewEligibilityGate(cfg EligibilityConfig) *EligibilityGate {
	return &EligibilityGate{cfg: cfg, state: EligibilityIdle}
}

// State returns the current arming state.
func (g *EligibilityGate) State() EligibilityState { return g.state }

// Update evaluates one frame's signals.
func (g *EligibilityGate) Update(s EligibilitySignals) EligibilityDecision {
	if g.state == EligibilityIdle {
		return g.updateIdle(s)
	}
	return g.updateArmed(s)
}

func (g *EligibilityGate) updateIdle(s EligibilitySignals) EligibilityDecision {
	if g.cooldown > 0 {
		g.cooldown--
		g.quietRun = 0
		return EligibilityDecision{Reason: ReasonCoolingDown}
	}

	if s.Quiet {
		g.quietRun++
	} else {
		g.quietRun = 0
	}

	if g.quietRun >= g.cfg.MinQuietFrames {
		g.state = EligibilityArmed
		g.activeRun = 0
		monitoring.Eventf("eligibility_armed", "quiet_run", g.quietRun)
	}
	return EligibilityDecision{Reason: ReasonNotArmed}
}

func (g *EligibilityGate) updateArmed(s EligibilitySignals) EligibilityDecision {
	reason := ""
	switch {
	case s.Quiet:
		reason = ReasonScenePhaseIdle
	case s.PresenceConfidence < g.cfg.PresenceMin:
		reason = ReasonPresenceBelowMin
	case s.Motion < g.cfg.MotionMin:
		reason = ReasonMotionBelowMin
	}
	if reason != "" {
		g.activeRun = 0
		return EligibilityDecision{Reason: reason}
	}

	g.activeRun++
	if g.activeRun < g.cfg.MinActiveFrames {
		return EligibilityDecision{Reason: ReasonActivityUnsustained}
	}

	// Fire once and disarm. Re-arming needs the cooldown plus a fresh
	// quiet run.
	g.state = EligibilityIdle
	g.quietRun = 0
	g.activeRun = 0
	g.cooldown = g.cfg.CooldownFrames
	monitoring.Eventf("eligibility_fired", "presence", s.PresenceConfidence, "motion", s.Motion)
	return EligibilityDecision{Eligible: true}
}
