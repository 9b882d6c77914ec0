// Package lock implements the ball lock state machine: a hysteresis filter
// that turns a stream of per-frame cluster quality scores into a stable
// locked/unlocked decision and the tracked region of interest used to gate
// the next frame's points.
package lock

import (
	"github.com/launchlab-data/launchlab/internal/cluster"
	"github.com/launchlab-data/launchlab/internal/monitoring"
)

// State is the lifecycle state of the ball lock.
type State string

const (
	// StateSearching means no candidate has been seen recently; the ROI is
	// the wide search region.
	StateSearching State = "searching"
	// StateAcquiring means a good candidate is being confirmed over
	// consecutive frames.
	StateAcquiring State = "acquiring"
	// StateLocked means the machine has committed to a cluster as the ball.
	StateLocked State = "locked"
	// StateCoasting means lock quality collapsed; the ROI is held briefly
	// in case the ball reappears before falling back to searching.
	StateCoasting State = "coasting"
)

// Config holds the hysteresis thresholds and ROI behaviour.
type Config struct {
	QualityLock float64 // Quality needed to promote toward locked
	QualityStay float64 // Quality floor that keeps an existing lock

	LockAfterN   int // Consecutive good frames to promote acquiring → locked
	UnlockAfterM int // Consecutive bad frames to demote locked → coasting
	CoastFrames  int // Frames spent coasting before searching

	ROISmoothing   float64 // EWMA factor α for the ROI centre
	ROIRadiusScale float64 // ROI radius = cluster radius × this factor
	MinROIRadius   float64 // px
	MaxROIRadius   float64 // px

	// Wide search region used while searching.
	SearchCenterX float64
	SearchCenterY float64
	SearchRadius  float64
}

// DefaultConfig returns default lock configuration for a 1280×1024 sensor.
func DefaultConfig() Config {
	return Config{
		QualityLock:    0.8,
		QualityStay:    0.55,
		LockAfterN:     3,
		UnlockAfterM:   5,
		CoastFrames:    12,
		ROISmoothing:   0.35,
		ROIRadiusScale: 2.5,
		MinROIRadius:   40,
		MaxROIRadius:   400,
		SearchCenterX:  640,
		SearchCenterY:  512,
		SearchRadius:   700,
	}
}

// Snapshot is the per-frame output of the lock machine.
type Snapshot struct {
	State State

	ROICenterX float64
	ROICenterY float64
	ROIRadius  float64

	ConsecutiveGood int
	ConsecutiveBad  int

	// LockedFrames counts consecutive frames spent in StateLocked. Any
	// departure from locked resets it to zero; downstream gates require a
	// minimum locked window before trusting pose estimates.
	LockedFrames int

	// Quality of this frame's cluster, 0 when none was found.
	Quality float64
}

// Machine holds the lock state. It is mutated exactly once per frame by
// Update and is not safe for concurrent use; the pipeline owns it.
type Machine struct {
	cfg Config

	state        State
	roiX, roiY   float64
	roiRadius    float64
	good, bad    int
	coasted      int
	lockedFrames int
}

// NewMachine creates a lock machine in the searching state.
func NewMachine(cfg Config) *Machine {
	return &Machine{
		cfg:       cfg,
		state:     StateSearching,
		roiX:      cfg.SearchCenterX,
		roiY:      cfg.SearchCenterY,
		roiRadius: cfg.SearchRadius,
	}
}

// State returns the current lock state.
func (m *Machine) State() State { return m.state }

// Update advances the machine by one frame. A nil cluster is treated exactly
// like a too-low-quality cluster: a vote toward demotion, never fatal.
func (m *Machine) Update(c *cluster.BallCluster) Snapshot {
	quality := 0.0
	if c != nil {
		quality = c.QualityScore
	}

	prev := m.state
	switch m.state {
	case StateSearching:
		if quality >= m.cfg.QualityLock {
			m.state = StateAcquiring
			m.good = 1
			m.followCluster(c, 1.0) // snap, no history to smooth against
		}

	case StateAcquiring:
		if quality >= m.cfg.QualityLock {
			m.good++
			m.followCluster(c, m.cfg.ROISmoothing)
			if m.good >= m.cfg.LockAfterN {
				m.state = StateLocked
				m.lockedFrames = 0
			}
		} else {
			m.resetToSearching()
		}

	case StateLocked:
		if quality >= m.cfg.QualityStay {
			m.bad = 0
			m.followCluster(c, m.cfg.ROISmoothing)
		} else {
			m.bad++
			if m.bad >= m.cfg.UnlockAfterM {
				m.state = StateCoasting
				m.coasted = 0
			}
		}

	case StateCoasting:
		if quality >= m.cfg.QualityLock {
			// Re-acquired, but the locked window restarts: the gap
			// invalidated continuity.
			m.state = StateLocked
			m.bad = 0
			m.lockedFrames = 0
			m.followCluster(c, m.cfg.ROISmoothing)
		} else {
			m.coasted++
			if m.coasted >= m.cfg.CoastFrames {
				m.resetToSearching()
			}
		}
	}

	if m.state == StateLocked {
		m.lockedFrames++
	} else {
		m.lockedFrames = 0
	}

	if m.state != prev {
		monitoring.Eventf("lock_transition",
			"from", string(prev), "to", string(m.state), "quality", quality)
	}

	return Snapshot{
		State:           m.state,
		ROICenterX:      m.roiX,
		ROICenterY:      m.roiY,
		ROIRadius:       m.roiRadius,
		ConsecutiveGood: m.good,
		ConsecutiveBad:  m.bad,
		LockedFrames:    m.lockedFrames,
		Quality:         quality,
	}
}

// followCluster updates the ROI toward the cluster with exponential
// smoothing; alpha=1 snaps directly. Damps jitter while following motion.
func (m *Machine) followCluster(c *cluster.BallCluster, alpha float64) {
	if c == nil {
		return
	}
	m.roiX = alpha*c.CentroidX + (1-alpha)*m.roiX
	m.roiY = alpha*c.CentroidY + (1-alpha)*m.roiY

	r := c.RadiusPx * m.cfg.ROIRadiusScale
	if r < m.cfg.MinROIRadius {
		r = m.cfg.MinROIRadius
	}
	if r > m.cfg.MaxROIRadius {
		r = m.cfg.MaxROIRadius
	}
	m.roiRadius = r
}

func (m *Machine) resetToSearching() {
	m.state = StateSearching
	m.good = 0
	m.bad = 0
	m.coasted = 0
	m.lockedFrames = 0
	m.roiX = m.cfg.SearchCenterX
	m.roiY = m.cfg.SearchCenterY
	m.roiRadius = m.cfg.SearchRadius
}
