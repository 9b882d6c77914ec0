package gates

import (
	"math"

	"github.com/launchlab-data/launchlab/internal/monitoring"
)

// SeparationConfig holds the ballistic-separation confirmation thresholds.
// Positions and speeds are in the caller's units (pixels and pixels/second
// in the tracking pipeline).
type SeparationConfig struct {
	MinFrames         int     // consecutive qualifying frames required
	MinSpeed          float64 // minimum per-frame speed
	MinEscapeDistance float64 // minimum distance from the first observation
	DirectionDotMin   float64 // dot of successive unit velocities must reach this
}

// DefaultSeparationConfig returns production thresholds for 240 Hz capture.
func DefaultSeparationConfig() SeparationConfig {
	return SeparationConfig{
		MinFrames:         4,
		MinSpeed:          800,
		MinEscapeDistance: 60,
		DirectionDotMin:   0.8,
	}
}

// SeparationGate confirms that post-impact motion is a coherent departure
// rather than jitter. It confirms at most once per attempt; Reset re-arms
// it for the next attempt.
type SeparationGate struct {
	cfg SeparationConfig

	hasOrigin        bool
	originX, originY float64

	hasDir       bool
	dirX, dirY   float64
	qualifiedRun int
	confirmed    bool
}

// NewSeparationGate creates an unarmed gate.
func NewSeparationGate(cfg SeparationConfig) *SeparationGate {
	return &SeparationGate{cfg: cfg}
}

// Confirmed reports whether this attempt's separation has been confirmed.
func (g *SeparationGate) Confirmed() bool { return g.confirmed }

// Reset clears all attempt state so the gate can confirm again.
func (g *SeparationGate) Reset() {
	*g = SeparationGate{cfg: g.cfg}
}

// Observe ingests one frame of post-impact motion and returns true exactly
// once, on the frame separation is confirmed.
func (g *SeparationGate) Observe(x, y, vx, vy float64) bool {
	if g.confirmed {
		return false
	}

	if !g.hasOrigin {
		g.hasOrigin = true
		g.originX, g.originY = x, y
	}

	speed := math.Hypot(vx, vy)
	if speed < g.cfg.MinSpeed {
		g.qualifiedRun = 0
		g.hasDir = false
		return false
	}

	nx, ny := vx/speed, vy/speed
	if g.hasDir {
		if nx*g.dirX+ny*g.dirY < g.cfg.DirectionDotMin {
			// Direction flip or jitter. Restart the run from this
			// frame's heading.
			g.qualifiedRun = 1
			g.dirX, g.dirY = nx, ny
			return false
		}
	} else {
		g.hasDir = true
	}
	g.dirX, g.dirY = nx, ny
	g.qualifiedRun++

	if g.qualifiedRun < g.cfg.MinFrames {
		return false
	}
	if math.Hypot(x-g.originX, y-g.originY) < g.cfg.MinEscapeDistance {
		return false
	}

	g.confirmed = true
	monitoring.Eventf("separation_confirmed", "frames", g.qualifiedRun, "speed", speed)
	return true
}
