package vision

import (
	"math"
	"time"
)

// Tracker configuration bounds.
const (
	// DefaultFrameInterval is assumed for the first frame when no previous
	// timestamp exists (240 Hz capture).
	DefaultFrameInterval = time.Second / 240
)

// TrackerConfig holds configuration parameters for the point tracker.
type TrackerConfig struct {
	MaxPoints        int     // Maximum number of concurrent tracked points
	MaxMisses        int     // Consecutive missed frames before a point is destroyed
	GatingRadiusPx   float64 // Maximum association distance (px)
	MaxSpeedPxPerSec float64 // Correspondences implying higher speeds are rejected
	PredictionWeight float64 // How much a point's predicted position penalises mismatch
}

// DefaultTrackerConfig returns default point tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxPoints:        256,
		MaxMisses:        3,
		GatingRadiusPx:   24.0,
		MaxSpeedPxPerSec: 20000.0, // ball dots move fast at 240 Hz
		PredictionWeight: 0.5,
	}
}

// TrackedPoint is a corner detection with persistent identity. Identity
// persists while the point is continuously observed and is destroyed after
// MaxMisses untracked frames.
type TrackedPoint struct {
	ID int64

	// Image position (px) and estimated velocity (px/s)
	X, Y   float64
	VX, VY float64

	// Confidence in [0, 1], derived from association quality and age
	Confidence float64

	Hits   int // Consecutive frames this point was observed
	Misses int // Consecutive frames this point was missed
}

// Speed returns the point's current image-space speed in px/s.
func (p *TrackedPoint) Speed() float64 {
	return math.Hypot(p.VX, p.VY)
}

// PointTracker associates scored corner detections across frames. It is the
// first stateful stage of the pipeline: everything downstream consumes
// TrackedPoints, never raw corners.
type PointTracker struct {
	points map[int64]*TrackedPoint
	nextID int64
	config TrackerConfig

	lastTimestamp time.Time
}

// NewPointTracker creates a point tracker with the given configuration.
func NewPointTracker(config TrackerConfig) *PointTracker {
	return &PointTracker{
		points: make(map[int64]*TrackedPoint),
		nextID: 1,
		config: config,
	}
}

// Update processes one frame of corner detections and returns the live
// tracked points. The returned slice is a snapshot; the tracker retains
// ownership of the underlying points.
func (t *PointTracker) Update(corners []CornerPoint, timestamp time.Time) []*TrackedPoint {
	dt := DefaultFrameInterval.Seconds()
	if !t.lastTimestamp.IsZero() {
		if d := timestamp.Sub(t.lastTimestamp).Seconds(); d > 0 {
			dt = d
		}
	}
	t.lastTimestamp = timestamp

	// Step 1: associate each live point to its nearest unclaimed corner
	// within the gating radius, biased toward the predicted position.
	claimed := make([]bool, len(corners))
	matched := make(map[int64]int, len(t.points))

	for id, p := range t.points {
		predX := p.X + p.VX*dt
		predY := p.Y + p.VY*dt

		bestIdx := -1
		bestDist := t.config.GatingRadiusPx

		for ci, c := range corners {
			if claimed[ci] {
				continue
			}
			obsDist := math.Hypot(c.X-p.X, c.Y-p.Y)
			predDist := math.Hypot(c.X-predX, c.Y-predY)
			dist := obsDist + t.config.PredictionWeight*predDist
			if dist < bestDist {
				// Reject correspondences implying implausible speeds.
				if obsDist/dt > t.config.MaxSpeedPxPerSec {
					continue
				}
				bestDist = dist
				bestIdx = ci
			}
		}

		if bestIdx >= 0 {
			claimed[bestIdx] = true
			matched[id] = bestIdx
		}
	}

	// Step 2: update matched points.
	for id, ci := range matched {
		p := t.points[id]
		c := corners[ci]

		p.VX = (c.X - p.X) / dt
		p.VY = (c.Y - p.Y) / dt
		p.X = c.X
		p.Y = c.Y
		p.Hits++
		p.Misses = 0

		// Confidence grows with observation streak, scaled by the
		// detector's own score.
		age := math.Min(float64(p.Hits)/5.0, 1.0)
		p.Confidence = age * clamp01(c.Score)
	}

	// Step 3: advance misses on unmatched points and destroy stale ones.
	for id, p := range t.points {
		if _, ok := matched[id]; ok {
			continue
		}
		p.Misses++
		p.Hits = 0
		p.Confidence *= 0.5
		if p.Misses >= t.config.MaxMisses {
			delete(t.points, id)
		}
	}

	// Step 4: spawn new points from unclaimed corners.
	for ci, c := range corners {
		if claimed[ci] || len(t.points) >= t.config.MaxPoints {
			continue
		}
		id := t.nextID
		t.nextID++
		t.points[id] = &TrackedPoint{
			ID:         id,
			X:          c.X,
			Y:          c.Y,
			Hits:       1,
			Confidence: 0.2 * clamp01(c.Score), // unproven identity
		}
	}

	return t.snapshot()
}

// PointsInRegion returns the live points within radius of (cx, cy).
func (t *PointTracker) PointsInRegion(cx, cy, radius float64) []*TrackedPoint {
	r2 := radius * radius
	var out []*TrackedPoint
	for _, p := range t.points {
		dx := p.X - cx
		dy := p.Y - cy
		if dx*dx+dy*dy <= r2 {
			out = append(out, p)
		}
	}
	return out
}

// Count returns the number of live tracked points.
func (t *PointTracker) Count() int { return len(t.points) }

func (t *PointTracker) snapshot() []*TrackedPoint {
	out := make([]*TrackedPoint, 0, len(t.points))
	for _, p := range t.points {
		out = append(out, p)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
