// Package vision defines the camera-facing frame model shared by the launch
// monitor pipeline: corner detections, camera intrinsics, rolling-shutter row
// timing, and the per-frame point tracker that gives detections persistent
// identity.
package vision

import (
	"time"
)

// Intrinsics holds the pinhole camera parameters supplied by the capture
// collaborator.
type Intrinsics struct {
	Fx float64 // focal length x (px)
	Fy float64 // focal length y (px)
	Cx float64 // principal point x (px)
	Cy float64 // principal point y (px)
}

// CornerPoint is a single scored 2D detection in image space, as produced by
// the external corner source.
type CornerPoint struct {
	X     float64
	Y     float64
	Score float64
}

// Frame is one capture frame's worth of detections plus the sensor timing
// needed for rolling-shutter correction.
type Frame struct {
	FrameID   uint64
	Timestamp time.Time

	// SensorRows is the sensor height in rows; row 0 is exposed at frame
	// start and row SensorRows-1 at frame start + ReadoutDuration.
	SensorRows      int
	ReadoutDuration time.Duration

	Corners []CornerPoint
}

// RowTime returns the capture-time offset in seconds for an image row. Each
// row is physically exposed later than the previous one; the solver needs
// this per-observation offset. Rows outside the sensor are clamped.
func (f *Frame) RowTime(y float64) float64 {
	if f.SensorRows <= 1 || f.ReadoutDuration <= 0 {
		return 0
	}
	if y < 0 {
		y = 0
	}
	maxRow := float64(f.SensorRows - 1)
	if y > maxRow {
		y = maxRow
	}
	return (y / maxRow) * f.ReadoutDuration.Seconds()
}
