package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchlab-data/launchlab/internal/vision"
)

// ringPoints places n points evenly on a circle of the given radius.
func ringPoints(cx, cy, radius float64, n int) []*vision.TrackedPoint {
	pts := make([]*vision.TrackedPoint, n)
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = &vision.TrackedPoint{
			ID: int64(i + 1),
			X:  cx + radius*math.Cos(angle),
			Y:  cy + radius*math.Sin(angle),
		}
	}
	return pts
}

func TestScoreIdealBallCluster(t *testing.T) {
	t.Parallel()

	// count=40, radius=35px inside the [20,60] band, symmetry=0.9 must
	// clear the default lock threshold of 0.8.
	q := Score(40, 35, 0.9, DefaultParams())
	assert.GreaterOrEqual(t, q, 0.8)
	assert.LessOrEqual(t, q, 1.0)
}

func TestScoreDegradesOutsideRadiusBand(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	inBand := Score(40, 35, 0.9, p)
	tooSmall := Score(40, 5, 0.9, p)
	tooLarge := Score(40, 150, 0.9, p)

	assert.Greater(t, inBand, tooSmall)
	assert.Greater(t, inBand, tooLarge)
}

func TestScoreDegradesWithCountMismatch(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	assert.Greater(t, Score(40, 35, 0.9, p), Score(8, 35, 0.9, p))
	assert.Greater(t, Score(40, 35, 0.9, p), Score(110, 35, 0.9, p))
}

func TestClassifySymmetricRing(t *testing.T) {
	t.Parallel()

	pts := ringPoints(200, 200, 30, 40)
	c, ok := Classify(pts, 200, 200, 100, DefaultParams())
	require.True(t, ok)

	assert.InDelta(t, 200, c.CentroidX, 1e-9)
	assert.InDelta(t, 200, c.CentroidY, 1e-9)
	// RMS-derived radius of a thin ring overestimates by √2.
	assert.InDelta(t, 30*math.Sqrt2, c.RadiusPx, 0.5)
	assert.Equal(t, 40, c.Count)
	assert.Greater(t, c.SymmetryScore, 0.9)
	assert.Less(t, c.Eccentricity, 0.1)
	assert.Greater(t, c.QualityScore, 0.8)
}

func TestClassifyRejectsTooFewPoints(t *testing.T) {
	t.Parallel()

	pts := ringPoints(200, 200, 30, 4)
	_, ok := Classify(pts, 200, 200, 100, DefaultParams())
	assert.False(t, ok)
}

func TestClassifyRejectsTooManyPoints(t *testing.T) {
	t.Parallel()

	pts := ringPoints(200, 200, 30, 200)
	_, ok := Classify(pts, 200, 200, 100, DefaultParams())
	assert.False(t, ok)
}

func TestClassifyIgnoresPointsOutsideRegion(t *testing.T) {
	t.Parallel()

	pts := ringPoints(200, 200, 30, 40)
	// Far-away noise must not shift the centroid.
	noise := ringPoints(600, 600, 10, 20)
	c, ok := Classify(append(pts, noise...), 200, 200, 100, DefaultParams())
	require.True(t, ok)
	assert.Equal(t, 40, c.Count)
	assert.InDelta(t, 200, c.CentroidX, 1e-9)
}

func TestClassifyPenalisesElongatedCluster(t *testing.T) {
	t.Parallel()

	// A streak: 40 points on a line (shaft or motion blur, not a ball).
	pts := make([]*vision.TrackedPoint, 40)
	for i := range pts {
		pts[i] = &vision.TrackedPoint{
			ID: int64(i + 1),
			X:  160 + 2*float64(i),
			Y:  200 + 0.02*float64(i),
		}
	}

	c, ok := Classify(pts, 200, 200, 100, DefaultParams())
	require.True(t, ok)
	assert.Greater(t, c.Eccentricity, 0.95)
	assert.Less(t, c.QualityScore, 0.2)
}

func TestClassifyPureFunction(t *testing.T) {
	t.Parallel()

	pts := ringPoints(200, 200, 30, 40)
	a, okA := Classify(pts, 200, 200, 100, DefaultParams())
	b, okB := Classify(pts, 200, 200, 100, DefaultParams())
	require.True(t, okA)
	require.True(t, okB)
	assert.Equal(t, a, b)
}
