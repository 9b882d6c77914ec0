package flight

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// launchAt builds conditions for a shot straight down the target line.
func launchAt(angleDeg, speedMps, spinRPM float64) LaunchConditions {
	rad := angleDeg * math.Pi / 180
	return LaunchConditions{
		Velocity:       [3]float64{speedMps * math.Cos(rad), speedMps * math.Sin(rad), 0},
		SpinAxis:       [3]float64{0, 0, 1}, // pure backspin for +X flight
		SpinRPM:        spinRPM,
		SpinConfidence: 0.9,
		PoseValid:      true,
	}
}

func TestDriverShotScenario(t *testing.T) {
	t.Parallel()

	// 12° launch, 60 m/s, 2500 rpm backspin: a plausible driver strike.
	res := Integrate(launchAt(12, 60, 2500), DefaultConfig())

	require.True(t, res.Valid)
	assert.Greater(t, res.ApexHeight, 0.0)
	assert.Greater(t, res.CarryDistance, 0.0)
	assert.GreaterOrEqual(t, res.TotalDistance, res.CarryDistance, "roll is never negative")
	assert.InDelta(t, 12, res.LaunchAngleDeg, 1e-9)
	assert.Greater(t, res.TimeOfFlight, 2.0)
	assert.Less(t, res.TimeOfFlight, 10.0)

	// Sanity band for a 60 m/s driver: well past 100 m, under 300 m.
	assert.Greater(t, res.CarryDistance, 100.0)
	assert.Less(t, res.CarryDistance, 300.0)
	assert.Greater(t, res.LandingAngleDeg, 0.0)
}

func TestIntegrateIdempotent(t *testing.T) {
	t.Parallel()

	lc := launchAt(15, 55, 3200)
	a := Integrate(lc, DefaultConfig())
	b := Integrate(lc, DefaultConfig())
	assert.Equal(t, a, b, "identical inputs must produce bit-identical results")
}

func TestRejectsInvalidPose(t *testing.T) {
	t.Parallel()

	lc := launchAt(12, 60, 2500)
	lc.PoseValid = false
	res := Integrate(lc, DefaultConfig())
	assert.Equal(t, Result{}, res)
}

func TestRejectsLowSpinConfidence(t *testing.T) {
	t.Parallel()

	lc := launchAt(12, 60, 2500)
	lc.SpinConfidence = 0.1
	res := Integrate(lc, DefaultConfig())
	assert.Equal(t, Result{}, res)
}

func TestInitialSpeedClamped(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	atLimit := Integrate(launchAt(12, cfg.MaxSpeedMps, 2500), cfg)
	beyond := Integrate(launchAt(12, 250, 2500), cfg)

	require.True(t, atLimit.Valid)
	require.True(t, beyond.Valid)
	assert.Equal(t, atLimit, beyond, "speeds above the clamp are indistinguishable")
}

func TestBackspinLiftExtendsCarry(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	noSpin := launchAt(12, 60, 2500)
	noSpin.SpinRPM = 0
	flat := Integrate(noSpin, cfg)
	spun := Integrate(launchAt(12, 60, 2500), cfg)

	require.True(t, flat.Valid)
	require.True(t, spun.Valid)
	assert.Greater(t, spun.ApexHeight, flat.ApexHeight, "backspin lifts the ball")
	assert.Greater(t, spun.CarryDistance, flat.CarryDistance)
}

func TestHigherSpinReducesRoll(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	low := Integrate(launchAt(12, 60, 2000), cfg)
	high := Integrate(launchAt(12, 60, 5500), cfg)

	require.True(t, low.Valid)
	require.True(t, high.Valid)
	assert.Greater(t, low.TotalDistance-low.CarryDistance,
		high.TotalDistance-high.CarryDistance)
}

func TestSidespinCurvesFlight(t *testing.T) {
	t.Parallel()

	lc := launchAt(12, 60, 2500)
	// Tilt the spin axis: part backspin, part sidespin.
	lc.SpinAxis = [3]float64{0, 0.5, 0.866}
	res := Integrate(lc, DefaultConfig())

	require.True(t, res.Valid)
	assert.NotZero(t, res.Curvature)
}

func TestSafetyCutoffIsFailure(t *testing.T) {
	t.Parallel()

	// Straight-up launch with extreme spin loiters past the cutoff when
	// the sim window is artificially tiny.
	cfg := DefaultConfig()
	cfg.MaxSimSeconds = 0.05
	res := Integrate(launchAt(80, 60, 2500), cfg)
	assert.Equal(t, Result{}, res, "cutoff is an integration failure, not a flight")
}

func TestZeroVelocityRejected(t *testing.T) {
	t.Parallel()

	lc := LaunchConditions{
		SpinAxis:       [3]float64{0, 0, 1},
		SpinRPM:        2500,
		SpinConfidence: 0.9,
		PoseValid:      true,
	}
	res := Integrate(lc, DefaultConfig())
	assert.Equal(t, Result{}, res)
}

func TestIntegrateTraceMatchesSummary(t *testing.T) {
	t.Parallel()

	lc := launchAt(12, 60, 2500)
	cfg := DefaultConfig()

	res, trace := IntegrateTrace(lc, cfg, 10)
	require.True(t, res.Valid)
	require.NotEmpty(t, trace)

	assert.Equal(t, Integrate(lc, cfg), res)

	assert.Equal(t, 0.0, trace[0].T)
	assert.Equal(t, [3]float64{}, trace[0].Pos)
	for i := 1; i < len(trace); i++ {
		assert.Greater(t, trace[i].T, trace[i-1].T)
	}

	last := trace[len(trace)-1]
	assert.InDelta(t, res.TimeOfFlight, last.T, 1e-9)
	assert.InDelta(t, res.CarryDistance, math.Hypot(last.Pos[0], last.Pos[2]), 1e-9)

	_, none := IntegrateTrace(lc, cfg, 0)
	assert.Nil(t, none)
}
