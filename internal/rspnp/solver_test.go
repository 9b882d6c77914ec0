package rspnp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchlab-data/launchlab/internal/vision"
)

var testIntrinsics = vision.Intrinsics{Fx: 1400, Fy: 1400, Cx: 640, Cy: 512}

// stubBootstrap returns a fixed pose, standing in for the closed-form PnP
// collaborator.
type stubBootstrap struct {
	r    [9]float64
	t    [3]float64
	fail bool
}

func (b stubBootstrap) Solve([]Correspondence, vision.Intrinsics) ([9]float64, [3]float64, bool) {
	return b.r, b.t, !b.fail
}

// ballDots are model points spread over a golf-ball-sized sphere, in metres.
func ballDots() [][3]float64 {
	const r = 0.021335
	return [][3]float64{
		{r, 0, 0}, {-r, 0, 0},
		{0, r, 0}, {0, -r, 0},
		{0, 0, r}, {0, 0, -r},
		{r * 0.577, r * 0.577, r * 0.577},
		{-r * 0.577, r * 0.577, -r * 0.577},
		{r * 0.577, -r * 0.577, -r * 0.577},
		{-r * 0.577, -r * 0.577, r * 0.577},
		{r * 0.707, r * 0.707, 0},
		{0, r * 0.707, -r * 0.707},
	}
}

// project generates noiseless observations through the full rolling-shutter
// motion model.
func project(world [][3]float64, r [9]float64, t, w, v [3]float64, rowTimes []float64, intr vision.Intrinsics) []Correspondence {
	out := make([]Correspondence, len(world))
	for i, x := range world {
		rt := rowTimes[i]
		y := MulVec3(r, x)
		ay := MulVec3(ExpSO3([3]float64{w[0] * rt, w[1] * rt, w[2] * rt}), y)
		p := [3]float64{
			ay[0] + t[0] + v[0]*rt,
			ay[1] + t[1] + v[1]*rt,
			ay[2] + t[2] + v[2]*rt,
		}
		out[i] = Correspondence{
			World:   x,
			ImageU:  intr.Fx*p[0]/p[2] + intr.Cx,
			ImageV:  intr.Fy*p[1]/p[2] + intr.Cy,
			RowTime: rt,
		}
	}
	return out
}

func spreadRowTimes(n int, readout float64) []float64 {
	ts := make([]float64, n)
	for i := range ts {
		ts[i] = readout * float64(i) / float64(n-1)
	}
	return ts
}

func TestExpSO3Identity(t *testing.T) {
	t.Parallel()

	r := ExpSO3([3]float64{0, 0, 0})
	assert.Equal(t, Identity3(), r)
}

func TestExpSO3QuarterTurn(t *testing.T) {
	t.Parallel()

	// π/2 about Z maps +X to +Y.
	r := ExpSO3([3]float64{0, 0, math.Pi / 2})
	got := MulVec3(r, [3]float64{1, 0, 0})
	assert.InDelta(t, 0, got[0], 1e-12)
	assert.InDelta(t, 1, got[1], 1e-12)
	assert.InDelta(t, 0, got[2], 1e-12)
	assert.Less(t, OrthonormalityError(r), 1e-12)
}

func TestExpSO3SmallAngleStable(t *testing.T) {
	t.Parallel()

	r := ExpSO3([3]float64{1e-12, -1e-12, 1e-12})
	assert.Less(t, OrthonormalityError(r), 1e-12)
}

func TestSolveZeroMotionPerfectReprojection(t *testing.T) {
	t.Parallel()

	truthT := [3]float64{0.05, -0.02, 2.0}
	world := ballDots()[:6]
	rowTimes := make([]float64, 6) // all zero: global-shutter case
	corrs := project(world, Identity3(), truthT, [3]float64{}, [3]float64{}, rowTimes, testIntrinsics)

	solver := NewSolver(DefaultConfig(), stubBootstrap{r: Identity3(), t: truthT})
	est := solver.Solve(corrs, testIntrinsics)

	require.True(t, est.Valid)
	assert.InDelta(t, 0, est.Residual, 1e-6)
	assert.LessOrEqual(t, est.Iterations, DefaultConfig().MaxIterations)
	assert.Less(t, OrthonormalityError(est.R), 1e-9)
}

func TestSolveRecoversVelocityFromRowTimes(t *testing.T) {
	t.Parallel()

	truthT := [3]float64{0, 0, 2.0}
	truthV := [3]float64{28.0, -6.0, 9.0}
	truthW := [3]float64{0, 45.0, 12.0}

	world := ballDots()
	rowTimes := spreadRowTimes(len(world), 0.004)
	corrs := project(world, Identity3(), truthT, truthW, truthV, rowTimes, testIntrinsics)

	solver := NewSolver(DefaultConfig(), stubBootstrap{r: Identity3(), t: truthT})
	est := solver.Solve(corrs, testIntrinsics)

	require.True(t, est.Valid, "residual %v", est.Residual)
	assert.Less(t, est.Residual, 0.1)

	assert.InDelta(t, truthV[0], est.V[0], 0.05*math.Abs(truthV[0])+0.2)
	assert.InDelta(t, truthV[1], est.V[1], 0.05*math.Abs(truthV[1])+0.2)
	assert.InDelta(t, truthV[2], est.V[2], 0.05*math.Abs(truthV[2])+0.2)

	assert.Less(t, OrthonormalityError(est.R), 1e-9)
}

func TestSolveRotationStaysOrthonormalUnderRefinement(t *testing.T) {
	t.Parallel()

	truthT := [3]float64{0, 0, 2.0}
	world := ballDots()
	rowTimes := spreadRowTimes(len(world), 0.004)
	corrs := project(world, Identity3(), truthT, [3]float64{0, 30, 0}, [3]float64{10, 0, 5}, rowTimes, testIntrinsics)

	// Perturbed bootstrap forces several manifold updates.
	perturbedT := [3]float64{0.002, -0.001, 2.003}
	solver := NewSolver(DefaultConfig(), stubBootstrap{r: ExpSO3([3]float64{0.01, -0.005, 0.008}), t: perturbedT})
	est := solver.Solve(corrs, testIntrinsics)

	assert.Less(t, OrthonormalityError(est.R), 1e-9)
	assert.Greater(t, est.Iterations, 0)
}

func TestSolveRejectsTooFewCorrespondences(t *testing.T) {
	t.Parallel()

	world := ballDots()[:5]
	rowTimes := make([]float64, 5)
	corrs := project(world, Identity3(), [3]float64{0, 0, 2}, [3]float64{}, [3]float64{}, rowTimes, testIntrinsics)

	solver := NewSolver(DefaultConfig(), stubBootstrap{r: Identity3(), t: [3]float64{0, 0, 2}})
	est := solver.Solve(corrs, testIntrinsics)

	assert.False(t, est.Valid)
	assert.True(t, math.IsInf(est.Residual, 1))
}

func TestSolveRejectsBootstrapFailure(t *testing.T) {
	t.Parallel()

	world := ballDots()[:6]
	rowTimes := make([]float64, 6)
	corrs := project(world, Identity3(), [3]float64{0, 0, 2}, [3]float64{}, [3]float64{}, rowTimes, testIntrinsics)

	solver := NewSolver(DefaultConfig(), stubBootstrap{fail: true})
	est := solver.Solve(corrs, testIntrinsics)

	assert.False(t, est.Valid)
	assert.True(t, math.IsInf(est.Residual, 1))
}

func TestSolveSingularGeometryDegradesGracefully(t *testing.T) {
	t.Parallel()

	// Every model point identical: the normal equations are singular and
	// the solver must escape the loop keeping the bootstrap estimate.
	corrs := make([]Correspondence, 8)
	for i := range corrs {
		corrs[i] = Correspondence{
			World:  [3]float64{0, 0, 0},
			ImageU: 640 + float64(i*13), // inconsistent observations
			ImageV: 512 - float64(i*7),
		}
	}

	bootstrapT := [3]float64{0, 0, 2}
	solver := NewSolver(DefaultConfig(), stubBootstrap{r: Identity3(), t: bootstrapT})

	var est Estimate
	assert.NotPanics(t, func() {
		est = solver.Solve(corrs, testIntrinsics)
	})
	assert.False(t, est.Valid)
	assert.Equal(t, bootstrapT, est.T, "last valid estimate is the bootstrap pose")
}

func TestSolveDeterministic(t *testing.T) {
	t.Parallel()

	world := ballDots()
	rowTimes := spreadRowTimes(len(world), 0.004)
	corrs := project(world, Identity3(), [3]float64{0, 0, 2}, [3]float64{0, 25, 0}, [3]float64{15, -3, 8}, rowTimes, testIntrinsics)

	solver := NewSolver(DefaultConfig(), stubBootstrap{r: Identity3(), t: [3]float64{0, 0, 2}})
	a := solver.Solve(corrs, testIntrinsics)
	b := solver.Solve(corrs, testIntrinsics)

	assert.Equal(t, a, b)
}
