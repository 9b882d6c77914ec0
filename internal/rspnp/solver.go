// Package rspnp estimates camera-relative pose and velocity from 2D-3D
// correspondences whose observations carry per-row capture timestamps.
//
// Rolling-shutter sensors expose each image row slightly later than the
// previous one, so a fast-moving ball is imaged by a camera model that
// changes within a single frame. The solver fits a constant-velocity rigid
// motion over the exposure window:
//
//	X_cam(t_i) = exp([w]·t_i) · (R·X_world) + T + v·t_i
//
// via bounded Gauss-Newton refinement of the bootstrap pose. It is on the
// hard per-frame time budget: deterministic, at most MaxIterations passes,
// and it degrades to an explicit invalid result instead of failing.
package rspnp

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/launchlab-data/launchlab/internal/vision"
)

// MinCorrespondences is the smallest observation set the 12-parameter motion
// model can be fitted to.
const MinCorrespondences = 6

// Correspondence pairs a 3D model point with its 2D observation and the
// capture-time offset of the observation's image row.
type Correspondence struct {
	World   [3]float64 // model point, world frame
	ImageU  float64    // observed column (px)
	ImageV  float64    // observed row (px)
	RowTime float64    // seconds after frame start this row was exposed
}

// Estimate is the solver output. Invalid estimates carry an infinite
// residual sentinel and must not be consumed downstream.
type Estimate struct {
	R [9]float64 // rotation, row-major, orthonormal
	T [3]float64 // translation
	W [3]float64 // angular velocity (rad/s)
	V [3]float64 // linear velocity (units/s)

	Residual   float64 // RMS reprojection error (px)
	Iterations int     // Gauss-Newton iterations actually applied
	Valid      bool
}

// invalidEstimate returns the sentinel result for unusable solves.
func invalidEstimate() Estimate {
	return Estimate{R: Identity3(), Residual: math.Inf(1)}
}

// Bootstrap supplies the initial frame-reference pose. The closed-form PnP
// routine behind it is an external collaborator; tests inject stubs.
type Bootstrap interface {
	// Solve returns an initial (R, T) for the correspondences, or ok=false
	// when no usable pose exists.
	Solve(corrs []Correspondence, intr vision.Intrinsics) (r [9]float64, t [3]float64, ok bool)
}

// Config bounds the refinement.
type Config struct {
	// MaxIterations caps the Gauss-Newton loop. There is deliberately no
	// convergence-to-tolerance loop: the iteration count is the real-time
	// budget.
	MaxIterations int

	// MaxResidualPx is the RMS reprojection error above which the estimate
	// is marked invalid.
	MaxResidualPx float64
}

// DefaultConfig returns the production solver bounds.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 6,
		MaxResidualPx: 2.0,
	}
}

// Solver refines pose and velocity from rolling-shutter observations.
type Solver struct {
	cfg       Config
	bootstrap Bootstrap
}

// NewSolver creates a solver around the given bootstrap collaborator.
func NewSolver(cfg Config, bootstrap Bootstrap) *Solver {
	return &Solver{cfg: cfg, bootstrap: bootstrap}
}

// Solve estimates pose and velocity for one frame. It never panics and never
// loops unboundedly; all failures surface as an invalid Estimate.
func (s *Solver) Solve(corrs []Correspondence, intr vision.Intrinsics) Estimate {
	if len(corrs) < MinCorrespondences || s.bootstrap == nil {
		return invalidEstimate()
	}

	r0, t0, ok := s.bootstrap.Solve(corrs, intr)
	if !ok {
		return invalidEstimate()
	}

	est := Estimate{R: r0, T: t0}

	n := len(corrs)
	jac := mat.NewDense(2*n, 12, nil)
	res := mat.NewVecDense(2*n, nil)
	var jtj mat.SymDense
	var jtr, delta mat.VecDense

	iterations := 0
	for iter := 0; iter < s.cfg.MaxIterations; iter++ {
		if !s.linearize(corrs, intr, &est, jac, res) {
			break // point behind camera or non-finite geometry
		}

		jtj.Reset()
		jtj.SymOuterK(1, jac.T())
		jtr.Reset()
		jtr.MulVec(jac.T(), res)

		if !solveNormalEquations(&jtj, &jtr, &delta) {
			// Singular system: keep the last valid estimate.
			break
		}

		applyUpdate(&est, &delta)
		iterations = iter + 1
	}
	est.Iterations = iterations

	rms, finite := s.rmsResidual(corrs, intr, &est)
	est.Residual = rms
	est.Valid = finite && rms < s.cfg.MaxResidualPx
	if !finite {
		est.Residual = math.Inf(1)
	}
	return est
}

// linearize fills the stacked 2-rows-per-point residual vector and its
// Jacobian with respect to the 12-parameter local update
// [δw(3), δv(3), δθ(3), δT(3)]. Returns false on degenerate geometry.
func (s *Solver) linearize(corrs []Correspondence, intr vision.Intrinsics, est *Estimate, jac *mat.Dense, res *mat.VecDense) bool {
	for i, c := range corrs {
		t := c.RowTime

		y := MulVec3(est.R, c.World)        // Y = R·Xw
		a := ExpSO3(scale3(est.W, t))       // A = exp([w]t)
		ay := MulVec3(a, y)                 // rotated model point
		p := [3]float64{                    // camera point at row time
			ay[0] + est.T[0] + est.V[0]*t,
			ay[1] + est.T[1] + est.V[1]*t,
			ay[2] + est.T[2] + est.V[2]*t,
		}

		if p[2] <= 1e-9 || !finite3(p) {
			return false
		}

		invZ := 1 / p[2]
		u := intr.Fx*p[0]*invZ + intr.Cx
		v := intr.Fy*p[1]*invZ + intr.Cy

		res.SetVec(2*i, c.ImageU-u)
		res.SetVec(2*i+1, c.ImageV-v)

		// Projection Jacobian ∂(u,v)/∂P.
		ju := [3]float64{intr.Fx * invZ, 0, -intr.Fx * p[0] * invZ * invZ}
		jv := [3]float64{0, intr.Fy * invZ, -intr.Fy * p[1] * invZ * invZ}

		// ∂P/∂δw ≈ −t·[A·Y]× (left perturbation of the exposure rotation),
		// ∂P/∂δv = t·I,
		// ∂P/∂δθ = −A·[Y]× (manifold perturbation R ← exp(δθ)·R),
		// ∂P/∂δT = I.
		dPdW := skewCols(ay, -t)
		dPdTheta := mulSkewCols(a, y)

		for col := 0; col < 3; col++ {
			// δw block
			jac.Set(2*i, col, dot3(ju, dPdW[col]))
			jac.Set(2*i+1, col, dot3(jv, dPdW[col]))
			// δv block
			jac.Set(2*i, 3+col, ju[col]*t)
			jac.Set(2*i+1, 3+col, jv[col]*t)
			// δθ block
			jac.Set(2*i, 6+col, dot3(ju, dPdTheta[col]))
			jac.Set(2*i+1, 6+col, dot3(jv, dPdTheta[col]))
			// δT block
			jac.Set(2*i, 9+col, ju[col])
			jac.Set(2*i+1, 9+col, jv[col])
		}
	}
	return true
}

// solveNormalEquations solves (JᵀJ)δ = Jᵀr with a Cholesky factorisation,
// falling back to LU. Returns false when the system is singular.
func solveNormalEquations(jtj *mat.SymDense, jtr, delta *mat.VecDense) bool {
	var chol mat.Cholesky
	if chol.Factorize(jtj) {
		if err := chol.SolveVecTo(delta, jtr); err == nil && vecFinite(delta) {
			return true
		}
	}

	var lu mat.LU
	lu.Factorize(jtj)
	if err := lu.SolveVecTo(delta, false, jtr); err != nil {
		return false
	}
	return vecFinite(delta)
}

// applyUpdate applies the 12-parameter local step: additive on w, v, T and
// on the manifold for the rotation.
func applyUpdate(est *Estimate, delta *mat.VecDense) {
	est.W[0] += delta.AtVec(0)
	est.W[1] += delta.AtVec(1)
	est.W[2] += delta.AtVec(2)
	est.V[0] += delta.AtVec(3)
	est.V[1] += delta.AtVec(4)
	est.V[2] += delta.AtVec(5)

	dTheta := [3]float64{delta.AtVec(6), delta.AtVec(7), delta.AtVec(8)}
	est.R = Mul3(ExpSO3(dTheta), est.R)

	est.T[0] += delta.AtVec(9)
	est.T[1] += delta.AtVec(10)
	est.T[2] += delta.AtVec(11)
}

// rmsResidual evaluates the final motion model over all correspondences.
func (s *Solver) rmsResidual(corrs []Correspondence, intr vision.Intrinsics, est *Estimate) (rms float64, finite bool) {
	var sum float64
	for _, c := range corrs {
		t := c.RowTime
		y := MulVec3(est.R, c.World)
		ay := MulVec3(ExpSO3(scale3(est.W, t)), y)
		z := ay[2] + est.T[2] + est.V[2]*t
		if z <= 1e-9 {
			return 0, false
		}
		u := intr.Fx*(ay[0]+est.T[0]+est.V[0]*t)/z + intr.Cx
		v := intr.Fy*(ay[1]+est.T[1]+est.V[1]*t)/z + intr.Cy
		du := c.ImageU - u
		dv := c.ImageV - v
		sum += du*du + dv*dv
	}
	rms = math.Sqrt(sum / float64(2*len(corrs)))
	return rms, !math.IsNaN(rms) && !math.IsInf(rms, 0)
}

// skewCols returns the columns of s·[p]× as three vectors, i.e. the partial
// derivatives of s·(δ × p) with respect to each component of δ.
func skewCols(p [3]float64, s float64) [3][3]float64 {
	// δ × p = [δ]× p; column k of −[p]× gives ∂(δ×p)/∂δ_k.
	return [3][3]float64{
		{0, s * p[2], -s * p[1]},
		{-s * p[2], 0, s * p[0]},
		{s * p[1], -s * p[0], 0},
	}
}

// mulSkewCols returns the columns of −A·[y]×, the derivative of
// A·exp([δθ])·y with respect to δθ at zero.
func mulSkewCols(a [9]float64, y [3]float64) [3][3]float64 {
	base := skewCols(y, -1)
	var out [3][3]float64
	for col := 0; col < 3; col++ {
		out[col] = MulVec3(a, base[col])
	}
	return out
}

func dot3(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func scale3(v [3]float64, s float64) [3]float64 {
	return [3]float64{v[0] * s, v[1] * s, v[2] * s}
}

func finite3(v [3]float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func vecFinite(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		x := v.AtVec(i)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
