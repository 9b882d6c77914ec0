package rspnp

import "math"

// Small 3×3 rotation helpers on row-major [9]float64 arrays. The solver
// composes rotation updates on the manifold through the matrix exponential of
// a skew-symmetric generator (Rodrigues' formula) rather than a platform
// quaternion type, so the arithmetic is identical everywhere it runs.

// Identity3 returns the 3×3 identity matrix.
func Identity3() [9]float64 {
	return [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// ExpSO3 returns the rotation matrix exp([w]×) for the axis-angle vector w.
// Near zero angle it falls back to the second-order Taylor expansion to avoid
// dividing by a vanishing angle.
func ExpSO3(w [3]float64) [9]float64 {
	theta := math.Sqrt(w[0]*w[0] + w[1]*w[1] + w[2]*w[2])

	var a, b float64 // sinθ/θ and (1−cosθ)/θ²
	if theta < 1e-9 {
		a = 1 - theta*theta/6
		b = 0.5 - theta*theta/24
	} else {
		a = math.Sin(theta) / theta
		b = (1 - math.Cos(theta)) / (theta * theta)
	}

	wx, wy, wz := w[0], w[1], w[2]

	// K = [w]×, K² computed directly.
	k2 := [9]float64{
		-wy*wy - wz*wz, wx * wy, wx * wz,
		wx * wy, -wx*wx - wz*wz, wy * wz,
		wx * wz, wy * wz, -wx*wx - wy*wy,
	}

	return [9]float64{
		1 + b*k2[0], -a*wz + b*k2[1], a*wy + b*k2[2],
		a*wz + b*k2[3], 1 + b*k2[4], -a*wx + b*k2[5],
		-a*wy + b*k2[6], a*wx + b*k2[7], 1 + b*k2[8],
	}
}

// Mul3 returns the matrix product a·b.
func Mul3(a, b [9]float64) [9]float64 {
	var out [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i*3+j] = a[i*3]*b[j] + a[i*3+1]*b[3+j] + a[i*3+2]*b[6+j]
		}
	}
	return out
}

// MulVec3 returns the matrix-vector product m·v.
func MulVec3(m [9]float64, v [3]float64) [3]float64 {
	return [3]float64{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2],
		m[3]*v[0] + m[4]*v[1] + m[5]*v[2],
		m[6]*v[0] + m[7]*v[1] + m[8]*v[2],
	}
}

// Transpose3 returns mᵀ.
func Transpose3(m [9]float64) [9]float64 {
	return [9]float64{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// OrthonormalityError returns the max-abs entry of RᵀR − I, a cheap measure
// of how far R has drifted from the rotation manifold.
func OrthonormalityError(r [9]float64) float64 {
	rtr := Mul3(Transpose3(r), r)
	ident := Identity3()
	var maxErr float64
	for i := range rtr {
		if e := math.Abs(rtr[i] - ident[i]); e > maxErr {
			maxErr = e
		}
	}
	return maxErr
}
