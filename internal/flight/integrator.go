// Package flight integrates golf-ball aerodynamics from launch conditions to
// a landing event. The integrator is deterministic and bounded: fixed 1 ms
// steps, a hard simulation cutoff, and explicit invalid results instead of
// errors.
//
// World frame: X downrange, Y up, Z lateral (positive right of the target
// line).
package flight

import (
	"math"
)

// LaunchConditions are the validated inputs derived from the pose/velocity
// solver and the external spin estimator.
type LaunchConditions struct {
	Velocity [3]float64 // m/s, world frame

	SpinAxis       [3]float64 // unit-ish; normalised internally
	SpinRPM        float64
	SpinConfidence float64 // [0, 1] from the spin collaborator

	PoseValid bool // upstream solver validity
}

// Result is the immutable flight summary attached to a finalized shot.
type Result struct {
	ApexHeight    float64 // m
	CarryDistance float64 // m, horizontal distance at first ground contact
	TotalDistance float64 // m, carry plus roll-out; never less than carry
	Curvature     float64 // m, lateral deviation from the target line at landing
	TimeOfFlight  float64 // s

	LaunchAngleDeg  float64
	LandingAngleDeg float64

	Valid bool
}

// Config holds the aerodynamic model and integration bounds.
type Config struct {
	StepSeconds   float64 // integration step; 1 ms
	MaxSimSeconds float64 // safety cutoff; exceeding it is an integration failure

	MaxSpeedMps       float64 // initial speed clamp
	MinSpinConfidence float64 // reject spin estimates below this

	BallMassKg  float64
	BallRadiusM float64
	AirDensity  float64 // kg/m³
	GravityMps2 float64

	GroundEpsilonM float64 // landing threshold above y=0

	// Drag coefficient bounds. The effective Cd blends with speed
	// (turbulent flow at golf speeds lowers drag) and rises with spin
	// ratio, within [CdMin, CdMax].
	CdMin          float64
	CdMax          float64
	CdLowSpeedMps  float64 // below this speed Cd sits at CdMax
	CdHighSpeedMps float64 // above this speed the speed term sits at CdMin
	CdSpinGain     float64 // additional Cd per unit spin ratio

	// Lift (Magnus) coefficient: Cl = min(ClPerSpinRatio·S, ClMax) where
	// S = ωr/|v| is the spin ratio.
	ClPerSpinRatio float64
	ClMax          float64

	// Roll-out: roll = RollFactor · v_horizontal(landing) · spin falloff.
	// Backspin above RollSpinReferenceRPM produces no roll at all.
	RollFactor           float64 // seconds of landing speed converted to roll
	RollSpinReferenceRPM float64
}

// DefaultConfig returns the production aerodynamic model.
func DefaultConfig() Config {
	return Config{
		StepSeconds:   0.001,
		MaxSimSeconds: 10.0,

		MaxSpeedMps:       100.0,
		MinSpinConfidence: 0.3,

		BallMassKg:  0.04593,
		BallRadiusM: 0.021335,
		AirDensity:  1.225,
		GravityMps2: 9.81,

		GroundEpsilonM: 0.01,

		CdMin:          0.21,
		CdMax:          0.5,
		CdLowSpeedMps:  14.0,
		CdHighSpeedMps: 40.0,
		CdSpinGain:     0.18,

		ClPerSpinRatio: 1.2,
		ClMax:          0.38,

		RollFactor:           0.6,
		RollSpinReferenceRPM: 6000.0,
	}
}

// TracePoint is one sampled state of an integrated flight, for plotting and
// offline analysis.
type TracePoint struct {
	T   float64
	Pos [3]float64
	Vel [3]float64
}

// Integrate runs the flight model. Invalid or low-confidence inputs return
// an all-zero invalid result immediately; the integrator itself never errors.
func Integrate(lc LaunchConditions, cfg Config) Result {
	result, _ := IntegrateTrace(lc, cfg, 0)
	return result
}

// IntegrateTrace runs the same model as Integrate, additionally sampling the
// state every sampleEvery steps. sampleEvery <= 0 disables sampling.
func IntegrateTrace(lc LaunchConditions, cfg Config, sampleEvery int) (Result, []TracePoint) {
	if !lc.PoseValid || lc.SpinConfidence < cfg.MinSpinConfidence {
		return Result{}, nil
	}

	vel := lc.Velocity
	speed := norm3(vel)
	if speed <= 0 {
		return Result{}, nil
	}
	if speed > cfg.MaxSpeedMps {
		s := cfg.MaxSpeedMps / speed
		vel[0] *= s
		vel[1] *= s
		vel[2] *= s
	}

	spinAxis := normalize3(lc.SpinAxis)
	omega := lc.SpinRPM * 2 * math.Pi / 60 // rad/s

	launchAngle := math.Atan2(vel[1], math.Hypot(vel[0], vel[2])) * 180 / math.Pi

	pos := [3]float64{0, 0, 0}
	dt := cfg.StepSeconds
	maxSteps := int(cfg.MaxSimSeconds / dt)

	apex := 0.0
	t := 0.0
	landed := false
	var trace []TracePoint
	if sampleEvery > 0 {
		trace = append(trace, TracePoint{T: 0, Pos: pos, Vel: vel})
	}

	for step := 0; step < maxSteps; step++ {
		// Second-order midpoint (RK2).
		a1 := acceleration(vel, spinAxis, omega, cfg)
		midVel := [3]float64{
			vel[0] + a1[0]*dt/2,
			vel[1] + a1[1]*dt/2,
			vel[2] + a1[2]*dt/2,
		}
		a2 := acceleration(midVel, spinAxis, omega, cfg)

		pos[0] += midVel[0] * dt
		pos[1] += midVel[1] * dt
		pos[2] += midVel[2] * dt
		vel[0] += a2[0] * dt
		vel[1] += a2[1] * dt
		vel[2] += a2[2] * dt
		t += dt

		if pos[1] > apex {
			apex = pos[1]
		}
		if sampleEvery > 0 && (step+1)%sampleEvery == 0 {
			trace = append(trace, TracePoint{T: t, Pos: pos, Vel: vel})
		}

		// Landing: descending through the ground threshold.
		if vel[1] < 0 && pos[1] <= cfg.GroundEpsilonM {
			landed = true
			break
		}
	}

	if !landed {
		// Safety cutoff exceeded: an integration failure, not a flight.
		return Result{}, nil
	}
	if sampleEvery > 0 && trace[len(trace)-1].T != t {
		trace = append(trace, TracePoint{T: t, Pos: pos, Vel: vel})
	}

	carry := math.Hypot(pos[0], pos[2])
	horizontalSpeed := math.Hypot(vel[0], vel[2])
	landingAngle := math.Atan2(-vel[1], horizontalSpeed) * 180 / math.Pi

	// Roll-out shrinks with backspin: high-spin shots bite and stop.
	spinFalloff := 1 - lc.SpinRPM/cfg.RollSpinReferenceRPM
	if spinFalloff < 0 {
		spinFalloff = 0
	}
	roll := cfg.RollFactor * horizontalSpeed * spinFalloff

	return Result{
		ApexHeight:      apex,
		CarryDistance:   carry,
		TotalDistance:   carry + roll,
		Curvature:       pos[2],
		TimeOfFlight:    t,
		LaunchAngleDeg:  launchAngle,
		LandingAngleDeg: landingAngle,
		Valid:           true,
	}, trace
}

// acceleration evaluates drag, Magnus lift and gravity for one state.
func acceleration(vel, spinAxis [3]float64, omega float64, cfg Config) [3]float64 {
	speed := norm3(vel)
	if speed < 1e-9 {
		return [3]float64{0, -cfg.GravityMps2, 0}
	}

	area := math.Pi * cfg.BallRadiusM * cfg.BallRadiusM
	q := 0.5 * cfg.AirDensity * area * speed * speed // dynamic pressure × area
	spinRatio := omega * cfg.BallRadiusM / speed

	cd := dragCoefficient(speed, spinRatio, cfg)
	cl := math.Min(cfg.ClPerSpinRatio*spinRatio, cfg.ClMax)

	invSpeed := 1 / speed
	dir := [3]float64{vel[0] * invSpeed, vel[1] * invSpeed, vel[2] * invSpeed}

	// Drag opposes motion.
	drag := q * cd / cfg.BallMassKg
	// Lift acts along spin × velocity direction.
	liftDir := cross3(spinAxis, dir)
	lift := q * cl / cfg.BallMassKg

	return [3]float64{
		-drag*dir[0] + lift*liftDir[0],
		-drag*dir[1] + lift*liftDir[1] - cfg.GravityMps2,
		-drag*dir[2] + lift*liftDir[2],
	}
}

// dragCoefficient blends the speed regime with the spin ratio: slow flow and
// high spin both raise effective drag, bounded to [CdMin, CdMax].
func dragCoefficient(speed, spinRatio float64, cfg Config) float64 {
	var speedTerm float64
	switch {
	case speed <= cfg.CdLowSpeedMps:
		speedTerm = cfg.CdMax
	case speed >= cfg.CdHighSpeedMps:
		speedTerm = cfg.CdMin
	default:
		f := (speed - cfg.CdLowSpeedMps) / (cfg.CdHighSpeedMps - cfg.CdLowSpeedMps)
		speedTerm = cfg.CdMax + f*(cfg.CdMin-cfg.CdMax)
	}

	cd := speedTerm + cfg.CdSpinGain*spinRatio
	if cd > cfg.CdMax {
		cd = cfg.CdMax
	}
	if cd < cfg.CdMin {
		cd = cfg.CdMin
	}
	return cd
}

func norm3(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func normalize3(v [3]float64) [3]float64 {
	n := norm3(v)
	if n < 1e-12 {
		return [3]float64{}
	}
	return [3]float64{v[0] / n, v[1] / n, v[2] / n}
}

func cross3(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
