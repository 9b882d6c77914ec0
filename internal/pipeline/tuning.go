package pipeline

import (
	"github.com/launchlab-data/launchlab/internal/config"
)

// FromTuning maps the deployment tuning file onto the stage configs,
// starting from the package defaults. Collaborators (bootstrap, matcher,
// sinks) still have to be injected by the caller.
func FromTuning(t *config.TuningConfig) Config {
	cfg := DefaultConfig()

	cfg.Lock.QualityLock = t.GetQualityLock()
	cfg.Lock.QualityStay = t.GetQualityStay()
	cfg.Lock.LockAfterN = t.GetLockAfterN()
	cfg.Lock.UnlockAfterM = t.GetUnlockAfterM()
	cfg.Lock.ROISmoothing = t.GetROISmoothing()
	cfg.Lock.ROIRadiusScale = t.GetROIRadiusScale()

	cfg.Cluster.MinPoints = t.GetClusterMinPoints()
	cfg.Cluster.MaxPoints = t.GetClusterMaxPoints()
	cfg.Cluster.IdealRadiusMinPx = t.GetIdealRadiusMinPx()
	cfg.Cluster.IdealRadiusMaxPx = t.GetIdealRadiusMaxPx()

	cfg.Solver.MaxIterations = t.GetSolverMaxIterations()
	cfg.Solver.MaxResidualPx = t.GetSolverMaxResidualPx()

	cfg.Flight.MaxSpeedMps = t.GetMaxBallSpeedMps()
	cfg.Flight.MinSpinConfidence = t.GetMinSpinConfidence()
	cfg.MinSpinConfidence = t.GetMinSpinConfidence()

	cfg.Impact.BaselineWindow = t.GetImpactBaselineWindow()
	cfg.Impact.PercentileGate = t.GetImpactPercentileGate()
	cfg.Impact.CooldownFrames = t.GetImpactCooldownFrames()

	cfg.Lifecycle.DeadmanTimeout = t.GetDeadmanTimeout()

	return cfg
}
