package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// All fields are optional pointers so partial JSON files are safe: fields
// omitted from the file fall back to the Get* defaults.
type TuningConfig struct {
	// Ball lock params
	QualityLock    *float64 `json:"quality_lock,omitempty"`
	QualityStay    *float64 `json:"quality_stay,omitempty"`
	LockAfterN     *int     `json:"lock_after_n,omitempty"`
	UnlockAfterM   *int     `json:"unlock_after_m,omitempty"`
	ROISmoothing   *float64 `json:"roi_smoothing,omitempty"`
	ROIRadiusScale *float64 `json:"roi_radius_scale,omitempty"`

	// Cluster classifier params
	ClusterMinPoints *int     `json:"cluster_min_points,omitempty"`
	ClusterMaxPoints *int     `json:"cluster_max_points,omitempty"`
	IdealRadiusMinPx *float64 `json:"ideal_radius_min_px,omitempty"`
	IdealRadiusMaxPx *float64 `json:"ideal_radius_max_px,omitempty"`

	// Rolling-shutter solver params
	SolverMaxIterations *int     `json:"solver_max_iterations,omitempty"`
	SolverMaxResidualPx *float64 `json:"solver_max_residual_px,omitempty"`

	// Flight params
	MaxBallSpeedMps   *float64 `json:"max_ball_speed_mps,omitempty"`
	MinSpinConfidence *float64 `json:"min_spin_confidence,omitempty"`

	// Impact detector params
	ImpactBaselineWindow *int     `json:"impact_baseline_window,omitempty"`
	ImpactPercentileGate *float64 `json:"impact_percentile_gate,omitempty"`
	ImpactCooldownFrames *int     `json:"impact_cooldown_frames,omitempty"`

	// Lifecycle params
	DeadmanTimeout *string `json:"deadman_timeout,omitempty"` // duration string like "2s"
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their defaults.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching from the current directory up through common
// parent directories. Panics if the file cannot be loaded; intended for
// test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/<pkg>/<sub>/
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are consistent.
func (c *TuningConfig) Validate() error {
	if c.QualityLock != nil {
		if *c.QualityLock < 0 || *c.QualityLock > 1 {
			return fmt.Errorf("quality_lock must be between 0 and 1, got %f", *c.QualityLock)
		}
	}
	if c.QualityStay != nil {
		if *c.QualityStay < 0 || *c.QualityStay > 1 {
			return fmt.Errorf("quality_stay must be between 0 and 1, got %f", *c.QualityStay)
		}
	}
	if c.QualityLock != nil && c.QualityStay != nil && *c.QualityStay > *c.QualityLock {
		return fmt.Errorf("quality_stay (%f) must not exceed quality_lock (%f)", *c.QualityStay, *c.QualityLock)
	}
	if c.ROISmoothing != nil {
		if *c.ROISmoothing <= 0 || *c.ROISmoothing > 1 {
			return fmt.Errorf("roi_smoothing must be in (0, 1], got %f", *c.ROISmoothing)
		}
	}
	if c.SolverMaxIterations != nil && *c.SolverMaxIterations < 1 {
		return fmt.Errorf("solver_max_iterations must be at least 1, got %d", *c.SolverMaxIterations)
	}
	if c.ImpactPercentileGate != nil {
		if *c.ImpactPercentileGate < 0 || *c.ImpactPercentileGate > 1 {
			return fmt.Errorf("impact_percentile_gate must be between 0 and 1, got %f", *c.ImpactPercentileGate)
		}
	}
	if c.DeadmanTimeout != nil && *c.DeadmanTimeout != "" {
		if _, err := time.ParseDuration(*c.DeadmanTimeout); err != nil {
			return fmt.Errorf("invalid deadman_timeout '%s': %w", *c.DeadmanTimeout, err)
		}
	}
	return nil
}

// GetQualityLock returns the quality_lock value or the default.
func (c *TuningConfig) GetQualityLock() float64 {
	if c.QualityLock == nil {
		return 0.8
	}
	return *c.QualityLock
}

// GetQualityStay returns the quality_stay value or the default.
func (c *TuningConfig) GetQualityStay() float64 {
	if c.QualityStay == nil {
		return 0.55
	}
	return *c.QualityStay
}

// GetLockAfterN returns the lock_after_n value or the default.
func (c *TuningConfig) GetLockAfterN() int {
	if c.LockAfterN == nil {
		return 3
	}
	return *c.LockAfterN
}

// GetUnlockAfterM returns the unlock_after_m value or the default.
func (c *TuningConfig) GetUnlockAfterM() int {
	if c.UnlockAfterM == nil {
		return 5
	}
	return *c.UnlockAfterM
}

// GetROISmoothing returns the roi_smoothing value or the default.
func (c *TuningConfig) GetROISmoothing() float64 {
	if c.ROISmoothing == nil {
		return 0.35
	}
	return *c.ROISmoothing
}

// GetROIRadiusScale returns the roi_radius_scale value or the default.
func (c *TuningConfig) GetROIRadiusScale() float64 {
	if c.ROIRadiusScale == nil {
		return 2.5
	}
	return *c.ROIRadiusScale
}

// GetClusterMinPoints returns the cluster_min_points value or the default.
func (c *TuningConfig) GetClusterMinPoints() int {
	if c.ClusterMinPoints == nil {
		return 6
	}
	return *c.ClusterMinPoints
}

// GetClusterMaxPoints returns the cluster_max_points value or the default.
func (c *TuningConfig) GetClusterMaxPoints() int {
	if c.ClusterMaxPoints == nil {
		return 120
	}
	return *c.ClusterMaxPoints
}

// GetIdealRadiusMinPx returns the ideal_radius_min_px value or the default.
func (c *TuningConfig) GetIdealRadiusMinPx() float64 {
	if c.IdealRadiusMinPx == nil {
		return 20
	}
	return *c.IdealRadiusMinPx
}

// GetIdealRadiusMaxPx returns the ideal_radius_max_px value or the default.
func (c *TuningConfig) GetIdealRadiusMaxPx() float64 {
	if c.IdealRadiusMaxPx == nil {
		return 60
	}
	return *c.IdealRadiusMaxPx
}

// GetSolverMaxIterations returns the solver_max_iterations value or the default.
func (c *TuningConfig) GetSolverMaxIterations() int {
	if c.SolverMaxIterations == nil {
		return 6
	}
	return *c.SolverMaxIterations
}

// GetSolverMaxResidualPx returns the solver_max_residual_px value or the default.
func (c *TuningConfig) GetSolverMaxResidualPx() float64 {
	if c.SolverMaxResidualPx == nil {
		return 2.0
	}
	return *c.SolverMaxResidualPx
}

// GetMaxBallSpeedMps returns the max_ball_speed_mps value or the default.
func (c *TuningConfig) GetMaxBallSpeedMps() float64 {
	if c.MaxBallSpeedMps == nil {
		return 100.0
	}
	return *c.MaxBallSpeedMps
}

// GetMinSpinConfidence returns the min_spin_confidence value or the default.
func (c *TuningConfig) GetMinSpinConfidence() float64 {
	if c.MinSpinConfidence == nil {
		return 0.3
	}
	return *c.MinSpinConfidence
}

// GetImpactBaselineWindow returns the impact_baseline_window value or the default.
func (c *TuningConfig) GetImpactBaselineWindow() int {
	if c.ImpactBaselineWindow == nil {
		return 120
	}
	return *c.ImpactBaselineWindow
}

// GetImpactPercentileGate returns the impact_percentile_gate value or the default.
func (c *TuningConfig) GetImpactPercentileGate() float64 {
	if c.ImpactPercentileGate == nil {
		return 0.95
	}
	return *c.ImpactPercentileGate
}

// GetImpactCooldownFrames returns the impact_cooldown_frames value or the default.
func (c *TuningConfig) GetImpactCooldownFrames() int {
	if c.ImpactCooldownFrames == nil {
		return 24
	}
	return *c.ImpactCooldownFrames
}

// GetDeadmanTimeout parses and returns the deadman_timeout as a time.Duration.
func (c *TuningConfig) GetDeadmanTimeout() time.Duration {
	if c.DeadmanTimeout == nil || *c.DeadmanTimeout == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(*c.DeadmanTimeout)
	if err != nil {
		return 2 * time.Second
	}
	return d
}
