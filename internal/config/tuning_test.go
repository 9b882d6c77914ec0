package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEmptyConfigUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg := EmptyTuningConfig()
	assert.Equal(t, 0.8, cfg.GetQualityLock())
	assert.Equal(t, 0.55, cfg.GetQualityStay())
	assert.Equal(t, 3, cfg.GetLockAfterN())
	assert.Equal(t, 5, cfg.GetUnlockAfterM())
	assert.Equal(t, 6, cfg.GetSolverMaxIterations())
	assert.Equal(t, 2.0, cfg.GetSolverMaxResidualPx())
	assert.Equal(t, 120, cfg.GetImpactBaselineWindow())
	assert.Equal(t, 2*time.Second, cfg.GetDeadmanTimeout())
}

func TestLoadPartialConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{"quality_lock": 0.9, "deadman_timeout": "1500ms"}`)
	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.9, cfg.GetQualityLock())
	assert.Equal(t, 1500*time.Millisecond, cfg.GetDeadmanTimeout())
	// Omitted fields keep defaults.
	assert.Equal(t, 0.55, cfg.GetQualityStay())
	assert.Equal(t, 0.35, cfg.GetROISmoothing())
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	t.Parallel()

	_, err := LoadTuningConfig("tuning.yaml")
	assert.Error(t, err)
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"quality_lock above 1", `{"quality_lock": 1.5}`},
		{"quality_stay exceeds quality_lock", `{"quality_lock": 0.6, "quality_stay": 0.7}`},
		{"zero roi smoothing", `{"roi_smoothing": 0}`},
		{"zero solver iterations", `{"solver_max_iterations": 0}`},
		{"bad deadman duration", `{"deadman_timeout": "soon"}`},
		{"percentile above 1", `{"impact_percentile_gate": 1.2}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeConfig(t, tt.content)
			_, err := LoadTuningConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestDefaultsFileMatchesBakedDefaults(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	empty := EmptyTuningConfig()
	assert.Equal(t, empty.GetQualityLock(), cfg.GetQualityLock())
	assert.Equal(t, empty.GetQualityStay(), cfg.GetQualityStay())
	assert.Equal(t, empty.GetLockAfterN(), cfg.GetLockAfterN())
	assert.Equal(t, empty.GetSolverMaxResidualPx(), cfg.GetSolverMaxResidualPx())
	assert.Equal(t, empty.GetImpactPercentileGate(), cfg.GetImpactPercentileGate())
	assert.Equal(t, empty.GetDeadmanTimeout(), cfg.GetDeadmanTimeout())
}
