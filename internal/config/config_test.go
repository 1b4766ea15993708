// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFillsDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, "gatecrash", cfg.Logger.ServiceName)
	assert.Equal(t, 30*time.Second, cfg.Recognition.CloudVision.Timeout)
	assert.Equal(t, 60*time.Second, cfg.Recognition.Speech.Timeout)
	assert.Equal(t, 20*time.Second, cfg.Recognition.OCR.Timeout)
	assert.Equal(t, 320, cfg.Recognition.LocalModel.InputSize)
	assert.Equal(t, 0.25, cfg.Recognition.LocalModel.ScoreFloor)
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	cfg := Config{Solver: SolverConfig{ConfidenceThreshold: 1.5}}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadModality(t *testing.T) {
	cfg := Config{Solver: SolverConfig{PreferredModality: "tactile"}}
	assert.Error(t, cfg.Validate())

	cfg.Solver.PreferredModality = "audio"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsNegativeBudgets(t *testing.T) {
	cfg := Config{Solver: SolverConfig{MaxAttempts: -1}}
	assert.Error(t, cfg.Validate())
}
