// File: internal/browser/humanoid/config.go
package humanoid

import "math/rand"

// Config holds the motor-model parameters for one simulated user. The
// defaults describe an average desktop user; tests inject a seeded Rng for
// determinism.
type Config struct {
	// Omega is the natural frequency of the spring model (movement speed).
	Omega float64 `mapstructure:"omega"`
	// Zeta is the damping ratio (smoothness; <1 allows slight overshoot).
	Zeta float64 `mapstructure:"zeta"`
	// FittsA and FittsB parameterize reaction and verification time (ms).
	FittsA float64 `mapstructure:"fitts_a"`
	FittsB float64 `mapstructure:"fitts_b"`
	// PerlinAmplitude scales the low-frequency drift applied to trajectories
	// and idle hesitation.
	PerlinAmplitude float64 `mapstructure:"perlin_amplitude"`
	// GaussianStrength scales the high-frequency tremor.
	GaussianStrength float64 `mapstructure:"gaussian_strength"`
	// ClickNoise is the motor displacement applied when pressing.
	ClickNoise float64 `mapstructure:"click_noise"`
	// ClickHoldMinMs/MaxMs bound how long the button stays down.
	ClickHoldMinMs int `mapstructure:"click_hold_min_ms"`
	ClickHoldMaxMs int `mapstructure:"click_hold_max_ms"`
	// FatigueIncreaseRate/RecoveryRate shape motor degradation over a session.
	FatigueIncreaseRate float64 `mapstructure:"fatigue_increase_rate"`
	FatigueRecoveryRate float64 `mapstructure:"fatigue_recovery_rate"`

	// Rng overrides the time-seeded generator; used by tests.
	Rng *rand.Rand `mapstructure:"-"`
}

// DefaultConfig returns the baseline persona.
func DefaultConfig() Config {
	return Config{
		Omega:               28.0,
		Zeta:                0.85,
		FittsA:              120.0,
		FittsB:              140.0,
		PerlinAmplitude:     1.6,
		GaussianStrength:    0.45,
		ClickNoise:          1.2,
		ClickHoldMinMs:      45,
		ClickHoldMaxMs:      130,
		FatigueIncreaseRate: 0.015,
		FatigueRecoveryRate: 0.002,
	}
}

// normalize clamps obviously broken values back to the defaults.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Omega <= 0 {
		c.Omega = def.Omega
	}
	if c.Zeta <= 0 || c.Zeta > 2 {
		c.Zeta = def.Zeta
	}
	if c.FittsA <= 0 {
		c.FittsA = def.FittsA
	}
	if c.FittsB <= 0 {
		c.FittsB = def.FittsB
	}
	if c.ClickHoldMinMs <= 0 || c.ClickHoldMaxMs <= c.ClickHoldMinMs {
		c.ClickHoldMinMs = def.ClickHoldMinMs
		c.ClickHoldMaxMs = def.ClickHoldMaxMs
	}
}
