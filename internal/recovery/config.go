package recovery

import (
	"fmt"
	"runtime"
)

// UnmatchedPairPolicy decides what incremental runs do with pairs that have no
// persisted profile.
type UnmatchedPairPolicy string

const (
	// PolicyDrop removes the pair from the output and logs a warning.
	PolicyDrop UnmatchedPairPolicy = "drop"
	// PolicyClassify labels the pair from the window itself and gives it the
	// default lag. Every such pair is logged.
	PolicyClassify UnmatchedPairPolicy = "classify"
)

// BoostingConfig holds the gradient-boosting hyperparameters.
type BoostingConfig struct {
	Estimators    int
	LearningRate  float64
	NumLeaves     int
	MinDataInLeaf int
	MaxDeltaStep  float64
}

// Config holds the thresholds and tuning knobs of the recovery engine.
type Config struct {
	ZeroThreshold    float64 // share of zero-sale days that forces a Poisson-like label
	Tolerance        float64 // allowed |mean-var|/mean for a Poisson-like label
	MaxDeficitPeriod int     // longest stockout run handled as one order
	DefaultLagDays   float64 // lag used when a pair has no order/receipt match

	Seed            uint64
	Workers         int
	MinTrainingRows int

	PoissonAlpha   float64
	PoissonMaxIter int
	Boosting       BoostingConfig

	UnmatchedPairs UnmatchedPairPolicy
}

// DefaultConfig returns the thresholds the engine was calibrated with.
func DefaultConfig() Config {
	return Config{
		ZeroThreshold:    0.95,
		Tolerance:        0.20,
		MaxDeficitPeriod: 14,
		DefaultLagDays:   2,
		Seed:             42,
		Workers:          runtime.NumCPU(),
		MinTrainingRows:  1,
		PoissonAlpha:     0.5,
		PoissonMaxIter:   100,
		Boosting: BoostingConfig{
			Estimators:    100,
			LearningRate:  0.05,
			NumLeaves:     31,
			MinDataInLeaf: 20,
			MaxDeltaStep:  0.7,
		},
		UnmatchedPairs: PolicyDrop,
	}
}

// Validate checks the configuration for values the algorithms cannot work with.
func (c Config) Validate() error {
	if c.ZeroThreshold <= 0 || c.ZeroThreshold > 1 {
		return fmt.Errorf("zero threshold must be in (0,1], got %v", c.ZeroThreshold)
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("tolerance must be non-negative, got %v", c.Tolerance)
	}
	if c.MaxDeficitPeriod < 1 {
		return fmt.Errorf("max deficit period must be at least 1, got %d", c.MaxDeficitPeriod)
	}
	if c.DefaultLagDays < 0 {
		return fmt.Errorf("default lag must be non-negative, got %v", c.DefaultLagDays)
	}
	if c.MinTrainingRows < 1 {
		return fmt.Errorf("min training rows must be at least 1, got %d", c.MinTrainingRows)
	}
	if c.Boosting.Estimators < 0 || c.Boosting.NumLeaves < 2 || c.Boosting.MinDataInLeaf < 1 {
		return fmt.Errorf("invalid boosting config: %+v", c.Boosting)
	}
	switch c.UnmatchedPairs {
	case PolicyDrop, PolicyClassify:
	default:
		return fmt.Errorf("unknown unmatched pair policy %q", c.UnmatchedPairs)
	}
	return nil
}
