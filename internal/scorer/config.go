// Package scorer folds heterogeneous quality signals into one composite
// score on the 0-100 scale used across the engine.
package scorer

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/forgepoint/gentuner/internal/config"
)

// weightTolerance is the allowed floating-point slack when checking that
// signal weights sum to 1.0.
const weightTolerance = 1e-9

// DefaultScorerConfig returns a config.ScorerConfig with the canonical
// signal weights. Weights sum to 1.0.
func DefaultScorerConfig() config.ScorerConfig {
	return config.ScorerConfig{
		HumanLikenessWeight:     0.60,
		SubjectiveQualityWeight: 0.30,
		ReadabilityWeight:       0.10,
	}
}

// WeightSum returns the sum of all signal weights.
func WeightSum(c config.ScorerConfig) float64 {
	return c.HumanLikenessWeight + c.SubjectiveQualityWeight + c.ReadabilityWeight
}

// ValidateConfig checks that a ScorerConfig is internally consistent.
func ValidateConfig(c config.ScorerConfig) error {
	var errs []string

	weights := map[string]float64{
		"human_likeness_weight":     c.HumanLikenessWeight,
		"subjective_quality_weight": c.SubjectiveQualityWeight,
		"readability_weight":        c.ReadabilityWeight,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	// The anchor weight must be positive: every absent signal folds into it.
	if c.HumanLikenessWeight <= 0 {
		errs = append(errs, "human_likeness_weight must be > 0")
	}

	if sum := WeightSum(c); math.Abs(sum-1.0) > weightTolerance {
		errs = append(errs, fmt.Sprintf("weights must sum to 1.0, got %.9f", sum))
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
