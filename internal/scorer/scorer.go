// Package scorer maps per-image feature vectors to anomaly scores and
// authenticity decisions using a tunable parameter vector. Scoring is a
// pure function: it reads only its arguments and is safe to call
// concurrently without locking.
package scorer

import (
	"errors"
	"fmt"
	"math"
)

// #region errors

var (
	// ErrInvalidParameter reports a parameter vector outside its domain.
	ErrInvalidParameter = errors.New("invalid parameter vector")
	// ErrInvalidFeature reports a feature component outside [0,1].
	ErrInvalidFeature = errors.New("invalid feature vector")
)

// #endregion errors

// #region constants

// Margin separates confident decisions from uncertain ones: scores within
// Margin of the threshold are reported as uncertain.
const Margin = 0.05

// FlagThreshold is the per-feature level above which a warning flag is raised.
const FlagThreshold = 0.7

// #endregion constants

// #region validate

// ValidateFeatures checks every component of f lies in [0,1].
func ValidateFeatures(f FeatureVector) error {
	for i, v := range f {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: %s=%v outside [0,1]", ErrInvalidFeature, FeatureNames[i], v)
		}
	}
	return nil
}

// ValidateParameters checks the threshold is in [0,1] and the weights are
// non-negative with a positive sum.
func ValidateParameters(p ParameterVector) error {
	if math.IsNaN(p.Threshold) || p.Threshold < 0 || p.Threshold > 1 {
		return fmt.Errorf("%w: threshold %v outside [0,1]", ErrInvalidParameter, p.Threshold)
	}
	var sum float64
	for i, w := range p.Weights {
		if math.IsNaN(w) || w < 0 {
			return fmt.Errorf("%w: weight %s=%v negative", ErrInvalidParameter, FeatureNames[i], w)
		}
		sum += w
	}
	if sum <= 0 {
		return fmt.Errorf("%w: weights sum to %v", ErrInvalidParameter, sum)
	}
	return nil
}

// #endregion validate

// #region normalize

// Normalized returns a copy of p with the threshold clamped to [0,1] and
// the weights renormalized to sum exactly 1. Non-positive weight sums fall
// back to equal weights so the result is always usable.
func (p ParameterVector) Normalized() ParameterVector {
	out := p
	out.Threshold = clamp01(p.Threshold)

	var sum float64
	for i, w := range p.Weights {
		if w < 0 || math.IsNaN(w) {
			out.Weights[i] = 0
			continue
		}
		out.Weights[i] = w
		sum += w
	}
	if sum <= 0 {
		for i := range out.Weights {
			out.Weights[i] = 1.0 / FeatureCount
		}
		return out
	}
	for i := range out.Weights {
		out.Weights[i] /= sum
	}
	return out
}

// #endregion normalize

// #region score

// Score computes the weighted anomaly score for f under p and maps it to a
// decision. The weights are renormalized before use; scores within Margin
// of the threshold yield DecisionUncertain.
func Score(f FeatureVector, p ParameterVector) (Result, error) {
	if err := ValidateFeatures(f); err != nil {
		return Result{}, err
	}
	if err := ValidateParameters(p); err != nil {
		return Result{}, err
	}

	norm := p.Normalized()
	var score float64
	for i := range f {
		score += f[i] * norm.Weights[i]
	}

	decision := DecisionUncertain
	switch {
	case score < norm.Threshold-Margin:
		decision = DecisionAuthentic
	case score > norm.Threshold+Margin:
		decision = DecisionFake
	}

	return Result{AnomalyScore: score, Decision: decision}, nil
}

// #endregion score

// #region flags

// Flags returns a warning flag for every feature component above
// FlagThreshold.
func Flags(f FeatureVector) []string {
	var flags []string
	for i, v := range f {
		if v > FlagThreshold {
			flags = append(flags, fmt.Sprintf("suspicious %s pattern (%.2f)", FeatureNames[i], v))
		}
	}
	return flags
}

// #endregion flags

// #region helpers

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
