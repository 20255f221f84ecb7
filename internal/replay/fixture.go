// Package replay runs recorded analysis sessions through the full
// reflexion pipeline. Fixtures capture a sequence of analyses with
// their feature vectors and feedback; replaying them reproduces the
// decision and retraining behavior deterministically for a fixed seed.
package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/veristroke/veristroke/internal/scorer"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string         `json:"description"`
	Entries     []FixtureEntry `json:"entries"`
}

// FixtureEntry is one recorded analysis with optional feedback.
type FixtureEntry struct {
	AnalysisID      string     `json:"analysis_id"`
	Features        [4]float64 `json:"features"`
	PriorConfidence float64    `json:"prior_confidence"`
	Verdict         string     `json:"verdict,omitempty"`
	ExpectedDecision string    `json:"expected_decision,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if len(f.Entries) == 0 {
		return nil, fmt.Errorf("fixture %s has no entries", path)
	}
	return &f, nil
}

// FeatureVector converts the raw fixture values to the domain type.
func (e *FixtureEntry) FeatureVector() scorer.FeatureVector {
	return scorer.FeatureVector(e.Features)
}

// #endregion fixture-loader
