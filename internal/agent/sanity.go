package agent

// #region imports
import (
	"fmt"
	"math"

	"github.com/veristroke/veristroke/internal/policy"
	"github.com/veristroke/veristroke/internal/scorer"
)

// #endregion

// #region probes

// probeStates covers the corners and middle of the feature space plus a
// couple of mixed profiles. A policy must produce valid parameters on
// every probe before it can be published.
var probeStates = []scorer.FeatureVector{
	{0, 0, 0, 0},
	{1, 1, 1, 1},
	{0.5, 0.5, 0.5, 0.5},
	{0.72, 0.72, 0.72, 0.72},
	{0.2, 0.8, 0.3, 0.6},
	{0, 1, 0, 1},
}

// #endregion probes

// #region sanity-check

// sanityCheck verifies that a candidate policy emits a valid, finite
// parameter vector for every probe state. A failing candidate is never
// published; the previously active checkpoint stays live.
func sanityCheck(p policy.Policy) error {
	for _, state := range probeStates {
		params := p.Parameters(state)

		if math.IsNaN(params.Threshold) || math.IsInf(params.Threshold, 0) {
			return fmt.Errorf("probe %v: non-finite threshold", state)
		}
		var sum float64
		for i, w := range params.Weights {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return fmt.Errorf("probe %v: non-finite weight %d", state, i)
			}
			sum += w
		}
		if err := scorer.ValidateParameters(params); err != nil {
			return fmt.Errorf("probe %v: %w", state, err)
		}
		if math.Abs(sum-1) > 1e-9 {
			return fmt.Errorf("probe %v: weights sum to %f, want 1", state, sum)
		}
	}
	return nil
}

// #endregion sanity-check
