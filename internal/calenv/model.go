package calenv

// #region imports
import (
	"github.com/veristroke/veristroke/internal/demostore"
	"github.com/veristroke/veristroke/internal/scorer"
)

// #endregion

// #region derive-truth

// DeriveTruth recovers the ground truth behind a stored demonstration.
// The scorer is pure, so the original decision can be recomputed from
// the stored state and action; the reward sign then tells whether that
// decision matched reality. Near-boundary uncertain decisions still
// carry direction: feedback on them is resolved by which side of the
// threshold the score fell on.
func DeriveTruth(d demostore.Demonstration) Truth {
	if d.Reward == 0 {
		return TruthUnknown
	}
	res, err := scorer.Score(d.State, d.Action)
	if err != nil {
		return TruthUnknown
	}

	decision := res.Decision
	if decision == scorer.DecisionUncertain {
		if res.AnomalyScore >= d.Action.Normalized().Threshold {
			decision = scorer.DecisionFake
		} else {
			decision = scorer.DecisionAuthentic
		}
	}

	correct := d.Reward > 0
	switch decision {
	case scorer.DecisionAuthentic:
		if correct {
			return TruthAuthentic
		}
		return TruthFake
	case scorer.DecisionFake:
		if correct {
			return TruthFake
		}
		return TruthAuthentic
	}
	return TruthUnknown
}

// #endregion derive-truth

// #region replay-reward

// ReplayReward computes the reward a candidate action would have earned
// on a stored episode. With known truth: +1 for the matching decision,
// -1 for the opposite one, 0 for uncertain. Without truth, a small
// shaping reward favors non-extreme states, mirroring the exploration
// reward used before feedback exists.
func ReplayReward(state scorer.FeatureVector, truth Truth, action scorer.ParameterVector) float64 {
	res, err := scorer.Score(state, action)
	if err != nil {
		return -1
	}

	if truth == TruthUnknown {
		var mean float64
		for _, v := range state {
			mean += v
		}
		mean /= scorer.FeatureCount
		if mean >= 0.3 && mean <= 0.7 {
			return 0.1
		}
		return 0
	}

	if res.Decision == scorer.DecisionUncertain {
		return 0
	}
	match := (res.Decision == scorer.DecisionAuthentic && truth == TruthAuthentic) ||
		(res.Decision == scorer.DecisionFake && truth == TruthFake)
	if match {
		return 1
	}
	return -1
}

// #endregion replay-reward
