package calenv

// #region imports
import (
	"fmt"
	"time"

	"github.com/veristroke/veristroke/internal/scorer"
)

// #endregion

// #region reward-signal

// RewardSignal is the closed set of feedback outcomes. String-typed
// verdicts from the outside world are parsed once at the boundary.
type RewardSignal int

const (
	RewardNegative RewardSignal = -1
	RewardNeutral  RewardSignal = 0
	RewardPositive RewardSignal = 1
)

// ParseVerdict maps a user verdict to a reward signal.
func ParseVerdict(v string) (RewardSignal, error) {
	switch v {
	case "correct":
		return RewardPositive, nil
	case "incorrect":
		return RewardNegative, nil
	case "uncertain":
		return RewardNeutral, nil
	}
	return RewardNeutral, fmt.Errorf("unknown verdict %q", v)
}

// #endregion reward-signal

// #region truth

// Truth is the derived ground truth of an episode.
type Truth int

const (
	TruthUnknown Truth = iota
	TruthAuthentic
	TruthFake
)

// #endregion truth

// #region episode

// Episode is one decision-and-feedback cycle. Episodes are independent:
// no hidden state carries across analyses.
type Episode struct {
	AnalysisID string
	State      scorer.FeatureVector
	Action     scorer.ParameterVector
	Result     scorer.Result
	Reward     float64
	Rewarded   bool
	OpenedAt   time.Time
}

// #endregion episode

// #region step-result

// StepResult is the outcome of stepping an episode. Reward is deferred:
// RewardPending stays true until feedback is injected for the analysis.
type StepResult struct {
	Result        scorer.Result
	RewardPending bool
	Done          bool
}

// #endregion step-result

// #region transition

// Transition is one (state, action, reward) tuple for the replay buffer.
type Transition struct {
	State  scorer.FeatureVector
	Action scorer.ParameterVector
	Reward float64
}

// TransitionSink receives completed transitions, typically the agent's
// replay buffer.
type TransitionSink interface {
	Observe(t Transition)
}

// #endregion transition
