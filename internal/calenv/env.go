// Package calenv models one authentication decision as one control
// step. Reward is deferred: an episode's true reward is unknown at
// action time and is back-filled once human feedback arrives, keyed by
// analysis id. The package also exposes a model of the environment —
// the scorer is pure, so stored episodes can be replayed off-policy
// with counterfactual actions during training.
package calenv

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/veristroke/veristroke/internal/demostore"
	"github.com/veristroke/veristroke/internal/scorer"
)

// #region errors

var (
	// ErrUnknownEpisode means no episode was ever stepped for the analysis id.
	ErrUnknownEpisode = errors.New("unknown episode")
	// ErrEpisodeOpen means the episode has not been stepped yet.
	ErrEpisodeOpen = errors.New("episode not stepped")
)

// #endregion errors

// #region env

// Env tracks open and completed episodes and routes injected rewards to
// the demonstration store and the agent's replay buffer.
type Env struct {
	mu       sync.Mutex
	episodes map[string]*Episode

	store *demostore.Store
	sink  TransitionSink
	log   zerolog.Logger
}

// New creates an environment. sink may be nil (transitions are then
// only persisted as demonstrations).
func New(store *demostore.Store, sink TransitionSink, log zerolog.Logger) *Env {
	return &Env{
		episodes: make(map[string]*Episode),
		store:    store,
		sink:     sink,
		log:      log.With().Str("component", "calenv").Logger(),
	}
}

// #endregion env

// #region reset

// Reset opens an episode for the analysis and returns its initial
// state. Features are validated here so the request fails before any
// action is taken on bad input.
func (e *Env) Reset(analysisID string, features scorer.FeatureVector) (scorer.FeatureVector, error) {
	if err := scorer.ValidateFeatures(features); err != nil {
		return scorer.FeatureVector{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.episodes[analysisID] = &Episode{
		AnalysisID: analysisID,
		State:      features,
		OpenedAt:   time.Now().UTC(),
	}
	return features, nil
}

// #endregion reset

// #region step

// Step applies the chosen action to the open episode. Episodes are
// single-step: done is always true and the reward stays pending until
// feedback arrives.
func (e *Env) Step(analysisID string, action scorer.ParameterVector) (StepResult, error) {
	e.mu.Lock()
	ep, ok := e.episodes[analysisID]
	e.mu.Unlock()
	if !ok {
		return StepResult{}, fmt.Errorf("%w: %s", ErrUnknownEpisode, analysisID)
	}

	res, err := scorer.Score(ep.State, action)
	if err != nil {
		return StepResult{}, err
	}

	e.mu.Lock()
	ep.Action = action
	ep.Result = res
	e.mu.Unlock()

	return StepResult{Result: res, RewardPending: true, Done: true}, nil
}

// #endregion step

// #region inject-reward

// InjectReward back-fills the deferred reward for a previously stepped
// episode, appends a user demonstration, and feeds the replay buffer.
// Repeated feedback for the same analysis id appends a new, independent
// demonstration on the same trajectory; reconciliation is left to
// downstream aggregate analysis.
func (e *Env) InjectReward(analysisID string, sig RewardSignal) (float64, error) {
	e.mu.Lock()
	ep, ok := e.episodes[analysisID]
	if ok && ep.Action == (scorer.ParameterVector{}) {
		ok = false
	}
	var snapshot Episode
	if ok {
		reward := float64(sig)
		ep.Reward = reward
		ep.Rewarded = true
		snapshot = *ep
	}
	e.mu.Unlock()

	if !ok {
		if ep == nil {
			return 0, fmt.Errorf("%w: %s", ErrUnknownEpisode, analysisID)
		}
		return 0, fmt.Errorf("%w: %s", ErrEpisodeOpen, analysisID)
	}

	demo := demostore.Demonstration{
		TrajectoryID: analysisID,
		State:        snapshot.State,
		Action:       snapshot.Action,
		Reward:       snapshot.Reward,
		Source:       demostore.SourceUser,
	}
	if err := e.store.Append(demo); err != nil {
		return 0, fmt.Errorf("record feedback: %w", err)
	}

	if e.sink != nil {
		e.sink.Observe(Transition{State: snapshot.State, Action: snapshot.Action, Reward: snapshot.Reward})
	}

	e.log.Debug().
		Str("analysis_id", analysisID).
		Float64("reward", snapshot.Reward).
		Msg("deferred reward injected")

	return snapshot.Reward, nil
}

// #endregion inject-reward

// #region pending

// PendingCount returns the number of stepped episodes still waiting for
// feedback.
func (e *Env) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ep := range e.episodes {
		if ep.Action != (scorer.ParameterVector{}) && !ep.Rewarded {
			n++
		}
	}
	return n
}

// #endregion pending
