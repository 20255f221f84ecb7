package calenv

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/veristroke/veristroke/internal/checkpoint"
	"github.com/veristroke/veristroke/internal/demostore"
	"github.com/veristroke/veristroke/internal/scorer"
)

type captureSink struct {
	transitions []Transition
}

func (c *captureSink) Observe(t Transition) {
	c.transitions = append(c.transitions, t)
}

func tempEnv(t *testing.T) (*Env, *demostore.Store, *captureSink) {
	t.Helper()
	root, err := checkpoint.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { root.Close() })

	store, err := demostore.NewStore(root.DB())
	if err != nil {
		t.Fatalf("demostore.NewStore: %v", err)
	}
	sink := &captureSink{}
	return New(store, sink, zerolog.Nop()), store, sink
}

func defaultAction() scorer.ParameterVector {
	return scorer.ParameterVector{Threshold: 0.7, Weights: [4]float64{0.25, 0.25, 0.25, 0.25}}
}

func TestResetValidatesFeatures(t *testing.T) {
	env, _, _ := tempEnv(t)
	_, err := env.Reset("a1", scorer.FeatureVector{1.5, 0, 0, 0})
	if !errors.Is(err, scorer.ErrInvalidFeature) {
		t.Fatalf("expected ErrInvalidFeature, got %v", err)
	}
}

func TestStepDefersReward(t *testing.T) {
	env, _, _ := tempEnv(t)

	if _, err := env.Reset("a1", scorer.FeatureVector{0.2, 0.2, 0.2, 0.2}); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	step, err := env.Step("a1", defaultAction())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !step.Done {
		t.Fatal("episodes are single-step; expected done")
	}
	if !step.RewardPending {
		t.Fatal("expected pending reward before feedback")
	}
	if step.Result.Decision != scorer.DecisionAuthentic {
		t.Fatalf("expected authentic for low features, got %s", step.Result.Decision)
	}
	if env.PendingCount() != 1 {
		t.Fatalf("expected 1 pending episode, got %d", env.PendingCount())
	}
}

func TestStepUnknownEpisode(t *testing.T) {
	env, _, _ := tempEnv(t)
	_, err := env.Step("missing", defaultAction())
	if !errors.Is(err, ErrUnknownEpisode) {
		t.Fatalf("expected ErrUnknownEpisode, got %v", err)
	}
}

func TestInjectRewardBackfills(t *testing.T) {
	env, store, sink := tempEnv(t)

	env.Reset("a1", scorer.FeatureVector{0.9, 0.9, 0.9, 0.9})
	env.Step("a1", defaultAction())

	reward, err := env.InjectReward("a1", RewardPositive)
	if err != nil {
		t.Fatalf("InjectReward: %v", err)
	}
	if reward != 1 {
		t.Fatalf("expected reward 1, got %f", reward)
	}
	if env.PendingCount() != 0 {
		t.Fatalf("expected 0 pending, got %d", env.PendingCount())
	}

	demos, _ := store.List(demostore.Filter{Source: demostore.SourceUser})
	if len(demos) != 1 {
		t.Fatalf("expected 1 demonstration, got %d", len(demos))
	}
	if demos[0].TrajectoryID != "a1" || demos[0].Reward != 1 {
		t.Fatalf("unexpected demonstration: %+v", demos[0])
	}

	if len(sink.transitions) != 1 || sink.transitions[0].Reward != 1 {
		t.Fatalf("expected 1 transition in sink, got %+v", sink.transitions)
	}
}

func TestInjectRewardRepeatedFeedback(t *testing.T) {
	env, store, _ := tempEnv(t)

	env.Reset("a1", scorer.FeatureVector{0.9, 0.9, 0.9, 0.9})
	env.Step("a1", defaultAction())

	env.InjectReward("a1", RewardPositive)
	if _, err := env.InjectReward("a1", RewardNegative); err != nil {
		t.Fatalf("repeated feedback should append, got %v", err)
	}

	demos, _ := store.List(demostore.Filter{Source: demostore.SourceUser})
	if len(demos) != 2 {
		t.Fatalf("expected 2 independent demonstrations, got %d", len(demos))
	}
	if demos[0].TrajectoryID != demos[1].TrajectoryID {
		t.Fatal("expected repeated feedback to share a trajectory")
	}
}

func TestInjectRewardBeforeStep(t *testing.T) {
	env, _, _ := tempEnv(t)
	env.Reset("a1", scorer.FeatureVector{0.5, 0.5, 0.5, 0.5})

	_, err := env.InjectReward("a1", RewardPositive)
	if !errors.Is(err, ErrEpisodeOpen) {
		t.Fatalf("expected ErrEpisodeOpen, got %v", err)
	}
}

func TestParseVerdict(t *testing.T) {
	cases := map[string]RewardSignal{
		"correct":   RewardPositive,
		"incorrect": RewardNegative,
		"uncertain": RewardNeutral,
	}
	for verdict, want := range cases {
		got, err := ParseVerdict(verdict)
		if err != nil || got != want {
			t.Fatalf("ParseVerdict(%q) = %v, %v", verdict, got, err)
		}
	}
	if _, err := ParseVerdict("maybe"); err == nil {
		t.Fatal("expected error for unknown verdict")
	}
}

func TestDeriveTruth(t *testing.T) {
	action := defaultAction()

	// Low features → authentic decision; positive reward confirms it.
	low := demostore.Demonstration{
		State: scorer.FeatureVector{0.2, 0.2, 0.2, 0.2}, Action: action, Reward: 1,
	}
	if got := DeriveTruth(low); got != TruthAuthentic {
		t.Fatalf("expected TruthAuthentic, got %v", got)
	}

	// High features → fake decision; negative reward flips it.
	high := demostore.Demonstration{
		State: scorer.FeatureVector{0.9, 0.9, 0.9, 0.9}, Action: action, Reward: -1,
	}
	if got := DeriveTruth(high); got != TruthAuthentic {
		t.Fatalf("expected TruthAuthentic for overturned fake, got %v", got)
	}

	// Near-boundary false positive: score 0.72 falls in the uncertain
	// band of threshold 0.7, but the fake-leaning call plus negative
	// reward resolves to authentic.
	boundary := demostore.Demonstration{
		State: scorer.FeatureVector{0.72, 0.72, 0.72, 0.72}, Action: action, Reward: -1,
	}
	if got := DeriveTruth(boundary); got != TruthAuthentic {
		t.Fatalf("expected TruthAuthentic for near-boundary false positive, got %v", got)
	}

	// Neutral reward carries no signal.
	neutral := demostore.Demonstration{
		State: scorer.FeatureVector{0.2, 0.2, 0.2, 0.2}, Action: action, Reward: 0,
	}
	if got := DeriveTruth(neutral); got != TruthUnknown {
		t.Fatalf("expected TruthUnknown, got %v", got)
	}
}

func TestReplayReward(t *testing.T) {
	state := scorer.FeatureVector{0.72, 0.72, 0.72, 0.72}

	// Truth authentic: a high threshold flips the decision and earns +1.
	highThreshold := scorer.ParameterVector{Threshold: 0.9, Weights: [4]float64{0.25, 0.25, 0.25, 0.25}}
	if r := ReplayReward(state, TruthAuthentic, highThreshold); r != 1 {
		t.Fatalf("expected +1, got %f", r)
	}

	// A low threshold keeps calling it fake and earns -1.
	lowThreshold := scorer.ParameterVector{Threshold: 0.5, Weights: [4]float64{0.25, 0.25, 0.25, 0.25}}
	if r := ReplayReward(state, TruthAuthentic, lowThreshold); r != -1 {
		t.Fatalf("expected -1, got %f", r)
	}

	// Uncertain decisions earn 0.
	nearThreshold := scorer.ParameterVector{Threshold: 0.72, Weights: [4]float64{0.25, 0.25, 0.25, 0.25}}
	if r := ReplayReward(state, TruthAuthentic, nearThreshold); r != 0 {
		t.Fatalf("expected 0 for uncertain, got %f", r)
	}

	// Unknown truth: small shaping reward for non-extreme states.
	if r := ReplayReward(scorer.FeatureVector{0.5, 0.5, 0.5, 0.5}, TruthUnknown, lowThreshold); r != 0.1 {
		t.Fatalf("expected 0.1 shaping reward, got %f", r)
	}
	if r := ReplayReward(scorer.FeatureVector{0.9, 0.9, 0.9, 0.9}, TruthUnknown, lowThreshold); r != 0 {
		t.Fatalf("expected 0 shaping reward for extreme state, got %f", r)
	}
}
