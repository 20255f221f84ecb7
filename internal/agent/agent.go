// Package agent trains the calibration policy. Training runs in two
// phases: imitation pretraining over all stored demonstrations, then
// fine-tuning that scores exploratory candidate actions against
// replayed episodes with a learned critic. A finished run is committed
// as a versioned checkpoint and swapped into the live policy reference
// only after passing the sanity check; cancellation or failure leaves
// the previous checkpoint live.
package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/veristroke/veristroke/internal/calenv"
	"github.com/veristroke/veristroke/internal/checkpoint"
	"github.com/veristroke/veristroke/internal/demostore"
	"github.com/veristroke/veristroke/internal/policy"
	"github.com/veristroke/veristroke/internal/scorer"
)

// #region errors

var (
	// ErrInsufficientData means too few user demonstrations exist to retrain.
	ErrInsufficientData = errors.New("insufficient feedback for retraining")
	// ErrDegenerateReward means the stored rewards carry no gradient signal.
	ErrDegenerateReward = errors.New("degenerate reward distribution")
)

// #endregion errors

// #region config

// Config holds the training hyperparameters.
type Config struct {
	Hidden          int     `yaml:"hidden"`
	LearningRate    float64 `yaml:"learning_rate"`
	Momentum        float64 `yaml:"momentum"`
	PretrainEpochs  int     `yaml:"pretrain_epochs"`
	FinetuneSteps   int     `yaml:"finetune_steps"`
	Candidates      int     `yaml:"candidates"`
	NoiseSigma      float64 `yaml:"noise_sigma"`
	EntropyTemp     float64 `yaml:"entropy_temp"`
	CheckpointEvery int     `yaml:"checkpoint_every"`
	ReplayCap       int     `yaml:"replay_cap"`
	MinFeedback     int     `yaml:"min_feedback"`
	Seed            int64   `yaml:"seed"`
}

// DefaultConfig returns the training defaults.
func DefaultConfig() Config {
	return Config{
		Hidden:          16,
		LearningRate:    0.05,
		Momentum:        0.9,
		PretrainEpochs:  200,
		FinetuneSteps:   400,
		Candidates:      8,
		NoiseSigma:      0.15,
		EntropyTemp:     0.5,
		CheckpointEvery: 50,
		ReplayCap:       4096,
		MinFeedback:     demostore.MinFeedback,
		Seed:            1,
	}
}

// #endregion config

// #region agent

// Agent owns the actor and critic networks and the retraining loop. It
// implements calenv.TransitionSink so the environment can feed fresh
// transitions into the replay buffer.
type Agent struct {
	mu sync.Mutex // serializes retraining runs

	cfg    Config
	demos  *demostore.Store
	ckpts  *checkpoint.Store
	live   *policy.Live
	buffer *ReplayBuffer
	log    zerolog.Logger
}

// New creates an agent wired to its stores and live policy reference.
func New(cfg Config, demos *demostore.Store, ckpts *checkpoint.Store, live *policy.Live, log zerolog.Logger) *Agent {
	if cfg.MinFeedback <= 0 {
		cfg.MinFeedback = demostore.MinFeedback
	}
	return &Agent{
		cfg:    cfg,
		demos:  demos,
		ckpts:  ckpts,
		live:   live,
		buffer: NewReplayBuffer(cfg.ReplayCap),
		log:    log.With().Str("component", "agent").Logger(),
	}
}

// Observe adds a completed transition to the replay buffer.
func (a *Agent) Observe(t calenv.Transition) {
	a.buffer.Add(t)
}

// #endregion agent

// #region actor-policy

// actorPolicy adapts a trained actor network to the policy interface.
// The raw network output is clamped and renormalized, so the emitted
// parameters are valid by construction.
type actorPolicy struct {
	actor *mlp
}

func (p *actorPolicy) Parameters(state scorer.FeatureVector) scorer.ParameterVector {
	return actionFrom(p.actor.forward(state[:]))
}

// actionFrom converts raw network outputs (threshold plus four weight
// logits) into a valid parameter vector.
func actionFrom(out []float64) scorer.ParameterVector {
	var p scorer.ParameterVector
	p.Threshold = out[0]
	for i := 0; i < scorer.FeatureCount; i++ {
		p.Weights[i] = out[1+i]
	}
	return p.Normalized()
}

// actionTarget is the inverse of actionFrom for training targets.
func actionTarget(p scorer.ParameterVector) []float64 {
	out := make([]float64, 1+scorer.FeatureCount)
	out[0] = p.Threshold
	for i, w := range p.Weights {
		out[1+i] = w
	}
	return out
}

// criticInput concatenates state and action into the critic's input.
func criticInput(state scorer.FeatureVector, action scorer.ParameterVector) []float64 {
	in := make([]float64, 0, scorer.FeatureCount+1+scorer.FeatureCount)
	in = append(in, state[:]...)
	in = append(in, action.Threshold)
	in = append(in, action.Weights[:]...)
	return in
}

// #endregion actor-policy

// #region load-live

// LoadLive restores the active checkpoint into the live policy
// reference at startup. Load failures are not fatal: an unreadable or
// incompatible checkpoint falls back to the newest compatible version,
// and if none exists the heuristic default stays in effect.
func (a *Agent) LoadLive() error {
	rec, err := a.ckpts.Current()
	if errors.Is(err, checkpoint.ErrNoCheckpoint) {
		a.log.Info().Msg("no checkpoint published, heuristic defaults in effect")
		return nil
	}
	if err != nil {
		a.log.Warn().Err(err).Msg("active checkpoint unreadable, searching for last known good")
		return a.fallbackLoad()
	}

	entry, err := loadEntry(rec)
	if err != nil {
		a.log.Warn().Err(err).Str("version", rec.VersionID).Msg("checkpoint failed to load, searching for last known good")
		return a.fallbackLoad()
	}

	a.live.Swap(entry)
	a.log.Info().Str("version", rec.VersionID).Int64("step", rec.Step).Msg("checkpoint loaded")
	return nil
}

// fallbackLoad scans recent versions newest-first for one that loads
// and passes the sanity check, then rolls the active pointer to it.
func (a *Agent) fallbackLoad() error {
	records, err := a.ckpts.List(50)
	if err != nil {
		return fmt.Errorf("list checkpoints: %w", err)
	}
	for _, rec := range records {
		if rec.Format != checkpoint.FormatVersion {
			continue
		}
		entry, err := loadEntry(rec)
		if err != nil {
			continue
		}
		if err := a.ckpts.Rollback(rec.VersionID); err != nil {
			return fmt.Errorf("rollback to %s: %w", rec.VersionID, err)
		}
		a.live.Swap(entry)
		a.log.Info().Str("version", rec.VersionID).Msg("rolled back to last known good checkpoint")
		return nil
	}
	a.log.Warn().Msg("no loadable checkpoint found, heuristic defaults in effect")
	return nil
}

// loadEntry decodes a checkpoint payload and sanity-checks the policy.
func loadEntry(rec checkpoint.Record) (*policy.Entry, error) {
	actor, err := unmarshalMLP(rec.ActorJSON)
	if err != nil {
		return nil, fmt.Errorf("actor payload: %w", err)
	}
	if actor.InputSize != scorer.FeatureCount || actor.OutputSize != 1+scorer.FeatureCount {
		return nil, fmt.Errorf("actor payload: unexpected dimensions %dx%d", actor.InputSize, actor.OutputSize)
	}
	p := &actorPolicy{actor: actor}
	if err := sanityCheck(p); err != nil {
		return nil, fmt.Errorf("sanity check: %w", err)
	}
	return &policy.Entry{Policy: p, Version: rec.VersionID, Step: rec.Step}, nil
}

// #endregion load-live

// #region retrain

// Retrain runs a full training cycle: imitation pretraining over all
// demonstrations, then critic-guided fine-tuning over the user
// demonstrations with derivable ground truth. On success the new
// checkpoint is committed and swapped live; on cancellation or failure
// the previously active checkpoint remains live.
func (a *Agent) Retrain(ctx context.Context) (*checkpoint.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	userCount, err := a.demos.Count(demostore.Filter{Source: demostore.SourceUser})
	if err != nil {
		return nil, fmt.Errorf("count feedback: %w", err)
	}
	if userCount < a.cfg.MinFeedback {
		return nil, fmt.Errorf("%w: have %d user demonstrations, need %d", ErrInsufficientData, userCount, a.cfg.MinFeedback)
	}

	all, err := a.demos.List(demostore.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list demonstrations: %w", err)
	}
	if degenerate(all) {
		return nil, fmt.Errorf("%w: all %d rewards identical", ErrDegenerateReward, len(all))
	}

	rng := rand.New(rand.NewSource(a.cfg.Seed))
	actor := newMLP(scorer.FeatureCount, a.cfg.Hidden, 1+scorer.FeatureCount, rng)
	critic := newMLP(2*scorer.FeatureCount+1, a.cfg.Hidden, 1, rng)

	a.pretrain(actor, all, rng)

	steps, err := a.finetune(ctx, actor, critic, all, rng)
	if err != nil {
		return nil, err
	}

	return a.publish(actor, critic, steps)
}

// degenerate reports whether every reward in the sample shares the same
// sign and magnitude, leaving nothing to learn from.
func degenerate(demos []demostore.Demonstration) bool {
	if len(demos) == 0 {
		return true
	}
	first := demos[0].Reward
	for _, d := range demos[1:] {
		if d.Reward != first {
			return false
		}
	}
	return true
}

// #endregion retrain

// #region pretrain

/// pretrain clones the demonstrated behavior: the actor regresses each
// stored state onto its stored action. Heuristic seeds anchor the actor
// near the defaults; user demonstrations pull it toward observed
// calibrations.
func (a *Agent) pretrain(actor *mlp, demos []demostore.Demonstration, rng *rand.Rand) {
	order := make([]int, len(demos))
	for i := range order {
		order[i] = i
	}

	var loss float64
	for epoch := 0; epoch < a.cfg.PretrainEpochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		loss = 0
		for _, idx := range order {
			d := demos[idx]
			loss += actor.step(d.State[:], actionTarget(d.Action), a.cfg.LearningRate, a.cfg.Momentum)
		}
	}
	a.log.Debug().
		Int("epochs", a.cfg.PretrainEpochs).
		Int("demonstrations", len(demos)).
		Float64("final_loss", loss/float64(max(len(demos), 1))).
		Msg("imitation pretraining done")
}

// #endregion pretrain

// #region finetune

// finetune improves the actor beyond imitation. Each step samples a
// user demonstration with derivable truth, generates exploratory
// candidate actions around the actor's mean, scores them by replaying
// the episode, trains the critic on the replayed rewards, and regresses
// the actor toward the entropy-weighted candidate mixture. Interim
// snapshots are persisted every CheckpointEvery steps without moving
// the active pointer.
func (a *Agent) finetune(ctx context.Context, actor, critic *mlp, all []demostore.Demonstration, rng *rand.Rand) (int64, error) {
	type labeled struct {
		demo  demostore.Demonstration
		truth calenv.Truth
	}
	var pool []labeled
	for _, d := range all {
		if d.Source != demostore.SourceUser {
			continue
		}
		if truth := calenv.DeriveTruth(d); truth != calenv.TruthUnknown {
			pool = append(pool, labeled{demo: d, truth: truth})
		}
	}
	if len(pool) == 0 {
		// All feedback was neutral or uncertain; the imitation policy is
		// the best available.
		a.log.Debug().Msg("no demonstrations with derivable truth, skipping fine-tuning")
		return 0, ctx.Err()
	}

	k := max(a.cfg.Candidates, 2)
	var step int64
	for step = 1; step <= int64(a.cfg.FinetuneSteps); step++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		sample := pool[rng.Intn(len(pool))]
		mean := actionFrom(actor.forward(sample.demo.State[:]))

		candidates := make([]scorer.ParameterVector, 0, k)
		candidates = append(candidates, mean)
		for len(candidates) < k {
			candidates = append(candidates, perturb(mean, a.cfg.NoiseSigma, rng))
		}

		// Score candidates on the replayed episode and fit the critic.
		qs := make([]float64, len(candidates))
		for i, cand := range candidates {
			reward := calenv.ReplayReward(sample.demo.State, sample.truth, cand)
			in := criticInput(sample.demo.State, cand)
			critic.step(in, []float64{reward}, a.cfg.LearningRate, a.cfg.Momentum)
			qs[i] = critic.forward(in)[0]
		}

		// Mix in live transitions so the critic tracks fresh feedback.
		for _, tr := range a.buffer.Sample(4, rng) {
			critic.step(criticInput(tr.State, tr.Action), []float64{tr.Reward}, a.cfg.LearningRate, a.cfg.Momentum)
		}

		// Regress the actor toward the value-weighted candidate mixture.
		weights := softmax(qs, a.cfg.EntropyTemp)
		target := mixture(candidates, weights)
		actor.step(sample.demo.State[:], actionTarget(target), a.cfg.LearningRate, a.cfg.Momentum)

		if a.cfg.CheckpointEvery > 0 && step%int64(a.cfg.CheckpointEvery) == 0 {
			if err := a.snapshot(actor, critic, step); err != nil {
				return 0, err
			}
		}
	}
	return step - 1, nil
}

// perturb adds bounded gaussian noise to a mean action. Threshold and
// weights are renormalized, so every candidate is a valid action.
func perturb(mean scorer.ParameterVector, sigma float64, rng *rand.Rand) scorer.ParameterVector {
	var p scorer.ParameterVector
	p.Threshold = mean.Threshold + boundedGauss(rng, sigma)
	for i, w := range mean.Weights {
		p.Weights[i] = w + boundedGauss(rng, sigma)
	}
	return p.Normalized()
}

// boundedGauss draws gaussian noise clipped to two standard deviations.
func boundedGauss(rng *rand.Rand, sigma float64) float64 {
	n := rng.NormFloat64() * sigma
	if n > 2*sigma {
		return 2 * sigma
	}
	if n < -2*sigma {
		return -2 * sigma
	}
	return n
}

// softmax converts critic values into mixture weights. The temperature
// controls exploration: higher values flatten the distribution toward
// uniform, lower values concentrate it on the best candidate.
func softmax(qs []float64, temp float64) []float64 {
	if temp <= 0 {
		temp = 1
	}
	maxQ := qs[0]
	for _, q := range qs[1:] {
		if q > maxQ {
			maxQ = q
		}
	}
	weights := make([]float64, len(qs))
	var sum float64
	for i, q := range qs {
		weights[i] = math.Exp((q - maxQ) / temp)
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// mixture blends candidate actions by weight and renormalizes.
func mixture(candidates []scorer.ParameterVector, weights []float64) scorer.ParameterVector {
	var p scorer.ParameterVector
	for i, c := range candidates {
		p.Threshold += weights[i] * c.Threshold
		for j, w := range c.Weights {
			p.Weights[j] += weights[i] * w
		}
	}
	return p.Normalized()
}

// #endregion finetune

// #region publish

// snapshot persists an interim checkpoint row without moving the
// active pointer.
func (a *Agent) snapshot(actor, critic *mlp, step int64) error {
	actorJSON, err := actor.marshal()
	if err != nil {
		return fmt.Errorf("marshal actor: %w", err)
	}
	criticJSON, err := critic.marshal()
	if err != nil {
		return fmt.Errorf("marshal critic: %w", err)
	}
	rec := checkpoint.Record{
		VersionID:  uuid.NewString(),
		ParentID:   a.currentVersion(),
		Step:       step,
		ActorJSON:  actorJSON,
		CriticJSON: criticJSON,
		Note:       fmt.Sprintf("interim step %d", step),
	}
	if err := a.ckpts.Insert(rec); err != nil {
		return fmt.Errorf("persist interim checkpoint: %w", err)
	}
	return nil
}

// publish commits the trained networks as the new active checkpoint and
// swaps the live policy, provided the sanity check passes.
func (a *Agent) publish(actor, critic *mlp, steps int64) (*checkpoint.Record, error) {
	candidate := &actorPolicy{actor: actor}
	if err := sanityCheck(candidate); err != nil {
		return nil, fmt.Errorf("candidate policy rejected: %w", err)
	}

	actorJSON, err := actor.marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal actor: %w", err)
	}
	criticJSON, err := critic.marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal critic: %w", err)
	}

	rec := checkpoint.Record{
		VersionID:  uuid.NewString(),
		ParentID:   a.currentVersion(),
		Step:       steps,
		ActorJSON:  actorJSON,
		CriticJSON: criticJSON,
		Note:       "retrained",
	}
	if err := a.ckpts.Commit(rec); err != nil {
		return nil, fmt.Errorf("commit checkpoint: %w", err)
	}

	a.live.Swap(&policy.Entry{Policy: candidate, Version: rec.VersionID, Step: rec.Step})
	a.log.Info().Str("version", rec.VersionID).Int64("steps", steps).Msg("checkpoint published")
	return &rec, nil
}

func (a *Agent) currentVersion() string {
	if e := a.live.Current(); e != nil {
		return e.Version
	}
	return ""
}

// #endregion publish

// #region evaluate

// Evaluation summarizes how the live policy performs on replayed
// user demonstrations.
type Evaluation struct {
	Episodes   int
	MeanReward float64
	Accuracy   float64
}

// Evaluate replays stored user demonstrations with derivable truth
// through the live policy (or the heuristic default) and reports the
// mean replayed reward and decision accuracy.
func (a *Agent) Evaluate() (Evaluation, error) {
	demos, err := a.demos.List(demostore.Filter{Source: demostore.SourceUser})
	if err != nil {
		return Evaluation{}, fmt.Errorf("list demonstrations: %w", err)
	}

	var ev Evaluation
	var correct int
	for _, d := range demos {
		truth := calenv.DeriveTruth(d)
		if truth == calenv.TruthUnknown {
			continue
		}
		action := a.live.Parameters(d.State)
		reward := calenv.ReplayReward(d.State, truth, action)
		ev.Episodes++
		ev.MeanReward += reward
		if reward > 0 {
			correct++
		}
	}
	if ev.Episodes > 0 {
		ev.MeanReward /= float64(ev.Episodes)
		ev.Accuracy = float64(correct) / float64(ev.Episodes)
	}
	return ev, nil
}

// #endregion evaluate
