package reflexion

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/veristroke/veristroke/internal/agent"
	"github.com/veristroke/veristroke/internal/calenv"
	"github.com/veristroke/veristroke/internal/demostore"
	"github.com/veristroke/veristroke/internal/logging"
	"github.com/veristroke/veristroke/internal/policy"
	"github.com/veristroke/veristroke/internal/scorer"
)

// #endregion

// #region phases

// Phase names the stages of one reflexion cycle. A cycle walks them in
// order and reaches Done exactly once; re-invoking the loop for the
// same analysis starts a new cycle with an incremented iteration.
type Phase string

const (
	PhaseJudging    Phase = "judging"
	PhaseEvaluating Phase = "evaluating"
	PhaseRecording  Phase = "recording"
	PhaseImproving  Phase = "improving"
	PhaseDone       Phase = "done"
)

// #endregion phases

// #region contracts

// Trainer retrains the calibration policy in the background.
type Trainer interface {
	Retrain(ctx context.Context) (retrained bool, err error)
}

// Sink receives appended records, typically the live dashboard feed.
type Sink interface {
	Publish(rec Record)
}

// agentTrainer adapts the agent's Retrain to the Trainer contract:
// training preconditions are expected conditions here, not failures.
// Every attempt lands in the training audit log.
type agentTrainer struct {
	agent  *agent.Agent
	events *logging.TrainingLog
	log    zerolog.Logger
}

// NewTrainer wraps an agent for use by the loop. events may be nil.
func NewTrainer(a *agent.Agent, events *logging.TrainingLog, log zerolog.Logger) Trainer {
	return &agentTrainer{agent: a, events: events, log: log.With().Str("component", "trainer").Logger()}
}

func (t *agentTrainer) Retrain(ctx context.Context) (bool, error) {
	rec, err := t.agent.Retrain(ctx)
	if errors.Is(err, agent.ErrInsufficientData) || errors.Is(err, agent.ErrDegenerateReward) {
		t.record(logging.TrainingEvent{Trigger: "feedback", Outcome: "refused", Reason: err.Error()})
		return false, nil
	}
	if err != nil {
		t.record(logging.TrainingEvent{Trigger: "feedback", Outcome: "failed", Reason: err.Error()})
		return false, err
	}
	t.record(logging.TrainingEvent{VersionID: rec.VersionID, Trigger: "feedback", Outcome: "published"})
	return true, nil
}

func (t *agentTrainer) record(ev logging.TrainingEvent) {
	if t.events == nil {
		return
	}
	if err := t.events.Record(ev); err != nil {
		t.log.Warn().Err(err).Msg("training event not recorded")
	}
}

// #endregion contracts

// #region input-outcome

// Feedback is a human verdict attached to an analysis, optionally
// expert-verified.
type Feedback struct {
	Verdict  string
	Verified bool
}

// Input is one reflexion request. PriorConfidence is the confidence of
// the judgment this cycle reflects on; zero means no prior judgment.
type Input struct {
	AnalysisID      string
	Features        scorer.FeatureVector
	PriorConfidence float64
	Feedback        *Feedback
}

// Outcome is the result of a completed cycle.
type Outcome struct {
	Record    Record
	Retrained bool
}

// #endregion input-outcome

// #region loop

// Loop coordinates one reflexion cycle per call. Judging and evaluating
// are synchronous request-path work; retraining is kicked off in the
// background and deduplicated, so concurrent feedback triggers at most
// one run.
type Loop struct {
	env     *calenv.Env
	live    *policy.Live
	demos   *demostore.Store
	log     *Log
	trainer Trainer
	sink    Sink
	logger  zerolog.Logger

	group singleflight.Group
	wg    sync.WaitGroup
}

// NewLoop wires a loop. sink may be nil.
func NewLoop(env *calenv.Env, live *policy.Live, demos *demostore.Store, log *Log, trainer Trainer, sink Sink, logger zerolog.Logger) *Loop {
	return &Loop{
		env:     env,
		live:    live,
		demos:   demos,
		log:     log,
		trainer: trainer,
		sink:    sink,
		logger:  logger.With().Str("component", "reflexion").Logger(),
	}
}

// Run executes one full cycle for the analysis, walking the phases in
// order; errors are annotated with the phase they interrupted.
func (l *Loop) Run(ctx context.Context, in Input) (Outcome, error) {
	phase := PhaseJudging

	// Judging: live parameters, scored decision.
	paramsBefore := l.live.Parameters(in.Features)

	if _, err := l.env.Reset(in.AnalysisID, in.Features); err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", phase, err)
	}
	step, err := l.env.Step(in.AnalysisID, paramsBefore)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", phase, err)
	}

	// Evaluating: confidence against the prior judgment. The verdict is
	// parsed here so invalid feedback aborts before anything persists.
	phase = PhaseEvaluating
	confidence := Confidence(step.Result.AnomalyScore, paramsBefore.Threshold)
	delta := confidence - in.PriorConfidence

	var sig calenv.RewardSignal
	if in.Feedback != nil {
		sig, err = calenv.ParseVerdict(in.Feedback.Verdict)
		if err != nil {
			return Outcome{}, fmt.Errorf("%s: %w", phase, err)
		}
	}

	rec := Record{
		AnalysisID:      in.AnalysisID,
		State:           in.Features,
		ParamsBefore:    paramsBefore,
		AnomalyScore:    step.Result.AnomalyScore,
		Decision:        step.Result.Decision,
		ConfidenceAfter: confidence,
		ConfidenceDelta: delta,
	}
	if in.Feedback != nil {
		rec.Verdict = in.Feedback.Verdict
		rec.Verified = in.Feedback.Verified
	}

	// Recording: retraining is asynchronous, so within one cycle the
	// after-parameters equal whatever is live right now.
	phase = PhaseRecording
	rec.ParamsAfter = l.live.Parameters(in.Features)
	if err := l.log.Append(&rec); err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", phase, err)
	}
	if l.sink != nil {
		l.sink.Publish(rec)
	}

	// Improving: forward feedback and trigger background retraining.
	phase = PhaseImproving
	retrainWanted := false
	if in.Feedback != nil {
		if _, err := l.env.InjectReward(in.AnalysisID, sig); err != nil {
			return Outcome{}, fmt.Errorf("%s: %w", phase, err)
		}
		retrainWanted = l.feedbackThresholdMet()
	}
	if retrainWanted {
		l.triggerRetrain()
	}
	phase = PhaseDone

	l.logger.Debug().
		Str("analysis_id", in.AnalysisID).
		Int("iteration", rec.Iteration).
		Str("phase", string(phase)).
		Str("decision", string(rec.Decision)).
		Float64("confidence_delta", delta).
		Bool("retrain_triggered", retrainWanted).
		Msg("reflexion cycle done")

	return Outcome{Record: rec, Retrained: retrainWanted}, nil
}

// feedbackThresholdMet reports whether enough user feedback exists to
// attempt retraining.
func (l *Loop) feedbackThresholdMet() bool {
	n, err := l.demos.Count(demostore.Filter{Source: demostore.SourceUser})
	if err != nil {
		l.logger.Warn().Err(err).Msg("feedback count failed")
		return false
	}
	return n >= demostore.MinFeedback
}

// triggerRetrain starts a deduplicated background training run.
// Training failures are logged, never surfaced to the request path.
func (l *Loop) triggerRetrain() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_, err, _ := l.group.Do("retrain", func() (interface{}, error) {
			retrained, err := l.trainer.Retrain(context.Background())
			if err != nil {
				return nil, err
			}
			return retrained, nil
		})
		if err != nil {
			l.logger.Error().Err(err).Msg("background retraining failed, previous checkpoint remains live")
		}
	}()
}

// Wait blocks until in-flight background retraining finishes. Intended
// for shutdown and tests.
func (l *Loop) Wait() {
	l.wg.Wait()
}

// #endregion loop

// #region confidence

// Confidence maps the distance between anomaly score and threshold to
// a confidence value: 0.5 at the boundary, growing with separation,
// clamped to [0.05, 0.95] so no judgment is ever reported as certain.
func Confidence(score, threshold float64) float64 {
	c := 0.5 + math.Abs(score-threshold)
	if c > 0.95 {
		return 0.95
	}
	if c < 0.05 {
		return 0.05
	}
	return c
}

// #endregion confidence
