package replay

import (
	"context"

	"github.com/veristroke/veristroke/internal/reflexion"
	"github.com/veristroke/veristroke/internal/scorer"
)

// #region types

// Result captures the outcome of replaying one fixture entry.
type Result struct {
	AnalysisID      string
	Decision        scorer.Decision
	AnomalyScore    float64
	ConfidenceDelta float64
	RetrainTriggered bool

	// Expectation check (empty expected decision always matches).
	ExpectedDecision string
	Matched          bool
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalEntries int
	Matched      int
	Mismatched   int
	Retrains     int
	ByDecision   map[scorer.Decision]int
}

// #endregion types

// #region replay

// Replay runs every fixture entry through the reflexion loop in order
// and waits for any background retraining triggered along the way, so
// the run is complete when it returns.
func Replay(ctx context.Context, loop *reflexion.Loop, fixture *Fixture) ([]Result, error) {
	results := make([]Result, 0, len(fixture.Entries))

	for _, entry := range fixture.Entries {
		in := reflexion.Input{
			AnalysisID:      entry.AnalysisID,
			Features:        entry.FeatureVector(),
			PriorConfidence: entry.PriorConfidence,
		}
		if entry.Verdict != "" {
			in.Feedback = &reflexion.Feedback{Verdict: entry.Verdict}
		}

		out, err := loop.Run(ctx, in)
		if err != nil {
			return results, err
		}

		res := Result{
			AnalysisID:       entry.AnalysisID,
			Decision:         out.Record.Decision,
			AnomalyScore:     out.Record.AnomalyScore,
			ConfidenceDelta:  out.Record.ConfidenceDelta,
			RetrainTriggered: out.Retrained,
			ExpectedDecision: entry.ExpectedDecision,
			Matched:          entry.ExpectedDecision == "" || entry.ExpectedDecision == string(out.Record.Decision),
		}
		results = append(results, res)
	}

	loop.Wait()
	return results, nil
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result) Summary {
	s := Summary{
		TotalEntries: len(results),
		ByDecision:   make(map[scorer.Decision]int),
	}
	for _, r := range results {
		if r.Matched {
			s.Matched++
		} else {
			s.Mismatched++
		}
		if r.RetrainTriggered {
			s.Retrains++
		}
		s.ByDecision[r.Decision]++
	}
	return s
}

// #endregion replay
