package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veristroke/veristroke/internal/replay"
)

var replayFlags struct {
	fixture string
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded fixture through the reflexion pipeline",
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayFlags.fixture, "fixture", "", "Path to a JSON fixture file (required)")
	_ = replayCmd.MarkFlagRequired("fixture")
}

func runReplay(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	fixture, err := replay.LoadFixture(replayFlags.fixture)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if fixture.Description != "" {
		fmt.Fprintf(w, "fixture: %s\n", fixture.Description)
	}

	results, err := replay.Replay(cmd.Context(), rt.loop, fixture)
	if err != nil {
		return err
	}

	for _, r := range results {
		status := "ok"
		if !r.Matched {
			status = fmt.Sprintf("MISMATCH (expected %s)", r.ExpectedDecision)
		}
		fmt.Fprintf(w, "%s  %-9s score=%.4f  %s\n", r.AnalysisID, r.Decision, r.AnomalyScore, status)
	}

	s := replay.Summarize(results)
	fmt.Fprintf(w, "entries=%d matched=%d mismatched=%d retrains=%d\n",
		s.TotalEntries, s.Matched, s.Mismatched, s.Retrains)
	if s.Mismatched > 0 {
		return fmt.Errorf("%d of %d entries mismatched", s.Mismatched, s.TotalEntries)
	}
	return nil
}
