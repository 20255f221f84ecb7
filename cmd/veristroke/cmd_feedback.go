package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veristroke/veristroke/internal/reflexion"
)

var feedbackFlags struct {
	analysisID string
	features   string
	verdict    string
	verified   bool
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Attach a human verdict to an analysis and trigger learning",
	Long: "Feedback re-runs the reflexion cycle for the analysis with the\n" +
		"verdict attached: the verdict becomes a demonstration and, once\n" +
		"enough feedback has accumulated, kicks off background retraining.",
	RunE: runFeedback,
}

func init() {
	f := feedbackCmd.Flags()
	f.StringVar(&feedbackFlags.analysisID, "analysis-id", "", "Analysis id the verdict applies to (required)")
	f.StringVar(&feedbackFlags.features, "features", "", "Comma-separated features of the analyzed image (required)")
	f.StringVar(&feedbackFlags.verdict, "verdict", "", "correct | incorrect | uncertain (required)")
	f.BoolVar(&feedbackFlags.verified, "verified", false, "Verdict is expert-verified")

	_ = feedbackCmd.MarkFlagRequired("analysis-id")
	_ = feedbackCmd.MarkFlagRequired("features")
	_ = feedbackCmd.MarkFlagRequired("verdict")
}

func runFeedback(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	features, err := parseFeatures(feedbackFlags.features)
	if err != nil {
		return err
	}

	out, err := rt.loop.Run(cmd.Context(), reflexion.Input{
		AnalysisID: feedbackFlags.analysisID,
		Features:   features,
		Feedback: &reflexion.Feedback{
			Verdict:  feedbackFlags.verdict,
			Verified: feedbackFlags.verified,
		},
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "feedback recorded for %s (iteration %d)\n", out.Record.AnalysisID, out.Record.Iteration)
	if out.Retrained {
		fmt.Fprintln(w, "retraining triggered")
	} else {
		fmt.Fprintln(w, "retraining not triggered (feedback threshold not met)")
	}
	return nil
}
