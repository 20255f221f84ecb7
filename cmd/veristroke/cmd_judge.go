package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/veristroke/veristroke/internal/extractor"
	"github.com/veristroke/veristroke/internal/reflexion"
	"github.com/veristroke/veristroke/internal/scorer"
)

var judgeFlags struct {
	analysisID      string
	features        string
	imageRef        string
	priorConfidence float64
}

var judgeCmd = &cobra.Command{
	Use:   "judge",
	Short: "Run one authenticity judgment through the reflexion loop",
	RunE:  runJudge,
}

func init() {
	f := judgeCmd.Flags()
	f.StringVar(&judgeFlags.analysisID, "analysis-id", "", "Analysis id (generated when empty)")
	f.StringVar(&judgeFlags.features, "features", "", "Comma-separated features: texture,edge,color,noise")
	f.StringVar(&judgeFlags.imageRef, "image-ref", "", "Image reference resolved via the extraction service")
	f.Float64Var(&judgeFlags.priorConfidence, "prior-confidence", 0, "Confidence of the judgment being reflected on")
}

func runJudge(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	features, err := resolveFeatures(cmd, rt)
	if err != nil {
		return err
	}

	analysisID := judgeFlags.analysisID
	if analysisID == "" {
		analysisID = uuid.NewString()
	}

	out, err := rt.loop.Run(cmd.Context(), reflexion.Input{
		AnalysisID:      analysisID,
		Features:        features,
		PriorConfidence: judgeFlags.priorConfidence,
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	rec := out.Record
	fmt.Fprintf(w, "analysis:   %s (iteration %d)\n", rec.AnalysisID, rec.Iteration)
	fmt.Fprintf(w, "decision:   %s\n", rec.Decision)
	fmt.Fprintf(w, "score:      %.4f\n", rec.AnomalyScore)
	fmt.Fprintf(w, "confidence: %.4f (delta %+.4f)\n", rec.ConfidenceAfter, rec.ConfidenceDelta)
	fmt.Fprintln(w, "parameters:")
	printParams(w, rec.ParamsBefore)
	for _, flag := range scorer.Flags(features) {
		fmt.Fprintf(w, "warning:    %s\n", flag)
	}
	return nil
}

// resolveFeatures takes --features directly or calls the extraction
// service for --image-ref.
func resolveFeatures(cmd *cobra.Command, rt *runtime) (scorer.FeatureVector, error) {
	switch {
	case judgeFlags.features != "":
		return parseFeatures(judgeFlags.features)
	case judgeFlags.imageRef != "":
		if rt.cfg.ExtractorURL == "" {
			return scorer.FeatureVector{}, fmt.Errorf("--image-ref requires extractor_url in config")
		}
		src := extractor.NewHTTPSource(rt.cfg.ExtractorURL, rt.cfg.ExtractorTimeout, rt.logger)
		return src.Extract(cmd.Context(), judgeFlags.imageRef)
	}
	return scorer.FeatureVector{}, fmt.Errorf("either --features or --image-ref is required")
}
