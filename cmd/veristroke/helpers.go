package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/veristroke/veristroke/internal/scorer"
)

// parseFeatures parses a comma-separated feature list, e.g.
// "0.1,0.2,0.3,0.4" in texture,edge,color,noise order.
func parseFeatures(raw string) (scorer.FeatureVector, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != scorer.FeatureCount {
		return scorer.FeatureVector{}, fmt.Errorf("expected %d features, got %d", scorer.FeatureCount, len(parts))
	}
	var f scorer.FeatureVector
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return scorer.FeatureVector{}, fmt.Errorf("feature %s: %w", scorer.FeatureNames[i], err)
		}
		f[i] = v
	}
	if err := scorer.ValidateFeatures(f); err != nil {
		return scorer.FeatureVector{}, err
	}
	return f, nil
}

// printParams writes a parameter vector in a fixed human-readable form.
func printParams(w io.Writer, p scorer.ParameterVector) {
	fmt.Fprintf(w, "  threshold: %.4f\n", p.Threshold)
	for i, weight := range p.Weights {
		fmt.Fprintf(w, "  weight[%s]: %.4f\n", scorer.FeatureNames[i], weight)
	}
}
