// Package extractor obtains feature vectors for images under analysis.
// Feature extraction itself happens in an external service; this
// package is the client boundary and validates everything that crosses
// it.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/veristroke/veristroke/internal/scorer"
)

// #region source

// Source produces the feature vector for an image reference.
type Source interface {
	Extract(ctx context.Context, imageRef string) (scorer.FeatureVector, error)
}

// #endregion source

// #region http-source

// HTTPSource calls an external extraction service over JSON.
type HTTPSource struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewHTTPSource creates a client for the extraction endpoint.
func NewHTTPSource(url string, timeout time.Duration, log zerolog.Logger) *HTTPSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log.With().Str("component", "extractor").Logger(),
	}
}

type extractRequest struct {
	ImageRef string `json:"image_ref"`
}

type extractResponse struct {
	Texture float64 `json:"texture"`
	Edge    float64 `json:"edge"`
	Color   float64 `json:"color"`
	Noise   float64 `json:"noise"`
}

// Extract posts the image reference and validates the returned vector.
func (s *HTTPSource) Extract(ctx context.Context, imageRef string) (scorer.FeatureVector, error) {
	body, err := json.Marshal(extractRequest{ImageRef: imageRef})
	if err != nil {
		return scorer.FeatureVector{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return scorer.FeatureVector{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return scorer.FeatureVector{}, fmt.Errorf("extraction request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return scorer.FeatureVector{}, fmt.Errorf("extraction service returned %d: %s", resp.StatusCode, msg)
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return scorer.FeatureVector{}, fmt.Errorf("decode response: %w", err)
	}

	features := scorer.FeatureVector{out.Texture, out.Edge, out.Color, out.Noise}
	if err := scorer.ValidateFeatures(features); err != nil {
		return scorer.FeatureVector{}, fmt.Errorf("extraction service response: %w", err)
	}

	s.log.Debug().
		Str("image_ref", imageRef).
		Dur("elapsed", time.Since(start)).
		Msg("features extracted")
	return features, nil
}

// #endregion http-source

// #region static-source

// StaticSource returns a fixed feature vector. Used by the replay
// harness and by CLI invocations that pass features directly.
type StaticSource struct {
	Features scorer.FeatureVector
}

func (s StaticSource) Extract(ctx context.Context, imageRef string) (scorer.FeatureVector, error) {
	if err := scorer.ValidateFeatures(s.Features); err != nil {
		return scorer.FeatureVector{}, err
	}
	return s.Features, nil
}

// #endregion static-source
