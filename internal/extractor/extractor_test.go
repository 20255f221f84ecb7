package extractor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/veristroke/veristroke/internal/scorer"
)

func TestHTTPSourceExtract(t *testing.T) {
	var gotRef string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotRef = req.ImageRef
		json.NewEncoder(w).Encode(extractResponse{Texture: 0.1, Edge: 0.2, Color: 0.3, Noise: 0.4})
	}))
	t.Cleanup(srv.Close)

	src := NewHTTPSource(srv.URL, time.Second, zerolog.Nop())
	features, err := src.Extract(context.Background(), "img-42")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if gotRef != "img-42" {
		t.Fatalf("expected image ref forwarded, got %q", gotRef)
	}
	want := scorer.FeatureVector{0.1, 0.2, 0.3, 0.4}
	if diff := cmp.Diff(want, features); diff != "" {
		t.Fatalf("features (-want +got):\n%s", diff)
	}
}

func TestHTTPSourceRejectsOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(extractResponse{Texture: 1.5})
	}))
	t.Cleanup(srv.Close)

	src := NewHTTPSource(srv.URL, time.Second, zerolog.Nop())
	if _, err := src.Extract(context.Background(), "img"); err == nil {
		t.Fatal("expected validation error for out-of-range feature")
	}
}

func TestHTTPSourceStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "extraction failed", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	src := NewHTTPSource(srv.URL, time.Second, zerolog.Nop())
	if _, err := src.Extract(context.Background(), "img"); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestStaticSource(t *testing.T) {
	src := StaticSource{Features: scorer.FeatureVector{0.5, 0.5, 0.5, 0.5}}
	features, err := src.Extract(context.Background(), "ignored")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if features != (scorer.FeatureVector{0.5, 0.5, 0.5, 0.5}) {
		t.Fatalf("unexpected features: %v", features)
	}

	bad := StaticSource{Features: scorer.FeatureVector{2, 0, 0, 0}}
	if _, err := bad.Extract(context.Background(), "ignored"); err == nil {
		t.Fatal("expected validation error")
	}
}
