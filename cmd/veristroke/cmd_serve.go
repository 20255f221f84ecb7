package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/veristroke/veristroke/internal/extractor"
	"github.com/veristroke/veristroke/internal/feed"
	"github.com/veristroke/veristroke/internal/reflexion"
	"github.com/veristroke/veristroke/internal/scorer"
)

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the judgment API and reflexion record feed",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "Listen address (overrides config feed_addr)")
}

// server holds the request handlers' shared dependencies.
type server struct {
	rt   *runtime
	loop *reflexion.Loop
	src  extractor.Source
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	addr := serveFlags.addr
	if addr == "" {
		addr = rt.cfg.FeedAddr
	}

	hub := feed.NewHub(rt.logger)
	trainer := reflexion.NewTrainer(rt.agent, rt.events, rt.logger)
	loop := reflexion.NewLoop(rt.env, rt.live, rt.demos, rt.rlog, trainer, hub, rt.logger)
	defer loop.Wait()

	srv := &server{rt: rt, loop: loop}
	if rt.cfg.ExtractorURL != "" {
		srv.src = extractor.NewHTTPSource(rt.cfg.ExtractorURL, rt.cfg.ExtractorTimeout, rt.logger)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/judge", srv.handleJudge)
	mux.HandleFunc("POST /v1/feedback", srv.handleFeedback)
	mux.HandleFunc("GET /v1/history", srv.handleHistory)
	mux.HandleFunc("GET /v1/metrics", srv.handleMetrics)
	mux.Handle("GET /v1/feed", hub)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt.logger.Info().Str("addr", addr).Msg("serving")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// #region handlers

type judgeRequest struct {
	AnalysisID      string     `json:"analysis_id"`
	Features        *[4]float64 `json:"features"`
	ImageRef        string     `json:"image_ref"`
	PriorConfidence float64    `json:"prior_confidence"`
}

type feedbackRequest struct {
	AnalysisID string      `json:"analysis_id"`
	Features   *[4]float64 `json:"features"`
	Verdict    string      `json:"verdict"`
	Verified   bool        `json:"verified"`
}

func (s *server) handleJudge(w http.ResponseWriter, r *http.Request) {
	var req judgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	features, err := s.featuresFor(r.Context(), req.Features, req.ImageRef)
	if err != nil {
		httpError(w, http.StatusBadRequest, err)
		return
	}
	if req.AnalysisID == "" {
		req.AnalysisID = uuid.NewString()
	}

	out, err := s.loop.Run(r.Context(), reflexion.Input{
		AnalysisID:      req.AnalysisID,
		Features:        features,
		PriorConfidence: req.PriorConfidence,
	})
	if err != nil {
		httpError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"record":        out.Record,
		"feature_flags": scorer.Flags(features),
	})
}

func (s *server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.AnalysisID == "" || req.Features == nil || req.Verdict == "" {
		httpError(w, http.StatusBadRequest, fmt.Errorf("analysis_id, features and verdict are required"))
		return
	}

	out, err := s.loop.Run(r.Context(), reflexion.Input{
		AnalysisID: req.AnalysisID,
		Features:   scorer.FeatureVector(*req.Features),
		Feedback:   &reflexion.Feedback{Verdict: req.Verdict, Verified: req.Verified},
	})
	if err != nil {
		httpError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"record":              out.Record,
		"retraining_triggered": out.Retrained,
	})
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httpError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	records, err := s.rt.rlog.History(limit)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	summary, err := s.rt.rlog.Summarize()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}
	ev, err := s.rt.agent.Evaluate()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	resp := map[string]interface{}{
		"records":              summary.Records,
		"with_feedback":        summary.WithFeedback,
		"mean_confidence_delta": summary.MeanDelta,
		"by_decision":          summary.ByDecision,
		"replayed_episodes":    ev.Episodes,
		"replayed_mean_reward": ev.MeanReward,
		"replayed_accuracy":    ev.Accuracy,
	}
	if entry := s.rt.live.Current(); entry != nil {
		resp["live_checkpoint"] = entry.Version
		resp["live_step"] = entry.Step
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) featuresFor(ctx context.Context, raw *[4]float64, imageRef string) (scorer.FeatureVector, error) {
	switch {
	case raw != nil:
		f := scorer.FeatureVector(*raw)
		if err := scorer.ValidateFeatures(f); err != nil {
			return scorer.FeatureVector{}, err
		}
		return f, nil
	case imageRef != "":
		if s.src == nil {
			return scorer.FeatureVector{}, fmt.Errorf("image_ref requires extractor_url in config")
		}
		return s.src.Extract(ctx, imageRef)
	}
	return scorer.FeatureVector{}, fmt.Errorf("either features or image_ref is required")
}

// statusFor maps scorer input violations to 400, everything else to 500.
func statusFor(err error) int {
	if errors.Is(err, scorer.ErrInvalidFeature) || errors.Is(err, scorer.ErrInvalidParameter) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// #endregion handlers
