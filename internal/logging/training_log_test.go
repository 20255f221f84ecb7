package logging

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/veristroke/veristroke/internal/checkpoint"
)

func tempLog(t *testing.T) *TrainingLog {
	t.Helper()
	ck, err := checkpoint.NewStore(filepath.Join(t.TempDir(), "log.db"))
	if err != nil {
		t.Fatalf("checkpoint.NewStore: %v", err)
	}
	t.Cleanup(func() { ck.Close() })

	log, err := NewTrainingLog(ck.DB())
	if err != nil {
		t.Fatalf("NewTrainingLog: %v", err)
	}
	return log
}

func TestTrainingLogRoundTrip(t *testing.T) {
	log := tempLog(t)

	events := []TrainingEvent{
		{VersionID: "v1", Trigger: "feedback", Outcome: "published"},
		{Trigger: "manual", Outcome: "refused", Reason: "insufficient feedback"},
		{Trigger: "manual", Outcome: "failed", Reason: "sanity check"},
	}
	for _, ev := range events {
		if err := log.Record(ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := log.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	// Newest first.
	if got[0].Outcome != "failed" || got[2].VersionID != "v1" {
		t.Fatalf("unexpected ordering: %+v", got)
	}
	if got[1].Reason != "insufficient feedback" {
		t.Fatalf("reason not round-tripped: %+v", got[1])
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatal("created_at not set")
	}
}

func TestTrainingLogRecentLimit(t *testing.T) {
	log := tempLog(t)
	for i := 0; i < 5; i++ {
		if err := log.Record(TrainingEvent{Trigger: "manual", Outcome: "refused"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	got, err := log.Recent(2)
	if err != nil || len(got) != 2 {
		t.Fatalf("expected 2 events, got %d (%v)", len(got), err)
	}
}

func TestSetupLevels(t *testing.T) {
	if got := Setup("debug").GetLevel(); got != zerolog.DebugLevel {
		t.Fatalf("expected debug, got %s", got)
	}
	if got := Setup("nonsense").GetLevel(); got != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %s", got)
	}
	if got := Setup("").GetLevel(); got != zerolog.InfoLevel {
		t.Fatalf("expected info default, got %s", got)
	}
}
