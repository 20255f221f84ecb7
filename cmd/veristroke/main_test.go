package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseFeatures(t *testing.T) {
	f, err := parseFeatures("0.1, 0.2,0.3,0.4")
	if err != nil {
		t.Fatalf("parseFeatures: %v", err)
	}
	if f[0] != 0.1 || f[3] != 0.4 {
		t.Fatalf("unexpected features: %v", f)
	}

	if _, err := parseFeatures("0.1,0.2,0.3"); err == nil {
		t.Fatal("expected error for wrong count")
	}
	if _, err := parseFeatures("0.1,0.2,0.3,1.5"); err == nil {
		t.Fatal("expected error for out-of-range feature")
	}
	if _, err := parseFeatures("0.1,0.2,0.3,abc"); err == nil {
		t.Fatal("expected error for non-numeric feature")
	}
}

func TestJudgeCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")

	out, err := execute(t, "judge", "--db", db, "--features", "0.2,0.2,0.2,0.2")
	if err != nil {
		t.Fatalf("judge: %v\n%s", err, out)
	}
	if !strings.Contains(out, "decision:   authentic") {
		t.Fatalf("expected authentic decision, got:\n%s", out)
	}
	if !strings.Contains(out, "threshold: 0.7000") {
		t.Fatalf("expected heuristic threshold in output, got:\n%s", out)
	}
}

func TestTrainCommandRefusesWithoutFeedback(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")

	out, err := execute(t, "train", "--db", db)
	if err != nil {
		t.Fatalf("train: %v\n%s", err, out)
	}
	if !strings.Contains(out, "retraining refused") {
		t.Fatalf("expected refusal without feedback, got:\n%s", out)
	}
}

func TestFeedbackCommandRecords(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")

	out, err := execute(t, "feedback",
		"--db", db,
		"--analysis-id", "a1",
		"--features", "0.9,0.9,0.9,0.9",
		"--verdict", "correct")
	if err != nil {
		t.Fatalf("feedback: %v\n%s", err, out)
	}
	if !strings.Contains(out, "feedback recorded for a1") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "retraining not triggered") {
		t.Fatalf("one verdict should not trigger retraining:\n%s", out)
	}
}

func TestCheckpointsCommandEmpty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")

	out, err := execute(t, "checkpoints", "--db", db)
	if err != nil {
		t.Fatalf("checkpoints: %v\n%s", err, out)
	}
	if !strings.Contains(out, "no checkpoints yet") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}
