package replay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/veristroke/veristroke/internal/scorer"
)

func writeFixture(t *testing.T, raw string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadFixture(t *testing.T) {
	path := writeFixture(t, `{
		"description": "two analyses, one with feedback",
		"entries": [
			{"analysis_id": "a1", "features": [0.2, 0.2, 0.2, 0.2], "expected_decision": "authentic"},
			{"analysis_id": "a2", "features": [0.9, 0.9, 0.9, 0.9], "prior_confidence": 0.6, "verdict": "correct"}
		]
	}`)

	f, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if len(f.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(f.Entries))
	}
	if f.Entries[0].ExpectedDecision != "authentic" {
		t.Fatalf("expected decision not parsed: %+v", f.Entries[0])
	}
	if f.Entries[1].Verdict != "correct" || f.Entries[1].PriorConfidence != 0.6 {
		t.Fatalf("feedback entry not parsed: %+v", f.Entries[1])
	}
	want := scorer.FeatureVector{0.2, 0.2, 0.2, 0.2}
	if f.Entries[0].FeatureVector() != want {
		t.Fatalf("feature conversion: got %v", f.Entries[0].FeatureVector())
	}
}

func TestLoadFixtureRejectsEmpty(t *testing.T) {
	path := writeFixture(t, `{"description": "empty", "entries": []}`)
	if _, err := LoadFixture(path); err == nil {
		t.Fatal("expected error for fixture with no entries")
	}
}

func TestLoadFixtureRejectsBadJSON(t *testing.T) {
	path := writeFixture(t, `{not json`)
	if _, err := LoadFixture(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadFixtureMissingFile(t *testing.T) {
	if _, err := LoadFixture(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
