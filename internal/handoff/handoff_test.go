package handoff

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteSortedKeysIndented(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	if err := Write(path, map[string]any{"zeta": 1, "alpha": 2}); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if strings.Index(s, "alpha") > strings.Index(s, "zeta") {
		t.Fatalf("keys not sorted: %s", s)
	}
	if !strings.Contains(s, "  ") {
		t.Fatal("expected 2-space indentation")
	}
}

func TestDefaultQuickstartSkipsMissingSidecars(t *testing.T) {
	analysis := map[string]string{"doccoverage": "analysis/doccoverage.json"}
	cards := DefaultQuickstart(analysis, "design_manifest.jsonl")

	var titles []string
	for _, c := range cards {
		titles = append(titles, c["title"].(string))
	}
	if titles[0] != "Documentation coverage" {
		t.Fatalf("got %v", titles)
	}
	for _, t2 := range titles {
		if t2 == "Complexity hotspots" {
			t.Fatal("should skip cards without a produced sidecar")
		}
	}
	if titles[len(titles)-1] != "Raw manifest" {
		t.Fatal("raw manifest card must always be last")
	}
}

func TestHighlightsOmitsUnsetCounts(t *testing.T) {
	h := Highlights(map[string]int{"doccoverage_files": 3})
	if len(h) != 1 {
		t.Fatalf("want 1 key, got %d", len(h))
	}
	if _, ok := h["complexity_files"]; ok {
		t.Fatal("should not synthesize zero-valued keys for scanners that didn't run")
	}
}

func TestBuildHandoffRoundTrips(t *testing.T) {
	h := BuildHandoff(HandoffInput{
		Version: "1", ArtifactRoot: "output/bundle/",
		Transport: map[string]any{"chunked": false},
		Paths:     map[string]any{"manifest": "output/bundle/design_manifest.jsonl"},
	})
	b, err := json.Marshal(h)
	if err != nil {
		t.Fatal(err)
	}
	var round map[string]any
	if err := json.Unmarshal(b, &round); err != nil {
		t.Fatal(err)
	}
	if round["record_type"] != "assistant_handoff.v1" {
		t.Fatalf("record_type = %v", round["record_type"])
	}
}
