package assembler

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFixture(t *testing.T, root string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte("# hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var out []map[string]any
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for sc.Scan() {
		var obj map[string]any
		if err := json.Unmarshal(sc.Bytes(), &obj); err != nil {
			t.Fatalf("line not valid JSON: %s: %v", sc.Text(), err)
		}
		out = append(out, obj)
	}
	return out
}

func TestAssembleProducesHeaderThenSummary(t *testing.T) {
	src := t.TempDir()
	writeFixture(t, src)
	out := filepath.Join(t.TempDir(), "design_manifest.jsonl")

	res, err := Assemble(context.Background(), Config{
		SourceRoot:    src,
		EmittedPrefix: "output/bundle/",
		IncludeGlobs:  []string{"**/*"},
		OutBundle:     out,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.ManifestPath != out {
		t.Fatalf("manifest path = %q", res.ManifestPath)
	}

	recs := readRecords(t, out)
	if len(recs) < 2 {
		t.Fatalf("expected at least header + summary, got %d records", len(recs))
	}
	if recs[0]["kind"] != "manifest.header" {
		t.Fatalf("first record kind = %v", recs[0]["kind"])
	}
	last := recs[len(recs)-1]
	if last["kind"] != "bundle.summary" {
		t.Fatalf("last record kind = %v, want bundle.summary", last["kind"])
	}
}

func TestAssemblePathsCarryEmittedPrefix(t *testing.T) {
	src := t.TempDir()
	writeFixture(t, src)
	out := filepath.Join(t.TempDir(), "design_manifest.jsonl")

	if _, err := Assemble(context.Background(), Config{
		SourceRoot:    src,
		EmittedPrefix: "output/bundle/",
		IncludeGlobs:  []string{"**/*"},
		OutBundle:     out,
	}); err != nil {
		t.Fatal(err)
	}

	recs := readRecords(t, out)
	sawFile := false
	for _, r := range recs {
		if r["kind"] != "file" {
			continue
		}
		sawFile = true
		p, _ := r["path"].(string)
		if !strings.HasPrefix(p, "output/bundle/") {
			t.Fatalf("file path %q missing emitted prefix", p)
		}
	}
	if !sawFile {
		t.Fatal("expected at least one file record")
	}
}

func TestAssembleWritesAnalysisSidecarsWhenRequested(t *testing.T) {
	src := t.TempDir()
	writeFixture(t, src)
	work := t.TempDir()
	out := filepath.Join(work, "design_manifest.jsonl")
	analysisDir := filepath.Join(work, "analysis")

	res, err := Assemble(context.Background(), Config{
		SourceRoot:      src,
		EmittedPrefix:   "output/bundle/",
		IncludeGlobs:    []string{"**/*"},
		OutBundle:       out,
		PublishAnalysis: true,
		AnalysisDir:     analysisDir,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.AnalysisFiles) == 0 {
		t.Fatal("expected at least one analysis sidecar")
	}
	for name, path := range res.AnalysisFiles {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("sidecar %s missing on disk: %v", name, err)
		}
	}
}
