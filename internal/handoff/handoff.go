// Package handoff implements C8: the run-spec ("superbundle.run.json") and
// assistant-handoff ("assistant_handoff.v1.json") writers. Both are plain
// JSON documents built as nested map[string]any so encoding/json's native
// alphabetic map-key ordering satisfies the "sorted keys, 2-space indent"
// requirement without a bespoke canonicalizer (the same trick record.R
// uses for the manifest itself).
package handoff

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"packager/internal/perr"
)

// RunSpecInput is everything the run-spec needs to describe one run.
type RunSpecInput struct {
	PackagerVersion string
	CodeSHA         string
	Config          map[string]any
	Transport       map[string]any
	Filters         map[string]any
	Fs              map[string]any
	Artifacts       map[string]string
}

// BuildRunSpec renders the effective config snapshot, transport settings,
// filters, fs flags, provenance and artifact filenames (spec.md §4.8).
func BuildRunSpec(in RunSpecInput) map[string]any {
	return map[string]any{
		"generated_at":     time.Now().UTC().Format(time.RFC3339),
		"packager_version": in.PackagerVersion,
		"code_sha":         in.CodeSHA,
		"config":           in.Config,
		"transport":        in.Transport,
		"filters":          in.Filters,
		"fs":               in.Fs,
		"artifacts":        in.Artifacts,
	}
}

// HandoffInput is everything assistant_handoff.v1.json needs.
type HandoffInput struct {
	Version       string
	ArtifactRoot  string
	Transport     map[string]any
	Paths         map[string]any // nullable values allowed (nil -> JSON null)
	AnalysisFiles map[string]string
	Quickstart    []map[string]any
	Highlights    map[string]any
}

// BuildHandoff renders the consumer-facing guide document (spec.md §4.8).
// AnalysisFiles should already be filtered to entries that exist on disk —
// the caller (orchestrator) knows which sidecars were actually written.
func BuildHandoff(in HandoffInput) map[string]any {
	return map[string]any{
		"record_type":    "assistant_handoff.v1",
		"version":        in.Version,
		"generated_at":   time.Now().UTC().Format(time.RFC3339),
		"artifact_root":  in.ArtifactRoot,
		"transport":      in.Transport,
		"paths":          in.Paths,
		"analysis_files": in.AnalysisFiles,
		"quickstart":     in.Quickstart,
		"highlights":     in.Highlights,
	}
}

// DefaultQuickstart builds the ordered list of "cards" pointing at key
// analysis outputs, skipping any semantic key whose sidecar wasn't
// produced this run.
func DefaultQuickstart(analysisFiles map[string]string, manifestRel string) []map[string]any {
	cards := []map[string]any{
		{"title": "Documentation coverage", "key": "doccoverage"},
		{"title": "Complexity hotspots", "key": "complexity"},
		{"title": "SQL surface", "key": "sql"},
		{"title": "Entrypoints", "key": "entrypoints"},
		{"title": "Git metadata", "key": "gitscan"},
	}
	var out []map[string]any
	for _, c := range cards {
		path, ok := analysisFiles[c["key"].(string)]
		if !ok {
			continue
		}
		out = append(out, map[string]any{"title": c["title"], "path": path})
	}
	out = append(out, map[string]any{"title": "Raw manifest", "path": manifestRel})
	return out
}

// Highlights derives a best-effort set of top-level stats from per-scanner
// counts. Fields are omitted (not zero-filled) when the corresponding
// scanner didn't run, per spec.md §4.8 "omit fields on parse failure".
func Highlights(counts map[string]int) map[string]any {
	out := map[string]any{}
	for _, key := range sortedIntKeys(counts) {
		out[key] = counts[key]
	}
	return out
}

func sortedIntKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Write marshals v with sorted keys (native for map[string]any) at 2-space
// indent and writes it to path.
func Write(path string, v map[string]any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return perr.Record("marshal "+path, err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return perr.IO("write "+path, err)
	}
	return nil
}
