// Package assembler implements C5, the manifest assembler: it orchestrates
// discovery, the Python indexer, the scanner suite, and the record writer
// to produce one monolithic JSONL manifest plus (when publish_analysis is
// set) a set of per-scanner analysis sidecar files.
package assembler

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"packager/internal/discover"
	"packager/internal/perr"
	"packager/internal/pyindex"
	"packager/internal/record"
	"packager/internal/rewrite"
	"packager/internal/scanners"
	"packager/internal/workerpool"
)

// Config drives one assembly pass. The assembler always writes the
// canonical, "local" path-mode manifest (prefix-qualified paths); the
// remote-mode variant is produced afterward by internal/rewrite streaming
// over this output (see DESIGN.md for why assembly runs once, not twice,
// per the spec's C5→C6 control-flow arrow).
type Config struct {
	SourceRoot      string
	EmittedPrefix   string
	IncludeGlobs    []string
	ExcludeGlobs    []string
	SegmentExcludes []string
	CaseInsensitive bool
	FollowSymlinks  bool
	EmitAST         bool
	ChunkRecords    bool
	ChunkBytes      int64
	ToolVersions    map[string]string

	OutBundle string // destination path for the monolithic manifest

	// PublishAnalysis, when true, additionally writes one JSON sidecar per
	// scanner summary under AnalysisDir (SPEC_FULL §8 / spec.md §4.8
	// analysis_files).
	PublishAnalysis bool
	AnalysisDir     string
}

// Result reports what one assembly pass produced.
type Result struct {
	Items         []discover.Item
	Counts        map[string]int
	DurationsMs   map[string]int64
	ManifestPath  string
	AnalysisFiles map[string]string // scanner name -> sidecar path
}

// Assemble runs C1 (discovery), C3 (python indexing), C4 (scanner suite)
// and writes the resulting records through C2 (the record writer) in the
// fixed order spec.md §4.5 describes.
func Assemble(ctx context.Context, cfg Config) (Result, error) {
	start := time.Now()
	mapPath := rewrite.Local(cfg.EmittedPrefix)

	items, err := discover.Discover(discover.Options{
		Root:            cfg.SourceRoot,
		IncludeGlobs:    cfg.IncludeGlobs,
		ExcludeGlobs:    cfg.ExcludeGlobs,
		SegmentExcludes: cfg.SegmentExcludes,
		CaseInsensitive: cfg.CaseInsensitive,
		FollowSymlinks:  cfg.FollowSymlinks,
	})
	if err != nil {
		return Result{}, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.OutBundle), 0o755); err != nil {
		return Result{}, perr.IO("mkdir manifest dir", err)
	}
	w, err := record.Create(cfg.OutBundle)
	if err != nil {
		return Result{}, perr.Record("create manifest", err)
	}
	defer w.Close()

	durations := map[string]int64{}
	counts := map[string]int{}

	// 1. header
	if err := w.EnsureHeader(record.R{
		"manifest_version": 1,
		"generated_at":     time.Now().UTC().Format(time.RFC3339),
		"source_root":      absOrSelf(cfg.SourceRoot),
		"include_globs":    cfg.IncludeGlobs,
		"exclude_globs":    cfg.ExcludeGlobs,
		"segment_excludes": cfg.SegmentExcludes,
		"case_insensitive": cfg.CaseInsensitive,
		"follow_symlinks":  cfg.FollowSymlinks,
		"modes":            map[string]any{"local": true, "remote": false},
		"tool_versions":    cfg.ToolVersions,
	}); err != nil {
		return Result{}, perr.Record("ensure header", err)
	}

	// 2. dir record for the emitted prefix.
	if err := w.Append(record.R{"kind": "dir", "path": mapPath("")}); err != nil {
		return Result{}, perr.Record("append dir", err)
	}

	// 3. file / file_chunk content records.
	t0 := time.Now()
	fileCount, err := emitFileRecords(ctx, w, cfg, items, mapPath)
	if err != nil {
		return Result{}, err
	}
	counts["files"] = fileCount
	durations["files_ms"] = time.Since(t0).Milliseconds()

	// 4. python.module + import edges (coalesced before emission, step 6).
	t0 = time.Now()
	pyModules, edges, err := emitPython(ctx, w, cfg, items, mapPath)
	if err != nil {
		return Result{}, err
	}
	counts["python_modules"] = pyModules
	counts["graph_edges"] = len(edges)
	durations["python_ms"] = time.Since(t0).Milliseconds()

	// 7. scanner suite (fixed order), path-rewritten per mapPath.
	t0 = time.Now()
	scanRecords, err := scanners.RunAll(ctx, cfg.SourceRoot, items)
	if err != nil {
		return Result{}, perr.Record("scanner suite", err)
	}
	analysisFiles := map[string]string{}
	if err := emitScanners(w, cfg, scanRecords, mapPath, counts, analysisFiles); err != nil {
		return Result{}, err
	}
	durations["scanners_ms"] = time.Since(t0).Milliseconds()

	// 8/9. artifact records. A single "manifest.bundle" artifact record
	// names the monolithic manifest (its filename comes from
	// configuration); no artifact records are emitted for the checksums
	// file, the transport parts, the parts index, the run spec or the
	// handoff file.
	if err := emitArtifactRecords(w, cfg); err != nil {
		return Result{}, err
	}

	// 10. terminating summary.
	if err := w.Append(record.R{
		"kind":         "bundle.summary",
		"counts":       counts,
		"durations_ms": mergeMs(durations, time.Since(start).Milliseconds()),
	}); err != nil {
		return Result{}, perr.Record("append bundle summary", err)
	}

	return Result{
		Items:         items,
		Counts:        counts,
		DurationsMs:   durations,
		ManifestPath:  cfg.OutBundle,
		AnalysisFiles: analysisFiles,
	}, nil
}

func mergeMs(m map[string]int64, total int64) map[string]int64 {
	out := make(map[string]int64, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out["total_ms"] = total
	return out
}

func absOrSelf(root string) string {
	a, err := filepath.Abs(root)
	if err != nil {
		return root
	}
	return a
}

// emitFileRecords reads each discovered file, computes its SHA-256, and
// emits either a single "file" record or N "file_chunk" records per the
// chunking policy (spec.md §3, §9 Open Question 2): chunking is gated by
// ChunkRecords AND a per-file size threshold (ChunkBytes); a file at or
// under the threshold always emits a single "file" record.
func emitFileRecords(ctx context.Context, w *record.Writer, cfg Config, items []discover.Item, mapPath rewrite.MapFunc) (int, error) {
	type fileOut struct {
		path    string
		content []byte
		sum     [32]byte
		err     error
	}
	reads, err := workerpool.Run(ctx, items, func(_ context.Context, it discover.Item) (fileOut, error) {
		content, rerr := os.ReadFile(it.AbsPath)
		if rerr != nil {
			return fileOut{path: it.RepoRelPosix, err: rerr}, nil
		}
		return fileOut{path: it.RepoRelPosix, content: content, sum: sha256.Sum256(content)}, nil
	})
	if err != nil {
		return 0, perr.IO("read files", err)
	}

	count := 0
	for _, f := range reads {
		mapped := mapPath(f.path)
		if f.err != nil {
			if err := w.Append(record.R{
				"kind": "file", "path": mapped, "content_b64": "",
				"sha256": "", "notes": []string{"unreadable"},
			}); err != nil {
				return 0, perr.Record("append unreadable file", err)
			}
			count++
			continue
		}
		sumHex := fmt.Sprintf("%x", f.sum)
		if !cfg.ChunkRecords || int64(len(f.content)) <= cfg.ChunkBytes {
			if err := w.Append(record.R{
				"kind": "file", "path": mapped,
				"content_b64": base64.StdEncoding.EncodeToString(f.content),
				"sha256":      sumHex,
			}); err != nil {
				return 0, perr.Record("append file", err)
			}
			count++
			continue
		}
		if err := emitFileChunks(w, mapped, f.content, sumHex, cfg.ChunkBytes); err != nil {
			return 0, err
		}
		count++
	}
	return count, nil
}

func emitFileChunks(w *record.Writer, path string, content []byte, sha256File string, chunkBytes int64) error {
	if chunkBytes <= 0 {
		chunkBytes = 64_000
	}
	total := (int64(len(content)) + chunkBytes - 1) / chunkBytes
	if total == 0 {
		total = 1
	}
	for i := int64(0); i < total; i++ {
		start := i * chunkBytes
		end := start + chunkBytes
		if end > int64(len(content)) {
			end = int64(len(content))
		}
		chunk := content[start:end]
		sum := sha256.Sum256(chunk)
		if err := w.Append(record.R{
			"kind": "file_chunk", "path": path,
			"chunk_index": int(i), "chunks_total": int(total),
			"byte_start": start, "byte_end": end,
			"content_b64":   base64.StdEncoding.EncodeToString(chunk),
			"sha256_chunk":  fmt.Sprintf("%x", sum),
			"sha256_file":   sha256File,
		}); err != nil {
			return perr.Record("append file_chunk", err)
		}
	}
	return nil
}

// emitPython indexes every discovered .py file (C3), emits python.module
// records as it goes, then emits the coalesced import edges as graph.edge
// records and returns them (spec.md §4.5 steps 4 and 6).
func emitPython(ctx context.Context, w *record.Writer, cfg Config, items []discover.Item, mapPath rewrite.MapFunc) (int, []pyindex.Edge, error) {
	var pyItems []discover.Item
	for _, it := range items {
		if hasSuffix(it.RepoRelPosix, ".py") {
			pyItems = append(pyItems, it)
		}
	}
	if len(pyItems) == 0 {
		return 0, nil, nil
	}

	results, err := workerpool.Run(ctx, pyItems, func(_ context.Context, it discover.Item) (pyindex.Result, error) {
		content, rerr := os.ReadFile(it.AbsPath)
		if rerr != nil {
			return pyindex.Result{Module: pyindex.ModuleInfo{Path: it.RepoRelPosix, Module: pyindex.ModuleName(it.RepoRelPosix), Err: "unreadable"}}, nil
		}
		return pyindex.File(it.RepoRelPosix, content, cfg.EmitAST), nil
	})
	if err != nil {
		return 0, nil, perr.Record("index python", err)
	}

	var allEdges []pyindex.Edge
	count := 0
	for _, res := range results {
		mod := res.Module
		rec := record.R{
			"kind": "python.module", "path": mapPath(mod.Path), "module": mod.Module,
			"symbols": map[string]any{"classes": mod.Classes, "functions": mod.Funcs},
			"imports": mod.Imports,
		}
		if mod.Err != "" {
			rec["error"] = map[string]any{"message": mod.Err}
		}
		if err := w.Append(rec); err != nil {
			return 0, nil, perr.Record("append python.module", err)
		}
		count++
		allEdges = append(allEdges, res.Edges...)

		for _, extra := range res.Extra {
			extra = rewrite.Object(extra, func(p string) string { return mapPath(p) })
			if err := w.Append(extra); err != nil {
				return 0, nil, perr.Record("append ast extra", err)
			}
		}
	}

	coalesced := pyindex.CoalesceEdges(allEdges)
	for _, e := range coalesced {
		if err := w.Append(record.R{
			"kind": "graph.edge", "edge_type": e.EdgeType,
			"src_path": mapPath(e.SrcPath), "dst_module": e.DstModule,
		}); err != nil {
			return 0, nil, perr.Record("append graph.edge", err)
		}
	}
	return count, coalesced, nil
}

// emitScanners path-rewrites and appends every scanner record in the fixed
// registry order, tallies per-scanner file counts from each "*.summary"
// record, and — when PublishAnalysis is set — writes a JSON sidecar per
// scanner under AnalysisDir.
func emitScanners(w *record.Writer, cfg Config, recs []record.R, mapPath rewrite.MapFunc, counts map[string]int, analysisFiles map[string]string) error {
	bySuite := map[string][]record.R{}
	order := make([]string, 0, len(scanners.Registry))
	for _, s := range scanners.Registry {
		order = append(order, s.Name())
	}

	for _, r := range recs {
		r = rewrite.Object(r, func(p string) string { return mapPath(p) })
		if err := w.Append(r); err != nil {
			return perr.Record("append scanner record", err)
		}
		kind, _ := r["kind"].(string)
		suite := suiteOf(kind, order)
		bySuite[suite] = append(bySuite[suite], r)
		if files, ok := r["files"].(int); ok && isSummary(kind) {
			counts[suite+"_files"] = files
		}
	}

	if cfg.PublishAnalysis && cfg.AnalysisDir != "" {
		if err := os.MkdirAll(cfg.AnalysisDir, 0o755); err != nil {
			return perr.IO("mkdir analysis dir", err)
		}
		for _, name := range order {
			recs := bySuite[name]
			if len(recs) == 0 {
				continue
			}
			path := filepath.Join(cfg.AnalysisDir, name+".json")
			b, err := json.MarshalIndent(recs, "", "  ")
			if err != nil {
				return perr.Record("marshal analysis sidecar", err)
			}
			if err := os.WriteFile(path, b, 0o644); err != nil {
				return perr.IO("write analysis sidecar", err)
			}
			analysisFiles[name] = path
		}
	}
	return nil
}

func suiteOf(kind string, order []string) string {
	for _, name := range order {
		if hasPrefix(kind, name+".") {
			return name
		}
	}
	// A few scanners don't prefix their kinds with their registered
	// Name(); map their dotted prefix back to the scanner, else use it as is.
	prefix := kind
	for i := 0; i < len(kind); i++ {
		if kind[i] == '.' {
			prefix = kind[:i]
			break
		}
	}
	if name, ok := kindPrefixSuite[prefix]; ok {
		return name
	}
	return prefix
}

var kindPrefixSuite = map[string]string{
	"entrypoint": "entrypoints", "git": "gitscan", "asset": "assets", "static": "staticcheck",
}

func isSummary(kind string) bool {
	return len(kind) > 8 && kind[len(kind)-8:] == ".summary"
}

func emitArtifactRecords(w *record.Writer, cfg Config) error {
	artifacts := []record.R{
		{"kind": "artifact", "artifact_kind": "manifest.bundle", "path": filepath.Base(cfg.OutBundle)},
	}
	if err := w.AppendAll(artifacts); err != nil {
		return perr.Record("append artifact records", err)
	}
	return nil
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
