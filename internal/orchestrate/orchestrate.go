// Package orchestrate implements C11, the top-level run state machine:
// init → discover/assemble(local, writing any analysis sidecars) →
// [rewrite(remote)] → chunk → handoff → publish → prune → done. It wires every other
// component together and is the sole caller of context cancellation,
// mirroring the teacher's single top-level coordinator pattern.
package orchestrate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dustin/go-humanize"

	"packager/internal/assembler"
	"packager/internal/chunk"
	"packager/internal/config"
	"packager/internal/eventlog"
	"packager/internal/handoff"
	"packager/internal/perr"
	"packager/internal/publish/localfs"
	"packager/internal/publish/remote"
	"packager/internal/rewrite"
)

// PackagerVersion is stamped into superbundle.run.json. Overridden at build
// time in real releases; a fixed literal here keeps output deterministic
// absent a build-info injection step.
const PackagerVersion = "1.0.0"

// Result reports the run's overall outcome for the CLI entrypoint.
type Result struct {
	RunID    string
	ExitCode int
	Err      error
}

// Run executes one full packaging run against cfg, writing the event log to
// eventsPath.
func Run(ctx context.Context, cfg config.Config, eventsPath string) Result {
	el, err := eventlog.Open(eventsPath)
	if err != nil {
		return Result{ExitCode: perr.ExitCode(err), Err: err}
	}
	defer el.Close()

	r := &run{ctx: ctx, cfg: cfg, el: el}
	err = r.execute()
	return Result{RunID: el.RunID(), ExitCode: perr.ExitCode(err), Err: err}
}

type run struct {
	ctx context.Context
	cfg config.Config
	el  *eventlog.Log

	workDir       string
	localManifest string
	localResult   assembler.Result
	remoteResult  struct {
		manifest string
		ok       bool
	}
	localChunk  chunk.Result
	remoteChunk chunk.Result
	analysisDir string
}

func (r *run) execute() error {
	p := r.cfg.Packager
	mode := p.Publish.Mode

	wantRemote := mode == "remote" || mode == "both"
	if wantRemote && strings.TrimSpace(r.cfg.Secrets.GitHubToken) == "" {
		return perr.Config("remote publish", errors.New("remote/both publish mode requires a GitHub token"))
	}

	r.workDir = filepath.Join(os.TempDir(), "packager-run-"+r.el.RunID())
	if err := os.MkdirAll(r.workDir, 0o755); err != nil {
		return perr.IO("mkdir work dir", err)
	}
	defer os.RemoveAll(r.workDir)

	r.el.Note("init", "run starting", map[string]any{"mode": mode})

	if err := r.checkInterrupt(); err != nil {
		return err
	}

	if err := r.assembleLocal(); err != nil {
		return err
	}

	if wantRemote {
		if err := r.assembleRemoteVariant(); err != nil {
			return err
		}
	}

	if err := r.chunkPhase(); err != nil {
		return err
	}

	analysisFiles := r.localResult.AnalysisFiles
	if err := r.writeHandoff(analysisFiles); err != nil {
		return err
	}

	if mode == "local" || mode == "both" {
		if err := r.publishLocal(); err != nil {
			return err
		}
	}
	if wantRemote {
		if err := r.publishRemote(); err != nil {
			return err
		}
	}

	r.el.Note("done", "run complete", nil)
	return nil
}

func (r *run) checkInterrupt() error {
	select {
	case <-r.ctx.Done():
		return perr.Interrupted("run", r.ctx.Err())
	default:
		return nil
	}
}

func (r *run) assembleLocal() error {
	p := r.cfg.Packager
	end := r.el.Step("assemble", "local", map[string]any{"source_root": p.SourceRoot})

	r.localManifest = filepath.Join(r.workDir, "local", p.ManifestPaths.RootDir+p.Transport.MonolithExt)
	r.analysisDir = filepath.Join(r.workDir, "local", p.ManifestPaths.AnalysisSubdir)

	res, err := assembler.Assemble(r.ctx, assembler.Config{
		SourceRoot:      p.SourceRoot,
		EmittedPrefix:   p.EmittedPrefix,
		IncludeGlobs:    p.IncludeGlobs,
		ExcludeGlobs:    p.ExcludeGlobs,
		SegmentExcludes: p.SegmentExcludes,
		CaseInsensitive: p.CaseInsensitive,
		FollowSymlinks:  p.FollowSymlinks,
		EmitAST:         p.EmitAST,
		ChunkRecords:    p.Transport.ChunkRecords,
		ChunkBytes:      p.Transport.ChunkBytes,
		ToolVersions:    map[string]string{"packager": PackagerVersion},
		OutBundle:       r.localManifest,
		PublishAnalysis: p.PublishAnalysis,
		AnalysisDir:     r.analysisDir,
	})
	if err != nil {
		end("error", nil, nil, err)
		return err
	}
	r.localResult = res
	end("ok", map[string]any{"files": res.Counts["files"]}, []string{r.localManifest}, nil)
	return nil
}

// assembleRemoteVariant produces the remote path-mode manifest by streaming
// C6's rewrite over the already-assembled local manifest, per the C5→C6
// control-flow arrow: assembly runs once, never twice.
func (r *run) assembleRemoteVariant() error {
	p := r.cfg.Packager
	end := r.el.Step("rewrite", "remote", map[string]any{"from": r.localManifest})

	dst := filepath.Join(r.workDir, "remote", p.ManifestPaths.RootDir+p.Transport.MonolithExt)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		end("error", nil, nil, err)
		return perr.IO("mkdir remote work dir", err)
	}

	in, err := os.Open(r.localManifest)
	if err != nil {
		end("error", nil, nil, err)
		return perr.IO("open local manifest for rewrite", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		end("error", nil, nil, err)
		return perr.IO("create remote manifest", err)
	}
	defer out.Close()

	if err := rewrite.Stream(in, out, rewrite.Remote(p.EmittedPrefix)); err != nil {
		end("error", nil, nil, err)
		return err
	}
	r.remoteResult.manifest = dst
	r.remoteResult.ok = true
	end("ok", nil, []string{dst}, nil)
	return nil
}

func (r *run) chunkPhase() error {
	p := r.cfg.Packager
	t := p.Transport

	chunkOne := func(step, manifestPath, destDir string) (chunk.Result, error) {
		end := r.el.Step("chunk", step, map[string]any{"manifest": manifestPath})
		res, err := chunk.Chunk(chunk.Options{
			MonolithPath:     manifestPath,
			DestDir:          destDir,
			PartStem:         t.PartStem,
			PartExt:          t.PartExt,
			SplitBytes:       t.SplitBytes,
			GroupDirs:        t.GroupDirs,
			DirSuffixWidth:   t.DirSuffixWidth,
			PartsPerDir:      t.PartsPerDir,
			PartsIndexName:   p.ManifestPaths.PartsIndexFilename,
			ChecksumsName:    p.ManifestPaths.ChecksumsFilename,
			PreserveMonolith: t.PreserveMonolith,
			Decision:         t.Decision,
		})
		if err != nil {
			end("error", nil, nil, err)
			return chunk.Result{}, err
		}
		var totalBytes int64
		for _, p := range res.Index.Parts {
			totalBytes += p.Size
		}
		end("ok", map[string]any{
			"chunked": res.Chunked, "parts": res.Index.TotalParts,
			"total_size": humanize.Bytes(uint64(totalBytes)),
		}, res.PartPaths, nil)
		return res, nil
	}

	res, err := chunkOne("local", r.localManifest, filepath.Dir(r.localManifest))
	if err != nil {
		return err
	}
	r.localChunk = res

	if r.remoteResult.ok {
		res, err := chunkOne("remote", r.remoteResult.manifest, filepath.Dir(r.remoteResult.manifest))
		if err != nil {
			return err
		}
		r.remoteChunk = res
	}
	return nil
}

func (r *run) writeHandoff(analysisFiles map[string]string) error {
	p := r.cfg.Packager
	end := r.el.Step("handoff", "write", nil)

	transport := map[string]any{
		"chunked":     r.localChunk.Chunked,
		"total_parts": r.localChunk.Index.TotalParts,
		"split_bytes": p.Transport.SplitBytes,
	}
	runSpec := handoff.BuildRunSpec(handoff.RunSpecInput{
		PackagerVersion: PackagerVersion,
		CodeSHA:         r.localChunk.MonolithSHA256,
		Config: map[string]any{
			"include_globs": p.IncludeGlobs, "exclude_globs": p.ExcludeGlobs,
			"segment_excludes": p.SegmentExcludes, "emitted_prefix": p.EmittedPrefix,
		},
		Transport: transport,
		Filters:   map[string]any{"case_insensitive": p.CaseInsensitive, "follow_symlinks": p.FollowSymlinks},
		Fs:        map[string]any{"source_root": p.SourceRoot},
		Artifacts: map[string]string{
			"manifest":    filepath.Base(r.localManifest),
			"parts_index": p.ManifestPaths.PartsIndexFilename,
			"checksums":   p.ManifestPaths.ChecksumsFilename,
		},
	})
	runSpecPath := filepath.Join(filepath.Dir(r.localManifest), "superbundle.run.json")
	if err := handoff.Write(runSpecPath, runSpec); err != nil {
		end("error", nil, nil, err)
		return err
	}

	manifestRel := p.EmittedPrefix + filepath.Base(r.localManifest)
	handoffPath := filepath.Join(filepath.Dir(r.localManifest), "assistant_handoff.v1.json")

	var monolithPath any
	if r.localChunk.Chunked && !p.Transport.PreserveMonolith {
		monolithPath = nil
	} else {
		monolithPath = manifestRel
	}
	paths := map[string]any{
		"guide":          p.EmittedPrefix + filepath.Base(handoffPath),
		"runspec":        p.EmittedPrefix + filepath.Base(runSpecPath),
		"checksums":      p.EmittedPrefix + p.ManifestPaths.ChecksumsFilename,
		"parts_index":    p.EmittedPrefix + p.ManifestPaths.PartsIndexFilename,
		"monolith":       monolithPath,
		"analysis_index": p.EmittedPrefix + p.ManifestPaths.AnalysisSubdir + "/" + p.ManifestPaths.AnalysisIndexFilename,
	}

	hi := handoff.Highlights(r.localResult.Counts)
	qs := handoff.DefaultQuickstart(analysisFiles, manifestRel)
	h := handoff.BuildHandoff(handoff.HandoffInput{
		Version:       "1",
		ArtifactRoot:  p.EmittedPrefix,
		Transport:     transport,
		Paths:         paths,
		AnalysisFiles: analysisFiles,
		Quickstart:    qs,
		Highlights:    hi,
	})
	if err := handoff.Write(handoffPath, h); err != nil {
		end("error", nil, nil, err)
		return err
	}
	end("ok", nil, []string{runSpecPath, handoffPath}, nil)
	return nil
}

func (r *run) publishLocal() error {
	p := r.cfg.Packager
	end := r.el.Step("publish", "local", map[string]any{"root": p.Publish.LocalRoot})

	allItems, err := collectItems(filepath.Dir(r.localManifest))
	if err != nil {
		end("error", nil, nil, err)
		return err
	}
	items := filterPublishItems(allItems, p)
	if err := localfs.Publish(items, p.Publish.LocalRoot, p.Publish.CleanBeforePublish); err != nil {
		end("error", nil, nil, err)
		return err
	}
	end("ok", map[string]any{"files": len(items)}, nil, nil)
	return nil
}

func (r *run) publishRemote() error {
	p := r.cfg.Packager
	gh := p.Publish.GitHub
	end := r.el.Step("publish", "remote", map[string]any{"owner": gh.Owner, "repo": gh.Repo, "branch": gh.Branch})

	cacheDir, _ := os.UserCacheDir()
	if cacheDir == "" {
		cacheDir = r.workDir
	}
	cache, err := remote.OpenShaCache(filepath.Join(cacheDir, "packager", "sha_cache.db"))
	if err != nil {
		end("error", nil, nil, err)
		return err
	}
	defer cache.Close()

	client, err := remote.NewClient(remote.Config{
		Owner: gh.Owner, Repo: gh.Repo, Branch: gh.Branch, BasePath: gh.BasePath,
		APIBase: gh.APIBase, UserAgent: gh.UserAgent,
		Timeout: gh.Timeout, LongTimeout: gh.LongTimeout,
		ThrottleEvery: gh.ThrottleEvery, SleepSecs: gh.SleepSecs,
		Token: r.cfg.Secrets.GitHubToken,
	}, cache)
	if err != nil {
		end("error", nil, nil, err)
		return err
	}

	dir := filepath.Dir(r.remoteResult.manifest)
	allItems, err := collectItems(dir)
	if err != nil {
		end("error", nil, nil, err)
		return err
	}
	srcItems := filterPublishItems(allItems, p)

	if p.Publish.CleanRepoRoot {
		var cleanErrs []string
		_ = client.CleanRepoRoot(r.ctx, strings.Trim(gh.BasePath, "/"), func(path string, ferr error) {
			cleanErrs = append(cleanErrs, path+": "+ferr.Error())
		})
		if len(cleanErrs) > 0 {
			r.el.Note("publish", "clean_repo_root had failures (logged, run continues)", map[string]any{"errors": cleanErrs})
		}
	}

	items := make([]remote.Item, 0, len(srcItems))
	for _, it := range srcItems {
		data := it.Content
		if data == nil {
			data, err = os.ReadFile(it.SourcePath)
			if err != nil {
				end("error", nil, nil, err)
				return perr.IO("read "+it.SourcePath, err)
			}
		}
		items = append(items, remote.Item{RelPath: it.RelPath, Content: data})
	}

	var pubErr error
	if useGitData(len(items)) {
		pubErr = client.PublishGitData(r.ctx, items, "chore: publish design manifest")
	} else {
		pubErr = client.PublishContentsAPI(r.ctx, items)
	}
	if pubErr != nil {
		end("error", nil, nil, pubErr)
		return pubErr
	}

	// Delta pruning runs against every artifact the current run produced,
	// regardless of which of those artifacts were (re)published above, so a
	// run-to-run toggle of publish_transport/publish_handoff can't leave
	// stale remote files behind (spec.md §4.10, §8 property 9).
	discoveredRel := make(map[string]struct{}, len(allItems))
	localArtifactNames := make(map[string]struct{}, len(allItems))
	for _, it := range allItems {
		discoveredRel[it.RelPath] = struct{}{}
		localArtifactNames[filepath.Base(it.RelPath)] = struct{}{}
	}
	codeDeleted, err := client.PruneCode(r.ctx, discoveredRel, p.ManifestPaths.AnalysisSubdir,
		p.IncludeGlobs, p.ExcludeGlobs, p.SegmentExcludes, p.CaseInsensitive)
	if err != nil {
		r.el.Note("publish", "prune_code failed (logged, run continues)", map[string]any{"error": err.Error()})
	}
	artifactsDeleted, err := client.PruneArtifacts(r.ctx, localArtifactNames, p.ManifestPaths.AnalysisSubdir)
	if err != nil {
		r.el.Note("publish", "prune_artifacts failed (logged, run continues)", map[string]any{"error": err.Error()})
	}
	r.el.Emit("prune.summary", map[string]any{
		"code_deleted":      codeDeleted,
		"artifacts_deleted": artifactsDeleted,
	})

	end("ok", map[string]any{"files": len(items)}, nil, nil)
	return nil
}

// useGitData prefers the atomic Git-Data batch-commit strategy for small
// item sets where the extra blob/tree/commit round trips are cheap relative
// to the all-or-nothing guarantee; large sets fall back to per-file
// Contents-API publishing to keep any single failure isolated.
func useGitData(n int) bool {
	return n > 0 && n <= 64
}

// classifyArtifact sorts a collected publish item into one of the three
// categories spec.md §6's publish_codebase/publish_handoff/publish_transport
// flags gate independently: the handoff/runspec sidecars, the chunked
// transport parts (plus their index and checksums), or everything else
// (the manifest itself and the analysis sidecars).
func classifyArtifact(relPath string, p config.Packager) string {
	base := filepath.Base(relPath)
	switch base {
	case "superbundle.run.json", "assistant_handoff.v1.json":
		return "handoff"
	case p.ManifestPaths.PartsIndexFilename, p.ManifestPaths.ChecksumsFilename, p.ManifestPaths.GitHubChecksumsFilename:
		return "transport"
	}
	if p.Transport.PartStem != "" && strings.HasPrefix(base, p.Transport.PartStem+"_") {
		return "transport"
	}
	return "codebase"
}

// filterPublishItems drops items whose category is turned off, so
// publish_codebase=false / publish_handoff=false / publish_transport=false
// each control their own slice of the work dir rather than being ignored.
func filterPublishItems(items []localfs.Item, p config.Packager) []localfs.Item {
	out := make([]localfs.Item, 0, len(items))
	for _, it := range items {
		switch classifyArtifact(it.RelPath, p) {
		case "handoff":
			if p.Publish.PublishHandoff {
				out = append(out, it)
			}
		case "transport":
			if p.Publish.PublishTransport {
				out = append(out, it)
			}
		default:
			if p.Publish.PublishCodebase {
				out = append(out, it)
			}
		}
	}
	return out
}

func collectItems(dir string) ([]localfs.Item, error) {
	var items []localfs.Item
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		items = append(items, localfs.Item{RelPath: filepath.ToSlash(rel), SourcePath: path})
		return nil
	})
	if err != nil {
		return nil, perr.IO("collect publish items", err)
	}
	return items, nil
}

// WorkerPoolSize mirrors spec.md §5's min(cpu_count, 8) sizing for callers
// that want the same bound outside internal/workerpool's default.
func WorkerPoolSize() int {
	n := runtime.NumCPU()
	if n > 8 {
		return 8
	}
	return n
}
