package orchestrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"packager/internal/config"
)

func localOnlyConfig(t *testing.T, sourceRoot, publishRoot string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Packager.SourceRoot = sourceRoot
	cfg.Packager.IncludeGlobs = []string{"**/*"}
	cfg.Packager.Publish.Mode = "local"
	cfg.Packager.Publish.LocalRoot = publishRoot
	cfg.Packager.PublishAnalysis = true
	return cfg
}

func TestRunLocalModeProducesManifestAndHandoff(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "pkg", "a.go"), []byte("package pkg\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	publishRoot := t.TempDir()
	cfg := localOnlyConfig(t, src, publishRoot)
	eventsPath := filepath.Join(t.TempDir(), "run_events.jsonl")

	result := Run(context.Background(), cfg, eventsPath)
	if result.Err != nil {
		t.Fatalf("run failed: %v", result.Err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", result.ExitCode)
	}
	if result.RunID == "" {
		t.Fatal("expected a non-empty run id")
	}

	if _, err := os.Stat(eventsPath); err != nil {
		t.Fatalf("event log missing: %v", err)
	}

	entries, err := os.ReadDir(publishRoot)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 {
		t.Fatal("expected published files under local root")
	}

	var sawManifest, sawHandoff bool
	_ = filepath.Walk(publishRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		switch filepath.Base(path) {
		case "design_manifest.jsonl":
			sawManifest = true
		case "assistant_handoff.v1.json":
			sawHandoff = true
		}
		return nil
	})
	if !sawManifest {
		t.Fatal("expected design_manifest.jsonl to be published")
	}
	if !sawHandoff {
		t.Fatal("expected assistant_handoff.v1.json to be published")
	}
}

func TestRunRemoteModeWithoutTokenFailsValidation(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Packager.Publish.Mode = "remote"
	cfg.Packager.Publish.GitHub.Owner = "acme"
	cfg.Packager.Publish.GitHub.Repo = "demo"
	// No token set: config.Load's own validate() would normally catch this,
	// but here we bypass Load to exercise the orchestrator directly against
	// a config that never should have passed validation.
	cfg.Secrets.GitHubToken = ""

	eventsPath := filepath.Join(t.TempDir(), "run_events.jsonl")
	result := Run(context.Background(), cfg, eventsPath)
	if result.Err == nil {
		t.Fatal("expected remote publish to fail fast without a token")
	}
}
