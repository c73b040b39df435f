// Package config loads the packager's configuration: a YAML file under the
// "packager" key (spec.md §6) plus an env-var overlay for secrets and the
// handful of operational knobs that should not round-trip through a
// committed YAML file. The env(key, default) overlay pattern is carried
// from the teacher's original config loader.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"packager/internal/perr"
)

// Config is the effective, immutable configuration for one run. It is
// loaded once at startup and never mutated thereafter (spec.md §9 "Global
// state: avoid").
type Config struct {
	Packager Packager `yaml:"packager"`
	Secrets  Secrets  `yaml:"secrets"`
}

// Packager mirrors spec.md §6's packager.* structure.
type Packager struct {
	SourceRoot      string   `yaml:"source_root"`
	IncludeGlobs    []string `yaml:"include_globs"`
	ExcludeGlobs    []string `yaml:"exclude_globs"`
	SegmentExcludes []string `yaml:"segment_excludes"`
	EmittedPrefix   string   `yaml:"emitted_prefix"`
	FollowSymlinks  bool     `yaml:"follow_symlinks"`
	CaseInsensitive bool     `yaml:"case_insensitive"`
	PublishAnalysis bool     `yaml:"publish_analysis"`
	EmitAST         bool     `yaml:"emit_ast"`

	// StatusAddr is an ambient addition (SPEC_FULL §6): when set, a small
	// read-only status server is started alongside the run. Leaving it
	// empty keeps the "no flags required" CLI surface untouched.
	StatusAddr string `yaml:"status_addr"`

	Publish       Publish       `yaml:"publish"`
	Transport     Transport     `yaml:"transport"`
	ManifestPaths ManifestPaths `yaml:"manifest_paths"`

	AnalysisFilenames map[string]string `yaml:"analysis_filenames"`
}

// Publish ∈ spec.md §6 packager.publish.*.
type Publish struct {
	Mode               string `yaml:"mode"` // local, remote, both
	PublishCodebase    bool   `yaml:"publish_codebase"`
	PublishHandoff     bool   `yaml:"publish_handoff"`
	PublishTransport   bool   `yaml:"publish_transport"`
	CleanRepoRoot      bool   `yaml:"clean_repo_root"`
	CleanBeforePublish bool   `yaml:"clean_before_publish"`

	LocalRoot string `yaml:"local_root"`
	GitHub    GitHub `yaml:"github"`
}

// GitHub ∈ spec.md §6 packager.publish.github.*.
type GitHub struct {
	Owner         string        `yaml:"owner"`
	Repo          string        `yaml:"repo"`
	Branch        string        `yaml:"branch"`
	BasePath      string        `yaml:"base_path"`
	APIBase       string        `yaml:"api_base"`
	Timeout       time.Duration `yaml:"timeout"`
	LongTimeout   time.Duration `yaml:"long_timeout"`
	UserAgent     string        `yaml:"user_agent"`
	ThrottleEvery int           `yaml:"throttle_every"`
	SleepSecs     float64       `yaml:"sleep_secs"`
}

// Transport ∈ spec.md §6 packager.transport.*.
type Transport struct {
	PartStem         string `yaml:"part_stem"`
	PartExt          string `yaml:"part_ext"`
	PartsPerDir      int    `yaml:"parts_per_dir"`
	SplitBytes       int64  `yaml:"split_bytes"`
	PreserveMonolith bool   `yaml:"preserve_monolith"`
	DirSuffixWidth   int    `yaml:"dir_suffix_width"`
	MonolithExt      string `yaml:"monolith_ext"`
	PartsIndexName   string `yaml:"parts_index_name"`
	GroupDirs        bool   `yaml:"group_dirs"`
	ChunkRecords     bool   `yaml:"chunk_records"`
	ChunkBytes       int64  `yaml:"chunk_bytes"`
	// Decision ∈ {always, never, auto}; auto chunks iff monolith size > SplitBytes.
	Decision string `yaml:"decision"`
}

// ManifestPaths ∈ spec.md §6 packager.manifest_paths.*.
type ManifestPaths struct {
	RootDir                 string `yaml:"root_dir"`
	AnalysisSubdir          string `yaml:"analysis_subdir"`
	PartsIndexFilename      string `yaml:"parts_index_filename"`
	ChecksumsFilename       string `yaml:"checksums_filename"`
	AnalysisIndexFilename   string `yaml:"analysis_index_filename"`
	PythonIndexFilename     string `yaml:"python_index_filename"`
	GitHubChecksumsFilename string `yaml:"github_checksums_filename"`
	EventsFilename          string `yaml:"events_filename"`
}

// Secrets holds values that should never be committed to the YAML file and
// are instead read from the environment.
type Secrets struct {
	GitHubToken string `yaml:"-"`
}

// Load reads path (YAML), applies defaults for anything the file leaves
// zero-valued, and overlays env-sourced secrets and operational overrides.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, perr.Config("read config "+path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, perr.Config("parse config "+path, err)
		}
	}

	applyDefaults(&cfg)
	applyEnvOverlay(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, perr.Config("validate", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Packager: Packager{
			SourceRoot:      ".",
			IncludeGlobs:    []string{"**/*"},
			EmittedPrefix:   "output/patch_code_bundles/",
			PublishAnalysis: true,
			Publish: Publish{
				Mode:             "local",
				LocalRoot:        "dist",
				PublishCodebase:  true,
				PublishHandoff:   true,
				PublishTransport: true,
			},
			Transport: Transport{
				PartStem:         "design_manifest",
				PartExt:          ".txt",
				PartsPerDir:      100,
				SplitBytes:       300_000,
				DirSuffixWidth:   2,
				MonolithExt:      ".jsonl",
				PartsIndexName:   "design_manifest_parts_index.json",
				ChunkBytes:       64_000,
				Decision:         "auto",
				PreserveMonolith: false,
			},
			ManifestPaths: ManifestPaths{
				RootDir:                 "design_manifest",
				AnalysisSubdir:          "analysis",
				PartsIndexFilename:      "design_manifest_parts_index.json",
				ChecksumsFilename:       "design_manifest.SHA256SUMS",
				AnalysisIndexFilename:   "analysis_index.json",
				PythonIndexFilename:     "python_index.jsonl",
				GitHubChecksumsFilename: "design_manifest.SHA256SUMS",
				EventsFilename:          "run_events.jsonl",
			},
		},
	}
}

// applyDefaults fills any field still at its zero value after YAML
// unmarshaling with the same defaults() produces, so a partially-specified
// YAML file behaves like an overlay rather than a full replacement.
func applyDefaults(cfg *Config) {
	d := defaults()
	if len(cfg.Packager.IncludeGlobs) == 0 {
		cfg.Packager.IncludeGlobs = d.Packager.IncludeGlobs
	}
	if cfg.Packager.SourceRoot == "" {
		cfg.Packager.SourceRoot = d.Packager.SourceRoot
	}
	if cfg.Packager.EmittedPrefix == "" {
		cfg.Packager.EmittedPrefix = d.Packager.EmittedPrefix
	}
	if !strings.HasSuffix(cfg.Packager.EmittedPrefix, "/") {
		// spec.md §9 Open Question: normalize to trailing-slash internally.
		cfg.Packager.EmittedPrefix += "/"
	}
	if cfg.Packager.Publish.Mode == "" {
		cfg.Packager.Publish.Mode = d.Packager.Publish.Mode
	}
	if cfg.Packager.Publish.LocalRoot == "" {
		cfg.Packager.Publish.LocalRoot = d.Packager.Publish.LocalRoot
	}
	t, dt := &cfg.Packager.Transport, d.Packager.Transport
	if t.PartStem == "" {
		t.PartStem = dt.PartStem
	}
	if t.PartExt == "" {
		t.PartExt = dt.PartExt
	}
	if t.PartsPerDir == 0 {
		t.PartsPerDir = dt.PartsPerDir
	}
	if t.SplitBytes == 0 {
		t.SplitBytes = dt.SplitBytes
	}
	if t.DirSuffixWidth == 0 {
		t.DirSuffixWidth = dt.DirSuffixWidth
	}
	if t.MonolithExt == "" {
		t.MonolithExt = dt.MonolithExt
	}
	if t.PartsIndexName == "" {
		t.PartsIndexName = dt.PartsIndexName
	}
	if t.ChunkBytes == 0 {
		t.ChunkBytes = dt.ChunkBytes
	}
	if t.Decision == "" {
		t.Decision = dt.Decision
	}
	mp, dmp := &cfg.Packager.ManifestPaths, d.Packager.ManifestPaths
	if mp.RootDir == "" {
		mp.RootDir = dmp.RootDir
	}
	if mp.AnalysisSubdir == "" {
		mp.AnalysisSubdir = dmp.AnalysisSubdir
	}
	if mp.PartsIndexFilename == "" {
		mp.PartsIndexFilename = dmp.PartsIndexFilename
	}
	if mp.ChecksumsFilename == "" {
		mp.ChecksumsFilename = dmp.ChecksumsFilename
	}
	if mp.AnalysisIndexFilename == "" {
		mp.AnalysisIndexFilename = dmp.AnalysisIndexFilename
	}
	if mp.PythonIndexFilename == "" {
		mp.PythonIndexFilename = dmp.PythonIndexFilename
	}
	if mp.GitHubChecksumsFilename == "" {
		mp.GitHubChecksumsFilename = dmp.GitHubChecksumsFilename
	}
	if mp.EventsFilename == "" {
		mp.EventsFilename = dmp.EventsFilename
	}
	if cfg.Packager.Publish.GitHub.Timeout == 0 {
		cfg.Packager.Publish.GitHub.Timeout = 30 * time.Second
	}
	if cfg.Packager.Publish.GitHub.LongTimeout == 0 {
		cfg.Packager.Publish.GitHub.LongTimeout = 60 * time.Second
	}
	if cfg.Packager.Publish.GitHub.ThrottleEvery == 0 {
		cfg.Packager.Publish.GitHub.ThrottleEvery = 50
	}
	if cfg.Packager.Publish.GitHub.SleepSecs == 0 {
		cfg.Packager.Publish.GitHub.SleepSecs = 0.25
	}
	if cfg.Packager.Publish.GitHub.UserAgent == "" {
		cfg.Packager.Publish.GitHub.UserAgent = "packager/1.0"
	}
	if cfg.Packager.Publish.GitHub.Branch == "" {
		cfg.Packager.Publish.GitHub.Branch = "main"
	}
}

// applyEnvOverlay reads PACKAGER_CONFIG-adjacent env vars: the secret
// (required for any remote publish) and a couple of operational knobs that
// should never live in a committed YAML file.
func applyEnvOverlay(cfg *Config) {
	cfg.Secrets.GitHubToken = env("PACKAGER_GITHUB_TOKEN", cfg.Secrets.GitHubToken)
	if v := env("PACKAGER_STATUS_ADDR", ""); v != "" {
		cfg.Packager.StatusAddr = v
	}
	if v := env("PACKAGER_SOURCE_ROOT", ""); v != "" {
		cfg.Packager.SourceRoot = v
	}
}

func validate(cfg Config) error {
	switch cfg.Packager.Publish.Mode {
	case "local", "remote", "both":
	default:
		return &modeError{cfg.Packager.Publish.Mode}
	}
	if cfg.Packager.Publish.Mode != "local" {
		gh := cfg.Packager.Publish.GitHub
		if gh.Owner == "" || gh.Repo == "" {
			return errMissingGitHubTarget
		}
		if strings.TrimSpace(cfg.Secrets.GitHubToken) == "" {
			return errMissingToken
		}
	}
	return nil
}

type modeError struct{ mode string }

func (e *modeError) Error() string { return "invalid packager.publish.mode: " + e.mode }

var (
	errMissingGitHubTarget = configErr("remote/both publish mode requires packager.publish.github.owner and .repo")
	errMissingToken        = configErr("remote/both publish mode requires PACKAGER_GITHUB_TOKEN")
)

type configErr string

func (e configErr) Error() string { return string(e) }

func env(key, def string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

// ParseBool mirrors the teacher's small env-parsing helpers for bool-typed
// operational knobs layered on top of YAML-sourced defaults.
func ParseBool(s string, def bool) bool {
	if strings.TrimSpace(s) == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}
