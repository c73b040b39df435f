package scanners

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"packager/internal/discover"
	"packager/internal/record"
)

// Entrypoints detects process entrypoints: Go's func main, Python's
// __main__ guard, and package.json's bin/scripts.start.
type Entrypoints struct{}

func (Entrypoints) Name() string { return "entrypoints" }

func (Entrypoints) Scan(_ context.Context, _ string, items []discover.Item) ([]record.R, error) {
	var out []record.R
	kinds := map[string]int{}

	for _, it := range items {
		switch {
		case strings.HasSuffix(it.RepoRelPosix, ".go"):
			content, err := os.ReadFile(it.AbsPath)
			if err == nil && strings.Contains(string(content), "func main(") && strings.Contains(string(content), "package main") {
				out = append(out, record.R{"kind": "entrypoint.file", "path": it.RepoRelPosix, "entry_kind": "go_main"})
				kinds["go_main"]++
			}
		case strings.HasSuffix(it.RepoRelPosix, ".py"):
			content, err := os.ReadFile(it.AbsPath)
			if err == nil && (strings.Contains(string(content), `__name__ == "__main__"`) || strings.Contains(string(content), `__name__ == '__main__'`)) {
				out = append(out, record.R{"kind": "entrypoint.file", "path": it.RepoRelPosix, "entry_kind": "python_main_guard"})
				kinds["python_main_guard"]++
			}
		case strings.HasSuffix(it.RepoRelPosix, "package.json"):
			content, err := os.ReadFile(it.AbsPath)
			if err != nil {
				continue
			}
			var pkg struct {
				Bin     json.RawMessage   `json:"bin"`
				Scripts map[string]string `json:"scripts"`
			}
			if err := json.Unmarshal(content, &pkg); err != nil {
				continue
			}
			if len(pkg.Bin) > 0 && string(pkg.Bin) != "null" {
				out = append(out, record.R{"kind": "entrypoint.file", "path": it.RepoRelPosix, "entry_kind": "npm_bin"})
				kinds["npm_bin"]++
			}
			if _, ok := pkg.Scripts["start"]; ok {
				out = append(out, record.R{"kind": "entrypoint.file", "path": it.RepoRelPosix, "entry_kind": "npm_start"})
				kinds["npm_start"]++
			}
		}
	}

	out = append(out, record.R{"kind": "entrypoint.summary", "files": len(out), "kinds": kinds})
	return out, nil
}
