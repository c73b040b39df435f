package scanners

import (
	"context"
	"os"
	"regexp"

	"github.com/cespare/xxhash/v2"

	"packager/internal/discover"
	"packager/internal/record"
	"packager/internal/workerpool"
)

// Env scans for environment-variable reads: os.Getenv/os.environ in
// Python and Go, process.env in JS/TS.
type Env struct{}

func (Env) Name() string { return "env" }

var envPatterns = map[string]*regexp.Regexp{
	"python":     regexp.MustCompile(`os\.(?:getenv|environ(?:\.get)?)\(?\s*["']([A-Za-z_][A-Za-z0-9_]*)["']`),
	"go":         regexp.MustCompile(`os\.(?:Getenv|LookupEnv)\(\s*"([A-Za-z_][A-Za-z0-9_]*)"`),
	"javascript": regexp.MustCompile(`process\.env\.([A-Za-z_][A-Za-z0-9_]*)`),
	"typescript": regexp.MustCompile(`process\.env\.([A-Za-z_][A-Za-z0-9_]*)`),
}

func (Env) Scan(ctx context.Context, root string, items []discover.Item) ([]record.R, error) {
	targets := filterByExt(items, ".py", ".go", ".js", ".jsx", ".ts", ".tsx")
	results, err := workerpool.Run(ctx, targets, func(_ context.Context, it discover.Item) ([]record.R, error) {
		pattern, ok := envPatterns[languageOf(it.RepoRelPosix)]
		if !ok {
			return nil, nil
		}
		content, err := os.ReadFile(it.AbsPath)
		if err != nil {
			return nil, nil
		}
		matches := pattern.FindAllSubmatch(content, -1)
		if len(matches) == 0 {
			return nil, nil
		}
		lang := languageOf(it.RepoRelPosix)
		recs := make([]record.R, 0, len(matches))
		for _, m := range matches {
			recs = append(recs, record.R{"kind": "env.var", "path": it.RepoRelPosix, "name": string(m[1]), "language": lang})
		}
		return recs, nil
	})
	if err != nil {
		return nil, err
	}

	var out []record.R
	seen := map[uint64]struct{}{}
	files := map[uint64]struct{}{}
	for _, recs := range results {
		for _, r := range recs {
			out = append(out, r)
			seen[xxhash.Sum64String(r["name"].(string))] = struct{}{}
			files[xxhash.Sum64String(r["path"].(string))] = struct{}{}
		}
	}
	out = append(out, record.R{
		"kind": "env.summary", "files": len(files), "vars_total": len(out), "unique_vars": len(seen),
	})
	return out, nil
}
