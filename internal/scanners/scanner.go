// Package scanners implements C4, the fixed suite of repository scanners.
// Each scanner degrades gracefully on unparseable input (it never fails
// the whole pipeline) and always ends its output with exactly one
// "*.summary" record.
package scanners

import (
	"context"

	"packager/internal/discover"
	"packager/internal/record"
)

// Scanner is implemented by every entry in Registry.
type Scanner interface {
	Name() string
	Scan(ctx context.Context, root string, items []discover.Item) ([]record.R, error)
}

// Registry lists the scanner suite in the fixed run order required by the
// "Ordering" guarantee: doccoverage, complexity, owners, env, entrypoints,
// html, sql, jsts, deps, gitscan, license, secrets, assets, quality,
// staticcheck. New scanners are appended here, never reordered.
var Registry = []Scanner{
	DocCoverage{},
	Complexity{},
	Owners{},
	Env{},
	Entrypoints{},
	HTML{},
	SQL{},
	JSTS{},
	Deps{},
	GitScan{},
	License{},
	Secrets{},
	Assets{},
	Quality{},
	StaticCheck{},
}

// RunAll executes every scanner in Registry and returns each scanner's
// records, flattened, preserving the fixed run order — the workerpool
// parallelizes the work inside each scanner's Scan, not across scanners,
// so the outer ordering guarantee costs nothing to uphold.
func RunAll(ctx context.Context, root string, items []discover.Item) ([]record.R, error) {
	var out []record.R
	for _, s := range Registry {
		recs, err := s.Scan(ctx, root, items)
		if err != nil {
			out = append(out, record.R{
				"kind":    s.Name() + ".summary",
				"files":   0,
				"error":   err.Error(),
				"degraded": true,
			})
			continue
		}
		out = append(out, recs...)
	}
	return out, nil
}
