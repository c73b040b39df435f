package scanners

import (
	"context"
	"os"

	"packager/internal/discover"
	"packager/internal/pyindex"
	"packager/internal/record"
	"packager/internal/workerpool"
)

// complexityHotspotThreshold mirrors the teacher/pack convention of
// flagging cyclomatic complexity above 10 (the widely used McCabe cutoff).
const complexityHotspotThreshold = 10

// Complexity reuses quality.metric's cyclomatic figure (C3/quality share
// the AST walk, per spec.md §4.12) to flag files above a threshold.
type Complexity struct{}

func (Complexity) Name() string { return "complexity" }

func (Complexity) Scan(ctx context.Context, root string, items []discover.Item) ([]record.R, error) {
	targets := filterByExt(items, ".py")
	type figure struct {
		path string
		cc   int
	}
	results, err := workerpool.Run(ctx, targets, func(_ context.Context, it discover.Item) (figure, error) {
		content, err := os.ReadFile(it.AbsPath)
		if err != nil {
			return figure{}, nil
		}
		m := pyindex.Quality(content)
		return figure{path: it.RepoRelPosix, cc: m.Cyclomatic}, nil
	})
	if err != nil {
		return nil, err
	}

	var out []record.R
	hotspots := 0
	max := 0
	sum := 0
	files := 0
	for _, f := range results {
		if f.path == "" {
			continue
		}
		files++
		sum += f.cc
		if f.cc > max {
			max = f.cc
		}
		if f.cc > complexityHotspotThreshold {
			hotspots++
			out = append(out, record.R{
				"kind": "complexity.hotspot", "path": f.path, "cyclomatic": f.cc,
				"threshold": complexityHotspotThreshold,
			})
		}
	}
	mean := 0.0
	if files > 0 {
		mean = float64(sum) / float64(files)
	}
	out = append(out, record.R{
		"kind": "complexity.summary", "files": files, "hotspots": hotspots, "max": max, "mean": mean,
	})
	return out, nil
}
