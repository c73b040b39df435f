package scanners

import (
	"context"
	"os"
	"strings"

	"packager/internal/discover"
	"packager/internal/pyindex"
	"packager/internal/record"
	"packager/internal/workerpool"
)

// Quality emits quality.metric per spec.md §3: Python files go through
// C3's tree-sitter parse (pyindex.Quality), everything else falls back to
// a line/brace heuristic, grounded on original_source/quality.py's
// language-agnostic fallback path.
type Quality struct{}

func (Quality) Name() string { return "quality" }

func (Quality) Scan(ctx context.Context, root string, items []discover.Item) ([]record.R, error) {
	results, err := workerpool.Run(ctx, items, func(_ context.Context, it discover.Item) ([]record.R, error) {
		if !isSourceFile(it.RepoRelPosix) {
			return nil, nil
		}
		content, err := os.ReadFile(it.AbsPath)
		if err != nil {
			return []record.R{{
				"kind": "quality.metric", "path": it.RepoRelPosix,
				"language": languageOf(it.RepoRelPosix), "notes": []string{"unreadable"},
			}}, nil
		}

		lang := languageOf(it.RepoRelPosix)
		if lang == "python" {
			m := pyindex.Quality(content)
			return []record.R{{
				"kind": "quality.metric", "path": it.RepoRelPosix, "language": lang,
				"sloc": m.SLOC, "loc": m.LOC, "cyclomatic": m.Cyclomatic,
				"n_functions": m.NFunctions, "n_classes": m.NClasses,
				"avg_fn_len": m.AvgFnLen, "notes": notesOrEmpty(m.Notes),
			}}, nil
		}

		loc, sloc, cyclomatic := heuristicMetrics(content)
		return []record.R{{
			"kind": "quality.metric", "path": it.RepoRelPosix, "language": lang,
			"sloc": sloc, "loc": loc, "cyclomatic": cyclomatic,
			"n_functions": 0, "n_classes": 0, "avg_fn_len": 0.0, "notes": []string{},
		}}, nil
	})
	if err != nil {
		return nil, err
	}

	var out []record.R
	files := 0
	for _, recs := range results {
		out = append(out, recs...)
		files += len(recs)
	}
	out = append(out, record.R{"kind": "quality.summary", "files": files})
	return out, nil
}

func notesOrEmpty(n []string) []string {
	if n == nil {
		return []string{}
	}
	return n
}

// heuristicMetrics applies a brace/keyword line-counting fallback for
// non-Python languages: every line that opens a branching keyword or
// brace-delimited block adds one to the base cyclomatic figure of 1.
func heuristicMetrics(content []byte) (loc, sloc, cyclomatic int) {
	lines := strings.Split(string(content), "\n")
	loc = len(lines)
	cyclomatic = 1
	keywords := []string{"if ", "if(", "for ", "for(", "while ", "while(", "case ", "catch ", "&&", "||", "?"}
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t == "" || strings.HasPrefix(t, "//") || strings.HasPrefix(t, "#") {
			continue
		}
		sloc++
		for _, kw := range keywords {
			cyclomatic += strings.Count(t, kw)
		}
	}
	return loc, sloc, cyclomatic
}

func languageOf(relPosix string) string {
	switch {
	case strings.HasSuffix(relPosix, ".py"):
		return "python"
	case strings.HasSuffix(relPosix, ".go"):
		return "go"
	case strings.HasSuffix(relPosix, ".js"), strings.HasSuffix(relPosix, ".jsx"):
		return "javascript"
	case strings.HasSuffix(relPosix, ".ts"), strings.HasSuffix(relPosix, ".tsx"):
		return "typescript"
	case strings.HasSuffix(relPosix, ".java"):
		return "java"
	case strings.HasSuffix(relPosix, ".rb"):
		return "ruby"
	case strings.HasSuffix(relPosix, ".rs"):
		return "rust"
	case strings.HasSuffix(relPosix, ".c"), strings.HasSuffix(relPosix, ".h"):
		return "c"
	case strings.HasSuffix(relPosix, ".cpp"), strings.HasSuffix(relPosix, ".hpp"), strings.HasSuffix(relPosix, ".cc"):
		return "cpp"
	default:
		return "other"
	}
}

var sourceExts = []string{".py", ".go", ".js", ".jsx", ".ts", ".tsx", ".java", ".rb", ".rs", ".c", ".h", ".cpp", ".hpp", ".cc"}

func isSourceFile(relPosix string) bool {
	for _, ext := range sourceExts {
		if strings.HasSuffix(relPosix, ext) {
			return true
		}
	}
	return false
}
