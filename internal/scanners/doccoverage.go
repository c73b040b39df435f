package scanners

import (
	"context"
	"os"
	"strings"

	"packager/internal/aggregate"
	"packager/internal/discover"
	"packager/internal/record"
	"packager/internal/workerpool"
)

// DocCoverage measures, per Python/Go file, the fraction of top-level
// symbols (classes/functions for Python, exported identifiers for Go)
// that carry a leading doc comment or docstring.
type DocCoverage struct{}

func (DocCoverage) Name() string { return "doccoverage" }

type docCovResult struct {
	rec          record.R
	undocumented []string
}

func (DocCoverage) Scan(ctx context.Context, root string, items []discover.Item) ([]record.R, error) {
	targets := filterByExt(items, ".py", ".go")
	results, err := workerpool.Run(ctx, targets, func(_ context.Context, it discover.Item) (docCovResult, error) {
		content, err := os.ReadFile(it.AbsPath)
		if err != nil {
			return docCovResult{}, nil
		}
		lang := languageOf(it.RepoRelPosix)
		total, documented, undocumented := docCoverageFor(lang, content)
		ratio := 0.0
		if total > 0 {
			ratio = float64(documented) / float64(total)
		}
		return docCovResult{
			rec: record.R{
				"kind": "doccoverage.file", "path": it.RepoRelPosix, "language": lang,
				"symbols_total": total, "symbols_documented": documented, "ratio": ratio,
			},
			undocumented: undocumented,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	var out []record.R
	var allUndocumented []string
	totalSymbols, totalDocumented := 0, 0
	for _, r := range results {
		if r.rec == nil {
			continue
		}
		out = append(out, r.rec)
		totalSymbols += r.rec["symbols_total"].(int)
		totalDocumented += r.rec["symbols_documented"].(int)
		allUndocumented = append(allUndocumented, r.undocumented...)
	}
	overallRatio := 0.0
	if totalSymbols > 0 {
		overallRatio = float64(totalDocumented) / float64(totalSymbols)
	}
	out = append(out, record.R{
		"kind": "doccoverage.summary", "files": len(out), "symbols_total": totalSymbols,
		"symbols_documented": totalDocumented, "ratio": overallRatio,
		"top_undocumented": aggregate.Keys(aggregate.TopN(allUndocumented, 10)),
	})
	return out, nil
}

// docCoverageFor applies a line-scan heuristic: a Python def/class is
// documented when its immediately following non-blank line opens a triple
// quote; a Go exported func/type is documented when the line directly
// above it is a "//" comment.
func docCoverageFor(lang string, content []byte) (total, documented int, undocumented []string) {
	lines := strings.Split(string(content), "\n")
	switch lang {
	case "python":
		for i, l := range lines {
			t := strings.TrimSpace(l)
			var name string
			switch {
			case strings.HasPrefix(l, "def "):
				name = extractIdent(t, "def ")
			case strings.HasPrefix(l, "class "):
				name = extractIdent(t, "class ")
			}
			if name == "" {
				continue
			}
			total++
			next := ""
			for j := i + 1; j < len(lines) && next == ""; j++ {
				next = strings.TrimSpace(lines[j])
			}
			if strings.HasPrefix(next, `"""`) || strings.HasPrefix(next, "'''") {
				documented++
				continue
			}
			undocumented = append(undocumented, name)
		}
	case "go":
		for i, l := range lines {
			t := strings.TrimSpace(l)
			if !strings.HasPrefix(l, "func ") && !strings.HasPrefix(l, "type ") {
				continue
			}
			name := extractExportedGoName(t)
			if name == "" {
				continue
			}
			total++
			if i > 0 && strings.HasPrefix(strings.TrimSpace(lines[i-1]), "//") {
				documented++
				continue
			}
			undocumented = append(undocumented, name)
		}
	}
	return total, documented, undocumented
}

func extractIdent(t, prefix string) string {
	rest := strings.TrimPrefix(t, prefix)
	for i, r := range rest {
		if r == '(' || r == ':' || r == ' ' {
			return rest[:i]
		}
	}
	return rest
}

func extractExportedGoName(t string) string {
	var prefix string
	switch {
	case strings.HasPrefix(t, "func "):
		prefix = "func "
	case strings.HasPrefix(t, "type "):
		prefix = "type "
	}
	rest := strings.TrimPrefix(t, prefix)
	rest = strings.TrimPrefix(rest, "(")
	if idx := strings.Index(rest, ")"); strings.HasPrefix(t, "func (") && idx >= 0 {
		rest = strings.TrimSpace(rest[idx+1:])
	}
	name := extractIdent(rest, "")
	if name == "" || !isExportedGo(name) {
		return ""
	}
	return name
}

func isExportedGo(name string) bool {
	return len(name) > 0 && name[0] >= 'A' && name[0] <= 'Z'
}

func filterByExt(items []discover.Item, exts ...string) []discover.Item {
	out := make([]discover.Item, 0, len(items))
	for _, it := range items {
		for _, ext := range exts {
			if strings.HasSuffix(it.RepoRelPosix, ext) {
				out = append(out, it)
				break
			}
		}
	}
	return out
}
