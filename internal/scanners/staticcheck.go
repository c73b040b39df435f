package scanners

import (
	"bufio"
	"context"
	"os"
	"regexp"
	"strings"

	"packager/internal/discover"
	"packager/internal/record"
)

// StaticCheck runs a handful of regex lints over source files. Shelling
// out to go vet / python -m py_compile is deliberately not done here:
// spec.md's Non-goals rule out executing arbitrary user code, so this
// stays a pure text scan.
type StaticCheck struct{}

func (StaticCheck) Name() string { return "staticcheck" }

var bareExceptRE = regexp.MustCompile(`^\s*except\s*:\s*$`)
var todoRE = regexp.MustCompile(`(?i)\b(TODO|FIXME)\b`)

func (StaticCheck) Scan(_ context.Context, _ string, items []discover.Item) ([]record.R, error) {
	var out []record.R
	findings := 0

	for _, it := range items {
		if !isSourceFile(it.RepoRelPosix) {
			continue
		}
		f, err := os.Open(it.AbsPath)
		if err != nil {
			continue
		}
		sc := bufio.NewScanner(f)
		todoCount := 0
		lineNo := 0
		for sc.Scan() {
			lineNo++
			line := sc.Text()
			if strings.HasSuffix(it.RepoRelPosix, ".py") && bareExceptRE.MatchString(line) {
				findings++
				out = append(out, record.R{
					"kind": "static.finding", "path": it.RepoRelPosix, "rule": "bare_except",
					"message": "bare except clause swallows all exceptions", "line": lineNo,
				})
			}
			if todoRE.MatchString(line) {
				todoCount++
			}
		}
		f.Close()
		if todoCount > 20 {
			findings++
			out = append(out, record.R{
				"kind": "static.finding", "path": it.RepoRelPosix, "rule": "todo_density",
				"message": "high TODO/FIXME density", "count": todoCount,
			})
		}
	}

	out = append(out, record.R{"kind": "static.summary", "files": len(items), "findings": findings})
	return out, nil
}
