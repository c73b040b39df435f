package scanners

import (
	"context"
	"os"
	"regexp"
	"strings"

	"packager/internal/aggregate"
	"packager/internal/discover"
	"packager/internal/record"
)

// SQL regex-extracts statement kinds and target tables from .sql files and
// embedded strings in other source files.
type SQL struct{}

func (SQL) Name() string { return "sql" }

var sqlStatementRE = regexp.MustCompile(`(?i)\b(SELECT|INSERT\s+INTO|UPDATE|DELETE\s+FROM|CREATE\s+TABLE)\s+(?:.*?\s+FROM\s+|.*?\s+INTO\s+)?([a-zA-Z_][a-zA-Z0-9_.]*)`)

func (SQL) Scan(_ context.Context, _ string, items []discover.Item) ([]record.R, error) {
	var out []record.R
	var tables []string
	files := map[string]struct{}{}

	for _, it := range items {
		if !strings.HasSuffix(it.RepoRelPosix, ".sql") && !isSourceFile(it.RepoRelPosix) {
			continue
		}
		content, err := os.ReadFile(it.AbsPath)
		if err != nil {
			continue
		}
		for _, m := range sqlStatementRE.FindAllSubmatch(content, -1) {
			kindWord := strings.ToUpper(strings.Fields(string(m[1]))[0])
			table := string(m[2])
			out = append(out, record.R{"kind": "sql.statement", "path": it.RepoRelPosix, "statement_kind": kindWord, "table": table})
			tables = append(tables, table)
			files[it.RepoRelPosix] = struct{}{}
		}
	}

	statements := len(out)
	out = append(out, record.R{
		"kind": "sql.summary", "files": len(files), "statements": statements,
		"top_tables": aggregate.Keys(aggregate.TopN(tables, 10)),
	})
	return out, nil
}
