// Package aggregate provides the top_* ranking helper shared by several
// scanner summaries (html.summary.top_tags, sql.summary.top_tables,
// asset.summary.top_kinds, doccoverage.summary.top_undocumented). It plays
// the role the teacher's internal/releaseparty bucket/sort helper played
// for changelog sections, generalized into a Counter.most_common-style
// ranking: descending count, then lexicographic tie-break for determinism.
package aggregate

import (
	"sort"

	"github.com/samber/lo"
)

// Count is one (key, count) pair in a ranked top-N list.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// TopN counts occurrences of each value and returns the n highest, ordered
// by descending count with ties broken lexicographically by key so the
// result is stable across runs regardless of input order.
func TopN(values []string, n int) []Count {
	counts := lo.CountValuesBy(values, func(s string) string { return s })

	out := make([]Count, 0, len(counts))
	for k, c := range counts {
		out = append(out, Count{Key: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Keys extracts just the ranked keys, for record fields typed as a plain
// string list (e.g. top_tags[]) rather than (key, count) pairs.
func Keys(counts []Count) []string {
	out := make([]string, len(counts))
	for i, c := range counts {
		out[i] = c.Key
	}
	return out
}
