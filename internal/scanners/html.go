package scanners

import (
	"context"
	"os"
	"regexp"

	"packager/internal/aggregate"
	"packager/internal/discover"
	"packager/internal/record"
)

// HTML counts tags/forms/scripts per .html file.
type HTML struct{}

func (HTML) Name() string { return "html" }

var htmlTagRE = regexp.MustCompile(`<\s*([a-zA-Z][a-zA-Z0-9-]*)`)

func (HTML) Scan(_ context.Context, _ string, items []discover.Item) ([]record.R, error) {
	targets := filterByExt(items, ".html", ".htm")

	var out []record.R
	var allTags []string
	for _, it := range targets {
		content, err := os.ReadFile(it.AbsPath)
		if err != nil {
			continue
		}
		tagCounts := map[string]int{}
		forms, scripts := 0, 0
		for _, m := range htmlTagRE.FindAllSubmatch(content, -1) {
			tag := string(m[1])
			tagCounts[tag]++
			allTags = append(allTags, tag)
			switch tag {
			case "form":
				forms++
			case "script":
				scripts++
			}
		}
		out = append(out, record.R{
			"kind": "html.file", "path": it.RepoRelPosix,
			"tag_count": sumValues(tagCounts), "forms": forms, "scripts": scripts,
		})
	}
	out = append(out, record.R{
		"kind": "html.summary", "files": len(out),
		"top_tags": aggregate.Keys(aggregate.TopN(allTags, 10)),
	})
	return out, nil
}

func sumValues(m map[string]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}
