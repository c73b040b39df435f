package scanners

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"packager/internal/discover"
	"packager/internal/record"
)

// Owners maps each path to the last matching CODEOWNERS entry, if a
// CODEOWNERS file exists anywhere in the standard GitHub locations.
type Owners struct{}

func (Owners) Name() string { return "owners" }

type ownerRule struct {
	pattern string
	owners  []string
}

func (Owners) Scan(_ context.Context, root string, items []discover.Item) ([]record.R, error) {
	rules := loadCodeowners(root)

	var out []record.R
	unowned := 0
	for _, it := range items {
		owners := matchOwners(rules, it.RepoRelPosix)
		if len(owners) == 0 {
			unowned++
			continue
		}
		out = append(out, record.R{"kind": "owners.file", "path": it.RepoRelPosix, "owners": owners})
	}
	out = append(out, record.R{"kind": "owners.summary", "files": len(items), "unowned": unowned})
	return out, nil
}

var codeownersLocations = []string{"CODEOWNERS", ".github/CODEOWNERS", "docs/CODEOWNERS"}

func loadCodeowners(root string) []ownerRule {
	for _, loc := range codeownersLocations {
		f, err := os.Open(filepath.Join(root, filepath.FromSlash(loc)))
		if err != nil {
			continue
		}
		defer f.Close()

		var rules []ownerRule
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			rules = append(rules, ownerRule{pattern: fields[0], owners: fields[1:]})
		}
		return rules
	}
	return nil
}

// matchOwners returns the LAST matching rule's owners, matching CODEOWNERS'
// own "last match wins" semantics.
func matchOwners(rules []ownerRule, relPosix string) []string {
	var owners []string
	for _, r := range rules {
		pattern := strings.TrimPrefix(r.pattern, "/")
		if !strings.Contains(pattern, "*") {
			if relPosix == pattern || strings.HasPrefix(relPosix, pattern+"/") {
				owners = r.owners
			}
			continue
		}
		if ok, _ := doublestar.Match(pattern, relPosix); ok {
			owners = r.owners
		}
	}
	return owners
}
