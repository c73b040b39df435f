package scanners

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"packager/internal/discover"
	"packager/internal/record"
)

// Deps parses requirements.txt, pyproject.toml, go.mod and package.json
// dependency declarations.
type Deps struct{}

func (Deps) Name() string { return "deps" }

func (Deps) Scan(_ context.Context, _ string, items []discover.Item) ([]record.R, error) {
	var out []record.R
	ecosystems := map[string]int{}

	for _, it := range items {
		base := it.RepoRelPosix
		var entries []record.R
		switch {
		case strings.HasSuffix(base, "requirements.txt"):
			entries = parseRequirementsTxt(it)
		case strings.HasSuffix(base, "pyproject.toml"):
			entries = parsePyprojectToml(it)
		case strings.HasSuffix(base, "go.mod"):
			entries = parseGoMod(it)
		case strings.HasSuffix(base, "package.json"):
			entries = parsePackageJSON(it)
		default:
			continue
		}
		for _, e := range entries {
			ecosystems[e["ecosystem"].(string)]++
		}
		out = append(out, entries...)
	}

	out = append(out, record.R{"kind": "deps.summary", "files": len(items), "entries": len(out), "ecosystems": ecosystems})
	return out, nil
}

var reqLineRE = regexp.MustCompile(`^([A-Za-z0-9_.\-]+)\s*([=<>!~]=?[0-9A-Za-z.\-*]*)?`)

func parseRequirementsTxt(it discover.Item) []record.R {
	f, err := os.Open(it.AbsPath)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []record.R
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		m := reqLineRE.FindStringSubmatch(line)
		if m == nil || m[1] == "" {
			continue
		}
		out = append(out, record.R{
			"kind": "deps.entry", "path": it.RepoRelPosix, "ecosystem": "pypi",
			"name": m[1], "version": m[2],
		})
	}
	return out
}

func parsePyprojectToml(it discover.Item) []record.R {
	var doc struct {
		Project struct {
			Dependencies []string `toml:"dependencies"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Dependencies map[string]toml.Primitive `toml:"dependencies"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if _, err := toml.DecodeFile(it.AbsPath, &doc); err != nil {
		return nil
	}
	var out []record.R
	for _, dep := range doc.Project.Dependencies {
		m := reqLineRE.FindStringSubmatch(strings.TrimSpace(dep))
		if m == nil || m[1] == "" {
			continue
		}
		out = append(out, record.R{
			"kind": "deps.entry", "path": it.RepoRelPosix, "ecosystem": "pypi",
			"name": m[1], "version": m[2],
		})
	}
	for name := range doc.Tool.Poetry.Dependencies {
		out = append(out, record.R{
			"kind": "deps.entry", "path": it.RepoRelPosix, "ecosystem": "pypi",
			"name": name, "version": "",
		})
	}
	return out
}

var goModRequireRE = regexp.MustCompile(`^\s*([a-zA-Z0-9./_-]+)\s+(v[0-9][^\s]*)`)

func parseGoMod(it discover.Item) []record.R {
	f, err := os.Open(it.AbsPath)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []record.R
	inRequire := false
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "require ("):
			inRequire = true
			continue
		case line == ")":
			inRequire = false
			continue
		case strings.HasPrefix(line, "require ") && !strings.Contains(line, "("):
			line = strings.TrimPrefix(line, "require ")
		case !inRequire:
			continue
		}
		m := goModRequireRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, record.R{
			"kind": "deps.entry", "path": it.RepoRelPosix, "ecosystem": "go",
			"name": m[1], "version": m[2],
		})
	}
	return out
}

func parsePackageJSON(it discover.Item) []record.R {
	content, err := os.ReadFile(it.AbsPath)
	if err != nil {
		return nil
	}
	var doc struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil
	}
	var out []record.R
	for name, version := range doc.Dependencies {
		out = append(out, record.R{"kind": "deps.entry", "path": it.RepoRelPosix, "ecosystem": "npm", "name": name, "version": version})
	}
	for name, version := range doc.DevDependencies {
		out = append(out, record.R{"kind": "deps.entry", "path": it.RepoRelPosix, "ecosystem": "npm", "name": name, "version": version})
	}
	return out
}
