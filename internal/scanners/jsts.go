package scanners

import (
	"context"
	"os"
	"regexp"

	"packager/internal/discover"
	"packager/internal/record"
)

// JSTS does a lightweight import/require scan for .js/.jsx/.ts/.tsx files.
type JSTS struct{}

func (JSTS) Name() string { return "jsts" }

var (
	esImportRE = regexp.MustCompile(`import\s+(?:[\w*{}\s,]+\s+from\s+)?["']([^"']+)["']`)
	requireRE  = regexp.MustCompile(`require\(\s*["']([^"']+)["']\s*\)`)
)

func (JSTS) Scan(_ context.Context, _ string, items []discover.Item) ([]record.R, error) {
	targets := filterByExt(items, ".js", ".jsx", ".ts", ".tsx")

	var out []record.R
	importsTotal := 0
	for _, it := range targets {
		content, err := os.ReadFile(it.AbsPath)
		if err != nil {
			continue
		}
		var imports []string
		for _, m := range esImportRE.FindAllSubmatch(content, -1) {
			imports = append(imports, string(m[1]))
		}
		for _, m := range requireRE.FindAllSubmatch(content, -1) {
			imports = append(imports, string(m[1]))
		}
		if len(imports) == 0 {
			continue
		}
		importsTotal += len(imports)
		out = append(out, record.R{"kind": "jsts.module", "path": it.RepoRelPosix, "imports": imports})
	}

	out = append(out, record.R{"kind": "jsts.summary", "files": len(targets), "modules": len(out), "imports_total": importsTotal})
	return out, nil
}
