package scanners

import (
	"bufio"
	"context"
	"os"
	"regexp"

	"packager/internal/discover"
	"packager/internal/record"
)

// Secrets regex-scans for common secret shapes. Findings never include the
// raw secret value, only a redacted preview, per spec.md §4.12.
type Secrets struct{}

func (Secrets) Name() string { return "secrets" }

type secretRule struct {
	name string
	re   *regexp.Regexp
}

var secretRules = []secretRule{
	{"aws_access_key_id", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"private_key_header", regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`)},
	{"generic_assignment", regexp.MustCompile(`(?i)\b([A-Z0-9_]*(?:SECRET|TOKEN|PASSWORD|API_KEY)[A-Z0-9_]*)\s*[:=]\s*["']([A-Za-z0-9/+_\-]{16,})["']`)},
}

func (Secrets) Scan(_ context.Context, _ string, items []discover.Item) ([]record.R, error) {
	var out []record.R
	findings := 0

	for _, it := range items {
		if !isSourceFile(it.RepoRelPosix) && !isConfigLike(it.RepoRelPosix) {
			continue
		}
		f, err := os.Open(it.AbsPath)
		if err != nil {
			continue
		}
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 1<<16), 1<<20)
		lineNo := 0
		for sc.Scan() {
			lineNo++
			line := sc.Text()
			for _, rule := range secretRules {
				if m := rule.re.FindString(line); m != "" {
					findings++
					out = append(out, record.R{
						"kind": "secrets.finding", "path": it.RepoRelPosix, "line": lineNo,
						"rule": rule.name, "redacted": redact(m),
					})
				}
			}
		}
		f.Close()
	}

	out = append(out, record.R{"kind": "secrets.summary", "files": len(items), "findings": findings})
	return out, nil
}

func isConfigLike(relPosix string) bool {
	for _, suf := range []string{".env", ".yaml", ".yml", ".toml", ".ini", ".json", ".cfg"} {
		if len(relPosix) >= len(suf) && relPosix[len(relPosix)-len(suf):] == suf {
			return true
		}
	}
	return false
}

// redact keeps only a short prefix/suffix of a match so the surrounding
// shape is visible for triage without leaking the secret itself.
func redact(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
