package scanners

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"packager/internal/discover"
	"packager/internal/record"
)

// License detects LICENSE* files and a best-effort SPDX identifier from
// common license text fingerprints.
type License struct{}

func (License) Name() string { return "license" }

var spdxFingerprints = map[string]string{
	"permission is hereby granted, free of charge":        "MIT",
	"apache license":                                      "Apache-2.0",
	"gnu general public license":                          "GPL-3.0",
	"gnu lesser general public license":                   "LGPL-3.0",
	"redistribution and use in source and binary forms":   "BSD-3-Clause",
	"mozilla public license":                               "MPL-2.0",
}

func (License) Scan(_ context.Context, _ string, items []discover.Item) ([]record.R, error) {
	var out []record.R
	detected := map[string]int{}

	for _, it := range items {
		base := strings.ToUpper(filepath.Base(it.RepoRelPosix))
		if !strings.HasPrefix(base, "LICENSE") && !strings.HasPrefix(base, "COPYING") {
			continue
		}
		content, err := os.ReadFile(it.AbsPath)
		spdx := "unknown"
		if err == nil {
			low := strings.ToLower(string(content))
			for fingerprint, id := range spdxFingerprints {
				if strings.Contains(low, fingerprint) {
					spdx = id
					break
				}
			}
		}
		detected[spdx]++
		out = append(out, record.R{"kind": "license.file", "path": it.RepoRelPosix, "spdx": spdx})
	}

	out = append(out, record.R{"kind": "license.summary", "files": len(out), "detected": detected})
	return out, nil
}
