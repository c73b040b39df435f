package scanners

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	ignore "github.com/sabhiram/go-gitignore"

	"packager/internal/discover"
	"packager/internal/record"
)

// GitScan emits git.repo, git.ignore (one per discovered .gitignore) and
// git.submodule records, directly grounded on
// original_source/.../git_info.py, with go-git and go-gitignore
// standing in for that script's subprocess calls to the git CLI.
type GitScan struct{}

func (GitScan) Name() string { return "gitscan" }

func (GitScan) Scan(_ context.Context, root string, items []discover.Item) ([]record.R, error) {
	var out []record.R

	repoRecord, dirty := repoInfo(root)
	out = append(out, repoRecord)

	ignoreFiles := 0
	for _, it := range items {
		if filepath.Base(it.RepoRelPosix) != ".gitignore" {
			continue
		}
		ignoreFiles++
		out = append(out, gitignoreRecord(it))
	}

	submodules := submoduleRecords(root)
	out = append(out, submodules...)

	out = append(out, record.R{
		"kind": "git.info.summary", "is_repo": repoRecord["is_repo"], "dirty": dirty,
		"ignore_files": ignoreFiles, "submodules": len(submodules),
	})
	return out, nil
}

func repoInfo(root string) (record.R, bool) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return record.R{"kind": "git.repo", "is_repo": false}, false
	}

	head, err := repo.Head()
	branch, sha := "", ""
	if err == nil {
		sha = head.Hash().String()
		if head.Name().IsBranch() {
			branch = head.Name().Short()
		}
	}

	var remotes []string
	if rs, err := repo.Remotes(); err == nil {
		for _, r := range rs {
			remotes = append(remotes, r.Config().Name)
		}
	}

	dirty := false
	if wt, err := repo.Worktree(); err == nil {
		if status, err := wt.Status(); err == nil {
			dirty = !status.IsClean()
		}
	}

	return record.R{
		"kind": "git.repo", "is_repo": true, "head": sha, "branch": branch,
		"remotes": remotes, "dirty": dirty,
	}, dirty
}

func gitignoreRecord(it discover.Item) record.R {
	dir := filepath.Dir(it.RepoRelPosix)
	patterns := countGitignorePatterns(it.AbsPath)
	// CompileIgnoreFile re-parses the same file through go-gitignore's
	// pattern compiler; a compile error demotes this to a malformed entry.
	valid := true
	if _, err := ignore.CompileIgnoreFile(it.AbsPath); err != nil {
		valid = false
	}
	return record.R{"kind": "git.ignore", "path": it.RepoRelPosix, "scope": dir, "patterns": patterns, "valid": valid}
}

func countGitignorePatterns(absPath string) int {
	f, err := os.Open(absPath)
	if err != nil {
		return 0
	}
	defer f.Close()
	count := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		count++
	}
	return count
}

func submoduleRecords(root string) []record.R {
	f, err := os.Open(filepath.Join(root, ".gitmodules"))
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []record.R
	var name, path, url string
	flush := func() {
		if name != "" {
			out = append(out, record.R{"kind": "git.submodule", "name": name, "path": path, "url": url})
		}
	}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "[submodule"):
			flush()
			name = strings.Trim(strings.TrimPrefix(line, "[submodule"), `" ]`)
			path, url = "", ""
		case strings.HasPrefix(line, "path ="):
			path = strings.TrimSpace(strings.TrimPrefix(line, "path ="))
		case strings.HasPrefix(line, "url ="):
			url = strings.TrimSpace(strings.TrimPrefix(line, "url ="))
		}
	}
	flush()
	return out
}
