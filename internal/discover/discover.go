// Package discover implements C1, the deterministic, filter-driven
// enumeration of input files (spec.md §4.1).
package discover

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/charlievieth/fastwalk"

	"packager/internal/perr"
)

// Item is a RepoItem: a discovered file paired with its repo-relative,
// forward-slashed path. RepoRelPosix never starts with "/" or "./".
type Item struct {
	AbsPath      string
	RepoRelPosix string
}

// Options configures a discovery run. IncludeGlobs/ExcludeGlobs/SegmentExcludes
// use shell-style glob semantics (*, ?, […], ** for any depth), matched
// against the POSIX-slashed relative path.
type Options struct {
	Root             string
	IncludeGlobs     []string
	ExcludeGlobs     []string
	SegmentExcludes  []string
	CaseInsensitive  bool
	FollowSymlinks   bool
}

// Discover walks Root depth-first, applying include/exclude globs and
// directory-segment excludes, and returns a lexicographically sorted list
// of RepoItems by RepoRelPosix for deterministic output across runs.
func Discover(opts Options) ([]Item, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, perr.Discovery("resolve root", err)
	}
	if _, err := os.Stat(root); err != nil {
		return nil, perr.Discovery("stat root", err)
	}

	segExcludes := make(map[string]struct{}, len(opts.SegmentExcludes))
	for _, s := range opts.SegmentExcludes {
		segExcludes[foldCase(s, opts.CaseInsensitive)] = struct{}{}
	}

	var (
		mu      sync.Mutex
		items   []Item
		visited = newVisitedSet()
	)

	cfg := fastwalk.Config{
		Follow:     opts.FollowSymlinks,
		NumWorkers: walkWorkers(),
	}

	walkErr := fastwalk.Walk(&cfg, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable directories/files are logged and skipped, not fatal.
			log.Printf("discover: skipping unreadable %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			name := filepath.Base(path)
			if _, excluded := segExcludes[foldCase(name, opts.CaseInsensitive)]; excluded {
				return filepath.SkipDir
			}
			if opts.FollowSymlinks {
				if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
					if !visited.markAndCheck(path) {
						return filepath.SkipDir
					}
				}
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		relPosix := filepath.ToSlash(rel)
		if hasExcludedSegment(relPosix, segExcludes, opts.CaseInsensitive) {
			return nil
		}
		if !matchesInclude(relPosix, opts.IncludeGlobs) {
			return nil
		}
		if matchesAny(relPosix, opts.ExcludeGlobs) {
			return nil
		}

		mu.Lock()
		items = append(items, Item{AbsPath: path, RepoRelPosix: relPosix})
		mu.Unlock()
		return nil
	})
	if walkErr != nil {
		return nil, perr.Discovery("walk", walkErr)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].RepoRelPosix < items[j].RepoRelPosix })
	return items, nil
}

func walkWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

func foldCase(s string, ci bool) string {
	if ci {
		return strings.ToLower(s)
	}
	return s
}

func hasExcludedSegment(relPosix string, segExcludes map[string]struct{}, ci bool) bool {
	for _, seg := range strings.Split(relPosix, "/") {
		if _, ok := segExcludes[foldCase(seg, ci)]; ok {
			return true
		}
	}
	return false
}

func matchesInclude(relPosix string, includes []string) bool {
	if len(includes) == 0 {
		return true
	}
	return matchesAny(relPosix, includes)
}

func matchesAny(relPosix string, globs []string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, relPosix); err == nil && ok {
			return true
		}
	}
	return false
}

// visitedSet guards against symlink loops when FollowSymlinks is enabled by
// tracking the resolved paths already traversed. Entries are keyed by their
// xxhash fingerprint rather than the path string itself, since the set only
// ever needs membership, not the paths back.
type visitedSet struct {
	mu   sync.Mutex
	seen map[uint64]struct{}
}

func newVisitedSet() *visitedSet {
	return &visitedSet{seen: make(map[uint64]struct{})}
}

// markAndCheck resolves path to its real, symlink-free form and reports
// whether it had not already been visited.
func (v *visitedSet) markAndCheck(path string) bool {
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		real = path
	}
	key := xxhash.Sum64String(real)
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[key]; ok {
		return false
	}
	v.seen[key] = struct{}{}
	return true
}
