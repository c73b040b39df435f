// prune.go implements pre-clean ("clean_repo_root") and delta pruning
// (spec.md §4.10): deleting remote files that are no longer managed by the
// current run, without touching anything the run didn't intend to manage.
package remote

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/go-github/v66/github"

	"packager/internal/perr"
)

func (c *Client) listTree(ctx context.Context) ([]*github.TreeEntry, error) {
	ref, _, err := c.gh.Git.GetRef(ctx, c.cfg.Owner, c.cfg.Repo, "refs/heads/"+c.cfg.Branch)
	if err != nil {
		return nil, perr.Remote("get ref", err)
	}
	tree, _, err := c.gh.Git.GetTree(ctx, c.cfg.Owner, c.cfg.Repo, ref.GetObject().GetSHA(), true)
	if err != nil {
		return nil, perr.Remote("get tree", err)
	}
	out := make([]*github.TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		if e.GetType() == "blob" {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *Client) deleteFile(ctx context.Context, path, sha string) error {
	_, _, err := c.gh.Repositories.DeleteFile(ctx, c.cfg.Owner, c.cfg.Repo, path, &github.RepositoryContentFileOptions{
		Message: github.String("chore: clean before publish"),
		SHA:     github.String(sha),
		Branch:  github.String(c.cfg.Branch),
	})
	if err == nil && c.cache != nil {
		c.cache.Forget(ctx, c.cfg.Owner, c.cfg.Repo, c.cfg.Branch, path)
	}
	return err
}

// CleanRepoRoot deletes every remote file under subtreePrefix (or the
// whole repo, if subtreePrefix is empty). Individual delete failures are
// logged by the caller and don't abort the walk (spec.md §7: "clean_repo_root
// failures are logged and run continues").
func (c *Client) CleanRepoRoot(ctx context.Context, subtreePrefix string, onErr func(path string, err error)) error {
	entries, err := c.listTree(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if subtreePrefix != "" && !underDir(e.GetPath(), subtreePrefix) {
			continue
		}
		if err := c.deleteFile(ctx, e.GetPath(), e.GetSHA()); err != nil && onErr != nil {
			onErr(e.GetPath(), err)
		}
	}
	return nil
}

// PruneCode deletes remote code files under basePath (excluding the
// artifacts subtree) that would be managed by the current include/exclude
// rules but are absent from discoveredRel (spec.md §4.10, §8 property 9).
func (c *Client) PruneCode(ctx context.Context, discoveredRel map[string]struct{}, artifactsSubtreeRel string,
	includeGlobs, excludeGlobs, segmentExcludes []string, caseInsensitive bool) ([]string, error) {
	entries, err := c.listTree(ctx)
	if err != nil {
		return nil, err
	}
	base := strings.Trim(c.cfg.BasePath, "/")
	artifactsPrefix := joinPath(base, artifactsSubtreeRel)

	var deleted []string
	for _, e := range entries {
		full := e.GetPath()
		if underDir(full, artifactsPrefix) {
			continue
		}
		rel := full
		if base != "" {
			rel = strings.TrimPrefix(full, base+"/")
		}
		if !wouldBeManaged(rel, includeGlobs, excludeGlobs, segmentExcludes, caseInsensitive) {
			continue
		}
		if _, present := discoveredRel[rel]; present {
			continue
		}
		if err := c.deleteFile(ctx, full, e.GetSHA()); err == nil {
			deleted = append(deleted, full)
		}
	}
	return deleted, nil
}

// PruneArtifacts deletes remote files under the artifacts subtree whose
// basename is absent from localArtifactNames — never touching a remote
// file whose basename IS present locally (spec.md §8 property 9).
func (c *Client) PruneArtifacts(ctx context.Context, localArtifactNames map[string]struct{}, artifactsSubtreeRel string) ([]string, error) {
	entries, err := c.listTree(ctx)
	if err != nil {
		return nil, err
	}
	base := strings.Trim(c.cfg.BasePath, "/")
	prefix := joinPath(base, artifactsSubtreeRel)

	var deleted []string
	for _, e := range entries {
		full := e.GetPath()
		if !underDir(full, prefix) {
			continue
		}
		name := filepath.Base(full)
		if _, present := localArtifactNames[name]; present {
			continue
		}
		if err := c.deleteFile(ctx, full, e.GetSHA()); err == nil {
			deleted = append(deleted, full)
		}
	}
	return deleted, nil
}

// underDir reports whether path lies at or under dir, matching whole path
// segments so that e.g. dir "analysis" does not also match a sibling
// "analysis_archive".
func underDir(path, dir string) bool {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return true
	}
	return path == dir || strings.HasPrefix(path, dir+"/")
}

func wouldBeManaged(relPosix string, includeGlobs, excludeGlobs, segmentExcludes []string, caseInsensitive bool) bool {
	for _, seg := range strings.Split(relPosix, "/") {
		if segExcluded(seg, segmentExcludes, caseInsensitive) {
			return false
		}
	}
	if len(includeGlobs) > 0 && !matchesAnyGlob(relPosix, includeGlobs) {
		return false
	}
	if matchesAnyGlob(relPosix, excludeGlobs) {
		return false
	}
	return true
}

func segExcluded(seg string, excludes []string, caseInsensitive bool) bool {
	if caseInsensitive {
		seg = strings.ToLower(seg)
	}
	for _, ex := range excludes {
		if caseInsensitive {
			ex = strings.ToLower(ex)
		}
		if seg == ex {
			return true
		}
	}
	return false
}

func matchesAnyGlob(relPosix string, globs []string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, relPosix); err == nil && ok {
			return true
		}
	}
	return false
}
