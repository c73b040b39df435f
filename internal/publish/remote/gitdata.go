// gitdata.go implements the Git-Data-API batch-commit strategy (spec.md
// §4.10): one blob per file, one tree, one commit, one ref update. Used
// for memory-only manifest commits where atomicity (all-or-nothing) beats
// the Contents API's per-file semantics. Blob bodies are sent and
// discarded one at a time rather than retained for the whole batch
// (spec.md §9 "implementers MUST stream blob uploads").
package remote

import (
	"context"
	"encoding/base64"

	"github.com/google/go-github/v66/github"

	"packager/internal/perr"
)

// PublishGitData commits every item in one atomic commit against the
// configured branch. The whole batch (ref lookup, blob uploads, tree,
// commit and ref update) runs under a context bounded by LongTimeout; each
// individual HTTP request is still bounded by the client's Timeout.
func (c *Client) PublishGitData(ctx context.Context, items []Item, message string) error {
	if c.cfg.LongTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.LongTimeout)
		defer cancel()
	}

	ref, _, err := c.gh.Git.GetRef(ctx, c.cfg.Owner, c.cfg.Repo, "refs/heads/"+c.cfg.Branch)
	if err != nil {
		return perr.Remote("get ref", err)
	}
	headSHA := ref.GetObject().GetSHA()

	headCommit, _, err := c.gh.Git.GetCommit(ctx, c.cfg.Owner, c.cfg.Repo, headSHA)
	if err != nil {
		return perr.Remote("get head commit", err)
	}
	baseTree := headCommit.GetTree().GetSHA()

	entries := make([]*github.TreeEntry, 0, len(items))
	for _, it := range items {
		blob, _, err := c.gh.Git.CreateBlob(ctx, c.cfg.Owner, c.cfg.Repo, &github.Blob{
			Content:  github.String(base64.StdEncoding.EncodeToString(it.Content)),
			Encoding: github.String("base64"),
		})
		if err != nil {
			return perr.Remote("create blob "+it.RelPath, err)
		}
		entries = append(entries, &github.TreeEntry{
			Path: github.String(joinPath(c.cfg.BasePath, it.RelPath)),
			Mode: github.String("100644"),
			Type: github.String("blob"),
			SHA:  blob.SHA,
		})
	}

	tree, _, err := c.gh.Git.CreateTree(ctx, c.cfg.Owner, c.cfg.Repo, baseTree, entries)
	if err != nil {
		return perr.Remote("create tree", err)
	}

	newCommit, _, err := c.gh.Git.CreateCommit(ctx, c.cfg.Owner, c.cfg.Repo, &github.Commit{
		Message: github.String(message),
		Tree:    tree,
		Parents: []*github.Commit{{SHA: github.String(headSHA)}},
	}, nil)
	if err != nil {
		return perr.Remote("create commit", err)
	}

	_, _, err = c.gh.Git.UpdateRef(ctx, c.cfg.Owner, c.cfg.Repo, &github.Reference{
		Ref:    github.String("refs/heads/" + c.cfg.Branch),
		Object: &github.GitObject{SHA: newCommit.SHA},
	}, false)
	if err != nil {
		return perr.Remote("update ref", err)
	}
	return nil
}
