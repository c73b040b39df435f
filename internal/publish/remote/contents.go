// contents.go implements the Contents-API per-file publish strategy
// (spec.md §4.10): PUT without a SHA, GET-for-sha retry on 409/422,
// exponential backoff on 429/5xx, and a commit-count throttle.
package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v66/github"

	"packager/internal/perr"
)

const maxPutAttempts = 5

// PublishContentsAPI publishes every item via the Contents API, continuing
// past individual failures and reporting them collectively at the end
// (spec.md §7 RemoteError: "the overall run continues but exits non-zero
// at end if any item failed").
func (c *Client) PublishContentsAPI(ctx context.Context, items []Item) error {
	var failed []string
	for _, it := range items {
		if err := c.limiter.Wait(ctx); err != nil {
			return perr.Remote("throttle wait", err)
		}
		full := joinPath(c.cfg.BasePath, it.RelPath)
		if err := c.putWithRetry(ctx, full, it.Content); err != nil {
			failed = append(failed, it.RelPath)
			continue
		}
	}
	if len(failed) > 0 {
		return perr.Remote("publish contents api", fmt.Errorf("%d file(s) failed: %v", len(failed), failed))
	}
	return nil
}

func (c *Client) putWithRetry(ctx context.Context, path string, content []byte) error {
	sha, _ := c.cache.Get(ctx, c.cfg.Owner, c.cfg.Repo, c.cfg.Branch, path)
	backoff := 500 * time.Millisecond
	var lastErr error

	for attempt := 0; attempt < maxPutAttempts; attempt++ {
		status, newSHA, err := c.putOnce(ctx, path, content, sha)
		if err == nil {
			if c.cache != nil {
				_ = c.cache.Set(ctx, c.cfg.Owner, c.cfg.Repo, c.cfg.Branch, path, newSHA)
			}
			return nil
		}
		lastErr = err

		if status == 409 || status == 422 {
			if s, ferr := c.fetchSHA(ctx, path); ferr == nil {
				sha = s
				if c.cache != nil {
					_ = c.cache.Set(ctx, c.cfg.Owner, c.cfg.Repo, c.cfg.Branch, path, s)
				}
			}
			continue
		}
		if isRetryableStatus(status) {
			c.sleep(backoff)
			backoff *= 2
			continue
		}
		return perr.Remote("put "+path, err)
	}
	return perr.Remote("put "+path, lastErr)
}

// putOnce issues one CreateFile (sha=="") or UpdateFile (sha!="") call and
// returns the observed HTTP status, the new content SHA on success, and
// any error.
func (c *Client) putOnce(ctx context.Context, path string, content []byte, sha string) (int, string, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String("chore: publish design manifest"),
		Content: content,
		Branch:  github.String(c.cfg.Branch),
	}
	if sha != "" {
		opts.SHA = github.String(sha)
	}

	var (
		resp     *github.RepositoryContentResponse
		httpResp *github.Response
		err      error
	)
	if sha == "" {
		resp, httpResp, err = c.gh.Repositories.CreateFile(ctx, c.cfg.Owner, c.cfg.Repo, path, opts)
	} else {
		resp, httpResp, err = c.gh.Repositories.UpdateFile(ctx, c.cfg.Owner, c.cfg.Repo, path, opts)
	}
	status := 0
	if httpResp != nil {
		status = httpResp.StatusCode
	}
	if err != nil {
		return status, "", err
	}
	newSHA := ""
	if resp != nil && resp.Content != nil {
		newSHA = resp.Content.GetSHA()
	}
	return status, newSHA, nil
}

func (c *Client) fetchSHA(ctx context.Context, path string) (string, error) {
	file, _, _, err := c.gh.Repositories.GetContents(ctx, c.cfg.Owner, c.cfg.Repo, path,
		&github.RepositoryContentGetOptions{Ref: c.cfg.Branch})
	if err != nil {
		return "", err
	}
	if file == nil {
		return "", fmt.Errorf("no content returned for %s", path)
	}
	return file.GetSHA(), nil
}
