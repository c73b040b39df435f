// cache.go adapts the teacher's store.Store (modernc.org/sqlite, single
// connection, migrate-on-open) from "installations/projects" to a
// cross-run cache of remote file SHAs, fronted by an in-process LRU so a
// warm run doesn't round-trip to sqlite for every file.
package remote

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"packager/internal/perr"
)

// ShaCache persists (owner, repo, branch, path) -> blob SHA so repeat
// Contents-API publishes can skip the GET-for-sha round trip when the
// cache is warm and still correct. On a miss the first PUT is sent without
// a SHA; a 409/422 response then triggers a live GET for the current SHA.
type ShaCache struct {
	db  *sql.DB
	hot *lru.Cache[string, string]
}

// OpenShaCache opens (creating if necessary) the sqlite-backed cache at
// path.
func OpenShaCache(path string) (*ShaCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, perr.IO("mkdir sha cache dir", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, perr.IO("open sha cache", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	c := &ShaCache{db: db}
	if err := c.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	hot, err := lru.New[string, string](512)
	if err != nil {
		_ = db.Close()
		return nil, perr.IO("alloc lru", err)
	}
	c.hot = hot
	return c, nil
}

func (c *ShaCache) migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS remote_file_shas (
			owner TEXT NOT NULL,
			repo TEXT NOT NULL,
			branch TEXT NOT NULL,
			path TEXT NOT NULL,
			sha TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(owner, repo, branch, path)
		);
	`)
	if err != nil {
		return perr.IO("migrate sha cache", err)
	}
	return nil
}

func cacheKey(owner, repo, branch, path string) string {
	return owner + "/" + repo + "@" + branch + ":" + path
}

// Get returns the cached SHA for (owner, repo, branch, path), if any.
func (c *ShaCache) Get(ctx context.Context, owner, repo, branch, path string) (string, bool) {
	key := cacheKey(owner, repo, branch, path)
	if sha, ok := c.hot.Get(key); ok {
		return sha, true
	}
	row := c.db.QueryRowContext(ctx, `
		SELECT sha FROM remote_file_shas WHERE owner = ? AND repo = ? AND branch = ? AND path = ?
	`, owner, repo, branch, path)
	var sha string
	if err := row.Scan(&sha); err != nil {
		return "", false
	}
	c.hot.Add(key, sha)
	return sha, true
}

// Set records sha for (owner, repo, branch, path), updating both tiers.
func (c *ShaCache) Set(ctx context.Context, owner, repo, branch, path, sha string) error {
	c.hot.Add(cacheKey(owner, repo, branch, path), sha)
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO remote_file_shas (owner, repo, branch, path, sha, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner, repo, branch, path) DO UPDATE SET
			sha = excluded.sha,
			updated_at = excluded.updated_at
	`, owner, repo, branch, path, sha, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return perr.IO("persist sha cache entry", err)
	}
	return nil
}

// Forget drops a cached SHA, used after a file is deleted remotely so a
// later publish to the same path doesn't send a stale conditional SHA.
func (c *ShaCache) Forget(ctx context.Context, owner, repo, branch, path string) {
	c.hot.Remove(cacheKey(owner, repo, branch, path))
	_, _ = c.db.ExecContext(ctx, `
		DELETE FROM remote_file_shas WHERE owner = ? AND repo = ? AND branch = ? AND path = ?
	`, owner, repo, branch, path)
}

// Close releases the underlying sqlite connection.
func (c *ShaCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
