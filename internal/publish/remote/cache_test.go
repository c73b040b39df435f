package remote

import (
	"context"
	"path/filepath"
	"testing"
)

func TestShaCacheSetGetForget(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenShaCache(filepath.Join(dir, "sub", "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	if _, ok := c.Get(ctx, "o", "r", "main", "a.txt"); ok {
		t.Fatal("expected miss on empty cache")
	}
	if err := c.Set(ctx, "o", "r", "main", "a.txt", "deadbeef"); err != nil {
		t.Fatal(err)
	}
	sha, ok := c.Get(ctx, "o", "r", "main", "a.txt")
	if !ok || sha != "deadbeef" {
		t.Fatalf("got %q, %v", sha, ok)
	}

	c.Forget(ctx, "o", "r", "main", "a.txt")
	if _, ok := c.Get(ctx, "o", "r", "main", "a.txt"); ok {
		t.Fatal("expected miss after Forget")
	}
}

func TestShaCacheSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")
	ctx := context.Background()

	c1, err := OpenShaCache(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c1.Set(ctx, "o", "r", "main", "a.txt", "sha1"); err != nil {
		t.Fatal(err)
	}
	if err := c1.Close(); err != nil {
		t.Fatal(err)
	}

	c2, err := OpenShaCache(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	sha, ok := c2.Get(ctx, "o", "r", "main", "a.txt")
	if !ok || sha != "sha1" {
		t.Fatalf("got %q, %v", sha, ok)
	}
}
