package localfs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPublishWritesContentAndSourceItems(t *testing.T) {
	dir := t.TempDir()
	root := t.TempDir()

	srcPath := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(srcPath, []byte("from disk"), 0o644); err != nil {
		t.Fatal(err)
	}

	items := []Item{
		{RelPath: "a/a.txt", Content: []byte("inline")},
		{RelPath: "b.txt", SourcePath: srcPath},
	}
	if err := Publish(items, root, false); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(root, "a", "a.txt"))
	if err != nil || string(got) != "inline" {
		t.Fatalf("a.txt = %q, %v", got, err)
	}
	got, err = os.ReadFile(filepath.Join(root, "b.txt"))
	if err != nil || string(got) != "from disk" {
		t.Fatalf("b.txt = %q, %v", got, err)
	}
}

func TestPublishCleanBeforePublishRemovesStaleFiles(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, "stale.txt")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Publish([]Item{{RelPath: "new.txt", Content: []byte("new")}}, root, true); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale file should have been removed by clean_before_publish")
	}
	if _, err := os.Stat(filepath.Join(root, "new.txt")); err != nil {
		t.Fatal("new file should exist")
	}
}

func TestPublishIdempotentOverwrite(t *testing.T) {
	root := t.TempDir()
	item := Item{RelPath: "x.txt", Content: []byte("v1")}
	if err := Publish([]Item{item}, root, false); err != nil {
		t.Fatal(err)
	}
	item.Content = []byte("v2")
	if err := Publish([]Item{item}, root, false); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(filepath.Join(root, "x.txt"))
	if string(got) != "v2" {
		t.Fatalf("got %q, want v2", got)
	}
}
