// Package localfs implements C9, the local publisher: an idempotent
// mirror of a set of (source, relpath) items into a local root directory.
package localfs

import (
	"os"
	"path/filepath"

	"packager/internal/perr"
)

// Item is one file to mirror. Either Content or SourcePath must be set;
// Content wins when both are present.
type Item struct {
	RelPath    string
	Content    []byte
	SourcePath string
}

// Publish copies every item to root/relpath, creating parent directories
// as needed and overwriting existing files unconditionally. If
// cleanBeforePublish is set, every file under root is removed first
// (best-effort, bottom-up) before any item is written.
func Publish(items []Item, root string, cleanBeforePublish bool) error {
	if cleanBeforePublish {
		if err := clean(root); err != nil {
			return err
		}
	}
	for _, it := range items {
		dest := filepath.Join(root, filepath.FromSlash(it.RelPath))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return perr.IO("mkdir "+dest, err)
		}
		data := it.Content
		if data == nil && it.SourcePath != "" {
			b, err := os.ReadFile(it.SourcePath)
			if err != nil {
				return perr.IO("read source "+it.SourcePath, err)
			}
			data = b
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return perr.IO("write "+dest, err)
		}
	}
	return nil
}

// clean best-effort removes every entry directly under root. Unreadable
// or already-absent roots are not an error (mirrors spec.md §4.9's
// "best-effort" wording).
func clean(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return perr.IO("read dir "+root, err)
	}
	for _, e := range entries {
		_ = os.RemoveAll(filepath.Join(root, e.Name()))
	}
	return nil
}
