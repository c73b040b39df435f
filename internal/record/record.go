// Package record implements the append-only JSONL manifest stream (C2 in the
// design): a single-producer writer that guarantees the manifest.header
// record occupies line 0 and that every record is flushed as one whole,
// newline-terminated, UTF-8 JSON line with alphabetically sorted keys.
package record

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// R is one manifest record: a JSON object with a discriminator field (either
// "kind" or "record_type"). Using map[string]any lets encoding/json's
// native alphabetic map-key ordering satisfy the "sorted keys" invariant
// without a bespoke canonicalizer.
type R map[string]any

// Kind returns the record's discriminator, checking "kind" first and
// falling back to "record_type".
func (r R) Kind() string {
	if v, ok := r["kind"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	if v, ok := r["record_type"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Marshal renders the record as one compact JSON line (no trailing
// newline). encoding/json escapes control characters in string values, so
// a field containing a literal newline (e.g. free-text file content) can
// never break the manifest's "one record, one line" invariant, and map
// keys are emitted in sorted order by encoding/json's map-marshaling rule.
func (r R) Marshal() ([]byte, error) {
	b, err := json.Marshal(map[string]any(r))
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return b, nil
}

// Writer appends records to a single JSONL file. It is the sole owner of
// that file for the lifetime of a run (spec §5 "the manifest writer is
// single-owner"); callers must serialize their own calls if used from
// multiple goroutines (Writer itself is safe for concurrent use via an
// internal mutex, but record ORDER across goroutines is caller-defined).
type Writer struct {
	mu       sync.Mutex
	f        *os.File
	bw       *bufio.Writer
	lines    int
	hasLines bool
}

// Create opens path for writing, truncating any existing content.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create manifest: %w", err)
	}
	return &Writer{f: f, bw: bufio.NewWriterSize(f, 64*1024)}, nil
}

// Append writes one record as a line and flushes it immediately, satisfying
// the "atomic per-record write" guarantee: the line is serialized then
// flushed in a single write.
func (w *Writer) Append(r R) error {
	b, err := r.Marshal()
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.bw.Write(b); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("write record newline: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flush record: %w", err)
	}
	w.lines++
	w.hasLines = true
	return nil
}

// AppendAll appends records in order; it stops at the first error.
func (w *Writer) AppendAll(rs []R) error {
	for _, r := range rs {
		if err := w.Append(r); err != nil {
			return err
		}
	}
	return nil
}

// EnsureHeader idempotently inserts or verifies a manifest.header record at
// line 0. If no records have been written yet, it simply appends the
// header as the first line. If records already exist (e.g. EnsureHeader is
// called a second time for re-verification), it rewrites the file with the
// header prepended, unless the first line is already a matching header.
func (w *Writer) EnsureHeader(h R) error {
	h["kind"] = "manifest.header"
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.hasLines {
		b, err := h.Marshal()
		if err != nil {
			return err
		}
		if _, err := w.bw.Write(b); err != nil {
			return err
		}
		if err := w.bw.WriteByte('\n'); err != nil {
			return err
		}
		if err := w.bw.Flush(); err != nil {
			return err
		}
		w.lines++
		w.hasLines = true
		return nil
	}
	return w.rewriteWithHeaderLocked(h)
}

func (w *Writer) rewriteWithHeaderLocked(h R) error {
	if err := w.bw.Flush(); err != nil {
		return err
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	existing, err := io.ReadAll(w.f)
	if err != nil {
		return err
	}
	headerLine, err := h.Marshal()
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		nl := bytes.IndexByte(existing, '\n')
		if nl >= 0 && bytes.Equal(bytes.TrimRight(existing[:nl], "\r"), headerLine) {
			return nil
		}
	}
	rewritten := append(append(append([]byte{}, headerLine...), '\n'), existing...)
	if err := w.f.Truncate(0); err != nil {
		return err
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.f.Write(rewritten); err != nil {
		return err
	}
	w.bw = bufio.NewWriterSize(w.f, 64*1024)
	return nil
}

// Lines reports how many records have been written so far.
func (w *Writer) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.bw.Flush(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}
