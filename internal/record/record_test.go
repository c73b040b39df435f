package record

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHeaderFirst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.jsonl")
	w, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append(R{"kind": "dir", "path": "src/"}); err != nil {
		t.Fatal(err)
	}
	if err := w.EnsureHeader(R{"manifest_version": 1}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d", len(lines))
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first["kind"] != "manifest.header" {
		t.Fatalf("first line kind = %v, want manifest.header", first["kind"])
	}
}

func TestEnsureHeaderIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.jsonl")
	w, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.EnsureHeader(R{"manifest_version": 1}); err != nil {
		t.Fatal(err)
	}
	if err := w.Append(R{"kind": "dir"}); err != nil {
		t.Fatal(err)
	}
	if err := w.EnsureHeader(R{"manifest_version": 1}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("EnsureHeader should not duplicate the header line, got %d lines", len(lines))
	}
}

func TestSortedKeys(t *testing.T) {
	r := R{"zeta": 1, "alpha": 2, "kind": "file"}
	b, err := r.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if strings.Index(s, "alpha") > strings.Index(s, "zeta") {
		t.Fatalf("keys not sorted: %s", s)
	}
}

func TestNewlineInContentIsEscaped(t *testing.T) {
	r := R{"kind": "file", "content": "a\nb"}
	b, err := r.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if strings.ContainsRune(string(b), '\n') {
		t.Fatalf("marshaled record must not contain a literal newline: %s", b)
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	return out
}
