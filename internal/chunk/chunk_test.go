package chunk

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeMonolith(t *testing.T, dir string, lines int) string {
	t.Helper()
	path := filepath.Join(dir, "design_manifest.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	for i := 0; i < lines; i++ {
		if _, err := f.WriteString(strings.Repeat("x", 50) + "\n"); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestChunkAutoBelowThresholdSkipsSplitting(t *testing.T) {
	dir := t.TempDir()
	mono := writeMonolith(t, dir, 5)

	res, err := Chunk(Options{
		MonolithPath: mono, DestDir: dir,
		PartStem: "design_manifest", PartExt: ".txt",
		SplitBytes: 1_000_000, DirSuffixWidth: 2, PartsPerDir: 100,
		PartsIndexName: "parts_index.json", ChecksumsName: "SUMS",
		PreserveMonolith: true, Decision: "auto",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Chunked {
		t.Fatal("expected no chunking below split_bytes with auto decision")
	}
	if res.Index.TotalParts != 0 {
		t.Fatalf("total_parts = %d, want 0", res.Index.TotalParts)
	}
	if _, err := os.Stat(mono); err != nil {
		t.Fatalf("monolith should be preserved: %v", err)
	}
}

func TestChunkAlwaysSplitsAndDeletesMonolith(t *testing.T) {
	dir := t.TempDir()
	mono := writeMonolith(t, dir, 20)

	res, err := Chunk(Options{
		MonolithPath: mono, DestDir: dir,
		PartStem: "design_manifest", PartExt: ".txt",
		SplitBytes: 200, DirSuffixWidth: 2, PartsPerDir: 100,
		PartsIndexName: "parts_index.json", ChecksumsName: "SUMS",
		PreserveMonolith: false, Decision: "always",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Chunked || res.Index.TotalParts < 2 {
		t.Fatalf("expected multiple parts, got %d", res.Index.TotalParts)
	}
	if _, err := os.Stat(mono); !os.IsNotExist(err) {
		t.Fatal("monolith should have been removed")
	}

	sums := readAll(t, res.ChecksumsPath)
	if !strings.Contains(sums, filepath.Base(mono)) {
		t.Fatal("SHA256SUMS must always include the monolith's sha even when deleted")
	}
	if !strings.Contains(sums, "parts_index.json") {
		t.Fatal("SHA256SUMS must include the parts index")
	}
}

func TestChunkPartsReassembleExactly(t *testing.T) {
	dir := t.TempDir()
	mono := writeMonolith(t, dir, 37)
	original := readAll(t, mono)

	res, err := Chunk(Options{
		MonolithPath: mono, DestDir: dir,
		PartStem: "design_manifest", PartExt: ".txt",
		SplitBytes: 300, DirSuffixWidth: 2, PartsPerDir: 3, GroupDirs: true,
		PartsIndexName: "parts_index.json", ChecksumsName: "SUMS",
		PreserveMonolith: true, Decision: "always",
	})
	if err != nil {
		t.Fatal(err)
	}

	var reassembled strings.Builder
	for _, p := range res.PartPaths {
		reassembled.WriteString(readAll(t, p))
	}
	if reassembled.String() != original {
		t.Fatal("concatenated parts must reproduce the monolith exactly")
	}
}

func readAll(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var sb strings.Builder
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		sb.WriteString(sc.Text())
		sb.WriteByte('\n')
	}
	return sb.String()
}
