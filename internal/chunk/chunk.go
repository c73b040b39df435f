// Package chunk implements C7, the transport chunker: a line-preserving
// split of a monolithic JSONL manifest into size-bounded parts under
// optionally grouped directories, plus a parts-index and SHA256SUMS file.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"packager/internal/perr"
)

// PartInfo describes one emitted part, per spec.md §3's Parts Index shape.
type PartInfo struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Lines int    `json:"lines"`
}

// Index is the parts-index JSON document (spec.md §3).
type Index struct {
	TotalParts int        `json:"total_parts"`
	SplitBytes int64      `json:"split_bytes"`
	Parts      []PartInfo `json:"parts"`
	Source     string     `json:"source"`
}

// Options configures one chunking pass.
type Options struct {
	MonolithPath     string // the manifest to split
	DestDir          string // directory parts/index/sums are written under
	PartStem         string
	PartExt          string
	SplitBytes       int64
	GroupDirs        bool
	DirSuffixWidth   int
	PartsPerDir      int
	PartsIndexName   string
	ChecksumsName    string
	PreserveMonolith bool
	// Decision ∈ {always, never, auto}. auto chunks iff the monolith's
	// size exceeds SplitBytes.
	Decision string
}

// Result reports what a chunking pass produced.
type Result struct {
	Chunked        bool
	Index          Index
	IndexPath      string
	ChecksumsPath  string
	MonolithSHA256 string
	PartPaths      []string
}

type sumLine struct {
	hex  string
	name string
}

// Chunk splits opts.MonolithPath per the decision policy and writes the
// parts-index and SHA256SUMS files. If PreserveMonolith is false, the
// monolith is deleted only after both sidecar files are persisted, and its
// SHA (computed before deletion) is always present in SHA256SUMS — this is
// spec.md §4.7's explicit instruction, read as taking precedence over
// §3's looser "(if preserved)" phrasing (see DESIGN.md).
func Chunk(opts Options) (Result, error) {
	data, err := os.ReadFile(opts.MonolithPath)
	if err != nil {
		return Result{}, perr.IO("read monolith", err)
	}
	monoSum := sha256.Sum256(data)
	monoHex := hex.EncodeToString(monoSum[:])
	monoName := filepath.Base(opts.MonolithPath)

	if opts.PartsPerDir <= 0 {
		opts.PartsPerDir = 1 << 30
	}
	if opts.DirSuffixWidth <= 0 {
		opts.DirSuffixWidth = 2
	}

	shouldChunk := decide(opts.Decision, int64(len(data)), opts.SplitBytes)

	if err := os.MkdirAll(opts.DestDir, 0o755); err != nil {
		return Result{}, perr.IO("mkdir dest", err)
	}

	idx := Index{SplitBytes: opts.SplitBytes, Source: monoName, Parts: []PartInfo{}}
	var sums []sumLine
	var partPaths []string

	if shouldChunk {
		lines := splitLines(data)
		parts, paths, partSums, err := writeParts(opts, lines)
		if err != nil {
			return Result{}, err
		}
		idx.Parts = parts
		idx.TotalParts = len(parts)
		partPaths = paths
		sums = append(sums, partSums...)
	}

	idxBytes, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return Result{}, perr.IO("marshal parts index", err)
	}
	idxPath := filepath.Join(opts.DestDir, opts.PartsIndexName)
	if err := os.WriteFile(idxPath, idxBytes, 0o644); err != nil {
		return Result{}, perr.IO("write parts index", err)
	}
	idxSum := sha256.Sum256(idxBytes)
	// Parts-index line precedes part lines so the checksums file reads
	// top-down as "index, then its parts".
	sums = append([]sumLine{{hex: hex.EncodeToString(idxSum[:]), name: opts.PartsIndexName}}, sums...)
	sums = append(sums, sumLine{hex: monoHex, name: monoName})

	checksumsPath := filepath.Join(opts.DestDir, opts.ChecksumsName)
	if err := writeSums(checksumsPath, sums); err != nil {
		return Result{}, err
	}

	if !opts.PreserveMonolith {
		if err := os.Remove(opts.MonolithPath); err != nil && !os.IsNotExist(err) {
			return Result{}, perr.IO("remove monolith", err)
		}
	}

	return Result{
		Chunked:        shouldChunk,
		Index:          idx,
		IndexPath:      idxPath,
		ChecksumsPath:  checksumsPath,
		MonolithSHA256: monoHex,
		PartPaths:      partPaths,
	}, nil
}

func decide(decision string, size, splitBytes int64) bool {
	switch decision {
	case "always":
		return true
	case "never":
		return false
	default: // "auto"
		return splitBytes > 0 && size > splitBytes
	}
}

// splitLines splits data into whole lines, each retaining its trailing
// '\n' (the final line keeps no '\n' if the file doesn't end in one) so
// that concatenating every returned slice reproduces data exactly.
func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i+1])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}

func writeParts(opts Options, lines [][]byte) ([]PartInfo, []string, []sumLine, error) {
	var parts []PartInfo
	var paths []string
	var sums []sumLine

	var cur []byte
	curLines := 0
	serial := 0

	flush := func() error {
		if len(cur) == 0 {
			return nil
		}
		serial++
		group := (serial - 1) / opts.PartsPerDir
		name := partFileName(opts.PartStem, opts.DirSuffixWidth, group, serial, opts.PartExt)
		destDir := opts.DestDir
		relName := name
		if opts.GroupDirs {
			dir := groupDirName(opts.PartStem, opts.DirSuffixWidth, group)
			destDir = filepath.Join(opts.DestDir, dir)
			relName = filepath.ToSlash(filepath.Join(dir, name))
		}
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return perr.IO("mkdir part dir", err)
		}
		destPath := filepath.Join(destDir, name)
		if err := os.WriteFile(destPath, cur, 0o644); err != nil {
			return perr.IO("write part", err)
		}
		sum := sha256.Sum256(cur)
		parts = append(parts, PartInfo{Name: relName, Size: int64(len(cur)), Lines: curLines})
		paths = append(paths, destPath)
		sums = append(sums, sumLine{hex: hex.EncodeToString(sum[:]), name: relName})
		cur = nil
		curLines = 0
		return nil
	}

	for _, line := range lines {
		// A single line exceeding split_bytes is placed alone in its part
		// (spec.md §4.7): flush whatever's pending first, then this line
		// goes out on its own in the next flush.
		if len(cur) > 0 && int64(len(cur))+int64(len(line)) > opts.SplitBytes {
			if err := flush(); err != nil {
				return nil, nil, nil, err
			}
		}
		cur = append(cur, line...)
		curLines++
	}
	if err := flush(); err != nil {
		return nil, nil, nil, err
	}
	return parts, paths, sums, nil
}

func partFileName(stem string, dirWidth, group, serial int, ext string) string {
	return fmt.Sprintf("%s_%0*d_%04d%s", stem, dirWidth, group, serial, ext)
}

func groupDirName(stem string, dirWidth, group int) string {
	return fmt.Sprintf("%s_%0*d", stem, dirWidth, group)
}

func writeSums(path string, sums []sumLine) error {
	f, err := os.Create(path)
	if err != nil {
		return perr.IO("create checksums", err)
	}
	defer f.Close()
	for _, s := range sums {
		if _, err := fmt.Fprintf(f, "%s  %s\n", s.hex, s.name); err != nil {
			return perr.IO("write checksums", err)
		}
	}
	return nil
}
