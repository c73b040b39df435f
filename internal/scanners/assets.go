package scanners

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"packager/internal/aggregate"
	"packager/internal/discover"
	"packager/internal/record"
	"packager/internal/workerpool"
)

// Assets catalogs binary/image/font assets with size and sha256.
type Assets struct{}

func (Assets) Name() string { return "assets" }

var assetExtKinds = map[string]string{
	".png": "image", ".jpg": "image", ".jpeg": "image", ".gif": "image", ".svg": "image", ".webp": "image",
	".woff": "font", ".woff2": "font", ".ttf": "font", ".otf": "font",
	".mp4": "video", ".mov": "video", ".webm": "video",
	".mp3": "audio", ".wav": "audio",
	".zip": "archive", ".tar": "archive", ".gz": "archive",
	".pdf": "document",
}

func (Assets) Scan(ctx context.Context, _ string, items []discover.Item) ([]record.R, error) {
	var targets []discover.Item
	var kinds []string
	for _, it := range items {
		if kind, ok := kindForAsset(it.RepoRelPosix); ok {
			targets = append(targets, it)
			kinds = append(kinds, kind)
		}
	}

	results, err := workerpool.Run(ctx, targets, func(_ context.Context, it discover.Item) (record.R, error) {
		info, err := os.Stat(it.AbsPath)
		if err != nil {
			return nil, nil
		}
		sum, err := sha256File(it.AbsPath)
		if err != nil {
			sum = ""
		}
		return record.R{
			"kind": "asset.file", "path": it.RepoRelPosix, "asset_kind": kindForAssetOrOther(it.RepoRelPosix),
			"size_bytes": info.Size(), "sha256": sum,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	var out []record.R
	bytesTotal := int64(0)
	for _, r := range results {
		if r == nil {
			continue
		}
		out = append(out, r)
		bytesTotal += r["size_bytes"].(int64)
	}
	out = append(out, record.R{
		"kind": "asset.summary", "files": len(out), "bytes_total": bytesTotal,
		"top_kinds": aggregate.Keys(aggregate.TopN(kinds, 10)),
	})
	return out, nil
}

func kindForAsset(relPosix string) (string, bool) {
	for ext, kind := range assetExtKinds {
		if strings.HasSuffix(relPosix, ext) {
			return kind, true
		}
	}
	return "", false
}

func kindForAssetOrOther(relPosix string) string {
	kind, _ := kindForAsset(relPosix)
	return kind
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
