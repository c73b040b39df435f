// Package rewrite implements C6, the path rewriter: a stream transform
// that rewrites every path-bearing field of a manifest between "local"
// (emitted_prefix-ed) and "remote" (repo-relative) path modes.
package rewrite

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"packager/internal/perr"
)

// PathFields are the record fields spec.md §4.6 names as path-bearing.
var PathFields = []string{"path", "src_path", "dst_path", "caller_path", "callee_path"}

// MapFunc maps one repo-relative-ish path string between path modes.
type MapFunc func(string) string

// Local returns a MapFunc that prepends prefix to a remote-mode path,
// leaving already-prefixed paths untouched (idempotent).
func Local(prefix string) MapFunc {
	return func(p string) string {
		if p == "" || strings.HasPrefix(p, prefix) {
			return p
		}
		return prefix + p
	}
}

// Remote returns a MapFunc that strips prefix from a local-mode path.
func Remote(prefix string) MapFunc {
	return func(p string) string {
		return strings.TrimPrefix(p, prefix)
	}
}

// Object rewrites a single decoded JSON object's path-bearing fields (and
// any "examples" sub-object whose values are lists of strings), in place,
// and returns it.
func Object(obj map[string]any, mapPath MapFunc) map[string]any {
	for _, f := range PathFields {
		if v, ok := obj[f]; ok {
			if s, ok := v.(string); ok && s != "" {
				obj[f] = mapPath(s)
			}
		}
	}
	if ex, ok := obj["examples"]; ok {
		if m, ok := ex.(map[string]any); ok {
			for k, v := range m {
				lst, ok := v.([]any)
				if !ok {
					continue
				}
				out := make([]any, len(lst))
				for i, item := range lst {
					if s, ok := item.(string); ok {
						out[i] = mapPath(s)
					} else {
						out[i] = item
					}
				}
				m[k] = out
			}
		}
	}
	return obj
}

// Stream reads a JSONL manifest from r, rewrites every line's path-bearing
// fields per mapPath, and writes sorted-key JSON lines to w. Lines that
// fail to parse as a JSON object are passed through verbatim, per
// spec.md §4.6 ("Records that fail to parse are passed through verbatim").
func Stream(r io.Reader, w io.Writer, mapPath MapFunc) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	bw := bufio.NewWriterSize(w, 64*1024)

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(line, &obj); err != nil {
			if _, werr := bw.Write(line); werr != nil {
				return perr.Record("rewrite passthrough", werr)
			}
			if werr := bw.WriteByte('\n'); werr != nil {
				return perr.Record("rewrite passthrough newline", werr)
			}
			continue
		}
		obj = Object(obj, mapPath)
		b, err := json.Marshal(obj)
		if err != nil {
			return perr.Record("rewrite marshal", err)
		}
		if _, err := bw.Write(b); err != nil {
			return perr.Record("rewrite write", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return perr.Record("rewrite write newline", err)
		}
	}
	if err := sc.Err(); err != nil {
		return perr.Record("rewrite scan", err)
	}
	return bw.Flush()
}
