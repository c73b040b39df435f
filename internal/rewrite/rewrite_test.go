package rewrite

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLocalIsIdempotent(t *testing.T) {
	mapPath := Local("output/bundle/")
	once := mapPath("src/main.go")
	twice := mapPath(once)
	if once != twice {
		t.Fatalf("Local should be idempotent: %q != %q", once, twice)
	}
	if once != "output/bundle/src/main.go" {
		t.Fatalf("got %q", once)
	}
}

func TestRemoteStripsPrefix(t *testing.T) {
	mapPath := Remote("output/bundle/")
	got := mapPath("output/bundle/src/main.go")
	if got != "src/main.go" {
		t.Fatalf("got %q", got)
	}
}

func TestObjectRewritesPathFields(t *testing.T) {
	obj := map[string]any{"kind": "graph.edge", "src_path": "a.py", "dst_module": "pkg.b"}
	out := Object(obj, Local("p/"))
	if out["src_path"] != "p/a.py" {
		t.Fatalf("src_path = %v", out["src_path"])
	}
	if out["dst_module"] != "pkg.b" {
		t.Fatal("non-path field must be untouched")
	}
}

func TestStreamRewritesEveryLine(t *testing.T) {
	in := strings.NewReader(
		`{"kind":"file","path":"a.go"}` + "\n" +
			`{"kind":"dir","path":"sub"}` + "\n",
	)
	var out bytes.Buffer
	if err := Stream(in, &out, Local("pfx/")); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d", len(lines))
	}
	for _, l := range lines {
		var obj map[string]any
		if err := json.Unmarshal([]byte(l), &obj); err != nil {
			t.Fatal(err)
		}
		p := obj["path"].(string)
		if !strings.HasPrefix(p, "pfx/") {
			t.Fatalf("path %q not rewritten", p)
		}
	}
}

func TestStreamPassesThroughUnparseableLines(t *testing.T) {
	in := strings.NewReader("not json\n")
	var out bytes.Buffer
	if err := Stream(in, &out, Local("pfx/")); err != nil {
		t.Fatal(err)
	}
	if out.String() != "not json\n" {
		t.Fatalf("got %q", out.String())
	}
}
