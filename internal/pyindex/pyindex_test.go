package pyindex

import "testing"

func TestModuleName(t *testing.T) {
	cases := map[string]string{
		"pkg/mod.py":          "pkg.mod",
		"pkg/__init__.py":     "pkg",
		"__init__.py":         "",
		"a/b/c.py":            "a.b.c",
	}
	for in, want := range cases {
		if got := ModuleName(in); got != want {
			t.Errorf("ModuleName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileBasics(t *testing.T) {
	src := []byte(`"""module doc"""
import os
from typing import List, Optional as Opt


class Widget(Base):
    """widget doc"""

    def render(self):
        return os.path.join("a", "b")


def helper():
    pass
`)
	res := File("pkg/widget.py", src, true)
	if res.Module.Err != "" {
		t.Fatalf("unexpected parse error: %s", res.Module.Err)
	}
	if res.Module.Module != "pkg.widget" {
		t.Fatalf("module = %q", res.Module.Module)
	}
	if len(res.Module.Classes) != 1 || res.Module.Classes[0] != "Widget" {
		t.Fatalf("classes = %v", res.Module.Classes)
	}
	if len(res.Module.Funcs) != 2 {
		t.Fatalf("funcs = %v", res.Module.Funcs)
	}
	if len(res.Module.Imports) == 0 {
		t.Fatalf("expected import edges")
	}

	var sawDocstring, sawCall bool
	for _, r := range res.Extra {
		switch r.Kind() {
		case "ast.docstring":
			sawDocstring = true
		case "ast.call":
			sawCall = true
		}
	}
	if !sawDocstring {
		t.Fatalf("expected at least one ast.docstring record")
	}
	if !sawCall {
		t.Fatalf("expected at least one ast.call record")
	}
}

func TestCoalesceEdgesDedupesAndSorts(t *testing.T) {
	edges := []Edge{
		{SrcPath: "b.py", DstModule: "os", EdgeType: "import"},
		{SrcPath: "a.py", DstModule: "sys", EdgeType: "import"},
		{SrcPath: "a.py", DstModule: "sys", EdgeType: "import"},
		{SrcPath: "a.py", DstModule: "os", EdgeType: "import"},
	}
	got := CoalesceEdges(edges)
	if len(got) != 3 {
		t.Fatalf("want 3 deduped edges, got %d: %v", len(got), got)
	}
	want := []Edge{
		{SrcPath: "a.py", DstModule: "os", EdgeType: "import"},
		{SrcPath: "a.py", DstModule: "sys", EdgeType: "import"},
		{SrcPath: "b.py", DstModule: "os", EdgeType: "import"},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
