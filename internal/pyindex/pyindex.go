// Package pyindex implements C3, the Python indexer. It parses each Python
// file's syntax tree via tree-sitter (the language-appropriate parser
// library spec.md §9 calls for) and emits a python.module record, its
// import edges, and — when AST extras are requested — ast.symbol,
// ast.xref, ast.call, ast.docstring and ast.symbol_metrics records.
package pyindex

import (
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"packager/internal/record"
)

// Edge is one import edge discovered in a file, prior to coalescing.
type Edge struct {
	SrcPath   string
	DstModule string
	EdgeType  string
}

// Result bundles everything File produces for one source file.
type Result struct {
	Module ModuleInfo
	Edges  []Edge
	Extra  []record.R // ast.symbol / ast.xref / ast.call / ast.docstring / ast.symbol_metrics
}

type ModuleInfo struct {
	Path    string
	Module  string
	Classes []string
	Funcs   []string
	Imports []string
	Err     string
}

// pythonLang is process-wide and safe for concurrent SetLanguage calls on
// distinct *Parser instances; the grammar itself is immutable.
var pythonLang = tree_sitter.NewLanguage(tree_sitter_python.Language())

// parserPool hands out *tree_sitter.Parser instances so concurrent C3
// invocations (driven by workerpool) don't contend on a single parser.
var parserPool = sync.Pool{
	New: func() any {
		p := tree_sitter.NewParser()
		_ = p.SetLanguage(pythonLang)
		return p
	},
}

// ModuleName derives a dotted module name from a repo-relative POSIX path,
// mapping __init__.py to its containing package.
func ModuleName(relPosix string) string {
	if strings.HasSuffix(relPosix, "/__init__.py") {
		pkg := strings.TrimSuffix(relPosix, "/__init__.py")
		return strings.Trim(strings.ReplaceAll(pkg, "/", "."), ".")
	}
	if relPosix == "__init__.py" {
		return ""
	}
	stem := strings.TrimSuffix(relPosix, ".py")
	return strings.Trim(strings.ReplaceAll(stem, "/", "."), ".")
}

// File indexes a single Python source file. Result.Module.Err is
// "parse_error" when tree-sitter produces no tree, and "syntax_error" when
// the (error-tolerant, best-effort) tree contains error nodes.
func File(relPosix string, content []byte, emitAST bool) Result {
	mod := ModuleInfo{Path: relPosix, Module: ModuleName(relPosix)}

	p := parserPool.Get().(*tree_sitter.Parser)
	defer parserPool.Put(p)

	tree := p.Parse(content, nil)
	if tree == nil {
		mod.Err = "parse_error"
		return Result{Module: mod}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		mod.Err = "parse_error"
		return Result{Module: mod}
	}
	if root.HasError() {
		mod.Err = "syntax_error"
	}

	w := &walker{src: content, relPosix: relPosix, emitAST: emitAST}
	w.walk(root, "module")

	mod.Classes = w.classes
	mod.Funcs = w.funcs
	mod.Imports = w.importNames

	edges := make([]Edge, 0, len(w.importNames))
	for _, imp := range w.importNames {
		edges = append(edges, Edge{SrcPath: relPosix, DstModule: imp, EdgeType: "import"})
	}

	return Result{Module: mod, Edges: edges, Extra: w.extra}
}

type walker struct {
	src         []byte
	relPosix    string
	emitAST     bool
	classes     []string
	funcs       []string
	importNames []string
	extra       []record.R
}

func (w *walker) text(n *tree_sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Utf8Text(w.src)
}

func (w *walker) walk(n *tree_sitter.Node, scope string) {
	if n == nil {
		return
	}
	switch n.Kind() {
	case "class_definition":
		w.onClass(n, scope)
		return
	case "function_definition":
		w.onFunction(n, scope)
		return
	case "import_statement":
		w.onImport(n)
	case "import_from_statement":
		w.onImportFrom(n)
	case "call":
		if w.emitAST {
			w.onCall(n, scope)
		}
	case "expression_statement":
		if w.emitAST {
			w.maybeDocstring(n, scope)
		}
	}
	count := n.NamedChildCount()
	for i := uint(0); i < count; i++ {
		w.walk(n.NamedChild(i), scope)
	}
}

func (w *walker) onClass(n *tree_sitter.Node, scope string) {
	nameNode := n.ChildByFieldName("name")
	name := w.text(nameNode)
	if name == "" {
		return
	}
	w.classes = append(w.classes, name)

	if w.emitAST {
		bases := []string{}
		if argList := n.ChildByFieldName("superclasses"); argList != nil {
			ac := argList.NamedChildCount()
			for i := uint(0); i < ac; i++ {
				bases = append(bases, w.text(argList.NamedChild(i)))
			}
		}
		start := n.StartPosition()
		end := n.EndPosition()
		w.extra = append(w.extra, record.R{
			"kind":        "ast.symbol",
			"path":        w.relPosix,
			"name":        name,
			"symbol_type": "class",
			"scope":       scope,
			"bases":       bases,
			"decorators":  decoratorsOf(n, w),
			"lineno":      int(start.Row) + 1,
			"end_lineno":  int(end.Row) + 1,
		})
		w.maybeBodyDocstring(n, "class:"+qualify(scope, name))
	}

	body := n.ChildByFieldName("body")
	w.walk(body, qualify(scope, name))
}

func (w *walker) onFunction(n *tree_sitter.Node, scope string) {
	nameNode := n.ChildByFieldName("name")
	name := w.text(nameNode)
	if name == "" {
		return
	}
	w.funcs = append(w.funcs, name)
	isAsync := n.Child(0) != nil && n.Child(0).Kind() == "async"

	if w.emitAST {
		start := n.StartPosition()
		end := n.EndPosition()
		params := n.ChildByFieldName("parameters")
		argCount := uint(0)
		if params != nil {
			argCount = params.NamedChildCount()
		}
		w.extra = append(w.extra, record.R{
			"kind":        "ast.symbol",
			"path":        w.relPosix,
			"name":        name,
			"symbol_type": "function",
			"scope":       scope,
			"decorators":  decoratorsOf(n, w),
			"lineno":      int(start.Row) + 1,
			"end_lineno":  int(end.Row) + 1,
		})
		w.extra = append(w.extra, record.R{
			"kind":        "ast.symbol_metrics",
			"path":        w.relPosix,
			"name":        name,
			"scope":       scope,
			"loc":         int(end.Row) - int(start.Row) + 1,
			"arg_count":   int(argCount),
			"is_async":    isAsync,
		})
		w.maybeBodyDocstring(n, "function:"+qualify(scope, name))
	}

	body := n.ChildByFieldName("body")
	w.walk(body, qualify(scope, name))
}

func decoratorsOf(n *tree_sitter.Node, w *walker) []string {
	parent := n.Parent()
	if parent == nil || parent.Kind() != "decorated_definition" {
		return []string{}
	}
	out := []string{}
	count := parent.NamedChildCount()
	for i := uint(0); i < count; i++ {
		c := parent.NamedChild(i)
		if c.Kind() == "decorator" {
			out = append(out, strings.TrimPrefix(w.text(c), "@"))
		}
	}
	return out
}

func qualify(scope, name string) string {
	if scope == "" || scope == "module" {
		return name
	}
	return scope + "." + name
}

func (w *walker) onImport(n *tree_sitter.Node) {
	count := n.NamedChildCount()
	for i := uint(0); i < count; i++ {
		c := n.NamedChild(i)
		var dotted, asname string
		switch c.Kind() {
		case "dotted_name":
			dotted = w.text(c)
		case "aliased_import":
			dotted = w.text(c.ChildByFieldName("name"))
			asname = w.text(c.ChildByFieldName("alias"))
		default:
			continue
		}
		if dotted == "" {
			continue
		}
		w.importNames = append(w.importNames, dotted)
		if w.emitAST {
			start := n.StartPosition()
			w.extra = append(w.extra, record.R{
				"kind":    "ast.xref",
				"path":    w.relPosix,
				"target":  dotted,
				"ref_kind": "import",
				"asname":  asname,
				"level":   0,
				"lineno":  int(start.Row) + 1,
			})
		}
	}
}

func (w *walker) onImportFrom(n *tree_sitter.Node) {
	moduleNode := n.ChildByFieldName("module_name")
	module := w.text(moduleNode)
	level := strings.Count(module, ".")
	if moduleNode != nil && moduleNode.Kind() == "relative_import" {
		level = 0
		for i := uint(0); i < moduleNode.ChildCount(); i++ {
			if moduleNode.Child(i).Kind() == "import_prefix" {
				level += strings.Count(w.text(moduleNode.Child(i)), ".")
			}
		}
	}

	count := n.NamedChildCount()
	for i := uint(0); i < count; i++ {
		c := n.NamedChild(i)
		var name, asname string
		switch c.Kind() {
		case "dotted_name", "identifier":
			if moduleNode != nil && c.StartByte() == moduleNode.StartByte() {
				continue
			}
			name = w.text(c)
		case "aliased_import":
			name = w.text(c.ChildByFieldName("name"))
			asname = w.text(c.ChildByFieldName("alias"))
		case "wildcard_import":
			name = "*"
		default:
			continue
		}
		if name == "" {
			continue
		}
		dotted := name
		if module != "" && name != "*" {
			dotted = module + "." + name
		} else if module != "" && name == "*" {
			dotted = module
		}
		w.importNames = append(w.importNames, dotted)
		if w.emitAST {
			start := n.StartPosition()
			w.extra = append(w.extra, record.R{
				"kind":     "ast.xref",
				"path":     w.relPosix,
				"target":   dotted,
				"ref_kind": "import_from",
				"asname":   asname,
				"level":    level,
				"lineno":   int(start.Row) + 1,
			})
		}
	}
}

func (w *walker) onCall(n *tree_sitter.Node, scope string) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	start := n.StartPosition()
	w.extra = append(w.extra, record.R{
		"kind":   "ast.call",
		"path":   w.relPosix,
		"callee": w.text(fn),
		"scope":  scope,
		"lineno": int(start.Row) + 1,
	})
}

// maybeDocstring handles the module-level docstring: the first
// expression_statement of the module body whose sole child is a string.
func (w *walker) maybeDocstring(n *tree_sitter.Node, scope string) {
	if scope != "module" {
		return
	}
	parent := n.Parent()
	if parent == nil || parent.Kind() != "module" {
		return
	}
	first := parent.NamedChild(0)
	if first == nil || first.StartByte() != n.StartByte() {
		return
	}
	w.emitDocstringIfString(n, scope)
}

// maybeBodyDocstring checks whether def's body's first statement is a
// docstring (class/function docstrings).
func (w *walker) maybeBodyDocstring(def *tree_sitter.Node, scope string) {
	body := def.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return
	}
	first := body.NamedChild(0)
	if first.Kind() != "expression_statement" {
		return
	}
	w.emitDocstringIfString(first, scope)
}

func (w *walker) emitDocstringIfString(exprStmt *tree_sitter.Node, scope string) {
	if exprStmt.NamedChildCount() != 1 {
		return
	}
	str := exprStmt.NamedChild(0)
	if str.Kind() != "string" {
		return
	}
	start := exprStmt.StartPosition()
	w.extra = append(w.extra, record.R{
		"kind":   "ast.docstring",
		"path":   w.relPosix,
		"scope":  scope,
		"text":   strings.TrimSpace(w.text(str)),
		"lineno": int(start.Row) + 1,
	})
}

// QualityMetrics mirrors original_source/quality.py's quality_for_python
// return shape: SLOC/LOC counts, a base-1 cyclomatic complexity figure
// (1 + one per branching construct), and per-function/class counts.
type QualityMetrics struct {
	SLOC         int
	LOC          int
	Cyclomatic   int
	NFunctions   int
	NClasses     int
	AvgFnLen     float64
	Notes        []string
}

// complexityNodeKinds mirrors quality.py's _COMPLEXITY_NODES: every
// branching construct adds one to the base cyclomatic figure of 1.
var complexityNodeKinds = map[string]struct{}{
	"if_statement":            {},
	"for_statement":           {},
	"while_statement":         {},
	"with_statement":          {},
	"try_statement":           {},
	"except_clause":           {},
	"boolean_operator":        {},
	"conditional_expression":  {},
	"list_comprehension":      {},
	"set_comprehension":       {},
	"dictionary_comprehension": {},
	"generator_expression":    {},
}

// Quality computes quality.metric fields for one Python source file. It
// never errors: when no tree is produced it returns the LOC/SLOC counts with
// Cyclomatic 1 and a "parse_error" note, matching quality.py's defensive
// fallback.
func Quality(content []byte) QualityMetrics {
	lines := strings.Split(string(content), "\n")
	loc := len(lines)
	sloc := 0
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t != "" && !strings.HasPrefix(t, "#") {
			sloc++
		}
	}

	p := parserPool.Get().(*tree_sitter.Parser)
	defer parserPool.Put(p)
	tree := p.Parse(content, nil)
	if tree == nil {
		return QualityMetrics{LOC: loc, SLOC: sloc, Cyclomatic: 1, Notes: []string{"parse_error"}}
	}
	defer tree.Close()
	root := tree.RootNode()
	if root == nil {
		return QualityMetrics{LOC: loc, SLOC: sloc, Cyclomatic: 1, Notes: []string{"parse_error"}}
	}

	m := QualityMetrics{LOC: loc, SLOC: sloc, Cyclomatic: 1}
	var fnLens []int
	var walk func(n *tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		if n == nil {
			return
		}
		kind := n.Kind()
		if _, branching := complexityNodeKinds[kind]; branching {
			m.Cyclomatic++
		}
		switch kind {
		case "function_definition":
			m.NFunctions++
			start := n.StartPosition()
			end := n.EndPosition()
			fnLens = append(fnLens, int(end.Row)-int(start.Row)+1)
		case "class_definition":
			m.NClasses++
		}
		count := n.NamedChildCount()
		for i := uint(0); i < count; i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)

	if len(fnLens) > 0 {
		sum := 0
		for _, l := range fnLens {
			sum += l
		}
		m.AvgFnLen = float64(sum) / float64(len(fnLens))
	}
	if root.HasError() {
		m.Notes = append(m.Notes, "parse_error")
	}
	return m
}

// CoalesceEdges dedupes edges by (src_path, dst_module, edge_type) and
// returns them sorted by that same key, satisfying spec.md's "Import-edge
// coalescing is deterministic" guarantee and its idempotence property
// (running coalescing twice yields the same output).
func CoalesceEdges(edges []Edge) []Edge {
	seen := make(map[Edge]struct{}, len(edges))
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sortEdges(out)
	return out
}

func sortEdges(edges []Edge) {
	less := func(i, j int) bool {
		if edges[i].SrcPath != edges[j].SrcPath {
			return edges[i].SrcPath < edges[j].SrcPath
		}
		if edges[i].DstModule != edges[j].DstModule {
			return edges[i].DstModule < edges[j].DstModule
		}
		return edges[i].EdgeType < edges[j].EdgeType
	}
	insertionSortEdges(edges, less)
}

func insertionSortEdges(edges []Edge, less func(i, j int) bool) {
	for i := 1; i < len(edges); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			edges[j], edges[j-1] = edges[j-1], edges[j]
		}
	}
}
