package poi

import (
	"strings"
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
)

var javascriptExtensions = map[string]bool{
	".js":  true,
	".cjs": true,
	".mjs": true,
}

// processImport is the first import of a watched module found in a file.
type processImport struct {
	module string
	line   int
}

// jsAnalyzer finds require/import of process-spawning modules. Parsers are
// recycled through a pool; each one is used by a single goroutine at a time.
type jsAnalyzer struct {
	lang    *sitter.Language
	pool    sync.Pool
	modules map[string]bool
}

func newJSAnalyzer(modules []string) *jsAnalyzer {
	a := &jsAnalyzer{
		lang:    sitter.NewLanguage(tree_sitter_javascript.Language()),
		modules: make(map[string]bool, len(modules)),
	}
	for _, m := range modules {
		a.modules[m] = true
	}
	a.pool = sync.Pool{
		New: func() any {
			sp := sitter.NewParser()
			_ = sp.SetLanguage(a.lang)
			return sp
		},
	}
	return a
}

// Find returns the first watched import in source order.
func (a *jsAnalyzer) Find(source []byte) (processImport, bool) {
	sp := a.pool.Get().(*sitter.Parser)
	defer func() {
		sp.Reset()
		a.pool.Put(sp)
	}()

	parsed := sp.Parse(source, nil)
	if parsed == nil {
		return processImport{}, false
	}
	defer parsed.Close()

	stack := []*sitter.Node{parsed.RootNode()}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node == nil {
			continue
		}

		if mod := a.specifier(node, source); mod != "" && a.modules[mod] {
			return processImport{module: mod, line: int(node.StartPosition().Row) + 1}, true
		}

		// Push in reverse so children pop in source order.
		for i := int(node.ChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, node.Child(uint(i)))
		}
	}
	return processImport{}, false
}

// specifier returns the module string loaded by node, if it is a require
// call, dynamic import, static import or re-export.
func (a *jsAnalyzer) specifier(node *sitter.Node, source []byte) string {
	switch node.Kind() {
	case "call_expression":
		fn := node.ChildByFieldName("function")
		if fn == nil {
			return ""
		}
		isRequire := fn.Kind() == "identifier" && nodeText(fn, source) == "require"
		if !isRequire && fn.Kind() != "import" {
			return ""
		}
		args := node.ChildByFieldName("arguments")
		if args == nil {
			return ""
		}
		for i := uint(0); i < args.ChildCount(); i++ {
			if s := stringLiteral(args.Child(i), source); s != "" {
				return s
			}
		}
	case "import_statement", "export_statement":
		return stringLiteral(node.ChildByFieldName("source"), source)
	}
	return ""
}

func stringLiteral(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	switch node.Kind() {
	case "string":
		return strings.Trim(nodeText(node, source), `"'`)
	case "template_string":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			if child := node.NamedChild(i); child != nil && child.Kind() == "template_substitution" {
				return ""
			}
		}
		return strings.Trim(nodeText(node, source), "`")
	}
	return ""
}

func nodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if start >= end || end > uint(len(source)) {
		return ""
	}
	return string(source[start:end])
}
