// Package formats renders an annotated package tree for people and tools.
package formats

import (
	"fmt"
	"path/filepath"
	"strings"

	"poitree/internal/core/config"
	"poitree/internal/core/errors"
	"poitree/internal/core/ports"
	"poitree/internal/engine/manifest"
	"poitree/internal/engine/tree"
	"poitree/internal/shared/util"
)

const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatSARIF    = "sarif"
)

// New returns the renderer registered under name. Names are matched the
// way output.format is validated, so every valid config has a renderer.
func New(name string) (ports.Renderer, error) {
	switch config.CanonicalFormat(name) {
	case FormatText:
		return NewTextRenderer(), nil
	case FormatJSON:
		return &JSONRenderer{}, nil
	case FormatMarkdown:
		return NewMarkdownGenerator(), nil
	case FormatSARIF:
		return &SARIFRenderer{}, nil
	default:
		return nil, errors.New(errors.CodeValidationError, fmt.Sprintf("unknown output format %q", name))
	}
}

// Names lists the supported formats.
func Names() []string {
	return append([]string(nil), config.OutputFormats...)
}

// nodeLabel is "name range", with the installed version when it differs.
func nodeLabel(n *tree.Node) string {
	label := n.Name
	if n.VersionRange != "" {
		label += " " + n.VersionRange
	}
	if n.InstalledVersion != "" && n.InstalledVersion != n.VersionRange {
		label += " => " + n.InstalledVersion
	}
	return label
}

// markers returns the short status tags shown after a node's label.
func markers(n *tree.Node) []string {
	var out []string
	if n.BackReference {
		out = append(out, "deduped")
	}
	if n.Truncated {
		out = append(out, "truncated")
	}
	if n.Depth > 0 && n.Kind != "" && n.Kind != manifest.KindProd {
		out = append(out, string(n.Kind))
	}
	if e := n.ResolutionError; e != nil {
		out = append(out, codeMarker(e.Code))
	}
	if n.ResolutionWarning != nil {
		out = append(out, "range mismatch")
	}
	if e := n.ScanError; e != nil {
		out = append(out, codeMarker(e.Code))
	}
	return out
}

func codeMarker(code errors.ErrorCode) string {
	switch code {
	case errors.CodeNotInstalled:
		return "not installed"
	case errors.CodeInvalidManifest:
		return "invalid manifest"
	case errors.CodeResolutionTimeout:
		return "resolution timed out"
	case errors.CodeScanError:
		return "scan failed"
	case errors.CodeScanTimeout:
		return "scan timed out"
	default:
		return strings.ToLower(string(code))
	}
}

// detailString renders a POI's detail map as sorted key=value pairs.
func detailString(detail map[string]string) string {
	if len(detail) == 0 {
		return ""
	}
	keys := util.SortedStringKeys(detail)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := detail[k]
		if strings.ContainsAny(v, " \t") {
			v = fmt.Sprintf("%q", v)
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}

func relPath(root, path string) string {
	root = strings.TrimSpace(root)
	path = strings.TrimSpace(path)
	if root == "" || path == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

// annotatedNodes returns every node carrying an annotation, in tree order.
func annotatedNodes(root *tree.Node) []*tree.Node {
	var out []*tree.Node
	tree.Walk(root, func(n *tree.Node) bool {
		if n.ResolutionError != nil || n.ResolutionWarning != nil || n.ScanError != nil {
			out = append(out, n)
		}
		return true
	})
	return out
}
