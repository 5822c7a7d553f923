package formats

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"poitree/internal/core/ports"
	"poitree/internal/data/history"
	"poitree/internal/engine/tree"

	"github.com/dustin/go-humanize"
)

// TextRenderer draws the tree with box-drawing characters, one line per
// node, followed by that node's findings and annotations.
type TextRenderer struct {
	// ShowPaths appends each node's resolved directory, relative to the root.
	ShowPaths bool
}

func NewTextRenderer() *TextRenderer {
	return &TextRenderer{}
}

func (r *TextRenderer) Name() string { return FormatText }

func (r *TextRenderer) Render(w io.Writer, in ports.RenderInput) error {
	bw := bufio.NewWriter(w)
	if in.Tree == nil {
		fmt.Fprintln(bw, "(empty tree)")
		return bw.Flush()
	}

	fmt.Fprintf(bw, "%s  %s\n", nodeLabel(in.Tree), in.RootDir)
	r.writeDetails(bw, in, in.Tree, "", len(in.Tree.Children) > 0)
	r.writeChildren(bw, in, in.Tree, "")

	fmt.Fprintln(bw)
	fmt.Fprintln(bw, summaryLine(in.Stats, in))
	if in.Trend != nil {
		fmt.Fprintln(bw, trendLine(in.Trend))
	}
	return bw.Flush()
}

func (r *TextRenderer) writeChildren(w io.Writer, in ports.RenderInput, n *tree.Node, prefix string) {
	for i, child := range n.Children {
		last := i == len(n.Children)-1
		branch, next := "├── ", prefix+"│   "
		if last {
			branch, next = "└── ", prefix+"    "
		}

		line := prefix + branch + nodeLabel(child)
		if tags := markers(child); len(tags) > 0 {
			line += " (" + strings.Join(tags, ", ") + ")"
		}
		if r.ShowPaths && child.IsResolved() && !child.BackReference {
			line += "  " + relPath(in.RootDir, child.ResolvedPath)
		}
		fmt.Fprintln(w, line)

		r.writeDetails(w, in, child, next, len(child.Children) > 0)
		r.writeChildren(w, in, child, next)
	}
}

// writeDetails prints findings and annotation messages under a node.
// Back-references repeat the findings of the expanded occurrence, so they
// are omitted there.
func (r *TextRenderer) writeDetails(w io.Writer, in ports.RenderInput, n *tree.Node, prefix string, hasChildren bool) {
	gutter := prefix + "  "
	if hasChildren {
		gutter = prefix + "│ "
	}
	for _, e := range n.Issues() {
		fmt.Fprintf(w, "%s! %s: %s\n", gutter, e.Code, e.Summary())
	}
	if n.ResolutionWarning != nil {
		fmt.Fprintf(w, "%s~ %s\n", gutter, n.ResolutionWarning.Summary())
	}
	if n.BackReference {
		return
	}
	for _, p := range n.POIs {
		line := fmt.Sprintf("%s* %s %s", gutter, p.Kind, relPath(in.RootDir, p.Path))
		if d := detailString(p.Detail); d != "" {
			line += " " + d
		}
		fmt.Fprintln(w, line)
	}
}

func summaryLine(s tree.Stats, in ports.RenderInput) string {
	parts := []string{
		plural(s.Nodes, "node", "nodes"),
		humanize.Comma(int64(s.Resolved)) + " resolved",
		humanize.Comma(int64(s.BackReferences)) + " deduped",
		plural(s.Issues, "issue", "issues"),
		plural(s.TotalPOIs, "point of interest", "points of interest"),
	}
	if s.Warnings > 0 {
		parts = append(parts, plural(s.Warnings, "warning", "warnings"))
	}
	line := strings.Join(parts, ", ")
	if in.Duration > 0 {
		line += fmt.Sprintf(" in %s", in.Duration.Round(time.Millisecond))
	}
	return line
}

func trendLine(t *history.Trend) string {
	if t.Previous == nil {
		return "First recorded run for this project."
	}
	return fmt.Sprintf("Since %s: %+d nodes, %+d issues, %+d points of interest, %d new and %d resolved findings",
		humanize.Time(t.Previous.Timestamp),
		t.DeltaNodes, t.DeltaIssues, t.DeltaPOIs,
		len(t.NewFindings), len(t.GoneFindings),
	)
}
