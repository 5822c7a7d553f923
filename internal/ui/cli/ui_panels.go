package cli

import (
	"fmt"
	"strings"

	"poitree/internal/core/ports"
	"poitree/internal/engine/tree"

	"github.com/dustin/go-humanize"
)

func renderHelp(m model) string {
	keys := "Keys: tab panel | / filter | enter details | esc back | t trend overlay | q quit"
	if m.mode == panelFindings {
		keys = "Keys: tab panel | / filter | o open file | t trend overlay | q quit"
	}
	return statusStyle.Render(keys)
}

func renderNodeDetails(rootDir string, n *tree.Node) string {
	lines := []string{fmt.Sprintf("Package: %s", n.Name)}
	if n.VersionRange != "" {
		lines = append(lines, fmt.Sprintf("  Range: %s", n.VersionRange))
	}
	if n.IsResolved() {
		lines = append(lines,
			fmt.Sprintf("  Installed: %s", n.InstalledVersion),
			fmt.Sprintf("  Path: %s", relativePath(rootDir, n.ResolvedPath)),
		)
	}
	if n.Kind != "" {
		lines = append(lines, fmt.Sprintf("  Kind: %s", n.Kind))
	}
	if n.BackReference {
		lines = append(lines, "  Deduplicated: expanded at its first occurrence")
	}
	if n.Truncated {
		lines = append(lines, "  Truncated at the configured depth")
	}
	for _, e := range n.Issues() {
		lines = append(lines, issueStyle.Render(fmt.Sprintf("  %s: %s", e.Code, e.Summary())))
	}
	if w := n.ResolutionWarning; w != nil {
		lines = append(lines, warningStyle.Render(fmt.Sprintf("  %s: %s", w.Code, w.Summary())))
	}
	lines = append(lines, fmt.Sprintf("  Points of interest (%d):", len(n.POIs)))
	for _, p := range n.POIs {
		lines = append(lines, fmt.Sprintf("    %s %s %s", p.Kind, relativePath(rootDir, p.Path), detailPairs(p.Detail)))
	}
	if len(n.POIs) == 0 {
		lines = append(lines, "    none")
	}
	lines = append(lines, fmt.Sprintf("  Dependencies: %d", len(n.Children)))
	lines = append(lines, "  Press esc to close details.")
	return strings.Join(lines, "\n")
}

func renderTrendOverlay(in ports.RenderInput) string {
	t := in.Trend
	if t == nil {
		return statusStyle.Render("Trend overlay unavailable (enable --history to record runs).")
	}
	if t.Previous == nil {
		return statusStyle.Render("First recorded run for this project.")
	}
	return strings.Join([]string{
		"Trend Overlay",
		fmt.Sprintf("  Previous run: %s", humanize.Time(t.Previous.Timestamp)),
		fmt.Sprintf("  Nodes: %+d | Issues: %+d | Points of interest: %+d", t.DeltaNodes, t.DeltaIssues, t.DeltaPOIs),
		fmt.Sprintf("  New findings: %d | Resolved findings: %d", len(t.NewFindings), len(t.GoneFindings)),
	}, "\n")
}
