package formats

import (
	"fmt"
	"io"
	"strings"
	"time"

	"poitree/internal/core/ports"
	"poitree/internal/engine/tree"
	"poitree/internal/shared/version"
)

type MarkdownReportOptions struct {
	ProjectName         string
	GeneratedAt         time.Time
	TableOfContents     bool
	CollapsibleSections bool
	IncludeTree         bool
}

type MarkdownGenerator struct {
	Options MarkdownReportOptions
}

func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{Options: MarkdownReportOptions{
		TableOfContents:     true,
		CollapsibleSections: true,
		IncludeTree:         true,
	}}
}

func (m *MarkdownGenerator) Name() string { return FormatMarkdown }

func (m *MarkdownGenerator) Render(w io.Writer, in ports.RenderInput) error {
	out, err := m.Generate(in)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func (m *MarkdownGenerator) Generate(in ports.RenderInput) (string, error) {
	opts := m.Options
	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = in.StartedAt
	}
	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = time.Now().UTC()
	}
	project := opts.ProjectName
	if project == "" && in.Tree != nil {
		project = in.Tree.Name
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("title: Package Inspection Report\n")
	b.WriteString("project: " + nonEmpty(project, "unknown") + "\n")
	b.WriteString("generated_at: " + opts.GeneratedAt.UTC().Format(time.RFC3339) + "\n")
	b.WriteString("version: " + nonEmpty(version.Version, "unknown") + "\n")
	if in.RunID != "" {
		b.WriteString("run_id: " + in.RunID + "\n")
	}
	b.WriteString("---\n\n")

	b.WriteString("# Package Inspection Report\n\n")
	if opts.TableOfContents {
		b.WriteString("## Table of Contents\n")
		b.WriteString("- [Executive Summary](#executive-summary)\n")
		b.WriteString("- [Points of Interest](#points-of-interest)\n")
		b.WriteString("- [Node Issues](#node-issues)\n")
		if in.Trend != nil {
			b.WriteString("- [Changes Since Last Run](#changes-since-last-run)\n")
		}
		if opts.IncludeTree {
			b.WriteString("- [Dependency Tree](#dependency-tree)\n")
		}
		b.WriteString("\n")
	}

	s := in.Stats
	b.WriteString("## Executive Summary\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("| --- | --- |\n")
	b.WriteString(fmt.Sprintf("| Nodes | %d |\n", s.Nodes))
	b.WriteString(fmt.Sprintf("| Resolved | %d |\n", s.Resolved))
	b.WriteString(fmt.Sprintf("| Deduplicated | %d |\n", s.BackReferences))
	b.WriteString(fmt.Sprintf("| Truncated | %d |\n", s.Truncated))
	b.WriteString(fmt.Sprintf("| Nodes With Issues | %d |\n", s.Issues))
	b.WriteString(fmt.Sprintf("| Version Warnings | %d |\n", s.Warnings))
	b.WriteString(fmt.Sprintf("| Points of Interest | %d |\n", s.TotalPOIs))
	if in.Duration > 0 {
		b.WriteString(fmt.Sprintf("| Duration | %s |\n", in.Duration.Round(time.Millisecond)))
	}
	b.WriteString("\n")

	m.writePOIs(&b, in, opts.CollapsibleSections)
	m.writeIssues(&b, in, opts.CollapsibleSections)
	if in.Trend != nil {
		m.writeTrend(&b, in)
	}
	if opts.IncludeTree && in.Tree != nil {
		var tb strings.Builder
		if err := NewTextRenderer().Render(&tb, ports.RenderInput{RootDir: in.RootDir, Tree: in.Tree, Stats: in.Stats}); err != nil {
			return "", err
		}
		b.WriteString("## Dependency Tree\n")
		b.WriteString("```text\n")
		b.WriteString(strings.TrimSpace(tb.String()))
		b.WriteString("\n```\n")
	}
	return b.String(), nil
}

func (m *MarkdownGenerator) writePOIs(b *strings.Builder, in ports.RenderInput, collapsible bool) {
	b.WriteString("## Points of Interest\n")
	var rows []string
	tree.Walk(in.Tree, func(n *tree.Node) bool {
		if n.BackReference {
			return true
		}
		for _, p := range n.POIs {
			rows = append(rows, fmt.Sprintf("| `%s` | %s | %s | `%s` | %s |\n",
				n.Name,
				nonEmpty(n.InstalledVersion, "-"),
				p.Kind,
				relPath(in.RootDir, p.Path),
				escapeCell(nonEmpty(detailString(p.Detail), "-")),
			))
		}
		return true
	})
	if len(rows) == 0 {
		b.WriteString("No points of interest detected.\n\n")
		return
	}
	m.writeTableWithCollapse(
		b,
		"Finding details",
		collapsible,
		len(rows) > 10,
		[]string{"| Package | Version | Kind | Path | Detail |\n", "| --- | --- | --- | --- | --- |\n"},
		rows,
	)
}

func (m *MarkdownGenerator) writeIssues(b *strings.Builder, in ports.RenderInput, collapsible bool) {
	b.WriteString("## Node Issues\n")
	nodes := annotatedNodes(in.Tree)
	if len(nodes) == 0 {
		b.WriteString("No node issues detected.\n\n")
		return
	}
	rows := make([]string, 0, len(nodes))
	for _, n := range nodes {
		for _, e := range n.Issues() {
			rows = append(rows, fmt.Sprintf("| `%s` | `%s` | %s | %s |\n", n.Name, nonEmpty(n.VersionRange, "-"), e.Code, escapeCell(e.Summary())))
		}
		if w := n.ResolutionWarning; w != nil {
			rows = append(rows, fmt.Sprintf("| `%s` | `%s` | %s | %s |\n", n.Name, nonEmpty(n.VersionRange, "-"), w.Code, escapeCell(w.Summary())))
		}
	}
	m.writeTableWithCollapse(
		b,
		"Issue details",
		collapsible,
		len(rows) > 15,
		[]string{"| Package | Range | Code | Message |\n", "| --- | --- | --- | --- |\n"},
		rows,
	)
}

func (m *MarkdownGenerator) writeTrend(b *strings.Builder, in ports.RenderInput) {
	t := in.Trend
	b.WriteString("## Changes Since Last Run\n")
	if t.Previous == nil {
		b.WriteString("First recorded run for this project.\n\n")
		return
	}
	b.WriteString("| Metric | Delta |\n")
	b.WriteString("| --- | --- |\n")
	b.WriteString(fmt.Sprintf("| Nodes | %+d |\n", t.DeltaNodes))
	b.WriteString(fmt.Sprintf("| Nodes With Issues | %+d |\n", t.DeltaIssues))
	b.WriteString(fmt.Sprintf("| Points of Interest | %+d |\n\n", t.DeltaPOIs))
	for _, f := range t.NewFindings {
		b.WriteString(fmt.Sprintf("- new: `%s@%s` %s `%s`\n", f.Package, f.Version, f.Kind, f.Path))
	}
	for _, f := range t.GoneFindings {
		b.WriteString(fmt.Sprintf("- gone: `%s@%s` %s `%s`\n", f.Package, f.Version, f.Kind, f.Path))
	}
	if len(t.NewFindings)+len(t.GoneFindings) > 0 {
		b.WriteString("\n")
	}
}

func (m *MarkdownGenerator) writeTableWithCollapse(
	b *strings.Builder,
	summary string,
	collapsible bool,
	collapse bool,
	header []string,
	rows []string,
) {
	if collapsible && collapse {
		b.WriteString("<details>\n")
		b.WriteString("<summary>")
		b.WriteString(summary)
		b.WriteString("</summary>\n\n")
	}
	for _, line := range header {
		b.WriteString(line)
	}
	for _, line := range rows {
		b.WriteString(line)
	}
	b.WriteString("\n")
	if collapsible && collapse {
		b.WriteString("</details>\n\n")
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func nonEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
