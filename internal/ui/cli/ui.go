package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"poitree/internal/core/ports"
	"poitree/internal/engine/tree"
	"poitree/internal/shared/util"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			MarginLeft(2).
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true).
			Render

	docStyle = lipgloss.NewStyle().Margin(1, 2)

	issueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

type item struct {
	title, desc string
	node        *tree.Node
	// file and line locate a finding for the editor jump.
	file string
	line int
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title + i.desc }

type panelMode int

const (
	panelTree panelMode = iota
	panelFindings
)

type model struct {
	treeList    list.Model
	findingList list.Model
	mode        panelMode
	input       ports.RenderInput
	issues      int
	lastUpdate  time.Time
	showTrend   bool
	errText     string

	details      *tree.Node
	editorStatus string
}

type updateMsg struct {
	input  ports.RenderInput
	issues int
	err    error
}

type editorResultMsg struct {
	target string
	err    error
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return handleKeyActions(msg, m)
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		width := msg.Width - h
		height := msg.Height - v - 8
		if height < 5 {
			height = 5
		}
		m.treeList.SetSize(width, height)
		m.findingList.SetSize(width, height)
	case updateMsg:
		if msg.err != nil {
			m.errText = msg.err.Error()
			return m, nil
		}
		m.errText = ""
		m.input = msg.input
		m.issues = msg.issues
		m.lastUpdate = time.Now()
		m.treeList.SetItems(treeItems(msg.input.Tree))
		m.findingList.SetItems(findingItems(msg.input.RootDir, msg.input.Tree))
		if m.details != nil {
			m.details = findNode(msg.input.Tree, m.details)
		}
	case editorResultMsg:
		if msg.err != nil {
			m.editorStatus = statusStyle.Render(fmt.Sprintf("Open failed: %v", msg.err))
		} else {
			m.editorStatus = statusStyle.Render(fmt.Sprintf("Opened: %s", msg.target))
		}
	}

	var cmd tea.Cmd
	if m.mode == panelTree {
		m.treeList, cmd = m.treeList.Update(msg)
	} else {
		m.findingList, cmd = m.findingList.Update(msg)
	}
	return m, cmd
}

func (m model) View() string {
	s := m.input.Stats
	status := statusStyle.Render(fmt.Sprintf("Last update: %v | %d nodes | %d points of interest",
		m.lastUpdate.Format("15:04:05"), s.Nodes, s.TotalPOIs))

	var summary string
	if m.issues == 0 && s.Warnings == 0 {
		summary = successStyle.Render("No issues")
	} else {
		summary = fmt.Sprintf("%s | %s",
			issueStyle.Render(fmt.Sprintf("%d issues", m.issues)),
			warningStyle.Render(fmt.Sprintf("%d warnings", s.Warnings)))
	}

	header := fmt.Sprintf("%s\n%s | %s\n", titleStyle("Package Inspector"), status, summary)
	help := renderHelp(m)

	body := m.treeList.View()
	if m.mode == panelFindings {
		body = m.findingList.View()
	}
	if m.details != nil {
		body += "\n\n" + renderNodeDetails(m.input.RootDir, m.details)
	}
	if m.showTrend {
		body += "\n\n" + renderTrendOverlay(m.input)
	}
	if m.errText != "" {
		body += "\n\n" + issueStyle.Render("Inspection failed: "+m.errText)
	}
	if m.editorStatus != "" {
		body += "\n\n" + m.editorStatus
	}

	return docStyle.Render(header + "\n" + help + "\n\n" + body)
}

func initialModel() model {
	treeList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	treeList.Title = "Dependency Tree"
	treeList.SetShowStatusBar(false)
	treeList.SetFilteringEnabled(true)

	findingList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	findingList.Title = "Findings"
	findingList.SetShowStatusBar(false)
	findingList.SetFilteringEnabled(true)

	return model{
		treeList:    treeList,
		findingList: findingList,
		mode:        panelTree,
		lastUpdate:  time.Now(),
	}
}

// treeItems flattens the tree in pre-order, indenting by depth.
func treeItems(root *tree.Node) []list.Item {
	var items []list.Item
	var visit func(n *tree.Node, depth int)
	visit = func(n *tree.Node, depth int) {
		items = append(items, item{
			title: strings.Repeat("  ", depth) + nodeTitle(n),
			desc:  nodeDescription(n),
			node:  n,
		})
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	if root != nil {
		visit(root, 0)
	}
	return items
}

// findingItems lists node issues first, then points of interest.
// Back-references are skipped for points of interest since the expanded
// occurrence already lists them.
func findingItems(rootDir string, root *tree.Node) []list.Item {
	var issues, pois []list.Item
	tree.Walk(root, func(n *tree.Node) bool {
		for _, e := range n.Issues() {
			it := item{title: fmt.Sprintf("%s  %s", e.Code, n.Name), desc: e.Summary(), node: n}
			if n.IsResolved() {
				it.file = n.ResolvedPath
			}
			issues = append(issues, it)
		}
		if n.BackReference {
			return true
		}
		for _, p := range n.POIs {
			line, _ := strconv.Atoi(p.Detail["line"])
			pois = append(pois, item{
				title: fmt.Sprintf("%s  %s@%s", p.Kind, n.Name, n.InstalledVersion),
				desc:  strings.TrimSpace(relativePath(rootDir, p.Path) + " " + detailPairs(p.Detail)),
				node:  n,
				file:  p.Path,
				line:  line,
			})
		}
		return true
	})
	return append(issues, pois...)
}

func nodeTitle(n *tree.Node) string {
	label := n.Name
	if n.VersionRange != "" {
		label += " " + n.VersionRange
	}
	if n.InstalledVersion != "" && n.InstalledVersion != n.VersionRange {
		label += " => " + n.InstalledVersion
	}
	var tags []string
	if n.BackReference {
		tags = append(tags, "deduped")
	}
	if n.Truncated {
		tags = append(tags, "truncated")
	}
	if len(n.Issues()) > 0 {
		tags = append(tags, "!")
	}
	if len(tags) > 0 {
		label += " (" + strings.Join(tags, ", ") + ")"
	}
	return label
}

func nodeDescription(n *tree.Node) string {
	if e := n.ResolutionError; e != nil {
		return string(e.Code) + ": " + e.Summary()
	}
	parts := []string{fmt.Sprintf("%d points of interest", len(n.POIs))}
	if n.ScanError != nil {
		parts = append(parts, string(n.ScanError.Code))
	}
	if n.ResolutionWarning != nil {
		parts = append(parts, "range mismatch")
	}
	if n.Kind != "" {
		parts = append(parts, string(n.Kind))
	}
	return strings.Join(parts, " | ")
}

// findNode locates the node matching prev's name and path in a fresh tree.
func findNode(root, prev *tree.Node) *tree.Node {
	var found *tree.Node
	tree.Walk(root, func(n *tree.Node) bool {
		if found != nil {
			return false
		}
		if n.Name == prev.Name && n.ResolvedPath == prev.ResolvedPath && n.Depth == prev.Depth {
			found = n
			return false
		}
		return true
	})
	return found
}

func relativePath(root, path string) string {
	if root == "" || path == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func detailPairs(detail map[string]string) string {
	keys := util.SortedStringKeys(detail)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+detail[k])
	}
	return strings.Join(parts, " ")
}
