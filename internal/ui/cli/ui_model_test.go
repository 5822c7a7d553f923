package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"poitree/internal/core/errors"
	"poitree/internal/core/ports"
	"poitree/internal/data/history"
	"poitree/internal/engine/manifest"
	"poitree/internal/engine/tree"

	tea "github.com/charmbracelet/bubbletea"
)

func sampleUpdate() updateMsg {
	root := "/work/app"
	a := &tree.Node{
		Name: "a", VersionRange: "^1.0.0", InstalledVersion: "1.1.0", Kind: manifest.KindProd, Depth: 1,
		ResolvedPath: filepath.Join(root, "node_modules", "a"),
		POIs: []tree.PointOfInterest{{
			Kind:   tree.ChildProcess,
			Path:   filepath.Join(root, "node_modules", "a", "index.js"),
			Detail: map[string]string{"module": "child_process", "line": "3"},
		}},
	}
	ghost := &tree.Node{
		Name: "ghost", VersionRange: "^2.0.0", Kind: manifest.KindProd, Depth: 1,
		ResolutionError: errors.NewNode(errors.CodeNotInstalled, "no installed directory found", nil),
	}
	app := &tree.Node{
		Name: "app", VersionRange: "1.0.0", InstalledVersion: "1.0.0", Kind: manifest.KindProd,
		ResolvedPath: root,
		Children:     []*tree.Node{a, ghost},
	}
	return updateMsg{
		input:  ports.RenderInput{RootDir: root, Tree: app, Stats: tree.ComputeStats(app)},
		issues: 1,
	}
}

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	updated, _ := m.Update(msg)
	state, ok := updated.(model)
	if !ok {
		t.Fatalf("expected model type, got %T", updated)
	}
	return state
}

func TestModel_UpdatePopulatesPanels(t *testing.T) {
	m := update(t, initialModel(), sampleUpdate())

	if got := len(m.treeList.Items()); got != 3 {
		t.Fatalf("expected 3 tree items, got %d", got)
	}
	if got := len(m.findingList.Items()); got != 2 {
		t.Fatalf("expected 2 findings (1 issue, 1 POI), got %d", got)
	}
	first := m.findingList.Items()[0].(item)
	if !strings.HasPrefix(first.title, "NOT_INSTALLED") {
		t.Errorf("issues should be listed first, got %q", first.title)
	}
	poi := m.findingList.Items()[1].(item)
	if poi.line != 3 || !strings.HasSuffix(poi.file, "index.js") {
		t.Errorf("unexpected POI target: %+v", poi)
	}
	child := m.treeList.Items()[1].(item)
	if child.title != "  a ^1.0.0 => 1.1.0" {
		t.Errorf("unexpected tree title %q", child.title)
	}

	view := m.View()
	for _, want := range []string{"Package Inspector", "1 issues", "3 nodes"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_PanelsDetailsAndTrend(t *testing.T) {
	m := update(t, initialModel(), sampleUpdate())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.details == nil || m.details.Name != "app" {
		t.Fatalf("expected details for the selected root, got %+v", m.details)
	}
	if !strings.Contains(m.View(), "Package: app") {
		t.Error("details not rendered")
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.details != nil {
		t.Fatal("expected details to close on esc")
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.mode != panelFindings {
		t.Fatalf("expected findings panel after tab, got %v", m.mode)
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'t'}})
	if !m.showTrend || !strings.Contains(m.View(), "Trend overlay unavailable") {
		t.Fatal("expected trend overlay toggled on without history")
	}

	msg := sampleUpdate()
	msg.input.Trend = &history.Trend{
		Previous:    &history.Snapshot{Timestamp: time.Now().Add(-2 * time.Hour)},
		DeltaIssues: 1,
	}
	m = update(t, m, msg)
	if !strings.Contains(m.View(), "Issues: +1") {
		t.Errorf("expected trend deltas in view:\n%s", m.View())
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.mode != panelTree {
		t.Fatalf("expected tree panel after second tab, got %v", m.mode)
	}
}

func TestModel_ErrorKeepsLastTree(t *testing.T) {
	m := update(t, initialModel(), sampleUpdate())
	m = update(t, m, updateMsg{err: fmt.Errorf("boom")})

	if len(m.treeList.Items()) != 3 {
		t.Fatalf("failed run should keep the previous tree, got %d items", len(m.treeList.Items()))
	}
	if !strings.Contains(m.View(), "Inspection failed: boom") {
		t.Error("expected error in view")
	}

	m = update(t, m, sampleUpdate())
	if m.errText != "" {
		t.Errorf("successful run should clear the error, got %q", m.errText)
	}
}

func TestModel_OpenWithoutTarget(t *testing.T) {
	m := update(t, initialModel(), sampleUpdate())
	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})

	// The first finding is NOT_INSTALLED on an unresolved node: no file.
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'o'}})
	if !strings.Contains(m.editorStatus, "No file to open.") {
		t.Fatalf("expected no-target status, got %q", m.editorStatus)
	}
}
