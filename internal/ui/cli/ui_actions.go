package cli

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
)

func handleKeyActions(msg tea.KeyMsg, m model) (tea.Model, tea.Cmd) {
	if m.activeList().FilterState() == list.Filtering {
		return m.updateActiveList(msg)
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "tab":
		if m.mode == panelTree {
			m.mode = panelFindings
		} else {
			m.mode = panelTree
		}
		return m, nil
	case "t":
		m.showTrend = !m.showTrend
		return m, nil
	case "esc", "backspace":
		if m.details != nil {
			m.details = nil
			return m, nil
		}
	case "enter":
		if it, ok := m.activeList().SelectedItem().(item); ok && it.node != nil {
			m.details = it.node
		}
		return m, nil
	case "o":
		if m.mode != panelFindings {
			return m, nil
		}
		it, ok := m.findingList.SelectedItem().(item)
		if !ok || it.file == "" {
			m.editorStatus = statusStyle.Render("No file to open.")
			return m, nil
		}
		return m, openEditorCmd(it.file, it.line)
	}

	return m.updateActiveList(msg)
}

func (m model) activeList() *list.Model {
	if m.mode == panelFindings {
		return &m.findingList
	}
	return &m.treeList
}

func (m model) updateActiveList(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.mode == panelFindings {
		m.findingList, cmd = m.findingList.Update(msg)
	} else {
		m.treeList, cmd = m.treeList.Update(msg)
	}
	return m, cmd
}

func openEditorCmd(file string, line int) tea.Cmd {
	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	if line < 1 {
		line = 1
	}
	args := []string{file}
	if strings.Contains(editor, "vim") || strings.Contains(editor, "nvim") || strings.HasSuffix(editor, "vi") {
		args = []string{fmt.Sprintf("+%d", line), file}
	}
	cmd := exec.Command(editor, args...)
	label := fmt.Sprintf("%s:%d", file, line)
	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		return editorResultMsg{target: label, err: err}
	})
}
