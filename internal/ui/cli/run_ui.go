package cli

import (
	"context"
	"log/slog"

	"poitree/internal/core/app"
	"poitree/internal/core/ports"

	tea "github.com/charmbracelet/bubbletea"
)

// runUI drives the tree browser from the watch service: every
// re-inspection replaces the displayed tree.
func runUI(ctx context.Context, inspector *app.Inspector, root string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(initialModel(), tea.WithAltScreen())

	watch := inspector.WatchService(root)
	if err := watch.Subscribe(ctx, func(u ports.WatchUpdate) {
		p.Send(updateMsg{input: u.Input, issues: u.Issues, err: u.Err})
	}); err != nil {
		return err
	}
	defer func() {
		if err := watch.Close(); err != nil {
			slog.Warn("failed to close watcher", "error", err)
		}
	}()

	go func() {
		if err := watch.Start(ctx); err != nil {
			p.Send(updateMsg{err: err})
		}
	}()

	_, err := p.Run()
	return err
}
