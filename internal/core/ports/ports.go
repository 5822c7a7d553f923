package ports

import (
	"context"
	"io"
	"time"

	"poitree/internal/data/history"
	"poitree/internal/engine/manifest"
	"poitree/internal/engine/tree"
)

// Resolver locates installed packages for the tree builder.
type Resolver interface {
	Resolve(ctx context.Context, requesterDir string, desc manifest.Descriptor) (tree.Resolution, error)
}

// Scanner attaches points of interest to every resolved node of a tree.
type Scanner interface {
	ScanTree(ctx context.Context, root *tree.Node) error
}

// HistoryStore abstracts snapshot persistence for trend workflows.
type HistoryStore interface {
	SaveSnapshot(projectKey string, snapshot history.Snapshot) error
	LoadSnapshots(projectKey string, since time.Time) ([]history.Snapshot, error)
}

// TrendRecorder is an optional HistoryStore extension that saves a snapshot
// and compares it with the previous run in one step.
type TrendRecorder interface {
	Record(projectKey string, snapshot history.Snapshot) (history.Trend, error)
}

// RenderInput is everything a renderer may show for one run.
type RenderInput struct {
	RunID     string
	RootDir   string
	Tree      *tree.Node
	Stats     tree.Stats
	StartedAt time.Time
	Duration  time.Duration
	Trend     *history.Trend
}

// Renderer writes one output format.
type Renderer interface {
	Name() string
	Render(w io.Writer, in RenderInput) error
}

// WatchUpdate is emitted after every re-inspection in watch mode.
type WatchUpdate struct {
	Input  RenderInput
	Issues int
	Paths  []string
	Err    error
}

// WatchService exposes watch lifecycle and updates for driving adapters.
type WatchService interface {
	Start(ctx context.Context) error
	Subscribe(ctx context.Context, handler func(WatchUpdate)) error
	Close() error
}
