package app

import (
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"time"

	"poitree/internal/core/ports"
	"poitree/internal/data/history"
	"poitree/internal/engine/manifest"
	"poitree/internal/engine/tree"
)

// Report is the result of one inspection.
type Report struct {
	RunID     string
	Root      string
	Tree      *tree.Node
	Stats     tree.Stats
	StartedAt time.Time
	Duration  time.Duration
	Trend     *history.Trend
}

// IssueCount is the number of nodes carrying at least one issue code.
// Resolution warnings and back-references do not count.
func (r *Report) IssueCount() int {
	if r == nil {
		return 0
	}
	return r.Stats.Issues
}

func (r *Report) RenderInput() ports.RenderInput {
	return ports.RenderInput{
		RunID:     r.RunID,
		RootDir:   r.Root,
		Tree:      r.Tree,
		Stats:     r.Stats,
		StartedAt: r.StartedAt,
		Duration:  r.Duration,
		Trend:     r.Trend,
	}
}

// SnapshotFromReport flattens a report into its persisted form. Findings
// reached through several tree positions are stored once.
func SnapshotFromReport(r *Report, rootManifest *manifest.Manifest) history.Snapshot {
	snapshot := history.Snapshot{
		SchemaVersion: history.SchemaVersion,
		RunID:         r.RunID,
		Timestamp:     r.StartedAt,
		NodeCount:     r.Stats.Nodes,
		ResolvedCount: r.Stats.Resolved,
		BackRefCount:  r.Stats.BackReferences,
		IssueCount:    r.Stats.Issues,
		WarningCount:  r.Stats.Warnings,
		POICount:      r.Stats.TotalPOIs,
		Duration:      r.Duration,
	}
	if rootManifest != nil {
		snapshot.RootName = rootManifest.Name
		snapshot.RootVersion = rootManifest.Version
	}

	seen := make(map[history.Finding]bool)
	tree.Walk(r.Tree, func(n *tree.Node) bool {
		for _, p := range n.POIs {
			f := history.Finding{
				Package: n.Name,
				Version: n.InstalledVersion,
				Kind:    p.Kind.String(),
				Path:    relativeTo(r.Root, p.Path),
			}
			if seen[f] {
				continue
			}
			seen[f] = true
			snapshot.Findings = append(snapshot.Findings, f)
		}
		return true
	})
	return snapshot
}

func relativeTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func isNotExist(err error) bool {
	return stderrors.Is(err, fs.ErrNotExist)
}

func isPermission(err error) bool {
	return stderrors.Is(err, fs.ErrPermission)
}
