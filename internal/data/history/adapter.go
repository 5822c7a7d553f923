package history

import (
	"fmt"
	"time"
)

// Adapter bridges Store to the core HistoryStore port.
type Adapter struct {
	store *Store
}

func NewAdapter(store *Store) *Adapter {
	return &Adapter{store: store}
}

func (a *Adapter) SaveSnapshot(projectKey string, snapshot Snapshot) error {
	return a.store.SaveSnapshot(projectKey, snapshot)
}

func (a *Adapter) LoadSnapshots(projectKey string, since time.Time) ([]Snapshot, error) {
	return a.store.LoadSnapshots(projectKey, since)
}

// Record saves snapshot and returns its trend against the project's
// previous run.
func (a *Adapter) Record(projectKey string, snapshot Snapshot) (Trend, error) {
	existing, err := a.store.LoadSnapshots(projectKey, time.Time{})
	if err != nil {
		return Trend{}, err
	}

	var previous *Snapshot
	if n := len(existing); n > 0 {
		prev := existing[n-1]
		findings, err := a.store.LoadFindings(prev.RunID)
		if err != nil {
			return Trend{}, fmt.Errorf("load previous findings: %w", err)
		}
		prev.Findings = findings
		previous = &prev
	}

	if err := a.store.SaveSnapshot(projectKey, snapshot); err != nil {
		return Trend{}, err
	}
	return BuildTrend(previous, snapshot), nil
}

func (a *Adapter) Close() error {
	return a.store.Close()
}
