package history

import "time"

const SchemaVersion = 1

// Snapshot is the persisted summary of one inspection run.
type Snapshot struct {
	SchemaVersion int           `json:"schema_version"`
	RunID         string        `json:"run_id"`
	ProjectKey    string        `json:"project_key"`
	Timestamp     time.Time     `json:"timestamp"`
	RootName      string        `json:"root_name"`
	RootVersion   string        `json:"root_version"`
	NodeCount     int           `json:"node_count"`
	ResolvedCount int           `json:"resolved_count"`
	BackRefCount  int           `json:"back_reference_count"`
	IssueCount    int           `json:"issue_count"`
	WarningCount  int           `json:"warning_count"`
	POICount      int           `json:"poi_count"`
	Duration      time.Duration `json:"duration"`
	Findings      []Finding     `json:"findings,omitempty"`
}

// Finding identifies one point of interest across runs. Path is relative
// to the inspected root so snapshots of a moved checkout still compare.
type Finding struct {
	Package string `json:"package"`
	Version string `json:"version"`
	Kind    string `json:"kind"`
	Path    string `json:"path"`
}

func (f Finding) key() string {
	return f.Kind + "\x00" + f.Package + "\x00" + f.Version + "\x00" + f.Path
}

// Trend compares the latest run with the one before it.
type Trend struct {
	Previous     *Snapshot `json:"previous,omitempty"`
	Current      Snapshot  `json:"current"`
	DeltaNodes   int       `json:"delta_nodes"`
	DeltaIssues  int       `json:"delta_issues"`
	DeltaPOIs    int       `json:"delta_pois"`
	NewFindings  []Finding `json:"new_findings,omitempty"`
	GoneFindings []Finding `json:"gone_findings,omitempty"`
}
