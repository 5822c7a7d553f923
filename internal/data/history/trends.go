package history

import "sort"

// BuildTrend compares current against previous, which may be nil for the
// first run of a project. Both snapshots must carry their findings.
func BuildTrend(previous *Snapshot, current Snapshot) Trend {
	trend := Trend{Previous: previous, Current: current}
	if previous == nil {
		trend.NewFindings = append([]Finding(nil), current.Findings...)
		sortFindings(trend.NewFindings)
		return trend
	}

	trend.DeltaNodes = current.NodeCount - previous.NodeCount
	trend.DeltaIssues = current.IssueCount - previous.IssueCount
	trend.DeltaPOIs = current.POICount - previous.POICount

	before := make(map[string]bool, len(previous.Findings))
	for _, f := range previous.Findings {
		before[f.key()] = true
	}
	after := make(map[string]bool, len(current.Findings))
	for _, f := range current.Findings {
		after[f.key()] = true
		if !before[f.key()] {
			trend.NewFindings = append(trend.NewFindings, f)
		}
	}
	for _, f := range previous.Findings {
		if !after[f.key()] {
			trend.GoneFindings = append(trend.GoneFindings, f)
		}
	}
	sortFindings(trend.NewFindings)
	sortFindings(trend.GoneFindings)
	return trend
}

func sortFindings(findings []Finding) {
	sort.Slice(findings, func(i, j int) bool {
		return findings[i].key() < findings[j].key()
	})
}
