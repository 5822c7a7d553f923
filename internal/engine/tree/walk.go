package tree

import "poitree/internal/core/errors"

// Walk visits nodes in pre-order. Returning false from fn skips the node's
// children.
func Walk(root *Node, fn func(n *Node) bool) {
	if root == nil {
		return
	}
	if !fn(root) {
		return
	}
	for _, child := range root.Children {
		Walk(child, fn)
	}
}

// Count returns the number of nodes in the tree, root included.
func Count(root *Node) int {
	n := 0
	Walk(root, func(*Node) bool {
		n++
		return true
	})
	return n
}

// Stats summarises a finished tree.
type Stats struct {
	Nodes          int                      `json:"nodes"`
	Resolved       int                      `json:"resolved"`
	BackReferences int                      `json:"back_references"`
	Truncated      int                      `json:"truncated"`
	Warnings       int                      `json:"warnings"`
	Issues         int                      `json:"issues"`
	Codes          map[errors.ErrorCode]int `json:"codes,omitempty"`
	POIs           map[string]int           `json:"pois,omitempty"`
	TotalPOIs      int                      `json:"total_pois"`
}

// ComputeStats walks the tree once and tallies every annotation.
func ComputeStats(root *Node) Stats {
	s := Stats{
		Codes: make(map[errors.ErrorCode]int),
		POIs:  make(map[string]int),
	}
	Walk(root, func(n *Node) bool {
		s.Nodes++
		if n.IsResolved() {
			s.Resolved++
		}
		if n.BackReference {
			s.BackReferences++
		}
		if n.Truncated {
			s.Truncated++
		}
		for _, e := range []*errors.DomainError{n.ResolutionError, n.ResolutionWarning, n.ScanError} {
			if e != nil {
				s.Codes[e.Code]++
			}
		}
		if n.ResolutionWarning != nil {
			s.Warnings++
		}
		if len(n.Issues()) > 0 {
			s.Issues++
		}
		for _, p := range n.POIs {
			s.POIs[p.Kind.String()]++
			s.TotalPOIs++
		}
		return true
	})
	return s
}
