// Package tree holds the annotated dependency tree and the builder that
// expands it level by level.
package tree

import (
	"poitree/internal/core/errors"
	"poitree/internal/engine/manifest"
)

// Node is one logical dependency edge. Each stage owns a disjoint set of
// fields: the builder owns the shape (Children, BackReference, Truncated),
// the resolver owns ResolvedPath and the resolution annotations, and the
// scanner owns POIs and ScanError.
type Node struct {
	Name         string
	VersionRange string
	Kind         manifest.Kind
	Depth        int

	ResolvedPath      string
	InstalledVersion  string
	ResolutionError   *errors.DomainError
	ResolutionWarning *errors.DomainError

	Children      []*Node
	BackReference bool
	Truncated     bool

	POIs      []PointOfInterest
	ScanError *errors.DomainError
}

// IsResolved reports whether the node points at an installed directory.
func (n *Node) IsResolved() bool {
	return n != nil && n.ResolvedPath != ""
}

// Issues returns the node-local annotations that count as issues.
func (n *Node) Issues() []*errors.DomainError {
	var out []*errors.DomainError
	for _, e := range []*errors.DomainError{n.ResolutionError, n.ScanError} {
		if e != nil && errors.IsIssue(e.Code) {
			out = append(out, e)
		}
	}
	return out
}

// Resolution is what a Resolver reports for one descriptor.
type Resolution struct {
	Path     string
	Version  string
	Manifest *manifest.Manifest
	Err      *errors.DomainError
	Warning  *errors.DomainError
}
