package formats

import (
	"encoding/json"
	"io"
	"time"

	"poitree/internal/core/errors"
	"poitree/internal/core/ports"
	"poitree/internal/data/history"
	"poitree/internal/engine/tree"
	"poitree/internal/shared/version"
)

// JSONRenderer writes the whole annotated tree. Paths are relative to the
// root so reports are stable across checkouts.
type JSONRenderer struct{}

func (r *JSONRenderer) Name() string { return FormatJSON }

type jsonReport struct {
	Tool      string         `json:"tool"`
	Version   string         `json:"version"`
	RunID     string         `json:"run_id,omitempty"`
	Root      string         `json:"root"`
	StartedAt time.Time      `json:"started_at"`
	Duration  string         `json:"duration"`
	Stats     tree.Stats     `json:"stats"`
	Tree      *jsonNode      `json:"tree"`
	Trend     *history.Trend `json:"trend,omitempty"`
}

type jsonNode struct {
	Name              string      `json:"name"`
	VersionRange      string      `json:"version_range,omitempty"`
	Kind              string      `json:"kind,omitempty"`
	ResolvedPath      *string     `json:"resolved_path"`
	InstalledVersion  string      `json:"installed_version,omitempty"`
	BackReference     bool        `json:"back_reference,omitempty"`
	Truncated         bool        `json:"truncated,omitempty"`
	ResolutionError   *jsonError  `json:"resolution_error,omitempty"`
	ResolutionWarning *jsonError  `json:"resolution_warning,omitempty"`
	ScanError         *jsonError  `json:"scan_error,omitempty"`
	POIs              []jsonPOI   `json:"pois"`
	Children          []*jsonNode `json:"children"`
}

type jsonPOI struct {
	Kind   tree.POIKind      `json:"kind"`
	Path   string            `json:"path"`
	Detail map[string]string `json:"detail,omitempty"`
}

type jsonError struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

func (r *JSONRenderer) Render(w io.Writer, in ports.RenderInput) error {
	out := jsonReport{
		Tool:      "poitree",
		Version:   version.Version,
		RunID:     in.RunID,
		Root:      in.RootDir,
		StartedAt: in.StartedAt,
		Duration:  in.Duration.String(),
		Stats:     in.Stats,
		Tree:      toJSONNode(in.RootDir, in.Tree),
		Trend:     in.Trend,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func toJSONNode(root string, n *tree.Node) *jsonNode {
	if n == nil {
		return nil
	}
	out := &jsonNode{
		Name:              n.Name,
		VersionRange:      n.VersionRange,
		Kind:              string(n.Kind),
		InstalledVersion:  n.InstalledVersion,
		BackReference:     n.BackReference,
		Truncated:         n.Truncated,
		ResolutionError:   toJSONError(n.ResolutionError),
		ResolutionWarning: toJSONError(n.ResolutionWarning),
		ScanError:         toJSONError(n.ScanError),
		POIs:              make([]jsonPOI, 0, len(n.POIs)),
		Children:          make([]*jsonNode, 0, len(n.Children)),
	}
	if n.IsResolved() {
		rel := relPath(root, n.ResolvedPath)
		out.ResolvedPath = &rel
	}
	for _, p := range n.POIs {
		out.POIs = append(out.POIs, jsonPOI{Kind: p.Kind, Path: relPath(root, p.Path), Detail: p.Detail})
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, toJSONNode(root, c))
	}
	return out
}

func toJSONError(e *errors.DomainError) *jsonError {
	if e == nil {
		return nil
	}
	return &jsonError{Code: e.Code, Message: e.Summary()}
}
