// Package manifest reads package.json files into ordered dependency
// descriptors.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"poitree/internal/core/errors"
	"poitree/internal/data/fsys"
)

const FileName = "package.json"

// Manifest is the subset of package.json the pipeline reads.
type Manifest struct {
	Name                 string       `json:"name"`
	Version              string       `json:"version"`
	Scripts              Scripts      `json:"scripts"`
	Dependencies         Dependencies `json:"dependencies"`
	OptionalDependencies Dependencies `json:"optionalDependencies"`
	DevDependencies      Dependencies `json:"devDependencies"`
	PeerDependencies     Dependencies `json:"peerDependencies"`
	GypFile              *bool        `json:"gypfile"`
}

// Dependency is one entry of a dependency object, kept in file order.
type Dependency struct {
	Name  string
	Range string
}

// Dependencies decodes a JSON object of strings without losing key order.
type Dependencies []Dependency

func (d *Dependencies) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = nil
		return nil
	}
	pairs, err := decodeStringObject(data)
	if err != nil {
		return err
	}
	out := make(Dependencies, 0, len(pairs))
	seen := make(map[string]int, len(pairs))
	for _, p := range pairs {
		// Later duplicates win, as with a plain JSON object, but keep the first position.
		if idx, ok := seen[p[0]]; ok {
			out[idx].Range = p[1]
			continue
		}
		seen[p[0]] = len(out)
		out = append(out, Dependency{Name: p[0], Range: p[1]})
	}
	*d = out
	return nil
}

// Scripts maps lifecycle hooks to their command text. Non-string values are
// ignored rather than rejected; npm only runs string scripts.
type Scripts map[string]string

func (s *Scripts) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Scripts, len(raw))
	for k, v := range raw {
		var text string
		if json.Unmarshal(v, &text) == nil {
			out[k] = text
		}
	}
	*s = out
	return nil
}

// Parse decodes package.json bytes. Any syntax or shape error is reported as
// INVALID_MANIFEST.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidManifest, "cannot parse package.json")
	}
	return &m, nil
}

// Read loads <dir>/package.json. Filesystem errors are returned unwrapped so
// callers can test for os.ErrNotExist.
func Read(ctx context.Context, fs fsys.FileSystem, dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := fs.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, path)
	}
	return m, nil
}

func decodeStringObject(data []byte) ([][2]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var pairs [][2]string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected string key, got %v", keyTok)
		}
		valTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		val, ok := valTok.(string)
		if !ok {
			return nil, fmt.Errorf("dependency %q: expected string range, got %v", key, valTok)
		}
		pairs = append(pairs, [2]string{key, val})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return pairs, nil
}
