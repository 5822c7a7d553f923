package manifest

import "strings"

type Kind string

const (
	KindProd     Kind = "prod"
	KindOptional Kind = "optional"
	KindPeer     Kind = "peer"
	KindDev      Kind = "dev"
)

// DependencyKinds selects which groups beyond production dependencies are read.
type DependencyKinds struct {
	Optional bool
	Dev      bool
	Peer     bool
}

// Descriptor is a declared dependency edge.
type Descriptor struct {
	Name         string
	VersionRange string
	Kind         Kind
}

const aliasPrefix = "npm:"

// ExpectedName is the package name the installed manifest must declare.
// For an npm alias ("npm:real@^1") that is the aliased package, not the key.
func (d Descriptor) ExpectedName() string {
	if real, _, ok := splitAlias(d.VersionRange); ok {
		return real
	}
	return d.Name
}

// Range is the semver range to check the installed version against.
func (d Descriptor) Range() string {
	if _, rng, ok := splitAlias(d.VersionRange); ok {
		return rng
	}
	return d.VersionRange
}

// ValidName reports whether name can only ever address a directory directly
// under node_modules: "pkg" or "@scope/pkg", with no empty, dot-leading or
// backslash-containing segment.
func ValidName(name string) bool {
	if name == "" || len(name) > 214 || strings.ContainsAny(name, "\\\x00") {
		return false
	}
	segments := strings.Split(name, "/")
	switch {
	case len(segments) == 2 && strings.HasPrefix(segments[0], "@"):
		return validSegment(strings.TrimPrefix(segments[0], "@")) && validSegment(segments[1])
	case len(segments) == 1:
		return validSegment(segments[0]) && !strings.HasPrefix(name, "@")
	default:
		return false
	}
}

func validSegment(s string) bool {
	return s != "" && !strings.HasPrefix(s, ".") && strings.TrimSpace(s) == s
}

func splitAlias(value string) (name, rng string, ok bool) {
	if !strings.HasPrefix(value, aliasPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(value, aliasPrefix)
	// The version separator is the last '@' that is not the scope marker.
	at := strings.LastIndex(rest, "@")
	if at <= 0 {
		return rest, "", rest != ""
	}
	return rest[:at], rest[at+1:], true
}

// Descriptors lists production dependencies, then optional, peer and dev
// when enabled, each in declaration order. A name is emitted once, at the
// first enabled group that declares it. Names listed under
// optionalDependencies are always optional, even where npm has copied them
// into dependencies.
func (m *Manifest) Descriptors(kinds DependencyKinds) []Descriptor {
	if m == nil {
		return nil
	}
	optional := make(map[string]string, len(m.OptionalDependencies))
	for _, dep := range m.OptionalDependencies {
		optional[dep.Name] = dep.Range
	}

	groups := []struct {
		kind    Kind
		deps    Dependencies
		enabled bool
	}{
		{KindProd, m.Dependencies, true},
		{KindOptional, m.OptionalDependencies, kinds.Optional},
		{KindPeer, m.PeerDependencies, kinds.Peer},
		{KindDev, m.DevDependencies, kinds.Dev},
	}

	var out []Descriptor
	seen := make(map[string]bool)
	for _, g := range groups {
		if !g.enabled {
			continue
		}
		for _, dep := range g.deps {
			if seen[dep.Name] {
				continue
			}
			desc := Descriptor{Name: dep.Name, VersionRange: dep.Range, Kind: g.kind}
			if rng, ok := optional[dep.Name]; ok {
				if !kinds.Optional {
					continue
				}
				desc.Kind = KindOptional
				desc.VersionRange = rng
			}
			seen[dep.Name] = true
			out = append(out, desc)
		}
	}
	return out
}

// AllowsImplicitGyp reports whether a binding.gyp triggers npm's default
// "node-gyp rebuild" install: no install or preinstall script is declared
// and gypfile is not explicitly false.
func (m *Manifest) AllowsImplicitGyp() bool {
	if m == nil || m.HasInstallHook() {
		return false
	}
	return m.GypFile == nil || *m.GypFile
}

// HasInstallHook reports whether scripts declares an install or preinstall hook.
func (m *Manifest) HasInstallHook() bool {
	if m == nil {
		return false
	}
	_, install := m.Scripts["install"]
	_, pre := m.Scripts["preinstall"]
	return install || pre
}
