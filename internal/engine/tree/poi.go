package tree

import (
	"fmt"
	"sort"
)

// POIKind orders findings: NativeBinary sorts first, ChildProcess last.
type POIKind int

const (
	NativeBinary POIKind = iota
	InstallScript
	LicenseFile
	OversizedFile
	ChildProcess
)

var poiKindNames = [...]string{
	NativeBinary:  "NativeBinary",
	InstallScript: "InstallScript",
	LicenseFile:   "LicenseFile",
	OversizedFile: "OversizedFile",
	ChildProcess:  "ChildProcess",
}

// AllPOIKinds lists every kind in rank order.
func AllPOIKinds() []POIKind {
	return []POIKind{NativeBinary, InstallScript, LicenseFile, OversizedFile, ChildProcess}
}

func (k POIKind) String() string {
	if k >= 0 && int(k) < len(poiKindNames) {
		return poiKindNames[k]
	}
	return fmt.Sprintf("POIKind(%d)", int(k))
}

func (k POIKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *POIKind) UnmarshalText(text []byte) error {
	for i, name := range poiKindNames {
		if name == string(text) {
			*k = POIKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown point of interest kind %q", text)
}

// PointOfInterest is a file or trait of an installed package worth review.
// Path is absolute, except for manifest-derived findings which point at
// the package.json that declares them.
type PointOfInterest struct {
	Kind   POIKind
	Path   string
	Detail map[string]string
}

// SortPOIs orders findings by (kind, path), then by detail for findings
// that share both, so output never depends on directory iteration order.
func SortPOIs(pois []PointOfInterest) {
	sort.SliceStable(pois, func(i, j int) bool {
		if pois[i].Kind != pois[j].Kind {
			return pois[i].Kind < pois[j].Kind
		}
		if pois[i].Path != pois[j].Path {
			return pois[i].Path < pois[j].Path
		}
		return pois[i].Detail["hook"] < pois[j].Detail["hook"]
	})
}
