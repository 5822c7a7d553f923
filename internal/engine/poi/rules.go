package poi

import (
	"path/filepath"
	"strconv"
	"strings"

	"poitree/internal/engine/manifest"
	"poitree/internal/engine/tree"

	"github.com/dustin/go-humanize"
)

const (
	DefaultOversizedBytes = 10 << 20
	DefaultMaxParseBytes  = 1 << 20
	implicitGypScript     = "node-gyp rebuild"
	// BindingGyp at a package root makes npm run node-gyp on install.
	BindingGyp = "binding.gyp"
)

// Rules configures the classifiers applied to each package directory.
type Rules struct {
	OversizedBytes   int64
	NativeExtensions []string
	InstallHooks     []string
	LicenseGlobs     []string
	ProcessModules   []string
	JavaScript       bool
	MaxParseBytes    int64
}

func DefaultRules() Rules {
	return Rules{
		OversizedBytes:   DefaultOversizedBytes,
		NativeExtensions: []string{".node"},
		InstallHooks:     []string{"preinstall", "install", "postinstall"},
		LicenseGlobs:     []string{"licen[cs]e*", "copying*", "unlicen[cs]e*"},
		ProcessModules:   []string{"child_process", "node:child_process"},
		JavaScript:       true,
		MaxParseBytes:    DefaultMaxParseBytes,
	}
}

func sizeDetail(size int64) map[string]string {
	return map[string]string{
		"size":  humanize.IBytes(uint64(size)),
		"bytes": strconv.FormatInt(size, 10),
	}
}

func nativeBinary(path string, size int64) tree.PointOfInterest {
	return tree.PointOfInterest{Kind: tree.NativeBinary, Path: path, Detail: sizeDetail(size)}
}

func oversizedFile(path string, size, threshold int64) tree.PointOfInterest {
	detail := sizeDetail(size)
	detail["threshold"] = humanize.IBytes(uint64(threshold))
	return tree.PointOfInterest{Kind: tree.OversizedFile, Path: path, Detail: detail}
}

func licenseFile(path, reason string) tree.PointOfInterest {
	return tree.PointOfInterest{Kind: tree.LicenseFile, Path: path, Detail: map[string]string{"reason": reason}}
}

func childProcess(path string, imp processImport) tree.PointOfInterest {
	return tree.PointOfInterest{
		Kind: tree.ChildProcess,
		Path: path,
		Detail: map[string]string{
			"module": imp.module,
			"line":   strconv.Itoa(imp.line),
		},
	}
}

// installScripts reports the lifecycle hooks npm runs at install time. The
// findings point at the package.json that declares them.
func installScripts(dir string, m *manifest.Manifest, hooks []string, hasGyp bool) []tree.PointOfInterest {
	if m == nil {
		return nil
	}
	manifestPath := filepath.Join(dir, manifest.FileName)
	var out []tree.PointOfInterest
	for _, hook := range hooks {
		script, ok := m.Scripts[hook]
		if !ok {
			continue
		}
		out = append(out, tree.PointOfInterest{
			Kind:   tree.InstallScript,
			Path:   manifestPath,
			Detail: map[string]string{"hook": hook, "script": script},
		})
	}
	if hasGyp && m.AllowsImplicitGyp() {
		out = append(out, tree.PointOfInterest{
			Kind: tree.InstallScript,
			Path: manifestPath,
			Detail: map[string]string{
				"hook":     "install",
				"script":   implicitGypScript,
				"implicit": "true",
			},
		})
	}
	return out
}

func hasExtension(name string, exts map[string]bool) bool {
	return exts[strings.ToLower(filepath.Ext(name))]
}
