package formats

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"poitree/internal/core/errors"
	"poitree/internal/core/ports"
	"poitree/internal/engine/manifest"
	"poitree/internal/engine/tree"
	"poitree/internal/shared/version"
)

// SARIF v2.1.0 schema: https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json

const (
	sarifSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
	sarifVersion = "2.1.0"
)

// sarifReport is the top-level SARIF document.
type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	ShortDescription sarifMessage           `json:"shortDescription"`
	DefaultConfig    sarifRuleDefaultConfig `json:"defaultConfiguration"`
}

type sarifRuleDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI       string `json:"uri"`
	URIBaseID string `json:"uriBaseId"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine,omitempty"`
	StartColumn int `json:"startColumn,omitempty"`
}

type ruleDef struct {
	id    string
	name  string
	text  string
	level string
}

var poiRules = map[tree.POIKind]ruleDef{
	tree.NativeBinary:  {"POI001", "NativeBinary", "Package ships a compiled native addon.", "warning"},
	tree.InstallScript: {"POI002", "InstallScript", "Package runs a script at install time.", "warning"},
	tree.LicenseFile:   {"POI003", "SuspectLicenseFile", "License file is empty or has no recognizable license text.", "note"},
	tree.OversizedFile: {"POI004", "OversizedFile", "File exceeds the configured size threshold.", "note"},
	tree.ChildProcess:  {"POI005", "ChildProcess", "JavaScript source loads the child_process module.", "warning"},
}

var issueRules = map[errors.ErrorCode]ruleDef{
	errors.CodeInvalidManifest:   {"PKG001", "InvalidManifest", "Installed package.json could not be read or parsed.", "error"},
	errors.CodeNotInstalled:      {"PKG002", "NotInstalled", "Declared dependency has no installed directory.", "warning"},
	errors.CodeResolutionWarning: {"PKG003", "VersionRangeMismatch", "Installed version does not satisfy the declared range.", "note"},
	errors.CodeResolutionTimeout: {"PKG004", "ResolutionTimeout", "Locating the package exceeded the per-operation timeout.", "warning"},
	errors.CodeScanError:         {"PKG005", "ScanError", "A filesystem error stopped the package scan.", "warning"},
	errors.CodeScanTimeout:       {"PKG006", "ScanTimeout", "Scanning the package exceeded the per-operation timeout.", "warning"},
}

// SARIFRenderer emits one result per finding and per node annotation. URIs
// are relative to the inspected root; absolute paths are never included so
// that reports are safe to share.
type SARIFRenderer struct{}

func (r *SARIFRenderer) Name() string { return FormatSARIF }

func (r *SARIFRenderer) Render(w io.Writer, in ports.RenderInput) error {
	data, err := GenerateSARIF(in)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// GenerateSARIF builds a SARIF v2.1.0 document. Back-references repeat the
// findings of the expanded occurrence and are skipped.
func GenerateSARIF(in ports.RenderInput) ([]byte, error) {
	usedPOI := make(map[tree.POIKind]bool)
	usedIssue := make(map[errors.ErrorCode]bool)
	results := make([]sarifResult, 0)

	tree.Walk(in.Tree, func(n *tree.Node) bool {
		for _, e := range []*errors.DomainError{n.ResolutionError, n.ResolutionWarning, n.ScanError} {
			if e == nil {
				continue
			}
			rule, ok := issueRules[e.Code]
			if !ok {
				continue
			}
			usedIssue[e.Code] = true
			result := sarifResult{
				RuleID:  rule.id,
				Level:   rule.level,
				Message: sarifMessage{Text: fmt.Sprintf("%s (%s): %s", n.Name, nonEmpty(n.VersionRange, "*"), e.Summary())},
			}
			if n.IsResolved() {
				result.Locations = []sarifLocation{fileLocation(in.RootDir, filepath.Join(n.ResolvedPath, manifest.FileName), 0)}
			}
			results = append(results, result)
		}

		if n.BackReference {
			return true
		}
		for _, p := range n.POIs {
			rule, ok := poiRules[p.Kind]
			if !ok {
				continue
			}
			usedPOI[p.Kind] = true
			msg := fmt.Sprintf("%s@%s: %s", n.Name, nonEmpty(n.InstalledVersion, "?"), p.Kind)
			if d := detailString(p.Detail); d != "" {
				msg += " (" + d + ")"
			}
			line, _ := strconv.Atoi(p.Detail["line"])
			results = append(results, sarifResult{
				RuleID:    rule.id,
				Level:     rule.level,
				Message:   sarifMessage{Text: msg},
				Locations: []sarifLocation{fileLocation(in.RootDir, p.Path, line)},
			})
		}
		return true
	})

	report := sarifReport{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{
			{
				Tool: sarifTool{
					Driver: sarifDriver{
						Name:    "poitree",
						Version: version.Version,
						Rules:   buildSARIFRules(usedPOI, usedIssue),
					},
				},
				Results: results,
			},
		},
	}

	return json.MarshalIndent(report, "", "  ")
}

// buildSARIFRules returns only the rules that are relevant for the given
// findings, POI rules first, each group in a fixed order.
func buildSARIFRules(pois map[tree.POIKind]bool, issues map[errors.ErrorCode]bool) []sarifRule {
	rules := make([]sarifRule, 0, len(pois)+len(issues))
	for _, kind := range tree.AllPOIKinds() {
		if pois[kind] {
			rules = append(rules, toSARIFRule(poiRules[kind]))
		}
	}
	for _, code := range []errors.ErrorCode{
		errors.CodeInvalidManifest,
		errors.CodeNotInstalled,
		errors.CodeResolutionWarning,
		errors.CodeResolutionTimeout,
		errors.CodeScanError,
		errors.CodeScanTimeout,
	} {
		if issues[code] {
			rules = append(rules, toSARIFRule(issueRules[code]))
		}
	}
	return rules
}

func toSARIFRule(rule ruleDef) sarifRule {
	return sarifRule{
		ID:               rule.id,
		Name:             rule.name,
		ShortDescription: sarifMessage{Text: rule.text},
		DefaultConfig:    sarifRuleDefaultConfig{Level: rule.level},
	}
}

func fileLocation(root, path string, line int) sarifLocation {
	loc := sarifLocation{
		PhysicalLocation: sarifPhysicalLocation{
			ArtifactLocation: sarifArtifactLocation{
				URI:       relPath(root, path),
				URIBaseID: "%SRCROOT%",
			},
		},
	}
	if line > 0 {
		loc.PhysicalLocation.Region = &sarifRegion{StartLine: line}
	}
	return loc
}
