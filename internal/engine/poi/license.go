package poi

import (
	"bytes"
	"strings"
)

// licensePhrases are fragments that appear in the text of common OSI
// licenses or an SPDX header. Matching is case-insensitive.
var licensePhrases = []string{
	"permission is hereby granted",
	"licensed under",
	"redistribution and use",
	"gnu general public license",
	"gnu lesser general public license",
	"gnu affero general public license",
	"apache license",
	"mozilla public license",
	"eclipse public license",
	"permission to use, copy, modify",
	"free and unencumbered software",
	"mit license",
	"isc license",
	"bsd license",
	"creative commons",
	"public domain",
	"spdx-license-identifier",
}

// sourceExtensions mark files that only share a license file's name, such
// as license.js or license.d.ts.
var sourceExtensions = map[string]bool{
	".js":   true,
	".cjs":  true,
	".mjs":  true,
	".jsx":  true,
	".ts":   true,
	".cts":  true,
	".mts":  true,
	".tsx":  true,
	".json": true,
	".map":  true,
	".node": true,
	".css":  true,
	".wasm": true,
}

const (
	reasonEmpty        = "empty"
	reasonUnrecognised = "no recognizable license text"
)

// licenseSuspicion returns a reason when content does not look like a
// license, or "" when it does.
func licenseSuspicion(content []byte) string {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return reasonEmpty
	}
	lower := strings.ToLower(string(trimmed))
	for _, phrase := range licensePhrases {
		if strings.Contains(lower, phrase) {
			return ""
		}
	}
	return reasonUnrecognised
}
