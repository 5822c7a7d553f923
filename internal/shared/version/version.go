// Package version carries the build version, set with
// -ldflags "-X poitree/internal/shared/version.Version=...".
package version

var Version = "dev"
