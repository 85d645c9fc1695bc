// Package buildinfo holds build-time metadata injected via -ldflags.
package buildinfo

import "fmt"

// Version is the semantic version or tag for this build.
// Inject via: -X github.com/garyellow/visadesk/internal/buildinfo.Version=...
var Version = ""

// Commit is the git commit SHA for this build.
// Inject via: -X github.com/garyellow/visadesk/internal/buildinfo.Commit=...
var Commit = ""

// BuildDate is the RFC3339 build timestamp.
// Inject via: -X github.com/garyellow/visadesk/internal/buildinfo.BuildDate=...
var BuildDate = ""

// String formats the build metadata for `server version`.
func String() string {
	return fmt.Sprintf("visadesk %s (commit %s, built %s)", orDev(Version), orDev(Commit), orDev(BuildDate))
}

func orDev(s string) string {
	if s == "" {
		return "dev"
	}
	return s
}
