package version

import (
	"fmt"

	"golang.org/x/mod/semver"
)

// set by goreleaser via ldflags
var (
	Version     = "v0.0.0-dev"
	GitCommit   = "unknown"
	BuildDate   = "unknown"
	FullVersion = fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate)
)

// CatalogFormat is the current major version of the track catalog file format.
const CatalogFormat = "v1"

// SupportsCatalogFormat reports whether a catalog declaring format v can be read.
// An empty value is treated as the current format.
func SupportsCatalogFormat(v string) bool {
	if v == "" {
		return true
	}
	return semver.IsValid(v) && semver.Major(v) == CatalogFormat
}
