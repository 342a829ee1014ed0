// Package version wraps github.com/soulteary/version-kit, exposing build
// metadata injected at link time via a bare "var version string" for
// -ldflags to set.
package version

import (
	versionkit "github.com/soulteary/version-kit"
)

// These are meant to be overridden via:
//
//	go build -ldflags "-X github.com/distrocache/distrocache/internal/version.version=1.2.3 ..."
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// Info is the process's build metadata snapshot.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// Current returns the build metadata for the running binary, sourced
// through version-kit's build-info resolver.
func Current() Info {
	bi := versionkit.Resolve(versionkit.Overrides{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
	})
	return Info{
		Version:   bi.Version,
		Commit:    bi.Commit,
		BuildDate: bi.BuildDate,
		GoVersion: bi.GoVersion,
	}
}

// String renders the one-line form logged at startup.
func (i Info) String() string {
	return i.Version + " (" + i.Commit + ", " + i.BuildDate + ")"
}
