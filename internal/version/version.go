// Package version exposes the build metadata stamped in via ldflags.
//
// Release builds pass -X flags for each variable, for example:
//
//	-X github.com/rolewatch/rolewatch-api/internal/version.Version=1.4.0
//
// A plain `go build` serves the zero values, which mark a dev build.
package version

import (
	"fmt"
	"runtime"
)

// Set by the linker; strings because -X can only set strings.
var (
	Version = "0.0.0-dev"
	Commit  = "unknown"
	Date    = "unknown"
	Dirty   = "false" // "true" when the tree had uncommitted changes
)

// Info is a point-in-time snapshot of the build metadata, shaped for JSON.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Dirty     bool   `json:"dirty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get snapshots the stamped variables plus the runtime's own facts.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		Dirty:     Dirty == "true",
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String formats the full build line used in startup logs.
func (i Info) String() string {
	commit := i.Commit
	if i.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s) built %s", i.Version, commit, i.Date)
}

// Short is just the version, with a -dirty marker when relevant. The
// X-API-Version header and the OpenAPI document carry this form.
func (i Info) Short() string {
	if i.Dirty {
		return i.Version + "-dirty"
	}
	return i.Version
}
