// Package version provides build and version information for barshelf.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Build information, set via ldflags:
//
//	-X github.com/Aman-CERP/barshelf/pkg/version.Version=$(VERSION)
//	-X github.com/Aman-CERP/barshelf/pkg/version.Commit=$(COMMIT)
//	-X github.com/Aman-CERP/barshelf/pkg/version.Date=$(DATE)
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"

	// GoVersion is the Go version used to build the binary.
	GoVersion = runtime.Version()
)

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// String returns a formatted version string with all build info.
func String() string {
	info := GetInfo()
	return fmt.Sprintf("barshelf %s (commit: %s, built: %s, go: %s, %s/%s)",
		info.Version, info.Commit, info.Date, info.GoVersion, info.OS, info.Arch)
}

// Short returns just the version string.
func Short() string {
	return GetInfo().Version
}

// GetInfo returns structured version information. Binaries installed with
// `go install` carry no ldflags, so the module version and VCS revision
// embedded by the toolchain are used when available.
func GetInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" && len(s.Value) >= 7 {
				info.Commit = s.Value[:7]
			}
		case "vcs.time":
			if info.Date == "unknown" {
				info.Date = s.Value
			}
		}
	}
	return info
}
