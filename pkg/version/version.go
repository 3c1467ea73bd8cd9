// Package version holds build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/NERVsystems/poimap/pkg/version.BuildVersion=v1.2.0"
var (
	BuildVersion = "dev"
	BuildCommit  = ""
	BuildDate    = ""
)

func init() {
	if BuildCommit != "" {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			BuildCommit = s.Value
		case "vcs.time":
			if BuildDate == "" {
				BuildDate = s.Value
			}
		}
	}
}

// Info returns the build metadata as a flat map.
func Info() map[string]string {
	return map[string]string{
		"version":    BuildVersion,
		"commit":     BuildCommit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
	}
}

// String formats the build metadata for --version output.
func String() string {
	commit := BuildCommit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if commit == "" {
		commit = "unknown"
	}
	return fmt.Sprintf("poimap %s (commit %s, %s)", BuildVersion, commit, runtime.Version())
}
