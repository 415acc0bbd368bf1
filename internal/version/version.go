// Package version exposes build metadata injected through -ldflags.
package version

import "strings"

// Overridden at release time, e.g.
//
//	go build -ldflags "-X github.com/halcyonworks/tempo/internal/version.Version=v0.3.0"
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the version, appending commit and build date only when a
// release build injected them.
func String() string {
	out := strings.TrimSpace(Version)
	if out == "" {
		out = "dev"
	}
	if commit := strings.TrimSpace(Commit); commit != "" && commit != "none" {
		out += " commit=" + commit
	}
	if date := strings.TrimSpace(Date); date != "" && date != "unknown" {
		out += " date=" + date
	}
	return out
}
