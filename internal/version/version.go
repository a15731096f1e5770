// Package version reports build metadata stamped with -ldflags, falling back
// to the VCS settings the Go toolchain records in the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// These variables are set at build time using -ldflags, e.g.
//
//	-X github.com/conneroisu/markupc/internal/version.Version=v1.0.0
var (
	Version   = "dev"
	GitCommit = "unknown"
	// BuildTime is RFC3339.
	BuildTime = "unknown"
	BuildUser = "unknown"
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime time.Time `json:"build_time"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
	BuildUser string    `json:"build_user,omitempty"`
	Dirty     bool      `json:"dirty"`
}

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// vcsInfo is what the toolchain embeds for builds inside a repository.
type vcsInfo struct {
	module   string
	revision string
	time     string
	modified bool
}

func readVCS() vcsInfo {
	var v vcsInfo
	info, ok := readBuildInfo()
	if !ok {
		return v
	}
	if info.Main.Version != "(devel)" {
		v.module = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			v.revision = s.Value
		case "vcs.time":
			v.time = s.Value
		case "vcs.modified":
			v.modified = s.Value == "true"
		}
	}
	return v
}

func stamped(s string) bool {
	return s != "" && s != "unknown" && s != "dev"
}

// GetBuildInfo returns comprehensive build information. Stamped values win
// over VCS settings.
func GetBuildInfo() *BuildInfo {
	vcs := readVCS()

	info := &BuildInfo{
		Version:   "dev",
		GitCommit: "unknown",
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		BuildUser: BuildUser,
		Dirty:     vcs.modified,
	}

	switch {
	case stamped(Version):
		info.Version = Version
	case vcs.module != "":
		info.Version = vcs.module
	case len(vcs.revision) >= 7:
		info.Version = "dev-" + vcs.revision[:7]
	}

	if stamped(GitCommit) {
		info.GitCommit = GitCommit
	} else if vcs.revision != "" {
		info.GitCommit = vcs.revision
	}

	info.BuildTime = parseISOTime(BuildTime)
	if info.BuildTime.IsZero() {
		info.BuildTime = parseISOTime(vcs.time)
	}

	return info
}

// IsRelease reports whether the version is a tagged release.
func (b *BuildInfo) IsRelease() bool {
	return b.Version != "dev" && !strings.HasPrefix(b.Version, "dev-")
}

// Short returns "v1.2.3 (abcdef0)" for releases and "dev-abcdef0" otherwise.
func (b *BuildInfo) Short() string {
	if len(b.GitCommit) < 7 || b.GitCommit == "unknown" {
		return b.Version
	}
	commit := b.GitCommit[:7]
	if b.Version == "dev" {
		return "dev-" + commit
	}
	if strings.HasSuffix(b.Version, commit) {
		return b.Version
	}
	return fmt.Sprintf("%s (%s)", b.Version, commit)
}

// Detailed returns one "Key: value" line per known field.
func (b *BuildInfo) Detailed() string {
	lines := []string{"Version: " + b.Version}
	if b.GitCommit != "unknown" {
		lines = append(lines, "Commit: "+b.GitCommit)
	}
	if !b.BuildTime.IsZero() {
		lines = append(lines, "Built: "+b.BuildTime.Format(time.RFC3339))
	}
	lines = append(lines, "Go: "+b.GoVersion, "Platform: "+b.Platform)
	if b.BuildUser != "unknown" && b.BuildUser != "" {
		lines = append(lines, "User: "+b.BuildUser)
	}
	return strings.Join(lines, "\n")
}

// GetShortVersion returns a short version string suitable for display
func GetShortVersion() string {
	return GetBuildInfo().Short()
}

// GetDetailedVersion returns a detailed version string with all build info
func GetDetailedVersion() string {
	return GetBuildInfo().Detailed()
}

// IsRelease returns true if this is a release build (not dev)
func IsRelease() bool {
	return GetBuildInfo().IsRelease()
}

// IsDirty returns true if the working directory was dirty when built
func IsDirty() bool {
	return readVCS().modified
}

// UserAgent identifies markupc in outgoing HTTP requests, such as calls to
// a remote minification service.
func UserAgent() string {
	return fmt.Sprintf("markupc/%s (%s)", GetBuildInfo().Version, runtime.Version())
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseISOTime returns the zero time for empty or unparsable input.
func parseISOTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
