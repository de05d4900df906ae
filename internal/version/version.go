// Package version reports the build version of hubsetup.
package version

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/hubonboard/hubsetup/internal/version.Version=v1.2.3 \
//	                   -X github.com/hubonboard/hubsetup/internal/version.Commit=abc123"
//
// Unset values are filled from the VCS stamp in the build info, falling
// back to a dev version.
var (
	// Version is the semantic version of the application
	Version = ""
	// Commit is the short git commit hash
	Commit = ""
)

func init() {
	info, _ := debug.ReadBuildInfo()
	Version, Commit = resolve(Version, Commit, info, time.Now())
}

// resolve fills empty version and commit values from the VCS settings of
// info, which may be nil
func resolve(version, commit string, info *debug.BuildInfo, now time.Time) (string, string) {
	vcs := make(map[string]string)
	if info != nil {
		for _, setting := range info.Settings {
			vcs[setting.Key] = setting.Value
		}
	}

	if commit == "" {
		if rev := vcs["vcs.revision"]; rev != "" {
			commit = shortHash(rev)
			if vcs["vcs.modified"] == "true" {
				commit += "-dirty"
			}
		} else {
			commit = "unknown"
		}
	}

	if version == "" {
		// build info has no tags, so the commit date stands in
		if t, err := time.Parse(time.RFC3339, vcs["vcs.time"]); err == nil {
			version = "dev-" + t.Format("20060102")
		} else {
			version = "dev-" + now.Format("20060102-150405")
		}
	}
	return version, commit
}

func shortHash(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// Full returns the full version string including commit
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// UserAgent returns the User-Agent sent to the hub API
func UserAgent() string {
	return "hubsetup/" + Version
}
