package version

import (
	"runtime/debug"
	"testing"
	"time"
)

func TestResolve(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	stamped := &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		{Key: "vcs.modified", Value: "false"},
	}}
	dirty := &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs.revision", Value: "abc"},
		{Key: "vcs.modified", Value: "true"},
	}}

	tests := []struct {
		name        string
		version     string
		commit      string
		info        *debug.BuildInfo
		wantVersion string
		wantCommit  string
	}{
		{"ldflags win", "v1.2.3", "feedbee", stamped, "v1.2.3", "feedbee"},
		{"vcs stamp", "", "", stamped, "dev-20260102", "0123456"},
		{"dirty tree", "", "", dirty, "dev-20260304-050607", "abc-dirty"},
		{"no build info", "", "", nil, "dev-20260304-050607", "unknown"},
		{"version only", "v2.0.0", "", nil, "v2.0.0", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotVersion, gotCommit := resolve(tt.version, tt.commit, tt.info, now)
			if gotVersion != tt.wantVersion {
				t.Errorf("version = %q, want %q", gotVersion, tt.wantVersion)
			}
			if gotCommit != tt.wantCommit {
				t.Errorf("commit = %q, want %q", gotCommit, tt.wantCommit)
			}
		})
	}
}

func TestUserAgent(t *testing.T) {
	if got, want := UserAgent(), "hubsetup/"+Version; got != want {
		t.Errorf("UserAgent() = %q, want %q", got, want)
	}
}
