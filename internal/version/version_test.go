package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuildInfo(t *testing.T, bi *debug.BuildInfo, ok bool) {
	t.Helper()
	orig := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, ok }
	t.Cleanup(func() { readBuildInfo = orig })
}

func withVars(t *testing.T, v, c, d string) {
	t.Helper()
	ov, oc, od := Version, Commit, Date
	Version, Commit, Date = v, c, d
	t.Cleanup(func() { Version, Commit, Date = ov, oc, od })
}

func TestGetInfoPrefersLdflags(t *testing.T) {
	withVars(t, "1.0.0", "abc123def456", "2024-01-01T12:00:00Z")
	withBuildInfo(t, &debug.BuildInfo{
		Main: debug.Module{Version: "v9.9.9"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "ffffffffffff"},
			{Key: "vcs.time", Value: "2030-01-01T00:00:00Z"},
		},
	}, true)

	info := GetInfo()
	assert.Equal(t, "1.0.0", info.Version)
	assert.Equal(t, "abc123def456", info.Commit)
	assert.Equal(t, "2024-01-01T12:00:00Z", info.Date)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestGetInfoFallsBackToBuildInfo(t *testing.T) {
	withVars(t, "dev", "unknown", "unknown")
	withBuildInfo(t, &debug.BuildInfo{
		Main: debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789ab"},
			{Key: "vcs.time", Value: "2025-06-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}, true)

	info := GetInfo()
	assert.Equal(t, "v0.3.1", info.Version)
	assert.Equal(t, "0123456789ab", info.Commit)
	assert.Equal(t, "2025-06-01T12:00:00Z", info.Date)
	assert.True(t, info.Modified)
}

func TestGetInfoIgnoresDevelModule(t *testing.T) {
	withVars(t, "dev", "unknown", "unknown")
	withBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, true)
	assert.Equal(t, "dev", GetInfo().Version)

	withBuildInfo(t, nil, false)
	assert.Equal(t, "unknown", GetInfo().Commit)
}

func TestInfoString(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{
			name: "long commit is truncated",
			info: Info{Version: "1.0.0", Commit: "abc123def456", Date: "2024-01-01", GoVersion: "go1.24.6", Platform: "linux/amd64"},
			want: "speckeeper 1.0.0 (abc123de) built 2024-01-01 with go1.24.6 for linux/amd64",
		},
		{
			name: "short commit kept",
			info: Info{Version: "dev", Commit: "abc", Date: "unknown", GoVersion: "go1.24.6", Platform: "darwin/arm64"},
			want: "speckeeper dev (abc) built unknown with go1.24.6 for darwin/arm64",
		},
		{
			name: "dirty tree",
			info: Info{Version: "dev", Commit: "abc", Date: "unknown", Modified: true, GoVersion: "go1.24.6", Platform: "linux/amd64"},
			want: "speckeeper dev (abc-dirty) built unknown with go1.24.6 for linux/amd64",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.String())
		})
	}
}

func TestInfoShort(t *testing.T) {
	assert.Equal(t, "2.1.0", Info{Version: "2.1.0"}.Short())
}
