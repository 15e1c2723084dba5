package revision

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuildInfo(t *testing.T, info *debug.BuildInfo, ok bool) {
	t.Helper()
	original := ReadBuildInfo
	ReadBuildInfo = func() (*debug.BuildInfo, bool) { return info, ok }
	reset()
	t.Cleanup(func() {
		ReadBuildInfo = original
		reset()
	})
}

func TestGetPrefersEnvironment(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abc"}}}, true)
	t.Setenv(EnvVar, " r123 ")

	assert.Equal(t, "r123", Get())
}

func TestGetFromVCSStamp(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789ab"},
		{Key: "vcs.modified", Value: "true"},
	}}, true)
	t.Setenv(EnvVar, "")

	assert.Equal(t, "0123456789ab-dirty", Get())
}

func TestGetFromModuleVersion(t *testing.T) {
	info := &debug.BuildInfo{}
	info.Main.Version = "v1.2.3"
	withBuildInfo(t, info, true)
	t.Setenv(EnvVar, "")

	assert.Equal(t, "v1.2.3", Get())
}

func TestGetUnknown(t *testing.T) {
	withBuildInfo(t, nil, false)
	t.Setenv(EnvVar, "")

	assert.Equal(t, Unknown, Get())
}
