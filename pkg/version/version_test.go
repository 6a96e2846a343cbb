package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShort(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })
	Version = "v1.2.3"

	assert.Equal(t, "v1.2.3", Short())
}

func TestString_ContainsBuildFields(t *testing.T) {
	s := String()

	assert.True(t, strings.HasPrefix(s, "tinyrerank "))
	assert.Contains(t, s, runtime.Version())
	assert.Contains(t, s, runtime.GOOS+"/"+runtime.GOARCH)
}

func TestGetInfo_Platform(t *testing.T) {
	info := GetInfo()

	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
}

func TestApplyVCS(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
	}

	t.Run("fills unset fields", func(t *testing.T) {
		info := BuildInfo{Commit: "unknown", Date: "unknown"}
		applyVCS(&info, settings)

		assert.Equal(t, "0123456", info.Commit)
		assert.Equal(t, "2026-01-02T03:04:05Z", info.Date)
	})

	t.Run("ldflags win", func(t *testing.T) {
		info := BuildInfo{Commit: "release", Date: "today"}
		applyVCS(&info, settings)

		assert.Equal(t, "release", info.Commit)
		assert.Equal(t, "today", info.Date)
	})
}
