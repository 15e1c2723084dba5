// Package revision reports the revision of the running build. It is the
// default release attached to error reports.
package revision

import (
	"os"
	"runtime/debug"
	"strings"
	"sync"
)

// EnvVar overrides the detected revision.
const EnvVar = "FAULTLINE_REVISION"

// Unknown is returned when no revision can be determined.
const Unknown = "unknown"

var (
	buildOnce     sync.Once
	buildRevision string

	// ReadBuildInfo allows overriding build info lookup for testing.
	ReadBuildInfo = debug.ReadBuildInfo
)

// Get returns the revision from FAULTLINE_REVISION, the VCS stamp embedded
// by the Go toolchain, or Unknown.
func Get() string {
	if rev := strings.TrimSpace(os.Getenv(EnvVar)); rev != "" {
		return rev
	}
	buildOnce.Do(func() {
		buildRevision = fromBuildInfo()
	})
	if buildRevision == "" {
		return Unknown
	}
	return buildRevision
}

func fromBuildInfo() string {
	info, ok := ReadBuildInfo()
	if !ok || info == nil {
		return ""
	}
	var rev string
	dirty := false
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			rev = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	if rev == "" {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
		return ""
	}
	if dirty {
		rev += "-dirty"
	}
	return rev
}

func reset() {
	buildOnce = sync.Once{}
	buildRevision = ""
}
