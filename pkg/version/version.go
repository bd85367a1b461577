// Package version carries build metadata for the rbarena binary.
package version

import "runtime/debug"

// Set through -ldflags "-X github.com/Sumatoshi-tech/rbarena/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const (
	settingRevision = "vcs.revision"
	settingTime     = "vcs.time"
	shortCommit     = 12
)

// InitBinaryVersion fills in whatever ldflags left at its default from the
// module build info embedded by the Go toolchain.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	apply(info)
}

func apply(info *debug.BuildInfo) {
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case settingRevision:
			if Commit == "none" {
				Commit = setting.Value[:min(len(setting.Value), shortCommit)]
			}
		case settingTime:
			if Date == "unknown" {
				Date = setting.Value
			}
		}
	}
}

// String formats the version line printed by the version command.
func String() string {
	return "rbarena " + Version + " (commit: " + Commit + ", built: " + Date + ")"
}
