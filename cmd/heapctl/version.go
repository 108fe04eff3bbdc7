package main

import (
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is stamped with -ldflags "-X main.version=..." by release builds.
var version = "dev"

// BuildInfo is the output of the version command.
type BuildInfo struct {
	Version   string `json:"version"`
	Module    string `json:"module,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Revision  string `json:"revision,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	Time      string `json:"time,omitempty"`
}

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := readBuildInfo()
			if jsonOut {
				return printJSON(info)
			}
			printInfo("heapctl %s\n", info.Version)
			printInfo("  go:       %s %s\n", info.GoVersion, info.Platform)
			if info.Revision != "" {
				dirty := ""
				if info.Modified {
					dirty = " (modified)"
				}
				printInfo("  revision: %s%s\n", info.Revision, dirty)
			}
			if info.Time != "" {
				printInfo("  built:    %s\n", info.Time)
			}
			return nil
		},
	})
}

// readBuildInfo merges the linker-stamped version with the module and VCS
// settings the Go toolchain embeds in the binary.
func readBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   version,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.Module = bi.Main.Path
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		case "vcs.time":
			info.Time = s.Value
		}
	}
	return info
}
