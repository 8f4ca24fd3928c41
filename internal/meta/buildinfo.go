// Package meta reports build metadata of the running binary.
package meta

import (
	"runtime/debug"
	"strings"
)

// Version is set at link time with -ldflags "-X feature-monitor/internal/meta.Version=v1.2.3".
var Version = ""

// Info is a minimal summary of how the binary was built.
type Info struct {
	Module    string `json:"module"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Revision  string `json:"revision,omitempty"`
	Time      string `json:"time,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

// Detect reads the embedded build info. Missing fields stay empty and
// Version falls back to "dev".
func Detect() Info {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return Info{Version: firstNonEmpty(Version, "dev")}
	}
	return fromBuildInfo(bi)
}

func fromBuildInfo(bi *debug.BuildInfo) Info {
	inf := Info{
		Module:    bi.Main.Path,
		GoVersion: bi.GoVersion,
	}
	mainVer := bi.Main.Version
	if mainVer == "(devel)" {
		mainVer = ""
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			inf.Revision = s.Value
		case "vcs.time":
			inf.Time = s.Value
		case "vcs.modified":
			inf.Modified = s.Value == "true"
		}
	}
	inf.Version = firstNonEmpty(Version, mainVer, shortRevision(inf.Revision), "dev")
	return inf
}

// String renders Info on one line.
func (i Info) String() string {
	parts := []string{firstNonEmpty(i.Module, "feature-monitor"), i.Version}
	if i.Revision != "" {
		rev := shortRevision(i.Revision)
		if i.Modified {
			rev += "-dirty"
		}
		parts = append(parts, rev)
	}
	if i.GoVersion != "" {
		parts = append(parts, i.GoVersion)
	}
	return strings.Join(parts, " ")
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		s = strings.TrimSpace(s)
		if s != "" {
			return s
		}
	}
	return ""
}
