package meta

import (
	"runtime/debug"
	"testing"
)

func TestFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		GoVersion: "go1.25.0",
		Main:      debug.Module{Path: "feature-monitor", Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	inf := fromBuildInfo(bi)
	if inf.Version != "0123456789ab" || !inf.Modified {
		t.Fatalf("got %+v", inf)
	}
	if got := inf.String(); got != "feature-monitor 0123456789ab 0123456789ab-dirty go1.25.0" {
		t.Fatalf("String got %q", got)
	}
}

func TestLinkedVersionWins(t *testing.T) {
	old := Version
	Version = "v1.2.3"
	defer func() { Version = old }()
	inf := fromBuildInfo(&debug.BuildInfo{Main: debug.Module{Path: "feature-monitor", Version: "v0.0.1"}})
	if inf.Version != "v1.2.3" {
		t.Fatalf("got %q", inf.Version)
	}
	if Detect().Version == "" {
		t.Fatalf("Detect must always report a version")
	}
}
