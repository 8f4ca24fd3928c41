package dashboard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"feature-monitor/internal/config"
	"feature-monitor/internal/contentcheck"
	"feature-monitor/internal/feature"
	"feature-monitor/internal/fsutil"
)

var fixedNow = time.Date(2024, 6, 15, 9, 30, 5, 0, time.UTC)

func features() []feature.Feature {
	return []feature.Feature{
		{ID: "roadmap_1", Title: "One", SourceType: feature.SourceRoadmap, ProductArea: "GitHub", DateDiscovered: "2024-06-02T10:00:00Z"},
		{ID: "roadmap_2", Title: "Two", SourceType: feature.SourceRoadmap, ProductArea: "GitHub", DateDiscovered: "2024-06-01T08:00:00Z"},
		{ID: "graphql_new_type_Foo_20240601", Title: "Foo", SourceType: feature.SourceGraphQLSchema, ProductArea: "API", DateDiscovered: "2024-06-01T00:00:00Z"},
		{ID: "changelog_x", Title: "X", SourceType: feature.SourceChangelog, DateDiscovered: "2024-06-02T00:00:00Z"},
	}
}

func TestBuildPayload(t *testing.T) {
	p := Build(features(), nil, fixedNow)
	if p.Summary.TotalFeatures != 4 || p.GeneratedAt != "2024-06-15T09:30:05Z" {
		t.Fatalf("got %+v", p.Summary)
	}
	ts := p.TimeSeries
	if len(ts.Points) != 2 || ts.Points[0].Date != "2024-06-01" || ts.Points[0].Count != 2 || ts.Points[1].Cumulative != 4 || ts.Total != 4 {
		t.Fatalf("time series got %+v", ts)
	}
	src := p.SourceBreakdown.Sources
	if len(src) != 3 || src[0].Name != feature.SourceChangelog || src[2].Name != feature.SourceRoadmap {
		t.Fatalf("sources got %+v", src)
	}
	areas := p.ProductAreaBreakdown.ProductAreas
	if areas[0].Name != "GitHub" || areas[0].Count != 2 || areas[2].Name != "Unknown" {
		t.Fatalf("areas got %+v", areas)
	}
	if p.ContentChecks == nil || len(p.Features) != 4 {
		t.Fatalf("payload incomplete")
	}
}

func TestCheckStatuses(t *testing.T) {
	dir := t.TempDir()
	st := contentcheck.State{CheckedAt: "2024-06-14T00:00:00Z", StatusCode: 200, Fingerprint: "abc", Changed: true}
	if err := fsutil.WriteJSON(contentcheck.StatePath(dir, "docs/home"), st); err != nil {
		t.Fatal(err)
	}
	checks := map[string]config.ContentCheck{
		"docs/home": {Enabled: true, URL: "https://example.com", DisplayName: "Docs"},
		"blog":      {Enabled: true, URL: "https://example.com/blog"},
	}
	got, err := CheckStatuses(checks, dir)
	if err != nil || len(got) != 2 {
		t.Fatalf("got %+v err=%v", got, err)
	}
	if got[0].Key != "blog" || got[0].OK || got[0].CheckedAt != nil || got[0].Name != "blog" {
		t.Fatalf("never-run check got %+v", got[0])
	}
	if !got[1].OK || *got[1].StatusCode != 200 || !*got[1].Changed || got[1].Name != "Docs" {
		t.Fatalf("checked got %+v", got[1])
	}
}

func TestSaveLoadAndCleanup(t *testing.T) {
	dir := t.TempDir()
	stamped, err := Save(dir, Build(features(), nil, fixedNow), fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(stamped) != "dashboard_20240615_093005.json" {
		t.Fatalf("got %s", stamped)
	}
	latest, err := Load(filepath.Join(dir, LatestName))
	if err != nil || latest.Summary.TotalFeatures != 4 {
		t.Fatalf("latest=%+v err=%v", latest, err)
	}

	old := filepath.Join(dir, "dashboard_20240101_000000.json")
	if err := os.WriteFile(old, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := fixedNow.AddDate(0, 0, -120)
	for _, p := range []string{old, filepath.Join(dir, LatestName)} {
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatal(err)
		}
	}
	n, err := Cleanup(dir, 90, fixedNow, nil)
	if err != nil || n != 1 {
		t.Fatalf("removed=%d err=%v", n, err)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("old payload survived")
	}
	if _, err := os.Stat(filepath.Join(dir, LatestName)); err != nil {
		t.Fatalf("latest removed: %v", err)
	}
	if _, err := Load(filepath.Join(dir, "none.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("got %v", err)
	}
	if n, err := Cleanup(filepath.Join(dir, "missing"), 90, fixedNow, nil); n != 0 || err != nil {
		t.Fatalf("missing dir: %d %v", n, err)
	}
}
