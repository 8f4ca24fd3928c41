package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"feature-monitor/internal/config"
	"feature-monitor/internal/coverage"
	"feature-monitor/internal/feature"
	"feature-monitor/internal/history"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

const roadmapJSON = `[
 {"number": 7, "title": "Merge queue", "body": "Queue merges", "html_url": "https://github.com/github/roadmap/issues/7", "labels": [{"name": "ga"}]},
 {"number": 8, "title": "Copilot", "body": null, "html_url": "https://github.com/github/roadmap/issues/8", "labels": []}
]`

func testConfig(t *testing.T, srvURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	yml := fmt.Sprintf(`
data_dir: %s
sources:
  roadmap:
    enabled: true
    url: %s/roadmap
  graphql_schema:
    enabled: true
    docs_url: %s/schema
http:
  retries: 1
  backoff_min: 1ms
  backoff_max: 2ms
history:
  enabled: true
`, dir, srvURL, srvURL)
	cfg, err := config.Parse([]byte(yml))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func upstream() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/roadmap", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, roadmapJSON)
	})
	mux.HandleFunc("/schema", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "type Repository {\n  id: ID!\n}\n")
	})
	return httptest.NewServer(mux)
}

func TestRunAllEndToEnd(t *testing.T) {
	srv := upstream()
	defer srv.Close()
	cfg := testConfig(t, srv.URL)

	app := NewApp(cfg, nil).WithClock(func() time.Time { return fixedNow })
	if err := app.OpenHistory(); err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	if _, err := app.RunAll(context.Background()); err != nil {
		t.Fatalf("run-all: %v", err)
	}

	list, err := feature.Load(cfg.FeaturesPath())
	if err != nil || len(list) != 2 || list[1].Description != "No description" {
		t.Fatalf("features=%+v err=%v", list, err)
	}
	for _, p := range []string{
		cfg.IndexPath(),
		cfg.EmbeddedFeaturesPath(),
		cfg.CoveragePath(),
		filepath.Join(cfg.Report.OutputDir, "report.json"),
		filepath.Join(cfg.Report.OutputDir, "report.md"),
		filepath.Join(cfg.Dashboard.OutputDir, "dashboard_latest.json"),
		filepath.Join(cfg.FeaturesArchiveDir(), "2024-06-15.json"),
		filepath.Join(cfg.Sources.GraphQLSchema.SnapshotDir, "schema-2024-06-15.graphql"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("missing output %s: %v", p, err)
		}
	}

	cov, _, err := coverage.Load(cfg.CoveragePath())
	if err != nil || cov.Evaluation.Status != coverage.StatusPass {
		t.Fatalf("coverage %+v err=%v", cov, err)
	}

	st, err := history.Open(cfg.History.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	runs, err := st.Runs(context.Background(), 10)
	if err != nil || len(runs) != 1 || runs[0].Status != history.StatusOK || len(runs[0].Steps) != len(Order) {
		t.Fatalf("runs=%+v err=%v", runs, err)
	}

	paths, err := app.MonthlyReport(context.Background(), fixedNow)
	if err != nil || len(paths) != 2 {
		t.Fatalf("monthly paths=%v err=%v", paths, err)
	}
}

func TestEvaluateFailsBelowMinimum(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0")
	list := []feature.Feature{{ID: "roadmap_1", Title: "t", SourceType: feature.SourceRoadmap, Tags: []string{"roadmap"}, DateDiscovered: feature.Stamp(fixedNow)}}
	if err := feature.Save(cfg.FeaturesPath(), list); err != nil {
		t.Fatal(err)
	}
	app := NewApp(cfg, nil).WithClock(func() time.Time { return fixedNow })
	r, err := app.Evaluate(context.Background())
	if !errors.Is(err, ErrCoverageFailed) || r.Evaluation.Status != coverage.StatusFail {
		t.Fatalf("status=%s err=%v", r.Evaluation.Status, err)
	}
	if _, err := os.Stat(cfg.CoveragePath()); err != nil {
		t.Fatalf("coverage.json must still be written: %v", err)
	}
}

func TestDashboardDeltaFirstRun(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0")
	app := NewApp(cfg, nil).WithClock(func() time.Time { return fixedNow })
	if _, err := app.DashboardDelta(context.Background(), DeltaPaths{}); err == nil {
		t.Fatalf("missing new payload must fail")
	}
	if _, err := app.Dashboard(context.Background()); err != nil {
		t.Fatal(err)
	}
	d, err := app.DashboardDelta(context.Background(), DeltaPaths{Old: filepath.Join(t.TempDir(), "dashboard.json")})
	if err != nil || d.Note == nil {
		t.Fatalf("delta=%+v err=%v", d, err)
	}
}

func TestNotifyRequiresReport(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0")
	if _, err := NewApp(cfg, nil).Notify(context.Background()); !errors.Is(err, ErrNoReport) {
		t.Fatalf("got %v", err)
	}
}
