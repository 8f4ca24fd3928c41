package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"feature-monitor/internal/feature"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	id, err := s.StartRun(ctx, "run-all")
	if err != nil || len(id) != 36 {
		t.Fatalf("start: %q %v", id, err)
	}
	start := time.Now()
	if err := s.RecordStep(ctx, id, "ingest", start, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordStep(ctx, id, "index", start, errors.New("boom")); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishRun(ctx, id, errors.New("index: boom")); err != nil {
		t.Fatal(err)
	}

	runs, err := s.Runs(ctx, 5)
	if err != nil || len(runs) != 1 {
		t.Fatalf("runs: %+v %v", runs, err)
	}
	r := runs[0]
	if r.Status != StatusFailed || r.Error != "index: boom" || r.FinishedAt == "" {
		t.Fatalf("run got %+v", r)
	}
	if len(r.Steps) != 2 || r.Steps[0].Name != "ingest" || r.Steps[0].Status != StatusOK || r.Steps[1].Error != "boom" {
		t.Fatalf("steps got %+v", r.Steps)
	}

	if err := s.FinishRun(ctx, "nope", nil); err == nil {
		t.Fatalf("unknown run must fail")
	}
}

func TestUpsertFeaturesFirstSeen(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	may := time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)
	june := time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)

	a := feature.Feature{ID: "roadmap_1", Title: "A", SourceType: feature.SourceRoadmap, Embedding: []float64{1, 2}}
	b := feature.Feature{ID: "roadmap_2", Title: "B", SourceType: feature.SourceRoadmap}

	n, err := s.UpsertFeatures(ctx, []feature.Feature{a}, may)
	if err != nil || n != 1 {
		t.Fatalf("first upsert n=%d err=%v", n, err)
	}
	a.Title = "A renamed"
	n, err = s.UpsertFeatures(ctx, []feature.Feature{a, b}, june)
	if err != nil || n != 1 {
		t.Fatalf("second upsert n=%d err=%v", n, err)
	}

	inMay, err := s.FirstSeenIn(ctx, may)
	if err != nil || len(inMay) != 1 || inMay[0].ID != "roadmap_1" {
		t.Fatalf("may got %+v %v", inMay, err)
	}
	if inMay[0].Title != "A renamed" || inMay[0].Embedding != nil {
		t.Fatalf("payload not refreshed or embedding stored: %+v", inMay[0])
	}
	inJune, _ := s.FirstSeenIn(ctx, june)
	if len(inJune) != 1 || inJune[0].ID != "roadmap_2" {
		t.Fatalf("june got %+v", inJune)
	}
}
