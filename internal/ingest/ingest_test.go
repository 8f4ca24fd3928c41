package ingest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"feature-monitor/internal/config"
	"feature-monitor/internal/feature"
	"feature-monitor/internal/httpfetch"
	"feature-monitor/internal/schemadiff"
)

type stubSchema struct {
	res schemadiff.Result
	err error
}

func (s stubSchema) Run(context.Context) (schemadiff.Result, error) { return s.res, s.err }

const roadmapJSON = `[
 {"number": 101, "title": "Code search GA", "body": "Ships Q3", "html_url": "https://github.com/github/roadmap/issues/101",
  "labels": [{"name": "ga"}, {"name": "code-search"}]},
 {"number": 102, "title": "Merge queue", "body": null, "html_url": "https://github.com/github/roadmap/issues/102", "labels": []}
]`

func server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/changelog", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, changelogHTML)
	})
	mux.HandleFunc("/roadmap", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, roadmapJSON)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func client() *httpfetch.Client {
	return httpfetch.New(httpfetch.Config{BackoffMin: time.Millisecond, BackoffMax: time.Millisecond}, nil)
}

func TestRoadmapMapping(t *testing.T) {
	srv := server(t)
	in := New(config.Sources{Roadmap: config.Roadmap{Enabled: true, URL: srv.URL + "/roadmap"}}, client(), nil, nil)
	got, err := in.Roadmap(context.Background())
	if err != nil || len(got) != 2 {
		t.Fatalf("got %+v err=%v", got, err)
	}
	if got[0].ID != "roadmap_101" || got[0].ProductArea != "GitHub" || got[0].SourceType != "roadmap" {
		t.Fatalf("got %+v", got[0])
	}
	if len(got[0].Tags) != 3 || got[0].Tags[0] != "roadmap" || got[0].Tags[2] != "code-search" {
		t.Fatalf("tags got %v", got[0].Tags)
	}
	if got[1].Description != "No description" {
		t.Fatalf("null body got %q", got[1].Description)
	}
}

func TestChangelogCapAndIDs(t *testing.T) {
	srv := server(t)
	src := config.Sources{Changelog: config.Changelog{Enabled: true, URL: srv.URL + "/changelog", MaxEntries: 1}}
	got, err := New(src, client(), nil, nil).Changelog(context.Background())
	if err != nil || len(got) != 1 {
		t.Fatalf("got %+v err=%v", got, err)
	}
	if got[0].ID != "changelog_changelog-2024-06-14-copilot-workspace" {
		t.Fatalf("id got %q", got[0].ID)
	}
	if got[0].ProductArea != "Platform" || got[0].Tags[0] != "changelog" {
		t.Fatalf("got %+v", got[0])
	}
}

func TestIngestAllSkipsFailingSourcesButNotSchema(t *testing.T) {
	srv := server(t)
	src := config.Sources{
		Changelog: config.Changelog{Enabled: true, URL: srv.URL + "/missing"},
		Roadmap:   config.Roadmap{Enabled: true, URL: srv.URL + "/roadmap"},
	}
	schemaRes := schemadiff.Result{Features: []feature.Feature{{ID: "graphql_Gadget_20240615", Title: "x", SourceType: feature.SourceGraphQLSchema}}}

	sum, err := New(src, client(), stubSchema{res: schemaRes}, nil).IngestAll(context.Background())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(sum.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", sum.Warnings)
	}
	if sum.BySource["roadmap"] != 2 || sum.BySource["graphql_schema_diff"] != 1 || len(sum.Features) != 3 {
		t.Fatalf("got %+v", sum)
	}

	_, err = New(src, client(), stubSchema{err: schemadiff.ErrFetch}, nil).IngestAll(context.Background())
	if !errors.Is(err, schemadiff.ErrFetch) {
		t.Fatalf("schema failure must fail the run, got %v", err)
	}
}

func TestDisabledSourcesAreEmpty(t *testing.T) {
	sum, err := New(config.Sources{}, client(), nil, nil).IngestAll(context.Background())
	if err != nil || len(sum.Features) != 0 || len(sum.Warnings) != 0 {
		t.Fatalf("got %+v err=%v", sum, err)
	}
}

func TestSaveMergesAndArchives(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.json")
	day := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	mk := func(id string) feature.Feature {
		return feature.Feature{ID: id, Title: id, SourceType: feature.SourceRoadmap, DateDiscovered: "2024-06-15T00:00:00Z"}
	}

	if n, err := Save(path, filepath.Join(dir, "features"), day, []feature.Feature{mk("roadmap_1")}); err != nil || n != 1 {
		t.Fatalf("first save n=%d err=%v", n, err)
	}
	n, err := Save(path, filepath.Join(dir, "features"), day, []feature.Feature{mk("roadmap_1"), mk("roadmap_2")})
	if err != nil || n != 2 {
		t.Fatalf("second save n=%d err=%v", n, err)
	}
	archived, _ := feature.Load(filepath.Join(dir, "features", "2024-06-15.json"))
	if len(archived) != 2 {
		t.Fatalf("archive got %d", len(archived))
	}

	if _, err := Save(path, "", day, []feature.Feature{{ID: "bad id"}}); err == nil {
		t.Fatalf("invalid batch must be rejected")
	}
}

const duplicateFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<item><title>Runners</title><link>https://github.blog/changelog/x</link></item>
<item><title>Runners again</title><link>https://github.blog/changelog/x</link></item>
<item><title>  </title><link>https://github.blog/changelog/blank</link></item>
<item><title>★★★</title></item>
</channel></rss>`

func TestIngestAllDropsBadChangelogRecordsAndKeepsSchema(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, duplicateFeed)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	src := config.Sources{Changelog: config.Changelog{Enabled: true, URL: srv.URL + "/feed"}}
	gql := feature.Feature{ID: "graphql_Gadget_20240615", Title: "New type Gadget", SourceType: feature.SourceGraphQLSchema, DateDiscovered: "2024-06-15T09:00:00Z"}
	sum, err := New(src, client(), stubSchema{res: schemadiff.Result{Features: []feature.Feature{gql}}}, nil).IngestAll(context.Background())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(sum.Warnings) != 1 || !strings.Contains(sum.Warnings[0], "duplicate id") {
		t.Fatalf("warnings got %v", sum.Warnings)
	}
	if sum.BySource["changelog"] != 2 || len(sum.Features) != 3 {
		t.Fatalf("got %+v", sum)
	}
	if sum.Features[0].ID != "changelog_changelog-x" || sum.Features[0].Title != "Runners" {
		t.Fatalf("first record must win: %+v", sum.Features[0])
	}
	if id := sum.Features[1].ID; len(id) != len("changelog_")+12 {
		t.Fatalf("symbol-only title needs a hashed id, got %q", id)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "features.json")
	if _, err := Save(path, "", time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), sum.Features); err != nil {
		t.Fatalf("save: %v", err)
	}
	saved, _ := feature.Load(path)
	if len(saved) != 3 || saved[2].ID != gql.ID {
		t.Fatalf("saved %+v", saved)
	}
}
