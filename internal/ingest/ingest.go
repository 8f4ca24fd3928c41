// Package ingest collects features from every configured source: the GitHub
// changelog, the public roadmap, and the GraphQL schema diff.
//
// Changelog and roadmap failures are logged and reported as warnings; the
// rest of the run continues. Records from those sources that would not pass
// validation are dropped with a warning. A schema fetch or persistence failure
// fails the whole ingest so it is never mistaken for "no changes".
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"feature-monitor/internal/config"
	"feature-monitor/internal/feature"
	"feature-monitor/internal/httpfetch"
	"feature-monitor/internal/schemadiff"
	"feature-monitor/internal/textutil"
	"feature-monitor/internal/validate"
)

const (
	changelogArea = "Platform"
	roadmapArea   = "GitHub"
)

// HTTP is the collaborator used for changelog and roadmap requests.
type HTTP interface {
	Get(ctx context.Context, url string, headers map[string]string) (*httpfetch.Response, error)
	GetJSON(ctx context.Context, url string, v any) error
}

// SchemaRunner runs the GraphQL schema diff.
type SchemaRunner interface {
	Run(ctx context.Context) (schemadiff.Result, error)
}

// Summary is the outcome of IngestAll.
type Summary struct {
	Features []feature.Feature
	BySource map[string]int
	Warnings []string
}

// Ingestor pulls every source once per run.
type Ingestor struct {
	sources config.Sources
	http    HTTP
	schema  SchemaRunner
	log     *slog.Logger
	now     func() time.Time
}

// New wires an ingestor. schema may be nil to skip the GraphQL source.
func New(sources config.Sources, http HTTP, schema SchemaRunner, log *slog.Logger) *Ingestor {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Ingestor{sources: sources, http: http, schema: schema, log: log, now: time.Now}
}

// WithClock overrides the discovery timestamp source.
func (in *Ingestor) WithClock(now func() time.Time) *Ingestor {
	in.now = now
	return in
}

// Changelog fetches and parses the changelog page or feed.
func (in *Ingestor) Changelog(ctx context.Context) ([]feature.Feature, error) {
	cfg := in.sources.Changelog
	if !cfg.Enabled {
		in.log.Info("changelog source disabled")
		return nil, nil
	}
	if cfg.URL == "" {
		in.log.Warn("no changelog url configured")
		return nil, nil
	}
	resp, err := in.http.Get(ctx, cfg.URL, map[string]string{
		"Accept": "application/rss+xml, application/atom+xml, text/html;q=0.9",
	})
	if err != nil {
		return nil, fmt.Errorf("changelog: %w", err)
	}
	if !resp.OK() {
		return nil, &httpfetch.StatusError{URL: cfg.URL, StatusCode: resp.StatusCode}
	}
	entries, err := ParseChangelog(resp.Body, cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.MaxEntries > 0 && len(entries) > cfg.MaxEntries {
		entries = entries[:cfg.MaxEntries]
	}
	stamp := feature.Stamp(in.now())
	out := make([]feature.Feature, 0, len(entries))
	for _, e := range entries {
		desc := e.Summary
		if desc == "" {
			desc = e.Title
		}
		if strings.Contains(e.HTML, "<") {
			desc = toMarkdown(e.HTML, origin(cfg.URL), desc)
		}
		out = append(out, feature.Feature{
			ID:             changelogID(e),
			Title:          e.Title,
			Description:    desc,
			SourceType:     feature.SourceChangelog,
			SourceURL:      firstNonEmpty(e.Link, cfg.URL),
			ProductArea:    changelogArea,
			Tags:           []string{"changelog"},
			DateDiscovered: stamp,
		})
	}
	in.log.Info("fetched changelog", "entries", len(out))
	return out, nil
}

// Roadmap reads issues from the roadmap repository API.
func (in *Ingestor) Roadmap(ctx context.Context) ([]feature.Feature, error) {
	cfg := in.sources.Roadmap
	if !cfg.Enabled {
		in.log.Info("roadmap source disabled")
		return nil, nil
	}
	if cfg.URL == "" {
		in.log.Warn("no roadmap url configured")
		return nil, nil
	}
	var issues []roadmapIssue
	if err := in.http.GetJSON(ctx, cfg.URL, &issues); err != nil {
		return nil, fmt.Errorf("roadmap: %w", err)
	}
	stamp := feature.Stamp(in.now())
	out := make([]feature.Feature, 0, len(issues))
	for _, is := range issues {
		out = append(out, feature.Feature{
			ID:             is.id(),
			Title:          is.Title,
			Description:    is.description(),
			SourceType:     feature.SourceRoadmap,
			SourceURL:      is.HTMLURL,
			ProductArea:    roadmapArea,
			Tags:           is.tags(),
			DateDiscovered: stamp,
		})
	}
	in.log.Info("fetched roadmap", "items", len(out))
	return out, nil
}

// IngestAll runs every source in a fixed order: changelog, roadmap, schema.
func (in *Ingestor) IngestAll(ctx context.Context) (Summary, error) {
	sum := Summary{BySource: map[string]int{}}
	add := func(src string, list []feature.Feature) {
		sum.Features = append(sum.Features, list...)
		sum.BySource[src] += len(list)
	}
	screened := func(src string, list []feature.Feature) []feature.Feature {
		kept, dropped := in.screen(src, list)
		sum.Warnings = append(sum.Warnings, dropped...)
		return kept
	}

	if list, err := in.Changelog(ctx); err != nil {
		in.log.Error("changelog ingest failed", "err", err)
		sum.Warnings = append(sum.Warnings, err.Error())
	} else {
		add(feature.SourceChangelog, screened(feature.SourceChangelog, list))
	}

	if list, err := in.Roadmap(ctx); err != nil {
		in.log.Error("roadmap ingest failed", "err", err)
		sum.Warnings = append(sum.Warnings, err.Error())
	} else {
		add(feature.SourceRoadmap, screened(feature.SourceRoadmap, list))
	}

	if in.schema != nil {
		res, err := in.schema.Run(ctx)
		if err != nil {
			return sum, err
		}
		add(feature.SourceGraphQLSchema, res.Features)
	}

	in.log.Info("ingest complete", "features", len(sum.Features), "warnings", len(sum.Warnings))
	return sum, nil
}

// screen drops records that would fail validation, keeping the first of any
// repeated id. Each dropped record becomes a warning.
func (in *Ingestor) screen(src string, list []feature.Feature) ([]feature.Feature, []string) {
	var warnings []string
	kept := make([]feature.Feature, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, f := range list {
		var reason string
		if _, dup := seen[f.ID]; dup {
			reason = "duplicate id"
		} else if issues := validate.Record(f); len(issues) > 0 {
			reason = strings.Join(issues, "; ")
		}
		if reason != "" {
			in.log.Warn("dropping record", "source", src, "id", f.ID, "reason", reason)
			warnings = append(warnings, fmt.Sprintf("%s: dropped %q: %s", src, f.ID, reason))
			continue
		}
		seen[f.ID] = struct{}{}
		kept = append(kept, f)
	}
	return kept, warnings
}

// Save validates fresh records, merges them into the accumulated file at
// path (existing ids win), and writes today's batch to archiveDir/YYYY-MM-DD.json.
// It returns the size of the merged list.
func Save(path, archiveDir string, day time.Time, fresh []feature.Feature) (int, error) {
	if err := validate.Features(fresh); err != nil {
		return 0, err
	}
	existing, err := feature.Load(path)
	if err != nil {
		return 0, err
	}
	merged := feature.MergeUnique(existing, fresh)
	if err := feature.Save(path, merged); err != nil {
		return 0, err
	}
	if archiveDir != "" {
		dated := filepath.Join(archiveDir, day.Format("2006-01-02")+".json")
		prev, err := feature.Load(dated)
		if err != nil {
			return 0, err
		}
		if err := feature.Save(dated, feature.MergeUnique(prev, fresh)); err != nil {
			return 0, err
		}
	}
	return len(merged), nil
}

func changelogID(e Entry) string {
	key := e.Title
	if e.Link != "" {
		if u, err := url.Parse(e.Link); err == nil && strings.Trim(u.Path, "/") != "" {
			key = u.Path
		} else {
			key = e.Link
		}
	}
	slug := textutil.Slug(key)
	if slug == "" {
		slug = textutil.SHA256Hex(e.Title + "\n" + e.Link)[:12]
	}
	return "changelog_" + slug
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if s != "" {
			return s
		}
	}
	return ""
}
