package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"feature-monitor/internal/config"
	"feature-monitor/internal/contentcheck"
	"feature-monitor/internal/coverage"
	"feature-monitor/internal/dashboard"
	"feature-monitor/internal/embed"
	"feature-monitor/internal/feature"
	"feature-monitor/internal/fsutil"
	"feature-monitor/internal/history"
	"feature-monitor/internal/httpfetch"
	"feature-monitor/internal/index"
	"feature-monitor/internal/ingest"
	"feature-monitor/internal/notify"
	"feature-monitor/internal/report"
	"feature-monitor/internal/schemadiff"
	"feature-monitor/internal/snapshot"
)

var (
	// ErrCoverageFailed is returned by Evaluate when embeddings coverage is
	// below the minimum threshold. The report is still written.
	ErrCoverageFailed = errors.New("coverage below minimum threshold")
	// ErrNoReport is returned by Notify when report.json has not been built.
	ErrNoReport = errors.New("report not found")
)

// App binds every step to one configuration.
type App struct {
	cfg     *config.Config
	http    *httpfetch.Client
	history *history.Store
	log     *slog.Logger
	now     func() time.Time
}

// NewApp builds the HTTP collaborator from cfg.HTTP.
func NewApp(cfg *config.Config, log *slog.Logger) *App {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	client := httpfetch.New(httpfetch.Config{
		Timeout:    cfg.HTTP.Timeout,
		Retries:    cfg.HTTP.Retries,
		BackoffMin: cfg.HTTP.BackoffMin,
		BackoffMax: cfg.HTTP.BackoffMax,
		UserAgent:  cfg.HTTP.UserAgent,
	}, log)
	return &App{cfg: cfg, http: client, log: log, now: time.Now}
}

// WithClock overrides the time source of every step.
func (a *App) WithClock(now func() time.Time) *App {
	a.now = now
	return a
}

// OpenHistory opens the history store when enabled in config.
func (a *App) OpenHistory() error {
	if !a.cfg.History.Enabled || a.history != nil {
		return nil
	}
	st, err := history.Open(a.cfg.History.Path)
	if err != nil {
		return err
	}
	a.history = st
	return nil
}

// Close releases the history store.
func (a *App) Close() error {
	if a.history == nil {
		return nil
	}
	err := a.history.Close()
	a.history = nil
	return err
}

// Recorder returns the history store as a run recorder, or nil.
func (a *App) Recorder() Recorder {
	if a.history == nil {
		return nil
	}
	return a.history
}

// Steps returns the run-all steps in Order.
func (a *App) Steps() []Step {
	run := map[string]func(context.Context) error{
		StepIngest:        discard(a.Ingest),
		StepContentChecks: discard(a.ContentChecks),
		StepIndex:         discard(a.Index),
		StepEmbed:         discard(a.Embed),
		StepEvaluate:      discard(a.Evaluate),
		StepReport:        discard(a.Report),
		StepDashboard:     discard(a.Dashboard),
		StepNotify:        discard(a.Notify),
	}
	steps := make([]Step, 0, len(Order))
	for _, name := range Order {
		steps = append(steps, Step{Name: name, Run: run[name]})
	}
	return steps
}

func discard[T any](f func(context.Context) (T, error)) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := f(ctx)
		return err
	}
}

// RunAll executes Steps through a Pipeline recorded in history.
func (a *App) RunAll(ctx context.Context) (string, error) {
	return New(a.Steps(), a.Recorder(), a.log).Run(ctx, "run-all")
}

func (a *App) schemaRunner() *schemadiff.Runner {
	gq := a.cfg.Sources.GraphQLSchema
	return schemadiff.NewRunner(schemadiff.Config{
		Enabled:       gq.Enabled,
		URL:           gq.DocsURL,
		OutDir:        gq.SnapshotDir,
		MaxPatchBytes: gq.MaxPatchBytes,
	}, a.http, snapshot.NewStore(gq.SnapshotDir), a.log.With("source", feature.SourceGraphQLSchema)).WithClock(a.now)
}

// GraphQLDiff runs only the schema diff source. Its features are not merged
// into features.json.
func (a *App) GraphQLDiff(ctx context.Context) (schemadiff.Result, error) {
	return a.schemaRunner().Run(ctx)
}

// Ingest pulls every source, merges into features.json and records
// first-seen times in history.
func (a *App) Ingest(ctx context.Context) (ingest.Summary, error) {
	in := ingest.New(a.cfg.Sources, a.http, a.schemaRunner(), a.log).WithClock(a.now)
	sum, err := in.IngestAll(ctx)
	if err != nil {
		return sum, err
	}
	now := a.now().UTC()
	total, err := ingest.Save(a.cfg.FeaturesPath(), a.cfg.FeaturesArchiveDir(), now, sum.Features)
	if err != nil {
		return sum, err
	}
	a.log.Info("features saved", "path", a.cfg.FeaturesPath(), "fresh", len(sum.Features), "total", total)
	if a.history != nil {
		inserted, err := a.history.UpsertFeatures(ctx, sum.Features, now)
		if err != nil {
			return sum, err
		}
		a.log.Info("history updated", "first_seen", inserted)
	}
	return sum, nil
}

// ContentChecks runs the configured checks. Individual check failures are
// reported in the results, not as an error.
func (a *App) ContentChecks(ctx context.Context) ([]contentcheck.Result, error) {
	return contentcheck.NewRunner(a.cfg.ContentChecks, a.cfg.ContentChecksDir(), a.http, a.log).WithClock(a.now).RunAll(ctx)
}

// Index writes feature_index.json.
func (a *App) Index(context.Context) (index.Index, error) {
	list, err := feature.MustExist(a.cfg.FeaturesPath())
	if err != nil {
		return nil, err
	}
	idx := index.Build(list)
	if err := index.Save(a.cfg.IndexPath(), idx); err != nil {
		return nil, err
	}
	a.log.Info("index saved", "path", a.cfg.IndexPath(), "areas", len(idx))
	return idx, nil
}

// Embed writes features_with_embeddings.json and returns how many features
// received a vector.
func (a *App) Embed(ctx context.Context) (int, error) {
	list, err := feature.MustExist(a.cfg.FeaturesPath())
	if err != nil {
		return 0, err
	}
	e, err := embed.New(a.cfg.Embeddings.Provider, a.cfg.Embeddings.Dimensions)
	if err != nil {
		return 0, err
	}
	out, done := embed.Generate(ctx, e, list, a.log)
	if err := feature.Save(a.cfg.EmbeddedFeaturesPath(), out); err != nil {
		return done, err
	}
	return done, nil
}

// loadEvaluated prefers the embedded feature set and falls back to
// features.json.
func (a *App) loadEvaluated() ([]feature.Feature, error) {
	if _, err := os.Stat(a.cfg.EmbeddedFeaturesPath()); err == nil {
		return feature.Load(a.cfg.EmbeddedFeaturesPath())
	}
	return feature.Load(a.cfg.FeaturesPath())
}

// Evaluate writes coverage.json and fails with ErrCoverageFailed below the
// minimum threshold.
func (a *App) Evaluate(context.Context) (coverage.Report, error) {
	list, err := a.loadEvaluated()
	if err != nil {
		return coverage.Report{}, err
	}
	if len(list) == 0 {
		return coverage.Report{}, report.ErrNoFeatures
	}
	th := coverage.Thresholds{Min: a.cfg.Coverage.MinThreshold, Warning: a.cfg.Coverage.WarningThreshold}
	r := coverage.Build(list, th, a.now())
	if err := coverage.Save(a.cfg.CoveragePath(), r); err != nil {
		return r, err
	}
	a.log.Info("coverage evaluated", "status", r.Evaluation.Status, "embeddings", r.Metrics.EmbeddingsCoverage.Percentage)
	if r.Evaluation.Status == coverage.StatusFail {
		return r, fmt.Errorf("%w: %v", ErrCoverageFailed, r.Evaluation.Issues)
	}
	return r, nil
}

// Report writes report.json and report.md.
func (a *App) Report(context.Context) ([]string, error) {
	list, err := feature.Load(a.cfg.FeaturesPath())
	if err != nil {
		return nil, err
	}
	cov, err := report.LoadCoverage(a.cfg.CoveragePath(), a.log)
	if err != nil {
		return nil, err
	}
	return report.NewWriter(a.cfg.Report.OutputDir, a.cfg.Report.Formats, a.log).WithClock(a.now).Write(list, cov)
}

// MonthlyReport writes the report for the month containing month.
func (a *App) MonthlyReport(ctx context.Context, month time.Time) ([]string, error) {
	list, err := feature.Load(a.cfg.FeaturesPath())
	if err != nil {
		return nil, err
	}
	var src report.FirstSeenSource
	if a.history != nil {
		src = a.history
	}
	mr := a.cfg.MonthlyReport
	return report.NewMonthly(mr.OutputDir, mr.TopN, src, a.log).WithClock(a.now).Generate(ctx, list, month)
}

// Dashboard writes a new payload, refreshes the latest copy and prunes
// payloads past retention. An empty feature set still yields a payload.
func (a *App) Dashboard(context.Context) (string, error) {
	list, err := feature.Load(a.cfg.FeaturesPath())
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		a.log.Warn("no features; generating empty dashboard")
	}
	checks, err := dashboard.CheckStatuses(a.cfg.ContentChecks, a.cfg.ContentChecksDir())
	if err != nil {
		return "", err
	}
	now := a.now()
	d := a.cfg.Dashboard
	path, err := dashboard.Save(d.OutputDir, dashboard.Build(list, checks, now), now)
	if err != nil {
		return "", err
	}
	if _, err := dashboard.Cleanup(d.OutputDir, d.RetentionDays, now, a.log); err != nil {
		a.log.Warn("dashboard cleanup failed", "err", err)
	}
	return path, nil
}

// DeltaPaths locates the inputs and outputs of DashboardDelta. Empty fields
// take defaults relative to the dashboard output directory.
type DeltaPaths struct {
	Old, New       string
	OutJSON, OutMD string
	Top            int
}

func (a *App) deltaDefaults(p DeltaPaths) DeltaPaths {
	dir := a.cfg.Dashboard.OutputDir
	if p.New == "" {
		p.New = filepath.Join(dir, dashboard.LatestName)
	}
	if p.OutJSON == "" {
		p.OutJSON = filepath.Join(dir, "dashboard_delta.json")
	}
	if p.OutMD == "" {
		p.OutMD = filepath.Join(dir, "dashboard_delta.md")
	}
	if p.Top <= 0 {
		p.Top = a.cfg.Dashboard.DeltaTop
	}
	return p
}

// DashboardDelta compares two payloads. A missing Old is a first run; a
// missing New is an error.
func (a *App) DashboardDelta(_ context.Context, p DeltaPaths) (dashboard.Delta, error) {
	p = a.deltaDefaults(p)
	curr, err := dashboard.Load(p.New)
	if err != nil {
		return dashboard.Delta{}, err
	}
	var old *dashboard.Payload
	if p.Old != "" {
		old, err = dashboard.Load(p.Old)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return dashboard.Delta{}, err
		}
	}
	d := dashboard.Compare(old, *curr, p.Top, a.now())
	if err := dashboard.WriteDelta(p.OutJSON, p.OutMD, d); err != nil {
		return d, err
	}
	a.log.Info("dashboard delta written", "json", p.OutJSON, "md", p.OutMD, "added", d.Counts.FeaturesAdded)
	return d, nil
}

// Notify sends the summary of report.json to every enabled channel.
func (a *App) Notify(ctx context.Context) ([]notify.Result, error) {
	var doc report.Document
	path := filepath.Join(a.cfg.Report.OutputDir, "report.json")
	found, err := fsutil.ReadJSON(path, &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNoReport, path)
	}
	return notify.New(a.cfg.Notifications, a.http, a.log).SendAll(ctx, doc.Summary)
}
