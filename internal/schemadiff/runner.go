package schemadiff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"feature-monitor/internal/diff"
	"feature-monitor/internal/feature"
	"feature-monitor/internal/fsutil"
	"feature-monitor/internal/schema"
	"feature-monitor/internal/snapshot"
)

var (
	// ErrFetch marks a run aborted because the schema could not be fetched.
	// Nothing is written in that case.
	ErrFetch = errors.New("schemadiff: fetch failed")
	// ErrPersist marks a run aborted because a snapshot or its outputs could
	// not be stored or read back.
	ErrPersist = errors.New("schemadiff: persistence failed")
)

// Fetcher retrieves a document as text. Retries are the fetcher's concern.
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Store is the subset of snapshot.Store the runner needs.
type Store interface {
	Save(date time.Time, content string) (string, error)
	LatestPair() (*snapshot.Snapshot, error)
}

// Config is the source section the runner is driven by.
type Config struct {
	Enabled bool
	URL     string
	// OutDir receives changes-YYYY-MM-DD.json and schema-YYYY-MM-DD.patch.
	OutDir string
	// MaxPatchBytes caps the unified diff input; 0 means no limit.
	MaxPatchBytes int
}

// Result describes one run. Features is empty, never nil, on every
// successful short-circuit.
type Result struct {
	Features     []feature.Feature
	Changes      []ChangeRecord
	SnapshotPath string
	PreviousDate time.Time
	ChangesPath  string
	PatchPath    string
}

// Runner orchestrates fetch → snapshot → diff → synthesize → persist.
type Runner struct {
	cfg     Config
	fetcher Fetcher
	store   Store
	log     *slog.Logger
	now     func() time.Time
}

// NewRunner wires a runner. A nil logger discards output.
func NewRunner(cfg Config, f Fetcher, s Store, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Runner{cfg: cfg, fetcher: f, store: s, log: log, now: time.Now}
}

// WithClock replaces the time source; used to pin capture dates.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Run performs one capture-and-diff cycle.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	res := Result{Features: []feature.Feature{}, Changes: []ChangeRecord{}}
	log := r.log.With("source", feature.SourceGraphQLSchema)

	if !r.cfg.Enabled {
		log.Info("graphql schema source disabled")
		return res, nil
	}
	if r.cfg.URL == "" {
		log.Warn("no graphql schema url configured")
		return res, nil
	}

	log.Info("fetching graphql schema", "url", r.cfg.URL)
	current, err := r.fetcher.FetchText(ctx, r.cfg.URL)
	if err != nil {
		return res, fmt.Errorf("%w: %s: %w", ErrFetch, r.cfg.URL, err)
	}

	now := r.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	path, err := r.store.Save(today, current)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	res.SnapshotPath = path
	log.Info("saved schema snapshot", "path", path, "bytes", len(current))

	prev, err := r.store.LatestPair()
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if prev == nil {
		log.Info("not enough snapshots to diff yet")
		return res, nil
	}
	res.PreviousDate = prev.Date
	log.Info("comparing with previous snapshot", "date", prev.Date.Format(snapshot.DateLayout))

	changes := Diff(schema.NewFacts(prev.Content), schema.NewFacts(current), today)
	features := ToFeatures(changes, now)
	log.Info("schema diff complete", "changes", len(changes))

	if err := r.persist(&res, prev, current, today, features); err != nil {
		return res, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	res.Changes = changes
	res.Features = features
	return res, nil
}

func (r *Runner) persist(res *Result, prev *snapshot.Snapshot, current string, today time.Time, features []feature.Feature) error {
	if r.cfg.OutDir == "" || len(features) == 0 {
		return nil
	}
	stamp := today.Format(snapshot.DateLayout)

	p := filepath.Join(r.cfg.OutDir, "changes-"+stamp+".json")
	if err := feature.Save(p, features); err != nil {
		return err
	}
	res.ChangesPath = p

	patch, oversize := diff.Unified(
		"schema-"+prev.Date.Format(snapshot.DateLayout)+".graphql",
		"schema-"+stamp+".graphql",
		prev.Content, current,
		diff.Options{MaxBytes: r.cfg.MaxPatchBytes},
	)
	if patch == "" {
		return nil
	}
	p = filepath.Join(r.cfg.OutDir, "schema-"+stamp+".patch")
	if err := fsutil.WriteFileAtomic(p, []byte(patch)); err != nil {
		return err
	}
	added, removed := diff.Stats(patch)
	r.log.Debug("wrote schema patch", "path", p, "added", added, "removed", removed, "oversize", oversize)
	res.PatchPath = p
	return nil
}
