// Package dashboard builds the JSON payload behind the published dashboard,
// keeps a dated history of payloads, and summarises what changed between
// two of them.
package dashboard

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"feature-monitor/internal/config"
	"feature-monitor/internal/contentcheck"
	"feature-monitor/internal/feature"
	"feature-monitor/internal/fsutil"
	"feature-monitor/internal/sortutil"
)

const (
	filePrefix = "dashboard_"
	// LatestName is the stable copy of the newest payload.
	LatestName  = "dashboard_latest.json"
	stampLayout = "20060102_150405"
)

// Point is one day of the discovery time series.
type Point struct {
	Date       string `json:"date"`
	Count      int    `json:"count"`
	Cumulative int    `json:"cumulative"`
}

// TimeSeries is the per-day discovery count.
type TimeSeries struct {
	Points []Point `json:"time_series"`
	Total  int     `json:"total"`
}

// Named is a labelled count.
type Named struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SourceBreakdown lists sources by name.
type SourceBreakdown struct {
	Sources []Named `json:"sources"`
}

// AreaBreakdown lists product areas by descending count.
type AreaBreakdown struct {
	ProductAreas []Named `json:"product_areas"`
}

// CheckStatus is the last known state of a configured content check.
type CheckStatus struct {
	Key        string  `json:"key"`
	Name       string  `json:"name"`
	URL        string  `json:"url"`
	CheckedAt  *string `json:"checked_at"`
	StatusCode *int    `json:"status_code"`
	OK         bool    `json:"ok"`
	Changed    *bool   `json:"changed"`
}

// Gap is a coverage gap published alongside the features. Only the impact
// is read here.
type Gap struct {
	Impact string `json:"impact"`
}

// Summary is the headline block.
type Summary struct {
	TotalFeatures int `json:"total_features"`
}

// Payload is one dashboard snapshot.
type Payload struct {
	GeneratedAt          string            `json:"generated_at"`
	Summary              Summary           `json:"summary"`
	TimeSeries           TimeSeries        `json:"time_series"`
	SourceBreakdown      SourceBreakdown   `json:"source_breakdown"`
	ProductAreaBreakdown AreaBreakdown     `json:"product_area_breakdown"`
	Features             []feature.Summary `json:"features"`
	ContentChecks        []CheckStatus     `json:"content_checks"`
	Gaps                 []Gap             `json:"gaps,omitempty"`
}

// Build assembles the payload for list.
func Build(list []feature.Feature, checks []CheckStatus, now time.Time) Payload {
	if checks == nil {
		checks = []CheckStatus{}
	}
	return Payload{
		GeneratedAt:          now.Format(time.RFC3339),
		Summary:              Summary{TotalFeatures: len(list)},
		TimeSeries:           buildTimeSeries(list),
		SourceBreakdown:      SourceBreakdown{Sources: named(sortutil.ByName(feature.CountBy(list, feature.BySource)))},
		ProductAreaBreakdown: AreaBreakdown{ProductAreas: named(sortutil.ByCountDesc(feature.CountBy(list, feature.ByArea)))},
		Features:             feature.Summaries(list),
		ContentChecks:        checks,
	}
}

func buildTimeSeries(list []feature.Feature) TimeSeries {
	byDate := map[string]int{}
	for _, f := range list {
		day, _, _ := strings.Cut(f.DateDiscovered, "T")
		if day == "" {
			continue
		}
		byDate[day]++
	}
	ts := TimeSeries{Points: []Point{}}
	for _, day := range sortutil.Keys(byDate) {
		ts.Total += byDate[day]
		ts.Points = append(ts.Points, Point{Date: day, Count: byDate[day], Cumulative: ts.Total})
	}
	return ts
}

func named(c []sortutil.Count) []Named {
	out := make([]Named, 0, len(c))
	for _, e := range c {
		out = append(out, Named{Name: e.Key, Count: e.Count})
	}
	return out
}

// CheckStatuses joins the configured checks with their persisted state under
// stateDir, ordered by key. Checks never run successfully have no state.
func CheckStatuses(checks map[string]config.ContentCheck, stateDir string) ([]CheckStatus, error) {
	states, err := contentcheck.LoadStates(stateDir)
	if err != nil {
		return nil, fmt.Errorf("dashboard: content checks: %w", err)
	}
	out := make([]CheckStatus, 0, len(checks))
	for _, key := range sortutil.Keys(checks) {
		cfg := checks[key]
		cs := CheckStatus{Key: key, Name: cfg.DisplayName, URL: cfg.URL}
		if cs.Name == "" {
			cs.Name = key
		}
		if st, ok := states[contentcheck.SafeKey(key)]; ok {
			checkedAt, code, changed := st.CheckedAt, st.StatusCode, st.Changed
			cs.CheckedAt = &checkedAt
			cs.StatusCode = &code
			cs.Changed = &changed
			cs.OK = code >= 200 && code < 400
		}
		out = append(out, cs)
	}
	return out, nil
}

// Save writes p as dashboard_<timestamp>.json and as the latest copy. It
// returns the timestamped path.
func Save(dir string, p Payload, now time.Time) (string, error) {
	stamped := filepath.Join(dir, filePrefix+now.Format(stampLayout)+".json")
	if err := fsutil.WriteJSON(stamped, p); err != nil {
		return "", fmt.Errorf("dashboard: save %s: %w", stamped, err)
	}
	latest := filepath.Join(dir, LatestName)
	if err := fsutil.WriteJSON(latest, p); err != nil {
		return stamped, fmt.Errorf("dashboard: save %s: %w", latest, err)
	}
	return stamped, nil
}

// Load reads a payload. A missing file returns os.ErrNotExist.
func Load(path string) (*Payload, error) {
	var p Payload
	found, err := fsutil.ReadJSON(path, &p)
	if err != nil {
		return nil, fmt.Errorf("dashboard: load %s: %w", path, err)
	}
	if !found {
		return nil, fmt.Errorf("dashboard: load %s: %w", path, os.ErrNotExist)
	}
	return &p, nil
}

// Cleanup removes timestamped payloads whose mtime is older than the
// retention window. The latest copy is never removed.
func Cleanup(dir string, retentionDays int, now time.Time, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	ents, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("dashboard: cleanup: %w", err)
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	removed := 0
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || name == LatestName {
			continue
		}
		info, err := e.Info()
		if err != nil {
			log.Warn("skipping dashboard file", "name", name, "err", err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			log.Warn("could not remove old dashboard", "name", name, "err", err)
			continue
		}
		log.Info("removed old dashboard", "name", name)
		removed++
	}
	return removed, nil
}
