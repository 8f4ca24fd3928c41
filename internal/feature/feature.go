// Package feature defines the uniform record every source is normalised into
// and the JSON file that accumulates them.
package feature

import (
	"errors"
	"fmt"
	"os"
	"time"

	"feature-monitor/internal/fsutil"
)

// Known source types.
const (
	SourceChangelog     = "changelog"
	SourceRoadmap       = "roadmap"
	SourceGraphQLSchema = "graphql_schema_diff"
)

// DefaultProductArea is used when a source does not classify its records.
const DefaultProductArea = "Unknown"

// Feature is one detected product change. JSON names are part of the on-disk
// format shared with the dashboard and reports.
type Feature struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	SourceType     string    `json:"source_type"`
	SourceURL      string    `json:"source_url,omitempty"`
	ProductArea    string    `json:"product_area"`
	Tags           []string  `json:"tags"`
	DateDiscovered string    `json:"date_discovered"`
	Embedding      []float64 `json:"embedding,omitempty"`
}

// Stamp formats t the way DateDiscovered is stored.
func Stamp(t time.Time) string {
	return t.Format(time.RFC3339)
}

// Area returns ProductArea or DefaultProductArea when unset.
func (f Feature) Area() string {
	if f.ProductArea == "" {
		return DefaultProductArea
	}
	return f.ProductArea
}

// Load reads a JSON array of features. A missing file yields an empty list.
func Load(path string) ([]Feature, error) {
	var list []Feature
	if _, err := fsutil.ReadJSON(path, &list); err != nil {
		return nil, fmt.Errorf("feature: load %s: %w", path, err)
	}
	return list, nil
}

// MustExist is Load but reports os.ErrNotExist for a missing file.
func MustExist(path string) ([]Feature, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("feature: %s: %w", path, err)
	}
	return Load(path)
}

// Save writes list atomically as an indented JSON array.
func Save(path string, list []Feature) error {
	if list == nil {
		list = []Feature{}
	}
	if err := fsutil.WriteJSON(path, list); err != nil {
		return fmt.Errorf("feature: save %s: %w", path, err)
	}
	return nil
}

// MergeUnique appends the records of extra whose id is not yet in base.
// Order is preserved: base first, then new records as they appear in extra.
func MergeUnique(base, extra []Feature) []Feature {
	out := make([]Feature, 0, len(base)+len(extra))
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range [][]Feature{base, extra} {
		for _, f := range list {
			if _, dup := seen[f.ID]; dup {
				continue
			}
			seen[f.ID] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

// Summary is the lite projection of a Feature published on the dashboard.
type Summary struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	SourceType     string `json:"source_type"`
	ProductArea    string `json:"product_area"`
	SourceURL      string `json:"source_url,omitempty"`
	DateDiscovered string `json:"date_discovered"`
}

// Summaries projects list in order.
func Summaries(list []Feature) []Summary {
	out := make([]Summary, 0, len(list))
	for _, f := range list {
		out = append(out, Summary{
			ID:             f.ID,
			Title:          f.Title,
			SourceType:     f.SourceType,
			ProductArea:    f.Area(),
			SourceURL:      f.SourceURL,
			DateDiscovered: f.DateDiscovered,
		})
	}
	return out
}

// CountBy tallies list by key.
func CountBy(list []Feature, key func(Feature) string) map[string]int {
	out := map[string]int{}
	for _, f := range list {
		out[key(f)]++
	}
	return out
}

// BySource keys a feature by its source type.
func BySource(f Feature) string { return f.SourceType }

// ByArea keys a feature by its product area.
func ByArea(f Feature) string { return f.Area() }
