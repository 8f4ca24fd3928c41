// Package index groups features by product area into feature_index.json,
// the lookup used by reviewers to see what changed per area.
package index

import (
	"fmt"

	"feature-monitor/internal/feature"
	"feature-monitor/internal/fsutil"
	"feature-monitor/internal/sortutil"
)

// Index maps a product area to its features in input order.
type Index map[string][]feature.Feature

// Build groups list by product area. Features without one land in "Unknown".
func Build(list []feature.Feature) Index {
	idx := make(Index)
	for _, f := range list {
		area := f.Area()
		f.Embedding = nil
		idx[area] = append(idx[area], f)
	}
	return idx
}

// Areas returns the area names sorted by descending size, then name.
func (idx Index) Areas() []string {
	sizes := make(map[string]int, len(idx))
	for a, list := range idx {
		sizes[a] = len(list)
	}
	out := make([]string, 0, len(idx))
	for _, c := range sortutil.ByCountDesc(sizes) {
		out = append(out, c.Key)
	}
	return out
}

// Save writes the index atomically. JSON object keys are emitted sorted.
func Save(path string, idx Index) error {
	if err := fsutil.WriteJSON(path, idx); err != nil {
		return fmt.Errorf("index: save %s: %w", path, err)
	}
	return nil
}
