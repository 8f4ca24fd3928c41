// Package coverage measures how the accumulated features spread across
// product areas and sources, and how many carry an embedding, then grades
// embedding coverage against configured thresholds.
package coverage

import (
	"fmt"
	"time"

	"feature-monitor/internal/feature"
	"feature-monitor/internal/fsutil"
)

// Evaluation statuses.
const (
	StatusPass    = "pass"
	StatusWarning = "warning"
	StatusFail    = "fail"
)

// Share is a count and its fraction of the total (0 when the total is 0).
type Share struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Metrics summarises a feature set.
type Metrics struct {
	TotalFeatures      int              `json:"total_features"`
	ByProductArea      map[string]Share `json:"by_product_area"`
	BySourceType       map[string]Share `json:"by_source_type"`
	EmbeddingsCoverage Share            `json:"embeddings_coverage"`
}

// Evaluation is the threshold verdict.
type Evaluation struct {
	Status string   `json:"status"`
	Issues []string `json:"issues"`
}

// Report is the persisted coverage.json document.
type Report struct {
	Metrics    Metrics    `json:"metrics"`
	Evaluation Evaluation `json:"evaluation"`
	Timestamp  string     `json:"timestamp"`
}

// Thresholds grade embeddings coverage. Below Min fails, below Warning warns.
type Thresholds struct {
	Min     float64
	Warning float64
}

// Calculate computes metrics for list.
func Calculate(list []feature.Feature) Metrics {
	total := len(list)
	byArea := map[string]int{}
	bySource := map[string]int{}
	embedded := 0
	for _, f := range list {
		byArea[f.Area()]++
		bySource[f.SourceType]++
		if len(f.Embedding) > 0 {
			embedded++
		}
	}
	return Metrics{
		TotalFeatures:      total,
		ByProductArea:      shares(byArea, total),
		BySourceType:       shares(bySource, total),
		EmbeddingsCoverage: share(embedded, total),
	}
}

// Evaluate grades m against t.
func Evaluate(m Metrics, t Thresholds) Evaluation {
	ev := Evaluation{Status: StatusPass, Issues: []string{}}
	pct := m.EmbeddingsCoverage.Percentage
	switch {
	case pct < t.Min:
		ev.Status = StatusFail
		ev.Issues = append(ev.Issues, fmt.Sprintf("Embeddings coverage (%.1f%%) below minimum threshold (%.1f%%)", pct*100, t.Min*100))
	case pct < t.Warning:
		ev.Status = StatusWarning
		ev.Issues = append(ev.Issues, fmt.Sprintf("Embeddings coverage (%.1f%%) below warning threshold (%.1f%%)", pct*100, t.Warning*100))
	}
	return ev
}

// Build computes and grades list at time now.
func Build(list []feature.Feature, t Thresholds, now time.Time) Report {
	m := Calculate(list)
	return Report{Metrics: m, Evaluation: Evaluate(m, t), Timestamp: now.Format(time.RFC3339)}
}

// Save writes r atomically.
func Save(path string, r Report) error {
	if err := fsutil.WriteJSON(path, r); err != nil {
		return fmt.Errorf("coverage: save %s: %w", path, err)
	}
	return nil
}

// Load reads a saved report; found is false when the file does not exist.
func Load(path string) (r Report, found bool, err error) {
	found, err = fsutil.ReadJSON(path, &r)
	if err != nil {
		return Report{}, found, fmt.Errorf("coverage: load %s: %w", path, err)
	}
	return r, found, nil
}

func shares(counts map[string]int, total int) map[string]Share {
	out := make(map[string]Share, len(counts))
	for k, n := range counts {
		out[k] = share(n, total)
	}
	return out
}

func share(n, total int) Share {
	if total == 0 {
		return Share{Count: n}
	}
	return Share{Count: n, Percentage: float64(n) / float64(total)}
}
