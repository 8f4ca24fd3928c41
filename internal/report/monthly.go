package report

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"feature-monitor/internal/feature"
	"feature-monitor/internal/fsutil"
	"feature-monitor/internal/sortutil"
)

// FirstSeenSource answers which features were first ingested in a month.
// The history store implements it.
type FirstSeenSource interface {
	FirstSeenIn(ctx context.Context, month time.Time) ([]feature.Feature, error)
}

// TopFeature is the short form listed as notable in the monthly report.
type TopFeature struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Source      string `json:"source"`
	ProductArea string `json:"product_area"`
}

// MonthlySummary is the "summary" object of YYYY-MM_report.json.
type MonthlySummary struct {
	Year          int            `json:"year"`
	Month         int            `json:"month"`
	MonthName     string         `json:"month_name"`
	TotalFeatures int            `json:"total_features"`
	BySource      map[string]int `json:"by_source"`
	ByProductArea map[string]int `json:"by_product_area"`
	TopFeatures   []TopFeature   `json:"top_features"`
}

// MonthlyDocument is YYYY-MM_report.json.
type MonthlyDocument struct {
	Summary  MonthlySummary    `json:"summary"`
	Features []feature.Feature `json:"features"`
}

// FilterMonth keeps features whose date_discovered falls in month.
func FilterMonth(list []feature.Feature, month time.Time) []feature.Feature {
	prefix := month.Format("2006-01")
	out := []feature.Feature{}
	for _, f := range list {
		if strings.HasPrefix(f.DateDiscovered, prefix) {
			out = append(out, f)
		}
	}
	return out
}

// SummarizeMonth builds the monthly summary; topN limits the notable list.
func SummarizeMonth(list []feature.Feature, month time.Time, topN int) MonthlySummary {
	s := MonthlySummary{
		Year:          month.Year(),
		Month:         int(month.Month()),
		MonthName:     month.Month().String(),
		TotalFeatures: len(list),
		BySource:      feature.CountBy(list, feature.BySource),
		ByProductArea: feature.CountBy(list, feature.ByArea),
		TopFeatures:   []TopFeature{},
	}
	for i, f := range list {
		if topN > 0 && i >= topN {
			break
		}
		s.TopFeatures = append(s.TopFeatures, TopFeature{ID: f.ID, Title: f.Title, Source: f.SourceType, ProductArea: f.ProductArea})
	}
	return s
}

var monthlyTmpl = template.Must(template.New("monthly").Parse(`# Monthly Feature Report - {{.S.MonthName}} {{.S.Year}}

**Generated:** {{.Generated}}

## Summary

- **Total Features:** {{.S.TotalFeatures}}

{{if .BySource}}### By Source

{{range .BySource}}- **{{.Key}}:** {{.Count}}
{{end}}
{{end}}{{if .ByArea}}### By Product Area

{{range .ByArea}}- **{{.Key}}:** {{.Count}}
{{end}}
{{end}}{{if .S.TopFeatures}}## Notable Features

{{range .S.TopFeatures}}### {{.Title}}

- **Source:** {{.Source}}
- **Product Area:** {{.ProductArea}}

{{end}}{{end}}`))

// MonthlyMarkdown renders s. Product areas are limited to the ten largest.
func MonthlyMarkdown(s MonthlySummary, now time.Time) (string, error) {
	v := struct {
		S         MonthlySummary
		Generated string
		BySource  []sortutil.Count
		ByArea    []sortutil.Count
	}{
		S:         s,
		Generated: now.Format("2006-01-02 15:04:05"),
		BySource:  sortutil.ByName(s.BySource),
		ByArea:    sortutil.Top(sortutil.ByCountDesc(s.ByProductArea), 10),
	}
	var buf bytes.Buffer
	if err := monthlyTmpl.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("report: render monthly: %w", err)
	}
	return buf.String(), nil
}

// Monthly produces the report for one calendar month.
type Monthly struct {
	Dir  string
	TopN int
	// History, when set, decides membership by first-seen time. Otherwise
	// the date_discovered prefix of the features file is used.
	History FirstSeenSource
	log     *slog.Logger
	now     func() time.Time
}

// NewMonthly returns a Monthly writing into dir.
func NewMonthly(dir string, topN int, history FirstSeenSource, log *slog.Logger) *Monthly {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if topN <= 0 {
		topN = 10
	}
	return &Monthly{Dir: dir, TopN: topN, History: history, log: log, now: time.Now}
}

// WithClock overrides the time source.
func (m *Monthly) WithClock(now func() time.Time) *Monthly {
	m.now = now
	return m
}

// Generate writes YYYY-MM_report.json and .md for month. all is the full
// feature list; it must be non-empty.
func (m *Monthly) Generate(ctx context.Context, all []feature.Feature, month time.Time) ([]string, error) {
	if len(all) == 0 {
		return nil, ErrNoFeatures
	}
	month = time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	list, err := m.selectFeatures(ctx, all, month)
	if err != nil {
		return nil, err
	}
	m.log.Info("monthly selection", "month", month.Format("2006-01"), "features", len(list))

	summary := SummarizeMonth(list, month, m.TopN)
	base := filepath.Join(m.Dir, month.Format("2006-01")+"_report")
	if err := fsutil.WriteJSON(base+".json", MonthlyDocument{Summary: summary, Features: list}); err != nil {
		return nil, fmt.Errorf("report: save %s.json: %w", base, err)
	}
	md, err := MonthlyMarkdown(summary, m.now())
	if err != nil {
		return nil, err
	}
	if err := fsutil.WriteFileAtomic(base+".md", []byte(md)); err != nil {
		return nil, fmt.Errorf("report: save %s.md: %w", base, err)
	}
	return []string{base + ".json", base + ".md"}, nil
}

func (m *Monthly) selectFeatures(ctx context.Context, all []feature.Feature, month time.Time) ([]feature.Feature, error) {
	if m.History == nil {
		return FilterMonth(all, month), nil
	}
	list, err := m.History.FirstSeenIn(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("report: history: %w", err)
	}
	if list == nil {
		list = []feature.Feature{}
	}
	return list, nil
}
