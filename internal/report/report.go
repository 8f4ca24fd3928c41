// Package report renders the feature set into report.json and report.md,
// and the per-month summaries under the monthly report directory.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"text/template"
	"time"

	"feature-monitor/internal/coverage"
	"feature-monitor/internal/feature"
	"feature-monitor/internal/fsutil"
	"feature-monitor/internal/sortutil"
)

// Output formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// markdownLimit is how many features the Markdown report lists in full.
const markdownLimit = 20

// ErrNoFeatures is returned when there is nothing to report on.
var ErrNoFeatures = errors.New("report: no features")

// Summary counts features by source and product area.
type Summary struct {
	TotalFeatures int            `json:"total_features"`
	BySource      map[string]int `json:"by_source"`
	ByProductArea map[string]int `json:"by_product_area"`
}

// Summarize tallies list.
func Summarize(list []feature.Feature) Summary {
	return Summary{
		TotalFeatures: len(list),
		BySource:      feature.CountBy(list, feature.BySource),
		ByProductArea: feature.CountBy(list, feature.ByArea),
	}
}

// Document is report.json.
type Document struct {
	GeneratedAt string            `json:"generated_at"`
	Summary     Summary           `json:"summary"`
	Coverage    *coverage.Metrics `json:"coverage,omitempty"`
	Features    []feature.Feature `json:"features"`
}

// Build assembles the report document. cov may be nil when no coverage
// report exists yet.
func Build(list []feature.Feature, cov *coverage.Report, now time.Time) Document {
	doc := Document{
		GeneratedAt: now.Format(time.RFC3339),
		Summary:     Summarize(list),
		Features:    list,
	}
	if doc.Features == nil {
		doc.Features = []feature.Feature{}
	}
	if cov != nil {
		m := cov.Metrics
		doc.Coverage = &m
	}
	return doc
}

var markdownTmpl = template.Must(template.New("report").Parse(`# Feature Monitoring Report

**Generated:** {{.Generated}}

## Summary

- **Total Features:** {{.Total}}

### By Source

{{range .BySource}}- **{{.Key}}:** {{.Count}}
{{end}}
### By Product Area

{{range .ByArea}}- **{{.Key}}:** {{.Count}}
{{end}}{{if .HasCoverage}}
## Coverage

- **Embeddings Coverage:** {{printf "%.1f" .Coverage}}%
{{end}}
## Features

{{range .Shown}}### {{.Title}}

- **Source:** {{.SourceType}}
- **Product Area:** {{.ProductArea}}
{{if .SourceURL}}- **URL:** {{.SourceURL}}
{{end}}
{{.Description}}

{{end}}{{if .More}}
*... and {{.More}} more features*
{{end}}`))

type markdownView struct {
	Generated string
	Total     int
	BySource  []sortutil.Count
	ByArea    []sortutil.Count
	Shown     []feature.Feature
	More      int

	HasCoverage bool
	Coverage    float64
}

// Markdown renders doc for humans. Only the first twenty features are
// listed in full.
func Markdown(doc Document, now time.Time) (string, error) {
	v := markdownView{
		Generated: now.Format("2006-01-02 15:04:05"),
		Total:     doc.Summary.TotalFeatures,
		BySource:  sortutil.ByName(doc.Summary.BySource),
		ByArea:    sortutil.ByName(doc.Summary.ByProductArea),
		Shown:     doc.Features,
	}
	if doc.Coverage != nil {
		v.HasCoverage = true
		v.Coverage = doc.Coverage.EmbeddingsCoverage.Percentage * 100
	}
	if len(v.Shown) > markdownLimit {
		v.More = len(v.Shown) - markdownLimit
		v.Shown = v.Shown[:markdownLimit]
	}
	var buf bytes.Buffer
	if err := markdownTmpl.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("report: render markdown: %w", err)
	}
	return buf.String(), nil
}

// Writer saves reports into Dir in the configured formats.
type Writer struct {
	Dir     string
	Formats []string
	log     *slog.Logger
	now     func() time.Time
}

// NewWriter returns a Writer. Empty formats mean both JSON and Markdown.
func NewWriter(dir string, formats []string, log *slog.Logger) *Writer {
	if len(formats) == 0 {
		formats = []string{FormatJSON, FormatMarkdown}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Writer{Dir: dir, Formats: formats, log: log, now: time.Now}
}

// WithClock overrides the time source.
func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

// Write renders and saves the report for list. It returns the written paths.
func (w *Writer) Write(list []feature.Feature, cov *coverage.Report) ([]string, error) {
	if len(list) == 0 {
		return nil, ErrNoFeatures
	}
	now := w.now()
	doc := Build(list, cov, now)
	var paths []string
	if slices.Contains(w.Formats, FormatJSON) {
		p := filepath.Join(w.Dir, "report.json")
		if err := fsutil.WriteJSON(p, doc); err != nil {
			return paths, fmt.Errorf("report: save %s: %w", p, err)
		}
		w.log.Info("saved report", "format", FormatJSON, "path", p)
		paths = append(paths, p)
	}
	if slices.Contains(w.Formats, FormatMarkdown) {
		md, err := Markdown(doc, now)
		if err != nil {
			return paths, err
		}
		p := filepath.Join(w.Dir, "report.md")
		if err := fsutil.WriteFileAtomic(p, []byte(md)); err != nil {
			return paths, fmt.Errorf("report: save %s: %w", p, err)
		}
		w.log.Info("saved report", "format", FormatMarkdown, "path", p)
		paths = append(paths, p)
	}
	return paths, nil
}

// LoadCoverage reads coverage.json, returning nil when it has not been
// produced yet.
func LoadCoverage(path string, log *slog.Logger) (*coverage.Report, error) {
	r, found, err := coverage.Load(path)
	if err != nil {
		return nil, err
	}
	if !found {
		if log != nil {
			log.Warn("coverage report not found", "path", path)
		}
		return nil, nil
	}
	return &r, nil
}
