package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"feature-monitor/internal/feature"
	"feature-monitor/internal/fsutil"
)

// DefaultTop is the sample size of added and removed features.
const DefaultTop = 8

const firstRunNote = "No baseline dashboard.json found; treating all current items as newly added."

// GapCounts tallies gaps by impact.
type GapCounts struct {
	Total   int `json:"total"`
	High    int `json:"high"`
	Medium  int `json:"medium"`
	Low     int `json:"low"`
	Unknown int `json:"unknown"`
}

// GapDelta pairs baseline and new gap counts.
type GapDelta struct {
	Old GapCounts `json:"old"`
	New GapCounts `json:"new"`
}

// Counts is the headline of a delta.
type Counts struct {
	TotalOld        int `json:"total_old"`
	TotalNew        int `json:"total_new"`
	FeaturesAdded   int `json:"features_added"`
	FeaturesRemoved int `json:"features_removed"`
	FeaturesChanged int `json:"features_changed"`
}

// FieldChange is an old/new pair of one feature attribute.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Change describes a feature present in both payloads whose attributes moved.
type Change struct {
	ID     string                 `json:"id"`
	Title  string                 `json:"title"`
	Fields map[string]FieldChange `json:"fields"`
}

// Delta is the executive summary between a baseline and a new payload.
type Delta struct {
	GeneratedAt         string            `json:"generated_at"`
	BaselineGeneratedAt *string           `json:"baseline_generated_at"`
	NewGeneratedAt      string            `json:"new_generated_at"`
	Counts              Counts            `json:"counts"`
	Gaps                GapDelta          `json:"gaps"`
	TopAdded            []feature.Summary `json:"top_added"`
	TopRemoved          []feature.Summary `json:"top_removed"`
	Changed             []Change          `json:"changed"`
	Note                *string           `json:"note"`
}

// Compare computes the delta from old to curr. A nil old means there is no
// baseline and every current feature counts as added.
func Compare(old *Payload, curr Payload, top int, now time.Time) Delta {
	if top <= 0 {
		top = DefaultTop
	}
	currByID, currOrder := indexByID(curr.Features)
	d := Delta{
		GeneratedAt:    now.Format(time.RFC3339),
		NewGeneratedAt: curr.GeneratedAt,
		Gaps:           GapDelta{New: countGaps(curr.Gaps)},
		TopRemoved:     []feature.Summary{},
		Changed:        []Change{},
	}
	d.Counts.TotalNew = len(currByID)

	if delta, ok := handleFirstRun(old, d, currByID, currOrder, top); ok {
		return delta
	}

	oldByID, _ := indexByID(old.Features)
	baseline := old.GeneratedAt
	d.BaselineGeneratedAt = &baseline
	d.Counts.TotalOld = len(oldByID)
	d.Gaps.Old = countGaps(old.Gaps)

	added := classifyAdded(oldByID, currByID)
	removed, changed := classifyRemovedAndChanged(oldByID, currByID)
	d.Counts.FeaturesAdded = len(added)
	d.Counts.FeaturesRemoved = len(removed)
	d.Counts.FeaturesChanged = len(changed)
	d.TopAdded = firstN(added, top)
	d.TopRemoved = firstN(removed, top)
	if len(changed) > top {
		changed = changed[:top]
	}
	d.Changed = changed
	return d
}

func handleFirstRun(old *Payload, d Delta, curr map[string]feature.Summary, order []string, top int) (Delta, bool) {
	if old != nil {
		return Delta{}, false
	}
	list := make([]feature.Summary, 0, len(order))
	for _, id := range order {
		list = append(list, curr[id])
	}
	d.Counts.FeaturesAdded = len(list)
	d.TopAdded = firstN(list, top)
	note := firstRunNote
	d.Note = &note
	return d, true
}

// indexByID normalises and keys features by id, dropping those without one.
// order keeps first-appearance order.
func indexByID(list []feature.Summary) (map[string]feature.Summary, []string) {
	m := make(map[string]feature.Summary, len(list))
	order := make([]string, 0, len(list))
	for _, f := range list {
		f = trimmed(f)
		if f.ID == "" {
			continue
		}
		if _, seen := m[f.ID]; !seen {
			order = append(order, f.ID)
		}
		m[f.ID] = f
	}
	return m, order
}

func trimmed(f feature.Summary) feature.Summary {
	return feature.Summary{
		ID:             strings.TrimSpace(f.ID),
		Title:          strings.TrimSpace(f.Title),
		SourceType:     strings.TrimSpace(f.SourceType),
		ProductArea:    strings.TrimSpace(f.ProductArea),
		SourceURL:      strings.TrimSpace(f.SourceURL),
		DateDiscovered: strings.TrimSpace(f.DateDiscovered),
	}
}

func classifyAdded(prev, curr map[string]feature.Summary) []feature.Summary {
	added := make([]feature.Summary, 0)
	for id, f := range curr {
		if _, ok := prev[id]; !ok {
			added = append(added, f)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i].ID < added[j].ID })
	return added
}

func classifyRemovedAndChanged(prev, curr map[string]feature.Summary) ([]feature.Summary, []Change) {
	removed := make([]feature.Summary, 0)
	changed := make([]Change, 0)
	for id, pf := range prev {
		cf, ok := curr[id]
		if !ok {
			removed = append(removed, pf)
			continue
		}
		if pf == cf {
			continue
		}
		c := Change{ID: id, Title: cf.Title, Fields: fieldChanges(pf, cf)}
		if c.Title == "" {
			c.Title = pf.Title
		}
		changed = append(changed, c)
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	sort.Slice(changed, func(i, j int) bool { return changed[i].ID < changed[j].ID })
	return removed, changed
}

func fieldChanges(a, b feature.Summary) map[string]FieldChange {
	out := map[string]FieldChange{}
	pairs := []struct {
		name          string
		before, after string
	}{
		{"title", a.Title, b.Title},
		{"source_type", a.SourceType, b.SourceType},
		{"product_area", a.ProductArea, b.ProductArea},
		{"source_url", a.SourceURL, b.SourceURL},
		{"date_discovered", a.DateDiscovered, b.DateDiscovered},
	}
	for _, p := range pairs {
		if p.before != p.after {
			out[p.name] = FieldChange{Old: p.before, New: p.after}
		}
	}
	return out
}

func countGaps(gaps []Gap) GapCounts {
	var c GapCounts
	for _, g := range gaps {
		c.Total++
		switch strings.ToLower(strings.TrimSpace(g.Impact)) {
		case "high":
			c.High++
		case "medium":
			c.Medium++
		case "low":
			c.Low++
		default:
			c.Unknown++
		}
	}
	return c
}

func firstN(list []feature.Summary, n int) []feature.Summary {
	if len(list) > n {
		list = list[:n]
	}
	return append([]feature.Summary{}, list...)
}

// DeltaMarkdown renders d as a short executive summary.
func DeltaMarkdown(d Delta) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}
	baseline := "n/a"
	if d.BaselineGeneratedAt != nil && *d.BaselineGeneratedAt != "" {
		baseline = *d.BaselineGeneratedAt
	}
	newAt := d.NewGeneratedAt
	if newAt == "" {
		newAt = "n/a"
	}
	line("# Dashboard Delta (Executive Summary)")
	line("")
	line("**Generated:** %s", d.GeneratedAt)
	line("**Baseline:** %s", baseline)
	line("**New snapshot:** %s", newAt)
	line("")
	line("## Key changes")
	line("")
	line("- **Features added:** %d", d.Counts.FeaturesAdded)
	line("- **Features removed:** %d", d.Counts.FeaturesRemoved)
	line("- **Features changed:** %d", d.Counts.FeaturesChanged)
	line("")
	line("## Gaps")
	line("")
	line("- **Total gaps:** %d → %d", d.Gaps.Old.Total, d.Gaps.New.Total)
	line("- **High-impact gaps:** %d → %d", d.Gaps.Old.High, d.Gaps.New.High)
	line("")
	if len(d.TopAdded) > 0 {
		line("## Newly added (sample)")
		line("")
		for _, f := range d.TopAdded {
			if f.SourceURL != "" {
				line("- %s (%s)", label(f), f.SourceURL)
			} else {
				line("- %s", label(f))
			}
		}
		line("")
	}
	if len(d.TopRemoved) > 0 {
		line("## Removed (sample)")
		line("")
		for _, f := range d.TopRemoved {
			line("- %s", label(f))
		}
		line("")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func label(f feature.Summary) string {
	if f.Title != "" {
		return f.Title
	}
	return f.ID
}

// WriteDelta saves d as JSON and Markdown.
func WriteDelta(jsonPath, mdPath string, d Delta) error {
	if err := fsutil.WriteJSON(jsonPath, d); err != nil {
		return fmt.Errorf("dashboard: save %s: %w", jsonPath, err)
	}
	if err := fsutil.WriteFileAtomic(mdPath, []byte(DeltaMarkdown(d))); err != nil {
		return fmt.Errorf("dashboard: save %s: %w", mdPath, err)
	}
	return nil
}
