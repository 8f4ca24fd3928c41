// Package validate performs structural checks on feature records before they
// are persisted. It is not a JSON-Schema validator; it checks the constraints
// that downstream reports rely on and aggregates every issue into one error.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"feature-monitor/internal/feature"
)

var (
	// ids are lowercase-prefixed tokens without whitespace
	reID = regexp.MustCompile(`^[a-z][a-z_]*_\S+$`)

	knownSources = map[string]struct{}{
		feature.SourceChangelog:     {},
		feature.SourceRoadmap:       {},
		feature.SourceGraphQLSchema: {},
	}
)

// Features validates a batch:
//
//   - id non-empty, "<source>_<key>" shaped, unique within the batch
//   - title non-empty
//   - source_type one of the known sources
//   - date_discovered, when set, parses as RFC 3339
//   - tags contain no empty strings
//
// It returns nil when the batch is clean.
func Features(list []feature.Feature) error {
	var errs errlist
	seen := make(map[string]int, len(list))
	for i, f := range list {
		prefix := fmt.Sprintf("features[%d] (%s)", i, f.ID)
		for _, issue := range Record(f) {
			errs.add("%s: %s", prefix, issue)
		}
		if j, dup := seen[f.ID]; dup && f.ID != "" {
			errs.add("%s: duplicate id, first seen at features[%d]", prefix, j)
		} else {
			seen[f.ID] = i
		}
	}
	return errs.err()
}

// Record lists the issues of a single record, ignoring batch uniqueness.
func Record(f feature.Feature) []string {
	var issues []string
	switch {
	case strings.TrimSpace(f.ID) == "":
		issues = append(issues, "id must be non-empty")
	case !reID.MatchString(f.ID):
		issues = append(issues, fmt.Sprintf("id must look like <source>_<key>, got %q", f.ID))
	}
	if strings.TrimSpace(f.Title) == "" {
		issues = append(issues, "title must be non-empty")
	}
	if _, ok := knownSources[f.SourceType]; !ok {
		issues = append(issues, fmt.Sprintf("unknown source_type %q", f.SourceType))
	}
	if f.DateDiscovered != "" {
		if _, err := time.Parse(time.RFC3339, f.DateDiscovered); err != nil {
			issues = append(issues, fmt.Sprintf("date_discovered must be RFC 3339, got %q", f.DateDiscovered))
		}
	}
	for j, tag := range f.Tags {
		if strings.TrimSpace(tag) == "" {
			issues = append(issues, fmt.Sprintf("tags[%d] must be non-empty", j))
		}
	}
	return issues
}

// errlist aggregates multiple validation issues into a single error.
type errlist struct {
	msgs []string
}

func (e *errlist) add(format string, args ...any) {
	e.msgs = append(e.msgs, fmt.Sprintf(format, args...))
}

func (e *errlist) err() error {
	if len(e.msgs) == 0 {
		return nil
	}
	return errors.New("invalid features:\n" + strings.Join(e.msgs, "\n"))
}
