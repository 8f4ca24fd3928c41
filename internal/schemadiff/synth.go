package schemadiff

import (
	"time"

	"feature-monitor/internal/feature"
)

const (
	SourceURL   = "https://docs.github.com/graphql"
	ProductArea = "API"
)

// ToFeature maps a change record to the uniform feature shape.
func ToFeature(c ChangeRecord, discovered time.Time) feature.Feature {
	return feature.Feature{
		ID:             c.ID,
		Title:          c.Title,
		Description:    c.Description,
		SourceType:     feature.SourceGraphQLSchema,
		SourceURL:      SourceURL,
		ProductArea:    ProductArea,
		Tags:           append([]string(nil), c.Tags...),
		DateDiscovered: feature.Stamp(discovered),
	}
}

// ToFeatures maps every record, preserving order.
func ToFeatures(changes []ChangeRecord, discovered time.Time) []feature.Feature {
	out := make([]feature.Feature, 0, len(changes))
	for _, c := range changes {
		out = append(out, ToFeature(c, discovered))
	}
	return out
}
