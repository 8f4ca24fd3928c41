// Package schemadiff detects structural additions between two GraphQL schema
// snapshots and turns them into feature records.
//
// The differ is a pure function of (previous facts, current facts, date):
//   - New types are current type names minus previous type names.
//   - On a quiet run (at most noiseThreshold new types) every new type is
//     reported. On a busy run only names containing a significant substring
//     are reported.
//   - Fields are compared only for the watched types present on both sides,
//     and at most fieldCap new fields are reported per type.
//
// Both lists follow declaration order in the new snapshot, so the fields
// picked by the cap are the first ones declared.
package schemadiff

import (
	"fmt"
	"strings"
	"time"

	"feature-monitor/internal/schema"
)

// Kind classifies a change record.
type Kind string

const (
	KindNewType  Kind = "new-type"
	KindNewField Kind = "new-field"
)

const (
	noiseThreshold = 10
	fieldCap       = 5
	idDateLayout   = "20060102"
)

var (
	significantSubstrings = []string{"mutation", "query", "input", "payload"}
	watchList             = []string{"Mutation", "Query", "Repository", "PullRequest", "Issue"}
)

// WatchList returns the type names eligible for field-level diffing.
func WatchList() []string {
	return append([]string(nil), watchList...)
}

// ChangeRecord is one detected addition. FieldName is empty for new types.
type ChangeRecord struct {
	ID          string
	Kind        Kind
	TypeName    string
	FieldName   string
	Title       string
	Description string
	Tags        []string
}

// Diff compares the facts of the previous snapshot with those of the current
// one, captured on date.
func Diff(prev, curr schema.Facts, date time.Time) []ChangeRecord {
	stamp := date.Format(idDateLayout)
	out := make([]ChangeRecord, 0)

	added := make([]string, 0)
	for _, name := range curr.TypeNames() {
		if !prev.HasType(name) {
			added = append(added, name)
		}
	}
	quiet := len(added) <= noiseThreshold
	for _, name := range added {
		if quiet || isSignificant(name) {
			out = append(out, newTypeRecord(name, stamp))
		}
	}

	for _, typeName := range watchList {
		if !prev.HasType(typeName) || !curr.HasType(typeName) {
			continue
		}
		known := toSet(prev.Fields(typeName))
		n := 0
		for _, field := range curr.Fields(typeName) {
			if _, ok := known[field]; ok {
				continue
			}
			if n == fieldCap {
				break
			}
			out = append(out, newFieldRecord(typeName, field, stamp))
			n++
		}
	}
	return out
}

func isSignificant(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range significantSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func newTypeRecord(name, stamp string) ChangeRecord {
	return ChangeRecord{
		ID:          fmt.Sprintf("graphql_%s_%s", name, stamp),
		Kind:        KindNewType,
		TypeName:    name,
		Title:       "New GraphQL Type: " + name,
		Description: fmt.Sprintf("A new GraphQL type '%s' has been added to the GitHub API schema.", name),
		Tags:        []string{"graphql", "api", "schema-change", strings.ToLower(name)},
	}
}

func newFieldRecord(typeName, field, stamp string) ChangeRecord {
	return ChangeRecord{
		ID:          fmt.Sprintf("graphql_%s_%s_%s", typeName, field, stamp),
		Kind:        KindNewField,
		TypeName:    typeName,
		FieldName:   field,
		Title:       fmt.Sprintf("New GraphQL Field: %s.%s", typeName, field),
		Description: fmt.Sprintf("A new field '%s' has been added to the '%s' type in the GitHub GraphQL API.", field, typeName),
		Tags:        []string{"graphql", "api", "field-addition", strings.ToLower(typeName)},
	}
}

func toSet(list []string) map[string]struct{} {
	m := make(map[string]struct{}, len(list))
	for _, v := range list {
		m[v] = struct{}{}
	}
	return m
}
