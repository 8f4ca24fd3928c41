package schemadiff

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"feature-monitor/internal/schema"
)

var runDate = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

func facts(s string) schema.Facts { return schema.NewFacts(s) }

func ids(recs []ChangeRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestDiffNewTypeRecord(t *testing.T) {
	old := "type Widget {\n  id: ID\n}\n"
	cur := old + "type Gadget {\n  id: ID\n}\n"
	got := Diff(facts(old), facts(cur), runDate)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %v", ids(got))
	}
	r := got[0]
	if r.Kind != KindNewType || r.TypeName != "Gadget" || r.FieldName != "" {
		t.Fatalf("unexpected record %+v", r)
	}
	if r.ID != "graphql_Gadget_20240615" {
		t.Fatalf("id got %q", r.ID)
	}
	if r.Title != "New GraphQL Type: Gadget" {
		t.Fatalf("title got %q", r.Title)
	}
	if !reflect.DeepEqual(r.Tags, []string{"graphql", "api", "schema-change", "gadget"}) {
		t.Fatalf("tags got %v", r.Tags)
	}
}

func TestDiffNewFieldOnWatchedType(t *testing.T) {
	old := "type Query {\n  a: String\n}\n"
	cur := "type Query {\n  a: String\n  b: Int\n}\n"
	got := Diff(facts(old), facts(cur), runDate)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %v", ids(got))
	}
	r := got[0]
	if r.Kind != KindNewField || r.TypeName != "Query" || r.FieldName != "b" {
		t.Fatalf("unexpected record %+v", r)
	}
	if r.ID != "graphql_Query_b_20240615" || r.Title != "New GraphQL Field: Query.b" {
		t.Fatalf("got id=%q title=%q", r.ID, r.Title)
	}
	if r.Description != "A new field 'b' has been added to the 'Query' type in the GitHub GraphQL API." {
		t.Fatalf("description got %q", r.Description)
	}
	if r.Tags[2] != "field-addition" || r.Tags[3] != "query" {
		t.Fatalf("tags got %v", r.Tags)
	}
}

func TestDiffIgnoresUnwatchedTypeFields(t *testing.T) {
	old := "type Widget {\n  a: String\n}\n"
	cur := "type Widget {\n  a: String\n  b: Int\n}\n"
	if got := Diff(facts(old), facts(cur), runDate); len(got) != 0 {
		t.Fatalf("unwatched type produced %v", ids(got))
	}
}

func TestDiffWatchedTypeMustExistOnBothSides(t *testing.T) {
	old := "type Widget {\n  a: String\n}\n"
	cur := old + "type Issue {\n  title: String\n}\n"
	got := Diff(facts(old), facts(cur), runDate)
	if len(got) != 1 || got[0].Kind != KindNewType {
		t.Fatalf("expected only the new type, got %v", ids(got))
	}
}

func typeBlock(names ...string) string {
	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "type %s {\n  id: ID\n}\n", n)
	}
	return b.String()
}

func plainNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Widget%02d", i)
	}
	return out
}

// Up to ten new types are all reported; from eleven on only names containing
// mutation, query, input or payload are.
func TestSignificanceFilterBoundary(t *testing.T) {
	base := typeBlock("Existing")

	ten := Diff(facts(base), facts(base+typeBlock(plainNames(10)...)), runDate)
	if len(ten) != 10 {
		t.Fatalf("10 new types: expected all 10 reported, got %d", len(ten))
	}

	eleven := Diff(facts(base), facts(base+typeBlock(plainNames(11)...)), runDate)
	if len(eleven) != 0 {
		t.Fatalf("11 new types: expected none reported, got %v", ids(eleven))
	}

	names := append(plainNames(9), "AddStarPayload", "CreateRefInput", "SearchQueryRoot", "MutationRoot")
	busy := Diff(facts(base), facts(base+typeBlock(names...)), runDate)
	got := ids(busy)
	want := []string{
		"graphql_AddStarPayload_20240615",
		"graphql_CreateRefInput_20240615",
		"graphql_SearchQueryRoot_20240615",
		"graphql_MutationRoot_20240615",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestFieldCapFirstFiveInDeclarationOrder(t *testing.T) {
	old := "type Repository {\n  id: ID!\n}\n"
	cur := "type Repository {\n  id: ID!\n  f1: Int\n  f2: Int\n  f3: Int\n  f4: Int\n  f5: Int\n  f6: Int\n  f7: Int\n}\n"
	got := Diff(facts(old), facts(cur), runDate)
	if len(got) != 5 {
		t.Fatalf("expected exactly 5 records, got %d: %v", len(got), ids(got))
	}
	for i, r := range got {
		want := fmt.Sprintf("f%d", i+1)
		if r.FieldName != want || r.TypeName != "Repository" {
			t.Fatalf("record %d got %s.%s", i, r.TypeName, r.FieldName)
		}
	}
}

func TestFieldCapIsPerType(t *testing.T) {
	body := "  id: ID!\n"
	extra := ""
	for i := 1; i <= 6; i++ {
		extra += fmt.Sprintf("  n%d: Int\n", i)
	}
	old := "type Query {\n" + body + "}\ntype Mutation {\n" + body + "}\n"
	cur := "type Query {\n" + body + extra + "}\ntype Mutation {\n" + body + extra + "}\n"
	got := Diff(facts(old), facts(cur), runDate)
	per := map[string]int{}
	for _, r := range got {
		per[r.TypeName]++
	}
	if per["Query"] != 5 || per["Mutation"] != 5 {
		t.Fatalf("got %v", per)
	}
}

func TestDiffIsPure(t *testing.T) {
	old := typeBlock("Query", "Widget")
	cur := "type Query {\n  id: ID\n  x: Int\n}\n" + typeBlock("Widget", "Gadget", "Doohickey")
	a := ids(Diff(facts(old), facts(cur), runDate))
	b := ids(Diff(facts(old), facts(cur), runDate))
	sort.Strings(a)
	sort.Strings(b)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("diff not repeatable: %v vs %v", a, b)
	}
	if len(a) != 3 {
		t.Fatalf("expected 2 types and 1 field, got %v", a)
	}
}

func TestDiffNoChanges(t *testing.T) {
	s := typeBlock("Query", "Widget")
	if got := Diff(facts(s), facts(s), runDate); len(got) != 0 {
		t.Fatalf("got %v", ids(got))
	}
}

func TestToFeatureConstants(t *testing.T) {
	rec := newFieldRecord("Issue", "pinned", "20240615")
	f := ToFeature(rec, runDate)
	if f.SourceType != "graphql_schema_diff" || f.SourceURL != "https://docs.github.com/graphql" || f.ProductArea != "API" {
		t.Fatalf("unexpected constants %+v", f)
	}
	if f.ID != rec.ID || f.Title != rec.Title || f.Description != rec.Description {
		t.Fatalf("fields not carried over: %+v", f)
	}
	if f.DateDiscovered != "2024-06-15T00:00:00Z" {
		t.Fatalf("date got %q", f.DateDiscovered)
	}
	f.Tags[0] = "mutated"
	if rec.Tags[0] != "graphql" {
		t.Fatalf("tags slice shared with record")
	}
}
