package validate

import (
	"strings"
	"testing"

	"feature-monitor/internal/feature"
)

func good(id string) feature.Feature {
	return feature.Feature{
		ID:             id,
		Title:          "T",
		SourceType:     feature.SourceGraphQLSchema,
		Tags:           []string{"graphql"},
		DateDiscovered: "2024-06-15T09:00:00Z",
	}
}

func TestFeaturesClean(t *testing.T) {
	list := []feature.Feature{good("graphql_Gadget_20240615"), good("graphql_Query_b_20240615"), good("roadmap_12")}
	if err := Features(list); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Features(nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestFeaturesAggregatesIssues(t *testing.T) {
	bad := good("roadmap_1")
	bad.Title = " "
	bad.SourceType = "rumour"
	bad.DateDiscovered = "yesterday"
	bad.Tags = []string{""}
	list := []feature.Feature{bad, good("roadmap_1"), good("Not An Id")}

	err := Features(list)
	if err == nil {
		t.Fatalf("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"title must be non-empty", `unknown source_type "rumour"`, "RFC 3339", "tags[0]", "duplicate id", "<source>_<key>"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("missing %q in:\n%s", want, msg)
		}
	}
}

func TestRecordIgnoresBatchUniqueness(t *testing.T) {
	if issues := Record(good("roadmap_1")); len(issues) != 0 {
		t.Fatalf("clean record got %v", issues)
	}
	bad := good("changelog_")
	bad.Title = ""
	issues := Record(bad)
	if len(issues) != 2 || !strings.Contains(issues[0], "<source>_<key>") || issues[1] != "title must be non-empty" {
		t.Fatalf("got %v", issues)
	}
}
