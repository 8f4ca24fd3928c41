package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"feature-monitor/internal/config"
	"feature-monitor/internal/httpfetch"
	"feature-monitor/internal/report"
)

func summary() report.Summary {
	return report.Summary{
		TotalFeatures: 9,
		BySource:      map[string]int{"roadmap": 4, "changelog": 5},
		ByProductArea: map[string]int{"A": 1, "B": 2, "C": 3, "D": 1, "E": 1, "F": 1},
	}
}

func TestSlackMessage(t *testing.T) {
	p := SlackMessage(summary())
	if p.UnfurlLinks || !strings.HasPrefix(p.Text, "*Feature Monitoring Report*\n\n") {
		t.Fatalf("got %+v", p)
	}
	if strings.Index(p.Text, "changelog: 5") > strings.Index(p.Text, "roadmap: 4") {
		t.Fatalf("sources not sorted by name:\n%s", p.Text)
	}
	if strings.Count(p.Text[strings.Index(p.Text, "By Product Area"):], "•") != 5 {
		t.Fatalf("areas not capped at five:\n%s", p.Text)
	}
	raw, _ := json.Marshal(p)
	if !strings.Contains(string(raw), `"unfurl_links":false`) {
		t.Fatalf("got %s", raw)
	}
}

func TestTeamsMessage(t *testing.T) {
	c := TeamsMessage(summary())
	raw, _ := json.Marshal(c)
	for _, want := range []string{`"@type":"MessageCard"`, `"themeColor":"0078D7"`, `"activityTitle":"By Source"`, `"potentialAction":[]`} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("missing %s in %s", want, raw)
		}
	}
}

func TestSendAll(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, r.URL.Path+" "+string(b))
	}))
	defer srv.Close()

	cfg := config.Notifications{
		Slack: config.Channel{Enabled: true, WebhookURLEnv: "SLACK_HOOK"},
		Teams: config.Channel{Enabled: false, WebhookURLEnv: "TEAMS_HOOK"},
	}
	env := map[string]string{"SLACK_HOOK": srv.URL + "/slack"}
	n := New(cfg, httpfetch.New(httpfetch.Config{}, nil), nil).WithEnv(func(k string) string { return env[k] })
	results, err := n.SendAll(context.Background(), summary())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(bodies) != 1 || !strings.HasPrefix(bodies[0], "/slack ") || !results[1].Skipped {
		t.Fatalf("bodies=%v results=%+v", bodies, results)
	}
}

func TestSendAllMissingWebhook(t *testing.T) {
	cfg := config.Notifications{Teams: config.Channel{Enabled: true, WebhookURLEnv: "TEAMS_HOOK"}}
	n := New(cfg, httpfetch.New(httpfetch.Config{}, nil), nil).WithEnv(func(string) string { return "" })
	results, err := n.SendAll(context.Background(), summary())
	if !errors.Is(err, ErrDelivery) || !errors.Is(err, ErrMissingWebhook) {
		t.Fatalf("got %v", err)
	}
	if results[0].Err != nil || !errors.Is(results[1].Err, ErrMissingWebhook) {
		t.Fatalf("results %+v", results)
	}
}
