// Package notify posts the report summary to Slack and Teams incoming
// webhooks. Webhook URLs are read from environment variables named in the
// configuration, never from the configuration itself.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"feature-monitor/internal/config"
	"feature-monitor/internal/httpfetch"
	"feature-monitor/internal/report"
	"feature-monitor/internal/sortutil"
)

// Channel names.
const (
	ChannelSlack = "slack"
	ChannelTeams = "teams"
)

const title = "Feature Monitoring Report"

var (
	// ErrMissingWebhook means the channel is enabled but its env var is empty.
	ErrMissingWebhook = errors.New("notify: webhook url not set")
	// ErrDelivery is returned by SendAll when any channel failed.
	ErrDelivery = errors.New("notify: delivery failed")
)

// Poster is the HTTP collaborator.
type Poster interface {
	PostJSON(ctx context.Context, url string, payload any) (*httpfetch.Response, error)
}

// SlackPayload is the incoming-webhook body.
type SlackPayload struct {
	Text        string `json:"text"`
	UnfurlLinks bool   `json:"unfurl_links"`
}

// TeamsFact is a name/value row of a MessageCard.
type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// TeamsSection is one MessageCard section.
type TeamsSection struct {
	ActivityTitle string      `json:"activityTitle"`
	Text          string      `json:"text,omitempty"`
	Facts         []TeamsFact `json:"facts,omitempty"`
}

// TeamsCard is a legacy Office 365 connector MessageCard.
type TeamsCard struct {
	Type            string         `json:"@type"`
	Context         string         `json:"@context"`
	Summary         string         `json:"summary"`
	ThemeColor      string         `json:"themeColor"`
	Title           string         `json:"title"`
	Sections        []TeamsSection `json:"sections"`
	PotentialAction []any          `json:"potentialAction"`
}

// SlackMessage formats s for Slack. Product areas are limited to the five
// largest.
func SlackMessage(s report.Summary) SlackPayload {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n\n", title)
	fmt.Fprintf(&b, "📊 Total Features: %d\n", s.TotalFeatures)
	if len(s.BySource) > 0 {
		b.WriteString("\n*By Source:*\n")
		for _, c := range sortutil.ByName(s.BySource) {
			fmt.Fprintf(&b, "  • %s: %d\n", c.Key, c.Count)
		}
	}
	if len(s.ByProductArea) > 0 {
		b.WriteString("\n*By Product Area:*\n")
		for _, c := range sortutil.Top(sortutil.ByCountDesc(s.ByProductArea), 5) {
			fmt.Fprintf(&b, "  • %s: %d\n", c.Key, c.Count)
		}
	}
	return SlackPayload{Text: b.String(), UnfurlLinks: false}
}

// TeamsMessage formats s as a MessageCard.
func TeamsMessage(s report.Summary) TeamsCard {
	card := TeamsCard{
		Type:            "MessageCard",
		Context:         "https://schema.org/extensions",
		Summary:         title,
		ThemeColor:      "0078D7",
		Title:           title,
		Sections:        []TeamsSection{},
		PotentialAction: []any{},
	}
	card.Sections = append(card.Sections, TeamsSection{
		ActivityTitle: "Summary",
		Facts:         []TeamsFact{{Name: "Total Features", Value: fmt.Sprint(s.TotalFeatures)}},
	})
	if len(s.BySource) > 0 {
		lines := make([]string, 0, len(s.BySource))
		for _, c := range sortutil.ByName(s.BySource) {
			lines = append(lines, fmt.Sprintf("- %s: %d", c.Key, c.Count))
		}
		card.Sections = append(card.Sections, TeamsSection{ActivityTitle: "By Source", Text: strings.Join(lines, "\n")})
	}
	return card
}

// Result is the outcome for one channel. Err is nil on success, including
// when the channel is disabled.
type Result struct {
	Channel string
	Skipped bool
	Err     error
}

// Notifier sends to every configured channel.
type Notifier struct {
	cfg    config.Notifications
	http   Poster
	getenv func(string) string
	log    *slog.Logger
}

// New returns a Notifier reading webhooks from the process environment.
func New(cfg config.Notifications, http Poster, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Notifier{cfg: cfg, http: http, getenv: os.Getenv, log: log}
}

// WithEnv overrides the environment lookup.
func (n *Notifier) WithEnv(getenv func(string) string) *Notifier {
	n.getenv = getenv
	return n
}

// SendAll notifies Slack then Teams. Every channel is attempted; the error
// wraps ErrDelivery when at least one failed.
func (n *Notifier) SendAll(ctx context.Context, s report.Summary) ([]Result, error) {
	results := []Result{
		n.send(ctx, ChannelSlack, n.cfg.Slack, SlackMessage(s)),
		n.send(ctx, ChannelTeams, n.cfg.Teams, TeamsMessage(s)),
	}
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Channel, r.Err))
		}
	}
	n.log.Info("notifications sent", "ok", len(results)-len(errs), "total", len(results))
	if len(errs) > 0 {
		return results, fmt.Errorf("%w: %w", ErrDelivery, errors.Join(errs...))
	}
	return results, nil
}

func (n *Notifier) send(ctx context.Context, name string, ch config.Channel, payload any) Result {
	if !ch.Enabled {
		n.log.Info("notifications disabled", "channel", name)
		return Result{Channel: name, Skipped: true}
	}
	url := strings.TrimSpace(n.getenv(ch.WebhookURLEnv))
	if url == "" {
		n.log.Warn("webhook url not found in environment", "channel", name, "env", ch.WebhookURLEnv)
		return Result{Channel: name, Err: ErrMissingWebhook}
	}
	if _, err := n.http.PostJSON(ctx, url, payload); err != nil {
		n.log.Error("notification failed", "channel", name, "err", err)
		return Result{Channel: name, Err: err}
	}
	n.log.Info("notification sent", "channel", name)
	return Result{Channel: name}
}
