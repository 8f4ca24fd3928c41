package ingest

import (
	"net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
)

var (
	ugcPolicy   = bluemonday.UGCPolicy()
	mdConverter = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
		),
	)
)

// toMarkdown sanitizes a feed HTML fragment and renders it as Markdown.
// Relative links are made absolute against domain. fallback is returned when
// nothing survives sanitizing or conversion fails.
func toMarkdown(fragment, domain, fallback string) string {
	if strings.TrimSpace(fragment) == "" {
		return fallback
	}
	clean := ugcPolicy.Sanitize(fragment)
	var md string
	var err error
	if domain != "" {
		md, err = mdConverter.ConvertString(clean, converter.WithDomain(domain))
	} else {
		md, err = mdConverter.ConvertString(clean)
	}
	if err != nil {
		return fallback
	}
	if md = strings.TrimSpace(md); md == "" {
		return fallback
	}
	return md
}

// origin reduces a feed URL to scheme and host.
func origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
