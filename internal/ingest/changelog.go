package ingest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"feature-monitor/internal/textutil"
)

// Entry is one changelog post, whatever format it came from. HTML holds the
// raw feed body when the feed carried markup.
type Entry struct {
	Title     string
	Link      string
	Summary   string
	Published string
	HTML      string
}

// ParseChangelog accepts an RSS 2.0 / Atom 1.0 feed or an HTML page.
// The format is detected from the first element. Relative links in HTML are
// resolved against base.
func ParseChangelog(data []byte, base string) ([]Entry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("changelog: empty body")
	}
	switch detectFeed(trimmed) {
	case "rss":
		return parseRSS(trimmed)
	case "atom":
		return parseAtom(trimmed)
	default:
		return parseHTML(trimmed, base)
	}
}

func detectFeed(data []byte) string {
	if data[0] != '<' || bytes.HasPrefix(bytes.ToLower(data[:min(len(data), 15)]), []byte("<!doctype html")) {
		return ""
	}
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	for {
		tok, err := d.Token()
		if err != nil {
			return ""
		}
		if se, ok := tok.(xml.StartElement); ok {
			switch strings.ToLower(se.Name.Local) {
			case "rss", "rdf":
				return "rss"
			case "feed":
				return "atom"
			}
			return ""
		}
	}
}

// --- feeds ---

type rssRoot struct {
	Channel struct {
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			Description string `xml:"description"`
			PubDate     string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

func parseRSS(data []byte) ([]Entry, error) {
	var root rssRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("changelog: parse rss: %w", err)
	}
	out := make([]Entry, 0, len(root.Channel.Items))
	for _, it := range root.Channel.Items {
		title := strings.TrimSpace(it.Title)
		if title == "" {
			continue
		}
		out = append(out, Entry{
			Title:     title,
			Link:      strings.TrimSpace(it.Link),
			Summary:   plainText(it.Description),
			Published: strings.TrimSpace(it.PubDate),
			HTML:      it.Description,
		})
	}
	return out, nil
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

type atomRoot struct {
	Entries []struct {
		Title     string     `xml:"title"`
		Links     []atomLink `xml:"link"`
		Summary   string     `xml:"summary"`
		Published string     `xml:"published"`
		Updated   string     `xml:"updated"`
	} `xml:"entry"`
}

func parseAtom(data []byte) ([]Entry, error) {
	var root atomRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("changelog: parse atom: %w", err)
	}
	out := make([]Entry, 0, len(root.Entries))
	for _, e := range root.Entries {
		title := strings.TrimSpace(e.Title)
		if title == "" {
			continue
		}
		link := ""
		for _, l := range e.Links {
			if l.Rel == "" || l.Rel == "alternate" {
				link = strings.TrimSpace(l.Href)
				break
			}
		}
		published := strings.TrimSpace(e.Published)
		if published == "" {
			published = strings.TrimSpace(e.Updated)
		}
		out = append(out, Entry{
			Title:     title,
			Link:      link,
			Summary:   plainText(e.Summary),
			Published: published,
			HTML:      e.Summary,
		})
	}
	return out, nil
}

// plainText strips markup from an embedded HTML fragment.
func plainText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return textutil.CollapseWhitespace(fragment)
	}
	n, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return textutil.CollapseWhitespace(fragment)
	}
	return collectText(n)
}

// --- HTML ---

// parseHTML reads one entry per <article>. Pages without articles fall back
// to h2/h3 headings that wrap a link.
func parseHTML(data []byte, base string) ([]Entry, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("changelog: parse html: %w", err)
	}
	baseURL, _ := url.Parse(base)

	var articles []*html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Article {
			articles = append(articles, n)
			return false
		}
		return true
	})

	out := make([]Entry, 0, len(articles))
	for _, a := range articles {
		e := Entry{}
		if h := first(a, atom.H1, atom.H2, atom.H3); h != nil {
			e.Title = collectText(h)
			if l := first(h, atom.A); l != nil {
				e.Link = attr(l, "href")
			}
		}
		if e.Link == "" {
			if l := first(a, atom.A); l != nil {
				e.Link = attr(l, "href")
			}
		}
		if t := first(a, atom.Time); t != nil {
			e.Published = attr(t, "datetime")
		}
		if p := first(a, atom.P); p != nil {
			e.Summary = collectText(p)
		}
		if e.Title == "" {
			continue
		}
		e.Link = resolve(baseURL, e.Link)
		out = append(out, e)
	}
	if len(out) > 0 {
		return out, nil
	}

	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || (n.DataAtom != atom.H2 && n.DataAtom != atom.H3) {
			return true
		}
		if l := first(n, atom.A); l != nil {
			if title := collectText(n); title != "" {
				out = append(out, Entry{Title: title, Link: resolve(baseURL, attr(l, "href"))})
			}
		}
		return false
	})
	return out, nil
}

// walk visits n depth-first; visit returns false to skip children.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func first(n *html.Node, atoms ...atom.Atom) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if c != n && c.Type == html.ElementNode {
			for _, a := range atoms {
				if c.DataAtom == a {
					found = c
					return false
				}
			}
		}
		return true
	})
	return found
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func collectText(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Script || c.DataAtom == atom.Style) {
			return false
		}
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
		return true
	})
	return textutil.CollapseWhitespace(b.String())
}

func resolve(base *url.URL, href string) string {
	if href == "" || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
