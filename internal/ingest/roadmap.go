package ingest

import (
	"strconv"
	"strings"
)

// roadmapIssue is the subset of the GitHub issues API payload we read.
type roadmapIssue struct {
	Number  int     `json:"number"`
	Title   string  `json:"title"`
	Body    *string `json:"body"`
	HTMLURL string  `json:"html_url"`
	Labels  []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

func (i roadmapIssue) id() string { return "roadmap_" + strconv.Itoa(i.Number) }

func (i roadmapIssue) description() string {
	if i.Body == nil || strings.TrimSpace(*i.Body) == "" {
		return "No description"
	}
	return *i.Body
}

func (i roadmapIssue) tags() []string {
	out := make([]string, 0, 1+len(i.Labels))
	out = append(out, "roadmap")
	for _, l := range i.Labels {
		if l.Name != "" {
			out = append(out, l.Name)
		}
	}
	return out
}
