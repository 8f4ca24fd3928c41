// Package contentcheck watches arbitrary pages for drift. Each check fetches
// a URL, asserts an optional substring, and fingerprints the whitespace-
// normalised body so the next run can tell whether the page changed.
//
// State lives in <dir>/<safe key>.json and is written only after a
// successful check, so a failed run never resets the baseline.
package contentcheck

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"feature-monitor/internal/config"
	"feature-monitor/internal/fsutil"
	"feature-monitor/internal/httpfetch"
	"feature-monitor/internal/textutil"
)

const (
	errMissingURL = "Missing url in config"
	errRequest    = "Request failed"
)

var reUnsafeKey = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// Getter is the HTTP collaborator.
type Getter interface {
	Get(ctx context.Context, url string, headers map[string]string) (*httpfetch.Response, error)
}

// Result is the outcome of one check. Pointer fields are null when unknown.
type Result struct {
	Key          string  `json:"key"`
	Name         string  `json:"name"`
	URL          string  `json:"url"`
	OK           bool    `json:"ok"`
	StatusCode   *int    `json:"status_code"`
	CheckedAt    string  `json:"checked_at"`
	Changed      *bool   `json:"changed"`
	Fingerprint  *string `json:"fingerprint"`
	ETag         *string `json:"etag"`
	LastModified *string `json:"last_modified"`
	Error        *string `json:"error"`
}

// State is the persisted baseline of a check.
type State struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	CheckedAt    string `json:"checked_at"`
	StatusCode   int    `json:"status_code"`
	Fingerprint  string `json:"fingerprint"`
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	Changed      bool   `json:"changed"`
}

// Runner executes configured checks.
type Runner struct {
	checks map[string]config.ContentCheck
	dir    string
	http   Getter
	log    *slog.Logger
	now    func() time.Time
}

// NewRunner returns a runner persisting state under dir.
func NewRunner(checks map[string]config.ContentCheck, dir string, http Getter, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Runner{checks: checks, dir: dir, http: http, log: log, now: time.Now}
}

// WithClock overrides the time source.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// RunAll runs every enabled check, ordered by key. Individual failures are
// reported in the results; RunAll itself only fails on a cancelled context.
func (r *Runner) RunAll(ctx context.Context) ([]Result, error) {
	keys := make([]string, 0, len(r.checks))
	for k := range r.checks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Result, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		cfg := r.checks[key]
		if !cfg.Enabled {
			continue
		}
		name := cfg.DisplayName
		if name == "" {
			name = key
		}
		if strings.TrimSpace(cfg.URL) == "" {
			r.log.Warn("content check without url", "key", key)
			out = append(out, Result{Key: key, Name: name, CheckedAt: r.stamp(), Error: ptr(errMissingURL)})
			continue
		}
		res := r.runOne(ctx, key, name, cfg.URL, cfg.Contains)
		r.log.Info("content check", "key", key, "ok", res.OK, "changed", deref(res.Changed))
		out = append(out, res)
	}
	return out, nil
}

func (r *Runner) runOne(ctx context.Context, key, name, url, contains string) Result {
	res := Result{Key: key, Name: name, URL: url, CheckedAt: r.stamp()}

	var prev State
	statePath := StatePath(r.dir, key)
	if _, err := fsutil.ReadJSON(statePath, &prev); err != nil {
		r.log.Warn("ignoring unreadable content check state", "key", key, "err", err)
		prev = State{}
	}

	resp, err := r.http.Get(ctx, url, nil)
	if err != nil {
		r.log.Error("content check request failed", "key", key, "err", err)
		res.Error = ptr(errRequest)
		return res
	}
	res.StatusCode = ptr(resp.StatusCode)
	if !resp.OK() {
		res.Error = ptr(fmt.Sprintf("Unexpected status code: %d", resp.StatusCode))
		return res
	}
	etag, lastMod := resp.Header.Get("ETag"), resp.Header.Get("Last-Modified")
	res.ETag, res.LastModified = optional(etag), optional(lastMod)

	text := string(resp.Body)
	fp := Fingerprint(text)
	res.Fingerprint = ptr(fp)
	if contains != "" && !strings.Contains(text, contains) {
		res.Error = ptr(fmt.Sprintf("Response missing expected substring: %q", contains))
		return res
	}

	res.OK = true
	res.Changed = ptr(prev.Fingerprint != "" && prev.Fingerprint != fp)

	st := State{
		Name:         name,
		URL:          url,
		CheckedAt:    res.CheckedAt,
		StatusCode:   resp.StatusCode,
		Fingerprint:  fp,
		ETag:         etag,
		LastModified: lastMod,
		Changed:      *res.Changed,
	}
	if err := fsutil.WriteJSON(statePath, st); err != nil {
		r.log.Warn("failed to persist content check state", "key", key, "err", err)
	}
	return res
}

func (r *Runner) stamp() string { return r.now().Format(time.RFC3339) }

// Fingerprint is the sha256 of text with whitespace runs collapsed.
func Fingerprint(text string) string {
	return textutil.SHA256Hex(textutil.CollapseWhitespace(text))
}

// StatePath maps a check key to its state file.
func StatePath(dir, key string) string {
	return filepath.Join(dir, SafeKey(key)+".json")
}

// SafeKey replaces characters unsafe in file names with underscores.
func SafeKey(key string) string {
	return reUnsafeKey.ReplaceAllString(key, "_")
}

// LoadStates reads every persisted state under dir, keyed by file stem.
// A missing directory yields an empty map.
func LoadStates(dir string) (map[string]State, error) {
	out := make(map[string]State)
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	for _, e := range ents {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var st State
		if _, err := fsutil.ReadJSON(filepath.Join(dir, e.Name()), &st); err != nil {
			continue
		}
		out[strings.TrimSuffix(e.Name(), ".json")] = st
	}
	return out, nil
}

func ptr[T any](v T) *T { return &v }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(b *bool) bool { return b != nil && *b }
