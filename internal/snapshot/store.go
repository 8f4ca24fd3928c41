// Package snapshot persists dated raw-text captures of an external document.
//
// Conventions:
//   - One file per calendar date: <dir>/<prefix>-YYYY-MM-DD<ext>
//   - Content is stored verbatim; no wrapping structure is added.
//   - A later save on the same date replaces the earlier one (last write wins).
//   - Writes are atomic (temp file + rename) so a crash never leaves a
//     partial snapshot visible to List/Load.
//
// Concurrent runs on the same date race on the final rename; the store
// assumes one run per process at a time.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"feature-monitor/internal/fsutil"
	"feature-monitor/internal/textutil"
)

// DateLayout is the calendar-date format used in snapshot file names.
const DateLayout = "2006-01-02"

var (
	// ErrNotFound is returned by Load when no snapshot exists for the date.
	ErrNotFound = errors.New("snapshot: not found")
	// ErrRead is returned by Load when the stored bytes are not valid text.
	ErrRead = errors.New("snapshot: unreadable content")
)

// Snapshot is an immutable, dated capture.
type Snapshot struct {
	Date    time.Time
	Content string
}

// Store keeps snapshots under a single directory.
type Store struct {
	dir    string
	prefix string
	ext    string
}

// NewStore returns a store for GraphQL SDL snapshots (schema-YYYY-MM-DD.graphql).
func NewStore(dir string) *Store {
	return &Store{dir: dir, prefix: "schema", ext: ".graphql"}
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file location for a capture date.
func (s *Store) Path(date time.Time) string {
	return filepath.Join(s.dir, s.prefix+"-"+date.Format(DateLayout)+s.ext)
}

// Save writes content for date, replacing any snapshot of the same date, and
// returns the file location. I/O errors are returned as-is, not retried.
func (s *Store) Save(date time.Time, content string) (string, error) {
	path := s.Path(date)
	if err := fsutil.WriteFileAtomic(path, []byte(content)); err != nil {
		return "", fmt.Errorf("snapshot: save %s: %w", path, err)
	}
	return path, nil
}

// ListDates enumerates stored capture dates, most recent first.
// A missing directory yields an empty list.
func (s *Store) ListDates() ([]time.Time, error) {
	ents, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: list %s: %w", s.dir, err)
	}
	dates := make([]time.Time, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		if d, ok := s.parseName(e.Name()); ok {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	return dates, nil
}

// Load returns the content captured on date.
func (s *Store) Load(date time.Time) (string, error) {
	path := s.Path(date)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, date.Format(DateLayout))
		}
		return "", fmt.Errorf("snapshot: load %s: %w", path, err)
	}
	if !textutil.IsText(b) {
		return "", fmt.Errorf("%w: %s", ErrRead, path)
	}
	return string(b), nil
}

// LatestPair returns the second-most-recent snapshot, i.e. the one to diff
// the just-saved capture against. With fewer than two snapshots it returns
// (nil, nil): not enough history yet is not an error.
func (s *Store) LatestPair() (*Snapshot, error) {
	dates, err := s.ListDates()
	if err != nil {
		return nil, err
	}
	if len(dates) < 2 {
		return nil, nil
	}
	content, err := s.Load(dates[1])
	if err != nil {
		return nil, err
	}
	return &Snapshot{Date: dates[1], Content: content}, nil
}

func (s *Store) parseName(name string) (time.Time, bool) {
	head := s.prefix + "-"
	if !strings.HasPrefix(name, head) || !strings.HasSuffix(name, s.ext) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, head), s.ext)
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
