// Package diff renders unified patches between two text snapshots.
// It uses github.com/pmezard/go-difflib/difflib to produce classic unified
// output (---/+++ headers, @@ hunks, lines prefixed with ' ', '-', '+').
package diff

import (
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// Options controls patch generation.
type Options struct {
	// MaxBytes caps old+new input size. Above it a placeholder patch is
	// returned and oversize=true. 0 means no limit.
	MaxBytes int

	// Context is the number of context lines per hunk. 0 means 3.
	Context int
}

// Unified produces a unified patch for a↦b. An empty body means the inputs
// are identical.
func Unified(aName, bName string, a, b string, opt Options) (body string, oversize bool) {
	if opt.MaxBytes > 0 && len(a)+len(b) > opt.MaxBytes {
		return omitted(aName, bName), true
	}
	if a == b {
		return "", false
	}
	ctx := opt.Context
	if ctx <= 0 {
		ctx = 3
	}
	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(a),
		B:        splitLinesKeepNL(b),
		FromFile: aName,
		ToFile:   bName,
		Context:  ctx,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return omitted(aName, bName), false
	}
	return s, false
}

// Stats counts added and removed lines in a unified patch body.
func Stats(patch string) (added, removed int) {
	for _, ln := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(ln, "+++"), strings.HasPrefix(ln, "---"):
		case strings.HasPrefix(ln, "+"):
			added++
		case strings.HasPrefix(ln, "-"):
			removed++
		}
	}
	return added, removed
}

// splitLinesKeepNL keeps the trailing "\n" on each element, which produces
// better hunks. A last line without newline is kept as-is.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.SplitAfter(s, "\n")
}

func omitted(aName, bName string) string {
	return fmt.Sprintf("--- %s\n+++ %s\n@@\n# diff omitted (oversize)\n", aName, bName)
}
