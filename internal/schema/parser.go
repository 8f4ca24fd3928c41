// Package schema extracts structural facts from GraphQL SDL text.
//
// The extractor is line-oriented and regex-based, in the same spirit as a
// symbol indexer: shallow, deterministic, and permissive by omission. Lines
// that do not match the expected shapes are skipped, never reported.
//
// Features:
//   - Declared type names for type/interface/input/enum definitions.
//   - Field names inside a caller-named object type, in declaration order.
//   - Pure functions of the input text; no state survives between calls.
//
// Limitations:
//   - Declarations must start a line; names inside comments, field types or
//     after other tokens are not seen.
//   - Type names need at least two characters (uppercase letter + word chars).
//   - Field capture starts only at "type <Name> {" with the brace on the same
//     line; "type X implements Y {" is not recognised.
//   - Capture stops at the first later line containing '}', so a multi-line
//     argument block or default object value truncates the field list.
package schema

import (
	"regexp"
	"strings"
)

var (
	// type Foo / interface Foo / input Foo / enum Foo
	// Groups:
	//   1: keyword
	//   2: declared name
	reTypeDecl = regexp.MustCompile(`^\s*(type|interface|input|enum)\s+([A-Z]\w+)`)

	// "  name:" or "  name(" inside a type body.
	reFieldDecl = regexp.MustCompile(`^\s+(\w+)\s*[:(]`)
)

// TypeNames returns the declared type names in first-seen order, without
// duplicates.
func TypeNames(text string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 64)
	for _, line := range strings.Split(text, "\n") {
		m := reTypeDecl.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if _, dup := seen[m[2]]; dup {
			continue
		}
		seen[m[2]] = struct{}{}
		out = append(out, m[2])
	}
	return out
}

// Fields returns the field names declared in "type <typeName> {", in
// declaration order, without duplicates. Unknown types yield nil.
func Fields(text, typeName string) []string {
	open := regexp.MustCompile(`^\s*type\s+` + regexp.QuoteMeta(typeName) + `\s*\{`)

	var out []string
	seen := make(map[string]struct{})
	inType := false
	for _, line := range strings.Split(text, "\n") {
		if open.MatchString(line) {
			inType = true
			continue
		}
		if !inType {
			continue
		}
		if strings.Contains(line, "}") {
			break
		}
		m := reFieldDecl.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}
