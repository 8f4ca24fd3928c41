// Package sortutil holds the deterministic orderings shared by the index,
// reports and dashboard.
package sortutil

import "sort"

// Count is one key of a tally.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Keys returns the keys of m sorted lexicographically.
func Keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ByName returns the tally ordered by key.
func ByName(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for _, k := range Keys(m) {
		out = append(out, Count{Key: k, Count: m[k]})
	}
	return out
}

// ByCountDesc returns the tally ordered by descending count, ties by key.
func ByCountDesc(m map[string]int) []Count {
	out := ByName(m)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// Top truncates c to at most n entries. n <= 0 keeps everything.
func Top(c []Count, n int) []Count {
	if n > 0 && len(c) > n {
		return c[:n]
	}
	return c
}
