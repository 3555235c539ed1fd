package ui

import (
	"sort"
	"strings"
)

// MaxSuggestionDistance is the largest edit distance offered as a suggestion
const MaxSuggestionDistance = 3

// FindSimilar returns the candidates within MaxSuggestionDistance edits of
// target, closest first. Comparison ignores case.
//
//	FindSimilar("Sampel", []string{"Sample", "RelatedModel"}, 3) // ["Sample"]
func FindSimilar(target string, candidates []string, limit int) []string {
	type match struct {
		value    string
		distance int
	}

	lower := strings.ToLower(target)
	var matches []match
	for _, candidate := range candidates {
		if d := EditDistance(lower, strings.ToLower(candidate)); d <= MaxSuggestionDistance {
			matches = append(matches, match{value: candidate, distance: d})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})

	out := make([]string, 0, len(matches))
	for i := 0; i < len(matches) && (limit <= 0 || i < limit); i++ {
		out = append(out, matches[i].value)
	}
	return out
}

// EditDistance is the Levenshtein distance between a and b, counted in runes
func EditDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minOf(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func minOf(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
