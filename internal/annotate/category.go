package annotate

import (
	"regexp"
	"sort"
)

var reCategory = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

// ExtractCategories returns every #tag body in order of appearance. Tags are kept
// verbatim, not deduplicated and not removed from text.
func ExtractCategories(text string) []string {
	matches := reCategory.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// CategoryCount is one row of a tag histogram.
type CategoryCount struct {
	Name  string
	Count int
}

// CountCategories aggregates tags across texts, most used first.
func CountCategories(texts []string) []CategoryCount {
	counts := map[string]int{}
	for _, t := range texts {
		for _, c := range ExtractCategories(t) {
			counts[c]++
		}
	}
	out := make([]CategoryCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, CategoryCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// HasCategory reports whether text carries the exact tag.
func HasCategory(text, tag string) bool {
	for _, c := range ExtractCategories(text) {
		if c == tag {
			return true
		}
	}
	return false
}
