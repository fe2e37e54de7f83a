package match

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Similarity compares two normalized strings and returns a percentage in
// [0, 100]. Identical strings score 100.
type Similarity interface {
	Ratio(a, b string) float64
}

// LevenshteinRatio is 100 * (1 - distance / longer length).
type LevenshteinRatio struct{}

// Ratio implements Similarity.
func (LevenshteinRatio) Ratio(a, b string) float64 {
	if a == b {
		return 100
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 100
	}
	d := fuzzy.LevenshteinDistance(a, b)
	return 100 * (1 - float64(d)/float64(longest))
}

// TokenSortRatio compares the strings after sorting their words, so word
// order does not matter but extra words still cost.
type TokenSortRatio struct {
	Base Similarity
}

// Ratio implements Similarity.
func (t TokenSortRatio) Ratio(a, b string) float64 {
	return base(t.Base).Ratio(sortedTokens(a), sortedTokens(b))
}

// TokenSetRatio scores the shared words against each side's leftovers and
// takes the best, so one string containing all words of the other scores 100.
type TokenSetRatio struct {
	Base Similarity
}

// Ratio implements Similarity.
func (t TokenSetRatio) Ratio(a, b string) float64 {
	sa, sb := tokenSet(a), tokenSet(b)
	var common, onlyA, onlyB []string
	for w := range sa {
		if sb[w] {
			common = append(common, w)
		} else {
			onlyA = append(onlyA, w)
		}
	}
	for w := range sb {
		if !sa[w] {
			onlyB = append(onlyB, w)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	t0 := strings.Join(common, " ")
	t1 := strings.TrimSpace(t0 + " " + strings.Join(onlyA, " "))
	t2 := strings.TrimSpace(t0 + " " + strings.Join(onlyB, " "))

	sim := base(t.Base)
	if t0 == "" {
		return sim.Ratio(t1, t2)
	}
	return max(sim.Ratio(t0, t1), sim.Ratio(t0, t2), sim.Ratio(t1, t2))
}

// DefaultSimilarity is word-order-insensitive edit distance.
func DefaultSimilarity() Similarity {
	return TokenSortRatio{Base: LevenshteinRatio{}}
}

func base(s Similarity) Similarity {
	if s == nil {
		return LevenshteinRatio{}
	}
	return s
}

func sortedTokens(s string) string {
	f := strings.Fields(s)
	sort.Strings(f)
	return strings.Join(f, " ")
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}
