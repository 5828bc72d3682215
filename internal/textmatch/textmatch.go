// Package textmatch scores a spoken transcript against a reference sentence.
//
// Scoring is purely lexical. Both strings are normalised with [Normalize]
// (case, punctuation, and whitespace are ignored) and split into words. Each
// spoken word, in order, claims the lowest-indexed unused reference word with
// identical text. The score is the share of reference words claimed, rounded
// to the nearest whole percent:
//
//	Score("the cat sat", "sat the cat") == 100
//	Score("go go go", "go go")          == 67
//
// Duplicate reference words are claimed in index order, so ties always resolve
// to the lowest unused index. [Compare] reports the same percentage together
// with a word-level breakdown and near-miss hints for display.
package textmatch

import (
	"math"
	"strings"
)

// punctuation lists every rune removed by [Normalize].
const punctuation = ".,!?;:'\"()-–—"

// Normalize lowercases s, removes the punctuation marks .,!?;:'"()-–— and
// collapses every run of whitespace into a single space. The result has no
// leading or trailing space. Normalize is total and idempotent.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// words returns the normalised word sequence of s, or nil when s normalises
// to the empty string.
func words(s string) []string {
	n := Normalize(s)
	if n == "" {
		return nil
	}
	return strings.Split(n, " ")
}

// Score returns the percentage (0–100) of reference words found in spoken.
// It returns 0 when either input is empty after normalisation.
func Score(reference, spoken string) int {
	ref, said := words(reference), words(spoken)
	if len(ref) == 0 || len(said) == 0 {
		return 0
	}
	used, _ := align(ref, said)
	matched := 0
	for _, u := range used {
		if u {
			matched++
		}
	}
	return percentage(matched, len(ref))
}

// align performs the greedy first-match alignment. used[i] reports whether
// reference word i was claimed; claimed[j] reports whether spoken word j
// claimed one.
func align(ref, said []string) (used, claimed []bool) {
	used = make([]bool, len(ref))
	claimed = make([]bool, len(said))
	for j, w := range said {
		for i, r := range ref {
			if !used[i] && r == w {
				used[i] = true
				claimed[j] = true
				break
			}
		}
	}
	return used, claimed
}

func percentage(matched, total int) int {
	p := int(math.Round(float64(matched) / float64(total) * 100))
	// matched never exceeds total with greedy alignment; the clamp keeps the
	// 0..100 range regardless.
	return min(max(p, 0), 100)
}
