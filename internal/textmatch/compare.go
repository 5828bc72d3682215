package textmatch

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// defaultHintThreshold is the minimum Jaro-Winkler similarity for a spoken
// word to be suggested as a near miss of a missed reference word.
const defaultHintThreshold = 0.80

// Hint pairs a reference word the learner missed with the spoken word that
// most resembles it.
type Hint struct {
	Expected   string
	Heard      string
	Similarity float64
}

// Result is the word-level breakdown of a comparison.
type Result struct {
	// Percentage equals Score(reference, spoken).
	Percentage int

	// Matched lists reference words that were spoken, in reference order.
	Matched []string

	// Missed lists reference words that were not spoken, in reference order.
	Missed []string

	// Extra lists spoken words that matched nothing, in spoken order.
	Extra []string

	// Hints suggests which extra word was probably meant for which missed
	// word. Hints are informational and never affect Percentage.
	Hints []Hint
}

// CompareOption configures [Compare].
type CompareOption func(*compareConfig)

type compareConfig struct {
	hintThreshold float64
}

// WithHintThreshold sets the minimum Jaro-Winkler similarity for a hint.
// Default: 0.80.
func WithHintThreshold(threshold float64) CompareOption {
	return func(c *compareConfig) {
		c.hintThreshold = threshold
	}
}

// Compare scores spoken against reference and explains the score.
func Compare(reference, spoken string, opts ...CompareOption) Result {
	cfg := compareConfig{hintThreshold: defaultHintThreshold}
	for _, o := range opts {
		o(&cfg)
	}

	ref, said := words(reference), words(spoken)
	if len(ref) == 0 || len(said) == 0 {
		return Result{Missed: ref, Extra: said}
	}

	used, claimed := align(ref, said)
	var res Result
	for i, w := range ref {
		if used[i] {
			res.Matched = append(res.Matched, w)
		} else {
			res.Missed = append(res.Missed, w)
		}
	}
	for j, w := range said {
		if !claimed[j] {
			res.Extra = append(res.Extra, w)
		}
	}
	res.Percentage = percentage(len(res.Matched), len(ref))
	res.Hints = nearMisses(res.Missed, res.Extra, cfg.hintThreshold)
	return res
}

// nearMisses pairs each missed word with the most similar extra word that has
// not been paired yet. Each extra word is used at most once.
func nearMisses(missed, extra []string, threshold float64) []Hint {
	if len(missed) == 0 || len(extra) == 0 {
		return nil
	}
	taken := make([]bool, len(extra))
	var hints []Hint
	for _, m := range missed {
		best, bestScore := -1, threshold
		for j, e := range extra {
			if taken[j] {
				continue
			}
			s := matchr.JaroWinkler(strings.ToLower(m), strings.ToLower(e), false)
			if s >= bestScore && (best < 0 || s > bestScore) {
				best, bestScore = j, s
			}
		}
		if best >= 0 {
			taken[best] = true
			hints = append(hints, Hint{Expected: m, Heard: extra[best], Similarity: bestScore})
		}
	}
	return hints
}
