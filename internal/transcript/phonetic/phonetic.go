// Package phonetic implements the [transcript.Matcher] interface using
// Double Metaphone phonetic encoding combined with Jaro-Winkler string
// similarity for ranked candidate selection.
//
// The algorithm proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word of the spoken value and for each option text. An option
//     becomes a candidate when any of its codes overlaps with any code of
//     the value.
//
//  2. Jaro-Winkler ranking: among phonetic candidates, the option with the
//     highest Jaro-Winkler similarity (computed case-insensitively on the
//     original strings) is selected, provided its score exceeds the
//     phonetic threshold.
//
//     When no phonetic candidate exists, a secondary pass tests pure
//     Jaro-Winkler similarity against all options using a stricter fuzzy
//     threshold (default 0.85).
//
// Multi-word option texts (e.g., "United Kingdom") are supported: codes are
// computed per word and the best pairwise score across word pairs counts
// toward the ranking.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched option to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate exists and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher snaps spoken values onto canonical option texts. It implements
// [transcript.Matcher] and is read-only after construction, so all methods
// are safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a new [Matcher] configured with the supplied options.
// Default thresholds are 0.70 for phonetic matches and 0.85 for fuzzy
// fallback matches.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match attempts to find the option text most phonetically similar to value.
//
// value may be a single word or a multi-word phrase. When either side
// contains multiple tokens, the matcher checks whether any token of the
// value phonetically aligns with any token of the option, then ranks by
// Jaro-Winkler on the full strings.
//
// When matched is false, canonical equals value unchanged and confidence
// is 0.
func (m *Matcher) Match(value string, options []string) (canonical string, confidence float64, matched bool) {
	if len(options) == 0 || strings.TrimSpace(value) == "" {
		return value, 0, false
	}

	valueLower := strings.ToLower(strings.TrimSpace(value))
	valueTokens := strings.Fields(valueLower)
	valueCodes := metaphoneCodes(valueTokens)

	var (
		bestOption   string
		bestScore    float64
		bestPhonetic bool
	)

	for _, opt := range options {
		optLower := strings.ToLower(strings.TrimSpace(opt))
		if optLower == "" {
			continue
		}
		optTokens := strings.Fields(optLower)

		phonetic := codesOverlap(valueCodes, metaphoneCodes(optTokens))
		score := similarity(valueTokens, optTokens, valueLower, optLower)

		switch {
		case phonetic && score >= m.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				bestOption, bestScore, bestPhonetic = opt, score, true
			}
		case !phonetic && !bestPhonetic:
			if score >= m.fuzzyThreshold && score > bestScore {
				bestOption, bestScore = opt, score
			}
		}
	}

	if bestOption == "" {
		return value, 0, false
	}
	return bestOption, bestScore, true
}

// metaphoneCodes returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (short or consonant-free words) are excluded.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity computes the highest Jaro-Winkler score between the value and
// the option using three comparisons:
//
//  1. Full strings ("new sealand" vs "new zealand").
//  2. Space-stripped strings, so token boundaries the speech recogniser
//     invented or dropped do not dominate the score.
//  3. Best pairwise token score, for the case where one spoken word maps
//     onto one option word.
func similarity(valueTokens, optTokens []string, valueFull, optFull string) float64 {
	score := matchr.JaroWinkler(valueFull, optFull, false)

	if len(valueTokens) > 1 || len(optTokens) > 1 {
		joined1 := strings.Join(valueTokens, "")
		joined2 := strings.Join(optTokens, "")
		if s := matchr.JaroWinkler(joined1, joined2, false); s > score {
			score = s
		}
	}

	for _, vt := range valueTokens {
		for _, ot := range optTokens {
			if s := matchr.JaroWinkler(vt, ot, false); s > score {
				score = s
			}
		}
	}

	return score
}
