package rewrite

import (
	"fmt"
	"regexp"
	"strings"
)

// Token records one masked substring so it can be restored after the model
// rewrote the surrounding text.
type Token struct {
	Placeholder string
	Value       string
}

// rule is one masking pattern. validate may reject a regexp match (used for
// the phone digit-count heuristic); nil accepts every match.
type rule struct {
	category string
	re       *regexp.Regexp
	validate func(match string) bool
}

// Masker replaces sensitive substrings with opaque placeholders before a
// rewrite and restores them afterwards. The model never sees the raw values,
// so it cannot paraphrase them away.
//
// Placeholders have the form __VOXFILL_<CATEGORY>_<n>__ with a per-category
// counter starting at 1 for each Mask call. The character set deliberately
// survives every rule's pattern, so later rules never re-mask a placeholder.
type Masker struct {
	rules []rule
}

// Mask categories, in application order. URLs go first so their host parts
// are not chewed up by the email or ID rules; the generic ID rule goes last
// so dates, currency, and percentages keep their own categories.
const (
	CategoryURL   = "URL"
	CategoryEmail = "EMAIL"
	CategoryPhone = "PHONE"
	CategoryDate  = "DATE"
	CategoryCurr  = "CURR"
	CategoryPct   = "PCT"
	CategoryAddr  = "ADDR"
	CategoryID    = "ID"
)

var categoryOrder = []string{
	CategoryURL, CategoryEmail, CategoryDate, CategoryPhone,
	CategoryCurr, CategoryPct, CategoryAddr, CategoryID,
}

const addrStreetWords = `(?:Street|St\.?|Avenue|Ave\.?|Road|Rd\.?|Boulevard|Blvd\.?|Lane|Ln\.?|Drive|Dr\.?|Court|Ct\.?|Place|Pl\.?|Square|Sq\.?|Trail|Trl\.?|Parkway|Pkwy\.?|Circle|Cir\.?)`

func defaultRules() []rule {
	return []rule{
		{CategoryURL, regexp.MustCompile(`(?i)(https?://[^\s)]+|www\.[^\s)]+)`), nil},
		{CategoryEmail, regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`), nil},
		{CategoryDate, regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), nil},
		{CategoryDate, regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`), nil},
		{CategoryDate, regexp.MustCompile(`(?i)\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)[a-z]*\s+\d{1,2}(?:,\s*\d{4})?\b`), nil},
		{CategoryDate, regexp.MustCompile(`(?i)\b\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)[a-z]*\s+\d{4}\b`), nil},
		{CategoryPhone, regexp.MustCompile(`\+?\d[\d\s().-]{5,}\d`), validPhone},
		{CategoryCurr, regexp.MustCompile(`(?i)(?:[$€£¥₹]|\b(?:USD|EUR|GBP|JPY|INR|CAD|AUD)\b)\s?\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{2})?`), nil},
		{CategoryCurr, regexp.MustCompile(`(?i)\b\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{2})?\s?(?:[$€£¥₹]|USD|EUR|GBP|JPY|INR|CAD|AUD)\b`), nil},
		{CategoryPct, regexp.MustCompile(`\b\d+(?:[.,]\d+)?\s*%`), nil},
		{CategoryPct, regexp.MustCompile(`(?i)\b\d+(?:[.,]\d+)?\s*(?:percent|per\s*cent)\b`), nil},
		{CategoryAddr, regexp.MustCompile(`(?i)\b\d{1,6}\s+[A-Za-z0-9.'-]+\s+` + addrStreetWords + `(?:\s+(?:Apt|Apartment|Unit|Suite|Ste\.?|#)\s*[^,\n]+)?`), nil},
		{CategoryID, regexp.MustCompile(`\b[A-Za-z0-9][A-Za-z0-9-]{3,}\b`), validID},
	}
}

// validPhone requires 7 to 15 digits so plain numbers and years are left to
// other rules.
func validPhone(match string) bool {
	n := 0
	for _, r := range match {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n >= 7 && n <= 15
}

// validID rejects plain words; only tokens carrying at least one digit look
// like identifiers.
func validID(match string) bool {
	return strings.ContainsAny(match, "0123456789")
}

// NewMasker creates a Masker with the built-in rule set.
func NewMasker() *Masker {
	return &Masker{rules: defaultRules()}
}

// AddPattern appends a custom pattern to category. Custom patterns run after
// the built-in rules of the same category would have, preserving category
// order. An unknown category or an invalid pattern is an error.
func (m *Masker) AddPattern(category, pattern string) error {
	category = strings.ToUpper(category)
	known := false
	for _, c := range categoryOrder {
		if c == category {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("rewrite: unknown mask category %q", category)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("rewrite: mask pattern for %s: %w", category, err)
	}

	// Insert after the last rule of the same or an earlier category.
	pos := len(m.rules)
	for i := len(m.rules) - 1; i >= 0; i-- {
		if categoryIndex(m.rules[i].category) <= categoryIndex(category) {
			pos = i + 1
			break
		}
	}
	m.rules = append(m.rules[:pos], append([]rule{{category, re, nil}}, m.rules[pos:]...)...)
	return nil
}

func categoryIndex(category string) int {
	for i, c := range categoryOrder {
		if c == category {
			return i
		}
	}
	return len(categoryOrder)
}

// Mask replaces every sensitive substring in text with a placeholder and
// returns the masked text along with the restoration tokens, in replacement
// order.
func (m *Masker) Mask(text string) (string, []Token) {
	var tokens []Token
	counters := make(map[string]int)

	out := text
	for _, r := range m.rules {
		r := r
		out = r.re.ReplaceAllStringFunc(out, func(match string) string {
			if strings.Contains(match, "__VOXFILL_") {
				return match
			}
			if r.validate != nil && !r.validate(match) {
				return match
			}
			counters[r.category]++
			ph := fmt.Sprintf("__VOXFILL_%s_%d__", r.category, counters[r.category])
			tokens = append(tokens, Token{Placeholder: ph, Value: match})
			return ph
		})
	}
	return out, tokens
}

// Unmask restores every placeholder in text from tokens. Placeholders the
// model dropped stay dropped; that is the model's loss, not a corruption.
func Unmask(text string, tokens []Token) string {
	out := text
	for _, t := range tokens {
		out = strings.ReplaceAll(out, t.Placeholder, t.Value)
	}
	return out
}
