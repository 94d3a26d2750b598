// Package transcript aligns extracted field values with the canonical
// options of enumerated form controls.
//
// Speech recognition and LLM extraction routinely produce near-misses for
// constrained fields: "Kalifornia" for a state dropdown, "stundent" for a
// radio group. The binder matches options exactly (case-insensitively), so
// such values would silently fail to bind. The [Aligner] sits between
// extraction and binding and snaps near-miss values onto the option text
// they were meant to be — and only then. A value that does not resemble any
// option is passed through untouched so the binder's skip behaviour stays
// observable.
package transcript

import (
	"log/slog"
	"strings"

	"github.com/voxfill/voxfill/pkg/forms"
)

// Matcher ranks candidate option texts against a spoken value.
//
// When matched is false, canonical must equal value unchanged and
// confidence must be 0.
type Matcher interface {
	Match(value string, options []string) (canonical string, confidence float64, matched bool)
}

// Alignment records one value that was snapped onto a canonical option.
type Alignment struct {
	// Field is the control name the value belongs to.
	Field string

	// Original is the extracted value before alignment.
	Original string

	// Aligned is the canonical option text the value was snapped onto.
	Aligned string

	// Confidence is the matcher's similarity score, or 1 for exact
	// case-insensitive matches.
	Confidence float64
}

// Aligner rewrites extraction results so enumerated values carry canonical
// option text. Safe for concurrent use when the wrapped Matcher is.
type Aligner struct {
	matcher Matcher
	log     *slog.Logger
}

// Option is a functional option for configuring an [Aligner].
type Option func(*Aligner)

// WithLogger sets the logger used to report applied alignments.
// Default: [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(a *Aligner) {
		if log != nil {
			a.log = log
		}
	}
}

// New returns an [Aligner] using the given matcher. A nil matcher disables
// fuzzy matching; only exact case-insensitive canonicalisation is applied.
func New(matcher Matcher, opts ...Option) *Aligner {
	a := &Aligner{
		matcher: matcher,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Align returns a copy of result in which string values destined for select
// controls and radio groups are replaced by the canonical option they match.
//
// Resolution per field:
//
//  1. The first control with the field's name determines the candidate set:
//     option texts for a select, the group's value attributes for radios.
//     Other control kinds are left alone.
//  2. An exact case-insensitive hit snaps the value to the candidate's
//     casing with confidence 1.
//  3. Otherwise the matcher decides. No match means no change.
//
// Non-string values and fields absent from the form pass through unchanged.
// The input map is never mutated.
func (a *Aligner) Align(form forms.Form, result forms.Result) (forms.Result, []Alignment) {
	if form == nil || len(result) == 0 {
		return result, nil
	}

	out := make(forms.Result, len(result))
	var applied []Alignment

	for name, raw := range result {
		out[name] = raw

		value, ok := raw.(string)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}

		candidates := candidatesFor(form, name)
		if len(candidates) == 0 {
			continue
		}

		canonical, conf, matched := a.resolve(value, candidates)
		if !matched || canonical == value {
			continue
		}

		out[name] = canonical
		applied = append(applied, Alignment{
			Field:      name,
			Original:   value,
			Aligned:    canonical,
			Confidence: conf,
		})
		a.log.Debug("aligned field value to option",
			"field", name,
			"original", value,
			"aligned", canonical,
			"confidence", conf)
	}

	return out, applied
}

// resolve applies the exact pass before consulting the matcher.
func (a *Aligner) resolve(value string, candidates []string) (string, float64, bool) {
	lower := strings.ToLower(strings.TrimSpace(value))
	for _, c := range candidates {
		if strings.ToLower(strings.TrimSpace(c)) == lower {
			return c, 1, true
		}
	}
	if a.matcher == nil {
		return value, 0, false
	}
	return a.matcher.Match(value, candidates)
}

// candidatesFor derives the canonical option set for the named field, or nil
// when the field is not an enumerated control.
func candidatesFor(form forms.Form, name string) []string {
	controls := form.ControlsByName(name)
	if len(controls) == 0 {
		return nil
	}

	desc := controls[0].Descriptor()
	switch {
	case desc.Kind == forms.KindSelect:
		opts := controls[0].Options()
		candidates := make([]string, 0, len(opts))
		for _, o := range opts {
			if strings.TrimSpace(o.Text) != "" {
				candidates = append(candidates, o.Text)
			}
		}
		return candidates
	case desc.Kind == forms.KindInput && desc.InputType == "radio":
		candidates := make([]string, 0, len(controls))
		for _, c := range controls {
			if v := c.Value(); strings.TrimSpace(v) != "" {
				candidates = append(candidates, v)
			}
		}
		return candidates
	}
	return nil
}
