package transcript_test

import (
	"testing"

	"github.com/voxfill/voxfill/internal/transcript"
	"github.com/voxfill/voxfill/internal/transcript/phonetic"
	"github.com/voxfill/voxfill/pkg/forms"
	"github.com/voxfill/voxfill/pkg/forms/memform"
)

// stubMatcher returns a fixed answer for every lookup.
type stubMatcher struct {
	canonical string
	conf      float64
	matched   bool
	calls     int
}

func (s *stubMatcher) Match(value string, options []string) (string, float64, bool) {
	s.calls++
	if !s.matched {
		return value, 0, false
	}
	return s.canonical, s.conf, true
}

func TestAlign_ExactCaseInsensitiveSnap(t *testing.T) {
	t.Parallel()

	form := memform.New()
	form.AddSelect("state", "State", "California", "Nevada")

	m := &stubMatcher{}
	a := transcript.New(m)

	out, applied := a.Align(form, forms.Result{"state": "california"})
	if got := out["state"]; got != "California" {
		t.Errorf("out[state] = %v, want %q", got, "California")
	}
	if len(applied) != 1 {
		t.Fatalf("len(applied) = %d, want 1", len(applied))
	}
	if applied[0].Confidence != 1 {
		t.Errorf("Confidence = %f, want 1 for exact snap", applied[0].Confidence)
	}
	if m.calls != 0 {
		t.Errorf("matcher consulted %d times for an exact hit, want 0", m.calls)
	}
}

func TestAlign_FuzzySnapViaMatcher(t *testing.T) {
	t.Parallel()

	form := memform.New()
	form.AddSelect("state", "State", "California", "Nevada")

	a := transcript.New(phonetic.New())

	out, applied := a.Align(form, forms.Result{"state": "Kalifornia"})
	if got := out["state"]; got != "California" {
		t.Errorf("out[state] = %v, want %q", got, "California")
	}
	if len(applied) != 1 {
		t.Fatalf("len(applied) = %d, want 1", len(applied))
	}
	if applied[0].Original != "Kalifornia" || applied[0].Aligned != "California" {
		t.Errorf("applied[0] = %+v, want Kalifornia -> California", applied[0])
	}
}

func TestAlign_NonMatchingValueUntouched(t *testing.T) {
	t.Parallel()

	form := memform.New()
	form.AddSelect("state", "State", "California", "Nevada")

	a := transcript.New(phonetic.New())

	out, applied := a.Align(form, forms.Result{"state": "purple"})
	if got := out["state"]; got != "purple" {
		t.Errorf("out[state] = %v, want the original value untouched", got)
	}
	if len(applied) != 0 {
		t.Errorf("len(applied) = %d, want 0", len(applied))
	}
}

func TestAlign_RadioGroupUsesValueAttributes(t *testing.T) {
	t.Parallel()

	form := memform.New()
	form.AddRadio("role", "engineer")
	form.AddRadio("role", "designer")

	a := transcript.New(phonetic.New())

	out, applied := a.Align(form, forms.Result{"role": "enjineer"})
	if got := out["role"]; got != "engineer" {
		t.Errorf("out[role] = %v, want %q", got, "engineer")
	}
	if len(applied) != 1 {
		t.Errorf("len(applied) = %d, want 1", len(applied))
	}
}

func TestAlign_SkipsNonEnumeratedAndNonStringFields(t *testing.T) {
	t.Parallel()

	form := memform.New()
	form.AddText("name", "Name")
	form.Add(forms.FieldDescriptor{Name: "subscribe", Kind: forms.KindInput, InputType: "checkbox"})
	form.AddSelect("state", "State", "California")

	m := &stubMatcher{canonical: "California", conf: 0.9, matched: true}
	a := transcript.New(m)

	in := forms.Result{"name": "Kalifornia", "subscribe": true}
	out, applied := a.Align(form, in)
	if got := out["name"]; got != "Kalifornia" {
		t.Errorf("out[name] = %v, want text field left alone", got)
	}
	if got := out["subscribe"]; got != true {
		t.Errorf("out[subscribe] = %v, want true", got)
	}
	if len(applied) != 0 {
		t.Errorf("len(applied) = %d, want 0", len(applied))
	}
	if m.calls != 0 {
		t.Errorf("matcher consulted %d times, want 0", m.calls)
	}
}

func TestAlign_NilMatcherDoesExactOnly(t *testing.T) {
	t.Parallel()

	form := memform.New()
	form.AddSelect("state", "State", "California")

	a := transcript.New(nil)

	out, _ := a.Align(form, forms.Result{"state": "CALIFORNIA"})
	if got := out["state"]; got != "California" {
		t.Errorf("out[state] = %v, want %q", got, "California")
	}

	out, applied := a.Align(form, forms.Result{"state": "Kalifornia"})
	if got := out["state"]; got != "Kalifornia" {
		t.Errorf("out[state] = %v, want the original value without a matcher", got)
	}
	if len(applied) != 0 {
		t.Errorf("len(applied) = %d, want 0", len(applied))
	}
}

func TestAlign_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	form := memform.New()
	form.AddSelect("state", "State", "California")

	a := transcript.New(phonetic.New())

	in := forms.Result{"state": "kalifornia"}
	a.Align(form, in)
	if in["state"] != "kalifornia" {
		t.Errorf("input map mutated: %v", in["state"])
	}
}

func TestAlign_AbsentFieldPassesThrough(t *testing.T) {
	t.Parallel()

	form := memform.New()
	form.AddSelect("state", "State", "California")

	a := transcript.New(phonetic.New())

	out, applied := a.Align(form, forms.Result{"country": "germany"})
	if got := out["country"]; got != "germany" {
		t.Errorf("out[country] = %v, want passthrough", got)
	}
	if len(applied) != 0 {
		t.Errorf("len(applied) = %d, want 0", len(applied))
	}
}
