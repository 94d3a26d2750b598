package phonetic_test

import (
	"testing"

	"github.com/voxfill/voxfill/internal/transcript/phonetic"
)

func TestMatcher_NearMissOption(t *testing.T) {
	t.Parallel()

	m := phonetic.New()

	// "Kalifornia" shares its Double Metaphone codes with "California"
	// (initial C before a vowel encodes as K).
	options := []string{"California", "Texas", "New York"}

	canonical, conf, matched := m.Match("Kalifornia", options)
	if !matched {
		t.Fatalf("Match(%q, options): matched=false, want true", "Kalifornia")
	}
	if canonical != "California" {
		t.Errorf("Match(%q): canonical=%q, want %q", "Kalifornia", canonical, "California")
	}
	if conf < 0.7 {
		t.Errorf("Match(%q): confidence=%f, want >= 0.7", "Kalifornia", conf)
	}
}

func TestMatcher_MultiWordOption(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	options := []string{"New Zealand", "Australia", "Norway"}

	canonical, conf, matched := m.Match("new sealand", options)
	if !matched {
		t.Fatalf("Match(%q, options): matched=false, want true", "new sealand")
	}
	if canonical != "New Zealand" {
		t.Errorf("Match(%q): canonical=%q, want %q", "new sealand", canonical, "New Zealand")
	}
	if conf < 0.7 {
		t.Errorf("Match(%q): confidence=%f, want >= 0.7", "new sealand", conf)
	}
}

func TestMatcher_NoMatchPassesValueThrough(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	options := []string{"California", "Texas"}

	canonical, conf, matched := m.Match("hello", options)
	if matched {
		t.Fatalf("Match(%q, options): matched=true, want false", "hello")
	}
	if canonical != "hello" {
		t.Errorf("Match(%q): canonical=%q, want original value", "hello", canonical)
	}
	if conf != 0 {
		t.Errorf("Match(%q): confidence=%f, want 0", "hello", conf)
	}
}

func TestMatcher_CaseInsensitive(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	options := []string{"California"}

	canonical, conf, matched := m.Match("CALIFORNIA", options)
	if !matched {
		t.Fatalf("Match(%q, options): matched=false, want true", "CALIFORNIA")
	}
	if canonical != "California" {
		t.Errorf("Match(%q): canonical=%q, want option casing %q", "CALIFORNIA", canonical, "California")
	}
	if conf < 0.9 {
		t.Errorf("Match(%q): confidence=%f, want >= 0.9 for an exact hit", "CALIFORNIA", conf)
	}
}

func TestMatcher_ThresholdRejectsNearMisses(t *testing.T) {
	t.Parallel()

	m := phonetic.New(
		phonetic.WithPhoneticThreshold(0.99),
		phonetic.WithFuzzyThreshold(0.99),
	)
	options := []string{"California"}

	_, _, matched := m.Match("Kalifornia", options)
	if matched {
		t.Fatal("Match with threshold=0.99 should reject near-misses, got matched=true")
	}
}

func TestMatcher_EmptyInputs(t *testing.T) {
	t.Parallel()

	m := phonetic.New()

	if _, _, matched := m.Match("anything", nil); matched {
		t.Error("Match with no options should return matched=false")
	}
	canonical, conf, matched := m.Match("  ", []string{"California"})
	if matched {
		t.Error("Match with blank value should return matched=false")
	}
	if canonical != "  " {
		t.Errorf("canonical=%q, want original value", canonical)
	}
	if conf != 0 {
		t.Errorf("confidence=%f, want 0", conf)
	}
}
