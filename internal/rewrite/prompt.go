package rewrite

import (
	"fmt"
	"strings"
)

// Tone selects the voice of a rewrite.
type Tone string

const (
	ToneOriginal Tone = "original"
	ToneFormal   Tone = "formal"
	ToneCasual   Tone = "casual"
	ToneFriendly Tone = "friendly"
)

// IsValid reports whether t is a recognised tone.
func (t Tone) IsValid() bool {
	switch t {
	case ToneOriginal, ToneFormal, ToneCasual, ToneFriendly:
		return true
	}
	return false
}

// Length selects the target length of a rewrite.
type Length string

const (
	LengthOriginal Length = "original"
	LengthShorter  Length = "shorter"
	LengthLonger   Length = "longer"
)

// IsValid reports whether l is a recognised length.
func (l Length) IsValid() bool {
	switch l {
	case LengthOriginal, LengthShorter, LengthLonger:
		return true
	}
	return false
}

// Options carries the user's rewrite preferences.
type Options struct {
	Tone   Tone
	Length Length
}

// BuildPrompt renders the rewrite prompt for already-masked text.
// instructions is the field classifier's do-not-change hint block, possibly
// empty.
func BuildPrompt(masked string, opts Options, instructions string) string {
	var b strings.Builder

	b.WriteString("Rewrite the following text to be clearer and easier to read.\n\n")

	switch opts.Tone {
	case ToneFormal:
		b.WriteString("Use a formal, professional tone.\n")
	case ToneCasual:
		b.WriteString("Use a casual, relaxed tone.\n")
	case ToneFriendly:
		b.WriteString("Use a warm, friendly tone.\n")
	default:
		b.WriteString("Preserve the original tone.\n")
	}

	switch opts.Length {
	case LengthShorter:
		b.WriteString("Make it more concise than the original.\n")
	case LengthLonger:
		b.WriteString("Expand it slightly with more detail.\n")
	default:
		b.WriteString("Keep roughly the original length.\n")
	}

	if instructions != "" {
		b.WriteString(instructions)
		b.WriteString("\n")
	}

	b.WriteString("Tokens of the form __VOXFILL_..._N__ are placeholders and MUST be preserved exactly as written.\n")
	b.WriteString("Return ONLY the rewritten text, nothing else.\n")

	fmt.Fprintf(&b, "\nText: %q\n", masked)
	return b.String()
}

// systemPrompt is the system-role preamble used by cloud LLM layers.
const systemPrompt = "You rewrite form field text on the user's behalf. Respond with the rewritten text only, no prose, no quotes."
