package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voxfill/voxfill/pkg/forms"
)

// BuildPrompt renders the extraction prompt for a transcription against a
// form schema. The contract is deliberately strict: models love to fill every
// key and to echo labels back as values, so the prompt forbids both. All
// layers receive the same prompt and must answer with a JSON object whose
// single "structured" key maps field names to values.
func BuildPrompt(schema forms.Schema, transcription, surrounding string) string {
	var b strings.Builder

	b.WriteString(`You are a highly precise assistant that fills out web forms based ONLY on the information a user provides.
Your task is to analyze the user's speech (transcription) and fill the form fields from the provided JSON schema.

CRITICAL INSTRUCTIONS:
1. Be very strict. Only fill in fields for which the user has explicitly provided a value in their speech.
2. If no value is given for a field, you MUST omit it entirely from your response. Do not include the key for that field in the output JSON.
3. Do not guess or infer values. Do not use the field's label or name as its value.
4. For numeric fields, if no number is provided, do not default to 0. Omit the field completely.
5. Do NOT translate - keep values in their original language.

Your response MUST be a JSON object with a single key: "structured", where the value is an object containing ONLY the filled form fields, keyed by field name.

`)

	b.WriteString("Fields:\n")
	for _, f := range schema.Fields {
		label := f.Label
		if label == "" {
			label = f.Name
		}
		typ := f.InputType
		if typ == "" {
			typ = string(f.Kind)
		}
		fmt.Fprintf(&b, "- %q (field name: %q, type: %s)\n", label, f.Name, typ)
	}

	b.WriteString("\n---\nSurrounding Context: ")
	if strings.TrimSpace(surrounding) == "" {
		b.WriteString("No context provided.")
	} else {
		b.WriteString(surrounding)
	}

	fmt.Fprintf(&b, "\n---\nTranscription: %q\n---\nSchema:\n", transcription)

	if data, err := json.Marshal(schema); err == nil {
		b.Write(data)
	}
	b.WriteString("\n")

	return b.String()
}

// SystemPrompt is the system-role preamble used by cloud LLM layers.
const SystemPrompt = "You extract structured form data from transcribed speech. Respond with JSON only, no prose."
