package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/voxfill/voxfill/pkg/forms"
	"github.com/voxfill/voxfill/pkg/provider/llm"
	llmmock "github.com/voxfill/voxfill/pkg/provider/llm/mock"
)

var testSchema = forms.Schema{
	Fields: []forms.FieldDescriptor{
		{Name: "name", Kind: forms.KindInput, InputType: "text", Label: "Full Name"},
		{Name: "age", Kind: forms.KindInput, InputType: "number", Label: "Age"},
		{Name: "color", Kind: forms.KindSelect, Label: "Favourite colour"},
	},
}

// scripted is a Model answering a fixed response or error.
type scripted struct {
	raw   string
	err   error
	calls int
}

func (s *scripted) Extract(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.raw, nil
}

// ---- prompt tests ----

func TestBuildPrompt_ContainsContract(t *testing.T) {
	p := BuildPrompt(testSchema, "my name is Ada", "Job application")

	for _, want := range []string{
		"omit it entirely",
		"Do not guess or infer",
		`"structured"`,
		`"Full Name" (field name: "name", type: text)`,
		"Job application",
		`"my name is Ada"`,
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPrompt_EmptyContext(t *testing.T) {
	p := BuildPrompt(testSchema, "hi", "   ")
	if !strings.Contains(p, "No context provided.") {
		t.Error("expected placeholder for empty surrounding context")
	}
}

// ---- parse tests ----

func TestParse_FencedJSON(t *testing.T) {
	got, err := Parse("```json\n{\"structured\":{\"name\":\"Ada\"}}\n```")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got["name"] != "Ada" {
		t.Errorf("name = %v, want Ada", got["name"])
	}
}

func TestParse_BareFenceWithoutLanguage(t *testing.T) {
	got, err := Parse("```\n{\"name\":\"Ada\"}\n```")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got["name"] != "Ada" {
		t.Errorf("name = %v, want Ada", got["name"])
	}
}

func TestParse_ProseWrappedObject(t *testing.T) {
	got, err := Parse(`Here is the result: {"name":"Ada","age":36} hope that helps!`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got["name"] != "Ada" {
		t.Errorf("name = %v, want Ada", got["name"])
	}
	if got["age"] != float64(36) {
		t.Errorf("age = %v, want 36", got["age"])
	}
}

func TestParse_FlatObjectAccepted(t *testing.T) {
	got, err := Parse(`{"color":"blue"}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got["color"] != "blue" {
		t.Errorf("color = %v, want blue", got["color"])
	}
}

func TestParse_EmptyMapping(t *testing.T) {
	for _, raw := range []string{`{}`, `{"structured":{}}`, "", "this is not json"} {
		if _, err := Parse(raw); !errors.Is(err, ErrNoMapping) {
			t.Errorf("Parse(%q) err = %v, want ErrNoMapping", raw, err)
		}
	}
}

func TestParse_StructuredNotObject(t *testing.T) {
	if _, err := Parse(`{"structured":"oops"}`); err == nil {
		t.Error("expected error when structured key is not an object")
	}
}

// ---- pipeline tests ----

func TestExtract_FirstLayerWins(t *testing.T) {
	first := &scripted{raw: `{"structured":{"name":"Ada"}}`}
	second := &scripted{raw: `{"structured":{"name":"other"}}`}

	p := New(
		Layer{Name: "ondevice", Model: first},
		Layer{Name: "cloud", Model: second},
	)

	res, err := p.Extract(context.Background(), testSchema, "my name is Ada", "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Layer != "ondevice" || res.Fields["name"] != "Ada" {
		t.Errorf("got %+v", res)
	}
	if second.calls != 0 {
		t.Error("second layer must not run when the first succeeds")
	}
}

func TestExtract_UnparseableFallsThrough(t *testing.T) {
	first := &scripted{raw: "I could not find any fields."}
	second := &scripted{raw: `{"name":"Ada"}`}

	p := New(
		Layer{Name: "ondevice", Model: first},
		Layer{Name: "cloud", Model: second},
	)

	res, err := p.Extract(context.Background(), testSchema, "my name is Ada", "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Layer != "cloud" {
		t.Errorf("layer = %q, want cloud", res.Layer)
	}
}

func TestExtract_AllLayersFailed(t *testing.T) {
	p := New(
		Layer{Name: "ondevice", Model: &scripted{err: errors.New("down")}},
		Layer{Name: "cloud", Model: &scripted{raw: "{}"}},
	)

	_, err := p.Extract(context.Background(), testSchema, "hello", "")
	if !errors.Is(err, ErrAllLayersFailed) {
		t.Fatalf("err = %v, want ErrAllLayersFailed", err)
	}
}

func TestLLMAdapter_PassesPromptThrough(t *testing.T) {
	mp := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"structured":{"name":"Ada"}}`},
	}

	p := New(Layer{Name: "cloud", Model: LLM(mp)})
	res, err := p.Extract(context.Background(), testSchema, "my name is Ada", "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Fields["name"] != "Ada" {
		t.Errorf("name = %v", res.Fields["name"])
	}
	if mp.CallCount() != 1 {
		t.Fatalf("llm calls = %d, want 1", mp.CallCount())
	}
	req := mp.CompleteCalls[0].Req
	if req.SystemPrompt != SystemPrompt {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	if !strings.Contains(req.Prompt, "Transcription") {
		t.Error("prompt body missing transcription section")
	}
}
