// Package rewrite rewrites free-text field content on demand.
//
// The flow mirrors the other pipelines with one extra safety net: identity
// fields are refused outright, and everything sensitive inside admitted text
// is masked before the model sees it and restored afterwards. A rewrite that
// fails end to end leaves the original text untouched.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voxfill/voxfill/internal/fieldclass"
	"github.com/voxfill/voxfill/pkg/provider/llm"
)

// ErrProtectedField is returned when the field's classification forbids
// rewriting. The caller keeps the original text.
var ErrProtectedField = errors.New("rewrite: field is protected")

// ErrAllLayersFailed is returned when every rewrite layer fails. The caller
// keeps the original text.
var ErrAllLayersFailed = errors.New("rewrite: all layers failed")

// DefaultTimeout bounds a single rewrite layer attempt.
const DefaultTimeout = 15 * time.Second

// Model is a prompt-capable rewrite backend. The on-device bridge model and
// the cloud LLM adapter both satisfy it.
type Model interface {
	Rewrite(ctx context.Context, prompt string) (string, error)
}

// LLM adapts an llm.Provider into a Model.
func LLM(provider llm.Provider) Model {
	return llmModel{provider: provider}
}

type llmModel struct {
	provider llm.Provider
}

func (m llmModel) Rewrite(ctx context.Context, prompt string) (string, error) {
	resp, err := m.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Prompt:       prompt,
		Temperature:  0.4,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Layer pairs a Model with its name and time budget.
type Layer struct {
	Name    string
	Model   Model
	Timeout time.Duration
}

// Pipeline masks, rewrites, and unmasks. Safe for concurrent use.
type Pipeline struct {
	masker *Masker
	layers []Layer
}

// New creates a Pipeline over the given layers, tried in order. A nil masker
// gets the default rule set.
func New(masker *Masker, layers ...Layer) *Pipeline {
	if masker == nil {
		masker = NewMasker()
	}
	return &Pipeline{masker: masker, layers: layers}
}

// Rewrite rewrites text according to opts. fc is the field's classification;
// protected fields are refused with ErrProtectedField. On any failure the
// original text is returned alongside the error so callers can bind it back
// unchanged.
func (p *Pipeline) Rewrite(ctx context.Context, text string, fc fieldclass.Context, opts Options) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	if fc.Protected() {
		return text, ErrProtectedField
	}

	masked, tokens := p.masker.Mask(text)
	prompt := BuildPrompt(masked, opts, fc.Instructions)

	var lastErr error
	for _, layer := range p.layers {
		out, err := p.run(ctx, layer, prompt)
		if err == nil && strings.TrimSpace(out) != "" {
			return Unmask(strings.TrimSpace(out), tokens), nil
		}
		if err == nil {
			err = errors.New("empty rewrite")
		}
		lastErr = err
		slog.Warn("rewrite layer failed, trying next",
			"layer", layer.Name, "error", err)

		if ctx.Err() != nil {
			break
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no layers configured")
	}
	return text, fmt.Errorf("%w: %v", ErrAllLayersFailed, lastErr)
}

func (p *Pipeline) run(ctx context.Context, layer Layer, prompt string) (string, error) {
	timeout := layer.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return layer.Model.Rewrite(ctx, prompt)
}
