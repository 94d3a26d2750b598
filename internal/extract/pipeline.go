// Package extract turns a transcription into a structured field mapping by
// walking a layered chain of prompt-capable models.
//
// The canonical chain is on-device first, cloud LLM second. Each layer gets
// the same strict prompt; a layer that errors, answers unparseable text, or
// produces an empty mapping counts as failed and the next layer is tried.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxfill/voxfill/pkg/forms"
	"github.com/voxfill/voxfill/pkg/provider/llm"
)

// ErrAllLayersFailed is returned when every extraction layer fails.
var ErrAllLayersFailed = errors.New("extract: all layers failed")

// DefaultTimeout bounds a single extraction layer attempt.
const DefaultTimeout = 20 * time.Second

// Model is a prompt-capable extraction backend. The on-device bridge model
// and the cloud LLM adapter both satisfy it.
type Model interface {
	Extract(ctx context.Context, prompt string) (string, error)
}

// LLM adapts an llm.Provider into a Model.
func LLM(provider llm.Provider) Model {
	return llmModel{provider: provider}
}

type llmModel struct {
	provider llm.Provider
}

func (m llmModel) Extract(ctx context.Context, prompt string) (string, error) {
	resp, err := m.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: SystemPrompt,
		Prompt:       prompt,
		Temperature:  0.1,
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

// Result carries the winning mapping and which layer produced it.
type Result struct {
	Fields forms.Result
	Layer  string
}

// Pipeline walks its layers in order until one produces a non-empty mapping.
// Safe for concurrent use.
type Pipeline struct {
	layers []Layer
}

// New creates a Pipeline over the given layers, tried in order.
func New(layers ...Layer) *Pipeline {
	return &Pipeline{layers: layers}
}

// Extract runs the chain for a transcription against schema. surrounding is
// free text near the form that helps the model disambiguate field intent.
func (p *Pipeline) Extract(ctx context.Context, schema forms.Schema, transcription, surrounding string) (Result, error) {
	prompt := BuildPrompt(schema, transcription, surrounding)

	var lastErr error
	for _, layer := range p.layers {
		mapping, err := p.run(ctx, layer, prompt)
		if err == nil {
			return Result{Fields: mapping, Layer: layer.Name}, nil
		}
		lastErr = err
		slog.Warn("extraction layer failed, trying next",
			"layer", layer.Name, "error", err)

		if ctx.Err() != nil {
			break
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no layers configured")
	}
	return Result{}, fmt.Errorf("%w: %v", ErrAllLayersFailed, lastErr)
}

func (p *Pipeline) run(ctx context.Context, layer Layer, prompt string) (forms.Result, error) {
	timeout := layer.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := layer.Model.Extract(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}
