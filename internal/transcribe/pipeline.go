// Package transcribe turns a recorded audio clip into text by walking a
// layered chain of transcribers.
//
// The canonical chain is on-device model first, cloud STT second, and the
// live fallback transcript captured during recording as the last resort.
// A layer that returns an error or an empty transcription counts as failed
// and the next layer is tried. The chain never retries a layer within one
// invocation; availability is re-evaluated on the next recording instead.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voxfill/voxfill/pkg/audio"
	"github.com/voxfill/voxfill/pkg/provider/stt"
)

// ErrAllLayersFailed is returned when every layer fails and no fallback
// transcript is available.
var ErrAllLayersFailed = errors.New("transcribe: all layers failed")

// Layer pairs a transcriber with its name and time budget.
type Layer struct {
	// Name identifies the layer in logs and metrics (e.g. "ondevice", "cloud").
	Name string

	// Transcriber performs the actual work.
	Transcriber stt.Transcriber

	// Timeout bounds a single attempt. Zero means no layer-level bound
	// beyond the caller's context.
	Timeout time.Duration
}

// Result carries the winning transcription and which layer produced it.
type Result struct {
	Text string

	// Layer is the name of the layer that succeeded, or "fallback" when the
	// live transcript was used.
	Layer string
}

// Pipeline walks its layers in order until one produces non-empty text.
// Safe for concurrent use; layers are never mutated after construction.
type Pipeline struct {
	layers []Layer
}

// New creates a Pipeline over the given layers, tried in order.
func New(layers ...Layer) *Pipeline {
	return &Pipeline{layers: layers}
}

// Transcribe runs the chain against clip. fallback is the live transcript
// accumulated while recording; it is consulted only after every layer has
// failed, and an empty fallback does not count as success.
func (p *Pipeline) Transcribe(ctx context.Context, clip audio.Clip, fallback string) (Result, error) {
	var lastErr error
	for _, layer := range p.layers {
		text, err := p.run(ctx, layer, clip)
		if err == nil && strings.TrimSpace(text) != "" {
			return Result{Text: text, Layer: layer.Name}, nil
		}
		if err == nil {
			err = errors.New("empty transcription")
		}
		lastErr = err
		slog.Warn("transcription layer failed, trying next",
			"layer", layer.Name, "error", err)

		if ctx.Err() != nil {
			break
		}
	}

	if fb := strings.TrimSpace(fallback); fb != "" {
		slog.Info("using live fallback transcript", "length", len(fb))
		return Result{Text: fb, Layer: "fallback"}, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no layers configured")
	}
	return Result{}, fmt.Errorf("%w: %v", ErrAllLayersFailed, lastErr)
}

func (p *Pipeline) run(ctx context.Context, layer Layer, clip audio.Clip) (string, error) {
	if layer.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, layer.Timeout)
		defer cancel()
	}
	return layer.Transcriber.Transcribe(ctx, clip)
}
