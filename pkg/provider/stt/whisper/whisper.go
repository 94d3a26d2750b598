// Package whisper provides an on-device transcription provider backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a) and
// headers (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at construction and shared across all Transcribe
// calls; each call creates its own whisper context, so concurrent calls are
// safe.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/voxfill/voxfill/pkg/audio"
	"github.com/voxfill/voxfill/pkg/provider/stt"
)

const defaultLanguage = "en"

// whisper.cpp expects 16 kHz mono float32 samples.
const modelSampleRate = 16000

var _ stt.Transcriber = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// Provider implements stt.Transcriber using the whisper.cpp Go bindings.
type Provider struct {
	language string

	mu    sync.Mutex
	model whisperlib.Model
}

// New creates a Provider that loads the whisper.cpp model from the given file
// path. The caller must call Close when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Available reports whether the model is loaded and ready for inference.
func (p *Provider) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model != nil
}

// Close releases the whisper model. Transcribe calls after Close fail.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	err := p.model.Close()
	p.model = nil
	return err
}

// Transcribe implements stt.Transcriber. The clip must carry raw 16-bit
// little-endian signed PCM; encoded clips are rejected.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if clip.Empty() {
		return "", errors.New("whisper: empty audio clip")
	}
	if clip.MIME != "" && !strings.Contains(clip.MIME, "pcm") {
		return "", fmt.Errorf("whisper: unsupported clip MIME %q, need raw PCM", clip.MIME)
	}

	p.mu.Lock()
	model := p.model
	p.mu.Unlock()
	if model == nil {
		return "", errors.New("whisper: provider is closed")
	}

	samples := audio.PCMToFloat32Mono(clip.Data, clip.Channels)
	if clip.SampleRate != modelSampleRate {
		samples = resample(samples, clip.SampleRate, modelSampleRate)
	}

	// Each context is NOT thread-safe, but the model can be shared across
	// goroutines.
	wctx, err := model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

// resample performs linear interpolation between sample rates. Quality is
// sufficient for speech recognition input.
func resample(in []float32, from, to int) []float32 {
	if from <= 0 || to <= 0 || from == to || len(in) == 0 {
		return in
	}
	n := len(in) * to / from
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	ratio := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return out
}
