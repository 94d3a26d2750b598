// Package openai provides a batch transcription provider backed by the
// OpenAI audio transcription API (Whisper). It implements the
// stt.Transcriber interface and serves as the transcription pipeline's cloud
// layer.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/voxfill/voxfill/pkg/audio"
	"github.com/voxfill/voxfill/pkg/provider/stt"
)

const defaultModel = oai.AudioModelWhisper1

// Provider implements stt.Transcriber using the OpenAI audio API.
type Provider struct {
	client   oai.Client
	model    oai.AudioModel
	language string
}

var _ stt.Transcriber = (*Provider)(nil)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel overrides the transcription model (default whisper-1).
func WithModel(model string) Option {
	return func(p *Provider) { p.model = oai.AudioModel(model) }
}

// WithLanguage sets the ISO-639-1 language hint (e.g., "en").
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	p := &Provider{
		client: oai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
		),
		model: defaultModel,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Transcriber. PCM clips are wrapped in a WAV
// header before upload; already-encoded clips are sent as-is.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if clip.Empty() {
		return "", fmt.Errorf("openai: empty audio clip")
	}

	data := clip.Data
	name := "clip"
	mime := clip.MIME
	if mime == "" || strings.Contains(mime, "pcm") || mime == "audio/wav" {
		if mime != "audio/wav" {
			data = audio.WAV(clip.Data, clip.SampleRate, clip.Channels)
		}
		mime = "audio/wav"
		name = "clip.wav"
	}

	params := oai.AudioTranscriptionNewParams{
		Model: p.model,
		File:  oai.File(bytes.NewReader(data), name, mime),
	}
	if p.language != "" {
		params.Language = oai.String(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
