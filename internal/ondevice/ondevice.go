// Package ondevice fronts the browser's page-world model over the bridge.
//
// The page world hosts both an on-device speech model and an on-device prompt
// model. Neither is guaranteed to be present: availability depends on the
// browser build, the hardware, and whether the model blobs have been
// downloaded. Every entry point therefore probes eligibility first and fails
// fast with ErrUnavailable so the calling pipeline can move on to its next
// layer without burning its timeout budget.
package ondevice

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voxfill/voxfill/internal/bridge"
	"github.com/voxfill/voxfill/internal/probe"
	"github.com/voxfill/voxfill/pkg/audio"
	"github.com/voxfill/voxfill/pkg/provider/stt"
)

// ErrUnavailable is returned when the page-world model reports itself
// ineligible or the eligibility probe cannot complete.
var ErrUnavailable = errors.New("ondevice: model is not available")

// Default per-call budgets. On-device inference on consumer hardware is slow;
// transcription of a long utterance can take most of its budget.
const (
	TranscribeTimeout = 20 * time.Second
	ExtractTimeout    = 20 * time.Second
	RewriteTimeout    = 15 * time.Second
)

// Model accesses the page-world on-device models through the bridge.
// Safe for concurrent use.
type Model struct {
	bus     bridge.Caller
	checker *probe.Checker

	transcribeTimeout time.Duration
	extractTimeout    time.Duration
	rewriteTimeout    time.Duration
}

var _ stt.Transcriber = (*Model)(nil)

// Option is a functional option for configuring a Model.
type Option func(*Model)

// WithTranscribeTimeout overrides the transcription budget.
func WithTranscribeTimeout(d time.Duration) Option {
	return func(m *Model) { m.transcribeTimeout = d }
}

// WithExtractTimeout overrides the extraction budget.
func WithExtractTimeout(d time.Duration) Option {
	return func(m *Model) { m.extractTimeout = d }
}

// WithRewriteTimeout overrides the rewrite budget.
func WithRewriteTimeout(d time.Duration) Option {
	return func(m *Model) { m.rewriteTimeout = d }
}

// New creates a Model speaking over bus. checker gates every call; pass the
// same probe.Checker the rest of the agent uses so eligibility decisions stay
// consistent.
func New(bus bridge.Caller, checker *probe.Checker, opts ...Option) *Model {
	m := &Model{
		bus:               bus,
		checker:           checker,
		transcribeTimeout: TranscribeTimeout,
		extractTimeout:    ExtractTimeout,
		rewriteTimeout:    RewriteTimeout,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Available reports whether the page-world model is currently eligible.
// Eligibility is re-checked on every call; a model can disappear between
// invocations (e.g. the browser unloads it under memory pressure).
func (m *Model) Available(ctx context.Context) bool {
	return m.checker.Eligible(ctx)
}

// Transcribe implements stt.Transcriber against the page-world speech model.
// PCM clips are wrapped in a WAV container before encoding; clips that
// already carry an encoded format are forwarded as-is.
func (m *Model) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if clip.Empty() {
		return "", errors.New("ondevice: empty audio clip")
	}
	if !m.checker.Eligible(ctx) {
		return "", ErrUnavailable
	}

	data := clip.Data
	mime := clip.MIME
	if mime == "" || strings.Contains(mime, "pcm") {
		data = audio.WAV(clip.Data, clip.SampleRate, clip.Channels)
		mime = "audio/wav"
	}

	req := bridge.TranscribeRequest{
		AudioBase64: base64.StdEncoding.EncodeToString(data),
		MIME:        mime,
	}
	var result bridge.TranscriptionResult
	if err := m.bus.Call(ctx, bridge.OpTranscribeAudio, req, m.transcribeTimeout, &result); err != nil {
		return "", fmt.Errorf("ondevice: transcribe: %w", err)
	}
	return result.Transcription, nil
}

// Extract submits an extraction prompt to the page-world prompt model and
// returns its raw text output. The caller owns parsing.
func (m *Model) Extract(ctx context.Context, prompt string) (string, error) {
	if !m.checker.Eligible(ctx) {
		return "", ErrUnavailable
	}

	var result bridge.ExtractionResult
	err := m.bus.Call(ctx, bridge.OpExtractFields, bridge.PromptRequest{Prompt: prompt}, m.extractTimeout, &result)
	if err != nil {
		return "", fmt.Errorf("ondevice: extract: %w", err)
	}
	return result.Raw, nil
}

// Rewrite submits masked text to the page-world prompt model and returns the
// rewritten text.
func (m *Model) Rewrite(ctx context.Context, prompt string) (string, error) {
	if !m.checker.Eligible(ctx) {
		return "", ErrUnavailable
	}

	var result bridge.RewriteResult
	err := m.bus.Call(ctx, bridge.OpRewriteText, bridge.PromptRequest{Prompt: prompt}, m.rewriteTimeout, &result)
	if err != nil {
		return "", fmt.Errorf("ondevice: rewrite: %w", err)
	}
	return result.RewrittenText, nil
}
