// Package session manages the lifecycle of one voice recording.
//
// A recording runs from the user's start gesture to their stop gesture. The
// [Recorder] owns the capture stream for that window and, when a streaming
// STT provider is configured, feeds the same PCM into a live session so a
// platform transcript accumulates alongside the raw audio. The transcript is
// the last line of defence: when every batch transcription layer fails after
// the recording, the pipeline falls back to whatever the stream heard.
//
// Only one recording can be active at a time. Gestures arriving while the
// recorder is initializing or stopping are rejected, not queued.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxfill/voxfill/pkg/audio"
	"github.com/voxfill/voxfill/pkg/provider/stt"
)

// Phase is the recorder's lifecycle state.
type Phase int

const (
	// PhaseIdle means no recording is active; a start gesture is accepted.
	PhaseIdle Phase = iota

	// PhaseInitializing means capture is being acquired; gestures are ignored.
	PhaseInitializing

	// PhaseRecording means audio is flowing; a stop gesture is accepted.
	PhaseRecording

	// PhaseStopping means teardown is in flight; gestures are ignored.
	PhaseStopping
)

// String returns the phase name for logging.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInitializing:
		return "initializing"
	case PhaseRecording:
		return "recording"
	case PhaseStopping:
		return "stopping"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

var (
	// ErrAlreadyActive is returned by Start when a recording is in progress
	// or still tearing down.
	ErrAlreadyActive = errors.New("session: a recording is already active")

	// ErrNotRecording is returned by Stop when no recording is in progress.
	ErrNotRecording = errors.New("session: no recording in progress")
)

// Result is the outcome of one completed recording.
type Result struct {
	// Clip is the raw PCM audio assembled from all captured frames.
	Clip audio.Clip

	// FallbackTranscript is the text accumulated by the streaming STT
	// session, empty when no stream was configured or nothing was heard.
	FallbackTranscript string

	// StartedAt is when capture began.
	StartedAt time.Time

	// Duration is the wall-clock length of the recording.
	Duration time.Duration
}

// Option is a functional option for configuring a [Recorder].
type Option func(*Recorder)

// WithFallbackStream attaches a streaming STT provider that transcribes the
// recording live. When nil (the default), no fallback transcript is produced.
func WithFallbackStream(p stt.StreamProvider) Option {
	return func(r *Recorder) {
		r.fallback = p
	}
}

// WithCaptureConfig sets the audio format requested from the platform.
// Default: 48000 Hz mono.
func WithCaptureConfig(cfg audio.CaptureConfig) Option {
	return func(r *Recorder) {
		r.cfg = cfg
	}
}

// WithLanguage sets the BCP-47 language tag passed to the streaming STT
// session. Empty (the default) lets the provider auto-detect.
func WithLanguage(lang string) Option {
	return func(r *Recorder) {
		r.language = lang
	}
}

// WithLogger sets the recorder's logger. Default: [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(r *Recorder) {
		if log != nil {
			r.log = log
		}
	}
}

// Recorder manages the lifecycle of voice recordings. Only one recording can
// be active at a time. All exported methods are safe for concurrent use.
type Recorder struct {
	platform audio.Platform
	fallback stt.StreamProvider
	cfg      audio.CaptureConfig
	language string
	log      *slog.Logger

	mu        sync.Mutex
	phase     Phase
	capture   audio.Capture
	buf       []byte
	tracker   *transcriptTracker
	startedAt time.Time
	wg        *sync.WaitGroup
}

// New creates a Recorder that acquires audio from platform.
func New(platform audio.Platform, opts ...Option) *Recorder {
	r := &Recorder{
		platform: platform,
		cfg:      audio.CaptureConfig{SampleRate: 48000, Channels: 1},
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Phase returns the recorder's current lifecycle state.
func (r *Recorder) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Active reports whether a recording is in progress or transitioning.
func (r *Recorder) Active() bool {
	return r.Phase() != PhaseIdle
}

// Start begins a new recording. It acquires the capture stream, opens the
// streaming STT session when one is configured, and starts pumping frames.
//
// Returns [ErrAlreadyActive] when the recorder is not idle, and a wrapped
// [audio.ErrPermissionDenied] when the platform refuses microphone access.
// A failure to open the streaming session is logged and does not abort the
// recording; the fallback transcript is simply absent.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.phase != PhaseIdle {
		phase := r.phase
		r.mu.Unlock()
		return fmt.Errorf("%w (phase=%s)", ErrAlreadyActive, phase)
	}
	r.phase = PhaseInitializing
	r.mu.Unlock()

	cap, err := r.platform.OpenCapture(ctx, r.cfg)
	if err != nil {
		r.mu.Lock()
		r.phase = PhaseIdle
		r.mu.Unlock()
		return fmt.Errorf("session: open capture: %w", err)
	}

	var handle stt.SessionHandle
	if r.fallback != nil {
		handle, err = r.fallback.StartStream(ctx, stt.StreamConfig{
			SampleRate: r.cfg.SampleRate,
			Channels:   r.cfg.Channels,
			Language:   r.language,
		})
		if err != nil {
			r.log.Warn("streaming fallback unavailable, recording without it", "error", err)
			handle = nil
		}
	}

	tracker := &transcriptTracker{}
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go r.pump(cap, handle, wg)
	if handle != nil {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for t := range handle.Partials() {
				tracker.setPartial(t.Text)
			}
		}()
		go func() {
			defer wg.Done()
			for t := range handle.Finals() {
				tracker.addFinal(t.Text)
			}
		}()
	}

	r.mu.Lock()
	r.phase = PhaseRecording
	r.capture = cap
	r.buf = nil
	r.tracker = tracker
	r.startedAt = time.Now()
	r.wg = wg
	r.mu.Unlock()

	r.log.Info("recording started",
		"sample_rate", r.cfg.SampleRate,
		"channels", r.cfg.Channels,
		"fallback_stream", handle != nil)
	return nil
}

// pump drains the capture into the clip buffer and mirrors frames into the
// streaming session. When the capture ends it closes the session, which
// flushes pending audio and closes the transcript channels.
func (r *Recorder) pump(cap audio.Capture, handle stt.SessionHandle, wg *sync.WaitGroup) {
	defer wg.Done()
	streaming := handle != nil

	for frame := range cap.Frames() {
		r.mu.Lock()
		r.buf = append(r.buf, frame.Data...)
		r.mu.Unlock()

		if streaming {
			if err := handle.SendAudio(frame.Data); err != nil {
				r.log.Debug("fallback stream rejected audio, continuing without it", "error", err)
				streaming = false
			}
		}
	}

	if handle != nil {
		if err := handle.Close(); err != nil {
			r.log.Debug("fallback stream close failed", "error", err)
		}
	}
}

// Stop ends the active recording and returns the assembled clip together
// with the fallback transcript.
//
// The capture is closed first, which drains the pump and flushes the
// streaming session, so the transcript snapshot includes everything the
// stream produced. If ctx expires before the drain completes, Stop returns
// whatever was collected up to that point.
func (r *Recorder) Stop(ctx context.Context) (Result, error) {
	r.mu.Lock()
	if r.phase != PhaseRecording {
		phase := r.phase
		r.mu.Unlock()
		return Result{}, fmt.Errorf("%w (phase=%s)", ErrNotRecording, phase)
	}
	r.phase = PhaseStopping
	cap := r.capture
	wg := r.wg
	startedAt := r.startedAt
	tracker := r.tracker
	r.mu.Unlock()

	if err := cap.Close(); err != nil {
		r.log.Warn("capture close failed", "error", err)
	}

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		r.log.Warn("recording drain interrupted", "error", ctx.Err())
	}

	r.mu.Lock()
	clip := audio.Clip{
		Data:       r.buf,
		MIME:       "audio/pcm",
		SampleRate: r.cfg.SampleRate,
		Channels:   r.cfg.Channels,
	}
	r.phase = PhaseIdle
	r.capture = nil
	r.buf = nil
	r.tracker = nil
	r.wg = nil
	r.mu.Unlock()

	res := Result{
		Clip:               clip,
		FallbackTranscript: tracker.snapshot(),
		StartedAt:          startedAt,
		Duration:           time.Since(startedAt),
	}

	r.log.Info("recording stopped",
		"duration", res.Duration,
		"bytes", len(clip.Data),
		"fallback_transcript", res.FallbackTranscript != "")
	return res, nil
}

// Abort ends the active recording and discards its result.
func (r *Recorder) Abort(ctx context.Context) error {
	_, err := r.Stop(ctx)
	return err
}

// transcriptTracker accumulates the streaming transcript. Finals are
// authoritative utterance segments and are concatenated; the latest partial
// is kept only as a tail for speech the stream had not finalized yet.
type transcriptTracker struct {
	mu      sync.Mutex
	finals  []string
	partial string
}

func (t *transcriptTracker) addFinal(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	t.mu.Lock()
	t.finals = append(t.finals, text)
	t.partial = ""
	t.mu.Unlock()
}

func (t *transcriptTracker) setPartial(text string) {
	t.mu.Lock()
	t.partial = strings.TrimSpace(text)
	t.mu.Unlock()
}

func (t *transcriptTracker) snapshot() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	parts := t.finals
	if t.partial != "" {
		parts = append(parts[:len(parts):len(parts)], t.partial)
	}
	return strings.Join(parts, " ")
}
