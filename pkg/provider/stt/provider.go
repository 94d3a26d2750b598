// Package stt defines the provider interfaces for Speech-to-Text backends.
//
// Two shapes of transcription exist in Voxfill:
//
//   - [Transcriber] — batch: one finalized audio clip in, one text out. Used
//     by the transcription pipeline's cloud layer and by the native
//     on-device layer.
//   - [StreamProvider] — streaming: a session accepts PCM frames while the
//     user is still speaking and emits interim and final transcripts. Used
//     as the platform speech fallback that runs alongside the recording.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/voxfill/voxfill/pkg/audio"
)

// Transcript is a speech-to-text result. Both interim and final transcripts
// use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or interim
	// transcript.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report confidence.
	Confidence float64
}

// Transcriber is the batch transcription abstraction.
type Transcriber interface {
	// Transcribe converts clip to text. An empty string with a nil error is
	// a legal provider answer (silence); callers treat it as no result.
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)
}

// StreamConfig describes the audio format for a new streaming session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (16000 typical for STT).
	SampleRate int

	// Channels is the number of audio channels; 1 is required by most
	// providers.
	Channels int

	// Language is the BCP-47 language tag for recognition. Empty lets the
	// provider auto-detect where supported.
	Language string
}

// SessionHandle is an open streaming transcription session.
//
// Callers must call Close when the session is no longer needed; failing to
// do so may leak goroutines and network connections inside the provider.
// All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio matching the StreamConfig.
	// Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel emitting low-latency interim
	// transcripts. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals returns a read-only channel emitting authoritative transcripts.
	// Closed when the session ends.
	Finals() <-chan Transcript

	// Close terminates the session, flushes pending audio, and releases all
	// associated resources. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// StreamProvider is the abstraction over any streaming STT backend.
type StreamProvider interface {
	// StartStream opens a new streaming session. The returned handle is
	// ready to accept audio immediately; the caller owns it and must call
	// Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
