// Package audio defines the types and interfaces for voice capture within
// Voxfill.
//
// The two primary abstractions are:
//
//   - [Platform] — opens a capture stream from whatever actually owns the
//     microphone (in production, the browser extension streaming Opus frames
//     over the bridge; in tests, a mock).
//   - [Capture] — one live capture stream delivering decoded PCM frames and,
//     optionally, input level readings for UI metering.
//
// This package lives under pkg/ because capture adapters for other hosts are
// expected to implement [Platform].
package audio

import (
	"context"
	"time"
)

// Frame is a single frame of PCM audio flowing through the pipeline.
type Frame struct {
	// Data holds 16-bit little-endian signed PCM samples.
	Data []byte

	// SampleRate in Hz (16000 for STT input).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Clip is a finalized audio payload assembled from one recording session.
type Clip struct {
	// Data is the raw audio. For PCM payloads the format fields below apply;
	// for encoded payloads (MIME audio/ogg etc.) they describe the decoded
	// stream.
	Data []byte

	// MIME identifies the payload encoding, e.g. "audio/wav" or "audio/ogg".
	MIME string

	SampleRate int
	Channels   int
}

// Empty reports whether the clip carries no audio at all.
func (c Clip) Empty() bool { return len(c.Data) == 0 }

// Duration returns the clip length for PCM payloads, zero otherwise.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	samples := len(c.Data) / 2 / c.Channels
	return time.Duration(samples) * time.Second / time.Duration(c.SampleRate)
}

// CaptureConfig describes the audio format requested from a capture stream.
type CaptureConfig struct {
	SampleRate int
	Channels   int
}

// Capture is one live voice-capture stream.
//
// Frames are delivered incrementally while the stream is open, so downstream
// consumers never wait for the stream to end before seeing data. All channels
// are closed when the capture terminates.
type Capture interface {
	// Frames returns the read-only channel of decoded PCM frames.
	Frames() <-chan Frame

	// Level returns a read-only channel of input level readings in [0, 1]
	// for UI metering, or nil when the platform cannot provide metering.
	// A nil level channel never prevents the capture from working.
	Level() <-chan float64

	// Close stops the capture and releases the underlying input device.
	// It is safe to call Close more than once; subsequent calls are no-ops.
	Close() error
}

// Platform is the entry point for a voice-capture host.
//
// Implementations must be safe for concurrent use, though only one capture
// is ever open at a time in practice.
type Platform interface {
	// OpenCapture acquires the input device and starts delivering frames.
	// Returns [ErrPermissionDenied] (possibly wrapped) when the host refuses
	// microphone access.
	OpenCapture(ctx context.Context, cfg CaptureConfig) (Capture, error)
}
