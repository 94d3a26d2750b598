// Package mock provides in-memory mock implementations of the
// [audio.Platform] and [audio.Capture] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts, and they expose exported fields that
// the test can set to control return values.
//
// Typical usage:
//
//	cap := mock.NewCapture()
//	platform := &mock.Platform{OpenResult: cap}
//	cap.Push(audio.Frame{Data: pcm, SampleRate: 16000, Channels: 1})
//	cap.Close()
package mock

import (
	"context"
	"sync"

	"github.com/voxfill/voxfill/pkg/audio"
)

// Capture is a mock implementation of [audio.Capture]. Frames pushed via
// [Capture.Push] appear on the Frames channel; Close closes it.
type Capture struct {
	mu     sync.Mutex
	frames chan audio.Frame
	level  chan float64
	closed bool

	// CloseError is returned by [Capture.Close] on the first call.
	CloseError error

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

var _ audio.Capture = (*Capture)(nil)

// NewCapture creates a mock capture with buffered frame and level channels.
func NewCapture() *Capture {
	return &Capture{
		frames: make(chan audio.Frame, 64),
		level:  make(chan float64, 64),
	}
}

// Push delivers a frame to the capture's consumer. Push after Close panics,
// matching the invariant that a released capture never produces data.
func (c *Capture) Push(f audio.Frame) { c.frames <- f }

// PushLevel delivers a level reading to the capture's consumer.
func (c *Capture) PushLevel(v float64) { c.level <- v }

func (c *Capture) Frames() <-chan audio.Frame { return c.frames }

func (c *Capture) Level() <-chan float64 { return c.level }

func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountClose++
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.frames)
	close(c.level)
	return c.CloseError
}

// Closed reports whether Close has been called at least once.
func (c *Capture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// OpenResult is returned by [Platform.OpenCapture] when OpenError is nil.
	OpenResult *Capture

	// OpenError is returned by [Platform.OpenCapture]. Set it to
	// [audio.ErrPermissionDenied] to simulate a microphone denial.
	OpenError error

	// CallCountOpen records how many times OpenCapture was called.
	CallCountOpen int

	// RecordedConfigs holds the configs passed to OpenCapture, in order.
	RecordedConfigs []audio.CaptureConfig
}

var _ audio.Platform = (*Platform)(nil)

func (p *Platform) OpenCapture(_ context.Context, cfg audio.CaptureConfig) (audio.Capture, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountOpen++
	p.RecordedConfigs = append(p.RecordedConfigs, cfg)
	if p.OpenError != nil {
		return nil, p.OpenError
	}
	return p.OpenResult, nil
}
