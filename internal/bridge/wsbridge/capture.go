package wsbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxfill/voxfill/internal/bridge"
	"github.com/voxfill/voxfill/pkg/audio"
)

// beginCaptureTimeout bounds the wait for the extension to surface the
// browser's microphone permission prompt result.
const beginCaptureTimeout = 10 * time.Second

// endCaptureTimeout bounds the best-effort stop request during teardown.
const endCaptureTimeout = 2 * time.Second

// levelNoticeInterval throttles microphone level notices to the page. The
// meter needs perceptible updates, not one per 20 ms frame.
const levelNoticeInterval = 100 * time.Millisecond

var _ audio.Platform = (*Server)(nil)

// OpenCapture implements [audio.Platform]. It asks the extension to start
// streaming microphone audio and routes subsequent binary frames into the
// returned capture. A permission refusal maps to [audio.ErrPermissionDenied].
func (s *Server) OpenCapture(ctx context.Context, cfg audio.CaptureConfig) (audio.Capture, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	err := s.bus.Call(ctx, bridge.OpBeginCapture, bridge.CaptureRequest{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
	}, beginCaptureTimeout, nil)
	if err != nil {
		var remote *bridge.RemoteError
		if errors.As(err, &remote) && remote.Code == bridge.ErrorPermissionDenied {
			return nil, fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
		}
		return nil, err
	}

	dec, err := audio.NewOpusDecoder(cfg.SampleRate, cfg.Channels)
	if err != nil {
		// Undo the remote side; the decoder failure already aborts the open.
		s.endCapture()
		return nil, err
	}

	cap := &capture{
		server:  s,
		dec:     dec,
		packets: make(chan []byte, 256),
		frames:  make(chan audio.Frame, 64),
		level:   make(chan float64, 64),
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	prev := s.capture
	s.capture = cap
	s.mu.Unlock()
	if prev != nil {
		// Only one capture may be live; a leftover one is a bug upstream,
		// but it must still be released rather than leaked.
		slog.Warn("bridge capture superseded before close")
		prev.abandon()
	}

	cap.wg.Add(2)
	go cap.decodeLoop()
	go cap.levelLoop()
	return cap, nil
}

func (s *Server) endCapture() {
	ctx, cancel := context.WithTimeout(context.Background(), endCaptureTimeout)
	defer cancel()
	if err := s.bus.Call(ctx, bridge.OpEndCapture, nil, endCaptureTimeout, nil); err != nil {
		slog.Debug("end_capture failed", "error", err)
	}
}

// capture is one live bridge-fed capture stream. Binary packets from the
// socket are decoded to PCM on a dedicated goroutine so the socket read loop
// never blocks on a slow consumer.
type capture struct {
	server  *Server
	dec     *audio.OpusDecoder
	packets chan []byte
	frames  chan audio.Frame
	level   chan float64

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

var _ audio.Capture = (*capture)(nil)

func (c *capture) Frames() <-chan audio.Frame { return c.frames }

// Level returns nil: the server drains the level readings itself and feeds
// them to the in-page meter as notices, see levelLoop.
func (c *capture) Level() <-chan float64 { return nil }

// Close implements [audio.Capture]. The remote stop is best effort; local
// resources are released regardless.
func (c *capture) Close() error {
	c.once.Do(func() {
		c.server.mu.Lock()
		if c.server.capture == c {
			c.server.capture = nil
		}
		c.server.mu.Unlock()

		c.server.endCapture()
		close(c.done)
		c.wg.Wait()
	})
	return nil
}

// abandon releases the capture without talking to a connection that is
// already gone.
func (c *capture) abandon() {
	c.once.Do(func() {
		close(c.done)
		c.wg.Wait()
	})
}

// push queues one Opus packet. Packets are dropped when the decoder falls
// behind; losing audio beats stalling the socket.
func (c *capture) push(packet []byte) {
	select {
	case <-c.done:
	case c.packets <- packet:
	default:
		slog.Debug("bridge audio packet dropped, decoder behind")
	}
}

func (c *capture) decodeLoop() {
	defer c.wg.Done()
	defer close(c.frames)
	defer close(c.level)

	for {
		select {
		case <-c.done:
			return
		case packet := <-c.packets:
			frame, err := c.dec.Decode(packet)
			if err != nil {
				slog.Debug("dropping corrupt opus packet", "error", err)
				continue
			}
			select {
			case c.frames <- frame:
			case <-c.done:
				return
			}
			select {
			case c.level <- audio.RMS(frame.Data):
			default:
				// Metering is optional; never block on it.
			}
		}
	}
}

// levelLoop forwards decoded RMS readings to the page as meter notices.
// Sends are throttled and best effort; a detached extension only mutes the
// meter. The loop ends when decodeLoop closes the level channel.
func (c *capture) levelLoop() {
	defer c.wg.Done()

	var last time.Time
	for lvl := range c.level {
		if time.Since(last) < levelNoticeInterval {
			continue
		}
		last = time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := c.server.SendNotice(ctx, bridge.Notice{Kind: bridge.NoticeLevel, Level: lvl})
		cancel()
		if err != nil {
			slog.Debug("level notice dropped", "error", err)
		}
	}
}
