package session_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxfill/voxfill/internal/session"
	"github.com/voxfill/voxfill/pkg/audio"
	audiomock "github.com/voxfill/voxfill/pkg/audio/mock"
	"github.com/voxfill/voxfill/pkg/provider/stt"
	sttmock "github.com/voxfill/voxfill/pkg/provider/stt/mock"
)

func TestRecorder_StartStopAssemblesClip(t *testing.T) {
	t.Parallel()

	cap := audiomock.NewCapture()
	platform := &audiomock.Platform{OpenResult: cap}
	r := session.New(platform, session.WithCaptureConfig(audio.CaptureConfig{SampleRate: 16000, Channels: 1}))

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := r.Phase(); got != session.PhaseRecording {
		t.Errorf("Phase = %v, want %v", got, session.PhaseRecording)
	}

	cap.Push(audio.Frame{Data: []byte{1, 2}, SampleRate: 16000, Channels: 1})
	cap.Push(audio.Frame{Data: []byte{3, 4}, SampleRate: 16000, Channels: 1})

	res, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if want := []byte{1, 2, 3, 4}; !bytes.Equal(res.Clip.Data, want) {
		t.Errorf("Clip.Data = %v, want %v", res.Clip.Data, want)
	}
	if res.Clip.SampleRate != 16000 || res.Clip.Channels != 1 {
		t.Errorf("clip format = %d Hz / %d ch, want 16000 / 1", res.Clip.SampleRate, res.Clip.Channels)
	}
	if res.Clip.MIME != "audio/pcm" {
		t.Errorf("Clip.MIME = %q, want audio/pcm", res.Clip.MIME)
	}
	if got := r.Phase(); got != session.PhaseIdle {
		t.Errorf("Phase after Stop = %v, want %v", got, session.PhaseIdle)
	}
	if !cap.Closed() {
		t.Error("capture was not closed by Stop")
	}
	if platform.CallCountOpen != 1 {
		t.Errorf("OpenCapture called %d times, want 1", platform.CallCountOpen)
	}
}

func TestRecorder_RejectsConcurrentStart(t *testing.T) {
	t.Parallel()

	cap := audiomock.NewCapture()
	r := session.New(&audiomock.Platform{OpenResult: cap})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(context.Background()); !errors.Is(err, session.ErrAlreadyActive) {
		t.Errorf("second Start error = %v, want ErrAlreadyActive", err)
	}
	if _, err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestRecorder_StopWithoutRecording(t *testing.T) {
	t.Parallel()

	r := session.New(&audiomock.Platform{OpenResult: audiomock.NewCapture()})

	if _, err := r.Stop(context.Background()); !errors.Is(err, session.ErrNotRecording) {
		t.Errorf("Stop error = %v, want ErrNotRecording", err)
	}
}

func TestRecorder_PermissionDeniedResetsToIdle(t *testing.T) {
	t.Parallel()

	platform := &audiomock.Platform{OpenError: audio.ErrPermissionDenied}
	r := session.New(platform)

	err := r.Start(context.Background())
	if !errors.Is(err, audio.ErrPermissionDenied) {
		t.Fatalf("Start error = %v, want ErrPermissionDenied", err)
	}
	if got := r.Phase(); got != session.PhaseIdle {
		t.Errorf("Phase = %v, want %v after a failed start", got, session.PhaseIdle)
	}
	// A later start must be accepted again.
	platform.OpenError = nil
	platform.OpenResult = audiomock.NewCapture()
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start after recovery: %v", err)
	}
}

func TestRecorder_FallbackStreamReceivesAudioAndTranscript(t *testing.T) {
	t.Parallel()

	cap := audiomock.NewCapture()
	sess := &sttmock.Session{
		PartialsCh:          make(chan stt.Transcript, 16),
		FinalsCh:            make(chan stt.Transcript, 16),
		CloseClosesChannels: true,
	}
	provider := &sttmock.StreamProvider{Session: sess}
	r := session.New(&audiomock.Platform{OpenResult: cap},
		session.WithFallbackStream(provider),
		session.WithCaptureConfig(audio.CaptureConfig{SampleRate: 48000, Channels: 1}),
		session.WithLanguage("en"))

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(provider.StartStreamCalls) != 1 {
		t.Fatalf("StartStream called %d times, want 1", len(provider.StartStreamCalls))
	}
	cfg := provider.StartStreamCalls[0].Cfg
	if cfg.SampleRate != 48000 || cfg.Language != "en" {
		t.Errorf("StreamConfig = %+v, want 48000 Hz, lang en", cfg)
	}

	cap.Push(audio.Frame{Data: []byte{1, 2, 3, 4}})
	sess.FinalsCh <- stt.Transcript{Text: "set the name", IsFinal: true}
	sess.FinalsCh <- stt.Transcript{Text: "to ada lovelace", IsFinal: true}

	res, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if want := "set the name to ada lovelace"; res.FallbackTranscript != want {
		t.Errorf("FallbackTranscript = %q, want %q", res.FallbackTranscript, want)
	}
	if sess.SendAudioCallCount() == 0 {
		t.Error("streaming session received no audio")
	}
}

func TestRecorder_PartialTranscriptKeptAsTail(t *testing.T) {
	t.Parallel()

	cap := audiomock.NewCapture()
	sess := &sttmock.Session{
		PartialsCh:          make(chan stt.Transcript, 16),
		FinalsCh:            make(chan stt.Transcript, 16),
		CloseClosesChannels: true,
	}
	r := session.New(&audiomock.Platform{OpenResult: cap},
		session.WithFallbackStream(&sttmock.StreamProvider{Session: sess}))

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Interim results supersede each other; only the latest one survives.
	sess.PartialsCh <- stt.Transcript{Text: "set the"}
	sess.PartialsCh <- stt.Transcript{Text: "set the email"}

	res, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if want := "set the email"; res.FallbackTranscript != want {
		t.Errorf("FallbackTranscript = %q, want %q", res.FallbackTranscript, want)
	}
}

func TestRecorder_StreamFailureDoesNotAbortRecording(t *testing.T) {
	t.Parallel()

	cap := audiomock.NewCapture()
	provider := &sttmock.StreamProvider{StartStreamErr: errors.New("socket refused")}
	r := session.New(&audiomock.Platform{OpenResult: cap},
		session.WithFallbackStream(provider))

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start should survive a stream failure, got %v", err)
	}
	cap.Push(audio.Frame{Data: []byte{9, 9}})

	res, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.FallbackTranscript != "" {
		t.Errorf("FallbackTranscript = %q, want empty without a stream", res.FallbackTranscript)
	}
	if !bytes.Equal(res.Clip.Data, []byte{9, 9}) {
		t.Errorf("Clip.Data = %v, want the captured audio", res.Clip.Data)
	}
}

func TestRecorder_StopReturnsWhenStreamCloseHangs(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)

	cap := audiomock.NewCapture()
	platform := &audiomock.Platform{OpenResult: cap}
	sess := &sttmock.Session{
		PartialsCh:       make(chan stt.Transcript, 16),
		FinalsCh:         make(chan stt.Transcript, 16),
		CloseBlocksUntil: release,
	}
	r := session.New(platform, session.WithFallbackStream(&sttmock.StreamProvider{Session: sess}))

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cap.Push(audio.Frame{Data: []byte{7, 7}})
	sess.FinalsCh <- stt.Transcript{Text: "partial answer", IsFinal: true}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	res, err := r.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Stop took %v, want prompt return once its context expires", elapsed)
	}
	if !bytes.Equal(res.Clip.Data, []byte{7, 7}) {
		t.Errorf("Clip.Data = %v, want the audio collected before the stall", res.Clip.Data)
	}
	if got := r.Phase(); got != session.PhaseIdle {
		t.Errorf("Phase = %v, want %v", got, session.PhaseIdle)
	}

	// The recorder is immediately ready for another attempt.
	platform.OpenResult = audiomock.NewCapture()
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start after a stalled stop: %v", err)
	}
	if got := r.Phase(); got != session.PhaseRecording {
		t.Errorf("Phase = %v, want %v", got, session.PhaseRecording)
	}
}

func TestRecorder_AbortDiscardsRecording(t *testing.T) {
	t.Parallel()

	cap := audiomock.NewCapture()
	r := session.New(&audiomock.Platform{OpenResult: cap})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Abort(context.Background()); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if got := r.Phase(); got != session.PhaseIdle {
		t.Errorf("Phase = %v, want %v", got, session.PhaseIdle)
	}
}

func TestPhase_String(t *testing.T) {
	t.Parallel()

	cases := []struct {
		phase session.Phase
		want  string
	}{
		{session.PhaseIdle, "idle"},
		{session.PhaseInitializing, "initializing"},
		{session.PhaseRecording, "recording"},
		{session.PhaseStopping, "stopping"},
	}
	for _, tc := range cases {
		if got := tc.phase.String(); got != tc.want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(tc.phase), got, tc.want)
		}
	}
}
