package transcribe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxfill/voxfill/pkg/audio"
	"github.com/voxfill/voxfill/pkg/provider/stt/mock"
)

var testClip = audio.Clip{Data: []byte{1, 2, 3, 4}, SampleRate: 16000, Channels: 1}

func TestTranscribe_FirstLayerWins(t *testing.T) {
	first := &mock.Transcriber{Text: "from first"}
	second := &mock.Transcriber{Text: "from second"}

	p := New(
		Layer{Name: "ondevice", Transcriber: first},
		Layer{Name: "cloud", Transcriber: second},
	)

	res, err := p.Transcribe(context.Background(), testClip, "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "from first" {
		t.Errorf("text = %q, want %q", res.Text, "from first")
	}
	if res.Layer != "ondevice" {
		t.Errorf("layer = %q, want ondevice", res.Layer)
	}
	if second.CallCount() != 0 {
		t.Error("second layer must not run when the first succeeds")
	}
}

func TestTranscribe_ErrorFallsThrough(t *testing.T) {
	first := &mock.Transcriber{TranscribeErr: errors.New("model missing")}
	second := &mock.Transcriber{Text: "cloud text"}

	p := New(
		Layer{Name: "ondevice", Transcriber: first},
		Layer{Name: "cloud", Transcriber: second},
	)

	res, err := p.Transcribe(context.Background(), testClip, "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "cloud text" || res.Layer != "cloud" {
		t.Errorf("got %+v, want cloud text from cloud layer", res)
	}
}

func TestTranscribe_EmptyTextCountsAsFailure(t *testing.T) {
	first := &mock.Transcriber{Text: "   "}
	second := &mock.Transcriber{Text: "real text"}

	p := New(
		Layer{Name: "ondevice", Transcriber: first},
		Layer{Name: "cloud", Transcriber: second},
	)

	res, err := p.Transcribe(context.Background(), testClip, "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Layer != "cloud" {
		t.Errorf("layer = %q, want cloud (blank first result must not win)", res.Layer)
	}
}

func TestTranscribe_FallbackTranscriptUsedLast(t *testing.T) {
	failing := &mock.Transcriber{TranscribeErr: errors.New("down")}

	p := New(
		Layer{Name: "ondevice", Transcriber: failing},
		Layer{Name: "cloud", Transcriber: failing},
	)

	res, err := p.Transcribe(context.Background(), testClip, "live words")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "live words" || res.Layer != "fallback" {
		t.Errorf("got %+v, want fallback transcript", res)
	}
}

func TestTranscribe_AllLayersFailed(t *testing.T) {
	failing := &mock.Transcriber{TranscribeErr: errors.New("down")}

	p := New(Layer{Name: "only", Transcriber: failing})

	_, err := p.Transcribe(context.Background(), testClip, "  ")
	if !errors.Is(err, ErrAllLayersFailed) {
		t.Fatalf("err = %v, want ErrAllLayersFailed", err)
	}
}

func TestTranscribe_FallbackNotConsultedOnSuccess(t *testing.T) {
	first := &mock.Transcriber{Text: "layer text"}

	p := New(Layer{Name: "ondevice", Transcriber: first})

	res, err := p.Transcribe(context.Background(), testClip, "live words")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "layer text" {
		t.Errorf("text = %q, fallback must not override a layer result", res.Text)
	}
}

func TestTranscribe_LayerTimeoutApplied(t *testing.T) {
	slow := &mock.Transcriber{Text: "never"}
	slow.TranscribeErr = nil

	p := New(Layer{Name: "ondevice", Transcriber: slow, Timeout: 10 * time.Millisecond})

	res, err := p.Transcribe(context.Background(), testClip, "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	// The mock answers immediately; verify the per-layer context carried a
	// deadline so real layers get bounded.
	if len(slow.TranscribeCalls) != 1 {
		t.Fatalf("calls = %d, want 1", len(slow.TranscribeCalls))
	}
	if _, ok := slow.TranscribeCalls[0].Ctx.Deadline(); !ok {
		t.Error("expected a deadline on the layer context")
	}
	_ = res
}
