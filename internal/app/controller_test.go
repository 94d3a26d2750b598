package app_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxfill/voxfill/internal/app"
	"github.com/voxfill/voxfill/internal/bridge"
	"github.com/voxfill/voxfill/internal/extract"
	"github.com/voxfill/voxfill/internal/rewrite"
	"github.com/voxfill/voxfill/internal/session"
	"github.com/voxfill/voxfill/internal/transcribe"
	"github.com/voxfill/voxfill/internal/transcript"
	"github.com/voxfill/voxfill/internal/transcript/phonetic"
	"github.com/voxfill/voxfill/pkg/audio"
	audiomock "github.com/voxfill/voxfill/pkg/audio/mock"
	"github.com/voxfill/voxfill/pkg/forms/memform"
	"github.com/voxfill/voxfill/pkg/provider/stt"
	sttmock "github.com/voxfill/voxfill/pkg/provider/stt/mock"
)

// noticeLog records notices pushed by the controller.
type noticeLog struct {
	mu      sync.Mutex
	notices []bridge.Notice
}

func (l *noticeLog) SendNotice(_ context.Context, n bridge.Notice) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, n)
	return nil
}

// waitFor blocks until a notice of the given kind has been recorded.
func (l *noticeLog) waitFor(t *testing.T, kind bridge.NoticeKind) bridge.Notice {
	t.Helper()
	return l.waitForWithin(t, kind, 2*time.Second)
}

// waitForWithin is waitFor with a caller-chosen deadline, for flows that
// legitimately take longer than the usual poll window.
func (l *noticeLog) waitForWithin(t *testing.T, kind bridge.NoticeKind, limit time.Duration) bridge.Notice {
	t.Helper()
	deadline := time.Now().Add(limit)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		for _, n := range l.notices {
			if n.Kind == kind {
				l.mu.Unlock()
				return n
			}
		}
		l.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %q notice arrived within %v", kind, limit)
	return bridge.Notice{}
}

func (l *noticeLog) all() []bridge.Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bridge.Notice(nil), l.notices...)
}

// stubModel implements both extract.Model and rewrite.Model with a canned
// response.
type stubModel struct {
	raw string
	err error
}

func (m *stubModel) Extract(_ context.Context, _ string) (string, error) { return m.raw, m.err }
func (m *stubModel) Rewrite(_ context.Context, _ string) (string, error) { return m.raw, m.err }

type fixture struct {
	ctrl     *app.Controller
	cmds     chan bridge.Command
	notices  *noticeLog
	platform *audiomock.Platform
	capture  *audiomock.Capture
	recorder *session.Recorder
	form     *memform.Form
}

// newFixture spins up a controller over in-memory doubles and starts its
// command loop; the loop is stopped via t.Cleanup.
func newFixture(t *testing.T, extractModel, rewriteModel *stubModel) *fixture {
	t.Helper()

	capture := audiomock.NewCapture()
	platform := &audiomock.Platform{OpenResult: capture}
	recorder := session.New(platform)

	form := memform.New()
	form.AddText("name", "Full name")
	form.AddText("email", "Email address")
	form.AddCheckbox("subscribe", "Subscribe to newsletter")
	form.AddText("bio", "About you").WithValue("i want the job please")
	form.Surrounding = "Join our mailing list"

	cmds := make(chan bridge.Command, 8)
	notices := &noticeLog{}

	ctrl := app.NewController(app.ControllerConfig{
		Recorder: recorder,
		Transcriber: transcribe.New(transcribe.Layer{
			Name:        "cloud",
			Transcriber: &sttmock.Transcriber{Text: "my name is ada and I want the newsletter"},
		}),
		Extractor: extract.New(extract.Layer{Name: "cloud", Model: extractModel}),
		Rewriter:  rewrite.New(nil, rewrite.Layer{Name: "cloud", Model: rewriteModel}),
		Aligner:   transcript.New(phonetic.New()),
		Inspector: &memform.Inspector{Items: []*memform.Form{form}},
		Notifier:  notices,
		Commands:  cmds,

		MicEnabled: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &fixture{
		ctrl:     ctrl,
		cmds:     cmds,
		notices:  notices,
		platform: platform,
		capture:  capture,
		recorder: recorder,
		form:     form,
	}
}

func audioFrame(samples ...byte) audio.Frame {
	return audio.Frame{Data: samples, SampleRate: 48000, Channels: 1}
}

// waitForPhase polls the recorder until it reaches the wanted phase.
func waitForPhase(t *testing.T, r *session.Recorder, want session.Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.Phase() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("recorder never reached phase %v", want)
}

func TestController_ToggleRecordFillsForm(t *testing.T) {
	t.Parallel()

	fx := newFixture(t,
		&stubModel{raw: `{"name":"Ada Lovelace","subscribe":true}`},
		&stubModel{raw: "unused"},
	)

	// Buffered ahead of time; the pump drains them once capture starts.
	fx.capture.Push(audioFrame(1, 2, 3, 4))

	fx.cmds <- bridge.Command{Kind: bridge.CmdToggleRecord, FormIndex: 0}
	waitForPhase(t, fx.recorder, session.PhaseRecording)

	fx.cmds <- bridge.Command{Kind: bridge.CmdToggleRecord, FormIndex: 0}
	bound := fx.notices.waitFor(t, bridge.NoticeBound)

	if len(bound.Fields) != 2 {
		t.Fatalf("bound fields = %v, want 2 entries", bound.Fields)
	}
	if got := fx.form.ControlsByName("name")[0].Value(); got != "Ada Lovelace" {
		t.Errorf("name = %q, want %q", got, "Ada Lovelace")
	}
	if !fx.form.ControlsByName("subscribe")[0].Checked() {
		t.Error("subscribe should be checked")
	}
	// Fields the model stayed silent on are untouched.
	if got := fx.form.ControlsByName("email")[0].Value(); got != "" {
		t.Errorf("email = %q, want empty", got)
	}

	// The busy indicator was raised and lowered around the fill.
	var sawBusyOn, sawBusyOff bool
	for _, n := range fx.notices.all() {
		if n.Kind == bridge.NoticeBusy {
			if n.Visible {
				sawBusyOn = true
			} else {
				sawBusyOff = true
			}
		}
	}
	if !sawBusyOn || !sawBusyOff {
		t.Errorf("busy on/off = %v/%v, want both", sawBusyOn, sawBusyOff)
	}
}

func TestController_ExtractionFailureNotifies(t *testing.T) {
	t.Parallel()

	fx := newFixture(t,
		&stubModel{err: context.DeadlineExceeded},
		&stubModel{raw: "unused"},
	)

	fx.cmds <- bridge.Command{Kind: bridge.CmdToggleRecord, FormIndex: 0}
	waitForPhase(t, fx.recorder, session.PhaseRecording)
	fx.capture.Push(audioFrame(9, 9))
	fx.cmds <- bridge.Command{Kind: bridge.CmdToggleRecord, FormIndex: 0}

	n := fx.notices.waitFor(t, bridge.NoticeTransient)
	if !strings.Contains(n.Message, "No form fields") {
		t.Errorf("message = %q, want an extraction failure hint", n.Message)
	}
	if got := fx.form.ControlsByName("name")[0].Value(); got != "" {
		t.Errorf("name = %q, form should be untouched after a failed fill", got)
	}
}

func TestController_FormIndexOutOfRange(t *testing.T) {
	t.Parallel()

	fx := newFixture(t,
		&stubModel{raw: `{"name":"x"}`},
		&stubModel{raw: "unused"},
	)

	fx.cmds <- bridge.Command{Kind: bridge.CmdToggleRecord, FormIndex: 7}
	waitForPhase(t, fx.recorder, session.PhaseRecording)
	fx.cmds <- bridge.Command{Kind: bridge.CmdToggleRecord, FormIndex: 7}

	n := fx.notices.waitFor(t, bridge.NoticeTransient)
	if n.Message == "" {
		t.Error("expected a user-visible message for a missing form")
	}
}

func TestController_RewriteField(t *testing.T) {
	t.Parallel()

	rewritten := "I would like to formally apply for this position."
	fx := newFixture(t,
		&stubModel{raw: `{}`},
		&stubModel{raw: rewritten},
	)

	fx.cmds <- bridge.Command{Kind: bridge.CmdRewriteField, FormIndex: 0, FieldName: "bio"}

	bound := fx.notices.waitFor(t, bridge.NoticeBound)
	if len(bound.Fields) != 1 || bound.Fields[0] != "bio" {
		t.Fatalf("bound fields = %v, want [bio]", bound.Fields)
	}
	if got := fx.form.ControlsByName("bio")[0].Value(); got != rewritten {
		t.Errorf("bio = %q, want %q", got, rewritten)
	}
}

func TestController_RewriteProtectedFieldRefused(t *testing.T) {
	t.Parallel()

	fx := newFixture(t,
		&stubModel{raw: `{}`},
		&stubModel{raw: "should never be used"},
	)
	fx.form.ControlsByName("email")[0].SetValue("ada@example.com")

	fx.cmds <- bridge.Command{Kind: bridge.CmdRewriteField, FormIndex: 0, FieldName: "email"}

	n := fx.notices.waitFor(t, bridge.NoticeTransient)
	if !strings.Contains(n.Message, "personal") {
		t.Errorf("message = %q, want a protected-field explanation", n.Message)
	}
	if got := fx.form.ControlsByName("email")[0].Value(); got != "ada@example.com" {
		t.Errorf("email = %q, protected value must not change", got)
	}
}

func TestController_RewriteEmptyFieldNotifies(t *testing.T) {
	t.Parallel()

	fx := newFixture(t,
		&stubModel{raw: `{}`},
		&stubModel{raw: "unused"},
	)

	fx.cmds <- bridge.Command{Kind: bridge.CmdRewriteField, FormIndex: 0, FieldName: "name"}

	n := fx.notices.waitFor(t, bridge.NoticeTransient)
	if !strings.Contains(n.Message, "nothing to rewrite") {
		t.Errorf("message = %q, want the empty-field hint", n.Message)
	}
}

func TestController_StalledStreamDoesNotWedgeCommandLoop(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)

	capture := audiomock.NewCapture()
	platform := &audiomock.Platform{OpenResult: capture}
	stream := &sttmock.StreamProvider{Session: &sttmock.Session{
		PartialsCh:       make(chan stt.Transcript, 16),
		FinalsCh:         make(chan stt.Transcript, 16),
		CloseBlocksUntil: release,
	}}
	recorder := session.New(platform, session.WithFallbackStream(stream))

	form := memform.New()
	form.AddText("name", "Full name")

	cmds := make(chan bridge.Command, 8)
	notices := &noticeLog{}
	ctrl := app.NewController(app.ControllerConfig{
		Recorder: recorder,
		Transcriber: transcribe.New(transcribe.Layer{
			Name:        "cloud",
			Transcriber: &sttmock.Transcriber{Text: "my name is ada"},
		}),
		Extractor:  extract.New(extract.Layer{Name: "cloud", Model: &stubModel{raw: `{"name":"Ada"}`}}),
		Rewriter:   rewrite.New(nil, rewrite.Layer{Name: "cloud", Model: &stubModel{raw: "unused"}}),
		Inspector:  &memform.Inspector{Items: []*memform.Form{form}},
		Notifier:   notices,
		Commands:   cmds,
		MicEnabled: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	capture.Push(audioFrame(1, 2))
	cmds <- bridge.Command{Kind: bridge.CmdToggleRecord, FormIndex: 0}
	waitForPhase(t, recorder, session.PhaseRecording)
	cmds <- bridge.Command{Kind: bridge.CmdToggleRecord, FormIndex: 0}

	// The stop drain gives up on the wedged stream and the fill still runs
	// with the audio collected before the stall.
	bound := notices.waitForWithin(t, bridge.NoticeBound, 10*time.Second)
	if len(bound.Fields) != 1 || bound.Fields[0] != "name" {
		t.Fatalf("bound fields = %v, want [name]", bound.Fields)
	}
	if got := form.ControlsByName("name")[0].Value(); got != "Ada" {
		t.Errorf("name = %q, want %q", got, "Ada")
	}

	// The command loop is free again: a later gesture starts a fresh recording.
	platform.OpenResult = audiomock.NewCapture()
	cmds <- bridge.Command{Kind: bridge.CmdToggleRecord, FormIndex: 0}
	waitForPhase(t, recorder, session.PhaseRecording)
}

func TestController_SettingsUpdate(t *testing.T) {
	t.Parallel()

	fx := newFixture(t,
		&stubModel{raw: `{}`},
		&stubModel{raw: "unused"},
	)

	payload, _ := json.Marshal(map[string]any{
		"micEnabled": false,
		"tone":       "formal",
		"length":     "shouty", // invalid, must be ignored
	})
	fx.cmds <- bridge.Command{Kind: bridge.CmdSettingsUpdated, Payload: payload}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mic, tone, length := fx.ctrl.Settings()
		if !mic && tone == rewrite.ToneFormal && length == rewrite.LengthOriginal {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("settings not applied: mic=%v tone=%v length=%v", mic, tone, length)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// With the microphone disabled, record gestures are ignored. A second
	// settings update acts as a fence proving the toggle was consumed.
	fx.cmds <- bridge.Command{Kind: bridge.CmdToggleRecord, FormIndex: 0}
	payload, _ = json.Marshal(map[string]any{"tone": "casual"})
	fx.cmds <- bridge.Command{Kind: bridge.CmdSettingsUpdated, Payload: payload}
	for {
		_, tone, _ := fx.ctrl.Settings()
		if tone == rewrite.ToneCasual {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("fence settings update not applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if fx.platform.CallCountOpen != 0 {
		t.Errorf("OpenCapture calls = %d, want 0 while the microphone is disabled", fx.platform.CallCountOpen)
	}
	if fx.recorder.Active() {
		t.Error("recorder must stay idle while the microphone is disabled")
	}
}
