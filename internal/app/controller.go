package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxfill/voxfill/internal/binder"
	"github.com/voxfill/voxfill/internal/bridge"
	"github.com/voxfill/voxfill/internal/extract"
	"github.com/voxfill/voxfill/internal/fieldclass"
	"github.com/voxfill/voxfill/internal/observe"
	"github.com/voxfill/voxfill/internal/rewrite"
	"github.com/voxfill/voxfill/internal/session"
	"github.com/voxfill/voxfill/internal/transcribe"
	"github.com/voxfill/voxfill/internal/transcript"
	"github.com/voxfill/voxfill/pkg/audio"
	"github.com/voxfill/voxfill/pkg/forms"
)

// surroundingTextLimit bounds how much page text around a form is fed to the
// extraction prompt.
const surroundingTextLimit = 500

// stopDrainTimeout bounds how long a stop gesture waits for the capture and
// streaming-transcript drain. The command loop is serial, so a stop that
// cannot finish must not wedge every later gesture.
const stopDrainTimeout = 3 * time.Second

// Notifier pushes uncorrelated notices to the in-page UI. Implemented by
// the bridge server; tests substitute a recorder.
type Notifier interface {
	SendNotice(ctx context.Context, n bridge.Notice) error
}

// Controller drives the voice-to-form flow. It consumes page commands one at
// a time: a first record gesture starts capture, the second stops it and runs
// the transcribe, extract, align, and bind stages against the gestured form.
// Rewrite gestures run the mask-rewrite-unmask flow for one field.
//
// Commands are processed serially; a gesture arriving while a previous one is
// still being processed waits in the command channel.
type Controller struct {
	recorder    *session.Recorder
	transcriber *transcribe.Pipeline
	extractor   *extract.Pipeline
	rewriter    *rewrite.Pipeline
	aligner     *transcript.Aligner
	inspector   forms.Inspector
	notifier    Notifier
	commands    <-chan bridge.Command
	metrics     *observe.Metrics
	log         *slog.Logger

	mu       sync.Mutex
	settings userSettings

	// recordingForm is the form index the active recording targets, valid
	// only while the recorder is active.
	recordingForm int
}

// userSettings is the mutable slice of configuration the page can update at
// runtime.
type userSettings struct {
	micEnabled bool
	tone       rewrite.Tone
	length     rewrite.Length
}

// ControllerConfig holds all dependencies for a [Controller].
type ControllerConfig struct {
	Recorder    *session.Recorder
	Transcriber *transcribe.Pipeline
	Extractor   *extract.Pipeline
	Rewriter    *rewrite.Pipeline
	Aligner     *transcript.Aligner
	Inspector   forms.Inspector
	Notifier    Notifier
	Commands    <-chan bridge.Command
	Metrics     *observe.Metrics
	Logger      *slog.Logger

	// MicEnabled, Tone and Length seed the runtime settings; the page may
	// change them later via a settings command.
	MicEnabled bool
	Tone       rewrite.Tone
	Length     rewrite.Length
}

// NewController creates a Controller with the given dependencies.
func NewController(cfg ControllerConfig) *Controller {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	tone := cfg.Tone
	if tone == "" {
		tone = rewrite.ToneOriginal
	}
	length := cfg.Length
	if length == "" {
		length = rewrite.LengthOriginal
	}
	return &Controller{
		recorder:    cfg.Recorder,
		transcriber: cfg.Transcriber,
		extractor:   cfg.Extractor,
		rewriter:    cfg.Rewriter,
		aligner:     cfg.Aligner,
		inspector:   cfg.Inspector,
		notifier:    cfg.Notifier,
		commands:    cfg.Commands,
		metrics:     metrics,
		log:         log,
		settings: userSettings{
			micEnabled: cfg.MicEnabled,
			tone:       tone,
			length:     length,
		},
	}
}

// Run consumes page commands until ctx is cancelled or the command channel
// closes. An active recording is aborted on exit.
func (c *Controller) Run(ctx context.Context) error {
	defer c.abortIfActive()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-c.commands:
			if !ok {
				return nil
			}
			c.dispatch(ctx, cmd)
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, cmd bridge.Command) {
	switch cmd.Kind {
	case bridge.CmdToggleRecord:
		c.handleToggleRecord(ctx, cmd.FormIndex)
	case bridge.CmdRewriteField:
		c.handleRewriteField(ctx, cmd.FormIndex, cmd.FieldName)
	case bridge.CmdSettingsUpdated:
		c.handleSettingsUpdated(cmd.Payload)
	default:
		c.log.Warn("unrecognised command", "kind", cmd.Kind)
	}
}

// handleToggleRecord starts capture on the first gesture and stops plus
// processes on the second.
func (c *Controller) handleToggleRecord(ctx context.Context, formIndex int) {
	if !c.micEnabled() {
		c.log.Debug("record gesture ignored, microphone disabled in settings")
		return
	}

	switch c.recorder.Phase() {
	case session.PhaseInitializing, session.PhaseStopping:
		// A gesture racing a phase transition is dropped rather than queued;
		// the user can simply tap again.
		c.log.Debug("record gesture ignored during phase transition",
			"phase", c.recorder.Phase().String())
		return
	case session.PhaseRecording:
		c.stopAndFill(ctx)
		return
	}

	if err := c.recorder.Start(ctx); err != nil {
		c.log.Error("capture start failed", "error", err)
		c.notify(ctx, bridge.Notice{
			Kind:    bridge.NoticeTransient,
			Message: captureErrorMessage(err),
		})
		return
	}
	c.metrics.ActiveRecordings.Add(ctx, 1)
	c.mu.Lock()
	c.recordingForm = formIndex
	c.mu.Unlock()
	c.log.Info("recording started", "form", formIndex)
}

// stopAndFill stops the active recording and runs the full fill flow against
// the form the recording was started for.
func (c *Controller) stopAndFill(ctx context.Context) {
	c.metrics.ActiveRecordings.Add(ctx, -1)

	c.mu.Lock()
	formIndex := c.recordingForm
	c.mu.Unlock()

	// The drain is bounded: a streaming backend that hangs its own teardown
	// loses the tail of its transcript, not the whole agent.
	stopCtx, cancel := context.WithTimeout(ctx, stopDrainTimeout)
	rec, err := c.recorder.Stop(stopCtx)
	cancel()
	if err != nil {
		c.log.Error("capture stop failed", "error", err)
		c.notify(ctx, bridge.Notice{
			Kind:    bridge.NoticeTransient,
			Message: "Recording could not be stopped cleanly.",
		})
		return
	}

	c.notify(ctx, bridge.Notice{Kind: bridge.NoticeBusy, Visible: true})
	defer c.notify(ctx, bridge.Notice{Kind: bridge.NoticeBusy, Visible: false})

	start := time.Now()
	bound, err := c.fill(ctx, formIndex, rec)
	c.metrics.FillDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		c.log.Error("form fill failed", "form", formIndex, "error", err)
		c.notify(ctx, bridge.Notice{
			Kind:    bridge.NoticeTransient,
			Message: fillErrorMessage(err),
		})
		return
	}

	c.log.Info("form filled", "form", formIndex, "fields", len(bound))
	c.notify(ctx, bridge.Notice{Kind: bridge.NoticeBound, Fields: bound})
}

// fill runs transcribe, extract, align, and bind for one recording.
func (c *Controller) fill(ctx context.Context, formIndex int, rec session.Result) ([]string, error) {
	ctx, span := observe.StartSpan(ctx, "voxfill.fill")
	defer span.End()
	log := observe.Logger(ctx, c.log)

	form, err := c.formAt(ctx, formIndex)
	if err != nil {
		return nil, err
	}

	schema, err := c.inspector.Schema(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("derive schema: %w", err)
	}
	if len(schema.Fields) == 0 {
		return nil, errors.New("form has no fillable fields")
	}

	surrounding, err := c.inspector.SurroundingText(ctx, form, surroundingTextLimit)
	if err != nil {
		log.Debug("surrounding text unavailable", "error", err)
		surrounding = ""
	}

	tStart := time.Now()
	tRes, err := c.transcriber.Transcribe(ctx, rec.Clip, rec.FallbackTranscript)
	c.metrics.TranscribeDuration.Record(ctx, time.Since(tStart).Seconds())
	if err != nil {
		c.metrics.RecordPipelineFailure(ctx, "transcribe")
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	c.metrics.RecordLayerAttempt(ctx, "transcribe", tRes.Layer, "ok")
	log.Debug("transcription ready", "layer", tRes.Layer, "chars", len(tRes.Text))

	eStart := time.Now()
	eRes, err := c.extractor.Extract(ctx, schema, tRes.Text, surrounding)
	c.metrics.ExtractDuration.Record(ctx, time.Since(eStart).Seconds())
	if err != nil {
		c.metrics.RecordPipelineFailure(ctx, "extract")
		return nil, fmt.Errorf("extract: %w", err)
	}
	c.metrics.RecordLayerAttempt(ctx, "extract", eRes.Layer, "ok")

	aligned := eRes.Fields
	if c.aligner != nil {
		var alignments []transcript.Alignment
		aligned, alignments = c.aligner.Align(form, eRes.Fields)
		if len(alignments) > 0 {
			log.Debug("transcript aligned to options", "count", len(alignments))
		}
	}

	bound := binder.Bind(form, aligned)
	c.metrics.FieldsBound.Add(ctx, int64(len(bound)))
	return bound, nil
}

// handleRewriteField rewrites one field's current value in place.
func (c *Controller) handleRewriteField(ctx context.Context, formIndex int, fieldName string) {
	if fieldName == "" {
		c.log.Warn("rewrite command without a field name", "form", formIndex)
		return
	}

	ctx, span := observe.StartSpan(ctx, "voxfill.rewrite_field")
	defer span.End()

	c.notify(ctx, bridge.Notice{Kind: bridge.NoticeBusy, Visible: true})
	defer c.notify(ctx, bridge.Notice{Kind: bridge.NoticeBusy, Visible: false})

	form, err := c.formAt(ctx, formIndex)
	if err != nil {
		c.log.Error("rewrite failed", "form", formIndex, "field", fieldName, "error", err)
		c.notify(ctx, bridge.Notice{
			Kind:    bridge.NoticeTransient,
			Message: "The form could not be found on the page.",
		})
		return
	}

	controls := form.ControlsByName(fieldName)
	if len(controls) == 0 {
		c.log.Warn("rewrite target not found", "form", formIndex, "field", fieldName)
		c.notify(ctx, bridge.Notice{
			Kind:    bridge.NoticeTransient,
			Message: "That field could not be found.",
		})
		return
	}
	control := controls[0]

	value := control.Value()
	if strings.TrimSpace(value) == "" {
		c.notify(ctx, bridge.Notice{
			Kind:    bridge.NoticeTransient,
			Message: "There is nothing to rewrite yet.",
		})
		return
	}

	fc := fieldclass.Classify(control.Descriptor(), value)

	c.mu.Lock()
	opts := rewrite.Options{Tone: c.settings.tone, Length: c.settings.length}
	c.mu.Unlock()

	start := time.Now()
	rewritten, err := c.rewriter.Rewrite(ctx, value, fc, opts)
	c.metrics.RewriteDuration.Record(ctx, time.Since(start).Seconds())
	switch {
	case errors.Is(err, rewrite.ErrProtectedField):
		c.log.Debug("rewrite refused for protected field", "field", fieldName)
		c.notify(ctx, bridge.Notice{
			Kind:    bridge.NoticeTransient,
			Message: "This field contains personal details and is left as written.",
		})
		return
	case err != nil:
		c.metrics.RecordPipelineFailure(ctx, "rewrite")
		c.log.Error("rewrite failed", "field", fieldName, "error", err)
		c.notify(ctx, bridge.Notice{
			Kind:    bridge.NoticeTransient,
			Message: "The text could not be rewritten right now.",
		})
		return
	}

	if err := control.SetValue(rewritten); err != nil {
		c.log.Error("rewritten value could not be written back", "field", fieldName, "error", err)
		c.notify(ctx, bridge.Notice{
			Kind:    bridge.NoticeTransient,
			Message: "The rewritten text could not be applied.",
		})
		return
	}

	c.log.Info("field rewritten", "form", formIndex, "field", fieldName)
	c.notify(ctx, bridge.Notice{Kind: bridge.NoticeBound, Fields: []string{fieldName}})
}

// settingsPayload is the page's settings command body. Pointer fields
// distinguish "absent" from "set to zero value".
type settingsPayload struct {
	MicEnabled *bool   `json:"micEnabled"`
	Tone       *string `json:"tone"`
	Length     *string `json:"length"`
}

// handleSettingsUpdated applies a settings change from the page. Unknown or
// invalid values are ignored field by field so one bad value does not discard
// the rest of the update.
func (c *Controller) handleSettingsUpdated(payload json.RawMessage) {
	var p settingsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.log.Warn("malformed settings payload", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p.MicEnabled != nil {
		c.settings.micEnabled = *p.MicEnabled
	}
	if p.Tone != nil {
		if t := rewrite.Tone(*p.Tone); t.IsValid() {
			c.settings.tone = t
		} else {
			c.log.Warn("invalid tone in settings update", "tone", *p.Tone)
		}
	}
	if p.Length != nil {
		if l := rewrite.Length(*p.Length); l.IsValid() {
			c.settings.length = l
		} else {
			c.log.Warn("invalid length in settings update", "length", *p.Length)
		}
	}
	c.log.Info("settings updated",
		"mic_enabled", c.settings.micEnabled,
		"tone", c.settings.tone,
		"length", c.settings.length,
	)
}

// Settings returns the current runtime settings as the page sees them.
func (c *Controller) Settings() (micEnabled bool, tone rewrite.Tone, length rewrite.Length) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.micEnabled, c.settings.tone, c.settings.length
}

func (c *Controller) formAt(ctx context.Context, index int) (forms.Form, error) {
	if c.inspector == nil {
		return nil, errors.New("no page inspector configured")
	}
	pageForms, err := c.inspector.Forms(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan page forms: %w", err)
	}
	if index < 0 || index >= len(pageForms) {
		return nil, fmt.Errorf("form index %d out of range (page has %d)", index, len(pageForms))
	}
	return pageForms[index], nil
}

func (c *Controller) micEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.micEnabled
}

func (c *Controller) abortIfActive() {
	if !c.recorder.Active() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.recorder.Abort(ctx); err != nil {
		c.log.Warn("abort on shutdown failed", "error", err)
	}
	c.metrics.ActiveRecordings.Add(ctx, -1)
}

func (c *Controller) notify(ctx context.Context, n bridge.Notice) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.SendNotice(ctx, n); err != nil {
		c.log.Debug("notice not delivered", "kind", n.Kind, "error", err)
	}
}

// captureErrorMessage maps a capture failure to the user-visible text.
func captureErrorMessage(err error) string {
	if errors.Is(err, session.ErrAlreadyActive) {
		return "A recording is already in progress."
	}
	if errors.Is(err, audio.ErrPermissionDenied) {
		return "Microphone access was denied. Allow it in the browser to use voice fill."
	}
	return "Recording could not be started."
}

// fillErrorMessage maps a pipeline failure to the user-visible text.
func fillErrorMessage(err error) string {
	switch {
	case errors.Is(err, transcribe.ErrAllLayersFailed):
		return "Your speech could not be transcribed. Please try again."
	case errors.Is(err, extract.ErrAllLayersFailed):
		return "No form fields could be understood from that recording."
	default:
		return "The form could not be filled from that recording."
	}
}
