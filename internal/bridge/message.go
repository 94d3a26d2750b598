// Package bridge implements the correlated request/response protocol spoken
// between the Voxfill agent and the browser extension's page world.
//
// Every request carries an operation tag and a freshly generated correlation
// channel; every response echoes the channel paired with either a success
// payload or an error description. The transport is a shared broadcast pipe,
// so each pending request filters strictly by its own channel and ignores
// everything else. Responses arriving after their timeout are dropped —
// the listener has already been deregistered by then.
package bridge

import "encoding/json"

// Op tags a correlated request sent to the page world. The set is closed;
// anything else on the wire is rejected before dispatch.
type Op string

const (
	// OpCheckEligibility asks whether the page-world on-device model is
	// currently usable. Answered with [EligibilityResult].
	OpCheckEligibility Op = "check_eligibility"

	// OpTranscribeAudio submits an audio payload for on-device
	// transcription. Answered with [TranscriptionResult].
	OpTranscribeAudio Op = "transcribe_audio"

	// OpExtractFields submits an extraction prompt for the on-device model.
	// Answered with [ExtractionResult].
	OpExtractFields Op = "extract_fields"

	// OpRewriteText submits masked text for on-device rewriting. Answered
	// with [RewriteResult].
	OpRewriteText Op = "rewrite_text"

	// OpBeginCapture asks the extension to start streaming microphone audio
	// as binary frames. Fails with [ErrorPermissionDenied] when the user
	// refuses microphone access.
	OpBeginCapture Op = "begin_capture"

	// OpEndCapture asks the extension to stop streaming microphone audio.
	OpEndCapture Op = "end_capture"

	// OpPing is the liveness probe answered by the extension's service
	// worker.
	OpPing Op = "ping"
)

// IsValid reports whether o is a recognised request operation.
func (o Op) IsValid() bool {
	switch o {
	case OpCheckEligibility, OpTranscribeAudio, OpExtractFields, OpRewriteText,
		OpBeginCapture, OpEndCapture, OpPing:
		return true
	}
	return false
}

// Request is the agent→page envelope.
type Request struct {
	Op      Op              `json:"op"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the page→agent envelope. Exactly one of Result and Error is
// meaningful, selected by Success.
type Response struct {
	Channel string          `json:"channel"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ErrorPermissionDenied is the well-known error string the extension sends
// when microphone access is refused.
const ErrorPermissionDenied = "permission_denied"

// CommandKind tags an uncorrelated page→agent command triggered by a user
// gesture or a settings change.
type CommandKind string

const (
	// CmdToggleRecord toggles recording for the form identified by FormIndex.
	CmdToggleRecord CommandKind = "toggle_record"

	// CmdRewriteField requests a rewrite of the field identified by
	// FormIndex and FieldName.
	CmdRewriteField CommandKind = "rewrite_field"

	// CmdSettingsUpdated announces that the user changed settings.
	CmdSettingsUpdated CommandKind = "settings_updated"
)

// IsValid reports whether k is a recognised command kind.
func (k CommandKind) IsValid() bool {
	switch k {
	case CmdToggleRecord, CmdRewriteField, CmdSettingsUpdated:
		return true
	}
	return false
}

// Command is an uncorrelated page→agent message.
type Command struct {
	Kind      CommandKind     `json:"cmd"`
	FormIndex int             `json:"formIndex"`
	FieldName string          `json:"fieldName,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NoticeKind tags an agent→page notification driving the in-page UI.
type NoticeKind string

const (
	// NoticeBusy shows or hides the busy indicator.
	NoticeBusy NoticeKind = "busy"

	// NoticeTransient shows a short-lived user-visible message, e.g. after
	// pipeline exhaustion.
	NoticeTransient NoticeKind = "notice"

	// NoticeBound reports which fields were written after binding.
	NoticeBound NoticeKind = "bound"

	// NoticeLevel carries a microphone input level reading in [0, 1] for the
	// in-page meter while a capture is active.
	NoticeLevel NoticeKind = "level"
)

// Notice is an uncorrelated agent→page message.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Visible bool       `json:"visible,omitempty"`
	Message string     `json:"message,omitempty"`
	Fields  []string   `json:"fields,omitempty"`
	Level   float64    `json:"level,omitempty"`
}

// ---- correlated payloads ----------------------------------------------------

// EligibilityResult answers [OpCheckEligibility].
type EligibilityResult struct {
	IsEligible bool `json:"isEligible"`
}

// TranscribeRequest carries the audio payload for [OpTranscribeAudio].
type TranscribeRequest struct {
	// AudioBase64 is the base64-encoded audio payload.
	AudioBase64 string `json:"audioBase64"`

	// MIME identifies the payload encoding.
	MIME string `json:"mimeType"`
}

// TranscriptionResult answers [OpTranscribeAudio].
type TranscriptionResult struct {
	Transcription string `json:"transcription"`
}

// PromptRequest carries a text prompt for [OpExtractFields] and
// [OpRewriteText].
type PromptRequest struct {
	Prompt string `json:"prompt"`
}

// ExtractionResult answers [OpExtractFields]. The model's raw text is
// returned untouched; the extraction pipeline owns the defensive parsing.
type ExtractionResult struct {
	Raw string `json:"raw"`
}

// RewriteResult answers [OpRewriteText].
type RewriteResult struct {
	RewrittenText string `json:"rewrittenText"`
}

// CaptureRequest carries the requested audio format for [OpBeginCapture].
type CaptureRequest struct {
	SampleRate int `json:"sampleRate"`
	Channels   int `json:"channels"`
}
