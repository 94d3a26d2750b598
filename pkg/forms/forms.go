// Package forms defines the types and interfaces for web form introspection
// and mutation within Voxfill.
//
// The two primary abstractions are:
//
//   - [Form] — a live form (or form-like container) whose controls can be
//     read and written.
//   - [Inspector] — discovers forms on a page and derives their [Schema].
//
// Implementations of these interfaces are provided by backend-specific
// adapter packages (e.g., forms/cdpform for a CDP-attached browser tab,
// forms/memform for tests). The interfaces are intentionally narrow to keep
// the pipelines decoupled from how the DOM is actually reached.
package forms

import "context"

// Kind classifies a form control by its element type.
type Kind string

const (
	KindInput    Kind = "input"
	KindTextarea Kind = "textarea"
	KindSelect   Kind = "select"
)

// IsValid reports whether k is a recognised control kind.
func (k Kind) IsValid() bool {
	return k == KindInput || k == KindTextarea || k == KindSelect
}

// FieldDescriptor describes one form control as presented to the extraction
// model. It is derived read-only from the live form and never mutated.
type FieldDescriptor struct {
	// Name is the control's name attribute, falling back to its id. Names may
	// collide within a schema; the first matching control wins at bind time.
	Name string `json:"name"`

	// Kind is the element kind (input, textarea, select).
	Kind Kind `json:"type"`

	// InputType is the input element's type attribute ("text", "email",
	// "radio", "checkbox", ...). Empty for textarea and select.
	InputType string `json:"inputType"`

	// Label is the visible label text associated with the control, possibly
	// empty when no label could be located.
	Label string `json:"label"`

	// Placeholder is the control's placeholder attribute, when present.
	Placeholder string `json:"placeholder,omitempty"`
}

// Schema is the ordered field list handed to the extraction pipeline.
type Schema struct {
	Fields []FieldDescriptor `json:"fields"`
}

// Empty reports whether the schema declares no fields.
func (s Schema) Empty() bool { return len(s.Fields) == 0 }

// Result is the structured field→value mapping produced by extraction and
// consumed exactly once by the binder. Values are strings for text-like
// controls and booleans for checkboxes; anything else is coerced.
type Result map[string]any

// Option is one selectable entry of a select control.
type Option struct {
	// Value is the option's value attribute.
	Value string

	// Text is the option's visible text, matched case-insensitively at bind
	// time.
	Text string
}

// Control is a single live form control.
//
// Implementations must tolerate repeated writes of the same value; binding is
// idempotent by contract.
type Control interface {
	// Descriptor returns the control's static description.
	Descriptor() FieldDescriptor

	// Value returns the control's current value. For radio and checkbox
	// inputs this is the value attribute, not the checked state.
	Value() string

	// SetValue writes v as the control's content. Used for text-like inputs
	// and textareas.
	SetValue(v string) error

	// Checked reports the checked state of radio and checkbox inputs.
	Checked() bool

	// SetChecked sets the checked state of radio and checkbox inputs.
	SetChecked(on bool) error

	// Options returns the selectable options of a select control, in document
	// order. Nil for other kinds.
	Options() []Option

	// SelectOption selects the option whose value attribute equals value.
	SelectOption(value string) error
}

// Form is a live form-like container. Lookups never escape the container.
type Form interface {
	// Controls returns all bindable controls in document order. Hidden,
	// submit, and button inputs are excluded.
	Controls() []Control

	// ControlsByName returns the controls matching the given name attribute,
	// in document order. An empty slice means the field is absent; resolution
	// order matters for radio groups and name collisions.
	ControlsByName(name string) []Control
}

// Inspector discovers forms and derives the read-only data the extraction
// pipeline needs. Implementations wrap a concrete page backend.
type Inspector interface {
	// Forms returns the form-like containers currently present on the page,
	// including real form elements and outermost div containers holding two
	// or more controls.
	Forms(ctx context.Context) ([]Form, error)

	// Schema derives the field descriptors of form. The result reflects the
	// DOM at call time; it is not kept in sync afterwards.
	Schema(ctx context.Context, form Form) (Schema, error)

	// SurroundingText returns up to maxLen characters of text preceding the
	// form in the document, used as extraction context.
	SurroundingText(ctx context.Context, form Form, maxLen int) (string, error)
}

// Bool coerces a result value to a checkbox state. Strings are truthy unless
// empty, "false", "no", "off" or "0"; absent/nil values are false.
func Bool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch t {
		case "", "false", "False", "FALSE", "no", "No", "off", "0":
			return false
		}
		return true
	case float64:
		return t != 0
	case int:
		return t != 0
	case nil:
		return false
	default:
		return true
	}
}

// String coerces a result value to the string written into text-like controls.
func String(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		return stringify(t)
	}
}
