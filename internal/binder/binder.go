// Package binder writes an extraction result into a live form.
//
// Binding is deliberately forgiving: the mapping came from a language model
// and the form came from an arbitrary page, so names may not line up. Fields
// absent from the form are skipped silently, per-control failures never abort
// the rest of the binding, and writing the same mapping twice leaves the form
// in the same state.
package binder

import (
	"log/slog"
	"strings"

	"github.com/voxfill/voxfill/pkg/forms"
)

// Bind writes result into form following per-control-kind rules:
//
//   - select: the option whose visible text equals the value
//     (case-insensitive) is selected; no match leaves the control untouched.
//   - radio: the control in the name group whose value attribute equals the
//     value (case-insensitive) is checked.
//   - checkbox: the value is coerced to a boolean and applied.
//   - anything else: the value is coerced to a string and written.
//
// When several controls share a name and no kind-specific rule applies, the
// first control in document order wins.
//
// The returned slice lists the names of fields that were actually written,
// in mapping iteration order.
func Bind(form forms.Form, result forms.Result) []string {
	if form == nil || len(result) == 0 {
		return nil
	}

	var bound []string
	for name, value := range result {
		controls := form.ControlsByName(name)
		if len(controls) == 0 {
			continue
		}

		if bindControl(controls, value) {
			bound = append(bound, name)
		}
	}
	return bound
}

func bindControl(controls []forms.Control, value any) bool {
	el := controls[0]
	desc := el.Descriptor()

	switch {
	case desc.Kind == forms.KindSelect:
		return bindSelect(el, value)

	case desc.InputType == "radio":
		return bindRadio(controls, value)

	case desc.InputType == "checkbox":
		if err := el.SetChecked(forms.Bool(value)); err != nil {
			slog.Warn("checkbox bind failed", "field", desc.Name, "error", err)
			return false
		}
		return true

	default:
		if err := el.SetValue(forms.String(value)); err != nil {
			slog.Warn("value bind failed", "field", desc.Name, "error", err)
			return false
		}
		return true
	}
}

func bindSelect(el forms.Control, value any) bool {
	want := strings.ToLower(forms.String(value))
	for _, opt := range el.Options() {
		if strings.ToLower(opt.Text) == want {
			if err := el.SelectOption(opt.Value); err != nil {
				slog.Warn("select bind failed", "field", el.Descriptor().Name, "error", err)
				return false
			}
			return true
		}
	}
	return false
}

func bindRadio(controls []forms.Control, value any) bool {
	want := strings.ToLower(forms.String(value))
	for _, c := range controls {
		if strings.ToLower(c.Value()) == want {
			if err := c.SetChecked(true); err != nil {
				slog.Warn("radio bind failed", "field", c.Descriptor().Name, "error", err)
				return false
			}
			return true
		}
	}
	return false
}
