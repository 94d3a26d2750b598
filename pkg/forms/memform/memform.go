// Package memform provides an in-memory implementation of the forms
// interfaces. It backs unit tests and fixtures; no real page is involved.
package memform

import (
	"context"
	"strings"
	"sync"

	"github.com/voxfill/voxfill/pkg/forms"
)

// Control is an in-memory form control. The zero value is not usable; create
// controls via [NewControl] or the [Form] helpers.
type Control struct {
	mu      sync.Mutex
	desc    forms.FieldDescriptor
	value   string
	checked bool
	options []forms.Option
}

var _ forms.Control = (*Control)(nil)

// NewControl creates a control with the given descriptor.
func NewControl(desc forms.FieldDescriptor) *Control {
	return &Control{desc: desc}
}

// WithValue sets the control's initial value and returns the control.
func (c *Control) WithValue(v string) *Control {
	c.value = v
	return c
}

// WithOptions sets a select control's options and returns the control.
func (c *Control) WithOptions(opts ...forms.Option) *Control {
	c.options = opts
	return c
}

func (c *Control) Descriptor() forms.FieldDescriptor { return c.desc }

func (c *Control) Value() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *Control) SetValue(v string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	return nil
}

func (c *Control) Checked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checked
}

func (c *Control) SetChecked(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checked = on
	return nil
}

func (c *Control) Options() []forms.Option { return c.options }

func (c *Control) SelectOption(value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	return nil
}

// Form is an in-memory form holding controls in insertion order.
type Form struct {
	controls []*Control

	// Surrounding is returned by the inspector's SurroundingText.
	Surrounding string
}

var _ forms.Form = (*Form)(nil)

// New creates an empty form.
func New() *Form { return &Form{} }

// Add appends a control and returns it for further configuration.
func (f *Form) Add(desc forms.FieldDescriptor) *Control {
	c := NewControl(desc)
	f.controls = append(f.controls, c)
	return c
}

// AddText appends a text input with the given name and label.
func (f *Form) AddText(name, label string) *Control {
	return f.Add(forms.FieldDescriptor{Name: name, Kind: forms.KindInput, InputType: "text", Label: label})
}

// AddSelect appends a select control with the given options, where each
// option's value is the lowercase of its text.
func (f *Form) AddSelect(name, label string, optionTexts ...string) *Control {
	c := f.Add(forms.FieldDescriptor{Name: name, Kind: forms.KindSelect, Label: label})
	for _, text := range optionTexts {
		c.options = append(c.options, forms.Option{Value: strings.ToLower(text), Text: text})
	}
	return c
}

// AddRadio appends one radio input of a group. The value attribute is stored
// as the control's Value.
func (f *Form) AddRadio(name, value string) *Control {
	c := f.Add(forms.FieldDescriptor{Name: name, Kind: forms.KindInput, InputType: "radio"})
	c.value = value
	return c
}

// AddCheckbox appends a checkbox input.
func (f *Form) AddCheckbox(name, label string) *Control {
	return f.Add(forms.FieldDescriptor{Name: name, Kind: forms.KindInput, InputType: "checkbox", Label: label})
}

func (f *Form) Controls() []forms.Control {
	out := make([]forms.Control, len(f.controls))
	for i, c := range f.controls {
		out[i] = c
	}
	return out
}

func (f *Form) ControlsByName(name string) []forms.Control {
	var out []forms.Control
	for _, c := range f.controls {
		if c.desc.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Inspector implements forms.Inspector over a fixed set of in-memory forms.
type Inspector struct {
	Items []*Form
}

var _ forms.Inspector = (*Inspector)(nil)

func (i *Inspector) Forms(_ context.Context) ([]forms.Form, error) {
	out := make([]forms.Form, len(i.Items))
	for n, f := range i.Items {
		out[n] = f
	}
	return out, nil
}

func (i *Inspector) Schema(_ context.Context, form forms.Form) (forms.Schema, error) {
	var s forms.Schema
	for _, c := range form.Controls() {
		s.Fields = append(s.Fields, c.Descriptor())
	}
	return s, nil
}

func (i *Inspector) SurroundingText(_ context.Context, form forms.Form, maxLen int) (string, error) {
	mf, ok := form.(*Form)
	if !ok {
		return "", nil
	}
	text := mf.Surrounding
	if maxLen > 0 && len(text) > maxLen {
		text = text[:maxLen]
	}
	return text, nil
}
