// Package cdpform implements the forms interfaces against a real browser
// tab reached over the Chrome DevTools Protocol.
//
// Discovery and mutation both run as JavaScript evaluated in the page. Each
// discovered container is tagged with a data attribute so controls can be
// relocated after the scan; descriptors and option lists are cached from the
// scan, while writes always go to the live DOM and dispatch the input and
// change events frameworks listen for.
package cdpform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/voxfill/voxfill/pkg/forms"
)

// Client drives one browser tab. It implements [forms.Inspector].
type Client struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

var _ forms.Inspector = (*Client)(nil)

// Option is a functional option for configuring a [Client].
type Option func(*options)

type options struct {
	urlFilter string
}

// WithURLFilter attaches to the first page tab whose URL contains filter
// (case-insensitive). Default: the first page tab.
func WithURLFilter(filter string) Option {
	return func(o *options) {
		o.urlFilter = filter
	}
}

// Connect attaches to a running browser's DevTools endpoint
// (e.g., "http://127.0.0.1:9222") and binds to a page tab.
func Connect(ctx context.Context, debugURL string, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), debugURL)

	tempCtx, tempCancel := chromedp.NewContext(allocCtx)
	defer tempCancel()
	if err := chromedp.Run(tempCtx); err != nil {
		allocCancel()
		return nil, fmt.Errorf("cdpform: connect to browser at %q: %w", debugURL, err)
	}

	targets, err := chromedp.Targets(tempCtx)
	if err != nil {
		allocCancel()
		return nil, fmt.Errorf("cdpform: enumerate targets: %w", err)
	}

	t := pickTarget(targets, o.urlFilter)
	if t == nil {
		allocCancel()
		if o.urlFilter != "" {
			return nil, fmt.Errorf("cdpform: no page tab matching %q", o.urlFilter)
		}
		return nil, fmt.Errorf("cdpform: no page tab found")
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithTargetID(t.TargetID))
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("cdpform: attach to tab %q: %w", t.URL, err)
	}
	slog.Info("attached to browser tab", "url", t.URL)
	return &Client{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}, nil
}

// pickTarget returns the first page target whose URL contains filter
// (case-insensitive); an empty filter matches any page. Nil when no page
// qualifies.
func pickTarget(targets []*target.Info, filter string) *target.Info {
	filter = strings.ToLower(filter)
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(t.URL), filter) {
			continue
		}
		return t
	}
	return nil
}

// Close detaches from the browser. The browser itself keeps running.
func (c *Client) Close() error {
	if c.tabCancel != nil {
		c.tabCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	return nil
}

// eval runs expr in the tab and decodes the JSON result into out.
func (c *Client) eval(ctx context.Context, expr string, out any) error {
	runCtx := c.tabCtx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(c.tabCtx, deadline)
		defer cancel()
	}
	if out == nil {
		var discard json.RawMessage
		out = &discard
	}
	if err := chromedp.Run(runCtx, chromedp.Evaluate(expr, out)); err != nil {
		return fmt.Errorf("cdpform: evaluate: %w", err)
	}
	return nil
}

// Forms implements [forms.Inspector]. It scans the page for form elements
// and outermost form-like div containers holding two or more controls, tags
// each with a data attribute, and returns handles backed by the live DOM.
func (c *Client) Forms(ctx context.Context) ([]forms.Form, error) {
	var scanned []scannedForm
	if err := c.eval(ctx, scanScript, &scanned); err != nil {
		return nil, err
	}

	out := make([]forms.Form, 0, len(scanned))
	for _, sf := range scanned {
		out = append(out, newForm(c, sf))
	}
	return out, nil
}

// Schema implements [forms.Inspector].
func (c *Client) Schema(_ context.Context, form forms.Form) (forms.Schema, error) {
	f, ok := form.(*Form)
	if !ok {
		return forms.Schema{}, fmt.Errorf("cdpform: form is not a cdpform form")
	}
	s := forms.Schema{Fields: make([]forms.FieldDescriptor, 0, len(f.controls))}
	for _, ctl := range f.controls {
		s.Fields = append(s.Fields, ctl.desc)
	}
	return s, nil
}

// SurroundingText implements [forms.Inspector]. It walks backwards through
// the document text preceding the form and returns at most maxLen characters
// of it, whitespace-collapsed.
func (c *Client) SurroundingText(ctx context.Context, form forms.Form, maxLen int) (string, error) {
	f, ok := form.(*Form)
	if !ok {
		return "", fmt.Errorf("cdpform: form is not a cdpform form")
	}
	if maxLen <= 0 {
		maxLen = 500
	}
	var text string
	expr := fmt.Sprintf(surroundingTextScript, f.id, maxLen)
	if err := c.eval(ctx, expr, &text); err != nil {
		return "", err
	}
	return text, nil
}

// scannedForm is the JSON shape produced by the page-side scan.
type scannedForm struct {
	ID       int              `json:"id"`
	Kind     string           `json:"kind"` // "form" or "container"
	Controls []scannedControl `json:"controls"`
}

type scannedControl struct {
	Index       int             `json:"index"`
	Name        string          `json:"name"`
	Kind        forms.Kind      `json:"kind"`
	InputType   string          `json:"inputType"`
	Label       string          `json:"label"`
	Placeholder string          `json:"placeholder"`
	Value       string          `json:"value"`
	Options     []scannedOption `json:"options"`
}

type scannedOption struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// Form is a live form handle. It implements [forms.Form].
type Form struct {
	client   *Client
	id       int
	controls []*Control
}

var _ forms.Form = (*Form)(nil)

func newForm(c *Client, sf scannedForm) *Form {
	f := &Form{client: c, id: sf.ID}
	for _, sc := range sf.Controls {
		opts := make([]forms.Option, 0, len(sc.Options))
		for _, o := range sc.Options {
			opts = append(opts, forms.Option{Value: o.Value, Text: o.Text})
		}
		f.controls = append(f.controls, &Control{
			client: c,
			formID: sf.ID,
			index:  sc.Index,
			desc: forms.FieldDescriptor{
				Name:        sc.Name,
				Kind:        sc.Kind,
				InputType:   sc.InputType,
				Label:       sc.Label,
				Placeholder: sc.Placeholder,
			},
			value:   sc.Value,
			options: opts,
		})
	}
	return f
}

// Controls implements [forms.Form].
func (f *Form) Controls() []forms.Control {
	out := make([]forms.Control, len(f.controls))
	for i, c := range f.controls {
		out[i] = c
	}
	return out
}

// ControlsByName implements [forms.Form].
func (f *Form) ControlsByName(name string) []forms.Control {
	var out []forms.Control
	for _, c := range f.controls {
		if c.desc.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Control is one live form control. Reads return the value cached at scan
// time; writes go to the DOM and dispatch input and change events so page
// frameworks observe them.
type Control struct {
	client  *Client
	formID  int
	index   int
	desc    forms.FieldDescriptor
	value   string
	options []forms.Option
}

var _ forms.Control = (*Control)(nil)

func (c *Control) Descriptor() forms.FieldDescriptor { return c.desc }

func (c *Control) Value() string { return c.value }

func (c *Control) Options() []forms.Option { return c.options }

// Checked reports the checked state cached at scan time: the scan stores
// "true" as the value of checked radio and checkbox inputs.
func (c *Control) Checked() bool {
	return c.desc.InputType == "checkbox" && c.value == "true"
}

// SetValue writes v into the control using the element's native value
// setter, so frameworks that patch the prototype still see the change.
func (c *Control) SetValue(v string) error {
	if err := c.run(setValueScript, v); err != nil {
		return err
	}
	c.value = v
	return nil
}

// SetChecked sets the checked state of radio and checkbox inputs.
func (c *Control) SetChecked(on bool) error {
	arg := "false"
	if on {
		arg = "true"
	}
	return c.runRaw(fmt.Sprintf(setCheckedScript, c.formID, c.index, arg))
}

// SelectOption selects the option whose value attribute equals value.
func (c *Control) SelectOption(value string) error {
	if err := c.run(selectOptionScript, value); err != nil {
		return err
	}
	c.value = value
	return nil
}

// run formats script with the control locator and a JSON-quoted argument.
func (c *Control) run(script, arg string) error {
	quoted, err := json.Marshal(arg)
	if err != nil {
		return err
	}
	return c.runRaw(fmt.Sprintf(script, c.formID, c.index, quoted))
}

func (c *Control) runRaw(expr string) error {
	var ok bool
	if err := c.client.eval(context.Background(), expr, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cdpform: control %d in form %d not found, page may have changed", c.index, c.formID)
	}
	return nil
}
