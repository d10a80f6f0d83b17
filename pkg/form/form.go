// Package form turns a form schema and the pending edits into controls.
// Controls never change the pending edits themselves; interaction is
// reported as ValueChanged events to whoever owns the change set.
package form

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
	"github.com/urmzd/homai-panel/pkg/paramset"
)

var (
	ErrDisabled     = errors.New("control is disabled")
	ErrNotAction    = errors.New("control is not an action")
	ErrInvalidInput = errors.New("invalid input")
)

// ValueChanged is emitted once per user interaction.
type ValueChanged struct {
	ParameterID string
	Value       any
	// Current is the parameter's current value when the form was rendered.
	Current any
}

// Control is one rendered parameter.
type Control struct {
	Parameter paramset.Parameter
	Widget    paramset.Widget
	Value     any // pending value if any, else current
	Display   string
	Modified  bool
	Disabled  bool
	Error     string

	emit func(ValueChanged)
}

// Section is a rendered schema section.
type Section struct {
	ID       string
	Title    string
	Controls []*Control
}

// Form is the rendered schema.
type Form struct {
	Sections []Section
	Modified int
}

// Controls returns all controls in section order.
func (f *Form) Controls() []*Control {
	var out []*Control
	for _, s := range f.Sections {
		out = append(out, s.Controls...)
	}
	return out
}

// Control looks up a control by parameter id.
func (f *Form) Control(id string) (*Control, bool) {
	for _, s := range f.Sections {
		for _, c := range s.Controls {
			if c.Parameter.ID == id {
				return c, true
			}
		}
	}
	return nil, false
}

// Render builds one control per parameter. emit receives the events of
// every control and may be nil for display-only rendering.
func Render(schema *paramset.FormSchema, changes *paramset.ChangeSet, errs paramset.ValidationErrors, emit func(ValueChanged)) *Form {
	f := &Form{}
	if schema == nil {
		return f
	}
	for _, sec := range schema.Sections {
		out := Section{ID: sec.ID, Title: sec.Title}
		for i := range sec.Parameters {
			p := sec.Parameters[i]
			_, pending := changes.Get(p.ID)
			c := &Control{
				Parameter: p,
				Widget:    widgetFor(&p),
				Value:     changes.EffectiveValue(&p),
				Modified:  pending,
				Disabled:  !p.Writable,
				Error:     errs[p.ID],
				emit:      emit,
			}
			if c.Disabled {
				c.Widget = paramset.WidgetReadOnly
			}
			c.Display = paramset.FormatValue(&p, c.Value)
			if pending {
				f.Modified++
			}
			out.Controls = append(out.Controls, c)
		}
		f.Sections = append(f.Sections, out)
	}
	return f
}

func widgetFor(p *paramset.Parameter) paramset.Widget {
	if p.Widget != "" {
		return p.Widget
	}
	switch p.Type {
	case paramset.TypeBoolean:
		return paramset.WidgetToggle
	case paramset.TypeEnum:
		return paramset.WidgetDropdown
	case paramset.TypeAction:
		return paramset.WidgetButton
	case paramset.TypeInteger, paramset.TypeFloat:
		if p.Min != nil && p.Max != nil {
			return paramset.WidgetSlider
		}
		return paramset.WidgetNumber
	}
	return paramset.WidgetText
}

// Change reports a new value for the control.
func (c *Control) Change(v any) error {
	if c.Disabled {
		return fmt.Errorf("%s: %w", c.Parameter.ID, ErrDisabled)
	}
	if c.Parameter.Type == paramset.TypeAction {
		return c.Activate()
	}
	c.send(v)
	return nil
}

// Activate presses a momentary action button, staging the literal true.
func (c *Control) Activate() error {
	if c.Disabled {
		return fmt.Errorf("%s: %w", c.Parameter.ID, ErrDisabled)
	}
	if c.Parameter.Type != paramset.TypeAction {
		return fmt.Errorf("%s: %w", c.Parameter.ID, ErrNotAction)
	}
	c.send(true)
	return nil
}

// Input parses text typed by the operator according to the parameter type
// and reports it. Percent parameters are entered scaled by 100; enums
// accept an option label or its index.
func (c *Control) Input(text string) error {
	if c.Disabled {
		return fmt.Errorf("%s: %w", c.Parameter.ID, ErrDisabled)
	}
	v, err := Parse(&c.Parameter, text)
	if err != nil {
		return err
	}
	return c.Change(v)
}

func (c *Control) send(v any) {
	if c.emit == nil {
		return
	}
	c.emit(ValueChanged{ParameterID: c.Parameter.ID, Value: v, Current: c.Parameter.CurrentValue})
}

// Parse converts operator text into a value of p's type.
func Parse(p *paramset.Parameter, text string) (any, error) {
	text = strings.TrimSpace(text)
	invalid := func(err error) error {
		return fmt.Errorf("%w for %s: %q: %v", ErrInvalidInput, p.ID, text, err)
	}
	switch p.Type {
	case paramset.TypeBoolean:
		switch strings.ToLower(text) {
		case "on", "yes":
			return true, nil
		case "off", "no":
			return false, nil
		}
		b, err := cast.ToBoolE(text)
		if err != nil {
			return nil, invalid(err)
		}
		return b, nil
	case paramset.TypeEnum:
		for i, opt := range p.Options {
			if strings.EqualFold(opt, text) {
				return i, nil
			}
		}
		i, err := parseInt(text)
		if err != nil {
			return nil, invalid(err)
		}
		if len(p.Options) > 0 && (i < 0 || i >= len(p.Options)) {
			return nil, invalid(fmt.Errorf("index out of range 0..%d", len(p.Options)-1))
		}
		return i, nil
	case paramset.TypeInteger:
		if p.Percent {
			f, err := cast.ToFloat64E(strings.TrimSuffix(text, "%"))
			if err != nil {
				return nil, invalid(err)
			}
			return f / 100, nil
		}
		i, err := parseInt(text)
		if err != nil {
			return nil, invalid(err)
		}
		return i, nil
	case paramset.TypeFloat:
		f, err := cast.ToFloat64E(strings.TrimSuffix(text, "%"))
		if err != nil {
			return nil, invalid(err)
		}
		if p.Percent {
			f /= 100
		}
		return f, nil
	case paramset.TypeAction:
		return true, nil
	}
	return text, nil
}

// parseInt reads a whole decimal number. Leading zeros carry no base.
func parseInt(text string) (int, error) {
	f, err := cast.ToFloat64E(text)
	if err != nil {
		return 0, err
	}
	if math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%s is not a whole number", text)
	}
	return int(f), nil
}
