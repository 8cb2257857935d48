// Package form renders custom field definitions as editable and read-only
// controls and tracks per-field validation state as values change.
package form

import (
	"fmt"

	"fieldengine/internal/engine"
	"fieldengine/internal/fieldtype"
	"fieldengine/internal/metadata"
)

// Validator is the binder surface a form needs.
type Validator interface {
	ValidateField(def *metadata.FieldDefinition, raw any) (any, *engine.FieldError)
	Format(def *metadata.FieldDefinition, typed any) string
	RawValue(def *metadata.FieldDefinition, typed any) any
	CurrencyFor(def *metadata.FieldDefinition) string
}

// State is the lifecycle of one field instance.
type State string

const (
	Pristine State = "pristine"
	Dirty    State = "dirty"
	Passed   State = "validated:pass"
	Failed   State = "validated:fail"
)

// FieldState is one field of a form.
type FieldState struct {
	Definition *metadata.FieldDefinition
	Control    fieldtype.Control
	State      State
	Raw        any
	Typed      any
	Error      *engine.FieldError
}

func (f *FieldState) display(v Validator) string {
	if f.Typed == nil {
		return ""
	}
	return v.Format(f.Definition, f.Typed)
}

// Form holds one FieldState per definition, in definition order.
type Form struct {
	fields    []*FieldState
	index     map[string]*FieldState
	validator Validator
}

// New builds a pristine form seeded with typed values.
func New(defs []*metadata.FieldDefinition, typed map[string]any, v Validator) *Form {
	f := &Form{index: make(map[string]*FieldState, len(defs)), validator: v}
	for _, def := range defs {
		strategy, ok := fieldtype.Lookup(def.FieldType)
		var control fieldtype.Control
		if ok {
			control = strategy.Control()
		}
		state := &FieldState{
			Definition: def,
			Control:    control,
			State:      Pristine,
			Typed:      typed[def.Name],
		}
		state.Raw = v.RawValue(def, state.Typed)
		f.fields = append(f.fields, state)
		f.index[def.Name] = state
	}
	return f
}

// Fields returns the field states in display order.
func (f *Form) Fields() []*FieldState {
	return f.fields
}

// Field returns the state of one field.
func (f *Form) Field(name string) (*FieldState, bool) {
	s, ok := f.index[name]
	return s, ok
}

// Set records an input for a field and revalidates the form.
func (f *Form) Set(name string, raw any) error {
	s, ok := f.index[name]
	if !ok {
		return fmt.Errorf("unknown field %q", name)
	}
	s.Raw = raw
	s.State = Dirty
	f.revalidate()
	return nil
}

// Toggle flips one option of a multi-select field.
func (f *Form) Toggle(name, option string) error {
	s, ok := f.index[name]
	if !ok {
		return fmt.Errorf("unknown field %q", name)
	}
	if s.Definition.FieldType != fieldtype.SelectMultiCheckbox {
		return fmt.Errorf("%s is not a multi-select field", name)
	}
	return f.Set(name, engine.ToggleOption(selection(s.Raw), option))
}

// Validate moves every field, touched or not, to a validated state. A
// containing form calls it before submitting.
func (f *Form) Validate() {
	for _, s := range f.fields {
		if s.State == Pristine {
			s.State = Dirty
		}
	}
	f.revalidate()
}

func (f *Form) revalidate() {
	for _, s := range f.fields {
		if s.State == Pristine {
			continue
		}
		typed, fe := f.validator.ValidateField(s.Definition, s.Raw)
		s.Error = fe
		if fe != nil {
			s.State = Failed
			continue
		}
		s.Typed = typed
		s.State = Passed
	}
}

// Valid reports whether every required field passed and no field failed.
func (f *Form) Valid() bool {
	for _, s := range f.fields {
		if s.State == Failed {
			return false
		}
		if s.Definition.IsRequired && s.State != Passed {
			return false
		}
	}
	return true
}

// Errors returns the failures of fields in the failed state.
func (f *Form) Errors() engine.FieldErrors {
	errs := engine.FieldErrors{}
	for _, s := range f.fields {
		if s.State == Failed && s.Error != nil {
			errs[s.Definition.Name] = s.Error
		}
	}
	return errs
}

// Values returns the current raw values keyed by field name, ready for
// submission.
func (f *Form) Values() map[string]any {
	out := make(map[string]any, len(f.fields))
	for _, s := range f.fields {
		out[s.Definition.Name] = s.Raw
	}
	return out
}

func selection(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
