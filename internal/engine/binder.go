package engine

import (
	"context"
	"fmt"

	"fieldengine/internal/fieldtype"
	"fieldengine/internal/metadata"
)

// TypedMap maps field name to a coerced, validated value. A nil entry
// clears the stored value.
type TypedMap map[string]any

type bindOptions struct {
	partial bool
}

// BindOption tunes ToTypedMap and Bind.
type BindOption func(*bindOptions)

// WithPartial binds only the fields present in the raw bag. Absent fields
// are neither defaulted nor checked for presence.
func WithPartial() BindOption {
	return func(o *bindOptions) { o.partial = true }
}

// Binder converts between raw submitted values and typed values.
type Binder struct {
	defs    *DefinitionStore
	values  *ValueStore
	types   *fieldtype.Registry
	rules   *RuleEvaluator
	lookups Lookups
	locale  fieldtype.Locale
}

func NewBinder(defs *DefinitionStore, values *ValueStore, types *fieldtype.Registry, rules *RuleEvaluator, lookups Lookups, locale fieldtype.Locale) *Binder {
	return &Binder{defs: defs, values: values, types: types, rules: rules, lookups: lookups, locale: locale}
}

// ValidateField coerces one raw value and applies the definition's rules.
// Absent input falls back to the default; a required field with neither
// yields a required error.
func (b *Binder) ValidateField(def *metadata.FieldDefinition, raw any) (any, *FieldError) {
	if fieldtype.IsAbsent(raw) && def.DefaultValue != nil {
		raw = def.DefaultValue
	}
	typed, err := b.types.Coerce(def.FieldType, raw)
	if err != nil {
		return nil, &FieldError{Field: def.Name, Kind: KindCoercion, Rule: "type", Message: err.Error()}
	}
	if typed == nil {
		if def.IsRequired {
			return nil, &FieldError{Field: def.Name, Kind: KindRequired, Rule: "required",
				Message: fmt.Sprintf("%s is required", def.Label)}
		}
		return nil, nil
	}
	if fe := b.rules.Check(def, typed); fe != nil {
		return nil, fe
	}
	return typed, nil
}

// Bind is ToTypedMap over an already loaded definition list. It performs
// no IO. Names in raw that match no definition are dropped.
func (b *Binder) Bind(defs []*metadata.FieldDefinition, raw map[string]any, opts ...BindOption) (TypedMap, FieldErrors) {
	var o bindOptions
	for _, opt := range opts {
		opt(&o)
	}
	typed := TypedMap{}
	errs := FieldErrors{}
	for _, def := range defs {
		value, present := raw[def.Name]
		if !present && o.partial {
			continue
		}
		v, fe := b.ValidateField(def, value)
		if fe != nil {
			errs[def.Name] = fe
			continue
		}
		typed[def.Name] = v
	}
	return typed, errs
}

// ToTypedMap binds a raw bag against the active definitions of entityType.
// Field problems come back in FieldErrors; the error return is reserved
// for storage failures.
func (b *Binder) ToTypedMap(ctx context.Context, entityType metadata.EntityType, raw map[string]any, opts ...BindOption) (TypedMap, FieldErrors, error) {
	defs, err := b.defs.ListDefinitions(ctx, entityType, false)
	if err != nil {
		return nil, nil, err
	}
	typed, errs := b.Bind(defs, raw, opts...)
	if err := b.checkReferences(ctx, defs, typed, errs); err != nil {
		return nil, nil, err
	}
	return typed, errs, nil
}

func (b *Binder) checkReferences(ctx context.Context, defs []*metadata.FieldDefinition, typed TypedMap, errs FieldErrors) error {
	for _, def := range defs {
		target, ok := def.FieldType.ReferenceTarget()
		if !ok {
			continue
		}
		id, ok := typed[def.Name].(string)
		if !ok {
			continue
		}
		found, err := b.lookups.exists(ctx, metadata.EntityType(target), id)
		if err != nil {
			return err
		}
		if !found {
			delete(typed, def.Name)
			errs[def.Name] = &FieldError{Field: def.Name, Kind: KindValidation, Rule: "reference",
				Message: fmt.Sprintf("%s %s does not exist", target, id)}
		}
	}
	return nil
}

// CurrencyFor returns the ISO code a currency field is shown in: its own
// currency rule, else the configured default.
func (b *Binder) CurrencyFor(def *metadata.FieldDefinition) string {
	if def.ValidationRules.Currency != "" {
		return def.ValidationRules.Currency
	}
	return b.locale.Currency
}

// Format renders a typed value for display.
func (b *Binder) Format(def *metadata.FieldDefinition, typed any) string {
	loc := b.locale
	if def.FieldType == fieldtype.Currency {
		loc.Currency = b.CurrencyFor(def)
	}
	return b.types.Format(def.FieldType, typed, loc)
}

// RawValue returns the wire form of a typed value.
func (b *Binder) RawValue(def *metadata.FieldDefinition, typed any) any {
	if typed == nil {
		return nil
	}
	strategy, ok := b.types.Get(def.FieldType)
	if !ok {
		return typed
	}
	return strategy.Raw(typed)
}

// FieldView is one field of a RawMap, ready for display or re-submission.
type FieldView struct {
	Name        string         `json:"name"`
	Label       string         `json:"label"`
	HelpText    string         `json:"help_text,omitempty"`
	Placeholder string         `json:"placeholder,omitempty"`
	FieldType   fieldtype.Type `json:"field_type"`
	Required    bool           `json:"required"`
	Active      bool           `json:"active"`
	Value       any            `json:"value"`
	Display     string         `json:"display"`
	HasValue    bool           `json:"has_value"`
}

// RawMap is the read model of an entity's custom fields, in display order.
type RawMap struct {
	EntityType metadata.EntityType `json:"entity_type"`
	EntityID   string              `json:"entity_id"`
	Fields     []FieldView         `json:"fields"`
}

// Values returns name -> wire value, suitable for feeding back into
// ToTypedMap.
func (m *RawMap) Values() map[string]any {
	out := make(map[string]any, len(m.Fields))
	for _, f := range m.Fields {
		out[f.Name] = f.Value
	}
	return out
}

// Display returns name -> formatted display string.
func (m *RawMap) Display() map[string]string {
	out := make(map[string]string, len(m.Fields))
	for _, f := range m.Fields {
		out[f.Name] = f.Display
	}
	return out
}

// ToRawMap loads an entity's stored values and renders them alongside
// their definitions. Inactive definitions appear only with includeInactive.
func (b *Binder) ToRawMap(ctx context.Context, entityType metadata.EntityType, entityID string, includeInactive bool) (*RawMap, error) {
	defs, err := b.defs.ListDefinitions(ctx, entityType, includeInactive)
	if err != nil {
		return nil, err
	}
	typed, err := b.values.typedValues(ctx, b.values.store.DB, defs, entityType, entityID)
	if err != nil {
		return nil, err
	}
	return b.View(entityType, entityID, defs, typed), nil
}

// View builds a RawMap from definitions and typed values without IO.
func (b *Binder) View(entityType metadata.EntityType, entityID string, defs []*metadata.FieldDefinition, typed map[string]any) *RawMap {
	m := &RawMap{EntityType: entityType, EntityID: entityID, Fields: make([]FieldView, 0, len(defs))}
	for _, def := range defs {
		v := typed[def.Name]
		m.Fields = append(m.Fields, FieldView{
			Name:        def.Name,
			Label:       def.Label,
			HelpText:    def.HelpText,
			Placeholder: def.PlaceholderText,
			FieldType:   def.FieldType,
			Required:    def.IsRequired,
			Active:      def.IsActive,
			Value:       b.RawValue(def, v),
			Display:     b.Format(def, v),
			HasValue:    v != nil,
		})
	}
	return m
}
