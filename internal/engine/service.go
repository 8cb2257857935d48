package engine

import (
	"context"
	"fmt"

	"fieldengine/internal/fieldtype"
	"fieldengine/internal/instrument"
	"fieldengine/internal/metadata"
	"fieldengine/internal/store"
)

// Options configures a Service. Zero values select the built-in field
// types, no entity lookups, no projection and the default locale.
type Options struct {
	Types     *fieldtype.Registry
	Lookups   Lookups
	Projector Projector
	Locale    *fieldtype.Locale
}

// Service is the entry point business modules use: definitions, values
// and the binder wired over one store.
type Service struct {
	Definitions *DefinitionStore
	Values      *ValueStore
	Binder      *Binder
	lookups     Lookups
}

func New(s *store.Store, opts Options) *Service {
	types := opts.Types
	if types == nil {
		types = fieldtype.Default()
	}
	locale := fieldtype.DefaultLocale
	if opts.Locale != nil {
		locale = *opts.Locale
	}
	rules := NewRuleEvaluator()
	defs := NewDefinitionStore(s, types, rules)
	values := NewValueStore(s, defs, types, opts.Projector)
	return &Service{
		Definitions: defs,
		Values:      values,
		Binder:      NewBinder(defs, values, types, rules, opts.Lookups, locale),
		lookups:     opts.Lookups,
	}
}

// Submit binds raw and, when every field passes, writes the typed map.
// With field errors nothing is written and the errors are returned.
func (s *Service) Submit(ctx context.Context, caller *metadata.UserContext, entityType metadata.EntityType, entityID string, raw map[string]any, opts ...BindOption) (TypedMap, FieldErrors, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "service", "values.submit")
	defer span.End()
	span.SetEntity(string(entityType), entityID)

	if _, err := requireCaller(caller); err != nil {
		span.SetStatus("error")
		return nil, nil, err
	}
	if err := s.checkEntity(ctx, entityType, entityID); err != nil {
		span.SetStatus("error")
		return nil, nil, err
	}

	typed, errs, err := s.Binder.ToTypedMap(ctx, entityType, raw, opts...)
	if err != nil {
		span.SetStatus("error")
		return nil, nil, err
	}
	if len(errs) > 0 {
		span.SetMetadata("field_errors", len(errs))
		span.SetStatus("error")
		return typed, errs, nil
	}
	if err := s.Values.SetValues(ctx, caller, entityType, entityID, typed); err != nil {
		span.SetStatus("error")
		return nil, nil, err
	}
	span.SetStatus("ok")
	return typed, errs, nil
}

// Validate binds raw without writing anything.
func (s *Service) Validate(ctx context.Context, entityType metadata.EntityType, raw map[string]any, opts ...BindOption) (TypedMap, FieldErrors, error) {
	if !entityType.Valid() {
		return nil, nil, UnknownEntityError(string(entityType))
	}
	return s.Binder.ToTypedMap(ctx, entityType, raw, opts...)
}

// Read returns the display-ready view of an entity's custom fields.
func (s *Service) Read(ctx context.Context, entityType metadata.EntityType, entityID string, includeInactive bool) (*RawMap, error) {
	if !entityType.Valid() {
		return nil, UnknownEntityError(string(entityType))
	}
	return s.Binder.ToRawMap(ctx, entityType, entityID, includeInactive)
}

// Toggle flips one option of a multi-select field and stores the result.
// Replaying the same toggle twice restores the original selection.
func (s *Service) Toggle(ctx context.Context, caller *metadata.UserContext, entityType metadata.EntityType, entityID, field, option string) ([]string, error) {
	if _, err := requireCaller(caller); err != nil {
		return nil, err
	}
	if err := s.checkEntity(ctx, entityType, entityID); err != nil {
		return nil, err
	}

	defs, err := s.Definitions.ListDefinitions(ctx, entityType, false)
	if err != nil {
		return nil, err
	}
	var def *metadata.FieldDefinition
	for _, d := range defs {
		if d.Name == field {
			def = d
			break
		}
	}
	if def == nil {
		return nil, NotFoundError("field", field)
	}
	if def.FieldType != fieldtype.SelectMultiCheckbox {
		return nil, BadRequestError(fmt.Sprintf("%s is not a multi-select field", field))
	}

	// an emptied selection clears the field instead of restoring the default
	bare := *def
	bare.DefaultValue = nil
	var typed any
	err = s.Values.UpdateValues(ctx, caller, entityType, entityID, []*metadata.FieldDefinition{def}, func(current map[string]any) (map[string]any, error) {
		selection, _ := current[def.Name].([]string)
		var fe *FieldError
		if typed, fe = s.Binder.ValidateField(&bare, ToggleOption(selection, option)); fe != nil {
			return nil, FieldErrors{def.Name: fe}.Err()
		}
		return map[string]any{def.Name: typed}, nil
	})
	if err != nil {
		return nil, err
	}
	result, _ := typed.([]string)
	if result == nil {
		result = []string{}
	}
	return result, nil
}

// Delete removes every custom field value of an entity instance.
func (s *Service) Delete(ctx context.Context, caller *metadata.UserContext, entityType metadata.EntityType, entityID string) (int64, error) {
	if _, err := requireCaller(caller); err != nil {
		return 0, err
	}
	if !entityType.Valid() {
		return 0, UnknownEntityError(string(entityType))
	}
	return s.Values.DeleteValuesForEntity(ctx, entityType, entityID)
}

func (s *Service) checkEntity(ctx context.Context, entityType metadata.EntityType, entityID string) error {
	if !entityType.Valid() {
		return UnknownEntityError(string(entityType))
	}
	found, err := s.lookups.exists(ctx, entityType, entityID)
	if err != nil {
		return err
	}
	if !found {
		return EntityNotFoundError(string(entityType), entityID)
	}
	return nil
}
