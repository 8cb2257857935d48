package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"fieldengine/internal/fieldtype"
	"fieldengine/internal/instrument"
	"fieldengine/internal/metadata"
	"fieldengine/internal/store"
)

var fieldNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,62}$`)

const definitionColumns = "id, entity_type, name, label, field_type, select_options, is_required, display_order, " +
	"placeholder_text, help_text, validation_rules, default_value, is_active, created_by, updated_by, created_at, updated_at"

// DefinitionStore persists field definitions.
type DefinitionStore struct {
	store *store.Store
	types *fieldtype.Registry
	rules *RuleEvaluator
}

func NewDefinitionStore(s *store.Store, types *fieldtype.Registry, rules *RuleEvaluator) *DefinitionStore {
	return &DefinitionStore{store: s, types: types, rules: rules}
}

// UpdateResult reports an applied update. OrphanedValues counts stored
// values left in a slot the new field type no longer reads.
type UpdateResult struct {
	Definition     *metadata.FieldDefinition `json:"definition"`
	OrphanedValues int64                     `json:"orphaned_values"`
}

// ListDefinitions returns the entity type's definitions ordered by
// display order, then creation time.
func (d *DefinitionStore) ListDefinitions(ctx context.Context, entityType metadata.EntityType, includeInactive bool) ([]*metadata.FieldDefinition, error) {
	return d.listDefinitions(ctx, d.store.DB, entityType, includeInactive)
}

func (d *DefinitionStore) listDefinitions(ctx context.Context, q store.Querier, entityType metadata.EntityType, includeInactive bool) ([]*metadata.FieldDefinition, error) {
	pb := d.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM _field_definitions WHERE entity_type = %s", definitionColumns, pb.Add(string(entityType)))
	if !includeInactive {
		sqlStr += " AND is_active = " + pb.Add(true)
	}
	sqlStr += " ORDER BY display_order, created_at, name"

	rows, err := q.QueryContext(ctx, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list definitions %s: %w", entityType, err)
	}
	defer rows.Close()

	defs := []*metadata.FieldDefinition{}
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list definitions %s: %w", entityType, err)
	}
	return defs, nil
}

// GetDefinition returns a definition by id.
func (d *DefinitionStore) GetDefinition(ctx context.Context, id string) (*metadata.FieldDefinition, error) {
	return d.getDefinition(ctx, d.store.DB, id)
}

func (d *DefinitionStore) getDefinition(ctx context.Context, q store.Querier, id string) (*metadata.FieldDefinition, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, NotFoundError("field definition", id)
	}
	pb := d.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM _field_definitions WHERE id = %s", definitionColumns, pb.Add(id))
	rows, err := q.QueryContext(ctx, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("get definition %s: %w", id, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get definition %s: %w", id, err)
		}
		return nil, NotFoundError("field definition", id)
	}
	return scanDefinition(rows)
}

// CreateDefinition validates and inserts a new definition. A second
// definition with the same (entity type, name) is rejected by the unique
// constraint and reported as DUPLICATE_NAME.
func (d *DefinitionStore) CreateDefinition(ctx context.Context, caller *metadata.UserContext, spec metadata.DefinitionSpec) (*metadata.FieldDefinition, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "definitions", "definition.create")
	defer span.End()

	callerID, err := requireCaller(caller)
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}

	now := time.Now().UTC()
	def := &metadata.FieldDefinition{
		ID:              uuid.NewString(),
		EntityType:      spec.EntityType,
		Name:            strings.TrimSpace(spec.Name),
		Label:           strings.TrimSpace(spec.Label),
		FieldType:       spec.FieldType,
		SelectOptions:   spec.SelectOptions,
		IsRequired:      spec.IsRequired,
		DisplayOrder:    spec.DisplayOrder,
		PlaceholderText: spec.PlaceholderText,
		HelpText:        spec.HelpText,
		ValidationRules: spec.ValidationRules,
		DefaultValue:    spec.DefaultValue,
		IsActive:        true,
		CreatedBy:       callerID,
		UpdatedBy:       callerID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if details := d.normalize(def); len(details) > 0 {
		span.SetStatus("error")
		return nil, InvalidSpecError(details)
	}
	span.SetEntity(string(def.EntityType), def.ID)

	err = d.store.WithTx(ctx, func(tx *sql.Tx) error {
		return d.insert(ctx, tx, def)
	})
	if err != nil {
		span.SetStatus("error")
		if errors.Is(err, store.ErrUniqueViolation) {
			return nil, DuplicateNameError(string(def.EntityType), def.Name)
		}
		return nil, err
	}

	span.SetStatus("ok")
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "field.definition_created", string(def.EntityType), def.ID,
		map[string]any{"name": def.Name, "field_type": string(def.FieldType)})
	return def, nil
}

func (d *DefinitionStore) insert(ctx context.Context, q store.Querier, def *metadata.FieldDefinition) error {
	cols, err := d.columnValues(def)
	if err != nil {
		return err
	}
	pb := d.store.Dialect.NewParamBuilder()
	names := make([]string, len(cols))
	phs := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
		phs[i] = pb.Add(c.value)
	}
	sqlStr := fmt.Sprintf("INSERT INTO _field_definitions (%s) VALUES (%s)", strings.Join(names, ", "), strings.Join(phs, ", "))
	if _, err := q.ExecContext(ctx, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("insert definition: %w", store.MapError(d.store.Dialect, err))
	}
	return nil
}

// UpdateDefinition applies a patch. Changing the field type is allowed;
// values stored under the old slot stop being readable and are counted in
// the result.
func (d *DefinitionStore) UpdateDefinition(ctx context.Context, caller *metadata.UserContext, id string, patch metadata.DefinitionPatch) (*UpdateResult, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "definitions", "definition.update")
	defer span.End()

	callerID, err := requireCaller(caller)
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}

	var result *UpdateResult
	err = d.store.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := d.getDefinition(ctx, tx, id)
		if err != nil {
			return err
		}
		span.SetEntity(string(current.EntityType), current.ID)

		// leaving the select family drops the options unless the patch sets them
		if patch.FieldType != nil && !patch.FieldType.IsSelect() && patch.SelectOptions == nil {
			empty := []string{}
			patch.SelectOptions = &empty
		}
		updated := patch.Apply(*current)
		updated.UpdatedBy = callerID
		updated.UpdatedAt = time.Now().UTC()
		if details := d.normalize(&updated); len(details) > 0 {
			return InvalidSpecError(details)
		}

		if err := d.write(ctx, tx, &updated); err != nil {
			return err
		}

		result = &UpdateResult{Definition: &updated}
		if updated.FieldType != current.FieldType {
			orphaned, err := d.countOrphaned(ctx, tx, &updated)
			if err != nil {
				return err
			}
			result.OrphanedValues = orphaned
			if orphaned > 0 {
				log.Printf("WARN: field %s.%s retyped %s -> %s, %d stored values no longer readable",
					updated.EntityType, updated.Name, current.FieldType, updated.FieldType, orphaned)
			}
		}
		return nil
	})
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}

	span.SetStatus("ok")
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "field.definition_updated", string(result.Definition.EntityType), id,
		map[string]any{"name": result.Definition.Name, "orphaned_values": result.OrphanedValues})
	return result, nil
}

func (d *DefinitionStore) write(ctx context.Context, q store.Querier, def *metadata.FieldDefinition) error {
	cols, err := d.columnValues(def)
	if err != nil {
		return err
	}
	pb := d.store.Dialect.NewParamBuilder()
	var sets []string
	for _, c := range cols {
		switch c.name {
		case "id", "entity_type", "name", "created_by", "created_at":
			continue
		}
		sets = append(sets, c.name+" = "+pb.Add(c.value))
	}
	sqlStr := fmt.Sprintf("UPDATE _field_definitions SET %s WHERE id = %s", strings.Join(sets, ", "), pb.Add(def.ID))
	n, err := store.Exec(ctx, q, sqlStr, pb.Params()...)
	if err != nil {
		return fmt.Errorf("update definition %s: %w", def.ID, err)
	}
	if n == 0 {
		return NotFoundError("field definition", def.ID)
	}
	return nil
}

func (d *DefinitionStore) countOrphaned(ctx context.Context, q store.Querier, def *metadata.FieldDefinition) (int64, error) {
	slot, err := fieldtype.SlotFor(def.FieldType)
	if err != nil {
		return 0, err
	}
	pb := d.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT COUNT(*) FROM _field_values WHERE field_definition_id = %s AND %s IS NULL",
		pb.Add(def.ID), slotColumn(slot))
	var n int64
	if err := q.QueryRowContext(ctx, sqlStr, pb.Params()...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orphaned values: %w", err)
	}
	return n, nil
}

// Deactivate hides a definition from forms and reads. Stored values are kept.
func (d *DefinitionStore) Deactivate(ctx context.Context, caller *metadata.UserContext, id string) (*metadata.FieldDefinition, error) {
	return d.setActive(ctx, caller, id, false)
}

// Reactivate reverses Deactivate.
func (d *DefinitionStore) Reactivate(ctx context.Context, caller *metadata.UserContext, id string) (*metadata.FieldDefinition, error) {
	return d.setActive(ctx, caller, id, true)
}

func (d *DefinitionStore) setActive(ctx context.Context, caller *metadata.UserContext, id string, active bool) (*metadata.FieldDefinition, error) {
	callerID, err := requireCaller(caller)
	if err != nil {
		return nil, err
	}

	var def *metadata.FieldDefinition
	err = d.store.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := d.getDefinition(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.IsActive == active {
			def = current
			return nil
		}
		now := time.Now().UTC()
		pb := d.store.Dialect.NewParamBuilder()
		sqlStr := fmt.Sprintf("UPDATE _field_definitions SET is_active = %s, updated_by = %s, updated_at = %s WHERE id = %s",
			pb.Add(active), pb.Add(callerID), pb.Add(d.store.Dialect.TimeParam(now)), pb.Add(id))
		if _, err := store.Exec(ctx, tx, sqlStr, pb.Params()...); err != nil {
			return fmt.Errorf("set active %s: %w", id, err)
		}
		current.IsActive = active
		current.UpdatedBy = callerID
		current.UpdatedAt = now
		def = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	action := "field.definition_deactivated"
	if active {
		action = "field.definition_reactivated"
	}
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, action, string(def.EntityType), def.ID, map[string]any{"name": def.Name})
	return def, nil
}

// normalize validates def in place, canonicalizing its options and default.
func (d *DefinitionStore) normalize(def *metadata.FieldDefinition) []ErrorDetail {
	var details []ErrorDetail
	add := func(field, rule, msg string) {
		details = append(details, ErrorDetail{Field: field, Rule: rule, Message: msg})
	}

	if !def.EntityType.Valid() {
		add("entity_type", "enum", fmt.Sprintf("unknown entity type %q", def.EntityType))
	}
	if !fieldNamePattern.MatchString(def.Name) {
		add("name", "pattern", "name must start with a letter and contain only letters, digits and underscores")
	}
	if def.Label == "" {
		add("label", "required", "label is required")
	}
	strategy, ok := d.types.Get(def.FieldType)
	if !ok {
		add("field_type", "enum", fmt.Sprintf("unknown field type %q", def.FieldType))
		return details
	}

	if def.FieldType.IsSelect() {
		opts := cleanOptions(def.SelectOptions)
		if len(opts) == 0 {
			add("select_options", "required", "select fields need at least one option")
		} else if len(opts) != len(def.SelectOptions) {
			add("select_options", "unique", "options must be unique and non-empty")
		}
		def.SelectOptions = opts
	} else if len(def.SelectOptions) > 0 {
		add("select_options", "forbidden", fmt.Sprintf("%s fields do not take options", def.FieldType))
	} else {
		def.SelectOptions = nil
	}

	details = append(details, d.rules.CheckRules(def.FieldType, def.ValidationRules)...)

	if fieldtype.IsAbsent(def.DefaultValue) {
		def.DefaultValue = nil
	} else if len(details) == 0 {
		typed, err := d.types.Coerce(def.FieldType, def.DefaultValue)
		if err != nil {
			add("default_value", "type", err.Error())
		} else if typed != nil {
			if fe := d.rules.Check(def, typed); fe != nil {
				add("default_value", fe.Rule, fe.Message)
			}
			def.DefaultValue = strategy.Raw(typed)
		}
	}
	return details
}

func cleanOptions(opts []string) []string {
	seen := make(map[string]bool, len(opts))
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		o = strings.TrimSpace(o)
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
	}
	return out
}

type columnValue struct {
	name  string
	value any
}

func (d *DefinitionStore) columnValues(def *metadata.FieldDefinition) ([]columnValue, error) {
	dialect := d.store.Dialect
	var options, rules, defaultValue any
	if def.SelectOptions != nil {
		b, err := json.Marshal(def.SelectOptions)
		if err != nil {
			return nil, fmt.Errorf("encode select options: %w", err)
		}
		options = dialect.JSONParam(b)
	}
	if !def.ValidationRules.IsZero() {
		b, err := json.Marshal(def.ValidationRules)
		if err != nil {
			return nil, fmt.Errorf("encode validation rules: %w", err)
		}
		rules = dialect.JSONParam(b)
	}
	if def.DefaultValue != nil {
		b, err := json.Marshal(def.DefaultValue)
		if err != nil {
			return nil, fmt.Errorf("encode default value: %w", err)
		}
		defaultValue = string(b)
	}
	return []columnValue{
		{"id", def.ID},
		{"entity_type", string(def.EntityType)},
		{"name", def.Name},
		{"label", def.Label},
		{"field_type", string(def.FieldType)},
		{"select_options", options},
		{"is_required", def.IsRequired},
		{"display_order", def.DisplayOrder},
		{"placeholder_text", def.PlaceholderText},
		{"help_text", def.HelpText},
		{"validation_rules", rules},
		{"default_value", defaultValue},
		{"is_active", def.IsActive},
		{"created_by", def.CreatedBy},
		{"updated_by", def.UpdatedBy},
		{"created_at", dialect.TimeParam(def.CreatedAt)},
		{"updated_at", dialect.TimeParam(def.UpdatedAt)},
	}, nil
}

func scanDefinition(rows *sql.Rows) (*metadata.FieldDefinition, error) {
	var (
		def                                 metadata.FieldDefinition
		entityType, fieldType               string
		options, rules, defaultValue        sql.NullString
		placeholder, help, createdBy, updBy sql.NullString
		createdAt, updatedAt                any
	)
	if err := rows.Scan(&def.ID, &entityType, &def.Name, &def.Label, &fieldType, &options, &def.IsRequired,
		&def.DisplayOrder, &placeholder, &help, &rules, &defaultValue, &def.IsActive, &createdBy, &updBy,
		&createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scan definition: %w", err)
	}
	def.EntityType = metadata.EntityType(entityType)
	def.FieldType = fieldtype.Type(fieldType)
	def.PlaceholderText = placeholder.String
	def.HelpText = help.String
	def.CreatedBy = createdBy.String
	def.UpdatedBy = updBy.String

	if options.Valid && options.String != "" {
		if err := json.Unmarshal([]byte(options.String), &def.SelectOptions); err != nil {
			return nil, fmt.Errorf("decode select options of %s: %w", def.ID, err)
		}
	}
	if rules.Valid && rules.String != "" {
		if err := json.Unmarshal([]byte(rules.String), &def.ValidationRules); err != nil {
			return nil, fmt.Errorf("decode validation rules of %s: %w", def.ID, err)
		}
	}
	if defaultValue.Valid && defaultValue.String != "" {
		if err := json.Unmarshal([]byte(defaultValue.String), &def.DefaultValue); err != nil {
			return nil, fmt.Errorf("decode default value of %s: %w", def.ID, err)
		}
	}

	var err error
	if def.CreatedAt, err = store.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if def.UpdatedAt, err = store.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &def, nil
}

func requireCaller(caller *metadata.UserContext) (string, error) {
	if caller == nil || caller.ID == "" {
		return "", UnauthorizedError("Caller identity required")
	}
	return caller.ID, nil
}
