package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"fieldengine/internal/fieldtype"
	"fieldengine/internal/instrument"
	"fieldengine/internal/metadata"
	"fieldengine/internal/store"
)

const valueColumns = "id, field_definition_id, entity_type, entity_id, string_value, integer_value, decimal_value, " +
	"boolean_value, datetime_value, json_value, created_by, updated_by, created_at, updated_at"

func slotColumn(slot fieldtype.Slot) string {
	return string(slot) + "_value"
}

// ValueStore persists custom field values, one row per (definition, entity).
type ValueStore struct {
	store     *store.Store
	defs      *DefinitionStore
	types     *fieldtype.Registry
	projector Projector
}

// NewValueStore creates a value store. projector may be nil.
func NewValueStore(s *store.Store, defs *DefinitionStore, types *fieldtype.Registry, projector Projector) *ValueStore {
	return &ValueStore{store: s, defs: defs, types: types, projector: projector}
}

// GetValues returns name -> typed value for the entity's definitions.
// Fields without a stored value get their default, or nil.
func (v *ValueStore) GetValues(ctx context.Context, entityType metadata.EntityType, entityID string, includeInactive bool) (map[string]any, error) {
	defs, err := v.defs.ListDefinitions(ctx, entityType, includeInactive)
	if err != nil {
		return nil, err
	}
	return v.typedValues(ctx, v.store.DB, defs, entityType, entityID)
}

func (v *ValueStore) typedValues(ctx context.Context, q store.Querier, defs []*metadata.FieldDefinition, entityType metadata.EntityType, entityID string) (map[string]any, error) {
	rows, err := v.loadRows(ctx, q, entityType, entityID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(defs))
	for _, def := range defs {
		out[def.Name] = nil
		strategy, ok := v.types.Get(def.FieldType)
		if !ok {
			continue
		}
		if row, ok := rows[def.ID]; ok {
			// a row written under another type reads as null
			if row.Slots.Has(strategy.Slot()) {
				if typed, ok := strategy.Decode(row.Slots); ok {
					out[def.Name] = typed
				}
			}
			continue
		}
		if def.DefaultValue != nil {
			if typed, err := v.types.Coerce(def.FieldType, def.DefaultValue); err == nil {
				out[def.Name] = typed
			}
		}
	}
	return out, nil
}

func (v *ValueStore) loadRows(ctx context.Context, q store.Querier, entityType metadata.EntityType, entityID string) (map[string]*metadata.FieldValue, error) {
	pb := v.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM _field_values WHERE entity_type = %s AND entity_id = %s",
		valueColumns, pb.Add(string(entityType)), pb.Add(entityID))
	rows, err := q.QueryContext(ctx, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("load values %s/%s: %w", entityType, entityID, err)
	}
	defer rows.Close()

	out := make(map[string]*metadata.FieldValue)
	for rows.Next() {
		fv, err := scanValue(rows)
		if err != nil {
			return nil, err
		}
		out[fv.FieldDefinitionID] = fv
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load values %s/%s: %w", entityType, entityID, err)
	}
	return out, nil
}

// SetValues upserts the given typed values in one transaction. Names that
// do not match an active definition are ignored; a nil value removes the
// stored row. Keys not in values are left untouched.
func (v *ValueStore) SetValues(ctx context.Context, caller *metadata.UserContext, entityType metadata.EntityType, entityID string, values map[string]any) error {
	return v.UpdateValues(ctx, caller, entityType, entityID, nil, func(map[string]any) (map[string]any, error) {
		return values, nil
	})
}

// UpdateValues reads the typed values of read and writes what fn returns,
// as SetValues does. Read and write share one transaction that holds the
// entity's lock, so concurrent updates of one entity apply in turn.
// An error from fn rolls back and is returned as is.
func (v *ValueStore) UpdateValues(ctx context.Context, caller *metadata.UserContext, entityType metadata.EntityType, entityID string,
	read []*metadata.FieldDefinition, fn func(current map[string]any) (map[string]any, error)) error {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "values", "values.set")
	defer span.End()
	span.SetEntity(string(entityType), entityID)

	callerID, err := requireCaller(caller)
	if err != nil {
		span.SetStatus("error")
		return err
	}

	var written []string
	err = v.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := v.lockEntity(ctx, tx, entityType, entityID); err != nil {
			return err
		}
		current := map[string]any{}
		if len(read) > 0 {
			loaded, err := v.typedValues(ctx, tx, read, entityType, entityID)
			if err != nil {
				return err
			}
			current = loaded
		}
		values, err := fn(current)
		if err != nil {
			return err
		}

		defs, err := v.defs.listDefinitions(ctx, tx, entityType, false)
		if err != nil {
			return err
		}
		byName := make(map[string]*metadata.FieldDefinition, len(defs))
		for _, def := range defs {
			byName[def.Name] = def
		}

		names := make([]string, 0, len(values))
		for name := range values {
			names = append(names, name)
		}
		sort.Strings(names)

		now := time.Now().UTC()
		for _, name := range names {
			def, ok := byName[name]
			if !ok {
				continue
			}
			typed := values[name]
			if typed == nil {
				if err := v.deleteRow(ctx, tx, def.ID, entityID); err != nil {
					return err
				}
			} else if err := v.upsert(ctx, tx, def, entityID, typed, callerID, now); err != nil {
				return err
			}
			written = append(written, name)
		}

		return v.project(ctx, tx, defs, entityType, entityID)
	})
	if err != nil {
		span.SetStatus("error")
		return err
	}

	span.SetMetadata("fields", len(written))
	span.SetStatus("ok")
	if len(written) > 0 {
		instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "field.values_set", string(entityType), entityID,
			map[string]any{"fields": written, "by": callerID})
	}
	return nil
}

func (v *ValueStore) lockEntity(ctx context.Context, tx *sql.Tx, entityType metadata.EntityType, entityID string) error {
	lockSQL := v.store.Dialect.EntityLockSQL()
	if lockSQL == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx, lockSQL, string(entityType)+"/"+entityID); err != nil {
		return fmt.Errorf("lock %s/%s: %w", entityType, entityID, err)
	}
	return nil
}

func (v *ValueStore) upsert(ctx context.Context, tx *sql.Tx, def *metadata.FieldDefinition, entityID string, typed any, callerID string, now time.Time) error {
	strategy, ok := v.types.Get(def.FieldType)
	if !ok {
		return fmt.Errorf("unknown field type %q for %s", def.FieldType, def.Name)
	}
	slots, err := strategy.Encode(typed)
	if err != nil {
		return fmt.Errorf("encode %s: %w", def.Name, err)
	}

	d := v.store.Dialect
	var datetime any
	if slots.Datetime != nil {
		datetime = d.TimeParam(*slots.Datetime)
	}
	pb := d.NewParamBuilder()
	phs := []string{
		pb.Add(uuid.NewString()), pb.Add(def.ID), pb.Add(string(def.EntityType)), pb.Add(entityID),
		pb.Add(slots.String), pb.Add(slots.Integer), pb.Add(slots.Decimal), pb.Add(slots.Boolean),
		pb.Add(datetime), pb.Add(d.JSONParam(slots.JSON)),
		pb.Add(callerID), pb.Add(callerID), pb.Add(d.TimeParam(now)), pb.Add(d.TimeParam(now)),
	}
	sqlStr := fmt.Sprintf(`INSERT INTO _field_values (%s) VALUES (%s)
ON CONFLICT (field_definition_id, entity_id) DO UPDATE SET
    string_value = excluded.string_value,
    integer_value = excluded.integer_value,
    decimal_value = excluded.decimal_value,
    boolean_value = excluded.boolean_value,
    datetime_value = excluded.datetime_value,
    json_value = excluded.json_value,
    updated_by = excluded.updated_by,
    updated_at = excluded.updated_at`, valueColumns, strings.Join(phs, ", "))
	if _, err := tx.ExecContext(ctx, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("upsert %s: %w", def.Name, store.MapError(d, err))
	}
	return nil
}

func (v *ValueStore) deleteRow(ctx context.Context, tx *sql.Tx, definitionID, entityID string) error {
	pb := v.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM _field_values WHERE field_definition_id = %s AND entity_id = %s",
		pb.Add(definitionID), pb.Add(entityID))
	if _, err := store.Exec(ctx, tx, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("delete value: %w", err)
	}
	return nil
}

// DeleteValuesForEntity removes every stored value of an entity instance.
func (v *ValueStore) DeleteValuesForEntity(ctx context.Context, entityType metadata.EntityType, entityID string) (int64, error) {
	var n int64
	err := v.store.WithTx(ctx, func(tx *sql.Tx) error {
		pb := v.store.Dialect.NewParamBuilder()
		sqlStr := fmt.Sprintf("DELETE FROM _field_values WHERE entity_type = %s AND entity_id = %s",
			pb.Add(string(entityType)), pb.Add(entityID))
		var err error
		if n, err = store.Exec(ctx, tx, sqlStr, pb.Params()...); err != nil {
			return fmt.Errorf("delete values %s/%s: %w", entityType, entityID, err)
		}
		return v.project(ctx, tx, nil, entityType, entityID)
	})
	if err != nil {
		return 0, err
	}
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "field.values_deleted", string(entityType), entityID,
		map[string]any{"rows": n})
	return n, nil
}

// project rewrites the entity's denormalized JSON copy from the rows as
// they stand inside tx.
func (v *ValueStore) project(ctx context.Context, tx *sql.Tx, defs []*metadata.FieldDefinition, entityType metadata.EntityType, entityID string) error {
	if v.projector == nil || !v.projector.Handles(entityType) {
		return nil
	}
	doc := map[string]any{}
	if len(defs) > 0 {
		typed, err := v.typedValues(ctx, tx, defs, entityType, entityID)
		if err != nil {
			return err
		}
		for _, def := range defs {
			val := typed[def.Name]
			if val == nil {
				continue
			}
			if strategy, ok := v.types.Get(def.FieldType); ok {
				doc[def.Name] = strategy.Raw(val)
			}
		}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode projection: %w", err)
	}
	return v.projector.Project(ctx, tx, entityType, entityID, b)
}

func scanValue(rows *sql.Rows) (*metadata.FieldValue, error) {
	var (
		fv                   metadata.FieldValue
		entityType           string
		str, js              sql.NullString
		integer              sql.NullInt64
		decimal              sql.NullFloat64
		boolean              sql.NullBool
		createdBy, updatedBy sql.NullString
		datetime             any
		createdAt, updatedAt any
	)
	if err := rows.Scan(&fv.ID, &fv.FieldDefinitionID, &entityType, &fv.EntityID, &str, &integer, &decimal,
		&boolean, &datetime, &js, &createdBy, &updatedBy, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scan value: %w", err)
	}
	fv.EntityType = metadata.EntityType(entityType)
	fv.CreatedBy = createdBy.String
	fv.UpdatedBy = updatedBy.String
	if str.Valid {
		fv.String = &str.String
	}
	if integer.Valid {
		fv.Integer = &integer.Int64
	}
	if decimal.Valid {
		fv.Decimal = &decimal.Float64
	}
	if boolean.Valid {
		fv.Boolean = &boolean.Bool
	}
	if js.Valid {
		fv.JSON = []byte(js.String)
	}
	if datetime != nil {
		t, err := store.ParseTime(datetime)
		if err != nil {
			return nil, err
		}
		fv.Datetime = &t
	}
	var err error
	if fv.CreatedAt, err = store.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if fv.UpdatedAt, err = store.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &fv, nil
}
