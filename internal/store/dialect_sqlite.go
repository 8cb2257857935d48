package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

func (d *SQLiteDialect) SchemaSQL() string {
	return sqliteSchemaSQL
}

func (d *SQLiteDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?1",
		tableName,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *SQLiteDialect) TimeParam(t time.Time) any {
	return t.UTC().Format(sqliteTimeLayout)
}

func (d *SQLiteDialect) JSONParam(doc []byte) any {
	if doc == nil {
		return nil
	}
	return string(doc)
}

// EntityLockSQL is empty: the pool holds a single connection.
func (d *SQLiteDialect) EntityLockSQL() string { return "" }

func (d *SQLiteDialect) SyncCommitOff() string { return "" }

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// --- SQLite DDL ---

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS _field_definitions (
    id                TEXT PRIMARY KEY,
    entity_type       TEXT NOT NULL,
    name              TEXT NOT NULL,
    label             TEXT NOT NULL,
    field_type        TEXT NOT NULL,
    select_options    TEXT,
    is_required       INTEGER NOT NULL DEFAULT 0,
    display_order     INTEGER NOT NULL DEFAULT 0,
    placeholder_text  TEXT,
    help_text         TEXT,
    validation_rules  TEXT,
    default_value     TEXT,
    is_active         INTEGER NOT NULL DEFAULT 1,
    created_by        TEXT,
    updated_by        TEXT,
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL,
    UNIQUE (entity_type, name)
);
CREATE INDEX IF NOT EXISTS idx_field_definitions_order ON _field_definitions (entity_type, display_order, created_at);

CREATE TABLE IF NOT EXISTS _field_values (
    id                   TEXT PRIMARY KEY,
    field_definition_id  TEXT NOT NULL REFERENCES _field_definitions(id) ON DELETE CASCADE,
    entity_type          TEXT NOT NULL,
    entity_id            TEXT NOT NULL,
    string_value         TEXT,
    integer_value        INTEGER,
    decimal_value        REAL,
    boolean_value        INTEGER,
    datetime_value       TEXT,
    json_value           TEXT,
    created_by           TEXT,
    updated_by           TEXT,
    created_at           TEXT NOT NULL,
    updated_at           TEXT NOT NULL,
    UNIQUE (field_definition_id, entity_id)
);
CREATE INDEX IF NOT EXISTS idx_field_values_entity ON _field_values (entity_type, entity_id);

CREATE TABLE IF NOT EXISTS _events (
    id              TEXT PRIMARY KEY,
    trace_id        TEXT NOT NULL,
    span_id         TEXT NOT NULL,
    parent_span_id  TEXT,
    event_type      TEXT NOT NULL,
    source          TEXT NOT NULL,
    component       TEXT NOT NULL,
    action          TEXT NOT NULL,
    entity          TEXT,
    record_id       TEXT,
    user_id         TEXT,
    duration_ms     REAL,
    status          TEXT,
    metadata        TEXT,
    created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_trace ON _events (trace_id);
CREATE INDEX IF NOT EXISTS idx_events_entity_created ON _events (entity, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_created ON _events (created_at DESC);
`
