package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &pgParamBuilder{}
}

func (d *PostgresDialect) SchemaSQL() string {
	return pgSchemaSQL
}

func (d *PostgresDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)",
		tableName,
	).Scan(&exists)
	return exists, err
}

func (d *PostgresDialect) TimeParam(t time.Time) any {
	return t.UTC()
}

func (d *PostgresDialect) JSONParam(doc []byte) any {
	if doc == nil {
		return nil
	}
	return string(doc)
}

func (d *PostgresDialect) EntityLockSQL() string {
	return "SELECT pg_advisory_xact_lock(hashtext($1))"
}

func (d *PostgresDialect) SyncCommitOff() string {
	return "SET LOCAL synchronous_commit = off"
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	// Fall back to the message for errors that lost their type crossing database/sql.
	errStr := err.Error()
	if strings.Contains(errStr, "23505") || strings.Contains(errStr, "duplicate key") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// --- PostgreSQL DDL ---

const pgSchemaSQL = `
CREATE TABLE IF NOT EXISTS _field_definitions (
    id                UUID PRIMARY KEY,
    entity_type       TEXT NOT NULL,
    name              TEXT NOT NULL,
    label             TEXT NOT NULL,
    field_type        TEXT NOT NULL,
    select_options    JSONB,
    is_required       BOOLEAN NOT NULL DEFAULT false,
    display_order     INT NOT NULL DEFAULT 0,
    placeholder_text  TEXT,
    help_text         TEXT,
    validation_rules  JSONB,
    default_value     TEXT,
    is_active         BOOLEAN NOT NULL DEFAULT true,
    created_by        TEXT,
    updated_by        TEXT,
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL,
    UNIQUE (entity_type, name)
);
CREATE INDEX IF NOT EXISTS idx_field_definitions_order ON _field_definitions (entity_type, display_order, created_at);

CREATE TABLE IF NOT EXISTS _field_values (
    id                   UUID PRIMARY KEY,
    field_definition_id  UUID NOT NULL REFERENCES _field_definitions(id) ON DELETE CASCADE,
    entity_type          TEXT NOT NULL,
    entity_id            TEXT NOT NULL,
    string_value         TEXT,
    integer_value        BIGINT,
    decimal_value        NUMERIC,
    boolean_value        BOOLEAN,
    datetime_value       TIMESTAMPTZ,
    json_value           JSONB,
    created_by           TEXT,
    updated_by           TEXT,
    created_at           TIMESTAMPTZ NOT NULL,
    updated_at           TIMESTAMPTZ NOT NULL,
    UNIQUE (field_definition_id, entity_id)
);
CREATE INDEX IF NOT EXISTS idx_field_values_entity ON _field_values (entity_type, entity_id);

CREATE TABLE IF NOT EXISTS _events (
    id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    trace_id        UUID NOT NULL,
    span_id         UUID NOT NULL,
    parent_span_id  UUID,
    event_type      TEXT NOT NULL,
    source          TEXT NOT NULL,
    component       TEXT NOT NULL,
    action          TEXT NOT NULL,
    entity          TEXT,
    record_id       TEXT,
    user_id         TEXT,
    duration_ms     DOUBLE PRECISION,
    status          TEXT,
    metadata        JSONB,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_events_trace ON _events (trace_id);
CREATE INDEX IF NOT EXISTS idx_events_entity_created ON _events (entity, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_created ON _events (created_at DESC);
`
