package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapError_PG_UniqueViolation(t *testing.T) {
	dialect := &PostgresDialect{}
	pgErr := &pgconn.PgError{
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint \"_field_definitions_entity_type_name_key\"",
		ConstraintName: "_field_definitions_entity_type_name_key",
		Detail:         "Key (entity_type, name)=(client, riskTier) already exists.",
	}
	wrapped := fmt.Errorf("insert definition: %w", pgErr)

	mapped := MapError(dialect, wrapped)

	if !errors.Is(mapped, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got: %v", mapped)
	}

	var extracted *pgconn.PgError
	if !errors.As(mapped, &extracted) {
		t.Fatal("expected pgconn.PgError to still be extractable via errors.As")
	}
	if extracted.ConstraintName != "_field_definitions_entity_type_name_key" {
		t.Fatalf("unexpected constraint name: %s", extracted.ConstraintName)
	}
}

func TestMapError_PG_ForeignKeyIsNotUnique(t *testing.T) {
	dialect := &PostgresDialect{}
	pgErr := &pgconn.PgError{Code: "23503", Message: "insert or update violates foreign key constraint"}
	mapped := MapError(dialect, pgErr)
	if errors.Is(mapped, ErrUniqueViolation) {
		t.Fatalf("foreign key error mapped to unique violation: %v", mapped)
	}
}

func TestMapError_PG_OtherError(t *testing.T) {
	dialect := &PostgresDialect{}
	err := fmt.Errorf("some other error")
	mapped := MapError(dialect, err)
	if mapped != err {
		t.Fatalf("expected same error back, got: %v", mapped)
	}
}

func TestMapError_PG_Nil(t *testing.T) {
	dialect := &PostgresDialect{}
	mapped := MapError(dialect, nil)
	if mapped != nil {
		t.Fatalf("expected nil, got: %v", mapped)
	}
}

func TestPostgresTimeParam(t *testing.T) {
	d := &PostgresDialect{}
	loc := time.FixedZone("x", 3600)
	in := time.Date(2024, 5, 1, 10, 0, 0, 0, loc)
	out, ok := d.TimeParam(in).(time.Time)
	if !ok {
		t.Fatalf("expected time.Time param")
	}
	if out.Location() != time.UTC || !out.Equal(in) {
		t.Fatalf("expected UTC instant %v, got %v", in, out)
	}
}

func TestPostgresEntityLockSQL(t *testing.T) {
	d := &PostgresDialect{}
	if got := d.EntityLockSQL(); got != "SELECT pg_advisory_xact_lock(hashtext($1))" {
		t.Fatalf("unexpected lock sql: %s", got)
	}
	if got := (&SQLiteDialect{}).EntityLockSQL(); got != "" {
		t.Fatalf("expected no lock sql for sqlite, got %s", got)
	}
}
