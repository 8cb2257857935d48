package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"fieldengine/internal/config"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "store_test"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}

func TestSQLiteBootstrapCreatesTables(t *testing.T) {
	s := openSQLite(t)
	for _, table := range []string{"_field_definitions", "_field_values", "_events"} {
		ok, err := s.Dialect.TableExists(context.Background(), s.DB, table)
		if err != nil {
			t.Fatalf("table exists %s: %v", table, err)
		}
		if !ok {
			t.Fatalf("expected table %s", table)
		}
	}
}

func TestSQLiteBootstrapIsRepeatable(t *testing.T) {
	s := openSQLite(t)
	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
}

func insertDefinition(ctx context.Context, q Querier, d Dialect, id, name string) error {
	now := d.TimeParam(time.Now())
	_, err := q.ExecContext(ctx,
		`INSERT INTO _field_definitions (id, entity_type, name, label, field_type, created_at, updated_at)
		 VALUES (?1, 'client', ?2, ?2, 'text_single_line', ?3, ?3)`,
		id, name, now)
	return err
}

func TestSQLiteMapError_UniqueViolation(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	if err := insertDefinition(ctx, s.DB, s.Dialect, "a", "riskTier"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := insertDefinition(ctx, s.DB, s.Dialect, "b", "riskTier")
	if err == nil {
		t.Fatal("expected unique violation")
	}
	if !errors.Is(MapError(s.Dialect, err), ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got: %v", err)
	}
}

func TestSQLiteForeignKeyCascade(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	if err := insertDefinition(ctx, s.DB, s.Dialect, "def-1", "notes"); err != nil {
		t.Fatalf("insert definition: %v", err)
	}
	now := s.Dialect.TimeParam(time.Now())
	if _, err := s.DB.ExecContext(ctx,
		`INSERT INTO _field_values (id, field_definition_id, entity_type, entity_id, string_value, created_at, updated_at)
		 VALUES ('v1', 'def-1', 'client', 'c1', 'hello', ?1, ?1)`, now); err != nil {
		t.Fatalf("insert value: %v", err)
	}
	if _, err := Exec(ctx, s.DB, "DELETE FROM _field_definitions WHERE id = ?1", "def-1"); err != nil {
		t.Fatalf("delete definition: %v", err)
	}
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM _field_values").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected cascade delete, %d rows remain", count)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	boom := fmt.Errorf("boom")
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := insertDefinition(ctx, tx, s.Dialect, "x", "rolledBack"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM _field_definitions").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback, found %d rows", count)
	}
}

func TestSQLiteTimeRoundTrip(t *testing.T) {
	d := &SQLiteDialect{}
	in := time.Date(2024, 2, 29, 23, 59, 58, 123, time.UTC)
	out, err := ParseTime(d.TimeParam(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !out.Equal(in) {
		t.Fatalf("expected %v, got %v", in, out)
	}
	earlier := d.TimeParam(in.Add(-time.Second)).(string)
	later := d.TimeParam(in).(string)
	if earlier >= later {
		t.Fatalf("expected lexical order to follow time order: %s >= %s", earlier, later)
	}
}
