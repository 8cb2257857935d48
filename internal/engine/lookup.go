package engine

import (
	"context"
	"fmt"
	"regexp"

	"fieldengine/internal/metadata"
	"fieldengine/internal/store"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// EntityLookup answers whether an instance of one entity type exists.
type EntityLookup interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Lookups holds the lookup for each entity type that has one. Entity types
// without a lookup are assumed to exist.
type Lookups map[metadata.EntityType]EntityLookup

// LookupFunc adapts a function to EntityLookup.
type LookupFunc func(ctx context.Context, id string) (bool, error)

func (f LookupFunc) Exists(ctx context.Context, id string) (bool, error) {
	return f(ctx, id)
}

func (l Lookups) exists(ctx context.Context, entityType metadata.EntityType, id string) (bool, error) {
	lookup, ok := l[entityType]
	if !ok || lookup == nil {
		return true, nil
	}
	return lookup.Exists(ctx, id)
}

// TableLookup checks existence against the host table of an entity type.
type TableLookup struct {
	store    *store.Store
	table    string
	idColumn string
}

// NewTableLookup returns a lookup over table.idColumn. Both names must be
// plain SQL identifiers and the table must exist.
func NewTableLookup(ctx context.Context, s *store.Store, table, idColumn string) (*TableLookup, error) {
	if idColumn == "" {
		idColumn = "id"
	}
	if !identifierPattern.MatchString(table) || !identifierPattern.MatchString(idColumn) {
		return nil, fmt.Errorf("invalid lookup identifier %q.%q", table, idColumn)
	}
	ok, err := s.Dialect.TableExists(ctx, s.DB, table)
	if err != nil {
		return nil, fmt.Errorf("check table %s: %w", table, err)
	}
	if !ok {
		return nil, fmt.Errorf("lookup table %s does not exist", table)
	}
	return &TableLookup{store: s, table: table, idColumn: idColumn}, nil
}

func (t *TableLookup) Exists(ctx context.Context, id string) (bool, error) {
	pb := t.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = %s", t.table, t.idColumn, pb.Add(id))
	var n int
	if err := t.store.DB.QueryRowContext(ctx, sqlStr, pb.Params()...).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup %s %s: %w", t.table, id, err)
	}
	return n > 0, nil
}
