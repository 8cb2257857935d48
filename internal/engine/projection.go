package engine

import (
	"context"
	"fmt"

	"fieldengine/internal/metadata"
	"fieldengine/internal/store"
)

// Projector writes a denormalized JSON copy of an entity's custom field
// values. It runs inside the value write transaction; the value rows stay
// the source of truth.
type Projector interface {
	Handles(entityType metadata.EntityType) bool
	Project(ctx context.Context, q store.Querier, entityType metadata.EntityType, entityID string, doc []byte) error
}

// ProjectionTarget names the host column receiving the JSON copy.
type ProjectionTarget struct {
	Table    string
	IDColumn string
	Column   string
}

// TableProjector updates a JSON column on each entity's host table.
type TableProjector struct {
	dialect store.Dialect
	targets map[metadata.EntityType]ProjectionTarget
}

func NewTableProjector(dialect store.Dialect, targets map[metadata.EntityType]ProjectionTarget) (*TableProjector, error) {
	for et, t := range targets {
		if t.IDColumn == "" {
			t.IDColumn = "id"
			targets[et] = t
		}
		for _, ident := range []string{t.Table, t.IDColumn, t.Column} {
			if !identifierPattern.MatchString(ident) {
				return nil, fmt.Errorf("projection for %s: invalid identifier %q", et, ident)
			}
		}
	}
	return &TableProjector{dialect: dialect, targets: targets}, nil
}

func (p *TableProjector) Handles(entityType metadata.EntityType) bool {
	_, ok := p.targets[entityType]
	return ok
}

func (p *TableProjector) Project(ctx context.Context, q store.Querier, entityType metadata.EntityType, entityID string, doc []byte) error {
	t, ok := p.targets[entityType]
	if !ok {
		return nil
	}
	pb := p.dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
		t.Table, t.Column, pb.Add(p.dialect.JSONParam(doc)), t.IDColumn, pb.Add(entityID))
	if _, err := store.Exec(ctx, q, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("project %s %s: %w", entityType, entityID, err)
	}
	return nil
}
