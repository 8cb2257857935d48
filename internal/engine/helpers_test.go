package engine

import (
	"context"
	"testing"

	"fieldengine/internal/config"
	"fieldengine/internal/metadata"
	"fieldengine/internal/store"
)

var testAdmin = &metadata.UserContext{ID: "0b9f3c52-6a1e-4a8e-9d55-3f1f7d2a9c10", Roles: []string{"admin"}}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "fields"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	return New(newTestStore(t), opts)
}

func mustCreate(t *testing.T, svc *Service, spec metadata.DefinitionSpec) *metadata.FieldDefinition {
	t.Helper()
	def, err := svc.Definitions.CreateDefinition(context.Background(), testAdmin, spec)
	if err != nil {
		t.Fatalf("create %s: %v", spec.Name, err)
	}
	return def
}

func ptr[T any](v T) *T {
	return &v
}
