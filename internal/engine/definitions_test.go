package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"fieldengine/internal/fieldtype"
	"fieldengine/internal/metadata"
)

func TestListDefinitionsOrder(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	mustCreate(t, svc, metadata.DefinitionSpec{EntityType: metadata.EntityClient, Name: "later", Label: "Later", FieldType: fieldtype.TextSingleLine, DisplayOrder: 2})
	mustCreate(t, svc, metadata.DefinitionSpec{EntityType: metadata.EntityClient, Name: "firstA", Label: "First A", FieldType: fieldtype.TextSingleLine, DisplayOrder: 1})
	mustCreate(t, svc, metadata.DefinitionSpec{EntityType: metadata.EntityClient, Name: "firstB", Label: "First B", FieldType: fieldtype.Boolean, DisplayOrder: 1})
	mustCreate(t, svc, metadata.DefinitionSpec{EntityType: metadata.EntityContract, Name: "other", Label: "Other", FieldType: fieldtype.TextSingleLine})

	defs, err := svc.Definitions.ListDefinitions(ctx, metadata.EntityClient, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var names []string
	for _, d := range defs {
		names = append(names, d.Name)
	}
	want := []string{"firstA", "firstB", "later"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}

	empty, err := svc.Definitions.ListDefinitions(ctx, metadata.EntityLicensePool, false)
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected an empty, non-nil list, got %v", empty)
	}
}

func TestCreateDefinitionDuplicateName(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()
	spec := metadata.DefinitionSpec{EntityType: metadata.EntityContract, Name: "riskTier", Label: "Risk tier",
		FieldType: fieldtype.SelectSingleDropdown, SelectOptions: []string{"low", "medium", "high"}}

	mustCreate(t, svc, spec)
	_, err := svc.Definitions.CreateDefinition(ctx, testAdmin, spec)
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected DUPLICATE_NAME, got %v", err)
	}

	spec.EntityType = metadata.EntityProposal
	if _, err := svc.Definitions.CreateDefinition(ctx, testAdmin, spec); err != nil {
		t.Fatalf("same name on another entity type should succeed: %v", err)
	}
}

func TestCreateDefinitionDuplicateNameAfterDeactivate(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()
	spec := metadata.DefinitionSpec{EntityType: metadata.EntityService, Name: "sla", Label: "SLA", FieldType: fieldtype.TextSingleLine}
	def := mustCreate(t, svc, spec)
	if _, err := svc.Definitions.Deactivate(ctx, testAdmin, def.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.Definitions.CreateDefinition(ctx, testAdmin, spec); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected inactive name to stay reserved, got %v", err)
	}
}

func TestCreateDefinitionConcurrentDuplicates(t *testing.T) {
	svc := newTestService(t, Options{})
	spec := metadata.DefinitionSpec{EntityType: metadata.EntityUser, Name: "badge", Label: "Badge", FieldType: fieldtype.TextSingleLine}

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Definitions.CreateDefinition(context.Background(), testAdmin, spec)
		}(i)
	}
	wg.Wait()

	created, duplicates := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrDuplicateName):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 || duplicates != 3 {
		t.Fatalf("expected 1 created and 3 duplicates, got %d and %d", created, duplicates)
	}
}

func TestCreateDefinitionInvalidSpec(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	cases := []struct {
		name string
		spec metadata.DefinitionSpec
		rule string
	}{
		{"select without options", metadata.DefinitionSpec{EntityType: metadata.EntityClient, Name: "tier", Label: "Tier", FieldType: fieldtype.SelectSingleDropdown}, "required"},
		{"options on text", metadata.DefinitionSpec{EntityType: metadata.EntityClient, Name: "note", Label: "Note", FieldType: fieldtype.TextSingleLine, SelectOptions: []string{"a"}}, "forbidden"},
		{"duplicate options", metadata.DefinitionSpec{EntityType: metadata.EntityClient, Name: "tier", Label: "Tier", FieldType: fieldtype.SelectSingleDropdown, SelectOptions: []string{"a", "a"}}, "unique"},
		{"bad name", metadata.DefinitionSpec{EntityType: metadata.EntityClient, Name: "1st", Label: "First", FieldType: fieldtype.TextSingleLine}, "pattern"},
		{"unknown field type", metadata.DefinitionSpec{EntityType: metadata.EntityClient, Name: "x", Label: "X", FieldType: "rating"}, "enum"},
		{"unknown entity type", metadata.DefinitionSpec{EntityType: "invoice", Name: "x", Label: "X", FieldType: fieldtype.TextSingleLine}, "enum"},
		{"bad default", metadata.DefinitionSpec{EntityType: metadata.EntityClient, Name: "seats", Label: "Seats", FieldType: fieldtype.NumberInteger, DefaultValue: "many"}, "type"},
		{"default out of options", metadata.DefinitionSpec{EntityType: metadata.EntityClient, Name: "tier", Label: "Tier", FieldType: fieldtype.SelectSingleDropdown, SelectOptions: []string{"low"}, DefaultValue: "high"}, "options"},
		{"broken pattern", metadata.DefinitionSpec{EntityType: metadata.EntityClient, Name: "code", Label: "Code", FieldType: fieldtype.TextSingleLine, ValidationRules: metadata.ValidationRules{Pattern: "(["}}, "pattern"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Definitions.CreateDefinition(ctx, testAdmin, tc.spec)
			var appErr *AppError
			if !errors.As(err, &appErr) || appErr.Code != "INVALID_SPEC" {
				t.Fatalf("expected INVALID_SPEC, got %v", err)
			}
			found := false
			for _, d := range appErr.Details {
				if d.Rule == tc.rule {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected a %s detail, got %+v", tc.rule, appErr.Details)
			}
		})
	}
}

func TestCreateDefinitionRequiresCaller(t *testing.T) {
	svc := newTestService(t, Options{})
	spec := metadata.DefinitionSpec{EntityType: metadata.EntityClient, Name: "note", Label: "Note", FieldType: fieldtype.TextSingleLine}
	if _, err := svc.Definitions.CreateDefinition(context.Background(), nil, spec); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}

func TestCreateDefinitionCanonicalizesDefault(t *testing.T) {
	svc := newTestService(t, Options{})
	def := mustCreate(t, svc, metadata.DefinitionSpec{EntityType: metadata.EntityClient, Name: "seats", Label: "Seats",
		FieldType: fieldtype.NumberInteger, DefaultValue: "12"})
	if def.DefaultValue != int64(12) {
		t.Fatalf("expected default coerced to 12, got %#v", def.DefaultValue)
	}
	if def.CreatedBy != testAdmin.ID {
		t.Fatalf("expected created_by %s, got %s", testAdmin.ID, def.CreatedBy)
	}

	got, err := svc.Definitions.GetDefinition(context.Background(), def.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v, err := fieldtype.Coerce(fieldtype.NumberInteger, got.DefaultValue); err != nil || v != int64(12) {
		t.Fatalf("expected stored default 12, got %#v (%v)", got.DefaultValue, err)
	}
}

func TestUpdateDefinition(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()
	def := mustCreate(t, svc, metadata.DefinitionSpec{EntityType: metadata.EntityClient, Name: "tier", Label: "Tier",
		FieldType: fieldtype.SelectSingleDropdown, SelectOptions: []string{"low", "high"}})

	res, err := svc.Definitions.UpdateDefinition(ctx, testAdmin, def.ID, metadata.DefinitionPatch{
		Label:         ptr("Service tier"),
		SelectOptions: ptr([]string{"low", "medium", "high"}),
		IsRequired:    ptr(true),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Definition.Label != "Service tier" || len(res.Definition.SelectOptions) != 3 || !res.Definition.IsRequired {
		t.Fatalf("patch not applied: %+v", res.Definition)
	}
	if res.Definition.Name != "tier" {
		t.Fatalf("name must not change, got %s", res.Definition.Name)
	}

	got, err := svc.Definitions.GetDefinition(ctx, def.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Label != "Service tier" || !got.HasOption("medium") {
		t.Fatalf("update not persisted: %+v", got)
	}

	if _, err := svc.Definitions.UpdateDefinition(ctx, testAdmin, def.ID, metadata.DefinitionPatch{SelectOptions: ptr([]string{})}); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("expected INVALID_SPEC for empty options, got %v", err)
	}
}

func TestUpdateDefinitionNotFound(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()
	for _, id := range []string{"2f1d8a8e-3c1b-4d83-a7a4-0c55b3b1e001", "not-a-uuid"} {
		if _, err := svc.Definitions.UpdateDefinition(ctx, testAdmin, id, metadata.DefinitionPatch{Label: ptr("x")}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected NOT_FOUND for %s, got %v", id, err)
		}
	}
}

func TestUpdateDefinitionRetypeCountsOrphans(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()
	def := mustCreate(t, svc, metadata.DefinitionSpec{EntityType: metadata.EntityContract, Name: "score", Label: "Score", FieldType: fieldtype.TextSingleLine})

	for _, id := range []string{"k1", "k2"} {
		if err := svc.Values.SetValues(ctx, testAdmin, metadata.EntityContract, id, map[string]any{"score": "17"}); err != nil {
			t.Fatalf("set values: %v", err)
		}
	}

	var seven any = 7
	res, err := svc.Definitions.UpdateDefinition(ctx, testAdmin, def.ID, metadata.DefinitionPatch{FieldType: ptr(fieldtype.NumberInteger), DefaultValue: &seven})
	if err != nil {
		t.Fatalf("retype: %v", err)
	}
	if res.OrphanedValues != 2 {
		t.Fatalf("expected 2 orphaned values, got %d", res.OrphanedValues)
	}

	values, err := svc.Values.GetValues(ctx, metadata.EntityContract, "k1", false)
	if err != nil {
		t.Fatalf("get values: %v", err)
	}
	if v, ok := values["score"]; !ok || v != nil {
		t.Fatalf("expected retyped value to read as nil, got %#v", values["score"])
	}

	values, err = svc.Values.GetValues(ctx, metadata.EntityContract, "k3", false)
	if err != nil {
		t.Fatalf("get values: %v", err)
	}
	if values["score"] != int64(7) {
		t.Fatalf("expected default for an entity without a row, got %#v", values["score"])
	}
}

func TestUpdateDefinitionLeavingSelectDropsOptions(t *testing.T) {
	svc := newTestService(t, Options{})
	def := mustCreate(t, svc, metadata.DefinitionSpec{EntityType: metadata.EntityClient, Name: "tier", Label: "Tier",
		FieldType: fieldtype.SelectSingleDropdown, SelectOptions: []string{"low"}})
	res, err := svc.Definitions.UpdateDefinition(context.Background(), testAdmin, def.ID, metadata.DefinitionPatch{FieldType: ptr(fieldtype.TextSingleLine)})
	if err != nil {
		t.Fatalf("retype: %v", err)
	}
	if len(res.Definition.SelectOptions) != 0 {
		t.Fatalf("expected options dropped, got %v", res.Definition.SelectOptions)
	}
}

func TestDeactivateIsIdempotent(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()
	def := mustCreate(t, svc, metadata.DefinitionSpec{EntityType: metadata.EntityClient, Name: "note", Label: "Note", FieldType: fieldtype.TextSingleLine})

	for i := 0; i < 2; i++ {
		got, err := svc.Definitions.Deactivate(ctx, testAdmin, def.ID)
		if err != nil {
			t.Fatalf("deactivate #%d: %v", i+1, err)
		}
		if got.IsActive {
			t.Fatalf("expected inactive after deactivate #%d", i+1)
		}
	}
	active, _ := svc.Definitions.ListDefinitions(ctx, metadata.EntityClient, false)
	if len(active) != 0 {
		t.Fatalf("expected no active definitions, got %d", len(active))
	}
	all, _ := svc.Definitions.ListDefinitions(ctx, metadata.EntityClient, true)
	if len(all) != 1 {
		t.Fatalf("expected inactive definition when includeInactive, got %d", len(all))
	}

	for i := 0; i < 2; i++ {
		got, err := svc.Definitions.Reactivate(ctx, testAdmin, def.ID)
		if err != nil || !got.IsActive {
			t.Fatalf("reactivate #%d: %v %+v", i+1, err, got)
		}
	}

	if _, err := svc.Definitions.Deactivate(ctx, testAdmin, "2f1d8a8e-3c1b-4d83-a7a4-0c55b3b1e001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
