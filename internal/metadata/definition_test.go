package metadata

import (
	"testing"

	"fieldengine/internal/fieldtype"
)

func TestEntityTypeValid(t *testing.T) {
	if !EntityHardwareAsset.Valid() {
		t.Fatal("expected hardware_asset to be valid")
	}
	if EntityType("invoice").Valid() {
		t.Fatal("expected invoice to be invalid")
	}
	if len(EntityTypes) != 10 {
		t.Fatalf("expected 10 entity types, got %d", len(EntityTypes))
	}
}

func TestDefinitionPatchApply(t *testing.T) {
	def := FieldDefinition{
		Name:          "riskTier",
		Label:         "Risk Tier",
		FieldType:     fieldtype.SelectSingleDropdown,
		SelectOptions: []string{"Low", "High"},
		DisplayOrder:  1,
	}
	label := "Risk"
	order := 5
	opts := []string{"Low", "Medium", "High"}
	patched := DefinitionPatch{Label: &label, DisplayOrder: &order, SelectOptions: &opts}.Apply(def)

	if patched.Label != "Risk" || patched.DisplayOrder != 5 {
		t.Fatalf("patch not applied: %+v", patched)
	}
	if len(patched.SelectOptions) != 3 {
		t.Fatalf("expected 3 options, got %v", patched.SelectOptions)
	}
	if patched.Name != "riskTier" || patched.FieldType != fieldtype.SelectSingleDropdown {
		t.Fatalf("unpatched fields changed: %+v", patched)
	}
	if def.Label != "Risk Tier" {
		t.Fatal("apply must not mutate the original")
	}
	opts[0] = "changed"
	if patched.SelectOptions[0] != "Low" {
		t.Fatal("patched options alias the patch slice")
	}
}

func TestHasOption(t *testing.T) {
	def := FieldDefinition{SelectOptions: []string{"A", "B"}}
	if !def.HasOption("B") || def.HasOption("C") {
		t.Fatalf("unexpected option membership for %v", def.SelectOptions)
	}
}

func TestValidationRulesIsZero(t *testing.T) {
	if !(ValidationRules{}).IsZero() {
		t.Fatal("expected empty rules to be zero")
	}
	min := 1.0
	if (ValidationRules{Min: &min}).IsZero() {
		t.Fatal("expected rules with min to be non-zero")
	}
}

func TestUserContextRoles(t *testing.T) {
	u := &UserContext{ID: "u1", Roles: []string{"admin"}}
	if !u.IsAdmin() || u.HasRole("editor") {
		t.Fatalf("unexpected roles for %+v", u)
	}
}
