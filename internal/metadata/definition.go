package metadata

import (
	"time"

	"fieldengine/internal/fieldtype"
)

// EntityType is a core entity that accepts custom fields.
type EntityType string

const (
	EntityClient               EntityType = "client"
	EntityContract             EntityType = "contract"
	EntityProposal             EntityType = "proposal"
	EntityService              EntityType = "service"
	EntityServiceScope         EntityType = "service_scope"
	EntityUser                 EntityType = "user"
	EntityHardwareAsset        EntityType = "hardware_asset"
	EntityFinancialTransaction EntityType = "financial_transaction"
	EntityLicensePool          EntityType = "license_pool"
	EntityTeamAssignment       EntityType = "team_assignment"
)

// EntityTypes lists every extensible entity type.
var EntityTypes = []EntityType{
	EntityClient, EntityContract, EntityProposal, EntityService, EntityServiceScope,
	EntityUser, EntityHardwareAsset, EntityFinancialTransaction, EntityLicensePool, EntityTeamAssignment,
}

// Valid reports whether e is one of the extensible entity types.
func (e EntityType) Valid() bool {
	for _, t := range EntityTypes {
		if t == e {
			return true
		}
	}
	return false
}

// ValidationRules are the optional per-field constraints.
type ValidationRules struct {
	Min        *float64 `json:"min,omitempty"`
	Max        *float64 `json:"max,omitempty"`
	MinLength  *int     `json:"min_length,omitempty"`
	MaxLength  *int     `json:"max_length,omitempty"`
	Pattern    string   `json:"pattern,omitempty"`
	MinDate    string   `json:"min_date,omitempty"`
	MaxDate    string   `json:"max_date,omitempty"`
	Expression string   `json:"expression,omitempty"` // expr-lang, true means the value is rejected
	Message    string   `json:"message,omitempty"`
	Currency   string   `json:"currency,omitempty"` // ISO-4217 code for currency fields
}

// IsZero reports whether no rule is set.
func (r ValidationRules) IsZero() bool {
	return r.Min == nil && r.Max == nil && r.MinLength == nil && r.MaxLength == nil &&
		r.Pattern == "" && r.MinDate == "" && r.MaxDate == "" && r.Expression == "" &&
		r.Message == "" && r.Currency == ""
}

// FieldDefinition declares one custom field on an entity type.
type FieldDefinition struct {
	ID              string          `json:"id"`
	EntityType      EntityType      `json:"entity_type"`
	Name            string          `json:"name"`
	Label           string          `json:"label"`
	FieldType       fieldtype.Type  `json:"field_type"`
	SelectOptions   []string        `json:"select_options,omitempty"`
	IsRequired      bool            `json:"is_required"`
	DisplayOrder    int             `json:"display_order"`
	PlaceholderText string          `json:"placeholder_text,omitempty"`
	HelpText        string          `json:"help_text,omitempty"`
	ValidationRules ValidationRules `json:"validation_rules"`
	DefaultValue    any             `json:"default_value,omitempty"`
	IsActive        bool            `json:"is_active"`
	CreatedBy       string          `json:"created_by,omitempty"`
	UpdatedBy       string          `json:"updated_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// HasOption reports whether option is one of the definition's select options.
func (d *FieldDefinition) HasOption(option string) bool {
	for _, o := range d.SelectOptions {
		if o == option {
			return true
		}
	}
	return false
}

// DefinitionSpec is the input for creating a definition.
type DefinitionSpec struct {
	EntityType      EntityType      `json:"entity_type"`
	Name            string          `json:"name"`
	Label           string          `json:"label"`
	FieldType       fieldtype.Type  `json:"field_type"`
	SelectOptions   []string        `json:"select_options,omitempty"`
	IsRequired      bool            `json:"is_required"`
	DisplayOrder    int             `json:"display_order"`
	PlaceholderText string          `json:"placeholder_text,omitempty"`
	HelpText        string          `json:"help_text,omitempty"`
	ValidationRules ValidationRules `json:"validation_rules"`
	DefaultValue    any             `json:"default_value,omitempty"`
}

// DefinitionPatch carries the fields to change on update. Nil means unchanged.
type DefinitionPatch struct {
	Label           *string          `json:"label,omitempty"`
	FieldType       *fieldtype.Type  `json:"field_type,omitempty"`
	SelectOptions   *[]string        `json:"select_options,omitempty"`
	IsRequired      *bool            `json:"is_required,omitempty"`
	DisplayOrder    *int             `json:"display_order,omitempty"`
	PlaceholderText *string          `json:"placeholder_text,omitempty"`
	HelpText        *string          `json:"help_text,omitempty"`
	ValidationRules *ValidationRules `json:"validation_rules,omitempty"`
	DefaultValue    *any             `json:"default_value,omitempty"`
}

// Apply returns a copy of def with the patch applied.
func (p DefinitionPatch) Apply(def FieldDefinition) FieldDefinition {
	if p.Label != nil {
		def.Label = *p.Label
	}
	if p.FieldType != nil {
		def.FieldType = *p.FieldType
	}
	if p.SelectOptions != nil {
		def.SelectOptions = append([]string(nil), (*p.SelectOptions)...)
	}
	if p.IsRequired != nil {
		def.IsRequired = *p.IsRequired
	}
	if p.DisplayOrder != nil {
		def.DisplayOrder = *p.DisplayOrder
	}
	if p.PlaceholderText != nil {
		def.PlaceholderText = *p.PlaceholderText
	}
	if p.HelpText != nil {
		def.HelpText = *p.HelpText
	}
	if p.ValidationRules != nil {
		def.ValidationRules = *p.ValidationRules
	}
	if p.DefaultValue != nil {
		def.DefaultValue = *p.DefaultValue
	}
	return def
}

// FieldValue is one stored value of a custom field for one entity instance.
type FieldValue struct {
	ID                string
	FieldDefinitionID string
	EntityType        EntityType
	EntityID          string
	fieldtype.Slots
	CreatedBy string
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}
