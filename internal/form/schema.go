package form

import (
	"fieldengine/internal/fieldtype"
	"fieldengine/internal/metadata"
)

// Schema describes an entity type's custom fields for client-side forms.
type Schema struct {
	EntityType metadata.EntityType `json:"entity_type"`
	Properties []*PropertySchema   `json:"properties"`
	Required   []string            `json:"required"`
}

// PropertySchema is one field of a Schema. Type and Format follow JSON
// Schema so generic form builders can consume it.
type PropertySchema struct {
	Name        string             `json:"name,omitempty"`
	Label       string             `json:"label,omitempty"`
	FieldType   fieldtype.Type     `json:"field_type,omitempty"`
	Type        string             `json:"type,omitempty"`
	Format      string             `json:"format,omitempty"`
	Items       *PropertySchema    `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Default     any                `json:"default,omitempty"`
	Minimum     *float64           `json:"minimum,omitempty"`
	Maximum     *float64           `json:"maximum,omitempty"`
	MinLength   *int               `json:"minLength,omitempty"`
	MaxLength   *int               `json:"maxLength,omitempty"`
	Pattern     string             `json:"pattern,omitempty"`
	Placeholder string             `json:"placeholder,omitempty"`
	HelpText    string             `json:"help_text,omitempty"`
	Currency    string             `json:"currency,omitempty"`
	Control     *fieldtype.Control `json:"x-control,omitempty"`
}

// BuildSchema converts definitions into a Schema. currencyFor resolves the
// display currency of currency fields.
func BuildSchema(entityType metadata.EntityType, defs []*metadata.FieldDefinition, currencyFor func(*metadata.FieldDefinition) string) *Schema {
	s := &Schema{EntityType: entityType, Properties: []*PropertySchema{}, Required: []string{}}
	for _, def := range defs {
		p := &PropertySchema{
			Name:        def.Name,
			Label:       def.Label,
			FieldType:   def.FieldType,
			Default:     def.DefaultValue,
			Pattern:     def.ValidationRules.Pattern,
			Placeholder: def.PlaceholderText,
			HelpText:    def.HelpText,
		}
		p.Type, p.Format = jsonType(def.FieldType)
		if strategy, ok := fieldtype.Lookup(def.FieldType); ok {
			control := strategy.Control()
			p.Control = &control
		}

		rules := def.ValidationRules
		switch p.Type {
		case "integer", "number":
			p.Minimum, p.Maximum = rules.Min, rules.Max
		case "string":
			p.MinLength, p.MaxLength = rules.MinLength, rules.MaxLength
		}

		switch def.FieldType {
		case fieldtype.SelectSingleDropdown:
			p.Enum = def.SelectOptions
		case fieldtype.SelectMultiCheckbox:
			p.Items = &PropertySchema{Type: "string", Enum: def.SelectOptions}
			p.MinLength, p.MaxLength = rules.MinLength, rules.MaxLength
		case fieldtype.Currency:
			if currencyFor != nil {
				p.Currency = currencyFor(def)
			}
		}

		s.Properties = append(s.Properties, p)
		if def.IsRequired {
			s.Required = append(s.Required, def.Name)
		}
	}
	return s
}

func jsonType(t fieldtype.Type) (string, string) {
	switch t {
	case fieldtype.NumberInteger:
		return "integer", ""
	case fieldtype.NumberDecimal, fieldtype.Currency, fieldtype.Percentage:
		return "number", ""
	case fieldtype.Boolean:
		return "boolean", ""
	case fieldtype.Date:
		return "string", "date"
	case fieldtype.DateTime:
		return "string", "date-time"
	case fieldtype.Time:
		return "string", "time"
	case fieldtype.Email:
		return "string", "email"
	case fieldtype.URL:
		return "string", "uri"
	case fieldtype.UserReference, fieldtype.ClientReference:
		return "string", "uuid"
	case fieldtype.SelectMultiCheckbox:
		return "array", ""
	case fieldtype.FileUpload, fieldtype.ImageUpload:
		return "object", ""
	case fieldtype.JSON:
		return "", ""
	}
	return "string", ""
}
