package fieldtype

import "time"

// Type is the closed set of field types an administrator can pick.
type Type string

const (
	TextSingleLine       Type = "text_single_line"
	TextMultiLine        Type = "text_multi_line"
	TextRich             Type = "text_rich"
	NumberInteger        Type = "number_integer"
	NumberDecimal        Type = "number_decimal"
	Date                 Type = "date"
	DateTime             Type = "datetime"
	Time                 Type = "time"
	Boolean              Type = "boolean"
	SelectSingleDropdown Type = "select_single_dropdown"
	SelectMultiCheckbox  Type = "select_multi_checkbox"
	Email                Type = "email"
	Phone                Type = "phone"
	URL                  Type = "url"
	UserReference        Type = "user_reference"
	ClientReference      Type = "client_reference"
	FileUpload           Type = "file_upload"
	ImageUpload          Type = "image_upload"
	JSON                 Type = "json"
	Currency             Type = "currency"
	Percentage           Type = "percentage"
)

// IsSelect reports whether the type draws its values from SelectOptions.
func (t Type) IsSelect() bool {
	return t == SelectSingleDropdown || t == SelectMultiCheckbox
}

// ReferenceTarget returns the entity type a reference field points at.
func (t Type) ReferenceTarget() (string, bool) {
	switch t {
	case UserReference:
		return "user", true
	case ClientReference:
		return "client", true
	}
	return "", false
}

// Slot names the typed storage column a value lives in.
type Slot string

const (
	SlotString   Slot = "string"
	SlotInteger  Slot = "integer"
	SlotDecimal  Slot = "decimal"
	SlotBoolean  Slot = "boolean"
	SlotDatetime Slot = "datetime"
	SlotJSON     Slot = "json"
)

// Slots holds the six typed storage columns of a value row.
// A well-formed row has exactly one of them set.
type Slots struct {
	String   *string
	Integer  *int64
	Decimal  *float64
	Boolean  *bool
	Datetime *time.Time
	JSON     []byte
}

// Filled returns the slots that are set.
func (s Slots) Filled() []Slot {
	var out []Slot
	if s.String != nil {
		out = append(out, SlotString)
	}
	if s.Integer != nil {
		out = append(out, SlotInteger)
	}
	if s.Decimal != nil {
		out = append(out, SlotDecimal)
	}
	if s.Boolean != nil {
		out = append(out, SlotBoolean)
	}
	if s.Datetime != nil {
		out = append(out, SlotDatetime)
	}
	if s.JSON != nil {
		out = append(out, SlotJSON)
	}
	return out
}

// Has reports whether the given slot is set.
func (s Slots) Has(slot Slot) bool {
	switch slot {
	case SlotString:
		return s.String != nil
	case SlotInteger:
		return s.Integer != nil
	case SlotDecimal:
		return s.Decimal != nil
	case SlotBoolean:
		return s.Boolean != nil
	case SlotDatetime:
		return s.Datetime != nil
	case SlotJSON:
		return s.JSON != nil
	}
	return false
}
