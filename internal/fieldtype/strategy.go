package fieldtype

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Strategy is the behavior bundle for one field type: how raw input is
// coerced, where the typed value is stored, how it is shown, and which
// control edits it.
type Strategy interface {
	Type() Type
	Slot() Slot

	// Coerce turns raw input into the typed value. Callers screen absent
	// input with IsAbsent first.
	Coerce(raw any) (any, error)

	// Raw returns the wire form of a typed value. Coerce(Raw(v)) yields v.
	Raw(typed any) any

	// Format renders a typed value for read-only display.
	Format(typed any, loc Locale) string

	// Encode places a typed value into its storage slot.
	Encode(typed any) (Slots, error)

	// Decode reads the typed value back. ok is false when the row does not
	// carry this type's slot, which happens after a definition is retyped.
	Decode(s Slots) (typed any, ok bool)

	Control() Control
}

// Locale carries display preferences.
type Locale struct {
	Language language.Tag
	// Currency is the ISO-4217 code used for currency fields.
	Currency string
}

// DefaultLocale formats numbers in US English with US dollars.
var DefaultLocale = Locale{Language: language.AmericanEnglish, Currency: "USD"}

// ParseLocale builds a Locale from a BCP-47 tag and currency code, falling
// back to DefaultLocale parts that do not parse.
func ParseLocale(tag, currencyCode string) Locale {
	loc := DefaultLocale
	if t, err := language.Parse(tag); err == nil {
		loc.Language = t
	}
	if currencyCode != "" {
		loc.Currency = strings.ToUpper(currencyCode)
	}
	return loc
}

// Control describes the input widget for a field type.
type Control struct {
	Widget    string `json:"widget"`
	InputType string `json:"input_type,omitempty"`
	Step      string `json:"step,omitempty"`
	Accept    string `json:"accept,omitempty"`
	Adornment string `json:"adornment,omitempty"`
	Multiple  bool   `json:"multiple,omitempty"`
	Target    string `json:"target,omitempty"`
}

// CoercionError reports raw input that cannot be read as the field's type.
type CoercionError struct {
	Type     Type
	Raw      any
	Expected string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("cannot read %v as %s: expected %s", e.Raw, e.Type, e.Expected)
}

func coercionErr(t Type, raw any, expected string) error {
	return &CoercionError{Type: t, Raw: raw, Expected: expected}
}

// IsAbsent reports whether raw input counts as "no value".
// Nil, blank strings and empty lists are absent.
func IsAbsent(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	}
	return false
}
