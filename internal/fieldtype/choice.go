package fieldtype

import (
	"encoding/json"
	"fmt"
	"strings"
)

type booleanStrategy struct{}

func (booleanStrategy) Type() Type       { return Boolean }
func (booleanStrategy) Slot() Slot       { return SlotBoolean }
func (booleanStrategy) Control() Control { return Control{Widget: "boolean"} }

func (booleanStrategy) Coerce(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "on", "1":
			return true, nil
		case "false", "no", "off", "0":
			return false, nil
		}
	case float64:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	case json.Number:
		switch v.String() {
		case "0", "1":
			return v.String() == "1", nil
		}
	case int:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	case int64:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	}
	return nil, coercionErr(Boolean, raw, "true or false")
}

func (booleanStrategy) Raw(typed any) any { return typed }

func (booleanStrategy) Format(typed any, _ Locale) string {
	if b, ok := typed.(bool); ok && b {
		return "Yes"
	}
	return "No"
}

func (booleanStrategy) Encode(typed any) (Slots, error) {
	b, ok := typed.(bool)
	if !ok {
		return Slots{}, fmt.Errorf("%s: expected bool, got %T", Boolean, typed)
	}
	return Slots{Boolean: &b}, nil
}

func (booleanStrategy) Decode(s Slots) (any, bool) {
	if s.Boolean == nil {
		return nil, false
	}
	return *s.Boolean, true
}

// multiSelectStrategy stores the chosen options as a JSON array of strings.
type multiSelectStrategy struct{}

func (multiSelectStrategy) Type() Type { return SelectMultiCheckbox }
func (multiSelectStrategy) Slot() Slot { return SlotJSON }
func (multiSelectStrategy) Control() Control {
	return Control{Widget: "checkbox_group", Multiple: true}
}

func (multiSelectStrategy) Coerce(raw any) (any, error) {
	var items []string
	switch v := raw.(type) {
	case []string:
		items = v
	case []any:
		items = make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, coercionErr(SelectMultiCheckbox, raw, "a list of options")
			}
			items = append(items, s)
		}
	case string:
		items = strings.Split(v, ",")
	default:
		return nil, coercionErr(SelectMultiCheckbox, raw, "a list of options")
	}
	return dedupe(items), nil
}

// dedupe trims items, drops blanks and keeps the first occurrence of each.
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func (multiSelectStrategy) Raw(typed any) any {
	items, ok := typed.([]string)
	if !ok {
		return typed
	}
	return append([]string(nil), items...)
}

func (multiSelectStrategy) Format(typed any, _ Locale) string {
	items, _ := typed.([]string)
	return strings.Join(items, ", ")
}

func (multiSelectStrategy) Encode(typed any) (Slots, error) {
	items, ok := typed.([]string)
	if !ok {
		return Slots{}, fmt.Errorf("%s: expected []string, got %T", SelectMultiCheckbox, typed)
	}
	b, err := json.Marshal(items)
	if err != nil {
		return Slots{}, fmt.Errorf("%s: encode: %w", SelectMultiCheckbox, err)
	}
	return Slots{JSON: b}, nil
}

func (multiSelectStrategy) Decode(s Slots) (any, bool) {
	if s.JSON == nil {
		return nil, false
	}
	var items []string
	if err := json.Unmarshal(s.JSON, &items); err != nil {
		return nil, false
	}
	return items, true
}
