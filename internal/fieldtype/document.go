package fieldtype

import (
	"encoding/json"
	"fmt"
	"strings"
)

// documentStrategy holds arbitrary JSON documents.
type documentStrategy struct{}

func (documentStrategy) Type() Type       { return JSON }
func (documentStrategy) Slot() Slot       { return SlotJSON }
func (documentStrategy) Control() Control { return Control{Widget: "code"} }

func (documentStrategy) Coerce(raw any) (any, error) {
	if s, ok := raw.(string); ok {
		var doc any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &doc); err != nil {
			return nil, coercionErr(JSON, raw, "valid JSON")
		}
		return doc, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, coercionErr(JSON, raw, "a JSON-encodable value")
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, coercionErr(JSON, raw, "a JSON-encodable value")
	}
	return doc, nil
}

// Raw returns string documents as JSON text so Coerce reads them back as
// strings rather than parsing their content.
func (documentStrategy) Raw(typed any) any {
	if s, ok := typed.(string); ok {
		b, _ := json.Marshal(s)
		return string(b)
	}
	return typed
}

func (documentStrategy) Format(typed any, _ Locale) string {
	b, err := json.Marshal(typed)
	if err != nil {
		return fmt.Sprint(typed)
	}
	return string(b)
}

func (documentStrategy) Encode(typed any) (Slots, error) {
	b, err := json.Marshal(typed)
	if err != nil {
		return Slots{}, fmt.Errorf("%s: encode: %w", JSON, err)
	}
	return Slots{JSON: b}, nil
}

func (documentStrategy) Decode(s Slots) (any, bool) {
	if s.JSON == nil {
		return nil, false
	}
	var doc any
	if err := json.Unmarshal(s.JSON, &doc); err != nil {
		return nil, false
	}
	return doc, true
}

// fileStrategy stores a reference to an uploaded file as {"id": ..., ...}.
// Presence of the id is all that is checked; the upload itself happens elsewhere.
// Storage keys are derived server side and never accepted from input.
type fileStrategy struct {
	typ     Type
	control Control
}

func (s fileStrategy) Type() Type       { return s.typ }
func (s fileStrategy) Slot() Slot       { return SlotJSON }
func (s fileStrategy) Control() Control { return s.control }

func (s fileStrategy) Coerce(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return map[string]any{"id": strings.TrimSpace(v)}, nil
	case map[string]any:
		id, ok := v["id"].(string)
		if !ok || strings.TrimSpace(id) == "" {
			return nil, coercionErr(s.typ, raw, "a file reference with an id")
		}
		out := make(map[string]any, len(v))
		for k, val := range v {
			if k == "key" {
				continue
			}
			out[k] = val
		}
		return out, nil
	}
	return nil, coercionErr(s.typ, raw, "a file reference with an id")
}

func (fileStrategy) Raw(typed any) any { return typed }

func (fileStrategy) Format(typed any, _ Locale) string {
	ref, _ := typed.(map[string]any)
	if name, ok := ref["name"].(string); ok && name != "" {
		return name
	}
	id, _ := ref["id"].(string)
	return id
}

func (s fileStrategy) Encode(typed any) (Slots, error) {
	ref, ok := typed.(map[string]any)
	if !ok {
		return Slots{}, fmt.Errorf("%s: expected file reference, got %T", s.typ, typed)
	}
	b, err := json.Marshal(ref)
	if err != nil {
		return Slots{}, fmt.Errorf("%s: encode: %w", s.typ, err)
	}
	return Slots{JSON: b}, nil
}

func (fileStrategy) Decode(s Slots) (any, bool) {
	if s.JSON == nil {
		return nil, false
	}
	var ref map[string]any
	if err := json.Unmarshal(s.JSON, &ref); err != nil || ref == nil {
		return nil, false
	}
	return ref, true
}
