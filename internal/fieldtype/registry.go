package fieldtype

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps field types to their strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[Type]Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[Type]Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.Type()] = s
	}
	return r
}

// Register adds or replaces the strategy for its type.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Type()] = s
}

// Get returns the strategy for a type.
func (r *Registry) Get(t Type) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[t]
	return s, ok
}

// Types returns all registered types sorted by name.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]Type, 0, len(r.strategies))
	for t := range r.strategies {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Coerce returns (nil, nil) for absent input, the typed value otherwise.
func (r *Registry) Coerce(t Type, raw any) (any, error) {
	s, ok := r.Get(t)
	if !ok {
		return nil, fmt.Errorf("unknown field type %q", t)
	}
	if IsAbsent(raw) {
		return nil, nil
	}
	typed, err := s.Coerce(raw)
	if err != nil {
		return nil, err
	}
	if IsAbsent(typed) {
		return nil, nil
	}
	return typed, nil
}

// Format renders a typed value, returning "" for nil.
func (r *Registry) Format(t Type, typed any, loc Locale) string {
	if typed == nil {
		return ""
	}
	s, ok := r.Get(t)
	if !ok {
		return fmt.Sprint(typed)
	}
	return s.Format(typed, loc)
}

var defaultRegistry = NewRegistry(builtins()...)

// Default returns the registry holding every built-in field type.
func Default() *Registry {
	return defaultRegistry
}

// Lookup returns the built-in strategy for a type.
func Lookup(t Type) (Strategy, bool) {
	return defaultRegistry.Get(t)
}

// SlotFor returns the storage slot of a built-in type.
func SlotFor(t Type) (Slot, error) {
	s, ok := defaultRegistry.Get(t)
	if !ok {
		return "", fmt.Errorf("unknown field type %q", t)
	}
	return s.Slot(), nil
}

// Coerce coerces raw input with the built-in strategy for t.
func Coerce(t Type, raw any) (any, error) {
	return defaultRegistry.Coerce(t, raw)
}

// Format renders a typed value with the built-in strategy for t.
func Format(t Type, typed any, loc Locale) string {
	return defaultRegistry.Format(t, typed, loc)
}

func builtins() []Strategy {
	return []Strategy{
		newText(TextSingleLine, Control{Widget: "input", InputType: "text"}, nil),
		newText(TextMultiLine, Control{Widget: "textarea"}, nil),
		newText(TextRich, Control{Widget: "richtext"}, nil),
		newText(Time, Control{Widget: "input", InputType: "time"}, normalizeClock),
		newText(SelectSingleDropdown, Control{Widget: "select"}, nil),
		newText(Email, Control{Widget: "input", InputType: "email"}, normalizeEmail),
		newText(Phone, Control{Widget: "input", InputType: "tel"}, normalizePhone),
		newText(URL, Control{Widget: "input", InputType: "url"}, normalizeURL),
		newText(UserReference, Control{Widget: "reference", Target: "user"}, normalizeUUID),
		newText(ClientReference, Control{Widget: "reference", Target: "client"}, normalizeUUID),
		integerStrategy{},
		newDecimal(NumberDecimal, Control{Widget: "input", InputType: "number", Step: "any"}),
		newDecimal(Currency, Control{Widget: "input", InputType: "number", Step: "0.01", Adornment: "currency"}),
		newDecimal(Percentage, Control{Widget: "input", InputType: "number", Step: "any", Adornment: "%"}),
		booleanStrategy{},
		temporalStrategy{typ: Date},
		temporalStrategy{typ: DateTime},
		multiSelectStrategy{},
		documentStrategy{},
		fileStrategy{typ: FileUpload, control: Control{Widget: "input", InputType: "file"}},
		fileStrategy{typ: ImageUpload, control: Control{Widget: "input", InputType: "file", Accept: "image/*"}},
	}
}
