package fieldtype

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout        = "2006-01-02"
	dateTimeDisplay   = "2006-01-02 15:04 MST"
	dateTimeLocalForm = "2006-01-02T15:04"
)

// temporalStrategy covers date and datetime, both stored in the datetime slot.
// Dates are held as UTC midnight.
type temporalStrategy struct {
	typ Type
}

func (s temporalStrategy) Type() Type { return s.typ }
func (s temporalStrategy) Slot() Slot { return SlotDatetime }

func (s temporalStrategy) Control() Control {
	if s.typ == Date {
		return Control{Widget: "input", InputType: "date"}
	}
	return Control{Widget: "input", InputType: "datetime-local"}
}

func (s temporalStrategy) Coerce(raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		return s.normalize(v), nil
	case string:
		str := strings.TrimSpace(v)
		if s.typ == Date {
			t, err := time.Parse(DateLayout, str)
			if err != nil {
				return nil, coercionErr(s.typ, raw, "a date like 2024-01-31")
			}
			return t, nil
		}
		for _, layout := range []string{time.RFC3339Nano, dateTimeLocalForm, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, str); err == nil {
				return t.UTC(), nil
			}
		}
		return nil, coercionErr(s.typ, raw, "a timestamp like 2024-01-31T09:30:00Z")
	}
	return nil, coercionErr(s.typ, raw, "a date")
}

func (s temporalStrategy) normalize(t time.Time) time.Time {
	t = t.UTC()
	if s.typ == Date {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return t
}

func (s temporalStrategy) Raw(typed any) any {
	t, ok := typed.(time.Time)
	if !ok {
		return typed
	}
	if s.typ == Date {
		return t.Format(DateLayout)
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (s temporalStrategy) Format(typed any, _ Locale) string {
	t, ok := typed.(time.Time)
	if !ok {
		return fmt.Sprint(typed)
	}
	if s.typ == Date {
		return t.Format(DateLayout)
	}
	return t.UTC().Format(dateTimeDisplay)
}

func (s temporalStrategy) Encode(typed any) (Slots, error) {
	t, ok := typed.(time.Time)
	if !ok {
		return Slots{}, fmt.Errorf("%s: expected time.Time, got %T", s.typ, typed)
	}
	t = s.normalize(t)
	return Slots{Datetime: &t}, nil
}

func (s temporalStrategy) Decode(slots Slots) (any, bool) {
	if slots.Datetime == nil {
		return nil, false
	}
	return s.normalize(*slots.Datetime), true
}
