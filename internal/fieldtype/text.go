package fieldtype

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// textStrategy covers every type stored in the string slot. normalize
// validates and canonicalizes the trimmed input.
type textStrategy struct {
	typ       Type
	control   Control
	normalize func(t Type, s string) (string, error)
}

func newText(t Type, c Control, normalize func(Type, string) (string, error)) textStrategy {
	return textStrategy{typ: t, control: c, normalize: normalize}
}

func (s textStrategy) Type() Type       { return s.typ }
func (s textStrategy) Slot() Slot       { return SlotString }
func (s textStrategy) Control() Control { return s.control }

func (s textStrategy) Coerce(raw any) (any, error) {
	var str string
	switch v := raw.(type) {
	case string:
		str = strings.TrimSpace(v)
	case int, int64, float64, bool:
		str = fmt.Sprint(v)
	case json.Number:
		str = v.String()
	default:
		return nil, coercionErr(s.typ, raw, "text")
	}
	if s.normalize == nil {
		return str, nil
	}
	return s.normalize(s.typ, str)
}

func (s textStrategy) Raw(typed any) any { return typed }

func (s textStrategy) Format(typed any, _ Locale) string {
	str, _ := typed.(string)
	return str
}

func (s textStrategy) Encode(typed any) (Slots, error) {
	str, ok := typed.(string)
	if !ok {
		return Slots{}, fmt.Errorf("%s: expected string, got %T", s.typ, typed)
	}
	return Slots{String: &str}, nil
}

func (s textStrategy) Decode(slots Slots) (any, bool) {
	if slots.String == nil {
		return nil, false
	}
	return *slots.String, true
}

func normalizeEmail(t Type, s string) (string, error) {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", coercionErr(t, s, "an email address like name@example.com")
	}
	return strings.ToLower(s), nil
}

var phonePattern = regexp.MustCompile(`^\+?[0-9 ().\-]+$`)

func normalizePhone(t Type, s string) (string, error) {
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if !phonePattern.MatchString(s) || digits < 7 || digits > 15 {
		return "", coercionErr(t, s, "a phone number of 7 to 15 digits")
	}
	return s, nil
}

func normalizeURL(t Type, s string) (string, error) {
	u, err := url.ParseRequestURI(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", coercionErr(t, s, "an http or https URL")
	}
	return u.String(), nil
}

func normalizeUUID(t Type, s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", coercionErr(t, s, "a UUID")
	}
	return id.String(), nil
}

func normalizeClock(t Type, s string) (string, error) {
	for _, layout := range []string{"15:04:05", "15:04", "3:04 PM", "3:04PM"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.Format("15:04:05"), nil
		}
	}
	return "", coercionErr(t, s, "a time of day like 14:30")
}
