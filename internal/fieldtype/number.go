package fieldtype

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

type integerStrategy struct{}

func (integerStrategy) Type() Type { return NumberInteger }
func (integerStrategy) Slot() Slot { return SlotInteger }
func (integerStrategy) Control() Control {
	return Control{Widget: "input", InputType: "number", Step: "1"}
}

func (s integerStrategy) Coerce(raw any) (any, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.Abs(v) >= 1<<63 {
			return nil, coercionErr(NumberInteger, raw, "a whole number")
		}
		return int64(v), nil
	case json.Number:
		return s.Coerce(v.String())
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, coercionErr(NumberInteger, raw, "a whole number")
		}
		return n, nil
	}
	return nil, coercionErr(NumberInteger, raw, "a whole number")
}

func (integerStrategy) Raw(typed any) any { return typed }

func (integerStrategy) Format(typed any, loc Locale) string {
	n, ok := typed.(int64)
	if !ok {
		return fmt.Sprint(typed)
	}
	return message.NewPrinter(loc.Language).Sprint(number.Decimal(n))
}

func (integerStrategy) Encode(typed any) (Slots, error) {
	n, ok := typed.(int64)
	if !ok {
		return Slots{}, fmt.Errorf("%s: expected int64, got %T", NumberInteger, typed)
	}
	return Slots{Integer: &n}, nil
}

func (integerStrategy) Decode(s Slots) (any, bool) {
	if s.Integer == nil {
		return nil, false
	}
	return *s.Integer, true
}

// decimalStrategy covers number_decimal, currency and percentage.
type decimalStrategy struct {
	typ     Type
	control Control
}

func newDecimal(t Type, c Control) decimalStrategy {
	return decimalStrategy{typ: t, control: c}
}

func (s decimalStrategy) Type() Type       { return s.typ }
func (s decimalStrategy) Slot() Slot       { return SlotDecimal }
func (s decimalStrategy) Control() Control { return s.control }

func (s decimalStrategy) Coerce(raw any) (any, error) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		return s.Coerce(v.String())
	case string:
		str := strings.TrimSpace(v)
		switch s.typ {
		case Percentage:
			str = strings.TrimSpace(strings.TrimSuffix(str, "%"))
		case Currency:
			str = strings.ReplaceAll(str, ",", "")
		}
		parsed, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return nil, coercionErr(s.typ, raw, "a number")
		}
		f = parsed
	default:
		return nil, coercionErr(s.typ, raw, "a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, coercionErr(s.typ, raw, "a finite number")
	}
	return f, nil
}

func (decimalStrategy) Raw(typed any) any { return typed }

func (s decimalStrategy) Format(typed any, loc Locale) string {
	f, ok := typed.(float64)
	if !ok {
		return fmt.Sprint(typed)
	}
	p := message.NewPrinter(loc.Language)
	switch s.typ {
	case Percentage:
		return strconv.FormatFloat(f, 'f', -1, 64) + "%"
	case Currency:
		amount := p.Sprint(number.Decimal(f, number.Scale(2)))
		unit, err := currency.ParseISO(loc.Currency)
		if err != nil {
			return amount
		}
		return unit.String() + " " + amount
	}
	return p.Sprint(number.Decimal(f, number.MaxFractionDigits(6)))
}

func (s decimalStrategy) Encode(typed any) (Slots, error) {
	f, ok := typed.(float64)
	if !ok {
		return Slots{}, fmt.Errorf("%s: expected float64, got %T", s.typ, typed)
	}
	return Slots{Decimal: &f}, nil
}

func (decimalStrategy) Decode(s Slots) (any, bool) {
	if s.Decimal == nil {
		return nil, false
	}
	return *s.Decimal, true
}

// ToFloat64 converts typed numeric values for range checks.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
