package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"golang.org/x/text/currency"

	"fieldengine/internal/fieldtype"
	"fieldengine/internal/metadata"
)

// RuleEvaluator checks typed values against a definition's validation rules.
// Compiled patterns and expressions are cached by source text.
type RuleEvaluator struct {
	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
	programs map[string]*vm.Program
}

func NewRuleEvaluator() *RuleEvaluator {
	return &RuleEvaluator{
		patterns: make(map[string]*regexp.Regexp),
		programs: make(map[string]*vm.Program),
	}
}

// CompileExpression compiles an expression string into an expr-lang program.
func CompileExpression(expression string) (*vm.Program, error) {
	prog, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	return prog, nil
}

func (r *RuleEvaluator) pattern(src string) (*regexp.Regexp, error) {
	r.mu.RLock()
	re, ok := r.patterns[src]
	r.mu.RUnlock()
	if ok {
		return re, nil
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.patterns[src] = re
	r.mu.Unlock()
	return re, nil
}

func (r *RuleEvaluator) program(src string) (*vm.Program, error) {
	r.mu.RLock()
	prog, ok := r.programs[src]
	r.mu.RUnlock()
	if ok {
		return prog, nil
	}
	prog, err := CompileExpression(src)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.programs[src] = prog
	r.mu.Unlock()
	return prog, nil
}

// CheckRules validates the rules themselves, for use when a definition is
// created or updated.
func (r *RuleEvaluator) CheckRules(ft fieldtype.Type, rules metadata.ValidationRules) []ErrorDetail {
	var details []ErrorDetail
	add := func(rule, msg string) {
		details = append(details, ErrorDetail{Field: "validation_rules", Rule: rule, Message: msg})
	}
	if rules.Min != nil && rules.Max != nil && *rules.Min > *rules.Max {
		add("min", "min must not exceed max")
	}
	if rules.MinLength != nil && *rules.MinLength < 0 {
		add("min_length", "min_length must not be negative")
	}
	if rules.MinLength != nil && rules.MaxLength != nil && *rules.MinLength > *rules.MaxLength {
		add("min_length", "min_length must not exceed max_length")
	}
	if rules.Pattern != "" {
		if _, err := r.pattern(rules.Pattern); err != nil {
			add("pattern", fmt.Sprintf("invalid pattern: %v", err))
		}
	}
	for _, bound := range [][2]string{{"min_date", rules.MinDate}, {"max_date", rules.MaxDate}} {
		if bound[1] == "" {
			continue
		}
		if _, err := time.Parse(fieldtype.DateLayout, bound[1]); err != nil {
			add(bound[0], fmt.Sprintf("%s must be a date like 2024-01-31", bound[0]))
		}
	}
	if rules.Expression != "" {
		if _, err := r.program(rules.Expression); err != nil {
			add("expression", err.Error())
		}
	}
	if rules.Currency != "" {
		if ft != fieldtype.Currency {
			add("currency", "currency applies only to currency fields")
		} else if _, err := currency.ParseISO(rules.Currency); err != nil {
			add("currency", fmt.Sprintf("unknown currency code %s", rules.Currency))
		}
	}
	return details
}

// Check runs every rule of def against a non-nil typed value and returns the
// first violation, or nil when the value passes.
func (r *RuleEvaluator) Check(def *metadata.FieldDefinition, typed any) *FieldError {
	rules := def.ValidationRules
	fail := func(rule, fallback string) *FieldError {
		msg := rules.Message
		if msg == "" {
			msg = fallback
		}
		return &FieldError{Field: def.Name, Kind: KindValidation, Rule: rule, Message: msg}
	}

	if def.FieldType.IsSelect() && len(def.SelectOptions) > 0 {
		for _, opt := range selected(typed) {
			if !def.HasOption(opt) {
				return fail("options", fmt.Sprintf("%s is not an allowed option for %s", opt, def.Label))
			}
		}
	}

	if num, ok := fieldtype.ToFloat64(typed); ok {
		if rules.Min != nil && num < *rules.Min {
			return fail("min", fmt.Sprintf("%s must be at least %s", def.Label, formatNum(*rules.Min)))
		}
		if rules.Max != nil && num > *rules.Max {
			return fail("max", fmt.Sprintf("%s must be at most %s", def.Label, formatNum(*rules.Max)))
		}
	}

	if n, unit, ok := length(typed); ok {
		if rules.MinLength != nil && n < *rules.MinLength {
			return fail("min_length", fmt.Sprintf("%s must have at least %d %s", def.Label, *rules.MinLength, unit))
		}
		if rules.MaxLength != nil && n > *rules.MaxLength {
			return fail("max_length", fmt.Sprintf("%s must have at most %d %s", def.Label, *rules.MaxLength, unit))
		}
	}

	if s, ok := typed.(string); ok && rules.Pattern != "" {
		re, err := r.pattern(rules.Pattern)
		if err != nil || !re.MatchString(s) {
			return fail("pattern", fmt.Sprintf("%s has an invalid format", def.Label))
		}
	}

	if t, ok := typed.(time.Time); ok {
		if bound, err := time.Parse(fieldtype.DateLayout, rules.MinDate); err == nil && t.Before(bound) {
			return fail("min_date", fmt.Sprintf("%s must be on or after %s", def.Label, rules.MinDate))
		}
		if bound, err := time.Parse(fieldtype.DateLayout, rules.MaxDate); err == nil && t.After(bound.Add(24*time.Hour-time.Nanosecond)) {
			return fail("max_date", fmt.Sprintf("%s must be on or before %s", def.Label, rules.MaxDate))
		}
	}

	if rules.Expression != "" {
		prog, err := r.program(rules.Expression)
		if err != nil {
			return &FieldError{Field: def.Name, Kind: KindValidation, Rule: "expression", Message: fmt.Sprintf("compile error: %v", err)}
		}
		env := map[string]any{
			"value":       typed,
			"field":       def.Name,
			"entity_type": string(def.EntityType),
		}
		result, err := expr.Run(prog, env)
		if err != nil {
			return &FieldError{Field: def.Name, Kind: KindValidation, Rule: "expression", Message: fmt.Sprintf("rule evaluation error: %v", err)}
		}
		if violated, ok := result.(bool); ok && violated {
			return fail("expression", fmt.Sprintf("%s is invalid", def.Label))
		}
	}

	return nil
}

func selected(typed any) []string {
	switch v := typed.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	}
	return nil
}

func length(typed any) (int, string, bool) {
	switch v := typed.(type) {
	case string:
		return utf8.RuneCountInString(v), "characters", true
	case []string:
		return len(v), "selections", true
	}
	return 0, "", false
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
