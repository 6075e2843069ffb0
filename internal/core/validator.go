package core

import (
	"fmt"
	"reflect"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/spf13/cast"
)

// RuleType names the declared type of a validated field.
type RuleType string

// Supported rule types. String, number, boolean and date values are coerced;
// arrays and objects are only shape-checked.
const (
	TypeAny     RuleType = ""
	TypeString  RuleType = "string"
	TypeNumber  RuleType = "number"
	TypeBoolean RuleType = "boolean"
	TypeDate    RuleType = "date"
	TypeArray   RuleType = "array"
	TypeObject  RuleType = "object"
)

// FieldRule constrains a single record field.
type FieldRule struct {
	Type     RuleType
	Required bool
	Enum     []any
	// Min and Max bound numbers by value and strings or arrays by length.
	Min *float64
	Max *float64
}

// RuleSet maps field names to their rules.
type RuleSet map[string]FieldRule

// ValidationResult carries every violation found and the record with coerced values.
type ValidationResult struct {
	OK         bool
	Violations []Violation
	Record     Record
}

// Float returns a pointer to v, for FieldRule bounds.
func Float(v float64) *float64 { return &v }

// DefaultItemRules requires the name, category and status of an item.
func DefaultItemRules() RuleSet {
	return RuleSet{
		"name":     {Type: TypeString, Required: true, Min: Float(1)},
		"category": {Type: TypeString, Required: true},
		"status":   {Type: TypeString, Required: true},
	}
}

// FieldValidator checks a record against a rule set. It never mutates its input.
type FieldValidator struct{}

// Validate returns every violation at once. Required checks form the first
// pass; type, bound and enum checks the second, each in field order. A rule
// with an unknown type is reported whether or not its field is present.
func (FieldValidator) Validate(rec Record, rules RuleSet) ValidationResult {
	out := rec.Clone()
	if out == nil {
		out = Record{}
	}
	fields := make([]string, 0, len(rules))
	for field := range rules {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var violations []Violation
	for _, field := range fields {
		value, present := out[field]
		if rules[field].Required && isMissing(value, present) {
			violations = append(violations, Violation{Field: field, Reason: "is required"})
		}
	}
	for _, field := range fields {
		rule := rules[field]
		if !knownType(rule.Type) {
			violations = append(violations, Violation{Field: field, Reason: fmt.Sprintf("unknown rule type %q", rule.Type)})
			continue
		}
		value, present := out[field]
		if isMissing(value, present) {
			continue
		}
		coerced, reason := coerce(rule.Type, value)
		if reason != "" {
			violations = append(violations, Violation{Field: field, Reason: reason})
			continue
		}
		if reason := checkBounds(rule, coerced); reason != "" {
			violations = append(violations, Violation{Field: field, Reason: reason})
		}
		if len(rule.Enum) > 0 && !inEnum(rule.Type, coerced, rule.Enum) {
			violations = append(violations, Violation{Field: field, Reason: fmt.Sprintf("must be one of %v", rule.Enum)})
		}
		out[field] = coerced
	}
	return ValidationResult{OK: len(violations) == 0, Violations: violations, Record: out}
}

func knownType(t RuleType) bool {
	switch t {
	case TypeAny, TypeString, TypeNumber, TypeBoolean, TypeDate, TypeArray, TypeObject:
		return true
	}
	return false
}

func isMissing(value any, present bool) bool {
	if !present || value == nil {
		return true
	}
	if s, ok := value.(string); ok && s == "" {
		return true
	}
	return false
}

func coerce(t RuleType, value any) (any, string) {
	switch t {
	case TypeAny:
		return value, ""
	case TypeString:
		switch value.(type) {
		case map[string]any, []any, []string:
			return nil, "expected string"
		}
		s, err := cast.ToStringE(value)
		if err != nil {
			return nil, "expected string"
		}
		return s, ""
	case TypeNumber:
		if _, ok := value.(bool); ok {
			return nil, "expected number"
		}
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return nil, "expected number"
		}
		return f, ""
	case TypeBoolean:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return nil, "expected boolean"
		}
		return b, ""
	case TypeDate:
		if _, ok := value.(bool); ok {
			return nil, "expected date"
		}
		d, err := cast.ToTimeE(value)
		if err != nil {
			return nil, "expected date"
		}
		return d.UTC(), ""
	case TypeArray:
		if !isArray(value) {
			return nil, "expected array"
		}
		return value, ""
	case TypeObject:
		if _, ok := value.(map[string]any); !ok {
			return nil, "expected object"
		}
		return value, ""
	default:
		return nil, fmt.Sprintf("unknown rule type %q", t)
	}
}

func isArray(value any) bool {
	if value == nil {
		return false
	}
	k := reflect.TypeOf(value).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func checkBounds(rule FieldRule, value any) string {
	if rule.Min == nil && rule.Max == nil {
		return ""
	}
	var (
		measure float64
		unit    string
	)
	switch v := value.(type) {
	case float64:
		measure = v
	case string:
		measure = float64(utf8.RuneCountInString(v))
		unit = " characters"
	default:
		if !isArray(v) {
			return ""
		}
		measure = float64(reflect.ValueOf(v).Len())
		unit = " elements"
	}
	if rule.Min != nil && measure < *rule.Min {
		return fmt.Sprintf("must be at least %v%s", *rule.Min, unit)
	}
	if rule.Max != nil && measure > *rule.Max {
		return fmt.Sprintf("must be at most %v%s", *rule.Max, unit)
	}
	return ""
}

func inEnum(t RuleType, value any, enum []any) bool {
	for _, candidate := range enum {
		c, reason := coerce(t, candidate)
		if reason != "" {
			continue
		}
		if a, ok := value.(time.Time); ok {
			if b, ok := c.(time.Time); ok && a.Equal(b) {
				return true
			}
			continue
		}
		if reflect.DeepEqual(value, c) {
			return true
		}
	}
	return false
}
