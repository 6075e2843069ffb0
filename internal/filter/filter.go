// Package filter provides AIP-160 filter parsing for item listings, with
// in-memory evaluation and SQL translation for indexed columns.
package filter

import (
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"itemcore/pkg/domain"
)

// FieldType describes a supported filter field type.
type FieldType string

const (
	FieldString    FieldType = "string"
	FieldInt       FieldType = "int"
	FieldFloat     FieldType = "float"
	FieldBool      FieldType = "bool"
	FieldTimestamp FieldType = "timestamp"
	FieldList      FieldType = "list"
)

// SQLTimeLayout is the fixed-width UTC layout timestamps are stored and
// compared in, so that lexical order matches chronological order.
const SQLTimeLayout = "2006-01-02T15:04:05.000000000Z"

// ItemFields declares the filterable item fields and their types.
var ItemFields = map[string]FieldType{
	"id":               FieldString,
	"name":             FieldString,
	"description":      FieldString,
	"category":         FieldString,
	"priority":         FieldString,
	"status":           FieldString,
	"assignee":         FieldString,
	"createdBy":        FieldString,
	"workflowStage":    FieldString,
	"location":         FieldString,
	"templateId":       FieldString,
	"parentItemId":     FieldString,
	"version":          FieldInt,
	"estimatedHours":   FieldFloat,
	"budget":           FieldFloat,
	"approvalRequired": FieldBool,
	"dueDate":          FieldTimestamp,
	"createdAt":        FieldTimestamp,
	"updatedAt":        FieldTimestamp,
	"tags":             FieldList,
	"dependencies":     FieldList,
	"linkedItems":      FieldList,
	"externalRefs":     FieldList,
}

// Filter is a parsed, type-checked filter expression.
type Filter struct {
	source string
	root   *expr.Expr
	match  predicate
}

type predicate func(rec domain.Record) bool

// Parse parses an AIP-160 filter over ItemFields. An empty expression
// returns a nil filter, which selects everything.
func Parse(filterStr string) (*Filter, error) {
	if strings.TrimSpace(filterStr) == "" {
		return nil, nil
	}
	decls, err := declarations(ItemFields)
	if err != nil {
		return nil, fmt.Errorf("create declarations: %w", err)
	}
	parsed, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return nil, fmt.Errorf("parse filter: %w", err)
	}
	root := parsed.CheckedExpr.GetExpr()
	match, err := compile(root)
	if err != nil {
		return nil, err
	}
	return &Filter{source: filterStr, root: root, match: match}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.source
}

// Match reports whether the record satisfies the filter.
func (f *Filter) Match(rec domain.Record) bool {
	if f == nil || f.match == nil {
		return true
	}
	return f.match(rec)
}

func declarations(fields map[string]FieldType) (*filtering.Declarations, error) {
	decls := []filtering.DeclarationOption{
		filtering.DeclareStandardFunctions(),
		// Boolean literals parse as identifiers.
		filtering.DeclareIdent("true", filtering.TypeBool),
		filtering.DeclareIdent("false", filtering.TypeBool),
	}
	for name, kind := range fields {
		switch kind {
		case FieldString:
			decls = append(decls, filtering.DeclareIdent(name, filtering.TypeString))
		case FieldInt:
			decls = append(decls, filtering.DeclareIdent(name, filtering.TypeInt))
		case FieldFloat:
			decls = append(decls, filtering.DeclareIdent(name, filtering.TypeFloat))
		case FieldBool:
			decls = append(decls, filtering.DeclareIdent(name, filtering.TypeBool))
		case FieldTimestamp:
			decls = append(decls, filtering.DeclareIdent(name, filtering.TypeTimestamp))
		case FieldList:
			decls = append(decls, filtering.DeclareIdent(name, filtering.TypeList(filtering.TypeString)))
		default:
			return nil, fmt.Errorf("unsupported field type for %s", name)
		}
	}
	return filtering.NewDeclarations(decls...)
}

func compile(e *expr.Expr) (predicate, error) {
	if e == nil {
		return func(domain.Record) bool { return true }, nil
	}
	call, ok := e.ExprKind.(*expr.Expr_CallExpr)
	if !ok {
		return nil, fmt.Errorf("unsupported expression type: %T", e.ExprKind)
	}
	args := call.CallExpr.Args
	switch fn := call.CallExpr.Function; fn {
	case filtering.FunctionAnd, filtering.FunctionFuzzyAnd, "_&&_":
		return compileBinary(args, func(l, r bool) bool { return l && r })
	case filtering.FunctionOr, "_||_":
		return compileBinary(args, func(l, r bool) bool { return l || r })
	case filtering.FunctionNot:
		if len(args) != 1 {
			return nil, fmt.Errorf("NOT requires 1 argument")
		}
		inner, err := compile(args[0])
		if err != nil {
			return nil, err
		}
		return func(rec domain.Record) bool { return !inner(rec) }, nil
	case filtering.FunctionHas:
		return compileHas(args)
	default:
		op, ok := comparisonOps[fn]
		if !ok {
			return nil, fmt.Errorf("unsupported function: %s", fn)
		}
		return compileComparison(args, op)
	}
}

func compileBinary(args []*expr.Expr, combine func(l, r bool) bool) (predicate, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("logical operator requires 2 arguments")
	}
	left, err := compile(args[0])
	if err != nil {
		return nil, err
	}
	right, err := compile(args[1])
	if err != nil {
		return nil, err
	}
	return func(rec domain.Record) bool { return combine(left(rec), right(rec)) }, nil
}

var comparisonOps = map[string]string{
	filtering.FunctionEquals:        "=",
	"_==_":                          "=",
	filtering.FunctionNotEquals:     "!=",
	"_!=_":                          "!=",
	filtering.FunctionLessThan:      "<",
	"_<_":                           "<",
	filtering.FunctionLessEquals:    "<=",
	"_<=_":                          "<=",
	filtering.FunctionGreaterThan:   ">",
	"_>_":                           ">",
	filtering.FunctionGreaterEquals: ">=",
	"_>=_":                          ">=",
}

type comparison struct {
	field string
	kind  FieldType
	op    string
	value any
}

func parseComparison(args []*expr.Expr, op string) (comparison, error) {
	if len(args) != 2 {
		return comparison{}, fmt.Errorf("comparison requires 2 arguments")
	}
	field, err := extractFieldName(args[0])
	if err != nil {
		return comparison{}, err
	}
	kind, ok := ItemFields[field]
	if !ok {
		return comparison{}, fmt.Errorf("unknown field: %s", field)
	}
	value, err := extractValue(args[1])
	if err != nil {
		return comparison{}, err
	}
	value, err = normalize(kind, value)
	if err != nil {
		return comparison{}, fmt.Errorf("field %s: %w", field, err)
	}
	if kind == FieldList || (kind == FieldBool && op != "=" && op != "!=") {
		return comparison{}, fmt.Errorf("operator %s not supported on field %s", op, field)
	}
	return comparison{field: field, kind: kind, op: op, value: value}, nil
}

func compileComparison(args []*expr.Expr, op string) (predicate, error) {
	c, err := parseComparison(args, op)
	if err != nil {
		return nil, err
	}
	return func(rec domain.Record) bool {
		actual, ok := recordValue(c.kind, rec[c.field])
		if !ok {
			return c.op == "!="
		}
		cmp, ok := compareValues(actual, c.value)
		if !ok {
			return false
		}
		switch c.op {
		case "=":
			return cmp == 0
		case "!=":
			return cmp != 0
		case "<":
			return cmp < 0
		case "<=":
			return cmp <= 0
		case ">":
			return cmp > 0
		default:
			return cmp >= 0
		}
	}, nil
}

// compileHas supports list membership and case-insensitive substring search.
func compileHas(args []*expr.Expr) (predicate, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("has requires 2 arguments")
	}
	field, err := extractFieldName(args[0])
	if err != nil {
		return nil, err
	}
	kind, ok := ItemFields[field]
	if !ok {
		return nil, fmt.Errorf("unknown field: %s", field)
	}
	raw, err := extractValue(args[1])
	if err != nil {
		return nil, err
	}
	needle, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("has on %s requires a string value", field)
	}
	switch kind {
	case FieldList:
		return func(rec domain.Record) bool {
			for _, v := range listValue(rec[field]) {
				if v == needle || needle == "*" {
					return true
				}
			}
			return false
		}, nil
	case FieldString:
		lower := strings.ToLower(needle)
		return func(rec domain.Record) bool {
			s, _ := rec[field].(string)
			if needle == "*" {
				return s != ""
			}
			return strings.Contains(strings.ToLower(s), lower)
		}, nil
	default:
		return nil, fmt.Errorf("has not supported on field %s", field)
	}
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.Name, nil
	default:
		return "", fmt.Errorf("expected identifier, got %T", kind)
	}
}

func extractValue(e *expr.Expr) (any, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_ConstExpr:
		return extractConstValue(kind.ConstExpr)
	case *expr.Expr_IdentExpr:
		switch kind.IdentExpr.Name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("expected constant, got identifier %s", kind.IdentExpr.Name)
	case *expr.Expr_CallExpr:
		if kind.CallExpr.Function == filtering.FunctionTimestamp && len(kind.CallExpr.Args) == 1 {
			return extractValue(kind.CallExpr.Args[0])
		}
		return nil, fmt.Errorf("unsupported function in value position: %s", kind.CallExpr.Function)
	default:
		return nil, fmt.Errorf("expected constant or timestamp, got %T", kind)
	}
}

func extractConstValue(c *expr.Constant) (any, error) {
	if c == nil {
		return nil, fmt.Errorf("nil constant")
	}
	switch kind := c.ConstantKind.(type) {
	case *expr.Constant_StringValue:
		return kind.StringValue, nil
	case *expr.Constant_Int64Value:
		return kind.Int64Value, nil
	case *expr.Constant_Uint64Value:
		return int64(kind.Uint64Value), nil
	case *expr.Constant_DoubleValue:
		return kind.DoubleValue, nil
	case *expr.Constant_BoolValue:
		return kind.BoolValue, nil
	default:
		return nil, fmt.Errorf("unsupported constant type: %T", kind)
	}
}

// normalize converts a literal to the comparison representation of kind:
// float64 for numbers and UTC time.Time for timestamps.
func normalize(kind FieldType, value any) (any, error) {
	switch kind {
	case FieldInt, FieldFloat:
		switch v := value.(type) {
		case int64:
			return float64(v), nil
		case float64:
			return v, nil
		}
		return nil, fmt.Errorf("expected number, got %T", value)
	case FieldTimestamp:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected timestamp string, got %T", value)
		}
		return parseTime(s)
	default:
		return value, nil
	}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp format: %s", s)
	}
	return t.UTC(), nil
}

// recordValue converts a record value to its comparison representation.
// Absent timestamps are reported as missing; other absent scalars compare
// as their zero value since empty fields are omitted from records.
func recordValue(kind FieldType, raw any) (any, bool) {
	switch kind {
	case FieldString:
		s, _ := raw.(string)
		return s, true
	case FieldInt, FieldFloat:
		switch v := raw.(type) {
		case float64:
			return v, true
		case int64:
			return float64(v), true
		case int:
			return float64(v), true
		case nil:
			return float64(0), true
		}
		return nil, false
	case FieldBool:
		b, _ := raw.(bool)
		return b, true
	case FieldTimestamp:
		switch v := raw.(type) {
		case string:
			t, err := parseTime(v)
			return t, err == nil
		case time.Time:
			return v.UTC(), true
		}
		return nil, false
	default:
		return nil, false
	}
}

func compareValues(a, b any) (int, bool) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if av == bv {
			return 0, true
		}
		return 1, true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	}
	return 0, false
}

func listValue(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			if s, ok := elem.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
