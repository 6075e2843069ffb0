package filter

import (
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// SQLCondition represents a SQL WHERE clause fragment with parameters.
type SQLCondition struct {
	// Clause is the SQL WHERE clause (e.g., "status = ?").
	Clause string
	// Params are the positional parameters for the clause.
	Params []any
}

// Placeholder renders the n-th (1-based) bind parameter for a SQL dialect.
type Placeholder func(n int) string

// QuestionPlaceholder renders "?" placeholders.
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder renders "$n" placeholders.
func DollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// ErrNotTranslatable reports a filter that references fields without a column
// mapping or uses operators with no SQL form. Callers fall back to Match.
var ErrNotTranslatable = fmt.Errorf("filter is not translatable to sql")

// SQL translates the filter into a WHERE fragment over columns, which maps
// filter fields to column names. Parameters are numbered from offset+1.
func (f *Filter) SQL(columns map[string]string, placeholder Placeholder, offset int) (SQLCondition, error) {
	if f == nil {
		return SQLCondition{}, nil
	}
	t := translator{columns: columns, placeholder: placeholder, next: offset}
	return t.translateExpr(f.root)
}

type translator struct {
	columns     map[string]string
	placeholder Placeholder
	next        int
}

func (t *translator) bind() string {
	t.next++
	return t.placeholder(t.next)
}

func (t *translator) translateExpr(e *expr.Expr) (SQLCondition, error) {
	if e == nil {
		return SQLCondition{}, nil
	}
	call, ok := e.ExprKind.(*expr.Expr_CallExpr)
	if !ok {
		return SQLCondition{}, fmt.Errorf("unsupported expression type: %T", e.ExprKind)
	}
	args := call.CallExpr.Args
	switch fn := call.CallExpr.Function; fn {
	case filtering.FunctionAnd, filtering.FunctionFuzzyAnd, "_&&_":
		return t.translateLogical(args, "AND")
	case filtering.FunctionOr, "_||_":
		return t.translateLogical(args, "OR")
	case filtering.FunctionNot:
		if len(args) != 1 {
			return SQLCondition{}, fmt.Errorf("NOT requires 1 argument")
		}
		inner, err := t.translateExpr(args[0])
		if err != nil {
			return SQLCondition{}, err
		}
		return SQLCondition{Clause: fmt.Sprintf("(NOT %s)", inner.Clause), Params: inner.Params}, nil
	default:
		op, ok := comparisonOps[fn]
		if !ok {
			return SQLCondition{}, fmt.Errorf("%w: function %s", ErrNotTranslatable, fn)
		}
		return t.translateComparison(args, op)
	}
}

func (t *translator) translateLogical(args []*expr.Expr, op string) (SQLCondition, error) {
	if len(args) != 2 {
		return SQLCondition{}, fmt.Errorf("%s requires 2 arguments", op)
	}
	left, err := t.translateExpr(args[0])
	if err != nil {
		return SQLCondition{}, err
	}
	right, err := t.translateExpr(args[1])
	if err != nil {
		return SQLCondition{}, err
	}
	return SQLCondition{
		Clause: fmt.Sprintf("(%s %s %s)", left.Clause, op, right.Clause),
		Params: append(left.Params, right.Params...),
	}, nil
}

func (t *translator) translateComparison(args []*expr.Expr, op string) (SQLCondition, error) {
	c, err := parseComparison(args, op)
	if err != nil {
		return SQLCondition{}, err
	}
	column, ok := t.columns[c.field]
	if !ok {
		return SQLCondition{}, fmt.Errorf("%w: field %s", ErrNotTranslatable, c.field)
	}
	value := c.value
	switch v := value.(type) {
	case time.Time:
		value = v.UTC().Format(SQLTimeLayout)
	case bool:
		if v {
			value = 1
		} else {
			value = 0
		}
	}
	switch c.kind {
	case FieldString:
		column = "COALESCE(" + column + ", '')"
	case FieldInt, FieldFloat, FieldBool:
		column = "COALESCE(" + column + ", 0)"
	}
	clause := strings.Join([]string{column, op, t.bind()}, " ")
	if c.kind == FieldTimestamp && op == "!=" {
		clause = fmt.Sprintf("(%s IS NULL OR %s)", column, clause)
	}
	return SQLCondition{Clause: clause, Params: []any{value}}, nil
}
