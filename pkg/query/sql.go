package query

import (
	"fmt"
	"reflect"
	"strings"
)

// Dialect adapts SQL rendering to a database's JSON document column.
//
// Table and column names rendered here come from validated identifiers only;
// every value is passed as an argument.
type Dialect interface {
	// Placeholder returns the bind marker for the n-th argument (1-based)
	Placeholder(n int) string
	// FieldExpr reads a document field; textual requests a string-typed read for LIKE
	FieldExpr(field string, textual bool) string
	// NumericExpr reads a document field as a number for aggregates
	NumericExpr(field string) string
	// BindExpr wraps a placeholder so it compares against FieldExpr
	BindExpr(placeholder string, textual bool) string
	// EncodeArg converts a value into the argument bound for BindExpr
	EncodeArg(v interface{}, textual bool) (interface{}, error)
}

// Statement is rendered SQL with its arguments
type Statement struct {
	SQL  string
	Args []interface{}
}

// renderer numbers placeholders across a whole statement
type renderer struct {
	d    Dialect
	args []interface{}
}

func (r *renderer) bind(field string, v interface{}, textual bool) (string, error) {
	if field == IDField {
		r.args = append(r.args, fmt.Sprint(v))
		return r.d.Placeholder(len(r.args)), nil
	}
	arg, err := r.d.EncodeArg(v, textual)
	if err != nil {
		return "", fmt.Errorf("encode argument for %s: %w", field, err)
	}
	r.args = append(r.args, arg)
	return r.d.BindExpr(r.d.Placeholder(len(r.args)), textual), nil
}

func (r *renderer) field(field string, textual bool) string {
	if field == IDField {
		return IDField
	}
	return r.d.FieldExpr(field, textual)
}

// RenderSelect renders "SELECT <selectExpr> FROM table" with the query's filter,
// ordering and paging.
func RenderSelect(d Dialect, table, selectExpr string, q *Query) (Statement, error) {
	r := &renderer{d: d}
	var sql strings.Builder

	sql.WriteString("SELECT ")
	sql.WriteString(selectExpr)
	sql.WriteString(" FROM ")
	sql.WriteString(table)

	if q.HasWhere() {
		where, err := r.group(q.Where)
		if err != nil {
			return Statement{}, err
		}
		if where != "" {
			sql.WriteString(" WHERE ")
			sql.WriteString(where)
		}
	}

	if len(q.Orders) > 0 {
		parts := make([]string, len(q.Orders))
		for i, o := range q.Orders {
			dir := " ASC"
			if o.Desc {
				dir = " DESC"
			}
			parts[i] = r.field(o.Field, false) + dir
		}
		sql.WriteString(" ORDER BY ")
		sql.WriteString(strings.Join(parts, ", "))
	}

	limit := q.Limit
	if q.Op == OpFirst {
		limit = 1
	}
	if limit > 0 {
		sql.WriteString(fmt.Sprintf(" LIMIT %d", limit))
	}
	if q.Offset > 0 {
		if limit == 0 {
			// OFFSET without LIMIT is not portable
			sql.WriteString(" LIMIT 9223372036854775807")
		}
		sql.WriteString(fmt.Sprintf(" OFFSET %d", q.Offset))
	}

	return Statement{SQL: sql.String(), Args: r.args}, nil
}

// RenderWhere renders only the filter of q, numbering placeholders from offset+1
func RenderWhere(d Dialect, q *Query, offset int) (Statement, error) {
	r := &renderer{d: d, args: make([]interface{}, offset)}
	if !q.HasWhere() {
		return Statement{}, nil
	}
	where, err := r.group(q.Where)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: where, Args: r.args[offset:]}, nil
}

// group builds SQL for a condition group with proper logical operators
func (r *renderer) group(group *ConditionGroup) (string, error) {
	if len(group.Conditions) == 0 {
		return "", nil
	}

	var conditions []string
	for _, item := range group.Conditions {
		switch cond := item.(type) {
		case Condition:
			s, err := r.condition(cond)
			if err != nil {
				return "", err
			}
			conditions = append(conditions, s)
		case *ConditionGroup:
			if len(cond.Conditions) > 0 {
				s, err := r.group(cond)
				if err != nil {
					return "", err
				}
				if s != "" {
					conditions = append(conditions, "("+s+")")
				}
			}
		}
	}

	if len(conditions) == 0 {
		return "", nil
	}

	operator := " " + string(group.Operator) + " "
	return strings.Join(conditions, operator), nil
}

// condition builds SQL for a single condition
func (r *renderer) condition(cond Condition) (string, error) {
	switch cond.Operator {
	case IsNull, IsNotNull:
		return fmt.Sprintf("%s %s", r.field(cond.Field, false), cond.Operator), nil
	case In, NotIn:
		return r.in(cond)
	case Between, NotBetween:
		return r.between(cond)
	case Like, NotLike:
		bind, err := r.bind(cond.Field, cond.Value, true)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", r.field(cond.Field, true), cond.Operator, bind), nil
	case Equal, NotEqual, GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual:
		bind, err := r.bind(cond.Field, cond.Value, false)
		if err != nil {
			return "", err
		}
		op := string(cond.Operator)
		if cond.Operator == NotEqual {
			op = "<>"
		}
		return fmt.Sprintf("%s %s %s", r.field(cond.Field, false), op, bind), nil
	default:
		return "", fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, cond.Operator)
	}
}

// in builds IN/NOT IN conditions with placeholder expansion
func (r *renderer) in(cond Condition) (string, error) {
	values := sliceValues(cond.Value)
	if len(values) == 0 {
		// Empty set never matches for IN, always matches for NOT IN
		if cond.Operator == In {
			return "1 = 0", nil
		}
		return "1 = 1", nil
	}

	placeholders := make([]string, len(values))
	for i, v := range values {
		bind, err := r.bind(cond.Field, v, false)
		if err != nil {
			return "", err
		}
		placeholders[i] = bind
	}

	return fmt.Sprintf("%s %s (%s)", r.field(cond.Field, false), cond.Operator, strings.Join(placeholders, ", ")), nil
}

// between builds BETWEEN/NOT BETWEEN conditions; anything but two values never matches
func (r *renderer) between(cond Condition) (string, error) {
	values := sliceValues(cond.Value)
	if len(values) != 2 {
		return "1 = 0", nil
	}
	lo, err := r.bind(cond.Field, values[0], false)
	if err != nil {
		return "", err
	}
	hi, err := r.bind(cond.Field, values[1], false)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s AND %s", r.field(cond.Field, false), cond.Operator, lo, hi), nil
}

// sliceValues flattens a slice or array value; a scalar becomes a one-element list
func sliceValues(value interface{}) []interface{} {
	if value == nil {
		return nil
	}
	v := reflect.ValueOf(value)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return []interface{}{value}
	}
	out := make([]interface{}, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[i] = v.Index(i).Interface()
	}
	return out
}
