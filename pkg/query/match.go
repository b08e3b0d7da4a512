package query

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Match reports whether doc satisfies every condition of the group.
// A nil or empty group matches everything.
func Match(doc map[string]interface{}, group *ConditionGroup) bool {
	if group == nil || len(group.Conditions) == 0 {
		return true
	}

	matched := 0
	for _, item := range group.Conditions {
		var ok bool
		switch cond := item.(type) {
		case Condition:
			ok = matchCondition(doc, cond)
		case *ConditionGroup:
			if len(cond.Conditions) == 0 {
				continue
			}
			ok = Match(doc, cond)
		default:
			continue
		}
		if group.Operator == Or && ok {
			return true
		}
		if group.Operator != Or && !ok {
			return false
		}
		matched++
	}

	if group.Operator == Or {
		// an OR group with no effective conditions matches
		return matched == 0
	}
	return true
}

func matchCondition(doc map[string]interface{}, cond Condition) bool {
	v, present := doc[cond.Field]
	if present && v == nil {
		present = false
	}

	switch cond.Operator {
	case IsNull:
		return !present
	case IsNotNull:
		return present
	}

	// SQL semantics: comparisons against a missing field are unknown
	if !present {
		return false
	}

	switch cond.Operator {
	case Equal:
		return Compare(v, cond.Value) == 0
	case NotEqual:
		return Compare(v, cond.Value) != 0
	case GreaterThan:
		return Compare(v, cond.Value) > 0
	case GreaterThanOrEqual:
		return Compare(v, cond.Value) >= 0
	case LessThan:
		return Compare(v, cond.Value) < 0
	case LessThanOrEqual:
		return Compare(v, cond.Value) <= 0
	case Like:
		return like(v, cond.Value)
	case NotLike:
		return !like(v, cond.Value)
	case In, NotIn:
		found := false
		for _, candidate := range sliceValues(cond.Value) {
			if Compare(v, candidate) == 0 {
				found = true
				break
			}
		}
		if cond.Operator == In {
			return found
		}
		return !found
	case Between, NotBetween:
		values := sliceValues(cond.Value)
		if len(values) != 2 {
			return false
		}
		in := Compare(v, values[0]) >= 0 && Compare(v, values[1]) <= 0
		if cond.Operator == Between {
			return in
		}
		return !in
	}
	return false
}

// Compare orders two document values: nil sorts first, then booleans, numbers,
// strings and times. Values of different kinds order by kind; values of the same
// kind order naturally. Anything else compares by its formatted string.
func Compare(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case rankNil:
		return 0
	case rankBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case rankNumber:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	case rankTime:
		ta, tb := toTime(a), toTime(b)
		return ta.Compare(tb)
	default:
		return strings.Compare(toString(a), toString(b))
	}
}

const (
	rankNil = iota
	rankBool
	rankNumber
	rankString
	rankTime
	rankOther
)

func rank(v interface{}) int {
	if v == nil {
		return rankNil
	}
	switch t := v.(type) {
	case bool:
		return rankBool
	case string:
		return rankString
	case time.Time, *time.Time:
		if p, ok := t.(*time.Time); ok && p == nil {
			return rankNil
		}
		return rankTime
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return rankNumber
	case reflect.String:
		return rankString
	case reflect.Bool:
		return rankBool
	case reflect.Ptr:
		if rv.IsNil() {
			return rankNil
		}
		return rank(rv.Elem().Interface())
	}
	return rankOther
}

func toFloat(v interface{}) (float64, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return 0, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// ToFloat converts a numeric document value to float64; ok is false otherwise
func ToFloat(v interface{}) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return toFloat(v)
}

func toTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		return *t
	}
	return time.Time{}
}

func toString(v interface{}) string {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.String {
		return rv.String()
	}
	return fmt.Sprint(rv.Interface())
}

var likeCache sync.Map // pattern -> *regexp.Regexp

// like applies a SQL LIKE pattern: % matches any run, _ matches one character
func like(v, pattern interface{}) bool {
	p := toString(pattern)
	re, ok := likeCache.Load(p)
	if !ok {
		var expr strings.Builder
		expr.WriteString("(?s)^")
		for _, r := range p {
			switch r {
			case '%':
				expr.WriteString(".*")
			case '_':
				expr.WriteString(".")
			default:
				expr.WriteString(regexp.QuoteMeta(string(r)))
			}
		}
		expr.WriteString("$")
		compiled, err := regexp.Compile(expr.String())
		if err != nil {
			return false
		}
		re, _ = likeCache.LoadOrStore(p, compiled)
	}
	return re.(*regexp.Regexp).MatchString(toString(v))
}
