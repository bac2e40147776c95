package rules

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/stagegate/stagegate/model"
)

// compareValues applies a single operator to a resolved actual value and the
// authored expected value. Definitions are authored at runtime, so an unknown
// operator is a reachable input and reported as an error rather than a panic.
func compareValues(actual any, op model.Operator, expected any) (bool, error) {
	switch op {
	case model.OpEquals:
		return looseEqual(actual, expected), nil
	case model.OpNotEquals:
		return !looseEqual(actual, expected), nil
	case model.OpGreaterThan:
		return compareNumeric(actual, expected, func(a, b float64) bool { return a > b }), nil
	case model.OpLessThan:
		return compareNumeric(actual, expected, func(a, b float64) bool { return a < b }), nil
	case model.OpGreaterOrEqual:
		return compareNumeric(actual, expected, func(a, b float64) bool { return a >= b }), nil
	case model.OpLessOrEqual:
		return compareNumeric(actual, expected, func(a, b float64) bool { return a <= b }), nil
	case model.OpContains:
		return contains(actual, expected), nil
	case model.OpNotContains:
		return !contains(actual, expected), nil
	case model.OpIn:
		list, ok := expected.([]any)
		if !ok {
			return false, nil
		}
		return member(list, actual), nil
	case model.OpNotIn:
		list, ok := expected.([]any)
		if !ok {
			return true, nil
		}
		return !member(list, actual), nil
	case model.OpStartsWith:
		a, aok := actual.(string)
		e, eok := expected.(string)
		return aok && eok && strings.HasPrefix(a, e), nil
	case model.OpEndsWith:
		a, aok := actual.(string)
		e, eok := expected.(string)
		return aok && eok && strings.HasSuffix(a, e), nil
	case model.OpIsEmpty:
		return isEmpty(actual), nil
	case model.OpIsNotEmpty:
		return !isEmpty(actual), nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

// looseEqual implements type-coercing equality: booleans behave as 1/0,
// numbers compare across integer and float kinds, and a number compared with
// a string coerces the string to a number. Nil equals only nil.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ab, ok := a.(bool); ok {
		a = boolToFloat(ab)
	}
	if bb, ok := b.(bool); ok {
		b = boolToFloat(bb)
	}

	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	an, aIsNum := asFloat(a)
	bn, bIsNum := asFloat(b)

	switch {
	case aIsStr && bIsStr:
		return as == bs
	case aIsNum && bIsNum:
		return an == bn
	case aIsNum && bIsStr:
		n := parseNumber(bs)
		return !math.IsNaN(n) && an == n
	case aIsStr && bIsNum:
		n := parseNumber(as)
		return !math.IsNaN(n) && n == bn
	default:
		return reflect.DeepEqual(a, b)
	}
}

// compareNumeric coerces both operands to numbers and applies cmp.
// Any operand that coerces to NaN makes the comparison false.
func compareNumeric(actual, expected any, cmp func(a, b float64) bool) bool {
	a := toNumber(actual)
	b := toNumber(expected)
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	return cmp(a, b)
}

// contains reports substring containment when both operands are strings, and
// loose membership when the actual value is a slice. Anything else does not
// contain.
func contains(actual, expected any) bool {
	if as, ok := actual.(string); ok {
		es, ok := expected.(string)
		return ok && strings.Contains(as, es)
	}
	if list, ok := actual.([]any); ok {
		return member(list, expected)
	}
	return false
}

func member(list []any, value any) bool {
	for _, item := range list {
		if looseEqual(item, value) {
			return true
		}
	}
	return false
}

// isEmpty is true for nil, the empty string, and a zero-length slice.
// Zero is a value, not emptiness.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

// toNumber coerces a value to a float64, yielding NaN when no numeric
// interpretation exists. Booleans count as 1 and 0; a blank string counts
// as zero.
func toNumber(v any) float64 {
	if v == nil {
		return math.NaN()
	}
	if b, ok := v.(bool); ok {
		return boolToFloat(b)
	}
	if n, ok := asFloat(v); ok {
		return n
	}
	if s, ok := v.(string); ok {
		return parseNumber(s)
	}
	return math.NaN()
}

func parseNumber(s string) float64 {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0
	}
	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return math.NaN()
	}
	return n
}

// asFloat widens any Go numeric kind to float64. JSON decoding produces
// float64 and YAML decoding produces int, so both arrive here.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
