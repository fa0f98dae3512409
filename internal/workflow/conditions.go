package workflow

import (
	"fmt"
	"strconv"
	"strings"
)

// EvaluateConditions applies the clause list against the evaluation context.
// An empty list passes. Consecutive clauses joined by OR form a group; the
// groups are AND-ed together. Any clause whose field is absent, or whose
// value cannot be compared under the operator, evaluates false (fail closed).
func EvaluateConditions(clauses []ConditionClause, ctx map[string]any) bool {
	if len(clauses) == 0 {
		return true
	}
	groupOK := false
	first := true
	for _, c := range clauses {
		ok := evaluateClause(c, ctx)
		if first || c.Logic == LogicOr {
			groupOK = groupOK || ok
		} else {
			// AND closes the running OR group.
			if !groupOK {
				return false
			}
			groupOK = ok
		}
		first = false
	}
	return groupOK
}

func evaluateClause(c ConditionClause, ctx map[string]any) bool {
	val, present := getFieldValue(ctx, c.Field)

	switch c.Operator {
	case OpIsSet:
		return present && !isEmpty(val)
	case OpIsNotSet:
		return !present || isEmpty(val)
	}

	if !present {
		return false
	}

	switch c.Operator {
	case OpEquals:
		return looseEquals(val, c.Value)
	case OpNotEquals:
		return !looseEquals(val, c.Value)
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
		a, aok := toFloat64(val)
		b, bok := toFloat64(c.Value)
		if !aok || !bok {
			return false
		}
		switch c.Operator {
		case OpGreaterThan:
			return a > b
		case OpLessThan:
			return a < b
		case OpGreaterOrEqual:
			return a >= b
		default:
			return a <= b
		}
	case OpContains:
		return contains(val, c.Value)
	case OpNotContains:
		return !contains(val, c.Value)
	case OpIn:
		return inList(val, c.Value)
	case OpNotIn:
		return !inList(val, c.Value)
	}
	return false
}

// getFieldValue resolves a dotted path through nested maps.
func getFieldValue(ctx map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = ctx
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

// looseEquals compares across the types that survive a JSON round trip:
// numbers compare numerically, everything else by string form.
func looseEquals(a, b any) bool {
	if af, aok := toFloat64(a); aok {
		if bf, bok := toFloat64(b); bok {
			return af == bf
		}
		return false
	}
	return toString(a) == toString(b)
}

func contains(haystack, needle any) bool {
	want := toString(needle)
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, want)
	case []string:
		for _, item := range h {
			if item == want {
				return true
			}
		}
	case []any:
		for _, item := range h {
			if looseEquals(item, needle) {
				return true
			}
		}
	}
	return false
}

func inList(val, list any) bool {
	switch l := list.(type) {
	case []any:
		for _, item := range l {
			if looseEquals(val, item) {
				return true
			}
		}
	case []string:
		want := toString(val)
		for _, item := range l {
			if item == want {
				return true
			}
		}
	}
	return false
}

func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}
