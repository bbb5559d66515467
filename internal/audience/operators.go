package audience

import (
	"encoding/json"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// operatorHandler evaluates one condition operator.
type operatorHandler interface {
	Check(userValue, condValue any) bool
}

var operatorHandlers = map[Operator]operatorHandler{
	OpEquals:    equalsHandler{},
	OpNotEquals: notEqualsHandler{},
	OpContains:  containsHandler{},
	OpInList:    inListHandler{},
	OpGT:        numericCompareHandler{cmp: func(a, b float64) bool { return a > b }},
	OpLT:        numericCompareHandler{cmp: func(a, b float64) bool { return a < b }},
	OpGTE:       numericCompareHandler{cmp: func(a, b float64) bool { return a >= b }},
	OpLTE:       numericCompareHandler{cmp: func(a, b float64) bool { return a <= b }},
	OpVersionGT: semverCompareHandler{cmp: func(a, b *semver.Version) bool { return a.GreaterThan(b) }},
	OpVersionLT: semverCompareHandler{cmp: func(a, b *semver.Version) bool { return a.LessThan(b) }},
}

func getOperatorHandler(op Operator) (operatorHandler, bool) {
	h, ok := operatorHandlers[normalizeOperator(op)]
	return h, ok
}

func normalizeOperator(op Operator) Operator {
	switch strings.ToLower(string(op)) {
	case "==", "eq", "equals":
		return OpEquals
	case "!=", "neq", "not_equals":
		return OpNotEquals
	case "contains":
		return OpContains
	case "in", "in_list":
		return OpInList
	case ">", "gt":
		return OpGT
	case "<", "lt":
		return OpLT
	case ">=", "gte":
		return OpGTE
	case "<=", "lte":
		return OpLTE
	case "semver_gt", "version_gt":
		return OpVersionGT
	case "semver_lt", "version_lt":
		return OpVersionLT
	default:
		return op
	}
}

type equalsHandler struct{}

func (equalsHandler) Check(userValue, condValue any) bool {
	if user, ok := toString(userValue); ok {
		cond, ok := toString(condValue)
		return ok && user == cond
	}
	if user, ok := toFloat64(userValue); ok {
		cond, ok := toFloat64(condValue)
		return ok && user == cond
	}
	if user, ok := userValue.(bool); ok {
		cond, ok := condValue.(bool)
		return ok && user == cond
	}
	return false
}

type notEqualsHandler struct{}

func (notEqualsHandler) Check(userValue, condValue any) bool {
	return !equalsHandler{}.Check(userValue, condValue)
}

type containsHandler struct{}

func (containsHandler) Check(userValue, condValue any) bool {
	user, ok := toString(userValue)
	if !ok {
		return false
	}
	cond, ok := toString(condValue)
	if !ok {
		return false
	}
	return strings.Contains(user, cond)
}

type inListHandler struct{}

func (inListHandler) Check(userValue, condValue any) bool {
	user, ok := toString(userValue)
	if !ok {
		return false
	}
	list, ok := toStringSlice(condValue)
	if !ok {
		return false
	}
	for _, item := range list {
		if user == item {
			return true
		}
	}
	return false
}

type numericCompareHandler struct {
	cmp func(a, b float64) bool
}

func (h numericCompareHandler) Check(userValue, condValue any) bool {
	user, ok := toFloat64(userValue)
	if !ok {
		return false
	}
	cond, ok := toFloat64(condValue)
	if !ok {
		return false
	}
	return h.cmp(user, cond)
}

type semverCompareHandler struct {
	cmp func(a, b *semver.Version) bool
}

func (h semverCompareHandler) Check(userValue, condValue any) bool {
	userStr, ok := toString(userValue)
	if !ok {
		return false
	}
	condStr, ok := toString(condValue)
	if !ok {
		return false
	}
	userVer, err := semver.NewVersion(userStr)
	if err != nil {
		return false
	}
	condVer, err := semver.NewVersion(condStr)
	if err != nil {
		return false
	}
	return h.cmp(userVer, condVer)
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toStringSlice(v any) ([]string, bool) {
	switch values := v.(type) {
	case []string:
		return values, true
	case []any:
		result := make([]string, 0, len(values))
		for _, item := range values {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			result = append(result, s)
		}
		return result, true
	default:
		return nil, false
	}
}
