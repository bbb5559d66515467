// Package targeting evaluates free-form audience expressions. An expression
// is a JSON Logic (jsonlogic.com) document stored on the experiment
// definition; at request time it is applied to the shopper's attributes to
// decide enrollment eligibility.
package targeting

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/diegoholiveira/jsonlogic/v3"
)

// UserContext carries the shopper attributes an expression can reference via
// {"var": ...}. The resolution endpoints always populate "id"; everything
// else (tier, persona, ageRange, platform, ...) comes from the caller's
// userContext request parameter. A referenced attribute that is absent
// evaluates to null, which never matches.
type UserContext map[string]any

var (
	// ErrInvalidExpression marks an expression that is not a JSON Logic document.
	ErrInvalidExpression = errors.New("invalid expression: not valid JSON Logic")

	// ErrEmptyExpression marks an empty or all-whitespace expression.
	ErrEmptyExpression = errors.New("invalid expression: empty or whitespace")
)

// Evaluate applies the expression to the shopper context and reports whether
// the shopper matches. The expression's result is coerced to bool with JSON
// truthiness: null, false, 0, "" and empty containers do not match.
func Evaluate(expression string, userCtx UserContext) (bool, error) {
	rule, err := parseRule(expression)
	if err != nil {
		return false, err
	}

	out, err := jsonlogic.ApplyInterface(rule, map[string]any(userCtx))
	if err != nil {
		return false, ErrInvalidExpression
	}
	return isTruthy(out), nil
}

// ValidateExpression is the admission check for expressions arriving through
// the admin API. It parses the document and applies it against an empty
// context, so malformed operators are rejected before the definition is
// stored rather than failing closed on every resolution.
func ValidateExpression(expression string) error {
	rule, err := parseRule(expression)
	if err != nil {
		return err
	}
	if _, err := jsonlogic.ApplyInterface(rule, map[string]any{}); err != nil {
		return ErrInvalidExpression
	}
	return nil
}

func parseRule(expression string) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, ErrEmptyExpression
	}
	var rule any
	if err := json.Unmarshal([]byte(expression), &rule); err != nil {
		return nil, ErrInvalidExpression
	}
	return rule, nil
}

// isTruthy coerces a JSON Logic result to bool the way JSON Logic itself
// does for operator arguments.
func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}
