// Package audience evaluates structured eligibility conditions for
// experiments. An experiment may restrict enrollment to users matching a set
// of conditions; users outside the audience are served the feature's default
// resolver instead of being enrolled.
package audience

// Operator represents a comparison operator used in audience conditions.
type Operator string

// Supported audience operators (string values for clean JSON serialization).
const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "not_equals"
	OpContains  Operator = "contains"
	OpInList    Operator = "in_list"
	OpGT        Operator = "gt"
	OpLT        Operator = "lt"
	OpGTE       Operator = "gte"
	OpLTE       Operator = "lte"
	OpVersionGT Operator = "version_gt"
	OpVersionLT Operator = "version_lt"
)

// Condition represents a single audience predicate. When multiple conditions
// belong to one audience they are evaluated with AND semantics: all
// conditions must match for the user to be enrolled.
type Condition struct {
	Property string   `json:"property" yaml:"property"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// UserContext carries the user attributes conditions are evaluated against.
// The "id" key always holds the user id.
type UserContext map[string]any

// Matches reports whether the user context satisfies every condition.
// An unknown property or operator fails the condition (and so the audience)
// rather than erroring: audience evaluation is a gate, not a validator.
func Matches(conditions []Condition, ctx UserContext) bool {
	for _, cond := range conditions {
		value, ok := ctx[cond.Property]
		if !ok {
			return false
		}
		handler, ok := getOperatorHandler(cond.Operator)
		if !ok || !handler.Check(value, cond.Value) {
			return false
		}
	}
	return true
}
