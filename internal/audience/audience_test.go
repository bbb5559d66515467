package audience

import "testing"

func TestMatches_EmptyConditions(t *testing.T) {
	if !Matches(nil, UserContext{"id": "u1"}) {
		t.Error("empty condition list should match everyone")
	}
}

func TestMatches_Operators(t *testing.T) {
	ctx := UserContext{
		"id":         "u1",
		"tier":       "gold",
		"age":        float64(34),
		"appVersion": "2.4.1",
		"platform":   "ios",
	}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equals match", Condition{Property: "tier", Operator: OpEquals, Value: "gold"}, true},
		{"equals miss", Condition{Property: "tier", Operator: OpEquals, Value: "silver"}, false},
		{"not equals", Condition{Property: "tier", Operator: OpNotEquals, Value: "silver"}, true},
		{"contains", Condition{Property: "tier", Operator: OpContains, Value: "ol"}, true},
		{"in list match", Condition{Property: "platform", Operator: OpInList, Value: []string{"ios", "android"}}, true},
		{"in list miss", Condition{Property: "platform", Operator: OpInList, Value: []string{"web"}}, false},
		{"gt", Condition{Property: "age", Operator: OpGT, Value: float64(30)}, true},
		{"lt miss", Condition{Property: "age", Operator: OpLT, Value: float64(30)}, false},
		{"gte equal", Condition{Property: "age", Operator: OpGTE, Value: float64(34)}, true},
		{"lte equal", Condition{Property: "age", Operator: OpLTE, Value: float64(34)}, true},
		{"semver gt", Condition{Property: "appVersion", Operator: OpVersionGT, Value: "2.4.0"}, true},
		{"semver gt miss", Condition{Property: "appVersion", Operator: OpVersionGT, Value: "2.5.0"}, false},
		{"semver lt", Condition{Property: "appVersion", Operator: OpVersionLT, Value: "3.0.0"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Matches([]Condition{tt.cond}, ctx)
			if got != tt.want {
				t.Errorf("Matches(%+v) = %v, want %v", tt.cond, got, tt.want)
			}
		})
	}
}

func TestMatches_OperatorAliases(t *testing.T) {
	ctx := UserContext{"age": float64(34), "tier": "gold"}

	aliases := []Condition{
		{Property: "age", Operator: ">", Value: float64(30)},
		{Property: "age", Operator: "gte", Value: float64(34)},
		{Property: "tier", Operator: "==", Value: "gold"},
		{Property: "tier", Operator: "EQUALS", Value: "gold"},
	}
	for _, cond := range aliases {
		if !Matches([]Condition{cond}, ctx) {
			t.Errorf("alias operator %q should match", cond.Operator)
		}
	}
}

func TestMatches_AndSemantics(t *testing.T) {
	ctx := UserContext{"tier": "gold", "age": float64(34)}

	conditions := []Condition{
		{Property: "tier", Operator: OpEquals, Value: "gold"},
		{Property: "age", Operator: OpGT, Value: float64(30)},
	}
	if !Matches(conditions, ctx) {
		t.Error("all conditions satisfied, expected match")
	}

	conditions[1].Value = float64(40)
	if Matches(conditions, ctx) {
		t.Error("one failing condition must fail the audience")
	}
}

func TestMatches_MissingProperty(t *testing.T) {
	ctx := UserContext{"id": "u1"}

	cond := Condition{Property: "tier", Operator: OpEquals, Value: "gold"}
	if Matches([]Condition{cond}, ctx) {
		t.Error("missing property should fail the condition")
	}
}

func TestMatches_UnknownOperator(t *testing.T) {
	ctx := UserContext{"tier": "gold"}

	cond := Condition{Property: "tier", Operator: "regex", Value: ".*"}
	if Matches([]Condition{cond}, ctx) {
		t.Error("unknown operator should fail, not error or match")
	}
}

func TestMatches_InvalidSemver(t *testing.T) {
	ctx := UserContext{"appVersion": "not-a-version"}

	cond := Condition{Property: "appVersion", Operator: OpVersionGT, Value: "1.0.0"}
	if Matches([]Condition{cond}, ctx) {
		t.Error("unparseable version should fail the condition")
	}
}

func TestMatches_IntegerUserValue(t *testing.T) {
	// Values decoded from YAML arrive as int, from JSON as float64.
	ctx := UserContext{"age": 34}

	cond := Condition{Property: "age", Operator: OpGT, Value: 30}
	if !Matches([]Condition{cond}, ctx) {
		t.Error("int values should compare numerically")
	}
}
