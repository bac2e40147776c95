package model

// Operator identifies a single comparison applied by the condition evaluator.
// Conditions are authored in definition documents, so unknown operator strings
// can reach the evaluator at runtime; it reports them as evaluation errors
// rather than panicking.
type Operator string

const (
	OpEquals      Operator = "=="
	OpNotEquals   Operator = "!="
	OpGreaterThan Operator = ">"
	OpLessThan    Operator = "<"
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
	OpContains    Operator = "CONTAINS"
	OpNotContains Operator = "NOT_CONTAINS"
	OpIn          Operator = "IN"
	OpNotIn       Operator = "NOT_IN"
	OpStartsWith  Operator = "STARTS_WITH"
	OpEndsWith    Operator = "ENDS_WITH"
	OpIsEmpty     Operator = "IS_EMPTY"
	OpIsNotEmpty  Operator = "IS_NOT_EMPTY"
)

// GroupOperator combines the conditions within a group.
type GroupOperator string

const (
	GroupAnd GroupOperator = "AND"
	GroupOr  GroupOperator = "OR"
)

// Condition is one field comparison. Field is a dot-path resolved dynamically
// against an EvaluationContext at evaluation time; it is not validated against
// any schema ahead of time.
type Condition struct {
	ID       string   `yaml:"id"       json:"id"`
	Field    string   `yaml:"field"    json:"field"`
	Operator Operator `yaml:"operator" json:"operator"`
	Value    any      `yaml:"value"    json:"value,omitempty"`
}

// ConditionGroup is a set of conditions combined by a single logical operator.
// Groups passed together to the evaluator combine with implicit AND.
type ConditionGroup struct {
	ID         string        `yaml:"id"         json:"id"`
	Operator   GroupOperator `yaml:"operator"   json:"operator"`
	Conditions []Condition   `yaml:"conditions" json:"conditions"`
}
