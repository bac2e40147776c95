package model

import "testing"

// The operator constants are the wire vocabulary of definition documents;
// their string values are load-bearing and must not drift.
func TestOperator_wireValues(t *testing.T) {
	tests := []struct {
		op   Operator
		want string
	}{
		{OpEquals, "=="},
		{OpNotEquals, "!="},
		{OpGreaterThan, ">"},
		{OpLessThan, "<"},
		{OpGreaterOrEqual, ">="},
		{OpLessOrEqual, "<="},
		{OpContains, "CONTAINS"},
		{OpNotContains, "NOT_CONTAINS"},
		{OpIn, "IN"},
		{OpNotIn, "NOT_IN"},
		{OpStartsWith, "STARTS_WITH"},
		{OpEndsWith, "ENDS_WITH"},
		{OpIsEmpty, "IS_EMPTY"},
		{OpIsNotEmpty, "IS_NOT_EMPTY"},
	}
	for _, tt := range tests {
		if string(tt.op) != tt.want {
			t.Errorf("operator %q, want %q", tt.op, tt.want)
		}
	}
}

func TestGroupOperator_values(t *testing.T) {
	if GroupAnd != "AND" || GroupOr != "OR" {
		t.Errorf("group operators = %q/%q, want AND/OR", GroupAnd, GroupOr)
	}
}
