// Package rules evaluates transition condition groups against a request
// context. Evaluation is pure: no I/O, no retained state, and no panic or
// error ever crosses the public boundary.
package rules

import (
	"fmt"

	"github.com/stagegate/stagegate/model"
)

// ConditionDetail records the outcome of one leaf condition for diagnostic
// display. Details appear in group-then-condition order.
type ConditionDetail struct {
	ConditionID   string         `json:"conditionId,omitempty"`
	Field         string         `json:"field"`
	Operator      model.Operator `json:"operator"`
	ActualValue   any            `json:"actualValue"`
	ExpectedValue any            `json:"expectedValue"`
	Passed        bool           `json:"passed"`
}

// Result is the verdict of an evaluation. Details is populated only by
// EvaluateWithDetails.
type Result struct {
	Passed  bool              `json:"passed"`
	Details []ConditionDetail `json:"details,omitempty"`
}

// Evaluate returns the summary verdict for a set of condition groups. Groups
// combine with AND; an empty or nil set always passes, which models an
// unconditional transition. This form short-circuits on the first failing
// group.
func Evaluate(groups []model.ConditionGroup, ectx *model.EvaluationContext) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Passed: false}
		}
	}()

	if len(groups) == 0 {
		return Result{Passed: true}
	}
	for i := range groups {
		passed, _, err := evaluateGroup(&groups[i], ectx, false)
		if err != nil {
			return Result{Passed: false}
		}
		if !passed {
			return Result{Passed: false}
		}
	}
	return Result{Passed: true}
}

// EvaluateWithDetails returns the same verdict as Evaluate plus one detail
// entry per leaf condition. Every condition is evaluated even after the
// verdict is decided, so the diagnostics are always complete. A failure
// inside evaluation collapses to a failed verdict with a single synthetic
// detail carrying the error text.
func EvaluateWithDetails(groups []model.ConditionGroup, ectx *model.EvaluationContext) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = errorResult(fmt.Errorf("%v", r))
		}
	}()

	if len(groups) == 0 {
		return Result{Passed: true}
	}
	passed := true
	var details []ConditionDetail
	for i := range groups {
		groupPassed, groupDetails, err := evaluateGroup(&groups[i], ectx, true)
		if err != nil {
			return errorResult(err)
		}
		details = append(details, groupDetails...)
		if !groupPassed {
			passed = false
		}
	}
	return Result{Passed: passed, Details: details}
}

// evaluateGroup applies the group's logical operator across its conditions.
// An AND group with no conditions is vacuously true; an OR group with no
// conditions is false. When collect is false the group may short-circuit.
func evaluateGroup(group *model.ConditionGroup, ectx *model.EvaluationContext, collect bool) (bool, []ConditionDetail, error) {
	var details []ConditionDetail

	switch group.Operator {
	case model.GroupAnd:
		passed := true
		for i := range group.Conditions {
			ok, detail, err := evaluateCondition(&group.Conditions[i], ectx)
			if err != nil {
				return false, nil, err
			}
			if collect {
				details = append(details, detail)
			}
			if !ok {
				passed = false
				if !collect {
					return false, nil, nil
				}
			}
		}
		return passed, details, nil

	case model.GroupOr:
		passed := false
		for i := range group.Conditions {
			ok, detail, err := evaluateCondition(&group.Conditions[i], ectx)
			if err != nil {
				return false, nil, err
			}
			if collect {
				details = append(details, detail)
			}
			if ok {
				passed = true
				if !collect {
					return true, nil, nil
				}
			}
		}
		return passed, details, nil

	default:
		return false, nil, fmt.Errorf("unknown group operator %q", group.Operator)
	}
}

func evaluateCondition(cond *model.Condition, ectx *model.EvaluationContext) (bool, ConditionDetail, error) {
	actual := ResolveField(ectx, cond.Field)
	passed, err := compareValues(actual, cond.Operator, cond.Value)
	if err != nil {
		return false, ConditionDetail{}, err
	}
	return passed, ConditionDetail{
		ConditionID:   cond.ID,
		Field:         cond.Field,
		Operator:      cond.Operator,
		ActualValue:   actual,
		ExpectedValue: cond.Value,
		Passed:        passed,
	}, nil
}

func errorResult(err error) Result {
	return Result{
		Passed: false,
		Details: []ConditionDetail{{
			Field:       "error",
			Operator:    "ERROR",
			ActualValue: err.Error(),
			Passed:      false,
		}},
	}
}
