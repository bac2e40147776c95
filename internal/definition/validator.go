package definition

import (
	"fmt"

	"github.com/stagegate/stagegate/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator validates definitions structurally and referentially.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all definitions.
func (v *Validator) Validate(defs []model.DomainDefinition) []VError {
	var errs []VError
	for i, def := range defs {
		prefix := fmt.Sprintf("definitions[%d]", i)
		errs = append(errs, v.validateDomain(prefix, def)...)
	}
	return errs
}

func (v *Validator) validateDomain(prefix string, def model.DomainDefinition) []VError {
	var errs []VError

	if def.Domain == "" {
		errs = append(errs, VError{Path: prefix + ".domain", Code: "REQUIRED", Message: "domain is required"})
	}
	if def.Version == "" {
		errs = append(errs, VError{Path: prefix + ".version", Code: "REQUIRED", Message: "version is required"})
	}
	if len(def.Flows) == 0 {
		errs = append(errs, VError{Path: prefix + ".flows", Code: "REQUIRED", Message: "at least one flow is required"})
	}

	// Build lookup sets for referential validation.
	groupIDs := make(map[string]bool)
	for _, g := range def.ConditionGroups {
		groupIDs[g.ID] = true
	}

	flowIDs := make(map[string]bool)
	for i, f := range def.Flows {
		fp := fmt.Sprintf("%s.flows[%d]", prefix, i)
		if f.ID != "" && flowIDs[f.ID] {
			errs = append(errs, VError{Path: fp + ".id", Code: "DUPLICATE", Message: fmt.Sprintf("duplicate flow id %q", f.ID)})
		}
		flowIDs[f.ID] = true
		errs = append(errs, v.validateFlow(fp, f, groupIDs)...)
	}

	for i, g := range def.ConditionGroups {
		gp := fmt.Sprintf("%s.condition_groups[%d]", prefix, i)
		errs = append(errs, v.validateConditionGroup(gp, g)...)
	}

	return errs
}

func (v *Validator) validateFlow(prefix string, f model.ApprovalFlowDefinition, groupIDs map[string]bool) []VError {
	var errs []VError

	if f.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if f.Name == "" {
		errs = append(errs, VError{Path: prefix + ".name", Code: "REQUIRED", Message: "name is required"})
	}
	if len(f.Stages) == 0 {
		errs = append(errs, VError{Path: prefix + ".stages", Code: "REQUIRED", Message: "at least one stage is required"})
	}

	stageIDs := make(map[string]bool)
	statuses := make(map[model.ApprovalStatus]bool)
	for i, s := range f.Stages {
		sp := fmt.Sprintf("%s.stages[%d]", prefix, i)
		if s.ID == "" {
			errs = append(errs, VError{Path: sp + ".id", Code: "REQUIRED", Message: "stage id is required"})
		} else if stageIDs[s.ID] {
			errs = append(errs, VError{Path: sp + ".id", Code: "DUPLICATE", Message: fmt.Sprintf("duplicate stage id %q", s.ID)})
		}
		stageIDs[s.ID] = true
		if s.Name == "" {
			errs = append(errs, VError{Path: sp + ".name", Code: "REQUIRED", Message: "stage name is required"})
		}
		if !s.Status.Valid() {
			errs = append(errs, VError{Path: sp + ".status", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid status %q", s.Status)})
		}
		statuses[s.Status] = true
	}

	for i, s := range f.Stages {
		for j, tr := range s.Transitions {
			tp := fmt.Sprintf("%s.stages[%d].transitions[%d]", prefix, i, j)
			if !tr.To.Valid() {
				errs = append(errs, VError{Path: tp + ".to", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid status %q", tr.To)})
				continue
			}
			if tr.TargetStageID != "" {
				if !stageIDs[tr.TargetStageID] {
					errs = append(errs, VError{Path: tp + ".target_stage_id", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("stage %q not found", tr.TargetStageID)})
				}
			} else if !statuses[tr.To] {
				errs = append(errs, VError{Path: tp + ".to", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("no stage carries status %q", tr.To)})
			}
			for k, gid := range tr.Conditions {
				if !groupIDs[gid] {
					errs = append(errs, VError{
						Path:    fmt.Sprintf("%s.conditions[%d]", tp, k),
						Code:    "REF_NOT_FOUND",
						Message: fmt.Sprintf("condition group %q not found", gid),
					})
				}
			}
		}
	}

	return errs
}

var validOperators = map[model.Operator]bool{
	model.OpEquals: true, model.OpNotEquals: true,
	model.OpGreaterThan: true, model.OpLessThan: true,
	model.OpGreaterOrEqual: true, model.OpLessOrEqual: true,
	model.OpContains: true, model.OpNotContains: true,
	model.OpIn: true, model.OpNotIn: true,
	model.OpStartsWith: true, model.OpEndsWith: true,
	model.OpIsEmpty: true, model.OpIsNotEmpty: true,
}

func (v *Validator) validateConditionGroup(prefix string, g model.ConditionGroup) []VError {
	var errs []VError

	if g.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if g.Operator != model.GroupAnd && g.Operator != model.GroupOr {
		errs = append(errs, VError{Path: prefix + ".operator", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid group operator %q", g.Operator)})
	}

	for i, c := range g.Conditions {
		cp := fmt.Sprintf("%s.conditions[%d]", prefix, i)
		if c.Field == "" {
			errs = append(errs, VError{Path: cp + ".field", Code: "REQUIRED", Message: "field is required"})
		}
		if c.Operator == "" {
			errs = append(errs, VError{Path: cp + ".operator", Code: "REQUIRED", Message: "operator is required"})
		} else if !validOperators[c.Operator] {
			errs = append(errs, VError{Path: cp + ".operator", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid operator %q", c.Operator)})
		}
	}

	return errs
}
