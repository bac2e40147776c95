// Package flow validates approval flow definitions and candidate status
// paths. Definitions are authored in a visual builder and arrive as untrusted
// JSON, so every check reports a result instead of failing.
package flow

import "github.com/stagegate/stagegate/model"

// ValidateDefinition reports whether a flow definition is structurally
// well-formed:
//
//   - at least one stage, each with a non-empty id and name and a valid
//     status (actor is optional; terminal stages have nobody to act)
//   - every transition's "to" is a valid status
//   - a transition with a target stage id must reference a stage in the same
//     definition
//   - a transition without a target stage id must have a "to" status carried
//     by at least one stage in the definition
//
// Any violation yields false, never an error.
func ValidateDefinition(def *model.ApprovalFlowDefinition) bool {
	if def == nil || len(def.Stages) == 0 {
		return false
	}

	stageIDs := make(map[string]bool, len(def.Stages))
	statuses := make(map[model.ApprovalStatus]bool, len(def.Stages))
	for _, stage := range def.Stages {
		if stage.ID == "" || stage.Name == "" || !stage.Status.Valid() {
			return false
		}
		stageIDs[stage.ID] = true
		statuses[stage.Status] = true
	}

	for _, stage := range def.Stages {
		for _, tr := range stage.Transitions {
			if !tr.To.Valid() {
				return false
			}
			if tr.TargetStageID != "" {
				if !stageIDs[tr.TargetStageID] {
					return false
				}
				continue
			}
			if !statuses[tr.To] {
				return false
			}
		}
	}
	return true
}
