package flow

import (
	"fmt"

	"github.com/stagegate/stagegate/model"
)

// PathResult is the outcome of checking a candidate status path against a
// flow definition. Issues preserve encounter order and list every problem
// found, not just the first.
type PathResult struct {
	IsValid bool     `json:"isValid"`
	Issues  []string `json:"issues"`
}

// EvaluatePath checks whether a sequence of statuses is reachable through
// the definition's transition graph. A transition with a target stage id
// contributes that stage's status as the reachable step; otherwise the
// transition's literal "to" status counts. The definition is not mutated.
func EvaluatePath(def *model.ApprovalFlowDefinition, path []model.ApprovalStatus) PathResult {
	issues := []string{}

	if def == nil || len(path) == 0 {
		issues = append(issues, "path is empty")
		return PathResult{IsValid: false, Issues: issues}
	}

	// 1. Index stages by id and by status, and build the status adjacency
	//    map. Stages sharing a status merge their outgoing edges.
	byID := make(map[string]*model.ApprovalFlowStage, len(def.Stages))
	hasStatus := make(map[model.ApprovalStatus]bool, len(def.Stages))
	for i := range def.Stages {
		stage := &def.Stages[i]
		byID[stage.ID] = stage
		hasStatus[stage.Status] = true
	}
	adjacency := make(map[model.ApprovalStatus]map[model.ApprovalStatus]bool, len(def.Stages))
	for i := range def.Stages {
		stage := &def.Stages[i]
		next := adjacency[stage.Status]
		if next == nil {
			next = make(map[model.ApprovalStatus]bool)
			adjacency[stage.Status] = next
		}
		for _, tr := range stage.Transitions {
			target := tr.To
			if tr.TargetStageID != "" {
				if dst, ok := byID[tr.TargetStageID]; ok {
					target = dst.Status
				}
			}
			next[target] = true
		}
	}

	// 2. The path must start at a stage that exists.
	if !hasStatus[path[0]] {
		issues = append(issues, fmt.Sprintf("no stage found with status %q", path[0]))
	}

	// 3. Walk consecutive pairs, collecting every issue.
	for i := 1; i < len(path); i++ {
		prev, next := path[i-1], path[i]
		if !hasStatus[next] {
			issues = append(issues, fmt.Sprintf("no stage found with status %q", next))
			continue
		}
		if !adjacency[prev][next] {
			issues = append(issues, fmt.Sprintf("no transition from %q to %q", prev, next))
		}
	}

	return PathResult{IsValid: len(issues) == 0, Issues: issues}
}
