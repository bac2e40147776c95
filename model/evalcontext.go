package model

// EvaluationContext is the read-only data bundle conditions are checked
// against. It is constructed fresh for each evaluation call, never mutated by
// the evaluator, and discarded when the call returns.
//
// Resource holds the entity being approved and is always present; the other
// namespaces are optional. Fields resolve against Resource first, then via the
// "requester.", "currentApprover.", "workflow.", and "metadata." prefixes.
type EvaluationContext struct {
	Resource        map[string]any `json:"resource"`
	Requester       map[string]any `json:"requester,omitempty"`
	CurrentApprover map[string]any `json:"current_approver,omitempty"`
	Workflow        map[string]any `json:"workflow,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}
