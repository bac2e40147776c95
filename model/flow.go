package model

// DomainDefinition is the root structure of a definition file. Each file
// declares one domain's approval flows and the named condition groups its
// transitions reference.
type DomainDefinition struct {
	Domain          string                   `yaml:"domain"           json:"domain"`
	Version         string                   `yaml:"version"          json:"version"`
	Flows           []ApprovalFlowDefinition `yaml:"flows"            json:"flows,omitempty"`
	ConditionGroups []ConditionGroup         `yaml:"condition_groups" json:"condition_groups,omitempty"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// ApprovalFlowDefinition is the full stage+transition graph describing one
// approval workflow variant. This is the wire shape the path validator treats
// as ground truth; any producer of flow definitions must emit it.
type ApprovalFlowDefinition struct {
	ID      string              `yaml:"id"      json:"id,omitempty"`
	Name    string              `yaml:"name"    json:"name,omitempty"`
	Timeout string              `yaml:"timeout" json:"timeout,omitempty"`
	Stages  []ApprovalFlowStage `yaml:"stages"  json:"stages"`
}

// ApprovalFlowStage is one step of an approval process, tagged with a status
// and the actor role expected to act on it.
type ApprovalFlowStage struct {
	ID          string            `yaml:"id"          json:"id"`
	Name        string            `yaml:"name"        json:"name"`
	Description string            `yaml:"description" json:"description"`
	Actor       string            `yaml:"actor"       json:"actor"`
	Status      ApprovalStatus    `yaml:"status"      json:"status"`
	Transitions []StageTransition `yaml:"transitions" json:"transitions"`
}

// StageTransition is a directed edge out of a stage. It may target a specific
// stage by id (stage-graph mode) or merely declare a target status shared by
// some stage (status-graph mode); both modes can coexist in one definition.
// Conditions lists condition-group IDs guarding the transition; the path
// validator carries them without interpreting them — evaluation is the
// condition evaluator's job.
type StageTransition struct {
	To            ApprovalStatus `yaml:"to"              json:"to"`
	TargetStageID string         `yaml:"target_stage_id" json:"targetStageId,omitempty"`
	Conditions    []string       `yaml:"conditions"      json:"conditions,omitempty"`
}

// StageByID returns the stage with the given id, or nil.
func (d *ApprovalFlowDefinition) StageByID(id string) *ApprovalFlowStage {
	for i := range d.Stages {
		if d.Stages[i].ID == id {
			return &d.Stages[i]
		}
	}
	return nil
}

// StageByStatus returns the first stage carrying the given status, or nil.
func (d *ApprovalFlowDefinition) StageByStatus(status ApprovalStatus) *ApprovalFlowStage {
	for i := range d.Stages {
		if d.Stages[i].Status == status {
			return &d.Stages[i]
		}
	}
	return nil
}
