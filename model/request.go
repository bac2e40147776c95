package model

import "time"

// Approval request lifecycle constants.
const (
	RequestStateActive    = "active"
	RequestStateCompleted = "completed"
	RequestStateCancelled = "cancelled"
	RequestStateExpired   = "expired"
)

// ApprovalRequest is one entity travelling through an approval flow.
type ApprovalRequest struct {
	ID              string         `json:"id"`
	FlowID          string         `json:"flow_id"`
	TenantID        string         `json:"tenant_id"`
	RequesterID     string         `json:"requester_id"`
	CurrentStageID  string         `json:"current_stage_id"`
	PreviousStageID string         `json:"previous_stage_id,omitempty"`
	Status          ApprovalStatus `json:"status"`
	State           string         `json:"state"`
	Resource        map[string]any `json:"resource,omitempty"`
	Iteration       int            `json:"iteration"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ExpiresAt       *time.Time     `json:"expires_at,omitempty"`
	Version         int            `json:"version"`
}

// RequestSummary is a lightweight representation of an approval request used
// in list views.
type RequestSummary struct {
	ID             string         `json:"id"`
	FlowID         string         `json:"flow_id"`
	FlowName       string         `json:"flow_name"`
	CurrentStageID string         `json:"current_stage_id"`
	Status         ApprovalStatus `json:"status"`
	State          string         `json:"state"`
	RequesterID    string         `json:"requester_id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// RequestEvent records an event in a request's audit trail.
type RequestEvent struct {
	ID        string         `json:"id"`
	RequestID string         `json:"request_id"`
	StageID   string         `json:"stage_id"`
	Event     string         `json:"event"`
	ActorID   string         `json:"actor_id"`
	Data      map[string]any `json:"data,omitempty"`
	Comment   string         `json:"comment,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RequestDescriptor is the full representation of a request returned to the
// frontend: current position, per-stage summaries, and audit history.
type RequestDescriptor struct {
	ID           string         `json:"id"`
	FlowID       string         `json:"flow_id"`
	FlowName     string         `json:"flow_name"`
	State        string         `json:"state"`
	Status       ApprovalStatus `json:"status"`
	CurrentStage *StageSummary  `json:"current_stage,omitempty"`
	Stages       []StageSummary `json:"stages"`
	History      []HistoryEntry `json:"history"`
}

// StageSummary is a stage's display representation within a descriptor.
type StageSummary struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Actor   string         `json:"actor"`
	Status  ApprovalStatus `json:"status"`
	Current bool           `json:"current,omitempty"`
}

// HistoryEntry is one row of a request's rendered audit history.
type HistoryEntry struct {
	StageName string `json:"stage_name"`
	Event     string `json:"event"`
	Actor     string `json:"actor"`
	Timestamp string `json:"timestamp"`
	Comment   string `json:"comment,omitempty"`
}

// RequestFilters are the list-endpoint filters for approval requests.
type RequestFilters struct {
	FlowID      string
	State       string
	RequesterID string
	Page        int
	PageSize    int
}
