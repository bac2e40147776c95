// Package workflow manages the lifecycle of approval requests: submission
// into a flow, stage-by-stage decisions guarded by condition groups, and
// timeout expiry.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stagegate/stagegate/internal/definition"
	"github.com/stagegate/stagegate/internal/rules"
	"github.com/stagegate/stagegate/model"
)

// Engine manages the lifecycle of approval requests.
type Engine struct {
	registry    *definition.Registry
	store       RequestStore
	capResolver model.CapabilityResolver
}

// NewEngine creates a new approval engine.
func NewEngine(
	registry *definition.Registry,
	store RequestStore,
	capResolver model.CapabilityResolver,
) *Engine {
	return &Engine{
		registry:    registry,
		store:       store,
		capResolver: capResolver,
	}
}

// Submit creates a new approval request and enters the flow's first stage.
func (e *Engine) Submit(
	ctx context.Context,
	rctx *model.RequestContext,
	flowID string,
	resource map[string]any,
) (model.ApprovalRequest, error) {
	// 1. Look up flow definition.
	flowDef, ok := e.registry.GetFlow(flowID)
	if !ok {
		return model.ApprovalRequest{}, model.NewFlowNotFoundError(
			fmt.Sprintf("flow %q not found", flowID),
		)
	}
	if len(flowDef.Stages) == 0 {
		return model.ApprovalRequest{}, model.NewValidationError([]model.FieldError{
			{Field: "stages", Code: "REQUIRED", Message: "flow has no stages"},
		})
	}

	// 2. The first stage in the definition is the entry stage.
	entry := flowDef.Stages[0]

	// 3. Compute expiration.
	now := time.Now().UTC()
	var expiresAt *time.Time
	if flowDef.Timeout != "" {
		dur, err := time.ParseDuration(flowDef.Timeout)
		if err == nil {
			exp := now.Add(dur)
			expiresAt = &exp
		}
	}

	// 4. Copy the resource so later caller mutations can't leak in.
	res := make(map[string]any, len(resource))
	for k, v := range resource {
		res[k] = v
	}

	// 5. Create request.
	req := model.ApprovalRequest{
		ID:             uuid.New().String(),
		FlowID:         flowID,
		TenantID:       rctx.TenantID,
		RequesterID:    rctx.SubjectID,
		CurrentStageID: entry.ID,
		Status:         entry.Status,
		State:          model.RequestStateActive,
		Resource:       res,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      expiresAt,
	}

	// 6. Persist.
	if err := e.store.Create(ctx, req); err != nil {
		return model.ApprovalRequest{}, err
	}

	// 7. Append audit events.
	if err := e.appendEvent(ctx, req.ID, entry.ID, "submitted", rctx.SubjectID, nil, ""); err != nil {
		return model.ApprovalRequest{}, err
	}
	if err := e.appendEvent(ctx, req.ID, entry.ID, "stage_entered", "system", nil, ""); err != nil {
		return model.ApprovalRequest{}, err
	}

	return req, nil
}

// Decide applies an actor's decision to the request's current stage. The
// decision selects the first transition whose resolved target carries the
// decided status and whose condition groups pass against the request context.
func (e *Engine) Decide(
	ctx context.Context,
	rctx *model.RequestContext,
	requestID string,
	decision model.ApprovalStatus,
	comment string,
) (model.ApprovalRequest, error) {
	// 1. Validate decision status.
	if !decision.Valid() {
		return model.ApprovalRequest{}, model.NewBadRequestError(
			fmt.Sprintf("invalid decision status %q", decision),
		)
	}

	// 2. Load request, tenant scoped.
	req, err := e.store.Get(ctx, rctx.TenantID, requestID)
	if err != nil {
		return model.ApprovalRequest{}, err
	}

	// 3. Verify lifecycle state.
	if req.State != model.RequestStateActive {
		return model.ApprovalRequest{}, model.NewRequestNotActiveError(
			fmt.Sprintf("approval request %q is %s, not active", requestID, req.State),
		)
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now().UTC()) {
		return model.ApprovalRequest{}, model.NewRequestExpiredError(
			fmt.Sprintf("approval request %q has expired", requestID),
		)
	}

	// 4. Look up flow and current stage.
	flowDef, ok := e.registry.GetFlow(req.FlowID)
	if !ok {
		return model.ApprovalRequest{}, model.NewFlowNotFoundError(
			fmt.Sprintf("flow %q not found", req.FlowID),
		)
	}
	stage := flowDef.StageByID(req.CurrentStageID)
	if stage == nil {
		return model.ApprovalRequest{}, model.NewNotFoundError(
			fmt.Sprintf("stage %q not found in flow %q", req.CurrentStageID, req.FlowID),
		)
	}

	// 5. Check the caller may act as this stage's actor.
	if stage.Actor != "" && e.capResolver != nil {
		caps, err := e.capResolver.Resolve(rctx)
		if err != nil {
			return model.ApprovalRequest{}, fmt.Errorf("resolve capabilities: %w", err)
		}
		if !caps.Has(model.ActorCapability(stage.Actor)) {
			return model.ApprovalRequest{}, model.NewStageForbiddenError(
				fmt.Sprintf("caller cannot act as %q on stage %q", stage.Actor, stage.ID),
			)
		}
	}

	// 6. Find the transition matching the decision whose guards pass.
	ectx := e.buildEvaluationContext(&req, rctx)
	target, err := e.findTransition(&flowDef, stage, decision, ectx)
	if err != nil {
		return model.ApprovalRequest{}, err
	}
	if target == nil {
		return model.ApprovalRequest{}, model.NewInvalidTransitionError(
			fmt.Sprintf("no permitted transition from stage %q to status %q", stage.ID, decision),
		)
	}

	// 7. Move the request.
	req.PreviousStageID = req.CurrentStageID
	req.CurrentStageID = target.ID
	req.Status = target.Status
	req.Iteration++
	req.UpdatedAt = time.Now().UTC()

	// 8. Append decision and entry audit records.
	if err := e.appendEvent(ctx, req.ID, stage.ID, "decided", rctx.SubjectID,
		map[string]any{"decision": string(decision)}, comment); err != nil {
		return model.ApprovalRequest{}, err
	}
	if err := e.appendEvent(ctx, req.ID, target.ID, "stage_entered", "system", nil, ""); err != nil {
		return model.ApprovalRequest{}, err
	}

	// 9. Terminal status completes the request.
	if req.Status.Terminal() {
		req.State = model.RequestStateCompleted
		if err := e.appendEvent(ctx, req.ID, target.ID, "completed", "system", nil, ""); err != nil {
			return model.ApprovalRequest{}, err
		}
	}

	// 10. Persist with optimistic locking.
	if err := e.store.Update(ctx, req); err != nil {
		return model.ApprovalRequest{}, err
	}

	return req, nil
}

// findTransition scans the stage's transitions in order and returns the first
// whose resolved target stage carries the decided status and whose condition
// groups pass. A transition with no condition groups is unconditional.
func (e *Engine) findTransition(
	flowDef *model.ApprovalFlowDefinition,
	stage *model.ApprovalFlowStage,
	decision model.ApprovalStatus,
	ectx *model.EvaluationContext,
) (*model.ApprovalFlowStage, error) {
	for _, tr := range stage.Transitions {
		var target *model.ApprovalFlowStage
		if tr.TargetStageID != "" {
			target = flowDef.StageByID(tr.TargetStageID)
		} else {
			target = flowDef.StageByStatus(tr.To)
		}
		if target == nil || target.Status != decision {
			continue
		}

		groups, err := e.registry.ResolveConditionGroups(tr.Conditions)
		if err != nil {
			return nil, model.NewValidationError([]model.FieldError{
				{Field: "conditions", Code: "REF_NOT_FOUND", Message: err.Error()},
			})
		}
		if rules.Evaluate(groups, ectx).Passed {
			return target, nil
		}
	}
	return nil, nil
}

// buildEvaluationContext assembles the namespaces condition fields resolve
// against. The context is constructed fresh per decision and discarded after.
func (e *Engine) buildEvaluationContext(req *model.ApprovalRequest, rctx *model.RequestContext) *model.EvaluationContext {
	roles := make([]any, len(rctx.Roles))
	for i, r := range rctx.Roles {
		roles[i] = r
	}
	return &model.EvaluationContext{
		Resource: req.Resource,
		Requester: map[string]any{
			"id": req.RequesterID,
		},
		CurrentApprover: map[string]any{
			"id":    rctx.SubjectID,
			"email": rctx.Email,
			"roles": roles,
		},
		Workflow: map[string]any{
			"currentStageId":  req.CurrentStageID,
			"previousStageId": req.PreviousStageID,
			"iteration":       req.Iteration,
		},
	}
}

// Get returns the request descriptor for the frontend.
func (e *Engine) Get(
	ctx context.Context,
	rctx *model.RequestContext,
	requestID string,
) (model.RequestDescriptor, error) {
	req, err := e.store.Get(ctx, rctx.TenantID, requestID)
	if err != nil {
		return model.RequestDescriptor{}, err
	}

	flowDef, ok := e.registry.GetFlow(req.FlowID)
	if !ok {
		return model.RequestDescriptor{}, model.NewFlowNotFoundError(
			fmt.Sprintf("flow %q not found", req.FlowID),
		)
	}

	// Build stage summaries.
	stages := make([]model.StageSummary, 0, len(flowDef.Stages))
	for _, s := range flowDef.Stages {
		stages = append(stages, model.StageSummary{
			ID:      s.ID,
			Name:    s.Name,
			Actor:   s.Actor,
			Status:  s.Status,
			Current: s.ID == req.CurrentStageID,
		})
	}

	// Build current stage summary.
	var current *model.StageSummary
	if s := flowDef.StageByID(req.CurrentStageID); s != nil {
		current = &model.StageSummary{
			ID:      s.ID,
			Name:    s.Name,
			Actor:   s.Actor,
			Status:  s.Status,
			Current: true,
		}
	}

	// Build history from events.
	events, _ := e.store.GetEvents(ctx, rctx.TenantID, requestID)
	history := make([]model.HistoryEntry, 0, len(events))
	for _, evt := range events {
		stageName := evt.StageID
		if s := flowDef.StageByID(evt.StageID); s != nil {
			stageName = s.Name
		}
		history = append(history, model.HistoryEntry{
			StageName: stageName,
			Event:     evt.Event,
			Actor:     evt.ActorID,
			Timestamp: evt.Timestamp.Format(time.RFC3339),
			Comment:   evt.Comment,
		})
	}

	return model.RequestDescriptor{
		ID:           req.ID,
		FlowID:       req.FlowID,
		FlowName:     flowDef.Name,
		State:        req.State,
		Status:       req.Status,
		CurrentStage: current,
		Stages:       stages,
		History:      history,
	}, nil
}

// Cancel cancels an active approval request.
func (e *Engine) Cancel(
	ctx context.Context,
	rctx *model.RequestContext,
	requestID string,
	reason string,
) error {
	req, err := e.store.Get(ctx, rctx.TenantID, requestID)
	if err != nil {
		return err
	}

	if req.State != model.RequestStateActive {
		return model.NewRequestNotActiveError(
			fmt.Sprintf("approval request %q is %s, cannot cancel", requestID, req.State),
		)
	}

	req.State = model.RequestStateCancelled
	req.UpdatedAt = time.Now().UTC()

	if err := e.appendEvent(ctx, req.ID, req.CurrentStageID, "cancelled", rctx.SubjectID, nil, reason); err != nil {
		return err
	}

	return e.store.Update(ctx, req)
}

// List returns request summaries for the current tenant.
func (e *Engine) List(
	ctx context.Context,
	rctx *model.RequestContext,
	filters model.RequestFilters,
) ([]model.RequestSummary, int, error) {
	storeFilters := StoreFilters{
		FlowID:      filters.FlowID,
		State:       filters.State,
		RequesterID: filters.RequesterID,
		Limit:       filters.PageSize,
		Offset:      (filters.Page - 1) * filters.PageSize,
	}
	if storeFilters.Limit <= 0 {
		storeFilters.Limit = 20
	}
	if storeFilters.Offset < 0 {
		storeFilters.Offset = 0
	}

	requests, err := e.store.Find(ctx, rctx.TenantID, storeFilters)
	if err != nil {
		return nil, 0, err
	}

	// Total count: same filters without pagination.
	allFilters := StoreFilters{
		FlowID:      filters.FlowID,
		State:       filters.State,
		RequesterID: filters.RequesterID,
	}
	all, err := e.store.Find(ctx, rctx.TenantID, allFilters)
	if err != nil {
		return nil, 0, err
	}
	totalCount := len(all)

	summaries := make([]model.RequestSummary, 0, len(requests))
	for _, req := range requests {
		name := req.FlowID
		if flowDef, ok := e.registry.GetFlow(req.FlowID); ok {
			name = flowDef.Name
		}
		summaries = append(summaries, model.RequestSummary{
			ID:             req.ID,
			FlowID:         req.FlowID,
			FlowName:       name,
			CurrentStageID: req.CurrentStageID,
			Status:         req.Status,
			State:          req.State,
			RequesterID:    req.RequesterID,
			CreatedAt:      req.CreatedAt,
			UpdatedAt:      req.UpdatedAt,
		})
	}

	return summaries, totalCount, nil
}

// ProcessTimeouts finds expired requests and marks them expired.
func (e *Engine) ProcessTimeouts(ctx context.Context) error {
	now := time.Now().UTC()
	expired, err := e.store.FindExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("find expired requests: %w", err)
	}

	for _, req := range expired {
		req.State = model.RequestStateExpired
		req.UpdatedAt = now
		if err := e.appendEvent(ctx, req.ID, req.CurrentStageID, "expired", "system", nil, ""); err != nil {
			continue
		}
		if err := e.store.Update(ctx, req); err != nil {
			// Conflict means another instance processed it; move on.
			continue
		}
	}
	return nil
}

// appendEvent is a convenience helper for creating and persisting events.
func (e *Engine) appendEvent(
	ctx context.Context,
	requestID, stageID, event, actorID string,
	data map[string]any,
	comment string,
) error {
	return e.store.AppendEvent(ctx, model.RequestEvent{
		ID:        uuid.New().String(),
		RequestID: requestID,
		StageID:   stageID,
		Event:     event,
		ActorID:   actorID,
		Data:      data,
		Comment:   comment,
		Timestamp: time.Now().UTC(),
	})
}
