package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stagegate/stagegate/model"
)

// PgRequestStore is a PostgreSQL-backed RequestStore using pgx/v5.
type PgRequestStore struct {
	pool *pgxpool.Pool
}

// NewPgRequestStore creates a new PostgreSQL request store.
func NewPgRequestStore(pool *pgxpool.Pool) *PgRequestStore {
	return &PgRequestStore{pool: pool}
}

// Create inserts a new approval request.
func (s *PgRequestStore) Create(ctx context.Context, req model.ApprovalRequest) error {
	resourceJSON, err := json.Marshal(req.Resource)
	if err != nil {
		return fmt.Errorf("marshal resource: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO approval_requests (
			id, flow_id, tenant_id, requester_id,
			current_stage_id, previous_stage_id, status, state,
			resource, iteration, version,
			created_at, updated_at, expires_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11,
			$12, $13, $14
		)`,
		req.ID, req.FlowID, req.TenantID, req.RequesterID,
		req.CurrentStageID, req.PreviousStageID, req.Status, req.State,
		resourceJSON, req.Iteration, req.Version,
		req.CreatedAt, req.UpdatedAt, req.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert approval request: %w", err)
	}
	return nil
}

// Get retrieves a request by ID, scoped to tenant.
func (s *PgRequestStore) Get(ctx context.Context, tenantID, requestID string) (model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	var resourceJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, flow_id, tenant_id, requester_id,
		       current_stage_id, previous_stage_id, status, state,
		       resource, iteration, version,
		       created_at, updated_at, expires_at
		FROM approval_requests
		WHERE id = $1 AND tenant_id = $2`,
		requestID, tenantID,
	).Scan(
		&req.ID, &req.FlowID, &req.TenantID, &req.RequesterID,
		&req.CurrentStageID, &req.PreviousStageID, &req.Status, &req.State,
		&resourceJSON, &req.Iteration, &req.Version,
		&req.CreatedAt, &req.UpdatedAt, &req.ExpiresAt,
	)
	if err == pgx.ErrNoRows {
		return model.ApprovalRequest{}, model.NewNotFoundError(
			fmt.Sprintf("approval request %q not found", requestID),
		)
	}
	if err != nil {
		return model.ApprovalRequest{}, fmt.Errorf("query approval request: %w", err)
	}

	if resourceJSON != nil {
		if err := json.Unmarshal(resourceJSON, &req.Resource); err != nil {
			return model.ApprovalRequest{}, fmt.Errorf("unmarshal resource: %w", err)
		}
	}

	return req, nil
}

// Update persists an updated request with optimistic locking.
func (s *PgRequestStore) Update(ctx context.Context, req model.ApprovalRequest) error {
	resourceJSON, err := json.Marshal(req.Resource)
	if err != nil {
		return fmt.Errorf("marshal resource: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE approval_requests SET
			current_stage_id = $1,
			previous_stage_id = $2,
			status = $3,
			state = $4,
			resource = $5,
			iteration = $6,
			version = $7,
			updated_at = $8,
			expires_at = $9
		WHERE id = $10 AND version = $11`,
		req.CurrentStageID, req.PreviousStageID, req.Status, req.State,
		resourceJSON, req.Iteration, req.Version+1,
		time.Now().UTC(), req.ExpiresAt,
		req.ID, req.Version,
	)
	if err != nil {
		return fmt.Errorf("update approval request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("approval request %q version conflict (expected %d)", req.ID, req.Version),
		)
	}
	return nil
}

// AppendEvent adds an event to the request audit trail.
func (s *PgRequestStore) AppendEvent(ctx context.Context, event model.RequestEvent) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO request_events (
			id, request_id, stage_id, event, actor_id, data, comment, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.RequestID, event.StageID, event.Event,
		event.ActorID, dataJSON, event.Comment, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert request event: %w", err)
	}
	return nil
}

// GetEvents retrieves all events for a request.
func (s *PgRequestStore) GetEvents(ctx context.Context, tenantID, requestID string) ([]model.RequestEvent, error) {
	// Verify tenant access.
	_, err := s.Get(ctx, tenantID, requestID)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, request_id, stage_id, event, actor_id, data, comment, created_at
		FROM request_events
		WHERE request_id = $1
		ORDER BY created_at ASC`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("query request events: %w", err)
	}
	defer rows.Close()

	var events []model.RequestEvent
	for rows.Next() {
		var evt model.RequestEvent
		var dataJSON []byte
		if err := rows.Scan(
			&evt.ID, &evt.RequestID, &evt.StageID, &evt.Event,
			&evt.ActorID, &dataJSON, &evt.Comment, &evt.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan request event: %w", err)
		}
		if dataJSON != nil {
			_ = json.Unmarshal(dataJSON, &evt.Data)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Find returns requests for a tenant matching the filters.
func (s *PgRequestStore) Find(ctx context.Context, tenantID string, filters StoreFilters) ([]model.ApprovalRequest, error) {
	query := `SELECT id, flow_id, tenant_id, requester_id,
	                 current_stage_id, previous_stage_id, status, state,
	                 resource, iteration, version,
	                 created_at, updated_at, expires_at
	          FROM approval_requests
	          WHERE tenant_id = $1`
	args := []any{tenantID}
	argIdx := 2

	if filters.FlowID != "" {
		query += fmt.Sprintf(" AND flow_id = $%d", argIdx)
		args = append(args, filters.FlowID)
		argIdx++
	}
	if filters.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, filters.State)
		argIdx++
	}
	if filters.RequesterID != "" {
		query += fmt.Sprintf(" AND requester_id = $%d", argIdx)
		args = append(args, filters.RequesterID)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	return s.queryRequests(ctx, query, args...)
}

// FindExpired returns active requests past their expiration time.
func (s *PgRequestStore) FindExpired(ctx context.Context, cutoff time.Time) ([]model.ApprovalRequest, error) {
	query := `SELECT id, flow_id, tenant_id, requester_id,
	                 current_stage_id, previous_stage_id, status, state,
	                 resource, iteration, version,
	                 created_at, updated_at, expires_at
	          FROM approval_requests
	          WHERE state = 'active' AND expires_at IS NOT NULL AND expires_at < $1
	          ORDER BY expires_at ASC`
	return s.queryRequests(ctx, query, cutoff)
}

// Delete removes a request and its events.
func (s *PgRequestStore) Delete(ctx context.Context, tenantID, requestID string) error {
	// Delete events first (foreign key).
	_, err := s.pool.Exec(ctx, `
		DELETE FROM request_events
		WHERE request_id = $1
		AND request_id IN (SELECT id FROM approval_requests WHERE tenant_id = $2)`,
		requestID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("delete request events: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM approval_requests
		WHERE id = $1 AND tenant_id = $2`,
		requestID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("delete approval request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(
			fmt.Sprintf("approval request %q not found", requestID),
		)
	}
	return nil
}

// queryRequests executes a query and returns approval requests.
func (s *PgRequestStore) queryRequests(ctx context.Context, query string, args ...any) ([]model.ApprovalRequest, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query approval requests: %w", err)
	}
	defer rows.Close()

	var requests []model.ApprovalRequest
	for rows.Next() {
		var req model.ApprovalRequest
		var resourceJSON []byte
		if err := rows.Scan(
			&req.ID, &req.FlowID, &req.TenantID, &req.RequesterID,
			&req.CurrentStageID, &req.PreviousStageID, &req.Status, &req.State,
			&resourceJSON, &req.Iteration, &req.Version,
			&req.CreatedAt, &req.UpdatedAt, &req.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan approval request: %w", err)
		}
		if resourceJSON != nil {
			_ = json.Unmarshal(resourceJSON, &req.Resource)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}
