package workflow

import (
	"context"
	"time"

	"github.com/stagegate/stagegate/model"
)

// RequestStore persists approval requests and their audit events.
type RequestStore interface {
	// Create persists a new approval request.
	Create(ctx context.Context, req model.ApprovalRequest) error

	// Get retrieves a request by ID, scoped to a tenant. Returns NOT_FOUND
	// if the request doesn't exist or belongs to a different tenant.
	Get(ctx context.Context, tenantID, requestID string) (model.ApprovalRequest, error)

	// Update persists an updated request with optimistic locking. The version
	// must match the current stored version. Returns CONFLICT if the version
	// has changed.
	Update(ctx context.Context, req model.ApprovalRequest) error

	// AppendEvent adds an event to the request's audit trail.
	AppendEvent(ctx context.Context, event model.RequestEvent) error

	// GetEvents retrieves all events for a request, scoped to a tenant.
	GetEvents(ctx context.Context, tenantID, requestID string) ([]model.RequestEvent, error)

	// Find returns requests for a tenant matching the filters.
	Find(ctx context.Context, tenantID string, filters StoreFilters) ([]model.ApprovalRequest, error)

	// FindExpired returns active requests whose expires_at is before the
	// given cutoff time.
	FindExpired(ctx context.Context, cutoff time.Time) ([]model.ApprovalRequest, error)

	// Delete removes a request and its events.
	Delete(ctx context.Context, tenantID, requestID string) error
}

// StoreFilters are optional filters for listing approval requests.
type StoreFilters struct {
	FlowID      string
	State       string
	RequesterID string
	Limit       int
	Offset      int
}
