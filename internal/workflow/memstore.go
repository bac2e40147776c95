package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stagegate/stagegate/model"
)

// MemoryRequestStore is an in-memory RequestStore for testing and
// single-instance deployments.
type MemoryRequestStore struct {
	mu       sync.RWMutex
	requests map[string]model.ApprovalRequest // key: request ID
	events   map[string][]model.RequestEvent  // key: request ID
}

// NewMemoryRequestStore creates a new in-memory request store.
func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{
		requests: make(map[string]model.ApprovalRequest),
		events:   make(map[string][]model.RequestEvent),
	}
}

// Create persists a new approval request.
func (s *MemoryRequestStore) Create(_ context.Context, req model.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("approval request %q already exists", req.ID),
		)
	}

	s.requests[req.ID] = req
	return nil
}

// Get retrieves a request by ID, scoped to tenant.
func (s *MemoryRequestStore) Get(_ context.Context, tenantID, requestID string) (model.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, exists := s.requests[requestID]
	if !exists || req.TenantID != tenantID {
		return model.ApprovalRequest{}, model.NewNotFoundError(
			fmt.Sprintf("approval request %q not found", requestID),
		)
	}
	return req, nil
}

// Update persists an updated request with optimistic locking.
func (s *MemoryRequestStore) Update(_ context.Context, req model.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.requests[req.ID]
	if !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("approval request %q not found", req.ID),
		)
	}

	// Optimistic lock check.
	if existing.Version != req.Version {
		return model.NewConflictError(
			fmt.Sprintf("approval request %q version conflict (expected %d, got %d)", req.ID, req.Version, existing.Version),
		)
	}

	req.Version++
	req.UpdatedAt = time.Now().UTC()
	s.requests[req.ID] = req
	return nil
}

// AppendEvent adds an event to the request's audit trail.
func (s *MemoryRequestStore) AppendEvent(_ context.Context, event model.RequestEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[event.RequestID] = append(s.events[event.RequestID], event)
	return nil
}

// GetEvents retrieves all events for a request, ordered by timestamp.
func (s *MemoryRequestStore) GetEvents(_ context.Context, tenantID, requestID string) ([]model.RequestEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Verify tenant access.
	req, exists := s.requests[requestID]
	if !exists || req.TenantID != tenantID {
		return nil, model.NewNotFoundError(
			fmt.Sprintf("approval request %q not found", requestID),
		)
	}

	events := s.events[requestID]
	// Return sorted copy.
	result := make([]model.RequestEvent, len(events))
	copy(result, events)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// Find returns requests for a tenant matching the filters.
func (s *MemoryRequestStore) Find(_ context.Context, tenantID string, filters StoreFilters) ([]model.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ApprovalRequest
	for _, req := range s.requests {
		if req.TenantID != tenantID {
			continue
		}
		if filters.FlowID != "" && req.FlowID != filters.FlowID {
			continue
		}
		if filters.State != "" && req.State != filters.State {
			continue
		}
		if filters.RequesterID != "" && req.RequesterID != filters.RequesterID {
			continue
		}
		result = append(result, req)
	}

	// Sort by created_at descending.
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	// Apply offset and limit.
	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return []model.ApprovalRequest{}, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}

	return result, nil
}

// FindExpired returns active requests past their expiration time.
func (s *MemoryRequestStore) FindExpired(_ context.Context, cutoff time.Time) ([]model.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ApprovalRequest
	for _, req := range s.requests {
		if req.State != model.RequestStateActive {
			continue
		}
		if req.ExpiresAt == nil || !req.ExpiresAt.Before(cutoff) {
			continue
		}
		result = append(result, req)
	}

	// Sort by expires_at ascending.
	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpiresAt.Before(*result[j].ExpiresAt)
	})

	return result, nil
}

// Delete removes a request and its events.
func (s *MemoryRequestStore) Delete(_ context.Context, tenantID, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, exists := s.requests[requestID]
	if !exists || req.TenantID != tenantID {
		return model.NewNotFoundError(
			fmt.Sprintf("approval request %q not found", requestID),
		)
	}

	delete(s.requests, requestID)
	delete(s.events, requestID)
	return nil
}

// Len returns the total number of requests. For testing.
func (s *MemoryRequestStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests)
}
