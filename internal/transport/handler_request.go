package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stagegate/stagegate/internal/observability"
	"github.com/stagegate/stagegate/internal/workflow"
	"github.com/stagegate/stagegate/model"
)

func handleRequestSubmit(engine *workflow.Engine, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var body struct {
			FlowID   string         `json:"flowId"`
			Resource map[string]any `json:"resource"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if body.FlowID == "" {
			WriteValidationError(w, []model.FieldError{
				{Field: "flowId", Code: "REQUIRED", Message: "flowId is required"},
			})
			return
		}

		req, err := engine.Submit(r.Context(), rctx, body.FlowID, body.Resource)
		if err != nil {
			WriteError(w, err)
			return
		}
		if metrics != nil {
			metrics.RecordRequestSubmitted(req.FlowID)
		}
		WriteJSON(w, http.StatusCreated, req)
	}
}

func handleRequestDecide(
	engine *workflow.Engine,
	idempotency workflow.IdempotencyStore,
	idempotencyTTL time.Duration,
	metrics *observability.Metrics,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		requestID := chi.URLParam(r, "requestId")

		var body struct {
			Decision model.ApprovalStatus `json:"decision"`
			Comment  string               `json:"comment"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		// Replay detection: an identical decision with the same key returns
		// the cached result; a different decision under the same key conflicts.
		idemKey := r.Header.Get("X-Idempotency-Key")
		var fullKey, inputHash string
		if idempotency != nil && idemKey != "" {
			fullKey = workflow.FormatIdempotencyKey(requestID, idemKey)
			inputHash = workflow.HashDecisionInput(body.Decision, body.Comment)
			cached, found, err := idempotency.Check(r.Context(), fullKey, inputHash)
			if err != nil {
				WriteError(w, err)
				return
			}
			if found {
				w.Header().Set("X-Idempotency-Replay", "true")
				WriteJSON(w, http.StatusOK, cached)
				return
			}
		}

		req, err := engine.Decide(r.Context(), rctx, requestID, body.Decision, body.Comment)
		if err != nil {
			WriteError(w, err)
			return
		}

		if metrics != nil {
			metrics.RecordDecision(req.FlowID, string(body.Decision))
			if req.State == model.RequestStateCompleted {
				metrics.RecordRequestCompletion(req.FlowID, string(req.Status))
			}
		}

		if idempotency != nil && fullKey != "" {
			// The decision already took effect; a failed cache write only
			// disables replay detection for this key.
			if err := idempotency.Store(r.Context(), fullKey, inputHash, req, idempotencyTTL); err != nil {
				slog.Warn("idempotency store failed", "error", err, "key", fullKey)
			}
		}

		WriteJSON(w, http.StatusOK, req)
	}
}

func handleRequestGet(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		requestID := chi.URLParam(r, "requestId")

		desc, err := engine.Get(r.Context(), rctx, requestID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}

func handleRequestCancel(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		requestID := chi.URLParam(r, "requestId")

		var body struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		if err := engine.Cancel(r.Context(), rctx, requestID, body.Reason); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"state": model.RequestStateCancelled})
	}
}

func handleRequestList(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		filters := model.RequestFilters{
			FlowID:      r.URL.Query().Get("flow_id"),
			State:       r.URL.Query().Get("state"),
			RequesterID: r.URL.Query().Get("requester_id"),
			Page:        queryInt(r, "page", 1),
			PageSize:    queryInt(r, "page_size", 20),
		}

		summaries, totalCount, err := engine.List(r.Context(), rctx, filters)
		if err != nil {
			WriteError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"data":        summaries,
			"total_count": totalCount,
			"page":        filters.Page,
			"page_size":   filters.PageSize,
		})
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
