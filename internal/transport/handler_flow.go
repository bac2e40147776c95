package transport

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stagegate/stagegate/internal/definition"
	"github.com/stagegate/stagegate/internal/flow"
	"github.com/stagegate/stagegate/internal/observability"
	"github.com/stagegate/stagegate/model"
)

func handleFlowList(registry *definition.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		flows := registry.AllFlows()
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":     flows,
			"checksum": registry.Checksum(),
		})
	}
}

func handleFlowGet(registry *definition.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flowID := chi.URLParam(r, "flowId")
		flowDef, ok := registry.GetFlow(flowID)
		if !ok {
			WriteError(w, model.NewFlowNotFoundError(
				fmt.Sprintf("flow %q not found", flowID),
			))
			return
		}
		WriteJSON(w, http.StatusOK, flowDef)
	}
}

// handleFlowValidate checks an ad-hoc flow definition for structural
// well-formedness. Definitions arrive as untrusted JSON from the flow
// builder, so a malformed one yields valid:false, never an error status.
func handleFlowValidate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var def model.ApprovalFlowDefinition
		if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		WriteJSON(w, http.StatusOK, map[string]bool{
			"valid": flow.ValidateDefinition(&def),
		})
	}
}

// pathRequest is the body of the path evaluation endpoints. Definition is
// required for the ad-hoc variant and ignored when a flowId is in the URL.
type pathRequest struct {
	Definition *model.ApprovalFlowDefinition `json:"definition,omitempty"`
	Path       []model.ApprovalStatus        `json:"path"`
}

func handleFlowPath(registry *definition.Registry, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flowID := chi.URLParam(r, "flowId")
		flowDef, ok := registry.GetFlow(flowID)
		if !ok {
			WriteError(w, model.NewFlowNotFoundError(
				fmt.Sprintf("flow %q not found", flowID),
			))
			return
		}

		var body pathRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		result := flow.EvaluatePath(&flowDef, body.Path)
		if metrics != nil {
			metrics.RecordPathValidation(result.IsValid)
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

func handleAdhocPath(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body pathRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		result := flow.EvaluatePath(body.Definition, body.Path)
		if metrics != nil {
			metrics.RecordPathValidation(result.IsValid)
		}
		WriteJSON(w, http.StatusOK, result)
	}
}
