package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/stagegate/stagegate/internal/definition"
	"github.com/stagegate/stagegate/internal/observability"
	"github.com/stagegate/stagegate/internal/rules"
	"github.com/stagegate/stagegate/model"
)

// evaluateRequest is the body of POST /api/rules/evaluate. Condition groups
// may be supplied inline, referenced by id from loaded definitions, or both;
// all groups combine with implicit AND.
type evaluateRequest struct {
	Groups   []model.ConditionGroup   `json:"groups"`
	GroupIDs []string                 `json:"groupIds"`
	Context  *model.EvaluationContext `json:"context"`
}

func handleRulesEvaluate(registry *definition.Registry, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body evaluateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		groups := body.Groups
		if len(body.GroupIDs) > 0 {
			resolved, err := registry.ResolveConditionGroups(body.GroupIDs)
			if err != nil {
				WriteError(w, model.NewValidationError([]model.FieldError{
					{Field: "groupIds", Code: "REF_NOT_FOUND", Message: err.Error()},
				}))
				return
			}
			groups = append(groups, resolved...)
		}

		start := time.Now()
		result := rules.EvaluateWithDetails(groups, body.Context)
		if metrics != nil {
			metrics.RecordRuleEvaluation(result.Passed, time.Since(start))
		}

		WriteJSON(w, http.StatusOK, result)
	}
}
