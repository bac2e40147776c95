package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stagegate/stagegate/internal/config"
	"github.com/stagegate/stagegate/internal/definition"
	"github.com/stagegate/stagegate/internal/observability"
	"github.com/stagegate/stagegate/internal/workflow"
	"github.com/stagegate/stagegate/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config             *config.Config
	Authenticate       func(http.Handler) http.Handler
	CapabilityResolver model.CapabilityResolver
	Registry           *definition.Registry
	Engine             *workflow.Engine
	Idempotency        workflow.IdempotencyStore
	IdempotencyTTL     time.Duration
	Metrics            *observability.Metrics
	Health             http.HandlerFunc
	Ready              http.HandlerFunc
	MetricsHandler     http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(observability.TracingMiddleware)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}

	// Public routes — bypass authentication.
	health := deps.Health
	if health == nil {
		health = observability.HandleHealth()
	}
	ready := deps.Ready
	if ready == nil {
		ready = observability.HandleReady(observability.ReadinessChecks{})
	}
	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = observability.Handler()
	}
	r.Get("/health", health)
	r.Get("/ready", ready)
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	// Authenticated routes — full middleware chain.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext(deps.Config.Identity.ClaimPaths))
		r.Use(ResolveCapabilities(deps.CapabilityResolver))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging)

		// Condition evaluation.
		r.Post("/api/rules/evaluate", handleRulesEvaluate(deps.Registry, deps.Metrics))

		// Flow definitions and path checking.
		r.Get("/api/flows", handleFlowList(deps.Registry))
		r.Post("/api/flows/validate", handleFlowValidate())
		r.Post("/api/flows/path", handleAdhocPath(deps.Metrics))
		r.Get("/api/flows/{flowId}", handleFlowGet(deps.Registry))
		r.Post("/api/flows/{flowId}/path", handleFlowPath(deps.Registry, deps.Metrics))

		// Approval request lifecycle.
		r.Post("/api/requests", handleRequestSubmit(deps.Engine, deps.Metrics))
		r.Get("/api/requests", handleRequestList(deps.Engine))
		r.Get("/api/requests/{requestId}", handleRequestGet(deps.Engine))
		r.Post("/api/requests/{requestId}/decision", handleRequestDecide(
			deps.Engine, deps.Idempotency, deps.IdempotencyTTL, deps.Metrics))
		r.Post("/api/requests/{requestId}/cancel", handleRequestCancel(deps.Engine))
	})

	return r
}
