package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	evalDurationBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}
	bodySizeBuckets     = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Rule evaluation metrics
	RuleEvaluationsTotal   *prometheus.CounterVec
	RuleEvaluationDuration prometheus.Histogram
	RuleEvaluationErrors   prometheus.Counter

	// Path validation metrics
	PathValidationsTotal *prometheus.CounterVec

	// Approval request metrics
	RequestsSubmittedTotal  *prometheus.CounterVec
	DecisionsTotal          *prometheus.CounterVec
	RequestCompletionsTotal *prometheus.CounterVec
	RequestsActive          *prometheus.GaugeVec
	RequestTimeoutsTotal    *prometheus.CounterVec
	StageDuration           *prometheus.HistogramVec

	// Cache metrics
	CapabilityCacheHitsTotal   prometheus.Counter
	CapabilityCacheMissesTotal prometheus.Counter

	// System metrics
	DefinitionReloadTotal *prometheus.CounterVec
	DefinitionsLoaded     prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stagegate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stagegate_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stagegate_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Rule evaluation
		RuleEvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_rule_evaluations_total",
			Help: "Total number of condition group evaluations.",
		}, []string{"result"}),
		RuleEvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stagegate_rule_evaluation_duration_seconds",
			Help:    "Condition group evaluation duration in seconds.",
			Buckets: evalDurationBuckets,
		}),
		RuleEvaluationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stagegate_rule_evaluation_errors_total",
			Help: "Total number of evaluations that failed closed on an error.",
		}),

		// Path validation
		PathValidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_path_validations_total",
			Help: "Total number of transition path validations.",
		}, []string{"result"}),

		// Approval requests
		RequestsSubmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_requests_submitted_total",
			Help: "Total number of approval requests submitted.",
		}, []string{"flow_id"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_decisions_total",
			Help: "Total number of stage decisions recorded.",
		}, []string{"flow_id", "decision"}),
		RequestCompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_request_completions_total",
			Help: "Total number of approval requests reaching a terminal status.",
		}, []string{"flow_id", "final_status"}),
		RequestsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stagegate_requests_active",
			Help: "Number of active approval requests.",
		}, []string{"flow_id"}),
		RequestTimeoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_request_timeouts_total",
			Help: "Total number of approval requests that expired.",
		}, []string{"flow_id"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stagegate_stage_duration_seconds",
			Help:    "Time spent in an approval stage in seconds.",
			Buckets: []float64{1, 60, 300, 3600, 86400, 604800},
		}, []string{"flow_id", "stage_id"}),

		// Cache
		CapabilityCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stagegate_capability_cache_hits_total",
			Help: "Total capability cache hits.",
		}),
		CapabilityCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stagegate_capability_cache_misses_total",
			Help: "Total capability cache misses.",
		}),

		// System
		DefinitionReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagegate_definition_reload_total",
			Help: "Total definition reloads.",
		}, []string{"status"}),
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stagegate_definitions_loaded",
			Help: "Number of loaded flow definitions.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Rule evaluation
		m.RuleEvaluationsTotal,
		m.RuleEvaluationDuration,
		m.RuleEvaluationErrors,
		// Path validation
		m.PathValidationsTotal,
		// Approval requests
		m.RequestsSubmittedTotal,
		m.DecisionsTotal,
		m.RequestCompletionsTotal,
		m.RequestsActive,
		m.RequestTimeoutsTotal,
		m.StageDuration,
		// Cache
		m.CapabilityCacheHitsTotal,
		m.CapabilityCacheMissesTotal,
		// System
		m.DefinitionReloadTotal,
		m.DefinitionsLoaded,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordRuleEvaluation records a condition group evaluation outcome.
func (m *Metrics) RecordRuleEvaluation(passed bool, duration time.Duration) {
	result := "failed"
	if passed {
		result = "passed"
	}
	m.RuleEvaluationsTotal.WithLabelValues(result).Inc()
	m.RuleEvaluationDuration.Observe(duration.Seconds())
}

// RecordRuleEvaluationError records an evaluation that failed closed.
func (m *Metrics) RecordRuleEvaluationError() {
	m.RuleEvaluationErrors.Inc()
}

// RecordPathValidation records a transition path validation outcome.
func (m *Metrics) RecordPathValidation(valid bool) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.PathValidationsTotal.WithLabelValues(result).Inc()
}

// RecordRequestSubmitted records an approval request submission.
func (m *Metrics) RecordRequestSubmitted(flowID string) {
	m.RequestsSubmittedTotal.WithLabelValues(flowID).Inc()
	m.RequestsActive.WithLabelValues(flowID).Inc()
}

// RecordDecision records a stage decision.
func (m *Metrics) RecordDecision(flowID, decision string) {
	m.DecisionsTotal.WithLabelValues(flowID, decision).Inc()
}

// RecordRequestCompletion records a request reaching a terminal status.
func (m *Metrics) RecordRequestCompletion(flowID, finalStatus string) {
	m.RequestCompletionsTotal.WithLabelValues(flowID, finalStatus).Inc()
	m.RequestsActive.WithLabelValues(flowID).Dec()
}

// RecordRequestTimeout records an expired approval request.
func (m *Metrics) RecordRequestTimeout(flowID string) {
	m.RequestTimeoutsTotal.WithLabelValues(flowID).Inc()
	m.RequestsActive.WithLabelValues(flowID).Dec()
}

// RecordStageDuration records how long a request spent in a stage.
func (m *Metrics) RecordStageDuration(flowID, stageID string, duration time.Duration) {
	m.StageDuration.WithLabelValues(flowID, stageID).Observe(duration.Seconds())
}

// RecordCapabilityCacheHit records a capability cache hit.
func (m *Metrics) RecordCapabilityCacheHit() {
	m.CapabilityCacheHitsTotal.Inc()
}

// RecordCapabilityCacheMiss records a capability cache miss.
func (m *Metrics) RecordCapabilityCacheMiss() {
	m.CapabilityCacheMissesTotal.Inc()
}

// RecordDefinitionReload records a definition reload.
func (m *Metrics) RecordDefinitionReload(status string) {
	m.DefinitionReloadTotal.WithLabelValues(status).Inc()
}

// SetDefinitionsLoaded sets the number of loaded flow definitions.
func (m *Metrics) SetDefinitionsLoaded(count float64) {
	m.DefinitionsLoaded.Set(count)
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
