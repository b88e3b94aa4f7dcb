package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/flowbench/flowbench/pkg/types"
	"github.com/flowbench/flowbench/server/internal/benchmark"
	"github.com/flowbench/flowbench/server/internal/observability"
	"github.com/flowbench/flowbench/server/internal/recorder"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Engine is the subset of the analytics engine the API serves.
type Engine interface {
	RecordExecution(ctx context.Context, workflowID string, data recorder.ExecutionData, rc recorder.RecordContext) (*types.ExecutionRecord, error)
	RecordNode(ctx context.Context, workflowID, nodeID string, data recorder.NodeData, rc recorder.RecordContext) (*types.NodeRecord, error)
	Counters(workflowID string) (types.WorkflowCounters, bool)
	AllCounters() []types.WorkflowCounters
	GetAnalytics(ctx context.Context, workflowID string, tr types.TimeRange) types.AnalyticsSnapshot
	GetTrends(ctx context.Context, workflowID string, tr types.TimeRange) types.TrendSeries
	GetBottlenecks(ctx context.Context, workflowID string, tr types.TimeRange) []types.BottleneckFinding
	GetEfficiencyScore(ctx context.Context, workflowID string) float64
	RunBenchmark(ctx context.Context, workflowID string, opts benchmark.Options) (*types.BenchmarkReport, error)
	GetHistoricalBenchmarkTrends(ctx context.Context, workflowID string, tr types.TimeRange) types.BenchmarkTrendSeries
	RankWorkflows(ctx context.Context, principalID string) []types.RankedWorkflow
	ClearCache() int
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	engine  Engine
	router  *mux.Router
	metrics *observability.Metrics
}

// Option configures a Handler.
type Option func(*Handler)

// WithMetrics counts requests per route template.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithMiddleware wraps every API route, e.g. with API-key authentication.
func WithMiddleware(mw mux.MiddlewareFunc) Option {
	return func(h *Handler) { h.router.Use(mw) }
}

// New creates a Handler wired to engine and registers all routes.
func New(engine Engine, opts ...Option) *Handler {
	h := &Handler{engine: engine, router: mux.NewRouter()}
	r := h.router

	// mux skips Use middleware for these two, so they are instrumented here.
	r.NotFoundHandler = h.instrument(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	}))
	r.MethodNotAllowedHandler = h.instrument(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}))

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", h.health).Methods(http.MethodGet)
	v1.HandleFunc("/counters", h.allCounters).Methods(http.MethodGet)
	v1.HandleFunc("/cache", h.clearCache).Methods(http.MethodDelete)
	v1.HandleFunc("/principals/{id}/rankings", h.rankings).Methods(http.MethodGet)

	wf := v1.PathPrefix("/workflows/{id}").Subrouter()
	wf.HandleFunc("/executions", h.recordExecution).Methods(http.MethodPost)
	wf.HandleFunc("/nodes/{node}", h.recordNode).Methods(http.MethodPost)
	wf.HandleFunc("/analytics", h.analytics).Methods(http.MethodGet)
	wf.HandleFunc("/trends", h.trends).Methods(http.MethodGet)
	wf.HandleFunc("/bottlenecks", h.bottlenecks).Methods(http.MethodGet)
	wf.HandleFunc("/efficiency", h.efficiency).Methods(http.MethodGet)
	wf.HandleFunc("/counters", h.counters).Methods(http.MethodGet)
	wf.HandleFunc("/benchmarks", h.runBenchmark).Methods(http.MethodPost)
	wf.HandleFunc("/benchmarks/trends", h.benchmarkTrends).Methods(http.MethodGet)

	r.Use(h.instrument)
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		WorkflowCount: len(h.engine.AllCounters()),
		GeneratedAt:   time.Now().UTC(),
	})
}

// recordExecution handles POST /api/v1/workflows/{id}/executions.
func (h *Handler) recordExecution(w http.ResponseWriter, r *http.Request) {
	var req ExecutionRequest
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	rc := recorder.RecordContext{PrincipalID: principal(r, req.PrincipalID), ExecutionID: req.ExecutionID}
	rec, err := h.engine.RecordExecution(r.Context(), mux.Vars(r)["id"], req.ExecutionData, rc)
	if err != nil {
		writeRecordErr(w, err)
		return
	}
	jsonResp(w, http.StatusCreated, rec)
}

// recordNode handles POST /api/v1/workflows/{id}/nodes/{node}.
func (h *Handler) recordNode(w http.ResponseWriter, r *http.Request) {
	var req NodeRequest
	if err := decodeBody(r, &req); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	vars := mux.Vars(r)
	rc := recorder.RecordContext{PrincipalID: principal(r, req.PrincipalID)}
	rec, err := h.engine.RecordNode(r.Context(), vars["id"], vars["node"], req.NodeData, rc)
	if err != nil {
		writeRecordErr(w, err)
		return
	}
	jsonResp(w, http.StatusCreated, rec)
}

func (h *Handler) analytics(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, h.engine.GetAnalytics(r.Context(), mux.Vars(r)["id"], timeRange(r)))
}

func (h *Handler) trends(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, h.engine.GetTrends(r.Context(), mux.Vars(r)["id"], timeRange(r)))
}

func (h *Handler) bottlenecks(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, h.engine.GetBottlenecks(r.Context(), mux.Vars(r)["id"], timeRange(r)))
}

func (h *Handler) efficiency(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	jsonResp(w, http.StatusOK, EfficiencyResponse{
		WorkflowID:      id,
		EfficiencyScore: h.engine.GetEfficiencyScore(r.Context(), id),
	})
}

// counters returns 404 for a workflow this process has not recorded.
func (h *Handler) counters(w http.ResponseWriter, r *http.Request) {
	c, ok := h.engine.Counters(mux.Vars(r)["id"])
	if !ok {
		jsonErr(w, http.StatusNotFound, "no executions recorded for workflow")
		return
	}
	jsonResp(w, http.StatusOK, c)
}

func (h *Handler) allCounters(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, h.engine.AllCounters())
}

// runBenchmark handles POST /api/v1/workflows/{id}/benchmarks.
func (h *Handler) runBenchmark(w http.ResponseWriter, r *http.Request) {
	var req BenchmarkRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	opts, err := req.options()
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if opts.PrincipalID == "" {
		opts.PrincipalID = r.Header.Get(PrincipalHeader)
	}

	report, err := h.engine.RunBenchmark(r.Context(), mux.Vars(r)["id"], opts)
	switch {
	case errors.Is(err, benchmark.ErrNoExecutions):
		jsonErr(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, benchmark.ErrTimeout):
		jsonErr(w, http.StatusGatewayTimeout, err.Error())
	case err != nil:
		jsonErr(w, http.StatusInternalServerError, err.Error())
	default:
		jsonResp(w, http.StatusCreated, report)
	}
}

func (h *Handler) benchmarkTrends(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, h.engine.GetHistoricalBenchmarkTrends(r.Context(), mux.Vars(r)["id"], timeRange(r)))
}

func (h *Handler) rankings(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, h.engine.RankWorkflows(r.Context(), mux.Vars(r)["id"]))
}

func (h *Handler) clearCache(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, ClearCacheResponse{Cleared: h.engine.ClearCache()})
}

// --- middleware -------------------------------------------------------------

// instrument counts requests by route template and status code. Requests
// that matched no route are labelled "unmatched".
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		h.metrics.ObserveHTTP(route, sw.code)
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (s *statusWriter) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

// --- helpers ----------------------------------------------------------------

func (req BenchmarkRequest) options() (benchmark.Options, error) {
	opts := benchmark.DefaultOptions()
	opts.TimeRange, _ = types.ResolveTimeRange(req.TimeRange)
	opts.PrincipalID = req.PrincipalID
	if req.IncludeComparison != nil {
		opts.IncludeComparison = *req.IncludeComparison
	}
	if req.IncludeTrends != nil {
		opts.IncludeTrends = *req.IncludeTrends
	}
	if req.IncludeRecommendations != nil {
		opts.IncludeRecommendations = *req.IncludeRecommendations
	}
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			return opts, fmt.Errorf("invalid timeout %q", req.Timeout)
		}
		opts.Timeout = d
	}
	return opts, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeRecordErr(w http.ResponseWriter, err error) {
	if errors.Is(err, recorder.ErrInvalidRecord) {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	jsonErr(w, http.StatusInternalServerError, err.Error())
}

func principal(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return r.Header.Get(PrincipalHeader)
}

func timeRange(r *http.Request) types.TimeRange {
	tr, _ := types.ResolveTimeRange(r.URL.Query().Get("range"))
	return tr
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
