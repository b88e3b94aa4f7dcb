package api

import (
	"time"

	"github.com/flowbench/flowbench/server/internal/recorder"
)

// PrincipalHeader carries the caller's principal id on ingest requests when
// the body does not.
const PrincipalHeader = "X-Principal-ID"

// ExecutionRequest is the body of POST /api/v1/workflows/{id}/executions.
type ExecutionRequest struct {
	recorder.ExecutionData
	PrincipalID string `json:"principal_id,omitempty"`
	ExecutionID string `json:"execution_id,omitempty"`
}

// NodeRequest is the body of POST /api/v1/workflows/{id}/nodes/{node}.
type NodeRequest struct {
	recorder.NodeData
	PrincipalID string `json:"principal_id,omitempty"`
}

// BenchmarkRequest is the body of POST /api/v1/workflows/{id}/benchmarks.
// Omitted include flags default to true; an empty body runs with defaults.
type BenchmarkRequest struct {
	TimeRange              string `json:"time_range,omitempty"`
	IncludeComparison      *bool  `json:"include_comparison,omitempty"`
	IncludeTrends          *bool  `json:"include_trends,omitempty"`
	IncludeRecommendations *bool  `json:"include_recommendations,omitempty"`
	// Timeout is a Go duration string, e.g. "10s".
	Timeout     string `json:"timeout,omitempty"`
	PrincipalID string `json:"principal_id,omitempty"`
}

// EfficiencyResponse is the payload for GET /api/v1/workflows/{id}/efficiency.
type EfficiencyResponse struct {
	WorkflowID      string  `json:"workflow_id"`
	EfficiencyScore float64 `json:"efficiency_score"`
}

// ClearCacheResponse is the payload for DELETE /api/v1/cache.
type ClearCacheResponse struct {
	Cleared int `json:"cleared"`
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status        string    `json:"status"`
	WorkflowCount int       `json:"workflow_count"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error string `json:"error"`
}
