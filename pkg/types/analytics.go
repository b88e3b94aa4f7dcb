package types

import "time"

// AnalyticsSnapshot is the flat reduction of a workflow's executions inside a
// time window. It is derived on demand and never persisted.
//
// All percentages are in the range 0-100. Execution-time fields are in
// milliseconds and satisfy Min ≤ Median ≤ P95 ≤ P99 ≤ Max.
type AnalyticsSnapshot struct {
	WorkflowID           string     `json:"workflow_id"`
	PrincipalID          string     `json:"principal_id,omitempty"`
	TimeRange            TimeRange  `json:"time_range"`
	TotalExecutions      int        `json:"total_executions"`
	SuccessfulExecutions int        `json:"successful_executions"`
	FailedExecutions     int        `json:"failed_executions"`
	SuccessRate          float64    `json:"success_rate"`
	MinExecutionTime     float64    `json:"min_execution_time"`
	MedianExecutionTime  float64    `json:"median_execution_time"`
	AvgExecutionTime     float64    `json:"avg_execution_time"`
	P95ExecutionTime     float64    `json:"p95_execution_time"`
	P99ExecutionTime     float64    `json:"p99_execution_time"`
	MaxExecutionTime     float64    `json:"max_execution_time"`
	TotalItemsProcessed  int64      `json:"total_items_processed"`
	AvgThroughput        float64    `json:"avg_throughput"` // items per second of execution time
	FirstExecutionAt     *time.Time `json:"first_execution_at"`
	LastExecutionAt      *time.Time `json:"last_execution_at"`
}

// TrendDirection is the classification of a series' movement.
type TrendDirection string

// Trend directions.
const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// TrendPoint is one calendar day (UTC) of execution activity.
type TrendPoint struct {
	Date             string  `json:"date"` // YYYY-MM-DD
	Executions       int     `json:"executions"`
	AvgExecutionTime float64 `json:"avg_execution_time"`
	SuccessRate      float64 `json:"success_rate"`
	AvgThroughput    float64 `json:"avg_throughput"`
}

// TrendSeries is the per-day breakdown of a workflow's executions together
// with the direction of each tracked metric.
type TrendSeries struct {
	WorkflowID         string         `json:"workflow_id"`
	TimeRange          TimeRange      `json:"time_range"`
	Points             []TrendPoint   `json:"points"`
	ExecutionTimeTrend TrendDirection `json:"execution_time_trend"`
	SuccessRateTrend   TrendDirection `json:"success_rate_trend"`
	ThroughputTrend    TrendDirection `json:"throughput_trend"`
}

// Bottleneck severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// BottleneckFinding describes a node whose latency or failure rate crossed a
// threshold.
type BottleneckFinding struct {
	NodeID         string  `json:"node_id"`
	NodeType       string  `json:"node_type"`
	AvgDurationMs  float64 `json:"avg_duration_ms"`
	SuccessRate    float64 `json:"success_rate"`
	ExecutionCount int     `json:"execution_count"`
	Severity       string  `json:"severity"`
}

// ErrorFrequency is one row of the failure-message frequency table.
type ErrorFrequency struct {
	Message    string  `json:"message"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"` // share of all failures
}

// ErrorAnalysis summarises why executions failed.
type ErrorAnalysis struct {
	TotalExecutions int              `json:"total_executions"`
	TotalErrors     int              `json:"total_errors"`
	ErrorRate       float64          `json:"error_rate"`
	Errors          []ErrorFrequency `json:"errors"`
}

// Utilization is the share of execution time spent in successful runs.
type Utilization struct {
	SuccessfulTimeMs int64   `json:"successful_time_ms"`
	TotalTimeMs      int64   `json:"total_time_ms"`
	UtilizationPct   float64 `json:"utilization_pct"`
	NodeCoveragePct  float64 `json:"node_coverage_pct"` // nodes executed / total nodes
}

// Throughput is the processing rate of a workflow inside a window.
type Throughput struct {
	TotalItems        int64   `json:"total_items"`
	ItemsPerSecond    float64 `json:"items_per_second"`
	ExecutionsPerHour float64 `json:"executions_per_hour"`
	Executions        int     `json:"executions"`
}
