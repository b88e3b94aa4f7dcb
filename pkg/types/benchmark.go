package types

import "time"

// Metric names used for scores, standards and recommendations.
const (
	MetricExecutionTime    = "execution_time"
	MetricSuccessRate      = "success_rate"
	MetricThroughput       = "throughput"
	MetricEfficiency       = "efficiency"
	MetricReliability      = "reliability"
	MetricUtilization      = "utilization"
	MetricScalability      = "scalability"
	MetricConsistency      = "consistency"
	MetricBottleneckImpact = "bottleneck_impact"
)

// MetricNames lists the nine benchmark dimensions in report order.
var MetricNames = []string{
	MetricExecutionTime,
	MetricSuccessRate,
	MetricThroughput,
	MetricEfficiency,
	MetricReliability,
	MetricUtilization,
	MetricScalability,
	MetricConsistency,
	MetricBottleneckImpact,
}

// Scores holds the nine benchmark dimensions, each in the range 0-100.
type Scores struct {
	ExecutionTime    float64 `json:"execution_time"`
	SuccessRate      float64 `json:"success_rate"`
	Throughput       float64 `json:"throughput"`
	Efficiency       float64 `json:"efficiency"`
	Reliability      float64 `json:"reliability"`
	Utilization      float64 `json:"utilization"`
	Scalability      float64 `json:"scalability"`
	Consistency      float64 `json:"consistency"`
	BottleneckImpact float64 `json:"bottleneck_impact"`
}

// Get returns the score for a metric name, or false if the name is unknown.
func (s Scores) Get(metric string) (float64, bool) {
	switch metric {
	case MetricExecutionTime:
		return s.ExecutionTime, true
	case MetricSuccessRate:
		return s.SuccessRate, true
	case MetricThroughput:
		return s.Throughput, true
	case MetricEfficiency:
		return s.Efficiency, true
	case MetricReliability:
		return s.Reliability, true
	case MetricUtilization:
		return s.Utilization, true
	case MetricScalability:
		return s.Scalability, true
	case MetricConsistency:
		return s.Consistency, true
	case MetricBottleneckImpact:
		return s.BottleneckImpact, true
	}
	return 0, false
}

// Mean is the arithmetic mean of the nine scores.
func (s Scores) Mean() float64 {
	return (s.ExecutionTime + s.SuccessRate + s.Throughput + s.Efficiency +
		s.Reliability + s.Utilization + s.Scalability + s.Consistency +
		s.BottleneckImpact) / 9
}

// RawMetrics are the measured values the scores were derived from.
type RawMetrics struct {
	AvgExecutionTimeMs float64 `json:"avg_execution_time_ms"`
	SuccessRate        float64 `json:"success_rate"`
	ItemsPerSecond     float64 `json:"items_per_second"`
	ErrorRate          float64 `json:"error_rate"`
	UtilizationPct     float64 `json:"utilization_pct"`
	TotalExecutions    int     `json:"total_executions"`
	CoefficientOfVar   float64 `json:"coefficient_of_variation"`
	HighBottlenecks    int     `json:"high_bottlenecks"`
	MediumBottlenecks  int     `json:"medium_bottlenecks"`
}

// StandardComparison is one metric measured against its industry standard.
type StandardComparison struct {
	Metric       string  `json:"metric"`
	Actual       float64 `json:"actual"`
	Standard     float64 `json:"standard"`
	Deviation    float64 `json:"deviation"`
	DeviationPct float64 `json:"deviation_pct"`
	Tier         int     `json:"tier"` // 1 (far below) .. 5 (far above)
}

// RankedWorkflow is one row of a principal's workflow ranking.
type RankedWorkflow struct {
	Rank         int       `json:"rank"`
	WorkflowID   string    `json:"workflow_id"`
	OverallScore float64   `json:"overall_score"`
	Grade        string    `json:"grade"`
	BenchmarkAt  time.Time `json:"benchmark_at"`
}

// Comparison places a report against the fixed standards and against the
// other workflows of the same principal.
type Comparison struct {
	Standards    []StandardComparison `json:"standards"`
	AverageTier  float64              `json:"average_tier"`
	OverallLevel string               `json:"overall_level"`
	PeerRank     int                  `json:"peer_rank,omitempty"`
	PeerCount    int                  `json:"peer_count,omitempty"`
	Peers        []RankedWorkflow     `json:"peers,omitempty"`
}

// Recommendation priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
)

// Recommendation is a remediation suggestion for a low-scoring metric.
type Recommendation struct {
	Metric   string  `json:"metric"`
	Score    float64 `json:"score"`
	Priority string  `json:"priority"`
	Text     string  `json:"text"`
}

// Significance is a sample-size heuristic describing how much weight a
// report's scores deserve. It is not an inferential statistic.
type Significance struct {
	SampleSize  int    `json:"sample_size"`
	Level       string `json:"level"` // low | medium | high
	Significant bool   `json:"significant"`
}

// BenchmarkReport is the append-only result of one benchmark run.
type BenchmarkReport struct {
	ID               string              `json:"id"`
	WorkflowID       string              `json:"workflow_id"`
	PrincipalID      string              `json:"principal_id,omitempty"`
	TimeRange        TimeRange           `json:"time_range"`
	Scores           Scores              `json:"scores"`
	Raw              RawMetrics          `json:"raw"`
	OverallScore     float64             `json:"overall_score"`
	Grade            string              `json:"grade"`
	PerformanceLevel string              `json:"performance_level"`
	Significance     Significance        `json:"significance"`
	Comparison       *Comparison         `json:"comparison,omitempty"`
	Recommendations  []Recommendation    `json:"recommendations"`
	Trends           *TrendSeries        `json:"trends,omitempty"`
	Bottlenecks      []BottleneckFinding `json:"bottlenecks"`
	Errors           *ErrorAnalysis      `json:"errors,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

// BenchmarkTrendPoint aggregates the benchmark runs of one calendar day.
type BenchmarkTrendPoint struct {
	Date         string  `json:"date"`
	Runs         int     `json:"runs"`
	OverallScore float64 `json:"overall_score"`
	Scores       Scores  `json:"scores"`
}

// BenchmarkTrendSeries is the historical view over persisted benchmark runs.
type BenchmarkTrendSeries struct {
	WorkflowID   string                    `json:"workflow_id"`
	TimeRange    TimeRange                 `json:"time_range"`
	Points       []BenchmarkTrendPoint     `json:"points"`
	OverallTrend TrendDirection            `json:"overall_trend"`
	MetricTrends map[string]TrendDirection `json:"metric_trends"`
}
