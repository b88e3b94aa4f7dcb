package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/flowbench/flowbench/pkg/types"
)

// Percentile returns the nearest-rank k-th percentile of an ascending sample:
// sorted[ceil(k/100·n) − 1], with the index clamped into range. An empty
// sample yields 0.
func Percentile(sorted []float64, k float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(k/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// Median of an ascending sample; the mean of the two middle values when n is
// even. An empty sample yields 0.
func Median(sorted []float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case n%2 == 1:
		return sorted[n/2]
	default:
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
}

// Summarize reduces executions into a snapshot. The result's WorkflowID,
// PrincipalID and TimeRange are left for the caller to fill.
func Summarize(execs []types.ExecutionRecord) types.AnalyticsSnapshot {
	var s types.AnalyticsSnapshot
	n := len(execs)
	if n == 0 {
		return s
	}

	durations := make([]float64, 0, n)
	var totalMs int64
	first, last := execs[0].StartedAt, execs[0].StartedAt
	for _, e := range execs {
		if e.Success {
			s.SuccessfulExecutions++
		}
		s.TotalItemsProcessed += e.ItemsProcessed
		totalMs += e.DurationMs
		durations = append(durations, float64(e.DurationMs))
		if e.StartedAt.Before(first) {
			first = e.StartedAt
		}
		if e.StartedAt.After(last) {
			last = e.StartedAt
		}
	}
	sort.Float64s(durations)

	s.TotalExecutions = n
	s.FailedExecutions = n - s.SuccessfulExecutions
	s.SuccessRate = float64(s.SuccessfulExecutions) / float64(n) * 100
	s.MinExecutionTime = durations[0]
	s.MaxExecutionTime = durations[n-1]
	s.MedianExecutionTime = Median(durations)
	s.AvgExecutionTime = float64(totalMs) / float64(n)
	s.P95ExecutionTime = Percentile(durations, 95)
	s.P99ExecutionTime = Percentile(durations, 99)
	s.AvgThroughput = itemsPerSecond(s.TotalItemsProcessed, totalMs)
	s.FirstExecutionAt = timePtr(first)
	s.LastExecutionAt = timePtr(last)
	return s
}

// itemsPerSecond is items over cumulative execution time. Zero time yields 0.
func itemsPerSecond(items, durationMs int64) float64 {
	if durationMs <= 0 {
		return 0
	}
	return float64(items) / (float64(durationMs) / 1000)
}

func timePtr(t time.Time) *time.Time { return &t }
