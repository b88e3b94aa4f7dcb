package analytics

import (
	"math"
	"sort"

	"github.com/flowbench/flowbench/pkg/types"
)

// trendThreshold is the relative change between series halves that counts as
// movement.
const trendThreshold = 0.10

// DailyTrends buckets executions by the UTC calendar day of their start time.
// Points are in ascending date order; days without executions are omitted.
func DailyTrends(execs []types.ExecutionRecord) []types.TrendPoint {
	type bucket struct {
		n, ok      int
		durationMs int64
		items      int64
	}
	days := make(map[string]*bucket)
	for _, e := range execs {
		day := e.StartedAt.UTC().Format("2006-01-02")
		b, ok := days[day]
		if !ok {
			b = &bucket{}
			days[day] = b
		}
		b.n++
		if e.Success {
			b.ok++
		}
		b.durationMs += e.DurationMs
		b.items += e.ItemsProcessed
	}

	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	points := make([]types.TrendPoint, 0, len(keys))
	for _, k := range keys {
		b := days[k]
		points = append(points, types.TrendPoint{
			Date:             k,
			Executions:       b.n,
			AvgExecutionTime: float64(b.durationMs) / float64(b.n),
			SuccessRate:      float64(b.ok) / float64(b.n) * 100,
			AvgThroughput:    itemsPerSecond(b.items, b.durationMs),
		})
	}
	return points
}

// ClassifyTrend compares the mean of the first half of series with the mean
// of the second half. With an odd length the middle value belongs to the
// second half. A series of fewer than two points is stable.
func ClassifyTrend(series []float64) types.TrendDirection {
	if len(series) < 2 {
		return types.TrendStable
	}
	half := len(series) / 2
	first, second := mean(series[:half]), mean(series[half:])
	if first == 0 {
		if second > 0 {
			return types.TrendIncreasing
		}
		return types.TrendStable
	}
	change := (second - first) / math.Abs(first)
	switch {
	case change > trendThreshold:
		return types.TrendIncreasing
	case change < -trendThreshold:
		return types.TrendDecreasing
	default:
		return types.TrendStable
	}
}

// BuildTrendSeries classifies each tracked metric over points.
func BuildTrendSeries(workflowID string, tr types.TimeRange, points []types.TrendPoint) types.TrendSeries {
	execTime := make([]float64, len(points))
	success := make([]float64, len(points))
	throughput := make([]float64, len(points))
	for i, p := range points {
		execTime[i] = p.AvgExecutionTime
		success[i] = p.SuccessRate
		throughput[i] = p.AvgThroughput
	}
	return types.TrendSeries{
		WorkflowID:         workflowID,
		TimeRange:          tr,
		Points:             points,
		ExecutionTimeTrend: ClassifyTrend(execTime),
		SuccessRateTrend:   ClassifyTrend(success),
		ThroughputTrend:    ClassifyTrend(throughput),
	}
}

// CoefficientOfVariation is the population standard deviation of the daily
// average execution times divided by their mean. Fewer than two points, or a
// zero mean, yields 0.
func CoefficientOfVariation(points []types.TrendPoint) float64 {
	if len(points) < 2 {
		return 0
	}
	xs := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.AvgExecutionTime
	}
	m := mean(xs)
	if m == 0 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss/float64(len(xs))) / m
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
