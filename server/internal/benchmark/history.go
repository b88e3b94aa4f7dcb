package benchmark

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/flowbench/flowbench/pkg/types"
	"github.com/flowbench/flowbench/server/internal/analytics"
)

// HistoricalTrends buckets persisted reports by UTC day of creation and
// classifies the overall score and every metric. Results are cached.
func (s *Service) HistoricalTrends(ctx context.Context, workflowID string, tr types.TimeRange) (types.BenchmarkTrendSeries, error) {
	tr, _ = types.ResolveTimeRange(string(tr))
	key := historyKey{workflowID: workflowID, timeRange: tr}
	if v, ok := s.history.Get(key); ok {
		s.metrics.ObserveCache("benchmark_trends", true)
		return v, nil
	}
	s.metrics.ObserveCache("benchmark_trends", false)

	reports, err := s.store.QueryBenchmarkReports(ctx, workflowID, tr.Since(s.now()))
	if err != nil {
		return types.BenchmarkTrendSeries{}, fmt.Errorf("benchmark: query reports %s: %w", workflowID, err)
	}
	series := buildHistory(workflowID, tr, reports)
	s.history.Put(key, series)
	return series, nil
}

// GetHistoricalTrends is HistoricalTrends with store errors logged and an
// empty series returned.
func (s *Service) GetHistoricalTrends(ctx context.Context, workflowID string, tr types.TimeRange) types.BenchmarkTrendSeries {
	v, err := s.HistoricalTrends(ctx, workflowID, tr)
	if err != nil {
		slog.Warn("benchmark: historical trends failed", "workflow", workflowID, "err", err)
		tr, _ = types.ResolveTimeRange(string(tr))
		return buildHistory(workflowID, tr, nil)
	}
	return v
}

func buildHistory(workflowID string, tr types.TimeRange, reports []types.BenchmarkReport) types.BenchmarkTrendSeries {
	type bucket struct {
		n       int
		overall float64
		sums    [9]float64
	}
	days := make(map[string]*bucket)
	for _, r := range reports {
		day := r.CreatedAt.UTC().Format("2006-01-02")
		b, ok := days[day]
		if !ok {
			b = &bucket{}
			days[day] = b
		}
		b.n++
		b.overall += r.OverallScore
		for i, m := range types.MetricNames {
			v, _ := r.Scores.Get(m)
			b.sums[i] += v
		}
	}
	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	points := make([]types.BenchmarkTrendPoint, 0, len(keys))
	overall := make([]float64, 0, len(keys))
	perMetric := make([][]float64, len(types.MetricNames))
	for _, k := range keys {
		b := days[k]
		n := float64(b.n)
		var mean [9]float64
		for i := range mean {
			mean[i] = b.sums[i] / n
			perMetric[i] = append(perMetric[i], mean[i])
		}
		p := types.BenchmarkTrendPoint{
			Date:         k,
			Runs:         b.n,
			OverallScore: b.overall / n,
			Scores: types.Scores{
				ExecutionTime:    mean[0],
				SuccessRate:      mean[1],
				Throughput:       mean[2],
				Efficiency:       mean[3],
				Reliability:      mean[4],
				Utilization:      mean[5],
				Scalability:      mean[6],
				Consistency:      mean[7],
				BottleneckImpact: mean[8],
			},
		}
		points = append(points, p)
		overall = append(overall, p.OverallScore)
	}

	trends := make(map[string]types.TrendDirection, len(types.MetricNames))
	for i, m := range types.MetricNames {
		trends[m] = analytics.ClassifyTrend(perMetric[i])
	}
	return types.BenchmarkTrendSeries{
		WorkflowID:   workflowID,
		TimeRange:    tr,
		Points:       points,
		OverallTrend: analytics.ClassifyTrend(overall),
		MetricTrends: trends,
	}
}

// Rank lists the principal's workflows by their latest benchmark score.
// Results are cached.
func (s *Service) Rank(ctx context.Context, principalID string) ([]types.RankedWorkflow, error) {
	if v, ok := s.rankings.Get(principalID); ok {
		s.metrics.ObserveCache("rankings", true)
		return v, nil
	}
	s.metrics.ObserveCache("rankings", false)

	latest, err := s.store.QueryLatestBenchmarkPerWorkflow(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("benchmark: latest reports %s: %w", principalID, err)
	}
	ranked := RankReports(latest)
	s.rankings.Put(principalID, ranked)
	return ranked, nil
}

// RankWorkflows is Rank with store errors logged and an empty ranking
// returned.
func (s *Service) RankWorkflows(ctx context.Context, principalID string) []types.RankedWorkflow {
	v, err := s.Rank(ctx, principalID)
	if err != nil {
		slog.Warn("benchmark: ranking failed", "principal", principalID, "err", err)
		return []types.RankedWorkflow{}
	}
	return v
}
