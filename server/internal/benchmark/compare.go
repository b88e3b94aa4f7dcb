package benchmark

import (
	"sort"

	"github.com/flowbench/flowbench/pkg/types"
)

// Industry standards each metric is measured against.
const (
	StandardExecutionTimeMs = 3000.0
	StandardSuccessRate     = 95.0
	StandardThroughput      = 2.0
	StandardReliability     = 97.0
	StandardUtilization     = 80.0
	StandardScalability     = 70.0
	StandardConsistency     = 80.0
	StandardBottleneck      = 90.0
	StandardEfficiency      = 85.0
)

// standard describes how one metric is compared: the actual value to use
// and whether smaller values are better.
type standard struct {
	metric      string
	value       float64
	lowerBetter bool
	actual      func(types.Scores, types.RawMetrics) float64
}

// Raw measurements are compared where a natural unit exists; the remaining
// metrics are compared by score.
var standards = []standard{
	{types.MetricExecutionTime, StandardExecutionTimeMs, true,
		func(_ types.Scores, r types.RawMetrics) float64 { return r.AvgExecutionTimeMs }},
	{types.MetricSuccessRate, StandardSuccessRate, false,
		func(_ types.Scores, r types.RawMetrics) float64 { return r.SuccessRate }},
	{types.MetricThroughput, StandardThroughput, false,
		func(_ types.Scores, r types.RawMetrics) float64 { return r.ItemsPerSecond }},
	{types.MetricEfficiency, StandardEfficiency, false,
		func(s types.Scores, _ types.RawMetrics) float64 { return s.Efficiency }},
	{types.MetricReliability, StandardReliability, false,
		func(_ types.Scores, r types.RawMetrics) float64 { return 100 - r.ErrorRate }},
	{types.MetricUtilization, StandardUtilization, false,
		func(_ types.Scores, r types.RawMetrics) float64 { return r.UtilizationPct }},
	{types.MetricScalability, StandardScalability, false,
		func(s types.Scores, _ types.RawMetrics) float64 { return s.Scalability }},
	{types.MetricConsistency, StandardConsistency, false,
		func(s types.Scores, _ types.RawMetrics) float64 { return s.Consistency }},
	{types.MetricBottleneckImpact, StandardBottleneck, false,
		func(s types.Scores, _ types.RawMetrics) float64 { return s.BottleneckImpact }},
}

// TierFor maps a deviation percentage (positive is better than standard) to
// a 1-5 tier.
func TierFor(deviationPct float64) int {
	switch {
	case deviationPct >= 20:
		return 5
	case deviationPct >= 10:
		return 4
	case deviationPct >= -10:
		return 3
	case deviationPct >= -20:
		return 2
	default:
		return 1
	}
}

// LevelForTier maps a mean tier onto the performance levels, one level per
// tier, rounding the mean half up.
func LevelForTier(avg float64) string {
	switch {
	case avg >= 4.5:
		return LevelExcellent
	case avg >= 3.5:
		return LevelGood
	case avg >= 2.5:
		return LevelAverage
	case avg >= 1.5:
		return LevelBelowAverage
	default:
		return LevelPoor
	}
}

// CompareToStandards measures every metric against its fixed standard.
// Deviation is signed so that positive always means better than standard.
func CompareToStandards(scores types.Scores, raw types.RawMetrics) types.Comparison {
	out := types.Comparison{Standards: make([]types.StandardComparison, 0, len(standards))}
	var tiers float64
	for _, st := range standards {
		actual := st.actual(scores, raw)
		dev := actual - st.value
		if st.lowerBetter {
			dev = st.value - actual
		}
		pct := dev / st.value * 100
		tier := TierFor(pct)
		tiers += float64(tier)
		out.Standards = append(out.Standards, types.StandardComparison{
			Metric:       st.metric,
			Actual:       actual,
			Standard:     st.value,
			Deviation:    dev,
			DeviationPct: pct,
			Tier:         tier,
		})
	}
	out.AverageTier = tiers / float64(len(standards))
	out.OverallLevel = LevelForTier(out.AverageTier)
	return out
}

// RankReports orders reports by overall score, highest first, and assigns
// 1-indexed ranks. Ties are broken by workflow id.
func RankReports(reports []types.BenchmarkReport) []types.RankedWorkflow {
	sorted := append([]types.BenchmarkReport(nil), reports...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].OverallScore != sorted[j].OverallScore {
			return sorted[i].OverallScore > sorted[j].OverallScore
		}
		return sorted[i].WorkflowID < sorted[j].WorkflowID
	})
	out := make([]types.RankedWorkflow, len(sorted))
	for i, r := range sorted {
		out[i] = types.RankedWorkflow{
			Rank:         i + 1,
			WorkflowID:   r.WorkflowID,
			OverallScore: r.OverallScore,
			Grade:        r.Grade,
			BenchmarkAt:  r.CreatedAt,
		}
	}
	return out
}

// placeAmongPeers ranks report against the latest reports of the principal's
// other workflows. An older report for the same workflow is replaced.
func placeAmongPeers(report types.BenchmarkReport, latest []types.BenchmarkReport) (rank int, ranked []types.RankedWorkflow) {
	peers := make([]types.BenchmarkReport, 0, len(latest)+1)
	for _, r := range latest {
		if r.WorkflowID != report.WorkflowID {
			peers = append(peers, r)
		}
	}
	peers = append(peers, report)
	ranked = RankReports(peers)
	for _, r := range ranked {
		if r.WorkflowID == report.WorkflowID {
			rank = r.Rank
			break
		}
	}
	return rank, ranked
}
