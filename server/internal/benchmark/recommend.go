package benchmark

import (
	"sort"

	"github.com/flowbench/flowbench/pkg/types"
)

// Scores below recommendThreshold produce a recommendation; below
// highPriorityThreshold it is high priority.
const (
	recommendThreshold    = 70
	highPriorityThreshold = 50
)

var remediation = map[string]string{
	types.MetricExecutionTime:    "Reduce execution time: parallelise independent nodes, cache repeated lookups and trim payloads passed between nodes.",
	types.MetricSuccessRate:      "Raise the success rate: add retries with backoff around external calls and validate inputs before the first node runs.",
	types.MetricThroughput:       "Increase throughput: process items in batches and avoid per-item round trips to external services.",
	types.MetricEfficiency:       "Improve efficiency: address execution time and failure rate together, starting with the slowest failing nodes.",
	types.MetricReliability:      "Improve reliability: inspect the most frequent error messages and add error branches for expected failures.",
	types.MetricUtilization:      "Improve utilization: failed runs are consuming execution time; fail fast on invalid input and fix recurring errors.",
	types.MetricScalability:      "Improve scalability: raise per-execution item volume and remove serial bottlenecks before increasing load.",
	types.MetricConsistency:      "Improve consistency: execution time varies widely day to day; check for load-dependent external services and cold starts.",
	types.MetricBottleneckImpact: "Reduce bottleneck impact: optimise or split the nodes flagged as high and medium severity bottlenecks.",
}

func priorityRank(p string) int {
	if p == types.PriorityHigh {
		return 0
	}
	return 1
}

// Recommend returns one recommendation for every metric scoring below 70,
// high priority first. Within a priority, metrics keep report order. The
// result is never nil.
func Recommend(scores types.Scores) []types.Recommendation {
	out := make([]types.Recommendation, 0)
	for _, metric := range types.MetricNames {
		score, _ := scores.Get(metric)
		if score >= recommendThreshold {
			continue
		}
		priority := types.PriorityMedium
		if score < highPriorityThreshold {
			priority = types.PriorityHigh
		}
		out = append(out, types.Recommendation{
			Metric:   metric,
			Score:    score,
			Priority: priority,
			Text:     remediation[metric],
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return priorityRank(out[i].Priority) < priorityRank(out[j].Priority)
	})
	return out
}
