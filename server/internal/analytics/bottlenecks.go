package analytics

import (
	"sort"

	"github.com/flowbench/flowbench/pkg/types"
)

// Bottleneck thresholds, in milliseconds and percent.
const (
	slowNodeMs        = 1000
	mediumSeverityMs  = 2000
	highSeverityMs    = 5000
	minNodeSuccessPct = 90
)

// DetectBottlenecks groups node records by node id and flags nodes whose
// average duration exceeds one second or whose success rate is below 90%.
// Findings are sorted by average duration, slowest first. The result is
// never nil.
func DetectBottlenecks(nodes []types.NodeRecord) []types.BottleneckFinding {
	type agg struct {
		nodeType   string
		n, ok      int
		durationMs int64
	}
	byNode := make(map[string]*agg)
	order := make([]string, 0)
	for _, r := range nodes {
		a, seen := byNode[r.NodeID]
		if !seen {
			a = &agg{}
			byNode[r.NodeID] = a
			order = append(order, r.NodeID)
		}
		if a.nodeType == "" {
			a.nodeType = r.NodeType
		}
		a.n++
		if r.Success {
			a.ok++
		}
		a.durationMs += r.DurationMs
	}

	out := make([]types.BottleneckFinding, 0)
	for _, id := range order {
		a := byNode[id]
		avg := float64(a.durationMs) / float64(a.n)
		rate := float64(a.ok) / float64(a.n) * 100
		if avg <= slowNodeMs && rate >= minNodeSuccessPct {
			continue
		}
		out = append(out, types.BottleneckFinding{
			NodeID:         id,
			NodeType:       a.nodeType,
			AvgDurationMs:  avg,
			SuccessRate:    rate,
			ExecutionCount: a.n,
			Severity:       severity(avg),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AvgDurationMs > out[j].AvgDurationMs })
	return out
}

func severity(avgMs float64) string {
	switch {
	case avgMs > highSeverityMs:
		return types.SeverityHigh
	case avgMs > mediumSeverityMs:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

// CountSeverities returns the number of high and medium findings.
func CountSeverities(findings []types.BottleneckFinding) (high, medium int) {
	for _, f := range findings {
		switch f.Severity {
		case types.SeverityHigh:
			high++
		case types.SeverityMedium:
			medium++
		}
	}
	return high, medium
}
