package analytics

import (
	"sort"
	"time"

	"github.com/flowbench/flowbench/pkg/types"
)

// unknownError labels failures recorded without a message.
const unknownError = "unknown error"

// AnalyzeErrors builds the failure-message frequency table, most frequent
// first with ties broken alphabetically.
func AnalyzeErrors(execs []types.ExecutionRecord) types.ErrorAnalysis {
	counts := make(map[string]int)
	failed := 0
	for _, e := range execs {
		if e.Success {
			continue
		}
		failed++
		msg := e.Error
		if msg == "" {
			msg = unknownError
		}
		counts[msg]++
	}

	out := types.ErrorAnalysis{
		TotalExecutions: len(execs),
		TotalErrors:     failed,
		Errors:          make([]types.ErrorFrequency, 0, len(counts)),
	}
	if len(execs) > 0 {
		out.ErrorRate = float64(failed) / float64(len(execs)) * 100
	}
	for msg, n := range counts {
		out.Errors = append(out.Errors, types.ErrorFrequency{
			Message:    msg,
			Count:      n,
			Percentage: float64(n) / float64(failed) * 100,
		})
	}
	sort.Slice(out.Errors, func(i, j int) bool {
		if out.Errors[i].Count != out.Errors[j].Count {
			return out.Errors[i].Count > out.Errors[j].Count
		}
		return out.Errors[i].Message < out.Errors[j].Message
	})
	return out
}

// ComputeUtilization is the share of cumulative execution time spent in
// successful runs, plus the share of declared nodes that actually ran.
func ComputeUtilization(execs []types.ExecutionRecord) types.Utilization {
	var u types.Utilization
	var executed, declared int64
	for _, e := range execs {
		u.TotalTimeMs += e.DurationMs
		if e.Success {
			u.SuccessfulTimeMs += e.DurationMs
		}
		executed += int64(e.NodesExecuted)
		declared += int64(e.TotalNodes)
	}
	if u.TotalTimeMs > 0 {
		u.UtilizationPct = float64(u.SuccessfulTimeMs) / float64(u.TotalTimeMs) * 100
	}
	if declared > 0 {
		u.NodeCoveragePct = float64(executed) / float64(declared) * 100
	}
	return u
}

// ComputeThroughput is the processing rate over cumulative execution time,
// plus the execution rate over the window length.
func ComputeThroughput(execs []types.ExecutionRecord, window time.Duration) types.Throughput {
	t := types.Throughput{Executions: len(execs)}
	var durationMs int64
	for _, e := range execs {
		t.TotalItems += e.ItemsProcessed
		durationMs += e.DurationMs
	}
	t.ItemsPerSecond = itemsPerSecond(t.TotalItems, durationMs)
	if window > 0 {
		t.ExecutionsPerHour = float64(len(execs)) / window.Hours()
	}
	return t
}
