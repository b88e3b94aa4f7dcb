package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbench/flowbench/pkg/types"
)

func TestAnalyzeErrors(t *testing.T) {
	execs := []types.ExecutionRecord{
		{Success: true},
		{Success: false, Error: "timeout"},
		{Success: false, Error: "timeout"},
		{Success: false, Error: "auth"},
		{Success: false},
	}
	got := AnalyzeErrors(execs)
	assert.Equal(t, 5, got.TotalExecutions)
	assert.Equal(t, 4, got.TotalErrors)
	assert.Equal(t, 80.0, got.ErrorRate)
	require.Len(t, got.Errors, 3)
	assert.Equal(t, "timeout", got.Errors[0].Message)
	assert.Equal(t, 50.0, got.Errors[0].Percentage)
	assert.Equal(t, "auth", got.Errors[1].Message)
	assert.Equal(t, unknownError, got.Errors[2].Message)
}

func TestAnalyzeErrors_NoFailures(t *testing.T) {
	got := AnalyzeErrors([]types.ExecutionRecord{{Success: true}})
	assert.Zero(t, got.ErrorRate)
	assert.NotNil(t, got.Errors)
	assert.Empty(t, got.Errors)

	got = AnalyzeErrors(nil)
	assert.Zero(t, got.ErrorRate)
}

func TestComputeUtilization(t *testing.T) {
	u := ComputeUtilization([]types.ExecutionRecord{
		{DurationMs: 3000, Success: true, NodesExecuted: 4, TotalNodes: 4},
		{DurationMs: 1000, Success: false, NodesExecuted: 2, TotalNodes: 4},
	})
	assert.EqualValues(t, 4000, u.TotalTimeMs)
	assert.EqualValues(t, 3000, u.SuccessfulTimeMs)
	assert.Equal(t, 75.0, u.UtilizationPct)
	assert.Equal(t, 75.0, u.NodeCoveragePct)

	assert.Zero(t, ComputeUtilization(nil).UtilizationPct)
}

func TestComputeThroughput(t *testing.T) {
	tp := ComputeThroughput([]types.ExecutionRecord{
		{DurationMs: 2000, ItemsProcessed: 10},
		{DurationMs: 3000, ItemsProcessed: 15},
	}, 2*time.Hour)
	assert.EqualValues(t, 25, tp.TotalItems)
	assert.Equal(t, 5.0, tp.ItemsPerSecond)
	assert.Equal(t, 1.0, tp.ExecutionsPerHour)
	assert.Equal(t, 2, tp.Executions)

	zero := ComputeThroughput(nil, time.Hour)
	assert.Zero(t, zero.ItemsPerSecond)
}
