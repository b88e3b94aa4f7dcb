package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbench/flowbench/pkg/types"
	"github.com/flowbench/flowbench/server/internal/benchmark"
	"github.com/flowbench/flowbench/server/internal/eventstore"
	"github.com/flowbench/flowbench/server/internal/recorder"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) (*Engine, *eventstore.Memory) {
	t.Helper()
	store := eventstore.NewMemory()
	e := New(store, Config{Now: func() time.Time { return baseTime }})
	t.Cleanup(func() { _ = e.Close() })
	return e, store
}

func TestEngine_RecordThenAnalyze(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := e.RecordExecution(ctx, "wf", recorder.ExecutionData{
			StartedAt:      baseTime.Add(-time.Duration(i+1) * time.Minute),
			DurationMs:     2000,
			Success:        i != 0,
			ItemsProcessed: 4,
		}, recorder.RecordContext{PrincipalID: "p1"})
		require.NoError(t, err)
	}
	_, err := e.RecordNode(ctx, "wf", "slow-http", recorder.NodeData{
		NodeType:   "http",
		DurationMs: 7000,
		Success:    true,
		Timestamp:  baseTime.Add(-time.Minute),
	}, recorder.RecordContext{})
	require.NoError(t, err)

	snap := e.GetAnalytics(ctx, "wf", types.Range1h)
	assert.Equal(t, 4, snap.TotalExecutions)
	assert.Equal(t, 75.0, snap.SuccessRate)

	c, ok := e.Counters("wf")
	require.True(t, ok)
	assert.EqualValues(t, 4, c.Total)
	assert.Len(t, e.AllCounters(), 1)

	b := e.GetBottlenecks(ctx, "wf", types.Range1h)
	require.Len(t, b, 1)
	assert.Equal(t, types.SeverityHigh, b[0].Severity)

	assert.Len(t, e.GetTrends(ctx, "wf", types.Range24h).Points, 1)

	// 2000 ms → 90, 75 % → 40
	assert.Equal(t, 65.0, e.GetEfficiencyScore(ctx, "wf"))
}

func TestEngine_BenchmarkAndRank(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	for _, wf := range []string{"fast", "slow"} {
		d := int64(500)
		if wf == "slow" {
			d = 25000
		}
		for i := 0; i < 5; i++ {
			_, err := e.RecordExecution(ctx, wf, recorder.ExecutionData{
				StartedAt:      baseTime.Add(-time.Duration(i+1) * time.Minute),
				DurationMs:     d,
				Success:        true,
				ItemsProcessed: 10,
			}, recorder.RecordContext{PrincipalID: "p1"})
			require.NoError(t, err)
		}
		_, err := e.RunBenchmark(ctx, wf, benchmark.DefaultOptions())
		require.NoError(t, err)
	}

	ranked := e.RankWorkflows(ctx, "p1")
	require.Len(t, ranked, 2)
	assert.Equal(t, "fast", ranked[0].WorkflowID)
	assert.Equal(t, 1, ranked[0].Rank)

	hist := e.GetHistoricalBenchmarkTrends(ctx, "fast", types.Range7d)
	require.Len(t, hist.Points, 1)
	assert.Equal(t, 1, hist.Points[0].Runs)
}

func TestEngine_RunBenchmarkNoExecutions(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.RunBenchmark(context.Background(), "ghost", benchmark.DefaultOptions())
	assert.ErrorIs(t, err, benchmark.ErrNoExecutions)
}

func TestEngine_ClearCache(t *testing.T) {
	e, store := newEngine(t)
	ctx := context.Background()
	require.NoError(t, store.InsertExecution(ctx, types.ExecutionRecord{
		ID: "x", WorkflowID: "wf", StartedAt: baseTime.Add(-time.Minute), DurationMs: 1, Success: true,
	}))

	assert.Equal(t, 1, e.GetAnalytics(ctx, "wf", types.Range24h).TotalExecutions)
	require.NoError(t, store.InsertExecution(ctx, types.ExecutionRecord{
		ID: "y", WorkflowID: "wf", StartedAt: baseTime.Add(-time.Minute), DurationMs: 1, Success: true,
	}))
	assert.Equal(t, 1, e.GetAnalytics(ctx, "wf", types.Range24h).TotalExecutions, "stale until cleared")

	assert.GreaterOrEqual(t, e.ClearCache(), 1)
	assert.Equal(t, 2, e.GetAnalytics(ctx, "wf", types.Range24h).TotalExecutions)
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	e, _ := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestEngine_BenchmarkAfterDashboardReadOfEmptyWorkflow(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	assert.Zero(t, e.GetAnalytics(ctx, "W1", types.Range1h).TotalExecutions)
	for i := 0; i < 11; i++ {
		_, err := e.RecordExecution(ctx, "W1", recorder.ExecutionData{
			StartedAt:  baseTime.Add(-time.Duration(i+1) * time.Minute),
			DurationMs: 1000,
			Success:    i != 0,
		}, recorder.RecordContext{PrincipalID: "p1"})
		require.NoError(t, err)
	}

	opts := benchmark.DefaultOptions()
	opts.TimeRange = types.Range1h
	report, err := e.RunBenchmark(ctx, "W1", opts)
	require.NoError(t, err)
	assert.Equal(t, 11, report.Raw.TotalExecutions)
	assert.InDelta(t, 100.0, report.Raw.SuccessRate+report.Raw.ErrorRate, 1e-9)
}
