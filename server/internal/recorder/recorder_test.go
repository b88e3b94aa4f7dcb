package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbench/flowbench/pkg/types"
	"github.com/flowbench/flowbench/server/internal/eventstore"
	"github.com/flowbench/flowbench/server/internal/observability"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

// failingStore rejects every write.
type failingStore struct {
	*eventstore.Memory
}

func (failingStore) InsertExecution(context.Context, types.ExecutionRecord) error {
	return errors.New("disk full")
}

func (failingStore) InsertNode(context.Context, types.NodeRecord) error {
	return errors.New("disk full")
}

func TestRecordExecution_PersistsAndCounts(t *testing.T) {
	store := eventstore.NewMemory()
	r := New(store, WithClock(fixedClock(baseTime)))
	ctx := context.Background()

	rec, err := r.RecordExecution(ctx, "wf", ExecutionData{
		DurationMs:     1500,
		Success:        true,
		NodesExecuted:  3,
		TotalNodes:     4,
		ItemsProcessed: 10,
	}, RecordContext{PrincipalID: "p1"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, baseTime.Add(-1500*time.Millisecond), rec.StartedAt)
	assert.Equal(t, "p1", rec.PrincipalID)

	stored, err := store.QueryExecutions(ctx, "wf", time.Time{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, rec.ID, stored[0].ID)

	c, ok := r.Counters("wf")
	require.True(t, ok)
	assert.EqualValues(t, 1, c.Total)
	assert.EqualValues(t, 1, c.Successful)
	assert.EqualValues(t, 1500, c.TotalDurationMs)
	assert.Equal(t, 100.0, c.SuccessRate)
	require.NotNil(t, c.LastExecutionAt)
}

func TestRecordExecution_NoDeduplication(t *testing.T) {
	store := eventstore.NewMemory()
	r := New(store)
	ctx := context.Background()
	data := ExecutionData{DurationMs: 10, Success: true}

	a, err := r.RecordExecution(ctx, "wf", data, RecordContext{})
	require.NoError(t, err)
	b, err := r.RecordExecution(ctx, "wf", data, RecordContext{})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	stored, _ := store.QueryExecutions(ctx, "wf", time.Time{})
	assert.Len(t, stored, 2)
}

func TestRecordExecution_Validation(t *testing.T) {
	r := New(eventstore.NewMemory())
	ctx := context.Background()

	cases := []struct {
		name string
		wf   string
		data ExecutionData
	}{
		{"empty workflow", "", ExecutionData{DurationMs: 1}},
		{"negative duration", "wf", ExecutionData{DurationMs: -1}},
		{"nodes exceed total", "wf", ExecutionData{NodesExecuted: 5, TotalNodes: 4}},
		{"negative items", "wf", ExecutionData{ItemsProcessed: -3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.RecordExecution(ctx, tc.wf, tc.data, RecordContext{})
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}
	_, ok := r.Counters("wf")
	assert.False(t, ok, "rejected records must not touch counters")
}

func TestRecordExecution_StoreFailureStillCounts(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	r := New(failingStore{eventstore.NewMemory()}, WithMetrics(m))

	rec, err := r.RecordExecution(context.Background(), "wf", ExecutionData{DurationMs: 5}, RecordContext{})
	require.NoError(t, err)
	require.NotNil(t, rec)

	c, ok := r.Counters("wf")
	require.True(t, ok)
	assert.EqualValues(t, 1, c.Total)
	assert.EqualValues(t, 1, c.Failed)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.RecordsTotal.WithLabelValues(observability.KindExecution, observability.StatusStoreError)))
}

func TestRecordExecution_HistoryBounded(t *testing.T) {
	r := New(eventstore.NewMemory(), WithHistorySize(5))
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_, err := r.RecordExecution(ctx, "wf", ExecutionData{
			StartedAt:  baseTime.Add(time.Duration(i) * time.Second),
			DurationMs: int64(i),
			Success:    true,
		}, RecordContext{ExecutionID: fmt.Sprintf("e%02d", i)})
		require.NoError(t, err)
	}
	c, _ := r.Counters("wf")
	assert.EqualValues(t, 12, c.Total)
	require.Len(t, c.Recent, 5)
	assert.Equal(t, "e07", c.Recent[0].ID)
	assert.Equal(t, "e11", c.Recent[4].ID)
	assert.Equal(t, baseTime.Add(11*time.Second), *c.LastExecutionAt)
}

func TestRecordExecution_DefaultHistoryIs100(t *testing.T) {
	r := New(eventstore.NewMemory())
	ctx := context.Background()
	for i := 0; i < 130; i++ {
		_, err := r.RecordExecution(ctx, "wf", ExecutionData{DurationMs: 1}, RecordContext{})
		require.NoError(t, err)
	}
	c, _ := r.Counters("wf")
	assert.Len(t, c.Recent, DefaultHistorySize)
}

func TestRecordNode(t *testing.T) {
	store := eventstore.NewMemory()
	r := New(store, WithClock(fixedClock(baseTime)))
	ctx := context.Background()

	rec, err := r.RecordNode(ctx, "wf", "http-1", NodeData{
		NodeType:   "http",
		DurationMs: 250,
		Success:    true,
	}, RecordContext{ExecutionID: "exec-1"})
	require.NoError(t, err)
	assert.Equal(t, "exec-1", rec.ExecutionID)
	assert.Equal(t, baseTime, rec.Timestamp)

	nodes, _ := store.QueryNodes(ctx, "wf", time.Time{})
	require.Len(t, nodes, 1)
	assert.Equal(t, "http-1", nodes[0].NodeID)

	_, ok := r.Counters("wf")
	assert.False(t, ok, "node records have no rollup")
}

func TestRecordNode_Validation(t *testing.T) {
	r := New(eventstore.NewMemory())
	_, err := r.RecordNode(context.Background(), "wf", "", NodeData{}, RecordContext{})
	assert.ErrorIs(t, err, ErrInvalidRecord)
	_, err = r.RecordNode(context.Background(), "wf", "n", NodeData{DurationMs: -1}, RecordContext{})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestRecordNode_StoreFailureNotRaised(t *testing.T) {
	r := New(failingStore{eventstore.NewMemory()})
	_, err := r.RecordNode(context.Background(), "wf", "n", NodeData{DurationMs: 1}, RecordContext{})
	assert.NoError(t, err)
}

func TestAllCounters_SortedByWorkflow(t *testing.T) {
	r := New(eventstore.NewMemory())
	ctx := context.Background()
	for _, wf := range []string{"c", "a", "b"} {
		_, err := r.RecordExecution(ctx, wf, ExecutionData{DurationMs: 1}, RecordContext{})
		require.NoError(t, err)
	}
	all := r.AllCounters()
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].WorkflowID)
	assert.Equal(t, "c", all[2].WorkflowID)
}

func TestConcurrentRecording(t *testing.T) {
	r := New(eventstore.NewMemory())
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = r.RecordExecution(ctx, fmt.Sprintf("wf-%d", n%4), ExecutionData{
				DurationMs: 10,
				Success:    n%5 != 0,
			}, RecordContext{})
			r.AllCounters()
		}(i)
	}
	wg.Wait()

	var total, failed int64
	for _, c := range r.AllCounters() {
		total += c.Total
		failed += c.Failed
	}
	assert.EqualValues(t, 200, total)
	assert.EqualValues(t, 40, failed)
}
