package analytics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
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

// countingStore counts execution queries and can be switched to fail.
type countingStore struct {
	*eventstore.Memory
	queries atomic.Int64
	since   atomic.Value // time.Time of the last query
	fail    atomic.Bool
}

func newCountingStore() *countingStore {
	return &countingStore{Memory: eventstore.NewMemory()}
}

func (s *countingStore) QueryExecutions(ctx context.Context, wf string, since time.Time) ([]types.ExecutionRecord, error) {
	s.queries.Add(1)
	s.since.Store(since)
	if s.fail.Load() {
		return nil, errors.New("connection reset")
	}
	return s.Memory.QueryExecutions(ctx, wf, since)
}

func (s *countingStore) QueryNodes(ctx context.Context, wf string, since time.Time) ([]types.NodeRecord, error) {
	if s.fail.Load() {
		return nil, errors.New("connection reset")
	}
	return s.Memory.QueryNodes(ctx, wf, since)
}

// clock is a settable test clock.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func seed(t *testing.T, s eventstore.Store, wf string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.InsertExecution(context.Background(), types.ExecutionRecord{
			ID:          wf + "-" + string(rune('a'+i)),
			WorkflowID:  wf,
			PrincipalID: "p1",
			StartedAt:   baseTime.Add(-time.Duration(n-i) * time.Minute),
			DurationMs:  1000,
			Success:     true,
		}))
	}
}

func TestSnapshot_CachedWithinTTL(t *testing.T) {
	store := newCountingStore()
	seed(t, store, "wf", 3)
	clk := &clock{t: baseTime}
	m := observability.NewMetrics(prometheus.NewRegistry())
	a := New(store, WithClock(clk.now), WithMetrics(m))
	ctx := context.Background()

	first, err := a.Snapshot(ctx, "wf", types.Range24h)
	require.NoError(t, err)
	assert.Equal(t, 3, first.TotalExecutions)

	// a write inside the TTL is not visible
	seed(t, store, "wf", 1)
	clk.advance(4 * time.Minute)
	second, err := a.Snapshot(ctx, "wf", types.Range24h)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, store.queries.Load())

	clk.advance(time.Minute) // five minutes after the first call
	third, err := a.Snapshot(ctx, "wf", types.Range24h)
	require.NoError(t, err)
	assert.EqualValues(t, 2, store.queries.Load())
	assert.Equal(t, 4, third.TotalExecutions)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequestsTotal.WithLabelValues("analytics", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheRequestsTotal.WithLabelValues("analytics", "miss")))
}

func TestSnapshot_KeyedByRange(t *testing.T) {
	store := newCountingStore()
	seed(t, store, "wf", 2)
	a := New(store, WithClock(func() time.Time { return baseTime }))
	ctx := context.Background()

	_, _ = a.Snapshot(ctx, "wf", types.Range24h)
	_, _ = a.Snapshot(ctx, "wf", types.Range7d)
	_, _ = a.Snapshot(ctx, "wf", types.Range24h)
	assert.EqualValues(t, 2, store.queries.Load())
}

func TestSnapshot_UnknownRangeResolvesTo24h(t *testing.T) {
	store := newCountingStore()
	a := New(store, WithClock(func() time.Time { return baseTime }))

	s, err := a.Snapshot(context.Background(), "wf", "fortnight")
	require.NoError(t, err)
	assert.Equal(t, types.Range24h, s.TimeRange)
	assert.Equal(t, baseTime.Add(-24*time.Hour), store.since.Load())

	// shares the 24h cache entry
	_, _ = a.Snapshot(context.Background(), "wf", types.Range24h)
	assert.EqualValues(t, 1, store.queries.Load())
}

func TestSnapshot_PrincipalFromLatestExecution(t *testing.T) {
	store := newCountingStore()
	seed(t, store, "wf", 2)
	a := New(store, WithClock(func() time.Time { return baseTime }))
	s, err := a.Snapshot(context.Background(), "wf", types.Range24h)
	require.NoError(t, err)
	assert.Equal(t, "p1", s.PrincipalID)
}

func TestClearCache(t *testing.T) {
	store := newCountingStore()
	a := New(store, WithClock(func() time.Time { return baseTime }))
	ctx := context.Background()

	_, _ = a.Snapshot(ctx, "wf", types.Range24h)
	assert.Equal(t, 1, a.ClearCache())
	_, _ = a.Snapshot(ctx, "wf", types.Range24h)
	assert.EqualValues(t, 2, store.queries.Load())
}

func TestStoreErrors_StrictVsGraceful(t *testing.T) {
	store := newCountingStore()
	store.fail.Store(true)
	a := New(store, WithClock(func() time.Time { return baseTime }))
	ctx := context.Background()

	_, err := a.Snapshot(ctx, "wf", types.Range24h)
	assert.Error(t, err)
	_, err = a.Trends(ctx, "wf", types.Range24h)
	assert.Error(t, err)
	_, err = a.Bottlenecks(ctx, "wf", types.Range24h)
	assert.Error(t, err)

	s := a.GetAnalytics(ctx, "wf", types.Range24h)
	assert.Zero(t, s.TotalExecutions)
	assert.Equal(t, "wf", s.WorkflowID)

	tr := a.GetTrends(ctx, "wf", types.Range7d)
	assert.NotNil(t, tr.Points)
	assert.Equal(t, types.TrendStable, tr.ExecutionTimeTrend)

	b := a.GetBottlenecks(ctx, "wf", types.Range24h)
	assert.NotNil(t, b)
	assert.Empty(t, b)

	// failures are never cached
	store.fail.Store(false)
	_, err = a.Snapshot(ctx, "wf", types.Range24h)
	assert.NoError(t, err)
}

func TestSnapshot_EmptyWorkflow(t *testing.T) {
	a := New(newCountingStore(), WithClock(func() time.Time { return baseTime }))
	s := a.GetAnalytics(context.Background(), "nobody", types.Range1h)
	assert.Zero(t, s.TotalExecutions)
	assert.Nil(t, s.FirstExecutionAt)
	assert.Equal(t, types.Range1h, s.TimeRange)
}

func TestBottlenecks_FromStore(t *testing.T) {
	store := newCountingStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.InsertNode(ctx, types.NodeRecord{
			WorkflowID: "wf",
			NodeID:     "http",
			NodeType:   "http",
			DurationMs: 6000,
			Success:    true,
			Timestamp:  baseTime.Add(-time.Minute),
		}))
	}
	a := New(store, WithClock(func() time.Time { return baseTime }))
	got := a.GetBottlenecks(ctx, "wf", types.Range1h)
	require.Len(t, got, 1)
	assert.Equal(t, types.SeverityHigh, got[0].Severity)
}

func TestWindow_BypassesCacheAndRefreshesIt(t *testing.T) {
	store := newCountingStore()
	seed(t, store, "wf", 2)
	a := New(store, WithClock(func() time.Time { return baseTime }))
	ctx := context.Background()

	first, err := a.Snapshot(ctx, "wf", types.Range24h)
	require.NoError(t, err)
	require.Equal(t, 2, first.TotalExecutions)

	require.NoError(t, store.InsertExecution(ctx, types.ExecutionRecord{
		ID: "late", WorkflowID: "wf", StartedAt: baseTime.Add(-30 * time.Second),
		DurationMs: 3000, Success: false, Error: "boom",
	}))

	w, err := a.Window(ctx, "wf", types.Range24h)
	require.NoError(t, err)
	assert.EqualValues(t, 2, store.queries.Load(), "one read for the whole window")
	assert.Equal(t, 3, w.Snapshot.TotalExecutions)
	assert.Equal(t, 1, w.Errors.TotalErrors)
	assert.InDelta(t, 100.0, w.Snapshot.SuccessRate+w.Errors.ErrorRate, 1e-9)
	require.Len(t, w.Trends.Points, 1)
	assert.Equal(t, 3, w.Trends.Points[0].Executions)

	cached, err := a.Snapshot(ctx, "wf", types.Range24h)
	require.NoError(t, err)
	assert.Equal(t, 3, cached.TotalExecutions)
	assert.EqualValues(t, 2, store.queries.Load(), "refreshed snapshot served from cache")
}

func TestWindow_StoreErrorIsReturned(t *testing.T) {
	store := newCountingStore()
	store.fail.Store(true)
	a := New(store, WithClock(func() time.Time { return baseTime }))

	_, err := a.Window(context.Background(), "wf", types.Range24h)
	assert.Error(t, err)
}
