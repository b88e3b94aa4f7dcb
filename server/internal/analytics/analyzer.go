// Package analytics derives time-window views over a workflow's execution
// and node records: the aggregate snapshot, daily trends, bottlenecks, error
// frequency, utilization and throughput.
//
// Each view has a strict form that returns store errors (used by the
// benchmark run, which must fail as a whole) and a Get* form that logs the
// error and returns the zero view (used by read APIs).
//
// Snapshots are cached per (workflow, time range) for the configured TTL.
// Writes never invalidate the cache; a snapshot may lag new records by up to
// one TTL. Window skips the cache and derives every view from a single read.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowbench/flowbench/pkg/types"
	"github.com/flowbench/flowbench/server/internal/cache"
	"github.com/flowbench/flowbench/server/internal/eventstore"
	"github.com/flowbench/flowbench/server/internal/observability"
)

// DefaultCacheTTL is how long a snapshot is served from cache.
const DefaultCacheTTL = 5 * time.Minute

const cacheName = "analytics"

type snapshotKey struct {
	workflowID string
	timeRange  types.TimeRange
}

// Analyzer computes analytics views from an event store. Safe for concurrent
// use.
type Analyzer struct {
	store     eventstore.Store
	snapshots *cache.Cache[snapshotKey, types.AnalyticsSnapshot]
	metrics   *observability.Metrics
	now       func() time.Time // injectable for deterministic tests
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithCacheTTL overrides DefaultCacheTTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(a *Analyzer) {
		if ttl > 0 {
			a.snapshots = cache.New[snapshotKey, types.AnalyticsSnapshot](cacheName, ttl)
		}
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithClock replaces time.Now for both window bounds and cache ageing.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// New creates an Analyzer reading from store.
func New(store eventstore.Store, opts ...Option) *Analyzer {
	a := &Analyzer{
		store:     store,
		snapshots: cache.New[snapshotKey, types.AnalyticsSnapshot](cacheName, DefaultCacheTTL),
		now:       time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	a.snapshots.WithClock(a.now)
	return a
}

// Now returns the analyzer's current time.
func (a *Analyzer) Now() time.Time { return a.now() }

// Snapshot returns the aggregate view of workflowID over tr, served from
// cache when a fresh entry exists.
func (a *Analyzer) Snapshot(ctx context.Context, workflowID string, tr types.TimeRange) (types.AnalyticsSnapshot, error) {
	tr, _ = types.ResolveTimeRange(string(tr))
	key := snapshotKey{workflowID: workflowID, timeRange: tr}
	if s, ok := a.snapshots.Get(key); ok {
		a.metrics.ObserveCache(cacheName, true)
		return s, nil
	}
	a.metrics.ObserveCache(cacheName, false)

	execs, err := a.executions(ctx, workflowID, tr)
	if err != nil {
		return types.AnalyticsSnapshot{}, err
	}
	s := snapshotOf(workflowID, tr, execs)
	a.snapshots.Put(key, s)
	return s, nil
}

// Window holds every execution-derived view of one time range, all computed
// from the same query.
type Window struct {
	Snapshot    types.AnalyticsSnapshot
	Trends      types.TrendSeries
	Errors      types.ErrorAnalysis
	Utilization types.Utilization
	Throughput  types.Throughput
}

// Window reads the executions of workflowID over tr once, bypassing the
// snapshot cache, and derives every view from that single read. The fresh
// snapshot replaces any cached one.
func (a *Analyzer) Window(ctx context.Context, workflowID string, tr types.TimeRange) (Window, error) {
	tr, _ = types.ResolveTimeRange(string(tr))
	execs, err := a.executions(ctx, workflowID, tr)
	if err != nil {
		return Window{}, err
	}
	w := Window{
		Snapshot:    snapshotOf(workflowID, tr, execs),
		Trends:      BuildTrendSeries(workflowID, tr, DailyTrends(execs)),
		Errors:      AnalyzeErrors(execs),
		Utilization: ComputeUtilization(execs),
		Throughput:  ComputeThroughput(execs, tr.Duration()),
	}
	a.snapshots.Put(snapshotKey{workflowID: workflowID, timeRange: tr}, w.Snapshot)
	return w, nil
}

func snapshotOf(workflowID string, tr types.TimeRange, execs []types.ExecutionRecord) types.AnalyticsSnapshot {
	s := Summarize(execs)
	s.WorkflowID = workflowID
	s.TimeRange = tr
	if n := len(execs); n > 0 {
		s.PrincipalID = execs[n-1].PrincipalID
	}
	return s
}

// GetAnalytics is Snapshot with store errors logged and a zero snapshot
// returned in their place.
func (a *Analyzer) GetAnalytics(ctx context.Context, workflowID string, tr types.TimeRange) types.AnalyticsSnapshot {
	s, err := a.Snapshot(ctx, workflowID, tr)
	if err != nil {
		slog.Warn("analytics: snapshot failed", "workflow", workflowID, "range", tr, "err", err)
		tr, _ = types.ResolveTimeRange(string(tr))
		return types.AnalyticsSnapshot{WorkflowID: workflowID, TimeRange: tr}
	}
	return s
}

// Trends returns the per-day series and the direction of each metric.
func (a *Analyzer) Trends(ctx context.Context, workflowID string, tr types.TimeRange) (types.TrendSeries, error) {
	tr, _ = types.ResolveTimeRange(string(tr))
	execs, err := a.executions(ctx, workflowID, tr)
	if err != nil {
		return types.TrendSeries{}, err
	}
	return BuildTrendSeries(workflowID, tr, DailyTrends(execs)), nil
}

// GetTrends is Trends with store errors logged and an empty series returned.
func (a *Analyzer) GetTrends(ctx context.Context, workflowID string, tr types.TimeRange) types.TrendSeries {
	s, err := a.Trends(ctx, workflowID, tr)
	if err != nil {
		slog.Warn("analytics: trends failed", "workflow", workflowID, "range", tr, "err", err)
		tr, _ = types.ResolveTimeRange(string(tr))
		return BuildTrendSeries(workflowID, tr, []types.TrendPoint{})
	}
	return s
}

// Bottlenecks flags slow or failing nodes over tr.
func (a *Analyzer) Bottlenecks(ctx context.Context, workflowID string, tr types.TimeRange) ([]types.BottleneckFinding, error) {
	tr, _ = types.ResolveTimeRange(string(tr))
	start := time.Now()
	nodes, err := a.store.QueryNodes(ctx, workflowID, tr.Since(a.now()))
	a.metrics.ObserveStoreQuery("nodes", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("analytics: query nodes %s: %w", workflowID, err)
	}
	return DetectBottlenecks(nodes), nil
}

// GetBottlenecks is Bottlenecks with store errors logged and an empty list
// returned.
func (a *Analyzer) GetBottlenecks(ctx context.Context, workflowID string, tr types.TimeRange) []types.BottleneckFinding {
	f, err := a.Bottlenecks(ctx, workflowID, tr)
	if err != nil {
		slog.Warn("analytics: bottlenecks failed", "workflow", workflowID, "range", tr, "err", err)
		return []types.BottleneckFinding{}
	}
	return f
}

// ClearCache drops every cached snapshot and returns how many were removed.
func (a *Analyzer) ClearCache() int {
	return a.snapshots.Clear()
}

// Run evicts expired snapshots until ctx is cancelled.
func (a *Analyzer) Run(ctx context.Context) {
	a.snapshots.Run(ctx)
}

func (a *Analyzer) executions(ctx context.Context, workflowID string, tr types.TimeRange) ([]types.ExecutionRecord, error) {
	start := time.Now()
	execs, err := a.store.QueryExecutions(ctx, workflowID, tr.Since(a.now()))
	a.metrics.ObserveStoreQuery("executions", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("analytics: query executions %s: %w", workflowID, err)
	}
	return execs, nil
}
