// Package engine wires the recorder, analyzer and benchmark service into the
// single object that transports (gRPC, HTTP, WebSocket) talk to. It owns
// every cache and rolling counter; nothing in flowbench-server is global.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowbench/flowbench/pkg/types"
	"github.com/flowbench/flowbench/server/internal/analytics"
	"github.com/flowbench/flowbench/server/internal/benchmark"
	"github.com/flowbench/flowbench/server/internal/eventstore"
	"github.com/flowbench/flowbench/server/internal/observability"
	"github.com/flowbench/flowbench/server/internal/recorder"
)

// Config tunes an Engine. Zero values take package defaults.
type Config struct {
	AnalyticsTTL     time.Duration
	BenchmarkTTL     time.Duration
	HistorySize      int
	BenchmarkTimeout time.Duration
	Metrics          *observability.Metrics
	// Now replaces time.Now everywhere; tests only.
	Now func() time.Time
}

// Engine is the analytics and benchmarking engine. Safe for concurrent use.
type Engine struct {
	store     eventstore.Store
	recorder  *recorder.Recorder
	analyzer  *analytics.Analyzer
	benchmark *benchmark.Service
}

// New builds an Engine over store.
func New(store eventstore.Store, cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	a := analytics.New(store,
		analytics.WithCacheTTL(cfg.AnalyticsTTL),
		analytics.WithMetrics(cfg.Metrics),
		analytics.WithClock(now),
	)
	return &Engine{
		store: store,
		recorder: recorder.New(store,
			recorder.WithHistorySize(cfg.HistorySize),
			recorder.WithMetrics(cfg.Metrics),
			recorder.WithClock(now),
		),
		analyzer: a,
		benchmark: benchmark.New(store, a,
			benchmark.WithCacheTTL(cfg.BenchmarkTTL),
			benchmark.WithTimeout(cfg.BenchmarkTimeout),
			benchmark.WithMetrics(cfg.Metrics),
			benchmark.WithClock(now),
		),
	}
}

// RecordExecution validates and stores one workflow execution.
func (e *Engine) RecordExecution(ctx context.Context, workflowID string, data recorder.ExecutionData, rc recorder.RecordContext) (*types.ExecutionRecord, error) {
	return e.recorder.RecordExecution(ctx, workflowID, data, rc)
}

// RecordNode validates and stores one node execution.
func (e *Engine) RecordNode(ctx context.Context, workflowID, nodeID string, data recorder.NodeData, rc recorder.RecordContext) (*types.NodeRecord, error) {
	return e.recorder.RecordNode(ctx, workflowID, nodeID, data, rc)
}

// Counters returns the rolling counters of workflowID, if any were recorded.
func (e *Engine) Counters(workflowID string) (types.WorkflowCounters, bool) {
	return e.recorder.Counters(workflowID)
}

// AllCounters returns every workflow's rolling counters, sorted by workflow.
func (e *Engine) AllCounters() []types.WorkflowCounters {
	return e.recorder.AllCounters()
}

// GetAnalytics returns the cached aggregate snapshot of workflowID over tr.
func (e *Engine) GetAnalytics(ctx context.Context, workflowID string, tr types.TimeRange) types.AnalyticsSnapshot {
	return e.analyzer.GetAnalytics(ctx, workflowID, tr)
}

// GetTrends returns the daily series of workflowID over tr.
func (e *Engine) GetTrends(ctx context.Context, workflowID string, tr types.TimeRange) types.TrendSeries {
	return e.analyzer.GetTrends(ctx, workflowID, tr)
}

// GetBottlenecks returns the slow or failing nodes of workflowID over tr.
func (e *Engine) GetBottlenecks(ctx context.Context, workflowID string, tr types.TimeRange) []types.BottleneckFinding {
	return e.analyzer.GetBottlenecks(ctx, workflowID, tr)
}

// GetEfficiencyScore scores workflowID over the last 24 hours without
// persisting a report.
func (e *Engine) GetEfficiencyScore(ctx context.Context, workflowID string) float64 {
	return e.benchmark.EfficiencyScore(ctx, workflowID)
}

// RunBenchmark scores workflowID and persists the report. Unlike the read
// operations it returns every failure, including benchmark.ErrNoExecutions
// and benchmark.ErrTimeout.
func (e *Engine) RunBenchmark(ctx context.Context, workflowID string, opts benchmark.Options) (*types.BenchmarkReport, error) {
	return e.benchmark.Run(ctx, workflowID, opts)
}

// GetHistoricalBenchmarkTrends returns the daily averages of the persisted
// reports of workflowID over tr.
func (e *Engine) GetHistoricalBenchmarkTrends(ctx context.Context, workflowID string, tr types.TimeRange) types.BenchmarkTrendSeries {
	return e.benchmark.GetHistoricalTrends(ctx, workflowID, tr)
}

// RankWorkflows orders principalID's workflows by their latest overall score.
func (e *Engine) RankWorkflows(ctx context.Context, principalID string) []types.RankedWorkflow {
	return e.benchmark.RankWorkflows(ctx, principalID)
}

// ClearCache empties every analytics and benchmark cache and returns the
// number of entries dropped.
func (e *Engine) ClearCache() int {
	n := e.analyzer.ClearCache() + e.benchmark.ClearCache()
	slog.Info("engine: caches cleared", "entries", n)
	return n
}

// Run drives cache eviction until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	go e.benchmark.RunEviction(ctx)
	e.analyzer.Run(ctx)
}

// Close closes the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}
