// Package benchmark scores a workflow against fixed threshold ladders,
// compares it with industry standards and the principal's other workflows,
// and persists the result as an append-only report.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/flowbench/flowbench/pkg/types"
	"github.com/flowbench/flowbench/server/internal/analytics"
	"github.com/flowbench/flowbench/server/internal/cache"
	"github.com/flowbench/flowbench/server/internal/eventstore"
	"github.com/flowbench/flowbench/server/internal/observability"
)

var (
	// ErrNoExecutions is returned when the window holds no executions to score.
	ErrNoExecutions = errors.New("benchmark: no executions in time range")
	// ErrTimeout is returned when a run exceeds its deadline.
	ErrTimeout = errors.New("benchmark: timed out")
)

// Defaults for Service and Options.
const (
	DefaultTimeout  = 30 * time.Second
	DefaultCacheTTL = 15 * time.Minute
)

// Options controls a single run.
type Options struct {
	TimeRange              types.TimeRange
	IncludeComparison      bool
	IncludeTrends          bool
	IncludeRecommendations bool
	// Timeout bounds the whole run. Zero means the service default.
	Timeout time.Duration
	// PrincipalID owns the report. Empty falls back to the principal of the
	// latest execution in the window.
	PrincipalID string
}

// DefaultOptions enables every section over the default time range.
func DefaultOptions() Options {
	return Options{
		TimeRange:              types.DefaultTimeRange,
		IncludeComparison:      true,
		IncludeTrends:          true,
		IncludeRecommendations: true,
	}
}

type historyKey struct {
	workflowID string
	timeRange  types.TimeRange
}

// Service runs benchmarks and serves their history. Safe for concurrent use.
type Service struct {
	store    eventstore.Store
	analyzer *analytics.Analyzer
	metrics  *observability.Metrics
	timeout  time.Duration
	now      func() time.Time

	history  *cache.Cache[historyKey, types.BenchmarkTrendSeries]
	rankings *cache.Cache[string, []types.RankedWorkflow]
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout sets the default run timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithCacheTTL sets the TTL of the history and ranking caches.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.history = cache.New[historyKey, types.BenchmarkTrendSeries]("benchmark_trends", ttl)
			s.rankings = cache.New[string, []types.RankedWorkflow]("rankings", ttl)
		}
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces time.Now for report timestamps, windows and caches.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service. analyzer supplies every per-window view.
func New(store eventstore.Store, analyzer *analytics.Analyzer, opts ...Option) *Service {
	s := &Service{
		store:    store,
		analyzer: analyzer,
		timeout:  DefaultTimeout,
		now:      time.Now,
		history:  cache.New[historyKey, types.BenchmarkTrendSeries]("benchmark_trends", DefaultCacheTTL),
		rankings: cache.New[string, []types.RankedWorkflow]("rankings", DefaultCacheTTL),
	}
	for _, o := range opts {
		o(s)
	}
	s.history.WithClock(s.now)
	s.rankings.WithClock(s.now)
	return s
}

// windowData is everything a run fetches before scoring.
type windowData struct {
	snapshot    types.AnalyticsSnapshot
	trends      types.TrendSeries
	bottlenecks []types.BottleneckFinding
	errors      types.ErrorAnalysis
	utilization types.Utilization
	throughput  types.Throughput
}

// Run benchmarks workflowID and persists the report. The execution and node
// queries run concurrently under the run's deadline; any failure aborts the
// run and nothing is persisted.
func (s *Service) Run(ctx context.Context, workflowID string, opts Options) (*types.BenchmarkReport, error) {
	started := time.Now()
	report, err := s.run(ctx, workflowID, opts)

	status := observability.BenchmarkOK
	switch {
	case errors.Is(err, ErrNoExecutions):
		status = observability.BenchmarkNoExecutions
	case errors.Is(err, ErrTimeout):
		status = observability.BenchmarkTimeout
	case err != nil:
		status = observability.BenchmarkError
	}
	var score float64
	if report != nil {
		score = report.OverallScore
	}
	s.metrics.ObserveBenchmark(status, time.Since(started), score)

	if err != nil {
		slog.Warn("benchmark: run failed", "workflow", workflowID, "err", err)
		return nil, err
	}
	slog.Info("benchmark: run complete", "workflow", workflowID,
		"score", report.OverallScore, "grade", report.Grade, "took", time.Since(started))
	return report, nil
}

func (s *Service) run(ctx context.Context, workflowID string, opts Options) (*types.BenchmarkReport, error) {
	tr, _ := types.ResolveTimeRange(string(opts.TimeRange))
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := s.fetch(ctx, workflowID, tr)
	if err != nil {
		return nil, s.runErr(ctx, err)
	}
	if data.snapshot.TotalExecutions == 0 {
		return nil, fmt.Errorf("%w: workflow %s, range %s", ErrNoExecutions, workflowID, tr)
	}

	raw := rawMetrics(data)
	scores := ComputeScores(raw)
	overall := scores.Mean()

	principal := opts.PrincipalID
	if principal == "" {
		principal = data.snapshot.PrincipalID
	}

	report := &types.BenchmarkReport{
		ID:               uuid.NewString(),
		WorkflowID:       workflowID,
		PrincipalID:      principal,
		TimeRange:        tr,
		Scores:           scores,
		Raw:              raw,
		OverallScore:     overall,
		Grade:            GradeFor(overall),
		PerformanceLevel: LevelFor(overall),
		Significance:     SignificanceFor(data.snapshot.TotalExecutions),
		Recommendations:  []types.Recommendation{},
		Bottlenecks:      data.bottlenecks,
		Errors:           &data.errors,
		CreatedAt:        s.now().UTC(),
	}
	if opts.IncludeTrends {
		report.Trends = &data.trends
	}
	if opts.IncludeRecommendations {
		report.Recommendations = Recommend(scores)
	}
	if opts.IncludeComparison {
		cmp := CompareToStandards(scores, raw)
		if principal != "" {
			latest, err := s.store.QueryLatestBenchmarkPerWorkflow(ctx, principal)
			if err != nil {
				return nil, s.runErr(ctx, fmt.Errorf("benchmark: peer reports: %w", err))
			}
			cmp.PeerRank, cmp.Peers = placeAmongPeers(*report, latest)
			cmp.PeerCount = len(cmp.Peers)
		}
		report.Comparison = &cmp
	}

	if err := ctx.Err(); err != nil {
		return nil, s.runErr(ctx, err)
	}
	if err := s.store.InsertBenchmarkReport(ctx, *report); err != nil {
		return nil, s.runErr(ctx, fmt.Errorf("benchmark: persist report: %w", err))
	}
	return report, nil
}

// runErr reports deadline expiry as ErrTimeout.
func (s *Service) runErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// fetch reads the window's executions once and its nodes concurrently, so
// every figure in a report describes the same records.
func (s *Service) fetch(ctx context.Context, workflowID string, tr types.TimeRange) (*windowData, error) {
	var (
		d windowData
		w analytics.Window
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		w, err = s.analyzer.Window(gctx, workflowID, tr)
		return err
	})
	g.Go(func() (err error) {
		d.bottlenecks, err = s.analyzer.Bottlenecks(gctx, workflowID, tr)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	d.snapshot = w.Snapshot
	d.trends = w.Trends
	d.errors = w.Errors
	d.utilization = w.Utilization
	d.throughput = w.Throughput
	return &d, nil
}

func rawMetrics(d *windowData) types.RawMetrics {
	high, medium := analytics.CountSeverities(d.bottlenecks)
	return types.RawMetrics{
		AvgExecutionTimeMs: d.snapshot.AvgExecutionTime,
		SuccessRate:        d.snapshot.SuccessRate,
		ItemsPerSecond:     d.throughput.ItemsPerSecond,
		ErrorRate:          d.errors.ErrorRate,
		UtilizationPct:     d.utilization.UtilizationPct,
		TotalExecutions:    d.snapshot.TotalExecutions,
		CoefficientOfVar:   analytics.CoefficientOfVariation(d.trends.Points),
		HighBottlenecks:    high,
		MediumBottlenecks:  medium,
	}
}

// EfficiencyScore is the efficiency score over the last 24 hours, computed
// without running or persisting a benchmark. No executions score 0.
func (s *Service) EfficiencyScore(ctx context.Context, workflowID string) float64 {
	snap := s.analyzer.GetAnalytics(ctx, workflowID, types.Range24h)
	if snap.TotalExecutions == 0 {
		return 0
	}
	return EfficiencyScore(ExecutionTimeScore(snap.AvgExecutionTime), SuccessRateScore(snap.SuccessRate))
}

// ClearCache drops cached history and rankings and returns how many entries
// were removed.
func (s *Service) ClearCache() int {
	return s.history.Clear() + s.rankings.Clear()
}

// RunEviction evicts expired history and ranking entries until ctx is
// cancelled.
func (s *Service) RunEviction(ctx context.Context) {
	go s.rankings.Run(ctx)
	s.history.Run(ctx)
}
