package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowbench/flowbench/pkg/types"
)

// Memory is a thread-safe in-process Store. Records are kept per workflow in
// insertion order and sorted on read.
type Memory struct {
	mu         sync.RWMutex
	executions map[string][]types.ExecutionRecord
	nodes      map[string][]types.NodeRecord
	reports    map[string][]types.BenchmarkReport
	closed     bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		executions: make(map[string][]types.ExecutionRecord),
		nodes:      make(map[string][]types.NodeRecord),
		reports:    make(map[string][]types.BenchmarkReport),
	}
}

func (m *Memory) InsertExecution(ctx context.Context, rec types.ExecutionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.executions[rec.WorkflowID] = append(m.executions[rec.WorkflowID], rec)
	return nil
}

func (m *Memory) InsertNode(ctx context.Context, rec types.NodeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.nodes[rec.WorkflowID] = append(m.nodes[rec.WorkflowID], rec)
	return nil
}

func (m *Memory) QueryExecutions(ctx context.Context, workflowID string, since time.Time) ([]types.ExecutionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]types.ExecutionRecord, 0)
	for _, r := range m.executions[workflowID] {
		if !r.StartedAt.Before(since) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *Memory) QueryNodes(ctx context.Context, workflowID string, since time.Time) ([]types.NodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]types.NodeRecord, 0)
	for _, r := range m.nodes[workflowID] {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) InsertBenchmarkReport(ctx context.Context, report types.BenchmarkReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.reports[report.WorkflowID] = append(m.reports[report.WorkflowID], report)
	return nil
}

func (m *Memory) QueryBenchmarkReports(ctx context.Context, workflowID string, since time.Time) ([]types.BenchmarkReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]types.BenchmarkReport, 0)
	for _, r := range m.reports[workflowID] {
		if !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) QueryLatestBenchmarkPerWorkflow(ctx context.Context, principalID string) ([]types.BenchmarkReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]types.BenchmarkReport, 0)
	for _, reports := range m.reports {
		var latest *types.BenchmarkReport
		for i := range reports {
			r := &reports[i]
			if r.PrincipalID != principalID {
				continue
			}
			if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
				latest = r
			}
		}
		if latest != nil {
			out = append(out, *latest)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkflowID < out[j].WorkflowID })
	return out, nil
}

// Close marks the store closed. Subsequent calls return ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
