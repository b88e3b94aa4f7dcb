// Package recorder turns raw execution and node events into persisted records
// and keeps an in-process rolling counter per workflow.
//
// Writes are fire-and-forget from the caller's point of view: a store failure
// is logged and counted, never returned, and the rolling counters update
// regardless. Only malformed input is rejected, with ErrInvalidRecord.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/flowbench/flowbench/pkg/types"
	"github.com/flowbench/flowbench/server/internal/eventstore"
	"github.com/flowbench/flowbench/server/internal/observability"
)

// ErrInvalidRecord is returned when event data fails validation.
var ErrInvalidRecord = errors.New("recorder: invalid record")

// DefaultHistorySize is the number of recent executions kept per workflow.
const DefaultHistorySize = 100

// ExecutionData is the caller-supplied part of an ExecutionRecord.
type ExecutionData struct {
	// StartedAt defaults to the record time minus DurationMs when zero.
	StartedAt          time.Time      `json:"started_at"`
	DurationMs         int64          `json:"duration_ms" validate:"gte=0"`
	Success            bool           `json:"success"`
	Error              string         `json:"error,omitempty" validate:"max=4096"`
	NodesExecuted      int            `json:"nodes_executed" validate:"gte=0,ltefield=TotalNodes"`
	TotalNodes         int            `json:"total_nodes" validate:"gte=0"`
	ItemsProcessed     int64          `json:"items_processed" validate:"gte=0"`
	ResponsesGenerated int64          `json:"responses_generated" validate:"gte=0"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// NodeData is the caller-supplied part of a NodeRecord.
type NodeData struct {
	ExecutionID string    `json:"execution_id,omitempty"`
	NodeType    string    `json:"node_type" validate:"max=256"`
	DurationMs  int64     `json:"duration_ms" validate:"gte=0"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty" validate:"max=4096"`
	InputItems  int64     `json:"input_items" validate:"gte=0"`
	OutputItems int64     `json:"output_items" validate:"gte=0"`
	Timestamp   time.Time `json:"timestamp"`
}

// RecordContext carries who the record belongs to.
type RecordContext struct {
	PrincipalID string
	// ExecutionID overrides the generated id; agents use it to correlate
	// node records with their execution.
	ExecutionID string
}

// Recorder validates, persists and rolls up records. Safe for concurrent use.
type Recorder struct {
	store       eventstore.Store
	metrics     *observability.Metrics
	validate    *validator.Validate
	historySize int
	now         func() time.Time // injectable for deterministic tests

	mu       sync.RWMutex
	counters map[string]*counter
}

// counter is the mutable rollup behind types.WorkflowCounters.
type counter struct {
	mu              sync.Mutex
	total           int64
	successful      int64
	failed          int64
	totalDurationMs int64
	lastExecutionAt time.Time
	recent          []types.ExecutionSummary // oldest first
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithHistorySize bounds the per-workflow recent history.
func WithHistorySize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.historySize = n
		}
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// New creates a Recorder writing to store.
func New(store eventstore.Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:       store,
		validate:    validator.New(),
		historySize: DefaultHistorySize,
		now:         time.Now,
		counters:    make(map[string]*counter),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RecordExecution builds an ExecutionRecord, writes it and updates the
// workflow's rolling counters. The returned record carries the generated id.
func (r *Recorder) RecordExecution(ctx context.Context, workflowID string, data ExecutionData, rc RecordContext) (*types.ExecutionRecord, error) {
	if workflowID == "" {
		r.metrics.ObserveRecord(observability.KindExecution, observability.StatusInvalid)
		return nil, fmt.Errorf("%w: workflow id is required", ErrInvalidRecord)
	}
	if err := r.validate.Struct(data); err != nil {
		r.metrics.ObserveRecord(observability.KindExecution, observability.StatusInvalid)
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	id := rc.ExecutionID
	if id == "" {
		id = uuid.NewString()
	}
	started := data.StartedAt
	if started.IsZero() {
		started = r.now().Add(-time.Duration(data.DurationMs) * time.Millisecond)
	}
	rec := types.ExecutionRecord{
		ID:                 id,
		WorkflowID:         workflowID,
		PrincipalID:        rc.PrincipalID,
		StartedAt:          started.UTC(),
		DurationMs:         data.DurationMs,
		Success:            data.Success,
		Error:              data.Error,
		NodesExecuted:      data.NodesExecuted,
		TotalNodes:         data.TotalNodes,
		ItemsProcessed:     data.ItemsProcessed,
		ResponsesGenerated: data.ResponsesGenerated,
		Metadata:           data.Metadata,
	}

	status := observability.StatusOK
	if err := r.store.InsertExecution(ctx, rec); err != nil {
		status = observability.StatusStoreError
		slog.Error("recorder: store execution failed", "workflow", workflowID, "id", id, "err", err)
	}
	r.metrics.ObserveRecord(observability.KindExecution, status)

	r.counterFor(workflowID).add(rec, r.historySize)
	return &rec, nil
}

// RecordNode builds and writes a NodeRecord. Nodes have no in-memory rollup.
func (r *Recorder) RecordNode(ctx context.Context, workflowID, nodeID string, data NodeData, rc RecordContext) (*types.NodeRecord, error) {
	if workflowID == "" || nodeID == "" {
		r.metrics.ObserveRecord(observability.KindNode, observability.StatusInvalid)
		return nil, fmt.Errorf("%w: workflow id and node id are required", ErrInvalidRecord)
	}
	if err := r.validate.Struct(data); err != nil {
		r.metrics.ObserveRecord(observability.KindNode, observability.StatusInvalid)
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	ts := data.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	execID := data.ExecutionID
	if execID == "" {
		execID = rc.ExecutionID
	}
	rec := types.NodeRecord{
		ID:          uuid.NewString(),
		WorkflowID:  workflowID,
		ExecutionID: execID,
		NodeID:      nodeID,
		NodeType:    data.NodeType,
		DurationMs:  data.DurationMs,
		Success:     data.Success,
		Error:       data.Error,
		InputItems:  data.InputItems,
		OutputItems: data.OutputItems,
		Timestamp:   ts.UTC(),
	}

	status := observability.StatusOK
	if err := r.store.InsertNode(ctx, rec); err != nil {
		status = observability.StatusStoreError
		slog.Error("recorder: store node failed", "workflow", workflowID, "node", nodeID, "err", err)
	}
	r.metrics.ObserveRecord(observability.KindNode, status)
	return &rec, nil
}

// Counters returns the rolling counters for one workflow.
func (r *Recorder) Counters(workflowID string) (types.WorkflowCounters, bool) {
	r.mu.RLock()
	c, ok := r.counters[workflowID]
	r.mu.RUnlock()
	if !ok {
		return types.WorkflowCounters{}, false
	}
	return c.snapshot(workflowID), true
}

// AllCounters returns the rolling counters of every workflow seen, sorted by
// workflow id.
func (r *Recorder) AllCounters() []types.WorkflowCounters {
	r.mu.RLock()
	ids := make([]string, 0, len(r.counters))
	cs := make(map[string]*counter, len(r.counters))
	for id, c := range r.counters {
		ids = append(ids, id)
		cs[id] = c
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	out := make([]types.WorkflowCounters, 0, len(ids))
	for _, id := range ids {
		out = append(out, cs[id].snapshot(id))
	}
	return out
}

func (r *Recorder) counterFor(workflowID string) *counter {
	r.mu.RLock()
	c, ok := r.counters[workflowID]
	r.mu.RUnlock()
	if ok {
		return c
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.counters[workflowID]; !ok {
		c = &counter{}
		r.counters[workflowID] = c
	}
	return c
}

func (c *counter) add(rec types.ExecutionRecord, limit int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	if rec.Success {
		c.successful++
	} else {
		c.failed++
	}
	c.totalDurationMs += rec.DurationMs
	if rec.StartedAt.After(c.lastExecutionAt) {
		c.lastExecutionAt = rec.StartedAt
	}
	c.recent = append(c.recent, types.ExecutionSummary{
		ID:         rec.ID,
		StartedAt:  rec.StartedAt,
		DurationMs: rec.DurationMs,
		Success:    rec.Success,
	})
	if over := len(c.recent) - limit; over > 0 {
		c.recent = append(c.recent[:0:0], c.recent[over:]...)
	}
}

func (c *counter) snapshot(workflowID string) types.WorkflowCounters {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := types.WorkflowCounters{
		WorkflowID:      workflowID,
		Total:           c.total,
		Successful:      c.successful,
		Failed:          c.failed,
		TotalDurationMs: c.totalDurationMs,
		Recent:          append([]types.ExecutionSummary(nil), c.recent...),
	}
	if c.total > 0 {
		out.AvgDurationMs = float64(c.totalDurationMs) / float64(c.total)
		out.SuccessRate = float64(c.successful) / float64(c.total) * 100
		last := c.lastExecutionAt
		out.LastExecutionAt = &last
	}
	return out
}
