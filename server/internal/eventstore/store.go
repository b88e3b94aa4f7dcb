// Package eventstore is the append-only persistence boundary for execution
// records, node records and benchmark reports.
//
// Three implementations share the Store interface:
//
//   - Memory: mutex-guarded slices; used in tests and for "memory" backend
//   - Badger: embedded BadgerDB, time-ordered keys per workflow
//   - Postgres: pgx connection pool, JSONB payloads
//
// Every query returns records ordered by timestamp ascending. Implementations
// never deduplicate; retries and exactly-once delivery belong to producers.
package eventstore

import (
	"context"
	"errors"
	"time"

	"github.com/flowbench/flowbench/pkg/types"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("eventstore: closed")

// Store is the event store contract consumed by the analytics engine.
type Store interface {
	InsertExecution(ctx context.Context, rec types.ExecutionRecord) error
	InsertNode(ctx context.Context, rec types.NodeRecord) error
	QueryExecutions(ctx context.Context, workflowID string, since time.Time) ([]types.ExecutionRecord, error)
	QueryNodes(ctx context.Context, workflowID string, since time.Time) ([]types.NodeRecord, error)

	InsertBenchmarkReport(ctx context.Context, report types.BenchmarkReport) error
	QueryBenchmarkReports(ctx context.Context, workflowID string, since time.Time) ([]types.BenchmarkReport, error)
	// QueryLatestBenchmarkPerWorkflow returns one report per workflow owned by
	// principalID: the most recent by CreatedAt.
	QueryLatestBenchmarkPerWorkflow(ctx context.Context, principalID string) ([]types.BenchmarkReport, error)

	Close() error
}
