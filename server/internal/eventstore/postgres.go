package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowbench/flowbench/pkg/types"
)

// PostgresConfig configures the PostgreSQL store.
type PostgresConfig struct {
	DSN            string
	MaxConnections int32
	ConnectTimeout time.Duration
}

// schema is applied on open. Indexed columns are duplicated out of the JSON
// payload so range scans never touch JSONB.
const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id           TEXT        NOT NULL,
	workflow_id  TEXT        NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	payload      JSONB       NOT NULL
);
CREATE INDEX IF NOT EXISTS executions_workflow_started ON executions (workflow_id, started_at);

CREATE TABLE IF NOT EXISTS node_executions (
	id           TEXT        NOT NULL,
	workflow_id  TEXT        NOT NULL,
	ts           TIMESTAMPTZ NOT NULL,
	payload      JSONB       NOT NULL
);
CREATE INDEX IF NOT EXISTS node_executions_workflow_ts ON node_executions (workflow_id, ts);

CREATE TABLE IF NOT EXISTS benchmark_reports (
	id           TEXT        NOT NULL,
	workflow_id  TEXT        NOT NULL,
	principal_id TEXT        NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	payload      JSONB       NOT NULL
);
CREATE INDEX IF NOT EXISTS benchmark_reports_workflow_created ON benchmark_reports (workflow_id, created_at);
CREATE INDEX IF NOT EXISTS benchmark_reports_principal ON benchmark_reports (principal_id, workflow_id, created_at DESC);
`

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool

	mu     sync.RWMutex
	closed bool
}

// OpenPostgres connects, pings and applies the schema.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("eventstore: postgres dsn is required")
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 10
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("eventstore: parse dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConnections
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	timeoutCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(timeoutCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("eventstore: create pool: %w", err)
	}
	if err := pool.Ping(timeoutCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("eventstore: ping: %w", err)
	}
	if _, err := pool.Exec(timeoutCtx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("eventstore: apply schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) InsertExecution(ctx context.Context, rec types.ExecutionRecord) error {
	return p.insert(ctx,
		`INSERT INTO executions (id, workflow_id, started_at, payload) VALUES ($1, $2, $3, $4)`,
		rec, rec.ID, rec.WorkflowID, rec.StartedAt)
}

func (p *Postgres) InsertNode(ctx context.Context, rec types.NodeRecord) error {
	return p.insert(ctx,
		`INSERT INTO node_executions (id, workflow_id, ts, payload) VALUES ($1, $2, $3, $4)`,
		rec, rec.ID, rec.WorkflowID, rec.Timestamp)
}

func (p *Postgres) InsertBenchmarkReport(ctx context.Context, report types.BenchmarkReport) error {
	return p.insert(ctx,
		`INSERT INTO benchmark_reports (id, workflow_id, principal_id, created_at, payload) VALUES ($1, $2, $3, $4, $5)`,
		report, report.ID, report.WorkflowID, report.PrincipalID, report.CreatedAt)
}

func (p *Postgres) QueryExecutions(ctx context.Context, workflowID string, since time.Time) ([]types.ExecutionRecord, error) {
	return queryPayloads[types.ExecutionRecord](ctx, p,
		`SELECT payload FROM executions WHERE workflow_id = $1 AND started_at >= $2 ORDER BY started_at ASC`,
		workflowID, since)
}

func (p *Postgres) QueryNodes(ctx context.Context, workflowID string, since time.Time) ([]types.NodeRecord, error) {
	return queryPayloads[types.NodeRecord](ctx, p,
		`SELECT payload FROM node_executions WHERE workflow_id = $1 AND ts >= $2 ORDER BY ts ASC`,
		workflowID, since)
}

func (p *Postgres) QueryBenchmarkReports(ctx context.Context, workflowID string, since time.Time) ([]types.BenchmarkReport, error) {
	return queryPayloads[types.BenchmarkReport](ctx, p,
		`SELECT payload FROM benchmark_reports WHERE workflow_id = $1 AND created_at >= $2 ORDER BY created_at ASC`,
		workflowID, since)
}

func (p *Postgres) QueryLatestBenchmarkPerWorkflow(ctx context.Context, principalID string) ([]types.BenchmarkReport, error) {
	return queryPayloads[types.BenchmarkReport](ctx, p,
		`SELECT DISTINCT ON (workflow_id) payload
		   FROM benchmark_reports
		  WHERE principal_id = $1
		  ORDER BY workflow_id, created_at DESC`,
		principalID)
}

// Close releases the pool. Subsequent calls return ErrClosed.
func (p *Postgres) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.pool.Close()
	}
	return nil
}

func (p *Postgres) acquire() error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrClosed
	}
	return nil
}

func (p *Postgres) insert(ctx context.Context, query string, payload any, args ...any) error {
	if err := p.acquire(); err != nil {
		return err
	}
	defer p.mu.RUnlock()

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("eventstore: encode payload: %w", err)
	}
	if _, err := p.pool.Exec(ctx, query, append(args, raw)...); err != nil {
		return fmt.Errorf("eventstore: insert: %w", err)
	}
	return nil
}

func queryPayloads[T any](ctx context.Context, p *Postgres, query string, args ...any) ([]T, error) {
	if err := p.acquire(); err != nil {
		return nil, err
	}
	defer p.mu.RUnlock()

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("eventstore: query: %w", err)
	}
	payloads, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("eventstore: collect rows: %w", err)
	}

	out := make([]T, 0, len(payloads))
	for _, raw := range payloads {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("eventstore: decode payload: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}
