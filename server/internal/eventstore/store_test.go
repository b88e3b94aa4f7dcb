package eventstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbench/flowbench/pkg/types"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func exec(id, wf string, offset time.Duration) types.ExecutionRecord {
	return types.ExecutionRecord{
		ID:          id,
		WorkflowID:  wf,
		PrincipalID: "p1",
		StartedAt:   baseTime.Add(offset),
		DurationMs:  1000,
		Success:     true,
	}
}

func report(id, wf, principal string, offset time.Duration, score float64) types.BenchmarkReport {
	return types.BenchmarkReport{
		ID:           id,
		WorkflowID:   wf,
		PrincipalID:  principal,
		OverallScore: score,
		CreatedAt:    baseTime.Add(offset),
	}
}

// backends returns every Store implementation available in this environment.
// Postgres runs only when FLOWBENCH_POSTGRES_DSN points at a scratch database.
func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	out := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"badger": func(t *testing.T) Store {
			s, err := OpenBadger(BadgerConfig{InMemory: true})
			require.NoError(t, err)
			return s
		},
	}
	if dsn := os.Getenv("FLOWBENCH_POSTGRES_DSN"); dsn != "" {
		out["postgres"] = func(t *testing.T) Store {
			s, err := OpenPostgres(context.Background(), PostgresConfig{DSN: dsn})
			require.NoError(t, err)
			_, err = s.pool.Exec(context.Background(),
				`TRUNCATE executions, node_executions, benchmark_reports`)
			require.NoError(t, err)
			return s
		}
	}
	return out
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

func TestQueryExecutions_OrderedAndFiltered(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		// inserted out of order
		require.NoError(t, s.InsertExecution(ctx, exec("e3", "wf", 3*time.Minute)))
		require.NoError(t, s.InsertExecution(ctx, exec("e1", "wf", 1*time.Minute)))
		require.NoError(t, s.InsertExecution(ctx, exec("e2", "wf", 2*time.Minute)))
		require.NoError(t, s.InsertExecution(ctx, exec("old", "wf", -time.Hour)))
		require.NoError(t, s.InsertExecution(ctx, exec("other", "wf2", 2*time.Minute)))

		got, err := s.QueryExecutions(ctx, "wf", baseTime)
		require.NoError(t, err)
		ids := make([]string, len(got))
		for i, r := range got {
			ids[i] = r.ID
		}
		assert.Equal(t, []string{"e1", "e2", "e3"}, ids)
	})
}

func TestQueryExecutions_SinceIsInclusive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.InsertExecution(ctx, exec("edge", "wf", 0)))
		got, err := s.QueryExecutions(ctx, "wf", baseTime)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "edge", got[0].ID)
	})
}

func TestQueryExecutions_UnknownWorkflowIsEmpty(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		got, err := s.QueryExecutions(context.Background(), "nope", time.Time{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestQueryExecutions_PrefixCollision(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.InsertExecution(ctx, exec("a", "wf", time.Minute)))
		require.NoError(t, s.InsertExecution(ctx, exec("b", "wf|x", time.Minute)))

		got, err := s.QueryExecutions(ctx, "wf", baseTime)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a", got[0].ID)
	})
}

func TestQueryNodes(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			require.NoError(t, s.InsertNode(ctx, types.NodeRecord{
				ID:         fmt.Sprintf("n%d", i),
				WorkflowID: "wf",
				NodeID:     "http",
				DurationMs: int64(100 * (i + 1)),
				Success:    true,
				Timestamp:  baseTime.Add(time.Duration(2-i) * time.Minute),
			}))
		}
		got, err := s.QueryNodes(ctx, "wf", baseTime)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "n2", got[0].ID)
		assert.Equal(t, "n0", got[2].ID)
	})
}

func TestBenchmarkReports_RangeAndLatest(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.InsertBenchmarkReport(ctx, report("r1", "wfA", "p1", 1*time.Hour, 70)))
		require.NoError(t, s.InsertBenchmarkReport(ctx, report("r2", "wfA", "p1", 3*time.Hour, 80)))
		// older report inserted last must not displace the latest
		require.NoError(t, s.InsertBenchmarkReport(ctx, report("r0", "wfA", "p1", 0, 60)))
		require.NoError(t, s.InsertBenchmarkReport(ctx, report("r3", "wfB", "p1", 2*time.Hour, 90)))
		require.NoError(t, s.InsertBenchmarkReport(ctx, report("r4", "wfC", "p2", 2*time.Hour, 50)))

		got, err := s.QueryBenchmarkReports(ctx, "wfA", baseTime.Add(30*time.Minute))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "r1", got[0].ID)
		assert.Equal(t, "r2", got[1].ID)

		latest, err := s.QueryLatestBenchmarkPerWorkflow(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, latest, 2)
		byWF := map[string]string{}
		for _, r := range latest {
			byWF[r.WorkflowID] = r.ID
		}
		assert.Equal(t, map[string]string{"wfA": "r2", "wfB": "r3"}, byWF)
	})
}

func TestLatestBenchmark_SeparatorInIDs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		// Joined with "|", both pairs would read "p|x|y".
		require.NoError(t, s.InsertBenchmarkReport(ctx, report("first", "y", "p|x", time.Hour, 70)))
		require.NoError(t, s.InsertBenchmarkReport(ctx, report("second", "x|y", "p", 2*time.Hour, 80)))

		got, err := s.QueryLatestBenchmarkPerWorkflow(ctx, "p|x")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "first", got[0].ID)

		got, err = s.QueryLatestBenchmarkPerWorkflow(ctx, "p")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "second", got[0].ID)
	})
}

func TestClosedStoreReturnsErrClosed(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		require.NoError(t, s.Close())
		ctx := context.Background()
		assert.ErrorIs(t, s.InsertExecution(ctx, exec("x", "wf", 0)), ErrClosed)
		_, err := s.QueryExecutions(ctx, "wf", time.Time{})
		assert.ErrorIs(t, err, ErrClosed)
		_, err = s.QueryLatestBenchmarkPerWorkflow(ctx, "p1")
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestCancelledContext(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.QueryExecutions(ctx, "wf", time.Time{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRecordRoundTripKeepsFields(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		in := types.ExecutionRecord{
			ID:                 "full",
			WorkflowID:         "wf",
			PrincipalID:        "p9",
			StartedAt:          baseTime,
			DurationMs:         4321,
			Success:            false,
			Error:              "boom",
			NodesExecuted:      3,
			TotalNodes:         5,
			ItemsProcessed:     42,
			ResponsesGenerated: 7,
		}
		require.NoError(t, s.InsertExecution(ctx, in))
		got, err := s.QueryExecutions(ctx, "wf", time.Time{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, in.StartedAt.Equal(got[0].StartedAt))
		got[0].StartedAt = in.StartedAt
		assert.Equal(t, in, got[0])
	})
}

func TestTsKeyOrdering(t *testing.T) {
	a := tsKey(baseTime)
	b := tsKey(baseTime.Add(time.Nanosecond))
	assert.Len(t, a, 20)
	assert.Less(t, a, b)
	assert.Equal(t, fmt.Sprintf("%020d", 0), tsKey(time.Time{}))
}
