package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/flowbench/flowbench/pkg/types"
)

// Key layout. Timestamps are zero-padded unix nanoseconds so that byte order
// equals time order inside a workflow prefix. Ids are written as segments,
// <len>:<id>, so no id can extend another id's prefix whatever it contains.
//
//	exec|<workflow>|<ts>|<id>        ExecutionRecord
//	node|<workflow>|<ts>|<id>        NodeRecord
//	bench|<workflow>|<ts>|<id>       BenchmarkReport
//	latest|<principal>|<workflow>    key of the newest bench entry
const (
	prefixExec   = "exec|"
	prefixNode   = "node|"
	prefixBench  = "bench|"
	prefixLatest = "latest|"
)

// BadgerConfig configures the embedded store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path       string
	InMemory   bool
	SyncWrites bool
	// GCInterval is how often the value log GC runs. Zero disables it.
	GCInterval     time.Duration
	GCDiscardRatio float64
	Logger         *slog.Logger
}

// Badger is a Store backed by an embedded BadgerDB.
type Badger struct {
	db     *badger.DB
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool

	stopGC chan struct{}
	gcDone chan struct{}
}

// OpenBadger opens (creating if needed) a Badger store.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("eventstore: badger path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("eventstore: create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("eventstore: open badger: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Badger{db: db, logger: logger}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio > 1 {
			ratio = 0.5
		}
		b.stopGC = make(chan struct{})
		b.gcDone = make(chan struct{})
		go b.runGC(cfg.GCInterval, ratio)
	}
	return b, nil
}

func (b *Badger) runGC(interval time.Duration, ratio float64) {
	defer close(b.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite means nothing was worth collecting.
			if err := b.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				b.logger.Warn("eventstore: badger value log GC", "err", err)
			}
		}
	}
}

func (b *Badger) InsertExecution(ctx context.Context, rec types.ExecutionRecord) error {
	return b.put(ctx, recordKey(prefixExec, rec.WorkflowID, rec.StartedAt, rec.ID), rec)
}

func (b *Badger) InsertNode(ctx context.Context, rec types.NodeRecord) error {
	return b.put(ctx, recordKey(prefixNode, rec.WorkflowID, rec.Timestamp, rec.ID), rec)
}

func (b *Badger) QueryExecutions(ctx context.Context, workflowID string, since time.Time) ([]types.ExecutionRecord, error) {
	out := make([]types.ExecutionRecord, 0)
	err := b.scan(ctx, prefixExec, workflowID, since, func(val []byte) error {
		var rec types.ExecutionRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		if rec.WorkflowID == workflowID && !rec.StartedAt.Before(since) {
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Badger) QueryNodes(ctx context.Context, workflowID string, since time.Time) ([]types.NodeRecord, error) {
	out := make([]types.NodeRecord, 0)
	err := b.scan(ctx, prefixNode, workflowID, since, func(val []byte) error {
		var rec types.NodeRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		if rec.WorkflowID == workflowID && !rec.Timestamp.Before(since) {
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertBenchmarkReport writes the report and, in the same transaction,
// advances the principal's latest-report index if this report is newer.
func (b *Badger) InsertBenchmarkReport(ctx context.Context, report types.BenchmarkReport) error {
	if err := b.guard(ctx); err != nil {
		return err
	}
	defer b.mu.RUnlock()

	val, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("eventstore: encode report: %w", err)
	}
	key := recordKey(prefixBench, report.WorkflowID, report.CreatedAt, report.ID)
	idx := latestKey(report.PrincipalID, report.WorkflowID)

	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, val); err != nil {
			return err
		}
		item, err := txn.Get(idx)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			return txn.Set(idx, key)
		case err != nil:
			return err
		}
		current, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		// Keys share the workflow prefix, so the larger key is the newer one.
		if string(key) > string(current) {
			return txn.Set(idx, key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("eventstore: insert report: %w", err)
	}
	return nil
}

func (b *Badger) QueryBenchmarkReports(ctx context.Context, workflowID string, since time.Time) ([]types.BenchmarkReport, error) {
	out := make([]types.BenchmarkReport, 0)
	err := b.scan(ctx, prefixBench, workflowID, since, func(val []byte) error {
		var r types.BenchmarkReport
		if err := json.Unmarshal(val, &r); err != nil {
			return err
		}
		if r.WorkflowID == workflowID && !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Badger) QueryLatestBenchmarkPerWorkflow(ctx context.Context, principalID string) ([]types.BenchmarkReport, error) {
	if err := b.guard(ctx); err != nil {
		return nil, err
	}
	defer b.mu.RUnlock()

	out := make([]types.BenchmarkReport, 0)
	prefix := []byte(prefixLatest + segment(principalID) + "|")
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			reportKey, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			item, err := txn.Get(reportKey)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			var r types.BenchmarkReport
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &r) }); err != nil {
				return err
			}
			if r.PrincipalID == principalID {
				out = append(out, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("eventstore: latest reports: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkflowID < out[j].WorkflowID })
	return out, nil
}

// Close stops value log GC and closes the database.
func (b *Badger) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.stopGC != nil {
		close(b.stopGC)
		<-b.gcDone
	}
	return b.db.Close()
}

// guard checks ctx and the closed flag. On success the read lock is held and
// the caller must release it.
func (b *Badger) guard(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	return nil
}

func (b *Badger) put(ctx context.Context, key []byte, v any) error {
	if err := b.guard(ctx); err != nil {
		return err
	}
	defer b.mu.RUnlock()

	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("eventstore: encode %s: %w", key, err)
	}
	if err := b.db.Update(func(txn *badger.Txn) error { return txn.Set(key, val) }); err != nil {
		return fmt.Errorf("eventstore: write %s: %w", key, err)
	}
	return nil
}

// scan walks every entry of kind/workflow from since onward in key order.
func (b *Badger) scan(ctx context.Context, kind, workflowID string, since time.Time, fn func(val []byte) error) error {
	if err := b.guard(ctx); err != nil {
		return err
	}
	defer b.mu.RUnlock()

	prefix := []byte(kind + segment(workflowID) + "|")
	start := append([]byte{}, prefix...)
	start = append(start, tsKey(since)...)

	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("eventstore: scan %s%s: %w", kind, workflowID, err)
	}
	return nil
}

func recordKey(kind, workflowID string, ts time.Time, id string) []byte {
	return []byte(kind + segment(workflowID) + "|" + tsKey(ts) + "|" + id)
}

func latestKey(principalID, workflowID string) []byte {
	return []byte(prefixLatest + segment(principalID) + "|" + segment(workflowID))
}

// segment length-prefixes id.
func segment(id string) string {
	return strconv.Itoa(len(id)) + ":" + id
}

// tsKey renders ts as 20 zero-padded digits. Instants before the epoch clamp
// to zero.
func tsKey(ts time.Time) string {
	if ts.Before(time.Unix(0, 0)) {
		return fmt.Sprintf("%020d", 0)
	}
	return fmt.Sprintf("%020d", ts.UnixNano())
}

// badgerLogger adapts slog to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
