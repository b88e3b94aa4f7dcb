package spool

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// maxLineBytes bounds a single spool line.
const maxLineBytes = 1 << 20

// Config configures a Reader.
type Config struct {
	Dir         string
	Pattern     string
	OffsetsPath string
}

// Reader tails spool files and tracks how far each has been read.
type Reader struct {
	cfg Config

	mu      sync.Mutex
	offsets map[string]int64 // base name -> byte offset
}

// NewReader returns a Reader with offsets loaded from cfg.OffsetsPath. A
// missing offsets file starts every spool file from the beginning.
func NewReader(cfg Config) (*Reader, error) {
	if cfg.Pattern == "" {
		cfg.Pattern = "*.jsonl"
	}
	r := &Reader{cfg: cfg, offsets: make(map[string]int64)}

	data, err := os.ReadFile(cfg.OffsetsPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("spool: read offsets: %w", err)
	default:
		if err := json.Unmarshal(data, &r.offsets); err != nil {
			return nil, fmt.Errorf("spool: parse offsets %s: %w", cfg.OffsetsPath, err)
		}
	}
	return r, nil
}

// Offsets returns a copy of the current per-file offsets.
func (r *Reader) Offsets() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.offsets))
	for k, v := range r.offsets {
		out[k] = v
	}
	return out
}

// Poll reads every complete new line across all spool files, in file name
// order, calls emit for each valid record and checkpoints offsets. It returns
// the number of records emitted.
func (r *Reader) Poll(ctx context.Context, emit func(Record)) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(r.cfg.Dir, r.cfg.Pattern))
	if err != nil {
		return 0, fmt.Errorf("spool: glob: %w", err)
	}
	sort.Strings(files)

	seen := make(map[string]bool, len(files))
	emitted := 0
	changed := false
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return emitted, err
		}
		name := filepath.Base(path)
		seen[name] = true

		n, next, err := r.readFile(path, r.offsets[name], emit)
		emitted += n
		if err != nil {
			slog.Warn("spool: read failed", "file", name, "err", err)
		}
		if next != r.offsets[name] {
			r.offsets[name] = next
			changed = true
		}
	}
	for name := range r.offsets {
		if !seen[name] {
			delete(r.offsets, name)
			changed = true
		}
	}

	if changed {
		if err := r.checkpoint(); err != nil {
			return emitted, err
		}
	}
	return emitted, nil
}

// readFile emits complete lines of path from offset and returns the count
// emitted and the offset after the last complete line.
func (r *Reader) readFile(path string, offset int64, emit func(Record)) (int, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, offset, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, offset, err
	}
	if info.Size() < offset {
		slog.Info("spool: file shrank, rereading from start", "file", filepath.Base(path),
			"offset", offset, "size", info.Size())
		offset = 0
	}
	if info.Size() == offset {
		return 0, offset, nil
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, offset, err
	}

	br := bufio.NewReaderSize(f, 64*1024)
	emitted := 0
	for {
		line, err := br.ReadBytes('\n')
		if err == io.EOF {
			// Partial line: leave it for the writer to finish.
			return emitted, offset, nil
		}
		if err != nil {
			return emitted, offset, err
		}
		offset += int64(len(line))

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if len(line) > maxLineBytes {
			slog.Warn("spool: line too long, skipped", "file", filepath.Base(path), "bytes", len(line))
			continue
		}
		rec, err := ParseLine(line)
		if err != nil {
			slog.Warn("spool: skipping line", "file", filepath.Base(path), "offset", offset, "err", err)
			continue
		}
		emit(rec)
		emitted++
	}
}

// checkpoint writes offsets atomically. Caller holds r.mu.
func (r *Reader) checkpoint() error {
	data, err := json.Marshal(r.offsets)
	if err != nil {
		return fmt.Errorf("spool: encode offsets: %w", err)
	}
	tmp := r.cfg.OffsetsPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("spool: write offsets: %w", err)
	}
	if err := os.Rename(tmp, r.cfg.OffsetsPath); err != nil {
		return fmt.Errorf("spool: commit offsets: %w", err)
	}
	return nil
}

// Run polls on every directory change and every interval until ctx is
// cancelled. If the directory cannot be watched, Run falls back to the
// ticker alone.
func (r *Reader) Run(ctx context.Context, interval time.Duration, emit func(Record)) {
	var events <-chan fsnotify.Event
	var errs <-chan error

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if err = watcher.Add(r.cfg.Dir); err == nil {
			events, errs = watcher.Events, watcher.Errors
		}
	}
	if err != nil {
		slog.Warn("spool: fsnotify unavailable, polling only", "dir", r.cfg.Dir, "err", err)
	} else {
		slog.Info("spool: watching", "dir", r.cfg.Dir, "pattern", r.cfg.Pattern)
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	poll := func() {
		n, err := r.Poll(ctx, emit)
		if err != nil && ctx.Err() == nil {
			slog.Error("spool: poll failed", "err", err)
		}
		if n > 0 {
			slog.Debug("spool: records read", "count", n)
		}
	}
	poll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			poll()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if r.matches(ev.Name) && (ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				poll()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("spool: watcher error", "err", err)
		}
	}
}

func (r *Reader) matches(path string) bool {
	ok, _ := filepath.Match(r.cfg.Pattern, filepath.Base(path))
	return ok
}
