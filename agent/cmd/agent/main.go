package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowbench/flowbench/agent/internal/config"
	"github.com/flowbench/flowbench/agent/internal/shipper"
	"github.com/flowbench/flowbench/agent/internal/spool"
)

// statsInterval is how often delivery counters are logged.
const statsInterval = time.Minute

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	var level slog.LevelVar
	level.Set(slog.LevelInfo)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("flowbench-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Agent.Log.SlogLevel())
	slog.Info("config loaded",
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"spool_dir", cfg.Agent.Spool.Dir,
		"pattern", cfg.Agent.Spool.Pattern,
		"poll_interval", cfg.Agent.Spool.PollInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Hot-reload applies the log level; spool and server settings need a restart.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			level.Set(updated.Agent.Log.SlogLevel())
			slog.Info("config hot-reloaded", "log_level", updated.Agent.Log.Level)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	reader, err := spool.NewReader(spool.Config{
		Dir:         cfg.Agent.Spool.Dir,
		Pattern:     cfg.Agent.Spool.Pattern,
		OffsetsPath: cfg.Agent.Spool.OffsetsPath(),
	})
	if err != nil {
		slog.Error("failed to open spool", "err", err)
		os.Exit(1)
	}

	ship := shipper.New(cfg.Agent)
	go ship.Run(ctx)
	go reader.Run(ctx, cfg.Agent.Spool.PollInterval, ship.Ship)

	go func() {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := ship.Stats()
				slog.Info("shipper stats",
					"delivered", st.Delivered,
					"discarded", st.Discarded,
					"evicted", st.Evicted,
				)
			}
		}
	}()

	<-ctx.Done()
	slog.Info("flowbench-agent shutting down")
}
