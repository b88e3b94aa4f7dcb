package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/flowbench/flowbench/pkg/rpc"
	"github.com/flowbench/flowbench/server/internal/api"
	"github.com/flowbench/flowbench/server/internal/auth"
	"github.com/flowbench/flowbench/server/internal/config"
	"github.com/flowbench/flowbench/server/internal/engine"
	"github.com/flowbench/flowbench/server/internal/eventstore"
	"github.com/flowbench/flowbench/server/internal/observability"
	"github.com/flowbench/flowbench/server/internal/receiver"
	"github.com/flowbench/flowbench/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file; empty runs with defaults")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("flowbench-server starting", "config", *configPath)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			slog.Error("failed to load config", "err", err)
			os.Exit(1)
		}
	}
	level.Set(cfg.Server.Log.SlogLevel())

	slog.Info("config loaded",
		"grpc_port", cfg.Server.GRPCPort,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"storage", cfg.Server.Storage.Backend,
		"analytics_ttl", cfg.Server.Cache.AnalyticsTTL,
		"benchmark_ttl", cfg.Server.Cache.BenchmarkTTL,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	store, err := openStore(ctx, cfg.Server.Storage, logger)
	if err != nil {
		slog.Error("failed to open event store", "backend", cfg.Server.Storage.Backend, "err", err)
		os.Exit(1)
	}

	eng := engine.New(store, engine.Config{
		AnalyticsTTL:     cfg.Server.Cache.AnalyticsTTL,
		BenchmarkTTL:     cfg.Server.Cache.BenchmarkTTL,
		HistorySize:      cfg.Server.Recorder.HistorySize,
		BenchmarkTimeout: cfg.Server.Benchmark.Timeout,
		Metrics:          metrics,
	})
	defer func() {
		if err := eng.Close(); err != nil {
			slog.Error("event store close", "err", err)
		}
	}()
	go eng.Run(ctx)

	// gRPC record receiver with optional API key authentication.
	authCfg := cfg.Server.Auth
	interceptor := auth.APIKeyInterceptor(authCfg.Mode, authCfg.EffectiveHeader(), authCfg.Key())
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	rpc.RegisterRecordServiceServer(grpcSrv, receiver.New(eng))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port", "port", cfg.Server.GRPCPort, "err", err)
		os.Exit(1)
	}

	go func() {
		slog.Info("gRPC receiver listening", "port", cfg.Server.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	hub := ws.New(eng, cfg.Server.Stream.Interval, ws.WithMetrics(metrics))
	go hub.Run(ctx)

	// Combined HTTP server: REST API, WebSocket hub and metrics on HTTPPort.
	httpAuth := auth.HTTPMiddleware(authCfg.Mode, authCfg.EffectiveHeader(), authCfg.Key())
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(eng, api.WithMetrics(metrics), api.WithMiddleware(httpAuth)))
	httpMux.Handle("/ws/counters", httpAuth(hub))
	httpMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("flowbench-server shutting down")
	grpcSrv.GracefulStop()

	shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}

// openStore builds the configured event store backend.
func openStore(ctx context.Context, sc config.StorageConfig, logger *slog.Logger) (eventstore.Store, error) {
	switch sc.Backend {
	case config.BackendBadger:
		return eventstore.OpenBadger(eventstore.BadgerConfig{
			Path:       sc.Path,
			SyncWrites: sc.SyncWrites,
			GCInterval: sc.GCInterval,
			Logger:     logger,
		})
	case config.BackendPostgres:
		dsn := sc.DSN()
		if dsn == "" {
			return nil, fmt.Errorf("environment variable %s is empty", sc.DSNEnv)
		}
		return eventstore.OpenPostgres(ctx, eventstore.PostgresConfig{
			DSN:            dsn,
			MaxConnections: sc.MaxConnections,
		})
	default:
		return eventstore.NewMemory(), nil
	}
}
