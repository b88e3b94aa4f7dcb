// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - GRPCPort              port for the gRPC record receiver (default 50051)
//   - HTTPPort              port for the REST API, WebSocket hub and /metrics (default 8080)
//   - Auth.Mode             "apikey" or "none"
//   - Auth.KeyEnv           environment variable holding the expected API key
//   - Auth.Header           gRPC metadata/HTTP header name (default "x-api-key")
//   - Storage.Backend       memory | badger | postgres (default memory)
//   - Storage.Path          badger directory
//   - Storage.DSNEnv        environment variable holding the postgres DSN
//   - Cache.AnalyticsTTL    analytics snapshot cache lifetime (default 5m)
//   - Cache.BenchmarkTTL    ranking cache lifetime (default 15m)
//   - Recorder.HistorySize  recent executions kept per workflow (default 100)
//   - Benchmark.Timeout     default benchmark run deadline (default 30s)
//   - Stream.Interval       WebSocket counter broadcast period (default 5s)
//   - Log.Level             debug | info | warn | error (default info)
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
