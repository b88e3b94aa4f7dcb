// Package api implements the HTTP REST API for flowbench-server.
//
// New(engine) returns an http.Handler that serves:
//
//	POST   /api/v1/workflows/{id}/executions        record an execution
//	POST   /api/v1/workflows/{id}/nodes/{node}      record a node execution
//	GET    /api/v1/workflows/{id}/analytics?range=  aggregate snapshot
//	GET    /api/v1/workflows/{id}/trends?range=     per-day series
//	GET    /api/v1/workflows/{id}/bottlenecks?range=
//	GET    /api/v1/workflows/{id}/efficiency        24h efficiency score
//	GET    /api/v1/workflows/{id}/counters          in-process rolling counters
//	POST   /api/v1/workflows/{id}/benchmarks        run and persist a benchmark
//	GET    /api/v1/workflows/{id}/benchmarks/trends?range=
//	GET    /api/v1/principals/{id}/rankings         workflows by latest score
//	GET    /api/v1/counters                         every workflow's counters
//	DELETE /api/v1/cache                            drop analytics caches
//	GET    /api/v1/health
//
// All endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for a known path with the wrong method and 404 otherwise
//   - Resolve unknown ?range= values to 24h rather than rejecting them
//
// Routing is gorilla/mux; request and response types are in types.go.
package api
