// Package ws implements the live counter stream for flowbench-server.
//
// Hub manages a set of connected clients and broadcasts the engine's rolling
// per-workflow counters to all of them on a configurable interval (default 5s).
//
// New(source, interval) creates a Hub.
// Hub.Run(ctx) starts the broadcast ticker and blocks until ctx is cancelled,
// then closes all active connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends the current
// counters immediately on connect, then streams updates on each tick.
// Clients may narrow the stream with one or more ?workflow= parameters.
//
// Message format sent to clients:
//
//	{
//	  "event":        "counters",
//	  "generated_at": "2026-03-10T12:00:00Z",
//	  "data":         [ /* same schema as GET /api/v1/counters */ ]
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The server mounts the hub at /ws/counters.
package ws
