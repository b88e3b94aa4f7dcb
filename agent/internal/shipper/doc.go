// Package shipper sends spooled execution and node events to flowbench-server
// via gRPC (RecordService.RecordExecution / RecordNode unary RPCs).
//
// Shipper.Ship() is non-blocking: records are placed in an in-memory channel
// (default capacity 1000). When the buffer is full the oldest entry is evicted
// so the latest events are always preserved.
//
// Shipper.Run() drains the buffer in a loop, reconnecting with truncated
// exponential backoff (1s→60s, ±25% jitter) on connection or send errors.
// A record whose send failed transiently is retried first after reconnect.
// Permanent gRPC errors (Unauthenticated, PermissionDenied, InvalidArgument)
// discard the record immediately rather than retrying.
//
// Auth: mTLS via credentials.NewTLS(), API key via gRPC metadata header,
// or insecure (plaintext) for local development.
//
// The dialFn field is injectable for testing.
package shipper
