// Package types defines shared Go types used by the agent, the server and the
// CLI. These are the canonical in-memory representations of workflow
// execution records and the analytics derived from them; the same structs are
// carried as JSON over the ingest RPC and the REST API.
package types
