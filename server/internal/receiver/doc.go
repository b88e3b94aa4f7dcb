// Package receiver implements rpc.RecordServiceServer, the gRPC endpoint that
// accepts execution and node events from flowbench-agent instances.
//
// Each event is handed to the engine's recorder. Validation failures become
// codes.InvalidArgument; everything else the recorder accepts is acknowledged
// with the generated record id. Authentication is enforced upstream by the
// gRPC server interceptor (see package auth).
package receiver
