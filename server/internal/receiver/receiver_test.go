package receiver_test

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/flowbench/flowbench/pkg/rpc"
	"github.com/flowbench/flowbench/pkg/types"
	"github.com/flowbench/flowbench/server/internal/auth"
	"github.com/flowbench/flowbench/server/internal/engine"
	"github.com/flowbench/flowbench/server/internal/eventstore"
	"github.com/flowbench/flowbench/server/internal/receiver"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// startServer starts a gRPC server with the given interceptor on a random TCP
// port and returns a connected client and the engine behind it.
func startServer(t *testing.T, interceptor grpc.UnaryServerInterceptor) (rpc.RecordServiceClient, *engine.Engine) {
	t.Helper()

	eng := engine.New(eventstore.NewMemory(), engine.Config{Now: func() time.Time { return now }})
	t.Cleanup(func() { _ = eng.Close() })

	srv := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	rpc.RegisterRecordServiceServer(srv, receiver.New(eng))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go srv.Serve(lis) //nolint:errcheck

	t.Cleanup(func() {
		srv.Stop()
		lis.Close()
	})

	conn, err := grpc.Dial(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	) //nolint:staticcheck
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return rpc.NewRecordServiceClient(conn), eng
}

// allowAll is a no-op interceptor that passes every call through.
func allowAll(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	return handler(ctx, req)
}

func execEvent(wf string) *rpc.ExecutionEvent {
	return &rpc.ExecutionEvent{
		WorkflowID:     wf,
		PrincipalID:    "p1",
		StartedAt:      now.Add(-time.Minute),
		DurationMs:     2500,
		Success:        true,
		NodesExecuted:  4,
		TotalNodes:     4,
		ItemsProcessed: 10,
	}
}

func TestRecordExecution_Records(t *testing.T) {
	client, eng := startServer(t, allowAll)

	ev := execEvent("wf-prod")
	ev.ExecutionID = "ex-42"
	ack, err := client.RecordExecution(context.Background(), ev)
	if err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}
	if !ack.OK || ack.ID != "ex-42" {
		t.Errorf("ack: got %+v", ack)
	}

	c, ok := eng.Counters("wf-prod")
	if !ok {
		t.Fatal("Counters: expected entry, got none")
	}
	if c.Total != 1 || c.Successful != 1 {
		t.Errorf("counters: got %+v", c)
	}
	snap := eng.GetAnalytics(context.Background(), "wf-prod", types.Range1h)
	if snap.TotalExecutions != 1 || snap.AvgExecutionTime != 2500 {
		t.Errorf("snapshot: got %+v", snap)
	}
}

func TestRecordExecution_MissingWorkflow_InvalidArgument(t *testing.T) {
	client, _ := startServer(t, allowAll)

	_, err := client.RecordExecution(context.Background(), &rpc.ExecutionEvent{DurationMs: 1})
	if code := status.Code(err); code != codes.InvalidArgument {
		t.Errorf("code: got %v, want InvalidArgument", code)
	}
}

func TestRecordExecution_ValidationFailure_InvalidArgument(t *testing.T) {
	client, eng := startServer(t, allowAll)

	ev := execEvent("wf")
	ev.DurationMs = -1
	_, err := client.RecordExecution(context.Background(), ev)
	if code := status.Code(err); code != codes.InvalidArgument {
		t.Errorf("code: got %v, want InvalidArgument", code)
	}
	if _, ok := eng.Counters("wf"); ok {
		t.Error("invalid event must not reach counters")
	}
}

func TestRecordNode_Records(t *testing.T) {
	client, eng := startServer(t, allowAll)

	ack, err := client.RecordNode(context.Background(), &rpc.NodeEvent{
		WorkflowID: "wf",
		NodeID:     "llm-call",
		NodeType:   "llm",
		DurationMs: 5500,
		Success:    true,
		Timestamp:  now.Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("RecordNode: %v", err)
	}
	if !ack.OK || ack.ID == "" {
		t.Errorf("ack: got %+v", ack)
	}

	findings := eng.GetBottlenecks(context.Background(), "wf", types.Range1h)
	if len(findings) != 1 || findings[0].NodeID != "llm-call" {
		t.Errorf("bottlenecks: got %+v", findings)
	}
}

func TestRecordNode_MissingNodeID_InvalidArgument(t *testing.T) {
	client, _ := startServer(t, allowAll)

	_, err := client.RecordNode(context.Background(), &rpc.NodeEvent{WorkflowID: "wf"})
	if code := status.Code(err); code != codes.InvalidArgument {
		t.Errorf("code: got %v, want InvalidArgument", code)
	}
}

func TestRecordExecution_MultipleWorkflows(t *testing.T) {
	client, eng := startServer(t, allowAll)

	for _, wf := range []string{"ingest", "summarise", "notify"} {
		if _, err := client.RecordExecution(context.Background(), execEvent(wf)); err != nil {
			t.Fatalf("RecordExecution %q: %v", wf, err)
		}
	}
	if n := len(eng.AllCounters()); n != 3 {
		t.Errorf("AllCounters: got %d, want 3", n)
	}
}

func TestRecordExecution_WithAPIKeyInterceptor_CorrectKey_Passes(t *testing.T) {
	i := auth.APIKeyInterceptor("apikey", "x-api-key", "testkey")
	client, eng := startServer(t, i)

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "testkey")
	if _, err := client.RecordExecution(ctx, execEvent("wf")); err != nil {
		t.Fatalf("RecordExecution with correct key: %v", err)
	}
	if _, ok := eng.Counters("wf"); !ok {
		t.Error("expected workflow counters after authenticated call")
	}
}

func TestRecordExecution_WithAPIKeyInterceptor_WrongKey_Rejected(t *testing.T) {
	i := auth.APIKeyInterceptor("apikey", "x-api-key", "testkey")
	client, _ := startServer(t, i)

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "wrongkey")
	_, err := client.RecordExecution(ctx, execEvent("wf"))
	if code := status.Code(err); code != codes.Unauthenticated {
		t.Errorf("code: got %v, want Unauthenticated", code)
	}
}

func TestRecordNode_WithAPIKeyInterceptor_MissingKey_Rejected(t *testing.T) {
	i := auth.APIKeyInterceptor("apikey", "x-api-key", "testkey")
	client, _ := startServer(t, i)

	_, err := client.RecordNode(context.Background(), &rpc.NodeEvent{WorkflowID: "wf", NodeID: "n"})
	if code := status.Code(err); code != codes.Unauthenticated {
		t.Errorf("code: got %v, want Unauthenticated", code)
	}
}
