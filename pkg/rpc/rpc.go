// Package rpc defines the record ingest service shared by flowbench-agent and
// flowbench-server.
//
// The service is plain gRPC carrying JSON-encoded event structs: the codec
// is registered under the "json" content-subtype and the service descriptor
// is written by hand, so no protoc step is needed.
//
//	service flowbench.v1.RecordService {
//	  rpc RecordExecution(ExecutionEvent) returns (Ack);
//	  rpc RecordNode(NodeEvent) returns (Ack);
//	}
package rpc

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "flowbench.v1.RecordService"

// Full method names, as seen by interceptors.
const (
	MethodRecordExecution = "/" + ServiceName + "/RecordExecution"
	MethodRecordNode      = "/" + ServiceName + "/RecordNode"
)

// ExecutionEvent is the payload of RecordExecution.
type ExecutionEvent struct {
	WorkflowID         string         `json:"workflow_id"`
	PrincipalID        string         `json:"principal_id"`
	ExecutionID        string         `json:"execution_id,omitempty"`
	StartedAt          time.Time      `json:"started_at"`
	DurationMs         int64          `json:"duration_ms"`
	Success            bool           `json:"success"`
	Error              string         `json:"error,omitempty"`
	NodesExecuted      int            `json:"nodes_executed"`
	TotalNodes         int            `json:"total_nodes"`
	ItemsProcessed     int64          `json:"items_processed"`
	ResponsesGenerated int64          `json:"responses_generated"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// NodeEvent is the payload of RecordNode.
type NodeEvent struct {
	WorkflowID  string    `json:"workflow_id"`
	ExecutionID string    `json:"execution_id,omitempty"`
	NodeID      string    `json:"node_id"`
	NodeType    string    `json:"node_type"`
	DurationMs  int64     `json:"duration_ms"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	InputItems  int64     `json:"input_items"`
	OutputItems int64     `json:"output_items"`
	Timestamp   time.Time `json:"timestamp"`
}

// Ack is the response to both RPCs. ID is the generated record id.
type Ack struct {
	OK      bool   `json:"ok"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

// RecordServiceServer is implemented by the server-side receiver.
type RecordServiceServer interface {
	RecordExecution(context.Context, *ExecutionEvent) (*Ack, error)
	RecordNode(context.Context, *NodeEvent) (*Ack, error)
}

// RegisterRecordServiceServer registers srv on s.
func RegisterRecordServiceServer(s grpc.ServiceRegistrar, srv RecordServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RecordServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RecordExecution", Handler: recordExecutionHandler},
		{MethodName: "RecordNode", Handler: recordNodeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "flowbench/v1/record.proto",
}

func recordExecutionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ExecutionEvent)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecordServiceServer).RecordExecution(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodRecordExecution}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RecordServiceServer).RecordExecution(ctx, req.(*ExecutionEvent))
	}
	return interceptor(ctx, in, info, handler)
}

func recordNodeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(NodeEvent)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecordServiceServer).RecordNode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodRecordNode}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RecordServiceServer).RecordNode(ctx, req.(*NodeEvent))
	}
	return interceptor(ctx, in, info, handler)
}

// RecordServiceClient is the client side of RecordService.
type RecordServiceClient interface {
	RecordExecution(ctx context.Context, in *ExecutionEvent, opts ...grpc.CallOption) (*Ack, error)
	RecordNode(ctx context.Context, in *NodeEvent, opts ...grpc.CallOption) (*Ack, error)
}

type recordServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewRecordServiceClient returns a client that sends JSON-encoded calls on cc.
func NewRecordServiceClient(cc grpc.ClientConnInterface) RecordServiceClient {
	return &recordServiceClient{cc: cc}
}

func (c *recordServiceClient) RecordExecution(ctx context.Context, in *ExecutionEvent, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, MethodRecordExecution, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *recordServiceClient) RecordNode(ctx context.Context, in *NodeEvent, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, MethodRecordNode, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// codecName is the gRPC content-subtype ("application/grpc+json").
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
