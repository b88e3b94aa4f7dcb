package receiver

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/flowbench/flowbench/pkg/rpc"
	"github.com/flowbench/flowbench/pkg/types"
	"github.com/flowbench/flowbench/server/internal/recorder"
)

// Recorder is the subset of the engine the receiver writes to.
type Recorder interface {
	RecordExecution(ctx context.Context, workflowID string, data recorder.ExecutionData, rc recorder.RecordContext) (*types.ExecutionRecord, error)
	RecordNode(ctx context.Context, workflowID, nodeID string, data recorder.NodeData, rc recorder.RecordContext) (*types.NodeRecord, error)
}

// Receiver implements rpc.RecordServiceServer.
type Receiver struct {
	rec Recorder
}

// New creates a Receiver that records accepted events through rec.
func New(rec Recorder) *Receiver {
	return &Receiver{rec: rec}
}

// RecordExecution is the unary RPC handler for execution events.
func (r *Receiver) RecordExecution(ctx context.Context, ev *rpc.ExecutionEvent) (*rpc.Ack, error) {
	if ev.WorkflowID == "" {
		return nil, status.Error(codes.InvalidArgument, "workflow_id is required")
	}

	rec, err := r.rec.RecordExecution(ctx, ev.WorkflowID, recorder.ExecutionData{
		StartedAt:          ev.StartedAt,
		DurationMs:         ev.DurationMs,
		Success:            ev.Success,
		Error:              ev.Error,
		NodesExecuted:      ev.NodesExecuted,
		TotalNodes:         ev.TotalNodes,
		ItemsProcessed:     ev.ItemsProcessed,
		ResponsesGenerated: ev.ResponsesGenerated,
		Metadata:           ev.Metadata,
	}, recorder.RecordContext{PrincipalID: ev.PrincipalID, ExecutionID: ev.ExecutionID})
	if err != nil {
		return nil, toStatus(err)
	}

	slog.Debug("receiver: execution recorded",
		"workflow", rec.WorkflowID,
		"id", rec.ID,
		"duration_ms", rec.DurationMs,
		"success", rec.Success,
	)
	return &rpc.Ack{OK: true, ID: rec.ID}, nil
}

// RecordNode is the unary RPC handler for node events.
func (r *Receiver) RecordNode(ctx context.Context, ev *rpc.NodeEvent) (*rpc.Ack, error) {
	if ev.WorkflowID == "" || ev.NodeID == "" {
		return nil, status.Error(codes.InvalidArgument, "workflow_id and node_id are required")
	}

	rec, err := r.rec.RecordNode(ctx, ev.WorkflowID, ev.NodeID, recorder.NodeData{
		ExecutionID: ev.ExecutionID,
		NodeType:    ev.NodeType,
		DurationMs:  ev.DurationMs,
		Success:     ev.Success,
		Error:       ev.Error,
		InputItems:  ev.InputItems,
		OutputItems: ev.OutputItems,
		Timestamp:   ev.Timestamp,
	}, recorder.RecordContext{})
	if err != nil {
		return nil, toStatus(err)
	}

	slog.Debug("receiver: node recorded",
		"workflow", rec.WorkflowID,
		"node", rec.NodeID,
		"duration_ms", rec.DurationMs,
	)
	return &rpc.Ack{OK: true, ID: rec.ID}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, recorder.ErrInvalidRecord):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
