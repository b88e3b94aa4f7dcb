package shipper

import (
	"github.com/flowbench/flowbench/agent/internal/spool"
	"github.com/flowbench/flowbench/pkg/rpc"
)

// toExecutionEvent maps an execution record onto the RPC payload. An empty
// principal falls back to the agent's configured one.
func toExecutionEvent(r spool.Record, defaultPrincipal string) *rpc.ExecutionEvent {
	principal := r.PrincipalID
	if principal == "" {
		principal = defaultPrincipal
	}
	return &rpc.ExecutionEvent{
		WorkflowID:         r.WorkflowID,
		PrincipalID:        principal,
		ExecutionID:        r.ExecutionID,
		StartedAt:          r.StartedAt,
		DurationMs:         r.DurationMs,
		Success:            r.Success,
		Error:              r.Error,
		NodesExecuted:      r.NodesExecuted,
		TotalNodes:         r.TotalNodes,
		ItemsProcessed:     r.ItemsProcessed,
		ResponsesGenerated: r.ResponsesGenerated,
		Metadata:           r.Metadata,
	}
}

func toNodeEvent(r spool.Record) *rpc.NodeEvent {
	return &rpc.NodeEvent{
		WorkflowID:  r.WorkflowID,
		ExecutionID: r.ExecutionID,
		NodeID:      r.NodeID,
		NodeType:    r.NodeType,
		DurationMs:  r.DurationMs,
		Success:     r.Success,
		Error:       r.Error,
		InputItems:  r.InputItems,
		OutputItems: r.OutputItems,
		Timestamp:   r.Timestamp,
	}
}
