package spool

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Record kinds.
const (
	KindExecution = "execution"
	KindNode      = "node"
)

// ErrMalformed wraps every line decoding failure.
var ErrMalformed = errors.New("spool: malformed record")

// Record is one spooled event. Execution and node fields share the struct;
// Kind says which set applies.
type Record struct {
	Kind        string `json:"kind"`
	WorkflowID  string `json:"workflow_id"`
	PrincipalID string `json:"principal_id,omitempty"`
	ExecutionID string `json:"execution_id,omitempty"`

	// execution
	StartedAt          time.Time      `json:"started_at,omitzero"`
	NodesExecuted      int            `json:"nodes_executed,omitempty"`
	TotalNodes         int            `json:"total_nodes,omitempty"`
	ItemsProcessed     int64          `json:"items_processed,omitempty"`
	ResponsesGenerated int64          `json:"responses_generated,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`

	// node
	NodeID      string    `json:"node_id,omitempty"`
	NodeType    string    `json:"node_type,omitempty"`
	InputItems  int64     `json:"input_items,omitempty"`
	OutputItems int64     `json:"output_items,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitzero"`

	// shared
	DurationMs int64  `json:"duration_ms"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// ParseLine decodes and structurally checks one spool line.
func ParseLine(line []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if r.WorkflowID == "" {
		return Record{}, fmt.Errorf("%w: workflow_id is required", ErrMalformed)
	}
	switch r.Kind {
	case KindExecution:
	case KindNode:
		if r.NodeID == "" {
			return Record{}, fmt.Errorf("%w: node_id is required for node records", ErrMalformed)
		}
	default:
		return Record{}, fmt.Errorf("%w: unknown kind %q", ErrMalformed, r.Kind)
	}
	return r, nil
}
