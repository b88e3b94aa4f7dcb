package types

import "time"

// ExecutionRecord is one end-to-end run of a workflow. Records are immutable
// once written and are never deleted by FlowBench; retention is an external
// policy of the event store.
type ExecutionRecord struct {
	ID                 string         `json:"id"`
	WorkflowID         string         `json:"workflow_id"`
	PrincipalID        string         `json:"principal_id"`
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

// NodeRecord is one node (processing step) execution inside a workflow run.
type NodeRecord struct {
	ID          string    `json:"id"`
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

// ExecutionSummary is the compact form of an execution kept in the recorder's
// bounded per-workflow history.
type ExecutionSummary struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
}

// WorkflowCounters is the recorder's running rollup for a single workflow.
// It reflects what this process has recorded since start, not the store.
type WorkflowCounters struct {
	WorkflowID      string             `json:"workflow_id"`
	Total           int64              `json:"total"`
	Successful      int64              `json:"successful"`
	Failed          int64              `json:"failed"`
	TotalDurationMs int64              `json:"total_duration_ms"`
	AvgDurationMs   float64            `json:"avg_duration_ms"`
	SuccessRate     float64            `json:"success_rate"`
	LastExecutionAt *time.Time         `json:"last_execution_at"`
	Recent          []ExecutionSummary `json:"recent"`
}
