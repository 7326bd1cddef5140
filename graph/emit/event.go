// Package emit provides observability event emission for workflow runs.
package emit

// Event is an observability event produced during workflow execution.
//
// The runtime emits one event per node transition plus workflow-level
// events (run started, run completed, checkpoint written, errors).
// Events flow to an Emitter, which decides what to do with them: log
// them, turn them into OpenTelemetry spans, buffer them for inspection,
// or drop them.
type Event struct {
	// RunID identifies the workflow run that produced this event.
	RunID string

	// Step is the sequential step number within the run (1-indexed).
	// Zero for run-level events.
	Step int

	// NodeID is the node that produced this event.
	// Empty for run-level events.
	NodeID string

	// Msg is a short machine-friendly event name, e.g. "node_completed",
	// "run_completed", "checkpoint_saved".
	Msg string

	// Meta carries additional structured data. Common keys:
	//   - "workflow_type": workflow graph type
	//   - "current_step": domain step label from the state
	//   - "duration_ms": node execution duration
	//   - "error": error detail for failure events
	Meta map[string]interface{}
}

// Emitter receives events from workflow execution.
//
// Implementations must be safe for concurrent use and must not block
// or panic; a slow or failing observability backend must never stall a
// workflow run.
type Emitter interface {
	Emit(event Event)
}
