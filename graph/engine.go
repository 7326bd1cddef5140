package graph

import (
	"context"
	"sync"
	"time"

	"github.com/chanops/contentflow/graph/emit"
	"github.com/chanops/contentflow/graph/store"
)

// Reducer merges a node's partial state update into the prior state.
//
// The merge must be monotonic: keys the delta does not touch keep their
// prior values, append-only fields (errors, warnings) only grow, and
// metadata accumulates additively. State is never wholesale-replaced.
type Reducer[S any] func(prev, delta S) S

// StepLabeler is implemented by state types that carry a domain step
// label (e.g. "review_completed"). The runtime records the label in
// checkpoint metadata; states without it fall back to the node ID.
type StepLabeler interface {
	StepLabel() string
}

// ResumeFunc derives, from checkpointed state alone, which node a
// resumed run should execute next. Returning End means the run already
// finished its useful work. Must be a pure function of the state.
type ResumeFunc[S any] func(state S) string

// Engine executes one workflow graph: a set of nodes, the edges between
// them, and a designated entry node.
//
// For every run the engine:
//   - executes nodes sequentially, merging each delta via the reducer
//   - persists the run snapshot after every single node (not batched)
//   - re-evaluates conditional edges freshly after each node
//   - stops at the End sentinel or an explicit terminal route
//   - honors context cancellation between nodes (cooperative; an
//     in-flight node always completes and its work is checkpointed)
//
// An Engine is safe to share across concurrent runs: all per-run state
// lives in local variables of Run/Resume.
//
// Type parameter S is the state type shared across the workflow.
type Engine[S any] struct {
	mu sync.RWMutex

	reducer   Reducer[S]
	nodes     map[string]Node[S]
	edges     []Edge[S]
	startNode string
	resume    ResumeFunc[S]

	store   store.Store[S]
	emitter emit.Emitter
	metrics *Metrics
	opts    Options
}

// Options configures engine execution behavior.
type Options struct {
	// WorkflowType is recorded in every checkpoint's metadata.
	WorkflowType string

	// MaxSteps bounds the number of node executions per run to guard
	// against unbounded retry loops. 0 disables the guard.
	MaxSteps int
}

// New creates an Engine. The reducer and store are required by Run;
// emitter may be nil to disable event emission. Validation happens when
// Run is called so graphs can be assembled incrementally.
func New[S any](reducer Reducer[S], st store.Store[S], emitter emit.Emitter, opts Options) *Engine[S] {
	return &Engine[S]{
		reducer: reducer,
		nodes:   make(map[string]Node[S]),
		edges:   make([]Edge[S], 0),
		store:   st,
		emitter: emitter,
		opts:    opts,
	}
}

// Add registers a node. Node IDs must be unique and non-empty.
func (e *Engine[S]) Add(nodeID string, node Node[S]) error {
	if nodeID == "" || nodeID == End {
		return &EngineError{Message: "invalid node ID: " + nodeID}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{Message: "duplicate node ID: " + nodeID, Code: CodeDuplicateNode}
	}
	e.nodes[nodeID] = node
	return nil
}

// StartAt sets the entry node. The node must already be registered.
func (e *Engine[S]) StartAt(nodeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{Message: "start node does not exist: " + nodeID, Code: CodeNodeNotFound}
	}
	e.startNode = nodeID
	return nil
}

// Connect adds an edge from one node to another (or to End). A nil
// predicate makes the edge unconditional. Edges are evaluated in the
// order they were connected; the first match wins, so place conditional
// edges before the unconditional fallback.
func (e *Engine[S]) Connect(from, to string, predicate Predicate[S]) error {
	if from == "" || to == "" {
		return &EngineError{Message: "edge endpoints cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.edges = append(e.edges, Edge[S]{From: from, To: to, When: predicate})
	return nil
}

// OnResume installs the function that derives the resume node from
// checkpointed state. Without it, Resume restarts at the entry node.
func (e *Engine[S]) OnResume(fn ResumeFunc[S]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resume = fn
}

// WithMetrics attaches a metrics collector. May be nil.
func (e *Engine[S]) WithMetrics(m *Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// Run executes the workflow from the entry node against the initial
// state, persisting a checkpoint under runID after every node. It
// returns the final state once a terminal transition is reached.
//
// Errors from nodes propagate unwrapped; the caller owns failure
// bookkeeping (marking the run failed). The engine performs no retries.
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S) (S, error) {
	var zero S
	if err := e.validate(); err != nil {
		return zero, err
	}
	return e.loop(ctx, runID, initial, e.startNode)
}

// Resume continues a run from its latest checkpoint.
//
// The checkpointed state is re-injected as the current state and the
// next node is re-derived from the state's content via the graph's
// resume function. The runtime does not remember which node was next,
// so edge predicates must be safe to re-evaluate. Returns
// RUN_NOT_FOUND if no checkpoint exists.
func (e *Engine[S]) Resume(ctx context.Context, runID string) (S, error) {
	var zero S
	if err := e.validate(); err != nil {
		return zero, err
	}

	snap, err := e.store.Get(ctx, runID)
	if err != nil {
		return zero, &EngineError{
			Message: "cannot resume " + runID + ": " + err.Error(),
			Code:    CodeRunNotFound,
		}
	}

	e.mu.RLock()
	resume := e.resume
	e.mu.RUnlock()

	startNode := e.startNode
	if resume != nil {
		startNode = resume(snap.State)
	}

	e.emit(emit.Event{RunID: runID, Msg: "run_resumed", Meta: map[string]interface{}{
		"workflow_type": e.opts.WorkflowType,
		"resume_node":   startNode,
	}})

	if startNode == End {
		// Nothing left to do; make sure the snapshot reflects that.
		if snap.Meta.Status != store.StatusCompleted {
			if err := e.store.SetStatus(ctx, runID, store.StatusCompleted); err != nil {
				return zero, &EngineError{Message: "failed to finalize run: " + err.Error(), Code: CodeStoreError}
			}
		}
		return snap.State, nil
	}

	return e.loop(ctx, runID, snap.State, startNode)
}

func (e *Engine[S]) validate() error {
	if e.reducer == nil {
		return &EngineError{Message: "reducer is required", Code: CodeMissingReducer}
	}
	if e.store == nil {
		return &EngineError{Message: "store is required", Code: CodeMissingStore}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.startNode == "" {
		return &EngineError{Message: "start node not set (call StartAt first)", Code: CodeNoStartNode}
	}
	if _, exists := e.nodes[e.startNode]; !exists {
		return &EngineError{Message: "start node does not exist: " + e.startNode, Code: CodeNodeNotFound}
	}
	return nil
}

// loop is the execution core shared by Run and Resume.
func (e *Engine[S]) loop(ctx context.Context, runID string, initial S, startNode string) (S, error) {
	var zero S

	currentState := initial
	currentNode := startNode
	step := 0

	for {
		step++

		if e.opts.MaxSteps > 0 && step > e.opts.MaxSteps {
			return zero, &EngineError{
				Message: "workflow exceeded MaxSteps limit",
				Code:    CodeMaxStepsExceeded,
			}
		}

		if err := ctx.Err(); err != nil {
			return zero, err
		}

		e.mu.RLock()
		nodeImpl, exists := e.nodes[currentNode]
		e.mu.RUnlock()
		if !exists {
			return zero, &EngineError{
				Message: "node not found during execution: " + currentNode,
				Code:    CodeNodeNotFound,
			}
		}

		started := time.Now()
		result := nodeImpl.Run(ctx, currentState)
		elapsed := time.Since(started)

		if result.Err != nil {
			if e.metrics != nil {
				e.metrics.ObserveNode(e.opts.WorkflowType, currentNode, elapsed, "error")
			}
			e.emit(emit.Event{RunID: runID, Step: step, NodeID: currentNode, Msg: "node_failed",
				Meta: map[string]interface{}{"error": result.Err.Error()}})
			return zero, result.Err
		}
		if e.metrics != nil {
			e.metrics.ObserveNode(e.opts.WorkflowType, currentNode, elapsed, "success")
		}

		currentState = e.reducer(currentState, result.Delta)

		// Routing is decided before the checkpoint so the snapshot's
		// metadata can already carry the terminal status.
		terminal := false
		nextNode := ""
		switch {
		case result.Route.Terminal:
			terminal = true
		case result.Route.To != "":
			nextNode = result.Route.To
		default:
			nextNode = e.evaluateEdges(currentNode, currentState)
			if nextNode == "" {
				return zero, &EngineError{
					Message: "no valid route from node: " + currentNode,
					Code:    CodeNoRoute,
				}
			}
			if nextNode == End {
				terminal = true
			}
		}

		cancelled := ctx.Err() != nil
		status := store.StatusRunning
		switch {
		case terminal:
			status = store.StatusCompleted
		case cancelled:
			// The run was paused or cancelled while this node was in
			// flight. Keep the node's work, but don't resurrect the
			// externally written status.
			if prev, err := e.store.Get(writeCtx(ctx), runID); err == nil &&
				(prev.Meta.Status == store.StatusPaused || prev.Meta.Status == store.StatusCancelled) {
				status = prev.Meta.Status
			}
		}

		meta := store.Metadata{
			WorkflowType: e.opts.WorkflowType,
			CurrentStep:  e.stepLabel(currentState, currentNode),
			Status:       status,
		}
		if err := e.store.Put(writeCtx(ctx), runID, currentState, meta); err != nil {
			return zero, &EngineError{Message: "failed to save checkpoint: " + err.Error(), Code: CodeStoreError}
		}
		if e.metrics != nil {
			e.metrics.IncCheckpointWrites(e.opts.WorkflowType)
		}

		e.emit(emit.Event{RunID: runID, Step: step, NodeID: currentNode, Msg: "node_completed",
			Meta: map[string]interface{}{
				"workflow_type": e.opts.WorkflowType,
				"current_step":  meta.CurrentStep,
				"duration_ms":   elapsed.Milliseconds(),
			}})

		if terminal {
			e.emit(emit.Event{RunID: runID, Step: step, Msg: "run_completed",
				Meta: map[string]interface{}{"workflow_type": e.opts.WorkflowType}})
			return currentState, nil
		}
		if cancelled {
			return zero, ctx.Err()
		}

		currentNode = nextNode
	}
}

// evaluateEdges returns the first matching edge target from the node,
// or "" when no edge matches.
func (e *Engine[S]) evaluateEdges(fromNode string, state S) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, edge := range e.edges {
		if edge.From != fromNode {
			continue
		}
		if edge.When == nil || edge.When(state) {
			return edge.To
		}
	}
	return ""
}

func (e *Engine[S]) stepLabel(state S, nodeID string) string {
	if labeler, ok := any(state).(StepLabeler); ok {
		if label := labeler.StepLabel(); label != "" {
			return label
		}
	}
	return nodeID
}

func (e *Engine[S]) emit(event emit.Event) {
	if e.emitter != nil {
		e.emitter.Emit(event)
	}
}

// writeCtx returns a context usable for checkpoint writes even when the
// run's context was already cancelled: the finished node's work must
// still reach the store.
func writeCtx(ctx context.Context) context.Context {
	if ctx.Err() != nil {
		return context.Background()
	}
	return ctx
}
