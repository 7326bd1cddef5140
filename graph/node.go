package graph

import "context"

// Node is a single step in a workflow graph.
//
// A node receives the current state, performs its work (which may call
// LLM endpoints or other collaborators), and returns a NodeResult whose
// Delta is a partial state update to be merged by the reducer.
//
// Type parameter S is the state type shared across the workflow.
type Node[S any] interface {
	// Run executes the node's logic. Implementations should respect
	// ctx cancellation on any blocking call.
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult is the output of a node execution.
type NodeResult[S any] struct {
	// Delta is the partial state update produced by this node.
	// It is merged into the current state via the configured reducer;
	// fields the node did not touch must be zero so they persist.
	Delta S

	// Route overrides edge-based routing when set. Most nodes leave
	// it empty and let the graph's conditional edges decide.
	Route Next

	// Err halts the workflow when non-nil. The error propagates out
	// of the runtime to the caller.
	Err error
}

// Next is an explicit routing decision returned by a node.
type Next struct {
	// To is the next node to execute. Mutually exclusive with Terminal.
	To string

	// Terminal stops the workflow.
	Terminal bool
}

// Stop returns a Next that terminates workflow execution.
func Stop() Next {
	return Next{Terminal: true}
}

// Goto returns a Next that routes to the specified node.
func Goto(nodeID string) Next {
	return Next{To: nodeID}
}

// NodeFunc adapts a plain function to the Node interface.
//
//	review := graph.NodeFunc[State](func(ctx context.Context, s State) graph.NodeResult[State] {
//	    return graph.NodeResult[State]{Delta: State{CurrentStep: "review_completed"}}
//	})
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run implements the Node interface for NodeFunc.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}
