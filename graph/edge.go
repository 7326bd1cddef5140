// Package graph provides the workflow graph runtime: explicit state
// machines of named nodes joined by conditional edges, executed against
// a reducer-merged state with a checkpoint persisted after every node.
package graph

// End is the terminal edge target. Connecting a node to End makes the
// workflow finish after that node when the edge matches.
const End = "__end__"

// Edge is a possible transition between two nodes.
//
// Edges are evaluated in registration order after a node completes; the
// first edge whose predicate matches (nil predicate always matches)
// decides the next node. A node's explicit NodeResult.Route overrides
// edge evaluation.
//
// Type parameter S is the state type used for predicate evaluation.
type Edge[S any] struct {
	// From is the source node ID.
	From string

	// To is the destination node ID, or End.
	To string

	// When is an optional traversal predicate. Nil means unconditional.
	When Predicate[S]
}

// Predicate decides whether an edge should be traversed for the given
// state.
//
// Predicates must be pure functions of the state: deterministic, no side
// effects. They are re-evaluated freshly after every node completes, and
// again when a run is resumed from a checkpoint, so the same state must
// always produce the same routing.
type Predicate[S any] func(state S) bool
