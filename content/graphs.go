package content

import (
	"github.com/chanops/contentflow/graph"
	"github.com/chanops/contentflow/graph/emit"
	"github.com/chanops/contentflow/graph/store"
)

// Workflow type identifiers, recorded in checkpoint metadata and used
// to select a graph when starting a run.
const (
	TypeContentCreation = "content_creation"
	TypeMultiModel      = "multi_model"
	TypeOptimization    = "optimization"
)

// DefaultMaxOptimizationRounds bounds the optimization workflow's
// review/optimize loop when the initial state does not set a cap.
const DefaultMaxOptimizationRounds = 3

// GraphDeps carries everything a graph constructor needs.
type GraphDeps struct {
	Nodes   *Nodes
	Store   store.Store[State]
	Emitter emit.Emitter
	Metrics *graph.Metrics

	// MaxSteps bounds node executions per run. Zero disables the
	// guard, restoring the unbounded retry-loop behavior.
	MaxSteps int
}

// NewContentCreationGraph builds the generate/review/optimize/publish
// workflow. Review routes to optimize while the score stays under the
// threshold; the loop has no round cap of its own and relies on the
// engine's MaxSteps guard.
func NewContentCreationGraph(deps GraphDeps) (*graph.Engine[State], error) {
	e := graph.New(Reduce, deps.Store, deps.Emitter, graph.Options{
		WorkflowType: TypeContentCreation,
		MaxSteps:     deps.MaxSteps,
	})
	e.WithMetrics(deps.Metrics)

	n := deps.Nodes
	steps := map[string]graph.NodeFunc[State]{
		"generate": n.Generate,
		"review":   n.Review,
		"optimize": n.Optimize,
		"publish":  n.Publish,
	}
	for id, fn := range steps {
		if err := e.Add(id, fn); err != nil {
			return nil, err
		}
	}

	if err := e.StartAt("generate"); err != nil {
		return nil, err
	}

	edges := []struct {
		from, to string
		when     graph.Predicate[State]
	}{
		{"generate", "review", nil},
		{"review", "optimize", State.NeedsOptimization},
		{"review", "publish", nil},
		{"optimize", "review", nil},
		{"publish", graph.End, nil},
	}
	for _, edge := range edges {
		if err := e.Connect(edge.from, edge.to, edge.when); err != nil {
			return nil, err
		}
	}

	e.OnResume(resumeContentCreation)
	return e, nil
}

// NewMultiModelGraph builds the strictly sequential fan-out workflow:
// decompose, assign, execute, merge, check.
func NewMultiModelGraph(deps GraphDeps) (*graph.Engine[State], error) {
	e := graph.New(Reduce, deps.Store, deps.Emitter, graph.Options{
		WorkflowType: TypeMultiModel,
		MaxSteps:     deps.MaxSteps,
	})
	e.WithMetrics(deps.Metrics)

	n := deps.Nodes
	sequence := []struct {
		id string
		fn graph.NodeFunc[State]
	}{
		{"decompose", n.Decompose},
		{"assign", n.AssignModels},
		{"execute", n.ExecuteParallel},
		{"merge", n.MergeResults},
		{"check", n.ConsistencyCheck},
	}
	for _, step := range sequence {
		if err := e.Add(step.id, step.fn); err != nil {
			return nil, err
		}
	}

	if err := e.StartAt("decompose"); err != nil {
		return nil, err
	}

	for i, step := range sequence {
		to := graph.End
		if i+1 < len(sequence) {
			to = sequence[i+1].id
		}
		if err := e.Connect(step.id, to, nil); err != nil {
			return nil, err
		}
	}

	e.OnResume(resumeMultiModel)
	return e, nil
}

// NewOptimizationGraph builds the bounded-loop workflow with a final
// review gate before publishing.
func NewOptimizationGraph(deps GraphDeps) (*graph.Engine[State], error) {
	e := graph.New(Reduce, deps.Store, deps.Emitter, graph.Options{
		WorkflowType: TypeOptimization,
		MaxSteps:     deps.MaxSteps,
	})
	e.WithMetrics(deps.Metrics)

	n := deps.Nodes
	steps := map[string]graph.NodeFunc[State]{
		"generate":     n.Generate,
		"review":       n.Review,
		"optimize":     n.Optimize,
		"final_review": n.FinalReview,
		"publish":      n.Publish,
	}
	for id, fn := range steps {
		if err := e.Add(id, fn); err != nil {
			return nil, err
		}
	}

	if err := e.StartAt("generate"); err != nil {
		return nil, err
	}

	edges := []struct {
		from, to string
		when     graph.Predicate[State]
	}{
		{"generate", "review", nil},
		{"review", "optimize", wantsMoreOptimization},
		{"review", "final_review", nil},
		{"optimize", "review", nil},
		{"final_review", "publish", State.PublishApproved},
		{"final_review", graph.End, nil},
		{"publish", graph.End, nil},
	}
	for _, edge := range edges {
		if err := e.Connect(edge.from, edge.to, edge.when); err != nil {
			return nil, err
		}
	}

	e.OnResume(resumeOptimization)
	return e, nil
}

// wantsMoreOptimization keeps the optimization loop going only while
// the score is under the threshold and the round cap is not reached.
// With no explicit cap the default applies, so the loop is always
// bounded in this workflow.
func wantsMoreOptimization(s State) bool {
	max := s.MaxOptimizeRound
	if max <= 0 {
		max = DefaultMaxOptimizationRounds
	}
	return s.OptimizationRounds < max && s.Score() < ScoreThreshold
}

// Resume derivations. Each is a pure function of checkpointed state
// that reconstructs where the run left off from the state's content;
// the runtime keeps no "next node" pointer of its own.

func resumeContentCreation(s State) string {
	switch {
	case s.CurrentStep == "publish_completed" || s.CurrentStep == "publish_failed":
		return graph.End
	case s.Draft == "":
		return "generate"
	case s.ReviewResults == nil:
		return "review"
	case s.NeedsOptimization():
		return "optimize"
	default:
		return "publish"
	}
}

func resumeMultiModel(s State) string {
	switch {
	case s.Tasks == nil:
		return "decompose"
	case len(s.ModelAssignments) == 0:
		return "assign"
	case s.ParallelResults == nil:
		return "execute"
	case s.CurrentStep != "merge_completed" && s.ConsistencyOK == nil:
		return "merge"
	case s.ConsistencyOK == nil:
		return "check"
	default:
		return graph.End
	}
}

func resumeOptimization(s State) string {
	switch {
	case s.CurrentStep == "publish_completed" || s.CurrentStep == "publish_failed":
		return graph.End
	case s.Draft == "":
		return "generate"
	case s.ReviewResults == nil:
		return "review"
	case wantsMoreOptimization(s) && s.ShouldPublish == nil:
		return "optimize"
	case s.ShouldPublish == nil:
		return "final_review"
	case s.PublishApproved():
		return "publish"
	default:
		return graph.End
	}
}
