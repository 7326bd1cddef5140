package content

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/chanops/contentflow/graph"
)

// Subtask types produced by Decompose.
const (
	TaskGeneration   = "generation"
	TaskReview       = "review"
	TaskOptimization = "optimization"
)

// Decompose splits the input into the fixed three-subtask plan the
// multi-model workflow fans out over.
func (n *Nodes) Decompose(ctx context.Context, s State) graph.NodeResult[State] {
	return graph.NodeResult[State]{Delta: State{
		Tasks: []Task{
			{ID: "task1", Type: TaskGeneration, Content: s.InputContent},
			{ID: "task2", Type: TaskReview, Content: ""},
			{ID: "task3", Type: TaskOptimization, Content: ""},
		},
		CurrentStep: "decomposition_completed",
	}}
}

// AssignModels maps each subtask to an endpoint by its type, falling
// back to the run's primary endpoint when no specialist is configured.
func (n *Nodes) AssignModels(ctx context.Context, s State) graph.NodeResult[State] {
	assignments := make(map[string]string, len(s.Tasks))
	for _, task := range s.Tasks {
		assignments[task.ID] = endpointForTask(s, task.Type)
	}

	return graph.NodeResult[State]{Delta: State{
		ModelAssignments: assignments,
		CurrentStep:      "model_assignment_completed",
	}}
}

func endpointForTask(s State, taskType string) string {
	switch taskType {
	case TaskReview:
		if s.ReviewModel != "" {
			return s.ReviewModel
		}
	case TaskOptimization:
		if s.OptimizeModel != "" {
			return s.OptimizeModel
		}
	}
	return s.LLMEndpoint
}

// ExecuteParallel runs every subtask concurrently against its assigned
// endpoint. All subtasks are awaited together; one subtask's failure
// fails the whole fan-out with no partial results kept.
func (n *Nodes) ExecuteParallel(ctx context.Context, s State) graph.NodeResult[State] {
	results := make([]interface{}, len(s.Tasks))

	g, gctx := errgroup.WithContext(ctx)
	for i, task := range s.Tasks {
		g.Go(func() error {
			out, err := n.runSubtask(gctx, s, task)
			if err != nil {
				return fmt.Errorf("subtask %s (%s): %w", task.ID, task.Type, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("parallel execution: %w", err)}
	}

	parallel := make(map[string]interface{}, len(s.Tasks))
	for i, task := range s.Tasks {
		parallel[task.ID] = results[i]
	}

	return graph.NodeResult[State]{Delta: State{
		ParallelResults: parallel,
		CurrentStep:     "parallel_execution_completed",
	}}
}

// runSubtask executes one fan-out unit. Review and optimization tasks
// with no content contribute a nil result instead of calling out.
func (n *Nodes) runSubtask(ctx context.Context, s State, task Task) (interface{}, error) {
	endpoint := s.ModelAssignments[task.ID]

	switch task.Type {
	case TaskGeneration:
		sub := State{
			InputContent:  task.Content,
			ChannelConfig: s.ChannelConfig,
		}
		result, err := n.Gateway.Chat(ctx, endpoint, buildGeneratePrompt(sub), 0.7)
		if err != nil {
			return nil, err
		}
		return result.Content, nil

	case TaskReview:
		if task.Content == "" {
			return nil, nil
		}
		result, err := n.Gateway.Chat(ctx, endpoint, buildReviewPrompt(State{Draft: task.Content}), 0.3)
		if err != nil {
			return nil, err
		}
		review, _ := parseReviewReply(result.Content)
		return review, nil

	case TaskOptimization:
		if task.Content == "" {
			return nil, nil
		}
		result, err := n.Gateway.Chat(ctx, endpoint, buildOptimizePrompt(State{Draft: task.Content}), 0.5)
		if err != nil {
			return nil, err
		}
		return result.Content, nil
	}

	return nil, fmt.Errorf("unknown task type: %s", task.Type)
}

// MergeResults concatenates the non-nil fan-out outputs in task order.
// String results pass through; structured results are JSON-encoded.
func (n *Nodes) MergeResults(ctx context.Context, s State) graph.NodeResult[State] {
	parts := make([]string, 0, len(s.Tasks))
	for _, task := range s.Tasks {
		v, ok := s.ParallelResults[task.ID]
		if !ok || v == nil {
			continue
		}
		switch tv := v.(type) {
		case string:
			if tv != "" {
				parts = append(parts, tv)
			}
		default:
			encoded, err := json.Marshal(tv)
			if err != nil {
				return graph.NodeResult[State]{Err: fmt.Errorf("merge: cannot encode result of %s: %w", task.ID, err)}
			}
			parts = append(parts, string(encoded))
		}
	}

	return graph.NodeResult[State]{Delta: State{
		MergedResult: strings.TrimSpace(strings.Join(parts, "\n\n")),
		CurrentStep:  "merge_completed",
	}}
}

// ConsistencyCheck promotes the merged result to final output when it
// is non-empty.
func (n *Nodes) ConsistencyCheck(ctx context.Context, s State) graph.NodeResult[State] {
	ok := len(s.MergedResult) > 0

	delta := State{
		ConsistencyOK: ptrBool(ok),
		CurrentStep:   "consistency_check_completed",
	}
	if ok {
		delta.FinalOutput = s.MergedResult
	}
	return graph.NodeResult[State]{Delta: delta}
}
