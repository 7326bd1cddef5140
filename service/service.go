// Package service orchestrates workflow runs: starting them as
// supervised background tasks, pausing, resuming, cancelling, and
// answering status queries from the checkpoint store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chanops/contentflow/channel"
	"github.com/chanops/contentflow/content"
	"github.com/chanops/contentflow/graph"
	"github.com/chanops/contentflow/graph/store"
)

var (
	// ErrUnknownWorkflowType is returned for types with no graph.
	ErrUnknownWorkflowType = errors.New("unknown workflow type")

	// ErrRunNotFound is returned for unknown run IDs.
	ErrRunNotFound = errors.New("workflow run not found")

	// ErrNotPaused is returned when continuing a run that isn't paused.
	ErrNotPaused = errors.New("workflow is not paused")

	// ErrNotRunning is returned when pausing or cancelling a run that
	// is not running.
	ErrNotRunning = errors.New("workflow is not running")

	// ErrAlreadyActive guards the at-most-one-invocation rule: a run
	// with a live in-process task cannot be invoked again.
	ErrAlreadyActive = errors.New("workflow already has an active invocation")
)

// RunRecord is the immediate response to starting a workflow.
type RunRecord struct {
	RunID  string `json:"run_id"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

// RunInfo is a full status snapshot of one run.
type RunInfo struct {
	RunID        string        `json:"run_id"`
	WorkflowType string        `json:"workflow_type"`
	Status       string        `json:"status"`
	CurrentStep  string        `json:"current_step"`
	State        content.State `json:"state"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Deps carries the collaborators a WorkflowService needs.
type Deps struct {
	Graphs   content.GraphDeps
	Channels *channel.Registry
	Logger   *slog.Logger
}

// WorkflowService owns the three workflow graphs and all run lifecycle
// operations. Runs execute as detached goroutines; callers poll status
// via GetWorkflow.
type WorkflowService struct {
	engines  map[string]*graph.Engine[content.State]
	store    store.Store[content.State]
	channels *channel.Registry
	metrics  *graph.Metrics
	log      *slog.Logger

	mu sync.Mutex
	// active holds the cancel func per live run. A reserved entry with
	// a nil cancel means the invocation is being set up; it still
	// counts as busy.
	active map[string]context.CancelFunc
	// interrupted records the status pause/cancel wrote for a live run,
	// so finalize can restore it if the engine's last checkpoint raced
	// the write. Consumed by finalize.
	interrupted map[string]string
}

// New builds the service and compiles the three workflow graphs.
func New(deps Deps) (*WorkflowService, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	creation, err := content.NewContentCreationGraph(deps.Graphs)
	if err != nil {
		return nil, fmt.Errorf("building content-creation graph: %w", err)
	}
	multi, err := content.NewMultiModelGraph(deps.Graphs)
	if err != nil {
		return nil, fmt.Errorf("building multi-model graph: %w", err)
	}
	optimization, err := content.NewOptimizationGraph(deps.Graphs)
	if err != nil {
		return nil, fmt.Errorf("building optimization graph: %w", err)
	}

	return &WorkflowService{
		engines: map[string]*graph.Engine[content.State]{
			content.TypeContentCreation: creation,
			content.TypeMultiModel:      multi,
			content.TypeOptimization:    optimization,
		},
		store:       deps.Graphs.Store,
		channels:    deps.Channels,
		metrics:     deps.Graphs.Metrics,
		log:         log,
		active:      make(map[string]context.CancelFunc),
		interrupted: make(map[string]string),
	}, nil
}

// StartWorkflow creates a run with a fresh ID, persists its initial
// checkpoint, and launches execution in the background. It returns as
// soon as the run is recorded; progress is observed by polling.
func (s *WorkflowService) StartWorkflow(ctx context.Context, workflowType string, initial content.State) (RunRecord, error) {
	engine, ok := s.engines[workflowType]
	if !ok {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrUnknownWorkflowType, workflowType)
	}

	initial = s.resolveChannelConfig(initial)
	runID := uuid.NewString()

	meta := store.Metadata{
		WorkflowType: workflowType,
		CurrentStep:  "created",
		Status:       store.StatusRunning,
	}
	if err := s.store.Put(ctx, runID, initial, meta); err != nil {
		return RunRecord{}, fmt.Errorf("recording workflow run: %w", err)
	}

	if s.metrics != nil {
		s.metrics.IncRunsStarted(workflowType)
	}
	s.log.Info("workflow started", "run_id", runID, "workflow_type", workflowType)

	s.launch(runID, workflowType, func(runCtx context.Context) error {
		_, err := engine.Run(runCtx, runID, initial)
		return err
	})

	return RunRecord{RunID: runID, Type: workflowType, Status: store.StatusRunning}, nil
}

// ContinueWorkflow resumes a paused run from its checkpoint. Only
// paused runs can be continued, and not while a previous invocation is
// still active in this process.
func (s *WorkflowService) ContinueWorkflow(ctx context.Context, runID string) (RunRecord, error) {
	snap, err := s.store.Get(ctx, runID)
	if err != nil {
		return RunRecord{}, s.notFound(runID, err)
	}
	if snap.Meta.Status != store.StatusPaused {
		return RunRecord{}, fmt.Errorf("%w: %s is %s", ErrNotPaused, runID, snap.Meta.Status)
	}

	// Reserve the run ID before flipping the status. Two concurrent
	// continues must not both reach the engine: the loser fails here,
	// not after both have written running.
	if !s.reserve(runID) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrAlreadyActive, runID)
	}

	engine, ok := s.engines[snap.Meta.WorkflowType]
	if !ok {
		s.unreserve(runID)
		return RunRecord{}, fmt.Errorf("%w: %s", ErrUnknownWorkflowType, snap.Meta.WorkflowType)
	}

	if err := s.store.SetStatus(ctx, runID, store.StatusRunning); err != nil {
		s.unreserve(runID)
		return RunRecord{}, fmt.Errorf("resuming workflow run: %w", err)
	}
	s.log.Info("workflow resumed", "run_id", runID, "workflow_type", snap.Meta.WorkflowType)

	s.launch(runID, snap.Meta.WorkflowType, func(runCtx context.Context) error {
		_, err := engine.Resume(runCtx, runID)
		return err
	})

	return RunRecord{RunID: runID, Type: snap.Meta.WorkflowType, Status: store.StatusRunning}, nil
}

// PauseWorkflow marks a running run paused and cancels its in-process
// task. Cancellation is cooperative: a node already talking to an LLM
// finishes, its work is checkpointed, and the run stops before the
// next node.
func (s *WorkflowService) PauseWorkflow(ctx context.Context, runID string) error {
	return s.interrupt(ctx, runID, store.StatusPaused)
}

// CancelWorkflow marks a running or paused run cancelled and stops its
// in-process task if one is active.
func (s *WorkflowService) CancelWorkflow(ctx context.Context, runID string) error {
	return s.interrupt(ctx, runID, store.StatusCancelled)
}

func (s *WorkflowService) interrupt(ctx context.Context, runID, target string) error {
	snap, err := s.store.Get(ctx, runID)
	if err != nil {
		return s.notFound(runID, err)
	}

	switch snap.Meta.Status {
	case store.StatusRunning:
	case store.StatusPaused:
		if target != store.StatusCancelled {
			return fmt.Errorf("%w: %s is %s", ErrNotRunning, runID, snap.Meta.Status)
		}
	default:
		return fmt.Errorf("%w: %s is %s", ErrNotRunning, runID, snap.Meta.Status)
	}

	// Status first, then cancel: the engine's final checkpoint write
	// checks for an externally written paused/cancelled status and
	// preserves it.
	if err := s.store.SetStatus(ctx, runID, target); err != nil {
		return fmt.Errorf("updating workflow status: %w", err)
	}

	s.mu.Lock()
	cancel, ok := s.active[runID]
	if ok {
		// Remember what the run was interrupted to; the engine's final
		// checkpoint can race this write and put running back.
		s.interrupted[runID] = target
	}
	s.mu.Unlock()
	if ok && cancel != nil {
		cancel()
	}

	s.log.Info("workflow interrupted", "run_id", runID, "status", target)
	return nil
}

// GetWorkflow returns the current status snapshot of a run.
func (s *WorkflowService) GetWorkflow(ctx context.Context, runID string) (RunInfo, error) {
	snap, err := s.store.Get(ctx, runID)
	if err != nil {
		return RunInfo{}, s.notFound(runID, err)
	}
	return RunInfo{
		RunID:        runID,
		WorkflowType: snap.Meta.WorkflowType,
		Status:       snap.Meta.Status,
		CurrentStep:  snap.Meta.CurrentStep,
		State:        snap.State,
		CreatedAt:    snap.CreatedAt,
		UpdatedAt:    snap.UpdatedAt,
	}, nil
}

// GetWorkflowHistory returns the run's full record. Checkpoints are
// last-write-wins with no step chain, so history is the latest
// snapshot plus whatever the state's own append-only fields retain.
func (s *WorkflowService) GetWorkflowHistory(ctx context.Context, runID string) (RunInfo, error) {
	return s.GetWorkflow(ctx, runID)
}

// ListWorkflows returns run summaries, newest-updated first.
func (s *WorkflowService) ListWorkflows(ctx context.Context, filter store.Filter, limit int) ([]store.Summary, error) {
	return s.store.List(ctx, filter, limit)
}

// reserve claims the run ID in the active table. It fails if the run
// already has a live or reserved invocation.
func (s *WorkflowService) reserve(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[runID]; busy {
		return false
	}
	s.active[runID] = nil
	return true
}

func (s *WorkflowService) unreserve(runID string) {
	s.mu.Lock()
	delete(s.active, runID)
	s.mu.Unlock()
}

// launch runs fn as a supervised detached task. The supervisor owns
// final status bookkeeping: an error that is not an external
// pause/cancel marks the run failed, so a crash mid-graph can never
// leave a run stuck at running.
func (s *WorkflowService) launch(runID, workflowType string, fn func(ctx context.Context) error) {
	runCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.active[runID] = cancel
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.active, runID)
			s.mu.Unlock()
			cancel()
		}()

		err := fn(runCtx)
		finalStatus := s.finalize(runID, workflowType, err)
		if s.metrics != nil {
			s.metrics.IncRunsFinished(workflowType, finalStatus)
		}
	}()
}

// finalize reconciles the run's persisted status with the task
// outcome and returns the status it settled on.
func (s *WorkflowService) finalize(runID, workflowType string, runErr error) string {
	ctx, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTimeout()

	s.mu.Lock()
	interruptedTo, wasInterrupted := s.interrupted[runID]
	delete(s.interrupted, runID)
	s.mu.Unlock()

	if runErr == nil {
		s.log.Info("workflow completed", "run_id", runID, "workflow_type", workflowType)
		return store.StatusCompleted
	}

	snap, err := s.store.Get(ctx, runID)
	if err == nil {
		switch snap.Meta.Status {
		case store.StatusPaused, store.StatusCancelled:
			// Interrupted externally; the status already says so.
			s.log.Info("workflow stopped", "run_id", runID, "status", snap.Meta.Status)
			return snap.Meta.Status
		}
	}

	// A cancelled context means pause/cancel interrupted the run. If
	// the engine's final checkpoint overwrote that status with running,
	// restore it rather than reporting the run as failed.
	if wasInterrupted && errors.Is(runErr, context.Canceled) {
		if err := s.store.SetStatus(ctx, runID, interruptedTo); err != nil {
			s.log.Error("failed to restore interrupted status", "run_id", runID, "error", err)
		}
		s.log.Info("workflow stopped", "run_id", runID, "status", interruptedTo)
		return interruptedTo
	}

	if err := s.store.SetStatus(ctx, runID, store.StatusFailed); err != nil {
		s.log.Error("failed to mark workflow failed", "run_id", runID, "error", err)
	}
	s.log.Error("workflow failed", "run_id", runID, "workflow_type", workflowType, "error", runErr)
	return store.StatusFailed
}

// resolveChannelConfig injects the registered channel's config into
// the initial state. Keys already present in the state win, so callers
// can override channel defaults per run.
func (s *WorkflowService) resolveChannelConfig(initial content.State) content.State {
	if s.channels == nil || initial.ChannelID == "" {
		return initial
	}
	ch, err := s.channels.Get(initial.ChannelID)
	if err != nil || len(ch.Config) == 0 {
		return initial
	}

	merged := make(map[string]interface{}, len(ch.Config)+len(initial.ChannelConfig))
	for k, v := range ch.Config {
		merged[k] = v
	}
	for k, v := range initial.ChannelConfig {
		merged[k] = v
	}
	initial.ChannelConfig = merged
	return initial
}

func (s *WorkflowService) notFound(runID string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return err
}
