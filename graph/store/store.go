// Package store provides durable persistence for workflow run snapshots.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested run ID does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses recorded in snapshot metadata.
const (
	StatusRunning   = "running"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Metadata describes a run snapshot at the time it was written.
type Metadata struct {
	// WorkflowType is the graph type that produced the snapshot
	// (e.g. "content_creation", "multi_model", "optimization").
	WorkflowType string `json:"workflow_type"`

	// CurrentStep is the domain label of the last node that ran
	// (e.g. "review_completed").
	CurrentStep string `json:"current_step"`

	// Status is the run status at the time of the write.
	Status string `json:"status"`
}

// Snapshot is the latest persisted state of a run plus its metadata.
type Snapshot[S any] struct {
	RunID     string
	State     S
	Meta      Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary is a lightweight run listing entry: identifiers and metadata
// without the full state document. Used by dashboards and list endpoints.
type Summary struct {
	RunID     string
	Meta      Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter restricts List results. Empty fields match everything.
type Filter struct {
	WorkflowType string
	Status       string
}

// Store persists one snapshot per run ID with last-write-wins semantics.
//
// There is no history chain: every Put overwrites the run's previous
// snapshot. Merging of partial state happens in node logic before the
// write, never at the store layer.
//
// Implementations must be safe for concurrent use across different run
// IDs. Concurrent writes to the same run ID are last-write-wins; the
// runtime guarantees at most one active invocation per run.
//
// Type parameter S is the state type to persist; it must be
// JSON-serializable.
type Store[S any] interface {
	// Put upserts the run's snapshot. It creates the run record if
	// absent, otherwise overwrites state, current step, and status.
	Put(ctx context.Context, runID string, state S, meta Metadata) error

	// Get returns the run's latest snapshot, or ErrNotFound for an
	// unknown run ID. No default is fabricated.
	Get(ctx context.Context, runID string) (Snapshot[S], error)

	// SetStatus updates only the run's status, leaving state and
	// current step untouched. Returns ErrNotFound for unknown runs.
	SetStatus(ctx context.Context, runID string, status string) error

	// List returns run summaries matching the filter, most recently
	// updated first. limit <= 0 means no limit.
	List(ctx context.Context, filter Filter, limit int) ([]Summary, error)

	// Delete removes the run's snapshot. Deleting an unknown run is
	// not an error; run deletion is an administrative action, not
	// part of normal workflow execution.
	Delete(ctx context.Context, runID string) error

	// Close releases any backing resources.
	Close() error
}
