package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store[S].
//
// It keeps run snapshots in a single-file database. Designed for:
//   - Development and testing with zero setup
//   - Single-process deployments that need durability
//   - Prototyping before migrating to MySQL/PostgreSQL
//
// WAL mode is enabled so readers are not blocked by the single writer.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type SQLiteStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore creates a SQLite-backed store.
//
// The path specifies the database file ("./contentflow.db", an absolute
// path, or ":memory:" for tests). The store creates the file and the
// required table on first use.
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore[S]{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS workflow_runs (
			run_id TEXT PRIMARY KEY,
			workflow_type TEXT NOT NULL,
			state TEXT NOT NULL,
			current_step TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create workflow_runs table: %w", err)
	}

	const statusIndex = `
		CREATE INDEX IF NOT EXISTS idx_workflow_runs_status
		ON workflow_runs (workflow_type, status)
	`
	if _, err := s.db.ExecContext(ctx, statusIndex); err != nil {
		return fmt.Errorf("failed to create status index: %w", err)
	}
	return nil
}

// Put upserts the run snapshot (implements Store).
func (s *SQLiteStore[S]) Put(ctx context.Context, runID string, state S, meta Metadata) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	now := time.Now().UTC()
	const query = `
		INSERT INTO workflow_runs (run_id, workflow_type, state, current_step, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			workflow_type = excluded.workflow_type,
			state = excluded.state,
			current_step = excluded.current_step,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, runID, meta.WorkflowType, string(stateJSON),
		meta.CurrentStep, meta.Status, now, now); err != nil {
		return fmt.Errorf("failed to save run snapshot: %w", err)
	}
	return nil
}

// Get returns the run's latest snapshot or ErrNotFound (implements Store).
func (s *SQLiteStore[S]) Get(ctx context.Context, runID string) (Snapshot[S], error) {
	if err := s.checkOpen(); err != nil {
		return Snapshot[S]{}, err
	}

	const query = `
		SELECT workflow_type, state, current_step, status, created_at, updated_at
		FROM workflow_runs WHERE run_id = ?
	`
	var (
		snap      Snapshot[S]
		stateJSON string
	)
	snap.RunID = runID
	err := s.db.QueryRowContext(ctx, query, runID).Scan(
		&snap.Meta.WorkflowType, &stateJSON, &snap.Meta.CurrentStep,
		&snap.Meta.Status, &snap.CreatedAt, &snap.UpdatedAt)
	if err == sql.ErrNoRows {
		return Snapshot[S]{}, ErrNotFound
	}
	if err != nil {
		return Snapshot[S]{}, fmt.Errorf("failed to load run snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &snap.State); err != nil {
		return Snapshot[S]{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return snap, nil
}

// SetStatus updates only the run status (implements Store).
func (s *SQLiteStore[S]) SetStatus(ctx context.Context, runID string, status string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	const query = `UPDATE workflow_runs SET status = ?, updated_at = ? WHERE run_id = ?`
	res, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns matching run summaries, most recently updated first
// (implements Store).
func (s *SQLiteStore[S]) List(ctx context.Context, filter Filter, limit int) ([]Summary, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := `
		SELECT run_id, workflow_type, current_step, status, created_at, updated_at
		FROM workflow_runs WHERE 1=1
	`
	var args []interface{}
	if filter.WorkflowType != "" {
		query += " AND workflow_type = ?"
		args = append(args, filter.WorkflowType)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	query += " ORDER BY updated_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.RunID, &sum.Meta.WorkflowType, &sum.Meta.CurrentStep,
			&sum.Meta.Status, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return summaries, nil
}

// Delete removes the run's snapshot (implements Store).
func (s *SQLiteStore[S]) Delete(ctx context.Context, runID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM workflow_runs WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore[S]) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}
