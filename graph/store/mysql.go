package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store[S].
//
// Designed for production deployments where runs must survive process
// restarts and be visible to multiple service instances. Uses connection
// pooling and upserts via ON DUPLICATE KEY UPDATE.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type MySQLStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a MySQL-backed store.
//
// DSN format: user:password@tcp(host:3306)/dbname?parseTime=true
//
// parseTime=true is required so timestamps scan into time.Time. Never
// hardcode credentials; read the DSN from configuration or environment.
//
// The store creates the workflow_runs table if it does not exist.
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore[S]{db: db}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (m *MySQLStore[S]) createTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS workflow_runs (
			run_id VARCHAR(255) NOT NULL PRIMARY KEY,
			workflow_type VARCHAR(64) NOT NULL,
			state JSON NOT NULL,
			current_step VARCHAR(255) NOT NULL DEFAULT '',
			status VARCHAR(32) NOT NULL,
			created_at TIMESTAMP(6) NOT NULL,
			updated_at TIMESTAMP(6) NOT NULL,
			INDEX idx_type_status (workflow_type, status),
			INDEX idx_updated_at (updated_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create workflow_runs table: %w", err)
	}
	return nil
}

// Put upserts the run snapshot (implements Store).
func (m *MySQLStore[S]) Put(ctx context.Context, runID string, state S, meta Metadata) error {
	if err := m.checkOpen(); err != nil {
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
		ON DUPLICATE KEY UPDATE
			workflow_type = VALUES(workflow_type),
			state = VALUES(state),
			current_step = VALUES(current_step),
			status = VALUES(status),
			updated_at = VALUES(updated_at)
	`
	if _, err := m.db.ExecContext(ctx, query, runID, meta.WorkflowType, stateJSON,
		meta.CurrentStep, meta.Status, now, now); err != nil {
		return fmt.Errorf("failed to save run snapshot: %w", err)
	}
	return nil
}

// Get returns the run's latest snapshot or ErrNotFound (implements Store).
func (m *MySQLStore[S]) Get(ctx context.Context, runID string) (Snapshot[S], error) {
	if err := m.checkOpen(); err != nil {
		return Snapshot[S]{}, err
	}

	const query = `
		SELECT workflow_type, state, current_step, status, created_at, updated_at
		FROM workflow_runs WHERE run_id = ?
	`
	var (
		snap      Snapshot[S]
		stateJSON []byte
	)
	snap.RunID = runID
	err := m.db.QueryRowContext(ctx, query, runID).Scan(
		&snap.Meta.WorkflowType, &stateJSON, &snap.Meta.CurrentStep,
		&snap.Meta.Status, &snap.CreatedAt, &snap.UpdatedAt)
	if err == sql.ErrNoRows {
		return Snapshot[S]{}, ErrNotFound
	}
	if err != nil {
		return Snapshot[S]{}, fmt.Errorf("failed to load run snapshot: %w", err)
	}

	if err := json.Unmarshal(stateJSON, &snap.State); err != nil {
		return Snapshot[S]{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return snap, nil
}

// SetStatus updates only the run status (implements Store).
func (m *MySQLStore[S]) SetStatus(ctx context.Context, runID string, status string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	const query = `UPDATE workflow_runs SET status = ?, updated_at = ? WHERE run_id = ?`
	res, err := m.db.ExecContext(ctx, query, status, time.Now().UTC(), runID)
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
func (m *MySQLStore[S]) List(ctx context.Context, filter Filter, limit int) ([]Summary, error) {
	if err := m.checkOpen(); err != nil {
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

	rows, err := m.db.QueryContext(ctx, query, args...)
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
func (m *MySQLStore[S]) Delete(ctx context.Context, runID string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if _, err := m.db.ExecContext(ctx, `DELETE FROM workflow_runs WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (m *MySQLStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

func (m *MySQLStore[S]) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}
