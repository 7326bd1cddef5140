package article

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresStore persists articles in a PostgreSQL table. Metadata is
// stored as JSONB.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the connection, verifies it, and creates the
// articles table if missing.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) createSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		status TEXT NOT NULL,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_articles_channel ON articles(channel_id, created_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create articles schema: %w", err)
	}
	return nil
}

// CreateArticle implements Publisher.
func (s *PostgresStore) CreateArticle(ctx context.Context, draft Draft) (Article, error) {
	if draft.Content == "" {
		return Article{}, errors.New("article content cannot be empty")
	}

	status := draft.Status
	if status == "" {
		status = StatusDraft
	}

	a := Article{
		ID:        uuid.NewString(),
		Title:     draft.Title,
		Content:   draft.Content,
		ChannelID: draft.ChannelID,
		Status:    status,
		Metadata:  draft.Metadata,
		CreatedAt: time.Now().UTC(),
	}

	metaJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return Article{}, fmt.Errorf("failed to marshal article metadata: %w", err)
	}

	const query = `
	INSERT INTO articles (id, title, content, channel_id, status, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := s.db.ExecContext(ctx, query,
		a.ID, a.Title, a.Content, a.ChannelID, a.Status, metaJSON, a.CreatedAt); err != nil {
		return Article{}, fmt.Errorf("failed to insert article: %w", err)
	}
	return a, nil
}

// GetArticle implements Store.
func (s *PostgresStore) GetArticle(ctx context.Context, id string) (Article, error) {
	const query = `
	SELECT id, title, content, channel_id, status, metadata, created_at
	FROM articles WHERE id = $1`

	var a Article
	var metaJSON []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.Title, &a.Content, &a.ChannelID, &a.Status, &metaJSON, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Article{}, ErrNotFound
	}
	if err != nil {
		return Article{}, fmt.Errorf("failed to query article: %w", err)
	}

	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &a.Metadata); err != nil {
			return Article{}, fmt.Errorf("failed to unmarshal article metadata: %w", err)
		}
	}
	return a, nil
}

// ListArticles returns articles newest-first, optionally filtered by
// channel. limit <= 0 applies a default of 100.
func (s *PostgresStore) ListArticles(ctx context.Context, channelID string, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
	SELECT id, title, content, channel_id, status, metadata, created_at
	FROM articles`
	args := []interface{}{}
	if channelID != "" {
		query += " WHERE channel_id = $1"
		args = append(args, channelID)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		var a Article
		var metaJSON []byte
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &a.ChannelID, &a.Status, &metaJSON, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &a.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal article metadata: %w", err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Stats implements Store with two grouped counts.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByChannel: make(map[string]int), ByStatus: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT channel_id, COUNT(*) FROM articles GROUP BY channel_id`)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query channel stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var channel string
		var n int
		if err := rows.Scan(&channel, &n); err != nil {
			return Stats{}, err
		}
		stats.ByChannel[channel] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	statusRows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM articles GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query status stats: %w", err)
	}
	defer statusRows.Close()
	for statusRows.Next() {
		var status string
		var n int
		if err := statusRows.Scan(&status, &n); err != nil {
			return Stats{}, err
		}
		stats.ByStatus[status] = n
	}
	return stats, statusRows.Err()
}

// Close releases the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
