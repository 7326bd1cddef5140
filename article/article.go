// Package article handles published article records: creation from
// workflow output, retrieval, listing, and publish-history stats.
package article

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an article ID is unknown.
var ErrNotFound = errors.New("article not found")

// Statuses an article moves through.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Draft is the input to article creation.
type Draft struct {
	Title     string                 `json:"title"`
	Content   string                 `json:"content"`
	ChannelID string                 `json:"channel_id"`
	Status    string                 `json:"status"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Article is a stored article record.
type Article struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Content   string                 `json:"content"`
	ChannelID string                 `json:"channel_id"`
	Status    string                 `json:"status"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Stats summarizes publish history for dashboards.
type Stats struct {
	Total     int            `json:"total"`
	ByChannel map[string]int `json:"by_channel"`
	ByStatus  map[string]int `json:"by_status"`
}

// Publisher is the collaborator workflow nodes call to create articles.
type Publisher interface {
	CreateArticle(ctx context.Context, draft Draft) (Article, error)
}

// Store is a Publisher that also supports retrieval and analytics.
type Store interface {
	Publisher
	GetArticle(ctx context.Context, id string) (Article, error)
	ListArticles(ctx context.Context, channelID string, limit int) ([]Article, error)
	Stats(ctx context.Context) (Stats, error)
}
