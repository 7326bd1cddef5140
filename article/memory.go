package article

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store for tests and single-process setups.
type MemStore struct {
	mu       sync.RWMutex
	articles map[string]Article
}

// NewMemStore creates an empty in-memory article store.
func NewMemStore() *MemStore {
	return &MemStore{articles: make(map[string]Article)}
}

// CreateArticle implements Publisher. IDs are generated; the draft's
// status defaults to draft when empty.
func (m *MemStore) CreateArticle(ctx context.Context, draft Draft) (Article, error) {
	if err := ctx.Err(); err != nil {
		return Article{}, err
	}
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

	m.mu.Lock()
	m.articles[a.ID] = a
	m.mu.Unlock()
	return a, nil
}

// GetArticle implements Store.
func (m *MemStore) GetArticle(ctx context.Context, id string) (Article, error) {
	if err := ctx.Err(); err != nil {
		return Article{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.articles[id]
	if !ok {
		return Article{}, ErrNotFound
	}
	return a, nil
}

// ListArticles returns articles newest-first, optionally filtered by
// channel. limit <= 0 returns everything.
func (m *MemStore) ListArticles(ctx context.Context, channelID string, limit int) ([]Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	out := make([]Article, 0, len(m.articles))
	for _, a := range m.articles {
		if channelID != "" && a.ChannelID != channelID {
			continue
		}
		out = append(out, a)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats implements Store.
func (m *MemStore) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Total:     len(m.articles),
		ByChannel: make(map[string]int),
		ByStatus:  make(map[string]int),
	}
	for _, a := range m.articles {
		s.ByChannel[a.ChannelID]++
		s.ByStatus[a.Status]++
	}
	return s, nil
}
