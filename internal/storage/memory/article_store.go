package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/stockroom/internal/inventory"
)

// ArticleStore keeps articles in a map guarded by a mutex.
type ArticleStore struct {
	mu       sync.RWMutex
	nextID   int64
	articles map[int64]inventory.Article
	now      func() time.Time
}

// NewArticleStore returns an empty store.
func NewArticleStore() *ArticleStore {
	return &ArticleStore{
		articles: make(map[int64]inventory.Article),
		now:      time.Now,
	}
}

// Create assigns an id and timestamps, then stores the article.
func (s *ArticleStore) Create(_ context.Context, a *inventory.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.articles {
		if existing.Code == a.Code {
			return fmt.Errorf("code %q already in use", a.Code)
		}
	}
	s.nextID++
	now := s.now().UTC()
	a.ID = s.nextID
	a.CreatedAt = now
	a.UpdatedAt = now
	s.articles[a.ID] = *a
	return nil
}

// Get returns one article.
func (s *ArticleStore) Get(_ context.Context, id int64) (inventory.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[id]
	if !ok {
		return inventory.Article{}, fmt.Errorf("article %d: %w", id, inventory.ErrNotFound)
	}
	return a, nil
}

// GetByCode returns the article carrying code.
func (s *ArticleStore) GetByCode(_ context.Context, code string) (inventory.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.articles {
		if a.Code == code {
			return a, nil
		}
	}
	return inventory.Article{}, fmt.Errorf("code %q: %w", code, inventory.ErrNotFound)
}

// List returns all articles ordered by id.
func (s *ArticleStore) List(_ context.Context) ([]inventory.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]inventory.Article, 0, len(s.articles))
	for _, a := range s.articles {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Update overwrites the editable fields. The image pointer is kept unless the
// order link changed, in which case it is cleared.
func (s *ArticleStore) Update(_ context.Context, a *inventory.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.articles[a.ID]
	if !ok {
		return fmt.Errorf("article %d: %w", a.ID, inventory.ErrNotFound)
	}
	if cur.OrderLink != a.OrderLink {
		cur.ImageName = ""
	}
	cur.Name = a.Name
	cur.MinStock = a.MinStock
	cur.Location = a.Location
	cur.OrderLink = a.OrderLink
	cur.Notes = a.Notes
	cur.UpdatedAt = s.now().UTC()
	s.articles[a.ID] = cur
	*a = cur
	return nil
}

// AdjustStock applies delta unless the result would be negative.
func (s *ArticleStore) AdjustStock(_ context.Context, id int64, delta int) (inventory.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.articles[id]
	if !ok {
		return inventory.Article{}, fmt.Errorf("article %d: %w", id, inventory.ErrNotFound)
	}
	if cur.Stock+delta < 0 {
		return inventory.Article{}, fmt.Errorf("article %d has %d, cannot remove %d: %w", id, cur.Stock, -delta, inventory.ErrInsufficientStock)
	}
	cur.Stock += delta
	cur.UpdatedAt = s.now().UTC()
	s.articles[id] = cur
	return cur, nil
}

// SetImageName records the cached image file name.
func (s *ArticleStore) SetImageName(_ context.Context, id int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.articles[id]
	if !ok {
		return fmt.Errorf("article %d: %w", id, inventory.ErrNotFound)
	}
	cur.ImageName = name
	s.articles[id] = cur
	return nil
}

// Delete removes an article.
func (s *ArticleStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[id]; !ok {
		return fmt.Errorf("article %d: %w", id, inventory.ErrNotFound)
	}
	delete(s.articles, id)
	return nil
}
