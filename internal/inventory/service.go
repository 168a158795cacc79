package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/stockroom/internal/metrics"
)

// EventLowStock is the event type published when an article turns low.
const EventLowStock = "stock.low"

// Adjustment actions accepted by AdjustByCode.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

const maxCodeAttempts = 5

// CodeSource issues scannable codes and keeps their identifier images.
type CodeSource interface {
	NewCode() string
	Ensure(ctx context.Context, code string) (string, error)
	Remove(code string) error
}

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) (string, error)
}

// Hook observes an article that was deleted or whose cached image went stale.
// The article is the state before the change.
type Hook func(ctx context.Context, a Article) error

// LowStockEvent is the payload of EventLowStock.
type LowStockEvent struct {
	ArticleID  int64     `json:"article_id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Stock      int       `json:"stock"`
	MinStock   int       `json:"min_stock"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Service applies inventory rules on top of a Store.
type Service struct {
	store     Store
	codes     CodeSource
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time

	mu          sync.RWMutex
	deleteHooks []Hook
	relinkHooks []Hook
}

// NewService wires a Service. publisher may be nil to disable events.
func NewService(store Store, codes CodeSource, publisher Publisher, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("article store is required")
	}
	if codes == nil {
		return nil, fmt.Errorf("code source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		codes:     codes,
		publisher: publisher,
		logger:    logger.Named("inventory"),
		now:       time.Now,
	}, nil
}

// OnDelete registers a hook that runs after an article was deleted. Hook
// errors are logged and swallowed.
func (s *Service) OnDelete(hook Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteHooks = append(s.deleteHooks, hook)
}

// OnRelink registers a hook that runs after an edit changed the order link.
func (s *Service) OnRelink(hook Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relinkHooks = append(s.relinkHooks, hook)
}

// Create validates input, assigns a fresh code and stores the article. A
// failed identifier image is logged; it is regenerated on first use.
func (s *Service) Create(ctx context.Context, in ArticleInput) (Article, error) {
	if err := in.normalize(); err != nil {
		return Article{}, err
	}
	code, err := s.freshCode(ctx)
	if err != nil {
		return Article{}, err
	}
	a := Article{
		Name:      in.Name,
		Stock:     in.Stock,
		MinStock:  in.MinStock,
		Code:      code,
		Location:  in.Location,
		OrderLink: in.OrderLink,
		Notes:     in.Notes,
	}
	if err := s.store.Create(ctx, &a); err != nil {
		return Article{}, fmt.Errorf("create article: %w", err)
	}
	if _, err := s.codes.Ensure(ctx, a.Code); err != nil {
		s.logger.Warn("identifier image not written", zap.String("code", a.Code), zap.Error(err))
	}
	s.logger.Info("article created", zap.Int64("id", a.ID), zap.String("code", a.Code))
	return a, nil
}

func (s *Service) freshCode(ctx context.Context) (string, error) {
	for range maxCodeAttempts {
		code := s.codes.NewCode()
		_, err := s.store.GetByCode(ctx, code)
		if errors.Is(err, ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("check code: %w", err)
		}
	}
	return "", fmt.Errorf("no unused code after %d attempts", maxCodeAttempts)
}

// Get returns one article.
func (s *Service) Get(ctx context.Context, id int64) (Article, error) {
	return s.store.Get(ctx, id)
}

// GetByCode returns the article carrying a scan code.
func (s *Service) GetByCode(ctx context.Context, code string) (Article, error) {
	return s.store.GetByCode(ctx, code)
}

// List returns all articles.
func (s *Service) List(ctx context.Context) ([]Article, error) {
	return s.store.List(ctx)
}

// LowStock returns the articles below their minimum stock.
func (s *Service) LowStock(ctx context.Context) ([]Article, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]Article, 0, len(all))
	for _, a := range all {
		if a.IsLow() {
			low = append(low, a)
		}
	}
	return low, nil
}

// Update edits an article. A changed order link clears the cached image
// pointer and runs the relink hooks with the previous state.
func (s *Service) Update(ctx context.Context, id int64, up ArticleUpdate) (Article, error) {
	if err := up.normalize(); err != nil {
		return Article{}, err
	}
	prev, err := s.store.Get(ctx, id)
	if err != nil {
		return Article{}, err
	}
	next := prev
	next.Name = up.Name
	next.MinStock = up.MinStock
	next.Location = up.Location
	next.OrderLink = up.OrderLink
	next.Notes = up.Notes
	relinked := prev.OrderLink != next.OrderLink
	if err := s.store.Update(ctx, &next); err != nil {
		return Article{}, fmt.Errorf("update article %d: %w", id, err)
	}
	if relinked && prev.ImageName != "" {
		s.runHooks(ctx, "relink", s.snapshot(&s.relinkHooks), prev)
	}
	return next, nil
}

// Adjust moves stock by delta. Moving an article from not-low to low
// publishes EventLowStock; publish failures are only logged.
func (s *Service) Adjust(ctx context.Context, id int64, delta int) (Article, error) {
	if delta == 0 {
		return s.store.Get(ctx, id)
	}
	updated, err := s.store.AdjustStock(ctx, id, delta)
	if err != nil {
		return Article{}, err
	}
	metrics.ObserveStockAdjustment(delta)

	wasLow := updated.Stock-delta < updated.MinStock
	if !wasLow && updated.IsLow() {
		s.publishLow(ctx, updated)
	}
	return updated, nil
}

// AdjustByCode adds or removes quantity for the article behind a scan code.
func (s *Service) AdjustByCode(ctx context.Context, code, action string, quantity int) (Article, error) {
	if quantity <= 0 {
		return Article{}, fmt.Errorf("%w: quantity must be > 0", ErrInvalid)
	}
	var delta int
	switch action {
	case ActionAdd:
		delta = quantity
	case ActionRemove:
		delta = -quantity
	default:
		return Article{}, fmt.Errorf("%w: action must be %q or %q", ErrInvalid, ActionAdd, ActionRemove)
	}
	a, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return Article{}, err
	}
	return s.Adjust(ctx, a.ID, delta)
}

// Delete removes an article, then its identifier image and the delete hooks,
// all best-effort.
func (s *Service) Delete(ctx context.Context, id int64) error {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete article %d: %w", id, err)
	}
	if err := s.codes.Remove(a.Code); err != nil {
		s.logger.Warn("identifier image not removed", zap.String("code", a.Code), zap.Error(err))
	}
	s.runHooks(ctx, "delete", s.snapshot(&s.deleteHooks), a)
	s.logger.Info("article deleted", zap.Int64("id", id))
	return nil
}

func (s *Service) snapshot(hooks *[]Hook) []Hook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Hook(nil), (*hooks)...)
}

func (s *Service) runHooks(ctx context.Context, kind string, hooks []Hook, a Article) {
	for _, hook := range hooks {
		if err := hook(ctx, a); err != nil {
			s.logger.Warn("hook failed", zap.String("kind", kind), zap.Int64("id", a.ID), zap.Error(err))
		}
	}
}

func (s *Service) publishLow(ctx context.Context, a Article) {
	if s.publisher == nil {
		return
	}
	event := LowStockEvent{
		ArticleID:  a.ID,
		Code:       a.Code,
		Name:       a.Name,
		Stock:      a.Stock,
		MinStock:   a.MinStock,
		OccurredAt: s.now().UTC(),
	}
	id, err := s.publisher.Publish(ctx, EventLowStock, event)
	if err != nil {
		s.logger.Warn("low stock event not published", zap.Int64("id", a.ID), zap.Error(err))
		return
	}
	s.logger.Info("low stock event published", zap.Int64("id", a.ID), zap.String("message_id", id))
}
