package inventory

import "context"

// Store persists articles. Unknown ids and codes return ErrNotFound.
type Store interface {
	// Create assigns ID, CreatedAt and UpdatedAt on the passed article.
	Create(ctx context.Context, a *Article) error
	Get(ctx context.Context, id int64) (Article, error)
	GetByCode(ctx context.Context, code string) (Article, error)
	// List returns all articles ordered by id.
	List(ctx context.Context) ([]Article, error)
	// Update writes the editable fields, refreshing UpdatedAt, and stores the
	// result in a. ImageName is never taken from a: the stored pointer is kept,
	// or cleared when OrderLink changed.
	Update(ctx context.Context, a *Article) error
	// AdjustStock applies delta atomically and returns the updated article. A
	// result below zero fails with ErrInsufficientStock and changes nothing.
	AdjustStock(ctx context.Context, id int64, delta int) (Article, error)
	// SetImageName records the cached image file name; empty clears it.
	SetImageName(ctx context.Context, id int64, name string) error
	Delete(ctx context.Context, id int64) error
}
