// Package postgres provides the Postgres-backed article store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/stockroom/internal/inventory"
)

const uniqueViolation = "23505"

const articleColumns = `id, name, stock, min_stock, code, location, COALESCE(order_link, ''), notes, COALESCE(image_name, ''), created_at, updated_at`

// ArticleStoreConfig controls the Postgres connection pool.
type ArticleStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// ArticleStore persists articles in the articles table.
type ArticleStore struct {
	pool pool
}

// NewArticleStore connects a pool using the provided config.
func NewArticleStore(ctx context.Context, cfg ArticleStoreConfig) (*ArticleStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ArticleStore{pool: p}, nil
}

// NewArticleStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewArticleStoreWithPool(p pool) (*ArticleStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ArticleStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *ArticleStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks database connectivity.
func (s *ArticleStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Create inserts the article and fills in the generated columns.
func (s *ArticleStore) Create(ctx context.Context, a *inventory.Article) error {
	err := s.pool.QueryRow(ctx, `
INSERT INTO articles (name, stock, min_stock, code, location, order_link, notes)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
RETURNING id, created_at, updated_at`,
		a.Name, a.Stock, a.MinStock, a.Code, a.Location, a.OrderLink, a.Notes,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("code %q already in use: %w", a.Code, err)
		}
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// Get returns one article.
func (s *ArticleStore) Get(ctx context.Context, id int64) (inventory.Article, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = $1`, id)
	a, err := scanArticle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Article{}, fmt.Errorf("article %d: %w", id, inventory.ErrNotFound)
	}
	if err != nil {
		return inventory.Article{}, fmt.Errorf("select article %d: %w", id, err)
	}
	return a, nil
}

// GetByCode returns the article carrying code.
func (s *ArticleStore) GetByCode(ctx context.Context, code string) (inventory.Article, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles WHERE code = $1`, code)
	a, err := scanArticle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Article{}, fmt.Errorf("code %q: %w", code, inventory.ErrNotFound)
	}
	if err != nil {
		return inventory.Article{}, fmt.Errorf("select code %q: %w", code, err)
	}
	return a, nil
}

// List returns all articles ordered by id.
func (s *ArticleStore) List(ctx context.Context) ([]inventory.Article, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+articleColumns+` FROM articles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var out []inventory.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return out, nil
}

// Update writes the editable fields. The image pointer is cleared in the same
// statement when the order link changes and left alone otherwise.
func (s *ArticleStore) Update(ctx context.Context, a *inventory.Article) error {
	row := s.pool.QueryRow(ctx, `
UPDATE articles
SET name = $2, min_stock = $3, location = $4, order_link = NULLIF($5, ''), notes = $6,
    image_name = CASE WHEN order_link IS DISTINCT FROM NULLIF($5, '') THEN NULL ELSE image_name END,
    updated_at = now()
WHERE id = $1
RETURNING `+articleColumns,
		a.ID, a.Name, a.MinStock, a.Location, a.OrderLink, a.Notes,
	)
	updated, err := scanArticle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("article %d: %w", a.ID, inventory.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update article %d: %w", a.ID, err)
	}
	*a = updated
	return nil
}

// AdjustStock applies delta in one statement guarded against negative stock.
func (s *ArticleStore) AdjustStock(ctx context.Context, id int64, delta int) (inventory.Article, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE articles
SET stock = stock + $2, updated_at = now()
WHERE id = $1 AND stock + $2 >= 0
RETURNING `+articleColumns,
		id, delta,
	)
	a, err := scanArticle(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return inventory.Article{}, fmt.Errorf("adjust article %d: %w", id, err)
	}
	cur, err := s.Get(ctx, id)
	if err != nil {
		return inventory.Article{}, err
	}
	return inventory.Article{}, fmt.Errorf("article %d has %d, cannot remove %d: %w", id, cur.Stock, -delta, inventory.ErrInsufficientStock)
}

// SetImageName records the cached image file name; empty stores NULL.
func (s *ArticleStore) SetImageName(ctx context.Context, id int64, name string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE articles SET image_name = NULLIF($2, '') WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("set image name for %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("article %d: %w", id, inventory.ErrNotFound)
	}
	return nil
}

// Delete removes an article.
func (s *ArticleStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM articles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete article %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("article %d: %w", id, inventory.ErrNotFound)
	}
	return nil
}

func scanArticle(row pgx.Row) (inventory.Article, error) {
	var a inventory.Article
	err := row.Scan(
		&a.ID, &a.Name, &a.Stock, &a.MinStock, &a.Code, &a.Location,
		&a.OrderLink, &a.Notes, &a.ImageName, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}
