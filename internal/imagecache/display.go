package imagecache

import (
	"context"
	"fmt"
	"io"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/stockroom/internal/inventory"
	"github.com/JakeFAU/stockroom/internal/metrics"
)

// Display is an image ready to be streamed to a client.
type Display struct {
	Body        io.ReadCloser
	ContentType string
	Name        string
	// Fallback is true when Body is the identifier image.
	Fallback bool
}

// OpenForDisplay returns the cached product image of article, fetching it
// first when needed, or the identifier image when no product image can be
// had. It fails only when the identifier image cannot be produced either.
func (c *Coordinator) OpenForDisplay(ctx context.Context, article *inventory.Article) (*Display, error) {
	if article == nil {
		return nil, fmt.Errorf("article is required")
	}
	if d := c.openCached(ctx, article.ImageName); d != nil {
		metrics.ObserveCacheLookup(metrics.CacheHit)
		return d, nil
	}
	metrics.ObserveCacheLookup(metrics.CacheMiss)
	if c.fetch(ctx, article) {
		if d := c.openCached(ctx, article.ImageName); d != nil {
			return d, nil
		}
	}
	return c.openFallback(ctx, article)
}

// OpenFallback returns the identifier image of article.
func (c *Coordinator) OpenFallback(ctx context.Context, article inventory.Article) (*Display, error) {
	return c.openFallback(ctx, &article)
}

// openCached opens name unless it is missing or empty, matching the
// lookup EnsureCached uses to decide on a refetch.
func (c *Coordinator) openCached(ctx context.Context, name string) *Display {
	if !c.hasBlob(ctx, name) {
		return nil
	}
	rc, err := c.blobs.OpenObject(ctx, name)
	if err != nil {
		c.logger.Debug("cached image not readable", zap.String("name", name), zap.Error(err))
		return nil
	}
	return &Display{
		Body:        rc,
		ContentType: contentTypeFor(name),
		Name:        name,
	}
}

func (c *Coordinator) openFallback(ctx context.Context, article *inventory.Article) (*Display, error) {
	rc, err := c.fallback.Open(ctx, article.Code)
	if err != nil {
		return nil, fmt.Errorf("identifier image for %q: %w", article.Code, err)
	}
	return &Display{
		Body:        rc,
		ContentType: "image/png",
		Name:        article.Code + ".png",
		Fallback:    true,
	}, nil
}

func contentTypeFor(name string) string {
	switch path.Ext(name) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
