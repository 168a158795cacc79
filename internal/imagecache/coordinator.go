package imagecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/stockroom/internal/inventory"
	"github.com/JakeFAU/stockroom/internal/metrics"
)

// BlobStore persists cached image files by name.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	// OpenObject wraps fs.ErrNotExist when nothing is stored under path.
	OpenObject(ctx context.Context, path string) (io.ReadCloser, error)
	// ObjectExists reports whether a non-empty object is stored under path.
	ObjectExists(ctx context.Context, path string) (bool, error)
	// DeleteObject treats a missing object as success.
	DeleteObject(ctx context.Context, path string) error
}

// ArticleStore records the cached file name on an article.
type ArticleStore interface {
	SetImageName(ctx context.Context, id int64, name string) error
}

// FallbackSource produces the identifier image for a scan code.
type FallbackSource interface {
	Open(ctx context.Context, code string) (io.ReadCloser, error)
}

// CoordinatorConfig tunes the cache coordinator.
type CoordinatorConfig struct {
	Rules        Rules
	SingleFlight bool
	VerifyDecode bool
	// PrewarmQuota is the default number of articles WarmListing touches.
	PrewarmQuota       int
	PrewarmParallelism int
}

// Coordinator decides when an article's image must be fetched and records
// the result.
type Coordinator struct {
	cfg      CoordinatorConfig
	store    ArticleStore
	blobs    BlobStore
	fetcher  *Fetcher
	fallback FallbackSource
	logger   *zap.Logger
	group    singleflight.Group
}

// NewCoordinator wires a Coordinator.
func NewCoordinator(
	cfg CoordinatorConfig,
	store ArticleStore,
	blobs BlobStore,
	fetcher *Fetcher,
	fallback FallbackSource,
	logger *zap.Logger,
) (*Coordinator, error) {
	if store == nil || blobs == nil || fetcher == nil || fallback == nil {
		return nil, fmt.Errorf("article store, blob store, fetcher and fallback are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PrewarmParallelism <= 0 {
		cfg.PrewarmParallelism = 1
	}
	return &Coordinator{
		cfg:      cfg,
		store:    store,
		blobs:    blobs,
		fetcher:  fetcher,
		fallback: fallback,
		logger:   logger.Named("imagecache"),
	}, nil
}

// FileName is the blob name for an article's image with extension ext.
func FileName(id int64, ext string) string {
	return strconv.FormatInt(id, 10) + "." + ext
}

// EnsureCached reports whether a usable cached image exists for article,
// fetching one when it does not. On success article.ImageName is updated.
// It never returns an error; failures are logged and counted.
func (c *Coordinator) EnsureCached(ctx context.Context, article *inventory.Article) bool {
	if article == nil {
		return false
	}
	if c.hasBlob(ctx, article.ImageName) {
		metrics.ObserveCacheLookup(metrics.CacheHit)
		return true
	}
	metrics.ObserveCacheLookup(metrics.CacheMiss)
	return c.fetch(ctx, article)
}

// Refresh clears the current pointer and runs one fetch cycle. The previous
// blob is removed unless the new cycle wrote to the same name.
func (c *Coordinator) Refresh(ctx context.Context, article *inventory.Article) bool {
	if article == nil {
		return false
	}
	previous := article.ImageName
	if previous != "" {
		if err := c.store.SetImageName(ctx, article.ID, ""); err != nil {
			c.logger.Warn("image pointer not cleared", zap.Int64("article_id", article.ID), zap.Error(err))
			return false
		}
		article.ImageName = ""
	}
	ok := c.fetch(ctx, article)
	if previous != "" && previous != article.ImageName {
		if err := c.blobs.DeleteObject(ctx, previous); err != nil {
			c.logger.Warn("previous cached image not removed", zap.String("name", previous), zap.Error(err))
		}
	}
	return ok
}

// Forget removes the cached blob of article, best-effort.
func (c *Coordinator) Forget(ctx context.Context, article inventory.Article) error {
	if article.ImageName == "" {
		return nil
	}
	if err := c.blobs.DeleteObject(ctx, article.ImageName); err != nil {
		return fmt.Errorf("delete cached image %s: %w", article.ImageName, err)
	}
	return nil
}

// WarmListing runs EnsureCached on the first quota articles, a bounded number
// at a time, and updates their ImageName in place. A negative quota uses the
// configured default.
func (c *Coordinator) WarmListing(ctx context.Context, articles []inventory.Article, quota int) {
	if quota < 0 {
		quota = c.cfg.PrewarmQuota
	}
	n := min(quota, len(articles))
	if n <= 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(c.cfg.PrewarmParallelism)
	for i := range articles[:n] {
		a := &articles[i]
		if a.OrderLink == "" && a.ImageName == "" {
			continue
		}
		g.Go(func() error {
			c.EnsureCached(ctx, a)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Coordinator) hasBlob(ctx context.Context, name string) bool {
	if name == "" {
		return false
	}
	ok, err := c.blobs.ObjectExists(ctx, name)
	if err != nil {
		c.logger.Warn("cached image lookup failed", zap.String("name", name), zap.Error(err))
		return false
	}
	return ok
}

type cycleResult struct {
	name string
}

// fetch runs one cycle, shared between concurrent callers for the same
// article when single-flight is enabled.
func (c *Coordinator) fetch(ctx context.Context, article *inventory.Article) bool {
	if article.OrderLink == "" {
		c.record(article, ErrNoOrderLink, 0)
		return false
	}
	work := func() (any, error) {
		return c.cycle(context.WithoutCancel(ctx), *article)
	}

	var (
		v   any
		err error
	)
	if c.cfg.SingleFlight {
		v, err, _ = c.group.Do(strconv.FormatInt(article.ID, 10), work)
	} else {
		v, err = work()
	}
	if err != nil {
		return false
	}
	article.ImageName = v.(cycleResult).name
	return true
}

func (c *Coordinator) cycle(ctx context.Context, article inventory.Article) (cycleResult, error) {
	start := time.Now()
	name, err := c.download(ctx, article)
	c.record(&article, err, time.Since(start))
	if err != nil {
		return cycleResult{}, err
	}
	return cycleResult{name: name}, nil
}

func (c *Coordinator) download(ctx context.Context, article inventory.Article) (string, error) {
	page, err := c.fetcher.FetchPage(ctx, article.OrderLink)
	if err != nil {
		return "", err
	}
	candidate, ok := ResolveImageURL(page.Body, page.URL, c.cfg.Rules)
	if !ok {
		return "", ErrNoCandidate
	}
	img, err := c.fetcher.FetchImage(ctx, candidate, page.URL)
	if err != nil {
		return "", err
	}
	defer img.Body.Close()

	var body io.Reader = img.Body
	if c.cfg.VerifyDecode {
		if body, err = verifyDecodable(img.Body, img.ContentType); err != nil {
			return "", err
		}
	}

	name := FileName(article.ID, img.Ext)
	if _, err := c.blobs.PutObject(ctx, name, img.ContentType, body); err != nil {
		return "", &storeError{err: fmt.Errorf("store %s: %w", name, err)}
	}
	if capped, ok := img.Body.(*cappedBody); ok {
		metrics.AddImageBytes(capped.BytesRead())
	}
	if err := c.store.SetImageName(ctx, article.ID, name); err != nil {
		return "", &storeError{err: fmt.Errorf("record %s: %w", name, err)}
	}
	if article.ImageName != "" && article.ImageName != name {
		if err := c.blobs.DeleteObject(ctx, article.ImageName); err != nil {
			c.logger.Warn("stale cached image not removed", zap.String("name", article.ImageName), zap.Error(err))
		}
	}
	return name, nil
}

func (c *Coordinator) record(article *inventory.Article, err error, elapsed time.Duration) {
	outcome := classify(err)
	metrics.ObserveImageFetch(outcome)
	fields := []zap.Field{
		zap.Int64("article_id", article.ID),
		zap.String("outcome", outcome),
		zap.String("rules", c.cfg.Rules.Version),
	}
	if elapsed > 0 {
		fields = append(fields, zap.Duration("elapsed", elapsed))
	}
	switch {
	case err == nil:
		c.logger.Info("product image cached", fields...)
	case errors.Is(err, ErrNoOrderLink):
		c.logger.Debug("product image skipped", fields...)
	case outcome == OutcomeStore:
		c.logger.Warn("product image not stored", append(fields, zap.Error(err))...)
	default:
		c.logger.Debug("product image not fetched", append(fields, zap.Error(err))...)
	}
}
