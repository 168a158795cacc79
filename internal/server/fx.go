// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/stockroom/internal/api"
	"github.com/JakeFAU/stockroom/internal/codes"
	"github.com/JakeFAU/stockroom/internal/config"
	"github.com/JakeFAU/stockroom/internal/imagecache"
	"github.com/JakeFAU/stockroom/internal/inventory"
	"github.com/JakeFAU/stockroom/internal/logging"
	"github.com/JakeFAU/stockroom/internal/metrics"
	"github.com/JakeFAU/stockroom/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/stockroom/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/stockroom/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/stockroom/internal/storage/gcs"
	localstorage "github.com/JakeFAU/stockroom/internal/storage/local"
	memorystorage "github.com/JakeFAU/stockroom/internal/storage/memory"
	pgstore "github.com/JakeFAU/stockroom/internal/storage/postgres"
)

// App contains the application's dependencies.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	apiServer    *api.Server
	articles     *inventory.Service
	images       *imagecache.Coordinator
	pgStore      *pgstore.ArticleStore
	pubsub       *gcppublisher.Publisher
	storage      *storage.Client
	shutdownWait time.Duration
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	type SanitizedConfig struct {
		ServerPort     int    `json:"server_port"`
		StorageBackend string `json:"storage_backend"`
		Database       bool   `json:"database"`
		PubSub         bool   `json:"pubsub"`
	}
	safeCfg := SanitizedConfig{
		ServerPort:     cfg.Server.Port,
		StorageBackend: cfg.Storage.Backend,
		Database:       cfg.DB.DSN != "",
		PubSub:         cfg.PubSub.TopicName != "",
	}
	logger = logging.OrNop(logger)
	logger.Info("creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:          cfg,
		logger:       logger,
		shutdownWait: 10 * time.Second,
	}, nil
}

// Articles exposes the inventory service for non-HTTP commands.
func (a *App) Articles() *inventory.Service {
	return a.articles
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownWait)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close gracefully shuts down the application.
func (a *App) Close(_ context.Context) error {
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	a.logger.Info("shutdown complete")
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	return nil
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	if err := app.build(ctx); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	a.logger.Info("building application dependencies")

	blobs, err := setupStorage(ctx, a)
	if err != nil {
		return err
	}

	store, err := setupDatabase(ctx, a)
	if err != nil {
		return err
	}

	publisher, err := setupPublisher(ctx, a)
	if err != nil {
		return err
	}

	gen, err := codes.New(codes.Config{Dir: a.cfg.Codes.Dir}, a.logger)
	if err != nil {
		return fmt.Errorf("code generator init failed: %w", err)
	}

	a.articles, err = inventory.NewService(store, gen, publisher, a.logger)
	if err != nil {
		return fmt.Errorf("inventory service init failed: %w", err)
	}

	fetchCfg := a.cfg.FetcherConfig()
	fetchCfg.Limiter = ratelimit.New(ratelimit.Config{
		RPS:   a.cfg.Images.HostRPS,
		Burst: a.cfg.Images.HostBurst,
	})
	fetcher := imagecache.NewFetcher(fetchCfg)
	a.images, err = imagecache.NewCoordinator(a.cfg.CoordinatorConfig(), store, blobs, fetcher, gen, a.logger)
	if err != nil {
		return fmt.Errorf("image coordinator init failed: %w", err)
	}
	a.articles.OnDelete(a.images.Forget)
	a.articles.OnRelink(a.images.Forget)

	a.apiServer, err = api.NewServer(api.Deps{
		Articles: a.articles,
		Images:   a.images,
		Ready:    a.ready,
	}, *a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("api server init failed: %w", err)
	}
	return nil
}

func (a *App) ready(ctx context.Context) error {
	if a.pgStore == nil {
		return nil
	}
	return a.pgStore.Ping(ctx)
}

func setupStorage(ctx context.Context, app *App) (imagecache.BlobStore, error) {
	switch app.cfg.Storage.Backend {
	case config.BackendGCS:
		app.logger.Info("using GCS storage backend")
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket:    app.cfg.Storage.Bucket,
			Prefix:    app.cfg.Storage.Prefix,
			ChunkSize: app.cfg.Storage.ChunkSize,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Debug("GCS storage backend", zap.String("bucket", app.cfg.Storage.Bucket))
		return blobs, nil
	case config.BackendLocal:
		app.logger.Info("using local storage backend")
		localCfg := app.cfg.Storage.Local
		localCfg.ChunkSize = app.cfg.Storage.ChunkSize
		blobs, err := localstorage.New(localCfg)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Debug("local storage backend", zap.String("path", localCfg.BaseDir))
		return blobs, nil
	default:
		app.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func setupDatabase(ctx context.Context, app *App) (inventory.Store, error) {
	if app.cfg.DB.DSN == "" {
		app.logger.Warn("no DSN specified for database, using in-memory article store")
		return memorystorage.NewArticleStore(), nil
	}
	if app.cfg.DB.MigrateOnStart {
		if err := pgstore.Migrate(ctx, app.cfg.DB.DSN); err != nil {
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
		app.logger.Info("database schema up to date")
	}
	store, err := pgstore.NewArticleStore(ctx, pgstore.ArticleStoreConfig{
		DSN:             app.cfg.DB.DSN,
		MaxConns:        app.cfg.DB.MaxConns,
		MinConns:        app.cfg.DB.MinConns,
		MaxConnLifetime: app.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("article store init failed: %w", err)
	}
	app.pgStore = store
	app.logger.Info("article store initialized")
	return store, nil
}

func setupPublisher(ctx context.Context, app *App) (inventory.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	publisher, err := gcppublisher.Dial(ctx, app.cfg.PubSub.ProjectID, app.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.pubsub = publisher
	app.logger.Info("pubsub publisher initialized", zap.String("topic", app.cfg.PubSub.TopicName))
	return publisher, nil
}
