// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/stockroom/internal/imagecache"
	"github.com/JakeFAU/stockroom/internal/storage/local"
)

// Storage backends accepted by storage.backend.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// defaultUserAgent mimics a current desktop browser; several supplier shops
// refuse obvious bot identities.
const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Logging LoggingConfig `mapstructure:"logging"`
	DB      DBConfig      `mapstructure:"db"`
	Storage StorageConfig `mapstructure:"storage"`
	Codes   CodesConfig   `mapstructure:"codes"`
	Images  ImagesConfig  `mapstructure:"images"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig controls access to the article database. An empty DSN selects the
// in-memory article store.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// StorageConfig selects where cached product images live.
type StorageConfig struct {
	Backend   string       `mapstructure:"backend"`
	Local     local.Config `mapstructure:"local"`
	Bucket    string       `mapstructure:"bucket"`
	Prefix    string       `mapstructure:"prefix"`
	ChunkSize int          `mapstructure:"chunk_size"`
}

// CodesConfig locates generated identifier images. They always live on local
// disk because they are the fallback when remote storage misbehaves.
type CodesConfig struct {
	Dir string `mapstructure:"dir"`
}

// ImagesConfig tunes the product image pipeline.
type ImagesConfig struct {
	UserAgent          string           `mapstructure:"user_agent"`
	PageTimeout        time.Duration    `mapstructure:"page_timeout"`
	ImageTimeout       time.Duration    `mapstructure:"image_timeout"`
	MaxBytes           int64            `mapstructure:"max_bytes"`
	MaxPageBytes       int              `mapstructure:"max_page_bytes"`
	SingleFlight       bool             `mapstructure:"single_flight"`
	VerifyDecode       bool             `mapstructure:"verify_decode"`
	PrewarmQuota       int              `mapstructure:"prewarm_quota"`
	PrewarmParallelism int              `mapstructure:"prewarm_parallelism"`
	HostRPS            float64          `mapstructure:"host_rps"`
	HostBurst          int              `mapstructure:"host_burst"`
	Rules              imagecache.Rules `mapstructure:"rules"`
}

// PubSubConfig holds the topic used for low-stock events.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STOCKROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	rules := imagecache.DefaultRules()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.migrate_on_start", true)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.local.base_dir", "data/images")
	v.SetDefault("storage.prefix", "images")
	v.SetDefault("storage.chunk_size", 32*1024)
	v.SetDefault("codes.dir", "data/codes")
	v.SetDefault("images.user_agent", defaultUserAgent)
	v.SetDefault("images.page_timeout", "6s")
	v.SetDefault("images.image_timeout", "15s")
	v.SetDefault("images.max_bytes", 6*1024*1024)
	v.SetDefault("images.max_page_bytes", 2*1024*1024)
	v.SetDefault("images.single_flight", true)
	v.SetDefault("images.verify_decode", true)
	v.SetDefault("images.prewarm_quota", 20)
	v.SetDefault("images.prewarm_parallelism", 4)
	v.SetDefault("images.host_rps", 2.0)
	v.SetDefault("images.host_burst", 4)
	v.SetDefault("images.rules.version", rules.Version)
	v.SetDefault("images.rules.open_graph_properties", rules.OpenGraphProperties)
	v.SetDefault("images.rules.twitter_names", rules.TwitterNames)
	v.SetDefault("images.rules.link_rels", rules.LinkRels)
	v.SetDefault("images.rules.image_attrs", rules.ImageAttrs)
	v.SetDefault("images.rules.denylist", rules.Denylist)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Storage.Local.BaseDir) == "" {
			return fmt.Errorf("storage.local.base_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage.backend %q is not one of local, gcs, memory", c.Storage.Backend)
	}
	if strings.TrimSpace(c.Codes.Dir) == "" {
		return fmt.Errorf("codes.dir must be set")
	}
	if c.Images.PageTimeout <= 0 || c.Images.ImageTimeout <= 0 {
		return fmt.Errorf("images.page_timeout and images.image_timeout must be > 0")
	}
	if c.Images.PageTimeout > c.Images.ImageTimeout {
		return fmt.Errorf("images.page_timeout must not exceed images.image_timeout")
	}
	if c.Images.MaxBytes <= 0 {
		return fmt.Errorf("images.max_bytes must be > 0")
	}
	if c.Images.MaxPageBytes <= 0 {
		return fmt.Errorf("images.max_page_bytes must be > 0")
	}
	if c.Storage.ChunkSize <= 0 {
		return fmt.Errorf("storage.chunk_size must be > 0")
	}
	if c.Images.HostRPS < 0 {
		return fmt.Errorf("images.host_rps must be >= 0")
	}
	if c.Images.PrewarmQuota < 0 {
		return fmt.Errorf("images.prewarm_quota must be >= 0")
	}
	return nil
}

// FetcherConfig converts the image settings into the pipeline's fetch config.
// Limiter is left for the caller to attach.
func (c Config) FetcherConfig() imagecache.FetcherConfig {
	return imagecache.FetcherConfig{
		UserAgent:    c.Images.UserAgent,
		PageTimeout:  c.Images.PageTimeout,
		ImageTimeout: c.Images.ImageTimeout,
		MaxBytes:     c.Images.MaxBytes,
		MaxPageBytes: c.Images.MaxPageBytes,
	}
}

// CoordinatorConfig converts the image settings into coordinator options.
func (c Config) CoordinatorConfig() imagecache.CoordinatorConfig {
	return imagecache.CoordinatorConfig{
		Rules:              c.Images.Rules,
		SingleFlight:       c.Images.SingleFlight,
		VerifyDecode:       c.Images.VerifyDecode,
		PrewarmQuota:       c.Images.PrewarmQuota,
		PrewarmParallelism: c.Images.PrewarmParallelism,
	}
}
