package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Arena     ArenaConfig     `yaml:"arena" mapstructure:"arena"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Recompute RecomputeConfig `yaml:"recompute" mapstructure:"recompute"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CatalogConfig points at the catalog fixture used by "catalog import".
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PricingConfig configures the price refresh pipeline.
type PricingConfig struct {
	OpenRouter       OpenRouterConfig `yaml:"openrouter" mapstructure:"openrouter"`
	FallbackPath     string           `yaml:"fallback_path" mapstructure:"fallback_path"`
	FetchTimeoutSecs int              `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	BreakerThreshold int              `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int              `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// OpenRouterConfig holds the primary price source settings.
type OpenRouterConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	Referer string `yaml:"referer" mapstructure:"referer"`
	Title   string `yaml:"title" mapstructure:"title"`
}

// ArenaConfig configures benchmark ingest.
type ArenaConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// FetchConfig configures the shared HTTP fetcher.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffMs   int    `yaml:"backoff_ms" mapstructure:"backoff_ms"`
}

// RecomputeConfig configures the asynchronous recompute dispatcher.
type RecomputeConfig struct {
	Workers          int `yaml:"workers" mapstructure:"workers"`
	QueueSize        int `yaml:"queue_size" mapstructure:"queue_size"`
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// RedisConfig configures the leaderboard cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	TTLSecs  int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// FetchTimeout returns the per-source pricing fetch timeout.
func (c PricingConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

// CacheTTL returns the leaderboard cache TTL.
func (c RedisConfig) CacheTTL() time.Duration {
	return time.Duration(c.TTLSecs) * time.Second
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VALUEBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "valueboard.db")
	v.SetDefault("catalog.path", "catalog.yaml")
	v.SetDefault("pricing.openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("pricing.openrouter.api_key", "")
	v.SetDefault("pricing.openrouter.referer", "")
	v.SetDefault("pricing.openrouter.title", "valueboard")
	v.SetDefault("pricing.fallback_path", "vendor_prices.yaml")
	v.SetDefault("pricing.fetch_timeout_secs", 60)
	v.SetDefault("pricing.breaker_threshold", 5)
	v.SetDefault("pricing.breaker_reset_secs", 300)
	v.SetDefault("arena.base_url", "")
	v.SetDefault("arena.concurrency", 4)
	v.SetDefault("fetch.user_agent", "valueboard/1.0")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_ms", 1000)
	v.SetDefault("recompute.workers", 2)
	v.SetDefault("recompute.queue_size", 256)
	v.SetDefault("recompute.max_attempts", 3)
	v.SetDefault("recompute.initial_backoff_ms", 500)
	v.SetDefault("recompute.max_backoff_ms", 30000)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl_secs", 300)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Mode is one of migrate,
// catalog, pricing, arena, recompute, leaderboard or serve.
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Sprintf(format, args...))
		}
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	require(c.Store.DatabaseURL != "", "store.database_url is required")

	switch mode {
	case "migrate", "leaderboard":
	case "catalog":
		require(c.Catalog.Path != "", "catalog.path is required")
	case "pricing":
		c.validatePricing(require)
	case "arena":
		require(c.Arena.BaseURL != "", "arena.base_url is required")
		require(c.Arena.Concurrency >= 1 && c.Arena.Concurrency <= 16, "arena.concurrency must be between 1 and 16")
	case "recompute":
		c.validateRecompute(require)
	case "serve":
		require(c.Server.Port > 0, "server.port must be > 0")
		require(c.Redis.TTLSecs >= 0, "redis.ttl_secs must be >= 0")
		c.validatePricing(require)
		c.validateRecompute(require)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validatePricing(require func(bool, string, ...any)) {
	require(c.Pricing.OpenRouter.BaseURL != "" || c.Pricing.FallbackPath != "",
		"pricing.openrouter.base_url or pricing.fallback_path is required")
	require(c.Pricing.FetchTimeoutSecs > 0, "pricing.fetch_timeout_secs must be > 0")
}

func (c *Config) validateRecompute(require func(bool, string, ...any)) {
	require(c.Recompute.Workers >= 1 && c.Recompute.Workers <= 32, "recompute.workers must be between 1 and 32")
	require(c.Recompute.QueueSize >= 1, "recompute.queue_size must be >= 1")
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
