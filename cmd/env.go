package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valueboard/internal/arena"
	"github.com/sells-group/valueboard/internal/fetcher"
	"github.com/sells-group/valueboard/internal/pricing"
	"github.com/sells-group/valueboard/internal/recompute"
	"github.com/sells-group/valueboard/internal/resilience"
	"github.com/sells-group/valueboard/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "valueboard.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore validates cfg for mode, opens the store and migrates it.
// Callers close the returned store.
func openStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func newFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Fetch.MaxRetries,
		Backoff:    time.Duration(cfg.Fetch.BackoffMs) * time.Millisecond,
	})
}

// newPricingPipeline wires the OpenRouter primary, the vendor sheet
// fallback and one circuit breaker per source.
func newPricingPipeline(st store.Store, pub recompute.Publisher) *pricing.Pipeline {
	var primary pricing.Source
	if cfg.Pricing.OpenRouter.BaseURL != "" {
		primary = pricing.NewOpenRouterSource(newFetcher(), pricing.OpenRouterConfig{
			BaseURL: cfg.Pricing.OpenRouter.BaseURL,
			APIKey:  cfg.Pricing.OpenRouter.APIKey,
			Referer: cfg.Pricing.OpenRouter.Referer,
			Title:   cfg.Pricing.OpenRouter.Title,
		})
	}
	fallback := pricing.NewVendorSheetSource(cfg.Pricing.FallbackPath)

	reset := time.Duration(cfg.Pricing.BreakerResetSecs) * time.Second
	breakers := map[string]*resilience.Breaker{
		fallback.Name(): resilience.NewBreaker(fallback.Name(), cfg.Pricing.BreakerThreshold, reset),
	}
	if primary != nil {
		breakers[primary.Name()] = resilience.NewBreaker(primary.Name(), cfg.Pricing.BreakerThreshold, reset)
	}

	return pricing.NewPipeline(st, primary, fallback,
		pricing.WithPublisher(pub),
		pricing.WithBreakers(breakers),
		pricing.WithFetchTimeout(cfg.Pricing.FetchTimeout()),
	)
}

func newArenaIngestor(st store.Store, pub recompute.Publisher, opts ...arena.Option) *arena.Ingestor {
	opts = append([]arena.Option{
		arena.WithPublisher(pub),
		arena.WithConcurrency(cfg.Arena.Concurrency),
	}, opts...)
	return arena.NewIngestor(st, arena.NewHTTPSource(newFetcher(), cfg.Arena.BaseURL), opts...)
}

// newRedis returns nil when no Redis address is configured or the server
// does not answer; the leaderboard then runs uncached.
func newRedis(ctx context.Context) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		zap.L().Warn("redis unavailable, leaderboard cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		_ = rdb.Close()
		return nil
	}
	return rdb
}

func retrySettings() resilience.RetryConfig {
	return resilience.FromSettings(cfg.Recompute.MaxAttempts, cfg.Recompute.InitialBackoffMs, cfg.Recompute.MaxBackoffMs)
}
