package leaderboard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valueboard/internal/model"
)

// DefaultCacheTTL bounds how long a cached page can outlive its generation.
const DefaultCacheTTL = 5 * time.Minute

// CachedAggregator caches query results in Redis. Each domain has a
// generation counter that is part of every key, so Invalidate drops a
// domain's pages by bumping the counter instead of scanning keys.
type CachedAggregator struct {
	next Querier
	rdb  redis.Cmdable
	ttl  time.Duration
	log  *zap.Logger
}

// NewCachedAggregator wraps next with a Redis cache.
func NewCachedAggregator(next Querier, rdb redis.Cmdable, ttl time.Duration) *CachedAggregator {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedAggregator{
		next: next,
		rdb:  rdb,
		ttl:  ttl,
		log:  zap.L().With(zap.String("component", "leaderboard.cache")),
	}
}

func generationKey(d model.Domain) string {
	return "leaderboard:gen:" + string(d)
}

func pageKey(p Params, gen int64) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", eris.Wrap(err, "leaderboard: marshal params")
	}
	sum := sha256.Sum256(raw)
	return "leaderboard:page:" + string(p.Domain) + ":" + strconv.FormatInt(gen, 10) + ":" + hex.EncodeToString(sum[:12]), nil
}

// Query implements Querier. Redis failures fall through to the wrapped
// querier.
func (c *CachedAggregator) Query(ctx context.Context, p Params) (*Result, error) {
	p, err := p.Normalize()
	if err != nil {
		return nil, err
	}

	gen, err := c.rdb.Get(ctx, generationKey(p.Domain)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Warn("cache generation read failed", zap.Error(err))
		return c.next.Query(ctx, p)
	}
	key, err := pageKey(p, gen)
	if err != nil {
		return nil, err
	}

	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var res Result
		if err := json.Unmarshal(data, &res); err == nil {
			return &res, nil
		}
		c.log.Warn("discarding corrupt cache entry", zap.String("key", key))
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	res, err := c.next.Query(ctx, p)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(res); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return res, nil
}

// Invalidate drops every cached page for the domain.
func (c *CachedAggregator) Invalidate(ctx context.Context, d model.Domain) error {
	return eris.Wrapf(c.rdb.Incr(ctx, generationKey(d)).Err(), "leaderboard: invalidate %s", d)
}
