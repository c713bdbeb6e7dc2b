package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/study-hub/internal/domain/progress"
	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/study-hub/pkg/circuitbreaker"
	"github.com/alem-hub/study-hub/pkg/logger"
)

// KV is the subset of Cache used by ProgressCache.
type KV interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string, dest any) error
	Delete(ctx context.Context, keys ...string) error
}

var _ KV = (*Cache)(nil)

// ProgressCacheConfig configures ProgressCache.
type ProgressCacheConfig struct {
	TTL     time.Duration
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	// Breaker skips the cache while Redis keeps failing. Optional.
	Breaker *circuitbreaker.CircuitBreaker
}

// NewCacheBreaker returns a breaker tuned for the progress cache.
// Misses are not failures.
func NewCacheBreaker(log *logger.Logger) *circuitbreaker.CircuitBreaker {
	if log == nil {
		log = logger.Nop()
	}
	return circuitbreaker.New("progress_cache",
		circuitbreaker.WithFailureThreshold(3),
		circuitbreaker.WithSuccessThreshold(1),
		circuitbreaker.WithCoolDown(15*time.Second),
		circuitbreaker.WithIsFailure(func(err error) bool { return !errors.Is(err, ErrCacheMiss) }),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.Stringer("from", from),
				logger.Stringer("to", to),
			)
		}),
	)
}

// ProgressCache is a read-through, write-through cache in front of a
// progress.Repository. Cache failures never fail the call; the backing
// repository stays authoritative.
type ProgressCache struct {
	repo    progress.Repository
	kv      KV
	ttl     time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics
	breaker *circuitbreaker.CircuitBreaker
}

var _ progress.Repository = (*ProgressCache)(nil)

// NewProgressCache wraps repo with kv.
func NewProgressCache(repo progress.Repository, kv KV, cfg ProgressCacheConfig) *ProgressCache {
	if cfg.TTL <= 0 {
		cfg.TTL = TTLProgress
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &ProgressCache{
		repo:    repo,
		kv:      kv,
		ttl:     cfg.TTL,
		log:     cfg.Logger.Named("progress_cache"),
		metrics: cfg.Metrics,
		breaker: cfg.Breaker,
	}
}

// guard runs a cache call through the breaker when one is configured.
func (c *ProgressCache) guard(ctx context.Context, fn func(context.Context) error) error {
	if c.breaker == nil {
		return fn(ctx)
	}
	return c.breaker.Execute(ctx, fn)
}

// Load serves from the cache, falling back to the repository on a miss.
func (c *ProgressCache) Load(ctx context.Context, account shared.AccountID) (progress.ProgressStats, error) {
	key := ProgressKey(account.String())

	var doc map[string]any
	err := c.guard(ctx, func(ctx context.Context) error { return c.kv.Get(ctx, key, &doc) })
	switch {
	case circuitbreaker.IsRejected(err):
		c.metrics.RecordCacheLookup("bypass")
	case err == nil:
		stats, decErr := progress.FromDocument(doc)
		if decErr == nil {
			c.metrics.RecordCacheLookup("hit")
			return stats, nil
		}
		c.log.Warn("dropping undecodable cache entry", logger.AccountID(account.String()), logger.Err(decErr))
		_ = c.guard(ctx, func(ctx context.Context) error { return c.kv.Delete(ctx, key) })
		c.metrics.RecordCacheLookup("error")
	case errors.Is(err, ErrCacheMiss):
		c.metrics.RecordCacheLookup("miss")
	default:
		c.log.Warn("progress cache read failed", logger.AccountID(account.String()), logger.Err(err))
		c.metrics.RecordCacheLookup("error")
	}

	stats, err := c.repo.Load(ctx, account)
	if err != nil {
		return progress.ProgressStats{}, err
	}
	c.store(ctx, account, stats)
	return stats, nil
}

// Save writes to the repository, then refreshes the cache.
func (c *ProgressCache) Save(ctx context.Context, account shared.AccountID, stats progress.ProgressStats) error {
	if err := c.repo.Save(ctx, account, stats); err != nil {
		// The cached copy may now be ahead of or behind storage.
		key := ProgressKey(account.String())
		_ = c.guard(ctx, func(ctx context.Context) error { return c.kv.Delete(ctx, key) })
		return err
	}
	c.store(ctx, account, stats)
	return nil
}

func (c *ProgressCache) store(ctx context.Context, account shared.AccountID, stats progress.ProgressStats) {
	key := ProgressKey(account.String())
	err := c.guard(ctx, func(ctx context.Context) error { return c.kv.Set(ctx, key, stats.ToDocument(), c.ttl) })
	if err != nil && !circuitbreaker.IsRejected(err) {
		c.log.Warn("progress cache write failed", logger.AccountID(account.String()), logger.Err(err))
	}
}
