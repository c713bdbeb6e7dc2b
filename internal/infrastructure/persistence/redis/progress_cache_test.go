package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-hub/internal/domain/progress"
	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/study-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/study-hub/pkg/circuitbreaker"
	"github.com/alem-hub/study-hub/pkg/timeutil"
)

// fakeKV stores JSON bytes like Redis does. Set and Get fail while down is set.
type fakeKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	down error
	gets    int
}

func newFakeKV() *fakeKV { return &fakeKV{data: make(map[string][]byte)} }

func (f *fakeKV) Set(_ context.Context, key string, value any, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down != nil {
		return f.down
	}
	f.data[key] = b
	return nil
}

func (f *fakeKV) Get(_ context.Context, key string, dest any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.down != nil {
		return f.down
	}
	b, ok := f.data[key]
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (f *fakeKV) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeKV) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

// countingRepo counts Load calls on the backing repository.
type countingRepo struct {
	*memory.ProgressRepository
	loads int
}

func (r *countingRepo) Load(ctx context.Context, account shared.AccountID) (progress.ProgressStats, error) {
	r.loads++
	return r.ProgressRepository.Load(ctx, account)
}

func sampleStats() progress.ProgressStats {
	d := timeutil.MustParseDate("2025-10-16")
	return progress.ProgressStats{
		TotalStudyMinutes: 90,
		TodayStudyMinutes: 30,
		Streak:            2,
		WeeklyGoalMinutes: 300,
		Points:            25,
		Coins:             5,
		LastStudyDate:     &d,
	}
}

func TestProgressCache_ReadThrough(t *testing.T) {
	ctx := context.Background()
	repo := &countingRepo{ProgressRepository: memory.NewProgressRepository()}
	repo.Put("acc", sampleStats())
	kv := newFakeKV()
	m := metrics.New()
	cache := NewProgressCache(repo, kv, ProgressCacheConfig{Metrics: m})

	first, err := cache.Load(ctx, "acc")
	require.NoError(t, err)
	second, err := cache.Load(ctx, "acc")
	require.NoError(t, err)

	assert.Equal(t, sampleStats(), first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.loads, "second load is served from cache")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
}

func TestProgressCache_NotFoundIsNotCached(t *testing.T) {
	kv := newFakeKV()
	cache := NewProgressCache(memory.NewProgressRepository(), kv, ProgressCacheConfig{})

	_, err := cache.Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, progress.ErrStatsNotFound)
	assert.False(t, kv.has(ProgressKey("nobody")))
}

func TestProgressCache_WriteThrough(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProgressRepository()
	kv := newFakeKV()
	cache := NewProgressCache(repo, kv, ProgressCacheConfig{})

	require.NoError(t, cache.Save(ctx, "acc", sampleStats()))
	assert.True(t, kv.has(ProgressKey("acc")))

	stored, err := repo.Load(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, sampleStats(), stored)
}

func TestProgressCache_SaveFailureEvictsEntry(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProgressRepository()
	kv := newFakeKV()
	cache := NewProgressCache(repo, kv, ProgressCacheConfig{})

	require.NoError(t, cache.Save(ctx, "acc", sampleStats()))
	repo.FailNextSaves(1, nil)

	err := cache.Save(ctx, "acc", progress.ProgressStats{Points: 99})
	require.Error(t, err)
	assert.False(t, kv.has(ProgressKey("acc")))
}

func TestProgressCache_CacheErrorFallsBack(t *testing.T) {
	repo := memory.NewProgressRepository()
	repo.Put("acc", sampleStats())
	kv := newFakeKV()
	kv.down = errors.New("connection refused")
	cache := NewProgressCache(repo, kv, ProgressCacheConfig{})

	stats, err := cache.Load(context.Background(), "acc")
	require.NoError(t, err)
	assert.Equal(t, uint32(25), stats.Points)
}

func TestProgressCache_BreakerBypassesFailingCache(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProgressRepository()
	repo.Put("acc", sampleStats())
	kv := newFakeKV()
	kv.down = errors.New("connection refused")
	m := metrics.New()
	breaker := NewCacheBreaker(nil)
	cache := NewProgressCache(repo, kv, ProgressCacheConfig{Metrics: m, Breaker: breaker})

	for i := 0; i < 5; i++ {
		stats, err := cache.Load(ctx, "acc")
		require.NoError(t, err)
		assert.Equal(t, uint32(25), stats.Points)
	}

	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())
	assert.Equal(t, 2, kv.gets, "open circuit stops reaching redis")
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("bypass")))
}

func TestProgressCache_BreakerIgnoresMisses(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProgressRepository()
	breaker := NewCacheBreaker(nil)
	cache := NewProgressCache(repo, newFakeKV(), ProgressCacheConfig{Breaker: breaker})

	for i := 0; i < 5; i++ {
		_, err := cache.Load(ctx, "nobody")
		assert.ErrorIs(t, err, progress.ErrStatsNotFound)
	}
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State())
}

func TestConfigOptions(t *testing.T) {
	cfg := DefaultConfig()
	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	cfg.URL = "redis://:secret@cache.internal:6380/2"
	opts, err = cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 10, opts.PoolSize)

	cfg.URL = "http://nope"
	_, err = cfg.Options()
	assert.ErrorIs(t, err, ErrCacheConnection)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "progress:acc", ProgressKey("acc"))
	assert.Equal(t, "pubsub:events", PubSubChannel("events"))
}
