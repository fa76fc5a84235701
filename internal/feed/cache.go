package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Fetcher performs one upstream round trip for a source.
type Fetcher[T any] interface {
	// Name identifies the upstream source in logs, metrics and errors.
	Name() string
	// Fetch issues a single request bounded by ctx. It must not retry.
	Fetch(ctx context.Context) (T, error)
}

// Recorder receives cache and fetch metrics. telemetry.ProviderMetrics
// implements it.
type Recorder interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
}

// Entry is the last successfully fetched value of a source.
type Entry[T any] struct {
	Value     T
	FetchedAt time.Time
	TTL       time.Duration
}

// Fresh reports whether the entry is younger than its TTL.
func (e Entry[T]) Fresh(now time.Time) bool {
	return now.Sub(e.FetchedAt) < e.TTL
}

// Result is the cache's view of a source at a point in time.
type Result[T any] struct {
	Value     T
	HasData   bool
	Fresh     bool
	FetchedAt time.Time
	TTL       time.Duration
	Err       *FetchError
}

// Age returns how old the value is, or zero when there is none.
func (r Result[T]) Age(now time.Time) time.Duration {
	if !r.HasData {
		return 0
	}
	return now.Sub(r.FetchedAt)
}

// CacheConfig configures a Cache.
type CacheConfig struct {
	TTL      time.Duration
	Recorder Recorder
	Logger   zerolog.Logger
}

// Cache holds the last good value of one source and refreshes it at most
// once at a time.
type Cache[T any] struct {
	fetcher  Fetcher[T]
	ttl      time.Duration
	recorder Recorder
	logger   zerolog.Logger
	group    singleflight.Group
	fetches  atomic.Int64

	mu            sync.RWMutex
	entry         *Entry[T]
	lastErr       *FetchError
	cooldownUntil time.Time
	authFailed    bool
}

// NewCache creates a cache in front of fetcher.
func NewCache[T any](fetcher Fetcher[T], cfg CacheConfig) *Cache[T] {
	return &Cache[T]{
		fetcher:  fetcher,
		ttl:      cfg.TTL,
		recorder: cfg.Recorder,
		logger:   cfg.Logger.With().Str("source", fetcher.Name()).Logger(),
	}
}

// Name returns the name of the underlying fetcher.
func (c *Cache[T]) Name() string {
	return c.fetcher.Name()
}

// TTL returns the freshness window of this cache.
func (c *Cache[T]) TTL() time.Duration {
	return c.ttl
}

// FetchCount returns how many times the fetcher has been invoked.
func (c *Cache[T]) FetchCount() int64 {
	return c.fetches.Load()
}

// Peek returns the current view without fetching.
func (c *Cache[T]) Peek(now time.Time) Result[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewLocked(now)
}

// GetOrRefresh returns the cached value when fresh. Otherwise it refreshes
// through the fetcher, joining a refresh already in flight. If ctx ends
// while waiting, the current view is returned.
func (c *Cache[T]) GetOrRefresh(ctx context.Context, now time.Time) Result[T] {
	c.mu.RLock()
	view := c.viewLocked(now)
	until := c.cooldownUntil
	c.mu.RUnlock()

	if view.Fresh {
		c.recordHit()
		return view
	}
	if now.Before(until) {
		c.logger.Debug().
			Time("until", until).
			Msg("source cooling down, fetch suppressed")
		return view
	}
	c.recordMiss()

	ch := c.group.DoChan(c.fetcher.Name(), func() (any, error) {
		// A flight that finished after the check above may have
		// refreshed the entry or started a cooldown.
		c.mu.RLock()
		view := c.viewLocked(now)
		until := c.cooldownUntil
		c.mu.RUnlock()
		if view.Fresh || now.Before(until) {
			return view, nil
		}
		return c.refresh(ctx, now), nil
	})

	select {
	case res := <-ch:
		return res.Val.(Result[T])
	case <-ctx.Done():
		view = c.Peek(now)
		if view.Err == nil {
			view.Err = NetworkError(c.fetcher.Name(), ctx.Err())
		}
		return view
	}
}

func (c *Cache[T]) refresh(ctx context.Context, now time.Time) Result[T] {
	c.fetches.Add(1)
	start := time.Now()
	value, err := c.fetcher.Fetch(ctx)
	if c.recorder != nil {
		c.recorder.RecordRequest(c.fetcher.Name(), "fetch", time.Since(start), err)
	}

	// An abandoned refresh leaves the entry untouched.
	if ctx.Err() != nil {
		view := c.Peek(now)
		if err == nil {
			err = ctx.Err()
		}
		view.Err = NetworkError(c.fetcher.Name(), err)
		return view
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		fe := AsFetchError(c.fetcher.Name(), err)
		c.lastErr = fe
		c.applyFailureLocked(fe, now)
		return c.viewLocked(now)
	}

	if c.authFailed {
		c.authFailed = false
		c.logger.Info().Msg("source credentials accepted again")
	}
	c.entry = &Entry[T]{Value: value, FetchedAt: now, TTL: c.ttl}
	c.lastErr = nil
	c.cooldownUntil = time.Time{}
	return c.viewLocked(now)
}

func (c *Cache[T]) applyFailureLocked(fe *FetchError, now time.Time) {
	switch fe.Kind {
	case KindRateLimited:
		wait := max(c.ttl, fe.RetryAfter)
		c.cooldownUntil = now.Add(wait)
		c.logger.Warn().
			Dur("cooldown", wait).
			Msg("source rate limited")
	case KindAuth:
		c.cooldownUntil = now.Add(c.ttl)
		if !c.authFailed {
			c.authFailed = true
			c.logger.Error().Err(fe).Msg("source rejected credentials, serving no data")
		}
	default:
		c.logger.Warn().
			Err(fe).
			Str("kind", string(fe.Kind)).
			Bool("has_stale", c.entry != nil).
			Msg("source fetch failed")
	}
}

func (c *Cache[T]) viewLocked(now time.Time) Result[T] {
	res := Result[T]{TTL: c.ttl, Err: c.lastErr}
	if c.entry == nil || c.authFailed {
		return res
	}
	res.Value = c.entry.Value
	res.HasData = true
	res.FetchedAt = c.entry.FetchedAt
	res.Fresh = c.entry.Fresh(now)
	return res
}

func (c *Cache[T]) recordHit() {
	if c.recorder != nil {
		c.recorder.RecordCacheHit(c.fetcher.Name(), "fetch")
	}
}

func (c *Cache[T]) recordMiss() {
	if c.recorder != nil {
		c.recorder.RecordCacheMiss(c.fetcher.Name(), "fetch")
	}
}
