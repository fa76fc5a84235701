package feed_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/departureboard/departureboard/internal/feed"
)

type stubFetcher struct {
	mu      sync.Mutex
	calls   atomic.Int32
	value   int
	err     error
	release chan struct{}
	started chan struct{}
}

func (f *stubFetcher) Name() string { return "stub" }

func (f *stubFetcher) Fetch(ctx context.Context) (int, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

func (f *stubFetcher) set(value int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = value
	f.err = err
}

func newCache(f *stubFetcher, ttl time.Duration) *feed.Cache[int] {
	return feed.NewCache[int](f, feed.CacheConfig{TTL: ttl, Logger: zerolog.Nop()})
}

func TestCache_FreshEntrySkipsFetcher(t *testing.T) {
	f := &stubFetcher{value: 7}
	c := newCache(f, 30*time.Second)
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	res := c.GetOrRefresh(context.Background(), now)
	require.True(t, res.HasData)
	assert.True(t, res.Fresh)
	assert.Equal(t, 7, res.Value)

	res = c.GetOrRefresh(context.Background(), now.Add(29*time.Second))
	assert.True(t, res.Fresh)
	assert.Equal(t, int32(1), f.calls.Load(), "fresh entry must not hit upstream")
	assert.Equal(t, int64(1), c.FetchCount())
}

func TestCache_RefreshesWhenStale(t *testing.T) {
	f := &stubFetcher{value: 1}
	c := newCache(f, 30*time.Second)
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	c.GetOrRefresh(context.Background(), now)
	f.set(2, nil)

	res := c.GetOrRefresh(context.Background(), now.Add(30*time.Second))
	assert.True(t, res.Fresh)
	assert.Equal(t, 2, res.Value)
	assert.Equal(t, now.Add(30*time.Second), res.FetchedAt)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestCache_ServesStaleOnFailure(t *testing.T) {
	f := &stubFetcher{value: 5}
	c := newCache(f, 30*time.Second)
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	c.GetOrRefresh(context.Background(), now)
	f.set(0, feed.NetworkError("stub", errors.New("connection refused")))

	later := now.Add(45 * time.Second)
	res := c.GetOrRefresh(context.Background(), later)
	require.True(t, res.HasData)
	assert.False(t, res.Fresh)
	assert.Equal(t, 5, res.Value)
	require.NotNil(t, res.Err)
	assert.Equal(t, feed.KindNetwork, res.Err.Kind)
	assert.Equal(t, 45*time.Second, res.Age(later))

	// Network failures are retried on the next call.
	c.GetOrRefresh(context.Background(), later.Add(time.Second))
	assert.Equal(t, int32(3), f.calls.Load())
}

func TestCache_NoDataWhenNeverSucceeded(t *testing.T) {
	f := &stubFetcher{err: feed.ParseError("stub", errors.New("bad json"))}
	c := newCache(f, time.Minute)

	res := c.GetOrRefresh(context.Background(), time.Now())
	assert.False(t, res.HasData)
	assert.False(t, res.Fresh)
	require.NotNil(t, res.Err)
	assert.Equal(t, feed.KindParse, res.Err.Kind)
}

func TestCache_PlainErrorsBecomeNetworkErrors(t *testing.T) {
	f := &stubFetcher{err: errors.New("boom")}
	c := newCache(f, time.Minute)

	res := c.GetOrRefresh(context.Background(), time.Now())
	require.NotNil(t, res.Err)
	assert.Equal(t, feed.KindNetwork, res.Err.Kind)
	assert.Equal(t, "stub", res.Err.Source)
}

func TestCache_RateLimitCooldown(t *testing.T) {
	f := &stubFetcher{value: 3}
	c := newCache(f, 30*time.Second)
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	c.GetOrRefresh(context.Background(), now)
	f.set(0, feed.RateLimitedError("stub", 2*time.Minute, nil))

	t1 := now.Add(31 * time.Second)
	res := c.GetOrRefresh(context.Background(), t1)
	assert.True(t, res.HasData)
	assert.False(t, res.Fresh)
	assert.Equal(t, feed.KindRateLimited, res.Err.Kind)
	assert.Equal(t, int32(2), f.calls.Load())

	// Retry-After exceeds the TTL, so the cooldown follows Retry-After.
	res = c.GetOrRefresh(context.Background(), t1.Add(90*time.Second))
	assert.Equal(t, int32(2), f.calls.Load(), "fetch must be suppressed during cooldown")
	assert.Equal(t, 3, res.Value)

	f.set(4, nil)
	res = c.GetOrRefresh(context.Background(), t1.Add(2*time.Minute))
	assert.Equal(t, int32(3), f.calls.Load())
	assert.True(t, res.Fresh)
	assert.Equal(t, 4, res.Value)
	assert.Nil(t, res.Err)
}

func TestCache_RateLimitCooldownAtLeastTTL(t *testing.T) {
	f := &stubFetcher{err: feed.RateLimitedError("stub", 0, nil)}
	c := newCache(f, time.Minute)
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	c.GetOrRefresh(context.Background(), now)
	c.GetOrRefresh(context.Background(), now.Add(59*time.Second))
	assert.Equal(t, int32(1), f.calls.Load())

	c.GetOrRefresh(context.Background(), now.Add(time.Minute))
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestCache_AuthFailureWithholdsData(t *testing.T) {
	f := &stubFetcher{value: 9}
	c := newCache(f, 30*time.Second)
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	c.GetOrRefresh(context.Background(), now)
	f.set(0, feed.AuthError("stub", feed.ErrMissingAPIKey))

	res := c.GetOrRefresh(context.Background(), now.Add(31*time.Second))
	assert.False(t, res.HasData, "stale value must not be served after auth failure")
	require.NotNil(t, res.Err)
	assert.Equal(t, feed.KindAuth, res.Err.Kind)
	assert.ErrorIs(t, res.Err, feed.ErrMissingAPIKey)

	c.GetOrRefresh(context.Background(), now.Add(40*time.Second))
	assert.Equal(t, int32(2), f.calls.Load())

	f.set(10, nil)
	res = c.GetOrRefresh(context.Background(), now.Add(62*time.Second))
	assert.True(t, res.HasData)
	assert.Equal(t, 10, res.Value)
}

func TestCache_SingleFlight(t *testing.T) {
	f := &stubFetcher{
		value:   1,
		release: make(chan struct{}),
		started: make(chan struct{}, 10),
	}
	c := newCache(f, 30*time.Second)
	now := time.Now()

	var wg sync.WaitGroup
	results := make([]feed.Result[int], 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = c.GetOrRefresh(context.Background(), now)
	}()
	<-f.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = c.GetOrRefresh(context.Background(), now)
	}()

	// Give the second caller time to join the in-flight refresh.
	time.Sleep(50 * time.Millisecond)
	close(f.release)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for _, res := range results {
		assert.True(t, res.Fresh)
		assert.Equal(t, 1, res.Value)
	}
}

func TestCache_WaiterStopsOnOwnDeadline(t *testing.T) {
	f := &stubFetcher{
		value:   1,
		release: make(chan struct{}),
		started: make(chan struct{}, 10),
	}
	c := newCache(f, 30*time.Second)
	now := time.Now()

	done := make(chan feed.Result[int], 1)
	go func() {
		done <- c.GetOrRefresh(context.Background(), now)
	}()
	<-f.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := c.GetOrRefresh(ctx, now)
	assert.False(t, res.HasData)
	require.NotNil(t, res.Err)
	assert.Equal(t, feed.KindNetwork, res.Err.Kind)

	close(f.release)
	leader := <-done
	assert.True(t, leader.Fresh)
}

func TestCache_CancelledRefreshDoesNotWrite(t *testing.T) {
	f := &stubFetcher{value: 1}
	c := newCache(f, 30*time.Second)
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	c.GetOrRefresh(context.Background(), now)

	f.set(2, nil)
	f.release = make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := c.GetOrRefresh(ctx, now.Add(time.Minute))
	assert.Equal(t, 1, res.Value)
	assert.False(t, res.Fresh)

	peek := c.Peek(now.Add(time.Minute))
	assert.Equal(t, 1, peek.Value)
	assert.Equal(t, now, peek.FetchedAt)
	assert.Nil(t, peek.Err, "abandoned refresh must not record an error")
}

func TestCache_Peek(t *testing.T) {
	f := &stubFetcher{value: 1}
	c := newCache(f, 30*time.Second)
	now := time.Now()

	res := c.Peek(now)
	assert.False(t, res.HasData)
	assert.Zero(t, f.calls.Load())
	assert.Equal(t, "stub", c.Name())
	assert.Equal(t, 30*time.Second, c.TTL())
}

type countingRecorder struct {
	hits, misses, requests atomic.Int32
}

func (r *countingRecorder) RecordRequest(string, string, time.Duration, error) { r.requests.Add(1) }
func (r *countingRecorder) RecordCacheHit(string, string)                      { r.hits.Add(1) }
func (r *countingRecorder) RecordCacheMiss(string, string)                     { r.misses.Add(1) }

func TestCache_RecordsMetrics(t *testing.T) {
	rec := &countingRecorder{}
	f := &stubFetcher{value: 1}
	c := feed.NewCache[int](f, feed.CacheConfig{TTL: time.Minute, Recorder: rec, Logger: zerolog.Nop()})
	now := time.Now()

	c.GetOrRefresh(context.Background(), now)
	c.GetOrRefresh(context.Background(), now)

	assert.Equal(t, int32(1), rec.misses.Load())
	assert.Equal(t, int32(1), rec.hits.Load())
	assert.Equal(t, int32(1), rec.requests.Load())
}

// gatedRecorder parks the second cache miss until gate is closed.
type gatedRecorder struct {
	countingRecorder
	parked chan struct{}
	gate   chan struct{}
}

func (r *gatedRecorder) RecordCacheMiss(string, string) {
	if r.misses.Add(1) == 2 {
		close(r.parked)
		<-r.gate
	}
}

func TestCache_SingleFlightAfterLeaderFinished(t *testing.T) {
	rec := &gatedRecorder{parked: make(chan struct{}), gate: make(chan struct{})}
	f := &stubFetcher{
		value:   1,
		release: make(chan struct{}),
		started: make(chan struct{}, 10),
	}
	c := feed.NewCache[int](f, feed.CacheConfig{TTL: 30 * time.Second, Recorder: rec, Logger: zerolog.Nop()})
	now := time.Now()

	leader := make(chan feed.Result[int], 1)
	go func() { leader <- c.GetOrRefresh(context.Background(), now) }()
	<-f.started

	// The follower saw the stale entry and is held before joining the flight.
	follower := make(chan feed.Result[int], 1)
	go func() { follower <- c.GetOrRefresh(context.Background(), now) }()
	<-rec.parked

	close(f.release)
	require.True(t, (<-leader).Fresh)

	close(rec.gate)
	res := <-follower

	assert.Equal(t, int32(1), f.calls.Load(), "entry refreshed by the leader must not be fetched again")
	assert.Equal(t, int64(1), c.FetchCount())
	assert.True(t, res.Fresh)
	assert.Equal(t, 1, res.Value)
}
