package usecase

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gateway/internal/domain"
)

func TestResolve_MissThenHit(t *testing.T) {
	f := newFixture(t, LockSingleFlight, nil)
	route := proxyRoute("q=Paris&days=1")

	first, err := f.uc.Resolve(context.Background(), route)
	require.NoError(t, err)

	cached, ok := f.cache.Get(route.Key)
	require.True(t, ok)
	assert.Equal(t, first.Body, cached.Body)

	second, err := f.uc.Resolve(context.Background(), route)
	require.NoError(t, err)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, int64(1), f.fetcher.calls.Load())

	s := f.metrics.GetSnapshot()
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(1), s.CacheMisses)
}

func TestResolve_SingleFlightCollapsesConcurrentMisses(t *testing.T) {
	f := newFixture(t, LockSingleFlight, nil)
	route := proxyRoute("q=Belgrade")
	release := f.fetcher.gate("q=Belgrade")

	const n = 20
	results := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := f.uc.Resolve(context.Background(), route)
			assert.NoError(t, err)
			if entry != nil {
				results[i] = entry.Body
			}
		}(i)
	}

	<-f.fetcher.started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), f.fetcher.calls.Load())
	for i := 1; i < n; i++ {
		assert.Equal(t, results[0], results[i], "response %d differs", i)
	}
}

func TestResolve_DistinctKeysProceedInParallel(t *testing.T) {
	f := newFixture(t, LockSingleFlight, nil)
	releaseSlow := f.fetcher.gate("q=slow")
	slowDone := make(chan struct{})
	defer func() {
		close(releaseSlow)
		<-slowDone
	}()

	go func() {
		defer close(slowDone)
		f.uc.Resolve(context.Background(), proxyRoute("q=slow"))
	}()
	<-f.fetcher.started

	done := make(chan error, 1)
	go func() {
		_, err := f.uc.Resolve(context.Background(), proxyRoute("q=fast"))
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch for a distinct key was blocked by an in-flight fetch")
	}
}

func TestResolve_GlobalLockSerializesDistinctKeys(t *testing.T) {
	f := newFixture(t, LockGlobal, nil)
	gate := f.fetcher.gate("q=slow")
	releaseSlow := sync.OnceFunc(func() { close(gate) })
	slowDone := make(chan struct{})
	defer func() {
		releaseSlow()
		<-slowDone
	}()

	go func() {
		defer close(slowDone)
		f.uc.Resolve(context.Background(), proxyRoute("q=slow"))
	}()
	<-f.fetcher.started

	done := make(chan error, 1)
	go func() {
		_, err := f.uc.Resolve(context.Background(), proxyRoute("q=fast"))
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("global lock let a distinct key through while another fetch was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	releaseSlow()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not complete after the lock was released")
	}
}

func TestResolve_NonSuccessIsReturnedButNotCached(t *testing.T) {
	f := newFixture(t, LockSingleFlight, nil)
	f.fetcher.status = http.StatusBadRequest
	route := proxyRoute("q=Nowhere")

	entry, err := f.uc.Resolve(context.Background(), route)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, entry.StatusCode)

	_, ok := f.cache.Get(route.Key)
	assert.False(t, ok)

	_, err = f.uc.Resolve(context.Background(), route)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.fetcher.calls.Load())
}

func TestResolve_FetchErrorIsNotCached(t *testing.T) {
	f := newFixture(t, LockSingleFlight, nil)
	f.fetcher.err = &domain.UpstreamError{Target: "weather", Err: errors.New("no such host")}
	route := proxyRoute("q=Paris")

	_, err := f.uc.Resolve(context.Background(), route)

	var upErr *domain.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, 0, f.cache.Len())
	assert.Equal(t, int64(1), f.metrics.GetSnapshot().UpstreamFailures)
}

func TestResolve_FaviconHasNoUpstream(t *testing.T) {
	f := newFixture(t, LockSingleFlight, nil)
	_, err := f.uc.Resolve(context.Background(), domain.Route{Kind: domain.RouteFavicon})
	assert.Error(t, err)
	assert.Equal(t, int64(0), f.fetcher.calls.Load())
}

func TestNewGatewayUseCase_UnknownPolicy(t *testing.T) {
	_, err := NewGatewayUseCase(nil, nil, nil, nil, nil, nil, nil, GatewayConfig{LockPolicy: "optimistic"})
	assert.Error(t, err)
}
