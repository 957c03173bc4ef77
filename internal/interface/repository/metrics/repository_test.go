package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gateway/internal/domain"
)

func TestRepository_Snapshot(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "metrics.json"))

	r.IncrementConnections()
	r.IncrementConnections()
	r.DecrementConnections()
	r.RecordRequest(domain.RouteProxy)
	r.RecordRequest(domain.RouteAnalysis)
	r.RecordRequest(domain.RouteProxy)
	r.RecordCacheHit()
	r.RecordCacheMiss()
	r.RecordCacheMiss()
	r.RecordUpstreamFetch(true)
	r.RecordUpstreamFetch(false)
	r.RecordRejected()
	r.RecordError()
	r.AddBytesTransferred(128)

	s := r.GetSnapshot()
	assert.Equal(t, int64(1), s.CurrentConnections)
	assert.Equal(t, int64(3), s.TotalRequests)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(2), s.CacheMisses)
	assert.Equal(t, int64(2), s.UpstreamFetches)
	assert.Equal(t, int64(1), s.UpstreamFailures)
	assert.Equal(t, int64(1), s.RejectedRequests)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(128), s.BytesTransferred)
}

func TestRepository_PrometheusExposition(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "metrics.json"))
	r.RecordCacheHit()

	expected := `
# HELP gateway_cache_hits_total Total number of cache hits.
# TYPE gateway_cache_hits_total counter
gateway_cache_hits_total 1
`
	require.NoError(t, testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "gateway_cache_hits_total"))
}

func TestRepository_SaveMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	r := New(path)
	r.RecordCacheHit()

	require.NoError(t, r.SaveMetrics(r.GetSnapshot()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var saved domain.MetricsSnapshot
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, int64(1), saved.CacheHits)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
