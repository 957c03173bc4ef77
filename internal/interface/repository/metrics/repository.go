package metrics

import (
	"encoding/json"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"gateway/internal/domain"
)

const namespace = "gateway"

// Repository はメトリクスのリポジトリ実装. 専用のレジストリに登録する.
type Repository struct {
	registry    *prometheus.Registry
	metricsFile string
	startTime   time.Time

	connections prometheus.Gauge
	requests    *prometheus.CounterVec
	bytes       prometheus.Counter
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	upstream    *prometheus.CounterVec
	rejected    prometheus.Counter
	errors      prometheus.Counter
}

// インターフェースの実装を検証
var _ domain.MetricsCollector = (*Repository)(nil)

// New は新しいRepositoryインスタンスを作成
func New(metricsFile string) *Repository {
	r := &Repository{
		registry:    prometheus.NewRegistry(),
		metricsFile: metricsFile,
		startTime:   time.Now(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_connections",
			Help:      "Current number of connections being handled.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of classified requests.",
		}, []string{"route"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_transferred_total",
			Help:      "Total number of response body bytes written.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses.",
		}),
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_fetches_total",
			Help:      "Total number of upstream fetches by outcome.",
		}, []string{"outcome"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_connections_total",
			Help:      "Total number of connections rejected because the work queue was full.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of requests answered with a server error.",
		}),
	}

	r.registry.MustRegister(
		r.connections, r.requests, r.bytes, r.cacheHits,
		r.cacheMisses, r.upstream, r.rejected, r.errors,
	)
	return r
}

// Registry はPrometheusのエクスポートに使うレジストリを返す
func (r *Repository) Registry() *prometheus.Registry {
	return r.registry
}

// SaveMetrics はメトリクスをファイルに保存
func (r *Repository) SaveMetrics(snapshot *domain.MetricsSnapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	tempFile := r.metricsFile + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempFile, r.metricsFile)
}

// 以下、MetricsCollector インターフェースの実装
func (r *Repository) IncrementConnections() {
	r.connections.Inc()
}

func (r *Repository) DecrementConnections() {
	r.connections.Dec()
}

func (r *Repository) AddBytesTransferred(bytes int64) {
	r.bytes.Add(float64(bytes))
}

func (r *Repository) RecordRequest(route domain.RouteKind) {
	r.requests.WithLabelValues(route.String()).Inc()
}

func (r *Repository) RecordCacheHit() {
	r.cacheHits.Inc()
}

func (r *Repository) RecordCacheMiss() {
	r.cacheMisses.Inc()
}

func (r *Repository) RecordUpstreamFetch(success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	r.upstream.WithLabelValues(outcome).Inc()
}

func (r *Repository) RecordRejected() {
	r.rejected.Inc()
}

func (r *Repository) RecordError() {
	r.errors.Inc()
}

func (r *Repository) GetSnapshot() *domain.MetricsSnapshot {
	failures := value(r.upstream, "failure")
	return &domain.MetricsSnapshot{
		Timestamp:          time.Now(),
		StartTime:          r.startTime,
		CurrentConnections: sum(r.connections),
		TotalRequests:      sum(r.requests),
		BytesTransferred:   sum(r.bytes),
		CacheHits:          sum(r.cacheHits),
		CacheMisses:        sum(r.cacheMisses),
		UpstreamFetches:    value(r.upstream, "success") + failures,
		UpstreamFailures:   failures,
		RejectedRequests:   sum(r.rejected),
		Errors:             sum(r.errors),
		Uptime:             time.Since(r.startTime).Round(time.Second).String(),
	}
}
