package handler

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gateway/internal/domain"
	"gateway/internal/usecase"
)

// MetricsHandler はメトリクス関連のHTTPリクエストを処理
type MetricsHandler struct {
	metricsUseCase *usecase.MetricsUseCase
	prometheus     http.Handler
	dispatcher     domain.Dispatcher
	logger         domain.Logger
}

// NewMetricsHandler は新しいMetricsHandlerインスタンスを作成
func NewMetricsHandler(
	metricsUseCase *usecase.MetricsUseCase,
	gatherer prometheus.Gatherer,
	dispatcher domain.Dispatcher,
	logger domain.Logger,
) *MetricsHandler {
	return &MetricsHandler{
		metricsUseCase: metricsUseCase,
		prometheus:     promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		dispatcher:     dispatcher,
		logger:         logger,
	}
}

// Routes は /metrics, /stats, /health を登録したハンドラを返す
func (h *MetricsHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", h.HandleMetrics)
	mux.HandleFunc("/stats", h.HandleStats)
	mux.HandleFunc("/health", h.HandleHealth)
	return mux
}

// HandleMetrics はPrometheus形式のメトリクスを提供
func (h *MetricsHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.prometheus.ServeHTTP(w, r)
}

// HandleStats はJSON形式の詳細な統計情報を提供
func (h *MetricsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	data, err := h.metricsUseCase.GetMetricsSnapshot().ToJSON()
	if err != nil {
		h.logger.Error("Failed to encode metrics", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// HandleHealth はヘルスチェックエンドポイントを提供.
// ディスパッチャが受け付け中でなければ 503 を返す.
func (h *MetricsHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	state := h.dispatcher.State()
	status := "up"
	code := http.StatusOK
	if state != domain.StateListening {
		status = "down"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"status":   status,
		"strategy": h.dispatcher.Name(),
		"state":    state.String(),
	})
}
