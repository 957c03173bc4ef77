package handler

import (
	"context"
	"errors"
	"net/http"

	"gateway/internal/domain"
)

// Resolver は分類済みのリクエストに対するレスポンスを返す.
type Resolver interface {
	Resolve(ctx context.Context, route domain.Route) (*domain.CacheEntry, error)
}

// GatewayHandler はゲートウェイへのリクエストを処理する
type GatewayHandler struct {
	gateway Resolver
	metrics domain.MetricsCollector
	logger  domain.Logger
}

// NewGatewayHandler は新しいGatewayHandlerインスタンスを作成
func NewGatewayHandler(
	gateway Resolver, metrics domain.MetricsCollector, logger domain.Logger,
) *GatewayHandler {
	return &GatewayHandler{
		gateway: gateway,
		metrics: metrics,
		logger:  logger,
	}
}

func (h *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, err := Classify(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.RecordRequest(route.Kind)

	if route.Kind == domain.RouteFavicon {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	entry, err := h.gateway.Resolve(r.Context(), route)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", entry.ContentType)
	w.WriteHeader(entry.StatusCode)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(entry.Body); err != nil {
		h.logger.Error("Failed to write response body", err, map[string]interface{}{
			"request_id": GetRequestID(r.Context()),
		})
	}
}

func (h *GatewayHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	fields := map[string]interface{}{
		"method":     r.Method,
		"path":       r.URL.Path,
		"status":     status,
		"request_id": GetRequestID(r.Context()),
	}

	if status >= http.StatusInternalServerError {
		h.metrics.RecordError()
		h.logger.Error("Request failed", err, fields)
	} else {
		fields["reason"] = err.Error()
		h.logger.Info("Request rejected", fields)
	}

	if status == http.StatusMethodNotAllowed {
		w.Header().Set("Allow", "GET, HEAD")
	}
	http.Error(w, message, status)
}

// statusFor はエラーをステータスコードとクライアント向けメッセージに変換する.
// 内部エラーの詳細はクライアントに返さない.
func statusFor(err error) (int, string) {
	var validationErr *domain.ValidationError
	var methodErr *domain.MethodNotAllowedError
	var upstreamErr *domain.UpstreamError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Message
	case errors.As(err, &methodErr):
		return http.StatusMethodNotAllowed, methodErr.Error()
	case errors.As(err, &upstreamErr):
		return http.StatusInternalServerError, "Upstream request failed"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}
