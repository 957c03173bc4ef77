package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"gateway/internal/domain"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// Middleware はハンドラをラップする.
type Middleware func(http.Handler) http.Handler

// Chain はミドルウェアを外側から順に適用する.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequestID はリクエストごとにIDを割り当て、X-Request-ID ヘッダで返す.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.New().String()
			}

			w.Header().Set("X-Request-ID", reqID)
			ctx := context.WithValue(r.Context(), requestIDKey, reqID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID はコンテキストからリクエストIDを取り出す.
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey).(string); ok {
		return reqID
	}
	return ""
}

// Logging はリクエストの受信と、ステータスおよび処理時間を記録する.
func Logging(logger domain.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := GetRequestID(r.Context())
			logger.Debug("Request received", map[string]interface{}{
				"method":      r.Method,
				"url":         r.URL.String(),
				"remote_addr": r.RemoteAddr,
				"request_id":  reqID,
			})

			wrapped := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(wrapped, r)

			elapsed := time.Since(start)
			logger.Info("Request completed", map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.status(),
				"bytes":       wrapped.written,
				"duration":    elapsed.String(),
				"duration_ms": elapsed.Milliseconds(),
				"request_id":  reqID,
			})
		})
	}
}

// Recovery はハンドラのpanicを500に変換し、ディスパッチループまで伝播させない.
func Recovery(logger domain.Logger, metrics domain.MetricsCollector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					metrics.RecordError()
					logger.Error("Panic recovered", fmt.Errorf("%v", rec), map[string]interface{}{
						"stack":      string(debug.Stack()),
						"request_id": GetRequestID(r.Context()),
					})
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder はステータスコードと書き込みバイト数を記録する.
type statusRecorder struct {
	http.ResponseWriter
	code    int
	written int64
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.code == 0 {
		rw.code = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(p []byte) (int, error) {
	if rw.code == 0 {
		rw.code = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(p)
	rw.written += int64(n)
	return n, err
}

func (rw *statusRecorder) status() int {
	if rw.code == 0 {
		return http.StatusOK
	}
	return rw.code
}
