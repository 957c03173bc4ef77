package connection

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"gateway/internal/domain"
)

// Config はコネクション単位の処理設定
type Config struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RetryAfter は過負荷で拒否したクライアントへ返す再試行までの時間
	RetryAfter time.Duration
}

// Server はコネクションから1つのリクエストを読み、ハンドラの結果を返して閉じる.
// ディスパッチ戦略はどの実行単位で ServeConn を呼ぶかだけを決める.
type Server struct {
	handler http.Handler
	config  Config
	metrics domain.MetricsCollector
	logger  domain.Logger
}

// NewServer は新しいServerインスタンスを作成
func NewServer(handler http.Handler, config Config, metrics domain.MetricsCollector, logger domain.Logger) *Server {
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 30 * time.Second
	}
	if config.RetryAfter == 0 {
		config.RetryAfter = time.Second
	}

	return &Server{
		handler: handler,
		config:  config,
		metrics: metrics,
		logger:  logger,
	}
}

// ServeConn はリクエストを処理してコネクションを閉じる. panicは呼び出し元に伝播しない.
func (s *Server) ServeConn(conn net.Conn) {
	ex := NewExchange(conn, s.metrics, s.config.WriteTimeout)
	defer func() {
		if err := ex.Close(); err != nil {
			s.logger.Debug("Failed to write response", map[string]interface{}{
				"remote_addr": conn.RemoteAddr().String(),
				"error":       err.Error(),
			})
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			s.metrics.RecordError()
			s.logger.Error("Panic in connection handler", fmt.Errorf("%v", rec), map[string]interface{}{
				"stack": string(debug.Stack()),
			})
			ex.WriteHeader(http.StatusInternalServerError)
		}
	}()

	req, err := ex.ReadRequest(s.config.ReadTimeout)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.logger.Debug("Failed to read request", map[string]interface{}{
				"remote_addr": conn.RemoteAddr().String(),
				"error":       err.Error(),
			})
			http.Error(ex, "Bad Request", http.StatusBadRequest)
		}
		return
	}

	s.handler.ServeHTTP(ex, req)
}

// Reject は過負荷のためコネクションを 503 と Retry-After で閉じる
func (s *Server) Reject(conn net.Conn) {
	ex := NewExchange(conn, s.metrics, s.config.WriteTimeout)
	defer ex.Close()

	// 未読のリクエストを残して閉じるとクライアントにはリセットに見えるため先に読む
	if _, err := ex.ReadRequest(s.config.ReadTimeout); err != nil {
		return
	}

	retryAfter := int(s.config.RetryAfter.Round(time.Second) / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}
	ex.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	http.Error(ex, "Service Unavailable", http.StatusServiceUnavailable)
}
