package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"gateway/internal/domain"
	"gateway/internal/interface/connection"
)

const (
	StrategySpawn    = "spawn"
	StrategyPool     = "pool"
	StrategyPipeline = "pipeline"

	OverflowBlock  = "block"
	OverflowReject = "reject"
)

// ConnHandler は受け付けたコネクションを処理する
type ConnHandler interface {
	// ServeConn はリクエストを処理してコネクションを閉じる
	ServeConn(conn net.Conn)
	// Reject は処理せずに過負荷として応答してコネクションを閉じる
	Reject(conn net.Conn)
}

// Options はディスパッチ戦略の設定
type Options struct {
	Workers        int
	QueueSize      int
	Overflow       string
	PipelineBuffer int
}

// New は名前に対応するディスパッチ戦略を作成する
func New(
	strategy string, handler ConnHandler, opts Options,
	metrics domain.MetricsCollector, logger domain.Logger,
) (domain.Dispatcher, error) {
	switch strategy {
	case StrategySpawn:
		return NewSpawn(handler, metrics, logger), nil
	case StrategyPool:
		p, err := NewPool(handler, opts, metrics, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case StrategyPipeline:
		return NewPipeline(handler, opts, metrics, logger), nil
	default:
		return nil, fmt.Errorf("unknown dispatch strategy %q", strategy)
	}
}

// lifecycle は全戦略に共通の状態遷移と受け付けループ
type lifecycle struct {
	name     string
	state    atomic.Int32
	handler  ConnHandler
	inflight *connection.Manager
	metrics  domain.MetricsCollector
	logger   domain.Logger

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
}

func newLifecycle(
	name string, handler ConnHandler, metrics domain.MetricsCollector, logger domain.Logger,
) lifecycle {
	return lifecycle{
		name:     name,
		handler:  handler,
		inflight: connection.NewManager(metrics),
		metrics:  metrics,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

func (l *lifecycle) Name() string {
	return l.name
}

func (l *lifecycle) State() domain.State {
	return domain.State(l.state.Load())
}

// begin は Idle から Listening へ遷移する. 1つのディスパッチャは1回だけ起動できる.
func (l *lifecycle) begin(ln net.Listener) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.state.CompareAndSwap(int32(domain.StateIdle), int32(domain.StateListening)) {
		return fmt.Errorf("%s dispatcher cannot serve in state %s", l.name, l.State())
	}
	l.listener = ln
	l.logger.Info("Dispatcher listening", map[string]interface{}{
		"strategy": l.name,
		"addr":     ln.Addr().String(),
	})
	return nil
}

// end は受け付けループの終了を通知する
func (l *lifecycle) end() {
	close(l.done)
}

// acceptLoop はリスナーが閉じられるまで受け付け、コネクションを schedule に渡す
func (l *lifecycle) acceptLoop(ln net.Listener, schedule func(net.Conn)) error {
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if te, ok := err.(interface{ Temporary() bool }); ok && te.Temporary() {
				backoff = nextBackoff(backoff)
				l.logger.Error("Temporary accept error", err, map[string]interface{}{
					"strategy": l.name,
					"retry_in": backoff.String(),
				})
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		backoff = 0

		l.inflight.Track(conn)
		schedule(conn)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}

// serve はコネクションを処理し、処理中の記録から外す
func (l *lifecycle) serve(conn net.Conn) {
	defer func() {
		elapsed := l.inflight.Done(conn)
		l.logger.Debug("Connection finished", map[string]interface{}{
			"strategy": l.name,
			"elapsed":  elapsed.String(),
		})
	}()
	l.handler.ServeConn(conn)
}

// reject は過負荷としてコネクションを閉じる
func (l *lifecycle) reject(conn net.Conn) {
	defer l.inflight.Done(conn)
	l.metrics.RecordRejected()
	l.logger.Info("Connection rejected", map[string]interface{}{
		"strategy":    l.name,
		"remote_addr": conn.RemoteAddr().String(),
	})
	l.handler.Reject(conn)
}

// Shutdown は受け付けを止め、処理中のコネクションが終わるまで ctx の期限まで待つ
func (l *lifecycle) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	switch l.State() {
	case domain.StateIdle:
		l.state.Store(int32(domain.StateStopped))
		l.mu.Unlock()
		return nil
	case domain.StateListening:
		l.state.Store(int32(domain.StateStopping))
		if err := l.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			l.logger.Error("Failed to close listener", err, nil)
		}
	}
	l.mu.Unlock()

	l.logger.Info("Dispatcher stopping", map[string]interface{}{
		"strategy":  l.name,
		"in_flight": l.inflight.Active(),
	})

	select {
	case <-l.done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for accept loop: %w", ctx.Err())
	}
	if err := l.inflight.Wait(ctx); err != nil {
		return fmt.Errorf("%d connections still in flight (oldest %s): %w",
			l.inflight.Active(), l.inflight.Oldest(), err)
	}

	l.state.Store(int32(domain.StateStopped))
	l.logger.Info("Dispatcher stopped", map[string]interface{}{
		"strategy": l.name,
	})
	return nil
}
