package connection

import (
	"context"
	"net"
	"sync"
	"time"

	"gateway/internal/domain"
)

// Manager は受け付け済みで処理が終わっていないコネクションを管理する
type Manager struct {
	mu          sync.Mutex
	connections map[net.Conn]time.Time
	wg          sync.WaitGroup
	metrics     domain.MetricsCollector
}

// NewManager は新しいManagerインスタンスを作成
func NewManager(metrics domain.MetricsCollector) *Manager {
	return &Manager{
		connections: make(map[net.Conn]time.Time),
		metrics:     metrics,
	}
}

// Track は受け付けたコネクションを登録する. 処理が終わったら Done を呼ぶこと.
func (m *Manager) Track(conn net.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.wg.Add(1)
	m.connections[conn] = time.Now()
	m.metrics.IncrementConnections()
}

// Done はコネクションの処理完了を記録し、経過時間を返す
func (m *Manager) Done(conn net.Conn) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	acceptedAt, ok := m.connections[conn]
	if !ok {
		return 0
	}
	delete(m.connections, conn)
	m.metrics.DecrementConnections()
	m.wg.Done()
	return time.Since(acceptedAt)
}

// Active は処理中のコネクション数を返す
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.connections)
}

// Oldest は最も古い処理中コネクションの経過時間を返す
func (m *Manager) Oldest() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	var oldest time.Duration
	now := time.Now()
	for _, acceptedAt := range m.connections {
		if d := now.Sub(acceptedAt); d > oldest {
			oldest = d
		}
	}
	return oldest
}

// Wait は全てのコネクションの処理が終わるか ctx が終了するまで待つ.
// 処理中のハンドラは中断しない.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
