package dispatch

import (
	"net"

	"gateway/internal/domain"
)

// Spawn はコネクションごとにgoroutineを起動する. 同時実行数に上限はない.
type Spawn struct {
	lifecycle
}

// NewSpawn は新しいSpawnインスタンスを作成
func NewSpawn(handler ConnHandler, metrics domain.MetricsCollector, logger domain.Logger) *Spawn {
	return &Spawn{lifecycle: newLifecycle(StrategySpawn, handler, metrics, logger)}
}

func (s *Spawn) Serve(ln net.Listener) error {
	if err := s.begin(ln); err != nil {
		return err
	}
	defer s.end()

	return s.acceptLoop(ln, func(conn net.Conn) {
		go s.serve(conn)
	})
}
