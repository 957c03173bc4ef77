package dispatch

import (
	"fmt"
	"net"

	"gateway/internal/domain"
)

// Pool は固定数のワーカーが容量付きのキューからコネクションを取り出して処理する.
// キューが一杯のときは Overflow に従い、受け付けを待たせるか 503 で拒否する.
type Pool struct {
	lifecycle
	workers  int
	overflow string
	queue    chan net.Conn
}

// NewPool は新しいPoolインスタンスを作成
func NewPool(
	handler ConnHandler, opts Options, metrics domain.MetricsCollector, logger domain.Logger,
) (*Pool, error) {
	if opts.Workers <= 0 {
		return nil, fmt.Errorf("pool needs at least one worker, got %d", opts.Workers)
	}
	if opts.QueueSize < 0 {
		return nil, fmt.Errorf("pool queue size must not be negative, got %d", opts.QueueSize)
	}
	switch opts.Overflow {
	case "":
		opts.Overflow = OverflowBlock
	case OverflowBlock, OverflowReject:
	default:
		return nil, fmt.Errorf("unknown overflow policy %q", opts.Overflow)
	}

	return &Pool{
		lifecycle: newLifecycle(StrategyPool, handler, metrics, logger),
		workers:   opts.Workers,
		overflow:  opts.Overflow,
		queue:     make(chan net.Conn, opts.QueueSize),
	}, nil
}

func (p *Pool) Serve(ln net.Listener) error {
	if err := p.begin(ln); err != nil {
		return err
	}
	defer p.end()

	for i := 0; i < p.workers; i++ {
		go p.work()
	}

	err := p.acceptLoop(ln, p.enqueue)

	// ワーカーはキューに残ったコネクションを処理してから終了する
	close(p.queue)
	return err
}

func (p *Pool) work() {
	for conn := range p.queue {
		p.serve(conn)
	}
}

func (p *Pool) enqueue(conn net.Conn) {
	if p.overflow == OverflowBlock {
		p.queue <- conn
		return
	}

	select {
	case p.queue <- conn:
	default:
		go p.reject(conn)
	}
}
