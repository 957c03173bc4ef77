package dispatch

import (
	"net"

	"gateway/internal/domain"
)

const defaultPipelineBuffer = 64

// Pipeline は受け付けたコネクションを順序付きのチャネルに流し、
// 別のgoroutineがそれを順に取り出してハンドラを非同期に起動する.
// 取り出し側はハンドラの完了を待たない.
type Pipeline struct {
	lifecycle
	buffer int
}

// NewPipeline は新しいPipelineインスタンスを作成
func NewPipeline(
	handler ConnHandler, opts Options, metrics domain.MetricsCollector, logger domain.Logger,
) *Pipeline {
	buffer := opts.PipelineBuffer
	if buffer <= 0 {
		buffer = defaultPipelineBuffer
	}
	return &Pipeline{
		lifecycle: newLifecycle(StrategyPipeline, handler, metrics, logger),
		buffer:    buffer,
	}
}

func (p *Pipeline) Serve(ln net.Listener) error {
	if err := p.begin(ln); err != nil {
		return err
	}
	defer p.end()

	conns := make(chan net.Conn, p.buffer)
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for conn := range conns {
			go p.serve(conn)
		}
	}()

	err := p.acceptLoop(ln, func(conn net.Conn) {
		conns <- conn
	})

	close(conns)
	<-consumed
	return err
}
