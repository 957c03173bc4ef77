package domain

import (
	"context"
	"net"
)

// State はディスパッチャのライフサイクル状態.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Dispatcher はコネクションを実行単位へ割り当てるスケジューリングポリシー.
type Dispatcher interface {
	// Serve はリスナーが閉じられるまで受け付けを続ける. 閉じられた場合は nil を返す.
	Serve(ln net.Listener) error
	// Shutdown は受け付けを止め、処理中のハンドラの完了を ctx の期限まで待つ.
	Shutdown(ctx context.Context) error
	State() State
	Name() string
}
