package connection

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"gateway/internal/domain"
)

// Exchange は1つのコネクション上の1回のリクエストとレスポンス.
// http.ResponseWriter を実装し、書き込まれた内容を Close でまとめて送信してコネクションを閉じる.
type Exchange struct {
	conn         net.Conn
	metrics      domain.MetricsCollector
	writeTimeout time.Duration

	header      http.Header
	status      int
	body        bytes.Buffer
	wroteHeader bool

	once     sync.Once
	closeErr error
}

var _ http.ResponseWriter = (*Exchange)(nil)

// NewExchange は新しいExchangeインスタンスを作成
func NewExchange(conn net.Conn, metrics domain.MetricsCollector, writeTimeout time.Duration) *Exchange {
	return &Exchange{
		conn:         conn,
		metrics:      metrics,
		writeTimeout: writeTimeout,
		header:       make(http.Header),
		status:       http.StatusOK,
	}
}

// ReadRequest はコネクションからHTTPリクエストを1つ読み込む
func (e *Exchange) ReadRequest(timeout time.Duration) (*http.Request, error) {
	if timeout > 0 {
		if err := e.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
	}

	req, err := http.ReadRequest(bufio.NewReader(e.conn))
	if err != nil {
		return nil, err
	}
	req.RemoteAddr = e.conn.RemoteAddr().String()
	return req, nil
}

func (e *Exchange) Header() http.Header {
	return e.header
}

// WriteHeader は最初の呼び出しのステータスのみ有効
func (e *Exchange) WriteHeader(code int) {
	if e.wroteHeader {
		return
	}
	e.wroteHeader = true
	e.status = code
}

func (e *Exchange) Write(p []byte) (int, error) {
	if !e.wroteHeader {
		e.WriteHeader(http.StatusOK)
	}
	return e.body.Write(p)
}

// Status は送信する(した)ステータスコードを返す
func (e *Exchange) Status() int {
	return e.status
}

// Close はステータス、ヘッダ、ボディを送信してコネクションを閉じる.
// 何度呼んでも送信は1回だけ.
func (e *Exchange) Close() error {
	e.once.Do(func() {
		e.closeErr = e.flush()
		if err := e.conn.Close(); err != nil && e.closeErr == nil {
			e.closeErr = err
		}
	})
	return e.closeErr
}

func (e *Exchange) flush() error {
	if e.writeTimeout > 0 {
		if err := e.conn.SetWriteDeadline(time.Now().Add(e.writeTimeout)); err != nil {
			return err
		}
	}

	e.header.Set("Connection", "close")
	resp := &http.Response{
		StatusCode:    e.status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        e.header,
		ContentLength: int64(e.body.Len()),
		Body:          io.NopCloser(&e.body),
		Close:         true,
	}

	n := int64(e.body.Len())
	if err := resp.Write(e.conn); err != nil {
		return err
	}
	e.metrics.AddBytesTransferred(n)
	return nil
}
