package domain

import (
	"fmt"
	"net/http"
)

// ValidationError はリクエストのパスやパラメータが不正な場合のエラー.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// MethodNotAllowedError はサポートしていないメソッドのエラー.
type MethodNotAllowedError struct {
	Method string
}

func (e *MethodNotAllowedError) Error() string {
	return fmt.Sprintf("method %s is not supported", e.Method)
}

// UpstreamError は上流APIの呼び出しが完了できなかったエラー.
// StatusCode は上流が応答した場合のみ設定される.
type UpstreamError struct {
	Target     string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s responded %d %s", e.Target, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("failed to reach upstream %s: %v", e.Target, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
