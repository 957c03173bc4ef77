package domain

import (
	"net/url"
	"strings"
	"time"
)

// CacheKey はリクエストを正規化した識別子 (メソッド + パス + ソート済みクエリ).
type CacheKey string

// NewCacheKey はメソッド、パス、クエリからCacheKeyを生成する.
// url.Values.Encode はキー順にソートするため、パラメータの順序は結果に影響しない.
func NewCacheKey(method, path string, query url.Values) CacheKey {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(' ')
	b.WriteString(path)
	if encoded := query.Encode(); encoded != "" {
		b.WriteByte('?')
		b.WriteString(encoded)
	}
	return CacheKey(b.String())
}

func (k CacheKey) String() string {
	return string(k)
}

// CacheManager はキャッシュ管理のインターフェース.
type CacheManager interface {
	Get(key CacheKey) (*CacheEntry, bool)
	Set(key CacheKey, entry *CacheEntry) error
	Len() int
}

// CacheEntry はキャッシュのエントリを表す. 書き込み後は変更しない.
type CacheEntry struct {
	Body        []byte
	ContentType string
	StatusCode  int
	CreatedAt   time.Time
}

// IsSuccess は上流のステータスが2xxかどうかを返す.
func (e *CacheEntry) IsSuccess() bool {
	return e.StatusCode >= 200 && e.StatusCode < 300
}
