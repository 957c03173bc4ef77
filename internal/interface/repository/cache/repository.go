package cache

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/gzip"

	"gateway/internal/domain"
)

const (
	DefaultShards            = 32
	DefaultCompressThreshold = 1024
)

// Repository はキャッシュのリポジトリ実装.
// キーはxxhashでシャードに振り分け、シャードごとのロックで保護する.
// 削除や期限切れは行わないため、ユニークなキーが増え続けるとメモリも増え続ける.
type Repository struct {
	shards            []*shard
	compressThreshold int
	currSize          atomic.Int64
	count             atomic.Int64
}

type shard struct {
	mu      sync.RWMutex
	entries map[domain.CacheKey]*Entry
}

// Option はRepositoryの設定を変更する
type Option func(*Repository)

// WithShards はシャード数を設定する
func WithShards(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.shards = make([]*shard, n)
		}
	}
}

// WithCompressThreshold は圧縮を試みるサイズの下限を設定する. 0以下で圧縮を無効化.
func WithCompressThreshold(n int) Option {
	return func(r *Repository) {
		r.compressThreshold = n
	}
}

// Verify interface implementation
var _ domain.CacheManager = (*Repository)(nil)

// New は新しいRepositoryインスタンスを作成
func New(opts ...Option) *Repository {
	r := &Repository{
		shards:            make([]*shard, DefaultShards),
		compressThreshold: DefaultCompressThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[domain.CacheKey]*Entry)}
	}
	return r
}

// Get はキャッシュからデータを取得
func (r *Repository) Get(key domain.CacheKey) (*domain.CacheEntry, bool) {
	s := r.shardFor(key)
	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return nil, false
	}

	data := entry.Data
	if entry.Compressed {
		var err error
		if data, err = decompress(data); err != nil {
			return nil, false
		}
	} else {
		data = bytes.Clone(data)
	}

	return &domain.CacheEntry{
		Body:        data,
		ContentType: entry.ContentType,
		StatusCode:  entry.StatusCode,
		CreatedAt:   entry.CreatedAt,
	}, true
}

// Set はキャッシュにデータを保存. 同じキーのエントリは置き換える.
func (r *Repository) Set(key domain.CacheKey, entry *domain.CacheEntry) error {
	if entry == nil {
		return errors.New("cache: nil entry")
	}

	data := bytes.Clone(entry.Body)
	compressed := false

	// 大きなデータの場合は圧縮を試みる
	if r.compressThreshold > 0 && len(data) > r.compressThreshold {
		if compData, err := compress(data); err == nil && len(compData) < len(data) {
			data = compData
			compressed = true
		}
	}

	stored := NewEntry(key, data, entry, compressed)

	s := r.shardFor(key)
	s.mu.Lock()
	old, existed := s.entries[key]
	s.entries[key] = stored
	s.mu.Unlock()

	if existed {
		r.currSize.Add(stored.Size - old.Size)
	} else {
		r.currSize.Add(stored.Size)
		r.count.Add(1)
	}
	return nil
}

// Len は保持しているエントリ数を返す
func (r *Repository) Len() int {
	return int(r.count.Load())
}

// Size は保持しているデータの合計バイト数 (圧縮後) を返す
func (r *Repository) Size() int64 {
	return r.currSize.Load()
}

func (r *Repository) shardFor(key domain.CacheKey) *shard {
	return r.shards[xxhash.Sum64String(string(key))%uint64(len(r.shards))]
}

// compress はデータをgzip圧縮する
func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)

	if _, err := gz.Write(data); err != nil {
		return nil, err
	}

	if err := gz.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// decompress はgzip圧縮されたデータを展開する
func decompress(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	return io.ReadAll(gz)
}
