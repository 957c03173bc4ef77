package cache

import (
	"time"

	"gateway/internal/domain"
)

// Entry はキャッシュ内部で保持するエントリ
type Entry struct {
	Key         domain.CacheKey
	Data        []byte
	Size        int64
	ContentType string
	StatusCode  int
	CreatedAt   time.Time
	Compressed  bool
}

// NewEntry は新しいEntryインスタンスを作成
func NewEntry(
	key domain.CacheKey, data []byte, src *domain.CacheEntry, compressed bool,
) *Entry {
	createdAt := src.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &Entry{
		Key:         key,
		Data:        data,
		Size:        int64(len(data)),
		ContentType: src.ContentType,
		StatusCode:  src.StatusCode,
		CreatedAt:   createdAt,
		Compressed:  compressed,
	}
}
