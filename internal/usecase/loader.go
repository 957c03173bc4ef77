package usecase

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"gateway/internal/domain"
)

const (
	// LockSingleFlight は同じキーの同時ミスを1回のフェッチにまとめ、異なるキーは並列に処理する.
	LockSingleFlight = "singleflight"
	// LockGlobal は確認・取得・書き込みを1つのロックで囲む. キーAのミスがキーBのミスを待たせる.
	LockGlobal = "global"
)

// LoadResult はキャッシュ経由の取得結果.
type LoadResult struct {
	Entry *domain.CacheEntry
	// Hit はキャッシュから返した場合にtrue.
	Hit bool
	// Shared は他のリクエストが実行したフェッチの結果を受け取った場合にtrue.
	Shared bool
}

type fetchFunc func(ctx context.Context) (*domain.CacheEntry, error)

// loader はキャッシュの確認、ミス時の取得、成功時の書き込みを行う.
type loader interface {
	Load(ctx context.Context, key domain.CacheKey, fetch fetchFunc) (LoadResult, error)
}

func newLoader(policy string, cache domain.CacheManager, logger domain.Logger) (loader, error) {
	switch policy {
	case "", LockSingleFlight:
		return &singleFlightLoader{cache: cache, logger: logger}, nil
	case LockGlobal:
		return &globalLockLoader{cache: cache, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown cache locking policy %q", policy)
	}
}

type singleFlightLoader struct {
	cache  domain.CacheManager
	logger domain.Logger
	group  singleflight.Group
}

func (l *singleFlightLoader) Load(
	ctx context.Context, key domain.CacheKey, fetch fetchFunc,
) (LoadResult, error) {
	if entry, ok := l.cache.Get(key); ok {
		return LoadResult{Entry: entry, Hit: true}, nil
	}

	// 待機している他のリクエストがいるため、最初の呼び出し元のキャンセルを伝播させない
	flightCtx := context.WithoutCancel(ctx)

	v, err, shared := l.group.Do(string(key), func() (interface{}, error) {
		// Get と Do の間に別のフライトが完了している場合がある
		if entry, ok := l.cache.Get(key); ok {
			return LoadResult{Entry: entry, Hit: true}, nil
		}

		entry, err := fetch(flightCtx)
		if err != nil {
			return nil, err
		}
		store(l.cache, l.logger, key, entry)
		return LoadResult{Entry: entry}, nil
	})
	if err != nil {
		return LoadResult{}, err
	}

	res := v.(LoadResult)
	res.Shared = shared
	return res, nil
}

type globalLockLoader struct {
	mu     sync.Mutex
	cache  domain.CacheManager
	logger domain.Logger
}

func (l *globalLockLoader) Load(
	ctx context.Context, key domain.CacheKey, fetch fetchFunc,
) (LoadResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.cache.Get(key); ok {
		return LoadResult{Entry: entry, Hit: true}, nil
	}

	entry, err := fetch(ctx)
	if err != nil {
		return LoadResult{}, err
	}
	store(l.cache, l.logger, key, entry)
	return LoadResult{Entry: entry}, nil
}

// store は成功したレスポンスのみキャッシュに書き込む.
func store(cache domain.CacheManager, logger domain.Logger, key domain.CacheKey, entry *domain.CacheEntry) {
	if !entry.IsSuccess() {
		return
	}
	if err := cache.Set(key, entry); err != nil {
		logger.Error("Failed to store cache entry", err, map[string]interface{}{
			"key": key.String(),
		})
	}
}
