package usecase

import (
	"context"
	"fmt"

	"gateway/internal/domain"
)

// GatewayConfig はゲートウェイのユースケース設定
type GatewayConfig struct {
	LockPolicy string
	// PipelineBuffer はスコア付け済みコメントのチャネル容量
	PipelineBuffer int
}

// GatewayUseCase はキャッシュ経由で上流のレスポンスを返すユースケースを実装
type GatewayUseCase struct {
	loader         loader
	fetcher        domain.Fetcher
	comments       domain.CommentSource
	scorer         domain.Scorer
	reports        domain.ReportFactory
	metrics        domain.MetricsCollector
	logger         domain.Logger
	pipelineBuffer int
}

// NewGatewayUseCase は新しいGatewayUseCaseインスタンスを作成
func NewGatewayUseCase(
	cache domain.CacheManager,
	fetcher domain.Fetcher,
	comments domain.CommentSource,
	scorer domain.Scorer,
	reports domain.ReportFactory,
	metrics domain.MetricsCollector,
	logger domain.Logger,
	config GatewayConfig,
) (*GatewayUseCase, error) {
	l, err := newLoader(config.LockPolicy, cache, logger)
	if err != nil {
		return nil, err
	}
	if config.PipelineBuffer <= 0 {
		config.PipelineBuffer = 16
	}

	return &GatewayUseCase{
		loader:         l,
		fetcher:        fetcher,
		comments:       comments,
		scorer:         scorer,
		reports:        reports,
		metrics:        metrics,
		logger:         logger,
		pipelineBuffer: config.PipelineBuffer,
	}, nil
}

// Resolve は分類済みのリクエストに対するレスポンスを返す.
// 上流に届かなかった場合やIssueコメントの取得に失敗した場合は *domain.UpstreamError を包んだエラーを返す.
func (uc *GatewayUseCase) Resolve(ctx context.Context, route domain.Route) (*domain.CacheEntry, error) {
	var fetch fetchFunc
	switch route.Kind {
	case domain.RouteProxy:
		fetch = func(ctx context.Context) (*domain.CacheEntry, error) {
			return uc.fetchProxy(ctx, route)
		}
	case domain.RouteAnalysis:
		fetch = func(ctx context.Context) (*domain.CacheEntry, error) {
			return uc.fetchAnalysis(ctx, route)
		}
	default:
		return nil, fmt.Errorf("route %s has no upstream", route.Kind)
	}

	res, err := uc.loader.Load(ctx, route.Key, fetch)
	if err != nil {
		return nil, err
	}

	if res.Hit {
		uc.metrics.RecordCacheHit()
		uc.logger.Info("[CACHE HIT]", map[string]interface{}{
			"key": route.Key.String(),
		})
	} else if res.Shared {
		uc.logger.Debug("Joined in-flight fetch", map[string]interface{}{
			"key": route.Key.String(),
		})
	}
	return res.Entry, nil
}

func (uc *GatewayUseCase) fetchProxy(ctx context.Context, route domain.Route) (*domain.CacheEntry, error) {
	uc.recordMiss(route.Key)

	entry, err := uc.fetcher.Fetch(ctx, route.Proxy.RawQuery)
	if err != nil {
		uc.metrics.RecordUpstreamFetch(false)
		return nil, fmt.Errorf("fetch %s: %w", route.Key, err)
	}

	uc.metrics.RecordUpstreamFetch(entry.IsSuccess())
	if entry.IsSuccess() {
		uc.logger.Info("[API SUCCESS]", map[string]interface{}{
			"key":    route.Key.String(),
			"status": entry.StatusCode,
		})
	} else {
		uc.logger.Error("[API ERROR]", nil, map[string]interface{}{
			"key":    route.Key.String(),
			"status": entry.StatusCode,
		})
	}
	return entry, nil
}

func (uc *GatewayUseCase) fetchAnalysis(ctx context.Context, route domain.Route) (*domain.CacheEntry, error) {
	uc.recordMiss(route.Key)

	req := *route.Analysis
	uc.logger.Info("Starting analysis", map[string]interface{}{
		"issue": req.String(),
	})

	entry, err := uc.analyze(ctx, req)
	if err != nil {
		uc.metrics.RecordUpstreamFetch(false)
		return nil, fmt.Errorf("analyze %s: %w", req, err)
	}

	uc.metrics.RecordUpstreamFetch(true)
	uc.logger.Info("Analysis completed", map[string]interface{}{
		"issue": req.String(),
	})
	return entry, nil
}

func (uc *GatewayUseCase) recordMiss(key domain.CacheKey) {
	uc.metrics.RecordCacheMiss()
	uc.logger.Info("[CACHE MISS]", map[string]interface{}{
		"key": key.String(),
	})
}
