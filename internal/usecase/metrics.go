package usecase

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"gateway/internal/domain"
)

// MetricsUseCase はメトリクス関連のユースケースを実装
type MetricsUseCase struct {
	metrics      domain.MetricsCollector
	logger       domain.Logger
	saveInterval time.Duration
	cron         *cron.Cron
}

// MetricsConfig はメトリクスの設定を表す
type MetricsConfig struct {
	SaveInterval time.Duration
}

// NewMetricsUseCase は新しいMetricsUseCaseインスタンスを作成
func NewMetricsUseCase(
	metrics domain.MetricsCollector, logger domain.Logger, config MetricsConfig,
) *MetricsUseCase {
	if config.SaveInterval == 0 {
		config.SaveInterval = 1 * time.Minute
	}

	return &MetricsUseCase{
		metrics:      metrics,
		logger:       logger,
		saveInterval: config.SaveInterval,
	}
}

// Start は定期的なメトリクス保存を開始
func (uc *MetricsUseCase) Start() error {
	c := cron.New()
	schedule := fmt.Sprintf("@every %s", uc.saveInterval)
	if _, err := c.AddFunc(schedule, uc.save); err != nil {
		return fmt.Errorf("failed to schedule metrics save: %w", err)
	}

	uc.logger.Info("Starting metrics collection", map[string]interface{}{
		"save_interval": uc.saveInterval.String(),
	})
	uc.cron = c
	c.Start()
	return nil
}

// Stop は定期保存を止め、最後のスナップショットを保存する
func (uc *MetricsUseCase) Stop() error {
	if uc.cron == nil {
		return nil
	}
	<-uc.cron.Stop().Done()
	uc.cron = nil

	uc.logger.Info("Stopping metrics collection", nil)
	return uc.saveMetrics()
}

func (uc *MetricsUseCase) save() {
	if err := uc.saveMetrics(); err != nil {
		uc.logger.Error("Failed to save metrics", err, nil)
	}
}

// saveMetrics は現在のメトリクスを保存
func (uc *MetricsUseCase) saveMetrics() error {
	// メトリクスの保存処理をリポジトリに委譲
	if saver, ok := uc.metrics.(interface {
		SaveMetrics(*domain.MetricsSnapshot) error
	}); ok {
		return saver.SaveMetrics(uc.GetMetricsSnapshot())
	}

	return nil
}

// GetMetricsSnapshot は現在のメトリクスのスナップショットを取得
func (uc *MetricsUseCase) GetMetricsSnapshot() *domain.MetricsSnapshot {
	return uc.metrics.GetSnapshot()
}
