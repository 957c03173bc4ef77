package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"gateway/internal/domain"
)

// analyze はコメントを受け取った順にスコア付けし、その順番のままレポートへ追記する.
// 全コメントの処理が終わるまでレスポンスは返さない.
func (uc *GatewayUseCase) analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.CacheEntry, error) {
	report, err := uc.reports(req)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	comments, errc := uc.comments.Comments(gctx, req)
	scored := make(chan domain.ScoredComment, uc.pipelineBuffer)

	// スコア付け
	g.Go(func() error {
		defer close(scored)
		for c := range comments {
			compound, err := uc.score(c.Body)
			if err != nil {
				return err
			}
			sc := domain.ScoredComment{
				Comment:  c,
				Compound: compound,
				Label:    domain.LabelFor(compound),
			}
			select {
			case scored <- sc:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return <-errc
	})

	// 到着順に追記
	g.Go(func() error {
		for sc := range scored {
			uc.logger.Debug("Comment scored", map[string]interface{}{
				"issue":    req.String(),
				"author":   sc.Comment.AuthorLogin,
				"compound": fmt.Sprintf("%.2f", sc.Compound),
				"label":    string(sc.Label),
			})
			if err := report.Append(sc); err != nil {
				return fmt.Errorf("append comment: %w", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	body, err := report.Finish()
	if err != nil {
		return nil, fmt.Errorf("finish report: %w", err)
	}

	return &domain.CacheEntry{
		Body:        body,
		ContentType: report.ContentType(),
		StatusCode:  200,
		CreatedAt:   time.Now(),
	}, nil
}

// score はスコアラーのpanicをエラーに変換し、結果を [-1, 1] に収める.
func (uc *GatewayUseCase) score(text string) (compound float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scorer panicked: %v", r)
		}
	}()

	compound = uc.scorer.Score(text)
	if math.IsNaN(compound) {
		return 0, nil
	}
	return math.Max(-1, math.Min(1, compound)), nil
}
