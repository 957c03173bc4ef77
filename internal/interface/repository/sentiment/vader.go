package sentiment

import (
	"github.com/jonreiter/govader"

	"gateway/internal/domain"
)

// Analyzer はVADERで compound スコアを計算する.
// 内部の辞書は読み取り専用のため、複数のリクエストから同時に呼び出せる.
type Analyzer struct {
	vader *govader.SentimentIntensityAnalyzer
}

var _ domain.Scorer = (*Analyzer)(nil)

// New は新しいAnalyzerインスタンスを作成
func New() *Analyzer {
	return &Analyzer{vader: govader.NewSentimentIntensityAnalyzer()}
}

// Score は [-1, 1] の compound スコアを返す
func (a *Analyzer) Score(text string) float64 {
	return a.vader.PolarityScores(text).Compound
}

// Func は関数を domain.Scorer として扱う
type Func func(text string) float64

func (f Func) Score(text string) float64 {
	return f(text)
}
