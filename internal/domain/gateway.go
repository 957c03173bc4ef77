package domain

import (
	"context"
	"fmt"
)

// RouteKind はリクエストの分類を表す.
type RouteKind int

const (
	RouteProxy RouteKind = iota
	RouteAnalysis
	RouteFavicon
)

func (k RouteKind) String() string {
	switch k {
	case RouteProxy:
		return "proxy"
	case RouteAnalysis:
		return "analysis"
	case RouteFavicon:
		return "favicon"
	default:
		return fmt.Sprintf("RouteKind(%d)", int(k))
	}
}

// Route は分類済みのリクエストを表す. Kind に応じて Proxy か Analysis のどちらかが設定される.
type Route struct {
	Kind     RouteKind
	Key      CacheKey
	Proxy    *ProxyRequest
	Analysis *AnalysisRequest
}

// ProxyRequest は上流APIへそのまま転送するリクエスト.
type ProxyRequest struct {
	RawQuery string
}

// AnalysisRequest はIssueコメントの感情分析リクエスト.
type AnalysisRequest struct {
	Owner   string
	Repo    string
	IssueID int
}

func (r AnalysisRequest) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.IssueID)
}

// Comment は上流から取得したIssueコメント.
type Comment struct {
	Body        string
	AuthorLogin string
}

// SentimentLabel は感情スコアの分類.
type SentimentLabel string

const (
	Positive SentimentLabel = "Positive"
	Negative SentimentLabel = "Negative"
	Neutral  SentimentLabel = "Neutral"
)

// LabelFor は compound スコアをラベルに変換する.
func LabelFor(compound float64) SentimentLabel {
	switch {
	case compound >= 0.05:
		return Positive
	case compound <= -0.05:
		return Negative
	default:
		return Neutral
	}
}

// ScoredComment はスコア付きのコメント.
type ScoredComment struct {
	Comment  Comment
	Compound float64
	Label    SentimentLabel
}

// Fetcher は上流APIからレスポンスを取得する.
// 上流が非2xxを返した場合もエラーにはせず、ステータス付きで返す.
type Fetcher interface {
	Fetch(ctx context.Context, rawQuery string) (*CacheEntry, error)
}

// CommentSource はIssueコメントを到着順に流す.
// コメントチャネルが閉じた後、エラーチャネルから高々1つのエラーを受け取る.
type CommentSource interface {
	Comments(ctx context.Context, req AnalysisRequest) (<-chan Comment, <-chan error)
}

// Scorer はテキストの感情スコアを [-1, 1] で返す.
type Scorer interface {
	Score(text string) float64
}

// ReportBuilder はスコア付きコメントを到着順に追記してレスポンスボディを組み立てる.
type ReportBuilder interface {
	Append(sc ScoredComment) error
	Finish() ([]byte, error)
	ContentType() string
}

// ReportFactory はリクエストごとに新しいReportBuilderを作成する.
type ReportFactory func(req AnalysisRequest) (ReportBuilder, error)
