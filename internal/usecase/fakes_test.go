package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-logr/logr/testr"

	"gateway/internal/domain"
	"gateway/internal/interface/repository/cache"
	"gateway/internal/interface/repository/logger"
	"gateway/internal/interface/repository/metrics"
)

// fakeFetcher はキーごとに呼び出し回数を数え、gate が閉じられるまで待つ.
type fakeFetcher struct {
	calls   atomic.Int64
	started chan string
	gates   map[string]chan struct{}
	status  int
	err     error
	mu      sync.Mutex
	byQuery map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		started: make(chan string, 64),
		gates:   make(map[string]chan struct{}),
		status:  200,
		byQuery: make(map[string]int),
	}
}

func (f *fakeFetcher) gate(rawQuery string) chan struct{} {
	ch := make(chan struct{})
	f.gates[rawQuery] = ch
	return ch
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawQuery string) (*domain.CacheEntry, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.byQuery[rawQuery]++
	f.mu.Unlock()
	f.started <- rawQuery

	if g, ok := f.gates[rawQuery]; ok {
		<-g
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.CacheEntry{
		Body:        []byte(fmt.Sprintf(`{"query":%q}`, rawQuery)),
		ContentType: "application/json",
		StatusCode:  f.status,
	}, nil
}

// fakeComments は固定のコメントを順に流す.
type fakeComments struct {
	comments []domain.Comment
	err      error
}

func (f *fakeComments) Comments(ctx context.Context, req domain.AnalysisRequest) (<-chan domain.Comment, <-chan error) {
	out := make(chan domain.Comment)
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		defer close(out)
		for _, c := range f.comments {
			select {
			case out <- c:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if f.err != nil {
			errc <- f.err
		}
	}()
	return out, errc
}

// textReport は "author|label|score" を1行ずつ出力する.
type textReport struct {
	b strings.Builder
}

func (r *textReport) Append(sc domain.ScoredComment) error {
	fmt.Fprintf(&r.b, "%s|%s|%.2f\n", sc.Comment.AuthorLogin, sc.Label, sc.Compound)
	return nil
}

func (r *textReport) Finish() ([]byte, error) { return []byte(r.b.String()), nil }

func (r *textReport) ContentType() string { return "text/plain" }

func textReports(domain.AnalysisRequest) (domain.ReportBuilder, error) {
	return &textReport{}, nil
}

// scoreByBody はコメント本文に対応する固定スコアを返す.
type scoreByBody map[string]float64

func (s scoreByBody) Score(text string) float64 { return s[text] }

type fixture struct {
	uc       *GatewayUseCase
	cache    *cache.Repository
	fetcher  *fakeFetcher
	comments *fakeComments
	metrics  *metrics.Repository
}

func newFixture(t *testing.T, policy string, scorer domain.Scorer) *fixture {
	t.Helper()
	f := &fixture{
		cache:    cache.New(),
		fetcher:  newFakeFetcher(),
		comments: &fakeComments{},
		metrics:  metrics.New(t.TempDir() + "/metrics.json"),
	}
	if scorer == nil {
		scorer = scoreByBody{}
	}
	uc, err := NewGatewayUseCase(
		f.cache, f.fetcher, f.comments, scorer, textReports, f.metrics,
		logger.NewFromLogr(testr.New(t)),
		GatewayConfig{LockPolicy: policy},
	)
	if err != nil {
		t.Fatalf("NewGatewayUseCase: %v", err)
	}
	f.uc = uc
	return f
}

func proxyRoute(query string) domain.Route {
	return domain.Route{
		Kind:  domain.RouteProxy,
		Key:   domain.CacheKey("GET /?" + query),
		Proxy: &domain.ProxyRequest{RawQuery: query},
	}
}

func analysisRoute(owner, repo string, id int) domain.Route {
	return domain.Route{
		Kind:     domain.RouteAnalysis,
		Key:      domain.CacheKey(fmt.Sprintf("GET /analyze/%s/%s/%d", owner, repo, id)),
		Analysis: &domain.AnalysisRequest{Owner: owner, Repo: repo, IssueID: id},
	}
}
