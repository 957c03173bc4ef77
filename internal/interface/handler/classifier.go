package handler

import (
	"net/http"
	"strconv"
	"strings"

	"gateway/internal/domain"
)

const (
	faviconPath     = "/favicon.ico"
	analyzeSegment  = "analyze"
	analyzeSegments = 4
)

// Classify はリクエストをファビコン・感情分析・上流プロキシのいずれかに分類する.
// パスが不正な場合は *domain.ValidationError を、GET/HEAD 以外は *domain.MethodNotAllowedError を返す.
func Classify(r *http.Request) (domain.Route, error) {
	if strings.EqualFold(r.URL.Path, faviconPath) {
		return domain.Route{Kind: domain.RouteFavicon}, nil
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return domain.Route{}, &domain.MethodNotAllowedError{Method: r.Method}
	}

	segments := splitPath(r.URL.Path)
	if len(segments) > 0 && strings.EqualFold(segments[0], analyzeSegment) {
		return classifyAnalysis(r.Method, segments)
	}

	return domain.Route{
		Kind:  domain.RouteProxy,
		Key:   domain.NewCacheKey(r.Method, r.URL.Path, r.URL.Query()),
		Proxy: &domain.ProxyRequest{RawQuery: r.URL.RawQuery},
	}, nil
}

func classifyAnalysis(method string, segments []string) (domain.Route, error) {
	if len(segments) != analyzeSegments {
		return domain.Route{}, &domain.ValidationError{
			Message: "invalid URL format, use /analyze/{owner}/{repo}/{issueId}",
		}
	}

	id, err := strconv.Atoi(segments[3])
	if err != nil {
		return domain.Route{}, &domain.ValidationError{Message: "issue id must be a number"}
	}
	if id <= 0 {
		return domain.Route{}, &domain.ValidationError{Message: "issue id must be positive"}
	}

	req := domain.AnalysisRequest{Owner: segments[1], Repo: segments[2], IssueID: id}
	path := "/" + strings.Join([]string{analyzeSegment, req.Owner, req.Repo, strconv.Itoa(id)}, "/")
	return domain.Route{
		Kind:     domain.RouteAnalysis,
		Key:      domain.NewCacheKey(method, path, nil),
		Analysis: &req,
	}, nil
}

// splitPath は空のセグメントを除いてパスを分割する.
func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
}
