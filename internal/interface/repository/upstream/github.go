package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gateway/internal/domain"
)

const defaultUserAgent = "gateway-sentiment/1.0"

// GitHubConfig はGitHub APIの設定.
type GitHubConfig struct {
	BaseURL   string
	Token     string
	UserAgent string
	Timeout   time.Duration
}

// GitHubSource はIssueコメントを取得し、デコードした順に流す.
type GitHubSource struct {
	client    *http.Client
	baseURL   string
	token     string
	userAgent string
	timeout   time.Duration
}

var _ domain.CommentSource = (*GitHubSource)(nil)

type ghComment struct {
	Body string `json:"body"`
	User struct {
		Login string `json:"login"`
	} `json:"user"`
}

// NewGitHubSource は新しいGitHubSourceインスタンスを作成
func NewGitHubSource(client *http.Client, cfg GitHubConfig) *GitHubSource {
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &GitHubSource{
		client:    client,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.Token,
		userAgent: ua,
		timeout:   cfg.Timeout,
	}
}

// Comments はコメントを到着順に流す. コメントチャネルが閉じた後、
// エラーチャネルに失敗が高々1件入り、その後閉じられる.
func (s *GitHubSource) Comments(
	ctx context.Context, req domain.AnalysisRequest,
) (<-chan domain.Comment, <-chan error) {
	out := make(chan domain.Comment)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(out)

		if err := s.stream(ctx, req, out); err != nil {
			errc <- err
		}
	}()

	return out, errc
}

func (s *GitHubSource) stream(ctx context.Context, req domain.AnalysisRequest, out chan<- domain.Comment) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	target := s.commentsURL(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &domain.UpstreamError{Target: target, Err: err}
	}
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	httpReq.Header.Set("User-Agent", s.userAgent)
	if s.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return &domain.UpstreamError{Target: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return &domain.UpstreamError{Target: target, StatusCode: resp.StatusCode}
	}

	dec := json.NewDecoder(resp.Body)
	if err := expectDelim(dec, '['); err != nil {
		return &domain.UpstreamError{Target: target, Err: err}
	}

	for dec.More() {
		var c ghComment
		if err := dec.Decode(&c); err != nil {
			return &domain.UpstreamError{Target: target, Err: fmt.Errorf("decode comment: %w", err)}
		}

		select {
		case out <- domain.Comment{Body: c.Body, AuthorLogin: c.User.Login}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := expectDelim(dec, ']'); err != nil {
		return &domain.UpstreamError{Target: target, Err: err}
	}
	return nil
}

func (s *GitHubSource) commentsURL(req domain.AnalysisRequest) string {
	return fmt.Sprintf("%s/repos/%s/%s/issues/%s/comments",
		s.baseURL,
		url.PathEscape(req.Owner),
		url.PathEscape(req.Repo),
		strconv.Itoa(req.IssueID),
	)
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("unexpected token %v, want %q", tok, want)
	}
	return nil
}
