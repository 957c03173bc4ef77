package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"gateway/internal/domain"
)

// WeatherConfig は天気APIの設定.
type WeatherConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// WeatherFetcher は元のクエリ文字列にAPIキーを付けて天気APIを呼び出す.
// 1回だけ呼び出し、リトライはしない.
type WeatherFetcher struct {
	client  *http.Client
	baseURL string
	apiKey  string
	timeout time.Duration
}

var _ domain.Fetcher = (*WeatherFetcher)(nil)

// NewWeatherFetcher は新しいWeatherFetcherインスタンスを作成
func NewWeatherFetcher(client *http.Client, cfg WeatherConfig) *WeatherFetcher {
	return &WeatherFetcher{
		client:  client,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
	}
}

// Fetch は上流のレスポンスボディとステータスを返す. 非2xxでもボディを返す.
// 通信自体に失敗した場合のみ *domain.UpstreamError を返す.
func (f *WeatherFetcher) Fetch(ctx context.Context, rawQuery string) (*domain.CacheEntry, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.buildURL(rawQuery), nil)
	if err != nil {
		return nil, &domain.UpstreamError{Target: f.baseURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Target: f.baseURL, Err: redact(err, f.apiKey)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.UpstreamError{Target: f.baseURL, Err: fmt.Errorf("read body: %w", err)}
	}

	return &domain.CacheEntry{
		Body:        body,
		ContentType: "application/json",
		StatusCode:  resp.StatusCode,
		CreatedAt:   time.Now(),
	}, nil
}

// buildURL は "base?key=<apiKey>&<元のクエリ>" を組み立てる.
func (f *WeatherFetcher) buildURL(rawQuery string) string {
	u := f.baseURL + "?key=" + url.QueryEscape(f.apiKey)
	if rawQuery != "" {
		u += "&" + rawQuery
	}
	return u
}

// redact はエラーメッセージに含まれるURLからAPIキーを取り除く.
func redact(err error, apiKey string) error {
	var urlErr *url.Error
	if apiKey == "" || !errors.As(err, &urlErr) {
		return err
	}
	if u, perr := url.Parse(urlErr.URL); perr == nil {
		q := u.Query()
		if q.Has("key") {
			q.Set("key", "REDACTED")
			u.RawQuery = q.Encode()
		}
		return &url.Error{Op: urlErr.Op, URL: u.String(), Err: urlErr.Err}
	}
	return err
}
