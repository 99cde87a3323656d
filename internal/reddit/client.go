// Package reddit はRedditの公開検索APIのクライアントを提供する。
// 認証不要の検索エンドポイントを使用し、結果を固定スキーマに整形する。
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hitoshi/moonapi/internal/metrics"
	"github.com/hitoshi/moonapi/internal/model"
	"github.com/hitoshi/moonapi/internal/security"
)

// canonicalPostURL は投稿の正規URLのプレフィックス。
// 検索には差し替え可能なBaseURLを使うが、レスポンス内のURLは常に正規ホストを指す。
const canonicalPostURL = "https://www.reddit.com"

// metricsService はアップストリームメトリクスのserviceラベル値。
const metricsService = "reddit"

// ClientConfig はRedditクライアントの設定。
type ClientConfig struct {
	// BaseURL は検索エンドポイントのベースURL。テスト用に差し替え可能。
	BaseURL string
	// UserAgent はReddit APIガイドラインで必須のUser-Agent値。
	UserAgent string
}

// Client はRedditの公開検索APIのクライアント。
// 接続設定以外の状態を持たない。
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	sanitizer  security.ContentSanitizerService
	metrics    metrics.Recorder // nilの場合は記録しない
}

// NewClient はClientを生成する。
// httpClientにはタイムアウト設定済みのクライアントを渡す。
func NewClient(config ClientConfig, httpClient *http.Client, sanitizer security.ContentSanitizerService, recorder metrics.Recorder) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		config:     config,
		httpClient: httpClient,
		sanitizer:  sanitizer,
		metrics:    recorder,
	}
}

// listing はReddit検索APIのレスポンス構造。必要なフィールドのみ定義する。
type listing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID          string  `json:"id"`
				Title       string  `json:"title"`
				Selftext    string  `json:"selftext"`
				Subreddit   string  `json:"subreddit"`
				Score       int     `json:"score"`
				NumComments int     `json:"num_comments"`
				CreatedUTC  float64 `json:"created_utc"`
				Permalink   string  `json:"permalink"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Search はキーワードで全Reddit横断の検索を1回実行し、
// 結果をフロントエンド向けの固定スキーマに整形して返す。
// limitの範囲検証は呼び出し側で行う。リトライは行わない。
func (c *Client) Search(ctx context.Context, keyword string, limit int) ([]model.Post, error) {
	endpoint := c.config.BaseURL + "/search.json"

	query := url.Values{
		"q":        {keyword},
		"limit":    {strconv.Itoa(limit)},
		"raw_json": {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reddit search request failed: %w", err)
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordUpstreamStatus(metricsService, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	var result listing
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	posts := make([]model.Post, 0, len(result.Data.Children))
	for _, child := range result.Data.Children {
		d := child.Data

		selftext := d.Selftext
		if c.sanitizer != nil {
			selftext = c.sanitizer.Sanitize(selftext)
		}

		posts = append(posts, model.Post{
			ID:          d.ID,
			Title:       d.Title,
			Selftext:    selftext,
			Subreddit:   d.Subreddit,
			Score:       d.Score,
			NumComments: d.NumComments,
			CreatedUTC:  d.CreatedUTC,
			CreatedDate: formatCreatedDate(d.CreatedUTC),
			URL:         canonicalPostURL + d.Permalink,
		})
	}

	return posts, nil
}

// formatCreatedDate はUnix秒をUTCの人間可読な日時文字列に整形する。
func formatCreatedDate(createdUTC float64) string {
	return time.Unix(int64(createdUTC), 0).UTC().Format("2006-01-02 15:04:05")
}
