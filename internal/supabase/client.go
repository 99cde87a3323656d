// Package supabase はSupabase Auth (GoTrue) REST APIのクライアントを提供する。
// このシステムは認証の記録系を一切持たず、サインアップ・サインイン・
// トークンリフレッシュ・パスワードリセットをすべてプロバイダーに委譲する。
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hitoshi/moonapi/internal/auth"
	"github.com/hitoshi/moonapi/internal/metrics"
	"github.com/hitoshi/moonapi/internal/model"
)

// authPath はGoTrue認証エンドポイントのパスプレフィックス。
const authPath = "/auth/v1"

// metricsService はアップストリームメトリクスのserviceラベル値。
const metricsService = "supabase"

// ClientConfig はSupabaseクライアントの設定。
type ClientConfig struct {
	// BaseURL はSupabaseプロジェクトのURL。テスト用に差し替え可能。
	BaseURL string
	// APIKey はanonキー。全リクエストのapikeyヘッダーに付与される。
	APIKey string
}

// Client はSupabase Auth REST APIのクライアント。
// 接続設定以外の状態を持たない。
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	metrics    metrics.Recorder // nilの場合は記録しない
}

// NewClient はClientを生成する。
// httpClientにはタイムアウト設定済みのクライアントを渡す。
func NewClient(config ClientConfig, httpClient *http.Client, recorder metrics.Recorder) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		config:     config,
		httpClient: httpClient,
		metrics:    recorder,
	}
}

// SignUp は新規ユーザーを登録する。
// 確認メールの送信はプロバイダー側で行われる。
func (c *Client) SignUp(ctx context.Context, email, password string) (*model.User, error) {
	var user model.User
	err := c.do(ctx, http.MethodPost, "/signup", nil, "", map[string]string{
		"email":    email,
		"password": password,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SignInWithPassword はメールアドレスとパスワードでサインインし、
// アクセストークンとリフレッシュトークンの組を取得する。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	query := url.Values{"grant_type": {"password"}}

	var session model.Session
	err := c.do(ctx, http.MethodPost, "/token", query, "", map[string]string{
		"email":    email,
		"password": password,
	}, &session)
	if err != nil {
		return nil, err
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("supabase: empty access token in sign-in response")
	}
	return &session, nil
}

// RefreshSession はリフレッシュトークンを新しいセッションに交換する。
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error) {
	query := url.Values{"grant_type": {"refresh_token"}}

	var session model.Session
	err := c.do(ctx, http.MethodPost, "/token", query, "", map[string]string{
		"refresh_token": refreshToken,
	}, &session)
	if err != nil {
		return nil, err
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("supabase: empty access token in refresh response")
	}
	return &session, nil
}

// GetUser はアクセストークンに対応するユーザーを取得する。
// トークンが無効または期限切れの場合は*auth.ProviderErrorを返す。
func (c *Client) GetUser(ctx context.Context, accessToken string) (*model.User, error) {
	var user model.User
	err := c.do(ctx, http.MethodGet, "/user", nil, accessToken, nil, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ResetPasswordForEmail はパスワードリセットメールの送信を依頼する。
// redirectToはメール内のリンクから戻るリセットページのURL。
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	var query url.Values
	if redirectTo != "" {
		query = url.Values{"redirect_to": {redirectTo}}
	}
	return c.do(ctx, http.MethodPost, "/recover", query, "", map[string]string{
		"email": email,
	}, nil)
}

// UpdateUserPassword はアクセストークンのユーザーのパスワードを更新する。
// 更新後のユーザーレコードを返す。
func (c *Client) UpdateUserPassword(ctx context.Context, accessToken, newPassword string) (*model.User, error) {
	var user model.User
	err := c.do(ctx, http.MethodPut, "/user", nil, accessToken, map[string]string{
		"password": newPassword,
	}, &user)
	if err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, auth.ErrPasswordUpdateUnconfirmed
	}
	return &user, nil
}

// errorBody はGoTrueのエラーレスポンスボディ。
// バージョンによりフィールド名が揺れるため複数の候補を受ける。
type errorBody struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorCode        string `json:"error_code"`
	ErrorField       string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// do はGoTrueエンドポイントへのHTTPリクエストを1回実行する。
// bearerが空の場合はapikeyをAuthorizationヘッダーに使用する。
// 非2xxレスポンスは*auth.ProviderErrorとして返す。リトライは行わない。
func (c *Client) do(ctx context.Context, method, path string, query url.Values, bearer string, reqBody, out any) error {
	endpoint := c.config.BaseURL + authPath + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", c.config.APIKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("supabase request failed: %w", err)
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordUpstreamStatus(metricsService, resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseProviderError(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response body: %w", err)
		}
	}

	return nil
}

// parseProviderError は非2xxレスポンスのボディを*auth.ProviderErrorに変換する。
func parseProviderError(status int, body []byte) *auth.ProviderError {
	perr := &auth.ProviderError{Status: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		perr.Code = eb.ErrorCode
		switch {
		case eb.Msg != "":
			perr.Message = eb.Msg
		case eb.Message != "":
			perr.Message = eb.Message
		case eb.ErrorDescription != "":
			perr.Message = eb.ErrorDescription
		case eb.ErrorField != "":
			perr.Message = eb.ErrorField
		}
	}

	if perr.Message == "" {
		perr.Message = fmt.Sprintf("unexpected status %d", status)
	}

	return perr
}

// compile-time interface check
var _ auth.ProviderClient = (*Client)(nil)
