// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Supabase (認証プロバイダー)
	SupabaseURL     string
	SupabaseKey     string
	ProviderTimeout time.Duration

	// Reddit (検索プロバイダー)
	RedditBaseURL   string
	RedditUserAgent string
	SearchTimeout   time.Duration

	// Cookie
	CanonicalDomain string
	CookieSecure    bool
	// CookieSameSite はCookieのSameSite属性モード。
	// "none": 別オリジンでホストされるフロントエンド向け（SameSite=None; Secure必須）
	// "lax":  同一オリジンデプロイ向け
	CookieSameSite     string
	AccessTokenMaxAge  int // アクセストークンCookieの有効期間（秒）
	RefreshTokenMaxAge int // リフレッシュトークンCookieの有効期間（秒）

	// URL
	BaseURL           string
	FrontendURL       string
	ResetPasswordPath string

	// Rate Limit
	RateLimitLogin int // ログイン・サインアップのレート（req/min/IP）

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// ResetRedirectURL はパスワードリセットメールに埋め込むリダイレクト先URLを返す。
func (c *Config) ResetRedirectURL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + c.ResetPasswordPath
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.SupabaseURL = os.Getenv("SUPABASE_URL")
	if cfg.SupabaseURL == "" {
		missing = append(missing, "SUPABASE_URL")
	}

	cfg.SupabaseKey = os.Getenv("SUPABASE_KEY")
	if cfg.SupabaseKey == "" {
		missing = append(missing, "SUPABASE_KEY")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ProviderTimeout = getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second)
	cfg.RedditBaseURL = getEnvString("REDDIT_BASE_URL", "https://www.reddit.com")
	cfg.RedditUserAgent = getEnvString("REDDIT_USER_AGENT", "moonapi/1.0")
	cfg.SearchTimeout = getEnvDuration("SEARCH_TIMEOUT", 10*time.Second)
	cfg.CanonicalDomain = getEnvString("CANONICAL_DOMAIN", "")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieSameSite = getEnvString("COOKIE_SAMESITE", "none")
	cfg.AccessTokenMaxAge = getEnvInt("ACCESS_TOKEN_MAX_AGE", 3600)
	cfg.RefreshTokenMaxAge = getEnvInt("REFRESH_TOKEN_MAX_AGE", 604800)
	cfg.FrontendURL = getEnvString("FRONTEND_URL", "http://localhost:5173")
	cfg.ResetPasswordPath = getEnvString("RESET_PASSWORD_PATH", "/auth/reset-password")
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8000")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.FrontendURL)

	if cfg.CookieSameSite != "none" && cfg.CookieSameSite != "lax" {
		return nil, fmt.Errorf("COOKIE_SAMESITE must be \"none\" or \"lax\", got %q", cfg.CookieSameSite)
	}

	// 0以下のCookie有効期間は発行即削除のCookieになるため起動時に拒否する
	if cfg.AccessTokenMaxAge <= 0 {
		return nil, fmt.Errorf("ACCESS_TOKEN_MAX_AGE must be positive, got %d", cfg.AccessTokenMaxAge)
	}
	if cfg.RefreshTokenMaxAge <= 0 {
		return nil, fmt.Errorf("REFRESH_TOKEN_MAX_AGE must be positive, got %d", cfg.RefreshTokenMaxAge)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
