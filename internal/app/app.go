// Package app はアプリケーションの初期化と起動を提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/moonapi/internal/auth"
	"github.com/hitoshi/moonapi/internal/config"
	"github.com/hitoshi/moonapi/internal/handler"
	"github.com/hitoshi/moonapi/internal/logger"
	"github.com/hitoshi/moonapi/internal/metrics"
	"github.com/hitoshi/moonapi/internal/middleware"
	"github.com/hitoshi/moonapi/internal/reddit"
	"github.com/hitoshi/moonapi/internal/security"
	"github.com/hitoshi/moonapi/internal/supabase"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	return runServe(cfg)
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. 外部向けHTTPクライアントのガード
	guard := security.NewOutboundGuard()
	if err := guard.ValidateURL(cfg.SupabaseURL); err != nil {
		return fmt.Errorf("invalid SUPABASE_URL: %w", err)
	}
	if err := guard.ValidateURL(cfg.RedditBaseURL); err != nil {
		return fmt.Errorf("invalid REDDIT_BASE_URL: %w", err)
	}

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. 外部プロバイダークライアントの初期化
	providerClient := supabase.NewClient(supabase.ClientConfig{
		BaseURL: cfg.SupabaseURL,
		APIKey:  cfg.SupabaseKey,
	}, guard.NewSafeClient(cfg.ProviderTimeout), collector)

	sanitizer := security.NewContentSanitizer()
	searchClient := reddit.NewClient(reddit.ClientConfig{
		BaseURL:   cfg.RedditBaseURL,
		UserAgent: cfg.RedditUserAgent,
	}, guard.NewSafeClient(cfg.SearchTimeout), sanitizer, collector)

	// 4. ドメインサービスの初期化
	authService := auth.NewService(providerClient, auth.ServiceConfig{
		ResetRedirectURL: cfg.ResetRedirectURL(),
	})

	cookiePolicy := auth.CookiePolicy{
		CanonicalDomain:    cfg.CanonicalDomain,
		Secure:             cfg.CookieSecure,
		SameSite:           auth.SameSiteFromMode(cfg.CookieSameSite),
		AccessTokenMaxAge:  cfg.AccessTokenMaxAge,
		RefreshTokenMaxAge: cfg.RefreshTokenMaxAge,
	}

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitLogin))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		AuthService:       authService,
		CookiePolicy:      cookiePolicy,
		FrontendURL:       cfg.FrontendURL,
		SearchService:     searchClient,
		Metrics:           collector,
		Gatherer:          registry,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
