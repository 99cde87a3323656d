package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/moonapi/internal/auth"
	"github.com/hitoshi/moonapi/internal/metrics"
	"github.com/hitoshi/moonapi/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService  AuthServiceInterface
	CookiePolicy auth.CookiePolicy
	FrontendURL  string

	// 検索
	SearchService SearchServiceInterface

	// メトリクス
	Metrics  metrics.Recorder
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → CORS → SecurityHeaders
//
// 認証情報を受けるエンドポイント（login/signup）のみレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	authHandler := NewAuthHandler(deps.AuthService, deps.CookiePolicy, deps.FrontendURL, deps.Metrics)
	searchHandler := NewSearchHandler(deps.SearchService, deps.Metrics)

	// 死活確認
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, messageResponse{Message: "Welcome to the moon API"})
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Prometheusスクレイプ
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// 認証ルート
	r.Route("/auth", func(r chi.Router) {
		if deps.RateLimiter != nil {
			credLimit := deps.RateLimiter.CredentialMiddleware()
			r.With(credLimit).Post("/signup", authHandler.SignUp)
			r.With(credLimit).Post("/login", authHandler.Login)
		} else {
			r.Post("/signup", authHandler.SignUp)
			r.Post("/login", authHandler.Login)
		}

		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
		r.Post("/forgot-password", authHandler.ForgotPassword)
		r.Get("/reset-password", authHandler.ResetPasswordPage)
		r.Post("/reset-password", authHandler.ResetPassword)
	})

	// 検索プロキシ
	r.Route("/api/reddit", func(r chi.Router) {
		r.Get("/search", searchHandler.Search)
	})

	return r
}
