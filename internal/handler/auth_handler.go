// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"

	"github.com/hitoshi/moonapi/internal/auth"
	"github.com/hitoshi/moonapi/internal/metrics"
	"github.com/hitoshi/moonapi/internal/middleware"
	"github.com/hitoshi/moonapi/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, email, password string) error
	Login(ctx context.Context, email, password string) (*model.Session, error)
	ResolveCurrentUser(ctx context.Context, accessToken, refreshToken string) (auth.SessionCheck, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, accessToken, refreshToken, newPassword string) error
}

// AuthHandler はセッション/認証関連のHTTPハンドラー。
// トークンはCookieとレスポンスボディの両方で中継する
// （Cookieを使えないクライアント向け）。
type AuthHandler struct {
	service     AuthServiceInterface
	policy      auth.CookiePolicy
	frontendURL string
	metrics     metrics.Recorder // nilの場合は記録しない
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, policy auth.CookiePolicy, frontendURL string, recorder metrics.Recorder) *AuthHandler {
	return &AuthHandler{
		service:     service,
		policy:      policy,
		frontendURL: frontendURL,
		metrics:     recorder,
	}
}

// --- リクエスト/レスポンス型 ---

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	NewPassword  string `json:"new_password"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// SignUp は新規ユーザー登録を処理する。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeCredentials(r, &req); err != nil {
		h.record("signup", "failure")
		writeAPIError(w, err)
		return
	}

	if err := h.service.SignUp(r.Context(), req.Email, req.Password); err != nil {
		h.record("signup", "failure")
		writeAPIError(w, err)
		return
	}

	h.record("signup", "success")
	writeJSON(w, http.StatusOK, messageResponse{
		Message: "サインアップが完了しました。確認メールをご確認ください。",
	})
}

// Login はパスワードサインインを処理する。
// 成功時はトークンペアをHttpOnly Cookieとレスポンスボディの両方で返す。
// 失敗時はプロバイダーのエラー内容を漏らさず、固定メッセージの401を返す。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeCredentials(r, &req); err != nil {
		h.record("login", "failure")
		writeAPIError(w, err)
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.record("login", "failure")
		writeAuthError(w, err)
		return
	}

	// Cookie属性はリクエストのOriginと正規ドメインから毎回決定する
	for _, cookie := range h.policy.SessionCookies(r.Header.Get("Origin"), session) {
		http.SetCookie(w, cookie)
	}

	h.record("login", "success")
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    "bearer",
	})
}

// Logout はセッションCookieを削除する。
// プロバイダー側のトークンは孤立するだけなので呼び出しは不要。
// セッションの有無にかかわらず常に200を返す。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	// 削除Cookieの属性は発行時と一致させる必要がある
	for _, cookie := range h.policy.ExpiredSessionCookies(r.Header.Get("Origin")) {
		http.SetCookie(w, cookie)
	}

	h.record("logout", "success")
	writeJSON(w, http.StatusOK, messageResponse{Message: "ログアウトしました。"})
}

// Me はCookieのトークンからセッションを検証し、現在のユーザーを返す。
// アクセストークンが期限切れの場合はリフレッシュトークン交換にフォールバックし、
// 成功した場合は新しいトークンペアでCookieを再発行する。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	accessToken := cookieValue(r, auth.AccessTokenCookieName)
	refreshToken := cookieValue(r, auth.RefreshTokenCookieName)

	check, err := h.service.ResolveCurrentUser(r.Context(), accessToken, refreshToken)
	if err != nil {
		h.record("me", check.Outcome.String())
		writeAuthError(w, err)
		return
	}

	if check.Outcome == auth.SessionRefreshed {
		if h.metrics != nil {
			h.metrics.RecordTokenRefresh()
		}
		for _, cookie := range h.policy.SessionCookies(r.Header.Get("Origin"), check.NewSession) {
			http.SetCookie(w, cookie)
		}
	}

	h.record("me", check.Outcome.String())
	writeJSON(w, http.StatusOK, map[string]any{
		"id":              check.User.ID,
		"email":           check.User.Email,
		"email_confirmed": check.User.EmailConfirmed(),
		"user_metadata":   check.User.UserMetadata,
	})
}

// ForgotPassword はパスワードリセットメールの送信を依頼する。
// POST /auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.record("forgot_password", "failure")
		writeAPIError(w, model.NewInvalidInputError("リクエストボディを解析できません。"))
		return
	}
	if err := validateEmail(req.Email); err != nil {
		h.record("forgot_password", "failure")
		writeAPIError(w, err)
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.record("forgot_password", "failure")
		writeAPIError(w, err)
		return
	}

	h.record("forgot_password", "success")
	writeJSON(w, http.StatusOK, messageResponse{
		Message: "パスワードリセットメールを送信しました。",
	})
}

// ResetPassword はリセットメール経由のトークンでパスワードを再設定する。
// POST /auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.record("reset_password", "failure")
		writeAPIError(w, model.NewInvalidInputError("リクエストボディを解析できません。"))
		return
	}
	if req.AccessToken == "" {
		h.record("reset_password", "failure")
		writeAPIError(w, model.NewInvalidInputError("access_tokenは必須です。"))
		return
	}
	if req.NewPassword == "" {
		h.record("reset_password", "failure")
		writeAPIError(w, model.NewInvalidInputError("new_passwordは必須です。"))
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.AccessToken, req.RefreshToken, req.NewPassword); err != nil {
		h.record("reset_password", "failure")
		writeAPIError(w, err)
		return
	}

	h.record("reset_password", "success")
	writeJSON(w, http.StatusOK, messageResponse{Message: "パスワードを再設定しました。"})
}

// record は認証操作メトリクスを記録する。
func (h *AuthHandler) record(operation, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordAuthOperation(operation, outcome)
	}
}

// decodeCredentials はメールアドレスとパスワードのリクエストを読み取り、検証する。
func decodeCredentials(r *http.Request, req *credentialsRequest) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return model.NewInvalidInputError("リクエストボディを解析できません。")
	}
	if err := validateEmail(req.Email); err != nil {
		return err
	}
	if req.Password == "" {
		return model.NewInvalidInputError("passwordは必須です。")
	}
	return nil
}

// validateEmail はメールアドレスの形式を検証する。
func validateEmail(email string) error {
	if email == "" {
		return model.NewInvalidInputError("emailは必須です。")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return model.NewInvalidInputError("emailの形式が正しくありません。")
	}
	return nil
}

// cookieValue は指定した名前のCookie値を返す。存在しない場合は空文字列。
func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// writeAuthError は認証エラーレスポンスを書き込む。
// 401の場合はWWW-Authenticateチャレンジヘッダーを付与する。
func writeAuthError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeAPIError(w, err)
}

// writeAPIError はエラーを統一フォーマットで書き込む。
// *model.APIError以外のエラーは詳細をログに記録し、一般的な500を返す。
func writeAPIError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, apiErr)
		return
	}

	slog.Error("unexpected handler error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
