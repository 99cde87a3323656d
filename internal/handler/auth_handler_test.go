package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/moonapi/internal/auth"
	"github.com/hitoshi/moonapi/internal/model"
)

// mockAuthService はAuthServiceInterfaceのモック。
type mockAuthService struct {
	signUpFn         func(ctx context.Context, email, password string) error
	loginFn          func(ctx context.Context, email, password string) (*model.Session, error)
	resolveFn        func(ctx context.Context, accessToken, refreshToken string) (auth.SessionCheck, error)
	forgotPasswordFn func(ctx context.Context, email string) error
	resetPasswordFn  func(ctx context.Context, accessToken, refreshToken, newPassword string) error
}

func (m *mockAuthService) SignUp(ctx context.Context, email, password string) error {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password)
	}
	return nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return &model.Session{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (m *mockAuthService) ResolveCurrentUser(ctx context.Context, accessToken, refreshToken string) (auth.SessionCheck, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, accessToken, refreshToken)
	}
	return auth.SessionCheck{
		Outcome: auth.SessionAuthenticated,
		User:    &model.User{ID: "user-1", Email: "user@example.com"},
	}, nil
}

func (m *mockAuthService) ForgotPassword(ctx context.Context, email string) error {
	if m.forgotPasswordFn != nil {
		return m.forgotPasswordFn(ctx, email)
	}
	return nil
}

func (m *mockAuthService) ResetPassword(ctx context.Context, accessToken, refreshToken, newPassword string) error {
	if m.resetPasswordFn != nil {
		return m.resetPasswordFn(ctx, accessToken, refreshToken, newPassword)
	}
	return nil
}

// testPolicy はテスト用のCookieポリシー。
func testPolicy() auth.CookiePolicy {
	return auth.CookiePolicy{
		CanonicalDomain:    "example.com",
		Secure:             true,
		SameSite:           http.SameSiteNoneMode,
		AccessTokenMaxAge:  3600,
		RefreshTokenMaxAge: 604800,
	}
}

func newTestAuthHandler(service *mockAuthService) *AuthHandler {
	return NewAuthHandler(service, testPolicy(), "https://app.example.com", nil)
}

// errorResponse はエラーレスポンスのボディ。
type errorResponse struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func decodeErrorResponse(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

// cookieByName はSet-Cookieヘッダーから指定した名前のCookieを探す。
func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- Login ---

func TestLogin_Success_SetsCookiesAndBody(t *testing.T) {
	service := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*model.Session, error) {
			return &model.Session{AccessToken: "access-123", RefreshToken: "refresh-456"}, nil
		},
	}
	h := newTestAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"user@example.com","password":"secret"}`))
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("len(cookies) = %d, want 2", len(cookies))
	}

	access := cookieByName(cookies, "access_token")
	if access == nil {
		t.Fatal("access_token cookie not set")
	}
	if access.Value != "access-123" {
		t.Errorf("access cookie value = %q", access.Value)
	}
	if !access.HttpOnly || !access.Secure {
		t.Errorf("access cookie HttpOnly=%v Secure=%v, want true/true", access.HttpOnly, access.Secure)
	}
	if access.Domain != "example.com" && access.Domain != ".example.com" {
		t.Errorf("access cookie Domain = %q", access.Domain)
	}
	if access.MaxAge != 3600 {
		t.Errorf("access cookie MaxAge = %d, want 3600", access.MaxAge)
	}

	refresh := cookieByName(cookies, "refresh_token")
	if refresh == nil {
		t.Fatal("refresh_token cookie not set")
	}
	if refresh.Value != "refresh-456" {
		t.Errorf("refresh cookie value = %q", refresh.Value)
	}
	if refresh.MaxAge != 604800 {
		t.Errorf("refresh cookie MaxAge = %d, want 604800", refresh.MaxAge)
	}

	// Cookieを使えないクライアント向けにボディにもトークンを含める
	var body loginResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.AccessToken != "access-123" || body.RefreshToken != "refresh-456" {
		t.Errorf("body tokens = %q/%q", body.AccessToken, body.RefreshToken)
	}
	if body.TokenType != "bearer" {
		t.Errorf("token_type = %q, want bearer", body.TokenType)
	}
}

func TestLogin_Failure_Returns401WithChallenge(t *testing.T) {
	service := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*model.Session, error) {
			return nil, model.NewAuthenticationFailedError()
		},
	}
	h := newTestAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"user@example.com","password":"wrong"}`))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Errorf("WWW-Authenticate = %q, want Bearer", rec.Header().Get("WWW-Authenticate"))
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("failed login should not set cookies")
	}

	body := decodeErrorResponse(t, rec)
	if body.Code != model.ErrCodeAuthenticationFailed {
		t.Errorf("code = %q", body.Code)
	}
	// 固定メッセージであること（プロバイダー内容を含まない）
	if body.Detail != "メールアドレスまたはパスワードが正しくありません。" {
		t.Errorf("detail = %q", body.Detail)
	}
}

func TestLogin_InvalidEmail_Returns400(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*model.Session, error) {
			t.Error("service should not be called for invalid input")
			return nil, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"not-an-email","password":"secret"}`))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeErrorResponse(t, rec)
	if body.Code != model.ErrCodeInvalidInput {
		t.Errorf("code = %q", body.Code)
	}
}

func TestLogin_MalformedBody_Returns400(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// --- SignUp ---

func TestSignUp_Success(t *testing.T) {
	var gotEmail string
	h := newTestAuthHandler(&mockAuthService{
		signUpFn: func(ctx context.Context, email, password string) error {
			gotEmail = email
			return nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/signup",
		strings.NewReader(`{"email":"new@example.com","password":"secret"}`))
	rec := httptest.NewRecorder()

	h.SignUp(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotEmail != "new@example.com" {
		t.Errorf("email = %q", gotEmail)
	}
	// サインアップではセッションを発行しない（メール確認が先）
	if len(rec.Result().Cookies()) != 0 {
		t.Error("signup should not set cookies")
	}
}

func TestSignUp_ProviderRejection_Returns400(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{
		signUpFn: func(ctx context.Context, email, password string) error {
			return model.NewProviderError("User already registered")
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/signup",
		strings.NewReader(`{"email":"dup@example.com","password":"secret"}`))
	rec := httptest.NewRecorder()

	h.SignUp(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeErrorResponse(t, rec)
	if body.Code != model.ErrCodeProviderError {
		t.Errorf("code = %q", body.Code)
	}
	if body.Detail != "User already registered" {
		t.Errorf("detail = %q", body.Detail)
	}
}

func TestSignUp_MissingPassword_Returns400(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/signup",
		strings.NewReader(`{"email":"new@example.com"}`))
	rec := httptest.NewRecorder()

	h.SignUp(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// --- Logout ---

// TestLogout_DeletionAttrsMatchIssuance は削除Cookieの属性が
// 発行時のCookieと一致することを検証する。一致しないとブラウザが削除しない。
func TestLogout_DeletionAttrsMatchIssuance(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})
	origin := "https://app.example.com"

	loginReq := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"user@example.com","password":"secret"}`))
	loginReq.Header.Set("Origin", origin)
	loginRec := httptest.NewRecorder()
	h.Login(loginRec, loginReq)

	logoutReq := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	logoutReq.Header.Set("Origin", origin)
	logoutRec := httptest.NewRecorder()
	h.Logout(logoutRec, logoutReq)

	if logoutRec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", logoutRec.Code)
	}

	issued := loginRec.Result().Cookies()
	deleted := logoutRec.Result().Cookies()
	if len(deleted) != 2 {
		t.Fatalf("len(deleted) = %d, want 2", len(deleted))
	}

	for _, name := range []string{"access_token", "refresh_token"} {
		iss := cookieByName(issued, name)
		del := cookieByName(deleted, name)
		if iss == nil || del == nil {
			t.Fatalf("cookie %q missing: issued=%v deleted=%v", name, iss != nil, del != nil)
		}
		if del.Domain != iss.Domain || del.Path != iss.Path || del.Secure != iss.Secure || del.SameSite != iss.SameSite {
			t.Errorf("cookie %q deletion attrs differ: issued=%+v deleted=%+v", name, iss, del)
		}
		if del.MaxAge >= 0 {
			t.Errorf("cookie %q MaxAge = %d, want negative", name, del.MaxAge)
		}
		if del.Value != "" {
			t.Errorf("cookie %q value = %q, want empty", name, del.Value)
		}
	}
}

func TestLogout_WithoutSession_StillSucceeds(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()

	h.Logout(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

// --- Me ---

func TestMe_Authenticated_ReturnsUser(t *testing.T) {
	var gotAccess, gotRefresh string
	h := newTestAuthHandler(&mockAuthService{
		resolveFn: func(ctx context.Context, accessToken, refreshToken string) (auth.SessionCheck, error) {
			gotAccess = accessToken
			gotRefresh = refreshToken
			return auth.SessionCheck{
				Outcome: auth.SessionAuthenticated,
				User: &model.User{
					ID:               "user-1",
					Email:            "user@example.com",
					EmailConfirmedAt: "2026-01-01T00:00:00Z",
				},
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "cookie-access"})
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "cookie-refresh"})
	rec := httptest.NewRecorder()

	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotAccess != "cookie-access" || gotRefresh != "cookie-refresh" {
		t.Errorf("tokens passed to service = %q/%q", gotAccess, gotRefresh)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["id"] != "user-1" {
		t.Errorf("id = %v", body["id"])
	}
	if body["email_confirmed"] != true {
		t.Errorf("email_confirmed = %v", body["email_confirmed"])
	}

	// トークンが有効な場合はCookieを再発行しない
	if len(rec.Result().Cookies()) != 0 {
		t.Error("authenticated Me should not reissue cookies")
	}
}

func TestMe_Refreshed_ReissuesCookies(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{
		resolveFn: func(ctx context.Context, accessToken, refreshToken string) (auth.SessionCheck, error) {
			return auth.SessionCheck{
				Outcome: auth.SessionRefreshed,
				User:    &model.User{ID: "user-1", Email: "user@example.com"},
				NewSession: &model.Session{
					AccessToken:  "fresh-access",
					RefreshToken: "fresh-refresh",
				},
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "expired-access"})
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "valid-refresh"})
	rec := httptest.NewRecorder()

	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("len(cookies) = %d, want 2", len(cookies))
	}
	access := cookieByName(cookies, "access_token")
	if access == nil || access.Value != "fresh-access" {
		t.Errorf("reissued access cookie = %+v", access)
	}
	refresh := cookieByName(cookies, "refresh_token")
	if refresh == nil || refresh.Value != "fresh-refresh" {
		t.Errorf("reissued refresh cookie = %+v", refresh)
	}
}

func TestMe_Unauthenticated_Returns401(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{
		resolveFn: func(ctx context.Context, accessToken, refreshToken string) (auth.SessionCheck, error) {
			return auth.SessionCheck{Outcome: auth.SessionUnauthenticated}, model.NewAuthenticationFailedError()
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()

	h.Me(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Errorf("WWW-Authenticate = %q", rec.Header().Get("WWW-Authenticate"))
	}
}

// --- ForgotPassword ---

func TestForgotPassword_Success(t *testing.T) {
	var gotEmail string
	h := newTestAuthHandler(&mockAuthService{
		forgotPasswordFn: func(ctx context.Context, email string) error {
			gotEmail = email
			return nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/forgot-password",
		strings.NewReader(`{"email":"user@example.com"}`))
	rec := httptest.NewRecorder()

	h.ForgotPassword(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotEmail != "user@example.com" {
		t.Errorf("email = %q", gotEmail)
	}
}

func TestForgotPassword_InvalidEmail_Returns400(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/forgot-password",
		strings.NewReader(`{"email":""}`))
	rec := httptest.NewRecorder()

	h.ForgotPassword(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// --- ResetPassword ---

func TestResetPassword_Success(t *testing.T) {
	var gotAccess, gotRefresh, gotPassword string
	h := newTestAuthHandler(&mockAuthService{
		resetPasswordFn: func(ctx context.Context, accessToken, refreshToken, newPassword string) error {
			gotAccess = accessToken
			gotRefresh = refreshToken
			gotPassword = newPassword
			return nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/reset-password",
		strings.NewReader(`{"access_token":"a","refresh_token":"r","new_password":"new-secret"}`))
	rec := httptest.NewRecorder()

	h.ResetPassword(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotAccess != "a" || gotRefresh != "r" || gotPassword != "new-secret" {
		t.Errorf("args = %q/%q/%q", gotAccess, gotRefresh, gotPassword)
	}
}

func TestResetPassword_MissingAccessToken_Returns400(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{
		resetPasswordFn: func(ctx context.Context, accessToken, refreshToken, newPassword string) error {
			t.Error("service should not be called for invalid input")
			return nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/reset-password",
		strings.NewReader(`{"new_password":"new-secret"}`))
	rec := httptest.NewRecorder()

	h.ResetPassword(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeErrorResponse(t, rec)
	if body.Code != model.ErrCodeInvalidInput {
		t.Errorf("code = %q", body.Code)
	}
}

func TestResetPassword_Failure_Returns400(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{
		resetPasswordFn: func(ctx context.Context, accessToken, refreshToken, newPassword string) error {
			return model.NewPasswordResetFailedError("New password should be different from the old password")
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/reset-password",
		strings.NewReader(`{"access_token":"a","new_password":"same"}`))
	rec := httptest.NewRecorder()

	h.ResetPassword(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeErrorResponse(t, rec)
	if body.Code != model.ErrCodePasswordResetFailed {
		t.Errorf("code = %q", body.Code)
	}
}

// --- エラー書き込みの共通経路 ---

func TestWriteAPIError_UnexpectedError_Returns500(t *testing.T) {
	rec := httptest.NewRecorder()

	writeAPIError(rec, errors.New("something broke"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := decodeErrorResponse(t, rec)
	if body.Code != model.ErrCodeInternalError {
		t.Errorf("code = %q", body.Code)
	}
	// 生のエラー内容をクライアントに漏らさない
	if strings.Contains(body.Detail, "something broke") {
		t.Errorf("detail %q should not contain raw error text", body.Detail)
	}
}
