package handler

import (
	_ "embed"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates/reset_password.html
var resetPasswordHTML string

// resetPasswordTemplate はパスワード再設定ページのテンプレート。
// プロバイダーのリセットメールはトークンをURLフラグメントで渡すため、
// ページ側のスクリプトがフラグメントを読み取ってAPIにPOSTする。
var resetPasswordTemplate = template.Must(template.New("reset_password").Parse(resetPasswordHTML))

// resetPasswordPageData はテンプレートに渡すデータ。
type resetPasswordPageData struct {
	LoginURL string
}

// ResetPasswordPage はパスワード再設定フォームの静的ページを返す。
// GET /auth/reset-password
func (h *AuthHandler) ResetPasswordPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := resetPasswordPageData{LoginURL: h.frontendURL}
	if err := resetPasswordTemplate.Execute(w, data); err != nil {
		slog.Error("failed to render reset password page", slog.String("error", err.Error()))
	}
}
