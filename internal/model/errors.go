// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
)

// APIError は統一エラーフォーマットを表す。
// HTTPステータスコードとクライアントに返す詳細メッセージを含む。
type APIError struct {
	Code   string // エラーコード
	Detail string // クライアントに返す詳細メッセージ
	Status int    // HTTPステータスコード
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Detail)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	ErrCodeProviderError        = "PROVIDER_ERROR"
	ErrCodePasswordResetFailed  = "PASSWORD_RESET_FAILED"
	ErrCodeUpstreamError        = "UPSTREAM_ERROR"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// NewInvalidInputError は入力バリデーションエラーを生成する。
// 外部プロバイダーを呼び出す前のスキーマ検証で使用する。
func NewInvalidInputError(detail string) *APIError {
	return &APIError{
		Code:   ErrCodeInvalidInput,
		Detail: detail,
		Status: http.StatusBadRequest,
	}
}

// NewAuthenticationFailedError は認証失敗エラーを生成する。
// アカウント列挙を防ぐため、プロバイダーのエラー内容は含めない固定メッセージとする。
func NewAuthenticationFailedError() *APIError {
	return &APIError{
		Code:   ErrCodeAuthenticationFailed,
		Detail: "メールアドレスまたはパスワードが正しくありません。",
		Status: http.StatusUnauthorized,
	}
}

// NewProviderError はプロバイダー起因のエラーを生成する。
// サインアップやパスワードリセット等のセルフサービス操作ではプロバイダーの
// エラー内容をそのままクライアントに返す（明示的なポリシー判断）。
func NewProviderError(detail string) *APIError {
	return &APIError{
		Code:   ErrCodeProviderError,
		Detail: detail,
		Status: http.StatusBadRequest,
	}
}

// NewPasswordResetFailedError はパスワードリセット失敗エラーを生成する。
func NewPasswordResetFailedError(detail string) *APIError {
	return &APIError{
		Code:   ErrCodePasswordResetFailed,
		Detail: detail,
		Status: http.StatusBadRequest,
	}
}

// NewUpstreamError は検索プロバイダー等の外部呼び出し失敗エラーを生成する。
func NewUpstreamError(detail string) *APIError {
	return &APIError{
		Code:   ErrCodeUpstreamError,
		Detail: detail,
		Status: http.StatusInternalServerError,
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:   ErrCodeRateLimited,
		Detail: "リクエストが多すぎます。しばらく待ってから再度お試しください。",
		Status: http.StatusTooManyRequests,
	}
}

// NewInternalError は予期しない内部エラーを生成する。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:   ErrCodeInternalError,
		Detail: "内部エラーが発生しました。",
		Status: http.StatusInternalServerError,
	}
}
