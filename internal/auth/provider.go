// Package auth はセッション/認証のコアロジックを提供する。
// 認証の記録系（ユーザー・セッションの保存）は外部の認証プロバイダーに
// 完全に委譲し、このパッケージはCookieで中継されるトークンの検証と
// リフレッシュ、およびCookie属性の決定のみを担当する。
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/moonapi/internal/model"
)

// ErrPasswordUpdateUnconfirmed はパスワード更新リクエストが成功ステータスで
// 応答されたものの、レスポンスに更新後のユーザーレコードが含まれなかった
// ことを表す。プロバイダーが更新を確認できていないため成功として扱わない。
var ErrPasswordUpdateUnconfirmed = errors.New("password update not confirmed by provider")

// ProviderClient は認証プロバイダーの操作のインターフェース。
// テストでは決定的なフェイクに差し替える。
type ProviderClient interface {
	// SignUp は新規ユーザーを登録する。確認メールはプロバイダー側で送信される。
	SignUp(ctx context.Context, email, password string) (*model.User, error)
	// SignInWithPassword はメールアドレスとパスワードでセッションを発行する。
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	// RefreshSession はリフレッシュトークンを新しいセッションに交換する。
	RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error)
	// GetUser はアクセストークンの正当性を検証し、対応するユーザーを返す。
	GetUser(ctx context.Context, accessToken string) (*model.User, error)
	// ResetPasswordForEmail はパスワードリセットメールの送信を依頼する。
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	// UpdateUserPassword はアクセストークンのユーザーのパスワードを更新する。
	UpdateUserPassword(ctx context.Context, accessToken, newPassword string) (*model.User, error)
}

// ProviderError は認証プロバイダーが返した拒否レスポンスを表す。
// プロバイダー起因の失敗（認証情報不正、重複メール等）と
// 予期しない失敗（5xx、ネットワーク障害）を呼び出し側で区別するために使用する。
type ProviderError struct {
	Status  int    // プロバイダーが返したHTTPステータスコード
	Code    string // プロバイダーのエラーコード（存在する場合）
	Message string // プロバイダーのエラーメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider: %s (status %d, code %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("provider: %s (status %d)", e.Message, e.Status)
}

// Temporary はプロバイダー側の一時的な障害かどうかを返す。
// trueの場合は明示的な拒否ではなくUpstreamErrorとして扱う。
func (e *ProviderError) Temporary() bool {
	return e.Status >= 500
}
