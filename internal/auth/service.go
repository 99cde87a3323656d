package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/moonapi/internal/model"
)

// SessionOutcome はセッション検証ステートマシンの終端状態を表す。
// 4つの終端状態を列挙型で表現し、網羅的にテスト可能にする。
type SessionOutcome int

const (
	// SessionAuthenticated はアクセストークンがそのまま有効だった状態。
	SessionAuthenticated SessionOutcome = iota
	// SessionRefreshed はアクセストークンが無効だったが、
	// リフレッシュトークン交換で再認証された状態。
	SessionRefreshed
	// SessionUnauthenticated は利用可能なトークンがなかった状態。
	// アクセストークンCookieなし、または検証失敗かつリフレッシュトークンなし。
	SessionUnauthenticated
	// SessionRefreshRejected はリフレッシュトークン交換を
	// プロバイダーが拒否した状態。
	SessionRefreshRejected
)

// String はSessionOutcomeのログ・メトリクス用表現を返す。
func (o SessionOutcome) String() string {
	switch o {
	case SessionAuthenticated:
		return "authenticated"
	case SessionRefreshed:
		return "refreshed"
	case SessionUnauthenticated:
		return "unauthenticated"
	case SessionRefreshRejected:
		return "refresh_rejected"
	default:
		return "unknown"
	}
}

// SessionCheck はセッション検証の結果を表す。
type SessionCheck struct {
	Outcome SessionOutcome
	// User は認証されたユーザー。認証成功時のみ非nil。
	User *model.User
	// NewSession はリフレッシュで発行された新しいセッション。
	// OutcomeがSessionRefreshedの場合のみ非nil。呼び出し側は
	// このセッションでCookieを再発行する責任を持つ。
	NewSession *model.Session
}

// Authenticated は検証が認証成功で終端したかどうかを返す。
func (c SessionCheck) Authenticated() bool {
	return c.Outcome == SessionAuthenticated || c.Outcome == SessionRefreshed
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// ResetRedirectURL はパスワードリセットメールに埋め込むリダイレクト先URL。
	ResetRedirectURL string
}

// Service はセッション/認証のビジネスロジックを提供する。
// すべての操作は外部プロバイダーへの1回（リフレッシュフォールバック時は2回）の
// 呼び出しで完結し、ローカルに状態を持たない。リトライは行わない。
type Service struct {
	provider ProviderClient
	config   ServiceConfig
}

// NewService はServiceを生成する。
func NewService(provider ProviderClient, config ServiceConfig) *Service {
	return &Service{
		provider: provider,
		config:   config,
	}
}

// SignUp は新規ユーザーをプロバイダーに登録する。
// 確認メールはプロバイダーが送信する。プロバイダーの拒否理由
// （重複メール、弱いパスワード等）はそのまま呼び出し元に返す。
func (s *Service) SignUp(ctx context.Context, email, password string) error {
	if _, err := s.provider.SignUp(ctx, email, password); err != nil {
		if perr, ok := providerRejection(err); ok {
			return model.NewProviderError(perr.Message)
		}
		slog.Error("signup failed unexpectedly", slog.String("error", err.Error()))
		return model.NewUpstreamError(err.Error())
	}

	slog.Info("user signed up", slog.String("email", email))
	return nil
}

// Login はメールアドレスとパスワードでセッションを発行する。
// 失敗理由はアカウント列挙のシグナルになるため、プロバイダーの
// エラー内容はログにのみ記録し、呼び出し元には固定メッセージを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, error) {
	session, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		slog.Warn("login rejected", slog.String("error", err.Error()))
		return nil, model.NewAuthenticationFailedError()
	}

	slog.Info("user logged in", slog.String("email", email))
	return session, nil
}

// ResolveCurrentUser はCookieで中継されたトークンからセッションを検証する。
//
// 検証は厳密な2段階フォールバックで行う:
//  1. アクセストークンをプロバイダーのユーザー取得で検証する
//  2. 失敗した場合のみ、リフレッシュトークンを新しいセッションに交換する
//
// 各段階はプロバイダーをちょうど1回呼び出し、リトライもバックオフも行わない。
// 認証できなかった場合はSessionCheckの終端状態とともにエラーを返す。
func (s *Service) ResolveCurrentUser(ctx context.Context, accessToken, refreshToken string) (SessionCheck, error) {
	// アクセストークンCookieなし: プロバイダーを呼ばずに即座に失敗する
	if accessToken == "" {
		return SessionCheck{Outcome: SessionUnauthenticated}, model.NewAuthenticationFailedError()
	}

	user, err := s.provider.GetUser(ctx, accessToken)
	if err == nil {
		return SessionCheck{Outcome: SessionAuthenticated, User: user}, nil
	}

	// アクセストークンが無効。リフレッシュトークンがなければここで終端。
	if refreshToken == "" {
		return SessionCheck{Outcome: SessionUnauthenticated}, model.NewAuthenticationFailedError()
	}

	session, err := s.provider.RefreshSession(ctx, refreshToken)
	if err != nil {
		slog.Warn("session refresh rejected", slog.String("error", err.Error()))
		return SessionCheck{Outcome: SessionRefreshRejected}, model.NewAuthenticationFailedError()
	}

	user = session.User
	if user == nil {
		// プロバイダーがトークンレスポンスにユーザーを含めない場合のみ取得する
		user, err = s.provider.GetUser(ctx, session.AccessToken)
		if err != nil {
			slog.Warn("user fetch after refresh failed", slog.String("error", err.Error()))
			return SessionCheck{Outcome: SessionRefreshRejected}, model.NewAuthenticationFailedError()
		}
	}

	slog.Info("session refreshed", slog.String("user_id", user.ID))
	return SessionCheck{Outcome: SessionRefreshed, User: user, NewSession: session}, nil
}

// ForgotPassword はプロバイダーにパスワードリセットメールの送信を依頼する。
// リダイレクト先は設定のベースURLから組み立てたリセットページURL。
// プロバイダーの拒否理由はそのまま呼び出し元に返す（明示的なポリシー判断、
// 未知のメールアドレスの存在が漏れることを許容している）。
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	if err := s.provider.ResetPasswordForEmail(ctx, email, s.config.ResetRedirectURL); err != nil {
		if perr, ok := providerRejection(err); ok {
			return model.NewProviderError(perr.Message)
		}
		slog.Error("password reset request failed unexpectedly", slog.String("error", err.Error()))
		return model.NewUpstreamError(err.Error())
	}

	slog.Info("password reset email requested", slog.String("email", email))
	return nil
}

// ResetPassword はリセットメール経由で渡されたトークンからプロバイダー
// セッションを確立し、パスワード更新を依頼する。
// アクセストークンが期限切れでリフレッシュトークンが渡されている場合のみ、
// 1回だけリフレッシュにフォールバックする。
func (s *Service) ResetPassword(ctx context.Context, accessToken, refreshToken, newPassword string) error {
	_, err := s.provider.UpdateUserPassword(ctx, accessToken, newPassword)
	if err == nil {
		slog.Info("password reset completed")
		return nil
	}

	// 成功ステータスでも更新後のユーザーレコードがなければ失敗として扱う
	if errors.Is(err, ErrPasswordUpdateUnconfirmed) {
		return model.NewPasswordResetFailedError("パスワードの更新を確認できませんでした。")
	}

	perr, ok := providerRejection(err)
	if !ok {
		slog.Error("password update failed unexpectedly", slog.String("error", err.Error()))
		return model.NewUpstreamError(err.Error())
	}

	// トークン期限切れの場合はリフレッシュトークンでセッションを再確立する
	if perr.Status == 401 && refreshToken != "" {
		session, refreshErr := s.provider.RefreshSession(ctx, refreshToken)
		if refreshErr != nil {
			slog.Warn("reset session refresh rejected", slog.String("error", refreshErr.Error()))
			return model.NewPasswordResetFailedError(perr.Message)
		}
		if _, updateErr := s.provider.UpdateUserPassword(ctx, session.AccessToken, newPassword); updateErr != nil {
			if errors.Is(updateErr, ErrPasswordUpdateUnconfirmed) {
				return model.NewPasswordResetFailedError("パスワードの更新を確認できませんでした。")
			}
			if uerr, ok := providerRejection(updateErr); ok {
				return model.NewPasswordResetFailedError(uerr.Message)
			}
			slog.Error("password update failed unexpectedly", slog.String("error", updateErr.Error()))
			return model.NewUpstreamError(updateErr.Error())
		}
		slog.Info("password reset completed after token refresh")
		return nil
	}

	return model.NewPasswordResetFailedError(perr.Message)
}

// providerRejection はエラーがプロバイダーによる明示的な拒否かどうかを判定する。
// 5xxはプロバイダー側障害であり拒否として扱わない。
func providerRejection(err error) (*ProviderError, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) && !perr.Temporary() {
		return perr, true
	}
	return nil, false
}
