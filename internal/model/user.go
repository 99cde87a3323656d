package model

// User は認証プロバイダーが管理するユーザーレコードを表す。
// このシステムはユーザーを永続化せず、プロバイダーのレスポンスを読み取り専用で扱う。
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt string         `json:"email_confirmed_at,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
}

// EmailConfirmed はメールアドレスが確認済みかどうかを返す。
func (u *User) EmailConfirmed() bool {
	return u.EmailConfirmedAt != ""
}
