package model

// Session は認証プロバイダーが発行したトークンの組を表す。
// セッションの正当性はプロバイダーのみが判断する。このシステムは
// Cookieおよびレスポンスボディで中継するだけで、一切永続化しない。
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	User         *User  `json:"user,omitempty"`
}
