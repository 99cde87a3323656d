package auth

import (
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/hitoshi/moonapi/internal/model"
)

// セッション中継に使用するCookie名
const (
	AccessTokenCookieName  = "access_token"
	RefreshTokenCookieName = "refresh_token"
)

// CookieDomain はリクエストのOriginヘッダーと正規ドメインから
// CookieのDomain属性を決定する純粋関数。
//
//   - Originなし → Domain属性なし（非ブラウザクライアント向け、ホスト限定Cookie）
//   - Originのホストが正規ドメインまたはそのサブドメイン → ".{正規ドメイン}"
//     （全サブドメインでCookieを共有する）
//   - Originがlocalhostを含む → "localhost"（ローカル開発でのポート跨ぎ用）
//   - それ以外 → Domain属性なし（最も制限的なデフォルト）
//
// 正規ドメイン自体がパブリックサフィックス（"com"、"github.io"等）の場合は
// Cookieのスコープを広げない。
func CookieDomain(origin, canonicalDomain string) string {
	if origin == "" {
		return ""
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	host := parsed.Hostname()
	if host == "" {
		return ""
	}

	if canonicalDomain != "" && (host == canonicalDomain || strings.HasSuffix(host, "."+canonicalDomain)) {
		// パブリックサフィックスへの拡張は拒否する
		if suffix, _ := publicsuffix.PublicSuffix(canonicalDomain); suffix == canonicalDomain {
			return ""
		}
		return "." + canonicalDomain
	}

	if strings.Contains(host, "localhost") {
		return "localhost"
	}

	return ""
}

// SameSiteFromMode は設定値のSameSiteモードをhttp.SameSiteに変換する。
// "lax"以外はクロスサイト前提のSameSite=Noneとして扱う。
func SameSiteFromMode(mode string) http.SameSite {
	if mode == "lax" {
		return http.SameSiteLaxMode
	}
	return http.SameSiteNoneMode
}

// CookiePolicy はセッションCookieの属性を決定する設定。
// 別オリジンでホストされるフロントエンド向けのSameSite=Noneモードと、
// 同一オリジンデプロイ向けのLaxモードの両方をサポートする。
type CookiePolicy struct {
	CanonicalDomain    string
	Secure             bool
	SameSite           http.SameSite
	AccessTokenMaxAge  int // 秒
	RefreshTokenMaxAge int // 秒
}

// SessionCookies はログインまたはトークンリフレッシュ後に発行する
// アクセストークン・リフレッシュトークンのCookieペアを返す。
// 両方ともHttpOnlyかつSecureで発行される。
func (p CookiePolicy) SessionCookies(origin string, session *model.Session) []*http.Cookie {
	domain := CookieDomain(origin, p.CanonicalDomain)
	return []*http.Cookie{
		p.newCookie(AccessTokenCookieName, session.AccessToken, domain, p.AccessTokenMaxAge),
		p.newCookie(RefreshTokenCookieName, session.RefreshToken, domain, p.RefreshTokenMaxAge),
	}
}

// ExpiredSessionCookies はログアウト時に発行するCookie削除ペアを返す。
// ブラウザに削除させるにはDomain/Path/Secure/SameSiteが発行時と
// 一致している必要があるため、SessionCookiesと同じ属性決定を通す。
func (p CookiePolicy) ExpiredSessionCookies(origin string) []*http.Cookie {
	domain := CookieDomain(origin, p.CanonicalDomain)
	return []*http.Cookie{
		p.newCookie(AccessTokenCookieName, "", domain, -1),
		p.newCookie(RefreshTokenCookieName, "", domain, -1),
	}
}

// newCookie はポリシーに従った属性でCookieを1つ生成する。
func (p CookiePolicy) newCookie(name, value, domain string, maxAge int) *http.Cookie {
	secure := p.Secure
	// SameSite=NoneのCookieはSecureが必須（ブラウザ側で拒否される）
	if p.SameSite == http.SameSiteNoneMode {
		secure = true
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: p.SameSite,
	}
}
