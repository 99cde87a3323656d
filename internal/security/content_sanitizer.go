package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は検索結果の本文テキストのサニタイズ機能の
// インターフェースを定義する。検索プロバイダーのレスポンスをそのまま
// SPAに返すため、API応答前に必ず適用する。
type ContentSanitizerService interface {
	// Sanitize は本文テキストからすべてのHTMLタグを除去し、
	// プレーンテキストとして安全な文字列を返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 検索結果の本文はSPA側でプレーンテキストとして描画されるため、
// タグを一切許可しないStrictPolicyを使用する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は本文テキストからHTMLタグを除去する。
// bluemondayはタグ除去後にテキストをエスケープして返すため、
// プレーンテキストとして扱えるようエスケープを元に戻す。
func (s *contentSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

// compile-time interface check
var _ ContentSanitizerService = (*contentSanitizer)(nil)
