package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/moonapi/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// detailフィールドにクライアント表示用のメッセージを含む。
type ErrorResponseBody struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:   apiErr.Code,
		Detail: apiErr.Detail,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, model.NewInternalError())
}
