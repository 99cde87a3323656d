package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/moonapi/internal/metrics"
	"github.com/hitoshi/moonapi/internal/model"
)

// 検索の結果件数の制約
const (
	defaultSearchLimit = 10
	minSearchLimit     = 1
	maxSearchLimit     = 100
)

// SearchServiceInterface は検索ハンドラーが必要とするサービスインターフェース。
type SearchServiceInterface interface {
	Search(ctx context.Context, keyword string, limit int) ([]model.Post, error)
}

// SearchResponse は検索プロキシのレスポンス。
type SearchResponse struct {
	Results []model.Post `json:"results"`
	Total   int          `json:"total"`
	HasMore bool         `json:"has_more"`
}

// SearchHandler は検索プロキシのHTTPハンドラー。
type SearchHandler struct {
	service SearchServiceInterface
	metrics metrics.Recorder // nilの場合は記録しない
}

// NewSearchHandler はSearchHandlerを生成する。
func NewSearchHandler(service SearchServiceInterface, recorder metrics.Recorder) *SearchHandler {
	return &SearchHandler{
		service: service,
		metrics: recorder,
	}
}

// Search はキーワード検索を処理する。
// limitの検証は外部プロバイダーを呼ぶ前に行う。
// ページネーションは未対応のためhas_moreは常にfalse。
// GET /api/reddit/search?keyword=&limit=
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("keyword")
	if keyword == "" {
		writeAPIError(w, model.NewInvalidInputError("keywordは必須です。"))
		return
	}

	limit := defaultSearchLimit
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil {
			writeAPIError(w, model.NewInvalidInputError("limitは整数で指定してください。"))
			return
		}
		if parsed < minSearchLimit || parsed > maxSearchLimit {
			writeAPIError(w, model.NewInvalidInputError(
				fmt.Sprintf("limitは%dから%dの範囲で指定してください。", minSearchLimit, maxSearchLimit)))
			return
		}
		limit = parsed
	}

	start := time.Now()
	posts, err := h.service.Search(r.Context(), keyword, limit)
	if h.metrics != nil {
		h.metrics.RecordSearchLatency(time.Since(start))
	}
	if err != nil {
		writeAPIError(w, model.NewUpstreamError(
			fmt.Sprintf("検索中にエラーが発生しました: %s", err.Error())))
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Results: posts,
		Total:   len(posts),
		HasMore: false, // ページネーションは現仕様の対象外
	})
}
