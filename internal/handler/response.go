// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Karans11/ai-news-app/internal/middleware"
	"github.com/Karans11/ai-news-app/internal/model"
)

// maxBodyBytes はリクエストボディの上限サイズ。
const maxBodyBytes = 1 << 20

// articleResponse は記事のAPIレスポンス。
// 更新系エンドポイントは更新後の記事全体を返す。
type articleResponse struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Summary            string     `json:"summary"`
	OriginalURL        string     `json:"original_url"`
	Source             string     `json:"source"`
	Category           string     `json:"category"`
	ImageURL           string     `json:"image_url,omitempty"`
	Tags               []string   `json:"tags"`
	ValidationScore    *float64   `json:"validation_score"`
	ApprovalStatus     string     `json:"approval_status"`
	Status             string     `json:"status"`
	IsPublished        bool       `json:"is_published"`
	AutoGenerated      bool       `json:"auto_generated"`
	ScheduledPublishAt *time.Time `json:"scheduled_publish_at"`
	PublishedAt        *time.Time `json:"published_at"`
	ApprovedAt         *time.Time `json:"approved_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// articleListResponse は記事一覧のAPIレスポンス。
type articleListResponse struct {
	Success bool              `json:"success"`
	Data    []articleResponse `json:"data"`
	Count   int               `json:"count"`
}

// articleEnvelope は記事1件を返すAPIレスポンス。
type articleEnvelope struct {
	Success bool             `json:"success"`
	Data    *articleResponse `json:"data"`
}

// deleteResponse は削除成功時のレスポンス。
type deleteResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

func toArticleResponse(a *model.Article) *articleResponse {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return &articleResponse{
		ID:                 a.ID,
		Title:              a.Title,
		Summary:            a.Summary,
		OriginalURL:        a.OriginalURL,
		Source:             a.Source,
		Category:           a.Category,
		ImageURL:           a.ImageURL,
		Tags:               tags,
		ValidationScore:    a.ValidationScore,
		ApprovalStatus:     string(a.ApprovalStatus),
		Status:             string(a.Status),
		IsPublished:        a.IsPublished,
		AutoGenerated:      a.AutoGenerated,
		ScheduledPublishAt: utcPtr(a.ScheduledPublishAt),
		PublishedAt:        utcPtr(a.PublishedAt),
		ApprovedAt:         utcPtr(a.ApprovedAt),
		CreatedAt:          a.CreatedAt.UTC(),
		UpdatedAt:          a.UpdatedAt.UTC(),
	}
}

func toArticleList(articles []*model.Article) articleListResponse {
	data := make([]articleResponse, 0, len(articles))
	for _, a := range articles {
		data = append(data, *toArticleResponse(a))
	}
	return articleListResponse{Success: true, Data: data, Count: len(data)}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// writeJSON はJSONレスポンスを書き込む。
// ステータスを書き込む前にエンコードし、失敗した場合はログに記録して500を返す。
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	buf, err := json.Marshal(body)
	if err != nil {
		logger.Error("failed to encode response", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(buf, '\n')); err != nil {
		logger.Debug("failed to write response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをデコードする。
// allowEmptyが真の場合、空ボディはゼロ値として扱う。
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return nil
	}
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return model.NewValidationError("リクエストボディの解析に失敗しました。")
}

// parseRange はlimit/offsetクエリパラメータを読み取る。
// 上限の補正はサービス層で行う。
func parseRange(r *http.Request) (model.Range, error) {
	var rng model.Range
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return rng, model.NewValidationError("limit は0以上の整数で指定してください。")
		}
		rng.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return rng, model.NewValidationError("offset は0以上の整数で指定してください。")
		}
		rng.Offset = n
	}
	return rng, nil
}
