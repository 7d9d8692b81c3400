package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Karans11/ai-news-app/internal/clock"
	"github.com/Karans11/ai-news-app/internal/ingest"
	"github.com/Karans11/ai-news-app/internal/middleware"
	"github.com/Karans11/ai-news-app/internal/model"
)

// ArticleServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type ArticleServiceInterface interface {
	Approve(ctx context.Context, id string, autoPublish bool, scheduledAt *time.Time) (*model.Article, error)
	Reject(ctx context.Context, id string) (*model.Article, error)
	PublishNow(ctx context.Context, id string, override bool) (*model.Article, error)
	Get(ctx context.Context, id string) (*model.Article, error)
	ListPending(ctx context.Context, rng model.Range, includeManual bool) ([]*model.Article, error)
	ListPublished(ctx context.Context, category string, rng model.Range) ([]*model.Article, error)
	ListAll(ctx context.Context, rng model.Range) ([]*model.Article, error)
	Delete(ctx context.Context, id string) error
}

// EntryWriter は管理者による記事の手動作成と内容の編集を行う。
type EntryWriter interface {
	CreateEntry(ctx context.Context, payload ingest.DraftPayload) (*model.Article, error)
	UpdateEntry(ctx context.Context, id string, payload ingest.DraftPayload) (*model.Article, error)
}

// ArticleHandler は記事の閲覧とレビュー操作のHTTPハンドラー。
type ArticleHandler struct {
	service ArticleServiceInterface
	entries EntryWriter
	logger  *slog.Logger
}

// NewArticleHandler はArticleHandlerを生成する。
func NewArticleHandler(service ArticleServiceInterface, entries EntryWriter, logger *slog.Logger) *ArticleHandler {
	return &ArticleHandler{
		service: service,
		entries: entries,
		logger:  logger,
	}
}

// approveRequest は承認リクエストのボディ。
type approveRequest struct {
	AutoPublish        bool   `json:"auto_publish"`
	ScheduledPublishAt string `json:"scheduled_publish_at"`
}

// publishRequest は即時公開リクエストのボディ。
// overrideを省略した場合は予約時刻に関係なく公開する。
type publishRequest struct {
	Override *bool `json:"override"`
}

// ListPublished は公開済み記事の一覧を返す。
// GET /articles?limit=&offset=&category=
func (h *ArticleHandler) ListPublished(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	category := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("category")))

	articles, err := h.service.ListPublished(r.Context(), category, rng)
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toArticleList(articles))
}

// ListPending はレビュー待ちの記事一覧を返す。
// GET /articles/pending?include_manual=true
func (h *ArticleHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	includeManual := r.URL.Query().Get("include_manual") == "true"

	articles, err := h.service.ListPending(r.Context(), rng, includeManual)
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toArticleList(articles))
}

// ListAll は状態に関わらずすべての記事を作成日時の新しい順に返す。
// GET /articles/all?limit=&offset=
func (h *ArticleHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}

	articles, err := h.service.ListAll(r.Context(), rng)
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toArticleList(articles))
}

// GetArticle は記事を1件返す。
// GET /articles/{id}
func (h *ArticleHandler) GetArticle(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, articleEnvelope{Success: true, Data: toArticleResponse(a)})
}

// CreateArticle は管理者が手動で記事を作成する。
// POST /articles
func (h *ArticleHandler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	var payload ingest.DraftPayload
	if err := decodeJSON(r, &payload, false); err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}

	a, err := h.entries.CreateEntry(r.Context(), payload)
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, articleEnvelope{Success: true, Data: toArticleResponse(a)})
}

// UpdateArticle は記事の内容を編集する。ライフサイクル状態は変更しない。
// PUT /articles/{id}
func (h *ArticleHandler) UpdateArticle(w http.ResponseWriter, r *http.Request) {
	var payload ingest.DraftPayload
	if err := decodeJSON(r, &payload, false); err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}

	a, err := h.entries.UpdateEntry(r.Context(), chi.URLParam(r, "id"), payload)
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, articleEnvelope{Success: true, Data: toArticleResponse(a)})
}

// DeleteArticle は記事を削除する。
// DELETE /articles/{id}
func (h *ArticleHandler) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, deleteResponse{Success: true, ID: id})
}

// Approve は記事を承認する。
// POST /articles/{id}/approve
func (h *ArticleHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeJSON(r, &req, true); err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}

	var scheduledAt *time.Time
	if s := strings.TrimSpace(req.ScheduledPublishAt); s != "" {
		t, err := clock.ParseScheduleTime(s)
		if err != nil {
			middleware.WriteError(w, h.logger, model.NewValidationError("scheduled_publish_at の形式が正しくありません。"))
			return
		}
		scheduledAt = &t
	}

	a, err := h.service.Approve(r.Context(), chi.URLParam(r, "id"), req.AutoPublish, scheduledAt)
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, articleEnvelope{Success: true, Data: toArticleResponse(a)})
}

// Reject は記事を却下する。
// POST /articles/{id}/reject
func (h *ArticleHandler) Reject(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Reject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, articleEnvelope{Success: true, Data: toArticleResponse(a)})
}

// Publish は承認済みの記事を即時公開する。
// POST /articles/{id}/publish
func (h *ArticleHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := decodeJSON(r, &req, true); err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	override := true
	if req.Override != nil {
		override = *req.Override
	}

	a, err := h.service.PublishNow(r.Context(), chi.URLParam(r, "id"), override)
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, articleEnvelope{Success: true, Data: toArticleResponse(a)})
}
