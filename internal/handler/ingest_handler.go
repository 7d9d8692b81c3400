package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Karans11/ai-news-app/internal/auth"
	"github.com/Karans11/ai-news-app/internal/ingest"
	"github.com/Karans11/ai-news-app/internal/middleware"
	"github.com/Karans11/ai-news-app/internal/model"
)

const (
	automationSecretHeader = "X-Automation-Secret"
	telegramSecretHeader   = "X-Telegram-Bot-Api-Secret-Token"
)

// IngestServiceInterface は自動化パイプラインからの記事取り込みを行う。
type IngestServiceInterface interface {
	IngestDraft(ctx context.Context, payload ingest.DraftPayload, secret string) (*model.Article, error)
}

// CallbackServiceInterface はチャットボットのボタン操作を処理する。
type CallbackServiceInterface interface {
	Handle(ctx context.Context, data string) (*ingest.CallbackResult, error)
}

// IngestHandler は取り込みとコールバックのHTTPハンドラー。
type IngestHandler struct {
	ingest         IngestServiceInterface
	callbacks      CallbackServiceInterface
	callbackSecret string
	logger         *slog.Logger
}

// NewIngestHandler はIngestHandlerを生成する。
// callbackSecretが空の場合、すべてのコールバックを401で拒否する。
func NewIngestHandler(ingestSvc IngestServiceInterface, callbacks CallbackServiceInterface, callbackSecret string, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{
		ingest:         ingestSvc,
		callbacks:      callbacks,
		callbackSecret: callbackSecret,
		logger:         logger,
	}
}

// ingestResponse は取り込み成功時のレスポンス。
type ingestResponse struct {
	Success   bool             `json:"success"`
	ArticleID string           `json:"articleId"`
	Data      *articleResponse `json:"data"`
}

// callbackData はコールバックのdataフィールド。
type callbackData struct {
	Data string `json:"data"`
}

// callbackRequest はコールバックリクエストのボディ。
// {"callback":{...}} とTelegram形式の {"callback_query":{...}} の両方を受け付ける。
type callbackRequest struct {
	Callback      *callbackData `json:"callback"`
	CallbackQuery *callbackData `json:"callback_query"`
}

// callbackResponse はコールバック処理結果のレスポンス。
type callbackResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    *articleResponse `json:"data,omitempty"`
}

// Ingest は記事を下書きとして取り込む。
// POST /ingest/article
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var payload ingest.DraftPayload
	if err := decodeJSON(r, &payload, false); err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}

	a, err := h.ingest.IngestDraft(r.Context(), payload, r.Header.Get(automationSecretHeader))
	if err != nil {
		if model.HasCode(err, model.ErrCodeUnauthorized) {
			h.logger.Warn("ingest rejected: invalid automation secret",
				slog.String("client_ip", middleware.ClientIP(r)),
			)
		}
		middleware.WriteError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, ingestResponse{
		Success:   true,
		ArticleID: a.ID,
		Data:      toArticleResponse(a),
	})
}

// Callback はチャットボットのボタン操作を処理する。
// POST /callback
func (h *IngestHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if !h.callbackAuthorized(r) {
		middleware.WriteError(w, h.logger, model.NewUnauthorizedError())
		return
	}

	var req callbackRequest
	if err := decodeJSON(r, &req, false); err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}

	var data string
	switch {
	case req.Callback != nil:
		data = req.Callback.Data
	case req.CallbackQuery != nil:
		data = req.CallbackQuery.Data
	}
	if strings.TrimSpace(data) == "" {
		middleware.WriteError(w, h.logger, model.NewValidationError("callback.data を指定してください。"))
		return
	}

	result, err := h.callbacks.Handle(r.Context(), data)
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}

	resp := callbackResponse{Success: true, Message: result.Message}
	if result.Article != nil {
		resp.Data = toArticleResponse(result.Article)
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

func (h *IngestHandler) callbackAuthorized(r *http.Request) bool {
	for _, header := range []string{telegramSecretHeader, automationSecretHeader} {
		if auth.SecretEqual(r.Header.Get(header), h.callbackSecret) {
			return true
		}
	}
	return false
}
