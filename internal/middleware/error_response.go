package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Karans11/ai-news-app/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Success  bool   `json:"success"`
	Error    string `json:"error"`
	Code     string `json:"code"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// errorStatus はエラーコードとHTTPステータスの対応表。
var errorStatus = map[string]int{
	model.ErrCodeValidation:           http.StatusBadRequest,
	model.ErrCodeUnsupportedOperation: http.StatusBadRequest,
	model.ErrCodeUnauthorized:         http.StatusUnauthorized,
	model.ErrCodeArticleNotFound:      http.StatusNotFound,
	model.ErrCodeInvalidTransition:    http.StatusConflict,
	model.ErrCodeConflict:             http.StatusConflict,
	model.ErrCodeRateLimited:          http.StatusTooManyRequests,
	model.ErrCodeStoreUnavailable:     http.StatusServiceUnavailable,
}

// StatusFor はエラーコードに対応するHTTPステータスを返す。
// 未知のコードは500とする。
func StatusFor(code string) int {
	if status, ok := errorStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Success:  false,
		Error:    apiErr.Message,
		Code:     apiErr.Code,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteError はエラーチェーンからAPIErrorを取り出してレスポンスを書き込む。
// APIErrorを含まないエラーは詳細をログにのみ記録し、500を返す。
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == model.ErrCodeStoreUnavailable {
			logger.Error("store unavailable", slog.String("error", err.Error()))
		}
		WriteErrorResponse(w, StatusFor(apiErr.Code), apiErr)
		return
	}

	logger.Error("unhandled error", slog.String("error", err.Error()))
	WriteInternalServerError(w)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
