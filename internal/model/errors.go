// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, article, system
	Action   string // 呼び出し側向け対処方法
	Err      error  // 原因となったエラー（レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeArticleNotFound      = "ARTICLE_NOT_FOUND"
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeConflict             = "CONFLICT"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeStoreUnavailable     = "STORE_UNAVAILABLE"
	ErrCodeUnsupportedOperation = "UNSUPPORTED_OPERATION"
)

// NewValidationError は入力不備エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  reason,
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewMissingFieldsError は必須フィールド欠落エラーを生成する。
// 欠落したフィールド名をすべてメッセージに含める。
func NewMissingFieldsError(fields []string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("必須フィールドが不足しています: %s", strings.Join(fields, ", ")),
		Category: "validation",
		Action:   "title、summary、original_url を指定してください。",
	}
}

// NewUnauthorizedError は認証失敗エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証に失敗しました。",
		Category: "auth",
		Action:   "正しい認証情報を指定してください。",
	}
}

// NewArticleNotFoundError は記事未検出エラーを生成する。
func NewArticleNotFoundError(articleID string) *APIError {
	return &APIError{
		Code:     ErrCodeArticleNotFound,
		Message:  fmt.Sprintf("指定された記事が見つかりません: %s", articleID),
		Category: "article",
		Action:   "記事IDを確認してください。",
	}
}

// NewInvalidTransitionError は状態遷移が許可されない場合のエラーを生成する。
func NewInvalidTransitionError(from Phase, event string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("%s 状態の記事に %s は実行できません。", from, event),
		Category: "article",
		Action:   "記事の現在の状態を確認してください。",
	}
}

// NewConflictError は同時更新の競合に敗れた場合のエラーを生成する。
func NewConflictError(articleID string) *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  fmt.Sprintf("記事が他の操作によって更新されました: %s", articleID),
		Category: "article",
		Action:   "最新の状態を取得してから再度お試しください。",
	}
}

// NewRateLimitedError はログイン試行回数超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "ログイン試行回数が上限に達しました。",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewStoreUnavailableError は永続化層のタイムアウト・障害エラーを生成する。
func NewStoreUnavailableError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "データストアに接続できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewUnsupportedOperationError は未知のコールバック操作エラーを生成する。
func NewUnsupportedOperationError(op string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedOperation,
		Message:  fmt.Sprintf("サポートされていない操作です: %s", op),
		Category: "validation",
		Action:   "操作には reject、schedule、publish のいずれかを指定してください。",
	}
}

// HasCode はerrがcodeを持つAPIErrorを含むかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// IsRetryable は呼び出し側でのリトライ対象となるエラーかを返す。
// STORE_UNAVAILABLE 以外は決定的なため再試行しても結果は変わらない。
func IsRetryable(err error) bool {
	return HasCode(err, ErrCodeStoreUnavailable)
}
