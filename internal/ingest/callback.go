package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Karans11/ai-news-app/internal/clock"
	"github.com/Karans11/ai-news-app/internal/model"
)

// CallbackScheduleDelay はチャットボットの「予約」操作で使う公開までの待ち時間。
// 管理画面からの承認（30分）とは別の既定値。
const CallbackScheduleDelay = time.Hour

// コールバック操作
const (
	OpReject   = "reject"
	OpSchedule = "schedule"
	OpPublish  = "publish"
)

const callbackPrefix = "action"

// CallbackCommand はデコード済みのコールバックコマンド。
type CallbackCommand struct {
	Operation string
	ArticleID string
}

// ParseCallback は "action:<operation>:<articleId>" 形式のデータをデコードする。
// 形式不正は VALIDATION_ERROR、未知の操作は UNSUPPORTED_OPERATION を返す。
func ParseCallback(data string) (CallbackCommand, error) {
	parts := strings.SplitN(strings.TrimSpace(data), ":", 3)
	if len(parts) != 3 || parts[0] != callbackPrefix {
		return CallbackCommand{}, model.NewValidationError("コールバックデータの形式が不正です。")
	}

	op := strings.ToLower(strings.TrimSpace(parts[1]))
	id := strings.TrimSpace(parts[2])
	if op == "" || id == "" {
		return CallbackCommand{}, model.NewValidationError("コールバックデータの形式が不正です。")
	}

	switch op {
	case OpReject, OpSchedule, OpPublish:
		return CallbackCommand{Operation: op, ArticleID: id}, nil
	default:
		return CallbackCommand{}, model.NewUnsupportedOperationError(op)
	}
}

// Lifecycle はコールバックが呼び出す記事ライフサイクル操作を定義する。
type Lifecycle interface {
	Approve(ctx context.Context, id string, autoPublish bool, scheduledAt *time.Time) (*model.Article, error)
	Reject(ctx context.Context, id string) (*model.Article, error)
}

// CallbackResult はコールバック処理の結果。
type CallbackResult struct {
	Message string
	Article *model.Article
}

// Callbacks はチャットボットのコールバックを処理する。
type Callbacks struct {
	lifecycle Lifecycle
	logger    *slog.Logger
	now       func() time.Time
}

// NewCallbacks はCallbacksの新しいインスタンスを生成する。
func NewCallbacks(lifecycle Lifecycle, logger *slog.Logger) *Callbacks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Callbacks{
		lifecycle: lifecycle,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle はコールバックデータをデコードし、対応する遷移を実行する。
func (c *Callbacks) Handle(ctx context.Context, data string) (*CallbackResult, error) {
	cmd, err := ParseCallback(data)
	if err != nil {
		return nil, err
	}

	var (
		a   *model.Article
		msg string
	)
	switch cmd.Operation {
	case OpReject:
		a, err = c.lifecycle.Reject(ctx, cmd.ArticleID)
		msg = "記事を却下しました。"
	case OpPublish:
		a, err = c.lifecycle.Approve(ctx, cmd.ArticleID, true, nil)
		msg = "記事を承認し、公開しました。"
	case OpSchedule:
		at := c.now().Add(CallbackScheduleDelay)
		a, err = c.lifecycle.Approve(ctx, cmd.ArticleID, false, &at)
		msg = fmt.Sprintf("記事を承認し、%s に公開予約しました。", clock.FormatLocal(at))
	}
	if err != nil {
		return nil, fmt.Errorf("コールバック %s の処理に失敗しました: %w", cmd.Operation, err)
	}

	c.logger.Info("callback handled",
		slog.String("operation", cmd.Operation),
		slog.String("article_id", cmd.ArticleID),
	)
	return &CallbackResult{Message: msg, Article: a}, nil
}
