// Package article は記事ライフサイクルのサービス層を提供する。
// 状態遷移の判定はlifecycleパッケージに委ね、ここでは読み込み・条件付き書き込み・
// 競合時の再読込を担当する。
package article

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Karans11/ai-news-app/internal/lifecycle"
	"github.com/Karans11/ai-news-app/internal/metrics"
	"github.com/Karans11/ai-news-app/internal/model"
	"github.com/Karans11/ai-news-app/internal/repository"
)

// 一覧取得の既定値と上限
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Service は記事ライフサイクルのサービス層。
type Service struct {
	repo    repository.ArticleRepository
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewService(repo repository.ArticleRepository, collector metrics.MetricsCollector, logger *slog.Logger) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		metrics: collector,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Approve はレビュー待ちの記事を承認する。
// autoPublishがtrueなら即時公開、scheduledAtが指定されればその時刻に予約、
// どちらもなければ30分後に予約する。scheduledAtはUTCで渡すこと。
func (s *Service) Approve(ctx context.Context, id string, autoPublish bool, scheduledAt *time.Time) (*model.Article, error) {
	a, _, err := s.apply(ctx, id, lifecycle.Approve(autoPublish, scheduledAt), s.now())
	return a, err
}

// Reject はレビュー待ちの記事を却下する。却下は終端状態で元に戻せない。
func (s *Service) Reject(ctx context.Context, id string) (*model.Article, error) {
	a, _, err := s.apply(ctx, id, lifecycle.Reject(), s.now())
	return a, err
}

// PublishNow は承認済み・予約済みの記事を公開する。
// overrideがfalseの場合は予約時刻を過ぎている記事のみ公開できる。
func (s *Service) PublishNow(ctx context.Context, id string, override bool) (*model.Article, error) {
	a, _, err := s.apply(ctx, id, lifecycle.PublishNow(override), s.now())
	return a, err
}

// SweepPublish は予約時刻を過ぎた記事を公開する。
// 既に公開済みの場合（並行するスイープが先に公開した場合を含む）はエラーにせず noop=true を返す。
func (s *Service) SweepPublish(ctx context.Context, id string, now time.Time) (a *model.Article, noop bool, err error) {
	return s.apply(ctx, id, lifecycle.SweepPublish(), now)
}

// Get は指定IDの記事を取得する。
func (s *Service) Get(ctx context.Context, id string) (*model.Article, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if a == nil {
		return nil, model.NewArticleNotFoundError(id)
	}
	return a, nil
}

// Delete は記事を削除する。状態に関わらず削除でき、存在しなければ ARTICLE_NOT_FOUND を返す。
func (s *Service) Delete(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("記事の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewArticleNotFoundError(id)
	}
	s.logger.Info("article deleted", slog.String("article_id", id))
	return nil
}

// ListAll は状態に関わらずすべての記事を作成日時の新しい順に返す。
func (s *Service) ListAll(ctx context.Context, rng model.Range) ([]*model.Article, error) {
	articles, err := s.repo.Query(ctx, model.ArticleFilter{}, model.OrderCreatedDesc, clampRange(rng))
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	return articles, nil
}

// ListPending はレビュー待ちの記事を新しい順に返す。
// includeManualがfalseの場合は自動生成記事のみを対象とする。
func (s *Service) ListPending(ctx context.Context, rng model.Range, includeManual bool) ([]*model.Article, error) {
	pending := model.ApprovalPending
	filter := model.ArticleFilter{ApprovalStatus: &pending}
	if !includeManual {
		auto := true
		filter.AutoGenerated = &auto
	}

	articles, err := s.repo.Query(ctx, filter, model.OrderCreatedDesc, clampRange(rng))
	if err != nil {
		return nil, fmt.Errorf("レビュー待ち記事の取得に失敗しました: %w", err)
	}
	return articles, nil
}

// ListPublished は公開済みの記事を公開日時の新しい順に返す。
func (s *Service) ListPublished(ctx context.Context, category string, rng model.Range) ([]*model.Article, error) {
	published := true
	filter := model.ArticleFilter{IsPublished: &published, Category: category}

	articles, err := s.repo.Query(ctx, filter, model.OrderPublishedDesc, clampRange(rng))
	if err != nil {
		return nil, fmt.Errorf("公開記事の取得に失敗しました: %w", err)
	}
	return articles, nil
}

// apply は記事を読み込み、イベントを適用し、遷移前の状態を条件とした書き込みを行う。
// 書き込み対象の行がなかった場合は再読込し、公開済みへのスイープなら noop、それ以外は CONFLICT とする。
func (s *Service) apply(ctx context.Context, id string, ev lifecycle.Event, now time.Time) (*model.Article, bool, error) {
	event := string(ev.Kind)

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.metrics.RecordTransition(event, metrics.ResultError)
		return nil, false, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if current == nil {
		s.metrics.RecordTransition(event, metrics.ResultInvalid)
		return nil, false, model.NewArticleNotFoundError(id)
	}

	tr, err := lifecycle.Apply(*current, ev, now)
	if err != nil {
		s.metrics.RecordTransition(event, metrics.ResultInvalid)
		return nil, false, err
	}
	if tr.Noop {
		s.metrics.RecordTransition(event, metrics.ResultNoop)
		return current, true, nil
	}

	updated, err := s.repo.UpdateStateIf(ctx, id, tr.Expected(), tr.Change)
	if err != nil {
		s.metrics.RecordTransition(event, metrics.ResultError)
		return nil, false, fmt.Errorf("記事の状態更新に失敗しました: %w", err)
	}
	if updated != nil {
		s.metrics.RecordTransition(event, metrics.ResultOK)
		s.logger.Info("article transitioned",
			slog.String("article_id", id),
			slog.String("event", event),
			slog.String("from", string(tr.From)),
			slog.String("to", string(tr.To)),
		)
		return updated, false, nil
	}

	return s.resolveLostWrite(ctx, id, ev)
}

// resolveLostWrite は条件付き書き込みが0件だった場合の結果を決める。
func (s *Service) resolveLostWrite(ctx context.Context, id string, ev lifecycle.Event) (*model.Article, bool, error) {
	event := string(ev.Kind)

	latest, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.metrics.RecordTransition(event, metrics.ResultError)
		return nil, false, fmt.Errorf("記事の再取得に失敗しました: %w", err)
	}
	if latest == nil {
		s.metrics.RecordTransition(event, metrics.ResultInvalid)
		return nil, false, model.NewArticleNotFoundError(id)
	}

	if ev.Kind == lifecycle.EventSweepPublish && model.PhaseOf(latest) == model.PhasePublished {
		s.metrics.RecordTransition(event, metrics.ResultNoop)
		return latest, true, nil
	}

	s.metrics.RecordTransition(event, metrics.ResultConflict)
	s.logger.Warn("conditional write lost",
		slog.String("article_id", id),
		slog.String("event", event),
		slog.String("phase", string(model.PhaseOf(latest))),
	)
	return nil, false, model.NewConflictError(id)
}

func clampRange(rng model.Range) model.Range {
	if rng.Limit <= 0 {
		rng.Limit = DefaultListLimit
	}
	if rng.Limit > MaxListLimit {
		rng.Limit = MaxListLimit
	}
	if rng.Offset < 0 {
		rng.Offset = 0
	}
	return rng
}
