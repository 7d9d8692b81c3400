// Package sweep は予約時刻を過ぎた記事を公開するスイープ処理を提供する。
// 複数のスイープが同時に走っても、公開遷移の冪等性によって結果は変わらない。
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Karans11/ai-news-app/internal/metrics"
	"github.com/Karans11/ai-news-app/internal/model"
)

// 記事ごとの処理結果
const (
	StatusPublished = "published"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// DefaultBatchSize は1回のスイープで処理する記事数の上限。
const DefaultBatchSize = 500

// DueLister は公開対象の予約記事を取得する。
type DueLister interface {
	ListDueForPublish(ctx context.Context, now time.Time, limit int) ([]*model.Article, error)
}

// Publisher は1件の予約記事を公開する。
// 既に公開済みの場合は noop=true を返す。
type Publisher interface {
	SweepPublish(ctx context.Context, id string, now time.Time) (*model.Article, bool, error)
}

// ArticleResult は1記事分のスイープ結果。
type ArticleResult struct {
	ArticleID string `json:"articleId"`
	Status    string `json:"status"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Result は1回のスイープの集計結果。
type Result struct {
	PublishedCount int             `json:"publishedCount"`
	FailedCount    int             `json:"failedCount"`
	SkippedCount   int             `json:"skippedCount"`
	Results        []ArticleResult `json:"results"`
}

// Sweeper は予約公開のスイープを実行する。
type Sweeper struct {
	lister         DueLister
	publisher      Publisher
	metrics        metrics.MetricsCollector
	logger         *slog.Logger
	maxConcurrency int
	batchSize      int
}

// NewSweeper はSweeperの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewSweeper(
	lister DueLister,
	publisher Publisher,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	maxConcurrency int,
) *Sweeper {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		lister:         lister,
		publisher:      publisher,
		metrics:        collector,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		batchSize:      DefaultBatchSize,
	}
}

// Start は指定間隔のティッカーでスイープを実行する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("予約公開スイープを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	s.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("予約公開スイープを停止しました")
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Sweeper) runLogged(ctx context.Context) {
	if _, err := s.Run(ctx, time.Now().UTC()); err != nil {
		s.logger.Error("スイープの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// Run は now 時点で公開時刻を過ぎた予約記事をすべて公開する。
// 1件の失敗でバッチ全体を中断せず、記事ごとの結果を返す。
// 対象記事の取得自体に失敗した場合のみエラーを返す。
func (s *Sweeper) Run(ctx context.Context, now time.Time) (*Result, error) {
	start := time.Now()

	articles, err := s.lister.ListDueForPublish(ctx, now, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("公開対象の取得に失敗しました: %w", err)
	}

	result := &Result{Results: make([]ArticleResult, len(articles))}
	if len(articles) == 0 {
		s.logger.Debug("公開対象の予約記事はありません")
		s.metrics.RecordSweep(0, 0, 0, time.Since(start))
		return result, nil
	}

	s.logger.Info("スイープを開始します",
		slog.Int("article_count", len(articles)),
		slog.Time("now", now),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for i, a := range articles {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int, id string) {
			defer wg.Done()
			defer func() { <-sem }()
			result.Results[i] = s.publishOne(ctx, id, now)
		}(i, a.ID)
	}

	wg.Wait()

	for _, r := range result.Results {
		switch r.Status {
		case StatusPublished:
			result.PublishedCount++
		case StatusSkipped:
			result.SkippedCount++
		default:
			result.FailedCount++
		}
	}

	duration := time.Since(start)
	s.metrics.RecordSweep(result.PublishedCount, result.FailedCount, result.SkippedCount, duration)
	s.logger.Info("スイープが完了しました",
		slog.Int("published", result.PublishedCount),
		slog.Int("failed", result.FailedCount),
		slog.Int("skipped", result.SkippedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	if len(articles) == s.batchSize {
		s.logger.Warn("公開対象がバッチ上限に達しました。残りは次回のスイープで処理します",
			slog.Int("batch_size", s.batchSize),
		)
	}

	return result, nil
}

// publishOne は1記事を公開する。panicも含めて他の記事へ影響させない。
func (s *Sweeper) publishOne(ctx context.Context, id string, now time.Time) (res ArticleResult) {
	res.ArticleID = id
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("記事の公開中にpanicが発生しました",
				slog.String("article_id", id),
				slog.Any("panic", rec),
			)
			res.Status = StatusFailed
			res.Error = fmt.Sprint(rec)
		}
	}()

	_, noop, err := s.publisher.SweepPublish(ctx, id, now)
	switch {
	case err != nil:
		s.logger.Error("記事の公開に失敗しました",
			slog.String("article_id", id),
			slog.String("error", err.Error()),
		)
		res.Status = StatusFailed
		res.Error = err.Error()
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			res.Code = apiErr.Code
			res.Error = apiErr.Message
		}
	case noop:
		res.Status = StatusSkipped
	default:
		res.Status = StatusPublished
	}
	return res
}
