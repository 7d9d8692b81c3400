package importer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SourceFetcher は1ソースのフェッチを実行する。
type SourceFetcher interface {
	Fetch(ctx context.Context, src *Source) (FetchStats, error)
}

// Scheduler はソースのフェッチのスケジューリングと並列制御を行う。
// 1ソースの失敗は他のソースの取り込みを止めない。
type Scheduler struct {
	sources        []*Source
	fetcher        SourceFetcher
	logger         *slog.Logger
	maxConcurrency int
	now            func() time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(feedURLs []string, fetcher SourceFetcher, logger *slog.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	sources := make([]*Source, 0, len(feedURLs))
	for _, u := range feedURLs {
		sources = append(sources, NewSource(u))
	}
	return &Scheduler{
		sources:        sources,
		fetcher:        fetcher,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		now:            time.Now,
	}
}

// Sources は管理しているソースを返す。
func (s *Scheduler) Sources() []*Source {
	return s.sources
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("フィード取り込みを開始しました",
		slog.Duration("interval", interval),
		slog.Int("source_count", len(s.sources)),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("フィード取り込みを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce はフェッチ対象のソースを並列でフェッチし、作成した記事数の合計を返す。
func (s *Scheduler) RunOnce(ctx context.Context) int {
	start := time.Now()
	now := s.now()

	var due []*Source
	for _, src := range s.sources {
		if src.Due(now) {
			due = append(due, src)
		}
	}
	if len(due) == 0 {
		s.logger.Debug("フェッチ対象のソースはありません")
		return 0
	}

	var (
		mu      sync.Mutex
		created int
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, src := range due {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(src *Source) {
			defer wg.Done()
			defer func() { <-sem }()

			stats, err := s.fetcher.Fetch(ctx, src)
			if err != nil {
				s.logger.Error("フィードの取り込みに失敗しました",
					slog.String("feed_url", src.URL),
					slog.String("error", err.Error()),
				)
			}
			mu.Lock()
			created += stats.Created
			mu.Unlock()
		}(src)
	}

	wg.Wait()

	s.logger.Info("取り込みサイクルが完了しました",
		slog.Int("source_count", len(due)),
		slog.Int("items_created", created),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return created
}
