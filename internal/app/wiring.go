package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Karans11/ai-news-app/internal/article"
	"github.com/Karans11/ai-news-app/internal/auth"
	"github.com/Karans11/ai-news-app/internal/config"
	"github.com/Karans11/ai-news-app/internal/database"
	"github.com/Karans11/ai-news-app/internal/ingest"
	"github.com/Karans11/ai-news-app/internal/metrics"
	"github.com/Karans11/ai-news-app/internal/repository"
	"github.com/Karans11/ai-news-app/internal/security"
	"github.com/Karans11/ai-news-app/internal/worker/sweep"
)

// components は各起動モードで共有するドメインサービス群。
type components struct {
	articles *article.Service
	ingest   *ingest.Service
	sweeper  *sweep.Sweeper
	guard    security.URLGuard
}

// newComponents はリポジトリとドメインサービスをワイヤリングする。
func newComponents(cfg *config.Config, db *sql.DB, collector metrics.MetricsCollector, logger *slog.Logger) *components {
	repo := repository.NewPostgresArticleRepo(db, cfg.StoreTimeout)
	guard := security.NewURLGuard()

	articleSvc := article.NewService(repo, collector, logger)
	ingestSvc := ingest.NewService(repo, security.NewSanitizer(), guard, cfg.AutomationSecret, collector, logger)
	sweeper := sweep.NewSweeper(repo, articleSvc, collector, logger, cfg.SweepMaxConcurrent)

	return &components{
		articles: articleSvc,
		ingest:   ingestSvc,
		sweeper:  sweeper,
		guard:    guard,
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newAttemptStore はログイン試行回数のストアを生成する。
// REDIS_URLが設定されていればインスタンス間で共有されるRedisストアを、
// 未設定ならプロセス内のメモリストアを使用する。返される関数で後始末を行う。
func newAttemptStore(cfg *config.Config, logger *slog.Logger) (auth.AttemptStore, func(), error) {
	if cfg.RedisURL == "" {
		store := auth.NewMemoryAttemptStore(time.Minute)
		logger.Info("login limiter uses in-memory store")
		return store, store.Stop, nil
	}

	client, err := auth.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("login limiter uses redis store")
	return auth.NewRedisAttemptStore(client), func() { client.Close() }, nil
}
