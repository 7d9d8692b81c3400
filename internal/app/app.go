package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Karans11/ai-news-app/internal/auth"
	"github.com/Karans11/ai-news-app/internal/config"
	"github.com/Karans11/ai-news-app/internal/database"
	"github.com/Karans11/ai-news-app/internal/handler"
	"github.com/Karans11/ai-news-app/internal/ingest"
	"github.com/Karans11/ai-news-app/internal/logger"
	"github.com/Karans11/ai-news-app/internal/metrics"
	"github.com/Karans11/ai-news-app/internal/middleware"
	"github.com/Karans11/ai-news-app/internal/worker/importer"
)

// importTickInterval は取り込みスケジューラがソースの期限を確認する間隔。
// 各ソースの実際のフェッチ間隔はIMPORT_INTERVALとバックオフで決まる。
const importTickInterval = time.Minute

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandSweep:
		return runSweep(cfg, os.Stdout)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := openDatabase(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 3. ドメインサービスの初期化
	comps := newComponents(cfg, db, collector, log)

	// 4. 認証
	attemptStore, closeStore, err := newAttemptStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	rateLimiter := middleware.NewRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitIngest), log)
	defer rateLimiter.Stop()

	// 5. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:            log,
		Metrics:           collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TrustedProxies:    cfg.TrustedProxies,
		RateLimiter:       rateLimiter,
		TokenChecker:      auth.NewTokenGate(cfg.AdminToken),
		LoginLimiter:      auth.NewLoginLimiter(attemptStore, collector, log),

		ArticleService: comps.articles,
		EntryWriter:    comps.ingest,

		IngestService:   comps.ingest,
		CallbackService: ingest.NewCallbacks(comps.articles, log),
		CallbackSecret:  cfg.CallbackSecret,

		LoginService: auth.NewLoginService(cfg.AdminEmail, cfg.AdminPassword, cfg.AdminToken),
		Sweeper:      comps.sweeper,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	log.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 予約公開スイープを定期実行し、IMPORT_FEED_URLSが設定されていればフィード取り込みも行う。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	log := slog.Default()

	db, err := openDatabase(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("database connection established (worker)")

	collector := metrics.NewCollector(prometheus.NewRegistry())
	comps := newComponents(cfg, db, collector, log)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		log.Info("shutting down worker...")
		cancel()
	}()

	log.Info("worker starting",
		slog.Duration("sweep_interval", cfg.SweepInterval),
		slog.Int("sweep_max_concurrent", cfg.SweepMaxConcurrent),
		slog.Int("import_sources", len(cfg.ImportFeedURLs)),
	)

	var wg sync.WaitGroup

	if len(cfg.ImportFeedURLs) > 0 {
		fetcher := importer.NewFetcher(
			comps.ingest, comps.guard, collector, log,
			cfg.FetchTimeout, cfg.FetchMaxSize, cfg.ImportInterval,
		)
		scheduler := importer.NewScheduler(cfg.ImportFeedURLs, fetcher, log, cfg.ImportMaxConcurrent)

		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Start(ctx, importTickInterval)
		}()
	}

	// 予約公開スイープをメインgoroutineで実行（ブロッキング）
	comps.sweeper.Start(ctx, cfg.SweepInterval)
	wg.Wait()

	log.Info("worker stopped gracefully")
	return nil
}

// runSweep は予約公開スイープを1回実行し、結果をJSONでoutへ書き出す。
// cronなど外部スケジューラからの起動を想定している。
func runSweep(cfg *config.Config, out io.Writer) error {
	log := slog.Default()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	comps := newComponents(cfg, db, metrics.Nop{}, log)

	result, err := comps.sweeper.Run(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
