package handler

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Karans11/ai-news-app/internal/metrics"
	"github.com/Karans11/ai-news-app/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger  *slog.Logger
	Metrics metrics.MetricsCollector

	// ミドルウェア依存
	CORSAllowedOrigin string
	TrustedProxies    []netip.Prefix
	RateLimiter       *middleware.RateLimiter
	TokenChecker      middleware.TokenChecker
	LoginLimiter      middleware.AttemptLimiter

	// 記事
	ArticleService ArticleServiceInterface
	EntryWriter    EntryWriter

	// 取り込み
	IngestService   IngestServiceInterface
	CallbackService CallbackServiceInterface
	CallbackSecret  string

	// 認証
	LoginService LoginServiceInterface

	// スイープ
	Sweeper SweeperInterface

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → ClientIP → Recovery → Logging → Metrics → SecurityHeaders → CORS
//
// クライアントIPは接続元から決定し、転送ヘッダーはTrustedProxiesからの接続に限り参照する。
// 取り込みとコールバックにはクライアントごとのレート制限を追加し、
// 管理系ルートはBearerトークン認証の内側に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewClientIPMiddleware(deps.TrustedProxies))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	articleHandler := NewArticleHandler(deps.ArticleService, deps.EntryWriter, logger)
	ingestHandler := NewIngestHandler(deps.IngestService, deps.CallbackService, deps.CallbackSecret, logger)
	authHandler := NewAuthHandler(deps.LoginService, logger)
	sweepHandler := NewSweepHandler(deps.Sweeper, logger)

	// --- 認証不要のルート ---

	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker, logger).Health)
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Get("/articles", articleHandler.ListPublished)

	// 自動化パイプライン（シークレットで認証、クライアントごとにレート制限）
	r.With(rateLimit(deps.RateLimiter, "ingest")).Post("/ingest/article", ingestHandler.Ingest)
	r.With(rateLimit(deps.RateLimiter, "callback")).Post("/callback", ingestHandler.Callback)

	// ログイン（試行回数制限）
	r.With(middleware.NewLoginLimitMiddleware(deps.LoginLimiter, nil)).Post("/auth/login", authHandler.Login)

	// --- 管理者認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAdminAuthMiddleware(deps.TokenChecker, logger))

		r.Get("/articles/pending", articleHandler.ListPending)
		r.Get("/articles/all", articleHandler.ListAll)
		r.Post("/articles", articleHandler.CreateArticle)

		r.Route("/articles/{id}", func(r chi.Router) {
			r.Get("/", articleHandler.GetArticle)
			r.Put("/", articleHandler.UpdateArticle)
			r.Delete("/", articleHandler.DeleteArticle)
			r.Post("/approve", articleHandler.Approve)
			r.Post("/reject", articleHandler.Reject)
			r.Post("/publish", articleHandler.Publish)
		})

		r.Post("/sweep/publish-scheduled", sweepHandler.PublishScheduled)
	})

	return r
}

// rateLimit はレート制限ミドルウェアを返す。limiterがnilの場合は制限しない。
func rateLimit(limiter *middleware.RateLimiter, scope string) func(http.Handler) http.Handler {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return limiter.Middleware(scope)
}
