package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/Karans11/ai-news-app/internal/metrics"
)

// ログイン試行の制限値。クライアント識別子ごとに固定ウィンドウで数える。
const (
	LoginMaxAttempts = 5
	LoginWindow      = 5 * time.Minute
)

// Decision は1回の試行に対する判定結果。
type Decision struct {
	Allowed bool
	Count   int       // ウィンドウ内で数えられた試行回数
	ResetAt time.Time // ウィンドウがリセットされる時刻
}

// RetryAfter は次の試行が許可されるまでの待ち時間を返す。
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// AttemptStore はクライアントごとの試行回数を保持するストア。
//
// Hit は次の規則で1回の試行を記録する:
//   - バケットがないかウィンドウが経過していれば {count:1, resetAt:now+window} として許可
//   - count が limit 以上なら拒否（カウントは増やさない）
//   - それ以外は count を1増やして許可
type AttemptStore interface {
	Hit(ctx context.Context, key string, now time.Time, limit int, window time.Duration) (Decision, error)
}

// LoginLimiter はログインエンドポイントの試行回数制限。
// プロセスごとに1つ生成し、ハンドラーへ注入して使用する。
type LoginLimiter struct {
	store   AttemptStore
	limit   int
	window  time.Duration
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewLoginLimiter はLoginLimiterを生成する。
func NewLoginLimiter(store AttemptStore, collector metrics.MetricsCollector, logger *slog.Logger) *LoginLimiter {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginLimiter{
		store:   store,
		limit:   LoginMaxAttempts,
		window:  LoginWindow,
		metrics: collector,
		logger:  logger,
	}
}

// Allow はクライアントの試行を1回記録し、許可するかを返す。
// 認証情報の正否に関わらず、すべての試行を数える。
// ストアが利用できない場合はログインを止めないよう許可する。
func (l *LoginLimiter) Allow(ctx context.Context, clientID string, now time.Time) Decision {
	d, err := l.store.Hit(ctx, clientID, now, l.limit, l.window)
	if err != nil {
		l.logger.Warn("login attempt store unavailable, allowing attempt",
			slog.String("client_ip", clientID),
			slog.String("error", err.Error()),
		)
		return Decision{Allowed: true, ResetAt: now.Add(l.window)}
	}

	l.metrics.RecordLoginAttempt(d.Allowed)
	if !d.Allowed {
		l.logger.Warn("login rate limit exceeded",
			slog.String("client_ip", clientID),
			slog.Int("count", d.Count),
			slog.Time("reset_at", d.ResetAt),
		)
	}
	return d
}
