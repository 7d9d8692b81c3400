package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/Karans11/ai-news-app/internal/auth"
	"github.com/Karans11/ai-news-app/internal/model"
)

// AttemptLimiter はログイン試行を記録し、許可するかを判定する。
type AttemptLimiter interface {
	Allow(ctx context.Context, clientID string, now time.Time) auth.Decision
}

// NewLoginLimitMiddleware はクライアントIPごとにログイン試行回数を制限するミドルウェアを返す。
// 上限を超えた場合は429とウィンドウがリセットされるまでの秒数をRetry-Afterで返す。
func NewLoginLimitMiddleware(limiter AttemptLimiter, now func() time.Time) func(next http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := now()
			d := limiter.Allow(r.Context(), ClientIP(r), t)
			if !d.Allowed {
				retry := int(math.Ceil(d.RetryAfter(t).Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
