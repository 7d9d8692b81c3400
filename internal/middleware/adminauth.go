package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Karans11/ai-news-app/internal/model"
)

// TokenChecker はAuthorizationヘッダーを検証する。
type TokenChecker interface {
	Check(authorization string) error
}

// NewAdminAuthMiddleware は管理系エンドポイントのBearerトークンを検証するミドルウェアを返す。
// 検証に失敗した場合は401を返し、後続のハンドラーを呼び出さない。
func NewAdminAuthMiddleware(checker TokenChecker, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := checker.Check(r.Header.Get("Authorization")); err != nil {
				logger.Warn("admin authentication failed",
					slog.String("client_ip", ClientIP(r)),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
