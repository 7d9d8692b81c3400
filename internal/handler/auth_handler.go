package handler

import (
	"log/slog"
	"net/http"

	"github.com/Karans11/ai-news-app/internal/middleware"
	"github.com/Karans11/ai-news-app/internal/model"
)

// LoginServiceInterface は管理者ログインを行うサービスインターフェース。
type LoginServiceInterface interface {
	Login(email, password string) (string, error)
}

// AuthHandler は管理者ログインのHTTPハンドラー。
type AuthHandler struct {
	service LoginServiceInterface
	logger  *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service LoginServiceInterface, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger,
	}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse はログイン成功時のレスポンス。
type loginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

// Login は認証情報を検証し、管理APIトークンを返す。
// 試行回数の制限はミドルウェアで行うため、成否に関わらずすべての試行が数えられる。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		middleware.WriteError(w, h.logger, model.NewValidationError("email と password を指定してください。"))
		return
	}

	token, err := h.service.Login(req.Email, req.Password)
	if err != nil {
		h.logger.Warn("login failed", slog.String("client_ip", middleware.ClientIP(r)))
		middleware.WriteError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, loginResponse{Success: true, Token: token})
}
