package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Karans11/ai-news-app/internal/middleware"
	"github.com/Karans11/ai-news-app/internal/worker/sweep"
)

// SweeperInterface は予約公開のスイープを1回実行する。
type SweeperInterface interface {
	Run(ctx context.Context, now time.Time) (*sweep.Result, error)
}

// SweepHandler は予約公開スイープのHTTPハンドラー。
type SweepHandler struct {
	sweeper SweeperInterface
	logger  *slog.Logger
	now     func() time.Time
}

// NewSweepHandler はSweepHandlerを生成する。
func NewSweepHandler(sweeper SweeperInterface, logger *slog.Logger) *SweepHandler {
	return &SweepHandler{
		sweeper: sweeper,
		logger:  logger,
		now:     time.Now,
	}
}

// sweepResponse はスイープ結果のレスポンス。
type sweepResponse struct {
	Success bool `json:"success"`
	*sweep.Result
}

// PublishScheduled は公開時刻を過ぎた予約記事を公開する。
// POST /sweep/publish-scheduled
func (h *SweepHandler) PublishScheduled(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.Run(r.Context(), h.now().UTC())
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, sweepResponse{Success: true, Result: result})
}
