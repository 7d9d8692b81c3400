package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Karans11/ai-news-app/internal/ingest"
	"github.com/Karans11/ai-news-app/internal/model"
	"github.com/Karans11/ai-news-app/internal/worker/sweep"
)

// --- モック定義 ---

// mockArticleService はArticleServiceInterfaceのモック実装。
type mockArticleService struct {
	approveFn       func(ctx context.Context, id string, autoPublish bool, scheduledAt *time.Time) (*model.Article, error)
	rejectFn        func(ctx context.Context, id string) (*model.Article, error)
	publishNowFn    func(ctx context.Context, id string, override bool) (*model.Article, error)
	getFn           func(ctx context.Context, id string) (*model.Article, error)
	listPendingFn   func(ctx context.Context, rng model.Range, includeManual bool) ([]*model.Article, error)
	listPublishedFn func(ctx context.Context, category string, rng model.Range) ([]*model.Article, error)
	listAllFn       func(ctx context.Context, rng model.Range) ([]*model.Article, error)
	deleteFn        func(ctx context.Context, id string) error
}

func (m *mockArticleService) Approve(ctx context.Context, id string, autoPublish bool, scheduledAt *time.Time) (*model.Article, error) {
	if m.approveFn != nil {
		return m.approveFn(ctx, id, autoPublish, scheduledAt)
	}
	return &model.Article{ID: id}, nil
}

func (m *mockArticleService) Reject(ctx context.Context, id string) (*model.Article, error) {
	if m.rejectFn != nil {
		return m.rejectFn(ctx, id)
	}
	return &model.Article{ID: id}, nil
}

func (m *mockArticleService) PublishNow(ctx context.Context, id string, override bool) (*model.Article, error) {
	if m.publishNowFn != nil {
		return m.publishNowFn(ctx, id, override)
	}
	return &model.Article{ID: id}, nil
}

func (m *mockArticleService) Get(ctx context.Context, id string) (*model.Article, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return &model.Article{ID: id}, nil
}

func (m *mockArticleService) ListPending(ctx context.Context, rng model.Range, includeManual bool) ([]*model.Article, error) {
	if m.listPendingFn != nil {
		return m.listPendingFn(ctx, rng, includeManual)
	}
	return nil, nil
}

func (m *mockArticleService) ListPublished(ctx context.Context, category string, rng model.Range) ([]*model.Article, error) {
	if m.listPublishedFn != nil {
		return m.listPublishedFn(ctx, category, rng)
	}
	return nil, nil
}

func (m *mockArticleService) ListAll(ctx context.Context, rng model.Range) ([]*model.Article, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx, rng)
	}
	return nil, nil
}

func (m *mockArticleService) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// mockEntryWriter はEntryWriterのモック実装。
type mockEntryWriter struct {
	createEntryFn func(ctx context.Context, payload ingest.DraftPayload) (*model.Article, error)
	updateEntryFn func(ctx context.Context, id string, payload ingest.DraftPayload) (*model.Article, error)
}

func (m *mockEntryWriter) UpdateEntry(ctx context.Context, id string, payload ingest.DraftPayload) (*model.Article, error) {
	if m.updateEntryFn != nil {
		return m.updateEntryFn(ctx, id, payload)
	}
	return &model.Article{ID: id}, nil
}

func (m *mockEntryWriter) CreateEntry(ctx context.Context, payload ingest.DraftPayload) (*model.Article, error) {
	if m.createEntryFn != nil {
		return m.createEntryFn(ctx, payload)
	}
	return &model.Article{ID: "entry-1"}, nil
}

// mockIngestService はIngestServiceInterfaceのモック実装。
type mockIngestService struct {
	ingestDraftFn func(ctx context.Context, payload ingest.DraftPayload, secret string) (*model.Article, error)
}

func (m *mockIngestService) IngestDraft(ctx context.Context, payload ingest.DraftPayload, secret string) (*model.Article, error) {
	if m.ingestDraftFn != nil {
		return m.ingestDraftFn(ctx, payload, secret)
	}
	return &model.Article{ID: "draft-1"}, nil
}

// mockCallbackService はCallbackServiceInterfaceのモック実装。
type mockCallbackService struct {
	handleFn func(ctx context.Context, data string) (*ingest.CallbackResult, error)
}

func (m *mockCallbackService) Handle(ctx context.Context, data string) (*ingest.CallbackResult, error) {
	if m.handleFn != nil {
		return m.handleFn(ctx, data)
	}
	return &ingest.CallbackResult{Message: "ok"}, nil
}

// mockLoginService はLoginServiceInterfaceのモック実装。
type mockLoginService struct {
	loginFn func(email, password string) (string, error)
}

func (m *mockLoginService) Login(email, password string) (string, error) {
	if m.loginFn != nil {
		return m.loginFn(email, password)
	}
	return "token", nil
}

// mockSweeper はSweeperInterfaceのモック実装。
type mockSweeper struct {
	runFn func(ctx context.Context, now time.Time) (*sweep.Result, error)
}

func (m *mockSweeper) Run(ctx context.Context, now time.Time) (*sweep.Result, error) {
	if m.runFn != nil {
		return m.runFn(ctx, now)
	}
	return &sweep.Result{Results: []sweep.ArticleResult{}}, nil
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// --- テストヘルパー ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// decodeBody はレスポンスボディをmapにデコードするヘルパー。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return result
}

// assertErrorCode はエラーレスポンスのステータスとコードを検証するヘルパー。
func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Errorf("status = %d, want %d (body: %s)", w.Code, status, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
	if body["code"] != code {
		t.Errorf("code = %v, want %q", body["code"], code)
	}
}
