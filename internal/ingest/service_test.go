package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Karans11/ai-news-app/internal/model"
	"github.com/Karans11/ai-news-app/internal/repository/repotest"
	"github.com/Karans11/ai-news-app/internal/security"
)

const testSecret = "automation-secret"

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newTestService はモックリポジトリと作成された記事の記録先を持つServiceを返す。
func newTestService(repo *mockArticleRepo, buf *bytes.Buffer) (*Service, *[]*model.Article) {
	created := &[]*model.Article{}
	if repo.createFn == nil {
		repo.createFn = func(_ context.Context, a *model.Article) error {
			*created = append(*created, a)
			return nil
		}
	}
	svc := NewService(repo, security.NewSanitizer(), security.NewURLGuard(), testSecret, nil, newTestLogger(buf))
	svc.now = func() time.Time { return time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC) }
	svc.newID = func() string { return "11111111-1111-1111-1111-111111111111" }
	return svc, created
}

// 正しいシークレットで取り込むと下書きが作成される
func TestIngestDraft_CreatesDraft(t *testing.T) {
	var buf bytes.Buffer
	svc, created := newTestService(&mockArticleRepo{}, &buf)

	a, err := svc.IngestDraft(context.Background(), DraftPayload{
		Title:       "X",
		Summary:     "Y",
		OriginalURL: "https://z",
	}, testSecret)
	if err != nil {
		t.Fatalf("IngestDraft returned error: %v", err)
	}

	if a.ID == "" {
		t.Error("expected an article id")
	}
	if a.Status != model.StatusDraft || a.ApprovalStatus != model.ApprovalPending || a.IsPublished {
		t.Errorf("state = %s/%s/%v, want pending/draft/false", a.ApprovalStatus, a.Status, a.IsPublished)
	}
	if !a.AutoGenerated {
		t.Error("AutoGenerated should be true")
	}
	if len(*created) != 1 {
		t.Fatalf("Create called %d times, want 1", len(*created))
	}
}

func TestIngestDraft_WrongSecretIsUnauthorized(t *testing.T) {
	var buf bytes.Buffer
	svc, created := newTestService(&mockArticleRepo{}, &buf)

	for _, secret := range []string{"", "wrong", testSecret + "x"} {
		_, err := svc.IngestDraft(context.Background(), DraftPayload{
			Title: "X", Summary: "Y", OriginalURL: "https://z",
		}, secret)
		if !model.HasCode(err, model.ErrCodeUnauthorized) {
			t.Errorf("secret %q: err = %v, want UNAUTHORIZED", secret, err)
		}
	}
	if len(*created) != 0 {
		t.Errorf("Create called %d times, want 0", len(*created))
	}
}

func TestIngestDraft_MissingFieldsAreAllNamed(t *testing.T) {
	var buf bytes.Buffer
	svc, created := newTestService(&mockArticleRepo{}, &buf)

	_, err := svc.IngestDraft(context.Background(), DraftPayload{Summary: "  "}, testSecret)
	if !model.HasCode(err, model.ErrCodeValidation) {
		t.Fatalf("err = %v, want VALIDATION_ERROR", err)
	}
	for _, field := range []string{"title", "summary", "original_url"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q should name %q", err.Error(), field)
		}
	}
	if len(*created) != 0 {
		t.Error("nothing should be inserted on validation failure")
	}
}

func TestIngestDraft_RejectsNonHTTPOriginalURL(t *testing.T) {
	var buf bytes.Buffer
	svc, _ := newTestService(&mockArticleRepo{}, &buf)

	_, err := svc.IngestDraft(context.Background(), DraftPayload{
		Title: "X", Summary: "Y", OriginalURL: "javascript:alert(1)",
	}, testSecret)
	if !model.HasCode(err, model.ErrCodeValidation) {
		t.Errorf("err = %v, want VALIDATION_ERROR", err)
	}
}

func TestIngestDraft_DropsMalformedMetadataWithWarning(t *testing.T) {
	var buf bytes.Buffer
	svc, _ := newTestService(&mockArticleRepo{}, &buf)

	a, err := svc.IngestDraft(context.Background(), DraftPayload{
		Title:           "X",
		Summary:         "Y",
		OriginalURL:     "https://z",
		ImageURL:        "http://127.0.0.1/admin.png",
		ValidationScore: json.RawMessage(`"high"`),
	}, testSecret)
	if err != nil {
		t.Fatalf("IngestDraft returned error: %v", err)
	}

	if a.ValidationScore != nil {
		t.Errorf("ValidationScore = %v, want nil", *a.ValidationScore)
	}
	if a.ImageURL != "" {
		t.Errorf("ImageURL = %q, want empty", a.ImageURL)
	}
	logs := buf.String()
	for _, msg := range []string{"dropping malformed validation_score", "dropping unsafe image_url"} {
		if !strings.Contains(logs, msg) {
			t.Errorf("expected warning %q in logs: %s", msg, logs)
		}
	}
}

func TestIngestDraft_KeepsValidMetadataAndSanitizes(t *testing.T) {
	var buf bytes.Buffer
	svc, _ := newTestService(&mockArticleRepo{}, &buf)

	var payload DraftPayload
	body := `{
		"title": "<b>New</b> model",
		"summary": "<p>Body</p><script>alert(1)</script>",
		"original_url": "https://example.com/a",
		"category": "Research",
		"image_url": "https://example.com/a.png",
		"tags": "ai, llm",
		"validation_score": "0.87",
		"approval_status": "approved",
		"is_published": true
	}`
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	a, err := svc.IngestDraft(context.Background(), payload, testSecret)
	if err != nil {
		t.Fatalf("IngestDraft returned error: %v", err)
	}

	if a.Title != "New model" {
		t.Errorf("Title = %q, want %q", a.Title, "New model")
	}
	if strings.Contains(a.Summary, "script") {
		t.Errorf("Summary should be sanitized: %q", a.Summary)
	}
	if a.Category != "research" {
		t.Errorf("Category = %q, want research", a.Category)
	}
	if a.ImageURL != "https://example.com/a.png" {
		t.Errorf("ImageURL = %q", a.ImageURL)
	}
	if len(a.Tags) != 2 || a.Tags[0] != "ai" || a.Tags[1] != "llm" {
		t.Errorf("Tags = %v, want [ai llm]", a.Tags)
	}
	if a.ValidationScore == nil || *a.ValidationScore != 0.87 {
		t.Errorf("ValidationScore = %v, want 0.87", a.ValidationScore)
	}
	// ペイロード中のワークフロー系フィールドは無視される
	if a.ApprovalStatus != model.ApprovalPending || a.IsPublished {
		t.Errorf("spoofed workflow fields were honoured: %s/%v", a.ApprovalStatus, a.IsPublished)
	}
}

func TestIngestDraft_StoreErrorIsWrapped(t *testing.T) {
	var buf bytes.Buffer
	cause := errors.New("connection refused")
	svc, _ := newTestService(&mockArticleRepo{
		createFn: func(context.Context, *model.Article) error {
			return model.NewStoreUnavailableError(cause)
		},
	}, &buf)

	_, err := svc.IngestDraft(context.Background(), DraftPayload{
		Title: "X", Summary: "Y", OriginalURL: "https://z",
	}, testSecret)
	if !model.IsRetryable(err) {
		t.Errorf("err = %v, want retryable STORE_UNAVAILABLE", err)
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be preserved")
	}
}

func TestCreateEntry_IsManualPending(t *testing.T) {
	var buf bytes.Buffer
	svc, _ := newTestService(&mockArticleRepo{}, &buf)

	a, err := svc.CreateEntry(context.Background(), DraftPayload{
		Title: "X", Summary: "Y", OriginalURL: "https://z",
	})
	if err != nil {
		t.Fatalf("CreateEntry returned error: %v", err)
	}
	if a.AutoGenerated {
		t.Error("manual entries should not be auto_generated")
	}
	if a.Status != model.StatusPending || a.ApprovalStatus != model.ApprovalPending {
		t.Errorf("state = %s/%s, want pending/pending", a.ApprovalStatus, a.Status)
	}
}

func TestImportDraft_SkipsDuplicates(t *testing.T) {
	var buf bytes.Buffer
	seen := map[string]bool{"https://example.com/old": true}
	svc, created := newTestService(&mockArticleRepo{
		existsByOriginalURLFn: func(_ context.Context, u string) (bool, error) {
			return seen[u], nil
		},
	}, &buf)

	_, ok, err := svc.ImportDraft(context.Background(), DraftPayload{
		Title: "old", Summary: "s", OriginalURL: "https://example.com/old",
	})
	if err != nil || ok {
		t.Errorf("duplicate import: created=%v err=%v, want false/nil", ok, err)
	}

	a, ok, err := svc.ImportDraft(context.Background(), DraftPayload{
		Title: "new", Summary: "s", OriginalURL: "https://example.com/new",
	})
	if err != nil || !ok {
		t.Fatalf("new import: created=%v err=%v, want true/nil", ok, err)
	}
	if a.Status != model.StatusDraft || !a.AutoGenerated {
		t.Errorf("imported article = %s auto=%v, want draft auto", a.Status, a.AutoGenerated)
	}
	if len(*created) != 1 {
		t.Errorf("Create called %d times, want 1", len(*created))
	}
}

// 記事の編集は内容のみを変更し、ライフサイクル状態とスコアはそのまま残ることを検証
func TestUpdateEntry_ChangesContentOnly(t *testing.T) {
	var buf bytes.Buffer
	scheduled := time.Date(2025, 1, 3, 9, 0, 0, 0, time.UTC)
	approved := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	score := 0.9
	store := repotest.New(model.Article{
		ID:                 "a-1",
		Title:              "Old",
		Summary:            "Old summary",
		OriginalURL:        "https://example.com/old",
		Tags:               []string{"ai"},
		ValidationScore:    &score,
		ApprovalStatus:     model.ApprovalApproved,
		Status:             model.StatusScheduled,
		AutoGenerated:      true,
		ScheduledPublishAt: &scheduled,
		ApprovedAt:         &approved,
		CreatedAt:          approved,
		UpdatedAt:          approved,
	})
	svc := NewService(store, security.NewSanitizer(), security.NewURLGuard(), testSecret, nil, newTestLogger(&buf))
	svc.now = func() time.Time { return time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC) }

	var payload DraftPayload
	body := `{
		"title": "<i>New</i> title",
		"summary": "<p>New</p><script>alert(1)</script>",
		"original_url": " https://example.com/new ",
		"category": "Research",
		"image_url": "javascript:alert(1)",
		"validation_score": 0.1,
		"approval_status": "rejected",
		"is_published": true
	}`
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	a, err := svc.UpdateEntry(context.Background(), "a-1", payload)
	if err != nil {
		t.Fatalf("UpdateEntry returned error: %v", err)
	}

	if a.Title != "New title" || a.OriginalURL != "https://example.com/new" || a.Category != "research" {
		t.Errorf("content = %q/%q/%q", a.Title, a.OriginalURL, a.Category)
	}
	if strings.Contains(a.Summary, "script") {
		t.Errorf("Summary should be sanitized: %q", a.Summary)
	}
	if a.ImageURL != "" {
		t.Errorf("unsafe image_url should be dropped, got %q", a.ImageURL)
	}
	if len(a.Tags) != 1 || a.Tags[0] != "ai" {
		t.Errorf("Tags = %v, want existing [ai] when tags are omitted", a.Tags)
	}

	stored := store.Get("a-1")
	if model.PhaseOf(&stored) != model.PhaseScheduled {
		t.Errorf("phase = %s, want scheduled", model.PhaseOf(&stored))
	}
	if stored.ScheduledPublishAt == nil || !stored.ScheduledPublishAt.Equal(scheduled) {
		t.Errorf("scheduled_publish_at = %v, want %v", stored.ScheduledPublishAt, scheduled)
	}
	if stored.ValidationScore == nil || *stored.ValidationScore != 0.9 {
		t.Errorf("validation_score = %v, want 0.9", stored.ValidationScore)
	}
	if !stored.AutoGenerated {
		t.Error("auto_generated should not change")
	}
	if !stored.UpdatedAt.Equal(time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("updated_at = %v", stored.UpdatedAt)
	}
}

func TestUpdateEntry_ReplacesTagsWhenGiven(t *testing.T) {
	var buf bytes.Buffer
	store := repotest.New(model.Article{ID: "a-1", Tags: []string{"ai"}})
	svc := NewService(store, security.NewSanitizer(), security.NewURLGuard(), testSecret, nil, newTestLogger(&buf))

	_, err := svc.UpdateEntry(context.Background(), "a-1", DraftPayload{
		Title: "X", Summary: "Y", OriginalURL: "https://z", Tags: TagList{},
	})
	if err != nil {
		t.Fatalf("UpdateEntry returned error: %v", err)
	}
	if tags := store.Get("a-1").Tags; len(tags) != 0 {
		t.Errorf("Tags = %v, want cleared", tags)
	}
}

func TestUpdateEntry_ValidatesBeforeWriting(t *testing.T) {
	var buf bytes.Buffer
	svc, _ := newTestService(&mockArticleRepo{
		updateContentFn: func(context.Context, string, model.ContentChange) (*model.Article, error) {
			t.Error("UpdateContent should not be called for an invalid payload")
			return nil, nil
		},
	}, &buf)

	_, err := svc.UpdateEntry(context.Background(), "a-1", DraftPayload{Title: "<b></b>", OriginalURL: "ftp://x"})
	if !model.HasCode(err, model.ErrCodeValidation) {
		t.Fatalf("err = %v, want VALIDATION_ERROR", err)
	}
	for _, field := range []string{"title", "summary"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q should name %s", err.Error(), field)
		}
	}
}

func TestUpdateEntry_UnknownArticle(t *testing.T) {
	var buf bytes.Buffer
	svc, _ := newTestService(&mockArticleRepo{}, &buf)

	_, err := svc.UpdateEntry(context.Background(), "missing", DraftPayload{
		Title: "X", Summary: "Y", OriginalURL: "https://z",
	})
	if !model.HasCode(err, model.ErrCodeArticleNotFound) {
		t.Errorf("err = %v, want ARTICLE_NOT_FOUND", err)
	}
}
