package article

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Karans11/ai-news-app/internal/model"
	"github.com/Karans11/ai-news-app/internal/repository/repotest"
)

var testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo *repotest.Store) *Service {
	var buf bytes.Buffer
	s := NewService(repo, nil, slog.New(slog.NewJSONHandler(&buf, nil)))
	s.now = func() time.Time { return testNow }
	return s
}

func draftArticle(id string) model.Article {
	f := model.PhaseDraft.Project()
	return model.Article{
		ID:             id,
		Title:          "X",
		Summary:        "Y",
		OriginalURL:    "https://z",
		ApprovalStatus: f.ApprovalStatus,
		Status:         f.Status,
		AutoGenerated:  true,
		CreatedAt:      testNow.Add(-time.Hour),
		UpdatedAt:      testNow.Add(-time.Hour),
	}
}

func scheduledArticle(id string, at time.Time) model.Article {
	a := draftArticle(id)
	f := model.PhaseScheduled.Project()
	approved := at.Add(-time.Hour)
	a.ApprovalStatus, a.Status, a.IsPublished = f.ApprovalStatus, f.Status, f.IsPublished
	a.ScheduledPublishAt = &at
	a.ApprovedAt = &approved
	return a
}

// barrier は最初のn回のFindByIDを全員が読み終えるまで待たせ、古いスナップショットでの競合を再現する。
func barrier(n int) func() {
	var wg sync.WaitGroup
	wg.Add(n)
	var calls int32
	return func() {
		if atomic.AddInt32(&calls, 1) <= int32(n) {
			wg.Done()
			wg.Wait()
		}
	}
}

// TestService_Approve_AutoPublish は即時公開の承認で公開済みになることを検証する。
func TestService_Approve_AutoPublish(t *testing.T) {
	repo := repotest.New(draftArticle("a-1"))
	s := newTestService(repo)

	got, err := s.Approve(context.Background(), "a-1", true, nil)
	if err != nil {
		t.Fatalf("Approve error: %v", err)
	}

	if !got.IsPublished || got.Status != model.StatusPublished || got.ApprovalStatus != model.ApprovalApproved {
		t.Errorf("state = %s/%s/%v, want approved/published/true", got.ApprovalStatus, got.Status, got.IsPublished)
	}
	if got.PublishedAt == nil || got.PublishedAt.Sub(testNow).Abs() > time.Second {
		t.Errorf("PublishedAt = %v, want ~%v", got.PublishedAt, testNow)
	}
	if stored := repo.Get("a-1"); !stored.IsPublished {
		t.Error("stored article should be published")
	}
}

func TestService_Approve_WithSchedule(t *testing.T) {
	repo := repotest.New(draftArticle("a-1"))
	s := newTestService(repo)
	at := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	got, err := s.Approve(context.Background(), "a-1", false, &at)
	if err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if got.Status != model.StatusScheduled || got.IsPublished {
		t.Errorf("state = %s/%v, want scheduled/false", got.Status, got.IsPublished)
	}
	if got.ScheduledPublishAt == nil || !got.ScheduledPublishAt.Equal(at) {
		t.Errorf("ScheduledPublishAt = %v, want %v", got.ScheduledPublishAt, at)
	}
}

func TestService_Approve_NotFound(t *testing.T) {
	s := newTestService(repotest.New())

	_, err := s.Approve(context.Background(), "missing", true, nil)
	if !model.HasCode(err, model.ErrCodeArticleNotFound) {
		t.Errorf("error = %v, want ARTICLE_NOT_FOUND", err)
	}
}

// TestService_RejectThenApprove は却下後の承認が INVALID_TRANSITION になることを検証する。
func TestService_RejectThenApprove(t *testing.T) {
	repo := repotest.New(draftArticle("a-1"))
	s := newTestService(repo)

	rejected, err := s.Reject(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("Reject error: %v", err)
	}
	if rejected.ApprovalStatus != model.ApprovalRejected {
		t.Errorf("ApprovalStatus = %s, want rejected", rejected.ApprovalStatus)
	}

	_, err = s.Approve(context.Background(), "a-1", true, nil)
	if !model.HasCode(err, model.ErrCodeInvalidTransition) {
		t.Errorf("approve after reject error = %v, want INVALID_TRANSITION", err)
	}
	if repo.Get("a-1").IsPublished {
		t.Error("rejected article must never be published")
	}
}

// TestService_ConcurrentApprove は同じ記事への同時承認で一方のみ成功し他方がCONFLICTになることを検証する。
func TestService_ConcurrentApprove(t *testing.T) {
	repo := repotest.New(draftArticle("a-1"))
	repo.AfterFind = barrier(2)
	s := newTestService(repo)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Approve(context.Background(), "a-1", i == 0, nil)
		}(i)
	}
	wg.Wait()

	var ok, conflict int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case model.HasCode(err, model.ErrCodeConflict):
			conflict++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflict != 1 {
		t.Errorf("ok=%d conflict=%d, want 1 and 1", ok, conflict)
	}
}

// TestService_ConcurrentSweep は同じ記事への同時スイープが両方とも成功扱いになり、実際の書き込みは1回だけであることを検証する。
func TestService_ConcurrentSweep(t *testing.T) {
	due := testNow.Add(-time.Minute)
	repo := repotest.New(scheduledArticle("a-1", due))
	repo.AfterFind = barrier(2)
	s := newTestService(repo)

	var wg sync.WaitGroup
	noops := make([]bool, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, noops[i], errs[i] = s.SweepPublish(context.Background(), "a-1", testNow)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("sweep %d error: %v", i, err)
		}
	}
	if noops[0] == noops[1] {
		t.Errorf("noops = %v, want exactly one noop", noops)
	}

	stored := repo.Get("a-1")
	if !stored.IsPublished || stored.PublishedAt == nil || !stored.PublishedAt.Equal(testNow) {
		t.Errorf("stored = published:%v at:%v, want published at %v", stored.IsPublished, stored.PublishedAt, testNow)
	}
}

// TestService_SweepPublish_Idempotent は公開済み記事への再スイープがエラーにならず状態も変えないことを検証する。
func TestService_SweepPublish_Idempotent(t *testing.T) {
	repo := repotest.New(scheduledArticle("a-1", testNow.Add(-time.Hour)))
	s := newTestService(repo)

	first, noop, err := s.SweepPublish(context.Background(), "a-1", testNow)
	if err != nil || noop {
		t.Fatalf("first sweep: noop=%v err=%v", noop, err)
	}

	second, noop, err := s.SweepPublish(context.Background(), "a-1", testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("second sweep error: %v", err)
	}
	if !noop {
		t.Error("second sweep should be a noop")
	}
	if !second.PublishedAt.Equal(*first.PublishedAt) || !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Errorf("second sweep changed state: %+v -> %+v", first, second)
	}
}

func TestService_PublishNow_OverrideBeforeSchedule(t *testing.T) {
	repo := repotest.New(scheduledArticle("a-1", testNow.Add(time.Hour)))
	s := newTestService(repo)

	if _, err := s.PublishNow(context.Background(), "a-1", false); !model.HasCode(err, model.ErrCodeInvalidTransition) {
		t.Fatalf("publish without override error = %v, want INVALID_TRANSITION", err)
	}

	got, err := s.PublishNow(context.Background(), "a-1", true)
	if err != nil {
		t.Fatalf("PublishNow error: %v", err)
	}
	if !got.IsPublished || got.ScheduledPublishAt != nil {
		t.Errorf("got published=%v scheduled=%v, want published and schedule cleared", got.IsPublished, got.ScheduledPublishAt)
	}
}

func TestService_StoreUnavailableIsRetryable(t *testing.T) {
	repo := repotest.New(draftArticle("a-1"))
	repo.UpdateErr = model.NewStoreUnavailableError(context.DeadlineExceeded)
	s := newTestService(repo)

	_, err := s.Reject(context.Background(), "a-1")
	if !model.IsRetryable(err) {
		t.Errorf("error = %v, want retryable STORE_UNAVAILABLE", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error should wrap the cause: %v", err)
	}
}

func TestService_ListPending(t *testing.T) {
	auto := draftArticle("auto")
	manual := draftArticle("manual")
	manual.AutoGenerated = false
	manual.Status = model.StatusPending
	published := scheduledArticle("published", testNow)
	published.Status, published.IsPublished = model.StatusPublished, true

	s := newTestService(repotest.New(auto, manual, published))

	got, err := s.ListPending(context.Background(), model.Range{}, false)
	if err != nil {
		t.Fatalf("ListPending error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "auto" {
		t.Errorf("ListPending(auto only) = %v, want [auto]", ids(got))
	}

	got, err = s.ListPending(context.Background(), model.Range{}, true)
	if err != nil {
		t.Fatalf("ListPending error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ListPending(include manual) = %v, want 2 articles", ids(got))
	}
}

func TestService_ListAll(t *testing.T) {
	older := draftArticle("older")
	older.CreatedAt = testNow.Add(-2 * time.Hour)
	rejected := draftArticle("rejected")
	rejected.ApprovalStatus, rejected.Status = model.ApprovalRejected, model.StatusRejected
	rejected.CreatedAt = testNow.Add(-time.Minute)
	published := scheduledArticle("published", testNow)
	published.Status, published.IsPublished = model.StatusPublished, true
	published.AutoGenerated = false

	s := newTestService(repotest.New(older, rejected, published))

	got, err := s.ListAll(context.Background(), model.Range{})
	if err != nil {
		t.Fatalf("ListAll error: %v", err)
	}
	want := []string{"rejected", "published", "older"}
	if len(got) != len(want) {
		t.Fatalf("ListAll = %v, want %v", ids(got), want)
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("ListAll = %v, want %v", ids(got), want)
			break
		}
	}

	got, err = s.ListAll(context.Background(), model.Range{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("ListAll error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "published" {
		t.Errorf("ListAll(offset 1, limit 1) = %v, want [published]", ids(got))
	}
}

func TestService_Delete(t *testing.T) {
	repo := repotest.New(scheduledArticle("a-1", testNow.Add(time.Hour)))
	s := newTestService(repo)

	if err := s.Delete(context.Background(), "a-1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := s.Get(context.Background(), "a-1"); !model.HasCode(err, model.ErrCodeArticleNotFound) {
		t.Errorf("Get after delete = %v, want ARTICLE_NOT_FOUND", err)
	}
	if err := s.Delete(context.Background(), "a-1"); !model.HasCode(err, model.ErrCodeArticleNotFound) {
		t.Errorf("second Delete = %v, want ARTICLE_NOT_FOUND", err)
	}
}

// 削除された記事へのスイープはARTICLE_NOT_FOUNDとなり、記事は復活しないことを検証
func TestService_SweepAfterDeleteIsNotFound(t *testing.T) {
	repo := repotest.New(scheduledArticle("a-1", testNow.Add(-time.Minute)))
	s := newTestService(repo)

	deleted := false
	repo.AfterFind = func() {
		if !deleted {
			deleted = true
			repo.AfterFind = nil
			if _, err := repo.Delete(context.Background(), "a-1"); err != nil {
				t.Errorf("Delete error: %v", err)
			}
		}
	}

	_, _, err := s.SweepPublish(context.Background(), "a-1", testNow)
	if !model.HasCode(err, model.ErrCodeArticleNotFound) {
		t.Errorf("SweepPublish = %v, want ARTICLE_NOT_FOUND", err)
	}
	if _, err := s.Get(context.Background(), "a-1"); !model.HasCode(err, model.ErrCodeArticleNotFound) {
		t.Errorf("deleted article came back: %v", err)
	}
}

func TestService_GetNotFound(t *testing.T) {
	s := newTestService(repotest.New())
	if _, err := s.Get(context.Background(), "nope"); !model.HasCode(err, model.ErrCodeArticleNotFound) {
		t.Errorf("error = %v, want ARTICLE_NOT_FOUND", err)
	}
}

func TestClampRange(t *testing.T) {
	tests := []struct {
		in   model.Range
		want model.Range
	}{
		{in: model.Range{}, want: model.Range{Limit: DefaultListLimit}},
		{in: model.Range{Offset: -5, Limit: 1000}, want: model.Range{Limit: MaxListLimit}},
		{in: model.Range{Offset: 40, Limit: 10}, want: model.Range{Offset: 40, Limit: 10}},
	}
	for _, tt := range tests {
		if got := clampRange(tt.in); got != tt.want {
			t.Errorf("clampRange(%+v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func ids(articles []*model.Article) []string {
	out := make([]string, len(articles))
	for i, a := range articles {
		out[i] = a.ID
	}
	return out
}
