package ingest

import (
	"context"
	"time"

	"github.com/Karans11/ai-news-app/internal/model"
)

// mockArticleRepo はテスト用のArticleRepositoryモック。
type mockArticleRepo struct {
	findByIDFn            func(ctx context.Context, id string) (*model.Article, error)
	createFn              func(ctx context.Context, article *model.Article) error
	updateStateIfFn       func(ctx context.Context, id string, expected model.StateFields, change model.StateChange) (*model.Article, error)
	updateContentFn       func(ctx context.Context, id string, change model.ContentChange) (*model.Article, error)
	deleteFn              func(ctx context.Context, id string) (bool, error)
	queryFn               func(ctx context.Context, filter model.ArticleFilter, order model.ArticleOrder, rng model.Range) ([]*model.Article, error)
	listDueForPublishFn   func(ctx context.Context, now time.Time, limit int) ([]*model.Article, error)
	existsByOriginalURLFn func(ctx context.Context, originalURL string) (bool, error)
}

func (m *mockArticleRepo) FindByID(ctx context.Context, id string) (*model.Article, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockArticleRepo) Create(ctx context.Context, article *model.Article) error {
	if m.createFn != nil {
		return m.createFn(ctx, article)
	}
	return nil
}

func (m *mockArticleRepo) UpdateStateIf(ctx context.Context, id string, expected model.StateFields, change model.StateChange) (*model.Article, error) {
	if m.updateStateIfFn != nil {
		return m.updateStateIfFn(ctx, id, expected, change)
	}
	return nil, nil
}

func (m *mockArticleRepo) UpdateContent(ctx context.Context, id string, change model.ContentChange) (*model.Article, error) {
	if m.updateContentFn != nil {
		return m.updateContentFn(ctx, id, change)
	}
	return nil, nil
}

func (m *mockArticleRepo) Delete(ctx context.Context, id string) (bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return false, nil
}

func (m *mockArticleRepo) Query(ctx context.Context, filter model.ArticleFilter, order model.ArticleOrder, rng model.Range) ([]*model.Article, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, filter, order, rng)
	}
	return nil, nil
}

func (m *mockArticleRepo) ListDueForPublish(ctx context.Context, now time.Time, limit int) ([]*model.Article, error) {
	if m.listDueForPublishFn != nil {
		return m.listDueForPublishFn(ctx, now, limit)
	}
	return nil, nil
}

func (m *mockArticleRepo) ExistsByOriginalURL(ctx context.Context, originalURL string) (bool, error) {
	if m.existsByOriginalURLFn != nil {
		return m.existsByOriginalURLFn(ctx, originalURL)
	}
	return false, nil
}
