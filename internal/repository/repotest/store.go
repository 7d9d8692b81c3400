// Package repotest はテスト用のインメモリArticleRepositoryを提供する。
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Karans11/ai-news-app/internal/model"
)

// Store はミューテックスで保護されたインメモリのArticleRepository。
// UpdateStateIfは実ストアと同じく条件付き書き込みとして振る舞う。
type Store struct {
	mu       sync.Mutex
	articles map[string]model.Article

	// AfterFind はFindByIDが読み取りを終えた後に呼ばれる。競合の再現に使用する。
	AfterFind func()

	FindErr   error
	UpdateErr error
	ListErr   error
}

// New は指定の記事を保持したStoreを生成する。
func New(articles ...model.Article) *Store {
	s := &Store{articles: make(map[string]model.Article)}
	for _, a := range articles {
		s.articles[a.ID] = a
	}
	return s
}

// FindByID は指定IDの記事のコピーを返す。
func (s *Store) FindByID(ctx context.Context, id string) (*model.Article, error) {
	s.mu.Lock()
	if s.FindErr != nil {
		s.mu.Unlock()
		return nil, s.FindErr
	}
	a, ok := s.articles[id]
	hook := s.AfterFind
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// Create は記事を保存する。
func (s *Store) Create(ctx context.Context, a *model.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles[a.ID] = *a
	return nil
}

// UpdateStateIf はワークフローフィールドがexpectedと一致する場合のみchangeを反映する。
func (s *Store) UpdateStateIf(ctx context.Context, id string, expected model.StateFields, change model.StateChange) (*model.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.UpdateErr != nil {
		return nil, s.UpdateErr
	}
	a, ok := s.articles[id]
	if !ok {
		return nil, nil
	}
	current := model.StateFields{ApprovalStatus: a.ApprovalStatus, Status: a.Status, IsPublished: a.IsPublished}
	if current != expected {
		return nil, nil
	}

	updated := change.ApplyTo(a)
	s.articles[id] = updated
	return &updated, nil
}

// UpdateContent は内容フィールドのみを書き換える。
func (s *Store) UpdateContent(ctx context.Context, id string, change model.ContentChange) (*model.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.UpdateErr != nil {
		return nil, s.UpdateErr
	}
	a, ok := s.articles[id]
	if !ok {
		return nil, nil
	}
	updated := change.ApplyTo(a)
	s.articles[id] = updated
	return &updated, nil
}

// Delete は記事を削除する。
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.UpdateErr != nil {
		return false, s.UpdateErr
	}
	if _, ok := s.articles[id]; !ok {
		return false, nil
	}
	delete(s.articles, id)
	return true, nil
}

// Query は条件に一致する記事を返す。並び順は作成日時の降順のみ対応する。
func (s *Store) Query(ctx context.Context, filter model.ArticleFilter, order model.ArticleOrder, rng model.Range) ([]*model.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ListErr != nil {
		return nil, s.ListErr
	}

	var out []*model.Article
	for _, a := range s.articles {
		a := a
		if filter.ApprovalStatus != nil && a.ApprovalStatus != *filter.ApprovalStatus {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		if filter.IsPublished != nil && a.IsPublished != *filter.IsPublished {
			continue
		}
		if filter.AutoGenerated != nil && a.AutoGenerated != *filter.AutoGenerated {
			continue
		}
		if filter.Category != "" && a.Category != filter.Category {
			continue
		}
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if rng.Offset >= len(out) {
		return []*model.Article{}, nil
	}
	out = out[rng.Offset:]
	if rng.Limit > 0 && rng.Limit < len(out) {
		out = out[:rng.Limit]
	}
	return out, nil
}

// ListDueForPublish は予約時刻がnow以前の未公開予約記事を予約時刻の昇順で返す。
func (s *Store) ListDueForPublish(ctx context.Context, now time.Time, limit int) ([]*model.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ListErr != nil {
		return nil, s.ListErr
	}

	var out []*model.Article
	for _, a := range s.articles {
		a := a
		if a.Status != model.StatusScheduled || a.IsPublished || a.ScheduledPublishAt == nil {
			continue
		}
		if a.ScheduledPublishAt.After(now) {
			continue
		}
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledPublishAt.Before(*out[j].ScheduledPublishAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// ExistsByOriginalURL は同じ元記事URLの記事があるかを返す。
func (s *Store) ExistsByOriginalURL(ctx context.Context, originalURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.articles {
		if a.OriginalURL == originalURL {
			return true, nil
		}
	}
	return false, nil
}

// Get はテストの検証用に保存済みの記事を返す。
func (s *Store) Get(id string) model.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.articles[id]
}
