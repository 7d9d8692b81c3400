// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/Karans11/ai-news-app/internal/model"
)

// ArticleRepository は記事データの永続化インターフェース。
// 実装はすべての呼び出しに固定のタイムアウトを適用し、
// タイムアウトや接続障害は STORE_UNAVAILABLE として返す。
type ArticleRepository interface {
	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Article, error)

	// Create は新規記事を作成する。
	Create(ctx context.Context, article *model.Article) error

	// UpdateStateIf はワークフローフィールドが expected と一致する場合に限り change を書き込む。
	// 一致する行がなかった場合（他の操作が先に更新した場合を含む）はnilを返す。
	// 成功時は更新後の記事を返す。
	UpdateStateIf(ctx context.Context, id string, expected model.StateFields, change model.StateChange) (*model.Article, error)

	// UpdateContent は記事の内容フィールドのみを更新する。ワークフロー系フィールドには触れない。
	// 記事が存在しない場合はnilを返す。
	UpdateContent(ctx context.Context, id string, change model.ContentChange) (*model.Article, error)

	// Delete は記事を削除する。削除対象がなかった場合はfalseを返す。
	Delete(ctx context.Context, id string) (bool, error)

	// Query は条件に一致する記事を指定の並び順・範囲で取得する。
	Query(ctx context.Context, filter model.ArticleFilter, order model.ArticleOrder, rng model.Range) ([]*model.Article, error)

	// ListDueForPublish は予約時刻が now 以前で未公開の予約記事を予約時刻の昇順で取得する。
	ListDueForPublish(ctx context.Context, now time.Time, limit int) ([]*model.Article, error)

	// ExistsByOriginalURL は同一の元記事URLを持つ記事が存在するかを返す。
	ExistsByOriginalURL(ctx context.Context, originalURL string) (bool, error)
}
