package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Karans11/ai-news-app/internal/model"
)

// DefaultStoreTimeout はタイムアウト未指定時に各クエリへ適用する期限。
const DefaultStoreTimeout = 5 * time.Second

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var articleColumns = []string{
	"id", "title", "summary", "original_url", "source", "category", "image_url",
	"tags", "validation_score", "approval_status", "status", "is_published",
	"auto_generated", "scheduled_publish_at", "published_at", "approved_at",
	"created_at", "updated_at",
}

// articleRow はarticlesテーブルの1行に対応するスキャン用構造体。
type articleRow struct {
	ID                 string          `db:"id"`
	Title              string          `db:"title"`
	Summary            string          `db:"summary"`
	OriginalURL        string          `db:"original_url"`
	Source             string          `db:"source"`
	Category           string          `db:"category"`
	ImageURL           string          `db:"image_url"`
	Tags               pq.StringArray  `db:"tags"`
	ValidationScore    sql.NullFloat64 `db:"validation_score"`
	ApprovalStatus     string          `db:"approval_status"`
	Status             string          `db:"status"`
	IsPublished        bool            `db:"is_published"`
	AutoGenerated      bool            `db:"auto_generated"`
	ScheduledPublishAt sql.NullTime    `db:"scheduled_publish_at"`
	PublishedAt        sql.NullTime    `db:"published_at"`
	ApprovedAt         sql.NullTime    `db:"approved_at"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

func (r *articleRow) toModel() *model.Article {
	a := &model.Article{
		ID:             r.ID,
		Title:          r.Title,
		Summary:        r.Summary,
		OriginalURL:    r.OriginalURL,
		Source:         r.Source,
		Category:       r.Category,
		ImageURL:       r.ImageURL,
		Tags:           []string(r.Tags),
		ApprovalStatus: model.ApprovalStatus(r.ApprovalStatus),
		Status:         model.Status(r.Status),
		IsPublished:    r.IsPublished,
		AutoGenerated:  r.AutoGenerated,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.ValidationScore.Valid {
		v := r.ValidationScore.Float64
		a.ValidationScore = &v
	}
	a.ScheduledPublishAt = nullTimeValue(r.ScheduledPublishAt)
	a.PublishedAt = nullTimeValue(r.PublishedAt)
	a.ApprovedAt = nullTimeValue(r.ApprovedAt)
	return a
}

// nullTimeValue はsql.NullTimeをUTCの*time.Timeへ変換する。
func nullTimeValue(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
// timeoutが0以下の場合は DefaultStoreTimeout を使用する。
func NewPostgresArticleRepo(db *sql.DB, timeout time.Duration) *PostgresArticleRepo {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &PostgresArticleRepo{db: sqlx.NewDb(db, "postgres"), timeout: timeout}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// storeError はドライバ・タイムアウトエラーを STORE_UNAVAILABLE に変換する。
func storeError(op string, err error) error {
	return model.NewStoreUnavailableError(fmt.Errorf("%s: %w", op, err))
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindByID(ctx context.Context, id string) (*model.Article, error) {
	// uuid列への不正な文字列は型エラーになるため、問い合わせずに未検出とする
	if !validID(id) {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query, args, err := psql.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("記事取得クエリの構築に失敗しました: %w", err)
	}

	var row articleRow
	err = r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("記事の取得に失敗しました", err)
	}
	return row.toModel(), nil
}

// Create は新規記事を作成する。
func (r *PostgresArticleRepo) Create(ctx context.Context, article *model.Article) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tags := article.Tags
	if tags == nil {
		tags = []string{}
	}

	query, args, err := psql.Insert("articles").
		Columns(articleColumns...).
		Values(
			article.ID, article.Title, article.Summary, article.OriginalURL,
			article.Source, article.Category, article.ImageURL,
			pq.StringArray(tags), article.ValidationScore,
			string(article.ApprovalStatus), string(article.Status), article.IsPublished,
			article.AutoGenerated, article.ScheduledPublishAt, article.PublishedAt, article.ApprovedAt,
			article.CreatedAt, article.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("記事作成クエリの構築に失敗しました: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return storeError("記事の作成に失敗しました", err)
	}
	return nil
}

// buildUpdateStateIf は条件付き状態更新のUPDATE文を構築する。
// published_at と approved_at は既存値がある場合は上書きしない。
func buildUpdateStateIf(id string, expected model.StateFields, change model.StateChange) (string, []interface{}, error) {
	q := psql.Update("articles").
		Set("approval_status", string(change.ApprovalStatus)).
		Set("status", string(change.Status)).
		Set("is_published", change.IsPublished).
		Set("scheduled_publish_at", change.ScheduledPublishAt).
		Set("updated_at", sq.Expr("GREATEST(updated_at, ?)", change.UpdatedAt))

	if change.PublishedAt != nil {
		q = q.Set("published_at", sq.Expr("COALESCE(published_at, ?)", *change.PublishedAt))
	}
	if change.ApprovedAt != nil {
		q = q.Set("approved_at", sq.Expr("COALESCE(approved_at, ?)", *change.ApprovedAt))
	}

	return q.Where(sq.Eq{
		"id":              id,
		"approval_status": string(expected.ApprovalStatus),
		"status":          string(expected.Status),
		"is_published":    expected.IsPublished,
	}).
		Suffix("RETURNING " + strings.Join(articleColumns, ", ")).
		ToSql()
}

// UpdateStateIf はワークフローフィールドが expected と一致する場合に限り change を書き込む。
// 一致する行がない場合はnilを返す。
func (r *PostgresArticleRepo) UpdateStateIf(ctx context.Context, id string, expected model.StateFields, change model.StateChange) (*model.Article, error) {
	if !validID(id) {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query, args, err := buildUpdateStateIf(id, expected, change)
	if err != nil {
		return nil, fmt.Errorf("状態更新クエリの構築に失敗しました: %w", err)
	}

	var row articleRow
	err = r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("記事の状態更新に失敗しました", err)
	}
	return row.toModel(), nil
}

// buildUpdateContent は内容フィールドのみを書き換えるUPDATE文を構築する。
// approval_status / status / is_published と各種タイムスタンプはSET句に含めない。
func buildUpdateContent(id string, change model.ContentChange) (string, []interface{}, error) {
	q := psql.Update("articles").
		Set("title", change.Title).
		Set("summary", change.Summary).
		Set("original_url", change.OriginalURL).
		Set("source", change.Source).
		Set("category", change.Category).
		Set("image_url", change.ImageURL)
	if change.Tags != nil {
		q = q.Set("tags", pq.StringArray(change.Tags))
	}

	return q.Set("updated_at", sq.Expr("GREATEST(updated_at, ?)", change.UpdatedAt)).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(articleColumns, ", ")).
		ToSql()
}

// UpdateContent は記事の内容フィールドのみを更新する。記事が存在しない場合はnilを返す。
func (r *PostgresArticleRepo) UpdateContent(ctx context.Context, id string, change model.ContentChange) (*model.Article, error) {
	if !validID(id) {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query, args, err := buildUpdateContent(id, change)
	if err != nil {
		return nil, fmt.Errorf("記事編集クエリの構築に失敗しました: %w", err)
	}

	var row articleRow
	err = r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("記事の編集に失敗しました", err)
	}
	return row.toModel(), nil
}

// Delete は記事を削除する。削除対象がなかった場合はfalseを返す。
func (r *PostgresArticleRepo) Delete(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query, args, err := psql.Delete("articles").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return false, fmt.Errorf("記事削除クエリの構築に失敗しました: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, storeError("記事の削除に失敗しました", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeError("記事の削除結果の取得に失敗しました", err)
	}
	return n > 0, nil
}

// buildQuery は一覧取得のSELECT文を構築する。
func buildQuery(filter model.ArticleFilter, order model.ArticleOrder, rng model.Range) (string, []interface{}, error) {
	q := psql.Select(articleColumns...).From("articles")

	if filter.ApprovalStatus != nil {
		q = q.Where(sq.Eq{"approval_status": string(*filter.ApprovalStatus)})
	}
	if filter.Status != nil {
		q = q.Where(sq.Eq{"status": string(*filter.Status)})
	}
	if filter.IsPublished != nil {
		q = q.Where(sq.Eq{"is_published": *filter.IsPublished})
	}
	if filter.AutoGenerated != nil {
		q = q.Where(sq.Eq{"auto_generated": *filter.AutoGenerated})
	}
	if filter.Category != "" {
		q = q.Where(sq.Eq{"category": filter.Category})
	}

	switch order {
	case model.OrderPublishedDesc:
		q = q.OrderBy("published_at DESC NULLS LAST", "id DESC")
	case model.OrderScheduledAsc:
		q = q.OrderBy("scheduled_publish_at ASC NULLS LAST", "id ASC")
	default:
		q = q.OrderBy("created_at DESC", "id DESC")
	}

	if rng.Limit > 0 {
		q = q.Limit(uint64(rng.Limit))
	}
	if rng.Offset > 0 {
		q = q.Offset(uint64(rng.Offset))
	}

	return q.ToSql()
}

// Query は条件に一致する記事を指定の並び順・範囲で取得する。
func (r *PostgresArticleRepo) Query(ctx context.Context, filter model.ArticleFilter, order model.ArticleOrder, rng model.Range) ([]*model.Article, error) {
	query, args, err := buildQuery(filter, order, rng)
	if err != nil {
		return nil, fmt.Errorf("記事一覧クエリの構築に失敗しました: %w", err)
	}
	return r.selectArticles(ctx, "記事一覧の取得に失敗しました", query, args)
}

// ListDueForPublish は予約時刻が now 以前で未公開の予約記事を予約時刻の昇順で取得する。
func (r *PostgresArticleRepo) ListDueForPublish(ctx context.Context, now time.Time, limit int) ([]*model.Article, error) {
	q := psql.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"status": string(model.StatusScheduled), "is_published": false}).
		Where(sq.LtOrEq{"scheduled_publish_at": now.UTC()}).
		OrderBy("scheduled_publish_at ASC", "id ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("予約公開対象クエリの構築に失敗しました: %w", err)
	}
	return r.selectArticles(ctx, "予約公開対象の取得に失敗しました", query, args)
}

// ExistsByOriginalURL は同一の元記事URLを持つ記事が存在するかを返す。
func (r *PostgresArticleRepo) ExistsByOriginalURL(ctx context.Context, originalURL string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query, args, err := psql.Select("1").
		From("articles").
		Where(sq.Eq{"original_url": originalURL}).
		Limit(1).
		Prefix("SELECT EXISTS (").
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("重複確認クエリの構築に失敗しました: %w", err)
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		return false, storeError("元記事URLの重複確認に失敗しました", err)
	}
	return exists, nil
}

func (r *PostgresArticleRepo) selectArticles(ctx context.Context, op, query string, args []interface{}) ([]*model.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []articleRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, storeError(op, err)
	}

	articles := make([]*model.Article, 0, len(rows))
	for i := range rows {
		articles = append(articles, rows[i].toModel())
	}
	return articles, nil
}
