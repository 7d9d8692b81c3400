// Package ingest は外部から届く記事（自動化システムの下書き、管理者の手動登録、
// フィード取り込み）とチャットボットのコールバックを受け付ける。
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Karans11/ai-news-app/internal/auth"
	"github.com/Karans11/ai-news-app/internal/metrics"
	"github.com/Karans11/ai-news-app/internal/model"
	"github.com/Karans11/ai-news-app/internal/repository"
	"github.com/Karans11/ai-news-app/internal/security"
)

// 取り込み経路（メトリクスのラベル）
const (
	OriginAutomation = "automation"
	OriginManual     = "manual"
	OriginImport     = "import"
)

// Service は記事取り込みのサービス層。
type Service struct {
	repo             repository.ArticleRepository
	sanitizer        security.Sanitizer
	guard            security.URLGuard
	automationSecret string
	metrics          metrics.MetricsCollector
	logger           *slog.Logger
	now              func() time.Time
	newID            func() string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.ArticleRepository,
	sanitizer security.Sanitizer,
	guard security.URLGuard,
	automationSecret string,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:             repo,
		sanitizer:        sanitizer,
		guard:            guard,
		automationSecret: automationSecret,
		metrics:          collector,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
		newID:            uuid.NewString,
	}
}

// IngestDraft は自動化システムから届いた記事を下書きとして作成する。
// シークレットが一致しなければ UNAUTHORIZED、必須フィールドが欠けていれば
// 欠落したフィールドをすべて列挙した VALIDATION_ERROR を返し、何も保存しない。
func (s *Service) IngestDraft(ctx context.Context, payload DraftPayload, secret string) (*model.Article, error) {
	if !auth.SecretEqual(secret, s.automationSecret) {
		return nil, model.NewUnauthorizedError()
	}
	return s.create(ctx, payload, model.PhaseDraft, true, OriginAutomation)
}

// CreateEntry は管理者が手動で登録した記事をレビュー待ちとして作成する。
func (s *Service) CreateEntry(ctx context.Context, payload DraftPayload) (*model.Article, error) {
	return s.create(ctx, payload, model.PhasePending, false, OriginManual)
}

// UpdateEntry は管理者による記事内容の編集を反映する。
// 作成時と同じ検証・サニタイズを行い、ライフサイクル状態や validation_score は変更しない。
// tags が未指定の場合は既存のタグを残す。
func (s *Service) UpdateEntry(ctx context.Context, id string, payload DraftPayload) (*model.Article, error) {
	a, err := s.build(payload)
	if err != nil {
		return nil, err
	}

	change := model.ContentChange{
		Title:       a.Title,
		Summary:     a.Summary,
		OriginalURL: a.OriginalURL,
		Source:      a.Source,
		Category:    a.Category,
		ImageURL:    a.ImageURL,
		UpdatedAt:   s.now(),
	}
	if payload.Tags != nil {
		change.Tags = a.Tags
	}

	updated, err := s.repo.UpdateContent(ctx, id, change)
	if err != nil {
		return nil, fmt.Errorf("記事の編集に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewArticleNotFoundError(id)
	}

	s.logger.Info("article edited", slog.String("article_id", id))
	return updated, nil
}

// ImportDraft はフィード取り込みで見つかった記事を下書きとして作成する。
// 同じ元記事URLの記事が既にあれば作成せず、created=false を返す。
func (s *Service) ImportDraft(ctx context.Context, payload DraftPayload) (a *model.Article, created bool, err error) {
	originalURL := strings.TrimSpace(payload.OriginalURL)
	if originalURL != "" {
		exists, err := s.repo.ExistsByOriginalURL(ctx, originalURL)
		if err != nil {
			return nil, false, fmt.Errorf("重複確認に失敗しました: %w", err)
		}
		if exists {
			return nil, false, nil
		}
	}

	a, err = s.create(ctx, payload, model.PhaseDraft, true, OriginImport)
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

// create はペイロードを検証・サニタイズして記事を作成する。
// ワークフロー系フィールドはペイロードに関わらず phase から決まる。
func (s *Service) create(ctx context.Context, payload DraftPayload, phase model.Phase, autoGenerated bool, origin string) (*model.Article, error) {
	a, err := s.build(payload)
	if err != nil {
		return nil, err
	}

	now := s.now()
	state := phase.Project()
	a.ID = s.newID()
	a.ApprovalStatus = state.ApprovalStatus
	a.Status = state.Status
	a.IsPublished = state.IsPublished
	a.AutoGenerated = autoGenerated
	a.CreatedAt = now
	a.UpdatedAt = now

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("記事の作成に失敗しました: %w", err)
	}

	s.metrics.RecordIngest(origin)
	s.logger.Info("article ingested",
		slog.String("article_id", a.ID),
		slog.String("origin", origin),
		slog.String("status", string(a.Status)),
	)
	return a, nil
}

// build は必須フィールドを検証し、サニタイズ済みの記事を組み立てる。
// 任意のメタデータ（スコア・画像URL）が不正な場合は警告ログを出して破棄する。
func (s *Service) build(payload DraftPayload) (*model.Article, error) {
	a := &model.Article{
		Title:       s.sanitizer.Text(payload.Title),
		Summary:     s.sanitizer.Summary(payload.Summary),
		OriginalURL: strings.TrimSpace(payload.OriginalURL),
		Source:      s.sanitizer.Text(payload.Source),
		Category:    strings.ToLower(s.sanitizer.Text(payload.Category)),
	}

	var missing []string
	if a.Title == "" {
		missing = append(missing, "title")
	}
	if a.Summary == "" {
		missing = append(missing, "summary")
	}
	if a.OriginalURL == "" {
		missing = append(missing, "original_url")
	}
	if len(missing) > 0 {
		return nil, model.NewMissingFieldsError(missing)
	}

	if !isHTTPURL(a.OriginalURL) {
		return nil, model.NewValidationError("original_url は http または https のURLである必要があります。")
	}

	tags := make([]string, 0, len(payload.Tags))
	for _, tag := range payload.Tags {
		tags = append(tags, s.sanitizer.Text(tag))
	}
	a.Tags = normalizeTags(tags)

	score, ok := parseScore(payload.ValidationScore)
	if !ok {
		s.logger.Warn("dropping malformed validation_score",
			slog.String("original_url", a.OriginalURL),
			slog.String("validation_score", string(payload.ValidationScore)),
		)
	}
	a.ValidationScore = score

	if imageURL := strings.TrimSpace(payload.ImageURL); imageURL != "" {
		if err := s.guard.ValidateURL(imageURL); err != nil {
			s.logger.Warn("dropping unsafe image_url",
				slog.String("original_url", a.OriginalURL),
				slog.String("error", err.Error()),
			)
		} else {
			a.ImageURL = imageURL
		}
	}

	return a, nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
