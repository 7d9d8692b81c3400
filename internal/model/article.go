// Package model はドメインモデルを定義する。
package model

import "time"

// Article は配信パイプライン上の記事を表す。
// ワークフロー系フィールド（ApprovalStatus, Status, IsPublished, 各種タイムスタンプ）は
// lifecycleエンジンのみが変更する。
type Article struct {
	ID              string
	Title           string
	Summary         string
	OriginalURL     string
	Source          string
	Category        string
	ImageURL        string
	Tags            []string
	ValidationScore *float64

	ApprovalStatus     ApprovalStatus
	Status             Status
	IsPublished        bool
	AutoGenerated      bool
	ScheduledPublishAt *time.Time
	PublishedAt        *time.Time
	ApprovedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ApprovalStatus はレビュー結果を表す。
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Status は永続化される粗いライフサイクル段階を表す。
// クエリ効率のために保持している派生値。
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusPublished Status = "published"
	StatusRejected  Status = "rejected"
)

// Phase は記事の正規化されたライフサイクル状態。
// 内部ではこの単一の列挙で状態を扱い、永続化境界でのみ
// approval_status / status / is_published の3フィールドへ射影する。
type Phase string

const (
	PhaseDraft     Phase = "draft"
	PhasePending   Phase = "pending"
	PhaseApproved  Phase = "approved"
	PhaseScheduled Phase = "scheduled"
	PhaseRejected  Phase = "rejected"
	PhasePublished Phase = "published"
)

// StateFields は永続化される3つのワークフローフィールドの組。
// 条件付き更新のWHERE句にも使用する。
type StateFields struct {
	ApprovalStatus ApprovalStatus
	Status         Status
	IsPublished    bool
}

// Project はPhaseを永続化用の3フィールドへ射影する。
func (p Phase) Project() StateFields {
	switch p {
	case PhaseDraft:
		return StateFields{ApprovalStatus: ApprovalPending, Status: StatusDraft}
	case PhasePending:
		return StateFields{ApprovalStatus: ApprovalPending, Status: StatusPending}
	case PhaseApproved:
		return StateFields{ApprovalStatus: ApprovalApproved, Status: StatusPending}
	case PhaseScheduled:
		return StateFields{ApprovalStatus: ApprovalApproved, Status: StatusScheduled}
	case PhaseRejected:
		return StateFields{ApprovalStatus: ApprovalRejected, Status: StatusRejected}
	case PhasePublished:
		return StateFields{ApprovalStatus: ApprovalApproved, Status: StatusPublished, IsPublished: true}
	default:
		return StateFields{ApprovalStatus: ApprovalPending, Status: StatusDraft}
	}
}

// AwaitingReview はレビュー待ち（承認・却下が可能）の状態かを返す。
func (p Phase) AwaitingReview() bool {
	return p == PhaseDraft || p == PhasePending
}

// PhaseOf は永続化された3フィールドから正規化Phaseを導出する。
// 不整合な行は安全側（公開済み・却下を優先）に倒して解釈する。
func PhaseOf(a *Article) Phase {
	switch {
	case a.IsPublished || a.Status == StatusPublished:
		return PhasePublished
	case a.ApprovalStatus == ApprovalRejected || a.Status == StatusRejected:
		return PhaseRejected
	case a.Status == StatusScheduled:
		return PhaseScheduled
	case a.ApprovalStatus == ApprovalApproved:
		return PhaseApproved
	case a.Status == StatusPending:
		return PhasePending
	default:
		return PhaseDraft
	}
}

// StateChange はライフサイクル遷移で書き込むワークフローフィールドの完全な組。
// PublishedAt / ApprovedAt がnilの場合は既存値を変更しない。
// ScheduledPublishAt は常に書き込まれ、nilはクリアを意味する。
type StateChange struct {
	StateFields
	ScheduledPublishAt *time.Time
	PublishedAt        *time.Time
	ApprovedAt         *time.Time
	UpdatedAt          time.Time
}

// ApplyTo はStateChangeを記事のスナップショットへ反映した新しい値を返す。
func (c StateChange) ApplyTo(a Article) Article {
	a.ApprovalStatus = c.ApprovalStatus
	a.Status = c.Status
	a.IsPublished = c.IsPublished
	a.ScheduledPublishAt = c.ScheduledPublishAt
	if c.PublishedAt != nil {
		a.PublishedAt = c.PublishedAt
	}
	if c.ApprovedAt != nil {
		a.ApprovedAt = c.ApprovedAt
	}
	a.UpdatedAt = c.UpdatedAt
	return a
}

// ContentChange は管理者による記事内容の編集。
// ワークフロー系フィールドは含まず、編集によってライフサイクル状態が変わることはない。
// Tags がnilの場合は既存のタグを変更しない。
type ContentChange struct {
	Title       string
	Summary     string
	OriginalURL string
	Source      string
	Category    string
	ImageURL    string
	Tags        []string
	UpdatedAt   time.Time
}

// ApplyTo はContentChangeを記事のスナップショットへ反映した新しい値を返す。
func (c ContentChange) ApplyTo(a Article) Article {
	a.Title = c.Title
	a.Summary = c.Summary
	a.OriginalURL = c.OriginalURL
	a.Source = c.Source
	a.Category = c.Category
	a.ImageURL = c.ImageURL
	if c.Tags != nil {
		a.Tags = c.Tags
	}
	if c.UpdatedAt.After(a.UpdatedAt) {
		a.UpdatedAt = c.UpdatedAt
	}
	return a
}

// ArticleFilter は記事一覧クエリの絞り込み条件。
// nilのフィールドは条件に含めない。
type ArticleFilter struct {
	ApprovalStatus *ApprovalStatus
	Status         *Status
	IsPublished    *bool
	AutoGenerated  *bool
	Category       string
}

// ArticleOrder は記事一覧の並び順。
type ArticleOrder string

const (
	OrderCreatedDesc   ArticleOrder = "created_at_desc"
	OrderPublishedDesc ArticleOrder = "published_at_desc"
	OrderScheduledAsc  ArticleOrder = "scheduled_publish_at_asc"
)

// Range はオフセットベースの取得範囲。
type Range struct {
	Offset int
	Limit  int
}
