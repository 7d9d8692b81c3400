// Package lifecycle は記事の状態遷移ルールを実装する。
// 現在時刻は常に引数で受け取り、I/Oを持たない純粋関数として振る舞う。
package lifecycle

import (
	"time"

	"github.com/Karans11/ai-news-app/internal/model"
)

// DefaultApproveDelay は承認時に公開方法が指定されなかった場合の予約公開までの猶予。
const DefaultApproveDelay = 30 * time.Minute

// EventKind はライフサイクルイベントの種類。
type EventKind string

const (
	EventApprove      EventKind = "approve"
	EventReject       EventKind = "reject"
	EventPublishNow   EventKind = "publish_now"
	EventSweepPublish EventKind = "sweep_publish"
)

// Event は1件の記事に適用されるライフサイクルイベント。
type Event struct {
	Kind EventKind

	// approve 用
	AutoPublish        bool
	ScheduledPublishAt *time.Time

	// publish_now 用。trueの場合は予約時刻を待たずに公開する。
	Override bool
}

// Approve は承認イベントを生成する。
// scheduledAt はUTCで渡すこと。ローカル時刻からの変換は呼び出し側の責務。
func Approve(autoPublish bool, scheduledAt *time.Time) Event {
	return Event{Kind: EventApprove, AutoPublish: autoPublish, ScheduledPublishAt: scheduledAt}
}

// Reject は却下イベントを生成する。
func Reject() Event {
	return Event{Kind: EventReject}
}

// PublishNow は手動公開イベントを生成する。
func PublishNow(override bool) Event {
	return Event{Kind: EventPublishNow, Override: override}
}

// SweepPublish は予約公開スイープのイベントを生成する。
func SweepPublish() Event {
	return Event{Kind: EventSweepPublish}
}

// Transition はイベント適用結果。
// Noop がtrueの場合、書き込みは不要で Change はゼロ値となる。
type Transition struct {
	From   model.Phase
	To     model.Phase
	Change model.StateChange
	Noop   bool
}

// Expected は条件付き更新で照合する遷移前の永続化フィールドを返す。
func (t Transition) Expected() model.StateFields {
	return t.From.Project()
}

// Apply は記事のスナップショットにイベントを適用し、次の状態を計算する。
// 許可されない遷移は INVALID_TRANSITION、矛盾した入力は VALIDATION_ERROR を返す。
func Apply(article model.Article, ev Event, now time.Time) (Transition, error) {
	now = now.UTC()
	from := model.PhaseOf(&article)

	switch ev.Kind {
	case EventApprove:
		return applyApprove(article, from, ev, now)
	case EventReject:
		return applyReject(article, from, now)
	case EventPublishNow:
		return applyPublishNow(article, from, ev, now)
	case EventSweepPublish:
		return applySweep(article, from, now)
	default:
		return Transition{}, model.NewValidationError("不明なイベントです: " + string(ev.Kind))
	}
}

func applyApprove(article model.Article, from model.Phase, ev Event, now time.Time) (Transition, error) {
	if !from.AwaitingReview() {
		return Transition{}, model.NewInvalidTransitionError(from, string(EventApprove))
	}
	if ev.AutoPublish && ev.ScheduledPublishAt != nil {
		return Transition{}, model.NewValidationError("auto_publish と scheduled_publish_at は同時に指定できません。")
	}

	approvedAt := stamp(article.ApprovedAt, now)

	if ev.AutoPublish {
		return Transition{
			From: from,
			To:   model.PhasePublished,
			Change: model.StateChange{
				StateFields: model.PhasePublished.Project(),
				PublishedAt: stamp(article.PublishedAt, now),
				ApprovedAt:  approvedAt,
				UpdatedAt:   bump(article.UpdatedAt, now),
			},
		}, nil
	}

	at := now.Add(DefaultApproveDelay)
	if ev.ScheduledPublishAt != nil {
		at = ev.ScheduledPublishAt.UTC()
	}

	return Transition{
		From: from,
		To:   model.PhaseScheduled,
		Change: model.StateChange{
			StateFields:        model.PhaseScheduled.Project(),
			ScheduledPublishAt: &at,
			ApprovedAt:         approvedAt,
			UpdatedAt:          bump(article.UpdatedAt, now),
		},
	}, nil
}

func applyReject(article model.Article, from model.Phase, now time.Time) (Transition, error) {
	if !from.AwaitingReview() {
		return Transition{}, model.NewInvalidTransitionError(from, string(EventReject))
	}
	return Transition{
		From: from,
		To:   model.PhaseRejected,
		Change: model.StateChange{
			StateFields: model.PhaseRejected.Project(),
			UpdatedAt:   bump(article.UpdatedAt, now),
		},
	}, nil
}

func applyPublishNow(article model.Article, from model.Phase, ev Event, now time.Time) (Transition, error) {
	switch from {
	case model.PhaseScheduled, model.PhaseApproved:
	default:
		return Transition{}, model.NewInvalidTransitionError(from, string(EventPublishNow))
	}
	if !ev.Override && !due(article, now) {
		return Transition{}, model.NewInvalidTransitionError(from, string(EventPublishNow))
	}
	return publish(article, from, now), nil
}

func applySweep(article model.Article, from model.Phase, now time.Time) (Transition, error) {
	if from == model.PhasePublished {
		return Transition{From: from, To: from, Noop: true}, nil
	}
	if from != model.PhaseScheduled || !due(article, now) {
		return Transition{}, model.NewInvalidTransitionError(from, string(EventSweepPublish))
	}
	return publish(article, from, now), nil
}

// publish は公開済みへの遷移を組み立てる。予約時刻はクリアし、published_at は遷移時刻とする。
func publish(article model.Article, from model.Phase, now time.Time) Transition {
	return Transition{
		From: from,
		To:   model.PhasePublished,
		Change: model.StateChange{
			StateFields: model.PhasePublished.Project(),
			PublishedAt: stamp(article.PublishedAt, now),
			UpdatedAt:   bump(article.UpdatedAt, now),
		},
	}
}

func due(article model.Article, now time.Time) bool {
	return article.ScheduledPublishAt != nil && !article.ScheduledPublishAt.After(now)
}

// stamp は未設定のタイムスタンプにのみ now を設定する。設定済みならnil（変更なし）を返す。
func stamp(current *time.Time, now time.Time) *time.Time {
	if current != nil {
		return nil
	}
	t := now
	return &t
}

// bump は updated_at が後退しないよう、既存値と now の大きい方を返す。
func bump(current, now time.Time) time.Time {
	if current.After(now) {
		return current.UTC()
	}
	return now
}
