package importer

import (
	"fmt"
	"sync"
	"time"
)

// FetchResult はHTTPステータスコードに基づくフェッチ結果の分類。
type FetchResult int

const (
	// FetchResultOK はフェッチ成功（200）。
	FetchResultOK FetchResult = iota
	// FetchResultNotModified はコンテンツ未変更（304）。
	FetchResultNotModified
	// FetchResultStop は取り込み停止が必要なステータス（404/410/401/403）。
	FetchResultStop
	// FetchResultBackoff はバックオフが必要なステータス（429/5xx）。
	FetchResultBackoff
	// FetchResultUnknown は未知のステータスコード。
	FetchResultUnknown
)

const (
	// initialBackoff は指数バックオフの初回遅延（30分）。
	initialBackoff = 30 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（12時間）。
	maxBackoff = 12 * time.Hour
	// parseFailureThreshold はパース失敗による取り込み停止の閾値。
	parseFailureThreshold = 10
)

// ClassifyHTTPStatus はHTTPステータスコードをフェッチ結果に分類する。
func ClassifyHTTPStatus(statusCode int) FetchResult {
	switch {
	case statusCode == 200:
		return FetchResultOK
	case statusCode == 304:
		return FetchResultNotModified
	case statusCode == 404 || statusCode == 410:
		return FetchResultStop
	case statusCode == 401 || statusCode == 403:
		return FetchResultStop
	case statusCode == 429:
		return FetchResultBackoff
	case statusCode >= 500:
		return FetchResultBackoff
	default:
		return FetchResultUnknown
	}
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// Source は取り込み元フィード1件のフェッチ状態。
// 状態はプロセス内でのみ保持し、再起動時はすべてのソースを即時フェッチ対象に戻す。
type Source struct {
	URL string

	mu                sync.Mutex
	title             string
	etag              string
	lastModified      string
	consecutiveErrors int
	nextFetchAt       time.Time
	stopped           bool
	errorMessage      string
}

// NewSource はSourceを生成する。
func NewSource(url string) *Source {
	return &Source{URL: url}
}

// SourceState はSourceの状態のスナップショット。
type SourceState struct {
	URL               string
	Title             string
	ETag              string
	LastModified      string
	ConsecutiveErrors int
	NextFetchAt       time.Time
	Stopped           bool
	ErrorMessage      string
}

// State は現在の状態のスナップショットを返す。
func (s *Source) State() SourceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SourceState{
		URL:               s.URL,
		Title:             s.title,
		ETag:              s.etag,
		LastModified:      s.lastModified,
		ConsecutiveErrors: s.consecutiveErrors,
		NextFetchAt:       s.nextFetchAt,
		Stopped:           s.stopped,
		ErrorMessage:      s.errorMessage,
	}
}

// Due はnow時点でフェッチ対象かを返す。
func (s *Source) Due(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped && !s.nextFetchAt.After(now)
}

func (s *Source) validators() (etag, lastModified string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.etag, s.lastModified
}

func (s *Source) recordValidators(etag, lastModified, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if etag != "" {
		s.etag = etag
	}
	if lastModified != "" {
		s.lastModified = lastModified
	}
	if title != "" {
		s.title = title
	}
}

// ApplyStop はソースの取り込みを停止し、理由を記録する。
func (s *Source) ApplyStop(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.errorMessage = reason
}

// ApplyBackoff は連続エラー回数をインクリメントし、指数バックオフで次回フェッチ時刻を設定する。
func (s *Source) ApplyBackoff(now time.Time, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveErrors++
	s.errorMessage = reason
	s.nextFetchAt = now.Add(CalculateBackoff(s.consecutiveErrors - 1))
}

// ApplySuccess は連続エラー回数をリセットし、interval後を次回フェッチ時刻とする。
func (s *Source) ApplySuccess(now time.Time, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveErrors = 0
	s.errorMessage = ""
	s.nextFetchAt = now.Add(interval)
}

// ApplyParseFailure はパース失敗時に連続エラー回数をインクリメントする。
// 閾値に達した場合は取り込みを停止する。
func (s *Source) ApplyParseFailure(now time.Time, interval time.Duration, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveErrors++
	s.errorMessage = fmt.Sprintf("パース失敗 (%d回連続): %s", s.consecutiveErrors, reason)
	s.nextFetchAt = now.Add(interval)

	if s.consecutiveErrors >= parseFailureThreshold {
		s.stopped = true
		s.errorMessage = fmt.Sprintf("パース失敗が%d回連続したため取り込みを停止しました: %s", s.consecutiveErrors, reason)
	}
}
