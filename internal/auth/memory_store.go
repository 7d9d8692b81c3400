package auth

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	count   int
	resetAt time.Time
}

// MemoryAttemptStore はプロセス内メモリで試行回数を保持するAttemptStore。
// 複数インスタンスで動作させた場合、制限はインスタンスごとになる。
type MemoryAttemptStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// NewMemoryAttemptStore はMemoryAttemptStoreを生成し、
// 期限切れバケットを削除するバックグラウンド処理を開始する。
func NewMemoryAttemptStore(cleanupInterval time.Duration) *MemoryAttemptStore {
	if cleanupInterval <= 0 {
		cleanupInterval = LoginWindow
	}
	s := &MemoryAttemptStore{
		buckets:         make(map[string]*bucket),
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// Hit は1回の試行を記録する。
func (s *MemoryAttemptStore) Hit(_ context.Context, key string, now time.Time, limit int, window time.Duration) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{count: 1, resetAt: now.Add(window)}
		s.buckets[key] = b
		return Decision{Allowed: true, Count: 1, ResetAt: b.resetAt}, nil
	}

	if b.count >= limit {
		return Decision{Allowed: false, Count: b.count, ResetAt: b.resetAt}, nil
	}

	b.count++
	return Decision{Allowed: true, Count: b.count, ResetAt: b.resetAt}, nil
}

// Len は保持しているバケット数を返す。テスト用。
func (s *MemoryAttemptStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (s *MemoryAttemptStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *MemoryAttemptStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup(time.Now())
		case <-s.stopCh:
			return
		}
	}
}

// cleanup はウィンドウが経過したバケットを削除する。
func (s *MemoryAttemptStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, b := range s.buckets {
		if !now.Before(b.resetAt) {
			delete(s.buckets, key)
		}
	}
}
