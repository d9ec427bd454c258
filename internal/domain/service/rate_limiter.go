package service

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 外部APIコールの最小間隔を保証するリミッター
// Acquireは次のコールが許可されるまで呼び出し側をブロックする。
// 待機中に実行が中断された場合は通常の許可ではなくコンテキストのエラーで即座に戻る
type RateLimiter struct {
	interval time.Duration
	mu       sync.Mutex
	next     time.Time
}

// NewRateLimiter 新しいRateLimiterを生成する
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// Acquire 次のAPIコールが許可されるまで待機する
func (l *RateLimiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	now := time.Now()
	target := l.next
	if target.Before(now) {
		target = now
	}
	l.next = target.Add(l.interval)
	l.mu.Unlock()

	wait := time.Until(target)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
