package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// DownloadLimiter bounds how many asset downloads the AssetManager
// runs concurrently. It reuses the same token-bucket primitive as the
// HTTP request limiter above, but here the token represents "one
// concurrent download slot" rather than "one request this second":
// Acquire blocks until a slot is free, Release returns it.
type DownloadLimiter struct {
	limiter *rate.Limiter
	slots   chan struct{}
}

func NewDownloadLimiter(concurrency int) *DownloadLimiter {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &DownloadLimiter{
		limiter: rate.NewLimiter(rate.Inf, concurrency),
		slots:   make(chan struct{}, concurrency),
	}
}

func (l *DownloadLimiter) Acquire(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *DownloadLimiter) Release() {
	select {
	case <-l.slots:
	default:
	}
}
