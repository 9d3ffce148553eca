package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Pruner interface {
	Prune(ctx context.Context, now time.Time) (int64, error)
}

// Sweep drops finished windows every interval until ctx is done.
func Sweep(ctx context.Context, p Pruner, interval time.Duration, now func() time.Time, log *zap.Logger) {
	if interval <= 0 {
		return
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Prune(ctx, now())
			if err != nil {
				log.Warn("rate limit sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("rate limit sweep", zap.Int64("pruned", n))
			}
		}
	}
}
