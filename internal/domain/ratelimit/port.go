package ratelimit

import (
	"context"
	"time"
)

// CounterStore increments the fixed-window counter for key in one atomic step.
// A key whose window has ended restarts at 1 with a fresh window of the given length.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration, now time.Time) (count int64, windowEnd time.Time, err error)
}
