package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/NordCoder/doggy-auth/internal/domain/ratelimit"
)

var _ ratelimit.CounterStore = (*RateLimitRepo)(nil)

// RateLimitRepo keeps fixed-window counters shared by every API replica.
type RateLimitRepo struct{ db *DB }

func NewRateLimitRepo(db *DB) *RateLimitRepo { return &RateLimitRepo{db: db} }

const (
	qRLIncr = `
INSERT INTO rate_limit_counters AS c (key, count, window_ends_at)
VALUES ($1, 1, $3)
ON CONFLICT (key) DO UPDATE
SET count          = CASE WHEN c.window_ends_at <= $2 THEN 1 ELSE c.count + 1 END,
    window_ends_at = CASE WHEN c.window_ends_at <= $2 THEN $3 ELSE c.window_ends_at END
RETURNING count, window_ends_at;`

	qRLPrune = `
DELETE FROM rate_limit_counters WHERE window_ends_at <= $1;`
)

func (r *RateLimitRepo) Incr(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		count int64
		end   time.Time
	)
	if err := r.db.Pool.QueryRow(ctx, qRLIncr, key, now, now.Add(window)).Scan(&count, &end); err != nil {
		return 0, time.Time{}, fmt.Errorf("rate limit incr: %w", err)
	}
	return count, end, nil
}

// Prune drops counters whose window is over; they would restart at 1 anyway.
func (r *RateLimitRepo) Prune(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, qRLPrune, now)
	if err != nil {
		return 0, fmt.Errorf("rate limit prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
