package sqlite

import (
	"context"
	"fmt"
	"time"
)

const (
	qRLIncr = `
INSERT INTO rate_limit_counters (key, count, window_ends_at)
VALUES (?1, 1, ?3)
ON CONFLICT (key) DO UPDATE
SET count          = CASE WHEN window_ends_at <= ?2 THEN 1 ELSE count + 1 END,
    window_ends_at = CASE WHEN window_ends_at <= ?2 THEN ?3 ELSE window_ends_at END
RETURNING count, window_ends_at;`

	qRLPrune = `DELETE FROM rate_limit_counters WHERE window_ends_at <= ?;`
)

func (s *Store) Incr(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var count, end int64
	if err := s.conn(ctx).QueryRowContext(ctx, qRLIncr, key, toMillis(now), toMillis(now.Add(window))).
		Scan(&count, &end); err != nil {
		return 0, time.Time{}, fmt.Errorf("rate limit incr: %w", err)
	}
	return count, fromMillis(end), nil
}

func (s *Store) Prune(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.conn(ctx).ExecContext(ctx, qRLPrune, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("rate limit prune: %w", err)
	}
	return res.RowsAffected()
}
