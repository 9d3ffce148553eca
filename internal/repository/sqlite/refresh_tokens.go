package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/NordCoder/doggy-auth/internal/domain/auth"
)

const (
	refreshColumns = `id, user_id, expires_at, created_at, revoked`

	qRTOwner            = `SELECT id FROM users WHERE id = ?;`
	qRTRevokeAllForUser = `UPDATE refresh_tokens SET revoked = 1 WHERE user_id = ? AND revoked = 0;`
	qRTInsert           = `
INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at, revoked)
VALUES (?, ?, ?, ?, ?, 0);`
	qRTFindActive = `
SELECT ` + refreshColumns + `
FROM refresh_tokens
WHERE token_hash = ? AND revoked = 0 AND expires_at > ?;`
	qRTRevoke = `
UPDATE refresh_tokens SET revoked = 1
WHERE token_hash = ? AND revoked = 0
RETURNING ` + refreshColumns + `;`
)

func (s *Store) Issue(ctx context.Context, userID, value string, expiresAt, now time.Time) (*domainauth.RefreshToken, error) {
	t := &domainauth.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	err := s.WithTx(ctx, func(ctx context.Context) error {
		c := s.conn(ctx)

		var owner string
		if err := c.QueryRowContext(ctx, qRTOwner, userID).Scan(&owner); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("lookup owner: %w", err)
		}
		if _, err := c.ExecContext(ctx, qRTRevokeAllForUser, userID); err != nil {
			return fmt.Errorf("revoke previous refresh: %w", err)
		}
		if _, err := c.ExecContext(ctx, qRTInsert,
			t.ID, userID, domainauth.Digest(value), toMillis(expiresAt), toMillis(now)); err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert refresh: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) FindActive(ctx context.Context, value string, now time.Time) (*domainauth.RefreshToken, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return scanRefresh(s.conn(ctx).QueryRowContext(ctx, qRTFindActive, domainauth.Digest(value), toMillis(now)))
}

func (s *Store) Revoke(ctx context.Context, value string) (*domainauth.RefreshToken, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	t, err := scanRefresh(s.conn(ctx).QueryRowContext(ctx, qRTRevoke, domainauth.Digest(value)))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return t, err
}

func scanRefresh(row *sql.Row) (*domainauth.RefreshToken, error) {
	var (
		t                    domainauth.RefreshToken
		expiresAt, createdAt int64
	)
	if err := row.Scan(&t.ID, &t.UserID, &expiresAt, &createdAt, &t.Revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.ExpiresAt = fromMillis(expiresAt)
	t.CreatedAt = fromMillis(createdAt)
	return &t, nil
}
