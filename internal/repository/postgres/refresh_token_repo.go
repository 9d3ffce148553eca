package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	domainauth "github.com/NordCoder/doggy-auth/internal/domain/auth"
)

var _ domainauth.RefreshTokenRepo = (*RefreshTokenRepo)(nil)

type RefreshTokenRepo struct {
	db *DB
	tx *Transactor
}

func NewRefreshTokenRepo(db *DB, tx *Transactor) *RefreshTokenRepo {
	return &RefreshTokenRepo{db: db, tx: tx}
}

const (
	refreshColumns = `id::text, user_id::text, expires_at, created_at, revoked`

	// Row lock on the owner serialises concurrent issuance for one user.
	qRTLockOwner = `
SELECT id::text FROM users WHERE id = $1 FOR UPDATE;`

	qRTRevokeAllForUser = `
UPDATE refresh_tokens SET revoked = TRUE
WHERE user_id = $1 AND revoked = FALSE;`

	qRTInsert = `
INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at, revoked)
VALUES ($1, $2, $3, $4, $5, FALSE);`

	qRTFindActive = `
SELECT ` + refreshColumns + `
FROM refresh_tokens
WHERE token_hash = $1 AND revoked = FALSE AND expires_at > $2;`

	qRTRevoke = `
UPDATE refresh_tokens SET revoked = TRUE
WHERE token_hash = $1 AND revoked = FALSE
RETURNING ` + refreshColumns + `;`
)

func (r *RefreshTokenRepo) Issue(ctx context.Context, userID, value string, expiresAt, now time.Time) (*domainauth.RefreshToken, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	t := &domainauth.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	err := r.tx.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.execQueryer(ctx)

		var owner string
		if err := q.QueryRow(ctx, qRTLockOwner, userID).Scan(&owner); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("lock owner: %w", err)
		}
		if _, err := q.Exec(ctx, qRTRevokeAllForUser, userID); err != nil {
			return fmt.Errorf("revoke previous refresh: %w", err)
		}
		if _, err := q.Exec(ctx, qRTInsert, t.ID, userID, domainauth.Digest(value), expiresAt, now); err != nil {
			if _, ok := uniqueViolation(err); ok {
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

func (r *RefreshTokenRepo) FindActive(ctx context.Context, value string, now time.Time) (*domainauth.RefreshToken, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	t, err := scanRefresh(r.db.execQueryer(ctx).QueryRow(ctx, qRTFindActive, domainauth.Digest(value), now))
	if err != nil {
		return nil, fmt.Errorf("find active refresh: %w", err)
	}
	return t, nil
}

func (r *RefreshTokenRepo) Revoke(ctx context.Context, value string) (*domainauth.RefreshToken, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	t, err := scanRefresh(r.db.execQueryer(ctx).QueryRow(ctx, qRTRevoke, domainauth.Digest(value)))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("revoke refresh: %w", err)
	}
	return t, nil
}

func scanRefresh(row pgx.Row) (*domainauth.RefreshToken, error) {
	var t domainauth.RefreshToken
	if err := row.Scan(&t.ID, &t.UserID, &t.ExpiresAt, &t.CreatedAt, &t.Revoked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
