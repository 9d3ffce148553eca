package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/NordCoder/doggy-auth/internal/domain/user"
)

const (
	userColumns = `id, external_subject_id, email, role, is_active, is_suspended, is_deleted, suspended_at, deleted_at, created_at`

	qUserInsert = `
INSERT INTO users (id, external_subject_id, email, role, is_active, created_at)
VALUES (?, ?, ?, ?, 1, ?)
ON CONFLICT (external_subject_id) DO NOTHING
RETURNING ` + userColumns + `;`

	qUserByID      = `SELECT ` + userColumns + ` FROM users WHERE id = ?;`
	qUserBySubject = `SELECT ` + userColumns + ` FROM users WHERE external_subject_id = ?;`
)

func (s *Store) FindOrCreateBySubject(ctx context.Context, candidate *user.User) (*user.User, bool, error) {
	u, err := s.GetBySubject(ctx, candidate.SubjectID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	u, err = scanUser(s.conn(ctx).QueryRowContext(ctx, qUserInsert,
		candidate.ID, candidate.SubjectID, candidate.Email, string(candidate.Role), toMillis(candidate.CreatedAt)))
	switch {
	case err == nil:
		return u, true, nil
	case errors.Is(err, ErrNotFound):
		u, err = s.GetBySubject(ctx, candidate.SubjectID)
		return u, false, err
	case isUniqueViolation(err):
		return nil, false, ErrConflict
	}
	return nil, false, fmt.Errorf("user insert: %w", err)
}

func (s *Store) GetByID(ctx context.Context, id string) (*user.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return scanUser(s.conn(ctx).QueryRowContext(ctx, qUserByID, id))
}

func (s *Store) GetBySubject(ctx context.Context, subjectID string) (*user.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return scanUser(s.conn(ctx).QueryRowContext(ctx, qUserBySubject, subjectID))
}

func scanUser(row *sql.Row) (*user.User, error) {
	var (
		u                      user.User
		role                   string
		suspendedAt, deletedAt sql.NullInt64
		createdAt              int64
	)
	if err := row.Scan(&u.ID, &u.SubjectID, &u.Email, &role,
		&u.IsActive, &u.IsSuspended, &u.IsDeleted, &suspendedAt, &deletedAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r, err := user.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("scan user %s: %w", u.ID, err)
	}
	u.Role = r
	u.CreatedAt = fromMillis(createdAt)
	if suspendedAt.Valid {
		t := fromMillis(suspendedAt.Int64)
		u.SuspendedAt = &t
	}
	if deletedAt.Valid {
		t := fromMillis(deletedAt.Int64)
		u.DeletedAt = &t
	}
	return &u, nil
}
