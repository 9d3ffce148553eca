package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/doggy-auth/internal/domain/user"
)

var _ user.Repo = (*UserRepo)(nil)

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const (
	userColumns = `id::text, external_subject_id, email, role, is_active, is_suspended, is_deleted, suspended_at, deleted_at, created_at`

	constraintUserSubject = "users_external_subject_id_key"

	qUserInsert = `
INSERT INTO users (id, external_subject_id, email, role, is_active, created_at)
VALUES ($1, $2, $3, $4, TRUE, $5)
ON CONFLICT (external_subject_id) DO NOTHING
RETURNING ` + userColumns + `;`

	qUserByID = `
SELECT ` + userColumns + `
FROM users
WHERE id = $1;`

	qUserBySubject = `
SELECT ` + userColumns + `
FROM users
WHERE external_subject_id = $1;`
)

func (r *UserRepo) FindOrCreateBySubject(ctx context.Context, candidate *user.User) (*user.User, bool, error) {
	u, err := r.GetBySubject(ctx, candidate.SubjectID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	u, err = scanUser(r.db.execQueryer(ctx).QueryRow(ctx, qUserInsert,
		candidate.ID, candidate.SubjectID, candidate.Email, string(candidate.Role), candidate.CreatedAt))
	switch {
	case err == nil:
		return u, true, nil
	case errors.Is(err, ErrNotFound):
		// another login for the same subject won the insert
		u, err = r.GetBySubject(ctx, candidate.SubjectID)
		return u, false, err
	}
	if constraint, ok := uniqueViolation(err); ok {
		if constraint == constraintUserSubject {
			u, err = r.GetBySubject(ctx, candidate.SubjectID)
			return u, false, err
		}
		return nil, false, ErrConflict
	}
	return nil, false, fmt.Errorf("user insert: %w", err)
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanUser(r.db.execQueryer(ctx).QueryRow(ctx, qUserByID, id))
}

func (r *UserRepo) GetBySubject(ctx context.Context, subjectID string) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanUser(r.db.execQueryer(ctx).QueryRow(ctx, qUserBySubject, subjectID))
}

func scanUser(row pgx.Row) (*user.User, error) {
	var (
		u       user.User
		role    string
		created time.Time
	)
	if err := row.Scan(&u.ID, &u.SubjectID, &u.Email, &role,
		&u.IsActive, &u.IsSuspended, &u.IsDeleted, &u.SuspendedAt, &u.DeletedAt, &created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	r, err := user.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("scan user %s: %w", u.ID, err)
	}
	u.Role = r
	u.CreatedAt = created
	return &u, nil
}
