package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/NordCoder/doggy-auth/internal/domain"
)

var (
	ErrNotFound = domain.ErrNotFound
	ErrConflict = domain.ErrConflict
)

const codeUniqueViolation = "23505"

// uniqueViolation returns the violated constraint name, or "" when err is not a 23505.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
