package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/NordCoder/doggy-auth/internal/domain/auth"
	"github.com/NordCoder/doggy-auth/internal/domain/user"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

var userCols = []string{
	"id", "external_subject_id", "email", "role", "is_active",
	"is_suspended", "is_deleted", "suspended_at", "deleted_at", "created_at",
}

var refreshCols = []string{"id", "user_id", "expires_at", "created_at", "revoked"}

func newMockDB(t *testing.T) (pgxmock.PgxPoolIface, *DB) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewWithPool(mock, time.Second)
}

func userRow(id, subject, email string) *pgxmock.Rows {
	return pgxmock.NewRows(userCols).
		AddRow(id, subject, email, "user", true, false, false, (*time.Time)(nil), (*time.Time)(nil), t0)
}

func TestUserRepo_FindOrCreateBySubject(t *testing.T) {
	ctx := context.Background()
	candidate := user.New("u-1", "sub-1", "Dog@Example.com ", t0)

	t.Run("existing user", func(t *testing.T) {
		mock, db := newMockDB(t)
		repo := NewUserRepo(db)

		mock.ExpectQuery("WHERE external_subject_id = \\$1").
			WithArgs("sub-1").
			WillReturnRows(userRow("u-0", "sub-1", "dog@example.com"))

		u, created, err := repo.FindOrCreateBySubject(ctx, candidate)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "u-0", u.ID)
		assert.Equal(t, user.RoleUser, u.Role)
		assert.Nil(t, u.SuspendedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("new user", func(t *testing.T) {
		mock, db := newMockDB(t)
		repo := NewUserRepo(db)

		mock.ExpectQuery("WHERE external_subject_id = \\$1").
			WithArgs("sub-1").
			WillReturnRows(pgxmock.NewRows(userCols))
		mock.ExpectQuery("INSERT INTO users").
			WithArgs("u-1", "sub-1", "dog@example.com", "user", t0).
			WillReturnRows(userRow("u-1", "sub-1", "dog@example.com"))

		u, created, err := repo.FindOrCreateBySubject(ctx, candidate)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "u-1", u.ID)
		assert.True(t, u.CreatedAt.Equal(t0))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost the race", func(t *testing.T) {
		mock, db := newMockDB(t)
		repo := NewUserRepo(db)

		mock.ExpectQuery("WHERE external_subject_id = \\$1").
			WithArgs("sub-1").
			WillReturnRows(pgxmock.NewRows(userCols))
		mock.ExpectQuery("INSERT INTO users").
			WithArgs("u-1", "sub-1", "dog@example.com", "user", t0).
			WillReturnRows(pgxmock.NewRows(userCols))
		mock.ExpectQuery("WHERE external_subject_id = \\$1").
			WithArgs("sub-1").
			WillReturnRows(userRow("u-winner", "sub-1", "dog@example.com"))

		u, created, err := repo.FindOrCreateBySubject(ctx, candidate)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "u-winner", u.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("subject unique violation re-reads", func(t *testing.T) {
		mock, db := newMockDB(t)
		repo := NewUserRepo(db)

		mock.ExpectQuery("WHERE external_subject_id = \\$1").
			WithArgs("sub-1").
			WillReturnRows(pgxmock.NewRows(userCols))
		mock.ExpectQuery("INSERT INTO users").
			WithArgs("u-1", "sub-1", "dog@example.com", "user", t0).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: constraintUserSubject})
		mock.ExpectQuery("WHERE external_subject_id = \\$1").
			WithArgs("sub-1").
			WillReturnRows(userRow("u-winner", "sub-1", "dog@example.com"))

		u, created, err := repo.FindOrCreateBySubject(ctx, candidate)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "u-winner", u.ID)
	})

	t.Run("email owned by another subject", func(t *testing.T) {
		mock, db := newMockDB(t)
		repo := NewUserRepo(db)

		mock.ExpectQuery("WHERE external_subject_id = \\$1").
			WithArgs("sub-1").
			WillReturnRows(pgxmock.NewRows(userCols))
		mock.ExpectQuery("INSERT INTO users").
			WithArgs("u-1", "sub-1", "dog@example.com", "user", t0).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

		_, _, err := repo.FindOrCreateBySubject(ctx, candidate)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("db error", func(t *testing.T) {
		mock, db := newMockDB(t)
		repo := NewUserRepo(db)

		mock.ExpectQuery("WHERE external_subject_id = \\$1").
			WithArgs("sub-1").
			WillReturnError(errors.New("connection reset"))

		_, _, err := repo.FindOrCreateBySubject(ctx, candidate)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestUserRepo_GetByID(t *testing.T) {
	mock, db := newMockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery("WHERE id = \\$1").
		WithArgs("u-1").
		WillReturnRows(userRow("u-1", "sub-1", "dog@example.com"))
	mock.ExpectQuery("WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(userCols))

	u, err := repo.GetByID(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "sub-1", u.SubjectID)

	_, err = repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepo_Issue(t *testing.T) {
	ctx := context.Background()
	exp := t0.Add(7 * 24 * time.Hour)

	t.Run("revokes then inserts in one tx", func(t *testing.T) {
		mock, db := newMockDB(t)
		repo := NewRefreshTokenRepo(db, NewTransactor(db, nil))

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs("u-1").
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("u-1"))
		mock.ExpectExec("UPDATE refresh_tokens SET revoked = TRUE").
			WithArgs("u-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("INSERT INTO refresh_tokens").
			WithArgs(pgxmock.AnyArg(), "u-1", domainauth.Digest("raw"), exp, t0).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		rt, err := repo.Issue(ctx, "u-1", "raw", exp, t0)
		require.NoError(t, err)
		assert.NotEmpty(t, rt.ID)
		assert.Equal(t, "u-1", rt.UserID)
		assert.False(t, rt.Revoked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		mock, db := newMockDB(t)
		repo := NewRefreshTokenRepo(db, NewTransactor(db, nil))

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs("u-1").
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("u-1"))
		mock.ExpectExec("UPDATE refresh_tokens SET revoked = TRUE").
			WithArgs("u-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("INSERT INTO refresh_tokens").
			WithArgs(pgxmock.AnyArg(), "u-1", domainauth.Digest("raw"), exp, t0).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		_, err := repo.Issue(ctx, "u-1", "raw", exp, t0)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown owner", func(t *testing.T) {
		mock, db := newMockDB(t)
		repo := NewRefreshTokenRepo(db, NewTransactor(db, nil))

		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").
			WithArgs("ghost").
			WillReturnRows(pgxmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		_, err := repo.Issue(ctx, "ghost", "raw", exp, t0)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRefreshTokenRepo_FindActive(t *testing.T) {
	mock, db := newMockDB(t)
	repo := NewRefreshTokenRepo(db, NewTransactor(db, nil))
	exp := t0.Add(time.Hour)

	mock.ExpectQuery("revoked = FALSE AND expires_at > \\$2").
		WithArgs(domainauth.Digest("live"), t0).
		WillReturnRows(pgxmock.NewRows(refreshCols).AddRow("rt-1", "u-1", exp, t0, false))
	mock.ExpectQuery("revoked = FALSE AND expires_at > \\$2").
		WithArgs(domainauth.Digest("dead"), t0).
		WillReturnRows(pgxmock.NewRows(refreshCols))

	rt, err := repo.FindActive(context.Background(), "live", t0)
	require.NoError(t, err)
	assert.Equal(t, "rt-1", rt.ID)
	assert.True(t, rt.ExpiresAt.Equal(exp))

	_, err = repo.FindActive(context.Background(), "dead", t0)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepo_Revoke(t *testing.T) {
	mock, db := newMockDB(t)
	repo := NewRefreshTokenRepo(db, NewTransactor(db, nil))

	mock.ExpectQuery("UPDATE refresh_tokens SET revoked = TRUE").
		WithArgs(domainauth.Digest("live")).
		WillReturnRows(pgxmock.NewRows(refreshCols).AddRow("rt-1", "u-1", t0, t0, true))
	mock.ExpectQuery("UPDATE refresh_tokens SET revoked = TRUE").
		WithArgs(domainauth.Digest("live")).
		WillReturnRows(pgxmock.NewRows(refreshCols))

	rt, err := repo.Revoke(context.Background(), "live")
	require.NoError(t, err)
	require.NotNil(t, rt)
	assert.True(t, rt.Revoked)

	rt, err = repo.Revoke(context.Background(), "live")
	require.NoError(t, err)
	assert.Nil(t, rt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor(t *testing.T) {
	ctx := context.Background()

	t.Run("nested call joins outer tx", func(t *testing.T) {
		mock, db := newMockDB(t)
		tx := NewTransactor(db, nil)

		mock.ExpectBegin()
		mock.ExpectExec("SELECT 1").WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectCommit()

		err := tx.WithTx(ctx, func(ctx context.Context) error {
			return tx.WithTx(ctx, func(ctx context.Context) error {
				_, err := db.execQueryer(ctx).Exec(ctx, "SELECT 1")
				return err
			})
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error rolls back", func(t *testing.T) {
		mock, db := newMockDB(t)
		tx := NewTransactor(db, nil)
		boom := errors.New("boom")

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := tx.WithTx(ctx, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit failure is reported", func(t *testing.T) {
		mock, db := newMockDB(t)
		tx := NewTransactor(db, nil)

		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

		err := tx.WithTx(ctx, func(context.Context) error { return nil })
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRateLimitRepo(t *testing.T) {
	mock, db := newMockDB(t)
	repo := NewRateLimitRepo(db)
	end := t0.Add(10 * time.Second)

	mock.ExpectQuery("INSERT INTO rate_limit_counters").
		WithArgs("10.0.0.1", t0, end).
		WillReturnRows(pgxmock.NewRows([]string{"count", "window_ends_at"}).AddRow(int64(3), end))
	mock.ExpectExec("DELETE FROM rate_limit_counters").
		WithArgs(t0).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, gotEnd, err := repo.Incr(context.Background(), "10.0.0.1", 10*time.Second, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.True(t, gotEnd.Equal(end))

	pruned, err := repo.Prune(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pruned)
	assert.NoError(t, mock.ExpectationsWereMet())
}
