package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/doggy-auth/internal/domain/user"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), path)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestFindOrCreateBySubject(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	u, created, err := s.FindOrCreateBySubject(ctx, user.New("u-1", "sub-1", "Dog@Example.com", t0))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "dog@example.com", u.Email)
	assert.Equal(t, user.RoleUser, u.Role)
	assert.True(t, u.IsActive)
	assert.True(t, u.CreatedAt.Equal(t0))

	again, created, err := s.FindOrCreateBySubject(ctx, user.New("u-2", "sub-1", "dog@example.com", t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "u-1", again.ID)

	_, _, err = s.FindOrCreateBySubject(ctx, user.New("u-3", "sub-2", "dog@example.com", t0))
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.GetByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "sub-1", got.SubjectID)

	_, err = s.GetBySubject(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIssueKeepsOneLiveToken(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	_, _, err := s.FindOrCreateBySubject(ctx, user.New("u-1", "sub-1", "dog@example.com", t0))
	require.NoError(t, err)

	exp := t0.Add(7 * 24 * time.Hour)
	first, err := s.Issue(ctx, "u-1", "first", exp, t0)
	require.NoError(t, err)
	second, err := s.Issue(ctx, "u-1", "second", exp, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	_, err = s.FindActive(ctx, "first", t0.Add(2*time.Minute))
	assert.ErrorIs(t, err, ErrNotFound)

	live, err := s.FindActive(ctx, "second", t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, second.ID, live.ID)

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM refresh_tokens WHERE user_id = 'u-1' AND revoked = 0`).Scan(&n))
	assert.Equal(t, 1, n)
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM refresh_tokens WHERE user_id = 'u-1'`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestIssueUnknownOwner(t *testing.T) {
	s := openTempStore(t)
	_, err := s.Issue(context.Background(), "ghost", "v", t0.Add(time.Hour), t0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindActiveExpiryBoundary(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	_, _, err := s.FindOrCreateBySubject(ctx, user.New("u-1", "sub-1", "dog@example.com", t0))
	require.NoError(t, err)

	exp := t0.Add(time.Hour)
	_, err = s.Issue(ctx, "u-1", "v", exp, t0)
	require.NoError(t, err)

	_, err = s.FindActive(ctx, "v", exp.Add(-time.Millisecond))
	assert.NoError(t, err)
	_, err = s.FindActive(ctx, "v", exp)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRevokeIsIdempotent(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	_, _, err := s.FindOrCreateBySubject(ctx, user.New("u-1", "sub-1", "dog@example.com", t0))
	require.NoError(t, err)
	_, err = s.Issue(ctx, "u-1", "v", t0.Add(time.Hour), t0)
	require.NoError(t, err)

	rt, err := s.Revoke(ctx, "v")
	require.NoError(t, err)
	require.NotNil(t, rt)
	assert.True(t, rt.Revoked)

	rt, err = s.Revoke(ctx, "v")
	require.NoError(t, err)
	assert.Nil(t, rt)

	rt, err = s.Revoke(ctx, "never-issued")
	require.NoError(t, err)
	assert.Nil(t, rt)

	_, err = s.FindActive(ctx, "v", t0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokensCascadeWithUser(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	_, _, err := s.FindOrCreateBySubject(ctx, user.New("u-1", "sub-1", "dog@example.com", t0))
	require.NoError(t, err)
	_, err = s.Issue(ctx, "u-1", "v", t0.Add(time.Hour), t0)
	require.NoError(t, err)

	_, err = s.db.Exec(`DELETE FROM users WHERE id = 'u-1'`)
	require.NoError(t, err)

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM refresh_tokens`).Scan(&n))
	assert.Zero(t, n)
}

func TestWithTxRollsBack(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context) error {
		if _, _, err := s.FindOrCreateBySubject(ctx, user.New("u-1", "sub-1", "dog@example.com", t0)); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	_, err = s.GetBySubject(ctx, "sub-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIncrFixedWindow(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	window := 10 * time.Second

	for i := 1; i <= 3; i++ {
		n, end, err := s.Incr(ctx, "10.0.0.1", window, t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
		assert.True(t, end.Equal(t0.Add(time.Second+window)))
	}

	n, end, err := s.Incr(ctx, "10.0.0.1", window, t0.Add(time.Second+window))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, end.Equal(t0.Add(time.Second+2*window)))

	n, _, err = s.Incr(ctx, "10.0.0.2", window, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pruned, err := s.Prune(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)
}

func TestQueryWaitIsBounded(t *testing.T) {
	s := openTempStore(t)
	s.QueryTimeout = 0

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.WithTx(context.Background(), func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	s.QueryTimeout = 50 * time.Millisecond

	start := time.Now()
	_, err := s.GetByID(context.Background(), "u-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	<-done
}
