package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/doggy-auth/internal/domain"
	domainauth "github.com/NordCoder/doggy-auth/internal/domain/auth"
	"github.com/NordCoder/doggy-auth/internal/domain/outbox"
	"github.com/NordCoder/doggy-auth/internal/domain/user"
	"github.com/NordCoder/doggy-auth/internal/mocks"
)

var now = time.Date(2025, 5, 10, 8, 0, 0, 0, time.UTC)

type fixture struct {
	identity *mocks.MockIdentityVerifier
	codec    *mocks.MockTokenCodec
	users    *mocks.MockRepo
	tokens   *mocks.MockRefreshTokenRepo
	tx       *mocks.MockTransactor
	events   *mocks.MockSink
	uc       *Usecase
}

func newFixture(t *testing.T, cfg Config) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		identity: mocks.NewMockIdentityVerifier(ctrl),
		codec:    mocks.NewMockTokenCodec(ctrl),
		users:    mocks.NewMockRepo(ctrl),
		tokens:   mocks.NewMockRefreshTokenRepo(ctrl),
		tx:       mocks.NewMockTransactor(ctrl),
		events:   mocks.NewMockSink(ctrl),
	}
	f.tx.EXPECT().WithTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }).
		AnyTimes()
	cfg.Now = func() time.Time { return now }
	f.uc = NewUseCase(Deps{
		Identity:   f.identity,
		Codec:      f.codec,
		Users:      f.users,
		Tokens:     f.tokens,
		Transactor: f.tx,
		Events:     f.events,
	}, cfg)
	return f
}

func existing(id, subject string) *user.User {
	return user.New(id, subject, subject+"@example.com", now.Add(-24*time.Hour))
}

func TestLogin_NewUser(t *testing.T) {
	f := newFixture(t, Config{})
	u := existing("u-1", "sub-1")
	exp := now.Add(7 * 24 * time.Hour)

	f.identity.EXPECT().Verify(gomock.Any(), "provider").
		Return(&domainauth.Identity{SubjectID: "sub-1", Email: "sub-1@example.com"}, nil)
	f.codec.EXPECT().IssueRefresh("sub-1", now).Return("refresh-1", exp, nil)
	f.users.EXPECT().FindOrCreateBySubject(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, c *user.User) (*user.User, bool, error) {
			assert.Equal(t, "sub-1", c.SubjectID)
			assert.Equal(t, user.RoleUser, c.Role)
			assert.True(t, c.CreatedAt.Equal(now))
			return u, true, nil
		})
	f.tokens.EXPECT().Issue(gomock.Any(), "u-1", "refresh-1", exp, now).
		Return(&domainauth.RefreshToken{ID: "rt-1", UserID: "u-1", ExpiresAt: exp}, nil)
	f.codec.EXPECT().IssueAccess("sub-1", user.RoleUser, now).Return("access-1", nil)

	var kinds []outbox.Kind
	f.events.EXPECT().Enqueue(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, key string, kind outbox.Kind, data []byte) error {
			assert.NotEmpty(t, key)
			var ev outbox.AuthEvent
			require.NoError(t, json.Unmarshal(data, &ev))
			assert.Equal(t, kind.String(), ev.Type)
			assert.Equal(t, "u-1", ev.UserID)
			kinds = append(kinds, kind)
			return nil
		}).Times(2)

	s, err := f.uc.Login(context.Background(), "provider")
	require.NoError(t, err)
	assert.Equal(t, "access-1", s.AccessToken)
	assert.Equal(t, "refresh-1", s.RefreshToken)
	assert.Equal(t, exp, s.RefreshExpiresAt)
	assert.Equal(t, []outbox.Kind{outbox.KindUserCreated, outbox.KindSessionIssued}, kinds)
}

func TestLogin_InvalidIdentity(t *testing.T) {
	f := newFixture(t, Config{})
	f.identity.EXPECT().Verify(gomock.Any(), "bad").Return(nil, errors.New("signature mismatch"))

	_, err := f.uc.Login(context.Background(), "bad")
	assert.ErrorIs(t, err, domainauth.ErrInvalidIdentity)
}

func TestLogin_EmailTaken(t *testing.T) {
	f := newFixture(t, Config{})
	f.identity.EXPECT().Verify(gomock.Any(), gomock.Any()).
		Return(&domainauth.Identity{SubjectID: "sub-2", Email: "taken@example.com"}, nil)
	f.codec.EXPECT().IssueRefresh(gomock.Any(), gomock.Any()).Return("r", now.Add(time.Hour), nil)
	f.users.EXPECT().FindOrCreateBySubject(gomock.Any(), gomock.Any()).Return(nil, false, domain.ErrConflict)

	_, err := f.uc.Login(context.Background(), "p")
	assert.ErrorIs(t, err, domainauth.ErrEmailTaken)
	assert.NotErrorIs(t, err, domainauth.ErrStorageUnavailable)
}

func TestLogin_StorageFailure(t *testing.T) {
	f := newFixture(t, Config{})
	f.identity.EXPECT().Verify(gomock.Any(), gomock.Any()).
		Return(&domainauth.Identity{SubjectID: "sub-1", Email: "a@b.c"}, nil)
	f.codec.EXPECT().IssueRefresh(gomock.Any(), gomock.Any()).Return("r", now.Add(time.Hour), nil)
	f.users.EXPECT().FindOrCreateBySubject(gomock.Any(), gomock.Any()).Return(existing("u-1", "sub-1"), false, nil)
	f.tokens.EXPECT().Issue(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("connection reset"))

	_, err := f.uc.Login(context.Background(), "p")
	assert.ErrorIs(t, err, domainauth.ErrStorageUnavailable)
}

func TestLogin_SigningFailureIsNotStorage(t *testing.T) {
	f := newFixture(t, Config{})
	boom := errors.New("hmac key unavailable")

	f.identity.EXPECT().Verify(gomock.Any(), gomock.Any()).
		Return(&domainauth.Identity{SubjectID: "sub-1", Email: "a@b.c"}, nil)
	f.codec.EXPECT().IssueRefresh(gomock.Any(), gomock.Any()).Return("r", now.Add(time.Hour), nil)
	f.users.EXPECT().FindOrCreateBySubject(gomock.Any(), gomock.Any()).Return(existing("u-1", "sub-1"), false, nil)
	f.tokens.EXPECT().Issue(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&domainauth.RefreshToken{ID: "rt-1", UserID: "u-1"}, nil)
	f.events.EXPECT().Enqueue(gomock.Any(), gomock.Any(), outbox.KindSessionIssued, gomock.Any()).Return(nil)
	f.codec.EXPECT().IssueAccess("sub-1", user.RoleUser, now).Return("", boom)

	_, err := f.uc.Login(context.Background(), "p")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domainauth.ErrStorageUnavailable)
}

func TestLogin_DisabledUser(t *testing.T) {
	f := newFixture(t, Config{RejectDisabledUsers: true})
	u := existing("u-1", "sub-1")
	u.IsSuspended = true

	f.identity.EXPECT().Verify(gomock.Any(), gomock.Any()).
		Return(&domainauth.Identity{SubjectID: "sub-1", Email: u.Email}, nil)
	f.codec.EXPECT().IssueRefresh(gomock.Any(), gomock.Any()).Return("r", now.Add(time.Hour), nil)
	f.users.EXPECT().FindOrCreateBySubject(gomock.Any(), gomock.Any()).Return(u, false, nil)

	_, err := f.uc.Login(context.Background(), "p")
	assert.ErrorIs(t, err, domainauth.ErrAccountDisabled)
}

func TestRefresh_NoRotation(t *testing.T) {
	f := newFixture(t, Config{})
	u := existing("u-1", "sub-1")

	f.codec.EXPECT().VerifyRefresh("rt", now).Return("sub-1", nil)
	f.tokens.EXPECT().FindActive(gomock.Any(), "rt", now).Return(&domainauth.RefreshToken{ID: "t", UserID: "u-1"}, nil)
	f.users.EXPECT().GetByID(gomock.Any(), "u-1").Return(u, nil)
	f.codec.EXPECT().IssueAccess("sub-1", user.RoleUser, now).Return("access-2", nil)

	s, err := f.uc.Refresh(context.Background(), "rt")
	require.NoError(t, err)
	assert.Equal(t, "access-2", s.AccessToken)
	assert.Empty(t, s.RefreshToken)
}

func TestRefresh_Rotation(t *testing.T) {
	f := newFixture(t, Config{RotateRefreshOnUse: true})
	u := existing("u-1", "sub-1")
	exp := now.Add(time.Hour)

	f.codec.EXPECT().VerifyRefresh("rt", now).Return("sub-1", nil)
	f.tokens.EXPECT().FindActive(gomock.Any(), "rt", now).Return(&domainauth.RefreshToken{ID: "t", UserID: "u-1"}, nil)
	f.users.EXPECT().GetByID(gomock.Any(), "u-1").Return(u, nil)
	f.codec.EXPECT().IssueAccess("sub-1", user.RoleUser, now).Return("access-2", nil)
	f.codec.EXPECT().IssueRefresh("sub-1", now).Return("rt-2", exp, nil)
	f.tokens.EXPECT().Revoke(gomock.Any(), "rt").Return(&domainauth.RefreshToken{ID: "t", UserID: "u-1", Revoked: true}, nil)
	f.tokens.EXPECT().Issue(gomock.Any(), "u-1", "rt-2", exp, now).Return(&domainauth.RefreshToken{ID: "t2", UserID: "u-1"}, nil)
	f.events.EXPECT().Enqueue(gomock.Any(), gomock.Any(), outbox.KindSessionIssued, gomock.Any()).Return(nil)

	s, err := f.uc.Refresh(context.Background(), "rt")
	require.NoError(t, err)
	assert.Equal(t, "rt-2", s.RefreshToken)
	assert.Equal(t, exp, s.RefreshExpiresAt)
}

func TestRefresh_RotationLostRace(t *testing.T) {
	f := newFixture(t, Config{RotateRefreshOnUse: true})

	f.codec.EXPECT().VerifyRefresh(gomock.Any(), gomock.Any()).Return("sub-1", nil)
	f.tokens.EXPECT().FindActive(gomock.Any(), gomock.Any(), gomock.Any()).Return(&domainauth.RefreshToken{UserID: "u-1"}, nil)
	f.users.EXPECT().GetByID(gomock.Any(), "u-1").Return(existing("u-1", "sub-1"), nil)
	f.codec.EXPECT().IssueAccess(gomock.Any(), gomock.Any(), gomock.Any()).Return("a", nil)
	f.codec.EXPECT().IssueRefresh(gomock.Any(), gomock.Any()).Return("rt-2", now.Add(time.Hour), nil)
	f.tokens.EXPECT().Revoke(gomock.Any(), "rt").Return(nil, nil)

	_, err := f.uc.Refresh(context.Background(), "rt")
	assert.ErrorIs(t, err, domainauth.ErrInvalidRefreshToken)
}

func TestRefresh_Failures(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.uc.Refresh(context.Background(), "")
		assert.ErrorIs(t, err, domainauth.ErrInvalidRefreshToken)
	})
	t.Run("bad signature", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.codec.EXPECT().VerifyRefresh("rt", now).Return("", domainauth.ErrTokenInvalid)
		_, err := f.uc.Refresh(context.Background(), "rt")
		assert.ErrorIs(t, err, domainauth.ErrInvalidRefreshToken)
	})
	t.Run("expired", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.codec.EXPECT().VerifyRefresh("rt", now).Return("", domainauth.ErrTokenExpired)
		_, err := f.uc.Refresh(context.Background(), "rt")
		assert.ErrorIs(t, err, domainauth.ErrInvalidRefreshToken)
		assert.NotErrorIs(t, err, domainauth.ErrTokenExpired)
		assert.Equal(t, "invalid_refresh", outcome(err))
	})
	t.Run("revoked or unknown", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.codec.EXPECT().VerifyRefresh("rt", now).Return("sub-1", nil)
		f.tokens.EXPECT().FindActive(gomock.Any(), "rt", now).Return(nil, domain.ErrNotFound)
		_, err := f.uc.Refresh(context.Background(), "rt")
		assert.ErrorIs(t, err, domainauth.ErrInvalidRefreshToken)
	})
	t.Run("store down", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.codec.EXPECT().VerifyRefresh("rt", now).Return("sub-1", nil)
		f.tokens.EXPECT().FindActive(gomock.Any(), "rt", now).Return(nil, context.DeadlineExceeded)
		_, err := f.uc.Refresh(context.Background(), "rt")
		assert.ErrorIs(t, err, domainauth.ErrStorageUnavailable)
	})
	t.Run("subject mismatch", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.codec.EXPECT().VerifyRefresh("rt", now).Return("sub-other", nil)
		f.tokens.EXPECT().FindActive(gomock.Any(), "rt", now).Return(&domainauth.RefreshToken{UserID: "u-1"}, nil)
		f.users.EXPECT().GetByID(gomock.Any(), "u-1").Return(existing("u-1", "sub-1"), nil)
		_, err := f.uc.Refresh(context.Background(), "rt")
		assert.ErrorIs(t, err, domainauth.ErrInvalidRefreshToken)
	})
}

func TestLogout(t *testing.T) {
	t.Run("revokes and records", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.tokens.EXPECT().Revoke(gomock.Any(), "rt").Return(&domainauth.RefreshToken{ID: "t", UserID: "u-1", Revoked: true}, nil)
		f.events.EXPECT().Enqueue(gomock.Any(), gomock.Any(), outbox.KindSessionRevoked, gomock.Any()).Return(nil)
		assert.NoError(t, f.uc.Logout(context.Background(), "rt"))
	})
	t.Run("already revoked", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.tokens.EXPECT().Revoke(gomock.Any(), "rt").Return(nil, nil)
		assert.NoError(t, f.uc.Logout(context.Background(), "rt"))
	})
	t.Run("no cookie", func(t *testing.T) {
		f := newFixture(t, Config{})
		assert.NoError(t, f.uc.Logout(context.Background(), ""))
	})
}

func TestWhoAmI(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		f := newFixture(t, Config{})
		u := existing("u-1", "sub-1")
		f.codec.EXPECT().VerifyAccess("at", now).Return(&domainauth.AccessClaims{SubjectID: "sub-1", Role: user.RoleUser}, nil)
		f.users.EXPECT().GetBySubject(gomock.Any(), "sub-1").Return(u, nil)

		p, err := f.uc.WhoAmI(context.Background(), "at")
		require.NoError(t, err)
		assert.Equal(t, domainauth.ProfileOf(u), *p)
	})
	t.Run("expired", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.codec.EXPECT().VerifyAccess("at", now).Return(nil, domainauth.ErrTokenExpired)
		_, err := f.uc.WhoAmI(context.Background(), "at")
		assert.ErrorIs(t, err, domainauth.ErrTokenExpired)
		assert.ErrorIs(t, err, domainauth.ErrUnauthorized)
	})
	t.Run("user gone", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.codec.EXPECT().VerifyAccess("at", now).Return(&domainauth.AccessClaims{SubjectID: "sub-1"}, nil)
		f.users.EXPECT().GetBySubject(gomock.Any(), "sub-1").Return(nil, domain.ErrNotFound)
		_, err := f.uc.WhoAmI(context.Background(), "at")
		assert.ErrorIs(t, err, domainauth.ErrUserNotFound)
	})
	t.Run("deleted user", func(t *testing.T) {
		f := newFixture(t, Config{RejectDisabledUsers: true})
		u := existing("u-1", "sub-1")
		u.IsDeleted = true
		f.codec.EXPECT().VerifyAccess("at", now).Return(&domainauth.AccessClaims{SubjectID: "sub-1"}, nil)
		f.users.EXPECT().GetBySubject(gomock.Any(), "sub-1").Return(u, nil)
		_, err := f.uc.WhoAmI(context.Background(), "at")
		assert.ErrorIs(t, err, domainauth.ErrAccountDisabled)
	})
}
