package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/NordCoder/doggy-auth/internal/domain"
	domainauth "github.com/NordCoder/doggy-auth/internal/domain/auth"
	"github.com/NordCoder/doggy-auth/internal/domain/outbox"
	"github.com/NordCoder/doggy-auth/internal/domain/user"
	"github.com/NordCoder/doggy-auth/internal/obs"
)

var authOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "auth_operations_total",
	Help: "Auth flows by operation and outcome.",
}, []string{"op", "result"})

type Config struct {
	RotateRefreshOnUse  bool
	RejectDisabledUsers bool
	Now                 func() time.Time
}

type Deps struct {
	Identity   domainauth.IdentityVerifier
	Codec      domainauth.TokenCodec
	Users      user.Repo
	Tokens     domainauth.RefreshTokenRepo
	Transactor domainauth.Transactor
	// Events is optional; without it no audit events are recorded.
	Events outbox.Sink
	Logger *zap.Logger
}

type Usecase struct {
	identity domainauth.IdentityVerifier
	codec    domainauth.TokenCodec
	users    user.Repo
	tokens   domainauth.RefreshTokenRepo
	tx       domainauth.Transactor
	events   outbox.Sink
	log      *zap.Logger
	cfg      Config
}

func NewUseCase(d Deps, cfg Config) *Usecase {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Usecase{
		identity: d.Identity,
		codec:    d.Codec,
		users:    d.Users,
		tokens:   d.Tokens,
		tx:       d.Transactor,
		events:   d.Events,
		log:      log.With(zap.String("component", "auth.usecase")),
		cfg:      cfg,
	}
}

// Login trades a provider token for a session. The user upsert, the refresh token
// swap and the audit rows commit together or not at all.
func (u *Usecase) Login(ctx context.Context, providerToken string) (s *domainauth.Session, err error) {
	ctx, span := otel.Tracer("auth.usecase").Start(ctx, "auth.Login")
	defer span.End()
	defer func() { u.observe(ctx, "login", err) }()

	id, err := u.identity.Verify(ctx, providerToken)
	if err != nil {
		if !errors.Is(err, domainauth.ErrInvalidIdentity) {
			err = fmt.Errorf("%w: %w", domainauth.ErrInvalidIdentity, err)
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("auth.subject", id.SubjectID))

	now := u.cfg.Now()
	refresh, refreshExp, err := u.codec.IssueRefresh(id.SubjectID, now)
	if err != nil {
		return nil, fmt.Errorf("issue refresh: %w", err)
	}

	s = &domainauth.Session{RefreshToken: refresh, RefreshExpiresAt: refreshExp}
	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		usr, created, err := u.users.FindOrCreateBySubject(ctx, user.New(uuid.NewString(), id.SubjectID, id.Email, now))
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return fmt.Errorf("%w: %w", domainauth.ErrEmailTaken, err)
			}
			return fmt.Errorf("find or create user: %w", err)
		}
		if err := u.checkEnabled(usr); err != nil {
			return err
		}
		if created {
			if err := u.emit(ctx, outbox.KindUserCreated, outbox.AuthEvent{
				UserID: usr.ID, SubjectID: usr.SubjectID, At: now,
			}); err != nil {
				return err
			}
		}

		rt, err := u.tokens.Issue(ctx, usr.ID, refresh, refreshExp, now)
		if err != nil {
			return fmt.Errorf("issue refresh token: %w", err)
		}
		if err := u.emit(ctx, outbox.KindSessionIssued, outbox.AuthEvent{
			UserID: usr.ID, SubjectID: usr.SubjectID, TokenID: rt.ID, Reason: "login", At: now,
		}); err != nil {
			return err
		}
		s.User = usr
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	// Signing errors are internal, never storage.
	if s.AccessToken, err = u.codec.IssueAccess(s.User.SubjectID, s.User.Role, now); err != nil {
		return nil, fmt.Errorf("issue access: %w", err)
	}

	obs.WithTrace(ctx, u.log).Info("login",
		zap.String("user_id", s.User.ID),
		zap.String("subject_id", s.User.SubjectID),
	)
	return s, nil
}

// Refresh mints a new access token for a live refresh token. With rotation enabled
// the presented token is revoked and replaced in the same transaction, and the
// returned session carries the new value.
func (u *Usecase) Refresh(ctx context.Context, value string) (s *domainauth.Session, err error) {
	ctx, span := otel.Tracer("auth.usecase").Start(ctx, "auth.Refresh")
	defer span.End()
	defer func() { u.observe(ctx, "refresh", err) }()

	if value == "" {
		return nil, domainauth.ErrInvalidRefreshToken
	}
	now := u.cfg.Now()

	subject, err := u.codec.VerifyRefresh(value, now)
	if err != nil {
		obs.WithTrace(ctx, u.log).Debug("refresh token rejected", zap.Error(err))
		return nil, domainauth.ErrInvalidRefreshToken
	}
	rt, err := u.tokens.FindActive(ctx, value, now)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domainauth.ErrInvalidRefreshToken
		}
		return nil, domainauth.Storage(err)
	}
	usr, err := u.users.GetByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domainauth.ErrUserNotFound
		}
		return nil, domainauth.Storage(err)
	}
	if usr.SubjectID != subject {
		return nil, domainauth.ErrInvalidRefreshToken
	}
	if err := u.checkEnabled(usr); err != nil {
		return nil, err
	}

	access, err := u.codec.IssueAccess(usr.SubjectID, usr.Role, now)
	if err != nil {
		return nil, fmt.Errorf("issue access: %w", err)
	}
	s = &domainauth.Session{User: usr, AccessToken: access}
	if !u.cfg.RotateRefreshOnUse {
		return s, nil
	}

	next, nextExp, err := u.codec.IssueRefresh(usr.SubjectID, now)
	if err != nil {
		return nil, fmt.Errorf("issue refresh: %w", err)
	}
	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		// A concurrent refresh with the same value may have rotated it already.
		old, err := u.tokens.Revoke(ctx, value)
		if err != nil {
			return fmt.Errorf("revoke presented token: %w", err)
		}
		if old == nil {
			return domainauth.ErrInvalidRefreshToken
		}
		rt, err := u.tokens.Issue(ctx, usr.ID, next, nextExp, now)
		if err != nil {
			return fmt.Errorf("issue refresh token: %w", err)
		}
		return u.emit(ctx, outbox.KindSessionIssued, outbox.AuthEvent{
			UserID: usr.ID, SubjectID: usr.SubjectID, TokenID: rt.ID, Reason: "rotated", At: now,
		})
	})
	if err != nil {
		return nil, classify(err)
	}
	s.RefreshToken, s.RefreshExpiresAt = next, nextExp
	return s, nil
}

// Logout revokes value if it is still live. Unknown, expired and already revoked
// values are not errors.
func (u *Usecase) Logout(ctx context.Context, value string) (err error) {
	ctx, span := otel.Tracer("auth.usecase").Start(ctx, "auth.Logout")
	defer span.End()
	defer func() { u.observe(ctx, "logout", err) }()

	if value == "" {
		return nil
	}
	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		rt, err := u.tokens.Revoke(ctx, value)
		if err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
		if rt == nil {
			return nil
		}
		return u.emit(ctx, outbox.KindSessionRevoked, outbox.AuthEvent{
			UserID: rt.UserID, TokenID: rt.ID, Reason: "logout", At: u.cfg.Now(),
		})
	})
	return classify(err)
}

func (u *Usecase) WhoAmI(ctx context.Context, accessToken string) (p *domainauth.Profile, err error) {
	ctx, span := otel.Tracer("auth.usecase").Start(ctx, "auth.WhoAmI")
	defer span.End()
	defer func() { u.observe(ctx, "whoami", err) }()

	claims, err := u.codec.VerifyAccess(accessToken, u.cfg.Now())
	if err != nil {
		return nil, err
	}
	usr, err := u.users.GetBySubject(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domainauth.ErrUserNotFound
		}
		return nil, domainauth.Storage(err)
	}
	if err := u.checkEnabled(usr); err != nil {
		return nil, err
	}
	profile := domainauth.ProfileOf(usr)
	return &profile, nil
}

func (u *Usecase) checkEnabled(usr *user.User) error {
	if u.cfg.RejectDisabledUsers && usr.Disabled() {
		return domainauth.ErrAccountDisabled
	}
	return nil
}

func (u *Usecase) emit(ctx context.Context, kind outbox.Kind, ev outbox.AuthEvent) error {
	if u.events == nil {
		return nil
	}
	ev.Type = kind.String()
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", kind, err)
	}
	if err := u.events.Enqueue(ctx, uuid.NewString(), kind, data); err != nil {
		return fmt.Errorf("enqueue %s event: %w", kind, err)
	}
	return nil
}

func (u *Usecase) observe(ctx context.Context, op string, err error) {
	result := outcome(err)
	authOperations.WithLabelValues(op, result).Inc()
	if result == "storage_unavailable" || result == "internal" {
		obs.WithTrace(ctx, u.log).Error(op+" failed", zap.Error(err))
	}
}

var outcomes = []struct {
	err  error
	name string
}{
	{domainauth.ErrInvalidIdentity, "invalid_identity"},
	{domainauth.ErrInvalidRefreshToken, "invalid_refresh"},
	{domainauth.ErrTokenExpired, "token_expired"},
	{domainauth.ErrUnauthorized, "unauthorized"},
	{domainauth.ErrUserNotFound, "user_not_found"},
	{domainauth.ErrAccountDisabled, "account_disabled"},
	{domainauth.ErrEmailTaken, "email_taken"},
	{domainauth.ErrStorageUnavailable, "storage_unavailable"},
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	for _, o := range outcomes {
		if errors.Is(err, o.err) {
			return o.name
		}
	}
	return "internal"
}

// classify keeps domain failures as they are and turns anything else that came
// out of a transaction into a storage failure.
func classify(err error) error {
	if err == nil || outcome(err) != "internal" {
		return err
	}
	return domainauth.Storage(err)
}
