package auth

import (
	"context"
	"time"

	"github.com/NordCoder/doggy-auth/internal/domain/user"
)

//go:generate mockgen -source=port.go -destination=../../mocks/mock_auth.go -package=mocks

type IdentityVerifier interface {
	Verify(ctx context.Context, providerToken string) (*Identity, error)
}

type TokenCodec interface {
	IssueAccess(subjectID string, role user.Role, now time.Time) (string, error)
	IssueRefresh(subjectID string, now time.Time) (value string, expiresAt time.Time, err error)
	VerifyAccess(token string, now time.Time) (*AccessClaims, error)
	VerifyRefresh(token string, now time.Time) (subjectID string, err error)
}

type RefreshTokenRepo interface {
	// Issue revokes every live token of userID and stores value as the only live one, atomically.
	Issue(ctx context.Context, userID, value string, expiresAt, now time.Time) (*RefreshToken, error)
	FindActive(ctx context.Context, value string, now time.Time) (*RefreshToken, error)
	// Revoke is idempotent; revoked is nil when no live row matched.
	Revoke(ctx context.Context, value string) (revoked *RefreshToken, err error)
}

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
