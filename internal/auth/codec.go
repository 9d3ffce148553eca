package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	domainauth "github.com/NordCoder/doggy-auth/internal/domain/auth"
	"github.com/NordCoder/doggy-auth/internal/domain/user"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

var ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")

type Config struct {
	Secret     []byte
	Algorithm  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type claims struct {
	Role string `json:"role,omitempty"`
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Codec signs and verifies self-issued tokens. Access and refresh tokens are signed
// with different keys derived from the one configured secret.
type Codec struct {
	method     *jwt.SigningMethodHMAC
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

var _ domainauth.TokenCodec = (*Codec)(nil)

func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("signing secret is empty")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	method, ok := jwt.GetSigningMethod(cfg.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, cfg.Algorithm)
	}

	size := method.Hash.Size()
	accessKey, err := deriveKey(cfg.Secret, "doggy-auth/access", size)
	if err != nil {
		return nil, err
	}
	refreshKey, err := deriveKey(cfg.Secret, "doggy-auth/refresh", size)
	if err != nil {
		return nil, err
	}

	return &Codec{
		method:     method,
		accessKey:  accessKey,
		refreshKey: refreshKey,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}, nil
}

func deriveKey(secret []byte, info string, size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", info, err)
	}
	return key, nil
}

func (c *Codec) IssueAccess(subjectID string, role user.Role, now time.Time) (string, error) {
	cl := claims{
		Role: role.String(),
		Type: typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		},
	}
	s, err := jwt.NewWithClaims(c.method, cl).SignedString(c.accessKey)
	if err != nil {
		return "", fmt.Errorf("sign access: %w", err)
	}
	return s, nil
}

func (c *Codec) IssueRefresh(subjectID string, now time.Time) (string, time.Time, error) {
	exp := jwt.NewNumericDate(now.Add(c.refreshTTL))
	cl := claims{
		Type: typeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: exp,
		},
	}
	s, err := jwt.NewWithClaims(c.method, cl).SignedString(c.refreshKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh: %w", err)
	}
	return s, exp.Time, nil
}

func (c *Codec) VerifyAccess(token string, now time.Time) (*domainauth.AccessClaims, error) {
	cl, err := c.verify(token, now, c.accessKey, typeAccess)
	if err != nil {
		return nil, err
	}
	role, err := user.ParseRole(cl.Role)
	if err != nil {
		return nil, domainauth.ErrTokenInvalid
	}
	return &domainauth.AccessClaims{
		SubjectID: cl.Subject,
		Role:      role,
		ExpiresAt: cl.ExpiresAt.Time,
	}, nil
}

func (c *Codec) VerifyRefresh(token string, now time.Time) (string, error) {
	cl, err := c.verify(token, now, c.refreshKey, typeRefresh)
	if err != nil {
		return "", err
	}
	return cl.Subject, nil
}

// verify checks the signature before any time-based claim so a forged token is never
// reported as merely expired.
func (c *Codec) verify(token string, now time.Time, key []byte, typ string) (*claims, error) {
	if token == "" {
		return nil, domainauth.ErrMissingToken
	}

	cl := &claims{}
	parsed, err := jwt.ParseWithClaims(token, cl,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return key, nil
		},
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !parsed.Valid {
		return nil, domainauth.ErrTokenInvalid
	}
	if cl.Type != typ || cl.Subject == "" {
		return nil, domainauth.ErrTokenInvalid
	}

	v := jwt.NewValidator(
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err := v.Validate(cl); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domainauth.ErrTokenExpired
		}
		return nil, domainauth.ErrTokenInvalid
	}
	return cl, nil
}
