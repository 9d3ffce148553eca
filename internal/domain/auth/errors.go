package auth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidIdentity     = errors.New("invalid identity token")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrTokenExpired        = fmt.Errorf("%w: token has expired", ErrUnauthorized)
	ErrTokenInvalid        = fmt.Errorf("%w: invalid token", ErrUnauthorized)
	ErrMissingToken        = fmt.Errorf("%w: missing token", ErrUnauthorized)
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrUserNotFound        = errors.New("user not found")
	ErrAccountDisabled     = errors.New("account is disabled")
	ErrEmailTaken          = errors.New("email already registered")
	ErrTooManyRequests     = errors.New("too many requests")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

// Storage marks err as a transient persistence failure while keeping the cause for logs.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrStorageUnavailable, err)
}
