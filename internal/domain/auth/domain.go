package auth

import (
	"time"

	"github.com/NordCoder/doggy-auth/internal/domain/user"
)

// Identity is what the external provider vouches for.
type Identity struct {
	SubjectID string
	Email     string
}

type AccessClaims struct {
	SubjectID string
	Role      user.Role
	ExpiresAt time.Time
}

type RefreshToken struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// Active mirrors the store predicate: a token expiring exactly at now is already dead.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}

type Session struct {
	User             *user.User
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type Profile struct {
	SubjectID string    `json:"subject_id"`
	Email     string    `json:"email"`
	Role      user.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func ProfileOf(u *user.User) Profile {
	return Profile{
		SubjectID: u.SubjectID,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
