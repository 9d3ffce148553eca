package user

import (
	"errors"
	"strings"
	"time"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleOwner      Role = "owner"
	RoleStaff      Role = "staff"
	RoleAdminStaff Role = "admin_staff"
	RoleSuperadmin Role = "superadmin"
)

var ErrUnknownRole = errors.New("unknown role")

var roles = map[Role]struct{}{
	RoleUser:       {},
	RoleOwner:      {},
	RoleStaff:      {},
	RoleAdminStaff: {},
	RoleSuperadmin: {},
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roles[r]; !ok {
		return "", ErrUnknownRole
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := roles[r]
	return ok
}

func (r Role) String() string { return string(r) }

type User struct {
	ID          string
	SubjectID   string
	Email       string
	Role        Role
	IsActive    bool
	IsSuspended bool
	IsDeleted   bool
	SuspendedAt *time.Time
	DeletedAt   *time.Time
	CreatedAt   time.Time
}

// Disabled reports whether administrative state forbids authenticating as u.
func (u *User) Disabled() bool {
	return u.IsDeleted || u.IsSuspended || !u.IsActive
}

// New builds the record persisted on first sight of a subject.
func New(id, subjectID, email string, now time.Time) *User {
	return &User{
		ID:        id,
		SubjectID: subjectID,
		Email:     NormalizeEmail(email),
		Role:      RoleUser,
		IsActive:  true,
		CreatedAt: now,
	}
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
