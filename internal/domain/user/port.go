package user

import "context"

//go:generate mockgen -source=port.go -destination=../../mocks/mock_user_repo.go -package=mocks

type Repo interface {
	// FindOrCreateBySubject returns the user for subjectID, inserting candidate when none exists.
	// created is true only for the caller whose insert won.
	FindOrCreateBySubject(ctx context.Context, candidate *User) (u *User, created bool, err error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetBySubject(ctx context.Context, subjectID string) (*User, error)
}
