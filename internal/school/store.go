package school

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("school: not found")
	ErrAlreadyExists = errors.New("school: already exists")
)

// Store describes persistence operations required by the auth and tenant-lock
// subsystems. These tables sit outside row-level security: login must be able
// to find a user before any tenant context exists.
type Store interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUser(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, u *User) error

	FindOwnerByEmail(ctx context.Context, email string) (*PlatformOwner, error)

	FindSchool(ctx context.Context, id string) (*School, error)
	FindSchoolBySlug(ctx context.Context, slug string) (*School, error)
	SchoolStatus(ctx context.Context, id string) (Status, error)
	CreateSchool(ctx context.Context, s *School) error
	UpdateSchoolStatus(ctx context.Context, id string, status Status, reason string) error
	ListSchools(ctx context.Context) ([]*School, error)

	CreateRefresh(ctx context.Context, rec *RefreshRecord) error
	FindLiveRefresh(ctx context.Context, userID, tokenHash string) (*RefreshRecord, error)
	RevokeRefresh(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}
