package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/blogaccount/internal/models"
)

type CreateUserParams struct {
	Email          string
	Name           string
	HashedPassword string
	AvatarRef      string
}

// User repository interface (credential store)
// Email must be normalized by the caller, repository compares it as is
type UserRepo interface {
	// Create user
	// If user with the email exists already has to return error apperrors.ErrDuplicateEmail
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Persist mutable fields: name, password hash and avatar
	// If user not exists anymore must return apperrors.ErrUserNotFound
	UpdateUser(ctx context.Context, user models.User) (models.User, error)
}

// Refresh session repository interface
// Every method must be safe to call concurrently for the same token id
type SessionRepo interface {
	// Save session
	// If the token id is taken already must return apperrors.ErrSessionConflict
	Record(ctx context.Context, session models.RefreshSession) error

	// Check the session is live
	Exists(ctx context.Context, tokenID uuid.UUID) (bool, error)

	// Delete session if present and report whether it was present
	// Must be atomic: of concurrent calls for the same id only one may get 'true'
	Delete(ctx context.Context, tokenID uuid.UUID) (deleted bool, err error)

	// Delete sessions issued before the time and return how many were deleted
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type Storage interface {
	User() UserRepo
	Session() SessionRepo
}
