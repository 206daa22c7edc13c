package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateEmail     = errors.New("user with this email already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrMalformedToken          = errors.New("token is malformed or expired")
	ErrUnauthenticated         = errors.New("unauthenticated")
	ErrExpiredOrRevokedSession = errors.New("refresh session is expired or revoked")
	ErrSessionConflict         = errors.New("refresh session already exists")

	// Any storage or infrastructure failure that is not part of the taxonomy above
	ErrInternal = errors.New("internal error")
)

// Returned by the refresh token resolver when signature is fine but no live session found
// It is ErrExpiredOrRevokedSession for every caller that checks with errors.Is
var ErrTokenNotExists = fmt.Errorf("token not exists: %w", ErrExpiredOrRevokedSession)
